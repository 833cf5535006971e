package archive

import (
	"go.uber.org/zap"

	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

// role distinguishes the files a single item writes.
type role int

const (
	roleDocument role = iota // rendered post
	roleSidecar              // media JSON sidecar
	roleAsset                // media binary
)

// claimant identifies one file write planned for an item.
type claimant struct {
	Index int    // position in the pass plan
	Role  role   // which of the item's files
	Key   string // summary key of the item
}

// claims tracks which item owns each local path within one run. It is only
// touched by the orchestrating goroutine, before tasks are dispatched.
type claims struct {
	owners     map[string]claimant
	strict     bool
	logger     *zap.Logger
	collisions []Collision
}

func newClaims(strict bool, logger *zap.Logger) *claims {
	return &claims{
		owners: make(map[string]claimant),
		strict: strict,
		logger: logger,
	}
}

// claim registers path for c. If another item already holds the path, the
// collision is logged and recorded. In the default last-write-wins mode the
// previous owner is returned so its write can be dropped. In strict mode the
// new claim is rejected with a NAMING_COLLISION error and the first owner
// keeps the path.
func (cl *claims) claim(path string, c claimant) (superseded *claimant, err error) {
	prev, taken := cl.owners[path]
	if !taken {
		cl.owners[path] = c
		return nil, nil
	}

	cl.collisions = append(cl.collisions, Collision{Path: path, First: prev.Key, Second: c.Key})
	cl.logger.Warn("path already claimed in this run",
		zap.String("path", path),
		zap.String("first", prev.Key),
		zap.String("second", c.Key),
		zap.Bool("strict", cl.strict),
	)

	if cl.strict {
		return nil, errors.NewNamingCollision(path, prev.Key, c.Key)
	}

	cl.owners[path] = c
	return &prev, nil
}
