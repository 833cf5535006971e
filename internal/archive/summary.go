package archive

import (
	"sort"
	"time"
)

// Pass names used in RunSummary.PassErrors.
const (
	PassMedia = "media"
	PassPosts = "posts"
)

// Collision records two items of one run resolving to the same local path.
type Collision struct {
	Path   string `json:"path"`
	First  string `json:"first"`  // key of the item that claimed the path first
	Second string `json:"second"` // key of the later item
}

// RunSummary aggregates the outcome of one mirror run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Posts is the number of post documents written
	Posts int

	// Media is the number of media items whose sidecar and asset were both written
	Media int

	// Failures maps item keys ("post:<id>", "media:<id>") to their cause
	Failures map[string]error

	// Collisions lists every path claimed by more than one item
	Collisions []Collision

	// PassErrors maps a pass name to the error that aborted it
	PassErrors map[string]error

	// Cancelled is set when the run stopped early on context cancellation
	Cancelled bool
}

func newRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:      runID,
		StartedAt:  startedAt,
		Failures:   make(map[string]error),
		PassErrors: make(map[string]error),
	}
}

// FailureKeys returns the keys of Failures in sorted order.
func (s *RunSummary) FailureKeys() []string {
	keys := make([]string, 0, len(s.Failures))
	for k := range s.Failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fatal reports whether any pass was aborted.
func (s *RunSummary) Fatal() bool {
	return len(s.PassErrors) > 0
}

// PostKey returns the summary key of a post.
func PostKey(id string) string { return "post:" + id }

// MediaKey returns the summary key of a media item.
func MediaKey(id string) string { return "media:" + id }
