package archive

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

// Defaults applied by NewRunner to zero-valued options.
const (
	DefaultLimit     = 4000
	DefaultWorkers   = 4
	DefaultExtension = "txt"
)

// Options configures a mirror run.
type Options struct {
	// Root is the archive directory, created if absent
	Root string

	// Limit caps the number of posts fetched
	Limit int

	// Form selects short or long post filenames
	Form content.Form

	// Extension is the post file extension, without the dot
	Extension string

	// IncludeMetadata prefixes each post body with its front matter
	IncludeMetadata bool

	// Media enables the media pass
	Media bool

	// Workers bounds concurrent item tasks. 1 processes items sequentially.
	Workers int

	// DownloadRPS limits media downloads per second. 0 means unlimited.
	DownloadRPS float64

	// StrictCollisions turns a second claim on a path into a NAMING_COLLISION
	// failure instead of last-write-wins.
	StrictCollisions bool
}

// Runner mirrors a ContentSource into a local archive.
type Runner struct {
	opts    Options
	logger  *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRunner validates opts, applies defaults, and returns a Runner.
// A nil logger disables logging.
func NewRunner(opts Options, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Root == "" {
		opts.Root = "."
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid archive root: %v", err))
	}
	opts.Root = root

	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	opts.Extension = strings.TrimPrefix(opts.Extension, ".")
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if strings.ContainsAny(opts.Extension, "/\\") || containsTraversal(opts.Extension) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid extension %q", opts.Extension))
	}
	if opts.DownloadRPS < 0 {
		return nil, errors.NewInvalidRequest("download rate must be non-negative")
	}

	r := &Runner{
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
	if opts.DownloadRPS > 0 {
		burst := int(opts.DownloadRPS)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.DownloadRPS), burst)
	}
	return r, nil
}

// Options returns the effective options after defaults.
func (r *Runner) Options() Options {
	return r.opts
}

// Run performs one mirror pass: the media pass (when enabled) followed by
// the post pass. The summary is always returned. The error is non-nil if a
// pass could not list its items, the archive root could not be created, or
// ctx was cancelled; per-item failures only appear in the summary.
func (r *Runner) Run(ctx context.Context, src ContentSource) (*RunSummary, error) {
	summary := newRunSummary(ulid.Make().String(), r.now())
	log := r.logger.With(zap.String("run_id", summary.RunID))

	if ctx.Err() != nil {
		summary.Cancelled = true
		summary.FinishedAt = r.now()
		return summary, errors.NewCancelled("mirror run")
	}

	if err := ensureDir(r.opts.Root); err != nil {
		summary.FinishedAt = r.now()
		return summary, err
	}
	log.Info("mirror run started",
		zap.String("root", r.opts.Root),
		zap.Int("limit", r.opts.Limit),
		zap.Bool("media", r.opts.Media),
		zap.Int("workers", r.opts.Workers),
	)

	var fatal error
	if r.opts.Media {
		if err := r.mediaPass(ctx, src, summary, log); err != nil && ctx.Err() == nil {
			summary.PassErrors[PassMedia] = err
			fatal = err
			log.Error("media pass aborted", zap.Error(err))
		}
	}

	if ctx.Err() == nil {
		if err := r.postPass(ctx, src, summary, log); err != nil && ctx.Err() == nil {
			summary.PassErrors[PassPosts] = err
			if fatal == nil {
				fatal = err
			}
			log.Error("post pass aborted", zap.Error(err))
		}
	}

	summary.Cancelled = ctx.Err() != nil
	summary.FinishedAt = r.now()
	log.Info("mirror run finished",
		zap.Int("posts", summary.Posts),
		zap.Int("media", summary.Media),
		zap.Int("failures", len(summary.Failures)),
		zap.Int("collisions", len(summary.Collisions)),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	if summary.Cancelled {
		return summary, errors.NewCancelled("mirror run")
	}
	return summary, fatal
}

// mediaPass mirrors every item of the media library.
func (r *Runner) mediaPass(ctx context.Context, src ContentSource, summary *RunSummary, log *zap.Logger) error {
	if err := ensureDir(filepath.Join(r.opts.Root, MediaDirName)); err != nil {
		return err
	}

	log.Debug("fetching media library list")
	items, err := src.ListMedia(ctx)
	if err != nil {
		return asTransport("list media", err)
	}
	log.Info("media library listed", zap.Int("count", len(items)))

	plans := make([]mediaPlan, len(items))
	cl := newClaims(r.opts.StrictCollisions, log)
	for i := range items {
		m := &items[i]
		key := MediaKey(m.ID)
		p := &plans[i]
		p.media = m

		relPath, sidecarPath, assetPath, pathErr := MediaPaths(r.opts.Root, m)
		p.relPath, p.sidecarPath, p.assetPath = relPath, sidecarPath, assetPath

		sup, err := cl.claim(sidecarPath, claimant{Index: i, Role: roleSidecar, Key: key})
		if err != nil {
			p.sidecarErr = err
		}
		markSupersededMedia(plans, sup)

		if pathErr != nil {
			p.assetErr = pathErr
			continue
		}
		sup, err = cl.claim(assetPath, claimant{Index: i, Role: roleAsset, Key: key})
		if err != nil {
			p.assetErr = err
		}
		markSupersededMedia(plans, sup)
	}
	summary.Collisions = append(summary.Collisions, cl.collisions...)

	results := make([]error, len(plans))
	ran := make([]bool, len(plans))
	r.forEach(ctx, len(plans), func(i int) {
		ran[i] = true
		results[i] = r.mirrorMedia(ctx, src, &plans[i], log)
	})

	for i := range plans {
		if !ran[i] {
			continue
		}
		key := MediaKey(plans[i].media.ID)
		if results[i] != nil {
			summary.Failures[key] = results[i]
			log.Warn("media item failed", zap.String("key", key), zap.Error(results[i]))
			continue
		}
		summary.Media++
	}
	return nil
}

func markSupersededMedia(plans []mediaPlan, sup *claimant) {
	if sup == nil {
		return
	}
	switch sup.Role {
	case roleSidecar:
		plans[sup.Index].skipSidecar = true
	case roleAsset:
		plans[sup.Index].skipAsset = true
	}
}

// mirrorMedia writes the sidecar and downloads the asset of one plan. The
// two steps are independent; both are attempted and their errors joined.
func (r *Runner) mirrorMedia(ctx context.Context, src ContentSource, p *mediaPlan, log *zap.Logger) error {
	var errs []error

	switch {
	case p.sidecarErr != nil:
		errs = append(errs, p.sidecarErr)
	case !p.skipSidecar:
		if err := writeSidecar(p.sidecarPath, p.media, p.relPath); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case p.assetErr != nil:
		errs = append(errs, p.assetErr)
	case !p.skipAsset:
		if err := r.waitDownload(ctx); err != nil {
			errs = append(errs, errors.NewCancelled("download "+p.media.PublicURL))
			break
		}
		// A download that has started is allowed to finish so no partial
		// file is abandoned mid-stream.
		log.Debug("downloading media file", zap.String("url", p.media.PublicURL))
		n, err := downloadAsset(context.WithoutCancel(ctx), src, p.media.PublicURL, p.assetPath, p.media)
		if err != nil {
			errs = append(errs, err)
		} else {
			log.Debug("media file written", zap.String("path", p.assetPath), zap.Int64("bytes", n))
		}
	}

	return stderrors.Join(errs...)
}

func (r *Runner) waitDownload(ctx context.Context) error {
	if r.limiter == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// postPass lists posts and writes one document per post.
func (r *Runner) postPass(ctx context.Context, src ContentSource, summary *RunSummary, log *zap.Logger) error {
	log.Debug("fetching posts", zap.Int("limit", r.opts.Limit))
	posts, err := src.ListPosts(ctx, r.opts.Limit)
	if err != nil {
		return asTransport("list posts", err)
	}
	if len(posts) > r.opts.Limit {
		posts = posts[:r.opts.Limit]
	}
	log.Info("posts listed", zap.Int("count", len(posts)))

	plans := make([]postPlan, len(posts))
	cl := newClaims(r.opts.StrictCollisions, log)
	for i := range posts {
		p := &posts[i]
		plans[i].post = p
		plans[i].path = PostPath(r.opts.Root, p, r.opts.Form, r.opts.Extension)

		sup, err := cl.claim(plans[i].path, claimant{Index: i, Role: roleDocument, Key: PostKey(p.ID)})
		if err != nil {
			plans[i].err = err
		}
		if sup != nil {
			plans[sup.Index].superseded = true
		}
	}
	summary.Collisions = append(summary.Collisions, cl.collisions...)

	results := make([]error, len(plans))
	ran := make([]bool, len(plans))
	r.forEach(ctx, len(plans), func(i int) {
		p := &plans[i]
		if p.superseded || p.err != nil {
			results[i] = p.err
			ran[i] = p.err != nil
			return
		}
		ran[i] = true
		results[i] = writePost(p.path, p.post, r.opts.IncludeMetadata)
		if results[i] == nil {
			log.Debug("post written", zap.String("key", PostKey(p.post.ID)), zap.String("path", p.path))
		}
	})

	for i := range plans {
		if !ran[i] {
			continue
		}
		key := PostKey(plans[i].post.ID)
		if results[i] != nil {
			summary.Failures[key] = results[i]
			log.Warn("post failed", zap.String("key", key), zap.Error(results[i]))
			continue
		}
		summary.Posts++
	}
	return nil
}

// forEach runs fn for each index in [0, n) on at most Workers goroutines.
// Each call must only write state owned by its index. Dispatch stops once
// ctx is done; tasks already started run to completion.
func (r *Runner) forEach(ctx context.Context, n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// asTransport wraps uncoded errors from a ContentSource as TRANSPORT.
func asTransport(op string, err error) error {
	if _, ok := err.(*errors.MirrorError); ok {
		return err
	}
	if errors.CodeOf(err) != errors.ErrInternal {
		return err
	}
	return errors.NewTransport(op, err)
}
