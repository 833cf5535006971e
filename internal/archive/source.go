package archive

import (
	"context"
	"io"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
)

// ContentSource is an authenticated session with the remote platform.
// Implementations return TRANSPORT errors for network failures.
type ContentSource interface {
	// ListPosts returns at most limit posts.
	ListPosts(ctx context.Context, limit int) ([]content.Post, error)

	// ListMedia returns the whole media library.
	ListMedia(ctx context.Context) ([]content.Media, error)

	// Download opens the binary payload at url. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
