package archive

import (
	"bytes"
	"path/filepath"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
)

// postPlan is one post scheduled for writing.
type postPlan struct {
	post       *content.Post
	path       string
	superseded bool  // a later post in this run claimed the same path
	err        error // planning failure; the post is not written
}

// PostPath returns the archive path of p under root.
func PostPath(root string, p *content.Post, form content.Form, extension string) string {
	return filepath.Join(root, SanitizeForFilename(content.DeriveName(p, form, extension)))
}

// writePost renders p and writes it to path, backdated to p.CreatedAt.
func writePost(path string, p *content.Post, includeMetadata bool) error {
	doc := content.Render(p, includeMetadata)
	_, err := writeFileAtomic(path, bytes.NewReader(doc), p.CreatedAt)
	return err
}
