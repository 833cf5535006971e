package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

// mediaPlan is one media item scheduled for mirroring.
type mediaPlan struct {
	media       *content.Media
	relPath     string
	sidecarPath string
	assetPath   string

	skipSidecar bool // superseded by a later claim on the same path
	skipAsset   bool

	sidecarErr error // planning failures
	assetErr   error
}

// MediaPaths returns the sidecar and asset paths for m under root.
func MediaPaths(root string, m *content.Media) (relPath, sidecarPath, assetPath string, err error) {
	mediaDir := filepath.Join(root, MediaDirName)
	sidecarPath = filepath.Join(mediaDir, SidecarName(m.ID))

	relPath, err = MediaRelativePath(m.PublicURL)
	if err != nil {
		return "", sidecarPath, "", err
	}
	return relPath, sidecarPath, filepath.Join(mediaDir, filepath.FromSlash(relPath)), nil
}

// writeSidecar writes the JSON snapshot of m to path.
func writeSidecar(path string, m *content.Media, relPath string) error {
	data, err := json.Marshal(content.MediaToRecord(m, relPath))
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = writeFileAtomic(path, bytes.NewReader(data), m.CreatedAt)
	return err
}

// downloadAsset streams url from src into path. ctx bounds the request; the
// caller decides whether in-flight downloads may outlive cancellation.
func downloadAsset(ctx context.Context, src ContentSource, url, path string, m *content.Media) (int64, error) {
	body, err := src.Download(ctx, url)
	if err != nil {
		if errors.Is(err, errors.ErrTransport) {
			return 0, err
		}
		return 0, errors.NewTransport(fmt.Sprintf("download %s", url), err)
	}
	defer body.Close()

	return writeFileAtomic(path, body, m.CreatedAt)
}
