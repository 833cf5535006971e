package archive

import (
	stderrors "errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

// MediaDirName is the archive subdirectory holding media sidecars and assets.
const MediaDirName = "media"

// MediaRelativePath returns the slash-separated path of publicURL with the
// scheme and host discarded. The result never escapes the media directory:
// ".." segments are resolved against the URL root. A URL with no usable
// path has no local file, which is a FILESYSTEM failure for that item.
func MediaRelativePath(publicURL string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", errors.NewFilesystem(publicURL, err)
	}

	cleaned := path.Clean("/" + u.Path)
	rel := strings.TrimPrefix(cleaned, "/")
	if rel == "" || rel == "." {
		return "", errors.NewFilesystem(publicURL, stderrors.New("media URL has no path"))
	}
	return rel, nil
}

// SidecarName returns the sidecar filename for a media ID.
func SidecarName(mediaID string) string {
	return SanitizeForFilename(mediaID) + ".json"
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(p string) bool {
	for _, part := range strings.Split(p, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(p, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename makes s safe to use as a single path component.
// Well-formed names pass through unchanged.
func SanitizeForFilename(s string) string {
	if !strings.ContainsAny(s, "/\\") && !containsTraversal(s) && !hasControl(s) && s != "" {
		return s
	}

	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if s == "" {
		s = "unnamed"
	}
	return s
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 32 || r == 127 {
			return true
		}
	}
	return false
}
