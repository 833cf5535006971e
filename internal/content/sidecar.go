package content

import (
	"time"
)

// MediaRecord is the JSON sidecar written next to a mirrored media asset.
// It snapshots the remote descriptor regardless of download outcome.
type MediaRecord struct {
	ID          string         `json:"id"`
	Parent      int64          `json:"parent"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Caption     string         `json:"caption"`
	DateCreated string         `json:"date_created"` // RFC 3339
	Link        string         `json:"link"`
	Thumbnail   string         `json:"thumbnail"`
	Metadata    map[string]any `json:"metadata"`
	Path        string         `json:"path"` // relative to the media directory
}

// MediaToRecord converts m to its sidecar record using the computed relative path.
func MediaToRecord(m *Media, relativePath string) *MediaRecord {
	return &MediaRecord{
		ID:          m.ID,
		Parent:      m.ParentID,
		Title:       m.Title,
		Description: m.Description,
		Caption:     m.Caption,
		DateCreated: m.CreatedAt.Format(time.RFC3339),
		Link:        m.PublicURL,
		Thumbnail:   m.ThumbnailURL,
		Metadata:    m.Metadata,
		Path:        relativePath,
	}
}
