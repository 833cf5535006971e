package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

type wpMedia struct {
	ID           int64           `json:"id"`
	Date         string          `json:"date"`
	DateGMT      *string         `json:"date_gmt"`
	Post         *int64          `json:"post"`
	Title        textField       `json:"title"`
	Description  textField       `json:"description"`
	Caption      textField       `json:"caption"`
	SourceURL    string          `json:"source_url"`
	MediaDetails json.RawMessage `json:"media_details"`
}

func (m *wpMedia) toMedia() (content.Media, error) {
	created, err := parseSiteTime(m.Date, m.DateGMT)
	if err != nil {
		return content.Media{}, fmt.Errorf("media %d: date: %w", m.ID, err)
	}

	var parent int64
	if m.Post != nil {
		parent = *m.Post
	}
	meta := decodeMetadata(m.MediaDetails)

	return content.Media{
		ID:           strconv.FormatInt(m.ID, 10),
		ParentID:     parent,
		Title:        m.Title.text(),
		Description:  m.Description.text(),
		Caption:      m.Caption.text(),
		CreatedAt:    created,
		PublicURL:    m.SourceURL,
		ThumbnailURL: thumbnailURL(meta),
		Metadata:     meta,
	}, nil
}

// ListMedia returns every item of the media library.
func (c *Client) ListMedia(ctx context.Context) ([]content.Media, error) {
	var items []content.Media
	for page := 1; ; page++ {
		query := url.Values{
			"context":  {"edit"},
			"per_page": {strconv.Itoa(c.perPage)},
			"page":     {strconv.Itoa(page)},
		}

		var batch []wpMedia
		header, err := c.getJSON(ctx, "list media", "wp/v2/media", query, &batch)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("fetched media page", zap.Int("page", page), zap.Int("count", len(batch)))

		for i := range batch {
			m, err := batch[i].toMedia()
			if err != nil {
				return nil, errors.NewTransport("list media: decode response", err)
			}
			items = append(items, m)
		}

		if len(batch) < c.perPage || page >= totalPages(header) {
			break
		}
	}
	return items, nil
}
