package wordpress

import (
	"encoding/json"
	"html"
	"time"
)

// siteTimeLayout is the zone-less timestamp format of the REST API.
const siteTimeLayout = "2006-01-02T15:04:05"

// textField is a {raw, rendered} pair. raw is only present with context=edit.
type textField struct {
	Raw      *string `json:"raw"`
	Rendered string  `json:"rendered"`
}

// text prefers the raw value and falls back to the unescaped rendering.
func (f textField) text() string {
	if f.Raw != nil {
		return *f.Raw
	}
	return html.UnescapeString(f.Rendered)
}

// parseSiteTime combines the site-local and GMT timestamps of an object into
// a time carrying the site's UTC offset. Without a usable GMT value the
// local time is returned in UTC.
func parseSiteTime(local string, gmt *string) (time.Time, error) {
	l, err := time.Parse(siteTimeLayout, local)
	if err != nil {
		return time.Time{}, err
	}
	if gmt == nil || *gmt == "" {
		return l, nil
	}
	g, err := time.Parse(siteTimeLayout, *gmt)
	if err != nil || g.Year() < 1 {
		return l, nil
	}
	offset := int(l.Sub(g).Round(time.Minute).Seconds())
	if offset == 0 {
		return g, nil
	}
	return g.In(time.FixedZone("", offset)), nil
}

// decodeMetadata decodes media_details, which is an object for images and
// may be an empty array for other attachments.
func decodeMetadata(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// thumbnailURL extracts media_details.sizes.thumbnail.source_url.
func thumbnailURL(meta map[string]any) string {
	sizes, _ := meta["sizes"].(map[string]any)
	thumb, _ := sizes["thumbnail"].(map[string]any)
	src, _ := thumb["source_url"].(string)
	return src
}
