package content

import "time"

// Status is the publication status of a post as reported by the platform.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPrivate   Status = "private"
	StatusPublished Status = "publish"
)

// statusTokens maps known statuses to their filename prefix.
// Unknown statuses pass through unchanged.
var statusTokens = map[Status]string{
	StatusDraft:     "d",
	StatusPrivate:   "pr",
	StatusPublished: "p",
}

// Token returns the short filename prefix for s.
func (s Status) Token() string {
	if tok, ok := statusTokens[s]; ok {
		return tok
	}
	return string(s)
}

// Taxonomies of interest for rendered posts.
const (
	TaxonomyCategory = "category"
	TaxonomyTag      = "post_tag"
)

// Term is a taxonomy classification attached to a post.
type Term struct {
	Taxonomy string
	Name     string
}

// Post is a read-only snapshot of a remote post.
type Post struct {
	// ID is the platform's stable identifier
	ID string

	// Title is the human-readable title
	Title string

	// Slug is the platform-assigned slug (may be empty)
	Slug string

	// Status is the publication status
	Status Status

	// CreatedAt is the creation time in the site's zone
	CreatedAt time.Time

	// ModifiedAt is the last modification time in the site's zone
	ModifiedAt time.Time

	// Body is the raw post content, written verbatim
	Body string

	// Permalink is the public URL of the post
	Permalink string

	// Terms are the taxonomy terms attached to the post
	Terms []Term
}

// TermNames returns the names of all terms in the given taxonomy, in order.
func (p *Post) TermNames(taxonomy string) []string {
	var names []string
	for _, t := range p.Terms {
		if t.Taxonomy == taxonomy {
			names = append(names, t.Name)
		}
	}
	return names
}

// Media is a read-only snapshot of a remote media library item.
type Media struct {
	ID           string
	ParentID     int64 // 0 when unattached
	Title        string
	Description  string
	Caption      string
	CreatedAt    time.Time
	PublicURL    string
	ThumbnailURL string
	Metadata     map[string]any
}
