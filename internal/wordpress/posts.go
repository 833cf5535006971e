package wordpress

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

type wpTerm struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Taxonomy string `json:"taxonomy"`
}

type wpPost struct {
	ID          int64     `json:"id"`
	Date        string    `json:"date"`
	DateGMT     *string   `json:"date_gmt"`
	Modified    string    `json:"modified"`
	ModifiedGMT *string   `json:"modified_gmt"`
	Slug        string    `json:"slug"`
	Status      string    `json:"status"`
	Link        string    `json:"link"`
	Title       textField `json:"title"`
	Content     textField `json:"content"`
	Embedded    struct {
		Terms [][]wpTerm `json:"wp:term"`
	} `json:"_embedded"`
}

func (p *wpPost) toPost() (content.Post, error) {
	created, err := parseSiteTime(p.Date, p.DateGMT)
	if err != nil {
		return content.Post{}, fmt.Errorf("post %d: date: %w", p.ID, err)
	}
	modified, err := parseSiteTime(p.Modified, p.ModifiedGMT)
	if err != nil {
		return content.Post{}, fmt.Errorf("post %d: modified: %w", p.ID, err)
	}

	var terms []content.Term
	for _, group := range p.Embedded.Terms {
		for _, t := range group {
			terms = append(terms, content.Term{Taxonomy: t.Taxonomy, Name: html.UnescapeString(t.Name)})
		}
	}

	return content.Post{
		ID:         strconv.FormatInt(p.ID, 10),
		Title:      p.Title.text(),
		Slug:       p.Slug,
		Status:     content.Status(p.Status),
		CreatedAt:  created,
		ModifiedAt: modified,
		Body:       p.Content.text(),
		Permalink:  p.Link,
		Terms:      terms,
	}, nil
}

// ListPosts returns up to limit posts of any status, newest first.
func (c *Client) ListPosts(ctx context.Context, limit int) ([]content.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	perPage := min(c.perPage, limit)

	var posts []content.Post
	for page := 1; len(posts) < limit; page++ {
		query := url.Values{
			"context":  {"edit"},
			"status":   {"any"},
			"_embed":   {"wp:term"},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}

		var batch []wpPost
		header, err := c.getJSON(ctx, "list posts", "wp/v2/posts", query, &batch)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("fetched posts page", zap.Int("page", page), zap.Int("count", len(batch)))

		for i := range batch {
			p, err := batch[i].toPost()
			if err != nil {
				return nil, errors.NewTransport("list posts: decode response", err)
			}
			posts = append(posts, p)
			if len(posts) == limit {
				break
			}
		}

		if len(batch) < perPage || page >= totalPages(header) {
			break
		}
	}
	return posts, nil
}

// totalPages reads X-WP-TotalPages; a missing header means one page.
func totalPages(h http.Header) int {
	n, err := strconv.Atoi(h.Get("X-WP-TotalPages"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
