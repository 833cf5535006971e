package wordpress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

const (
	testUser     = "admin"
	testPassword = "app pass word"
)

// fakeSite serves a minimal subset of the WordPress REST API.
type fakeSite struct {
	posts    []map[string]any
	media    []map[string]any
	payloads map[string][]byte // path -> body
	requests atomic.Int32
	failList int // status returned by list endpoints when non-zero
}

func (f *fakeSite) authorized(r *http.Request) bool {
	u, p, ok := r.BasicAuth()
	return ok && u == testUser && p == testPassword
}

func (f *fakeSite) paginate(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if perPage <= 0 {
		perPage = 10
	}
	if page <= 0 {
		page = 1
	}
	total := (len(items) + perPage - 1) / perPage
	if total == 0 {
		total = 1
	}
	if page > total {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"rest_post_invalid_page_number"}`))
		return
	}
	start := (page - 1) * perPage
	end := min(start+perPage, len(items))

	w.Header().Set("X-WP-Total", strconv.Itoa(len(items)))
	w.Header().Set("X-WP-TotalPages", strconv.Itoa(total))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items[start:end])
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	if body, ok := f.payloads[r.URL.Path]; ok {
		_, _ = w.Write(body)
		return
	}

	switch r.URL.Path {
	case "/wp-json/wp/v2/users/me", "/wp-json/wp/v2/posts", "/wp-json/wp/v2/media":
	default:
		http.NotFound(w, r)
		return
	}

	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"incorrect_password"}`))
		return
	}

	switch r.URL.Path {
	case "/wp-json/wp/v2/users/me":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "Admin", "slug": "admin"})
	case "/wp-json/wp/v2/posts":
		if f.failList != 0 {
			w.WriteHeader(f.failList)
			return
		}
		f.paginate(w, r, f.posts)
	case "/wp-json/wp/v2/media":
		if f.failList != 0 {
			w.WriteHeader(f.failList)
			return
		}
		f.paginate(w, r, f.media)
	}
}

func newFakeSite(t *testing.T, site *fakeSite) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(site)
	t.Cleanup(server.Close)
	return server
}

func testPost(id int, slug string) map[string]any {
	return map[string]any{
		"id":           id,
		"date":         "2020-03-05T10:20:30",
		"date_gmt":     "2020-03-05T09:20:30",
		"modified":     "2020-03-06T11:00:00",
		"modified_gmt": "2020-03-06T10:00:00",
		"slug":         slug,
		"status":       "publish",
		"link":         "https://blog.example/?p=" + strconv.Itoa(id),
		"title":        map[string]any{"raw": "Post & Title " + strconv.Itoa(id), "rendered": "Post &amp; Title"},
		"content":      map[string]any{"raw": "<!-- wp:paragraph --><p>raw body</p>", "rendered": "<p>rendered</p>"},
		"_embedded": map[string]any{
			"wp:term": []any{
				[]any{map[string]any{"id": 1, "name": "News &amp; Views", "taxonomy": "category"}},
				[]any{map[string]any{"id": 5, "name": "go", "taxonomy": "post_tag"}},
			},
		},
	}
}
