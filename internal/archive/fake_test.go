package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

// fakeSource is an in-memory ContentSource.
type fakeSource struct {
	posts    []content.Post
	media    []content.Media
	payloads map[string][]byte

	listPostsErr error
	listMediaErr error
	failDownload map[string]error // url -> error returned by Download
	failStream   map[string]bool  // url -> body errors after a few bytes

	mu        sync.Mutex
	downloads []string
}

func (f *fakeSource) ListPosts(_ context.Context, limit int) ([]content.Post, error) {
	if f.listPostsErr != nil {
		return nil, f.listPostsErr
	}
	if limit < len(f.posts) {
		return f.posts[:limit], nil
	}
	return f.posts, nil
}

func (f *fakeSource) ListMedia(_ context.Context) ([]content.Media, error) {
	if f.listMediaErr != nil {
		return nil, f.listMediaErr
	}
	return f.media, nil
}

func (f *fakeSource) Download(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	f.mu.Unlock()

	if err := f.failDownload[url]; err != nil {
		return nil, err
	}
	data, ok := f.payloads[url]
	if !ok {
		return nil, errors.NewHTTPStatus("download "+url, 404)
	}
	if f.failStream[url] {
		return io.NopCloser(&brokenReader{data: data[:len(data)/2]}), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeSource) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.downloads)
}

// brokenReader yields data and then fails like a dropped connection.
type brokenReader struct {
	data []byte
	done bool
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if !b.done {
		b.done = true
		return copy(p, b.data), nil
	}
	return 0, io.ErrUnexpectedEOF
}

var testDate = time.Date(2020, 3, 5, 9, 15, 30, 0, time.UTC)

func newFakePost(id string, status content.Status, slug, title string) content.Post {
	return content.Post{
		ID:         id,
		Title:      title,
		Slug:       slug,
		Status:     status,
		CreatedAt:  testDate,
		ModifiedAt: testDate.Add(48 * time.Hour),
		Body:       "<p>body of " + id + "</p>",
		Permalink:  "https://example.com/?p=" + id,
		Terms: []content.Term{
			{Taxonomy: content.TaxonomyCategory, Name: "Uncategorized"},
			{Taxonomy: content.TaxonomyTag, Name: "test"},
		},
	}
}

func newFakeMedia(id int) (content.Media, []byte) {
	url := fmt.Sprintf("https://example.com/wp-content/uploads/2020/03/pic-%d.jpg", id)
	return content.Media{
		ID:           fmt.Sprint(id),
		ParentID:     int64(id * 10),
		Title:        fmt.Sprintf("pic %d", id),
		Description:  "description",
		Caption:      "caption",
		CreatedAt:    testDate.Add(time.Duration(id) * time.Hour),
		PublicURL:    url,
		ThumbnailURL: fmt.Sprintf("https://example.com/wp-content/uploads/2020/03/pic-%d-150x150.jpg", id),
		Metadata:     map[string]any{"width": float64(100 * id)},
	}, []byte(fmt.Sprintf("binary payload %d", id))
}
