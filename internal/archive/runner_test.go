package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pklaus/backup-wordpress-blog/internal/content"
	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	r, err := NewRunner(opts, zap.NewNop())
	require.NoError(t, err)
	return r
}

func requireModTime(t *testing.T, path string, want time.Time) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, want.Unix(), info.ModTime().Unix(), "mtime of %s", path)
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestNewRunner_Defaults(t *testing.T) {
	r, err := NewRunner(Options{Root: t.TempDir(), Extension: ".md"}, nil)
	require.NoError(t, err)

	opts := r.Options()
	assert.Equal(t, DefaultLimit, opts.Limit)
	assert.Equal(t, DefaultWorkers, opts.Workers)
	assert.Equal(t, "md", opts.Extension)
	assert.True(t, filepath.IsAbs(opts.Root))
}

func TestNewRunner_InvalidOptions(t *testing.T) {
	_, err := NewRunner(Options{Extension: "../txt"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = NewRunner(Options{DownloadRPS: -1}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRun_PostShortName(t *testing.T) {
	root := t.TempDir()
	post := newFakePost("1", content.StatusPublished, "", "Hello, World!")
	post.CreatedAt = time.Date(2020, 3, 5, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{posts: []content.Post{post}}

	r := newTestRunner(t, Options{Root: root, IncludeMetadata: true})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Posts)
	assert.Empty(t, summary.Failures)
	assert.NotEmpty(t, summary.RunID)

	path := filepath.Join(root, "p_20200305_hello-world.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Hello, World!\n\n"))

	body, ok := content.ExtractBody(data)
	require.True(t, ok)
	assert.Equal(t, post.Body, string(body))

	requireModTime(t, path, post.CreatedAt)
}

func TestRun_PostLongNameNoMeta(t *testing.T) {
	root := t.TempDir()
	post := newFakePost("2", content.StatusDraft, "my-very-long-custom-slug-value", "ignored")
	src := &fakeSource{posts: []content.Post{post}}

	r := newTestRunner(t, Options{Root: root, Form: content.FormLong, Extension: "md"})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Posts)

	path := filepath.Join(root, "d_20200305_09-15-30_my-very-long-custom-slug-value.md")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, post.Body, string(data))
}

func TestRun_LimitTruncates(t *testing.T) {
	root := t.TempDir()
	var posts []content.Post
	for _, id := range []string{"1", "2", "3", "4"} {
		posts = append(posts, newFakePost(id, content.StatusPublished, "post-"+id, ""))
	}
	src := &fakeSource{posts: posts}

	r := newTestRunner(t, Options{Root: root, Limit: 2})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Posts)
	assert.Len(t, listTree(t, root), 2)
}

func TestRun_MediaMirrorLayout(t *testing.T) {
	root := t.TempDir()
	m, payload := newFakeMedia(1)
	m.PublicURL = "https://example.com/wp-content/uploads/2020/03/pic.jpg"
	src := &fakeSource{
		media:    []content.Media{m},
		payloads: map[string][]byte{m.PublicURL: payload},
	}

	r := newTestRunner(t, Options{Root: root, Media: true})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Media)

	assetPath := filepath.Join(root, "media", "wp-content", "uploads", "2020", "03", "pic.jpg")
	data, err := os.ReadFile(assetPath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	requireModTime(t, assetPath, m.CreatedAt)

	sidecar, err := os.ReadFile(filepath.Join(root, "media", "1.json"))
	require.NoError(t, err)

	var record content.MediaRecord
	require.NoError(t, json.Unmarshal(sidecar, &record))
	assert.Equal(t, "1", record.ID)
	assert.Equal(t, int64(10), record.Parent)
	assert.Equal(t, m.PublicURL, record.Link)
	assert.Equal(t, m.ThumbnailURL, record.Thumbnail)
	assert.Equal(t, "wp-content/uploads/2020/03/pic.jpg", record.Path)
	assert.Equal(t, m.CreatedAt.Format(time.RFC3339), record.DateCreated)
	assert.Equal(t, 100.0, record.Metadata["width"])
}

func TestRun_MediaWithoutURLPathFailsAsFilesystem(t *testing.T) {
	root := t.TempDir()
	bad, _ := newFakeMedia(1)
	bad.PublicURL = "https://example.com/"
	good, payload := newFakeMedia(2)
	src := &fakeSource{
		media:    []content.Media{bad, good},
		payloads: map[string][]byte{good.PublicURL: payload},
	}

	r := newTestRunner(t, Options{Root: root, Media: true})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Media)
	require.Contains(t, summary.Failures, MediaKey("1"))
	assert.True(t, errors.Is(summary.Failures[MediaKey("1")], errors.ErrFilesystem))
	assert.FileExists(t, filepath.Join(root, "media", "1.json"))
	assert.Equal(t, 1, src.downloadCount())
}

func TestRun_MediaDisabledSkipsListing(t *testing.T) {
	root := t.TempDir()
	m, payload := newFakeMedia(1)
	src := &fakeSource{
		media:    []content.Media{m},
		payloads: map[string][]byte{m.PublicURL: payload},
	}

	r := newTestRunner(t, Options{Root: root})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Media)
	assert.Equal(t, 0, src.downloadCount())
	_, statErr := os.Stat(filepath.Join(root, "media"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_OneDownloadFailureIsIsolated(t *testing.T) {
	root := t.TempDir()
	src := &fakeSource{payloads: map[string][]byte{}, failDownload: map[string]error{}}
	for i := 1; i <= 10; i++ {
		m, payload := newFakeMedia(i)
		src.media = append(src.media, m)
		src.payloads[m.PublicURL] = payload
		if i == 5 {
			src.failDownload[m.PublicURL] = errors.NewTransport("download "+m.PublicURL, nil)
		}
	}

	r := newTestRunner(t, Options{Root: root, Media: true, Workers: 3})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 9, summary.Media)
	require.Len(t, summary.Failures, 1)
	failure, ok := summary.Failures["media:5"]
	require.True(t, ok, "failures: %v", summary.Failures)
	assert.True(t, errors.Is(failure, errors.ErrTransport))

	// Sidecar of the failed item is still written.
	_, err = os.Stat(filepath.Join(root, "media", "5.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "media", "wp-content", "uploads", "2020", "03", "pic-5.jpg"))
	assert.True(t, os.IsNotExist(err))

	for _, i := range []int{1, 2, 3, 4, 6, 7, 8, 9, 10} {
		m, payload := newFakeMedia(i)
		rel, err := MediaRelativePath(m.PublicURL)
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(root, "media", filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	}
}

func TestRun_BrokenStreamLeavesNoPartialFile(t *testing.T) {
	root := t.TempDir()
	m, payload := newFakeMedia(1)
	src := &fakeSource{
		media:      []content.Media{m},
		payloads:   map[string][]byte{m.PublicURL: payload},
		failStream: map[string]bool{m.PublicURL: true},
	}

	r := newTestRunner(t, Options{Root: root, Media: true})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	require.Contains(t, summary.Failures, "media:1")
	assert.True(t, errors.Is(summary.Failures["media:1"], errors.ErrTransport))
	assert.ElementsMatch(t, []string{"media/1.json"}, listTree(t, root))
}

func TestRun_Idempotent(t *testing.T) {
	root := t.TempDir()
	m, payload := newFakeMedia(3)
	src := &fakeSource{
		posts: []content.Post{
			newFakePost("1", content.StatusPublished, "first", ""),
			newFakePost("2", content.StatusPrivate, "", "Second Post"),
		},
		media:    []content.Media{m},
		payloads: map[string][]byte{m.PublicURL: payload},
	}

	r := newTestRunner(t, Options{Root: root, Media: true, IncludeMetadata: true})

	snapshot := func() map[string]string {
		out := make(map[string]string)
		for _, rel := range listTree(t, root) {
			path := filepath.Join(root, filepath.FromSlash(rel))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			info, err := os.Stat(path)
			require.NoError(t, err)
			out[rel] = string(data) + "|" + info.ModTime().UTC().Format(time.RFC3339Nano)
		}
		return out
	}

	_, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	first := snapshot()

	_, err = r.Run(context.Background(), src)
	require.NoError(t, err)
	second := snapshot()

	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestRun_CollisionLastWriteWins(t *testing.T) {
	root := t.TempDir()
	a := newFakePost("1", content.StatusDraft, "same-slug", "")
	b := newFakePost("2", content.StatusDraft, "same-slug", "")
	src := &fakeSource{posts: []content.Post{a, b}}

	core, logs := observer.New(zapcore.WarnLevel)
	r, err := NewRunner(Options{Root: root, Workers: 4}, zap.New(core))
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Posts)
	assert.Empty(t, summary.Failures)
	require.Len(t, summary.Collisions, 1)
	assert.Equal(t, "post:1", summary.Collisions[0].First)
	assert.Equal(t, "post:2", summary.Collisions[0].Second)

	data, err := os.ReadFile(filepath.Join(root, "d_20200305_same-slug.txt"))
	require.NoError(t, err)
	assert.Equal(t, b.Body, string(data))

	entries := logs.FilterMessage("path already claimed in this run").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "post:1", entries[0].ContextMap()["first"])
}

func TestRun_CollisionFromShortTruncation(t *testing.T) {
	root := t.TempDir()
	a := newFakePost("1", content.StatusPublished, "", "A very long title that shares a prefix, part one")
	b := newFakePost("2", content.StatusPublished, "", "A very long title that shares a prefix, part two")
	src := &fakeSource{posts: []content.Post{a, b}}

	r := newTestRunner(t, Options{Root: root})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, summary.Collisions, 1)

	r = newTestRunner(t, Options{Root: t.TempDir(), Form: content.FormLong})
	summary, err = r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, summary.Collisions)
	assert.Equal(t, 2, summary.Posts)
}

func TestRun_StrictCollision(t *testing.T) {
	root := t.TempDir()
	a := newFakePost("1", content.StatusDraft, "same-slug", "")
	b := newFakePost("2", content.StatusDraft, "same-slug", "")
	src := &fakeSource{posts: []content.Post{a, b}}

	r := newTestRunner(t, Options{Root: root, StrictCollisions: true})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Posts)
	require.Contains(t, summary.Failures, "post:2")
	assert.True(t, errors.Is(summary.Failures["post:2"], errors.ErrNamingCollision))

	data, err := os.ReadFile(filepath.Join(root, "d_20200305_same-slug.txt"))
	require.NoError(t, err)
	assert.Equal(t, a.Body, string(data))
}

func TestRun_SharedMediaURLDownloadedOnce(t *testing.T) {
	root := t.TempDir()
	m1, payload := newFakeMedia(1)
	m2, _ := newFakeMedia(2)
	m2.PublicURL = m1.PublicURL
	src := &fakeSource{
		media:    []content.Media{m1, m2},
		payloads: map[string][]byte{m1.PublicURL: payload},
	}

	r := newTestRunner(t, Options{Root: root, Media: true})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Media)
	assert.Equal(t, 1, src.downloadCount())
	require.Len(t, summary.Collisions, 1)
	assert.Equal(t, "media:2", summary.Collisions[0].Second)
	assert.ElementsMatch(t, []string{
		"media/1.json",
		"media/2.json",
		"media/wp-content/uploads/2020/03/pic-1.jpg",
	}, listTree(t, root))
}

func TestRun_MediaListingFailureKeepsPostPass(t *testing.T) {
	root := t.TempDir()
	src := &fakeSource{
		posts:        []content.Post{newFakePost("1", content.StatusPublished, "kept", "")},
		listMediaErr: errors.NewHTTPStatus("list media", 500),
	}

	r := newTestRunner(t, Options{Root: root, Media: true})
	summary, err := r.Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))

	assert.True(t, summary.Fatal())
	assert.Contains(t, summary.PassErrors, PassMedia)
	assert.Equal(t, 1, summary.Posts)
}

func TestRun_PostListingFailure(t *testing.T) {
	src := &fakeSource{listPostsErr: context.DeadlineExceeded}

	r := newTestRunner(t, Options{})
	summary, err := r.Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.Contains(t, summary.PassErrors, PassPosts)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	root := filepath.Join(t.TempDir(), "archive")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(t, Options{Root: root})
	summary, err := r.Run(ctx, &fakeSource{posts: []content.Post{newFakePost("1", content.StatusDraft, "x", "")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCancelled))
	assert.True(t, summary.Cancelled)

	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr), "no writes after cancellation")
}

// cancellingSource cancels the run once the posts have been listed.
type cancellingSource struct {
	*fakeSource
	cancel context.CancelFunc
}

func (c *cancellingSource) ListPosts(ctx context.Context, limit int) ([]content.Post, error) {
	posts, err := c.fakeSource.ListPosts(ctx, limit)
	c.cancel()
	return posts, err
}

func TestRun_CancelledDuringPostPass(t *testing.T) {
	root := t.TempDir()
	var posts []content.Post
	for i := 0; i < 20; i++ {
		posts = append(posts, newFakePost(string(rune('a'+i)), content.StatusPublished, "slug-"+string(rune('a'+i)), ""))
	}
	ctx, cancel := context.WithCancel(context.Background())
	src := &cancellingSource{fakeSource: &fakeSource{posts: posts}, cancel: cancel}

	r := newTestRunner(t, Options{Root: root, Workers: 1})
	summary, err := r.Run(ctx, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCancelled))
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 0, summary.Posts)
	assert.Empty(t, summary.PassErrors)
}

func TestRunSummary_FailureKeysSorted(t *testing.T) {
	s := newRunSummary("id", time.Now())
	s.Failures["post:2"] = errors.NewInternal(nil)
	s.Failures["media:9"] = errors.NewInternal(nil)
	s.Failures["media:10"] = errors.NewInternal(nil)

	assert.Equal(t, []string{"media:10", "media:9", "post:2"}, s.FailureKeys())
}
