package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/datastore"
	"github.com/camvault/camvault/internal/imagecache"
	"github.com/camvault/camvault/internal/imagefetch"
	"github.com/camvault/camvault/internal/imageprovider"
	"github.com/camvault/camvault/internal/jobqueue"
	"github.com/camvault/camvault/internal/resolver"
)

// fakeProvider serves canned candidates keyed by "brand model".
type fakeProvider struct {
	candidates map[string][]imageprovider.Candidate
	err        error
	searches   int
}

func (p *fakeProvider) Search(_ context.Context, brand, model string, _ int) ([]imageprovider.Candidate, error) {
	p.searches++
	if p.err != nil {
		return nil, p.err
	}
	return p.candidates[brand+" "+model], nil
}

// fakeFetcher writes a stub file for any URL.
type fakeFetcher struct {
	dir     string
	err     error
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*imagefetch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.fetched = append(f.fetched, rawURL)
	path := filepath.Join(f.dir, fmt.Sprintf("img-%d.jpg", len(f.fetched)))
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF}, 0o644); err != nil {
		return nil, err
	}
	return &imagefetch.Result{LocalPath: path, Size: 3, Width: 800, Height: 600, CompressionRatio: 2}, nil
}

// fakeCache implements ImageCache in memory.
type fakeCache struct {
	entries map[string]imagecache.Entry
	cleanup imagecache.CleanupResult
}

func (c *fakeCache) GetOrFetch(_ context.Context, rawURL string) (imagecache.Entry, error) {
	if entry, ok := c.entries[rawURL]; ok {
		return entry, nil
	}
	return imagecache.Entry{}, fmt.Errorf("download failed for %s", rawURL)
}

func (c *fakeCache) ValidateCachedFile(string) error { return nil }

func (c *fakeCache) CleanupExpired() imagecache.CleanupResult { return c.cleanup }
func (c *fakeCache) Stats() (imagecache.Stats, error) {
	return imagecache.Stats{TotalFiles: 1, ValidFiles: 1, TotalSize: 42}, nil
}

type testPipeline struct {
	*Pipeline
	ds       datastore.Interface
	provider *fakeProvider
	fetcher  *fakeFetcher
	cache    *fakeCache
	resolver *resolver.Resolver
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	settings := conf.TestSettings(t.TempDir())
	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	provider := &fakeProvider{candidates: make(map[string][]imageprovider.Candidate)}
	fetcher := &fakeFetcher{dir: t.TempDir()}
	cache := &fakeCache{entries: make(map[string]imagecache.Entry)}
	res := resolver.New(settings, ds)

	return &testPipeline{
		Pipeline: New(settings, ds, provider, fetcher, cache, res, nil),
		ds:       ds,
		provider: provider,
		fetcher:  fetcher,
		cache:    cache,
		resolver: res,
	}
}

func goodCandidate(title, url string) imageprovider.Candidate {
	return imageprovider.Candidate{
		Title: title, URL: url,
		Width: 1200, Height: 900, Size: 300 * 1024,
		Author: `<a href="https://commons.wikimedia.org/wiki/User:Jane">Jane</a>`,
		AuthorURL: "https://commons.wikimedia.org/wiki/User:Jane",
		License:   "CC BY-SA 4.0", LicenseURL: "https://creativecommons.org/licenses/by-sa/4.0",
		Quality: 8, Relevance: 15,
	}
}

func TestFetchDefaultImageStoresRecord(t *testing.T) {
	p := newTestPipeline(t)
	p.provider.candidates["Canon AE-1"] = []imageprovider.Candidate{
		goodCandidate("Canon AE-1.jpg", "https://upload.example/ae1.jpg"),
	}

	result, err := p.handleFetchDefaultImage(context.Background(),
		map[string]any{"brand": "Canon", "model": "AE-1"})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, "stored", out["status"])

	img, err := p.ds.GetDefaultImage("Canon", "AE-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", img.Author)
	assert.Equal(t, "CC BY-SA 4.0", img.License)
	assert.Equal(t, 8, img.ImageQuality)
	assert.True(t, img.IsActive)
	assert.FileExists(t, img.ImageURL)

	// The resolver now serves the new default.
	resolved := p.resolver.Resolve(&datastore.Camera{Brand: "Canon", Model: "AE-1"})
	assert.Equal(t, resolver.SourceDefaultModel, resolved.Source)
}

func TestFetchDefaultImageSkipsWhenDefaultExists(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.ds.SaveDefaultImage(&datastore.DefaultImage{
		Brand: "Canon", Model: "AE-1", ImageURL: "/content/existing.jpg", IsActive: true,
	}, false))

	result, err := p.handleFetchDefaultImage(context.Background(),
		map[string]any{"brand": "Canon", "model": "AE-1"})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, "skipped", out["status"])
	assert.Zero(t, p.provider.searches)
}

func TestFetchDefaultImageNoAcceptableCandidates(t *testing.T) {
	p := newTestPipeline(t)
	p.provider.candidates["Canon AE-1"] = []imageprovider.Candidate{
		{Title: "tiny.jpg", URL: "https://x.example/tiny.jpg", Width: 100, Height: 80, Quality: 1},
	}

	result, err := p.handleFetchDefaultImage(context.Background(),
		map[string]any{"brand": "Canon", "model": "AE-1"})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, "no_image", out["status"])
	assert.Empty(t, p.fetcher.fetched)
}

func TestFetchDefaultImageRequiresIdentity(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.handleFetchDefaultImage(context.Background(), map[string]any{"brand": "Canon"})
	require.Error(t, err)
}

func TestHandleCacheImage(t *testing.T) {
	p := newTestPipeline(t)
	p.cache.entries["https://x.example/a.jpg"] = imagecache.Entry{
		Key: "abc.jpg", Path: "/cache/abc.jpg", Size: 1000, FromNet: true,
	}

	result, err := p.handleCacheImage(context.Background(),
		map[string]any{"url": "https://x.example/a.jpg"})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, "cached", out["status"])
	assert.Equal(t, "abc.jpg", out["key"])

	_, err = p.handleCacheImage(context.Background(),
		map[string]any{"url": "https://x.example/missing.jpg"})
	require.Error(t, err)

	_, err = p.handleCacheImage(context.Background(), nil)
	require.Error(t, err)
}

func TestHandleCleanupCache(t *testing.T) {
	p := newTestPipeline(t)
	p.cache.cleanup = imagecache.CleanupResult{Deleted: 3, Errors: 1, TotalFiles: 10}

	result, err := p.handleCleanupCache(context.Background(), nil)
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, 3, out["deleted"])
	assert.Equal(t, 1, out["errors"])
	assert.Equal(t, 10, out["total_files"])
	assert.EqualValues(t, 42, out["remaining_bytes"])
}

func TestPopulateDefaults(t *testing.T) {
	p := newTestPipeline(t)

	// Two cameras share a model; one camera has user images; one is covered
	// by an existing default. Only the shared model and the orphan need a
	// fetch.
	cameras := []*datastore.Camera{
		{Brand: "Canon", Model: "AE-1"},
		{Brand: "Canon", Model: "AE-1"},
		{Brand: "Nikon", Model: "FM2"},
		{Brand: "Leica", Model: "M6", ImageURL: "/uploads/mine.jpg"},
		{Brand: "Pentax", Model: "K1000"},
	}
	for _, camera := range cameras {
		require.NoError(t, p.ds.SaveCamera(camera))
	}
	require.NoError(t, p.ds.SaveDefaultImage(&datastore.DefaultImage{
		Brand: "Pentax", Model: "K1000", ImageURL: "/content/k1000.jpg", IsActive: true,
	}, false))

	p.provider.candidates["Canon AE-1"] = []imageprovider.Candidate{
		goodCandidate("Canon AE-1.jpg", "https://upload.example/ae1.jpg"),
	}
	// Nikon FM2 yields no candidates: a skip, not a failure.

	result, err := p.handlePopulateDefaults(context.Background(), nil)
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, 2, out["targets"])
	assert.Equal(t, 1, out["stored"])
	assert.Equal(t, 1, out["skipped"])
	assert.Equal(t, 0, out["failed"])

	_, err = p.ds.GetDefaultImage("Canon", "AE-1")
	require.NoError(t, err)
}

func TestSchedulerContract(t *testing.T) {
	settings := conf.TestSettings(t.TempDir())
	queue := jobqueue.New(settings)
	queue.RegisterHandler(jobqueue.TypeFetchDefaultImage, jobqueue.HandlerFunc{
		Fn:   func(ctx context.Context, payload map[string]any) (any, error) { return nil, nil },
		Desc: "noop",
	})
	scheduler := NewScheduler(queue)

	// User images present: not scheduled.
	result, err := scheduler.ScheduleDefaultImageFetch(ScheduleRequest{
		CameraID: 1, Brand: "Canon", Model: "AE-1", HasUserImages: true,
	})
	require.NoError(t, err)
	assert.False(t, result.Scheduled)
	assert.NotEmpty(t, result.Reason)

	// Missing identity: not scheduled.
	result, err = scheduler.ScheduleDefaultImageFetch(ScheduleRequest{CameraID: 2, Brand: "Canon"})
	require.NoError(t, err)
	assert.False(t, result.Scheduled)

	// Eligible camera: job enqueued.
	result, err = scheduler.ScheduleDefaultImageFetch(ScheduleRequest{
		CameraID: 3, Brand: "Canon", Model: "AE-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Scheduled)

	snap, err := queue.Get(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.TypeFetchDefaultImage, snap.Type)
	assert.Equal(t, jobqueue.StatusPending, snap.Status)
	assert.Equal(t, "Canon", snap.Payload["brand"])
}
