package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/datastore"
)

func newTestResolver(t *testing.T) (*Resolver, datastore.Interface) {
	t.Helper()

	settings := conf.TestSettings(t.TempDir())
	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	return New(settings, ds), ds
}

func TestResolveUserImageWinsOverDefaults(t *testing.T) {
	r, ds := newTestResolver(t)

	require.NoError(t, ds.SaveDefaultImage(&datastore.DefaultImage{
		Brand: "Canon", Model: "AE-1", ImageURL: "/content/default.jpg", IsActive: true,
	}, false))

	resolved := r.Resolve(&datastore.Camera{
		Brand: "Canon", Model: "AE-1",
		ImageURL: "/uploads/mine.jpg", ImageURL2: "/uploads/mine-back.jpg",
	})
	assert.Equal(t, SourceUser, resolved.Source)
	assert.Equal(t, "/uploads/mine.jpg", resolved.Primary)
	assert.Equal(t, "/uploads/mine-back.jpg", resolved.Secondary)
	assert.Nil(t, resolved.Provenance)
}

func TestResolveModelDefault(t *testing.T) {
	r, ds := newTestResolver(t)

	require.NoError(t, ds.SaveDefaultImage(&datastore.DefaultImage{
		Brand: "Canon", Model: "AE-1",
		ImageURL: "/content/ae1.jpg",
		Author:   "Shooter", License: "CC BY-SA 4.0", ImageQuality: 8,
		IsActive: true,
	}, false))

	resolved := r.Resolve(&datastore.Camera{Brand: "Canon", Model: "AE-1"})
	assert.Equal(t, SourceDefaultModel, resolved.Source)
	assert.Equal(t, "/content/ae1.jpg", resolved.Primary)
	require.NotNil(t, resolved.Provenance)
	assert.Equal(t, "Shooter", resolved.Provenance.Author)
	assert.Equal(t, 8, resolved.Provenance.Quality)
}

func TestResolveBrandFallback(t *testing.T) {
	r, ds := newTestResolver(t)

	require.NoError(t, ds.SaveBrandDefaultImage(&datastore.BrandDefaultImage{
		Brand: "Canon", ImageURL: "/content/canon-generic.jpg", IsActive: true,
	}, false))

	resolved := r.Resolve(&datastore.Camera{Brand: "Canon", Model: "Obscure-99"})
	assert.Equal(t, SourceDefaultBrand, resolved.Source)
	assert.Equal(t, "/content/canon-generic.jpg", resolved.Primary)
}

// Resolution is total: every input, including nil and blank identities,
// resolves to something.
func TestResolveAlwaysProducesAnImage(t *testing.T) {
	r, _ := newTestResolver(t)

	cameras := []*datastore.Camera{
		nil,
		{},
		{Brand: "Unknown"},
		{Model: "Orphan"},
		{Brand: "Nobody", Model: "Nothing"},
	}
	for _, camera := range cameras {
		resolved := r.Resolve(camera)
		assert.Equal(t, SourcePlaceholder, resolved.Source)
		assert.NotEmpty(t, resolved.Primary)
	}
}

func TestResolveMemoInvalidation(t *testing.T) {
	r, ds := newTestResolver(t)
	camera := &datastore.Camera{Brand: "Nikon", Model: "FM2"}

	// First resolution memoizes the miss.
	assert.Equal(t, SourcePlaceholder, r.Resolve(camera).Source)

	require.NoError(t, ds.SaveDefaultImage(&datastore.DefaultImage{
		Brand: "Nikon", Model: "FM2", ImageURL: "/content/fm2.jpg", IsActive: true,
	}, false))

	// Still the memoized miss until invalidated.
	assert.Equal(t, SourcePlaceholder, r.Resolve(camera).Source)

	r.InvalidateDefaults()
	assert.Equal(t, SourceDefaultModel, r.Resolve(camera).Source)
}

func TestHasCuratedDefault(t *testing.T) {
	r, ds := newTestResolver(t)

	assert.False(t, r.HasCuratedDefault("Leica", "M6"))
	require.NoError(t, ds.SaveDefaultImage(&datastore.DefaultImage{
		Brand: "Leica", Model: "M6", ImageURL: "/content/m6.jpg", IsActive: true,
	}, false))
	r.InvalidateDefaults()
	assert.True(t, r.HasCuratedDefault("Leica", "M6"))
}
