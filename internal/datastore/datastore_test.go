package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/errors"
)

// newTestStore opens a SQLite store backed by a temp directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := conf.TestSettings(t.TempDir())
	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCameraCRUD(t *testing.T) {
	store := newTestStore(t)

	camera := &Camera{Brand: "Canon", Model: "AE-1", Type: "SLR", Year: 1976}
	require.NoError(t, store.SaveCamera(camera))
	require.NotZero(t, camera.ID)

	got, err := store.GetCamera(camera.ID)
	require.NoError(t, err)
	assert.Equal(t, "Canon", got.Brand)
	assert.Equal(t, "AE-1", got.Model)
	assert.False(t, got.HasUserImages())

	got.Notes = "bought at a flea market"
	require.NoError(t, store.UpdateCamera(got))

	cameras, total, err := store.ListCameras(10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, cameras, 1)

	require.NoError(t, store.DeleteCamera(camera.ID))
	_, err = store.GetCamera(camera.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetCameraNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCamera(9999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDefaultImageDuplicateRejection(t *testing.T) {
	store := newTestStore(t)

	first := &DefaultImage{
		Brand:    "Canon",
		Model:    "AE-1",
		ImageURL: "/images/defaults/ae1.jpg",
		Source:   "Wikipedia Commons",
		IsActive: true,
	}
	require.NoError(t, store.SaveDefaultImage(first, false))

	second := &DefaultImage{
		Brand:    "Canon",
		Model:    "AE-1",
		ImageURL: "/images/defaults/ae1-other.jpg",
		Source:   "Manual",
		IsActive: true,
	}
	err := store.SaveDefaultImage(second, false)
	require.Error(t, err)
	assert.True(t, errors.IsDuplicate(err))

	// The overwrite path replaces the existing record instead of failing.
	require.NoError(t, store.SaveDefaultImage(second, true))

	got, err := store.GetDefaultImage("Canon", "AE-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "/images/defaults/ae1-other.jpg", got.ImageURL)
}

func TestDefaultImageDeactivation(t *testing.T) {
	store := newTestStore(t)

	image := &DefaultImage{Brand: "Nikon", Model: "F3", ImageURL: "/x.jpg", IsActive: true}
	require.NoError(t, store.SaveDefaultImage(image, false))

	require.NoError(t, store.DeactivateDefaultImage(image.ID))

	_, err := store.GetDefaultImage("Nikon", "F3")
	assert.True(t, errors.IsNotFound(err))

	// An inactive record no longer blocks a new active one.
	replacement := &DefaultImage{Brand: "Nikon", Model: "F3", ImageURL: "/y.jpg", IsActive: true}
	require.NoError(t, store.SaveDefaultImage(replacement, false))
}

func TestBrandDefaultImage(t *testing.T) {
	store := newTestStore(t)

	image := &BrandDefaultImage{Brand: "Leica", ImageURL: "/leica.jpg", IsActive: true}
	require.NoError(t, store.SaveBrandDefaultImage(image, false))

	got, err := store.GetBrandDefaultImage("Leica")
	require.NoError(t, err)
	assert.Equal(t, "/leica.jpg", got.ImageURL)

	dup := &BrandDefaultImage{Brand: "Leica", ImageURL: "/other.jpg", IsActive: true}
	err = store.SaveBrandDefaultImage(dup, false)
	assert.True(t, errors.IsDuplicate(err))
}

func TestSummaryCounts(t *testing.T) {
	store := newTestStore(t)

	for _, c := range []Camera{
		{Brand: "Canon", Model: "AE-1", Type: "SLR"},
		{Brand: "Canon", Model: "A-1", Type: "SLR"},
		{Brand: "Olympus", Model: "XA", Type: "rangefinder"},
	} {
		cam := c
		require.NoError(t, store.SaveCamera(&cam))
	}

	brands, err := store.CountCamerasByBrand()
	require.NoError(t, err)
	require.Len(t, brands, 2)
	assert.Equal(t, "Canon", brands[0].Brand)
	assert.Equal(t, int64(2), brands[0].Count)

	types, err := store.CountCamerasByType()
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "SLR", types[0].Type)
}
