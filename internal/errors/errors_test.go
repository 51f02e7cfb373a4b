package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := NewStd("download failed")
	ee := New(base).
		Component("imagefetch").
		Category(CategoryImageDownload).
		Context("url", "https://example.com/a.jpg").
		Build()

	assert.Equal(t, "download failed", ee.Error())
	assert.Equal(t, "imagefetch", ee.Component)
	assert.Equal(t, CategoryImageDownload, ee.Category)
	assert.Equal(t, "https://example.com/a.jpg", ee.GetContext()["url"])
	assert.True(t, Is(ee, base))
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := Newf("something went wrong: %d", 42).Build()
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestCategoryMatching(t *testing.T) {
	t.Parallel()

	nf := NotFound("camera", "42")
	require.True(t, IsNotFound(nf))
	assert.False(t, IsDuplicate(nf))

	// Wrapped errors still match on category.
	wrapped := fmt.Errorf("while resolving: %w", nf)
	assert.True(t, IsNotFound(wrapped))
}

func TestDuplicate(t *testing.T) {
	t.Parallel()

	dup := Duplicate("default image", "Canon/AE-1")
	assert.True(t, IsDuplicate(dup))
	assert.Contains(t, dup.Error(), "Canon/AE-1")
	assert.Equal(t, "default image", dup.GetContext()["resource"])
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	te := Timeout("job execution", 120*time.Second)
	assert.True(t, IsTimeout(te))
	assert.InDelta(t, 120.0, te.GetContext()["budget_seconds"], 0.01)
}

func TestValidation(t *testing.T) {
	t.Parallel()

	ve := Validation("priority out of range")
	assert.True(t, IsValidation(ve))
	assert.False(t, IsNotFound(ve))
}

func TestContextCopyIsIndependent(t *testing.T) {
	t.Parallel()

	ee := Newf("boom").Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", ee.GetContext()["k"])
}
