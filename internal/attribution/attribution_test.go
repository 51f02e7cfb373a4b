package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camvault/camvault/internal/datastore"
)

func TestValidateWikimediaSourced(t *testing.T) {
	t.Parallel()

	complete := &datastore.DefaultImage{
		Source: "Wikimedia Commons", Author: "Shooter", License: "CC BY-SA 4.0",
	}
	assert.True(t, Validate(complete).Valid)

	missingBoth := &datastore.DefaultImage{Source: "Wikimedia Commons"}
	result := Validate(missingBoth)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Issues, "missing author")
	assert.Contains(t, result.Issues, "missing license")

	// A pre-composed attribution satisfies the requirement on its own.
	composed := &datastore.DefaultImage{
		Source: "Wikimedia Commons", SourceAttribution: "Photo by Shooter, CC BY-SA 4.0",
	}
	assert.True(t, Validate(composed).Valid)
}

func TestValidateManualSourced(t *testing.T) {
	t.Parallel()

	assert.False(t, Validate(&datastore.DefaultImage{Source: "manual"}).Valid)
	assert.True(t, Validate(&datastore.DefaultImage{
		Source: "manual", SourceAttribution: "Own work",
	}).Valid)
}

func TestValidateOtherSourcesHaveNoRequirements(t *testing.T) {
	t.Parallel()

	assert.True(t, Validate(&datastore.DefaultImage{Source: "archive.org"}).Valid)
	assert.True(t, Validate(&datastore.DefaultImage{}).Valid)
}

func TestRender(t *testing.T) {
	t.Parallel()

	full := &datastore.DefaultImage{
		Author: "Shooter", License: "CC BY-SA 4.0", ImageQuality: 9,
	}
	assert.Equal(t,
		"Author: Shooter, License: CC BY-SA 4.0, Source: Wikimedia Commons (High Quality)",
		Render(full))

	modest := &datastore.DefaultImage{
		Author: "Shooter", License: "CC BY-SA 4.0", ImageQuality: 5,
	}
	assert.Equal(t,
		"Author: Shooter, License: CC BY-SA 4.0, Source: Wikimedia Commons",
		Render(modest))

	stored := &datastore.DefaultImage{SourceAttribution: "Photo courtesy of the museum"}
	assert.Equal(t, "Photo courtesy of the museum", Render(stored))

	bare := &datastore.DefaultImage{Source: "archive.org"}
	assert.Equal(t, "Image from archive.org", Render(bare))

	assert.Empty(t, Render(nil))
	assert.Empty(t, Render(&datastore.DefaultImage{}))
}

func TestCleanAuthor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"html link", `<a href="https://example.org/u">Jane Doe</a>`, "Jane Doe"},
		{"wiki link with label", "[[User:Jane|Jane Doe]]", "Jane Doe"},
		{"plain wiki link", "[[Jane Doe]]", "Jane Doe"},
		{"bracket remnants", "]]Jane Doe[[", "Jane Doe"},
		{"entities", "Jane &amp; John &quot;Photos&quot;", `Jane & John "Photos"`},
		{"whitespace collapse", "  Jane \n  Doe  ", "Jane Doe"},
		{"already clean", "Jane Doe", "Jane Doe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanAuthor(tt.in))
		})
	}
}

func TestBuildReport(t *testing.T) {
	t.Parallel()

	images := []datastore.DefaultImage{
		{Source: "Wikimedia Commons", Author: "A", License: "CC0"},
		{Source: "Wikimedia Commons"},                  // missing author + license
		{Source: "Wikimedia Commons", Author: "B"},     // missing license
		{Source: "manual"},                             // missing attribution
		{Source: "manual", SourceAttribution: "works"}, // fine
	}

	report := BuildReport(images)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 2, report.Valid)
	assert.Equal(t, 3, report.Invalid)
	assert.InDelta(t, 40.0, report.CompliancePercent, 0.01)

	require.NotEmpty(t, report.TopIssues)
	assert.Equal(t, "missing license", report.TopIssues[0].Issue)
	assert.Equal(t, 2, report.TopIssues[0].Count)
	assert.LessOrEqual(t, len(report.TopIssues), 5)
}

func TestBuildReportEmpty(t *testing.T) {
	t.Parallel()

	report := BuildReport(nil)
	assert.Equal(t, 0, report.Total)
	assert.Zero(t, report.CompliancePercent)
}
