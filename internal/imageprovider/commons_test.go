package imageprovider

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camvault/camvault/internal/conf"
)

const testAPIURL = "https://commons.wikimedia.org/w/api.php"

func newTestProvider(t *testing.T) *CommonsProvider {
	t.Helper()

	settings := conf.TestSettings(t.TempDir())
	provider := NewCommonsProvider(settings)

	httpmock.ActivateNonDefault(provider.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return provider
}

// searchResponse builds a minimal formatversion=2 query response with the
// given file pages.
func searchResponse(pages string) string {
	return fmt.Sprintf(`{"query":{"pages":[%s]}}`, pages)
}

func filePage(title, imageURL, mime string, width, height, size int) string {
	return fmt.Sprintf(`{
		"title": "File:%s",
		"imageinfo": [{
			"url": %q,
			"width": %d,
			"height": %d,
			"size": %d,
			"mime": %q,
			"extmetadata": {
				"Artist": {"value": "<a href=\"https://commons.wikimedia.org/wiki/User:Shooter\">Shooter</a>"},
				"LicenseShortName": {"value": "CC BY-SA 4.0"},
				"LicenseUrl": {"value": "https://creativecommons.org/licenses/by-sa/4.0"}
			}
		}]
	}`, title, imageURL, width, height, size, mime)
}

func TestSearchReturnsRankedCandidates(t *testing.T) {
	provider := newTestProvider(t)

	pages := filePage("Canon AE-1 camera.jpg", "https://upload.example/ae1.jpg", "image/jpeg", 1200, 900, 400*1024) +
		"," + filePage("Canon logo.svg", "https://upload.example/logo.svg", "image/svg+xml", 512, 512, 10*1024) +
		"," + filePage("AE-1 manual scan.jpg", "https://upload.example/manual.jpg", "image/jpeg", 600, 800, 80*1024)

	httpmock.RegisterResponder(http.MethodGet, testAPIURL,
		httpmock.NewStringResponder(http.StatusOK, searchResponse(pages)))

	candidates, err := provider.Search(context.Background(), "Canon", "AE-1", 5)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	// The real photo outranks the logo and the manual scan.
	assert.Equal(t, "Canon AE-1 camera.jpg", candidates[0].Title)
	assert.Equal(t, "https://upload.example/ae1.jpg", candidates[0].URL)
	assert.Equal(t, "Shooter", candidates[0].Author)
	assert.Equal(t, "https://commons.wikimedia.org/wiki/User:Shooter", candidates[0].AuthorURL)
	assert.Equal(t, "CC BY-SA 4.0", candidates[0].License)
	assert.GreaterOrEqual(t, candidates[0].Quality, 1)
	assert.LessOrEqual(t, candidates[0].Quality, 10)
}

func TestSearchNoResultsIsNotAnError(t *testing.T) {
	provider := newTestProvider(t)

	httpmock.RegisterResponder(http.MethodGet, testAPIURL,
		httpmock.NewStringResponder(http.StatusOK, `{"batchcomplete":true}`))

	candidates, err := provider.Search(context.Background(), "Nonexistent", "Camera-X", 5)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// All three progressively looser terms were tried.
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestSearchSkipsNonImageResults(t *testing.T) {
	provider := newTestProvider(t)

	pages := fmt.Sprintf(`{
		"title": "File:AE-1 manual.pdf",
		"imageinfo": [{"url": %q, "width": 0, "height": 0, "size": 1024, "mime": "application/pdf"}]
	}`, "https://upload.example/manual.pdf")

	httpmock.RegisterResponder(http.MethodGet, testAPIURL,
		httpmock.NewStringResponder(http.StatusOK, searchResponse(pages)))

	candidates, err := provider.Search(context.Background(), "Canon", "AE-1", 5)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSearchRetriesOnServerError(t *testing.T) {
	provider := newTestProvider(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodGet, testAPIURL,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
			}
			pages := filePage("Canon AE-1.jpg", "https://upload.example/ae1.jpg", "image/jpeg", 800, 600, 200*1024)
			return httpmock.NewStringResponse(http.StatusOK, searchResponse(pages)), nil
		})

	candidates, err := provider.Search(context.Background(), "Canon", "AE-1", 5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 2, calls)
}

func TestUserAgentFollowsRobotPolicy(t *testing.T) {
	provider := newTestProvider(t)

	var seenUserAgent string
	httpmock.RegisterResponder(http.MethodGet, testAPIURL,
		func(req *http.Request) (*http.Response, error) {
			seenUserAgent = req.Header.Get("User-Agent")
			return httpmock.NewStringResponse(http.StatusOK, `{"batchcomplete":true}`), nil
		})

	_, err := provider.Search(context.Background(), "Canon", "AE-1", 1)
	require.NoError(t, err)
	assert.Contains(t, seenUserAgent, userAgentName)
	assert.Contains(t, seenUserAgent, userAgentContact)
}

func TestExtractArtistInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		wantHref string
		wantText string
	}{
		{
			"user link preferred",
			`by <a href="https://example.org/page">site</a> / <a href="https://commons.wikimedia.org/wiki/User:Jane">Jane Doe</a>`,
			"https://commons.wikimedia.org/wiki/User:Jane",
			"Jane Doe",
		},
		{
			"first link fallback",
			`<a href="https://example.org/author">Some Author</a>`,
			"https://example.org/author",
			"Some Author",
		},
		{
			"plain text",
			`Anonymous photographer`,
			"",
			"Anonymous photographer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			href, text, err := extractArtistInfo(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHref, href)
			assert.Equal(t, tt.wantText, text)
		})
	}
}
