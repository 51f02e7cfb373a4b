// commons.go: Wikimedia Commons search client built on the MediaWiki API.
package imageprovider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/google/uuid"
	"github.com/k3a/html2text"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/logging"
)

const (
	commonsProviderName = "wikimedia-commons"

	// User-Agent constants following the Wikimedia robot policy
	// https://foundation.wikimedia.org/wiki/Policy:Wikimedia_Foundation_User-Agent_Policy
	userAgentName    = "CamVault"
	userAgentContact = "https://github.com/camvault/camvault"
	userAgentLibrary = "Go-HTTP-Client"
)

// CommonsProvider implements Provider against the Wikimedia Commons API.
type CommonsProvider struct {
	httpClient        *http.Client
	apiURL            string
	userAgent         string
	backgroundLimiter *rate.Limiter // for background pipeline operations only
	maxRetries        int
	logger            *slog.Logger
	debug             bool
}

// buildUserAgent constructs a user-agent string that complies with the
// Wikimedia robot policy.
// Format: <client name>/<version> (<contact information>) <library>/<version>
func buildUserAgent(appVersion string) string {
	if appVersion == "" {
		appVersion = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s) %s/%s",
		userAgentName, appVersion, userAgentContact, userAgentLibrary, runtime.Version())
}

// NewCommonsProvider creates a new Wikimedia Commons provider.
func NewCommonsProvider(settings *conf.Settings) *CommonsProvider {
	logger := logging.ForService("imageprovider").With("provider", commonsProviderName)

	// Background operations are rate limited to respect the public API;
	// interactive requests are not.
	limiter := rate.NewLimiter(rate.Limit(settings.Provider.RateLimitRPS), settings.Provider.RateLimitBurst)

	return &CommonsProvider{
		httpClient:        &http.Client{Timeout: 15 * time.Second},
		apiURL:            settings.Provider.APIURL,
		userAgent:         buildUserAgent(settings.Version),
		backgroundLimiter: limiter,
		maxRetries:        3,
		logger:            logger,
		debug:             settings.Provider.Debug,
	}
}

// searchTerms returns the progressively looser search terms for a
// brand/model pair.
func searchTerms(brand, model string) []string {
	return []string{
		fmt.Sprintf("%s %s camera", brand, model),
		fmt.Sprintf("%s %s", brand, model),
		fmt.Sprintf("%s camera %s", brand, model),
	}
}

// Search issues full-text queries against Commons using progressively looser
// search terms, stopping at the first term that yields any image-typed
// result. The returned candidates are scored and ordered best-first. An
// empty list is a normal outcome.
func (p *CommonsProvider) Search(ctx context.Context, brand, model string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	reqID := uuid.New().String()[:8]
	logger := p.logger.With("request_id", reqID, "brand", brand, "model", model)

	var limiter *rate.Limiter
	if IsBackgroundOperation(ctx) {
		limiter = p.backgroundLimiter
	}

	for _, term := range searchTerms(brand, model) {
		candidates, err := p.searchTerm(ctx, reqID, term, limit, limiter)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			logger.Debug("Search term yielded no image results, trying next", "term", term)
			continue
		}

		for i := range candidates {
			candidates[i].Quality = CalculateImageQuality(candidates[i].Width, candidates[i].Height, candidates[i].Size)
			candidates[i].Relevance = CalculateRelevance(candidates[i].Title, brand, model)
		}
		RankCandidates(candidates)
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		logger.Info("Image search completed", "term", term, "results", len(candidates),
			"top_score", candidates[0].Score())
		return candidates, nil
	}

	logger.Info("No image results for any search term")
	return nil, nil
}

// searchTerm runs one full-text query and returns the image-typed results.
func (p *CommonsProvider) searchTerm(ctx context.Context, reqID, term string, limit int, limiter *rate.Limiter) ([]Candidate, error) {
	params := map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"generator":     "search",
		"gsrsearch":     term,
		"gsrnamespace":  "6", // File namespace
		"gsrlimit":      fmt.Sprintf("%d", limit*3),
		"prop":          "imageinfo",
		"iiprop":        "url|size|mime|extmetadata",
	}

	resp, err := p.queryWithRetry(ctx, reqID, params, limiter)
	if err != nil {
		return nil, err
	}

	pages, err := resp.GetObjectArray("query", "pages")
	if err != nil {
		// A response without pages means the term matched nothing; this is
		// the normal "no results" shape of the API, not an error.
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(pages))
	for _, page := range pages {
		candidate, ok := p.parsePage(page)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// parsePage extracts a candidate from one API result page. Pages without
// image-typed file info are skipped.
func (p *CommonsProvider) parsePage(page *jason.Object) (Candidate, bool) {
	title, err := page.GetString("title")
	if err != nil {
		return Candidate{}, false
	}

	infos, err := page.GetObjectArray("imageinfo")
	if err != nil || len(infos) == 0 {
		return Candidate{}, false
	}
	info := infos[0]

	mimeType, _ := info.GetString("mime")
	if !strings.HasPrefix(mimeType, "image/") {
		return Candidate{}, false
	}

	directURL, err := info.GetString("url")
	if err != nil || directURL == "" {
		return Candidate{}, false
	}

	width, _ := info.GetInt64("width")
	height, _ := info.GetInt64("height")
	size, _ := info.GetInt64("size")

	candidate := Candidate{
		Title:    strings.TrimPrefix(title, "File:"),
		URL:      directURL,
		Width:    int(width),
		Height:   int(height),
		Size:     size,
		MIMEType: mimeType,
	}

	if meta, err := info.GetObject("extmetadata"); err == nil {
		p.fillAttribution(&candidate, meta)
	}
	return candidate, true
}

// fillAttribution extracts author and license metadata, stripping any HTML
// or wiki markup the source embeds in the values.
func (p *CommonsProvider) fillAttribution(candidate *Candidate, meta *jason.Object) {
	if artistHTML, err := meta.GetString("Artist", "value"); err == nil && artistHTML != "" {
		authorURL, authorName, err := extractArtistInfo(artistHTML)
		if err != nil {
			// Attribution may be plain text rather than markup.
			authorName = strings.TrimSpace(html2text.HTML2Text(artistHTML))
		}
		candidate.Author = authorName
		candidate.AuthorURL = authorURL
	}
	if license, err := meta.GetString("LicenseShortName", "value"); err == nil {
		candidate.License = strings.TrimSpace(html2text.HTML2Text(license))
	}
	if licenseURL, err := meta.GetString("LicenseUrl", "value"); err == nil {
		candidate.LicenseURL = strings.TrimSpace(licenseURL)
	}
	if attribution, err := meta.GetString("Attribution", "value"); err == nil {
		candidate.Attribution = strings.TrimSpace(html2text.HTML2Text(attribution))
	}
}

// queryWithRetry performs an API query with retry and exponential backoff.
// The limiter, when non-nil, gates each attempt.
func (p *CommonsProvider) queryWithRetry(ctx context.Context, reqID string, params map[string]string, limiter *rate.Limiter) (*jason.Object, error) {
	logger := p.logger.With("request_id", reqID, "api_action", params["action"])

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, errors.New(err).
					Component("imageprovider").
					Category(errors.CategoryNetwork).
					Context("provider", commonsProviderName).
					Context("request_id", reqID).
					Context("operation", "rate_limiter_wait").
					Build()
			}
		}

		resp, err := p.doQuery(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.Warn("API request failed",
			"error", err,
			"attempt", attempt+1,
			"will_retry", attempt < p.maxRetries-1)

		if ctx.Err() != nil {
			break
		}

		// Exponential backoff between network attempts.
		waitDuration := time.Second * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitDuration):
		}
	}

	return nil, errors.New(lastErr).
		Component("imageprovider").
		Category(errors.CategoryNetwork).
		Context("provider", commonsProviderName).
		Context("request_id", reqID).
		Context("max_retries", p.maxRetries).
		Context("operation", "query_with_retry").
		Build()
}

// doQuery performs a single GET against the MediaWiki API.
func (p *CommonsProvider) doQuery(ctx context.Context, params map[string]string) (*jason.Object, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	fullURL := p.apiURL + "?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode, string(body))
	}

	obj, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse api response: %w", err)
	}
	return obj, nil
}

// extractArtistInfo extracts the artist's name and URL from an HTML
// attribution string.
func extractArtistInfo(htmlStr string) (href, text string, err error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse artist attribution HTML: %w", err)
	}

	allLinks := findLinks(doc)
	if userLinks := findUserLinks(allLinks); len(userLinks) > 0 {
		// Prefer the first user page link when one exists.
		return extractHref(userLinks[0]), extractText(userLinks[0]), nil
	}
	if len(allLinks) > 0 {
		return extractHref(allLinks[0]), extractText(allLinks[0]), nil
	}

	// No links at all, return the plain text.
	return "", strings.TrimSpace(html2text.HTML2Text(htmlStr)), nil
}

// findUserLinks filters anchor nodes down to wiki user-page links.
func findUserLinks(nodes []*html.Node) []*html.Node {
	var userLinks []*html.Node
	for _, node := range nodes {
		for _, attr := range node.Attr {
			if attr.Key == "href" && strings.Contains(attr.Val, "/wiki/User:") {
				userLinks = append(userLinks, node)
				break
			}
		}
	}
	return userLinks
}

// findLinks traverses the HTML document and returns all anchor (<a>) tags.
func findLinks(doc *html.Node) []*html.Node {
	var linkNodes []*html.Node

	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			linkNodes = append(linkNodes, node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)

	return linkNodes
}

// extractHref extracts the href attribute from an anchor tag.
func extractHref(link *html.Node) string {
	for _, attr := range link.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

// extractText extracts the inner text from an anchor tag.
func extractText(link *html.Node) string {
	if link.FirstChild == nil {
		return ""
	}
	var b bytes.Buffer
	if err := html.Render(&b, link.FirstChild); err != nil {
		return ""
	}
	return strings.TrimSpace(html2text.HTML2Text(b.String()))
}
