// Package attribution validates and renders the licensing credits that
// default images sourced from external providers must carry.
package attribution

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/k3a/html2text"

	"github.com/camvault/camvault/internal/datastore"
)

// Quality at or above which the rendered credit advertises the image grade.
const highQualityThreshold = 8

// ValidationResult is the outcome of validating one image's attribution.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// IssueCount pairs an issue string with how often it occurred.
type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

// Report summarizes attribution compliance across a set of images.
type Report struct {
	Total             int          `json:"total"`
	Valid             int          `json:"valid"`
	Invalid           int          `json:"invalid"`
	CompliancePercent float64      `json:"compliance_percent"`
	TopIssues         []IssueCount `json:"top_issues,omitempty"`
}

// Validate checks whether an image's stored metadata satisfies the
// attribution requirements of its source. Wikimedia-sourced images need an
// author and license, or a pre-composed attribution string. Manually sourced
// images need an explicit attribution. Other sources have no requirements.
func Validate(img *datastore.DefaultImage) ValidationResult {
	result := ValidationResult{Valid: true}
	if img == nil {
		return ValidationResult{Valid: false, Issues: []string{"no image record"}}
	}

	source := strings.ToLower(img.Source)
	switch {
	case strings.Contains(source, "wikimedia") || strings.Contains(source, "wikipedia"):
		if img.SourceAttribution != "" {
			return result
		}
		if img.Author == "" {
			result.Issues = append(result.Issues, "missing author")
		}
		if img.License == "" {
			result.Issues = append(result.Issues, "missing license")
		}
	case strings.Contains(source, "manual"):
		if img.SourceAttribution == "" {
			result.Issues = append(result.Issues, "missing attribution for manually sourced image")
		}
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// Render produces the human-readable credit line for an image. Preference
// order: composed author/license line, stored attribution text, generic
// source mention.
func Render(img *datastore.DefaultImage) string {
	if img == nil {
		return ""
	}

	if img.Author != "" && img.License != "" {
		credit := fmt.Sprintf("Author: %s, License: %s, Source: Wikimedia Commons",
			CleanAuthor(img.Author), img.License)
		if img.ImageQuality >= highQualityThreshold {
			credit += " (High Quality)"
		}
		return credit
	}
	if img.SourceAttribution != "" {
		return img.SourceAttribution
	}
	if img.Source != "" {
		return "Image from " + img.Source
	}
	return ""
}

var (
	wikiLinkPipe  = regexp.MustCompile(`\[\[[^|\]]*\|([^\]]+)\]\]`)
	wikiLinkPlain = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	bracketLeft   = regexp.MustCompile(`\[+`)
	bracketRight  = regexp.MustCompile(`\]+`)
)

// CleanAuthor strips the markup Commons embeds in artist fields: HTML tags,
// wiki-link syntax, leftover brackets and common entities.
func CleanAuthor(raw string) string {
	cleaned := html2text.HTML2Text(raw)

	// [[page|label]] keeps the label, [[page]] keeps the page name.
	cleaned = wikiLinkPipe.ReplaceAllString(cleaned, "$1")
	cleaned = wikiLinkPlain.ReplaceAllString(cleaned, "$1")
	cleaned = bracketLeft.ReplaceAllString(cleaned, "")
	cleaned = bracketRight.ReplaceAllString(cleaned, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	cleaned = replacer.Replace(cleaned)

	return strings.Join(strings.Fields(cleaned), " ")
}

// BuildReport validates every image and aggregates the results, listing the
// five most frequent issues.
func BuildReport(images []datastore.DefaultImage) Report {
	report := Report{Total: len(images)}
	issueCounts := make(map[string]int)

	for i := range images {
		result := Validate(&images[i])
		if result.Valid {
			report.Valid++
			continue
		}
		report.Invalid++
		for _, issue := range result.Issues {
			issueCounts[issue]++
		}
	}

	if report.Total > 0 {
		report.CompliancePercent = float64(report.Valid) / float64(report.Total) * 100
	}

	for issue, count := range issueCounts {
		report.TopIssues = append(report.TopIssues, IssueCount{Issue: issue, Count: count})
	}
	sort.Slice(report.TopIssues, func(i, j int) bool {
		if report.TopIssues[i].Count != report.TopIssues[j].Count {
			return report.TopIssues[i].Count > report.TopIssues[j].Count
		}
		return report.TopIssues[i].Issue < report.TopIssues[j].Issue
	})
	if len(report.TopIssues) > 5 {
		report.TopIssues = report.TopIssues[:5]
	}
	return report
}
