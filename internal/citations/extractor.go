// Package citations implements the citation extractor (C4) and the
// citation store and state machine (C5): parsing a Wikipedia page's HTML
// into external reference candidates, then persisting and driving them
// through verification, scanning, and scoring.
package citations

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"briefly/internal/canon"
	"briefly/internal/core"
)

const maxContextChars = 240

// sectionHeadings maps the lower-cased text of a Wikipedia section heading
// to the canonical section it represents. Wikipedia renders these as
// <h2>/<h3> elements whose id or text matches one of these names.
var sectionHeadings = map[string]core.CitationSection{
	"references":           core.SectionReferences,
	"notes":                core.SectionReferences,
	"citations":            core.SectionReferences,
	"further reading":      core.SectionFurtherReading,
	"external links":       core.SectionExternalLinks,
	"external link":        core.SectionExternalLinks,
}

// Candidate is a raw citation found in a page, before it's matched against
// a MonitoredWikipediaPage and persisted.
type Candidate struct {
	URL          string
	Title        string
	Context      string
	Section      core.CitationSection
	SourceNumber *int
}

// ExtractCandidates parses pageHTML and returns one Candidate per distinct
// external link found in the references, further-reading, and
// external-links sections. Wikipedia-internal links (classified by C1) are
// dropped; malformed hrefs are skipped rather than erroring the whole page.
func ExtractCandidates(pageHTML string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Wikipedia page HTML: %w", err)
	}

	var candidates []Candidate
	seen := make(map[string]bool)
	ordinal := 0

	doc.Find("h2, h3").Each(func(_ int, heading *goquery.Selection) {
		section, ok := matchSection(heading)
		if !ok {
			return
		}

		container := sectionContainer(heading)
		if container == nil {
			return
		}

		container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, exists := a.Attr("href")
			if !exists || href == "" {
				return
			}

			result := canon.Canonicalize(href)
			if result.Classification != core.ClassExternal {
				return
			}
			if seen[result.CanonicalURL] {
				return
			}
			seen[result.CanonicalURL] = true

			ordinal++
			n := ordinal
			candidates = append(candidates, Candidate{
				URL:          href,
				Title:        strings.TrimSpace(a.Text()),
				Context:      truncateContext(nearbyText(a)),
				Section:      section,
				SourceNumber: &n,
			})
		})
	})

	return candidates, nil
}

// matchSection reports whether a heading marks one of the sections we
// extract from, by its id (preferred, locale-stable) or its visible text.
func matchSection(heading *goquery.Selection) (core.CitationSection, bool) {
	if id, ok := heading.Attr("id"); ok {
		if section, ok := sectionHeadings[strings.ToLower(strings.ReplaceAll(id, "_", " "))]; ok {
			return section, true
		}
	}
	if span := heading.Find("span[id]").First(); span.Length() > 0 {
		if id, ok := span.Attr("id"); ok {
			if section, ok := sectionHeadings[strings.ToLower(strings.ReplaceAll(id, "_", " "))]; ok {
				return section, true
			}
		}
	}
	text := strings.ToLower(strings.TrimSpace(heading.Text()))
	if section, ok := sectionHeadings[text]; ok {
		return section, true
	}
	return "", false
}

// sectionContainer finds the content following a heading up to the next
// heading of equal-or-higher level — MediaWiki renders sections as flat
// siblings, not nested containers, so we walk forward collecting them into
// a synthetic selection.
func sectionContainer(heading *goquery.Selection) *goquery.Selection {
	level := goquery.NodeName(heading)
	nodes := heading.NextUntil(level)
	if nodes.Length() == 0 {
		nodes = heading.NextUntil("h2")
	}
	return nodes
}

func nearbyText(a *goquery.Selection) string {
	li := a.Closest("li")
	if li.Length() > 0 {
		return li.Text()
	}
	return a.Parent().Text()
}

func truncateContext(text string) string {
	text = strings.TrimSpace(strings.Join(strings.Fields(text), " "))
	if len(text) <= maxContextChars {
		return text
	}
	return text[:maxContextChars]
}
