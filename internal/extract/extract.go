// Package extract implements the readable-content extractor (C3): given a
// fetched body, content type, and URL, it returns a title and main text
// using three HTML tiers (readability, heuristic content extraction,
// boilerplate-stripped fallback) tried in order, plus a PDF text-layer
// tier, until one clears the minimum byte threshold.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"briefly/internal/core"
)

const defaultMinBytes = 500

var boilerplateSelector = strings.Join([]string{
	"script", "style", "nav", "footer", "header", "aside", "form", "iframe", "noscript",
	".sidebar", "#sidebar", ".ad", ".advertisement", ".popup", ".modal", ".cookie-banner",
}, ", ")

var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content", ".post-body", ".article-body",
	"[role='main']",
	".content", "#content",
}

var blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre"

var collapseWhitespace = regexp.MustCompile(`\n{2,}`)

// Result is the outcome of extraction (§4.3).
type Result struct {
	Title       *string
	TextContent string
	Length      int
	Method      core.ExtractionMethod
}

// Extractor holds the configurable minimum byte threshold below which a
// tier is considered to have failed.
type Extractor struct {
	MinBytes int
}

// New constructs an Extractor using the default minimum byte threshold.
func New() *Extractor {
	return &Extractor{MinBytes: defaultMinBytes}
}

// Extract dispatches on contentType: PDFs go through the text-layer tier;
// everything else is treated as HTML and tried through the three tiers in
// order until one clears MinBytes.
func (e *Extractor) Extract(body []byte, contentType string, sourceURL string) (*Result, error) {
	minBytes := e.MinBytes
	if minBytes <= 0 {
		minBytes = defaultMinBytes
	}

	if strings.Contains(strings.ToLower(contentType), "application/pdf") || strings.HasSuffix(strings.ToLower(sourceURL), ".pdf") {
		return extractPDF(body, minBytes)
	}

	return extractHTML(body, minBytes)
}

func extractHTML(body []byte, minBytes int) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find(boilerplateSelector).Remove()

	title := extractTitle(doc)

	if text := readability(doc); len(text) >= minBytes {
		return &Result{Title: title, TextContent: text, Length: len(text), Method: core.ExtractionReadability}, nil
	}

	if text := contentExtractor(doc); len(text) >= minBytes {
		return &Result{Title: title, TextContent: text, Length: len(text), Method: core.ExtractionContentExtractor}, nil
	}

	text := fallback(doc)
	if len(text) >= minBytes {
		return &Result{Title: title, TextContent: text, Length: len(text), Method: core.ExtractionFallback}, nil
	}

	return &Result{Title: title, TextContent: text, Length: len(text), Method: core.ExtractionInsufficient}, nil
}

// readability picks the single node under article|main whose block-level
// descendant text is longest — the "dominant article node" tier.
func readability(doc *goquery.Document) string {
	best := ""
	doc.Find("article, main").Each(func(_ int, s *goquery.Selection) {
		text := blockText(s)
		if len(text) > len(best) {
			best = text
		}
	})
	return best
}

// contentExtractor tries a fixed list of common content-container
// selectors in priority order, returning the first that yields text.
func contentExtractor(doc *goquery.Document) string {
	var b strings.Builder
	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			b.WriteString(blockText(s))
		})
		if b.Len() > 0 {
			break
		}
	}
	return clean(b.String())
}

// fallback walks the whole body, already stripped of boilerplate tags.
func fallback(doc *goquery.Document) string {
	return clean(blockText(doc.Find("body")))
}

func blockText(s *goquery.Selection) string {
	var b strings.Builder
	s.Find(blockSelector).Each(func(_ int, item *goquery.Selection) {
		text := strings.TrimSpace(item.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	})
	return clean(b.String())
}

func clean(text string) string {
	text = collapseWhitespace.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func extractTitle(doc *goquery.Document) *string {
	if t := strings.TrimSpace(doc.Find("head title").First().Text()); t != "" {
		return &t
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return &t
		}
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return &t
	}
	return nil
}

func extractPDF(body []byte, minBytes int) (*Result, error) {
	reader := strings.NewReader(string(body))
	pdfReader, err := pdf.NewReader(reader, int64(len(body)))
	if err != nil {
		return &Result{TextContent: "", Length: 0, Method: core.ExtractionInsufficient}, nil
	}

	var b strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	text := clean(b.String())
	if len(text) < minBytes {
		return &Result{TextContent: text, Length: len(text), Method: core.ExtractionInsufficient}, nil
	}

	title := pdfTitle(text)
	return &Result{Title: title, TextContent: text, Length: len(text), Method: core.ExtractionReadability}, nil
}

// pdfTitle takes the first substantial, non-URL line as a stand-in title
// since PDFs rarely carry usable <title> metadata in their text layer.
func pdfTitle(text string) *string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 10 && len(trimmed) < 200 && !strings.Contains(trimmed, "http") {
			return &trimmed
		}
	}
	return nil
}
