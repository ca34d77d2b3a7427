package extract

import (
	"strings"
	"testing"

	"briefly/internal/core"
)

func TestExtractReadabilityTier(t *testing.T) {
	html := `<html><head><title>Borscht</title></head><body>
		<nav>skip me</nav>
		<article>` + strings.Repeat("<p>Borscht is a sour soup of Eastern European origin.</p>", 20) + `</article>
	</body></html>`

	e := New()
	result, err := e.Extract([]byte(html), "text/html", "https://example.com/borscht")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != core.ExtractionReadability {
		t.Errorf("expected readability tier, got %s", result.Method)
	}
	if result.Title == nil || *result.Title != "Borscht" {
		t.Errorf("expected title 'Borscht', got %v", result.Title)
	}
	if strings.Contains(result.TextContent, "skip me") {
		t.Error("expected nav boilerplate to be stripped")
	}
}

func TestExtractFallsBackWhenNoArticleTag(t *testing.T) {
	html := `<html><body><div class="content">` + strings.Repeat("<p>content filler text here.</p>", 20) + `</div></body></html>`

	e := New()
	result, err := e.Extract([]byte(html), "text/html", "https://example.com/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != core.ExtractionContentExtractor {
		t.Errorf("expected content_extractor tier, got %s", result.Method)
	}
}

func TestExtractInsufficientForTinyPage(t *testing.T) {
	html := `<html><body><p>too short</p></body></html>`

	e := New()
	result, err := e.Extract([]byte(html), "text/html", "https://example.com/tiny")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != core.ExtractionInsufficient {
		t.Errorf("expected insufficient method, got %s", result.Method)
	}
}

func TestExtractDispatchesOnPDFExtension(t *testing.T) {
	e := New()
	result, err := e.Extract([]byte("not a real pdf"), "", "https://example.com/doc.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != core.ExtractionInsufficient {
		t.Errorf("expected insufficient method for unparsable PDF bytes, got %s", result.Method)
	}
}
