package core

import (
	"testing"
	"time"
)

func TestCitationIsTerminal(t *testing.T) {
	c := Citation{}
	if c.IsTerminal() {
		t.Error("expected fresh citation to not be terminal")
	}

	saved := DecisionSaved
	c.RelevanceDecision = &saved
	if !c.IsTerminal() {
		t.Error("expected citation with a relevance decision to be terminal")
	}
}

func TestMonitoredWikipediaPageDefaults(t *testing.T) {
	now := time.Now()
	page := MonitoredWikipediaPage{
		ID:             "page-1",
		PatchID:        "patch-1",
		WikipediaTitle: "Borscht",
		WikipediaURL:   "https://en.wikipedia.org/wiki/Borscht",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if page.CitationsExtracted {
		t.Error("expected a freshly created page to have citations_extracted=false")
	}
	if page.LastExtractedAt != nil {
		t.Error("expected LastExtractedAt to be nil until extraction runs")
	}
	if page.CitationCount != 0 {
		t.Errorf("expected CitationCount 0, got %d", page.CitationCount)
	}
}

func TestDiscoveredContentFields(t *testing.T) {
	score := 0.82
	dc := DiscoveredContent{
		ID:             "content-1",
		PatchID:        "patch-1",
		SourceURL:      "https://example.com/a",
		CanonicalURL:   "https://example.com/a",
		Domain:         "example.com",
		Title:          "Example",
		Category:       "article",
		ContentHash:    "deadbeef",
		RelevanceScore: &score,
	}

	if dc.CanonicalURL != dc.SourceURL {
		t.Errorf("expected canonical and source URL to match in this fixture")
	}
	if dc.RelevanceScore == nil || *dc.RelevanceScore != 0.82 {
		t.Errorf("expected RelevanceScore 0.82, got %v", dc.RelevanceScore)
	}
}

func TestDiscoveryRunRate(t *testing.T) {
	run := DiscoveryRun{
		StartedAt:      time.Now().Add(-2 * time.Second),
		ProcessedCount: 10,
	}

	rate := run.Rate()
	if rate <= 0 {
		t.Errorf("expected positive rate, got %f", rate)
	}
}

func TestFeedQueueItemUniquenessKey(t *testing.T) {
	item := FeedQueueItem{
		PatchID:             "patch-1",
		DiscoveredContentID: "content-1",
		ContentHash:         "abc123",
		Status:              FeedQueuePending,
	}

	if item.Status != FeedQueuePending {
		t.Errorf("expected PENDING status, got %s", item.Status)
	}
}
