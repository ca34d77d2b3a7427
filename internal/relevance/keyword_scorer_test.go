package relevance

import (
	"context"
	"testing"
)

func TestNewKeywordScorer(t *testing.T) {
	if NewKeywordScorer() == nil {
		t.Fatal("expected NewKeywordScorer to return a non-nil scorer")
	}
}

func TestKeywordScorerBasic(t *testing.T) {
	scorer := NewKeywordScorer()
	ctx := context.Background()

	patch := PatchContext{Title: "Go (programming language)", Tags: []string{"go", "programming"}}
	text := "This article discusses Go programming language performance optimization " +
		"techniques including memory management and goroutine best practices, at length."

	result, err := scorer.Score(ctx, patch, "Go Programming Performance Tips", "https://example.com/go-performance", text)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.Score < 0 || result.Score > 100 {
		t.Errorf("expected score in [0,100], got %d", result.Score)
	}
	if result.Score < 30 {
		t.Errorf("expected higher relevance score for matching content, got %d", result.Score)
	}
	if result.Reason == "" {
		t.Error("expected a non-empty reason")
	}
}

func TestKeywordScorerUnrelatedContent(t *testing.T) {
	scorer := NewKeywordScorer()
	ctx := context.Background()

	patch := PatchContext{Title: "Artificial intelligence", Tags: []string{"machine learning"}}
	result, err := scorer.Score(ctx, patch, "Cooking Recipes", "https://example.com/cooking",
		"Collection of easy cooking recipes for everyday meals and quick dinners.")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.IsRelevant {
		t.Errorf("expected unrelated content to be scored not relevant, got score=%d", result.Score)
	}
}

func TestKeywordScorerNoKeywords(t *testing.T) {
	scorer := NewKeywordScorer()
	ctx := context.Background()

	result, err := scorer.Score(ctx, PatchContext{}, "Some Title", "https://example.com/x", "some text")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.IsRelevant {
		t.Error("expected no-keyword case to not be relevant")
	}
}

func TestResultDecide(t *testing.T) {
	r := Result{Score: 65, IsRelevant: true}
	if !r.Decide(60) {
		t.Error("expected Decide(60) to be true for score 65, isRelevant true")
	}
	if r.Decide(70) {
		t.Error("expected Decide(70) to be false for score 65")
	}

	r2 := Result{Score: 90, IsRelevant: false}
	if r2.Decide(60) {
		t.Error("expected Decide to be false when isRelevant is false regardless of score")
	}
}
