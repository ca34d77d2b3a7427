package persistence

import "testing"

func TestComputeContentHashDeterministic(t *testing.T) {
	a, err := ComputeContentHash("Title", "Summary", "Text content")
	if err != nil {
		t.Fatalf("ComputeContentHash failed: %v", err)
	}
	b, err := ComputeContentHash("Title", "Summary", "Text content")
	if err != nil {
		t.Fatalf("ComputeContentHash failed: %v", err)
	}
	if a != b {
		t.Errorf("expected deterministic hash, got %s and %s", a, b)
	}
	if len(a) != 32 { // 128 bits, hex-encoded
		t.Errorf("expected 32 hex chars (128 bits), got %d", len(a))
	}
}

func TestComputeContentHashDiffersOnInput(t *testing.T) {
	a, _ := ComputeContentHash("Title", "Summary", "Text content")
	b, _ := ComputeContentHash("Title", "Summary", "Different text")
	if a == b {
		t.Error("expected different text content to produce a different hash")
	}
}
