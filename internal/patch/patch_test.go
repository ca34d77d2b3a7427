package patch

import (
	"context"
	"testing"

	"briefly/internal/core"
)

func TestStaticProviderGetPatch(t *testing.T) {
	p := NewStaticProvider(core.Patch{ID: "p1", Handle: "go-lang", Title: "Go"})
	ctx := context.Background()

	got, err := p.GetPatch(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPatch failed: %v", err)
	}
	if got.Title != "Go" {
		t.Errorf("expected title Go, got %s", got.Title)
	}

	if _, err := p.GetPatch(ctx, "missing"); err == nil {
		t.Error("expected error for missing patch id")
	}
}

func TestStaticProviderGetPatchByHandle(t *testing.T) {
	p := NewStaticProvider(core.Patch{ID: "p1", Handle: "go-lang", Title: "Go"})
	ctx := context.Background()

	got, err := p.GetPatchByHandle(ctx, "go-lang")
	if err != nil {
		t.Fatalf("GetPatchByHandle failed: %v", err)
	}
	if got.ID != "p1" {
		t.Errorf("expected id p1, got %s", got.ID)
	}

	if _, err := p.GetPatchByHandle(ctx, "missing"); err == nil {
		t.Error("expected error for missing handle")
	}
}

func TestStaticProviderPut(t *testing.T) {
	p := NewStaticProvider()
	p.Put(core.Patch{ID: "p2", Handle: "rust-lang", Title: "Rust"})

	ctx := context.Background()
	if _, err := p.GetPatch(ctx, "p2"); err != nil {
		t.Fatalf("expected patch p2 to be found after Put: %v", err)
	}
}
