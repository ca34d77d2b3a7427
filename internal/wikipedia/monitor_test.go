package wikipedia

import (
	"context"
	"testing"
	"time"

	"briefly/internal/core"
	"briefly/internal/persistence"
)

type fakePageRepo struct {
	byPatch   []core.MonitoredWikipediaPage
	pending   []core.MonitoredWikipediaPage
	patchSeen string
}

func (f *fakePageRepo) Create(ctx context.Context, page *core.MonitoredWikipediaPage) error {
	return nil
}
func (f *fakePageRepo) Get(ctx context.Context, id string) (*core.MonitoredWikipediaPage, error) {
	return nil, nil
}
func (f *fakePageRepo) GetByPatchAndTitle(ctx context.Context, patchID, title string) (*core.MonitoredWikipediaPage, error) {
	return nil, nil
}
func (f *fakePageRepo) ListByPatch(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	f.patchSeen = patchID
	return f.byPatch, nil
}
func (f *fakePageRepo) ListPendingExtraction(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	f.patchSeen = patchID
	return f.pending, nil
}
func (f *fakePageRepo) MarkExtracted(ctx context.Context, id string, count int, at time.Time) error {
	return nil
}

var _ persistence.MonitoredWikipediaPageRepository = (*fakePageRepo)(nil)

func TestMonitorPages(t *testing.T) {
	repo := &fakePageRepo{byPatch: []core.MonitoredWikipediaPage{{ID: "m1"}}}
	mon := NewMonitor(repo)

	pages, err := mon.Pages(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if len(pages) != 1 || repo.patchSeen != "p1" {
		t.Errorf("unexpected result: %+v, patchSeen=%s", pages, repo.patchSeen)
	}
}

func TestMonitorPagesPendingExtraction(t *testing.T) {
	repo := &fakePageRepo{pending: []core.MonitoredWikipediaPage{{ID: "m2"}, {ID: "m3"}}}
	mon := NewMonitor(repo)

	pages, err := mon.PagesPendingExtraction(context.Background(), "p2")
	if err != nil {
		t.Fatalf("PagesPendingExtraction failed: %v", err)
	}
	if len(pages) != 2 || repo.patchSeen != "p2" {
		t.Errorf("unexpected result: %+v", pages)
	}
}
