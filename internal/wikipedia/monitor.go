// Package wikipedia implements the WikipediaMonitor collaborator
// boundary (spec.md §6): read-only access to the set of monitored pages
// seeded by the bootstrap collaborator (spec.md §1 Non-goals).
package wikipedia

import (
	"context"

	"briefly/internal/core"
	"briefly/internal/persistence"
)

// Monitor implements WikipediaMonitor.pages / PagesPendingExtraction
// (SPEC_FULL.md §3.2) on top of the persisted monitored_wikipedia_page
// table — the core's own state, not an external HTTP collaborator, since
// the bootstrap process writes directly into this table.
type Monitor struct {
	repo persistence.MonitoredWikipediaPageRepository
}

func NewMonitor(repo persistence.MonitoredWikipediaPageRepository) *Monitor {
	return &Monitor{repo: repo}
}

// Pages returns every monitored page under patchID.
func (m *Monitor) Pages(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	return m.repo.ListByPatch(ctx, patchID)
}

// PagesPendingExtraction returns the monitored pages under patchID that
// have not yet had C4's citation extraction run against them.
func (m *Monitor) PagesPendingExtraction(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	return m.repo.ListPendingExtraction(ctx, patchID)
}
