package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"briefly/internal/citations"
	"briefly/internal/core"
	"briefly/internal/fetch"
	"briefly/internal/persistence"
	"briefly/internal/wikipedia"
)

const samplePage = `<html><body>
<h2 id="References">References</h2>
<ul><li><a href="https://example.com/article">Example article</a></li></ul>
</body></html>`

type fakeDB struct {
	pages     *fakePageRepo
	citations *fakeCitationRepo
}

func (d *fakeDB) MonitoredPages() persistence.MonitoredWikipediaPageRepository { return d.pages }
func (d *fakeDB) Citations() persistence.CitationRepository                   { return d.citations }
func (d *fakeDB) Content() persistence.ContentRepository                      { return nil }
func (d *fakeDB) FeedQueue() persistence.FeedQueueRepository                  { return nil }
func (d *fakeDB) AgentMemory() persistence.AgentMemoryRepository              { return nil }
func (d *fakeDB) Runs() persistence.DiscoveryRunRepository                    { return nil }
func (d *fakeDB) Close() error                                                { return nil }
func (d *fakeDB) Ping(ctx context.Context) error                              { return nil }

type fakePageRepo struct {
	pending  []core.MonitoredWikipediaPage
	extracted map[string]int
}

func (r *fakePageRepo) Create(ctx context.Context, page *core.MonitoredWikipediaPage) error {
	return nil
}
func (r *fakePageRepo) Get(ctx context.Context, id string) (*core.MonitoredWikipediaPage, error) {
	return nil, nil
}
func (r *fakePageRepo) GetByPatchAndTitle(ctx context.Context, patchID, title string) (*core.MonitoredWikipediaPage, error) {
	return nil, nil
}
func (r *fakePageRepo) ListByPatch(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	return r.pending, nil
}
func (r *fakePageRepo) ListPendingExtraction(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	return r.pending, nil
}
func (r *fakePageRepo) MarkExtracted(ctx context.Context, id string, citationCount int, extractedAt time.Time) error {
	if r.extracted == nil {
		r.extracted = map[string]int{}
	}
	r.extracted[id] = citationCount
	return nil
}

type fakeCitationRepo struct {
	stored int
}

func (r *fakeCitationRepo) UpsertBatch(ctx context.Context, monitoringID string, cs []core.Citation) (int, error) {
	r.stored += len(cs)
	return len(cs), nil
}
func (r *fakeCitationRepo) Get(ctx context.Context, id string) (*core.Citation, error) { return nil, nil }
func (r *fakeCitationRepo) List(ctx context.Context, opts persistence.ListOptions) ([]core.Citation, error) {
	return nil, nil
}
func (r *fakeCitationRepo) ClaimNextEligible(ctx context.Context, patchID string, stuckTimeout time.Duration) (*core.Citation, error) {
	return nil, nil
}
func (r *fakeCitationRepo) MarkVerified(ctx context.Context, id string) error { return nil }
func (r *fakeCitationRepo) MarkVerificationFailed(ctx context.Context, id string, errorCode string) error {
	return nil
}
func (r *fakeCitationRepo) RecordContent(ctx context.Context, id string, text string, method core.ExtractionMethod) error {
	return nil
}
func (r *fakeCitationRepo) RecordScore(ctx context.Context, id string, score int) error { return nil }
func (r *fakeCitationRepo) MarkSaved(ctx context.Context, id string, contentID string) error {
	return nil
}
func (r *fakeCitationRepo) MarkDenied(ctx context.Context, id string, errorCode string) error {
	return nil
}
func (r *fakeCitationRepo) ResetForReprocessing(ctx context.Context, id string) error { return nil }
func (r *fakeCitationRepo) IncrementAttempts(ctx context.Context, id string, maxAttempts int) error {
	return nil
}

func TestSweepExtractsAndMarksPendingPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	pages := &fakePageRepo{pending: []core.MonitoredWikipediaPage{
		{ID: "mp-1", PatchID: "patch-1", WikipediaTitle: "Test Page", WikipediaURL: srv.URL},
	}}
	db := &fakeDB{pages: pages, citations: &fakeCitationRepo{}}
	monitor := wikipedia.NewMonitor(db.pages)
	fetcher := fetch.New(fetch.Config{})
	store := citations.NewStore(db)

	if err := Sweep(context.Background(), "patch-1", monitor, fetcher, store); err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	if db.citations.stored != 1 {
		t.Fatalf("expected 1 citation stored, got %d", db.citations.stored)
	}
	if _, ok := pages.extracted["mp-1"]; !ok {
		t.Fatalf("expected page mp-1 to be marked extracted")
	}
}

func TestSweepSkipsUnreachablePage(t *testing.T) {
	pages := &fakePageRepo{pending: []core.MonitoredWikipediaPage{
		{ID: "mp-1", PatchID: "patch-1", WikipediaTitle: "Dead link", WikipediaURL: "http://127.0.0.1:0"},
	}}
	db := &fakeDB{pages: pages, citations: &fakeCitationRepo{}}
	monitor := wikipedia.NewMonitor(db.pages)
	fetcher := fetch.New(fetch.Config{Timeout: 200 * time.Millisecond})
	store := citations.NewStore(db)

	if err := Sweep(context.Background(), "patch-1", monitor, fetcher, store); err != nil {
		t.Fatalf("Sweep should skip unreachable pages rather than fail: %v", err)
	}
	if len(pages.extracted) != 0 {
		t.Fatalf("unreachable page should not be marked extracted")
	}
}
