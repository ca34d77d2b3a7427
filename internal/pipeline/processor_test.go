package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"briefly/internal/citations"
	"briefly/internal/core"
	"briefly/internal/extract"
	"briefly/internal/fetch"
	"briefly/internal/patch"
	"briefly/internal/persistence"
	"briefly/internal/relevance"
)

// fakeScorer returns a fixed Result regardless of input.
type fakeScorer struct {
	result relevance.Result
	err    error
}

func (s *fakeScorer) Score(ctx context.Context, pt relevance.PatchContext, title, url, text string) (relevance.Result, error) {
	return s.result, s.err
}

// fakeDB implements persistence.Database in memory, backing only the
// citation and content repositories the processor actually exercises.
type fakeDB struct {
	citations *fakeCitationRepo
	content   *fakeContentRepo
	feedQueue *fakeFeedQueueRepo
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		citations: &fakeCitationRepo{byID: map[string]*core.Citation{}},
		content:   &fakeContentRepo{byKey: map[string]string{}},
		feedQueue: &fakeFeedQueueRepo{},
	}
}

func (d *fakeDB) MonitoredPages() persistence.MonitoredWikipediaPageRepository { return nil }
func (d *fakeDB) Citations() persistence.CitationRepository                   { return d.citations }
func (d *fakeDB) Content() persistence.ContentRepository                      { return d.content }
func (d *fakeDB) FeedQueue() persistence.FeedQueueRepository                  { return d.feedQueue }
func (d *fakeDB) AgentMemory() persistence.AgentMemoryRepository              { return nil }
func (d *fakeDB) Runs() persistence.DiscoveryRunRepository                    { return nil }
func (d *fakeDB) Close() error                                                { return nil }
func (d *fakeDB) Ping(ctx context.Context) error                              { return nil }

type fakeCitationRepo struct {
	mu     sync.Mutex
	byID   map[string]*core.Citation
	queue  []string
}

func (r *fakeCitationRepo) UpsertBatch(ctx context.Context, monitoringID string, cs []core.Citation) (int, error) {
	return 0, nil
}

func (r *fakeCitationRepo) Get(ctx context.Context, id string) (*core.Citation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (r *fakeCitationRepo) List(ctx context.Context, opts persistence.ListOptions) ([]core.Citation, error) {
	return nil, nil
}

func (r *fakeCitationRepo) ClaimNextEligible(ctx context.Context, patchID string, stuckTimeout time.Duration) (*core.Citation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, nil
	}
	id := r.queue[0]
	r.queue = r.queue[1:]
	c := r.byID[id]
	c.ScanStatus = core.ScanScanning
	return c, nil
}

func (r *fakeCitationRepo) MarkVerified(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].VerificationStatus = core.VerificationVerified
	return nil
}

func (r *fakeCitationRepo) MarkVerificationFailed(ctx context.Context, id string, errorCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].VerificationStatus = core.VerificationFailed
	r.byID[id].ErrorCode = &errorCode
	return nil
}

func (r *fakeCitationRepo) RecordContent(ctx context.Context, id string, text string, method core.ExtractionMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].ContentText = &text
	r.byID[id].ExtractionMethod = &method
	return nil
}

func (r *fakeCitationRepo) RecordScore(ctx context.Context, id string, score int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].AIPriorityScore = &score
	return nil
}

func (r *fakeCitationRepo) MarkSaved(ctx context.Context, id string, contentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.byID[id]
	c.ScanStatus = core.ScanScannedDenied
	saved := core.DecisionSaved
	c.RelevanceDecision = &saved
	c.SavedContentID = &contentID
	return nil
}

func (r *fakeCitationRepo) MarkDenied(ctx context.Context, id string, errorCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.byID[id]
	c.ScanStatus = core.ScanScannedDenied
	denied := core.DecisionDenied
	c.RelevanceDecision = &denied
	c.ErrorCode = &errorCode
	return nil
}

func (r *fakeCitationRepo) ResetForReprocessing(ctx context.Context, id string) error { return nil }

func (r *fakeCitationRepo) IncrementAttempts(ctx context.Context, id string, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.byID[id]
	c.Attempts++
	if c.Attempts >= maxAttempts {
		c.ScanStatus = core.ScanScannedDenied
	} else {
		c.ScanStatus = core.ScanNotScanned
	}
	return nil
}

func (r *fakeCitationRepo) add(c *core.Citation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	r.queue = append(r.queue, c.ID)
}

type fakeContentRepo struct {
	mu     sync.Mutex
	byKey  map[string]string
	nextID int
	last   *core.DiscoveredContent
}

func (r *fakeContentRepo) Upsert(ctx context.Context, content *core.DiscoveredContent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = content
	key := content.PatchID + "|" + content.CanonicalURL
	if id, ok := r.byKey[key]; ok {
		return id, nil
	}
	r.nextID++
	id := fmt.Sprintf("content-%d", r.nextID)
	r.byKey[key] = id
	return id, nil
}

func (r *fakeContentRepo) Get(ctx context.Context, id string) (*core.DiscoveredContent, error) {
	return nil, nil
}

func (r *fakeContentRepo) GetByCanonicalURL(ctx context.Context, patchID, canonicalURL string) (*core.DiscoveredContent, error) {
	return nil, nil
}

type fakeFeedQueueRepo struct {
	mu      sync.Mutex
	entries int
}

func (r *fakeFeedQueueRepo) Enqueue(ctx context.Context, patchID, discoveredContentID, contentHash string, priority int, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries++
	return nil
}

func (r *fakeFeedQueueRepo) ClaimNext(ctx context.Context, stuckTimeout time.Duration) (*core.FeedQueueItem, error) {
	return nil, nil
}

func (r *fakeFeedQueueRepo) MarkDone(ctx context.Context, id string) error { return nil }

func (r *fakeFeedQueueRepo) MarkFailed(ctx context.Context, id string, reason string) error { return nil }

func (r *fakeFeedQueueRepo) Requeue(ctx context.Context, id string, reason string, maxAttempts int) error {
	return nil
}

func newTestProcessor(t *testing.T, server *httptest.Server, db *fakeDB, scorer relevance.Scorer) *Processor {
	t.Helper()

	pt := core.Patch{ID: "patch-1", Handle: "go-lang", Title: "Go (programming language)"}
	patches := patch.NewStaticProvider(pt)

	store := citations.NewStore(db)
	fetcher := fetch.New(fetch.Config{})
	extractor := extract.New()

	return New(store, fetcher, extractor, scorer, db.Content(), db.FeedQueue(), patches, nil, Config{
		Parallelism:        1,
		MaxAttempts:        3,
		EmptyPollLimit:     1,
		MinTextBytes:       10,
		RelevanceThreshold: 60,
	})
}

func TestProcessorSavesRelevantCitation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Go Docs</title></head><body><article><p>` +
			`Go is a statically typed, compiled programming language designed at Google. ` +
			`It has excellent support for concurrency and a simple, readable syntax.</p></article></body></html>`))
	}))
	defer server.Close()

	db := newFakeDB()
	citation := &core.Citation{
		ID:                   "cit-1",
		MonitoringID:         "mon-1",
		CitationURL:          server.URL,
		CitationCanonicalURL: server.URL,
		VerificationStatus:   core.VerificationVerified,
		ScanStatus:           core.ScanNotScanned,
	}
	db.citations.add(citation)

	scorer := &fakeScorer{result: relevance.Result{Score: 90, IsRelevant: true, Reason: "on topic"}}
	proc := newTestProcessor(t, server, db, scorer)

	counts, err := proc.Run(context.Background(), "patch-1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Processed != 1 || counts.Saved != 1 || counts.Denied != 0 || counts.Failed != 0 {
		t.Errorf("expected counts {1,1,0,0}, got %+v", counts)
	}

	if citation.RelevanceDecision == nil || *citation.RelevanceDecision != core.DecisionSaved {
		t.Fatalf("expected citation to be saved, got decision %v", citation.RelevanceDecision)
	}
	if citation.SavedContentID == nil {
		t.Fatal("expected SavedContentID to be set")
	}
	if db.feedQueue.entries != 1 {
		t.Errorf("expected 1 feed-queue entry, got %d", db.feedQueue.entries)
	}

	saved := db.content.last
	if saved == nil {
		t.Fatal("expected content to be upserted")
	}
	if saved.RelevanceScore == nil || *saved.RelevanceScore != 0.9 {
		t.Fatalf("expected relevance score 0.9 from the scorer result, got %v", saved.RelevanceScore)
	}
	if saved.Metadata["scorerReason"] != "on topic" {
		t.Errorf("expected metadata scorerReason %q, got %v", "on topic", saved.Metadata["scorerReason"])
	}
	if saved.Metadata["source"] != "wikipedia-citation" {
		t.Errorf("expected metadata source %q, got %v", "wikipedia-citation", saved.Metadata["source"])
	}
	if saved.Metadata["citationId"] != "cit-1" {
		t.Errorf("expected metadata citationId %q, got %v", "cit-1", saved.Metadata["citationId"])
	}
	if saved.Metadata["extractionMethod"] == "" || saved.Metadata["extractionMethod"] == nil {
		t.Errorf("expected metadata extractionMethod to be set, got %v", saved.Metadata["extractionMethod"])
	}
}

func TestProcessorDeniesLowScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Unrelated</title></head><body><article><p>` +
			`A recipe for chocolate chip cookies involving butter, sugar, and flour.</p></article></body></html>`))
	}))
	defer server.Close()

	db := newFakeDB()
	citation := &core.Citation{
		ID:                   "cit-2",
		MonitoringID:         "mon-1",
		CitationURL:          server.URL,
		CitationCanonicalURL: server.URL,
		VerificationStatus:   core.VerificationVerified,
		ScanStatus:           core.ScanNotScanned,
	}
	db.citations.add(citation)

	scorer := &fakeScorer{result: relevance.Result{Score: 10, IsRelevant: false, Reason: "off topic"}}
	proc := newTestProcessor(t, server, db, scorer)

	counts, err := proc.Run(context.Background(), "patch-1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Processed != 1 || counts.Denied != 1 || counts.Saved != 0 || counts.Failed != 0 {
		t.Errorf("expected counts {1,0,1,0}, got %+v", counts)
	}

	if citation.RelevanceDecision == nil || *citation.RelevanceDecision != core.DecisionDenied {
		t.Fatalf("expected citation to be denied, got decision %v", citation.RelevanceDecision)
	}
	if db.feedQueue.entries != 0 {
		t.Errorf("expected no feed-queue entry for a denied citation, got %d", db.feedQueue.entries)
	}
}

func TestProcessorDeniesOnFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	db := newFakeDB()
	citation := &core.Citation{
		ID:                   "cit-3",
		MonitoringID:         "mon-1",
		CitationURL:          server.URL,
		CitationCanonicalURL: server.URL,
		VerificationStatus:   core.VerificationVerified,
		ScanStatus:           core.ScanNotScanned,
	}
	db.citations.add(citation)

	scorer := &fakeScorer{result: relevance.Result{Score: 90, IsRelevant: true}}
	proc := newTestProcessor(t, server, db, scorer)

	counts, err := proc.Run(context.Background(), "patch-1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Processed != 1 || counts.Denied != 1 {
		t.Errorf("expected a single denied outcome, got %+v", counts)
	}

	if citation.RelevanceDecision == nil || *citation.RelevanceDecision != core.DecisionDenied {
		t.Fatalf("expected citation to be denied on 404, got decision %v", citation.RelevanceDecision)
	}
}
