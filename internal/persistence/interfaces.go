// Package persistence provides database abstraction interfaces for the
// discovery engine's storage layer: monitored pages, citations,
// discovered content, the agent-feed queue, agent memory, and runs.
package persistence

import (
	"context"
	"time"

	"briefly/internal/core"
)

// ListOptions is shared pagination for List operations across repositories.
type ListOptions struct {
	Limit  int
	Offset int
}

// MonitoredWikipediaPageRepository persists pages flagged for citation
// extraction under a patch.
type MonitoredWikipediaPageRepository interface {
	Create(ctx context.Context, page *core.MonitoredWikipediaPage) error
	Get(ctx context.Context, id string) (*core.MonitoredWikipediaPage, error)
	GetByPatchAndTitle(ctx context.Context, patchID, wikipediaTitle string) (*core.MonitoredWikipediaPage, error)
	ListByPatch(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error)
	ListPendingExtraction(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error)
	MarkExtracted(ctx context.Context, id string, citationCount int, extractedAt time.Time) error
}

// CitationRepository persists extracted citations and drives them through
// the verification → scanning → scoring state machine (C5).
type CitationRepository interface {
	// UpsertBatch inserts new citations for a monitoring page, preserving
	// the existing state of any citation already present at the same
	// (monitoringID, citationCanonicalURL) key. Returns the count of rows
	// newly inserted.
	UpsertBatch(ctx context.Context, monitoringID string, citations []core.Citation) (inserted int, err error)

	Get(ctx context.Context, id string) (*core.Citation, error)
	List(ctx context.Context, opts ListOptions) ([]core.Citation, error)

	// ClaimNextEligible atomically selects one citation eligible for
	// processing under patchID and flips its scan_status to "scanning",
	// so concurrent callers never return the same row (§4.4, invariant 5).
	ClaimNextEligible(ctx context.Context, patchID string, stuckTimeout time.Duration) (*core.Citation, error)

	MarkVerified(ctx context.Context, id string) error
	MarkVerificationFailed(ctx context.Context, id string, errorCode string) error
	RecordContent(ctx context.Context, id string, text string, method core.ExtractionMethod) error
	RecordScore(ctx context.Context, id string, score int) error
	MarkSaved(ctx context.Context, id string, contentID string) error
	MarkDenied(ctx context.Context, id string, errorCode string) error

	// ResetForReprocessing clears every field set by the processor and
	// returns the citation to pending/not_scanned. Invoked by the operator
	// backfill collaborator only; never by C7 (§4.4, §9 open question).
	ResetForReprocessing(ctx context.Context, id string) error

	// IncrementAttempts bumps the retry counter and, if attempts remain
	// below maxAttempts, returns the citation to not_scanned; otherwise
	// denies it with PROCESSING_EXCEPTION (§4.6 failure semantics).
	IncrementAttempts(ctx context.Context, id string, maxAttempts int) error
}

// ContentRepository persists DiscoveredContent with dedup on
// (patchID, canonicalURL) (C8).
type ContentRepository interface {
	// Upsert inserts a new row or, on conflict with the unique
	// (patch_id, canonical_url) constraint, updates title/summary/text/
	// metadata while preserving the existing id. Must be atomic against
	// concurrent upserts of the same key (§4.7).
	Upsert(ctx context.Context, content *core.DiscoveredContent) (id string, err error)
	Get(ctx context.Context, id string) (*core.DiscoveredContent, error)
	GetByCanonicalURL(ctx context.Context, patchID, canonicalURL string) (*core.DiscoveredContent, error)
}

// FeedQueueRepository persists the agent-feed work queue (C9).
type FeedQueueRepository interface {
	// Enqueue upserts by (patchID, discoveredContentID, contentHash):
	// no-op if DONE/PENDING/PROCESSING, reset to PENDING if FAILED with
	// attempts remaining (§4.8).
	Enqueue(ctx context.Context, patchID, discoveredContentID, contentHash string, priority int, maxAttempts int) error

	// ClaimNext atomically claims one PENDING row, or one PROCESSING row
	// older than stuckTimeout, ordered by priority DESC, enqueued_at ASC.
	ClaimNext(ctx context.Context, stuckTimeout time.Duration) (*core.FeedQueueItem, error)

	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// Requeue returns a PROCESSING item to PENDING after a transient error,
	// if attempts remain below maxAttempts; otherwise marks it FAILED.
	Requeue(ctx context.Context, id string, reason string, maxAttempts int) error
}

// AgentMemoryRepository persists the at-most-once output of the feed
// worker (C9).
type AgentMemoryRepository interface {
	// Exists reports whether a memory already exists at the given
	// uniqueness key, used as the optimization in §4.8 step 4 (the
	// database constraint is the correctness guarantee, not this check).
	Exists(ctx context.Context, patchID, discoveredContentID, contentHash string) (bool, error)
	Create(ctx context.Context, memory *core.AgentMemory) error
}

// DiscoveryRunRepository persists run lifecycle and live metrics (C11).
type DiscoveryRunRepository interface {
	Create(ctx context.Context, run *core.DiscoveryRun) error
	Get(ctx context.Context, id string) (*core.DiscoveryRun, error)
	// GetActiveForPatch returns the currently running run for a patch, if
	// any — backs "exactly one run per patch may be active" (§4.10).
	GetActiveForPatch(ctx context.Context, patchID string) (*core.DiscoveryRun, error)
	UpdateMetrics(ctx context.Context, id string, processed, saved, denied, failed int) error
	Complete(ctx context.Context, id string, status core.DiscoveryRunStatus, errorMessage *string) error
}

// Database aggregates every repository behind a single handle with an
// explicit lifecycle, replacing the source's module-level connection (§9).
type Database interface {
	MonitoredPages() MonitoredWikipediaPageRepository
	Citations() CitationRepository
	Content() ContentRepository
	FeedQueue() FeedQueueRepository
	AgentMemory() AgentMemoryRepository
	Runs() DiscoveryRunRepository

	Close() error
	Ping(ctx context.Context) error
}
