package citations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"briefly/internal/canon"
	"briefly/internal/core"
	"briefly/internal/persistence"
)

const defaultStuckTimeout = 10 * time.Minute

// Store implements C5: it turns C4's candidates into persisted citations
// and drives the state machine described in §4.4.
type Store struct {
	db           persistence.Database
	stuckTimeout time.Duration
}

// NewStore constructs a Store backed by db, using the default stuck
// timeout (10 min) unless overridden with WithStuckTimeout.
func NewStore(db persistence.Database) *Store {
	return &Store{db: db, stuckTimeout: defaultStuckTimeout}
}

// WithStuckTimeout overrides the duration after which a scanning row is
// reclaimable by another worker.
func (s *Store) WithStuckTimeout(d time.Duration) *Store {
	s.stuckTimeout = d
	return s
}

// ExtractAndStore parses pageHTML via C4, upserts the resulting citations
// against monitoringID, and marks the monitoring page extracted (§4.4).
func (s *Store) ExtractAndStore(ctx context.Context, monitoringID string, pageHTML string, pageURL string) (citationsFound int, citationsStored int, err error) {
	candidates, err := ExtractCandidates(pageHTML)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to extract citations from %s: %w", pageURL, err)
	}

	citationsFound = len(candidates)

	rows := make([]core.Citation, 0, len(candidates))
	for _, c := range candidates {
		result := canon.Canonicalize(c.URL)
		if result.Classification != core.ClassExternal {
			continue
		}

		title := c.Title
		context := c.Context
		row := core.Citation{
			ID:                   uuid.NewString(),
			MonitoringID:         monitoringID,
			CitationURL:          c.URL,
			CitationCanonicalURL: result.CanonicalURL,
			Section:              c.Section,
			SourceNumber:         c.SourceNumber,
		}
		if title != "" {
			row.CitationTitle = &title
		}
		if context != "" {
			row.CitationContext = &context
		}
		rows = append(rows, row)
	}

	citationsStored, err = s.db.Citations().UpsertBatch(ctx, monitoringID, rows)
	if err != nil {
		return citationsFound, 0, fmt.Errorf("failed to store citations for %s: %w", pageURL, err)
	}

	if err := s.db.MonitoredPages().MarkExtracted(ctx, monitoringID, len(rows), time.Now().UTC()); err != nil {
		return citationsFound, citationsStored, fmt.Errorf("failed to mark page extracted: %w", err)
	}

	return citationsFound, citationsStored, nil
}

// GetNextEligible selects and atomically claims one citation for patchID,
// or returns nil if none are eligible (§4.4).
func (s *Store) GetNextEligible(ctx context.Context, patchID string) (*core.Citation, error) {
	return s.db.Citations().ClaimNextEligible(ctx, patchID, s.stuckTimeout)
}

func (s *Store) MarkVerified(ctx context.Context, id string) error {
	return s.db.Citations().MarkVerified(ctx, id)
}

func (s *Store) MarkVerificationFailed(ctx context.Context, id string, errorCode string) error {
	return s.db.Citations().MarkVerificationFailed(ctx, id, errorCode)
}

func (s *Store) RecordContent(ctx context.Context, id string, text string, method core.ExtractionMethod) error {
	return s.db.Citations().RecordContent(ctx, id, text, method)
}

func (s *Store) RecordScore(ctx context.Context, id string, score int) error {
	return s.db.Citations().RecordScore(ctx, id, score)
}

func (s *Store) MarkSaved(ctx context.Context, id string, contentID string) error {
	return s.db.Citations().MarkSaved(ctx, id, contentID)
}

func (s *Store) MarkDenied(ctx context.Context, id string, errorCode string) error {
	return s.db.Citations().MarkDenied(ctx, id, errorCode)
}

// Reset exists for the operator-level backfill collaborator; C7 never
// calls it (§4.4).
func (s *Store) Reset(ctx context.Context, id string) error {
	return s.db.Citations().ResetForReprocessing(ctx, id)
}

// HandleProcessingException implements the failure semantics in §4.6: an
// unhandled error inside processOne resets the citation for retry up to
// MAX_ATTEMPTS, then denies it.
func (s *Store) HandleProcessingException(ctx context.Context, id string, maxAttempts int) error {
	return s.db.Citations().IncrementAttempts(ctx, id, maxAttempts)
}
