package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"briefly/internal/core"
)

type postgresCitationRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresCitationRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const citationColumns = `
	id, monitoring_id, citation_url, citation_canonical_url, citation_title,
	citation_context, section, source_number, verification_status, scan_status,
	relevance_decision, ai_priority_score, content_text, extraction_method,
	last_scanned_at, error_code, error_message, saved_content_id, attempts,
	created_at, updated_at
`

// UpsertBatch inserts citations for monitoringID, skipping (not updating)
// any row already present at the same (monitoring_id, citation_canonical_url)
// key — new citations land in pending/not_scanned; conflicting rows keep
// whatever state they already reached (§4.4).
func (r *postgresCitationRepo) UpsertBatch(ctx context.Context, monitoringID string, citations []core.Citation) (int, error) {
	inserted := 0
	for _, c := range citations {
		query := `
			INSERT INTO wikipedia_citation (
				id, monitoring_id, citation_url, citation_canonical_url, citation_title,
				citation_context, section, source_number, verification_status, scan_status,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', 'not_scanned', $9, $9)
			ON CONFLICT (monitoring_id, citation_canonical_url) DO NOTHING
		`
		now := time.Now().UTC()
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		result, err := r.query().ExecContext(ctx, query,
			id, monitoringID, c.CitationURL, c.CitationCanonicalURL, c.CitationTitle,
			c.CitationContext, string(c.Section), c.SourceNumber, now,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert citation %s: %w", c.CitationCanonicalURL, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

func (r *postgresCitationRepo) Get(ctx context.Context, id string) (*core.Citation, error) {
	query := `SELECT ` + citationColumns + ` FROM wikipedia_citation WHERE id = $1`
	return scanCitationRow(r.query().QueryRowContext(ctx, query, id))
}

func (r *postgresCitationRepo) List(ctx context.Context, opts ListOptions) ([]core.Citation, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}
	query := `SELECT ` + citationColumns + ` FROM wikipedia_citation ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.query().QueryContext(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Citation
	for rows.Next() {
		c, err := scanCitationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ClaimNextEligible selects the highest-priority eligible citation under
// patchID and atomically flips it to scanning in a single round trip, so
// two concurrent callers can never claim the same row (§4.4, invariant 5).
// A row stuck in scanning past stuckTimeout is reclaimable.
func (r *postgresCitationRepo) ClaimNextEligible(ctx context.Context, patchID string, stuckTimeout time.Duration) (*core.Citation, error) {
	query := `
		UPDATE wikipedia_citation
		SET scan_status = 'scanning', last_scanned_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT wc.id
			FROM wikipedia_citation wc
			JOIN monitored_wikipedia_page mp ON mp.id = wc.monitoring_id
			WHERE mp.patch_id = $1
			  AND wc.verification_status IN ('pending', 'verified')
			  AND wc.relevance_decision IS NULL
			  AND (
			        wc.scan_status = 'not_scanned'
			     OR (wc.scan_status = 'scanning' AND wc.last_scanned_at < NOW() - $2::interval)
			  )
			ORDER BY wc.ai_priority_score DESC NULLS LAST, wc.created_at ASC
			FOR UPDATE OF wc SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + citationColumns

	interval := fmt.Sprintf("%d milliseconds", stuckTimeout.Milliseconds())
	row := r.query().QueryRowContext(ctx, query, patchID, interval)
	citation, err := scanCitationRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return citation, err
}

func (r *postgresCitationRepo) MarkVerified(ctx context.Context, id string) error {
	_, err := r.query().ExecContext(ctx, `
		UPDATE wikipedia_citation SET verification_status = 'verified', updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

func (r *postgresCitationRepo) MarkVerificationFailed(ctx context.Context, id string, errorCode string) error {
	denied := string(core.DecisionDenied)
	_, err := r.query().ExecContext(ctx, `
		UPDATE wikipedia_citation
		SET verification_status = 'failed', scan_status = 'scanned_denied',
		    relevance_decision = $2, error_code = $3, updated_at = NOW()
		WHERE id = $1
	`, id, denied, errorCode)
	return err
}

func (r *postgresCitationRepo) RecordContent(ctx context.Context, id string, text string, method core.ExtractionMethod) error {
	_, err := r.query().ExecContext(ctx, `
		UPDATE wikipedia_citation SET content_text = $2, extraction_method = $3, updated_at = NOW() WHERE id = $1
	`, id, text, string(method))
	return err
}

func (r *postgresCitationRepo) RecordScore(ctx context.Context, id string, score int) error {
	_, err := r.query().ExecContext(ctx, `
		UPDATE wikipedia_citation SET ai_priority_score = $2, scan_status = 'scanned', updated_at = NOW() WHERE id = $1
	`, id, score)
	return err
}

func (r *postgresCitationRepo) MarkSaved(ctx context.Context, id string, contentID string) error {
	saved := string(core.DecisionSaved)
	_, err := r.query().ExecContext(ctx, `
		UPDATE wikipedia_citation
		SET relevance_decision = $2, saved_content_id = $3, scan_status = 'scanned', updated_at = NOW()
		WHERE id = $1
	`, id, saved, contentID)
	return err
}

func (r *postgresCitationRepo) MarkDenied(ctx context.Context, id string, errorCode string) error {
	denied := string(core.DecisionDenied)
	_, err := r.query().ExecContext(ctx, `
		UPDATE wikipedia_citation
		SET relevance_decision = $2, scan_status = 'scanned_denied', error_code = $3, updated_at = NOW()
		WHERE id = $1
	`, id, denied, errorCode)
	return err
}

// ResetForReprocessing is a full reset: it clears every field the
// processor writes and returns the citation to pending/not_scanned,
// including contentText — a stale extraction from before the reset is not
// a safe basis for re-scoring (§9 open question, resolved in DESIGN.md).
func (r *postgresCitationRepo) ResetForReprocessing(ctx context.Context, id string) error {
	_, err := r.query().ExecContext(ctx, `
		UPDATE wikipedia_citation
		SET verification_status = 'pending',
		    scan_status = 'not_scanned',
		    relevance_decision = NULL,
		    ai_priority_score = NULL,
		    content_text = NULL,
		    extraction_method = NULL,
		    saved_content_id = NULL,
		    error_code = NULL,
		    error_message = NULL,
		    attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// IncrementAttempts bumps the retry counter; if the new count is still
// below maxAttempts the citation returns to not_scanned for another pass,
// otherwise it's denied with PROCESSING_EXCEPTION (§4.6, §7).
func (r *postgresCitationRepo) IncrementAttempts(ctx context.Context, id string, maxAttempts int) error {
	query := `
		UPDATE wikipedia_citation
		SET attempts = attempts + 1,
		    scan_status = CASE WHEN attempts + 1 < $2 THEN 'not_scanned' ELSE 'scanned_denied' END,
		    relevance_decision = CASE WHEN attempts + 1 < $2 THEN relevance_decision ELSE $3 END,
		    error_code = CASE WHEN attempts + 1 < $2 THEN error_code ELSE 'PROCESSING_EXCEPTION' END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.query().ExecContext(ctx, query, id, maxAttempts, string(core.DecisionDenied))
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCitationRow(row *sql.Row) (*core.Citation, error) {
	return scanCitation(row)
}

func scanCitationRows(rows *sql.Rows) (*core.Citation, error) {
	return scanCitation(rows)
}

func scanCitation(s rowScanner) (*core.Citation, error) {
	var c core.Citation
	var section string
	var verificationStatus string
	var scanStatus string
	var relevanceDecision sql.NullString
	var extractionMethod sql.NullString

	err := s.Scan(
		&c.ID, &c.MonitoringID, &c.CitationURL, &c.CitationCanonicalURL, &c.CitationTitle,
		&c.CitationContext, &section, &c.SourceNumber, &verificationStatus, &scanStatus,
		&relevanceDecision, &c.AIPriorityScore, &c.ContentText, &extractionMethod,
		&c.LastScannedAt, &c.ErrorCode, &c.ErrorMessage, &c.SavedContentID, &c.Attempts,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Section = core.CitationSection(section)
	c.VerificationStatus = core.VerificationStatus(verificationStatus)
	c.ScanStatus = core.ScanStatus(scanStatus)
	if relevanceDecision.Valid {
		d := core.RelevanceDecision(relevanceDecision.String)
		c.RelevanceDecision = &d
	}
	if extractionMethod.Valid {
		m := core.ExtractionMethod(extractionMethod.String)
		c.ExtractionMethod = &m
	}

	return &c, nil
}
