package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"briefly/internal/core"
)

type postgresMonitoredPageRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresMonitoredPageRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresMonitoredPageRepo) Create(ctx context.Context, page *core.MonitoredWikipediaPage) error {
	query := `
		INSERT INTO monitored_wikipedia_page (
			id, patch_id, wikipedia_title, wikipedia_url,
			citations_extracted, last_extracted_at, citation_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now().UTC()
	_, err := r.query().ExecContext(ctx, query,
		page.ID, page.PatchID, page.WikipediaTitle, page.WikipediaURL,
		page.CitationsExtracted, page.LastExtractedAt, page.CitationCount, now, now,
	)
	return err
}

func (r *postgresMonitoredPageRepo) Get(ctx context.Context, id string) (*core.MonitoredWikipediaPage, error) {
	query := `
		SELECT id, patch_id, wikipedia_title, wikipedia_url,
		       citations_extracted, last_extracted_at, citation_count, created_at, updated_at
		FROM monitored_wikipedia_page WHERE id = $1
	`
	return r.scanOne(r.query().QueryRowContext(ctx, query, id))
}

func (r *postgresMonitoredPageRepo) GetByPatchAndTitle(ctx context.Context, patchID, wikipediaTitle string) (*core.MonitoredWikipediaPage, error) {
	query := `
		SELECT id, patch_id, wikipedia_title, wikipedia_url,
		       citations_extracted, last_extracted_at, citation_count, created_at, updated_at
		FROM monitored_wikipedia_page WHERE patch_id = $1 AND wikipedia_title = $2
	`
	return r.scanOne(r.query().QueryRowContext(ctx, query, patchID, wikipediaTitle))
}

func (r *postgresMonitoredPageRepo) ListByPatch(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	query := `
		SELECT id, patch_id, wikipedia_title, wikipedia_url,
		       citations_extracted, last_extracted_at, citation_count, created_at, updated_at
		FROM monitored_wikipedia_page WHERE patch_id = $1 ORDER BY created_at ASC
	`
	return r.scanMany(ctx, query, patchID)
}

func (r *postgresMonitoredPageRepo) ListPendingExtraction(ctx context.Context, patchID string) ([]core.MonitoredWikipediaPage, error) {
	query := `
		SELECT id, patch_id, wikipedia_title, wikipedia_url,
		       citations_extracted, last_extracted_at, citation_count, created_at, updated_at
		FROM monitored_wikipedia_page WHERE patch_id = $1 AND citations_extracted = FALSE ORDER BY created_at ASC
	`
	return r.scanMany(ctx, query, patchID)
}

func (r *postgresMonitoredPageRepo) MarkExtracted(ctx context.Context, id string, citationCount int, extractedAt time.Time) error {
	query := `
		UPDATE monitored_wikipedia_page
		SET citations_extracted = TRUE, last_extracted_at = $2, citation_count = $3, updated_at = $2
		WHERE id = $1
	`
	_, err := r.query().ExecContext(ctx, query, id, extractedAt, citationCount)
	return err
}

func (r *postgresMonitoredPageRepo) scanOne(row *sql.Row) (*core.MonitoredWikipediaPage, error) {
	var p core.MonitoredWikipediaPage
	err := row.Scan(
		&p.ID, &p.PatchID, &p.WikipediaTitle, &p.WikipediaURL,
		&p.CitationsExtracted, &p.LastExtractedAt, &p.CitationCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("monitored wikipedia page not found")
		}
		return nil, err
	}
	return &p, nil
}

func (r *postgresMonitoredPageRepo) scanMany(ctx context.Context, query string, args ...interface{}) ([]core.MonitoredWikipediaPage, error) {
	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []core.MonitoredWikipediaPage
	for rows.Next() {
		var p core.MonitoredWikipediaPage
		if err := rows.Scan(
			&p.ID, &p.PatchID, &p.WikipediaTitle, &p.WikipediaURL,
			&p.CitationsExtracted, &p.LastExtractedAt, &p.CitationCount, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
