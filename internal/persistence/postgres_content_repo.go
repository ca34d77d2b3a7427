package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"briefly/internal/core"
)

type postgresContentRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresContentRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Upsert implements C8's dedup-aware persistence: insert under the unique
// (patch_id, canonical_url) constraint, or on conflict update the mutable
// fields while keeping the existing id. The single INSERT ... ON CONFLICT
// statement makes this atomic against concurrent upserts of the same key.
func (r *postgresContentRepo) Upsert(ctx context.Context, content *core.DiscoveredContent) (string, error) {
	metadataJSON, err := json.Marshal(content.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	id := content.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO discovered_content (
			id, patch_id, source_url, canonical_url, domain, title, summary,
			text_content, category, content_hash, relevance_score, quality_score,
			metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (patch_id, canonical_url) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			text_content = EXCLUDED.text_content,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	row := r.query().QueryRowContext(ctx, query,
		id, content.PatchID, content.SourceURL, content.CanonicalURL, content.Domain,
		content.Title, content.Summary, content.TextContent, content.Category, content.ContentHash,
		content.RelevanceScore, content.QualityScore, metadataJSON, now,
	)

	var returnedID string
	if err := row.Scan(&returnedID); err != nil {
		return "", fmt.Errorf("failed to upsert discovered content: %w", err)
	}
	return returnedID, nil
}

func (r *postgresContentRepo) Get(ctx context.Context, id string) (*core.DiscoveredContent, error) {
	query := `
		SELECT id, patch_id, source_url, canonical_url, domain, title, summary,
		       text_content, category, content_hash, relevance_score, quality_score,
		       metadata, created_at, updated_at
		FROM discovered_content WHERE id = $1
	`
	return scanContent(r.query().QueryRowContext(ctx, query, id))
}

func (r *postgresContentRepo) GetByCanonicalURL(ctx context.Context, patchID, canonicalURL string) (*core.DiscoveredContent, error) {
	query := `
		SELECT id, patch_id, source_url, canonical_url, domain, title, summary,
		       text_content, category, content_hash, relevance_score, quality_score,
		       metadata, created_at, updated_at
		FROM discovered_content WHERE patch_id = $1 AND canonical_url = $2
	`
	return scanContent(r.query().QueryRowContext(ctx, query, patchID, canonicalURL))
}

func scanContent(row *sql.Row) (*core.DiscoveredContent, error) {
	var c core.DiscoveredContent
	var metadataJSON []byte

	err := row.Scan(
		&c.ID, &c.PatchID, &c.SourceURL, &c.CanonicalURL, &c.Domain, &c.Title, &c.Summary,
		&c.TextContent, &c.Category, &c.ContentHash, &c.RelevanceScore, &c.QualityScore,
		&metadataJSON, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("discovered content not found")
		}
		return nil, err
	}

	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &c, nil
}
