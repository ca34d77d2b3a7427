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

type postgresAgentMemoryRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresAgentMemoryRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresAgentMemoryRepo) Exists(ctx context.Context, patchID, discoveredContentID, contentHash string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM agent_memory
			WHERE patch_id = $1 AND discovered_content_id = $2 AND content_hash = $3
		)
	`
	err := r.query().QueryRowContext(ctx, query, patchID, discoveredContentID, contentHash).Scan(&exists)
	return exists, err
}

// Create relies on the unique (patch_id, discovered_content_id,
// content_hash) constraint for at-most-once correctness; a duplicate
// insert is dropped by ON CONFLICT DO NOTHING and Create returns nil
// (the memory already exists).
func (r *postgresAgentMemoryRepo) Create(ctx context.Context, memory *core.AgentMemory) error {
	tagsJSON, err := json.Marshal(memory.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	id := memory.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO agent_memory (
			id, agent_id, patch_id, discovered_content_id, content_hash,
			source_type, source_url, source_title, content, tags, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (patch_id, discovered_content_id, content_hash) DO NOTHING
	`
	_, err = r.query().ExecContext(ctx, query,
		id, memory.AgentID, memory.PatchID, memory.DiscoveredContentID, memory.ContentHash,
		memory.SourceType, memory.SourceURL, memory.SourceTitle, memory.Content, tagsJSON, time.Now().UTC(),
	)
	return err
}
