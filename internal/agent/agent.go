// Package agent implements the AgentService collaborator boundary
// (spec.md §6): creating per-patch agent memories is owned by an
// external service reached over HTTP.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CreateMemoryRequest is the payload for AgentService.createMemory
// (spec.md §4.8/§6).
type CreateMemoryRequest struct {
	AgentID   string   `json:"agentId"`
	PatchID   string   `json:"patchId"`
	SourceURL string   `json:"sourceUrl"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
}

// Service is the external collaborator that ingests content into a
// per-patch agent's memory.
type Service interface {
	CreateMemory(ctx context.Context, req CreateMemoryRequest) (memoryID string, err error)
}

// HTTPService calls a remote AgentService over HTTP, idempotent per the
// caller's (patchId, discoveredContentId, contentHash) uniqueness
// guarantee (§4.8 step 4/5) — this client applies no idempotency of its
// own, mirroring the teacher's thin JSON-API provider clients.
type HTTPService struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPService(endpoint, apiKey string) *HTTPService {
	return &HTTPService{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPService) CreateMemory(ctx context.Context, req CreateMemoryRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal create-memory request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build create-memory request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create-memory request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("create-memory request failed with status %d", resp.StatusCode)
	}

	var out struct {
		MemoryID string `json:"memoryId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse create-memory response: %w", err)
	}

	return out.MemoryID, nil
}
