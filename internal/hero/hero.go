// Package hero implements C10, the hero-image enrichment dispatcher:
// fire-and-forget submission of approved content to an external
// enrichment service, via a bounded pool separate from C7/C9's (§4.9, §9).
package hero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"briefly/internal/logger"
)

const defaultQueueCap = 64

// EnrichmentService is the external collaborator that renders hero
// images; C10 never awaits or surfaces its result (§4.9).
type EnrichmentService interface {
	Enrich(ctx context.Context, contentID string) error
}

// HTTPEnrichmentService calls a remote enrichment endpoint over HTTP.
type HTTPEnrichmentService struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPEnrichmentService(endpoint, apiKey string) *HTTPEnrichmentService {
	return &HTTPEnrichmentService{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPEnrichmentService) Enrich(ctx context.Context, contentID string) error {
	body, err := json.Marshal(map[string]string{"contentId": contentID})
	if err != nil {
		return fmt.Errorf("failed to marshal enrich request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build enrich request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("enrich request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("enrich request failed with status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher runs a bounded goroutine pool that drains a buffered queue
// of content IDs into EnrichmentService.Enrich. A full queue drops the
// submission and logs rather than blocking the caller (§9).
type Dispatcher struct {
	svc   EnrichmentService
	queue chan string
	done  chan struct{}
}

// NewDispatcher starts workers concurrent goroutines draining a queue of
// the given capacity (defaultQueueCap if cap <= 0).
func NewDispatcher(ctx context.Context, svc EnrichmentService, workers int, capacity int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if capacity <= 0 {
		capacity = defaultQueueCap
	}

	d := &Dispatcher{
		svc:   svc,
		queue: make(chan string, capacity),
		done:  make(chan struct{}),
	}

	go d.run(ctx, workers)
	return d
}

func (d *Dispatcher) run(ctx context.Context, workers int) {
	defer close(d.done)

	worker := func() {
		for {
			select {
			case <-ctx.Done():
				return
			case contentID, more := <-d.queue:
				if !more {
					return
				}
				if err := d.svc.Enrich(ctx, contentID); err != nil {
					logger.Get().Warn("hero enrichment failed", "content_id", contentID, "error", err)
				}
			}
		}
	}

	finished := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			worker()
			finished <- struct{}{}
		}()
	}
	for i := 0; i < workers; i++ {
		<-finished
	}
}

// Dispatch submits contentID for enrichment, non-blocking. If the queue
// is full the submission is dropped and logged (§9: never block C7).
func (d *Dispatcher) Dispatch(contentID string) {
	select {
	case d.queue <- contentID:
	default:
		logger.Get().Warn("hero enrichment queue full, dropping submission", "content_id", contentID)
	}
}

// Close closes the queue and waits until the workers have enriched every
// submission already queued, or until the context given to NewDispatcher
// is done. A Dispatch after Close panics (send on a closed channel).
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}
