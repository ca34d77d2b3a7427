// Package feedqueue implements C9: the bounded worker pool that drains
// the agent-feed queue, packing saved content into an AgentMemory and
// handing it to the external AgentService (spec.md §4.8).
package feedqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"briefly/internal/agent"
	"briefly/internal/core"
	"briefly/internal/logger"
	"briefly/internal/persistence"
)

const (
	defaultStuckTimeout = 10 * time.Minute
	defaultMaxAttempts  = 5
	topFactCount        = 3
)

var errTerminal = errors.New("feed item reached a terminal state")

// Config holds C9's tunables (§4.8).
type Config struct {
	Parallelism    int
	MaxAttempts    int
	StuckTimeout   time.Duration
	EmptyPollLimit int
	AgentID        string
}

// Worker implements the feed-queue worker loop against its collaborators.
type Worker struct {
	queue   persistence.FeedQueueRepository
	content persistence.ContentRepository
	memory  persistence.AgentMemoryRepository
	agent   agent.Service
	cfg     Config
}

// New constructs a Worker.
func New(queue persistence.FeedQueueRepository, content persistence.ContentRepository, memory persistence.AgentMemoryRepository, agentSvc agent.Service, cfg Config) *Worker {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = defaultStuckTimeout
	}
	if cfg.EmptyPollLimit <= 0 {
		cfg.EmptyPollLimit = 3
	}
	if cfg.AgentID == "" {
		cfg.AgentID = "discovery-engine"
	}

	return &Worker{
		queue:   queue,
		content: content,
		memory:  memory,
		agent:   agentSvc,
		cfg:     cfg,
	}
}

// Run spawns Parallelism goroutines draining the feed queue until each
// sees EmptyPollLimit consecutive empty claims or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Parallelism; i++ {
		group.Go(func() error {
			return w.loop(groupCtx)
		})
	}
	return group.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	emptyStreak := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		processed, err := w.processOne(ctx)
		if err != nil {
			return err
		}
		if !processed {
			emptyStreak++
			if emptyStreak >= w.cfg.EmptyPollLimit {
				return nil
			}
			continue
		}
		emptyStreak = 0
	}
}

func (w *Worker) processOne(ctx context.Context) (bool, error) {
	item, err := w.queue.ClaimNext(ctx, w.cfg.StuckTimeout)
	if err != nil {
		return false, fmt.Errorf("claim next feed item: %w", err)
	}
	if item == nil {
		return false, nil
	}

	if err := w.process(ctx, item); err != nil && !errors.Is(err, errTerminal) {
		logger.Get().Warn("feed item processing failed", "item_id", item.ID, "error", err)
		if reqErr := w.queue.Requeue(ctx, item.ID, err.Error(), w.cfg.MaxAttempts); reqErr != nil {
			return true, fmt.Errorf("requeue feed item: %w", reqErr)
		}
	}

	return true, nil
}

// process implements the body of §4.8's worker loop, steps 2-5.
func (w *Worker) process(ctx context.Context, item *core.FeedQueueItem) error {
	content, err := w.content.Get(ctx, item.DiscoveredContentID)
	if err != nil || content == nil {
		if markErr := w.queue.MarkFailed(ctx, item.ID, "CONTENT_MISSING"); markErr != nil {
			return fmt.Errorf("mark failed: %w", markErr)
		}
		return errTerminal
	}

	exists, err := w.memory.Exists(ctx, item.PatchID, item.DiscoveredContentID, item.ContentHash)
	if err != nil {
		return fmt.Errorf("check agent memory existence: %w", err)
	}
	if exists {
		if markErr := w.queue.MarkDone(ctx, item.ID); markErr != nil {
			return fmt.Errorf("mark done: %w", markErr)
		}
		return errTerminal
	}

	if w.agent == nil {
		if markErr := w.queue.MarkFailed(ctx, item.ID, "AGENT_SERVICE_UNAVAILABLE"); markErr != nil {
			return fmt.Errorf("mark failed: %w", markErr)
		}
		return errTerminal
	}

	payload := packMemory(content)

	memoryReq := agent.CreateMemoryRequest{
		AgentID:   w.cfg.AgentID,
		PatchID:   item.PatchID,
		SourceURL: content.CanonicalURL,
		Title:     content.Title,
		Content:   payload,
		Tags:      []string{content.Category},
	}
	memoryID, err := w.agent.CreateMemory(ctx, memoryReq)
	if err != nil {
		return fmt.Errorf("create agent memory: %w", err)
	}

	discoveredContentID := item.DiscoveredContentID
	memory := &core.AgentMemory{
		AgentID:             w.cfg.AgentID,
		PatchID:             item.PatchID,
		DiscoveredContentID: &discoveredContentID,
		ContentHash:         item.ContentHash,
		SourceType:          "discovery",
		SourceURL:           &content.CanonicalURL,
		SourceTitle:         &content.Title,
		Content:             payload,
		Tags:                []string{content.Category},
	}
	if memoryID != "" {
		memory.ID = memoryID
	}
	if err := w.memory.Create(ctx, memory); err != nil {
		return fmt.Errorf("persist agent memory: %w", err)
	}

	if err := w.queue.MarkDone(ctx, item.ID); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// packMemory implements §4.8 step 3: title + summary + top facts + URL.
func packMemory(content *core.DiscoveredContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", content.Title)
	fmt.Fprintf(&b, "URL: %s\n", content.CanonicalURL)
	fmt.Fprintf(&b, "Summary: %s\n", content.Summary)

	facts := topFacts(content.TextContent, topFactCount)
	if len(facts) > 0 {
		b.WriteString("Key facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

// topFacts takes the first n non-trivial sentences of text as a crude
// stand-in for fact extraction; no summarization collaborator is named
// in spec.md §6 for this step.
func topFacts(text string, n int) []string {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n'
	})
	var facts []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) < 20 {
			continue
		}
		facts = append(facts, s)
		if len(facts) >= n {
			break
		}
	}
	return facts
}
