// Package discovery implements C11, the run coordinator: it owns a
// DiscoveryRun's lifecycle, spawning the C7 processor pool and the C9
// feed-queue worker pool under a shared deadline and cancellation signal
// (spec.md §4.10).
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"briefly/internal/core"
	"briefly/internal/feedqueue"
	"briefly/internal/hero"
	"briefly/internal/logger"
	"briefly/internal/patch"
	"briefly/internal/persistence"
	"briefly/internal/pipeline"
)

const defaultRunDeadline = 30 * time.Minute

// Config holds C11's tunables plus the sub-pool configs it spawns.
type Config struct {
	RunDeadline time.Duration
	Processor   pipeline.Config
	Feed        feedqueue.Config
}

// Coordinator implements startRun/status per spec.md §4.10.
type Coordinator struct {
	db      persistence.Database
	patches patch.Provider
	proc    *pipeline.Processor
	feed    *feedqueue.Worker
	hero    *hero.Dispatcher
	cfg     Config

	mu      sync.Mutex
	active  map[string]string // patchID -> runID, enforces one active run per patch
	cancels map[string]context.CancelFunc
}

// New constructs a Coordinator. The processor and feed worker are built
// by the caller (main wiring) and passed in fully configured.
func New(db persistence.Database, patches patch.Provider, proc *pipeline.Processor, feed *feedqueue.Worker, heroDispatcher *hero.Dispatcher, cfg Config) *Coordinator {
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = defaultRunDeadline
	}
	return &Coordinator{
		db:      db,
		patches: patches,
		proc:    proc,
		feed:    feed,
		hero:    heroDispatcher,
		cfg:     cfg,
		active:  make(map[string]string),
		cancels: make(map[string]context.CancelFunc),
	}
}

// StartRun implements §4.10's startRun: if patchID already has an active
// run, its runID is returned unchanged; otherwise a new DiscoveryRun is
// created and the processor/feed pools are spawned in the background.
func (c *Coordinator) StartRun(ctx context.Context, patchID string) (string, error) {
	c.mu.Lock()
	if existingRunID, ok := c.active[patchID]; ok {
		c.mu.Unlock()
		return existingRunID, nil
	}

	if existing, err := c.db.Runs().GetActiveForPatch(ctx, patchID); err == nil && existing != nil {
		c.active[patchID] = existing.ID
		c.mu.Unlock()
		return existing.ID, nil
	}
	c.mu.Unlock()

	runID := uuid.NewString()
	now := time.Now()
	run := &core.DiscoveryRun{
		ID:         runID,
		PatchID:    patchID,
		Status:     core.RunRunning,
		StartedAt:  now,
		DeadlineAt: now.Add(c.cfg.RunDeadline),
	}
	if err := c.db.Runs().Create(ctx, run); err != nil {
		return "", fmt.Errorf("create discovery run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), c.cfg.RunDeadline)

	c.mu.Lock()
	c.active[patchID] = runID
	c.cancels[runID] = cancel
	c.mu.Unlock()

	go c.execute(runCtx, cancel, patchID, runID)

	return runID, nil
}

// execute drives a single run to completion: the processor and feed
// pools run concurrently until both exhaust their work or the run's
// deadline fires; the run is then marked completed or failed.
func (c *Coordinator) execute(ctx context.Context, cancel context.CancelFunc, patchID, runID string) {
	defer cancel()
	defer func() {
		c.mu.Lock()
		delete(c.active, patchID)
		delete(c.cancels, runID)
		c.mu.Unlock()
	}()

	var counts pipeline.Counts
	var procErr, feedErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		counts, procErr = c.proc.Run(ctx, patchID)
	}()
	go func() {
		defer wg.Done()
		feedErr = c.feed.Run(ctx)
	}()
	wg.Wait()

	if err := c.db.Runs().UpdateMetrics(context.Background(), runID, counts.Processed, counts.Saved, counts.Denied, counts.Failed); err != nil {
		logger.Get().Error("failed to persist run metrics", "run_id", runID, "error", err)
	}

	status := core.RunCompleted
	var errMsg *string
	if ctx.Err() == context.DeadlineExceeded {
		logger.Get().Warn("discovery run hit its deadline", "run_id", runID, "patch_id", patchID)
	}
	if procErr != nil || feedErr != nil {
		status = core.RunFailed
		msg := combineErrors(procErr, feedErr)
		errMsg = &msg
		logger.Get().Error("discovery run failed", "run_id", runID, "patch_id", patchID, "error", msg)
	}

	if err := c.db.Runs().Complete(context.Background(), runID, status, errMsg); err != nil {
		logger.Get().Error("failed to persist run completion", "run_id", runID, "error", err)
	}
}

// Close stops the hero dispatcher, if any. Call once at process
// shutdown, not per run — the dispatcher is a process-lifetime pool
// shared across every run this Coordinator drives (§9).
func (c *Coordinator) Close() {
	if c.hero != nil {
		c.hero.Close()
	}
}

// Status returns the current state of a run (§6: GET /runs/{runId}).
func (c *Coordinator) Status(ctx context.Context, runID string) (*core.DiscoveryRun, error) {
	return c.db.Runs().Get(ctx, runID)
}

// Cancel implements cooperative cancellation for a live run, if any.
func (c *Coordinator) Cancel(runID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.cancels[runID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func combineErrors(procErr, feedErr error) string {
	switch {
	case procErr != nil && feedErr != nil:
		return fmt.Sprintf("processor: %v; feed: %v", procErr, feedErr)
	case procErr != nil:
		return fmt.Sprintf("processor: %v", procErr)
	case feedErr != nil:
		return fmt.Sprintf("feed: %v", feedErr)
	default:
		return ""
	}
}
