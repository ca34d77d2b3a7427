package cmd

import (
	"context"
	"fmt"
	"time"

	"briefly/internal/agent"
	"briefly/internal/citations"
	"briefly/internal/config"
	"briefly/internal/core"
	"briefly/internal/discovery"
	"briefly/internal/extract"
	"briefly/internal/feedqueue"
	"briefly/internal/fetch"
	"briefly/internal/hero"
	"briefly/internal/llm"
	"briefly/internal/patch"
	"briefly/internal/persistence"
	"briefly/internal/pipeline"
	"briefly/internal/relevance"
	"briefly/internal/wikipedia"
)

// app bundles every collaborator the discovery engine's commands need,
// built once per invocation from config.Config (mirrors the teacher's
// per-command ad-hoc wiring in cmd/handlers, collected in one place
// since this binary has a single storage-backed pipeline rather than a
// digest app's many independent subcommands).
type app struct {
	cfg     *config.Config
	db      *persistence.PostgresDB
	patches patch.Provider
	monitor *wikipedia.Monitor
	fetcher *fetch.Fetcher
	store   *citations.Store
	coord   *discovery.Coordinator
}

// patchFlags seeds the static patch registry used until a real external
// patch/user CRUD service is wired in (spec.md §6 Non-goals).
type patchFlags struct {
	id      string
	handle  string
	title   string
	aliases []string
	tags    []string
}

func buildApp(pf patchFlags) (*app, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := persistence.NewPostgresDB(cfg.Database.ConnectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	cleanup := func() { _ = db.Close() }

	patches := patch.NewStaticProvider()
	if pf.id != "" || pf.handle != "" {
		patches.Put(core.Patch{ID: pf.id, Handle: pf.handle, Title: pf.title, Aliases: pf.aliases, Tags: pf.tags})
	}

	monitor := wikipedia.NewMonitor(db.MonitoredPages())
	fetcher := fetch.New(fetch.Config{
		Timeout:        time.Duration(cfg.Fetcher.TimeoutMs) * time.Millisecond,
		MaxBodyBytes:   cfg.Fetcher.MaxBodyBytes,
		UserAgent:      cfg.Fetcher.UserAgent,
		MinHostSpacing: time.Duration(cfg.Fetcher.MinHostSpacing) * time.Millisecond,
		CheckRobots:    cfg.Fetcher.CheckRobots,
	})
	extractor := extract.New()
	store := citations.NewStore(db).WithStuckTimeout(cfg.Processor.StuckTimeout())

	scorer, err := buildScorer(cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("build relevance scorer: %w", err)
	}

	var agentSvc agent.Service
	if cfg.Agent.Endpoint != "" {
		agentSvc = agent.NewHTTPService(cfg.Agent.Endpoint, cfg.Agent.APIKey)
	}

	var heroDispatcher *hero.Dispatcher
	if cfg.Hero.Endpoint != "" {
		enrichSvc := hero.NewHTTPEnrichmentService(cfg.Hero.Endpoint, cfg.Hero.APIKey)
		heroDispatcher = hero.NewDispatcher(context.Background(), enrichSvc, cfg.Hero.Workers, cfg.Hero.QueueCap)
	}

	proc := pipeline.New(store, fetcher, extractor, scorer, db.Content(), db.FeedQueue(), patches, heroDispatcher, pipeline.Config{
		Parallelism:        cfg.Processor.Parallelism,
		MaxAttempts:        cfg.Processor.MaxAttempts,
		EmptyPollLimit:     cfg.Processor.EmptyPollLimit,
		MinTextBytes:       cfg.Processor.MinTextBytes,
		RelevanceThreshold: cfg.Processor.RelevanceThresh,
	})

	feedWorker := feedqueue.New(db.FeedQueue(), db.Content(), db.AgentMemory(), agentSvc, feedqueue.Config{
		Parallelism:  cfg.Feed.Parallelism,
		MaxAttempts:  cfg.Feed.MaxAttempts,
		StuckTimeout: cfg.Feed.StuckTimeout(),
		AgentID:      cfg.Agent.ID,
	})

	coord := discovery.New(db, patches, proc, feedWorker, heroDispatcher, discovery.Config{
		RunDeadline: cfg.Processor.RunDeadline(),
	})

	cleanup = func() {
		coord.Close()
		_ = db.Close()
	}

	return &app{cfg: cfg, db: db, patches: patches, monitor: monitor, fetcher: fetcher, store: store, coord: coord}, cleanup, nil
}

// buildScorer prefers the LLM scorer (§4.5's production contract) and
// falls back to the dependency-free KeywordScorer when no scorer API
// key is configured (SCORER_KEY / GEMINI_API_KEY unset).
func buildScorer(cfg *config.Config) (relevance.Scorer, error) {
	apiKey := cfg.Scorer.APIKey
	if apiKey == "" {
		return relevance.NewKeywordScorer(), nil
	}
	client, err := llm.NewClient(cfg.Scorer.Model)
	if err != nil {
		return nil, err
	}
	return relevance.NewLLMScorer(client), nil
}
