// Package pipeline implements C7, the citation processor: the worker
// loop of spec.md §4.6 that drives each eligible citation through
// verification, fetch, extraction, scoring, and the save/deny decision.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"briefly/internal/canon"
	"briefly/internal/citations"
	"briefly/internal/core"
	"briefly/internal/discoveryerr"
	"briefly/internal/extract"
	"briefly/internal/fetch"
	"briefly/internal/hero"
	"briefly/internal/logger"
	"briefly/internal/patch"
	"briefly/internal/persistence"
	"briefly/internal/relevance"
)

const maxSummaryBytes = 500

// errTerminal marks a citation that process already moved to a terminal
// state (denied); processOne must not treat it as an unhandled exception.
var errTerminal = errors.New("citation reached a terminal state")

// Counts tallies a single Run call's outcomes, for the discovery_run
// metrics columns driven by §4.10's UpdateMetrics.
type Counts struct {
	Processed int
	Saved     int
	Denied    int
	Failed    int
}

// runCounts holds the atomic counters a Run call's workers share. It is
// local to each Run invocation, not a Processor field, since one shared
// Processor may have concurrent Run calls in flight for different patches.
type runCounts struct {
	processed int64
	saved     int64
	denied    int64
	failed    int64
}

// Config holds C7's tunables, sourced from config.Processor (§6).
type Config struct {
	Parallelism        int
	MaxAttempts        int
	EmptyPollLimit     int
	MinTextBytes       int
	RelevanceThreshold int
}

// Processor implements C7 against its C1-C6/C8-C10 collaborators.
type Processor struct {
	store     *citations.Store
	fetcher   *fetch.Fetcher
	extractor *extract.Extractor
	scorer    relevance.Scorer
	content   persistence.ContentRepository
	feedQueue persistence.FeedQueueRepository
	patches   patch.Provider
	hero      *hero.Dispatcher
	cfg       Config
}

// New constructs a Processor. feedQueue and heroDispatcher may be nil,
// in which case C7 skips the corresponding step (used by tests that
// only exercise verification/scoring).
func New(store *citations.Store, fetcher *fetch.Fetcher, extractor *extract.Extractor, scorer relevance.Scorer, content persistence.ContentRepository, feedQueue persistence.FeedQueueRepository, patches patch.Provider, heroDispatcher *hero.Dispatcher, cfg Config) *Processor {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.EmptyPollLimit <= 0 {
		cfg.EmptyPollLimit = 3
	}
	if cfg.MinTextBytes <= 0 {
		cfg.MinTextBytes = 500
	}
	if cfg.RelevanceThreshold <= 0 {
		cfg.RelevanceThreshold = relevance.RelevanceThreshold
	}

	return &Processor{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		scorer:    scorer,
		content:   content,
		feedQueue: feedQueue,
		patches:   patches,
		hero:      heroDispatcher,
		cfg:       cfg,
	}
}

// Run spawns Parallelism workers against patchID and blocks until every
// worker has terminated (empty-poll exhaustion) or ctx is cancelled, or
// one worker hits a fatal error (§5: DB_UNAVAILABLE is the only fatal
// kind, per discoveryerr.Kind.Fatal). The returned Counts feed directly
// into discovery_run's metrics columns via Runs().UpdateMetrics (§4.10).
func (p *Processor) Run(ctx context.Context, patchID string) (Counts, error) {
	var rc runCounts
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Parallelism; i++ {
		group.Go(func() error {
			return p.workerLoop(groupCtx, patchID, &rc)
		})
	}
	err := group.Wait()
	return Counts{
		Processed: int(atomic.LoadInt64(&rc.processed)),
		Saved:     int(atomic.LoadInt64(&rc.saved)),
		Denied:    int(atomic.LoadInt64(&rc.denied)),
		Failed:    int(atomic.LoadInt64(&rc.failed)),
	}, err
}

// workerLoop repeatedly claims and processes citations until it sees K
// (EmptyPollLimit) consecutive empty polls or ctx is cancelled (§5).
func (p *Processor) workerLoop(ctx context.Context, patchID string, rc *runCounts) error {
	emptyStreak := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		processed, err := p.processOne(ctx, patchID, rc)
		if err != nil {
			return err
		}
		if !processed {
			emptyStreak++
			if emptyStreak >= p.cfg.EmptyPollLimit {
				return nil
			}
			continue
		}
		emptyStreak = 0
	}
}

// processOne implements one iteration of §4.6's loop body. It returns
// processed=false when there was nothing eligible to claim. A non-nil
// error is only ever a fatal one (DB_UNAVAILABLE) — every other failure
// is absorbed into the citation's own state via HandleProcessingException,
// matching the "unhandled exception" semantics of §4.6.
func (p *Processor) processOne(ctx context.Context, patchID string, rc *runCounts) (processed bool, err error) {
	citation, err := p.store.GetNextEligible(ctx, patchID)
	if err != nil {
		return false, discoveryerr.New(discoveryerr.DBUnavailable, "getNextEligible", err)
	}
	if citation == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Get().Error("citation processing panicked", "citation_id", citation.ID, "panic", r)
			processed = true
			atomic.AddInt64(&rc.processed, 1)
			atomic.AddInt64(&rc.failed, 1)
			if handleErr := p.store.HandleProcessingException(ctx, citation.ID, p.cfg.MaxAttempts); handleErr != nil {
				logger.Get().Error("failed to record processing exception", "citation_id", citation.ID, "error", handleErr)
			}
		}
	}()

	if procErr := p.process(ctx, patchID, citation); procErr != nil {
		if errors.Is(procErr, errTerminal) {
			atomic.AddInt64(&rc.processed, 1)
			atomic.AddInt64(&rc.denied, 1)
			return true, nil
		}
		atomic.AddInt64(&rc.processed, 1)
		atomic.AddInt64(&rc.failed, 1)
		if de, ok := discoveryerr.As(procErr); ok && de.Kind.Fatal() {
			return true, procErr
		}
		logger.Get().Warn("citation processing failed", "citation_id", citation.ID, "error", procErr)
		if handleErr := p.store.HandleProcessingException(ctx, citation.ID, p.cfg.MaxAttempts); handleErr != nil {
			return true, discoveryerr.New(discoveryerr.DBUnavailable, "handleProcessingException", handleErr)
		}
	} else {
		atomic.AddInt64(&rc.processed, 1)
		atomic.AddInt64(&rc.saved, 1)
	}

	return true, nil
}

// process runs steps 2-7 of §4.6 against a single claimed citation.
func (p *Processor) process(ctx context.Context, patchID string, citation *core.Citation) error {
	if citation.VerificationStatus == core.VerificationPending {
		if err := p.verify(ctx, citation); err != nil {
			return err
		}
	}

	result, err := p.fetcher.Fetch(ctx, citation.CitationCanonicalURL, fetch.Options{})
	if err != nil {
		kind := discoveryerr.HTTPClient
		if de, ok := discoveryerr.As(err); ok {
			kind = de.Kind
		}
		if kind.Fatal() {
			return err
		}
		return p.deny(ctx, citation.ID, string(kind))
	}

	extractor := *p.extractor
	extractor.MinBytes = p.cfg.MinTextBytes
	extracted, err := extractor.Extract(result.Body, result.ContentType, result.FinalURL)
	if err != nil {
		return p.deny(ctx, citation.ID, string(discoveryerr.ExtractInsufficient))
	}
	if extracted.Method == core.ExtractionInsufficient || extracted.Length < p.cfg.MinTextBytes {
		return p.deny(ctx, citation.ID, string(discoveryerr.ExtractInsufficient))
	}

	if err := p.store.RecordContent(ctx, citation.ID, extracted.TextContent, extracted.Method); err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "recordContent", err)
	}

	title := ""
	if extracted.Title != nil {
		title = *extracted.Title
	}

	pt, err := p.patches.GetPatch(ctx, patchID)
	if err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "getPatch", err)
	}

	scoreResult, err := p.scorer.Score(ctx, relevance.PatchContext{Title: pt.Title, Aliases: pt.Aliases, Tags: pt.Tags}, title, citation.CitationCanonicalURL, extracted.TextContent)
	if err != nil {
		if de, ok := discoveryerr.As(err); ok && de.Kind == discoveryerr.ScorerMalformed {
			return p.deny(ctx, citation.ID, string(discoveryerr.ScorerMalformed))
		}
		return err
	}
	if err := p.store.RecordScore(ctx, citation.ID, scoreResult.Score); err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "recordScore", err)
	}

	if !scoreResult.Decide(p.cfg.RelevanceThreshold) {
		return p.deny(ctx, citation.ID, string(discoveryerr.ScorerLow))
	}

	return p.save(ctx, patchID, citation, title, extracted.TextContent, extracted.Method, scoreResult)
}

// verify performs the cheap reachability check of §4.6 step 2, using a
// HEAD request; a failure marks the citation denied, since an
// unreachable source never reaches the scoring stage.
func (p *Processor) verify(ctx context.Context, citation *core.Citation) error {
	_, err := p.fetcher.Fetch(ctx, citation.CitationCanonicalURL, fetch.Options{Method: http.MethodHead})
	if err != nil {
		kind := discoveryerr.HTTPClient
		if de, ok := discoveryerr.As(err); ok {
			kind = de.Kind
		}
		if kind.Fatal() {
			return err
		}
		if markErr := p.store.MarkVerificationFailed(ctx, citation.ID, string(kind)); markErr != nil {
			return discoveryerr.New(discoveryerr.DBUnavailable, "markVerificationFailed", markErr)
		}
		return p.deny(ctx, citation.ID, string(kind))
	}
	if err := p.store.MarkVerified(ctx, citation.ID); err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "markVerified", err)
	}
	citation.VerificationStatus = core.VerificationVerified
	return nil
}

// deny marks a citation denied and reports the outcome as a handled
// terminal state rather than an unhandled exception (§4.6).
func (p *Processor) deny(ctx context.Context, citationID, errorCode string) error {
	if err := p.store.MarkDenied(ctx, citationID, errorCode); err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "markDenied", err)
	}
	return errTerminal
}

// save implements §4.7/§4.8's save path: upsert into the content store,
// mark the citation saved, enqueue the agent-feed item, and dispatch
// hero enrichment fire-and-forget.
func (p *Processor) save(ctx context.Context, patchID string, citation *core.Citation, title, text string, method core.ExtractionMethod, scoreResult relevance.Result) error {
	summary := summarize(text, maxSummaryBytes)

	contentHash, err := persistence.ComputeContentHash(title, summary, text)
	if err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "computeContentHash", err)
	}

	canonResult := canon.Canonicalize(citation.CitationCanonicalURL)

	relScore := float64(scoreResult.Score) / 100.0
	content := &core.DiscoveredContent{
		PatchID:        patchID,
		SourceURL:      citation.CitationURL,
		CanonicalURL:   canonResult.CanonicalURL,
		Domain:         canonResult.Host,
		Title:          title,
		Summary:        summary,
		TextContent:    text,
		Category:       "wikipedia_citation",
		ContentHash:    contentHash,
		RelevanceScore: &relScore,
		Metadata: map[string]interface{}{
			"extractionMethod": string(method),
			"scorerReason":     scoreResult.Reason,
			"source":           "wikipedia-citation",
			"citationId":       citation.ID,
		},
	}

	contentID, err := p.content.Upsert(ctx, content)
	if err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "upsertContent", err)
	}

	if err := p.store.MarkSaved(ctx, citation.ID, contentID); err != nil {
		return discoveryerr.New(discoveryerr.DBUnavailable, "markSaved", err)
	}

	if p.feedQueue != nil {
		if err := p.feedQueue.Enqueue(ctx, patchID, contentID, contentHash, 0, p.cfg.MaxAttempts); err != nil {
			logger.Get().Warn("failed to enqueue agent-feed item", "content_id", contentID, "error", err)
		}
	}

	if p.hero != nil {
		p.hero.Dispatch(contentID)
	}

	return nil
}

func summarize(text string, maxBytes int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxBytes {
		return text
	}
	return strings.TrimSpace(text[:maxBytes])
}
