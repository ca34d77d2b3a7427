// Package scan drives C4/C5's page-extraction step: fetching each
// monitored Wikipedia page pending citation extraction and handing its
// HTML to citations.Store.ExtractAndStore (spec.md §4.4).
package scan

import (
	"context"
	"fmt"
	"net/http"

	"briefly/internal/citations"
	"briefly/internal/fetch"
	"briefly/internal/logger"
	"briefly/internal/wikipedia"
)

// Sweep fetches every monitored page under patchID that has not yet had
// its citations extracted, and extracts them. A single page's fetch or
// extraction failure is logged and skipped rather than aborting the
// sweep, since C11 still wants the remaining pages scanned.
func Sweep(ctx context.Context, patchID string, monitor *wikipedia.Monitor, fetcher *fetch.Fetcher, store *citations.Store) error {
	pages, err := monitor.PagesPendingExtraction(ctx, patchID)
	if err != nil {
		return fmt.Errorf("list pages pending extraction: %w", err)
	}

	for _, page := range pages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := fetcher.Fetch(ctx, page.WikipediaURL, fetch.Options{Method: http.MethodGet})
		if err != nil {
			logger.Get().Warn("failed to fetch monitored page", "page_id", page.ID, "url", page.WikipediaURL, "error", err)
			continue
		}

		found, stored, err := store.ExtractAndStore(ctx, page.ID, string(result.Body), page.WikipediaURL)
		if err != nil {
			logger.Get().Warn("failed to extract citations from monitored page", "page_id", page.ID, "error", err)
			continue
		}
		logger.Get().Info("extracted citations from monitored page", "page_id", page.ID, "found", found, "stored", stored)
	}

	return nil
}
