package engine

import (
	"context"
	"log/slog"

	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/fetch"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// Probe decides once per job whether plain HTTP is enough. It requests a
// sample of items with and without the session and returns StrategyFetch if
// any authenticated response carries data markers its public counterpart
// lacks.
func Probe(ctx context.Context, site adapter.SiteAdapter, fetcher Fetcher, session *models.Session, items []models.WorkItem, sample int, logger *slog.Logger) string {
	if fetcher == nil || len(items) == 0 {
		return StrategyBrowser
	}
	if sample > len(items) {
		sample = len(items)
	}

	for _, item := range items[:sample] {
		public, authed, ok := site.FetchRequests(item)
		if !ok {
			logger.Info("portal has no fetch requests, using browser navigation")
			return StrategyBrowser
		}

		authResp, err := fetcher.Request(ctx, authed.Path, session, fetch.RequestOptions{Query: authed.Query})
		if err != nil {
			logger.Info("probe request failed", "item", item.Code, "error", err)
			continue
		}
		if !site.HasDataMarkers(authResp.Body) {
			continue
		}

		publicHasMarkers := false
		if pubResp, err := fetcher.Request(ctx, public.Path, nil, fetch.RequestOptions{Query: public.Query}); err == nil {
			publicHasMarkers = site.HasDataMarkers(pubResp.Body)
		}
		if !publicHasMarkers {
			logger.Info("authenticated responses carry data, using fetch", "item", item.Code)
			return StrategyFetch
		}
	}

	logger.Info("no authenticated-only data in probe sample, using browser navigation", "sample", sample)
	return StrategyBrowser
}
