package aggregate

import (
	"context"

	"github.com/jgoulah/usagereports/pkg/models"
	"go.uber.org/zap"
)

// Collect fetches one overview per organization and, when the mode needs
// items, one ranked list per (organization, category). Adapter failures
// degrade to empty results and are reported as skips; only cancellation
// aborts collection.
func (e *Engine) Collect(ctx context.Context, dataset models.Dataset, orgs []models.Organization) ([]models.OrganizationUsage, []Skip, error) {
	usages := make([]models.OrganizationUsage, 0, len(orgs))
	var skips []Skip

	for i, org := range orgs {
		if i > 0 {
			if err := e.sleep(ctx, e.settings.OrganizationDelay); err != nil {
				return nil, nil, err
			}
		} else if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		log := e.log.With(
			zap.String("dataset", dataset.Name),
			zap.String("organization", org.Abbreviation),
			zap.String("platform_id", org.PlatformID),
		)
		log.Info("collecting organization", zap.String("name", org.Name))

		usage := models.OrganizationUsage{Organization: org}

		overview, skip := e.collectOverview(ctx, log, dataset, org)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		usage.Overview = overview
		if skip != nil {
			skips = append(skips, *skip)
		}

		if e.settings.Mode.CollectsItems() {
			items, itemSkips, err := e.collectItems(ctx, log, dataset, org)
			if err != nil {
				return nil, nil, err
			}
			usage.RankedItems = items
			skips = append(skips, itemSkips...)
		}

		usages = append(usages, usage)
	}

	return usages, skips, nil
}

func (e *Engine) collectOverview(ctx context.Context, log *zap.Logger, dataset models.Dataset, org models.Organization) (map[string]models.OverviewCounters, *Skip) {
	overview, err := e.source.Overview(ctx, dataset.ID, org.PlatformID, e.settings.Period)
	if err != nil {
		log.Error("fetching overview failed", zap.Error(err))
		return map[string]models.OverviewCounters{}, &Skip{
			Organization: org.Abbreviation,
			Reason:       "overview request failed: " + err.Error(),
		}
	}
	if len(overview) == 0 {
		log.Warn("no overview data for organization")
		return map[string]models.OverviewCounters{}, &Skip{
			Organization: org.Abbreviation,
			Reason:       ReasonNoOverview,
		}
	}

	log.Info("got overview", zap.Int("categories", len(overview)))
	return overview, nil
}

func (e *Engine) collectItems(ctx context.Context, log *zap.Logger, dataset models.Dataset, org models.Organization) (map[models.Category][]models.ItemUsageRecord, []Skip, error) {
	out := make(map[models.Category][]models.ItemUsageRecord, len(e.settings.Categories))
	var skips []Skip

	for i, cat := range e.settings.Categories {
		if i > 0 {
			if err := e.sleep(ctx, e.settings.ItemDelay); err != nil {
				return nil, nil, err
			}
		}

		items, err := e.source.RankedItems(ctx, models.RankedItemsQuery{
			DatasetID:  dataset.ID,
			PlatformID: org.PlatformID,
			Category:   cat,
			Period:     e.settings.Period,
			Limit:      e.settings.TopN,
			SortMetric: e.settings.SortMetric,
		})
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err != nil {
			log.Warn("fetching ranked items failed", zap.String("category", string(cat)), zap.Error(err))
			out[cat] = []models.ItemUsageRecord{}
			skips = append(skips, Skip{
				Organization: org.Abbreviation,
				Category:     cat,
				Reason:       "ranked items request failed: " + err.Error(),
			})
			continue
		}

		scoped, ok := scopeItems(items, org.PlatformID)
		if !ok {
			log.Warn("ranked items are not scoped to the organization, discarding",
				zap.String("category", string(cat)),
				zap.Int("returned", len(items)),
			)
			skips = append(skips, Skip{
				Organization: org.Abbreviation,
				Category:     cat,
				Reason:       ReasonUnscoped,
			})
		} else if len(scoped) != len(items) {
			log.Info("filtered ranked items to organization",
				zap.String("category", string(cat)),
				zap.Int("kept", len(scoped)),
				zap.Int("returned", len(items)),
			)
		} else {
			log.Debug("ranked items", zap.String("category", string(cat)), zap.Int("items", len(scoped)))
		}
		out[cat] = scoped
	}

	return out, skips, nil
}

// scopeItems keeps only records attributed to platformID. The second result is
// false when no record carries an organization discriminator at all, in which
// case nothing is kept.
func scopeItems(items []models.ItemUsageRecord, platformID string) ([]models.ItemUsageRecord, bool) {
	out := make([]models.ItemUsageRecord, 0, len(items))
	if len(items) == 0 {
		return out, true
	}

	discriminated := false
	for _, it := range items {
		if it.PlatformID == "" {
			continue
		}
		discriminated = true
		if it.PlatformID == platformID {
			out = append(out, it)
		}
	}
	if !discriminated {
		return out, false
	}
	return out, true
}
