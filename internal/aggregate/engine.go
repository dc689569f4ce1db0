// Package aggregate collects per-organization usage for a dataset, works out
// which item categories carry consortium-wide usage, and produces ranked
// organization and consortium exports.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jgoulah/usagereports/pkg/models"
	"go.uber.org/zap"
)

const (
	DefaultTopN       = 100
	DefaultSortMetric = "total_item_requests"
)

// Mode selects which exports a run produces
type Mode string

const (
	ModeFull     Mode = "full"     // every export kind
	ModeOverview Mode = "overview" // organization overviews (plus the consortium summary)
	ModeItems    Mode = "items"    // organization and consortium top items (plus the consortium summary)
	ModeSummary  Mode = "summary"  // consortium summary only
)

// ParseMode accepts the canonical mode names and the aliases the CLI has always taken
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "full":
		return ModeFull, nil
	case "overview":
		return ModeOverview, nil
	case "items", "top", "top100":
		return ModeItems, nil
	case "summary":
		return ModeSummary, nil
	default:
		return "", fmt.Errorf("unknown report mode: %s (available: all, overview, top100, summary)", s)
	}
}

// CollectsItems reports whether ranked item lists are fetched (and the Validate stage runs)
func (m Mode) CollectsItems() bool {
	return m == ModeFull || m == ModeItems
}

// EmitsOverview reports whether organization overview exports are produced
func (m Mode) EmitsOverview() bool {
	return m == ModeFull || m == ModeOverview
}

// EmitsItems reports whether top-items exports are produced
func (m Mode) EmitsItems() bool {
	return m.CollectsItems()
}

// Settings is the immutable configuration of one engine
type Settings struct {
	Period            models.Period
	Categories        []models.Category
	TopN              int
	SortMetric        string
	ItemDelay         time.Duration // pause between category calls for one organization
	OrganizationDelay time.Duration // pause between organizations
	Mode              Mode
}

// Source is the usage source adapter the engine collects from
type Source interface {
	// Overview returns per-category counters for one organization.
	// A nil or empty map means the source has no data for it.
	Overview(ctx context.Context, datasetID, platformID string, period models.Period) (map[string]models.OverviewCounters, error)
	RankedItems(ctx context.Context, q models.RankedItemsQuery) ([]models.ItemUsageRecord, error)
}

// Engine runs Collect, Validate and Merge-and-Rank for one dataset at a time
type Engine struct {
	source   Source
	settings Settings
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an engine, filling unset settings with defaults
func New(source Source, settings Settings, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if len(settings.Categories) == 0 {
		settings.Categories = models.Categories
	}
	settings.Categories = append([]models.Category(nil), settings.Categories...)
	if settings.TopN <= 0 {
		settings.TopN = DefaultTopN
	}
	if settings.SortMetric == "" {
		settings.SortMetric = DefaultSortMetric
	}
	if settings.Mode == "" {
		settings.Mode = ModeFull
	}

	return &Engine{
		source:   source,
		settings: settings,
		log:      log,
		sleep:    sleepContext,
	}
}

// Settings returns a copy of the engine settings
func (e *Engine) Settings() Settings {
	s := e.settings
	s.Categories = append([]models.Category(nil), s.Categories...)
	return s
}

// Process runs all stages for one dataset and returns the complete report set.
// Nothing is returned until every stage has finished.
func (e *Engine) Process(ctx context.Context, dataset models.Dataset, orgs []models.Organization) (*DatasetReport, error) {
	log := e.log.With(zap.String("dataset", dataset.Name), zap.String("dataset_id", dataset.ID))
	mode := e.settings.Mode

	log.Info("collecting organizations", zap.Int("organizations", len(orgs)), zap.String("mode", string(mode)))
	usages, skips, err := e.Collect(ctx, dataset, orgs)
	if err != nil {
		return nil, fmt.Errorf("collecting %s: %w", dataset.Name, err)
	}

	valid := models.CategorySet{}
	if mode.CollectsItems() {
		valid = ValidCategories(usages)
		if len(valid) == 0 {
			log.Warn("no categories with usage in this dataset")
		} else {
			log.Info("categories with usage", zap.Strings("categories", categoryNames(valid.Ordered())))
		}
	} else {
		log.Debug("skipping category validation", zap.String("mode", string(mode)))
	}

	rep := &DatasetReport{
		Dataset:         dataset,
		Period:          e.settings.Period,
		Mode:            mode,
		TopN:            e.settings.TopN,
		ValidCategories: valid,
		Skips:           skips,
	}

	for _, u := range usages {
		if mode.EmitsOverview() {
			rep.Overviews = append(rep.Overviews, newOverviewExport(u))
		}
		if mode.EmitsItems() {
			rep.OrganizationItems = append(rep.OrganizationItems, organizationItemExports(u, valid)...)
		}
	}

	rep.Summary = Summarize(dataset, usages)

	if mode.EmitsItems() {
		for _, cat := range valid.Ordered() {
			merged := MergeCategory(usages, cat, e.settings.TopN)
			if len(merged) == 0 {
				continue
			}
			rep.ConsortiumItems = append(rep.ConsortiumItems, TopItemsExport{
				Category: cat,
				Items:    merged,
			})
		}
	}

	log.Info("dataset processed", zap.Int("exports", rep.ExportCount()), zap.Int("skipped", len(rep.Skips)))
	return rep, nil
}

func organizationItemExports(u models.OrganizationUsage, valid models.CategorySet) []TopItemsExport {
	var out []TopItemsExport
	for _, cat := range valid.Ordered() {
		items, ok := u.RankedItems[cat]
		if !ok {
			// Not requested for this organization
			continue
		}
		RankItems(items)
		org := u.Organization
		out = append(out, TopItemsExport{
			Organization: &org,
			Category:     cat,
			Items:        items,
			Placeholder:  len(items) == 0,
		})
	}
	return out
}

func categoryNames(cats []models.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
