package libinsight

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jgoulah/usagereports/pkg/models"
	"go.uber.org/zap"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type overviewPayload struct {
	OverviewByPlatforms json.RawMessage `json:"overview_by_platforms"`
}

type topTitlesPayload struct {
	DataType     string          `json:"data_type"`
	MetricType   string          `json:"metric_type"`
	TopUseTitles json.RawMessage `json:"top_use_titles"`
}

type rawOverview struct {
	SearchesPlatform          count `json:"searches_platform"`
	TotalItemInvestigations   count `json:"total_item_investigations"`
	TotalItemRequests         count `json:"total_item_requests"`
	UniqueItemInvestigations  count `json:"unique_item_investigations"`
	UniqueItemRequests        count `json:"unique_item_requests"`
	UniqueTitleInvestigations count `json:"unique_title_investigations"`
	UniqueTitleRequests       count `json:"unique_title_requests"`
}

func (r rawOverview) counters() models.OverviewCounters {
	return models.OverviewCounters{
		SearchesPlatform:          int64(r.SearchesPlatform),
		TotalItemInvestigations:   int64(r.TotalItemInvestigations),
		TotalItemRequests:         int64(r.TotalItemRequests),
		UniqueItemInvestigations:  int64(r.UniqueItemInvestigations),
		UniqueItemRequests:        int64(r.UniqueItemRequests),
		UniqueTitleInvestigations: int64(r.UniqueTitleInvestigations),
		UniqueTitleRequests:       int64(r.UniqueTitleRequests),
	}
}

type rawItem struct {
	Title      text `json:"title"`
	Publisher  text `json:"publisher"`
	ISBN       text `json:"isbn"`
	DOI        text `json:"doi"`
	PlatformID text `json:"platform_id"`

	TotalItemInvestigations   count `json:"total_item_investigations"`
	UniqueItemInvestigations  count `json:"unique_item_investigations"`
	UniqueTitleInvestigations count `json:"unique_title_investigations"`
	TotalItemRequests         count `json:"total_item_requests"`
	UniqueItemRequests        count `json:"unique_item_requests"`
	UniqueTitleRequests       count `json:"unique_title_requests"`
	SearchesPlatform          count `json:"searches_platform"`
	SearchesRegular           count `json:"searches_regular"`
	SearchesFederated         count `json:"searches_federated"`
	SearchesAutomated         count `json:"searches_automated"`
	NoLicense                 count `json:"no_license"`
	LimitExceeded             count `json:"limit_exceeded"`
}

func (r rawItem) record() models.ItemUsageRecord {
	return models.ItemUsageRecord{
		Title:      string(r.Title),
		Publisher:  string(r.Publisher),
		ISBN:       string(r.ISBN),
		DOI:        string(r.DOI),
		PlatformID: string(r.PlatformID),
		ItemCounters: models.ItemCounters{
			TotalItemInvestigations:   int64(r.TotalItemInvestigations),
			UniqueItemInvestigations:  int64(r.UniqueItemInvestigations),
			UniqueTitleInvestigations: int64(r.UniqueTitleInvestigations),
			TotalItemRequests:         int64(r.TotalItemRequests),
			UniqueItemRequests:        int64(r.UniqueItemRequests),
			UniqueTitleRequests:       int64(r.UniqueTitleRequests),
			SearchesPlatform:          int64(r.SearchesPlatform),
			SearchesRegular:           int64(r.SearchesRegular),
			SearchesFederated:         int64(r.SearchesFederated),
			SearchesAutomated:         int64(r.SearchesAutomated),
			NoLicense:                 int64(r.NoLicense),
			LimitExceeded:             int64(r.LimitExceeded),
		},
	}
}

// Overview returns the per-category overview counters of one platform. An
// absent platform or an unexpected payload shape yields an empty map.
func (c *Client) Overview(ctx context.Context, datasetID, platformID string, period models.Period) (map[string]models.OverviewCounters, error) {
	body, err := c.get(ctx, "/e-resources/{datasetId}/overview",
		map[string]string{"datasetId": datasetID},
		map[string]string{
			"from": period.FromParam(),
			"to":   period.ToParam(),
		})
	if err != nil {
		return nil, err
	}

	log := c.log.With(zap.String("dataset_id", datasetID), zap.String("platform_id", platformID))
	out := map[string]models.OverviewCounters{}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing overview response: %w", err)
	}
	var payload overviewPayload
	if len(env.Payload) == 0 || json.Unmarshal(env.Payload, &payload) != nil {
		log.Warn("overview response has no usable payload")
		return out, nil
	}

	var platforms map[string]json.RawMessage
	if len(payload.OverviewByPlatforms) == 0 || json.Unmarshal(payload.OverviewByPlatforms, &platforms) != nil {
		// An empty result comes back as [] rather than {}
		log.Debug("overview has no platforms")
		return out, nil
	}

	raw, ok := platforms[platformID]
	if !ok {
		log.Debug("platform not present in overview", zap.Int("platforms", len(platforms)))
		return out, nil
	}

	var categories map[string]json.RawMessage
	if json.Unmarshal(raw, &categories) != nil {
		log.Warn("platform overview is not an object")
		return out, nil
	}
	for cat, msg := range categories {
		var r rawOverview
		if json.Unmarshal(msg, &r) != nil {
			log.Warn("skipping malformed overview category", zap.String("category", cat))
			continue
		}
		out[cat] = r.counters()
	}
	return out, nil
}

// RankedItems returns the normalized top-use titles for one platform and
// category, in the order the API returned them. Records keep the platform_id
// the API reported so the caller can check they are scoped.
func (c *Client) RankedItems(ctx context.Context, q models.RankedItemsQuery) ([]models.ItemUsageRecord, error) {
	body, err := c.get(ctx, "/e-resources/{datasetId}/top-use-titles",
		map[string]string{"datasetId": q.DatasetID},
		map[string]string{
			"from":        q.Period.FromParam(),
			"to":          q.Period.ToParam(),
			"platform_id": q.PlatformID,
			"data_type":   string(q.Category),
			"metric_type": q.SortMetric,
			"limit":       strconv.Itoa(q.Limit),
		})
	if err != nil {
		return nil, err
	}

	log := c.log.With(
		zap.String("dataset_id", q.DatasetID),
		zap.String("platform_id", q.PlatformID),
		zap.String("category", string(q.Category)),
	)

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing top titles response: %w", err)
	}
	var payload topTitlesPayload
	if len(env.Payload) == 0 || json.Unmarshal(env.Payload, &payload) != nil {
		log.Warn("top titles response has no usable payload")
		return []models.ItemUsageRecord{}, nil
	}

	var entries []json.RawMessage
	if len(payload.TopUseTitles) == 0 || json.Unmarshal(payload.TopUseTitles, &entries) != nil {
		log.Debug("no top titles")
		return []models.ItemUsageRecord{}, nil
	}

	out := make([]models.ItemUsageRecord, 0, len(entries))
	for i, msg := range entries {
		var r rawItem
		if err := json.Unmarshal(msg, &r); err != nil {
			log.Warn("skipping malformed title record", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, r.record())
	}
	log.Debug("fetched top titles", zap.Int("titles", len(out)))
	return out, nil
}
