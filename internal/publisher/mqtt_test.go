package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/internal/database"
	"github.com/jgoulah/usagereports/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	topic   string
	payload []byte
}

func newTestPublisher(failOn string) (*Publisher, *[]sent) {
	var out []sent
	p := newPublisher("usagereports/", nil, func(topic string, payload []byte) error {
		if topic == failOn {
			return errors.New("broker unavailable")
		}
		out = append(out, sent{topic: topic, payload: payload})
		return nil
	})
	p.now = func() time.Time { return time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC) }
	return p, &out
}

func summaryReport() *aggregate.DatasetReport {
	return &aggregate.DatasetReport{
		Dataset: models.Dataset{ID: "38772", Name: "JSTOR", Abbrev: "jstor"},
		Period:  models.Period{Label: "2425"},
		Summary: aggregate.SummaryExport{
			Rows: []aggregate.SummaryRow{
				{Organization: "alc", Library: "Alice Lloyd College", PlatformName: "Alice Lloyd College - JSTOR",
					OverviewCounters: models.OverviewCounters{TotalItemRequests: 100, SearchesPlatform: 4}},
				{Organization: "berea", Library: "Berea College", PlatformName: "Berea College - JSTOR",
					OverviewCounters: models.OverviewCounters{TotalItemRequests: 50}},
			},
			Total: aggregate.SummaryRow{Library: "TOTAL", PlatformName: "All Platforms",
				OverviewCounters: models.OverviewCounters{TotalItemRequests: 150, SearchesPlatform: 4}},
		},
	}
}

func TestSummaryTopic(t *testing.T) {
	assert.Equal(t, "usagereports/jstor/summary/alc", SummaryTopic("usagereports", "jstor", "alc"))
	assert.Equal(t, "usagereports/jstor/summary/total", SummaryTopic("usagereports", "jstor", ""))
}

func TestEmitPublishesSummaryRows(t *testing.T) {
	p, out := newTestPublisher("")

	require.NoError(t, p.Emit(context.Background(), summaryReport()))
	require.Len(t, *out, 3)

	assert.Equal(t, "usagereports/jstor/summary/alc", (*out)[0].topic)
	assert.Equal(t, "usagereports/jstor/summary/berea", (*out)[1].topic)
	assert.Equal(t, "usagereports/jstor/summary/total", (*out)[2].topic)

	var first map[string]any
	require.NoError(t, json.Unmarshal((*out)[0].payload, &first))
	assert.Equal(t, "jstor", first["dataset"])
	assert.Equal(t, "JSTOR", first["dataset_name"])
	assert.Equal(t, "2425", first["period"])
	assert.Equal(t, "alc", first["organization"])
	assert.Equal(t, "Alice Lloyd College - JSTOR", first["platform_name"])
	assert.Equal(t, float64(100), first["total_item_requests"])
	assert.Equal(t, float64(4), first["searches_platform"])
	assert.Equal(t, "2025-07-01T12:00:00Z", first["published_at"])

	var total map[string]any
	require.NoError(t, json.Unmarshal((*out)[2].payload, &total))
	assert.NotContains(t, total, "organization")
	assert.Equal(t, "TOTAL", total["library"])
	assert.Equal(t, float64(150), total["total_item_requests"])
}

func TestEmitStopsOnPublishError(t *testing.T) {
	p, out := newTestPublisher("usagereports/jstor/summary/berea")

	err := p.Emit(context.Background(), summaryReport())
	require.Error(t, err)
	assert.Len(t, *out, 1)
}

func TestEmitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, out := newTestPublisher("")
	require.ErrorIs(t, p.Emit(ctx, summaryReport()), context.Canceled)
	assert.Empty(t, *out)
}

type memoryStore struct {
	rows   []database.SummaryRecord
	marked []int
}

func (m *memoryStore) ListUnpublishedSummary(ctx context.Context) ([]database.SummaryRecord, error) {
	return m.rows, nil
}

func (m *memoryStore) MarkPublished(ctx context.Context, id int) error {
	m.marked = append(m.marked, id)
	return nil
}

func TestPublishStored(t *testing.T) {
	store := &memoryStore{rows: []database.SummaryRecord{
		{ID: 3, PeriodLabel: "2425", Dataset: "jstor", Organization: "alc", Library: "Alice Lloyd College"},
		{ID: 4, PeriodLabel: "2425", Dataset: "jstor", Library: "TOTAL", PlatformName: "All Platforms"},
		{ID: 5, PeriodLabel: "2425", Dataset: "newsbank", Organization: "berea", Library: "Berea College"},
	}}

	p, out := newTestPublisher("usagereports/newsbank/summary/berea")
	n, err := p.PublishStored(context.Background(), store)
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{3, 4}, store.marked)
	require.Len(t, *out, 2)
	assert.Equal(t, "usagereports/jstor/summary/total", (*out)[1].topic)
}

func TestPublishStoredWithDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Exporter("run-1", nil).Emit(ctx, summaryReport()))

	p, out := newTestPublisher("")
	n, err := p.PublishStored(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, *out, 3)

	pending, err := db.ListUnpublishedSummary(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
