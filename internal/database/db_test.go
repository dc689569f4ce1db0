package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testReport(totals ...int64) *aggregate.DatasetReport {
	alc := models.Organization{Abbreviation: "alc", Name: "Alice Lloyd College"}
	berea := models.Organization{Abbreviation: "berea", Name: "Berea College"}

	rep := &aggregate.DatasetReport{
		Dataset: models.Dataset{ID: "38772", Name: "JSTOR", Abbrev: "jstor"},
		Period:  models.Period{Label: "2425"},
		TopN:    100,
		Overviews: []aggregate.OverviewExport{
			{Organization: alc, Rows: []aggregate.OverviewRow{
				{Category: "Book", OverviewCounters: models.OverviewCounters{TotalItemRequests: 60}},
				{Category: "Journal", OverviewCounters: models.OverviewCounters{TotalItemRequests: 40}},
			}},
			{Organization: berea, Rows: []aggregate.OverviewRow{{Category: aggregate.NoOverviewLabel}}, Placeholder: true},
		},
		OrganizationItems: []aggregate.TopItemsExport{
			{Organization: &alc, Category: models.CategoryBook, Items: []models.ItemUsageRecord{
				{Title: "Ant", Publisher: "Acme", ItemCounters: models.ItemCounters{TotalItemRequests: 10, NoLicense: 1}},
				{Title: "Zed", ItemCounters: models.ItemCounters{TotalItemRequests: 10}},
			}},
			{Organization: &berea, Category: models.CategoryBook, Placeholder: true},
		},
		ConsortiumItems: []aggregate.TopItemsExport{
			{Category: models.CategoryBook, Items: []models.ItemUsageRecord{
				{Title: "Ant", ItemCounters: models.ItemCounters{TotalItemRequests: 10}},
			}},
		},
	}

	var total models.OverviewCounters
	for i, n := range totals {
		org := alc
		if i == 1 {
			org = berea
		}
		c := models.OverviewCounters{TotalItemRequests: n}
		rep.Summary.Rows = append(rep.Summary.Rows, aggregate.SummaryRow{
			Organization:     org.Abbreviation,
			Library:          org.Name,
			PlatformName:     org.Name + " - JSTOR",
			OverviewCounters: c,
		})
		total.Add(c)
	}
	rep.Summary.Total = aggregate.SummaryRow{
		Library:          aggregate.TotalLibraryLabel,
		PlatformName:     aggregate.TotalPlatformLabel,
		OverviewCounters: total,
	}
	return rep
}

func TestExporterStoresReport(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.Exporter("run-1", nil).Emit(ctx, testReport(100, 50)))

	summary, err := db.ListSummary(ctx, "2425", "jstor")
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "alc", summary[0].Organization)
	assert.Equal(t, "Alice Lloyd College - JSTOR", summary[0].PlatformName)
	assert.Equal(t, int64(100), summary[0].TotalItemRequests)
	assert.Equal(t, "run-1", summary[0].RunID)
	assert.False(t, summary[0].CreatedAt.IsZero())
	assert.True(t, summary[2].IsTotal())
	assert.Equal(t, "TOTAL", summary[2].Library)
	assert.Equal(t, int64(150), summary[2].TotalItemRequests)

	// Placeholders are not stored
	n, err := db.CountOverviewRows(ctx, "2425", "jstor")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := db.ListTopItems(ctx, "2425", "jstor", "alc", models.CategoryBook)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Rank)
	assert.Equal(t, "Ant", items[0].Title)
	assert.Equal(t, "Acme", items[0].Publisher)
	assert.Equal(t, int64(1), items[0].NoLicense)
	assert.Equal(t, 2, items[1].Rank)

	berea, err := db.ListTopItems(ctx, "2425", "jstor", "berea", models.CategoryBook)
	require.NoError(t, err)
	assert.Empty(t, berea)

	consortium, err := db.ListTopItems(ctx, "2425", "jstor", "", models.CategoryBook)
	require.NoError(t, err)
	require.Len(t, consortium, 1)
	assert.Equal(t, "Ant", consortium[0].Title)
}

func TestExporterReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.Exporter("run-1", nil).Emit(ctx, testReport(100, 50)))

	other := testReport(7)
	other.Period.Label = "2324"
	require.NoError(t, db.Exporter("run-1", nil).Emit(ctx, other))

	require.NoError(t, db.Exporter("run-2", nil).Emit(ctx, testReport(30)))

	summary, err := db.ListSummary(ctx, "2425", "jstor")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	for _, r := range summary {
		assert.Equal(t, "run-2", r.RunID)
	}
	assert.Equal(t, int64(30), summary[1].TotalItemRequests)

	// Other periods are untouched
	previous, err := db.ListSummary(ctx, "2324", "jstor")
	require.NoError(t, err)
	assert.Len(t, previous, 2)
}

func TestPublishedFlag(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Exporter("run-1", nil).Emit(ctx, testReport(100, 50)))

	pending, err := db.ListUnpublishedSummary(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	require.NoError(t, db.MarkPublished(ctx, pending[0].ID))

	pending, err = db.ListUnpublishedSummary(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestExporterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db := newTestDB(t)
	err := db.Exporter("run-1", nil).Emit(ctx, testReport(1))
	require.Error(t, err)

	summary, err := db.ListSummary(context.Background(), "2425", "jstor")
	require.NoError(t, err)
	assert.Empty(t, summary)
}
