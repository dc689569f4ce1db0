package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemCountersAdd(t *testing.T) {
	a := ItemCounters{TotalItemRequests: 5, NoLicense: 1, SearchesAutomated: 2}
	a.Add(ItemCounters{TotalItemRequests: 3, NoLicense: 4, LimitExceeded: 7})

	assert.Equal(t, ItemCounters{
		TotalItemRequests: 8,
		NoLicense:         5,
		SearchesAutomated: 2,
		LimitExceeded:     7,
	}, a)
}

func TestHasUsageEvidence(t *testing.T) {
	tests := []struct {
		name string
		c    ItemCounters
		want bool
	}{
		{"all zero", ItemCounters{}, false},
		{"requests", ItemCounters{TotalItemRequests: 1}, true},
		{"unique requests", ItemCounters{UniqueItemRequests: 1}, true},
		{"investigations", ItemCounters{TotalItemInvestigations: 1}, true},
		{"unique investigations", ItemCounters{UniqueItemInvestigations: 1}, true},
		{"platform searches", ItemCounters{SearchesPlatform: 1}, true},
		{"regular searches", ItemCounters{SearchesRegular: 1}, true},
		{"federated only", ItemCounters{SearchesFederated: 9}, false},
		{"denials only", ItemCounters{NoLicense: 3, LimitExceeded: 2}, false},
		{"title counters only", ItemCounters{UniqueTitleRequests: 4, UniqueTitleInvestigations: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.HasUsageEvidence())
		})
	}
}

func TestOverviewTotalAndCategories(t *testing.T) {
	u := OrganizationUsage{
		Overview: map[string]OverviewCounters{
			"Other":    {TotalItemRequests: 1},
			"Zines":    {TotalItemRequests: 2},
			"Book":     {TotalItemRequests: 3, SearchesPlatform: 10},
			"Database": {TotalItemRequests: 4},
			"Archive":  {UniqueTitleRequests: 6},
		},
	}

	total := u.OverviewTotal()
	assert.Equal(t, int64(10), total.TotalItemRequests)
	assert.Equal(t, int64(10), total.SearchesPlatform)
	assert.Equal(t, int64(6), total.UniqueTitleRequests)

	assert.Equal(t, []string{"Database", "Book", "Other", "Archive", "Zines"}, u.OverviewCategories())
}

func TestCategorySetOrdered(t *testing.T) {
	s := CategorySet{}
	s.Add(CategoryOther)
	s.Add(Category("Audio"))
	s.Add(CategoryJournal)

	require.True(t, s.Has(CategoryJournal))
	require.False(t, s.Has(CategoryBook))
	assert.Equal(t, []Category{CategoryJournal, CategoryOther, Category("Audio")}, s.Ordered())
}

func TestDatasetCountLabel(t *testing.T) {
	assert.Equal(t, "# of Titles", Dataset{ReportType: "Title Master Report"}.CountLabel())
	assert.Equal(t, "# of Databases", Dataset{ReportType: "Database Master Report"}.CountLabel())
	assert.Equal(t, "# of Databases", Dataset{}.CountLabel())
}

func TestHarvestScheduleIsEnabled(t *testing.T) {
	assert.True(t, HarvestSchedule{Enabled: "Yes"}.IsEnabled())
	assert.True(t, HarvestSchedule{Enabled: "Yes (Auto-enabled)"}.IsEnabled())
	assert.False(t, HarvestSchedule{Enabled: "No"}.IsEnabled())
	assert.False(t, HarvestSchedule{}.IsEnabled())
}
