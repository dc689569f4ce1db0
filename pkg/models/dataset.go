package models

import "strings"

const titleMasterReport = "Title Master Report"

// Dataset is an upstream usage-statistics dataset shared by the consortium
type Dataset struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Abbrev     string `yaml:"abbrev"`      // Used in export names
	ReportType string `yaml:"report_type"` // "Title Master Report" or "Database Master Report"
}

// CountLabel returns the column label used when counting this dataset's items
func (d Dataset) CountLabel() string {
	if strings.EqualFold(strings.TrimSpace(d.ReportType), titleMasterReport) {
		return "# of Titles"
	}
	return "# of Databases"
}

// HarvestSchedule is one row of a platform's SUSHI harvest schedule table
type HarvestSchedule struct {
	Library        string
	DatasetName    string
	ScheduleID     string
	ReportType     string
	Vendor         string
	Frequency      string
	RecurringUntil string
	LastFetch      string
	Enabled        string
	HasError       bool
}

// IsEnabled reports whether the console shows the schedule as enabled
func (h HarvestSchedule) IsEnabled() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(h.Enabled)), "yes")
}

// RankedItemsQuery asks a usage source for one organization's top items in one category
type RankedItemsQuery struct {
	DatasetID  string
	PlatformID string
	Category   Category
	Period     Period
	Limit      int
	SortMetric string // e.g. "total_item_requests"
}
