package models

import (
	"sort"
	"strings"
	"time"
)

// Category is an item-category label usage is partitioned by
type Category string

const (
	CategoryDatabase   Category = "Database"
	CategoryJournal    Category = "Journal"
	CategoryBook       Category = "Book"
	CategoryMultimedia Category = "Multimedia"
	CategoryOther      Category = "Other"
)

// Categories is the fixed category vocabulary, in reporting order
var Categories = []Category{
	CategoryDatabase,
	CategoryJournal,
	CategoryBook,
	CategoryMultimedia,
	CategoryOther,
}

// Lower returns the category label as used in file names
func (c Category) Lower() string {
	return strings.ToLower(string(c))
}

// Period is the reporting window for one run
type Period struct {
	Start time.Time
	End   time.Time
	Label string // Used in export names, e.g. "2425"
}

// FromParam returns the start date formatted for API queries
func (p Period) FromParam() string {
	return p.Start.Format("2006-01-02")
}

// ToParam returns the end date formatted for API queries
func (p Period) ToParam() string {
	return p.End.Format("2006-01-02")
}

// OverviewCounters is the per-category overview counter set
type OverviewCounters struct {
	SearchesPlatform          int64 `json:"searches_platform"`
	TotalItemInvestigations   int64 `json:"total_item_investigations"`
	TotalItemRequests         int64 `json:"total_item_requests"`
	UniqueItemInvestigations  int64 `json:"unique_item_investigations"`
	UniqueItemRequests        int64 `json:"unique_item_requests"`
	UniqueTitleInvestigations int64 `json:"unique_title_investigations"`
	UniqueTitleRequests       int64 `json:"unique_title_requests"`
}

// Add sums o into c
func (c *OverviewCounters) Add(o OverviewCounters) {
	c.SearchesPlatform += o.SearchesPlatform
	c.TotalItemInvestigations += o.TotalItemInvestigations
	c.TotalItemRequests += o.TotalItemRequests
	c.UniqueItemInvestigations += o.UniqueItemInvestigations
	c.UniqueItemRequests += o.UniqueItemRequests
	c.UniqueTitleInvestigations += o.UniqueTitleInvestigations
	c.UniqueTitleRequests += o.UniqueTitleRequests
}

// ItemCounters is the twelve-counter family reported per item
type ItemCounters struct {
	TotalItemInvestigations   int64 `json:"total_item_investigations"`
	UniqueItemInvestigations  int64 `json:"unique_item_investigations"`
	UniqueTitleInvestigations int64 `json:"unique_title_investigations"`
	TotalItemRequests         int64 `json:"total_item_requests"`
	UniqueItemRequests        int64 `json:"unique_item_requests"`
	UniqueTitleRequests       int64 `json:"unique_title_requests"`
	SearchesPlatform          int64 `json:"searches_platform"`
	SearchesRegular           int64 `json:"searches_regular"`
	SearchesFederated         int64 `json:"searches_federated"`
	SearchesAutomated         int64 `json:"searches_automated"`
	NoLicense                 int64 `json:"no_license"`
	LimitExceeded             int64 `json:"limit_exceeded"`
}

// Add sums all twelve counters of o into c
func (c *ItemCounters) Add(o ItemCounters) {
	c.TotalItemInvestigations += o.TotalItemInvestigations
	c.UniqueItemInvestigations += o.UniqueItemInvestigations
	c.UniqueTitleInvestigations += o.UniqueTitleInvestigations
	c.TotalItemRequests += o.TotalItemRequests
	c.UniqueItemRequests += o.UniqueItemRequests
	c.UniqueTitleRequests += o.UniqueTitleRequests
	c.SearchesPlatform += o.SearchesPlatform
	c.SearchesRegular += o.SearchesRegular
	c.SearchesFederated += o.SearchesFederated
	c.SearchesAutomated += o.SearchesAutomated
	c.NoLicense += o.NoLicense
	c.LimitExceeded += o.LimitExceeded
}

// HasUsageEvidence reports whether any of the six evidence counters is positive.
// Federated/automated searches and access denials do not count as usage.
func (c ItemCounters) HasUsageEvidence() bool {
	return c.TotalItemRequests > 0 ||
		c.UniqueItemRequests > 0 ||
		c.TotalItemInvestigations > 0 ||
		c.UniqueItemInvestigations > 0 ||
		c.SearchesPlatform > 0 ||
		c.SearchesRegular > 0
}

// ItemUsageRecord is usage for one content item within one category
type ItemUsageRecord struct {
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	ISBN      string `json:"isbn"`
	DOI       string `json:"doi"`

	// PlatformID is the organization discriminator reported by the source.
	// Empty means the source did not scope the record.
	PlatformID string `json:"platform_id,omitempty"`

	ItemCounters
}

// Organization is a consortium member participating in a dataset
type Organization struct {
	Abbreviation string // Used as the organization id and directory name
	Name         string
	DatasetID    string
	PlatformID   string // Source-specific identifier
	ReportType   string
	VendorName   string
	VendorAbbrev string
}

// OrganizationUsage is one organization's usage for one dataset.
//
// A category absent from RankedItems was not requested; a present but empty
// slice means it was requested and nothing matched.
type OrganizationUsage struct {
	Organization Organization
	Overview     map[string]OverviewCounters
	RankedItems  map[Category][]ItemUsageRecord
}

// OverviewTotal sums every overview counter across all categories
func (u OrganizationUsage) OverviewTotal() OverviewCounters {
	var total OverviewCounters
	for _, c := range u.Overview {
		total.Add(c)
	}
	return total
}

// OverviewCategories returns the overview keys with vocabulary categories
// first (in vocabulary order) followed by any others alphabetically
func (u OrganizationUsage) OverviewCategories() []string {
	keys := make([]string, 0, len(u.Overview))
	seen := make(map[string]bool, len(u.Overview))
	for _, c := range Categories {
		if _, ok := u.Overview[string(c)]; ok {
			keys = append(keys, string(c))
			seen[string(c)] = true
		}
	}
	var extra []string
	for k := range u.Overview {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// CategorySet is the set of categories with consortium-wide usage
type CategorySet map[Category]struct{}

// Add inserts c
func (s CategorySet) Add(c Category) {
	s[c] = struct{}{}
}

// Has reports whether c is in the set
func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Ordered returns the members in vocabulary order; unknown categories follow alphabetically
func (s CategorySet) Ordered() []Category {
	out := make([]Category, 0, len(s))
	known := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		known[c] = true
		if s.Has(c) {
			out = append(out, c)
		}
	}
	var extra []string
	for c := range s {
		if !known[c] {
			extra = append(extra, string(c))
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		out = append(out, Category(c))
	}
	return out
}
