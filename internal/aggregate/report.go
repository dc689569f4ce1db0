package aggregate

import "github.com/jgoulah/usagereports/pkg/models"

// Skip reasons that callers may match on
const (
	ReasonNoOverview = "no overview data available"
	ReasonUnscoped   = "ranked items not scoped to organization"
)

// Placeholder labels for exports with nothing to show
const (
	NoOverviewLabel = "No data available"
)

// NoItemsLabel is the title placeholder for an empty top-items export
func NoItemsLabel(cat models.Category) string {
	return "No " + string(cat) + " titles with usage"
}

// Skip records an organization or (organization, category) unit that produced no data
type Skip struct {
	Organization string
	Category     models.Category // empty for organization-level skips
	Reason       string
}

// OverviewRow is one category line of an organization overview
type OverviewRow struct {
	Category string
	models.OverviewCounters
}

// OverviewExport is one organization's overview
type OverviewExport struct {
	Organization models.Organization
	Rows         []OverviewRow
	Placeholder  bool // the organization had no overview data
}

func newOverviewExport(u models.OrganizationUsage) OverviewExport {
	exp := OverviewExport{Organization: u.Organization}
	if len(u.Overview) == 0 {
		exp.Placeholder = true
		exp.Rows = []OverviewRow{{Category: NoOverviewLabel}}
		return exp
	}
	for _, cat := range u.OverviewCategories() {
		exp.Rows = append(exp.Rows, OverviewRow{Category: cat, OverviewCounters: u.Overview[cat]})
	}
	return exp
}

// TopItemsExport is a ranked item list for one category. Organization is nil
// for the consortium merged list.
type TopItemsExport struct {
	Organization *models.Organization
	Category     models.Category
	Items        []models.ItemUsageRecord
	Placeholder  bool // requested, valid dataset-wide, but empty for this organization
}

// SummaryRow is one organization's flat overview total
type SummaryRow struct {
	Organization string // abbreviation; empty on the TOTAL row
	Library      string
	PlatformName string
	models.OverviewCounters
}

// SummaryExport is the consortium summary for a dataset
type SummaryExport struct {
	Rows  []SummaryRow
	Total SummaryRow
}

// DatasetReport is every export produced for one dataset
type DatasetReport struct {
	Dataset         models.Dataset
	Period          models.Period
	Mode            Mode
	TopN            int
	ValidCategories models.CategorySet

	Overviews         []OverviewExport
	OrganizationItems []TopItemsExport
	Summary           SummaryExport
	ConsortiumItems   []TopItemsExport

	Skips []Skip
}

// ExportCount returns the number of exports in the report
func (r *DatasetReport) ExportCount() int {
	return len(r.Overviews) + len(r.OrganizationItems) + 1 + len(r.ConsortiumItems)
}

// ConsortiumItemCount returns the number of distinct items across the merged lists
func (r *DatasetReport) ConsortiumItemCount() int {
	n := 0
	for _, exp := range r.ConsortiumItems {
		n += len(exp.Items)
	}
	return n
}
