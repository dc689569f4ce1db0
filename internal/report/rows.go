// Package report turns dataset reports into tabular exports and writes them
// to their destinations.
package report

import (
	"strconv"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/pkg/models"
)

// OverviewHeader is the column layout of an organization overview export
var OverviewHeader = []string{
	"Data Type",
	"Searches Platform",
	"Total Item Investigations",
	"Total Item Requests",
	"Unique Item Investigations",
	"Unique Item Requests",
	"Unique Title Investigations",
	"Unique Title Requests",
}

// TopItemsHeader is the column layout of organization and consortium top-items exports
var TopItemsHeader = []string{
	"Rank",
	"Title",
	"Publisher",
	"ISBN",
	"DOI",
	"Total Item Investigations",
	"Unique Item Investigations",
	"Unique Title Investigations",
	"Total Item Requests",
	"Unique Item Requests",
	"Unique Title Requests",
	"Searches Platform",
	"Searches Regular",
	"Searches Federated",
	"Searches Automated",
	"No License",
	"Limit Exceeded",
}

// SummaryHeader is the column layout of the consortium summary export
var SummaryHeader = []string{
	"Library",
	"Platform Name",
	"Searches Platform",
	"Total Item Investigations",
	"Total Item Requests",
	"Unique Item Investigations",
	"Unique Item Requests",
	"Unique Title Investigations",
	"Unique Title Requests",
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func overviewCounterCells(c models.OverviewCounters) []string {
	return []string{
		itoa(c.SearchesPlatform),
		itoa(c.TotalItemInvestigations),
		itoa(c.TotalItemRequests),
		itoa(c.UniqueItemInvestigations),
		itoa(c.UniqueItemRequests),
		itoa(c.UniqueTitleInvestigations),
		itoa(c.UniqueTitleRequests),
	}
}

func itemCounterCells(c models.ItemCounters) []string {
	return []string{
		itoa(c.TotalItemInvestigations),
		itoa(c.UniqueItemInvestigations),
		itoa(c.UniqueTitleInvestigations),
		itoa(c.TotalItemRequests),
		itoa(c.UniqueItemRequests),
		itoa(c.UniqueTitleRequests),
		itoa(c.SearchesPlatform),
		itoa(c.SearchesRegular),
		itoa(c.SearchesFederated),
		itoa(c.SearchesAutomated),
		itoa(c.NoLicense),
		itoa(c.LimitExceeded),
	}
}

// OverviewRecords returns the data rows of an overview export
func OverviewRecords(exp aggregate.OverviewExport) [][]string {
	out := make([][]string, 0, len(exp.Rows))
	for _, row := range exp.Rows {
		out = append(out, append([]string{row.Category}, overviewCounterCells(row.OverviewCounters)...))
	}
	return out
}

// TopItemsRecords returns the data rows of a top-items export. Ranks start
// at 1; an empty export yields one rank-0 placeholder row.
func TopItemsRecords(exp aggregate.TopItemsExport) [][]string {
	if len(exp.Items) == 0 {
		row := []string{"0", aggregate.NoItemsLabel(exp.Category), "", "", ""}
		return [][]string{append(row, itemCounterCells(models.ItemCounters{})...)}
	}

	out := make([][]string, 0, len(exp.Items))
	for i, it := range exp.Items {
		row := []string{strconv.Itoa(i + 1), it.Title, it.Publisher, it.ISBN, it.DOI}
		out = append(out, append(row, itemCounterCells(it.ItemCounters)...))
	}
	return out
}

// SummaryRecords returns the summary rows followed by the TOTAL row
func SummaryRecords(exp aggregate.SummaryExport) [][]string {
	out := make([][]string, 0, len(exp.Rows)+1)
	for _, row := range exp.Rows {
		out = append(out, summaryRecord(row))
	}
	return append(out, summaryRecord(exp.Total))
}

func summaryRecord(row aggregate.SummaryRow) []string {
	return append([]string{row.Library, row.PlatformName}, overviewCounterCells(row.OverviewCounters)...)
}
