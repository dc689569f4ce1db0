package aggregate

import (
	"fmt"

	"github.com/jgoulah/usagereports/pkg/models"
)

const (
	TotalLibraryLabel  = "TOTAL"
	TotalPlatformLabel = "All Platforms"
)

// Summarize produces one row per organization with every overview counter
// summed across its categories, plus a TOTAL row. It does not depend on the
// consortium category set.
func Summarize(dataset models.Dataset, usages []models.OrganizationUsage) SummaryExport {
	out := SummaryExport{
		Rows: make([]SummaryRow, 0, len(usages)),
		Total: SummaryRow{
			Library:      TotalLibraryLabel,
			PlatformName: TotalPlatformLabel,
		},
	}
	for _, u := range usages {
		row := SummaryRow{
			Organization:     u.Organization.Abbreviation,
			Library:          u.Organization.Name,
			PlatformName:     fmt.Sprintf("%s - %s", u.Organization.Name, dataset.Name),
			OverviewCounters: u.OverviewTotal(),
		}
		out.Rows = append(out.Rows, row)
		out.Total.OverviewCounters.Add(row.OverviewCounters)
	}
	return out
}
