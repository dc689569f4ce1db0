package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/pkg/models"
)

// NewTable returns a rounded table writer that renders to w
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// RenderOutcomes prints one line per processed dataset
func RenderOutcomes(w io.Writer, outcomes []aggregate.Outcome) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"Dataset", "Organizations", "Categories", "Consortium Items", "Exports", "Took", "Status"})

	failed := 0
	for _, o := range outcomes {
		took := o.Duration.Round(time.Millisecond)
		if o.Err != nil || o.Report == nil {
			failed++
			status := "failed"
			if o.Err != nil {
				status = "✗ " + o.Err.Error()
			}
			t.AppendRow(table.Row{o.Dataset.Name, "-", "-", "-", "-", took, status})
			continue
		}

		rep := o.Report
		cats := "-"
		if names := rep.ValidCategories.Ordered(); len(names) > 0 {
			parts := make([]string, len(names))
			for i, c := range names {
				parts[i] = string(c)
			}
			cats = strings.Join(parts, ", ")
		}
		items := fmt.Sprintf("%s: %d", rep.Dataset.CountLabel(), rep.ConsortiumItemCount())
		status := "✓"
		if len(rep.Skips) > 0 {
			status = fmt.Sprintf("✓ (%d skipped)", len(rep.Skips))
		}
		t.AppendRow(table.Row{rep.Dataset.Name, len(rep.Summary.Rows), cats, items, rep.ExportCount(), took, status})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "Failed", failed})
	t.Render()
}

// RenderSkips prints the organizations and categories that produced no data.
// Nothing is printed when there are none.
func RenderSkips(w io.Writer, outcomes []aggregate.Outcome) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"Dataset", "Organization", "Category", "Reason"})

	rows := 0
	for _, o := range outcomes {
		if o.Report == nil {
			continue
		}
		for _, s := range o.Report.Skips {
			cat := string(s.Category)
			if cat == "" {
				cat = "-"
			}
			t.AppendRow(table.Row{o.Dataset.Name, s.Organization, cat, s.Reason})
			rows++
		}
	}
	if rows == 0 {
		return
	}
	t.Render()
}

// RenderDatasets prints the configured datasets with their participating organization counts
func RenderDatasets(w io.Writer, datasets []models.Dataset, orgCounts map[string]int) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Abbrev", "Report Type", "Count Column", "Organizations"})
	for _, d := range datasets {
		t.AppendRow(table.Row{d.ID, d.Name, d.Abbrev, d.ReportType, d.CountLabel(), orgCounts[d.ID]})
	}
	t.Render()
}

// RenderHarvest prints the harvest schedules and their status
func RenderHarvest(w io.Writer, schedules []models.HarvestSchedule) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"Library", "Dataset", "Schedule", "Report", "Last Fetch", "Enabled", "Status"})
	for _, s := range schedules {
		status := "✓"
		if s.HasError {
			status = "✗ error"
		}
		lastFetch := s.LastFetch
		if len(lastFetch) > 60 {
			lastFetch = lastFetch[:60] + "..."
		}
		t.AppendRow(table.Row{s.Library, s.DatasetName, s.ScheduleID, s.ReportType, lastFetch, s.Enabled, status})
	}
	t.Render()
}
