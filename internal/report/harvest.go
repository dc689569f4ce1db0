package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jgoulah/usagereports/pkg/models"
)

// AutoEnabledLabel replaces the enabled cell of a schedule enabled during the run
const AutoEnabledLabel = "Yes (Auto-enabled)"

// HarvestHeader is the column layout of the harvest status export
var HarvestHeader = []string{
	"library",
	"dataset_name",
	"schedule_id",
	"report_type",
	"vendor",
	"frequency",
	"recurring_until",
	"last_fetch",
	"enabled",
	"has_error",
}

// HarvestRecords returns one row per schedule
func HarvestRecords(schedules []models.HarvestSchedule) [][]string {
	out := make([][]string, 0, len(schedules))
	for _, s := range schedules {
		hasError := "False"
		if s.HasError {
			hasError = "True"
		}
		out = append(out, []string{
			s.Library,
			s.DatasetName,
			s.ScheduleID,
			s.ReportType,
			s.Vendor,
			s.Frequency,
			s.RecurringUntil,
			s.LastFetch,
			s.Enabled,
			hasError,
		})
	}
	return out
}

// HarvestPath is <dir>/SUSHI_harvest_status_<YYYYMMDD_HHMMSS>.csv
func HarvestPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("SUSHI_harvest_status_%s.csv", now.Format("20060102_150405")))
}

// WriteHarvest writes the harvest status export and returns its path
func WriteHarvest(dir string, schedules []models.HarvestSchedule, now time.Time) (string, error) {
	path := HarvestPath(dir, now)
	if err := WriteCSV(path, HarvestHeader, HarvestRecords(schedules)); err != nil {
		return "", err
	}
	return path, nil
}

// HarvestSummary counts schedules by state
type HarvestSummary struct {
	Total       int
	WithErrors  int
	Disabled    int
	AutoEnabled int
}

// SummarizeHarvest tallies schedules. Auto-enabled schedules count as enabled.
func SummarizeHarvest(schedules []models.HarvestSchedule) HarvestSummary {
	var s HarvestSummary
	for _, h := range schedules {
		s.Total++
		if h.HasError {
			s.WithErrors++
		}
		if strings.EqualFold(h.Enabled, AutoEnabledLabel) {
			s.AutoEnabled++
		}
		if !h.IsEnabled() {
			s.Disabled++
		}
	}
	return s
}
