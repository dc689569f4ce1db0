package scraper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jgoulah/usagereports/pkg/models"
)

// ErrNoScheduleTable is returned when the page holds no harvest schedule table
var ErrNoScheduleTable = errors.New("schedule table not found")

const (
	scheduleTableSelector = "#schedule-table"
	scheduleColumns       = 7
)

// ParseScheduleTable reads the SUSHI harvest schedule rows out of the
// console's schedule table. Rows with fewer than seven cells are skipped.
func ParseScheduleTable(html, library, datasetName string) ([]models.HarvestSchedule, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing schedule page: %w", err)
	}

	table := doc.Find(scheduleTableSelector)
	if table.Length() == 0 {
		return nil, ErrNoScheduleTable
	}

	schedules := []models.HarvestSchedule{}
	table.First().Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < scheduleColumns {
			return
		}
		cell := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}

		lastFetch := cell(5)
		schedules = append(schedules, models.HarvestSchedule{
			Library:        library,
			DatasetName:    datasetName,
			ScheduleID:     cell(0),
			ReportType:     cell(1),
			Vendor:         cell(2),
			Frequency:      cell(3),
			RecurringUntil: cell(4),
			LastFetch:      lastFetch,
			Enabled:        cell(6),
			HasError:       strings.Contains(strings.ToLower(lastFetch), "error"),
		})
	})

	return schedules, nil
}
