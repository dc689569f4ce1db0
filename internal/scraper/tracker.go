package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jgoulah/usagereports/internal/config"
	"github.com/jgoulah/usagereports/internal/report"
	"github.com/jgoulah/usagereports/pkg/models"
)

// Console is the part of the admin console the tracker needs
type Console interface {
	Check(ctx context.Context, check config.HarvestCheck) ([]models.HarvestSchedule, error)
	EnableSchedule(ctx context.Context, scheduleID string) error
}

// Tracker walks the configured harvest checks and collects schedule status
type Tracker struct {
	Console    Console
	AutoEnable bool
	Pause      time.Duration // between checks
	Logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Track inspects every check in order. A failed check is logged and
// skipped; cancellation stops the walk and returns what was collected.
func (t *Tracker) Track(ctx context.Context, checks []config.HarvestCheck) ([]models.HarvestSchedule, error) {
	log := t.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sleep := t.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	all := []models.HarvestSchedule{}
	for i, check := range checks {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		if i > 0 && t.Pause > 0 {
			if err := sleep(ctx, t.Pause); err != nil {
				return all, err
			}
		}

		fmt.Printf("\nProcessing: %s - %s (dataset %s, platform %s)\n", check.Library, check.DatasetName, check.DatasetID, check.PlatformID)
		rows, err := t.Console.Check(ctx, check)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			log.Error("harvest check failed",
				zap.String("dataset", check.DatasetID),
				zap.String("platform", check.PlatformID),
				zap.Error(err))
			fmt.Printf("  ✗ %v\n", err)
			continue
		}
		fmt.Printf("  Found %d SUSHI schedules\n", len(rows))

		for j := range rows {
			row := &rows[j]
			printSchedule(row)
			if !t.AutoEnable || row.IsEnabled() {
				continue
			}
			fmt.Printf("    ⚙ Schedule %s is disabled, enabling...\n", row.ScheduleID)
			if err := t.Console.EnableSchedule(ctx, row.ScheduleID); err != nil {
				log.Warn("enabling schedule failed", zap.String("schedule", row.ScheduleID), zap.Error(err))
				fmt.Printf("    ✗ %v\n", err)
				continue
			}
			row.Enabled = report.AutoEnabledLabel
			fmt.Printf("    ✓ Schedule %s enabled\n", row.ScheduleID)
		}

		all = append(all, rows...)
	}
	return all, nil
}

func printSchedule(row *models.HarvestSchedule) {
	status, enabled := "✓", "✓"
	if row.HasError {
		status = "✗"
	}
	if !row.IsEnabled() {
		enabled = "✗"
	}
	fmt.Printf("    %s Schedule %s: %s - Enabled: %s\n", status, row.ScheduleID, row.ReportType, enabled)
	if row.HasError {
		lastFetch := row.LastFetch
		if len(lastFetch) > 100 {
			lastFetch = lastFetch[:100] + "..."
		}
		fmt.Printf("      Error: %s\n", lastFetch)
	}
}
