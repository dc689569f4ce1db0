package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jgoulah/usagereports/internal/report"
	"github.com/jgoulah/usagereports/internal/scraper"
	"github.com/spf13/cobra"
)

var (
	debugVisible bool
	debugOutput  string
)

var debugCmd = &cobra.Command{
	Use:   "debug [dataset_id] [platform_id]",
	Short: "Debug the harvest schedule page using the saved session",
	Long: `Opens a platform's SUSHI schedule page with the saved console session and shows
the schedules the parser finds on it.

Flags:
  --visible    Open visible browser and pause for inspection
  --output     Save the page HTML to this file`,
	Args: cobra.ExactArgs(2),
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().BoolVar(&debugVisible, "visible", false, "Open visible browser and pause")
	debugCmd.Flags().StringVar(&debugOutput, "output", "", "Save HTML to this file")
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	datasetID, platformID := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(cfg.Console.Cookies) == 0 {
		return fmt.Errorf("no console session saved. Run 'usagereports login' first")
	}

	console := scraper.NewConsoleScraper(scraper.ConsoleOptionsFromConfig(cfg, debugVisible, nil))
	if err := console.Start(context.Background(), cfg.Console.Cookies); err != nil {
		return err
	}
	defer console.Close()

	fmt.Printf("Opening %s...\n", scraper.ScheduleURL(cfg.GetLibInsightURL(), datasetID, platformID))
	html, err := console.SchedulePageHTML(datasetID, platformID)
	if err != nil {
		return err
	}

	if debugOutput != "" {
		if err := os.WriteFile(debugOutput, []byte(html), 0644); err != nil {
			return fmt.Errorf("writing HTML: %w", err)
		}
		fmt.Printf("✓ Saved %d bytes of HTML to %s\n", len(html), debugOutput)
	}

	schedules, err := scraper.ParseScheduleTable(html, "-", "dataset "+datasetID)
	switch {
	case errors.Is(err, scraper.ErrNoScheduleTable):
		fmt.Println("⚠ No schedule table on the page (expired session or changed page layout?)")
	case err != nil:
		return err
	case len(schedules) == 0:
		fmt.Println("⚠ Schedule table found but it has no rows yet")
	default:
		fmt.Printf("✓ Found %d schedules\n", len(schedules))
		report.RenderHarvest(os.Stdout, schedules)
	}

	if debugVisible {
		fmt.Println("\nBrowser is open for inspection. Press Enter to close...")
		bufio.NewReader(os.Stdin).ReadString('\n')
	}
	return nil
}
