package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jgoulah/usagereports/internal/database"
	"github.com/jgoulah/usagereports/internal/report"
	"github.com/spf13/cobra"
)

var (
	listDB      string
	listPeriod  string
	listDataset []string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored consortium summaries",
	Long:  `Displays the consortium summary rows stored by 'run --db' for one reporting period.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listDB, "db", "", "database file (default from config, then ./"+defaultDBPath+")")
	listCmd.Flags().StringVar(&listPeriod, "period", "", "period label, e.g. 2425 (default: the configured or current period)")
	listCmd.Flags().StringSliceVar(&listDataset, "datasets", nil, "Only these datasets, by abbreviation or id")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	label := listPeriod
	if label == "" {
		period, err := cfg.GetPeriod(time.Now())
		if err != nil {
			return fmt.Errorf("resolving period: %w", err)
		}
		label = period.Label
	}

	datasets, err := cfg.SelectDatasets(listDataset)
	if err != nil {
		return err
	}

	db, err := openDB(resolveDBPath(listDB, cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	found := false
	for _, d := range datasets {
		rows, err := db.ListSummary(cmd.Context(), label, d.Abbrev)
		if err != nil {
			return fmt.Errorf("listing %s: %w", d.Name, err)
		}
		if len(rows) == 0 {
			continue
		}
		found = true

		fmt.Printf("\n%s (%s)\n", d.Name, label)
		renderStoredSummary(rows)
	}

	if !found {
		fmt.Printf("No stored summaries for period %s\n", label)
	}
	return nil
}

func renderStoredSummary(rows []database.SummaryRecord) {
	t := report.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"Library", "Platform", "Searches", "Investigations", "Requests", "Unique Requests", "Stored", "Run"})
	for _, r := range rows {
		row := table.Row{r.Library, r.PlatformName, r.SearchesPlatform, r.TotalItemInvestigations,
			r.TotalItemRequests, r.UniqueItemRequests, r.CreatedAt.Local().Format("2006-01-02 15:04"), shortRunID(r.RunID)}
		if r.IsTotal() {
			t.AppendFooter(row)
			continue
		}
		t.AppendRow(row)
	}
	t.Render()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
