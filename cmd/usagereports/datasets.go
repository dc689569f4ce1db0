package main

import (
	"fmt"
	"os"

	"github.com/jgoulah/usagereports/internal/mapping"
	"github.com/jgoulah/usagereports/internal/report"
	"github.com/jgoulah/usagereports/pkg/models"
	"github.com/spf13/cobra"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the configured datasets",
	Long: `Displays the datasets a run reports on, with the number of participating
libraries found for each in the mapping file.`,
	RunE: runDatasets,
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

func runDatasets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	datasets := cfg.GetDatasets()
	counts := make(map[string]int, len(datasets))

	table, err := mapping.Load(cfg.GetMappingFile())
	if err != nil {
		fmt.Printf("⚠ %v (library counts unavailable)\n", err)
	} else {
		counts = countOrganizations(table, datasets)
	}

	report.RenderDatasets(os.Stdout, datasets, counts)
	return nil
}

// countOrganizations returns the participating library count keyed by dataset id
func countOrganizations(table *mapping.Table, datasets []models.Dataset) map[string]int {
	counts := make(map[string]int, len(datasets))
	for _, d := range datasets {
		counts[d.ID] = len(table.OrganizationsForSource(d.ID))
	}
	return counts
}
