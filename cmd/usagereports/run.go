package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/internal/libinsight"
	"github.com/jgoulah/usagereports/internal/mapping"
	"github.com/jgoulah/usagereports/internal/publisher"
	"github.com/jgoulah/usagereports/internal/report"
	"github.com/jgoulah/usagereports/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runLibraries  []string
	runDatasetIDs []string
	runReports    string
	runDB         string
	runPublish    bool
	runOutput     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect usage and write the reports",
	Long: `Collects usage for every participating library of each selected dataset and writes
the exports: per-library overviews and top items, the consortium summary and the
consortium merged top items.

Report modes: all (default), overview, top100, summary`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runLibraries, "libraries", nil, "Only these library abbreviations (comma separated)")
	runCmd.Flags().StringSliceVar(&runDatasetIDs, "datasets", nil, "Only these datasets, by abbreviation or id (comma separated)")
	runCmd.Flags().StringVar(&runReports, "reports", "all", "Reports to generate: all, overview, top100, summary")
	runCmd.Flags().StringVar(&runDB, "db", "", "Also store exports in this sqlite database")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "Also publish the consortium summary over MQTT")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Output directory (default from config, then ./usage_reports)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Run started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	mode, err := aggregate.ParseMode(runReports)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))

	if err := cfg.ValidateAPICredentials(); err != nil {
		return err
	}

	datasets, err := cfg.SelectDatasets(runDatasetIDs)
	if err != nil {
		return err
	}

	settings, err := cfg.EngineSettings(mode, time.Now())
	if err != nil {
		return fmt.Errorf("resolving period: %w", err)
	}

	table, err := mapping.Load(cfg.GetMappingFile())
	if err != nil {
		return fmt.Errorf("loading mapping file: %w", err)
	}
	fmt.Printf("✓ Loaded %d mapping rows from %s\n", table.Len(), cfg.GetMappingFile())

	jobs := buildJobs(table, datasets, runLibraries, log)
	if len(jobs) == 0 {
		return fmt.Errorf("no participating libraries for the selected datasets")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := libinsight.New(libinsight.Options{
		BaseURL:  cfg.GetAPIBaseURL(),
		TokenURL: cfg.GetTokenURL(),
		Key:      cfg.API.Key,
		Secret:   cfg.API.Secret,
		Timeout:  cfg.GetAPITimeout(),
		Logger:   log,
	})
	if _, err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	fmt.Println("✓ Authenticated with the LibInsight API")

	outputDir := runOutput
	if outputDir == "" {
		outputDir = cfg.GetOutputDir()
	}
	sinks := report.Multi{
		{Name: "csv", Emitter: report.NewCSVEmitter(outputDir, cfg.GetConsortiumDir(), log)},
	}

	if runDB != "" || cfg.Database.Enabled {
		path := resolveDBPath(runDB, cfg)
		db, err := openDB(path)
		if err != nil {
			return err
		}
		defer db.Close()
		sinks = append(sinks, report.NamedEmitter{Name: "sqlite", Emitter: db.Exporter(runID, log)})
		fmt.Printf("✓ Storing exports in %s\n", path)
	}

	if runPublish || cfg.MQTT.Enabled {
		pub, err := publisher.New(cfg.MQTT, cfg.GetTopicPrefix(), log)
		if err != nil {
			return fmt.Errorf("creating publisher: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, report.NamedEmitter{Name: "mqtt", Emitter: pub})
		fmt.Printf("✓ Publishing summaries under %s/\n", cfg.GetTopicPrefix())
	}

	fmt.Printf("Period %s (%s to %s), reports: %s, datasets: %d\n",
		settings.Period.Label, settings.Period.FromParam(), settings.Period.ToParam(), settings.Mode, len(jobs))

	engine := aggregate.New(client, settings, log)
	outcomes := engine.Run(ctx, jobs, sinks)

	fmt.Println()
	report.RenderOutcomes(os.Stdout, outcomes)
	report.RenderSkips(os.Stdout, outcomes)

	if ctx.Err() != nil {
		return fmt.Errorf("run interrupted after %d of %d datasets", len(outcomes), len(jobs))
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("⚠ %d of %d datasets failed, see the log for details\n", failed, len(outcomes))
	}

	fmt.Printf("✓ Reports written to %s\n", outputDir)
	return nil
}

// buildJobs pairs each dataset with its participating libraries. Datasets
// without any are reported and left out.
func buildJobs(table *mapping.Table, datasets []models.Dataset, libraries []string, log *zap.Logger) []aggregate.Job {
	var jobs []aggregate.Job
	for _, d := range datasets {
		orgs := mapping.FilterLibraries(table.OrganizationsForSource(d.ID), libraries)
		if len(orgs) == 0 {
			log.Warn("no participating libraries", zap.String("dataset", d.Name), zap.String("dataset_id", d.ID))
			fmt.Printf("⚠ No participating libraries for %s, skipping\n", d.Name)
			continue
		}
		jobs = append(jobs, aggregate.Job{Dataset: d, Organizations: orgs})
	}
	return jobs
}
