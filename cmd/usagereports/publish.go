package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/usagereports/internal/publisher"
	"github.com/spf13/cobra"
)

var publishDB string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored consortium summaries over MQTT",
	Long: `Reads consortium summary rows stored by 'run --db' that have not been published yet
and publishes each one as a retained MQTT message, then marks it published.`,
	RunE: runPublishStored,
}

func init() {
	publishCmd.Flags().StringVar(&publishDB, "db", "", "database file (default from config, then ./"+defaultDBPath+")")
	rootCmd.AddCommand(publishCmd)
}

func runPublishStored(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDB(resolveDBPath(publishDB, cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	pub, err := publisher.New(cfg.MQTT, cfg.GetTopicPrefix(), log)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	published, err := pub.PublishStored(cmd.Context(), db)
	if err != nil {
		return fmt.Errorf("publishing after %d rows: %w", published, err)
	}

	if published == 0 {
		fmt.Println("No unpublished summary rows found")
		return nil
	}
	fmt.Printf("✓ Published %d summary rows under %s/\n", published, cfg.GetTopicPrefix())
	return nil
}
