package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jgoulah/usagereports/internal/config"
	"github.com/jgoulah/usagereports/internal/report"
	"github.com/jgoulah/usagereports/internal/scraper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	harvestAutoEnable bool
	harvestVisible    bool
	harvestMFA        string
	harvestOutput     string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Report SUSHI harvest schedule status",
	Long: `Logs into the LibInsight admin console and reads the SUSHI harvest schedules of
every configured dataset/platform pair. The status of each schedule is written to
a timestamped CSV file. With --auto-enable, disabled schedules are switched back on.

A saved console session is reused when it is still valid; otherwise LA_USER and
LA_PASS are used together with an MFA code.`,
	RunE: runHarvest,
}

func init() {
	harvestCmd.Flags().BoolVar(&harvestAutoEnable, "auto-enable", false, "Re-enable disabled harvest schedules")
	harvestCmd.Flags().BoolVar(&harvestVisible, "visible", false, "Show browser window (for debugging)")
	harvestCmd.Flags().StringVar(&harvestMFA, "mfa", "", "MFA code (prompted when needed and not given)")
	harvestCmd.Flags().StringVar(&harvestOutput, "output", "", "Output directory (default from config, then ./output)")
	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("LibInsight SUSHI Harvest Status Tracker")
	fmt.Println(strings.Repeat("=", 70))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if len(cfg.Console.Cookies) == 0 && (cfg.Console.Username == "" || cfg.Console.Password == "") {
		return fmt.Errorf("%w: set %s and %s in .env, or run 'usagereports login'",
			config.ErrMissingCredentials, config.EnvConsoleUser, config.EnvConsolePassword)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := scraper.NewConsoleScraper(scraper.ConsoleOptionsFromConfig(cfg, harvestVisible, log))
	if err := console.Start(ctx, cfg.Console.Cookies); err != nil {
		return err
	}
	defer console.Close()

	if err := ensureSession(console, cfg, log); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("Extracting SUSHI Harvest Data")
	fmt.Println(strings.Repeat("=", 70))

	tracker := &scraper.Tracker{
		Console:    console,
		AutoEnable: harvestAutoEnable,
		Pause:      config.DefaultHarvestDelay,
		Logger:     log,
	}
	schedules, trackErr := tracker.Track(ctx, cfg.GetHarvestChecks())

	dir := harvestOutput
	if dir == "" {
		dir = cfg.GetHarvestDir()
	}
	path, err := report.WriteHarvest(dir, schedules, time.Now())
	if err != nil {
		return fmt.Errorf("saving harvest status: %w", err)
	}
	fmt.Printf("\n✓ Data saved to %s (%d records)\n\n", path, len(schedules))

	if len(schedules) > 0 {
		report.RenderHarvest(os.Stdout, schedules)
	}
	printHarvestSummary(os.Stdout, report.SummarizeHarvest(schedules), harvestAutoEnable)

	if trackErr != nil {
		return fmt.Errorf("harvest check interrupted: %w", trackErr)
	}
	return nil
}

// ensureSession reuses a still-valid saved session, or logs in and saves
// the fresh session cookies
func ensureSession(console *scraper.ConsoleScraper, cfg *config.Config, log *zap.Logger) error {
	if len(cfg.Console.Cookies) > 0 {
		valid, err := console.SessionValid()
		if err != nil {
			return err
		}
		if valid {
			fmt.Println("✓ Reusing saved console session")
			return nil
		}
		fmt.Println("⚠ Saved console session has expired")
	}

	code := harvestMFA
	if code == "" {
		var err error
		code, err = promptMFACode(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
	}
	if err := console.Login(code); err != nil {
		return err
	}

	cookies, err := console.Cookies()
	if err != nil {
		log.Warn("could not read session cookies", zap.Error(err))
		return nil
	}
	cfg.Console.Cookies = cookies
	if err := saveConfig(cfg); err != nil {
		fmt.Printf("Warning: Could not save console session: %v\n", err)
	} else {
		fmt.Printf("✓ Saved %d session cookies\n", len(cookies))
	}
	return nil
}

// promptMFACode asks for the authenticator code on out and reads one line from in
func promptMFACode(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Google Authenticator MFA code: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading MFA code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("no MFA code entered")
	}
	return code, nil
}

func printHarvestSummary(w io.Writer, s report.HarvestSummary, autoEnable bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintf(w, "Total schedules processed: %d\n", s.Total)
	fmt.Fprintf(w, "Schedules with errors: %d\n", s.WithErrors)
	fmt.Fprintf(w, "Disabled schedules: %d\n", s.Disabled)

	switch {
	case autoEnable:
		fmt.Fprintf(w, "\n✓ Auto-enable was on: %d schedules enabled, %d still disabled\n", s.AutoEnabled, s.Disabled)
	case s.Disabled > 0:
		fmt.Fprintf(w, "\n⚠ Auto-enable is off: %d schedules remain disabled\n", s.Disabled)
		fmt.Fprintln(w, "  Rerun with --auto-enable to switch them back on")
	}
}
