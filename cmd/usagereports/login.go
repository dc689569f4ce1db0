package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/jgoulah/usagereports/internal/scraper"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the admin console and save the session",
	Long: `Opens a browser window for you to login to the LibApps admin console manually
(including the MFA step). After a successful login, press Enter here and the session
cookies will be saved to the config file for the harvest command to reuse.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	loginURL := scraper.LoginURL(cfg.GetLibAppsURL(), cfg.GetSiteID())

	fmt.Println("Opening browser for admin console login...")
	fmt.Println("Please log in manually in the browser window.")
	fmt.Println("Then press Enter here to save...")

	ctx, cancel := scraper.NewBrowser(context.Background(), true)
	defer cancel()

	// Set a longer timeout for user to login
	ctx, cancelTimeout := context.WithTimeout(ctx, 10*time.Minute)
	defer cancelTimeout()

	if err := chromedp.Run(ctx, chromedp.Navigate(loginURL)); err != nil {
		return fmt.Errorf("navigating to login page: %w", err)
	}

	// Wait for user to press Enter
	fmt.Scanln()

	fmt.Println("Extracting cookies...")
	cookies, err := scraper.ExtractCookies(ctx)
	if err != nil {
		return fmt.Errorf("extracting cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies found - make sure you're logged in")
	}

	var location string
	if err := chromedp.Run(ctx, chromedp.Location(&location)); err == nil && scraper.OnLoginPage(location) {
		fmt.Println("⚠ Warning: the browser is still on the login page; the saved session may not work")
	}

	cfg.Console.Cookies = cookies
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("✓ Successfully saved %d cookies for the admin console\n", len(cookies))
	return nil
}
