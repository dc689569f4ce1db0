package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jgoulah/usagereports/internal/config"
	"github.com/jgoulah/usagereports/pkg/models"
)

// ErrLoginFailed is returned when the console still shows the login page
// after credentials and MFA code were submitted
var ErrLoginFailed = errors.New("console login failed")

const (
	sushiSectionLabel  = "Schedule Future SUSHI Harvesting"
	defaultWaitTimeout = 10 * time.Second
)

// ConsoleOptions configures a ConsoleScraper
type ConsoleOptions struct {
	LibAppsURL    string
	LibInsightURL string
	SiteID        string
	Username      string
	Password      string
	Visible       bool
	WaitTimeout   time.Duration // per element wait, 10s when zero
	Logger        *zap.Logger
}

// ConsoleOptionsFromConfig builds scraper options from the loaded config
func ConsoleOptionsFromConfig(cfg *config.Config, visible bool, log *zap.Logger) ConsoleOptions {
	return ConsoleOptions{
		LibAppsURL:    cfg.GetLibAppsURL(),
		LibInsightURL: cfg.GetLibInsightURL(),
		SiteID:        cfg.GetSiteID(),
		Username:      cfg.Console.Username,
		Password:      cfg.Console.Password,
		Visible:       visible,
		WaitTimeout:   cfg.GetConsoleTimeout(),
		Logger:        log,
	}
}

// ConsoleScraper drives the admin console in a real browser
type ConsoleScraper struct {
	opts   ConsoleOptions
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewConsoleScraper creates a scraper. Start must be called before use.
func NewConsoleScraper(opts ConsoleOptions) *ConsoleScraper {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	return &ConsoleScraper{
		opts:  opts,
		log:   log,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start launches the browser and restores any saved session cookies
func (s *ConsoleScraper) Start(ctx context.Context, cookies []config.Cookie) error {
	browserCtx, cancel := NewBrowser(ctx, s.opts.Visible)

	// Launch the browser before touching cookies
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return fmt.Errorf("starting browser: %w", err)
	}
	if err := SetCookies(browserCtx, cookies); err != nil {
		cancel()
		return err
	}

	s.ctx = browserCtx
	s.cancel = cancel
	return nil
}

// Close shuts the browser down
func (s *ConsoleScraper) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// LoginURL is the console login page that lands on the admin welcome page
func LoginURL(libAppsURL, siteID string) string {
	q := url.Values{}
	q.Set("site_id", siteID)
	q.Set("target", "admin/welcome")
	return fmt.Sprintf("%s/libapps/login.php?%s", strings.TrimRight(libAppsURL, "/"), q.Encode())
}

// ScheduleURL is the platform "add data" page that holds the SUSHI schedule table
func ScheduleURL(libInsightURL, datasetID, platformID string) string {
	return fmt.Sprintf("%s/admin/eresources/%s/platforms/%s/add",
		strings.TrimRight(libInsightURL, "/"), url.PathEscape(datasetID), url.PathEscape(platformID))
}

// OnLoginPage reports whether location is the console login page
func OnLoginPage(location string) bool {
	return strings.Contains(strings.ToLower(location), "login")
}

// SessionValid reports whether the restored cookies still hold a live
// session. A live session is redirected away from the login page.
func (s *ConsoleScraper) SessionValid() (bool, error) {
	var location string
	if err := chromedp.Run(s.ctx,
		chromedp.Navigate(LoginURL(s.opts.LibAppsURL, s.opts.SiteID)),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&location),
	); err != nil {
		return false, fmt.Errorf("checking session: %w", err)
	}
	return !OnLoginPage(location), nil
}

// Login signs in with username, password and the MFA code
func (s *ConsoleScraper) Login(mfaCode string) error {
	if s.opts.Username == "" || s.opts.Password == "" {
		return fmt.Errorf("%w: set %s and %s", config.ErrMissingCredentials, config.EnvConsoleUser, config.EnvConsolePassword)
	}

	fmt.Println("Logging into the admin console...")
	if err := chromedp.Run(s.ctx,
		chromedp.Navigate(LoginURL(s.opts.LibAppsURL, s.opts.SiteID)),
		chromedp.WaitVisible(`#s-libapps-email`, chromedp.ByQuery),
		chromedp.SendKeys(`#s-libapps-email`, s.opts.Username, chromedp.ByQuery),
		chromedp.SendKeys(`#s-libapps-password`, s.opts.Password, chromedp.ByQuery),
		chromedp.Click(`#s-libapps-login-button`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}
	fmt.Println("  ✓ Username and password entered")

	if err := chromedp.Run(s.ctx,
		chromedp.WaitVisible(`#s-libapps-code`, chromedp.ByQuery),
		chromedp.SendKeys(`#s-libapps-code`, mfaCode, chromedp.ByQuery),
		chromedp.Click(`#s-libapps-mfa-button`, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
	); err != nil {
		return fmt.Errorf("submitting MFA code: %w", err)
	}
	fmt.Println("  ✓ MFA code entered")

	var location string
	if err := chromedp.Run(s.ctx, chromedp.Location(&location)); err != nil {
		return fmt.Errorf("reading location: %w", err)
	}
	s.log.Debug("location after login", zap.String("url", location))
	if OnLoginPage(location) {
		return fmt.Errorf("%w: still on %s (expired MFA code or wrong credentials)", ErrLoginFailed, location)
	}

	fmt.Println("✓ Login successful")
	return nil
}

// Cookies returns the browser's current session cookies
func (s *ConsoleScraper) Cookies() ([]config.Cookie, error) {
	return ExtractCookies(s.ctx)
}

const expandSectionJS = `(() => {
	const b = Array.from(document.querySelectorAll('button')).find(e => e.textContent.includes(%q));
	if (!b || !b.className.includes('collapsed')) return false;
	b.click();
	return true;
})()`

// Check reads the harvest schedules of one platform. A page without a
// schedule table yields no schedules.
func (s *ConsoleScraper) Check(ctx context.Context, check config.HarvestCheck) ([]models.HarvestSchedule, error) {
	page := ScheduleURL(s.opts.LibInsightURL, check.DatasetID, check.PlatformID)

	var expanded bool
	if err := chromedp.Run(s.ctx,
		chromedp.Navigate(page),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(fmt.Sprintf(expandSectionJS, sushiSectionLabel), &expanded),
	); err != nil {
		return nil, fmt.Errorf("opening %s: %w", page, err)
	}
	if expanded {
		s.log.Debug("expanded SUSHI section", zap.String("url", page))
		if err := s.sleep(ctx, 2*time.Second); err != nil {
			return nil, err
		}
	}

	waitCtx, cancel := context.WithTimeout(s.ctx, s.opts.WaitTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(waitCtx,
		chromedp.WaitReady(`#schedule-table tbody tr`, chromedp.ByQuery),
		chromedp.OuterHTML(scheduleTableSelector, &html, chromedp.ByQuery),
	); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && s.ctx.Err() == nil {
			s.log.Warn("no SUSHI schedule table on page", zap.String("url", page))
			return []models.HarvestSchedule{}, nil
		}
		return nil, fmt.Errorf("reading schedule table: %w", err)
	}

	return ParseScheduleTable(html, check.Library, check.DatasetName)
}

const radioCheckedJS = `(() => {
	const r = document.evaluate("//input[@type='radio' and @value='1']", document, null,
		XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	return r ? r.checked : false;
})()`

func editXPath(scheduleID string) (string, error) {
	if scheduleID == "" || strings.ContainsAny(scheduleID, `'"`) {
		return "", fmt.Errorf("invalid schedule id %q", scheduleID)
	}
	return fmt.Sprintf("//tr[td[text()='%s']]//a[@title='Edit']", scheduleID), nil
}

// EnableSchedule opens the schedule's edit dialog and turns it on. A
// schedule that is already enabled is left as is.
func (s *ConsoleScraper) EnableSchedule(ctx context.Context, scheduleID string) error {
	edit, err := editXPath(scheduleID)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(s.ctx, s.opts.WaitTimeout)
	defer cancel()

	var checked bool
	if err := chromedp.Run(waitCtx,
		chromedp.Click(edit, chromedp.BySearch),
		chromedp.Sleep(2*time.Second),
		chromedp.WaitVisible(`div.modal-content`, chromedp.ByQuery),
		chromedp.Evaluate(radioCheckedJS, &checked),
	); err != nil {
		return fmt.Errorf("opening edit dialog for schedule %s: %w", scheduleID, err)
	}

	if checked {
		s.log.Info("schedule already enabled", zap.String("schedule", scheduleID))
		if err := chromedp.Run(waitCtx, chromedp.Click(`//button[text()='Close']`, chromedp.BySearch)); err != nil {
			return fmt.Errorf("closing edit dialog: %w", err)
		}
		return s.sleep(ctx, time.Second)
	}

	if err := chromedp.Run(waitCtx,
		chromedp.Click(`//input[@type='radio' and @value='1']`, chromedp.BySearch),
		chromedp.Sleep(time.Second),
		chromedp.Click(`//button[text()='Save']`, chromedp.BySearch),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return fmt.Errorf("saving schedule %s: %w", scheduleID, err)
	}

	s.log.Info("schedule enabled", zap.String("schedule", scheduleID))
	return nil
}

// SchedulePageHTML returns the full HTML of a platform's schedule page with
// the SUSHI section expanded
func (s *ConsoleScraper) SchedulePageHTML(datasetID, platformID string) (string, error) {
	page := ScheduleURL(s.opts.LibInsightURL, datasetID, platformID)

	var expanded bool
	var html string
	if err := chromedp.Run(s.ctx,
		chromedp.Navigate(page),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(fmt.Sprintf(expandSectionJS, sushiSectionLabel), &expanded),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("reading %s: %w", page, err)
	}
	return html, nil
}
