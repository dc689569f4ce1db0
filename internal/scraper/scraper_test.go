package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/usagereports/internal/config"
	"github.com/jgoulah/usagereports/internal/report"
	"github.com/jgoulah/usagereports/pkg/models"
)

const scheduleHTML = `
<table id="schedule-table" class="table">
  <thead>
    <tr><th>ID</th><th>Report</th><th>Vendor</th><th>Frequency</th><th>Until</th><th>Last Fetch</th><th>Enabled</th><th>Actions</th></tr>
  </thead>
  <tbody>
    <tr>
      <td>1201</td>
      <td> TR_J1 </td>
      <td>JSTOR</td>
      <td>Monthly</td>
      <td>2026-06-30</td>
      <td><span class="text-danger">2025-02-01 ERROR: 3030 No Usage Available</span></td>
      <td>Yes</td>
      <td><a title="Edit" href="#">edit</a></td>
    </tr>
    <tr><td colspan="8">Loading...</td></tr>
    <tr>
      <td>1202</td>
      <td>TR_B1</td>
      <td>JSTOR</td>
      <td>Monthly</td>
      <td>2026-06-30</td>
      <td>2025-02-01 Success</td>
      <td>No</td>
      <td></td>
    </tr>
  </tbody>
</table>`

func TestParseScheduleTable(t *testing.T) {
	got, err := ParseScheduleTable(scheduleHTML, "Alice Lloyd College", "aca JSTOR")
	require.NoError(t, err)

	want := []models.HarvestSchedule{
		{
			Library: "Alice Lloyd College", DatasetName: "aca JSTOR", ScheduleID: "1201", ReportType: "TR_J1",
			Vendor: "JSTOR", Frequency: "Monthly", RecurringUntil: "2026-06-30",
			LastFetch: "2025-02-01 ERROR: 3030 No Usage Available", Enabled: "Yes", HasError: true,
		},
		{
			Library: "Alice Lloyd College", DatasetName: "aca JSTOR", ScheduleID: "1202", ReportType: "TR_B1",
			Vendor: "JSTOR", Frequency: "Monthly", RecurringUntil: "2026-06-30",
			LastFetch: "2025-02-01 Success", Enabled: "No",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseScheduleTable mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScheduleTableEmptyBody(t *testing.T) {
	got, err := ParseScheduleTable(`<table id="schedule-table"><tbody></tbody></table>`, "Berea College", "aca JSTOR")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseScheduleTableMissing(t *testing.T) {
	_, err := ParseScheduleTable(`<div>nothing scheduled</div>`, "Berea College", "aca JSTOR")
	require.ErrorIs(t, err, ErrNoScheduleTable)
}

func TestURLs(t *testing.T) {
	assert.Equal(t,
		"https://acaweb.libapps.com/libapps/login.php?site_id=25079&target=admin%2Fwelcome",
		LoginURL("https://acaweb.libapps.com/", "25079"))
	assert.Equal(t,
		"https://acaweb.libinsight.com/admin/eresources/38772/platforms/151/add",
		ScheduleURL("https://acaweb.libinsight.com", "38772", "151"))

	assert.True(t, OnLoginPage("https://acaweb.libapps.com/libapps/LOGIN.php?site_id=1"))
	assert.False(t, OnLoginPage("https://acaweb.libapps.com/libapps/admin/welcome"))
}

func TestEditXPath(t *testing.T) {
	xp, err := editXPath("1201")
	require.NoError(t, err)
	assert.Equal(t, "//tr[td[text()='1201']]//a[@title='Edit']", xp)

	_, err = editXPath("12'] | //a[")
	require.Error(t, err)
	_, err = editXPath("")
	require.Error(t, err)
}

func TestFromNetworkCookies(t *testing.T) {
	got := fromNetworkCookies([]*network.Cookie{{
		Name: "lasid", Value: "abc", Domain: ".libapps.com", Path: "/",
		Expires: 1767225600, HTTPOnly: true, Secure: true, SameSite: network.CookieSameSiteLax,
	}})
	require.Len(t, got, 1)
	assert.Equal(t, config.Cookie{
		Name: "lasid", Value: "abc", Domain: ".libapps.com", Path: "/",
		Expires: 1767225600, HTTPOnly: true, Secure: true, SameSite: "Lax",
	}, got[0])
}

func TestConsoleOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Console.Username = "admin@example.edu"

	opts := ConsoleOptionsFromConfig(cfg, true, nil)
	assert.Equal(t, config.DefaultLibAppsURL, opts.LibAppsURL)
	assert.Equal(t, config.DefaultLibInsightURL, opts.LibInsightURL)
	assert.Equal(t, "admin@example.edu", opts.Username)
	assert.True(t, opts.Visible)

	s := NewConsoleScraper(ConsoleOptions{})
	assert.Equal(t, defaultWaitTimeout, s.opts.WaitTimeout)
}

func TestLoginRequiresCredentials(t *testing.T) {
	err := NewConsoleScraper(ConsoleOptions{Username: "admin"}).Login("123456")
	require.ErrorIs(t, err, config.ErrMissingCredentials)
}

type fakeConsole struct {
	schedules map[string][]models.HarvestSchedule
	failOn    map[string]error
	enableErr map[string]error
	checked   []string
	enabled   []string
}

func (f *fakeConsole) Check(ctx context.Context, check config.HarvestCheck) ([]models.HarvestSchedule, error) {
	key := check.DatasetID + "/" + check.PlatformID
	f.checked = append(f.checked, key)
	if err := f.failOn[key]; err != nil {
		return nil, err
	}
	return append([]models.HarvestSchedule(nil), f.schedules[key]...), nil
}

func (f *fakeConsole) EnableSchedule(ctx context.Context, scheduleID string) error {
	f.enabled = append(f.enabled, scheduleID)
	return f.enableErr[scheduleID]
}

var trackChecks = []config.HarvestCheck{
	{DatasetID: "38772", PlatformID: "151", DatasetName: "aca JSTOR", Library: "Alice Lloyd College"},
	{DatasetID: "38772", PlatformID: "152", DatasetName: "aca JSTOR", Library: "Berea College"},
	{DatasetID: "38993", PlatformID: "196", DatasetName: "aca Oxford Grove", Library: "Alice Lloyd College"},
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		schedules: map[string][]models.HarvestSchedule{
			"38772/151": {{ScheduleID: "1", Enabled: "Yes"}, {ScheduleID: "2", Enabled: "No"}},
			"38772/152": {{ScheduleID: "3", Enabled: "No", HasError: true, LastFetch: "Error"}},
			"38993/196": {{ScheduleID: "4", Enabled: "yes"}},
		},
		failOn:    map[string]error{},
		enableErr: map[string]error{},
	}
}

func TestTrackCollectsEveryCheck(t *testing.T) {
	console := newFakeConsole()
	var pauses []time.Duration
	tr := &Tracker{Console: console, Pause: time.Second, sleep: func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}}

	got, err := tr.Track(context.Background(), trackChecks)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, []string{"38772/151", "38772/152", "38993/196"}, console.checked)
	assert.Empty(t, console.enabled)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, pauses)
	assert.Equal(t, "No", got[1].Enabled)
}

func TestTrackAutoEnable(t *testing.T) {
	console := newFakeConsole()
	console.enableErr["3"] = errors.New("modal did not open")
	tr := &Tracker{Console: console, AutoEnable: true}

	got, err := tr.Track(context.Background(), trackChecks)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, console.enabled)

	assert.Equal(t, report.AutoEnabledLabel, got[1].Enabled)
	assert.Equal(t, "No", got[2].Enabled)
	assert.Equal(t, report.HarvestSummary{Total: 4, WithErrors: 1, Disabled: 1, AutoEnabled: 1}, report.SummarizeHarvest(got))
}

func TestTrackSkipsFailedCheck(t *testing.T) {
	console := newFakeConsole()
	console.failOn["38772/152"] = errors.New("navigation failed")
	tr := &Tracker{Console: console}

	got, err := tr.Track(context.Background(), trackChecks)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Len(t, console.checked, 3)
}

func TestTrackCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	console := newFakeConsole()
	tr := &Tracker{Console: console, Pause: time.Second, sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}

	got, err := tr.Track(ctx, trackChecks)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"38772/151"}, console.checked)
}
