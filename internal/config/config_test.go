package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultOutputDir, cfg.GetOutputDir())
	assert.Equal(t, DefaultConsortiumDir, cfg.GetConsortiumDir())
	assert.Equal(t, DefaultMappingFile, cfg.GetMappingFile())
	assert.Equal(t, 100, cfg.GetTopN())
	assert.Equal(t, 100*time.Millisecond, cfg.GetItemDelay())
	assert.Equal(t, 500*time.Millisecond, cfg.GetOrganizationDelay())
	assert.Equal(t, DefaultAPIBaseURL, cfg.GetAPIBaseURL())
	assert.Equal(t, DefaultTokenURL, cfg.GetTokenURL())
	assert.Equal(t, 30*time.Second, cfg.GetAPITimeout())
	assert.Equal(t, DefaultDatasets, cfg.GetDatasets())
	assert.Equal(t, DefaultHarvestChecks, cfg.GetHarvestChecks())
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
period:
  start: "2023-07-01"
  end: "2024-06-30"
top_n: 25
item_delay: 250ms
organization_delay: 2s
api:
  base_url: http://localhost:9999/v1.0/
  key: abc
  timeout: 5s
datasets:
  - id: "1"
    name: Test Dataset
    abbrev: test
    report_type: Title Master Report
harvest_checks:
  - dataset_id: "38772"
    platform_id: "151"
    dataset_name: JSTOR
    library: Alice Lloyd College
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  topic_prefix: consortium/
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.GetTopN())
	assert.Equal(t, 250*time.Millisecond, cfg.GetItemDelay())
	assert.Equal(t, 2*time.Second, cfg.GetOrganizationDelay())
	assert.Equal(t, "http://localhost:9999/v1.0", cfg.GetAPIBaseURL())
	assert.Equal(t, "http://localhost:9999/v1.0/oauth/token", cfg.GetTokenURL())
	assert.Equal(t, 5*time.Second, cfg.GetAPITimeout())
	assert.Equal(t, "abc", cfg.API.Key)
	assert.Equal(t, "consortium", cfg.GetTopicPrefix())
	assert.True(t, cfg.MQTT.Enabled)

	require.Len(t, cfg.GetDatasets(), 1)
	assert.Equal(t, "# of Titles", cfg.GetDatasets()[0].CountLabel())

	require.Len(t, cfg.HarvestChecks, 1)
	assert.Equal(t, "151", cfg.HarvestChecks[0].PlatformID)

	p, err := cfg.GetPeriod(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "2023-07-01", p.FromParam())
	assert.Equal(t, "2024-06-30", p.ToParam())
	assert.Equal(t, "2324", p.Label)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("top_n: [not a number"), 0600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTripsCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{
		Console: ConsoleConfig{
			Cookies: []Cookie{{Name: "sess", Value: "xyz", Domain: ".libapps.com", Path: "/", Secure: true}},
		},
		ItemDelay: 300 * time.Millisecond,
	}
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Console.Cookies, loaded.Console.Cookies)
	assert.Equal(t, 300*time.Millisecond, loaded.ItemDelay)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvAPISecret, "")
	t.Setenv(EnvConsoleUser, "")
	t.Setenv(EnvConsolePassword, "")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LI_KEY=file-key\nLI_SECRET=file-secret\nLA_USER=me@example.edu\n"), 0600))

	// godotenv does not override variables already present, even when empty,
	// so clear them for the file to take effect
	for _, k := range []string{EnvAPIKey, EnvAPISecret, EnvConsoleUser, EnvConsolePassword} {
		require.NoError(t, os.Unsetenv(k))
	}

	cfg := &Config{API: APIConfig{Secret: "configured-secret"}}
	require.NoError(t, cfg.LoadEnv(envFile))

	assert.Equal(t, "file-key", cfg.API.Key)
	assert.Equal(t, "configured-secret", cfg.API.Secret)
	assert.Equal(t, "me@example.edu", cfg.Console.Username)
	assert.Empty(t, cfg.Console.Password)
	require.NoError(t, cfg.ValidateAPICredentials())
}

func TestLoadEnvMissingFile(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.LoadEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestValidateAPICredentials(t *testing.T) {
	cfg := &Config{API: APIConfig{Key: "k"}}
	err := cfg.ValidateAPICredentials()
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), EnvAPISecret)
	assert.NotContains(t, err.Error(), EnvAPIKey+",")
}

func TestFiscalYear(t *testing.T) {
	tests := []struct {
		now   time.Time
		start string
		end   string
		label string
	}{
		{time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC), "2024-07-01", "2025-06-30", "2425"},
		{time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), "2025-07-01", "2026-06-30", "2526"},
		{time.Date(2025, time.June, 30, 23, 0, 0, 0, time.UTC), "2024-07-01", "2025-06-30", "2425"},
		{time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC), "2099-07-01", "2100-06-30", "9900"},
	}
	for _, tt := range tests {
		p := FiscalYear(tt.now)
		assert.Equal(t, tt.start, p.FromParam(), tt.now)
		assert.Equal(t, tt.end, p.ToParam(), tt.now)
		assert.Equal(t, tt.label, p.Label, tt.now)
	}
}

func TestGetPeriodErrors(t *testing.T) {
	cfg := &Config{Period: PeriodConfig{Start: "2024-07-01"}}
	_, err := cfg.GetPeriod(time.Now())
	require.Error(t, err)

	cfg = &Config{Period: PeriodConfig{Start: "2024-07-01", End: "2024-01-01"}}
	_, err = cfg.GetPeriod(time.Now())
	require.Error(t, err)

	cfg = &Config{Period: PeriodConfig{Start: "July 1", End: "2025-06-30"}}
	_, err = cfg.GetPeriod(time.Now())
	require.Error(t, err)
}

func TestGetPeriodLabelOverride(t *testing.T) {
	cfg := &Config{Period: PeriodConfig{Label: "FY25"}}
	p, err := cfg.GetPeriod(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "FY25", p.Label)
	assert.Equal(t, "2024-07-01", p.FromParam())
}

func TestSelectDatasets(t *testing.T) {
	cfg := &Config{}

	all, err := cfg.SelectDatasets(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(DefaultDatasets))

	got, err := cfg.SelectDatasets([]string{"JSTOR", "37166"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jstor", "newsbank"}, []string{got[0].Abbrev, got[1].Abbrev})

	_, err = cfg.SelectDatasets([]string{"ebsco"})
	require.Error(t, err)
}

func TestEngineSettings(t *testing.T) {
	cfg := &Config{TopN: 10}
	s, err := cfg.EngineSettings(aggregate.ModeItems, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 10, s.TopN)
	assert.Equal(t, aggregate.ModeItems, s.Mode)
	assert.Equal(t, "2425", s.Period.Label)
	assert.Equal(t, models.Categories, s.Categories)
	assert.Equal(t, DefaultItemDelay, s.ItemDelay)
	assert.Equal(t, DefaultOrganizationDelay, s.OrganizationDelay)
}

func TestGetHarvestChecksConfigured(t *testing.T) {
	cfg := &Config{HarvestChecks: []HarvestCheck{{DatasetID: "40156", PlatformID: "301", DatasetName: "aca Bloomsbury", Library: "Berea College"}}}

	checks := cfg.GetHarvestChecks()
	require.Len(t, checks, 1)
	assert.Equal(t, "301", checks[0].PlatformID)

	checks[0].PlatformID = "999"
	assert.Equal(t, "301", cfg.HarvestChecks[0].PlatformID)
}
