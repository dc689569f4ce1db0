package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/pkg/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL    = "https://acaweb.libinsight.com/v1.0"
	DefaultTokenURL      = DefaultAPIBaseURL + "/oauth/token"
	DefaultLibAppsURL    = "https://acaweb.libapps.com"
	DefaultLibInsightURL = "https://acaweb.libinsight.com"
	DefaultLibAppsSiteID = "25079"

	DefaultOutputDir     = "usage_reports"
	DefaultConsortiumDir = "consortium_summaries"
	DefaultMappingFile   = "libinsight-platforms.csv"
	DefaultHarvestDir    = "output"

	DefaultItemDelay         = 100 * time.Millisecond
	DefaultOrganizationDelay = 500 * time.Millisecond
	DefaultHarvestDelay      = time.Second
	DefaultTimeout           = 30 * time.Second

	DefaultTopicPrefix = "usagereports"
)

// Environment variables that supply credentials when the config file leaves them empty
const (
	EnvAPIKey          = "LI_KEY"
	EnvAPISecret       = "LI_SECRET"
	EnvConsoleUser     = "LA_USER"
	EnvConsolePassword = "LA_PASS"
)

// ErrMissingCredentials is returned when API credentials are not configured
var ErrMissingCredentials = errors.New("missing API credentials")

// Config holds the application configuration
type Config struct {
	Period            PeriodConfig     `yaml:"period,omitempty"`
	MappingFile       string           `yaml:"mapping_file,omitempty"`   // fallback: libinsight-platforms.csv
	OutputDir         string           `yaml:"output_dir,omitempty"`     // fallback: usage_reports
	ConsortiumDir     string           `yaml:"consortium_dir,omitempty"` // fallback: consortium_summaries
	TopN              int              `yaml:"top_n,omitempty"`          // fallback: 100
	ItemDelay         time.Duration    `yaml:"item_delay,omitempty"`
	OrganizationDelay time.Duration    `yaml:"organization_delay,omitempty"`
	API               APIConfig        `yaml:"api"`
	Datasets          []models.Dataset `yaml:"datasets,omitempty"`
	Console           ConsoleConfig    `yaml:"console"`
	HarvestChecks     []HarvestCheck   `yaml:"harvest_checks,omitempty"`
	HarvestDir        string           `yaml:"harvest_dir,omitempty"` // fallback: output
	Database          DatabaseConfig   `yaml:"database,omitempty"`
	MQTT              MQTTConfig       `yaml:"mqtt,omitempty"`
	Log               LogConfig        `yaml:"log,omitempty"`
}

// PeriodConfig is an explicit reporting window. Dates use YYYY-MM-DD.
type PeriodConfig struct {
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`
	Label string `yaml:"label,omitempty"`
}

// APIConfig holds the reporting API endpoint and client credentials
type APIConfig struct {
	BaseURL  string        `yaml:"base_url,omitempty"`
	TokenURL string        `yaml:"token_url,omitempty"`
	Key      string        `yaml:"key,omitempty"`
	Secret   string        `yaml:"secret,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// ConsoleConfig holds the admin console login and saved session
type ConsoleConfig struct {
	LibAppsURL    string        `yaml:"libapps_url,omitempty"`
	LibInsightURL string        `yaml:"libinsight_url,omitempty"`
	SiteID        string        `yaml:"site_id,omitempty"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	Cookies       []Cookie      `yaml:"cookies,omitempty"`
}

// HarvestCheck is one platform whose SUSHI harvest schedule is inspected
type HarvestCheck struct {
	DatasetID   string `yaml:"dataset_id"`
	PlatformID  string `yaml:"platform_id"`
	DatasetName string `yaml:"dataset_name"`
	Library     string `yaml:"library"`
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `yaml:"name"`
	Value    string  `yaml:"value"`
	Domain   string  `yaml:"domain"`
	Path     string  `yaml:"path"`
	Expires  float64 `yaml:"expires,omitempty"`
	HTTPOnly bool    `yaml:"httpOnly,omitempty"`
	Secure   bool    `yaml:"secure,omitempty"`
	SameSite string  `yaml:"sameSite,omitempty"`
}

// DatabaseConfig enables the sqlite export sink
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // e.g., "data/usage.db"
}

// MQTTConfig holds MQTT broker configuration for publishing consortium summaries
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g., "tcp://broker.local:1883"
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // console or json
	Dir    string `yaml:"dir,omitempty"`    // when set, also log to a timestamped file here
}

// DefaultDatasets are the datasets reported on when none are configured
var DefaultDatasets = []models.Dataset{
	{ID: "38772", Name: "JSTOR", Abbrev: "jstor", ReportType: "Title Master Report"},
	{ID: "39017", Name: "Alexander Street", Abbrev: "asp", ReportType: "Database Master Report"},
	{ID: "37166", Name: "Newsbank", Abbrev: "newsbank", ReportType: "Database Master Report"},
	{ID: "38993", Name: "Oxford Grove", Abbrev: "grove", ReportType: "Title Master Report"},
	{ID: "40156", Name: "Bloomsbury", Abbrev: "bloomsbury", ReportType: "Title Master Report"},
}

// DefaultHarvestChecks are the platforms inspected by the harvest command when none are configured
var DefaultHarvestChecks = []HarvestCheck{
	{DatasetID: "38772", PlatformID: "151", DatasetName: "aca JSTOR", Library: "Alice Lloyd College"},
	{DatasetID: "38772", PlatformID: "152", DatasetName: "aca JSTOR", Library: "Berea College"},
	{DatasetID: "38993", PlatformID: "196", DatasetName: "aca Oxford Grove", Library: "Alice Lloyd College"},
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// LoadEnv reads envFile (if present) into the process environment and fills
// any empty credentials from it. Variables already set in the environment win
// over the file.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(os.Getenv(key))
		}
	}
	fill(&c.API.Key, EnvAPIKey)
	fill(&c.API.Secret, EnvAPISecret)
	fill(&c.Console.Username, EnvConsoleUser)
	fill(&c.Console.Password, EnvConsolePassword)
	return nil
}

// ValidateAPICredentials returns ErrMissingCredentials naming whatever is absent
func (c *Config) ValidateAPICredentials() error {
	var missing []string
	if c.API.Key == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.API.Secret == "" {
		missing = append(missing, EnvAPISecret)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s in the environment, .env or config file", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// GetTopN returns the ranked list cap with a default of 100
func (c *Config) GetTopN() int {
	if c.TopN <= 0 {
		return aggregate.DefaultTopN
	}
	return c.TopN
}

// GetItemDelay returns the pause between category requests
func (c *Config) GetItemDelay() time.Duration {
	if c.ItemDelay <= 0 {
		return DefaultItemDelay
	}
	return c.ItemDelay
}

// GetOrganizationDelay returns the pause between organizations
func (c *Config) GetOrganizationDelay() time.Duration {
	if c.OrganizationDelay <= 0 {
		return DefaultOrganizationDelay
	}
	return c.OrganizationDelay
}

func (c *Config) GetOutputDir() string {
	if c.OutputDir == "" {
		return DefaultOutputDir
	}
	return c.OutputDir
}

func (c *Config) GetConsortiumDir() string {
	if c.ConsortiumDir == "" {
		return DefaultConsortiumDir
	}
	return c.ConsortiumDir
}

func (c *Config) GetMappingFile() string {
	if c.MappingFile == "" {
		return DefaultMappingFile
	}
	return c.MappingFile
}

func (c *Config) GetHarvestChecks() []HarvestCheck {
	if len(c.HarvestChecks) == 0 {
		return append([]HarvestCheck(nil), DefaultHarvestChecks...)
	}
	return append([]HarvestCheck(nil), c.HarvestChecks...)
}

func (c *Config) GetHarvestDir() string {
	if c.HarvestDir == "" {
		return DefaultHarvestDir
	}
	return c.HarvestDir
}

// GetAPIBaseURL returns the reporting API base without a trailing slash
func (c *Config) GetAPIBaseURL() string {
	if c.API.BaseURL == "" {
		return DefaultAPIBaseURL
	}
	return strings.TrimRight(c.API.BaseURL, "/")
}

// GetTokenURL returns the OAuth token endpoint, derived from the base URL when unset
func (c *Config) GetTokenURL() string {
	if c.API.TokenURL != "" {
		return c.API.TokenURL
	}
	return c.GetAPIBaseURL() + "/oauth/token"
}

func (c *Config) GetAPITimeout() time.Duration {
	if c.API.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.API.Timeout
}

func (c *Config) GetLibAppsURL() string {
	if c.Console.LibAppsURL == "" {
		return DefaultLibAppsURL
	}
	return strings.TrimRight(c.Console.LibAppsURL, "/")
}

func (c *Config) GetLibInsightURL() string {
	if c.Console.LibInsightURL == "" {
		return DefaultLibInsightURL
	}
	return strings.TrimRight(c.Console.LibInsightURL, "/")
}

func (c *Config) GetSiteID() string {
	if c.Console.SiteID == "" {
		return DefaultLibAppsSiteID
	}
	return c.Console.SiteID
}

func (c *Config) GetConsoleTimeout() time.Duration {
	if c.Console.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Console.Timeout
}

// GetTopicPrefix returns the MQTT topic prefix with a default of "usagereports"
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimRight(c.MQTT.TopicPrefix, "/")
}

// GetDatasets returns the configured datasets, or the defaults when none are set
func (c *Config) GetDatasets() []models.Dataset {
	if len(c.Datasets) == 0 {
		return append([]models.Dataset(nil), DefaultDatasets...)
	}
	return append([]models.Dataset(nil), c.Datasets...)
}

// SelectDatasets filters the configured datasets by abbreviation or id. An
// empty selection returns all of them; an unknown name is an error.
func (c *Config) SelectDatasets(names []string) ([]models.Dataset, error) {
	all := c.GetDatasets()
	if len(names) == 0 {
		return all, nil
	}

	var out []models.Dataset
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		found := false
		for _, d := range all {
			if strings.EqualFold(d.Abbrev, name) || d.ID == name {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown dataset: %s", name)
		}
	}
	return out, nil
}

// GetPeriod returns the configured reporting window, or the fiscal year
// containing now when none is configured
func (c *Config) GetPeriod(now time.Time) (models.Period, error) {
	if c.Period.Start == "" && c.Period.End == "" {
		p := FiscalYear(now)
		if c.Period.Label != "" {
			p.Label = c.Period.Label
		}
		return p, nil
	}
	if c.Period.Start == "" || c.Period.End == "" {
		return models.Period{}, fmt.Errorf("period needs both start and end")
	}

	start, err := time.Parse("2006-01-02", c.Period.Start)
	if err != nil {
		return models.Period{}, fmt.Errorf("parsing period start: %w", err)
	}
	end, err := time.Parse("2006-01-02", c.Period.End)
	if err != nil {
		return models.Period{}, fmt.Errorf("parsing period end: %w", err)
	}
	if end.Before(start) {
		return models.Period{}, fmt.Errorf("period end %s is before start %s", c.Period.End, c.Period.Start)
	}

	label := c.Period.Label
	if label == "" {
		label = fmt.Sprintf("%02d%02d", start.Year()%100, end.Year()%100)
	}
	return models.Period{Start: start, End: end, Label: label}, nil
}

// FiscalYear returns the July-June fiscal year containing t
func FiscalYear(t time.Time) models.Period {
	year := t.Year()
	if t.Month() < time.July {
		year--
	}
	return models.Period{
		Start: time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year+1, time.June, 30, 0, 0, 0, 0, time.UTC),
		Label: fmt.Sprintf("%02d%02d", year%100, (year+1)%100),
	}
}

// EngineSettings returns the immutable engine configuration for one run
func (c *Config) EngineSettings(mode aggregate.Mode, now time.Time) (aggregate.Settings, error) {
	period, err := c.GetPeriod(now)
	if err != nil {
		return aggregate.Settings{}, err
	}
	return aggregate.Settings{
		Period:            period,
		Categories:        append([]models.Category(nil), models.Categories...),
		TopN:              c.GetTopN(),
		SortMetric:        aggregate.DefaultSortMetric,
		ItemDelay:         c.GetItemDelay(),
		OrganizationDelay: c.GetOrganizationDelay(),
		Mode:              mode,
	}, nil
}
