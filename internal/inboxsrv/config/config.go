// Package config loads and validates the TOML configuration for the inbox
// services. A loaded Config is passed down explicitly; there is no package
// level configuration state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFormatVersion is the current version of the configuration file format
const ConfigFormatVersion = "0.1.0"

// PostgresConfig holds the job queue and commit ledger database connection.
type PostgresConfig struct {
	Host           string `toml:"host" validate:"required"`
	Port           int    `toml:"port" validate:"required,gt=0"`
	DBName         string `toml:"dbname" validate:"required"`
	User           string `toml:"user" validate:"required"`
	Password       string `toml:"password" validate:"required"`
	SSLMode        string `toml:"sslmode" validate:"required"`
	ConnectTimeout string `toml:"connect_timeout" validate:"omitempty,duration"`
}

// DSN returns the database connection string
func (p *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
	if p.ConnectTimeout != "" {
		if d, err := ParseDuration(p.ConnectTimeout); err == nil {
			dsn = fmt.Sprintf("%s connect_timeout=%d", dsn, int(d.Seconds()))
		}
	}
	return dsn
}

// ObjectStoreConfig holds the S3 buckets and prefixes the router and the
// merge flows operate on. All buckets are expected to be in the same region.
type ObjectStoreConfig struct {
	Region   string `toml:"region" validate:"required"`
	Endpoint string `toml:"endpoint"` // custom endpoint for S3-compatible stores
	// Static credentials for S3-compatible stores. Left empty, the client
	// uses the default AWS credential chain.
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	InboxBucket     string `toml:"inbox_bucket" validate:"required"`
	InboxPrefix     string `toml:"inbox_prefix"`
	ReportsBucket   string `toml:"reports_bucket" validate:"required"`
	ReportsPrefix   string `toml:"reports_prefix"`
	GHReportsBucket string `toml:"gh_reports_bucket" validate:"required"`
	RejectedPrefix  string `toml:"rejected_prefix"`
}

// SearchConfig holds the search engine endpoint and index names.
type SearchConfig struct {
	URL       string `toml:"url" validate:"required,url"`
	DevIdx    string `toml:"dev_idx" validate:"required"` // developer profile index
	AuthToken string `toml:"auth_token"`
	Timeout   string `toml:"timeout" validate:"omitempty,duration"`
	UserAgent string `toml:"user_agent"`
}

// GetEndpointURL returns the search engine URL.
func (s *SearchConfig) GetEndpointURL() string {
	return s.URL
}

// GetAuthToken returns the bearer token for the search engine, if any.
func (s *SearchConfig) GetAuthToken() string {
	return s.AuthToken
}

// GetUserAgent returns the user agent for search engine requests.
func (s *SearchConfig) GetUserAgent() string {
	return s.UserAgent
}

// GetTimeout returns the request timeout as time.Duration
func (s *SearchConfig) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 30 * time.Second, nil
	}
	return ParseDuration(s.Timeout)
}

// GetTimeoutOrDefault returns the request timeout as time.Duration
// or panics if the value is invalid
func (s *SearchConfig) GetTimeoutOrDefault() time.Duration {
	duration, err := s.GetTimeout()
	if err != nil {
		panic(fmt.Sprintf("invalid search timeout: %v", err))
	}
	return duration
}

// GitHubConfig holds the GitHub API endpoint used for gist-based login
// validation.
type GitHubConfig struct {
	APIURL    string `toml:"api_url"`
	UserAgent string `toml:"user_agent"`
	Timeout   string `toml:"timeout" validate:"omitempty,duration"`
}

// GetEndpointURL returns the GitHub API URL.
func (g *GitHubConfig) GetEndpointURL() string {
	return g.APIURL
}

// GetAuthToken returns an empty string. Gist reads are unauthenticated.
func (g *GitHubConfig) GetAuthToken() string {
	return ""
}

// GetUserAgent returns the user agent for GitHub API requests.
func (g *GitHubConfig) GetUserAgent() string {
	return g.UserAgent
}

// GetTimeout returns the request timeout as time.Duration
func (g *GitHubConfig) GetTimeout() (time.Duration, error) {
	if g.Timeout == "" {
		return 30 * time.Second, nil
	}
	return ParseDuration(g.Timeout)
}

// GetTimeoutOrDefault returns the request timeout as time.Duration
// or panics if the value is invalid
func (g *GitHubConfig) GetTimeoutOrDefault() time.Duration {
	duration, err := g.GetTimeout()
	if err != nil {
		panic(fmt.Sprintf("invalid github timeout: %v", err))
	}
	return duration
}

// FlowsConfig holds settings for the long-running daemons.
type FlowsConfig struct {
	ListenAddress string `toml:"listen_address"` // localhost ops listener, empty disables
}

// DecisionLogConfig holds the routing decision log settings.
type DecisionLogConfig struct {
	Path string `toml:"path"` // empty disables the decision log
}

// Config holds all configuration parameters for the inbox services
type Config struct {
	// Configuration version
	FormatVersion string `toml:"format_version"` // Version of this configuration file format

	// Database configuration
	Postgres PostgresConfig `toml:"postgres"`

	// Object store configuration
	ObjectStore ObjectStoreConfig `toml:"objectstore"`

	// Search engine configuration
	Search SearchConfig `toml:"search"`

	// GitHub API configuration
	GitHub GitHubConfig `toml:"github"`

	// Daemon configuration
	Flows FlowsConfig `toml:"flows"`

	// Decision log configuration
	DecisionLog DecisionLogConfig `toml:"decision_log"`
}

// ParseDuration parses a duration string in the format "<number><unit>" where unit can be:
// - d: days
// - h: hours
// - m: minutes
// - s: seconds
func ParseDuration(input string) (time.Duration, error) {
	if len(input) < 2 {
		return 0, fmt.Errorf("invalid input format")
	}

	// Extract the unit and the value from the input string
	unit := input[len(input)-1:]
	valueStr := input[:len(input)-1]
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", err)
	}

	// Convert the value to a duration based on the unit
	var duration time.Duration
	switch unit {
	case "d":
		duration = time.Duration(value) * 24 * time.Hour
	case "h":
		duration = time.Duration(value) * time.Hour
	case "m":
		duration = time.Duration(value) * time.Minute
	case "s":
		duration = time.Duration(value) * time.Second
	default:
		return 0, fmt.Errorf("unknown time unit: %s", unit)
	}

	return duration, nil
}

// trimPrefixSlashes strips leading and trailing slashes so prefixes can be
// joined with "/" without doubling separators.
func trimPrefixSlashes(s string) string {
	return strings.Trim(strings.TrimSpace(s), "/")
}

// applyDefaults fills in optional values that have well-known defaults.
func applyDefaults(cfg *Config) {
	cfg.ObjectStore.InboxPrefix = trimPrefixSlashes(cfg.ObjectStore.InboxPrefix)
	if cfg.ObjectStore.InboxPrefix == "" {
		cfg.ObjectStore.InboxPrefix = "queue"
	}
	cfg.ObjectStore.ReportsPrefix = trimPrefixSlashes(cfg.ObjectStore.ReportsPrefix)
	if cfg.ObjectStore.ReportsPrefix == "" {
		cfg.ObjectStore.ReportsPrefix = "reports"
	}
	cfg.ObjectStore.RejectedPrefix = trimPrefixSlashes(cfg.ObjectStore.RejectedPrefix)
	if cfg.ObjectStore.RejectedPrefix == "" {
		cfg.ObjectStore.RejectedPrefix = "rejected"
	}
	if cfg.GitHub.APIURL == "" {
		cfg.GitHub.APIURL = "https://api.github.com"
	}
	if cfg.GitHub.UserAgent == "" {
		cfg.GitHub.UserAgent = "devatlas"
	}
	if cfg.Search.UserAgent == "" {
		cfg.Search.UserAgent = "devatlas"
	}
}

// LoadConfig loads configuration from a file and returns the validated
// configuration. Callers pass the returned Config down explicitly.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	return ParseConfig(content)
}

// ParseConfig parses and validates raw TOML config content. The CLI uses
// this after substituting environment placeholders into the file.
func ParseConfig(content []byte) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	applyDefaults(cfg)

	// Validate the configuration
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return cfg, nil
}
