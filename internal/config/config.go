package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	APIKeyEnv        = "MERAKI_DASHBOARD_API_KEY"
	DefaultBaseURL   = "https://api.meraki.com/api/v1"
	DefaultRPS       = 5
	DefaultTimeout   = 60 * time.Second
	DefaultNATUplink = "internet1"
	ProviderMeraki   = "meraki"
	ProviderMariaDB  = "mariadb"
	ProviderDryRun   = "dry-run"
)

var (
	ErrMissingAPIKey  = errors.New("dashboard api key is not set")
	ErrMissingOrg     = errors.New("organization name is not set")
	ErrMissingNetwork = errors.New("network name is not set")
	ErrMissingDSN     = errors.New("database dsn is not set")
	ErrNoACLTypes     = errors.New("no outbound or nat acl names configured")
)

type Dashboard struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	OrgName           string        `yaml:"org_name"`
	NetworkName       string        `yaml:"network_name"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ACLTypes names the ACLs feeding the NAT and outbound rule streams.
type ACLTypes struct {
	NATSet      []string `yaml:"nat_set"`
	OutboundSet []string `yaml:"outbound_set"`
}

type Database struct {
	DSN string `yaml:"dsn"`
}

type Config struct {
	Dashboard      Dashboard `yaml:"dashboard"`
	ACLTypes       ACLTypes  `yaml:"acl_types"`
	AnyTranslation bool      `yaml:"any_translation"`
	NATUplink      string    `yaml:"nat_uplink"`
	Database       Database  `yaml:"database"`
}

// Load reads a YAML configuration file and applies defaults and the API key
// environment override.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.Dashboard.APIKey = key
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Dashboard.BaseURL == "" {
		c.Dashboard.BaseURL = DefaultBaseURL
	}
	if c.Dashboard.RequestsPerSecond <= 0 {
		c.Dashboard.RequestsPerSecond = DefaultRPS
	}
	if c.Dashboard.Timeout <= 0 {
		c.Dashboard.Timeout = DefaultTimeout
	}
	if c.NATUplink == "" {
		c.NATUplink = DefaultNATUplink
	}
}

// Validate checks the settings the given provider needs.
func (c *Config) Validate(provider string) error {
	var errs []error
	if len(c.ACLTypes.NATSet) == 0 && len(c.ACLTypes.OutboundSet) == 0 {
		errs = append(errs, ErrNoACLTypes)
	}
	if c.Dashboard.OrgName == "" {
		errs = append(errs, ErrMissingOrg)
	}
	if c.Dashboard.NetworkName == "" {
		errs = append(errs, ErrMissingNetwork)
	}
	switch provider {
	case ProviderMeraki:
		if c.Dashboard.APIKey == "" {
			errs = append(errs, ErrMissingAPIKey)
		}
	case ProviderMariaDB:
		if c.Database.DSN == "" {
			errs = append(errs, ErrMissingDSN)
		}
	case ProviderDryRun:
	default:
		errs = append(errs, fmt.Errorf("unknown provider: %s", provider))
	}
	return errors.Join(errs...)
}
