package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mastodon-exporter/mastodon-exporter/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultFileName      = "mastodon_exporter.yml"
	DefaultHTTPPort      = 9498
	DefaultListenAddress = "127.0.0.1"
	DefaultScrapeTimeout = 10 * time.Second
	DefaultScheme        = "https"
	DefaultUserAgent     = "mastodon-exporter"
)

// Config is the top-level exporter configuration.
type Config struct {
	Server Server       `yaml:"server"`
	Scrape ScrapeConfig `yaml:"scrape"`

	// InstanceInfo lists the instance domains to monitor.
	InstanceInfo []string `yaml:"instance_info"`

	// Accounts lists the accounts to monitor.
	Accounts []Account `yaml:"accounts"`
}

// Server holds the settings of the exporter's own HTTP listener.
type Server struct {
	// HTTPListenPort is the port /metrics is served on.
	HTTPListenPort int `yaml:"http_listen_port"`

	// HTTPListenAddress is the interface to bind. Empty binds all interfaces.
	HTTPListenAddress string `yaml:"http_listen_address"`

	// RuntimeMetrics adds Go runtime and process metrics to /metrics.
	RuntimeMetrics bool `yaml:"runtime_metrics"`
}

// ListenAddr returns the host:port to listen on.
func (s Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.HTTPListenAddress, s.HTTPListenPort)
}

// ScrapeConfig controls outbound requests to Mastodon instances.
type ScrapeConfig struct {
	// Timeout bounds every outbound request, including reading the body.
	Timeout time.Duration `yaml:"timeout"`

	// MaxConcurrency caps in-flight fetches per cycle. 0 means unlimited.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Scheme is https, or http for local development instances.
	Scheme string `yaml:"scheme"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Account is one monitored account: the instance it lives on and its id.
type Account struct {
	Instance string `yaml:"instance"`
	ID       string `yaml:"id"`
}

// UnmarshalYAML accepts either a two-element sequence [instance, id] or a
// mapping with instance and id keys.
func (a *Account) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var pair []string
		if err := node.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("line %d: account must be [instance, id], got %d elements", node.Line, len(pair))
		}
		a.Instance, a.ID = pair[0], pair[1]
		return nil
	case yaml.MappingNode:
		type plain Account
		return node.Decode((*plain)(a))
	default:
		return fmt.Errorf("line %d: account must be a sequence or mapping", node.Line)
	}
}

// MarshalYAML writes the sequence form.
func (a Account) MarshalYAML() (interface{}, error) {
	return []string{a.Instance, a.ID}, nil
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		Server: Server{
			HTTPListenPort:    DefaultHTTPPort,
			HTTPListenAddress: DefaultListenAddress,
		},
		Scrape: ScrapeConfig{
			Timeout:   DefaultScrapeTimeout,
			Scheme:    DefaultScheme,
			UserAgent: DefaultUserAgent,
		},
		InstanceInfo: []string{"mas.to", "mastodon.social"},
		Accounts:     []Account{},
	}
}

// LoadOrCreate loads path, first writing Default() to it if it does not exist.
func LoadOrCreate(path string) (cfg *Config, created bool, err error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Write(path, Default()); err != nil {
			return nil, false, err
		}
		created = true
	} else if err != nil {
		return nil, false, fmt.Errorf("config: stat: %w", err)
	}

	cfg, err = Load(path)
	return cfg, created, err
}

// Write serializes cfg as YAML to path.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Targets returns the instance and account targets of cfg.
func (c *Config) Targets() types.Targets {
	t := types.Targets{
		Instances: make([]types.InstanceTarget, 0, len(c.InstanceInfo)),
		Accounts:  make([]types.AccountTarget, 0, len(c.Accounts)),
	}
	for _, inst := range c.InstanceInfo {
		t.Instances = append(t.Instances, types.InstanceTarget(inst))
	}
	for _, acc := range c.Accounts {
		t.Accounts = append(t.Accounts, types.AccountTarget{
			Instance: types.InstanceTarget(acc.Instance),
			ID:       acc.ID,
		})
	}
	return t
}

// defaults returns a Config pre-populated with the values used for absent
// fields. Unlike Default it has no targets.
func defaults() *Config {
	return &Config{
		Server: Server{
			HTTPListenPort:    DefaultHTTPPort,
			HTTPListenAddress: DefaultListenAddress,
		},
		Scrape: ScrapeConfig{
			Timeout:   DefaultScrapeTimeout,
			Scheme:    DefaultScheme,
			UserAgent: DefaultUserAgent,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if p := cfg.Server.HTTPListenPort; p <= 0 || p > 65535 {
		return fmt.Errorf("server.http_listen_port %d out of range", p)
	}
	if cfg.Scrape.Timeout <= 0 {
		return fmt.Errorf("scrape.timeout must be positive")
	}
	if cfg.Scrape.MaxConcurrency < 0 {
		return fmt.Errorf("scrape.max_concurrency must not be negative")
	}
	switch cfg.Scrape.Scheme {
	case "https", "http":
	default:
		return fmt.Errorf("scrape.scheme: unknown scheme %q", cfg.Scrape.Scheme)
	}

	seen := make(map[string]bool, len(cfg.InstanceInfo))
	for i, inst := range cfg.InstanceInfo {
		if inst == "" {
			return fmt.Errorf("instance_info[%d]: domain is required", i)
		}
		if seen[inst] {
			return fmt.Errorf("instance_info[%d]: duplicate instance %q", i, inst)
		}
		seen[inst] = true
	}

	seenAcc := make(map[Account]bool, len(cfg.Accounts))
	for i, acc := range cfg.Accounts {
		if acc.Instance == "" {
			return fmt.Errorf("accounts[%d]: instance is required", i)
		}
		if acc.ID == "" {
			return fmt.Errorf("accounts[%d] %q: id is required", i, acc.Instance)
		}
		if seenAcc[acc] {
			return fmt.Errorf("accounts[%d]: duplicate account %s@%s", i, acc.ID, acc.Instance)
		}
		seenAcc[acc] = true
	}
	return nil
}
