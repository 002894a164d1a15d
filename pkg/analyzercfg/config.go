package analyzercfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
	"gopkg.in/yaml.v3"
)

// AnalyzerConfig mirrors config/analyzer.yaml.
type AnalyzerConfig struct {
	APIVersion string        `yaml:"apiVersion"`
	Kind       string        `yaml:"kind"`
	Profile    ProfileConfig `yaml:"profile"`
	Filter     trace.Filter  `yaml:"filter"`
	Workers    int           `yaml:"workers"`
	Logging    LoggingConfig `yaml:"logging"`
	Tracing    TracingConfig `yaml:"tracing"`
	Storage    StorageConfig `yaml:"storage"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Webhook    WebhookConfig `yaml:"webhook"`
}

// ProfileConfig selects the technology profile. Path wins over Technology.
type ProfileConfig struct {
	Technology string `yaml:"technology"`
	Path       string `yaml:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// StorageConfig points at the SQLite run history. Empty disables persistence.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig sets where the Prometheus text exposition is written.
type MetricsConfig struct {
	Out string `yaml:"out"`
}

// WebhookConfig controls run summary delivery.
type WebhookConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Secret    string `yaml:"secret"`
	Format    string `yaml:"format"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Default returns v1alpha1 defaults.
func Default() AnalyzerConfig {
	return AnalyzerConfig{
		APIVersion: "analyzer.radio-burst.dev/v1alpha1",
		Kind:       "AnalyzerConfig",
		Profile: ProfileConfig{
			Technology: string(profile.TechnologyLTE),
		},
		Workers: 4,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			Endpoint:    "localhost:4317",
			ServiceName: "burstctl",
		},
		Webhook: WebhookConfig{
			Format:    "generic",
			TimeoutMS: 5000,
		},
	}
}

// Load parses and normalizes an analyzer config file. A relative profile path
// is resolved against the config file's directory.
func Load(path string) (AnalyzerConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if cfg.Profile.Path != "" && !filepath.IsAbs(cfg.Profile.Path) {
		cfg.Profile.Path = filepath.Join(filepath.Dir(path), cfg.Profile.Path)
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *AnalyzerConfig) {
	if strings.TrimSpace(cfg.Profile.Technology) == "" {
		cfg.Profile.Technology = Default().Profile.Technology
	}
	if cfg.Workers <= 0 {
		cfg.Workers = Default().Workers
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = Default().Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = Default().Logging.Format
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = Default().Tracing.Exporter
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = Default().Tracing.Endpoint
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = Default().Tracing.ServiceName
	}
	if cfg.Webhook.Format == "" {
		cfg.Webhook.Format = Default().Webhook.Format
	}
	if cfg.Webhook.TimeoutMS <= 0 {
		cfg.Webhook.TimeoutMS = Default().Webhook.TimeoutMS
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = Default().APIVersion
	}
	if cfg.Kind == "" {
		cfg.Kind = Default().Kind
	}
}

// ResolveProfile loads the configured profile file, or the defaults of the
// configured technology when no file is set.
func ResolveProfile(cfg AnalyzerConfig) (profile.Profile, error) {
	if cfg.Profile.Path != "" {
		p, err := profile.Load(cfg.Profile.Path)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("load profile %s: %w", cfg.Profile.Path, err)
		}
		return p, nil
	}
	tech, err := profile.ParseTechnology(cfg.Profile.Technology)
	if err != nil {
		return profile.Profile{}, err
	}
	return profile.Default(tech)
}
