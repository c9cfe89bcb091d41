package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so intervals read as "5m" / "24h" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Intervals struct {
	ProbeSweep       Duration `yaml:"probe_sweep"`
	AggregateMetrics Duration `yaml:"aggregate_metrics"`
	Baselines        Duration `yaml:"baseline_calculation"`
	EscalationSweep  Duration `yaml:"escalation_sweep"`
	Cleanup          Duration `yaml:"cleanup"`
	HealthReport     Duration `yaml:"health_report"`
}

// Notify maps notification channels to webhook endpoints. Channels without an
// endpoint fall back to log-only delivery.
type Notify struct {
	WebhookEndpoints map[string]string `yaml:"webhook_endpoints"`
}

type Config struct {
	Intervals Intervals `yaml:"intervals"`
	Notify    Notify    `yaml:"notify"`
}

func Defaults() Config {
	return Config{
		Intervals: Intervals{
			ProbeSweep:       Duration(time.Minute),
			AggregateMetrics: Duration(5 * time.Minute),
			Baselines:        Duration(24 * time.Hour),
			EscalationSweep:  Duration(15 * time.Minute),
			Cleanup:          Duration(24 * time.Hour),
			HealthReport:     Duration(24 * time.Hour),
		},
		Notify: Notify{WebhookEndpoints: map[string]string{}},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
