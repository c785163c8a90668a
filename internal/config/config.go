package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	ExporterAgent = "agent"
	ExporterOTLP  = "otlp"
)

// Config holds the sensor configuration, read from INSTANA_* variables.
type Config struct {
	Agent        AgentConfig
	Tracing      TracingConfig
	Transmission TransmissionConfig
	Exporter     ExporterConfig
	Logging      LogConfig
}

// AgentConfig holds the address of the host agent and the upload retry policy.
type AgentConfig struct {
	Host         string        `envconfig:"INSTANA_AGENT_HOST" default:"127.0.0.1"`
	Port         int           `envconfig:"INSTANA_AGENT_PORT" default:"42699"`
	Retries      int           `envconfig:"INSTANA_AGENT_RETRIES" default:"4"`
	RetryWaitMin time.Duration `envconfig:"INSTANA_AGENT_RETRY_WAIT_MIN" default:"1s"`
	RetryWaitMax time.Duration `envconfig:"INSTANA_AGENT_RETRY_WAIT_MAX" default:"30s"`
}

// TracingConfig holds span creation settings.
type TracingConfig struct {
	ServiceName      string        `envconfig:"INSTANA_SERVICE_NAME"`
	Disabled         bool          `envconfig:"INSTANA_DISABLE_TRACING" default:"false"`
	DisableAutoInstr bool          `envconfig:"INSTANA_DISABLE_AUTO_INSTR" default:"false"`
	StackTraceLength int           `envconfig:"INSTANA_STACK_TRACE_LENGTH" default:"10"`
	AutoEndTimeout   time.Duration `envconfig:"INSTANA_AUTO_END_TIMEOUT" default:"0s"`
}

// TransmissionConfig holds span batching settings.
type TransmissionConfig struct {
	ForceTransmissionStartingAt int           `envconfig:"INSTANA_FORCE_TRANSMISSION_STARTING_AT" default:"500"`
	TransmissionDelay           time.Duration `envconfig:"INSTANA_TRANSMISSION_DELAY" default:"1s"`
	MaxBufferedSpans            int           `envconfig:"INSTANA_MAX_BUFFERED_SPANS" default:"1000"`
}

// ExporterConfig selects where finished spans go.
type ExporterConfig struct {
	Kind         string `envconfig:"INSTANA_EXPORTER" default:"agent"`
	OTLPEndpoint string `envconfig:"INSTANA_OTLP_ENDPOINT" default:"localhost:4317"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"INSTANA_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"INSTANA_DEBUG" default:"false"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Host:         "127.0.0.1",
			Port:         42699,
			Retries:      4,
			RetryWaitMin: time.Second,
			RetryWaitMax: 30 * time.Second,
		},
		Tracing: TracingConfig{
			StackTraceLength: 10,
		},
		Transmission: TransmissionConfig{
			ForceTransmissionStartingAt: 500,
			TransmissionDelay:           time.Second,
			MaxBufferedSpans:            1000,
		},
		Exporter: ExporterConfig{
			Kind:         ExporterAgent,
			OTLPEndpoint: "localhost:4317",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	c.Exporter.Kind = strings.ToLower(strings.TrimSpace(c.Exporter.Kind))
	switch c.Exporter.Kind {
	case ExporterAgent, ExporterOTLP:
	default:
		return fmt.Errorf("exporter %q: %w", c.Exporter.Kind, ErrInvalidConfig)
	}
	if c.Agent.Port <= 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("agent port %d: %w", c.Agent.Port, ErrInvalidConfig)
	}
	if c.Agent.Retries < 0 {
		return fmt.Errorf("agent retries %d: %w", c.Agent.Retries, ErrInvalidConfig)
	}
	if c.Agent.RetryWaitMin > c.Agent.RetryWaitMax {
		return fmt.Errorf("agent retry wait %s above its maximum %s: %w", c.Agent.RetryWaitMin, c.Agent.RetryWaitMax, ErrInvalidConfig)
	}
	if c.Transmission.TransmissionDelay <= 0 {
		return fmt.Errorf("transmission delay %s: %w", c.Transmission.TransmissionDelay, ErrInvalidConfig)
	}
	if c.Transmission.MaxBufferedSpans <= 0 {
		return fmt.Errorf("max buffered spans %d: %w", c.Transmission.MaxBufferedSpans, ErrInvalidConfig)
	}
	if c.Tracing.AutoEndTimeout < 0 {
		return fmt.Errorf("auto end timeout %s: %w", c.Tracing.AutoEndTimeout, ErrInvalidConfig)
	}
	return nil
}
