// Package config defines the runtime configuration shared by the reconaug
// client and the recon service simulator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Transport selects how task progress is received.
type Transport string

const (
	// TransportSSE follows progress over the server-sent event stream.
	TransportSSE Transport = "sse"
	// TransportPoll follows progress by polling the task endpoint.
	TransportPoll Transport = "poll"
)

// Config represents the top-level configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sim       SimConfig       `mapstructure:"sim"`
}

// ServerConfig describes the recon service the client talks to.
type ServerConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// ReadyWait bounds how long the client waits for the service to answer
	// before the first request. Zero skips the check.
	ReadyWait time.Duration `mapstructure:"ready_wait" validate:"gte=0"`
}

// TrackerConfig controls progress tracking.
type TrackerConfig struct {
	Transport    Transport     `mapstructure:"transport" validate:"oneof=sse poll"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// IdleTimeout fails an observation after this long without progress.
	// Zero disables it; otherwise it must exceed PollInterval.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// TelemetryConfig controls trace and metric export. An empty endpoint
// disables export.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// SimConfig controls the recon service simulator.
type SimConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	DebugAddr       string        `mapstructure:"debug_addr" validate:"omitempty,hostname_port"`
	StepDelay       time.Duration `mapstructure:"step_delay" validate:"gt=0"`
	TaskTTL         time.Duration `mapstructure:"task_ttl" validate:"gt=0"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 30 * time.Second,
		},
		Tracker: TrackerConfig{
			Transport:    TransportSSE,
			PollInterval: time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			SampleRatio: 0.05,
		},
		Sim: SimConfig{
			Addr:            "0.0.0.0:5000",
			StepDelay:       time.Second,
			TaskTTL:         time.Hour,
			SweepInterval:   5 * time.Minute,
			ReadTimeout:     5 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// A poll that lands after the idle deadline can never observe progress.
	if t := c.Tracker; t.IdleTimeout > 0 && t.PollInterval >= t.IdleTimeout {
		return fmt.Errorf("invalid configuration: tracker poll_interval (%s) must be less than idle_timeout (%s)",
			t.PollInterval, t.IdleTimeout)
	}
	return nil
}
