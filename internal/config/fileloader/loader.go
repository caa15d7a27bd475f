// Package fileloader loads configuration from defaults, an optional YAML file,
// RECONAUG_* environment variables and explicit overrides, in increasing order
// of precedence.
package fileloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/ahrav/reconaug/internal/config"
)

// EnvPrefix prefixes every environment variable the loader reads, e.g.
// RECONAUG_SERVER_BASE_URL.
const EnvPrefix = "RECONAUG"

var _ config.Loader = (*FileLoader)(nil)

// FileLoader loads configuration from a file on disk layered over defaults and
// the environment.
type FileLoader struct {
	// path is the filesystem path to the configuration file. Empty means
	// defaults and environment only.
	path      string
	overrides map[string]any
	lookupEnv func(string) (string, bool)
}

// Option configures a FileLoader.
type Option func(*FileLoader)

// WithOverride sets a value that wins over the file and the environment. Keys
// use dotted paths such as "tracker.transport".
func WithOverride(key string, value any) Option {
	return func(l *FileLoader) { l.overrides[key] = value }
}

// WithEnvLookup replaces os.LookupEnv for reading environment variables.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(l *FileLoader) { l.lookupEnv = fn }
}

// NewFileLoader creates a new FileLoader that will load configuration from the
// specified file path.
func NewFileLoader(path string, opts ...Option) *FileLoader {
	l := &FileLoader{path: path, overrides: make(map[string]any)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the configuration and validates it.
func (l *FileLoader) Load(ctx context.Context) (*config.Config, error) {
	v := viper.New()
	setDefaults(v, config.Default())

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %w", err)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if l.lookupEnv == nil {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	} else {
		for _, key := range v.AllKeys() {
			name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
			if val, ok := l.lookupEnv(name); ok {
				v.Set(key, val)
			}
		}
	}

	for key, val := range l.overrides {
		v.Set(key, val)
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every default so AutomaticEnv can resolve nested keys
// that appear in neither the file nor the overrides.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.ready_wait", d.Server.ReadyWait)

	v.SetDefault("tracker.transport", string(d.Tracker.Transport))
	v.SetDefault("tracker.poll_interval", d.Tracker.PollInterval)
	v.SetDefault("tracker.idle_timeout", d.Tracker.IdleTimeout)

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_ratio", d.Telemetry.SampleRatio)

	v.SetDefault("sim.addr", d.Sim.Addr)
	v.SetDefault("sim.debug_addr", d.Sim.DebugAddr)
	v.SetDefault("sim.step_delay", d.Sim.StepDelay)
	v.SetDefault("sim.task_ttl", d.Sim.TaskTTL)
	v.SetDefault("sim.sweep_interval", d.Sim.SweepInterval)
	v.SetDefault("sim.read_timeout", d.Sim.ReadTimeout)
	v.SetDefault("sim.idle_timeout", d.Sim.IdleTimeout)
	v.SetDefault("sim.shutdown_timeout", d.Sim.ShutdownTimeout)
}
