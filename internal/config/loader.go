package config

import (
	"context"
)

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration so commands can be tested without touching the filesystem
// or environment.
type Loader interface {
	// Load retrieves, parses and validates the configuration.
	Load(ctx context.Context) (*Config, error)
}

// StaticLoader returns a fixed configuration.
type StaticLoader struct{ Config Config }

// Load validates and returns a copy of the fixed configuration.
func (l StaticLoader) Load(context.Context) (*Config, error) {
	cfg := l.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
