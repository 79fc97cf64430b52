// Package config holds engine limits and options, loadable from TOML.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/driftlang/drift/errors"
)

// Config bounds engine resource usage. The zero value is not usable;
// start from Default.
type Config struct {
	// MaxFrames caps the depth of the frame stack, and therefore the
	// length of any continuation chain. Exceeding it is a runtime
	// stack-overflow error.
	MaxFrames int `toml:"max_frames"`

	// MaxCheckpointBytes caps the size of an encoded checkpoint.
	MaxCheckpointBytes int `toml:"max_checkpoint_bytes"`

	// MaxCollectionLen caps the element count of any single list, map, or
	// object decoded from a checkpoint. Guards against corrupt or hostile
	// length prefixes.
	MaxCollectionLen int `toml:"max_collection_len"`

	// StrictProtocol makes the runtime reject host operation
	// registrations for names the compiled program never declared.
	StrictProtocol bool `toml:"strict_protocol"`
}

// Default returns the limits used when the host supplies none.
func Default() Config {
	return Config{
		MaxFrames:          10_000,
		MaxCheckpointBytes: 16 << 20,
		MaxCollectionLen:   1 << 20,
	}
}

// Parse decodes TOML over the defaults, so a file only needs the keys it
// changes.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Cause(err).
			Detail("malformed config").
			Build()
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a TOML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Cause(err).
			Detail("reading config %q", path).
			Build()
	}
	return Parse(data)
}

func (c Config) validate() error {
	check := func(name string, v int) error {
		if v <= 0 {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(name).
				Detail("must be positive, got %d", v).
				Build()
		}
		return nil
	}
	if err := check("max_frames", c.MaxFrames); err != nil {
		return err
	}
	if err := check("max_checkpoint_bytes", c.MaxCheckpointBytes); err != nil {
		return err
	}
	return check("max_collection_len", c.MaxCollectionLen)
}
