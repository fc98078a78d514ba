package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadFile builds a Config from environment variables the same way Load
// does, then overlays a TOML file on top of it. Unlike the env-var path,
// unknown keys in the file are a startup error: after decoding, any key
// reported by the decoder's Undecoded() list (a key present in the file with
// no matching Config field) makes LoadFile fail, which env vars alone cannot
// express.
func LoadFile(path string) (*Config, error) {
	config := defaults()

	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return config, nil
}
