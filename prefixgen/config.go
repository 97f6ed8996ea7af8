// Copyright 2025 Noctools
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prefixgen

import (
	"time"

	"github.com/noctools/prefixgen/irr/bgpq"
	"github.com/noctools/prefixgen/irr/cache"
	"github.com/noctools/prefixgen/irr/resolver"
	"github.com/noctools/prefixgen/pkg/private/serrors"
)

// Duration is a time.Duration that (un)marshals as text ("15m", "1h"), for
// use in TOML configuration.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config configures a generation run. All knobs have documented defaults;
// InitDefaults fills the zero values.
type Config struct {
	// Command is the external resolver binary.
	Command string `toml:"command,omitempty"`
	// Host is the whois server queried by the resolver.
	Host string `toml:"host,omitempty"`
	// Sources restricts queries to specific IRR sources, e.g. "RIPE" or
	// "RIPE,APNIC". Empty queries the server's full view.
	Sources string `toml:"sources,omitempty"`
	// CacheTTL bounds reuse of registry answers.
	CacheTTL Duration `toml:"cache_ttl,omitempty"`
	// MaxDepth bounds AS-SET expansion depth.
	MaxDepth int `toml:"max_depth,omitempty"`
	// Workers bounds concurrent resolver queries.
	Workers int `toml:"workers,omitempty"`
	// Strict fails the whole run when any member cannot be resolved.
	Strict bool `toml:"strict,omitempty"`
	// Aggregate merges contiguous and covered prefixes.
	Aggregate bool `toml:"aggregate,omitempty"`
	// MaxLength4 and MaxLength6, when non-zero, bound how specific
	// announcements out of each prefix may be (applied to records without
	// an explicit bound).
	MaxLength4 int `toml:"max_length_v4,omitempty"`
	MaxLength6 int `toml:"max_length_v6,omitempty"`
}

// InitDefaults fills unset fields with defaults.
func (cfg *Config) InitDefaults() {
	if cfg.Command == "" {
		cfg.Command = "bgpq4"
	}
	if cfg.Host == "" {
		cfg.Host = bgpq.DefaultHost
	}
	if cfg.CacheTTL.Duration == 0 {
		cfg.CacheTTL.Duration = cache.DefaultTTL
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = resolver.DefaultMaxDepth
	}
	if cfg.Workers == 0 {
		cfg.Workers = resolver.DefaultWorkers
	}
}

// Validate checks the configuration for values no component can honor.
func (cfg *Config) Validate() error {
	if cfg.MaxDepth < 0 {
		return serrors.New("max_depth must be positive", "value", cfg.MaxDepth)
	}
	if cfg.Workers < 0 {
		return serrors.New("workers must be positive", "value", cfg.Workers)
	}
	if cfg.MaxLength4 < 0 || cfg.MaxLength4 > 32 {
		return serrors.New("max_length_v4 out of range", "value", cfg.MaxLength4)
	}
	if cfg.MaxLength6 < 0 || cfg.MaxLength6 > 128 {
		return serrors.New("max_length_v6 out of range", "value", cfg.MaxLength6)
	}
	return nil
}
