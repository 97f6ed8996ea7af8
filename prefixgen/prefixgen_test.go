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

package prefixgen_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctools/prefixgen/irr/bgpq"
	"github.com/noctools/prefixgen/irr/render"
	"github.com/noctools/prefixgen/pkg/log/testlog"
	"github.com/noctools/prefixgen/pkg/prefix"
	"github.com/noctools/prefixgen/pkg/private/serrors"
	"github.com/noctools/prefixgen/prefixgen"
)

type fakeRegistry struct {
	prefixes map[prefix.Target][]string
	members  map[prefix.Target][]string
	failing  map[prefix.Target]error
	calls    atomic.Int32
}

func (f *fakeRegistry) Prefixes(_ context.Context, t prefix.Target,
	_ prefix.Family) ([]prefix.Record, error) {

	f.calls.Add(1)
	if err, ok := f.failing[t]; ok {
		return nil, err
	}
	var out []prefix.Record
	for _, s := range f.prefixes[t] {
		out = append(out, prefix.MustParseRecord(s))
	}
	return out, nil
}

func (f *fakeRegistry) Members(_ context.Context, t prefix.Target) ([]prefix.Target, error) {
	f.calls.Add(1)
	if err, ok := f.failing[t]; ok {
		return nil, err
	}
	var out []prefix.Target
	for _, s := range f.members[t] {
		out = append(out, prefix.MustParseTarget(s))
	}
	return out, nil
}

func newGenerator(reg bgpq.Registry, cfg prefixgen.Config) *prefixgen.Generator {
	cfg.InitDefaults()
	return &prefixgen.Generator{Registry: reg, Config: cfg}
}

func TestRunRendersAggregated(t *testing.T) {
	reg := &fakeRegistry{
		prefixes: map[prefix.Target][]string{
			"AS65000": {"10.0.0.0/24", "10.0.1.0/24"},
		},
	}
	gen := newGenerator(reg, prefixgen.Config{Aggregate: true})
	res, err := gen.Run(testlog.WithLogger(context.Background(), t), prefixgen.Request{
		Targets: []string{"as65000"},
		Family:  prefix.IPv4,
		Format:  render.Juniper,
	})
	require.NoError(t, err)

	assert.Equal(t, "AS65000", res.Name)
	assert.Equal(t, 1, res.PrefixCount)
	assert.Equal(t, 1, res.ASNCount)
	assert.False(t, res.Degraded)
	assert.NoError(t, res.ResolutionErr())
	assert.Contains(t, res.Output, "set policy-options prefix-list AS65000 10.0.0.0/23")
	assert.Equal(t, "https://www.peeringdb.com/search?q=AS65000", res.PeeringDB)
}

func TestRunMergesTargets(t *testing.T) {
	reg := &fakeRegistry{
		prefixes: map[prefix.Target][]string{
			"AS65000": {"192.0.2.0/24"},
			"AS65001": {"10.0.0.0/24", "192.0.2.0/24"},
		},
	}
	gen := newGenerator(reg, prefixgen.Config{})
	res, err := gen.Run(context.Background(), prefixgen.Request{
		Targets: []string{"AS65000", "AS65001"},
		Family:  prefix.IPv4,
		Format:  render.Cisco,
		Name:    "CUSTOMERS-IN",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.PrefixCount)
	assert.Equal(t, "no ip prefix-list CUSTOMERS-IN\n"+
		"ip prefix-list CUSTOMERS-IN seq 5 permit 10.0.0.0/24\n"+
		"ip prefix-list CUSTOMERS-IN seq 10 permit 192.0.2.0/24\n",
		res.Output,
		"merged output is deterministic regardless of completion order")
}

func TestRunDegraded(t *testing.T) {
	reg := &fakeRegistry{
		members: map[prefix.Target][]string{
			"AS-EXAMPLE": {"AS65000", "AS65001"},
		},
		prefixes: map[prefix.Target][]string{
			"AS65000": {"10.0.0.0/24"},
		},
		failing: map[prefix.Target]error{
			"AS65001": serrors.Join(bgpq.ErrNonZeroExit, nil),
		},
	}
	gen := newGenerator(reg, prefixgen.Config{})
	res, err := gen.Run(testlog.WithLogger(context.Background(), t), prefixgen.Request{
		Targets: []string{"AS-EXAMPLE"},
		Family:  prefix.IPv4,
		Format:  render.Juniper,
	})
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "AS65001", res.Failed[0].Target)
	assert.Contains(t, res.Output, "10.0.0.0/24")
	assert.Error(t, res.ResolutionErr())
}

func TestRunBadNameFailsBeforeResolution(t *testing.T) {
	reg := &fakeRegistry{
		prefixes: map[prefix.Target][]string{"AS65000": {"10.0.0.0/24"}},
	}
	gen := newGenerator(reg, prefixgen.Config{})
	_, err := gen.Run(context.Background(), prefixgen.Request{
		Targets: []string{"AS65000"},
		Family:  prefix.IPv4,
		Format:  render.Cisco,
		Name:    "BAD NAME",
	})
	assert.ErrorIs(t, err, render.ErrNameValidation)
	assert.Equal(t, int32(0), reg.calls.Load(),
		"name validation must precede the expensive resolution")
}

func TestRunInvalidTarget(t *testing.T) {
	gen := newGenerator(&fakeRegistry{}, prefixgen.Config{})
	_, err := gen.Run(context.Background(), prefixgen.Request{
		Targets: []string{"no such thing"},
		Family:  prefix.IPv4,
		Format:  render.Juniper,
	})
	assert.ErrorIs(t, err, prefix.ErrInvalidTarget)

	_, err = gen.Run(context.Background(), prefixgen.Request{
		Family: prefix.IPv4,
		Format: render.Juniper,
	})
	assert.ErrorIs(t, err, prefix.ErrInvalidTarget)
}

func TestDeriveName(t *testing.T) {
	set := prefix.MustParseTarget("AS64500:AS-CUSTOMERS")
	assert.Equal(t, "AS64500:AS-CUSTOMERS", prefixgen.DeriveName(set, render.Juniper))
	assert.Equal(t, "AS64500_AS_CUSTOMERS", prefixgen.DeriveName(set, render.BIRD))
}

func TestConfigDefaults(t *testing.T) {
	var cfg prefixgen.Config
	cfg.InitDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bgpq4", cfg.Command)
	assert.Equal(t, "whois.radb.net", cfg.Host)
	assert.Equal(t, 10, cfg.MaxDepth)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "15m0s", cfg.CacheTTL.Duration.String())

	cfg.MaxLength4 = 40
	assert.Error(t, cfg.Validate())
}
