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

package prefix_test

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctools/prefixgen/pkg/prefix"
)

func records(ss ...string) []prefix.Record {
	out := make([]prefix.Record, 0, len(ss))
	for _, s := range ss {
		out = append(out, prefix.MustParseRecord(s))
	}
	return out
}

func TestNormalize(t *testing.T) {
	testCases := map[string]struct {
		input []prefix.Record
		opts  prefix.Options
		want  []prefix.Record
	}{
		"dedup exact": {
			input: records("10.0.0.0/24", "10.0.0.0/24", "10.0.1.0/24"),
			want:  records("10.0.0.0/24", "10.0.1.0/24"),
		},
		"dedup keeps wider max-length": {
			input: records("10.0.0.0/24^26", "10.0.0.0/24", "10.0.0.0/24^28"),
			want:  records("10.0.0.0/24^28"),
		},
		"sorted ascending, v4 before v6": {
			input: records("2001:db8::/32", "192.0.2.0/24", "10.0.0.0/8"),
			want:  records("10.0.0.0/8", "192.0.2.0/24", "2001:db8::/32"),
		},
		"contiguous merge": {
			input: records("10.0.0.0/24", "10.0.1.0/24"),
			opts:  prefix.Options{Aggregate: true},
			want:  records("10.0.0.0/23"),
		},
		"covered prefix folded in": {
			input: records("10.0.0.0/16", "10.0.5.0/24"),
			opts:  prefix.Options{Aggregate: true},
			want:  records("10.0.0.0/16"),
		},
		"non-contiguous not merged": {
			input: records("10.0.0.0/24", "10.0.2.0/24"),
			opts:  prefix.Options{Aggregate: true},
			want:  records("10.0.0.0/24", "10.0.2.0/24"),
		},
		"aggregation without merge partner stays exact": {
			input: records("10.0.0.0/24"),
			opts:  prefix.Options{Aggregate: true},
			want:  records("10.0.0.0/24"),
		},
		"families aggregate independently": {
			input: records("2001:db8::/33", "2001:db8:8000::/33", "10.0.0.0/24"),
			opts:  prefix.Options{Aggregate: true},
			want:  records("10.0.0.0/24", "2001:db8::/32"),
		},
		"ceiling applied per family": {
			input: records("10.0.0.0/8", "2001:db8::/32"),
			opts:  prefix.Options{MaxLength4: 24, MaxLength6: 48},
			want:  records("10.0.0.0/8^24", "2001:db8::/32^48"),
		},
		"ceiling does not touch explicit bounds": {
			input: records("10.0.0.0/8^16"),
			opts:  prefix.Options{MaxLength4: 24},
			want:  records("10.0.0.0/8^16"),
		},
		"ceiling shorter than prefix leaves exact": {
			input: records("10.0.0.0/28"),
			opts:  prefix.Options{MaxLength4: 24},
			want:  records("10.0.0.0/28"),
		},
	}
	prefixCmp := cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := prefix.Normalize(tc.input, tc.opts)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tc.want, got, prefixCmp))
		})
	}
}

func TestNormalizeRejectsInvalidBound(t *testing.T) {
	bad := []prefix.Record{{
		Prefix:    netip.MustParsePrefix("10.0.0.0/24"),
		MaxLength: 16,
	}}
	_, err := prefix.Normalize(bad, prefix.Options{})
	assert.Error(t, err)
}

// TestAggregationSoundness checks that the aggregated set covers exactly the
// input space: expanding the output back never reaches address space absent
// from the input.
func TestAggregationSoundness(t *testing.T) {
	input := records("10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/25", "192.0.2.0/24")
	got, err := prefix.Normalize(input, prefix.Options{Aggregate: true})
	require.NoError(t, err)

	contains := func(set []prefix.Record, addr netip.Addr) bool {
		for _, r := range set {
			if r.Prefix.Contains(addr) {
				return true
			}
		}
		return false
	}
	for _, r := range input {
		assert.True(t, contains(got, r.Prefix.Addr()),
			"input %s not covered", r.Prefix)
	}
	// 10.0.2.128 is right after the /25 and must not be swallowed by an
	// over-broad merge.
	assert.False(t, contains(got, netip.MustParseAddr("10.0.2.128")))
	assert.False(t, contains(got, netip.MustParseAddr("10.0.3.0")))
}

func TestParseRecord(t *testing.T) {
	r, err := prefix.ParseRecord(" 10.0.0.0/24 \n")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/24", r.String())
	assert.Equal(t, prefix.IPv4, r.Family())
	assert.True(t, r.Exact())

	r, err = prefix.ParseRecord("2001:db8::/32^48")
	require.NoError(t, err)
	assert.Equal(t, prefix.IPv6, r.Family())
	assert.Equal(t, 48, r.MaxLength)
	assert.False(t, r.Exact())

	// Host bits are masked off.
	r, err = prefix.ParseRecord("10.0.0.1/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/24", r.String())

	_, err = prefix.ParseRecord("not-a-prefix")
	assert.Error(t, err)
	_, err = prefix.ParseRecord("10.0.0.0/24^16")
	assert.Error(t, err)
	_, err = prefix.ParseRecord("10.0.0.0/24^40")
	assert.Error(t, err)
}
