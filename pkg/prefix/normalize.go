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

package prefix

import (
	"net/netip"

	"go4.org/netipx"
)

// Options configures Normalize.
type Options struct {
	// Aggregate merges contiguous and covered prefixes per family into the
	// minimal exact cover of their union. The cover never includes address
	// space absent from the input. Aggregated records carry no max-length,
	// since the merge makes per-record bounds meaningless.
	Aggregate bool
	// MaxLength4 and MaxLength6, when non-zero, are applied as the
	// max-length bound of every record of the respective family that does
	// not declare one and is shorter than the bound. Zero leaves records
	// exact-match only.
	MaxLength4 int
	MaxLength6 int
}

// Normalize deduplicates records by (network, length, family), optionally
// aggregates them, applies the configured default max-length bounds, and
// returns them in the deterministic sort order. The input slice is not
// modified.
func Normalize(records []Record, opts Options) ([]Record, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	var out []Record
	if opts.Aggregate {
		out = aggregate(records)
	} else {
		out = dedupe(records)
	}
	for i, r := range out {
		if r.MaxLength != 0 {
			continue
		}
		bound := opts.MaxLength4
		if r.Family() == IPv6 {
			bound = opts.MaxLength6
		}
		if bound > r.Prefix.Bits() && bound <= r.Prefix.Addr().BitLen() {
			out[i].MaxLength = bound
		}
	}
	Sort(out)
	return out, nil
}

// dedupe collapses records with equal prefixes. When duplicates declare
// different max-lengths, the larger bound wins: the result permits the union
// of what the duplicates permitted.
func dedupe(records []Record) []Record {
	seen := make(map[netip.Prefix]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := seen[r.Prefix]; ok {
			if !r.Exact() && (out[i].Exact() || r.MaxLength > out[i].MaxLength) {
				out[i].MaxLength = r.MaxLength
			}
			continue
		}
		seen[r.Prefix] = len(out)
		out = append(out, r)
	}
	return out
}

// aggregate computes the minimal exact prefix cover of the union per family.
// netipx.IPSet guarantees the cover equals the union, so partial overlaps can
// never widen the filter beyond registered space.
func aggregate(records []Record) []Record {
	var b4, b6 netipx.IPSetBuilder
	for _, r := range records {
		if r.Family() == IPv4 {
			b4.AddPrefix(r.Prefix)
		} else {
			b6.AddPrefix(r.Prefix)
		}
	}
	var out []Record
	for _, b := range []*netipx.IPSetBuilder{&b4, &b6} {
		set, err := b.IPSet()
		if err != nil {
			// Only reachable through invalid prefixes, which Normalize
			// rejects beforehand.
			continue
		}
		for _, p := range set.Prefixes() {
			out = append(out, Record{Prefix: p})
		}
	}
	return out
}
