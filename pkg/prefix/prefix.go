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

// Package prefix holds the data model of the filter generation pipeline:
// targets (ASN and AS-SET identifiers), prefix records, and the
// normalization and aggregation operations on record sets.
package prefix

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/noctools/prefixgen/pkg/private/serrors"
)

// Family selects an address family.
type Family int

// Supported address families.
const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("UNKNOWN (%d)", int(f))
	}
}

// ParseFamily parses an address family from its textual form.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(s) {
	case "4", "v4", "ipv4":
		return IPv4, nil
	case "6", "v6", "ipv6":
		return IPv6, nil
	}
	return 0, serrors.New("unsupported address family", "input", s)
}

// FamilyOf returns the family of a prefix.
func FamilyOf(p netip.Prefix) Family {
	if p.Addr().Is4() {
		return IPv4
	}
	return IPv6
}

// Record is a CIDR prefix plus an optional max-length bound. MaxLength zero
// means unset: only the exact prefix is permitted. Equality is purely on
// (network, prefix-length, family).
type Record struct {
	Prefix    netip.Prefix
	MaxLength int
}

// ParseRecord parses a record from its textual form, "10.0.0.0/24" or
// "10.0.0.0/24^26" with an explicit max-length. The network is canonicalized
// by masking off host bits.
func ParseRecord(s string) (Record, error) {
	text, bound, hasBound := strings.Cut(strings.TrimSpace(s), "^")
	p, err := netip.ParsePrefix(text)
	if err != nil {
		return Record{}, serrors.Wrap("parsing prefix", err, "input", s)
	}
	r := Record{Prefix: p.Masked()}
	if hasBound {
		if _, err := fmt.Sscanf(bound, "%d", &r.MaxLength); err != nil {
			return Record{}, serrors.New("invalid max-length", "input", s)
		}
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// MustParseRecord is like ParseRecord but panics on error. For tests.
func MustParseRecord(s string) Record {
	r, err := ParseRecord(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the max-length bound against the prefix length and the
// address width.
func (r Record) Validate() error {
	if !r.Prefix.IsValid() {
		return serrors.New("invalid prefix")
	}
	if r.MaxLength == 0 {
		return nil
	}
	if r.MaxLength < r.Prefix.Bits() || r.MaxLength > r.Prefix.Addr().BitLen() {
		return serrors.New("max-length out of bounds",
			"prefix", r.Prefix, "max_length", r.MaxLength)
	}
	return nil
}

// Family returns the record's address family.
func (r Record) Family() Family {
	return FamilyOf(r.Prefix)
}

// Exact reports whether only the exact prefix is permitted.
func (r Record) Exact() bool {
	return r.MaxLength == 0 || r.MaxLength == r.Prefix.Bits()
}

func (r Record) String() string {
	if r.Exact() {
		return r.Prefix.String()
	}
	return fmt.Sprintf("%s^%d", r.Prefix, r.MaxLength)
}

// Sort orders records ascending by network address, then by prefix length,
// with IPv4 before IPv6. The order is deterministic so that rendered filters
// are diffable.
func Sort(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if fa, fb := a.Family(), b.Family(); fa != fb {
			return fa < fb
		}
		if c := a.Prefix.Addr().Compare(b.Prefix.Addr()); c != 0 {
			return c < 0
		}
		if a.Prefix.Bits() != b.Prefix.Bits() {
			return a.Prefix.Bits() < b.Prefix.Bits()
		}
		return a.MaxLength < b.MaxLength
	})
}
