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

// Package render turns normalized prefix records into vendor-specific filter
// configuration. Each output format is a pure function from records to text;
// adding a format means adding one entry to the registry and touches nothing
// upstream.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/noctools/prefixgen/pkg/prefix"
	"github.com/noctools/prefixgen/pkg/private/serrors"
)

var (
	// ErrUnsupportedFormat indicates an unknown output format token.
	ErrUnsupportedFormat = serrors.New("unsupported output format")
	// ErrNameValidation indicates a filter name the chosen format cannot
	// carry.
	ErrNameValidation = serrors.New("invalid filter name")
)

// Format identifies an output syntax.
type Format string

// Supported output formats.
const (
	Juniper            Format = "juniper"
	JuniperRouteFilter Format = "juniper-routefilter"
	Cisco              Format = "cisco"
	CiscoXR            Format = "cisco-xr"
	BIRD               Format = "bird"
	OpenBGPD           Format = "openbgpd"
)

type renderFunc func(name string, records []prefix.Record, family prefix.Family) string

type formatSpec struct {
	render  renderFunc
	nameRE  *regexp.Regexp
	maxName int
}

var formats = map[Format]formatSpec{
	Juniper: {
		render:  renderJuniperPrefixList,
		nameRE:  regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.:-]*$`),
		maxName: 250,
	},
	JuniperRouteFilter: {
		render:  renderJuniperRouteFilter,
		nameRE:  regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.:-]*$`),
		maxName: 250,
	},
	Cisco: {
		render:  renderCisco,
		nameRE:  regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`),
		maxName: 63,
	},
	CiscoXR: {
		render:  renderCiscoXR,
		nameRE:  regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`),
		maxName: 63,
	},
	BIRD: {
		render:  renderBIRD,
		nameRE:  regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`),
		maxName: 64,
	},
	OpenBGPD: {
		render:  renderOpenBGPD,
		nameRE:  regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`),
		maxName: 64,
	},
}

// ParseFormat parses an output format token.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if _, ok := formats[f]; !ok {
		return "", serrors.Join(ErrUnsupportedFormat, nil, "format", s)
	}
	return f, nil
}

// Formats lists the supported format tokens, sorted.
func Formats() []string {
	out := make([]string, 0, len(formats))
	for f := range formats {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// ValidateName checks a filter name against the naming constraints of the
// chosen format. It runs before any text is produced.
func ValidateName(name string, format Format) error {
	spec, ok := formats[format]
	if !ok {
		return serrors.Join(ErrUnsupportedFormat, nil, "format", format)
	}
	if name == "" || len(name) > spec.maxName || !spec.nameRE.MatchString(name) {
		return serrors.Join(ErrNameValidation, nil, "name", name, "format", format)
	}
	return nil
}

// Render emits one filter object for the records of the requested family.
// An empty record set yields a syntactically valid object that matches
// nothing rather than no object at all, so a consumer can tell "empty
// filter" from "filter missing". Name validation happens before any text is
// produced; on error no partial output exists.
func Render(name string, records []prefix.Record, family prefix.Family,
	format Format) (string, error) {

	spec, ok := formats[format]
	if !ok {
		return "", serrors.Join(ErrUnsupportedFormat, nil, "format", format)
	}
	if err := ValidateName(name, format); err != nil {
		return "", err
	}
	var selected []prefix.Record
	for _, r := range records {
		if r.Family() == family {
			selected = append(selected, r)
		}
	}
	return spec.render(name, selected, family), nil
}

func renderJuniperPrefixList(name string, records []prefix.Record,
	_ prefix.Family) string {

	var b strings.Builder
	fmt.Fprintf(&b, "delete policy-options prefix-list %s\n", name)
	if len(records) == 0 {
		// An empty prefix-list is valid Junos and matches no routes.
		fmt.Fprintf(&b, "set policy-options prefix-list %s\n", name)
		return b.String()
	}
	for _, r := range records {
		// Junos prefix-lists carry no length ranges; max-length bounds
		// need the route-filter format.
		fmt.Fprintf(&b, "set policy-options prefix-list %s %s\n", name, r.Prefix)
	}
	return b.String()
}

func renderJuniperRouteFilter(name string, records []prefix.Record,
	_ prefix.Family) string {

	var b strings.Builder
	fmt.Fprintf(&b, "delete policy-options policy-statement %s\n", name)
	for _, r := range records {
		match := "exact"
		if !r.Exact() {
			match = fmt.Sprintf("upto /%d", r.MaxLength)
		}
		fmt.Fprintf(&b,
			"set policy-options policy-statement %s term prefixes from route-filter %s %s\n",
			name, r.Prefix, match)
	}
	if len(records) > 0 {
		fmt.Fprintf(&b,
			"set policy-options policy-statement %s term prefixes then accept\n", name)
	}
	fmt.Fprintf(&b, "set policy-options policy-statement %s then reject\n", name)
	return b.String()
}

func renderCisco(name string, records []prefix.Record, family prefix.Family) string {
	keyword := "ip"
	denyAll := "0.0.0.0/0 le 32"
	if family == prefix.IPv6 {
		keyword = "ipv6"
		denyAll = "::/0 le 128"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "no %s prefix-list %s\n", keyword, name)
	if len(records) == 0 {
		fmt.Fprintf(&b, "%s prefix-list %s seq 5 deny %s\n", keyword, name, denyAll)
		return b.String()
	}
	seq := 5
	for _, r := range records {
		le := ""
		if !r.Exact() {
			le = fmt.Sprintf(" le %d", r.MaxLength)
		}
		fmt.Fprintf(&b, "%s prefix-list %s seq %d permit %s%s\n",
			keyword, name, seq, r.Prefix, le)
		seq += 5
	}
	return b.String()
}

func renderCiscoXR(name string, records []prefix.Record, _ prefix.Family) string {
	var b strings.Builder
	fmt.Fprintf(&b, "no prefix-set %s\nprefix-set %s\n", name, name)
	for i, r := range records {
		entry := r.Prefix.String()
		if !r.Exact() {
			entry = fmt.Sprintf("%s le %d", r.Prefix, r.MaxLength)
		}
		sep := ","
		if i == len(records)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %s%s\n", entry, sep)
	}
	b.WriteString("end-set\n")
	return b.String()
}

func renderBIRD(name string, records []prefix.Record, _ prefix.Family) string {
	var b strings.Builder
	if len(records) == 0 {
		// Empty prefix set literal, supported since BIRD 2.0.8.
		fmt.Fprintf(&b, "%s = [];\n", name)
		return b.String()
	}
	fmt.Fprintf(&b, "%s = [\n", name)
	for i, r := range records {
		entry := r.Prefix.String()
		if !r.Exact() {
			entry = fmt.Sprintf("%s{%d,%d}", r.Prefix, r.Prefix.Bits(), r.MaxLength)
		}
		sep := ","
		if i == len(records)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    %s%s\n", entry, sep)
	}
	b.WriteString("];\n")
	return b.String()
}

func renderOpenBGPD(name string, records []prefix.Record, _ prefix.Family) string {
	var b strings.Builder
	fmt.Fprintf(&b, "prefix-set %s {\n", name)
	for _, r := range records {
		entry := r.Prefix.String()
		if !r.Exact() {
			entry = fmt.Sprintf("%s maxlen %d", r.Prefix, r.MaxLength)
		}
		fmt.Fprintf(&b, "\t%s\n", entry)
	}
	b.WriteString("}\n")
	return b.String()
}
