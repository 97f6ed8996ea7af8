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
	"regexp"
	"strconv"
	"strings"

	"github.com/noctools/prefixgen/pkg/private/serrors"
)

// ErrInvalidTarget indicates a name that is neither a valid AS number nor a
// valid AS-SET identifier. It is returned before any external process is
// involved.
var ErrInvalidTarget = serrors.New("invalid target")

// asSetRE matches registry AS-SET names, including hierarchical ones such as
// AS8758:AS-CUSTOMERS. Matching is performed on the upper-cased input.
var asSetRE = regexp.MustCompile(`^(AS\d+:)*AS-[A-Z0-9_:-]+$`)

// Target is an ASN or AS-SET identifier in canonical (upper-case) form.
// Immutable once created; construct it with ParseTarget.
type Target string

// ParseTarget validates and canonicalizes an operator-supplied target name.
// Input is case insensitive and a bare number is accepted as shorthand for
// the corresponding ASN, mirroring what operators type at the prompt.
func ParseTarget(s string) (Target, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return "", serrors.Join(ErrInvalidTarget, nil, "reason", "empty name")
	}
	if _, err := strconv.ParseUint(name, 10, 32); err == nil {
		name = "AS" + name
	}
	t := Target(name)
	if !t.IsASN() && !t.IsASSet() {
		return "", serrors.Join(ErrInvalidTarget, nil, "name", s)
	}
	return t, nil
}

// MustParseTarget is like ParseTarget but panics on invalid input.
// Intended for tests and constants.
func MustParseTarget(s string) Target {
	t, err := ParseTarget(s)
	if err != nil {
		panic(err)
	}
	return t
}

// IsASN reports whether the target names a plain autonomous system.
func (t Target) IsASN() bool {
	s := string(t)
	if !strings.HasPrefix(s, "AS") {
		return false
	}
	asn, err := strconv.ParseUint(s[2:], 10, 32)
	return err == nil && asn > 0
}

// IsASSet reports whether the target names an AS-SET object.
func (t Target) IsASSet() bool {
	return asSetRE.MatchString(string(t))
}

func (t Target) String() string {
	return string(t)
}

// PeeringDBURL returns the PeeringDB search URL for the target, the way the
// interactive front end offers it.
func (t Target) PeeringDBURL() string {
	return "https://www.peeringdb.com/search?q=" + string(t)
}
