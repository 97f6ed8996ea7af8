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

// Package bgpq drives an external bgpq4-style resolver process and parses
// its output into typed records. All other components depend on the Registry
// interface only, so they can be tested with canned data and no process
// spawning.
package bgpq

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/noctools/prefixgen/irr"
	"github.com/noctools/prefixgen/pkg/log"
	"github.com/noctools/prefixgen/pkg/prefix"
	"github.com/noctools/prefixgen/pkg/private/serrors"
)

// Fetch error kinds. Callers match them with errors.Is.
var (
	// ErrTimeout indicates the external query was cut short by the caller
	// deadline.
	ErrTimeout = serrors.New("resolver query timed out")
	// ErrNonZeroExit indicates the resolver process failed.
	ErrNonZeroExit = serrors.New("resolver exited non-zero")
	// ErrParse indicates the resolver produced output this adapter does not
	// understand.
	ErrParse = serrors.New("unparsable resolver output")
)

// Registry resolves registry objects. Implemented by Client; test doubles
// return canned data.
type Registry interface {
	// Prefixes returns the prefixes registered for an ASN or AS-SET in the
	// given family. An empty slice is a valid result and means no prefixes
	// are currently registered.
	Prefixes(ctx context.Context, target prefix.Target, family prefix.Family) ([]prefix.Record, error)
	// Members returns the direct members of an AS-SET, without recursing.
	Members(ctx context.Context, target prefix.Target) ([]prefix.Target, error)
}

// DefaultHost is the whois server queried when none is configured.
const DefaultHost = "whois.radb.net"

// Client invokes the external resolver, one process per query.
// There is no retry at this layer; transient failures surface as typed
// errors and the resolution engine decides what to do with them.
type Client struct {
	// Command is the resolver binary, "bgpq4" if empty.
	Command string
	// Host is the whois server passed with -h, DefaultHost if empty.
	Host string
	// Sources restricts the query to specific IRR sources (-S), e.g.
	// RIPE,APNIC. Empty means the server's full view.
	Sources string
	// MemberFlags are the extra arguments that switch the resolver into
	// member-listing mode. Defaults to ["-t"]. The exact grammar depends on
	// the installed resolver version.
	MemberFlags []string
}

var _ Registry = (*Client)(nil)

// Prefixes implements Registry. The target is validated before any process
// is spawned.
func (c *Client) Prefixes(ctx context.Context, target prefix.Target,
	family prefix.Family) ([]prefix.Record, error) {

	if !target.IsASN() && !target.IsASSet() {
		return nil, serrors.Join(prefix.ErrInvalidTarget, nil, "target", target)
	}
	args := c.commonArgs()
	if family == prefix.IPv6 {
		args = append(args, "-6")
	}
	args = append(args, "-F", "%n/%l\\n", target.String())
	out, err := c.run(ctx, args)
	if err != nil {
		irr.ResolverQueriesTotal.WithLabelValues("prefixes", irr.ResultError).Inc()
		return nil, err
	}
	irr.ResolverQueriesTotal.WithLabelValues("prefixes", irr.ResultOK).Inc()
	return parsePrefixes(out)
}

// Members implements Registry.
func (c *Client) Members(ctx context.Context, target prefix.Target) ([]prefix.Target, error) {
	if !target.IsASSet() {
		return nil, serrors.Join(prefix.ErrInvalidTarget, nil,
			"target", target, "reason", "not an AS-SET")
	}
	args := c.commonArgs()
	flags := c.MemberFlags
	if flags == nil {
		flags = []string{"-t"}
	}
	args = append(args, flags...)
	args = append(args, target.String())
	out, err := c.run(ctx, args)
	if err != nil {
		irr.ResolverQueriesTotal.WithLabelValues("members", irr.ResultError).Inc()
		return nil, err
	}
	irr.ResolverQueriesTotal.WithLabelValues("members", irr.ResultOK).Inc()
	return parseMembers(out)
}

func (c *Client) commonArgs() []string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	args := []string{"-h", host}
	if c.Sources != "" {
		args = append(args, "-S", c.Sources)
	}
	return args
}

func (c *Client) run(ctx context.Context, args []string) ([]byte, error) {
	command := c.Command
	if command == "" {
		command = "bgpq4"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	log.FromCtx(ctx).Debug("Resolver query finished",
		"command", command, "args", strings.Join(args, " "),
		"duration", time.Since(start), "err", err)
	if err == nil {
		return stdout.Bytes(), nil
	}
	if ctx.Err() != nil {
		return nil, serrors.Join(ErrTimeout, ctx.Err(),
			"command", command, "args", strings.Join(args, " "))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, serrors.Join(ErrNonZeroExit, nil,
			"command", command,
			"exit_code", exitErr.ExitCode(),
			"stderr", strings.TrimSpace(stderr.String()),
		)
	}
	return nil, serrors.Join(ErrNonZeroExit, err, "command", command)
}

// parsePrefixes reads newline-delimited prefixes. Blank lines and trailing
// whitespace are tolerated; an empty result set is valid and distinct from a
// process failure.
func parsePrefixes(out []byte) ([]prefix.Record, error) {
	var records []prefix.Record
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r, err := prefix.ParseRecord(line)
		if err != nil {
			return nil, serrors.Join(ErrParse, err, "line", line)
		}
		records = append(records, r)
	}
	return records, nil
}

func parseMembers(out []byte) ([]prefix.Target, error) {
	var members []prefix.Target
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t, err := prefix.ParseTarget(line)
		if err != nil {
			return nil, serrors.Join(ErrParse, err, "line", line)
		}
		members = append(members, t)
	}
	return members, nil
}
