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

// Package resolver expands AS-SET membership graphs into prefix sets.
//
// Expansion is a breadth-first traversal: AS-SET nodes contribute their
// member lists, ASN leaves contribute their registered prefixes. Names
// revisited within one traversal are skipped, so cyclic AS-SETs terminate.
// Registry queries of one level run concurrently since their latency is
// dominated by the external resolver process.
package resolver

import (
	"context"
	"net/netip"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/noctools/prefixgen/irr/bgpq"
	"github.com/noctools/prefixgen/irr/cache"
	"github.com/noctools/prefixgen/pkg/log"
	"github.com/noctools/prefixgen/pkg/prefix"
	"github.com/noctools/prefixgen/pkg/private/serrors"
)

var (
	// ErrDepthExceeded indicates the membership graph is deeper than the
	// configured bound, likely a malformed or adversarial AS-SET.
	ErrDepthExceeded = serrors.New("as-set expansion exceeds depth bound")
	// ErrResolution indicates a member query failed in strict mode; the
	// whole resolution is discarded.
	ErrResolution = serrors.New("resolution failed")
	// ErrPartialFailure marks a degraded resolution. It is never returned by
	// Resolve directly; Resolution.Err exposes it for callers that treat
	// degraded results as errors.
	ErrPartialFailure = serrors.New("resolution degraded")
)

// Default bounds.
const (
	DefaultMaxDepth = 10
	DefaultWorkers  = 4
)

// FailedTarget records one sub-target whose registry query failed during a
// partial-mode resolution.
type FailedTarget struct {
	Target prefix.Target
	Err    error
}

// Resolution is the outcome of one resolution call.
type Resolution struct {
	Target prefix.Target
	Family prefix.Family
	// Prefixes is the deduplicated union over all resolved ASN leaves, in
	// deterministic order.
	Prefixes []prefix.Record
	// ASNs lists the ASN leaves that were visited, resolved or not.
	ASNs []prefix.Target
	// Degraded is set when some members could not be resolved and strict
	// mode was off. Failed lists them.
	Degraded bool
	Failed   []FailedTarget
}

// Err returns nil for a complete resolution and an ErrPartialFailure for a
// degraded one, naming the failed sub-targets.
func (r *Resolution) Err() error {
	if !r.Degraded {
		return nil
	}
	failed := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		failed = append(failed, f.Target.String())
	}
	return serrors.Join(ErrPartialFailure, nil, "failed", failed)
}

// Resolver expands targets through a Registry, memoizing queries in the
// session caches. The zero value with only Registry set is usable.
type Resolver struct {
	Registry bgpq.Registry
	// PrefixCache and MemberCache memoize registry answers. Nil disables
	// caching for the respective query mode.
	PrefixCache *cache.Cache[[]prefix.Record]
	MemberCache *cache.Cache[[]prefix.Target]
	// Sources is the IRR source restriction the Registry is configured
	// with. It is part of the cache key only; the Registry itself applies
	// it.
	Sources string
	// MaxDepth bounds the BFS depth, DefaultMaxDepth if zero.
	MaxDepth int
	// Workers bounds concurrent registry queries, DefaultWorkers if zero.
	Workers int
	// Strict fails the whole resolution on the first member failure instead
	// of returning a degraded result.
	Strict bool
}

// Resolve expands target and returns the union of prefixes of all its ASN
// leaves. The caller-supplied context bounds the whole call, including the
// external processes spawned on cache misses.
func (r *Resolver) Resolve(ctx context.Context, target prefix.Target,
	family prefix.Family) (*Resolution, error) {

	if !target.IsASN() && !target.IsASSet() {
		return nil, serrors.Join(prefix.ErrInvalidTarget, nil, "target", target)
	}
	maxDepth := r.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	logger := log.FromCtx(ctx).New("target", target, "family", family)

	st := &expansion{
		resolver: r,
		visited:  map[prefix.Target]bool{target: true},
		prefixes: map[netip.Prefix]prefix.Record{},
	}
	level := []prefix.Target{target}
	for depth := 0; len(level) > 0; depth++ {
		if depth > maxDepth {
			return nil, serrors.Join(ErrDepthExceeded, nil,
				"target", target, "max_depth", maxDepth)
		}
		next, err := st.expandLevel(ctx, level, family)
		if err != nil {
			return nil, err
		}
		level = next
	}

	res := &Resolution{
		Target:   target,
		Family:   family,
		Prefixes: st.records(),
		ASNs:     st.asns,
		Degraded: len(st.failed) > 0,
		Failed:   st.failed,
	}
	logger.Debug("Resolution finished",
		"asns", len(res.ASNs), "prefixes", len(res.Prefixes),
		"degraded", res.Degraded)
	return res, nil
}

// expansion holds the traversal state of a single resolution call. It is
// discarded when the call returns.
type expansion struct {
	resolver *Resolver
	visited  map[prefix.Target]bool

	mu       sync.Mutex
	prefixes map[netip.Prefix]prefix.Record
	asns     []prefix.Target
	failed   []FailedTarget
}

// expandLevel queries all targets of one BFS level concurrently and returns
// the next level. In strict mode the first failure aborts the group and
// cancels the in-flight queries.
func (e *expansion) expandLevel(ctx context.Context, level []prefix.Target,
	family prefix.Family) ([]prefix.Target, error) {

	workers := e.resolver.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	var nextMu sync.Mutex
	var next []prefix.Target

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range level {
		if t.IsASN() {
			e.mu.Lock()
			e.asns = append(e.asns, t)
			e.mu.Unlock()
			g.Go(func() error {
				records, err := e.fetchPrefixes(gctx, t, family)
				if err != nil {
					return e.fail(gctx, t, err)
				}
				e.addRecords(records)
				return nil
			})
			continue
		}
		g.Go(func() error {
			members, err := e.fetchMembers(gctx, t)
			if err != nil {
				return e.fail(gctx, t, err)
			}
			nextMu.Lock()
			defer nextMu.Unlock()
			for _, m := range members {
				if e.visited[m] {
					continue
				}
				e.visited[m] = true
				next = append(next, m)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// A cancelled traversal must not masquerade as a degraded result.
		return nil, serrors.Wrap("resolution cancelled", err)
	}
	sortTargets(next)
	return next, nil
}

// fail records a member failure, or aborts the traversal in strict mode and
// on cancellation.
func (e *expansion) fail(ctx context.Context, t prefix.Target, err error) error {
	if ctx.Err() != nil {
		return serrors.Wrap("resolution cancelled", ctx.Err(), "target", t)
	}
	if e.resolver.Strict {
		return serrors.Join(ErrResolution, err, "target", t)
	}
	log.FromCtx(ctx).Info("Member resolution failed, continuing",
		"target", t, "err", err)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, FailedTarget{Target: t, Err: err})
	return nil
}

func (e *expansion) fetchPrefixes(ctx context.Context, t prefix.Target,
	family prefix.Family) ([]prefix.Record, error) {

	fetch := func(ctx context.Context) ([]prefix.Record, error) {
		return e.resolver.Registry.Prefixes(ctx, t, family)
	}
	if e.resolver.PrefixCache == nil {
		return fetch(ctx)
	}
	key := cache.Key{
		Mode:    cache.ModePrefixes,
		Target:  t,
		Family:  family,
		Sources: e.resolver.Sources,
	}
	return e.resolver.PrefixCache.GetOrFetch(ctx, key, fetch)
}

func (e *expansion) fetchMembers(ctx context.Context,
	t prefix.Target) ([]prefix.Target, error) {

	fetch := func(ctx context.Context) ([]prefix.Target, error) {
		return e.resolver.Registry.Members(ctx, t)
	}
	if e.resolver.MemberCache == nil {
		return fetch(ctx)
	}
	key := cache.Key{
		Mode:    cache.ModeMembers,
		Target:  t,
		Sources: e.resolver.Sources,
	}
	return e.resolver.MemberCache.GetOrFetch(ctx, key, fetch)
}

func (e *expansion) addRecords(records []prefix.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		if prev, ok := e.prefixes[r.Prefix]; ok {
			if !r.Exact() && (prev.Exact() || r.MaxLength > prev.MaxLength) {
				e.prefixes[r.Prefix] = r
			}
			continue
		}
		e.prefixes[r.Prefix] = r
	}
}

// records returns the accumulated union in deterministic order, independent
// of query completion order.
func (e *expansion) records() []prefix.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]prefix.Record, 0, len(e.prefixes))
	for _, r := range e.prefixes {
		out = append(out, r)
	}
	prefix.Sort(out)
	sortTargets(e.asns)
	sort.Slice(e.failed, func(i, j int) bool {
		return e.failed[i].Target < e.failed[j].Target
	})
	return out
}

func sortTargets(ts []prefix.Target) {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
}
