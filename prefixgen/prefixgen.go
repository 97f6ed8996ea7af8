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

// Package prefixgen ties the filter generation pipeline together: target
// validation, AS-SET resolution through the query cache, prefix
// normalization and vendor rendering.
package prefixgen

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/noctools/prefixgen/irr/bgpq"
	"github.com/noctools/prefixgen/irr/cache"
	"github.com/noctools/prefixgen/irr/render"
	"github.com/noctools/prefixgen/irr/resolver"
	"github.com/noctools/prefixgen/pkg/log"
	"github.com/noctools/prefixgen/pkg/prefix"
	"github.com/noctools/prefixgen/pkg/private/serrors"
)

// Request is one filter generation request, passed by value through the
// pipeline. The front end (menu, CLI, whatever drives this) only builds
// Requests; it never touches the components directly.
type Request struct {
	// Targets are the ASN or AS-SET names to resolve, raw as the operator
	// entered them.
	Targets []string
	// Family selects the address family.
	Family prefix.Family
	// Format selects the output syntax.
	Format render.Format
	// Name is the filter object name. Empty derives it from the first
	// target.
	Name string
}

// Failed is a sub-target that could not be resolved.
type Failed struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// Result is the outcome of a generation run.
type Result struct {
	// Name is the filter object name actually used.
	Name string `json:"name"`
	// Targets are the canonicalized requested targets.
	Targets []prefix.Target `json:"targets"`
	Family  prefix.Family   `json:"-"`
	// Prefixes is the normalized prefix set behind the rendered output.
	Prefixes []prefix.Record `json:"-"`
	// PrefixCount is the number of rendered prefixes.
	PrefixCount int `json:"prefix_count"`
	// ASNCount is the number of ASN leaves visited across all targets.
	ASNCount int `json:"asn_count"`
	// Degraded is set when some members could not be resolved (strict mode
	// off). Failed lists them so the operator can retry or accept partial
	// coverage.
	Degraded bool     `json:"degraded"`
	Failed   []Failed `json:"failed,omitempty"`
	// Output is the rendered filter text.
	Output string `json:"output"`
	// PeeringDB is the PeeringDB search URL of the first target.
	PeeringDB string `json:"peeringdb_url"`
}

// ResolutionErr returns nil for a complete result and an error naming the
// unresolved members for a degraded one.
func (r *Result) ResolutionErr() error {
	if !r.Degraded {
		return nil
	}
	failed := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		failed = append(failed, f.Target)
	}
	return serrors.Join(resolver.ErrPartialFailure, nil, "failed", failed)
}

// Generator runs the pipeline. Construct it with New, or populate the
// fields directly in tests to inject a canned registry.
type Generator struct {
	Registry    bgpq.Registry
	PrefixCache *cache.Cache[[]prefix.Record]
	MemberCache *cache.Cache[[]prefix.Target]
	Config      Config
}

// New builds a Generator with an exec-backed registry client and fresh
// session caches.
func New(cfg Config) (*Generator, error) {
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		Registry: &bgpq.Client{
			Command: cfg.Command,
			Host:    cfg.Host,
			Sources: cfg.Sources,
		},
		PrefixCache: cache.New[[]prefix.Record](cfg.CacheTTL.Duration),
		MemberCache: cache.New[[]prefix.Target](cfg.CacheTTL.Duration),
		Config:      cfg,
	}, nil
}

// Run resolves the requested targets, normalizes the union of their prefixes
// and renders the filter. The context deadline bounds the whole run,
// including external resolver processes. The output is deterministic
// regardless of query completion order.
func (g *Generator) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Targets) == 0 {
		return nil, serrors.Join(prefix.ErrInvalidTarget, nil, "reason", "no targets")
	}
	targets := make([]prefix.Target, 0, len(req.Targets))
	for _, raw := range req.Targets {
		t, err := prefix.ParseTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	name := req.Name
	if name == "" {
		name = DeriveName(targets[0], req.Format)
	}
	// Validate the name up front: resolution is expensive and a bad name
	// fails the run regardless.
	if err := render.ValidateName(name, req.Format); err != nil {
		return nil, err
	}

	res := &Result{
		Name:      name,
		Targets:   targets,
		Family:    req.Family,
		PeeringDB: targets[0].PeeringDBURL(),
	}

	rslv := &resolver.Resolver{
		Registry:    g.Registry,
		PrefixCache: g.PrefixCache,
		MemberCache: g.MemberCache,
		Sources:     g.Config.Sources,
		MaxDepth:    g.Config.MaxDepth,
		Workers:     g.Config.Workers,
		Strict:      g.Config.Strict,
	}

	// One unit of work per distinct target; queries inside each resolution
	// fan out further, bounded by the resolver itself.
	var mu sync.Mutex
	var records []prefix.Record
	eg, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		eg.Go(func() error {
			resolution, err := rslv.Resolve(gctx, t, req.Family)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			records = append(records, resolution.Prefixes...)
			res.ASNCount += len(resolution.ASNs)
			if resolution.Degraded {
				res.Degraded = true
				for _, f := range resolution.Failed {
					res.Failed = append(res.Failed, Failed{
						Target: f.Target.String(),
						Reason: f.Err.Error(),
					})
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	normalized, err := prefix.Normalize(records, prefix.Options{
		Aggregate:  g.Config.Aggregate,
		MaxLength4: g.Config.MaxLength4,
		MaxLength6: g.Config.MaxLength6,
	})
	if err != nil {
		return nil, serrors.Wrap("normalizing prefixes", err)
	}
	res.Prefixes = normalized
	res.PrefixCount = len(normalized)

	out, err := render.Render(name, normalized, req.Family, req.Format)
	if err != nil {
		return nil, err
	}
	res.Output = out

	log.FromCtx(ctx).Info("Filter generated",
		"name", name, "targets", targets, "family", req.Family,
		"format", req.Format, "prefixes", res.PrefixCount,
		"degraded", res.Degraded)
	return res, nil
}

// DeriveName turns a target into a filter name the format accepts: BIRD
// symbols cannot carry "-" or ":", the others pass the target through.
func DeriveName(t prefix.Target, format render.Format) string {
	name := t.String()
	if format == render.BIRD {
		name = strings.NewReplacer("-", "_", ":", "_").Replace(name)
	}
	return name
}
