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

// Package irr groups the components that turn registry data into filter
// artifacts: the external resolver adapter, the query cache, the AS-SET
// resolution engine and the renderers. This file defines the metrics shared
// by those components.
package irr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolverQueriesTotal counts invocations of the external resolver
	// process, labeled by query kind (prefixes or members) and result.
	ResolverQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "irr_resolver_queries_total",
		Help: "Total number of external resolver invocations.",
	}, []string{"kind", "result"})

	// CacheHitsTotal counts query cache hits.
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irr_cache_hits_total",
		Help: "Total number of query cache hits.",
	})

	// CacheMissesTotal counts query cache misses that triggered a fetch.
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irr_cache_misses_total",
		Help: "Total number of query cache misses.",
	})
)

// Result label values for ResolverQueriesTotal.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
