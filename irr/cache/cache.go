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

// Package cache memoizes expensive registry queries for the duration of a
// session. Entries expire after a TTL and are then re-fetched, never served
// stale. Concurrent requests for the same key collapse into a single
// in-flight fetch; requests for distinct keys proceed fully concurrently.
package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/noctools/prefixgen/irr"
	"github.com/noctools/prefixgen/pkg/log"
	"github.com/noctools/prefixgen/pkg/prefix"
)

// DefaultTTL bounds how long a registry answer is reused. Registry data
// changes slowly relative to one invocation session, so minutes are
// appropriate.
const DefaultTTL = 15 * time.Minute

// Key identifies a memoized query: the query mode, the target, the address
// family and the IRR source restriction all change the answer.
type Key struct {
	Mode    string
	Target  prefix.Target
	Family  prefix.Family
	Sources string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", k.Mode, k.Target, k.Family, k.Sources)
}

// Query modes.
const (
	ModePrefixes = "prefixes"
	ModeMembers  = "members"
)

// Cache is a TTL cache with per-key fetch collapsing. The zero value is not
// usable; construct it with New.
type Cache[T any] struct {
	store *gocache.Cache
	group singleflight.Group
}

// New creates a cache whose entries expire after ttl. A non-positive ttl
// selects DefaultTTL.
func New[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{
		store: gocache.New(ttl, 2*ttl),
	}
}

// GetOrFetch returns the cached value for key, or runs fetch and caches its
// result. At most one fetch per key is in flight at any time; callers that
// arrive while one is running wait for its result. Failed and cancelled
// fetches are never stored, so a later call re-fetches.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key Key,
	fetch func(context.Context) (T, error)) (T, error) {

	k := key.String()
	if v, ok := c.store.Get(k); ok {
		irr.CacheHitsTotal.Inc()
		return v.(T), nil
	}
	irr.CacheMissesTotal.Inc()

	ch := c.group.DoChan(k, func() (interface{}, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store.SetDefault(k, v)
		return v, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		if res.Shared {
			log.FromCtx(ctx).Debug("Shared in-flight registry fetch", "key", k)
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
