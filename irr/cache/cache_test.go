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

package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noctools/prefixgen/irr/cache"
	"github.com/noctools/prefixgen/pkg/prefix"
	"github.com/noctools/prefixgen/pkg/private/serrors"
)

func TestMain(m *testing.M) {
	// go-cache starts a janitor goroutine per cache that lives until the
	// cache is garbage collected.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func key(target string) cache.Key {
	return cache.Key{
		Mode:   cache.ModePrefixes,
		Target: prefix.Target(target),
		Family: prefix.IPv4,
	}
}

func TestGetOrFetchIdempotent(t *testing.T) {
	c := cache.New[[]prefix.Record](time.Minute)
	var calls atomic.Int32
	fetch := func(context.Context) ([]prefix.Record, error) {
		calls.Add(1)
		return []prefix.Record{prefix.MustParseRecord("10.0.0.0/24")}, nil
	}

	first, err := c.GetOrFetch(context.Background(), key("AS65000"), fetch)
	require.NoError(t, err)
	second, err := c.GetOrFetch(context.Background(), key("AS65000"), fetch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(),
		"second call within the TTL window must not fetch")
}

func TestGetOrFetchDistinctKeys(t *testing.T) {
	c := cache.New[[]prefix.Record](time.Minute)
	var calls atomic.Int32
	fetch := func(context.Context) ([]prefix.Record, error) {
		calls.Add(1)
		return nil, nil
	}

	_, err := c.GetOrFetch(context.Background(), key("AS65000"), fetch)
	require.NoError(t, err)
	k6 := key("AS65000")
	k6.Family = prefix.IPv6
	_, err = c.GetOrFetch(context.Background(), k6, fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(),
		"family is part of the key")
}

func TestGetOrFetchCollapsesConcurrent(t *testing.T) {
	c := cache.New[[]prefix.Record](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]prefix.Record, error) {
		calls.Add(1)
		<-release
		return []prefix.Record{prefix.MustParseRecord("10.0.0.0/24")}, nil
	}

	const waiters = 8
	var wg sync.WaitGroup
	results := make([][]prefix.Record, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), key("AS65000"), fetch)
		}()
	}
	// Let all goroutines reach the cache before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(),
		"concurrent requests for one key must collapse into one fetch")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 1)
	}
}

func TestErrorNotCached(t *testing.T) {
	c := cache.New[[]prefix.Record](time.Minute)
	var calls atomic.Int32
	boom := serrors.New("registry unavailable")
	fetch := func(context.Context) ([]prefix.Record, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return []prefix.Record{prefix.MustParseRecord("10.0.0.0/24")}, nil
	}

	_, err := c.GetOrFetch(context.Background(), key("AS65000"), fetch)
	assert.ErrorIs(t, err, boom)

	got, err := c.GetOrFetch(context.Background(), key("AS65000"), fetch)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load(),
		"a failed fetch must not poison the cache")
}

func TestExpiredEntryRefetched(t *testing.T) {
	c := cache.New[[]prefix.Record](20 * time.Millisecond)
	var calls atomic.Int32
	fetch := func(context.Context) ([]prefix.Record, error) {
		calls.Add(1)
		return nil, nil
	}

	_, err := c.GetOrFetch(context.Background(), key("AS65000"), fetch)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = c.GetOrFetch(context.Background(), key("AS65000"), fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(),
		"expired entries are treated as absent, never served stale")
}

func TestCancelledFetchNotCached(t *testing.T) {
	c := cache.New[[]prefix.Record](time.Minute)
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context) ([]prefix.Record, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.GetOrFetch(ctx, key("AS65000"), fetch)
	assert.Error(t, err)
	// Let the aborted flight drain so the next call starts a fresh one.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.GetOrFetch(context.Background(), key("AS65000"),
			func(context.Context) ([]prefix.Record, error) {
				calls.Add(1)
				return nil, nil
			})
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-fetch after cancellation did not complete")
	}
	assert.Equal(t, int32(2), calls.Load())
}
