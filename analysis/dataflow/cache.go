// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataflow

import (
	"strings"
	"sync"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
)

// A ResultCache caches analysis results across the many per-procedure runs of one compilation
// pass. Concurrent callers asking for the same key block on a single computation; everything the
// cache hands out afterwards is the shared, read-only result of that one run.
type ResultCache[R any] struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry[R]
}

type cacheEntry[R any] struct {
	once   sync.Once
	result R
	err    error
}

// NewResultCache returns an empty cache.
func NewResultCache[R any]() *ResultCache[R] {
	return &ResultCache[R]{entries: map[string]*cacheEntry[R]{}}
}

// CacheKey builds the cache key of one run. It covers the graph structure, the owning procedure
// and every configuration fingerprint that changes the computed values; two requests differing in
// any configured parameter never share a result.
func CacheKey(g *cfg.Graph, configFingerprints ...string) string {
	parts := append([]string{g.Owner.Name, g.Fingerprint()}, configFingerprints...)
	return strings.Join(parts, "|")
}

// GetOrCompute returns the cached result of key, running compute at most once per key.
func (c *ResultCache[R]) GetOrCompute(key string, compute func() (R, error)) (R, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry[R]{}
		c.entries[key] = e
	}
	c.mu.Unlock()
	e.once.Do(func() {
		e.result, e.err = compute()
	})
	return e.result, e.err
}

// Len returns the number of cached keys.
func (c *ResultCache[R]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
