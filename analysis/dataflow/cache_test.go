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
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

func TestResultCacheComputesOnce(t *testing.T) {
	c := NewResultCache[int]()
	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrCompute("k", func() (int, error) {
				calls.Add(1)
				return 42, nil
			})
			if err != nil || got != 42 {
				t.Errorf("GetOrCompute = %d, %v", got, err)
			}
		}()
	}
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("cache has %d keys, want 1", c.Len())
	}
}

func TestResultCacheCachesErrors(t *testing.T) {
	c := NewResultCache[int]()
	boom := errors.New("boom")
	var calls int
	for i := 0; i < 2; i++ {
		if _, err := c.GetOrCompute("k", func() (int, error) {
			calls++
			return 0, boom
		}); !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	}
	if calls != 1 {
		t.Errorf("failed compute ran %d times, want 1", calls)
	}
}

func TestCacheKeySeparatesGraphsAndConfigs(t *testing.T) {
	build := func(name string, blocks int) *cfg.Graph {
		b := cfg.NewBuilder(&ops.Symbol{Name: name, Kind: ops.SymbolMethod})
		prev := b.Entry()
		for i := 0; i < blocks; i++ {
			blk := b.NewBlock()
			b.SetFallThrough(prev, blk)
			prev = blk
		}
		b.SetFallThrough(prev, b.Exit())
		g, err := b.Finish()
		if err != nil {
			t.Fatal(err)
		}
		return g
	}

	g1 := build("p", 1)
	g2 := build("p", 2)
	if CacheKey(g1, "cfg") == CacheKey(g2, "cfg") {
		t.Error("graphs with different shapes must have different keys")
	}
	if CacheKey(g1, "a") == CacheKey(g1, "b") {
		t.Error("different config fingerprints must have different keys")
	}
	if CacheKey(g1, "a") != CacheKey(g1, "a") {
		t.Error("key must be deterministic")
	}
}
