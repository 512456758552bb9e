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

// Package pool provides reusable scratch collections for the per-method analysis passes. A single compilation
// may run the fixed-point solver over thousands of control-flow graphs; drawing the short-lived builder maps
// and sets from a pool bounds the allocation churn of those runs.
//
// Callers must release what they acquire, on every exit path:
//
//	keys := entityScratch.Acquire()
//	defer entityScratch.Release(keys)
package pool

import "sync"

// maxRetainedSize bounds the size of collections returned to a pool, so the pool never retains the
// occasional huge function's working set.
const maxRetainedSize = 1 << 10

// SetPool is a pool of scratch sets keyed by T. The zero value is not usable, use NewSetPool.
type SetPool[T comparable] struct {
	p sync.Pool
}

// NewSetPool returns a pool of map-represented sets with keys of type T.
func NewSetPool[T comparable]() *SetPool[T] {
	return &SetPool[T]{
		p: sync.Pool{
			New: func() any { return make(map[T]bool, 16) },
		},
	}
}

// Acquire returns an empty scratch set.
func (sp *SetPool[T]) Acquire() map[T]bool {
	return sp.p.Get().(map[T]bool)
}

// Release clears the set and returns it to the pool.
func (sp *SetPool[T]) Release(s map[T]bool) {
	if s == nil || len(s) > maxRetainedSize {
		return
	}
	for k := range s {
		delete(s, k)
	}
	sp.p.Put(s)
}

// SlicePool is a pool of scratch slices of T. The zero value is not usable, use NewSlicePool.
type SlicePool[T any] struct {
	p sync.Pool
}

// NewSlicePool returns a pool of slices with elements of type T.
func NewSlicePool[T any]() *SlicePool[T] {
	return &SlicePool[T]{
		p: sync.Pool{
			New: func() any { return new([]T) },
		},
	}
}

// Acquire returns an empty scratch slice.
func (sp *SlicePool[T]) Acquire() *[]T {
	s := sp.p.Get().(*[]T)
	*s = (*s)[:0]
	return s
}

// Release returns the slice to the pool.
func (sp *SlicePool[T]) Release(s *[]T) {
	if s == nil || cap(*s) > maxRetainedSize {
		return
	}
	sp.p.Put(s)
}
