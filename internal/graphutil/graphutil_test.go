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

package graphutil

import (
	"sort"
	"testing"
)

func TestStronglyConnectedComponents(t *testing.T) {
	// 0 -> 1 -> 2 -> 1, 2 -> 3
	edges := map[int][]int{0: {1}, 1: {2}, 2: {1, 3}, 3: {}}
	sccs := StronglyConnectedComponents([]int{0, 1, 2, 3}, func(n int) []int {
		return edges[n]
	})

	var sizes []int
	var loop []int
	for _, scc := range sccs {
		sizes = append(sizes, len(scc))
		if len(scc) > 1 {
			loop = append([]int{}, scc...)
		}
	}
	sort.Ints(sizes)
	if len(sccs) != 3 {
		t.Fatalf("found %d components, want 3: %v", len(sccs), sccs)
	}
	sort.Ints(loop)
	if len(loop) != 2 || loop[0] != 1 || loop[1] != 2 {
		t.Errorf("cyclic component = %v, want [1 2]", loop)
	}
}

func TestStronglyConnectedComponentsAcyclic(t *testing.T) {
	edges := map[string][]string{"a": {"b"}, "b": {"c"}, "c": {}}
	sccs := StronglyConnectedComponents([]string{"a", "b", "c"}, func(n string) []string {
		return edges[n]
	})
	if len(sccs) != 3 {
		t.Fatalf("found %d components, want 3", len(sccs))
	}
	for _, scc := range sccs {
		if len(scc) != 1 {
			t.Errorf("acyclic graph produced component %v", scc)
		}
	}
}

func TestFindAllElementaryCycles(t *testing.T) {
	// Two overlapping cycles: 0->1->0 and 1->2->1.
	edges := map[int][]int{0: {1}, 1: {0, 2}, 2: {1}}
	fg := NewFlowGraph(3, func(n int) []int { return edges[n] })
	cycles := FindAllElementaryCycles(fg)
	if len(cycles) != 2 {
		t.Fatalf("found %d cycles, want 2: %v", len(cycles), cycles)
	}
	for _, c := range cycles {
		if len(c) != 2 {
			t.Errorf("cycle %v, want length 2", c)
		}
	}
}

func TestFindAllElementaryCyclesNone(t *testing.T) {
	edges := map[int][]int{0: {1}, 1: {2}, 2: {}}
	fg := NewFlowGraph(3, func(n int) []int { return edges[n] })
	if cycles := FindAllElementaryCycles(fg); len(cycles) != 0 {
		t.Errorf("acyclic graph produced cycles %v", cycles)
	}
}

func TestSubgraph(t *testing.T) {
	edges := map[int][]int{0: {1, 2}, 1: {2}, 2: {0}}
	fg := NewFlowGraph(3, func(n int) []int { return edges[n] })
	sub := Subgraph(fg, []int64{0, 2})
	if !sub.HasEdgeBetween(0, 2) {
		t.Error("edge 0->2 must survive in the subgraph")
	}
	if sub.HasEdgeBetween(0, 1) {
		t.Error("edges to excluded nodes must be dropped")
	}
}
