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

// Package graphutil implements the graph algorithms the analyses need on block graphs: strongly
// connected components for loop identification and elementary cycles for widening diagnostics.
package graphutil

import (
	"sort"

	"gonum.org/v1/gonum/graph"
)

// FlowGraph is an adjacency representation of a directed graph of numbered nodes. It implements the
// methods to satisfy graph.Iterator of yourbasic/graph and Gonum's graph.Graph, so both libraries'
// algorithms can run on a control-flow graph without copying it per call.
type FlowGraph struct {
	// The order of the graph
	order int

	// Keys are all the node IDs
	Keys []int64

	// Edges is an adjacency matrix: Edges[x][y] means there is a directed edge from x to y
	Edges map[int64]map[int64]bool
}

// NewFlowGraph builds a flow graph over node ids 0..n-1 where succs returns the successor ids of a
// node.
func NewFlowGraph(n int, succs func(int) []int) FlowGraph {
	keys := make([]int64, n)
	edges := make(map[int64]map[int64]bool, n)
	for i := 0; i < n; i++ {
		keys[i] = int64(i)
		edges[int64(i)] = map[int64]bool{}
		for _, s := range succs(i) {
			edges[int64(i)][int64(s)] = true
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return FlowGraph{order: n, Keys: keys, Edges: edges}
}

// Subgraph returns a new graph that is the original graph with only the nodes in include. Only the
// edges that have both the origin and destination nodes in the include nodes are kept. The
// subgraph's order is the same as in the original, so node indices stay consistent across
// subgraphs.
func Subgraph(original FlowGraph, include []int64) FlowGraph {
	inSub := make(map[int64]bool, len(include))
	edges := make(map[int64]map[int64]bool, len(include))
	keys := make([]int64, len(include))

	for j, i := range include {
		keys[j] = i
		inSub[i] = true
	}

	for _, i := range include {
		edges[i] = map[int64]bool{}
		for e := range original.Edges[i] {
			if inSub[e] {
				edges[i][e] = true
			}
		}
	}

	return FlowGraph{order: original.order, Keys: keys, Edges: edges}
}

// Order implements the order of the graph.Iterator interface for the FlowGraph
func (c FlowGraph) Order() int {
	return c.order
}

// Visit implements the graph.Iterator interface for the FlowGraph
func (c FlowGraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	for w := range c.Edges[int64(v)] {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// *************** Gonum graph interface implementation **********************

// Node implements the Graph interface
func (c FlowGraph) Node(id int64) graph.Node {
	if _, ok := c.Edges[id]; !ok {
		return nil
	}
	return VNode(id)
}

// Nodes returns the set of nodes in the graph
func (c FlowGraph) Nodes() graph.Nodes {
	ids := make([]int64, len(c.Keys))
	copy(ids, c.Keys)
	return &NodeSet{ids: ids, cur: 0}
}

// From returns the set of nodes reachable from the id
func (c FlowGraph) From(id int64) graph.Nodes {
	var ids []int64
	for out := range c.Edges[id] {
		ids = append(ids, out)
	}
	return &NodeSet{ids: ids, cur: 0}
}

// HasEdgeBetween returns a boolean indicating whether an edge exists between the two node identifiers
func (c FlowGraph) HasEdgeBetween(xid, yid int64) bool {
	return c.Edges[xid][yid] || c.Edges[yid][xid]
}

// Edge returns the edge between the two identifiers (nil if none exists)
func (c FlowGraph) Edge(uid, vid int64) graph.Edge {
	if c.Edges[uid][vid] {
		return VEdge{from: VNode(uid), to: VNode(vid)}
	}
	return nil
}

// VNode is a node identifier implementing the graph.Node interface
type VNode int64

// ID returns the id of the node
func (n VNode) ID() int64 { return int64(n) }

// VEdge is a directed edge between two VNodes implementing the graph.Edge interface
type VEdge struct {
	from, to VNode
}

// From returns the origin of the edge
func (e VEdge) From() graph.Node { return e.from }

// To returns the destination of the edge
func (e VEdge) To() graph.Node { return e.to }

// ReversedEdge returns the edge with origin and destination swapped
func (e VEdge) ReversedEdge() graph.Edge { return VEdge{from: e.to, to: e.from} }

// NodeSet implements the graph.Nodes interface, an iterator over a set of nodes
type NodeSet struct {
	// ids is the set of node ids in the iterator
	ids []int64

	// cur is the current index of the iterator. The iterator starts before the first node.
	cur int
}

// Next moves to the next node, and returns true if such a node exists.
func (ns *NodeSet) Next() bool {
	if ns.cur < len(ns.ids) {
		ns.cur++
		return ns.cur <= len(ns.ids)
	}
	return false
}

// Len returns the number of nodes remaining in the iterator
func (ns *NodeSet) Len() int {
	return len(ns.ids) - ns.cur
}

// Reset restarts the iterator
func (ns *NodeSet) Reset() {
	ns.cur = 0
}

// Node returns the current node
func (ns *NodeSet) Node() graph.Node {
	if ns.cur == 0 || ns.cur > len(ns.ids) {
		return nil
	}
	return VNode(ns.ids[ns.cur-1])
}
