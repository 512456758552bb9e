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

// Package cfg defines the control-flow-graph model the dataflow engine consumes: ordered basic
// blocks holding operations, structured branches, and try/catch/finally regions. The engine never
// builds a graph from source; a frontend (or a test) assembles one through the Builder and the
// engine treats the finished graph as read-only.
package cfg

import (
	"fmt"

	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

// BlockKind discriminates entry, exit and ordinary blocks.
type BlockKind int

const (
	BlockEntry BlockKind = iota
	BlockRegular
	BlockExit
)

// ConditionKind states when the conditional successor of a block is taken.
type ConditionKind int

const (
	// ConditionNone means the block has no conditional successor
	ConditionNone ConditionKind = iota

	// WhenTrue means the conditional successor is taken when the branch value evaluates to true
	WhenTrue

	// WhenFalse means the conditional successor is taken when the branch value evaluates to false
	WhenFalse
)

// BranchSemantics describes how control leaves a block along a branch.
type BranchSemantics int

const (
	// BranchRegular is an ordinary jump to the destination block
	BranchRegular BranchSemantics = iota

	// BranchReturn leaves the procedure through the exit block
	BranchReturn

	// BranchThrow raises an exception; the branch has no destination block
	BranchThrow

	// BranchRethrow re-raises the exception being handled; no destination block
	BranchRethrow

	// BranchStructuredExceptionHandling is the implicit exit of a finally region: control continues
	// wherever the finally was entered from, which the engine resolves dynamically
	BranchStructuredExceptionHandling
)

func (s BranchSemantics) String() string {
	switch s {
	case BranchRegular:
		return "regular"
	case BranchReturn:
		return "return"
	case BranchThrow:
		return "throw"
	case BranchRethrow:
		return "rethrow"
	case BranchStructuredExceptionHandling:
		return "finally-exit"
	default:
		return fmt.Sprintf("branch(%d)", int(s))
	}
}

// RegionKind identifies the structural role of a region of consecutive blocks.
type RegionKind int

const (
	RegionRoot RegionKind = iota
	RegionLocalLifetime
	RegionTry
	RegionTryAndCatch
	RegionTryAndFinally
	RegionCatch
	RegionFilter
	RegionFilterAndHandler
	RegionFinally
)

func (k RegionKind) String() string {
	switch k {
	case RegionRoot:
		return "root"
	case RegionLocalLifetime:
		return "localLifetime"
	case RegionTry:
		return "try"
	case RegionTryAndCatch:
		return "tryAndCatch"
	case RegionTryAndFinally:
		return "tryAndFinally"
	case RegionCatch:
		return "catch"
	case RegionFilter:
		return "filter"
	case RegionFilterAndHandler:
		return "filterAndHandler"
	case RegionFinally:
		return "finally"
	default:
		return fmt.Sprintf("region(%d)", int(k))
	}
}

// A Region is a set of consecutive blocks with structural meaning, such as the body of a try.
// Regions nest properly: the blocks of a nested region are a sub-range of its enclosing region.
type Region struct {
	Kind          RegionKind
	Enclosing     *Region
	Nested        []*Region
	FirstOrdinal  int
	LastOrdinal   int
	ExceptionType ops.TypeInfo
}

// ContainsOrdinal returns true when the block ordinal lies in the region's range.
func (r *Region) ContainsOrdinal(ordinal int) bool {
	return r != nil && r.FirstOrdinal <= ordinal && ordinal <= r.LastOrdinal
}

// TryRegion returns the try sub-region of a TryAndCatch or TryAndFinally region.
func (r *Region) TryRegion() *Region {
	if r == nil || (r.Kind != RegionTryAndCatch && r.Kind != RegionTryAndFinally) {
		return nil
	}
	for _, n := range r.Nested {
		if n.Kind == RegionTry {
			return n
		}
	}
	return nil
}

// FinallyRegion returns the finally sub-region of a TryAndFinally region.
func (r *Region) FinallyRegion() *Region {
	if r == nil || r.Kind != RegionTryAndFinally {
		return nil
	}
	for _, n := range r.Nested {
		if n.Kind == RegionFinally {
			return n
		}
	}
	return nil
}

// HandlerRegions returns the catch and filter-and-handler sub-regions of a TryAndCatch region.
func (r *Region) HandlerRegions() []*Region {
	if r == nil || r.Kind != RegionTryAndCatch {
		return nil
	}
	var handlers []*Region
	for _, n := range r.Nested {
		if n.Kind == RegionCatch || n.Kind == RegionFilterAndHandler {
			handlers = append(handlers, n)
		}
	}
	return handlers
}

// IsHandlerEntry returns true when the ordinal is the first block of a catch, filter or
// filter-and-handler region.
func (r *Region) IsHandlerEntry(ordinal int) bool {
	if r == nil {
		return false
	}
	switch r.Kind {
	case RegionCatch, RegionFilter, RegionFilterAndHandler:
		return r.FirstOrdinal == ordinal
	}
	return false
}

// A Branch is a directed control-flow edge out of a block. Destination is nil for branches that do
// not transfer control to another block of the graph (throws and finally exits).
type Branch struct {
	Source      *BasicBlock
	Destination *BasicBlock
	Semantics   BranchSemantics

	// LeavingRegions lists the regions the branch exits, innermost first. Computed by the builder.
	LeavingRegions []*Region

	// FinallyRegions lists the finally regions the branch must execute before reaching its
	// destination, innermost first. Computed by the builder.
	FinallyRegions []*Region

	// IsBackEdge is true when the destination's ordinal is not greater than the source's, i.e. the
	// branch closes a loop.
	IsBackEdge bool
}

// A BasicBlock is a maximal sequence of operations with a single entry at the top. Blocks are
// identified and ordered by their Ordinal within the graph.
type BasicBlock struct {
	Kind    BlockKind
	Ordinal int

	// Operations are the root statements of the block, flowed in order by the engine.
	Operations []ops.Operation

	// BranchValue is the condition controlling the conditional successor, nil if ConditionKind is
	// ConditionNone.
	BranchValue   ops.Operation
	ConditionKind ConditionKind

	// FallThrough is the unconditional (or condition-not-taken) successor branch. Nil only for the
	// exit block.
	FallThrough *Branch

	// Conditional is the successor branch taken when BranchValue evaluates per ConditionKind.
	Conditional *Branch

	Predecessors []*BasicBlock

	// Region is the innermost region containing the block.
	Region *Region

	// InLoop is true when the block belongs to a non-trivial strongly connected component of the
	// block graph. Back-edge widening only applies to such blocks.
	InLoop bool
}

// Successors returns the destination blocks of the block's branches, conditional first.
func (b *BasicBlock) Successors() []*BasicBlock {
	var succs []*BasicBlock
	if b.Conditional != nil && b.Conditional.Destination != nil {
		succs = append(succs, b.Conditional.Destination)
	}
	if b.FallThrough != nil && b.FallThrough.Destination != nil {
		succs = append(succs, b.FallThrough.Destination)
	}
	return succs
}

// Branches returns the outgoing branches of the block, conditional first.
func (b *BasicBlock) Branches() []*Branch {
	var brs []*Branch
	if b.Conditional != nil {
		brs = append(brs, b.Conditional)
	}
	if b.FallThrough != nil {
		brs = append(brs, b.FallThrough)
	}
	return brs
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("B%d", b.Ordinal)
}

// A Graph is a finalized control-flow graph: blocks in ordinal order, a region tree rooted at Root,
// and the symbol of the procedure the graph was built for. Finalized graphs are immutable.
type Graph struct {
	Blocks []*BasicBlock
	Root   *Region
	Owner  *ops.Symbol

	fingerprint string
}

// Entry returns the entry block of the graph.
func (g *Graph) Entry() *BasicBlock {
	return g.Blocks[0]
}

// Exit returns the exit block of the graph.
func (g *Graph) Exit() *BasicBlock {
	return g.Blocks[len(g.Blocks)-1]
}

// Fingerprint returns a stable content hash of the graph structure. Result caches key on it, so
// two structurally identical graphs built for the same owner share cached analysis results.
func (g *Graph) Fingerprint() string {
	return g.fingerprint
}

// EnclosingRegions returns the chain of regions containing the block, innermost first.
func (g *Graph) EnclosingRegions(b *BasicBlock) []*Region {
	var regions []*Region
	for r := b.Region; r != nil; r = r.Enclosing {
		regions = append(regions, r)
	}
	return regions
}
