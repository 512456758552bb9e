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

package cfg

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/mavasani/roslyn-analyzers/analysis/ops"
	"github.com/mavasani/roslyn-analyzers/internal/graphutil"
)

// Builder assembles a control-flow graph block by block. The zero value is not usable; use
// NewBuilder. Finish validates the graph, computes predecessor links, region nesting, back edges
// and the structure fingerprint, and returns an immutable Graph.
type Builder struct {
	owner   *ops.Symbol
	entry   *BasicBlock
	exit    *BasicBlock
	blocks  []*BasicBlock
	regions []*Region
	done    bool
}

// NewBuilder returns a builder with an entry and an exit block already allocated.
func NewBuilder(owner *ops.Symbol) *Builder {
	entry := &BasicBlock{Kind: BlockEntry, Ordinal: 0}
	exit := &BasicBlock{Kind: BlockExit, Ordinal: -1}
	return &Builder{
		owner:  owner,
		entry:  entry,
		exit:   exit,
		blocks: []*BasicBlock{entry},
	}
}

// Entry returns the entry block.
func (b *Builder) Entry() *BasicBlock { return b.entry }

// Exit returns the exit block.
func (b *Builder) Exit() *BasicBlock { return b.exit }

// NewBlock appends a new regular block.
func (b *Builder) NewBlock() *BasicBlock {
	blk := &BasicBlock{Kind: BlockRegular, Ordinal: len(b.blocks)}
	b.blocks = append(b.blocks, blk)
	return blk
}

// AddOperation appends a root operation to the block.
func (b *Builder) AddOperation(blk *BasicBlock, op ops.Operation) {
	blk.Operations = append(blk.Operations, op)
}

// SetFallThrough connects from to dest unconditionally.
func (b *Builder) SetFallThrough(from, dest *BasicBlock) {
	from.FallThrough = &Branch{Source: from, Destination: dest, Semantics: BranchRegular}
}

// SetConditional gives from a condition: whenTrue is taken when condition evaluates to true,
// whenFalse otherwise.
func (b *Builder) SetConditional(from *BasicBlock, condition ops.Operation, whenTrue, whenFalse *BasicBlock) {
	from.BranchValue = condition
	from.ConditionKind = WhenTrue
	from.Conditional = &Branch{Source: from, Destination: whenTrue, Semantics: BranchRegular}
	from.FallThrough = &Branch{Source: from, Destination: whenFalse, Semantics: BranchRegular}
}

// SetReturn makes from leave the procedure through the exit block.
func (b *Builder) SetReturn(from *BasicBlock) {
	from.FallThrough = &Branch{Source: from, Destination: b.exit, Semantics: BranchReturn}
}

// SetThrow makes from raise an exception. The branch has no destination; the engine routes the
// data to enclosing handlers.
func (b *Builder) SetThrow(from *BasicBlock) {
	from.FallThrough = &Branch{Source: from, Semantics: BranchThrow}
}

// SetRethrow makes from re-raise the exception being handled.
func (b *Builder) SetRethrow(from *BasicBlock) {
	from.FallThrough = &Branch{Source: from, Semantics: BranchRethrow}
}

// SetFinallyExit marks from as the implicit exit of a finally region: control continues wherever
// the finally was entered from.
func (b *Builder) SetFinallyExit(from *BasicBlock) {
	from.FallThrough = &Branch{Source: from, Semantics: BranchStructuredExceptionHandling}
}

// AddTryFinally declares a try/finally construct: the try body spans tryFirst..tryLast and the
// finally spans finFirst..finLast. Returns the composite region.
func (b *Builder) AddTryFinally(tryFirst, tryLast, finFirst, finLast *BasicBlock) *Region {
	composite := &Region{
		Kind:         RegionTryAndFinally,
		FirstOrdinal: tryFirst.Ordinal,
		LastOrdinal:  finLast.Ordinal,
	}
	tryRegion := &Region{Kind: RegionTry, Enclosing: composite,
		FirstOrdinal: tryFirst.Ordinal, LastOrdinal: tryLast.Ordinal}
	finRegion := &Region{Kind: RegionFinally, Enclosing: composite,
		FirstOrdinal: finFirst.Ordinal, LastOrdinal: finLast.Ordinal}
	composite.Nested = []*Region{tryRegion, finRegion}
	b.regions = append(b.regions, composite)
	return composite
}

// HandlerSpec declares one handler of a try/catch construct.
type HandlerSpec struct {
	First, Last   *BasicBlock
	ExceptionType ops.TypeInfo
}

// AddTryCatch declares a try/catch construct: the try body spans tryFirst..tryLast, followed by
// one or more catch handlers. Returns the composite region.
func (b *Builder) AddTryCatch(tryFirst, tryLast *BasicBlock, handlers ...HandlerSpec) *Region {
	last := tryLast.Ordinal
	if len(handlers) > 0 {
		last = handlers[len(handlers)-1].Last.Ordinal
	}
	composite := &Region{
		Kind:         RegionTryAndCatch,
		FirstOrdinal: tryFirst.Ordinal,
		LastOrdinal:  last,
	}
	tryRegion := &Region{Kind: RegionTry, Enclosing: composite,
		FirstOrdinal: tryFirst.Ordinal, LastOrdinal: tryLast.Ordinal}
	composite.Nested = []*Region{tryRegion}
	for _, h := range handlers {
		catchRegion := &Region{Kind: RegionCatch, Enclosing: composite,
			FirstOrdinal: h.First.Ordinal, LastOrdinal: h.Last.Ordinal, ExceptionType: h.ExceptionType}
		composite.Nested = append(composite.Nested, catchRegion)
	}
	b.regions = append(b.regions, composite)
	return composite
}

// AddLocalLifetime declares a local-lifetime region spanning first..last.
func (b *Builder) AddLocalLifetime(first, last *BasicBlock) *Region {
	r := &Region{Kind: RegionLocalLifetime, FirstOrdinal: first.Ordinal, LastOrdinal: last.Ordinal}
	b.regions = append(b.regions, r)
	return r
}

// Finish validates and finalizes the graph. The builder must not be reused afterwards.
func (b *Builder) Finish() (*Graph, error) {
	if b.done {
		return nil, fmt.Errorf("builder already finished")
	}
	b.done = true

	b.exit.Ordinal = len(b.blocks)
	b.blocks = append(b.blocks, b.exit)

	root := &Region{Kind: RegionRoot, FirstOrdinal: 0, LastOrdinal: b.exit.Ordinal}
	if err := b.nestRegions(root); err != nil {
		return nil, err
	}
	b.assignInnermostRegions(root)

	for _, blk := range b.blocks {
		if blk.Kind != BlockExit && blk.FallThrough == nil {
			return nil, fmt.Errorf("block B%d has no terminator", blk.Ordinal)
		}
		if blk.Conditional != nil && blk.BranchValue == nil {
			return nil, fmt.Errorf("block B%d has a conditional successor but no branch value", blk.Ordinal)
		}
	}

	// Predecessors, region transit information, back edges
	for _, blk := range b.blocks {
		for _, br := range blk.Branches() {
			b.computeBranchRegions(br)
			if br.Destination != nil {
				br.Destination.Predecessors = append(br.Destination.Predecessors, blk)
				br.IsBackEdge = br.Destination.Ordinal <= blk.Ordinal
			}
		}
	}

	b.markLoops()

	g := &Graph{Blocks: b.blocks, Root: root, Owner: b.owner}
	g.fingerprint = fingerprint(g)
	return g, nil
}

// nestRegions builds the region tree under root from the declared region ranges.
func (b *Builder) nestRegions(root *Region) error {
	regions := make([]*Region, len(b.regions))
	copy(regions, b.regions)
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].FirstOrdinal != regions[j].FirstOrdinal {
			return regions[i].FirstOrdinal < regions[j].FirstOrdinal
		}
		return regions[i].LastOrdinal > regions[j].LastOrdinal
	})

	stack := []*Region{root}
	for _, r := range regions {
		if r.FirstOrdinal > r.LastOrdinal {
			return fmt.Errorf("region %s has inverted range [%d, %d]", r.Kind, r.FirstOrdinal, r.LastOrdinal)
		}
		for len(stack) > 1 && !contains(stack[len(stack)-1], r) {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		if !contains(parent, r) {
			return fmt.Errorf("region %s [%d, %d] is not properly nested", r.Kind, r.FirstOrdinal, r.LastOrdinal)
		}
		r.Enclosing = parent
		parent.Nested = append(parent.Nested, r)
		stack = append(stack, r)
	}
	return nil
}

func contains(outer, inner *Region) bool {
	return outer.FirstOrdinal <= inner.FirstOrdinal && inner.LastOrdinal <= outer.LastOrdinal
}

// assignInnermostRegions sets every block's Region to the innermost region containing its ordinal.
func (b *Builder) assignInnermostRegions(root *Region) {
	var walk func(r *Region)
	walk = func(r *Region) {
		for _, blk := range b.blocks {
			if r.ContainsOrdinal(blk.Ordinal) {
				if blk.Region == nil || regionDepth(r) > regionDepth(blk.Region) {
					blk.Region = r
				}
			}
		}
		for _, n := range r.Nested {
			walk(n)
		}
	}
	walk(root)
}

func regionDepth(r *Region) int {
	d := 0
	for cur := r; cur != nil; cur = cur.Enclosing {
		d++
	}
	return d
}

// computeBranchRegions fills LeavingRegions and FinallyRegions for the branch. A branch leaves
// every region that contains its source but not its destination; branches without a destination
// (throws and finally exits) leave every region up to the root. A branch that leaves the try part
// of a try/finally must execute that finally before reaching its destination.
func (b *Builder) computeBranchRegions(br *Branch) {
	src := br.Source.Ordinal
	for r := br.Source.Region; r != nil && r.Kind != RegionRoot; r = r.Enclosing {
		if br.Destination != nil && r.ContainsOrdinal(br.Destination.Ordinal) {
			break
		}
		br.LeavingRegions = append(br.LeavingRegions, r)
		if r.Kind == RegionTryAndFinally && r.TryRegion().ContainsOrdinal(src) {
			br.FinallyRegions = append(br.FinallyRegions, r.FinallyRegion())
		}
	}
}

// markLoops marks the blocks that belong to a non-trivial strongly connected component.
func (b *Builder) markLoops() {
	nodes := make([]int, len(b.blocks))
	for i := range b.blocks {
		nodes[i] = i
	}
	succs := func(i int) []int {
		var out []int
		for _, s := range b.blocks[i].Successors() {
			out = append(out, s.Ordinal)
		}
		return out
	}
	sccs := graphutil.StronglyConnectedComponents(nodes, succs)
	for _, scc := range sccs {
		inLoop := len(scc) > 1
		if len(scc) == 1 {
			// self loop
			n := scc[0]
			for _, s := range succs(n) {
				if s == n {
					inLoop = true
				}
			}
		}
		if inLoop {
			for _, n := range scc {
				b.blocks[n].InLoop = true
			}
		}
	}
}

// Loops returns the elementary cycles of the finished graph as ordinal sequences. Intended for
// debug output when tuning the widening policy.
func (g *Graph) Loops() [][]int64 {
	fg := graphutil.NewFlowGraph(len(g.Blocks), func(i int) []int {
		var out []int
		for _, s := range g.Blocks[i].Successors() {
			out = append(out, s.Ordinal)
		}
		return out
	})
	return graphutil.FindAllElementaryCycles(fg)
}

// fingerprint hashes the graph structure: blocks, operations and regions. Two graphs with the same
// fingerprint are treated as identical by the analysis result caches.
func fingerprint(g *Graph) string {
	h := fnv.New64a()
	write := func(s string) { _, _ = h.Write([]byte(s)) }
	if g.Owner != nil {
		write(g.Owner.Name)
	}
	for _, blk := range g.Blocks {
		write(fmt.Sprintf("|B%d:%d", blk.Ordinal, int(blk.Kind)))
		for _, op := range blk.Operations {
			hashOperation(write, op)
		}
		if blk.BranchValue != nil {
			write(fmt.Sprintf("?%d", int(blk.ConditionKind)))
			hashOperation(write, blk.BranchValue)
		}
		for _, br := range blk.Branches() {
			dest := -1
			if br.Destination != nil {
				dest = br.Destination.Ordinal
			}
			write(fmt.Sprintf(">%d:%d", dest, int(br.Semantics)))
		}
	}
	var hashRegion func(r *Region)
	hashRegion = func(r *Region) {
		write(fmt.Sprintf("R%d[%d,%d]", int(r.Kind), r.FirstOrdinal, r.LastOrdinal))
		for _, n := range r.Nested {
			hashRegion(n)
		}
	}
	hashRegion(g.Root)
	return fmt.Sprintf("%016x", h.Sum64())
}

func hashOperation(write func(string), op ops.Operation) {
	if op == nil {
		write("_")
		return
	}
	write(fmt.Sprintf("(%d", int(op.Kind())))
	switch o := op.(type) {
	case *ops.Literal:
		write(fmt.Sprintf("%v%t", o.Value, o.IsNull))
	case *ops.ParameterReference:
		write(o.Parameter.Name)
	case *ops.LocalReference:
		write(o.Local.Name)
	case *ops.FieldReference:
		write(o.Field.Name)
		hashOperation(write, o.Instance)
	case *ops.FlowCapture:
		write(fmt.Sprintf("#%d", int(o.ID)))
		hashOperation(write, o.Captured)
	case *ops.FlowCaptureReference:
		write(fmt.Sprintf("#%d", int(o.ID)))
	case *ops.SimpleAssignment:
		hashOperation(write, o.Target)
		hashOperation(write, o.Value)
	case *ops.BinaryOperation:
		write(o.Operator.String())
		hashOperation(write, o.Left)
		hashOperation(write, o.Right)
	case *ops.UnaryOperation:
		write(fmt.Sprintf("u%d", int(o.Operator)))
		hashOperation(write, o.Operand)
	case *ops.Invocation:
		if o.Method != nil {
			write(o.Method.Name)
		}
		hashOperation(write, o.Instance)
		for _, a := range o.Arguments {
			hashOperation(write, a)
		}
	case *ops.ObjectCreation:
		write(o.Type().Name)
		for _, a := range o.Arguments {
			hashOperation(write, a)
		}
	case *ops.Conversion:
		write(o.Type().Name)
		hashOperation(write, o.Operand)
	case *ops.Coalesce:
		hashOperation(write, o.Value)
		hashOperation(write, o.WhenNull)
	case *ops.IsNull:
		hashOperation(write, o.Operand)
	case *ops.NameOf:
		write(o.Referenced.Name)
	case *ops.Return:
		hashOperation(write, o.Returned)
	case *ops.Throw:
		hashOperation(write, o.Thrown)
	}
	write(")")
}
