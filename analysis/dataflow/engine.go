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
	"container/heap"
	"errors"
	"fmt"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
)

var (
	// ErrNotConverged is returned when the fixed-point loop exceeds its visit budget.
	ErrNotConverged = errors.New("fixed point not reached within block visit budget")

	// ErrNonMonotone is returned under debug assertions when a transfer function decreases a
	// block input.
	ErrNonMonotone = errors.New("non-monotone analysis data update")
)

// Run solves the dataflow equations of visitor over g to a fixed point and returns the per-block
// results. Blocks are processed lowest ordinal first; a block becomes eligible once every
// lower-ordinal predecessor has been processed, so back edges never block forward progress into a
// loop. Data crossing a back edge into a loop block is widened once the block has been visited
// WideningThreshold times, which bounds iteration even for domains with unbounded chains.
func Run[D any](g *cfg.Graph, domain AnalysisDomain[D], visitor Visitor[D],
	opts RunOptions) (*Result[D], error) {
	if g == nil || len(g.Blocks) == 0 {
		return nil, fmt.Errorf("dataflow: nil or empty control-flow graph")
	}
	if domain == nil || visitor == nil {
		return nil, fmt.Errorf("dataflow: nil domain or visitor")
	}
	s := &solver[D]{
		graph:   g,
		domain:  domain,
		visitor: visitor,
		opts:    opts.withDefaults(),

		inputs:    make([]D, len(g.Blocks)),
		hasInput:  make([]bool, len(g.Blocks)),
		outputs:   make([]D, len(g.Blocks)),
		processed: make([]bool, len(g.Blocks)),
		visits:    make([]int, len(g.Blocks)),
		inHeap:    make([]bool, len(g.Blocks)),

		pendingFirstPass: make(map[int]bool, len(g.Blocks)),
		finallyOut:       map[*cfg.Region]D{},
		continuations:    map[*cfg.Region]map[string]continuation{},
	}
	for _, b := range g.Blocks {
		s.pendingFirstPass[b.Ordinal] = true
	}
	return s.solve()
}

// A continuation is where control resumes after a finally region finishes: through the remaining
// finally chain, then either to a destination block or back into exception propagation.
type continuation struct {
	finallies   []*cfg.Region
	dest        *cfg.BasicBlock
	isBackEdge  bool
	rethrowFrom *cfg.Region
}

func (c continuation) key() string {
	destOrd := -2
	if c.dest != nil {
		destOrd = c.dest.Ordinal
	}
	k := fmt.Sprintf("d%d|r%p", destOrd, c.rethrowFrom)
	for _, f := range c.finallies {
		k += fmt.Sprintf("|f%d", f.FirstOrdinal)
	}
	return k
}

type solver[D any] struct {
	graph   *cfg.Graph
	domain  AnalysisDomain[D]
	visitor Visitor[D]
	opts    RunOptions

	inputs    []D
	hasInput  []bool
	outputs   []D
	processed []bool
	visits    []int

	worklist ordinalHeap
	inHeap   []bool

	// pendingFirstPass holds blocks that still owe their first visit. When the worklist drains
	// with passes owed, the lowest pending block is seeded with bottom; this reaches handler and
	// otherwise unreachable blocks.
	pendingFirstPass map[int]bool

	finallyOut    map[*cfg.Region]D
	continuations map[*cfg.Region]map[string]continuation

	unhandledThrow    D
	hasUnhandledThrow bool

	totalVisits int
}

func (s *solver[D]) solve() (*Result[D], error) {
	maxVisits := s.opts.MaxBlockVisitsFactor * len(s.graph.Blocks)
	if err := s.mergeInto(s.graph.Entry(), s.domain.Bottom(), false); err != nil {
		return nil, err
	}
	for {
		if s.worklist.Len() == 0 {
			if !s.refillFromPending() {
				break
			}
		}
		ordinal := heap.Pop(&s.worklist).(int)
		s.inHeap[ordinal] = false
		s.totalVisits++
		if s.totalVisits > maxVisits {
			return nil, fmt.Errorf("%w: %s after %d visits of %d blocks",
				ErrNotConverged, s.graph.Owner.Name, s.totalVisits, len(s.graph.Blocks))
		}
		if err := s.processBlock(s.graph.Blocks[ordinal]); err != nil {
			return nil, err
		}
	}
	return s.finalize(), nil
}

func (s *solver[D]) refillFromPending() bool {
	if len(s.pendingFirstPass) == 0 {
		return false
	}
	min := -1
	for o := range s.pendingFirstPass {
		if min < 0 || o < min {
			min = o
		}
	}
	if !s.hasInput[min] {
		s.inputs[min] = s.domain.Bottom()
		s.hasInput[min] = true
	}
	s.enqueue(min)
	return true
}

func (s *solver[D]) enqueue(ordinal int) {
	if !s.inHeap[ordinal] {
		s.inHeap[ordinal] = true
		heap.Push(&s.worklist, ordinal)
	}
}

func (s *solver[D]) processBlock(block *cfg.BasicBlock) error {
	o := block.Ordinal
	delete(s.pendingFirstPass, o)
	s.visits[o]++
	s.opts.Logger.Tracef("visit %d of %s (pass %d)", s.totalVisits, block, s.visits[o])

	if !s.hasInput[o] {
		s.inputs[o] = s.domain.Bottom()
		s.hasInput[o] = true
	}
	input := s.inputs[o]
	inTry := insideTry(block)
	if inTry {
		// Any operation of a protected block may raise before completing, so the block's input
		// flows along the exception path as well as its output.
		if err := s.raiseFrom(block.Region, input); err != nil {
			return err
		}
	}

	d := s.domain.Clone(input)
	s.visitor.OnBlockStart(block, d)
	for _, op := range block.Operations {
		d = s.visitor.FlowOperation(op, d)
	}
	s.visitor.OnBlockEnd(block, d)
	s.outputs[o] = s.domain.Clone(d)
	s.processed[o] = true
	if inTry {
		if err := s.raiseFrom(block.Region, d); err != nil {
			return err
		}
	}

	if block.BranchValue != nil && block.ConditionKind != cfg.ConditionNone &&
		block.Conditional != nil {
		trueData, falseData, kind := s.visitor.FlowCondition(block.BranchValue, d)
		condData, fallData := trueData, falseData
		condFeasible := kind != PredicateAlwaysFalse
		fallFeasible := kind != PredicateAlwaysTrue
		if block.ConditionKind == cfg.WhenFalse {
			condData, fallData = falseData, trueData
			condFeasible, fallFeasible = fallFeasible, condFeasible
		}
		if condFeasible {
			if err := s.propagate(block.Conditional, condData); err != nil {
				return err
			}
		}
		if fallFeasible {
			if err := s.propagate(block.FallThrough, fallData); err != nil {
				return err
			}
		}
		return nil
	}
	return s.propagate(block.FallThrough, d)
}

func (s *solver[D]) propagate(br *cfg.Branch, data D) error {
	if br == nil {
		return nil
	}
	switch br.Semantics {
	case cfg.BranchThrow, cfg.BranchRethrow:
		return s.raiseFrom(br.Source.Region, data)
	case cfg.BranchStructuredExceptionHandling:
		return s.finishFinally(br.Source, data)
	}
	if len(br.FinallyRegions) > 0 {
		cont := continuation{
			finallies:  br.FinallyRegions[1:],
			dest:       br.Destination,
			isBackEdge: br.IsBackEdge,
		}
		return s.enterFinally(br.FinallyRegions[0], data, cont)
	}
	if br.Destination != nil {
		return s.mergeInto(br.Destination, data, br.IsBackEdge)
	}
	return nil
}

// raiseFrom propagates exception data outward from a region: into the handlers of the nearest
// enclosing try-and-catch, through any intervening finally, or into the unhandled-throw
// accumulator when nothing in the procedure catches.
func (s *solver[D]) raiseFrom(from *cfg.Region, data D) error {
	for r := from; r != nil; r = r.Enclosing {
		if r.Kind != cfg.RegionTry || r.Enclosing == nil {
			continue
		}
		switch r.Enclosing.Kind {
		case cfg.RegionTryAndCatch:
			for _, h := range r.Enclosing.HandlerRegions() {
				entry := s.graph.Blocks[h.FirstOrdinal]
				if err := s.mergeInto(entry, data, false); err != nil {
					return err
				}
			}
			return nil
		case cfg.RegionTryAndFinally:
			fr := r.Enclosing.FinallyRegion()
			if fr == nil {
				continue
			}
			return s.enterFinally(fr, data, continuation{rethrowFrom: r.Enclosing})
		}
	}
	if !s.hasUnhandledThrow {
		s.unhandledThrow = s.domain.Clone(data)
		s.hasUnhandledThrow = true
	} else {
		s.unhandledThrow = s.domain.Merge(s.unhandledThrow, data)
	}
	return nil
}

func (s *solver[D]) enterFinally(fr *cfg.Region, data D, cont continuation) error {
	conts := s.continuations[fr]
	if conts == nil {
		conts = map[string]continuation{}
		s.continuations[fr] = conts
	}
	key := cont.key()
	registered := false
	if _, ok := conts[key]; !ok {
		conts[key] = cont
		registered = true
	}
	entry := s.graph.Blocks[fr.FirstOrdinal]
	if err := s.mergeInto(entry, data, false); err != nil {
		return err
	}
	// A continuation registered after the finally already stabilized would otherwise wait for a
	// re-visit that may never come.
	if out, ok := s.finallyOut[fr]; registered && ok {
		return s.resume(cont, out)
	}
	return nil
}

// finishFinally runs when a finally region's exit block completes: the finally's outgoing data
// resumes every continuation registered so far.
func (s *solver[D]) finishFinally(source *cfg.BasicBlock, data D) error {
	var fr *cfg.Region
	for r := source.Region; r != nil; r = r.Enclosing {
		if r.Kind == cfg.RegionFinally {
			fr = r
			break
		}
	}
	if fr == nil {
		return fmt.Errorf("dataflow: finally exit branch outside a finally region at %s", source)
	}
	s.finallyOut[fr] = s.domain.Clone(data)
	for _, cont := range s.continuations[fr] {
		if err := s.resume(cont, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *solver[D]) resume(cont continuation, data D) error {
	if len(cont.finallies) > 0 {
		next := continuation{
			finallies:   cont.finallies[1:],
			dest:        cont.dest,
			isBackEdge:  cont.isBackEdge,
			rethrowFrom: cont.rethrowFrom,
		}
		return s.enterFinally(cont.finallies[0], data, next)
	}
	if cont.dest != nil {
		return s.mergeInto(cont.dest, data, cont.isBackEdge)
	}
	if cont.rethrowFrom != nil {
		return s.raiseFrom(cont.rethrowFrom.Enclosing, data)
	}
	return nil
}

func (s *solver[D]) mergeInto(dest *cfg.BasicBlock, data D, isBackEdge bool) error {
	o := dest.Ordinal
	if !s.hasInput[o] {
		s.inputs[o] = s.domain.Clone(data)
		s.hasInput[o] = true
		s.enqueue(o)
		return nil
	}
	old := s.inputs[o]
	var merged D
	if isBackEdge && dest.InLoop && s.visits[o] >= s.opts.WideningThreshold {
		merged = s.domain.MergeOnBackEdge(old, data)
	} else {
		merged = s.domain.Merge(old, data)
	}
	switch c := s.domain.Compare(old, merged); {
	case c > 0:
		if s.opts.DebugAssertions {
			return fmt.Errorf("%w: input of %s decreased", ErrNonMonotone, dest)
		}
		s.opts.Logger.Warnf("ignoring non-monotone update of %s input", dest)
	case c < 0:
		s.inputs[o] = merged
		s.enqueue(o)
	default:
		if !s.processed[o] {
			s.enqueue(o)
		}
	}
	return nil
}

func (s *solver[D]) finalize() *Result[D] {
	r := &Result[D]{
		blocks:            make([]BlockResult[D], len(s.graph.Blocks)),
		unhandledThrow:    s.unhandledThrow,
		hasUnhandledThrow: s.hasUnhandledThrow,
		totalVisits:       s.totalVisits,
	}
	for i := range s.graph.Blocks {
		input := s.inputs[i]
		if !s.hasInput[i] {
			input = s.domain.Bottom()
		}
		output := s.outputs[i]
		if !s.processed[i] {
			output = s.domain.Bottom()
		}
		r.blocks[i] = BlockResult[D]{Input: input, Output: output, Visits: s.visits[i]}
	}
	return r
}

func insideTry(b *cfg.BasicBlock) bool {
	for r := b.Region; r != nil; r = r.Enclosing {
		if r.Kind == cfg.RegionTry {
			return true
		}
	}
	return false
}

// ordinalHeap is a min-heap of block ordinals: the worklist always yields the lowest pending
// block, which realizes the "all lower-ordinal predecessors first" processing order.
type ordinalHeap []int

func (h ordinalHeap) Len() int           { return len(h) }
func (h ordinalHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h ordinalHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *ordinalHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *ordinalHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
