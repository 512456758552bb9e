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
	"testing"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

// counterDomain is a saturating max domain over ints: ideal for exercising the solver without the
// weight of a real abstract value.
type counterDomain struct {
	// widenTo is the value back-edge widening jumps to; 0 disables widening.
	widenTo int
}

func (counterDomain) Bottom() int     { return 0 }
func (counterDomain) Clone(x int) int { return x }
func (counterDomain) Merge(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (d counterDomain) MergeOnBackEdge(a, b int) int {
	m := d.Merge(a, b)
	if d.widenTo > 0 && m > a {
		return d.widenTo
	}
	return m
}

func (counterDomain) Compare(old, new int) int {
	switch {
	case old == new:
		return 0
	case old < new:
		return -1
	default:
		return 1
	}
}

// hookVisitor adapts plain funcs to the Visitor interface.
type hookVisitor struct {
	onStart  func(*cfg.BasicBlock, int)
	flowOp   func(ops.Operation, int) int
	flowCond func(ops.Operation, int) (int, int, PredicateValueKind)
}

func (v *hookVisitor) OnBlockStart(b *cfg.BasicBlock, d int) {
	if v.onStart != nil {
		v.onStart(b, d)
	}
}

func (v *hookVisitor) FlowOperation(op ops.Operation, d int) int {
	if v.flowOp != nil {
		return v.flowOp(op, d)
	}
	return d
}

func (v *hookVisitor) FlowCondition(cond ops.Operation, d int) (int, int, PredicateValueKind) {
	if v.flowCond != nil {
		return v.flowCond(cond, d)
	}
	return d, d, PredicateUnknown
}

func (v *hookVisitor) OnBlockEnd(b *cfg.BasicBlock, d int) {}

func noOp() ops.Operation { return ops.NewUnknown(ops.TypeInfo{}) }

func testOwner() *ops.Symbol {
	return &ops.Symbol{Name: "proc", Kind: ops.SymbolMethod}
}

func TestRunStraightLine(t *testing.T) {
	b := cfg.NewBuilder(testOwner())
	b1 := b.NewBlock()
	b.AddOperation(b1, noOp())
	b.SetFallThrough(b.Entry(), b1)
	b.SetFallThrough(b1, b.Exit())
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}

	var order []int
	v := &hookVisitor{
		onStart: func(blk *cfg.BasicBlock, d int) { order = append(order, blk.Ordinal) },
		flowOp:  func(op ops.Operation, d int) int { return d + 1 },
	}
	res, err := Run[int](g, counterDomain{}, v, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.ExitData(); got != 1 {
		t.Errorf("exit data = %d, want 1", got)
	}
	if got := res.Block(b1.Ordinal).Output; got != 1 {
		t.Errorf("b1 output = %d, want 1", got)
	}
	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("visit order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("visit order %v, want %v", order, want)
		}
	}
}

func TestRunDiamondSplitsCondition(t *testing.T) {
	b := cfg.NewBuilder(testOwner())
	cond := b.NewBlock()
	left := b.NewBlock()
	right := b.NewBlock()
	join := b.NewBlock()
	b.SetFallThrough(b.Entry(), cond)
	condOp := noOp()
	b.SetConditional(cond, condOp, left, right)
	b.SetFallThrough(left, join)
	b.SetFallThrough(right, join)
	b.SetFallThrough(join, b.Exit())
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}

	v := &hookVisitor{
		flowCond: func(op ops.Operation, d int) (int, int, PredicateValueKind) {
			return 10, 20, PredicateUnknown
		},
	}
	res, err := Run[int](g, counterDomain{}, v, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Block(left.Ordinal).Input; got != 10 {
		t.Errorf("true side input = %d, want 10", got)
	}
	if got := res.Block(right.Ordinal).Input; got != 20 {
		t.Errorf("false side input = %d, want 20", got)
	}
	if got := res.Block(join.Ordinal).Input; got != 20 {
		t.Errorf("join input = %d, want max of both sides = 20", got)
	}
}

func TestRunInfeasibleBranchNotPropagated(t *testing.T) {
	b := cfg.NewBuilder(testOwner())
	cond := b.NewBlock()
	dead := b.NewBlock()
	live := b.NewBlock()
	b.SetFallThrough(b.Entry(), cond)
	b.SetConditional(cond, noOp(), dead, live)
	b.SetFallThrough(dead, b.Exit())
	b.SetFallThrough(live, b.Exit())
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}

	v := &hookVisitor{
		flowCond: func(op ops.Operation, d int) (int, int, PredicateValueKind) {
			return 10, 20, PredicateAlwaysFalse
		},
	}
	res, err := Run[int](g, counterDomain{}, v, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// The dead block still gets its one bottom-input pass, but never the branch data.
	if got := res.Block(dead.Ordinal).Input; got != 0 {
		t.Errorf("dead branch input = %d, want bottom", got)
	}
	if got := res.Block(live.Ordinal).Input; got != 20 {
		t.Errorf("live branch input = %d, want 20", got)
	}
}

func buildLoop(t *testing.T) (*cfg.Graph, *cfg.BasicBlock, *cfg.BasicBlock) {
	t.Helper()
	b := cfg.NewBuilder(testOwner())
	head := b.NewBlock()
	body := b.NewBlock()
	b.SetFallThrough(b.Entry(), head)
	b.SetConditional(head, noOp(), body, b.Exit())
	b.AddOperation(body, noOp())
	b.SetFallThrough(body, head)
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return g, head, body
}

func TestRunLoopWidensToFixedPoint(t *testing.T) {
	g, head, body := buildLoop(t)
	if !head.InLoop || !body.InLoop {
		t.Fatal("loop blocks not marked InLoop")
	}

	const top = 100
	v := &hookVisitor{
		flowOp: func(op ops.Operation, d int) int {
			if d < top {
				return d + 1
			}
			return d
		},
	}
	res, err := Run[int](g, counterDomain{widenTo: top}, v, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Block(head.Ordinal).Input; got != top {
		t.Errorf("loop head stabilized at %d, want widened %d", got, top)
	}
}

func TestRunLoopWithoutWideningDiverges(t *testing.T) {
	g, _, _ := buildLoop(t)
	v := &hookVisitor{
		flowOp: func(op ops.Operation, d int) int { return d + 1 },
	}
	_, err := Run[int](g, counterDomain{}, v, RunOptions{MaxBlockVisitsFactor: 10})
	if !errors.Is(err, ErrNotConverged) {
		t.Fatalf("err = %v, want ErrNotConverged", err)
	}
}

func TestRunFinallyRoutesBranchData(t *testing.T) {
	b := cfg.NewBuilder(testOwner())
	try := b.NewBlock()
	fin := b.NewBlock()
	after := b.NewBlock()
	b.SetFallThrough(b.Entry(), try)
	b.AddOperation(try, noOp())
	b.SetFallThrough(try, after)
	b.AddOperation(fin, noOp())
	b.SetFinallyExit(fin)
	b.SetFallThrough(after, b.Exit())
	b.AddTryFinally(try, try, fin, fin)
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}

	v := &hookVisitor{
		flowOp: func(op ops.Operation, d int) int { return d + 5 },
	}
	res, err := Run[int](g, counterDomain{}, v, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// try output (5) flows through the finally (+5) before reaching after.
	if got := res.Block(fin.Ordinal).Input; got != 5 {
		t.Errorf("finally input = %d, want 5", got)
	}
	if got := res.Block(after.Ordinal).Input; got != 10 {
		t.Errorf("after input = %d, want 10 (routed through finally)", got)
	}
	// The exception path out of the try runs the finally and then escapes the procedure.
	if _, ok := res.UnhandledThrowData(); !ok {
		t.Error("expected unhandled-throw data from the protected region")
	}
}

func TestRunThrowReachesHandler(t *testing.T) {
	b := cfg.NewBuilder(testOwner())
	try := b.NewBlock()
	handler := b.NewBlock()
	b.SetFallThrough(b.Entry(), try)
	b.AddOperation(try, noOp())
	b.SetThrow(try)
	b.SetFallThrough(handler, b.Exit())
	b.AddTryCatch(try, try, cfg.HandlerSpec{First: handler, Last: handler})
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}

	v := &hookVisitor{
		flowOp: func(op ops.Operation, d int) int { return d + 7 },
	}
	res, err := Run[int](g, counterDomain{}, v, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Block(handler.Ordinal).Input; got != 7 {
		t.Errorf("handler input = %d, want 7", got)
	}
	if _, ok := res.UnhandledThrowData(); ok {
		t.Error("caught exception must not surface as unhandled")
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	if _, err := Run[int](nil, counterDomain{}, &hookVisitor{}, RunOptions{}); err == nil {
		t.Error("nil graph must be rejected")
	}
}

// Monotonicity of recorded inputs: the engine never lowers a block input during a run.
func TestRunInputsMonotone(t *testing.T) {
	g, head, _ := buildLoop(t)
	dom := counterDomain{widenTo: 50}
	last := map[int]int{}
	v := &hookVisitor{
		onStart: func(blk *cfg.BasicBlock, d int) {
			if prev, ok := last[blk.Ordinal]; ok && dom.Compare(prev, d) > 0 {
				t.Errorf("input of B%d decreased from %d to %d", blk.Ordinal, prev, d)
			}
			last[blk.Ordinal] = d
		},
		flowOp: func(op ops.Operation, d int) int {
			if d < 50 {
				return d + 1
			}
			return d
		},
	}
	if _, err := Run[int](g, dom, v, RunOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := last[head.Ordinal]; !ok {
		t.Fatal("loop head never visited")
	}
}
