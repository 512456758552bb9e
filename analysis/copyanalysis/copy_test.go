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

package copyanalysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

var intType = ops.TypeInfo{Name: "int"}

func testConfig() *config.Config {
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	return cfg
}

func local(name string) *ops.Symbol {
	return &ops.Symbol{Name: name, Kind: ops.SymbolLocal, Type: intType}
}

func run(t *testing.T, g *cfg.Graph) *Result {
	t.Helper()
	cfg := testConfig()
	res, err := GetOrComputeResult(g, cfg, config.NewLogGroup(cfg))
	require.NoError(t, err)
	return res
}

func groupAt(t *testing.T, res *Result, d *Data, sym *ops.Symbol) *CopyValue {
	t.Helper()
	val, ok := d.Core.Get(res.Entities.ForLocal(sym))
	require.True(t, ok, "no group tracked for %s", sym.Name)
	return val
}

// a = x; b = x;  All three locals form one equality group, and every member maps to the same
// group object.
func TestAssignmentsBuildOneGroup(t *testing.T) {
	x, a, b := local("x"), local("a"), local("b")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "group", Kind: ops.SymbolMethod})
	blk := builder.NewBlock()
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewLocalReference(x)))
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(b), ops.NewLocalReference(x)))
	builder.SetFallThrough(builder.Entry(), blk)
	builder.SetFallThrough(blk, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	out := res.ExitData()
	group := groupAt(t, res, out, a)
	require.Equal(t, CopyKnown, group.Kind())
	require.Equal(t, 3, group.Entities().Size())
	for _, sym := range []*ops.Symbol{x, a, b} {
		require.Same(t, group, groupAt(t, res, out, sym),
			"%s must share the group object", sym.Name)
	}
}

// Rebinding a group member severs it from the group without disturbing the others.
func TestReassignmentSeversMembership(t *testing.T) {
	x, a, y := local("x"), local("a"), local("y")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "sever", Kind: ops.SymbolMethod})
	blk := builder.NewBlock()
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewLocalReference(x)))
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewLocalReference(y)))
	builder.SetFallThrough(builder.Entry(), blk)
	builder.SetFallThrough(blk, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	out := res.ExitData()
	aGroup := groupAt(t, res, out, a)
	require.True(t, aGroup.Contains(res.Entities.ForLocal(y)))
	require.False(t, aGroup.Contains(res.Entities.ForLocal(x)),
		"a must leave x's group on reassignment")
	xGroup := groupAt(t, res, out, x)
	require.False(t, xGroup.Contains(res.Entities.ForLocal(a)))
}

// An equality proven on only one path does not survive the join.
func TestMergeIntersectsGroups(t *testing.T) {
	x, a := local("x"), local("a")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "joinDrop", Kind: ops.SymbolMethod})
	cond := builder.NewBlock()
	thenB := builder.NewBlock()
	elseB := builder.NewBlock()
	join := builder.NewBlock()
	builder.SetFallThrough(builder.Entry(), cond)
	builder.SetConditional(cond, ops.NewUnknown(ops.BoolType), thenB, elseB)
	builder.AddOperation(thenB, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewLocalReference(x)))
	builder.AddOperation(elseB, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewLiteral(intType, 0)))
	builder.SetFallThrough(thenB, join)
	builder.SetFallThrough(elseB, join)
	builder.SetFallThrough(join, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	joined := groupAt(t, res, res.Block(join.Ordinal).Input, a)
	require.False(t, joined.Contains(res.Entities.ForLocal(x)),
		"one-sided equality must not survive the merge")
	require.True(t, joined.Contains(res.Entities.ForLocal(a)))
}

// if (a == b) { if (a == b) ... }  Inside the outer true branch the operands share a group, so the
// inner comparison classifies as always true.
func TestRepeatedComparisonIsAlwaysTrue(t *testing.T) {
	a, b := local("a"), local("b")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "repeatEq", Kind: ops.SymbolMethod})
	outer := builder.NewBlock()
	inner := builder.NewBlock()
	innerTrue := builder.NewBlock()
	builder.SetFallThrough(builder.Entry(), outer)
	outerCmp := ops.NewBinaryOperation(ops.BoolType, ops.BinaryEquals,
		ops.NewLocalReference(a), ops.NewLocalReference(b))
	innerCmp := ops.NewBinaryOperation(ops.BoolType, ops.BinaryEquals,
		ops.NewLocalReference(a), ops.NewLocalReference(b))
	builder.SetConditional(outer, outerCmp, inner, builder.Exit())
	builder.SetConditional(inner, innerCmp, innerTrue, builder.Exit())
	builder.SetFallThrough(innerTrue, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	require.Equal(t, dataflow.PredicateUnknown, res.Predicates.KindOf(outerCmp))
	require.Equal(t, dataflow.PredicateAlwaysTrue, res.Predicates.KindOf(innerCmp))

	innerGroup := groupAt(t, res, res.Block(inner.Ordinal).Input, a)
	require.True(t, innerGroup.Contains(res.Entities.ForLocal(b)))
}

// The same repeated comparison lowered through flow captures, as frontends emit && chains.
func TestRepeatedComparisonThroughCaptures(t *testing.T) {
	a, b := local("a"), local("b")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "repeatEqCapt", Kind: ops.SymbolMethod})
	outer := builder.NewBlock()
	inner := builder.NewBlock()
	innerTrue := builder.NewBlock()
	builder.SetFallThrough(builder.Entry(), outer)
	builder.AddOperation(outer, ops.NewFlowCapture(1,
		ops.NewBinaryOperation(ops.BoolType, ops.BinaryEquals,
			ops.NewLocalReference(a), ops.NewLocalReference(b))))
	builder.SetConditional(outer, ops.NewFlowCaptureReference(1, ops.BoolType),
		inner, builder.Exit())
	innerCmp := ops.NewBinaryOperation(ops.BoolType, ops.BinaryEquals,
		ops.NewLocalReference(a), ops.NewLocalReference(b))
	builder.SetConditional(inner, innerCmp, innerTrue, builder.Exit())
	builder.SetFallThrough(innerTrue, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	require.Equal(t, dataflow.PredicateAlwaysTrue, res.Predicates.KindOf(innerCmp))
}

func TestCopyDomainMerge(t *testing.T) {
	f := dataflow.NewEntityFactory()
	e1 := f.ForLocal(local("e1"))
	e2 := f.ForLocal(local("e2"))
	e3 := f.ForLocal(local("e3"))
	dom := CopyDomain{}

	g12 := NewCopyValue(dataflow.NewEntitySet(e1, e2))
	g123 := NewCopyValue(dataflow.NewEntitySet(e1, e2, e3))
	g23 := NewCopyValue(dataflow.NewEntitySet(e2, e3))

	require.Same(t, g12, dom.Merge(g12, UndefinedCopy), "bottom is the merge identity")
	require.Same(t, UnknownCopy, dom.Merge(g12, UnknownCopy))

	inter := dom.Merge(g123, g23)
	require.Equal(t, CopyKnown, inter.Kind())
	require.Equal(t, 2, inter.Entities().Size())
	require.True(t, inter.Entities().Contains(e2) && inter.Entities().Contains(e3))

	require.Equal(t, 0, dom.Compare(g12, NewCopyValue(dataflow.NewEntitySet(e2, e1))))
	// Losing a member moves up the lattice.
	require.Equal(t, -1, dom.Compare(g123, g12))
	require.Equal(t, 1, dom.Compare(g12, g123))
}

// if (c) { a = b; }  The equality holds on one path only; on the other, a was never tracked at
// all. The join must still drop the group instead of letting the tracked side's facts through.
func TestOneSidedGroupDoesNotSurviveJoin(t *testing.T) {
	a, b := local("a"), local("b")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "oneSidedGroup", Kind: ops.SymbolMethod})
	cond := builder.NewBlock()
	thenB := builder.NewBlock()
	join := builder.NewBlock()
	builder.SetFallThrough(builder.Entry(), cond)
	builder.SetConditional(cond, ops.NewUnknown(ops.BoolType), thenB, join)
	builder.AddOperation(thenB, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewLocalReference(b)))
	builder.SetFallThrough(thenB, join)
	builder.SetFallThrough(join, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	in := res.Block(join.Ordinal).Input
	for _, sym := range []*ops.Symbol{a, b} {
		group := groupAt(t, res, in, sym)
		require.Equal(t, CopyUnknown, group.Kind(),
			"%s was grouped on one path only, the join must discard the group", sym.Name)
	}
}
