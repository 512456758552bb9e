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

package pointsto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

var objType = ops.TypeInfo{Name: "Object", IsReference: true}

func testConfig() *config.Config {
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	return cfg
}

func local(name string) *ops.Symbol {
	return &ops.Symbol{Name: name, Kind: ops.SymbolLocal, Type: objType}
}

func param(name string) *ops.Symbol {
	return &ops.Symbol{Name: name, Kind: ops.SymbolParameter, Type: objType}
}

func run(t *testing.T, g *cfg.Graph) *Result {
	t.Helper()
	cfg := testConfig()
	res, err := GetOrComputeResult(g, cfg, config.NewLogGroup(cfg))
	require.NoError(t, err)
	return res
}

func valueAt(t *testing.T, res *Result, d *Data, sym *ops.Symbol) *dataflow.PointsToValue {
	t.Helper()
	var ent *dataflow.AnalysisEntity
	switch sym.Kind {
	case ops.SymbolLocal:
		ent = res.Entities.ForLocal(sym)
	case ops.SymbolParameter:
		ent = res.Entities.ForParameter(sym)
	default:
		t.Fatalf("unsupported symbol kind %v", sym.Kind)
	}
	val, ok := d.Core.Get(ent)
	require.True(t, ok, "no value tracked for %s", sym.Name)
	return val
}

// a = null; b = a;  Both locals are null and alias each other.
func TestNullAssignmentPropagatesThroughCopy(t *testing.T) {
	a, b := local("a"), local("b")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "nullCopy", Kind: ops.SymbolMethod})
	blk := builder.NewBlock()
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewNullLiteral(objType)))
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(b), ops.NewLocalReference(a)))
	builder.SetFallThrough(builder.Entry(), blk)
	builder.SetFallThrough(blk, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	out := res.ExitData()

	av := valueAt(t, res, out, a)
	bv := valueAt(t, res, out, b)
	require.True(t, av.IsNull(), "a must be null")
	require.True(t, bv.IsNull(), "b must be null")
	aEnt := res.Entities.ForLocal(a)
	bEnt := res.Entities.ForLocal(b)
	require.True(t, av.CopyEntities().Contains(bEnt), "a must list b as a copy")
	require.True(t, bv.CopyEntities().Contains(aEnt), "b must list a as a copy")
}

// if (x == null) { then } else { else }  The branches see Null and NotNull; the join sees MaybeNull.
func TestNullCheckSplitsBranches(t *testing.T) {
	x := param("x")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "nullCheck", Kind: ops.SymbolMethod})
	cond := builder.NewBlock()
	thenB := builder.NewBlock()
	elseB := builder.NewBlock()
	join := builder.NewBlock()
	builder.SetFallThrough(builder.Entry(), cond)
	builder.SetConditional(cond, ops.NewIsNull(ops.NewParameterReference(x)), thenB, elseB)
	builder.SetFallThrough(thenB, join)
	builder.SetFallThrough(elseB, join)
	builder.SetFallThrough(join, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	require.Equal(t, dataflow.NullStateNull,
		valueAt(t, res, res.Block(thenB.Ordinal).Input, x).NullState())
	require.Equal(t, dataflow.NullStateNotNull,
		valueAt(t, res, res.Block(elseB.Ordinal).Input, x).NullState())
	require.Equal(t, dataflow.NullStateMaybeNull,
		valueAt(t, res, res.Block(join.Ordinal).Input, x).NullState())
}

// The same check routed through a flow capture, the way a frontend lowers short-circuit
// expressions: the overlays survive the capture and apply at the branch.
func TestNullCheckThroughFlowCapture(t *testing.T) {
	x := param("x")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "capturedCheck", Kind: ops.SymbolMethod})
	cond := builder.NewBlock()
	thenB := builder.NewBlock()
	elseB := builder.NewBlock()
	builder.AddOperation(cond,
		ops.NewFlowCapture(1, ops.NewIsNull(ops.NewParameterReference(x))))
	builder.SetFallThrough(builder.Entry(), cond)
	builder.SetConditional(cond, ops.NewFlowCaptureReference(1, ops.BoolType), thenB, elseB)
	builder.SetFallThrough(thenB, builder.Exit())
	builder.SetFallThrough(elseB, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	require.Equal(t, dataflow.NullStateNull,
		valueAt(t, res, res.Block(thenB.Ordinal).Input, x).NullState())
	require.Equal(t, dataflow.NullStateNotNull,
		valueAt(t, res, res.Block(elseB.Ordinal).Input, x).NullState())
}

// while (...) { obj = new Object(); }  The loop head widens obj to unknown instead of iterating
// location sets.
func TestLoopAllocationWidens(t *testing.T) {
	obj := local("obj")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "loopAlloc", Kind: ops.SymbolMethod})
	head := builder.NewBlock()
	body := builder.NewBlock()
	builder.SetFallThrough(builder.Entry(), head)
	builder.SetConditional(head, ops.NewUnknown(ops.BoolType), body, builder.Exit())
	builder.AddOperation(body, ops.NewSimpleAssignment(
		ops.NewLocalReference(obj), ops.NewObjectCreation(objType)))
	builder.SetFallThrough(body, head)
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	headVal := valueAt(t, res, res.Block(head.Ordinal).Input, obj)
	require.Equal(t, dataflow.PointsToUnknown, headVal.Kind())
	// Inside the body the allocation is precise again.
	bodyVal := valueAt(t, res, res.Block(body.Ordinal).Output, obj)
	require.Equal(t, dataflow.PointsToKnown, bodyVal.Kind())
	require.Equal(t, dataflow.NullStateNotNull, bodyVal.NullState())
	require.Equal(t, 1, bodyVal.Locations().Size())
}

// obj = new Object(); obj2 = maybeNull ?? obj;  Coalescing against a fresh allocation is not null.
func TestCoalesceStrengthens(t *testing.T) {
	x := param("x")
	obj, obj2 := local("obj"), local("obj2")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "coalesce", Kind: ops.SymbolMethod})
	blk := builder.NewBlock()
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(obj), ops.NewObjectCreation(objType)))
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(obj2),
		ops.NewCoalesce(ops.NewParameterReference(x), ops.NewLocalReference(obj))))
	builder.SetFallThrough(builder.Entry(), blk)
	builder.SetFallThrough(blk, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	val := valueAt(t, res, res.ExitData(), obj2)
	require.Equal(t, dataflow.NullStateNotNull, val.NullState())
}

// In pessimistic mode an invocation rebinds every reference argument to unknown.
func TestPessimisticInvocationResetsArguments(t *testing.T) {
	obj := local("obj")
	callee := &ops.Symbol{Name: "Frob", Kind: ops.SymbolMethod}
	builder := cfg.NewBuilder(&ops.Symbol{Name: "pessimistic", Kind: ops.SymbolMethod})
	blk := builder.NewBlock()
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(obj), ops.NewObjectCreation(objType)))
	builder.AddOperation(blk, ops.NewInvocation(ops.TypeInfo{Name: "void"}, callee, nil,
		ops.NewLocalReference(obj)))
	builder.SetFallThrough(builder.Entry(), blk)
	builder.SetFallThrough(blk, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	pcfg := testConfig()
	pcfg.PessimisticMode = true
	res, err := GetOrComputeResult(g, pcfg, config.NewLogGroup(pcfg))
	require.NoError(t, err)
	require.Equal(t, dataflow.PointsToUnknown, valueAt(t, res, res.ExitData(), obj).Kind())

	// Optimistic mode keeps the allocation.
	ocfg := testConfig()
	ores, err := GetOrComputeResult(g, ocfg, config.NewLogGroup(ocfg))
	require.NoError(t, err)
	require.Equal(t, dataflow.PointsToKnown, valueAt(t, ores, ores.ExitData(), obj).Kind())
}

func TestResultsAreCachedPerGraphAndConfig(t *testing.T) {
	a := local("a")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "cached", Kind: ops.SymbolMethod})
	blk := builder.NewBlock()
	builder.AddOperation(blk, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewNullLiteral(objType)))
	builder.SetFallThrough(builder.Entry(), blk)
	builder.SetFallThrough(blk, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	cfg1 := testConfig()
	logger := config.NewLogGroup(cfg1)
	r1, err := GetOrComputeResult(g, cfg1, logger)
	require.NoError(t, err)
	r2, err := GetOrComputeResult(g, cfg1, logger)
	require.NoError(t, err)
	require.Same(t, r1, r2, "same graph and config must share a result")

	cfg2 := testConfig()
	cfg2.PessimisticMode = true
	r3, err := GetOrComputeResult(g, cfg2, config.NewLogGroup(cfg2))
	require.NoError(t, err)
	require.NotSame(t, r1, r3, "different configs must not share a result")
}

// r = MakeWidget()  A registered callee summary supplies the return value when the
// interprocedural depth allows it; at depth zero the call returns the default for its type.
func TestCalleeSummaryInformsInvocation(t *testing.T) {
	r := local("r")
	factory := &ops.Symbol{Name: "MakeWidget", Kind: ops.SymbolMethod, Type: objType}
	build := func(name string) *cfg.Graph {
		builder := cfg.NewBuilder(&ops.Symbol{Name: name, Kind: ops.SymbolMethod})
		blk := builder.NewBlock()
		builder.AddOperation(blk, ops.NewSimpleAssignment(
			ops.NewLocalReference(r), ops.NewInvocation(objType, factory, nil)))
		builder.SetFallThrough(builder.Entry(), blk)
		builder.SetFallThrough(blk, builder.Exit())
		g, err := builder.Finish()
		require.NoError(t, err)
		return g
	}

	deep := testConfig()
	deep.InterproceduralDepth = 2
	logger := config.NewLogGroup(deep)
	v := NewVisitor(deep, logger)
	v.AddCalleeSummary(factory, dataflow.UnknownNotNullPointsTo)
	res, err := Analyze(build("summarized"), deep, logger, v)
	require.NoError(t, err)
	rv := valueAt(t, res, res.ExitData(), r)
	require.Equal(t, dataflow.NullStateNotNull, rv.NullState())

	shallow := testConfig()
	slog := config.NewLogGroup(shallow)
	sv := NewVisitor(shallow, slog)
	sv.AddCalleeSummary(factory, dataflow.UnknownNotNullPointsTo)
	sres, err := Analyze(build("unsummarized"), shallow, slog, sv)
	require.NoError(t, err)
	srv := valueAt(t, sres, sres.ExitData(), r)
	require.Equal(t, dataflow.NullStateMaybeNull, srv.NullState())
}

// if (c) { a = null; }  The null fact holds on one path only, so the join must weaken a to
// MaybeNull; a subsequent null check is then unclassifiable.
func TestOneSidedNullDoesNotSurviveJoin(t *testing.T) {
	a := local("a")
	builder := cfg.NewBuilder(&ops.Symbol{Name: "oneSidedNull", Kind: ops.SymbolMethod})
	cond := builder.NewBlock()
	thenB := builder.NewBlock()
	join := builder.NewBlock()
	builder.SetFallThrough(builder.Entry(), cond)
	builder.SetConditional(cond, ops.NewUnknown(ops.BoolType), thenB, join)
	builder.AddOperation(thenB, ops.NewSimpleAssignment(
		ops.NewLocalReference(a), ops.NewNullLiteral(objType)))
	builder.SetFallThrough(thenB, join)
	check := ops.NewIsNull(ops.NewLocalReference(a))
	after := builder.NewBlock()
	builder.SetConditional(join, check, after, builder.Exit())
	builder.SetFallThrough(after, builder.Exit())
	g, err := builder.Finish()
	require.NoError(t, err)

	res := run(t, g)
	av := valueAt(t, res, res.Block(join.Ordinal).Input, a)
	require.Equal(t, dataflow.NullStateMaybeNull, av.NullState(),
		"a is null on one path only, the join must not keep it null")
	require.Equal(t, dataflow.PointsToUnknown, av.Kind())
	require.Equal(t, dataflow.PredicateUnknown, res.Predicates.KindOf(check))
}
