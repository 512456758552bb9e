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
	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

// Visitor is the points-to transfer function.
type Visitor struct {
	Entities   *dataflow.EntityFactory
	Predicates *dataflow.PredicateRecorder

	sites       *dataflow.AllocationSiteFactory
	pessimistic bool
	callDepth   int
	summaries   map[*ops.Symbol]*dataflow.PointsToValue
	logger      *config.LogGroup
}

var _ dataflow.Visitor[*Data] = (*Visitor)(nil)

// NewVisitor returns a visitor with fresh entity and allocation-site factories.
func NewVisitor(cfg *config.Config, logger *config.LogGroup) *Visitor {
	return &Visitor{
		Entities:    dataflow.NewEntityFactory(),
		Predicates:  dataflow.NewPredicateRecorder(),
		sites:       dataflow.NewAllocationSiteFactory(),
		pessimistic: cfg.PessimisticMode,
		callDepth:   cfg.InterproceduralDepth,
		summaries:   map[*ops.Symbol]*dataflow.PointsToValue{},
		logger:      logger,
	}
}

// AddCalleeSummary registers the abstract return value of method. Summaries are consulted for
// invocation results only when the configured interprocedural depth is positive; otherwise every
// call returns the default value of its type.
func (v *Visitor) AddCalleeSummary(method *ops.Symbol, ret *dataflow.PointsToValue) {
	v.summaries[method] = ret
}

func (v *Visitor) OnBlockStart(block *cfg.BasicBlock, d *Data) {
	v.logger.Tracef("pointsto: enter %s with %d entities", block, d.Core.Size())
}

func (v *Visitor) OnBlockEnd(block *cfg.BasicBlock, d *Data) {
	v.logger.Tracef("pointsto: leave %s with %d entities", block, d.Core.Size())
}

func (v *Visitor) FlowOperation(op ops.Operation, d *Data) *Data {
	switch o := op.(type) {
	case *ops.SimpleAssignment:
		if tgt, ok := v.entityOf(o.Target, d); ok {
			v.assignTo(tgt, o.Value, d)
		}
	case *ops.FlowCapture:
		v.flowCapture(o, d)
	case *ops.Invocation:
		v.flowInvocation(o, d)
	case *ops.Return, *ops.Throw:
		// Value already computed by the frontend lowering; nothing to track.
	}
	return d
}

func (v *Visitor) flowCapture(c *ops.FlowCapture, d *Data) {
	capEnt := v.Entities.ForCapture(c.ID, c.Type())
	if d.HasPredicatedData(capEnt) {
		d.StopTrackingPredicatedData(capEnt)
	}
	// Re-binding a captured predicate moves its branch overlays to the new capture.
	if src, ok := c.Captured.(*ops.FlowCaptureReference); ok {
		srcCap := v.Entities.ForCapture(src.ID, src.Type())
		if d.HasPredicatedData(srcCap) {
			v.assignTo(capEnt, c.Captured, d)
			d.TransferPredicatedData(srcCap, capEnt)
			return
		}
	}
	v.assignTo(capEnt, c.Captured, d)
	if c.Captured.Type().IsBool {
		v.trackCapturedPredicate(capEnt, c.Captured, d)
	}
}

// trackCapturedPredicate precomputes the branch overlays of a boolean capture so that a later
// branch on the capture can replay them.
func (v *Visitor) trackCapturedPredicate(capEnt *dataflow.AnalysisEntity, cond ops.Operation,
	d *Data) {
	trueClone, falseClone := d.Clone(), d.Clone()
	kind := v.splitByCondition(cond, trueClone, falseClone)
	trueDelta := coreDelta(d, trueClone)
	falseDelta := coreDelta(d, falseClone)
	if kind == dataflow.PredicateUnknown && trueDelta.Size() == 0 && falseDelta.Size() == 0 {
		return
	}
	if kind == dataflow.PredicateAlwaysTrue {
		falseDelta = nil
	}
	if kind == dataflow.PredicateAlwaysFalse {
		trueDelta = nil
	}
	d.StartTrackingPredicatedData(capEnt, trueDelta, falseDelta)
}

// coreDelta returns the entries of branch that differ from base.
func coreDelta(base, branch *Data) *dataflow.AnalysisData[*dataflow.PointsToValue] {
	delta := dataflow.NewAnalysisData[*dataflow.PointsToValue]()
	branch.Core.ForEach(func(e *dataflow.AnalysisEntity, bv *dataflow.PointsToValue) {
		if v, ok := base.Core.Get(e); !ok || !v.Equal(bv) {
			delta.Set(e, bv)
		}
	})
	return delta
}

func (v *Visitor) flowInvocation(inv *ops.Invocation, d *Data) {
	if !v.pessimistic {
		return
	}
	// Pessimistic mode assumes the callee may rebind anything reachable from its arguments.
	args := inv.Arguments
	if inv.Instance != nil {
		args = append([]ops.Operation{inv.Instance}, args...)
	}
	for _, arg := range args {
		if !arg.Type().IsReference {
			continue
		}
		if ent, ok := v.entityOf(arg, d); ok {
			v.breakCopies(ent, d)
			d.Core.Set(ent, dataflow.UnknownPointsTo)
		}
	}
}

func (v *Visitor) FlowCondition(cond ops.Operation, d *Data) (*Data, *Data,
	dataflow.PredicateValueKind) {
	trueD, falseD := d.Clone(), d.Clone()
	kind := v.splitByCondition(cond, trueD, falseD)
	v.Predicates.Record(cond, kind)
	return trueD, falseD, kind
}

// splitByCondition strengthens trueD and falseD with the facts implied by each outcome of cond
// and classifies the predicate.
func (v *Visitor) splitByCondition(cond ops.Operation, trueD, falseD *Data) dataflow.PredicateValueKind {
	switch c := cond.(type) {
	case *ops.UnaryOperation:
		if c.Operator == ops.UnaryNot {
			return v.splitByCondition(c.Operand, falseD, trueD).Negate()
		}
	case *ops.IsNull:
		return v.splitNullCheck(c.Operand, trueD, falseD)
	case *ops.BinaryOperation:
		switch c.Operator {
		case ops.BinaryEquals:
			return v.splitEquality(c, trueD, falseD)
		case ops.BinaryNotEquals:
			return v.splitEquality(c, falseD, trueD).Negate()
		}
	case *ops.FlowCaptureReference:
		capEnt := v.Entities.ForCapture(c.ID, c.Type())
		kind := trueD.ApplyPredicatedDataForEntity(capEnt, true)
		if k := falseD.ApplyPredicatedDataForEntity(capEnt, false); kind == dataflow.PredicateUnknown {
			kind = k
		}
		return kind
	}
	return dataflow.PredicateUnknown
}

// splitNullCheck handles "target is null": nullD is the branch where it holds, notNullD the one
// where it does not.
func (v *Visitor) splitNullCheck(target ops.Operation, nullD, notNullD *Data) dataflow.PredicateValueKind {
	val := v.valueOf(target, nullD)
	kind := dataflow.PredicateUnknown
	switch val.NullState() {
	case dataflow.NullStateNull:
		kind = dataflow.PredicateAlwaysTrue
	case dataflow.NullStateNotNull:
		kind = dataflow.PredicateAlwaysFalse
	}
	ent, ok := v.entityOf(target, nullD)
	if !ok {
		return kind
	}
	v.setNullState(ent, dataflow.NullStateNull, nullD)
	v.setNullState(ent, dataflow.NullStateNotNull, notNullD)
	return kind
}

func (v *Visitor) splitEquality(c *ops.BinaryOperation, eqD, neD *Data) dataflow.PredicateValueKind {
	if isNullLiteral(c.Right) {
		return v.splitNullCheck(c.Left, eqD, neD)
	}
	if isNullLiteral(c.Left) {
		return v.splitNullCheck(c.Right, eqD, neD)
	}

	le, lok := v.entityOf(c.Left, eqD)
	re, rok := v.entityOf(c.Right, eqD)
	lv := v.valueOf(c.Left, eqD)
	rv := v.valueOf(c.Right, eqD)

	kind := dataflow.PredicateUnknown
	switch {
	case lok && rok && (le == re || lv.CopyEntities().Contains(re)):
		kind = dataflow.PredicateAlwaysTrue
	case lv.IsNull() && rv.IsNull():
		kind = dataflow.PredicateAlwaysTrue
	case lv.IsNull() && rv.NullState() == dataflow.NullStateNotNull,
		rv.IsNull() && lv.NullState() == dataflow.NullStateNotNull:
		kind = dataflow.PredicateAlwaysFalse
	}

	// Equality holding makes the operands aliases on the true branch.
	if lok && rok && le != re {
		v.addCopy(le, re, eqD)
	}
	// A definitely-null operand decides the other side's null state on both branches.
	if lv.IsNull() && rok {
		v.setNullState(re, dataflow.NullStateNull, eqD)
		v.setNullState(re, dataflow.NullStateNotNull, neD)
	}
	if rv.IsNull() && lok {
		v.setNullState(le, dataflow.NullStateNull, eqD)
		v.setNullState(le, dataflow.NullStateNotNull, neD)
	}
	return kind
}

func isNullLiteral(op ops.Operation) bool {
	lit, ok := op.(*ops.Literal)
	return ok && lit.IsNull
}

// entityOf resolves op to a trackable entity. Field chains rooted at an instance with unknown
// points-to identity resolve to nothing and go untracked.
func (v *Visitor) entityOf(op ops.Operation, d *Data) (*dataflow.AnalysisEntity, bool) {
	switch o := op.(type) {
	case *ops.ParameterReference:
		return v.Entities.ForParameter(o.Parameter), true
	case *ops.LocalReference:
		return v.Entities.ForLocal(o.Local), true
	case *ops.FlowCaptureReference:
		return v.Entities.ForCapture(o.ID, o.Type()), true
	case *ops.FieldReference:
		if o.Instance == nil {
			return v.Entities.ForStaticField(o.Field), true
		}
		parent, ok := v.entityOf(o.Instance, d)
		if !ok {
			return nil, false
		}
		return v.Entities.ForField(parent, v.valueOf(o.Instance, d), o.Field)
	}
	return nil, false
}

// valueOf evaluates the points-to value of op under d.
func (v *Visitor) valueOf(op ops.Operation, d *Data) *dataflow.PointsToValue {
	if ent, ok := v.entityOf(op, d); ok {
		if val, ok := d.Core.Get(ent); ok {
			return val
		}
		return defaultValue(op.Type())
	}
	switch o := op.(type) {
	case *ops.Literal:
		if o.IsNull {
			return dataflow.NullPointsTo
		}
		if o.Type().IsReference {
			return dataflow.UnknownNotNullPointsTo
		}
		return dataflow.NoLocationPointsTo
	case *ops.ObjectCreation:
		site := v.sites.Site(o, o.Type())
		return dataflow.NewKnownPointsTo(dataflow.NewLocationSet(site), dataflow.NullStateNotNull)
	case *ops.InstanceReference:
		return dataflow.UnknownNotNullPointsTo
	case *ops.Invocation:
		if o.WellKnown == ops.MethodClone {
			return dataflow.UnknownNotNullPointsTo
		}
		if v.callDepth > 0 && o.Method != nil {
			if ret, ok := v.summaries[o.Method]; ok {
				return ret
			}
		}
		return defaultValue(o.Type())
	case *ops.Conversion:
		val := v.valueOf(o.Operand, d)
		switch {
		case o.AlwaysFail:
			return dataflow.NullPointsTo
		case val.NullState() == dataflow.NullStateNotNull && !o.AlwaysSucceed:
			return val.WithNullState(dataflow.NullStateMaybeNull)
		default:
			return val
		}
	case *ops.Coalesce:
		val := v.valueOf(o.Value, d)
		switch val.NullState() {
		case dataflow.NullStateNull:
			return v.valueOf(o.WhenNull, d)
		case dataflow.NullStateNotNull:
			return val
		default:
			left := val.WithNullState(dataflow.NullStateNotNull)
			return left.Merge(v.valueOf(o.WhenNull, d), 0)
		}
	case *ops.NameOf:
		if op.Type().IsReference {
			return dataflow.UnknownNotNullPointsTo
		}
		return dataflow.NoLocationPointsTo
	}
	return defaultValue(op.Type())
}

func defaultValue(t ops.TypeInfo) *dataflow.PointsToValue {
	if !t.IsReference {
		return dataflow.NoLocationPointsTo
	}
	return dataflow.UnknownPointsTo
}

// assignTo writes the value of valueOp into tgt, maintaining the symmetry of copy sets: the old
// alias relations of tgt are severed first, and when the source is itself an entity, tgt joins the
// source's alias group.
func (v *Visitor) assignTo(tgt *dataflow.AnalysisEntity, valueOp ops.Operation, d *Data) {
	v.breakCopies(tgt, d)
	val := v.valueOf(valueOp, d)
	src, ok := v.entityOf(valueOp, d)
	if !ok || src == tgt {
		d.Core.Set(tgt, val.WithCopyEntities(dataflow.NewEntitySet()))
		return
	}
	group := val.CopyEntities().With(src)
	d.Core.Set(tgt, val.WithCopyEntities(group.Without(tgt)))
	for _, m := range group.Slice() {
		if m == tgt {
			continue
		}
		mv, okv := d.Core.Get(m)
		if !okv {
			mv = val
		}
		d.Core.Set(m, mv.WithCopyEntities(mv.CopyEntities().With(tgt).Without(m)))
	}
}

// breakCopies removes tgt from the copy set of every alias before tgt is rebound.
func (v *Visitor) breakCopies(tgt *dataflow.AnalysisEntity, d *Data) {
	old, ok := d.Core.Get(tgt)
	if !ok {
		return
	}
	for _, c := range old.CopyEntities().Slice() {
		if cv, okc := d.Core.Get(c); okc {
			d.Core.Set(c, cv.WithCopyEntities(cv.CopyEntities().Without(tgt)))
		}
	}
}

// addCopy records that a and b alias, keeping both copy sets symmetric.
func (v *Visitor) addCopy(a, b *dataflow.AnalysisEntity, d *Data) {
	av := v.entityValue(a, d)
	bv := v.entityValue(b, d)
	d.Core.Set(a, av.WithCopyEntities(av.CopyEntities().With(b).Without(a)))
	d.Core.Set(b, bv.WithCopyEntities(bv.CopyEntities().With(a).Without(b)))
}

// setNullState strengthens the null state of ent and of every entity aliasing it.
func (v *Visitor) setNullState(ent *dataflow.AnalysisEntity, s dataflow.NullState, d *Data) {
	val := v.entityValue(ent, d)
	d.Core.Set(ent, val.WithNullState(s))
	for _, c := range val.CopyEntities().Slice() {
		cv := v.entityValue(c, d)
		d.Core.Set(c, cv.WithNullState(s))
	}
}

func (v *Visitor) entityValue(ent *dataflow.AnalysisEntity, d *Data) *dataflow.PointsToValue {
	if val, ok := d.Core.Get(ent); ok {
		return val
	}
	return defaultValue(ent.Type)
}
