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

package valuecontent

import (
	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

// Visitor is the value-content transfer function. Only an allowlist of content-preserving
// operations propagates literal sets; everything else degrades to Maybe.
type Visitor struct {
	Entities   *dataflow.EntityFactory
	Predicates *dataflow.PredicateRecorder

	values ContentDomain
	logger *config.LogGroup
}

var _ dataflow.Visitor[*Data] = (*Visitor)(nil)

// NewVisitor returns a visitor with a fresh entity factory.
func NewVisitor(cfg *config.Config, logger *config.LogGroup) *Visitor {
	return &Visitor{
		Entities:   dataflow.NewEntityFactory(),
		Predicates: dataflow.NewPredicateRecorder(),
		values:     ContentDomain{MaxLiterals: cfg.MaxLiteralValues},
		logger:     logger,
	}
}

func (v *Visitor) OnBlockStart(block *cfg.BasicBlock, d *Data) {
	v.logger.Tracef("valuecontent: enter %s with %d entities", block, d.Core.Size())
}

func (v *Visitor) OnBlockEnd(block *cfg.BasicBlock, d *Data) {}

func (v *Visitor) FlowOperation(op ops.Operation, d *Data) *Data {
	switch o := op.(type) {
	case *ops.SimpleAssignment:
		if tgt, ok := v.entityOf(o.Target); ok {
			d.Core.Set(tgt, v.valueOf(o.Value, d))
		}
	case *ops.FlowCapture:
		v.flowCapture(o, d)
	}
	return d
}

func (v *Visitor) flowCapture(c *ops.FlowCapture, d *Data) {
	capEnt := v.Entities.ForCapture(c.ID, c.Type())
	if d.HasPredicatedData(capEnt) {
		d.StopTrackingPredicatedData(capEnt)
	}
	if src, ok := c.Captured.(*ops.FlowCaptureReference); ok {
		srcCap := v.Entities.ForCapture(src.ID, src.Type())
		if d.HasPredicatedData(srcCap) {
			d.Core.Set(capEnt, v.valueOf(c.Captured, d))
			d.TransferPredicatedData(srcCap, capEnt)
			return
		}
	}
	d.Core.Set(capEnt, v.valueOf(c.Captured, d))
	if c.Captured.Type().IsBool {
		v.trackCapturedPredicate(capEnt, c.Captured, d)
	}
}

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

func coreDelta(base, branch *Data) *dataflow.AnalysisData[*ContentValue] {
	delta := dataflow.NewAnalysisData[*ContentValue]()
	branch.Core.ForEach(func(e *dataflow.AnalysisEntity, bv *ContentValue) {
		if val, ok := base.Core.Get(e); !ok || !val.Equal(bv) {
			delta.Set(e, bv)
		}
	})
	return delta
}

func (v *Visitor) FlowCondition(cond ops.Operation, d *Data) (*Data, *Data,
	dataflow.PredicateValueKind) {
	trueD, falseD := d.Clone(), d.Clone()
	kind := v.splitByCondition(cond, trueD, falseD)
	v.Predicates.Record(cond, kind)
	return trueD, falseD, kind
}

func (v *Visitor) splitByCondition(cond ops.Operation, trueD, falseD *Data) dataflow.PredicateValueKind {
	switch c := cond.(type) {
	case *ops.UnaryOperation:
		if c.Operator == ops.UnaryNot {
			return v.splitByCondition(c.Operand, falseD, trueD).Negate()
		}
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

// splitEquality classifies "left == right" from exact literal sets: disjoint exact sets can never
// compare equal, equal singletons always do. On the equal branch, an exact operand pins the other
// side's content.
func (v *Visitor) splitEquality(c *ops.BinaryOperation, eqD, neD *Data) dataflow.PredicateValueKind {
	lv := v.valueOf(c.Left, eqD)
	rv := v.valueOf(c.Right, eqD)

	kind := dataflow.PredicateUnknown
	if lv.IsExact() && rv.IsExact() {
		common := intersectLiterals(lv, rv)
		switch {
		case len(common) == 0:
			kind = dataflow.PredicateAlwaysFalse
		case lv.NumLiterals() == 1 && rv.NumLiterals() == 1:
			kind = dataflow.PredicateAlwaysTrue
		}
	}

	if lv.IsExact() {
		if re, ok := v.entityOf(c.Right); ok {
			v.strengthenEquality(re, rv, lv, eqD)
		}
	}
	if rv.IsExact() {
		if le, ok := v.entityOf(c.Left); ok {
			v.strengthenEquality(le, lv, rv, eqD)
		}
	}
	return kind
}

// strengthenEquality narrows ent to the values it can share with an exact other side.
func (v *Visitor) strengthenEquality(ent *dataflow.AnalysisEntity, own, other *ContentValue,
	d *Data) {
	if own.IsExact() {
		common := intersectLiterals(own, other)
		if len(common) > 0 {
			d.Core.Set(ent, newContent(NonLiteralNo, common))
		}
		return
	}
	d.Core.Set(ent, newContent(NonLiteralNo, literalSet(other)))
}

func intersectLiterals(a, b *ContentValue) map[any]bool {
	out := map[any]bool{}
	for _, l := range a.Literals() {
		if b.HasLiteral(l) {
			out[l] = true
		}
	}
	return out
}

func literalSet(v *ContentValue) map[any]bool {
	out := make(map[any]bool, v.NumLiterals())
	for _, l := range v.Literals() {
		out[l] = true
	}
	return out
}

func (v *Visitor) entityOf(op ops.Operation) (*dataflow.AnalysisEntity, bool) {
	switch o := op.(type) {
	case *ops.ParameterReference:
		return v.Entities.ForParameter(o.Parameter), true
	case *ops.LocalReference:
		return v.Entities.ForLocal(o.Local), true
	case *ops.FlowCaptureReference:
		return v.Entities.ForCapture(o.ID, o.Type()), true
	case *ops.FieldReference:
		if o.WellKnown == ops.FieldStringEmpty {
			return nil, false
		}
		if o.Instance == nil {
			return v.Entities.ForStaticField(o.Field), true
		}
		parent, ok := v.entityOf(o.Instance)
		if !ok {
			return nil, false
		}
		return v.Entities.ForFieldOfParent(parent, o.Field), true
	}
	return nil, false
}

// valueOf evaluates the content of op under d.
func (v *Visitor) valueOf(op ops.Operation, d *Data) *ContentValue {
	if ent, ok := v.entityOf(op); ok {
		if val, ok := d.Core.Get(ent); ok {
			return val
		}
		return MaybeContent
	}
	switch o := op.(type) {
	case *ops.Literal:
		if o.IsNull {
			return NewLiteralContent(nil)
		}
		return NewLiteralContent(o.Value)
	case *ops.FieldReference:
		if o.WellKnown == ops.FieldStringEmpty {
			return NewLiteralContent("")
		}
	case *ops.NameOf:
		return NewLiteralContent(o.Referenced.Name)
	case *ops.BinaryOperation:
		if o.Operator == ops.BinaryAdd {
			return v.combine(v.valueOf(o.Left, d), v.valueOf(o.Right, d))
		}
	case *ops.Invocation:
		switch o.WellKnown {
		case ops.MethodStringConcat, ops.MethodStringInterpolate:
			return v.concatAll(o, d)
		case ops.MethodClone:
			if o.Instance != nil {
				return v.valueOf(o.Instance, d)
			}
		}
	case *ops.Conversion:
		return v.valueOf(o.Operand, d)
	case *ops.Coalesce:
		return v.values.Merge(v.valueOf(o.Value, d), v.valueOf(o.WhenNull, d))
	}
	return MaybeContent
}

func (v *Visitor) concatAll(inv *ops.Invocation, d *Data) *ContentValue {
	parts := inv.Arguments
	if inv.Instance != nil {
		parts = append([]ops.Operation{inv.Instance}, parts...)
	}
	if len(parts) == 0 {
		return NewLiteralContent("")
	}
	acc := v.valueOf(parts[0], d)
	for _, p := range parts[1:] {
		acc = v.combine(acc, v.valueOf(p, d))
	}
	return acc
}

// combine is the cartesian product of two exact literal sets under + . A non-exact operand makes
// the result Maybe: the candidates would no longer be authoritative.
func (v *Visitor) combine(a, b *ContentValue) *ContentValue {
	if !a.IsExact() || !b.IsExact() {
		return MaybeContent
	}
	literals := map[any]bool{}
	for _, la := range a.Literals() {
		for _, lb := range b.Literals() {
			c, ok := combineLiterals(la, lb)
			if !ok {
				return MaybeContent
			}
			literals[c] = true
		}
	}
	return v.values.capped(newContent(NonLiteralNo, literals))
}

func combineLiterals(a, b any) (any, bool) {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa + sb, true
		}
		return nil, false
	}
	if ia, ok := a.(int); ok {
		if ib, ok := b.(int); ok {
			return ia + ib, true
		}
	}
	return nil, false
}
