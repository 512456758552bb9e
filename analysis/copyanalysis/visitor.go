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
	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

// Visitor is the copy-analysis transfer function.
type Visitor struct {
	Entities   *dataflow.EntityFactory
	Predicates *dataflow.PredicateRecorder

	logger *config.LogGroup
}

var _ dataflow.Visitor[*Data] = (*Visitor)(nil)

// NewVisitor returns a visitor with a fresh entity factory.
func NewVisitor(logger *config.LogGroup) *Visitor {
	return &Visitor{
		Entities:   dataflow.NewEntityFactory(),
		Predicates: dataflow.NewPredicateRecorder(),
		logger:     logger,
	}
}

func (v *Visitor) OnBlockStart(block *cfg.BasicBlock, d *Data) {
	v.logger.Tracef("copy: enter %s with %d entities", block, d.Core.Size())
}

func (v *Visitor) OnBlockEnd(block *cfg.BasicBlock, d *Data) {}

func (v *Visitor) FlowOperation(op ops.Operation, d *Data) *Data {
	switch o := op.(type) {
	case *ops.SimpleAssignment:
		if tgt, ok := v.entityOf(o.Target); ok {
			v.assignTo(tgt, o.Value, d)
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

func coreDelta(base, branch *Data) *dataflow.AnalysisData[*CopyValue] {
	delta := dataflow.NewAnalysisData[*CopyValue]()
	branch.Core.ForEach(func(e *dataflow.AnalysisEntity, bv *CopyValue) {
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

// splitEquality classifies "left == right" and, on the branch where it holds, unions the two
// equality groups.
func (v *Visitor) splitEquality(c *ops.BinaryOperation, eqD, neD *Data) dataflow.PredicateValueKind {
	le, lok := v.entityOf(c.Left)
	re, rok := v.entityOf(c.Right)
	if !lok || !rok {
		return dataflow.PredicateUnknown
	}
	kind := dataflow.PredicateUnknown
	if le == re || v.groupOf(le, eqD).Contains(re) {
		kind = dataflow.PredicateAlwaysTrue
	}
	if le != re {
		v.unionGroups(le, re, eqD)
	}
	return kind
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

// groupOf returns the equality group of e, a fresh singleton when untracked.
func (v *Visitor) groupOf(e *dataflow.AnalysisEntity, d *Data) *CopyValue {
	if val, ok := d.Core.Get(e); ok && val.Kind() == CopyKnown {
		return val
	}
	return NewCopyValue(dataflow.NewEntitySet(e))
}

// setGroup binds every member of the group to the same value object, which is what keeps the
// symmetry invariant structural.
func (v *Visitor) setGroup(group *CopyValue, d *Data) {
	for _, m := range group.Entities().Slice() {
		d.Core.Set(m, group)
	}
}

// removeFromGroup severs e from its current group before e is rebound.
func (v *Visitor) removeFromGroup(e *dataflow.AnalysisEntity, d *Data) {
	old, ok := d.Core.Get(e)
	if !ok || old.Kind() != CopyKnown || old.Entities().Size() <= 1 {
		return
	}
	v.setGroup(NewCopyValue(old.Entities().Without(e)), d)
}

func (v *Visitor) assignTo(tgt *dataflow.AnalysisEntity, valueOp ops.Operation, d *Data) {
	v.removeFromGroup(tgt, d)
	src, ok := v.entityOf(valueOp)
	if !ok || src == tgt {
		d.Core.Set(tgt, NewCopyValue(dataflow.NewEntitySet(tgt)))
		return
	}
	group := v.groupOf(src, d).Entities().With(src).With(tgt)
	v.setGroup(NewCopyValue(group), d)
}

func (v *Visitor) unionGroups(a, b *dataflow.AnalysisEntity, d *Data) {
	merged := v.groupOf(a, d).Entities().With(a).
		Union(v.groupOf(b, d).Entities().With(b))
	v.setGroup(NewCopyValue(merged), d)
}
