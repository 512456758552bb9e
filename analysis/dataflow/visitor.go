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
	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

// A Visitor is the transfer function of one analysis: it turns the data flowing into an operation
// into the data flowing out. The engine owns the iteration order; the visitor owns the semantics.
type Visitor[D any] interface {
	// OnBlockStart is called with the block's cloned input data before any operation is flowed.
	OnBlockStart(block *cfg.BasicBlock, d D)

	// FlowOperation flows one root operation and returns the outgoing data. It may mutate and
	// return d.
	FlowOperation(op ops.Operation, d D) D

	// FlowCondition flows the branch condition of a block and splits the outgoing data by the
	// condition's truth. The returned datas must be independent of each other and of d; the
	// returned kind reports a branch proven infeasible, which the engine uses to prune
	// propagation.
	FlowCondition(cond ops.Operation, d D) (trueData, falseData D, kind PredicateValueKind)

	// OnBlockEnd is called with the block's outgoing data after every operation has been flowed.
	OnBlockEnd(block *cfg.BasicBlock, d D)
}

// RunOptions tunes one engine run. The zero value is usable; zero fields fall back to the
// defaults of config.NewDefault.
type RunOptions struct {
	Logger *config.LogGroup

	// WideningThreshold is the number of visits of a loop block before back-edge merges start
	// widening.
	WideningThreshold int

	// MaxBlockVisitsFactor bounds total block visits at factor * block count; past the bound the
	// run fails rather than loop.
	MaxBlockVisitsFactor int

	// DebugAssertions makes a non-monotone transfer-function update a run error instead of a
	// logged warning.
	DebugAssertions bool
}

func (o RunOptions) withDefaults() RunOptions {
	def := config.NewDefault()
	if o.Logger == nil {
		o.Logger = config.NewLogGroup(def)
	}
	if o.WideningThreshold <= 0 {
		o.WideningThreshold = def.WideningThreshold
	}
	if o.MaxBlockVisitsFactor <= 0 {
		o.MaxBlockVisitsFactor = def.MaxBlockVisitsFactor
	}
	return o
}

// A PredicateRecorder accumulates the predicate classification of branch conditions across the
// whole run. Conflicting classifications of the same operation on different visits degrade to
// Unknown.
type PredicateRecorder struct {
	kinds map[ops.Operation]PredicateValueKind
	seen  map[ops.Operation]bool
}

// NewPredicateRecorder returns an empty recorder.
func NewPredicateRecorder() *PredicateRecorder {
	return &PredicateRecorder{
		kinds: map[ops.Operation]PredicateValueKind{},
		seen:  map[ops.Operation]bool{},
	}
}

// Record notes the classification of op on the current visit.
func (r *PredicateRecorder) Record(op ops.Operation, kind PredicateValueKind) {
	if r.seen[op] && r.kinds[op] != kind {
		r.kinds[op] = PredicateUnknown
		return
	}
	r.seen[op] = true
	r.kinds[op] = kind
}

// KindOf returns the recorded classification of op, Unknown if never recorded.
func (r *PredicateRecorder) KindOf(op ops.Operation) PredicateValueKind {
	return r.kinds[op]
}

// Len returns the number of recorded operations.
func (r *PredicateRecorder) Len() int { return len(r.kinds) }
