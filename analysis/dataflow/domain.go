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

// An AbstractValueDomain is the lattice of per-entity abstract values of one analysis.
//
// Bottom is the least element. Default is the value an entity holds before any path tracks it:
// the may-be-anything element of the analysis, not Bottom. Joining two snapshots must use Default
// for entities absent on one side, so that a fact established on a single path does not survive
// the join as if both paths had proven it. Merge returns the least upper bound of its arguments.
// Compare relates two values in the lattice order: it returns a negative number when old is
// strictly below new, zero when they are equal, and a positive number otherwise. The solver only
// ever asks Compare the question "is new at least old"; a positive answer to a value that
// actually grew means the domain or the transfer function is broken, and the solver will ignore
// the update.
type AbstractValueDomain[V any] interface {
	Bottom() V
	Default() V
	Merge(a, b V) V
	Compare(old, new V) int
}

// An AnalysisDomain lifts a value domain to whole analysis-data snapshots of type D: it tells the
// solver how to create, duplicate, join, widen and compare the data flowing through blocks.
//
// MergeOnBackEdge is the widening merge applied where a loop back edge meets its target's input.
// It must be an upper bound of Merge's result; domains that do not widen return Merge(a, b).
type AnalysisDomain[D any] interface {
	Bottom() D
	Clone(d D) D
	Merge(a, b D) D
	MergeOnBackEdge(a, b D) D
	Compare(old, new D) int
}

// PredicateValueKind classifies the truth of a branch condition at a program point.
type PredicateValueKind int

const (
	// PredicateUnknown means both branches are feasible
	PredicateUnknown PredicateValueKind = iota

	// PredicateAlwaysTrue means the false branch is infeasible
	PredicateAlwaysTrue

	// PredicateAlwaysFalse means the true branch is infeasible
	PredicateAlwaysFalse
)

func (k PredicateValueKind) String() string {
	switch k {
	case PredicateAlwaysTrue:
		return "alwaysTrue"
	case PredicateAlwaysFalse:
		return "alwaysFalse"
	default:
		return "unknown"
	}
}

// Negate swaps the always-true and always-false classifications.
func (k PredicateValueKind) Negate() PredicateValueKind {
	switch k {
	case PredicateAlwaysTrue:
		return PredicateAlwaysFalse
	case PredicateAlwaysFalse:
		return PredicateAlwaysTrue
	default:
		return PredicateUnknown
	}
}
