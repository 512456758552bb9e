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

// Package copyanalysis tracks value equality between entities: which entities are proven to hold
// equal values on every path to a program point. Equality comparisons between members of one
// group classify as always true, which feeds dead-branch reporting.
package copyanalysis

import (
	"strings"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
)

// CopyKind classifies a copy value.
type CopyKind int

const (
	CopyUndefined CopyKind = iota
	CopyInvalid
	CopyUnknown
	CopyKnown
)

// A CopyValue is one equality group: the set of entities mutually proven equal, the owning entity
// included. Every member of a group maps to the same CopyValue object, which keeps the symmetry
// invariant a matter of construction rather than bookkeeping.
type CopyValue struct {
	kind     CopyKind
	entities *dataflow.EntitySet
}

var (
	UndefinedCopy = &CopyValue{kind: CopyUndefined, entities: dataflow.NewEntitySet()}
	InvalidCopy   = &CopyValue{kind: CopyInvalid, entities: dataflow.NewEntitySet()}
	UnknownCopy   = &CopyValue{kind: CopyUnknown, entities: dataflow.NewEntitySet()}
)

// NewCopyValue returns the Known group of the given entities.
func NewCopyValue(entities *dataflow.EntitySet) *CopyValue {
	return &CopyValue{kind: CopyKnown, entities: entities}
}

func (v *CopyValue) Kind() CopyKind                { return v.kind }
func (v *CopyValue) Entities() *dataflow.EntitySet { return v.entities }

// Contains reports whether e is a member of the group.
func (v *CopyValue) Contains(e *dataflow.AnalysisEntity) bool {
	return v.kind == CopyKnown && v.entities.Contains(e)
}

// Equal reports structural equality.
func (v *CopyValue) Equal(other *CopyValue) bool {
	if v == other {
		return true
	}
	return v.kind == other.kind && v.entities.Equal(other.entities)
}

func (v *CopyValue) String() string {
	switch v.kind {
	case CopyUndefined:
		return "undefined"
	case CopyInvalid:
		return "invalid"
	case CopyUnknown:
		return "unknown"
	}
	var parts []string
	for _, e := range v.entities.Slice() {
		parts = append(parts, e.String())
	}
	return "copy{" + strings.Join(parts, ", ") + "}"
}

// CopyDomain is the AbstractValueDomain of copy values. Merge intersects groups: an equality
// survives a join only when it holds on both paths.
type CopyDomain struct{}

var _ dataflow.AbstractValueDomain[*CopyValue] = CopyDomain{}

func (CopyDomain) Bottom() *CopyValue { return UndefinedCopy }

// Default is the value of an entity no path has tracked: no equality is known to hold for it.
func (CopyDomain) Default() *CopyValue { return UnknownCopy }

func (CopyDomain) Merge(a, b *CopyValue) *CopyValue {
	switch {
	case a == b:
		return a
	case a.kind == CopyUndefined || a.kind == CopyInvalid:
		return b
	case b.kind == CopyUndefined || b.kind == CopyInvalid:
		return a
	case a.kind == CopyUnknown || b.kind == CopyUnknown:
		return UnknownCopy
	}
	inter := a.entities.Intersect(b.entities)
	if inter == a.entities {
		return a
	}
	if inter == b.entities {
		return b
	}
	return NewCopyValue(inter)
}

// Compare orders by information content: a group above another has fewer proven equalities.
func (d CopyDomain) Compare(old, new *CopyValue) int {
	switch {
	case old.Equal(new):
		return 0
	case d.Merge(old, new).Equal(new):
		return -1
	default:
		return 1
	}
}

// Data is the copy state flowing through a procedure.
type Data = dataflow.PredicatedData[*CopyValue]

// Domain is the analysis domain of copy data. The group lattice only shrinks under merge, so its
// chains are bounded by the entity count and back-edge merges need no extra widening.
type Domain struct {
	values CopyDomain
}

var _ dataflow.AnalysisDomain[*Data] = Domain{}

func (m Domain) Bottom() *Data {
	return dataflow.NewPredicatedData(dataflow.NewAnalysisData[*CopyValue]())
}

func (m Domain) Clone(d *Data) *Data { return d.Clone() }

func (m Domain) Merge(a, b *Data) *Data {
	out := a.Clone()
	out.MergeWith(b, m.values)
	return out
}

func (m Domain) MergeOnBackEdge(old, incoming *Data) *Data {
	return m.Merge(old, incoming)
}

func (m Domain) Compare(old, new *Data) int {
	return old.CompareWith(new, m.values)
}

// A Result bundles the solved per-block data with the run's side products.
type Result struct {
	*dataflow.Result[*Data]

	Predicates *dataflow.PredicateRecorder
	Entities   *dataflow.EntityFactory
}

var resultCache = dataflow.NewResultCache[*Result]()

// GetOrComputeResult runs the copy analysis over g, caching per graph and configuration.
func GetOrComputeResult(g *cfg.Graph, cfg *config.Config, logger *config.LogGroup) (*Result, error) {
	key := dataflow.CacheKey(g, "copy", cfg.Fingerprint())
	return resultCache.GetOrCompute(key, func() (*Result, error) {
		v := NewVisitor(logger)
		res, err := dataflow.Run[*Data](g, Domain{}, v, dataflow.RunOptions{
			Logger:               logger,
			WideningThreshold:    cfg.WideningThreshold,
			MaxBlockVisitsFactor: cfg.MaxBlockVisitsFactor,
			DebugAssertions:      cfg.DebugAssertions,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Result: res, Predicates: v.Predicates, Entities: v.Entities}, nil
	})
}
