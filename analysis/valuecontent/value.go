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

// Package valuecontent tracks the possible compile-time contents of an entity: a finite candidate
// set of literal values plus a state describing whether non-literal values may flow in. String
// rules use it to reason about concatenated and interpolated values.
package valuecontent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
)

// NonLiteralState says whether values other than the tracked literals may reach the entity.
type NonLiteralState int

const (
	NonLiteralUndefined NonLiteralState = iota
	NonLiteralInvalid
	// NonLiteralNo means the literal set is exhaustive.
	NonLiteralNo
	// NonLiteralMaybe means unknown values may flow in; any literal set is only a candidate set.
	NonLiteralMaybe
)

func (s NonLiteralState) String() string {
	switch s {
	case NonLiteralUndefined:
		return "undefined"
	case NonLiteralInvalid:
		return "invalid"
	case NonLiteralNo:
		return "no"
	case NonLiteralMaybe:
		return "maybe"
	}
	return fmt.Sprintf("NonLiteralState(%d)", int(s))
}

// joinNonLiteral joins two states: the placeholders sit below the real states and No sits below
// Maybe, so the join is the larger of the two.
func joinNonLiteral(a, b NonLiteralState) NonLiteralState {
	if a > b {
		return a
	}
	return b
}

// A ContentValue is an immutable literal-content abstraction.
type ContentValue struct {
	state    NonLiteralState
	literals map[any]bool
}

var (
	UndefinedContent = &ContentValue{state: NonLiteralUndefined}
	InvalidContent   = &ContentValue{state: NonLiteralInvalid}
	MaybeContent     = &ContentValue{state: NonLiteralMaybe}
)

// NewLiteralContent returns the exact content of a single literal.
func NewLiteralContent(value any) *ContentValue {
	return &ContentValue{state: NonLiteralNo, literals: map[any]bool{value: true}}
}

func newContent(state NonLiteralState, literals map[any]bool) *ContentValue {
	if len(literals) == 0 {
		switch state {
		case NonLiteralUndefined:
			return UndefinedContent
		case NonLiteralInvalid:
			return InvalidContent
		case NonLiteralMaybe:
			return MaybeContent
		}
	}
	return &ContentValue{state: state, literals: literals}
}

func (v *ContentValue) State() NonLiteralState { return v.state }

// IsExact reports whether the literal set captures every possible runtime value.
func (v *ContentValue) IsExact() bool {
	return v.state == NonLiteralNo && len(v.literals) > 0
}

// Literals returns the candidate literal values in deterministic order.
func (v *ContentValue) Literals() []any {
	out := make([]any, 0, len(v.literals))
	for l := range v.literals {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out
}

// NumLiterals returns the size of the literal set.
func (v *ContentValue) NumLiterals() int { return len(v.literals) }

// HasLiteral reports whether value is among the candidates.
func (v *ContentValue) HasLiteral(value any) bool { return v.literals[value] }

// Equal reports structural equality.
func (v *ContentValue) Equal(other *ContentValue) bool {
	if v == other {
		return true
	}
	if v.state != other.state || len(v.literals) != len(other.literals) {
		return false
	}
	for l := range v.literals {
		if !other.literals[l] {
			return false
		}
	}
	return true
}

func (v *ContentValue) String() string {
	if len(v.literals) == 0 {
		return v.state.String()
	}
	var parts []string
	for _, l := range v.Literals() {
		parts = append(parts, fmt.Sprintf("%v", l))
	}
	return fmt.Sprintf("%s{%s}", v.state, strings.Join(parts, ", "))
}

// ContentDomain is the AbstractValueDomain of content values. MaxLiterals caps the literal set;
// past the cap a value degrades to Maybe with no candidates, which bounds lattice height.
type ContentDomain struct {
	MaxLiterals int
}

var _ dataflow.AbstractValueDomain[*ContentValue] = ContentDomain{}

func (ContentDomain) Bottom() *ContentValue { return UndefinedContent }

// Default is the value of an entity no path has tracked: its contents may be anything.
func (ContentDomain) Default() *ContentValue { return MaybeContent }

func (d ContentDomain) Merge(a, b *ContentValue) *ContentValue {
	if a == b {
		return a
	}
	state := joinNonLiteral(a.state, b.state)
	literals := make(map[any]bool, len(a.literals)+len(b.literals))
	for l := range a.literals {
		literals[l] = true
	}
	for l := range b.literals {
		literals[l] = true
	}
	return d.capped(newContent(state, literals))
}

func (d ContentDomain) capped(v *ContentValue) *ContentValue {
	if d.MaxLiterals > 0 && len(v.literals) > d.MaxLiterals {
		return MaybeContent
	}
	return v
}

func (d ContentDomain) Compare(old, new *ContentValue) int {
	switch {
	case old.Equal(new):
		return 0
	case d.Merge(old, new).Equal(new):
		return -1
	default:
		return 1
	}
}

// Data is the content state flowing through a procedure.
type Data = dataflow.PredicatedData[*ContentValue]

// Domain is the analysis domain of content data. The literal cap makes every per-entity chain
// finite, so back-edge merges need no extra widening.
type Domain struct {
	values ContentDomain
}

var _ dataflow.AnalysisDomain[*Data] = Domain{}

// NewDomain returns a domain capping literal sets at maxLiterals.
func NewDomain(maxLiterals int) Domain {
	return Domain{values: ContentDomain{MaxLiterals: maxLiterals}}
}

func (m Domain) Bottom() *Data {
	return dataflow.NewPredicatedData(dataflow.NewAnalysisData[*ContentValue]())
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

// GetOrComputeResult runs the value-content analysis over g, caching per graph and configuration.
func GetOrComputeResult(g *cfg.Graph, cfg *config.Config, logger *config.LogGroup) (*Result, error) {
	key := dataflow.CacheKey(g, "valuecontent", cfg.Fingerprint())
	return resultCache.GetOrCompute(key, func() (*Result, error) {
		v := NewVisitor(cfg, logger)
		res, err := dataflow.Run[*Data](g, NewDomain(cfg.MaxLiteralValues), v, dataflow.RunOptions{
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
