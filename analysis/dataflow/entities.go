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
	"fmt"
	"sort"
	"strings"

	"github.com/mavasani/roslyn-analyzers/analysis/ops"
	"github.com/mavasani/roslyn-analyzers/internal/funcutil"
)

// An AnalysisEntity is a trackable storage location: a local, a parameter, a flow capture, or a
// field reference chain rooted at an instance. Entity identity is structural (the symbol, the
// identity of the containing instance, and the parent chain) and entities are hash-consed by the
// factory, so two structurally equal entities are the same pointer for the lifetime of a run.
type AnalysisEntity struct {
	// Symbol is the referenced symbol, nil for flow captures.
	Symbol *ops.Symbol

	// CaptureID identifies a flow-capture entity.
	CaptureID ops.CaptureID

	// Parent is the entity of the containing instance for field chains, nil otherwise.
	Parent *AnalysisEntity

	// InstanceLocation is the points-to identity of the containing instance for field entities.
	// Entities whose instance location is not known are never created: tracking them would merge
	// unrelated storage and be unsound.
	InstanceLocation *PointsToValue

	Type ops.TypeInfo

	IsCapture bool

	id  int
	key string
}

// ID returns the dense per-run id of the entity.
func (e *AnalysisEntity) ID() int { return e.id }

func (e *AnalysisEntity) String() string {
	if e == nil {
		return "<nil entity>"
	}
	if e.IsCapture {
		return fmt.Sprintf("capture#%d", int(e.CaptureID))
	}
	if e.Parent != nil {
		return e.Parent.String() + "." + e.Symbol.Name
	}
	return e.Symbol.Name
}

// An EntityFactory creates and interns the analysis entities of one run.
type EntityFactory struct {
	entities map[string]*AnalysisEntity
	next     int
}

// NewEntityFactory returns an empty factory.
func NewEntityFactory() *EntityFactory {
	return &EntityFactory{entities: map[string]*AnalysisEntity{}}
}

func (f *EntityFactory) intern(key string, build func() *AnalysisEntity) *AnalysisEntity {
	if e, ok := f.entities[key]; ok {
		return e
	}
	e := build()
	e.key = key
	e.id = f.next
	f.next++
	f.entities[key] = e
	return e
}

// ForLocal returns the entity of a local variable. Symbols compare by pointer identity, so the
// intern key carries the pointer: two shadowing locals named alike stay distinct entities.
func (f *EntityFactory) ForLocal(sym *ops.Symbol) *AnalysisEntity {
	return f.intern(fmt.Sprintf("l:%p", sym), func() *AnalysisEntity {
		return &AnalysisEntity{Symbol: sym, Type: sym.Type}
	})
}

// ForParameter returns the entity of a parameter.
func (f *EntityFactory) ForParameter(sym *ops.Symbol) *AnalysisEntity {
	return f.intern(fmt.Sprintf("p:%p", sym), func() *AnalysisEntity {
		return &AnalysisEntity{Symbol: sym, Type: sym.Type}
	})
}

// ForCapture returns the entity of a flow capture temporary.
func (f *EntityFactory) ForCapture(id ops.CaptureID, t ops.TypeInfo) *AnalysisEntity {
	return f.intern(fmt.Sprintf("c:%d", int(id)), func() *AnalysisEntity {
		return &AnalysisEntity{CaptureID: id, Type: t, IsCapture: true}
	})
}

// ForStaticField returns the entity of a static field.
func (f *EntityFactory) ForStaticField(field *ops.Symbol) *AnalysisEntity {
	return f.intern(fmt.Sprintf("s:%p", field), func() *AnalysisEntity {
		return &AnalysisEntity{Symbol: field, Type: field.Type}
	})
}

// ForField returns the entity of field on the instance denoted by parent with the given points-to
// identity. The second result is false when the instance location is unknown: such chains are not
// tracked.
func (f *EntityFactory) ForField(parent *AnalysisEntity, instanceLocation *PointsToValue,
	field *ops.Symbol) (*AnalysisEntity, bool) {
	if instanceLocation == nil || instanceLocation.Kind() != PointsToKnown {
		return nil, false
	}
	key := fmt.Sprintf("f:%s.%p@%s", parent.key, field, instanceLocation.locations.String())
	e := f.intern(key, func() *AnalysisEntity {
		return &AnalysisEntity{Symbol: field, Parent: parent, InstanceLocation: instanceLocation,
			Type: field.Type}
	})
	return e, true
}

// ForFieldOfParent returns the entity of field keyed only by the parent entity. Analyses that do
// not track points-to identities use this coarser keying.
func (f *EntityFactory) ForFieldOfParent(parent *AnalysisEntity, field *ops.Symbol) *AnalysisEntity {
	return f.intern(fmt.Sprintf("f:%s.%p", parent.key, field), func() *AnalysisEntity {
		return &AnalysisEntity{Symbol: field, Parent: parent, Type: field.Type}
	})
}

// An EntitySet is an immutable set of entities. Mutating operations return new sets and may return
// a shared input when the result equals it.
type EntitySet struct {
	m map[*AnalysisEntity]bool
}

var emptyEntitySet = &EntitySet{m: map[*AnalysisEntity]bool{}}

// NewEntitySet returns the set of the given entities.
func NewEntitySet(entities ...*AnalysisEntity) *EntitySet {
	if len(entities) == 0 {
		return emptyEntitySet
	}
	m := make(map[*AnalysisEntity]bool, len(entities))
	for _, e := range entities {
		m[e] = true
	}
	return &EntitySet{m: m}
}

// Size returns the number of entities in the set.
func (s *EntitySet) Size() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Contains returns true when e is in the set.
func (s *EntitySet) Contains(e *AnalysisEntity) bool {
	return s != nil && s.m[e]
}

// With returns the set extended with e.
func (s *EntitySet) With(e *AnalysisEntity) *EntitySet {
	if s.Contains(e) {
		return s
	}
	m := make(map[*AnalysisEntity]bool, s.Size()+1)
	for x := range s.m {
		m[x] = true
	}
	m[e] = true
	return &EntitySet{m: m}
}

// Without returns the set with e removed.
func (s *EntitySet) Without(e *AnalysisEntity) *EntitySet {
	if !s.Contains(e) {
		return s
	}
	if s.Size() == 1 {
		return emptyEntitySet
	}
	m := make(map[*AnalysisEntity]bool, s.Size()-1)
	for x := range s.m {
		if x != e {
			m[x] = true
		}
	}
	return &EntitySet{m: m}
}

// Union returns the union of the two sets.
func (s *EntitySet) Union(other *EntitySet) *EntitySet {
	if other.Size() == 0 || s == other {
		return s
	}
	if s.Size() == 0 {
		return other
	}
	if s.ContainsAll(other) {
		return s
	}
	m := make(map[*AnalysisEntity]bool, s.Size()+other.Size())
	funcutil.Union(m, s.m)
	funcutil.Union(m, other.m)
	return &EntitySet{m: m}
}

// Intersect returns the intersection of the two sets.
func (s *EntitySet) Intersect(other *EntitySet) *EntitySet {
	if s == other {
		return s
	}
	if s.Size() == 0 {
		return s
	}
	if other.Size() == 0 {
		return other
	}
	m := funcutil.Intersect(s.m, other.m)
	if len(m) == len(s.m) {
		return s
	}
	if len(m) == 0 {
		return emptyEntitySet
	}
	return &EntitySet{m: m}
}

// ContainsAll returns true when every entity of other is in the set.
func (s *EntitySet) ContainsAll(other *EntitySet) bool {
	if other.Size() == 0 {
		return true
	}
	if s.Size() < other.Size() {
		return false
	}
	for x := range other.m {
		if !s.m[x] {
			return false
		}
	}
	return true
}

// Equal returns true when both sets hold the same entities.
func (s *EntitySet) Equal(other *EntitySet) bool {
	return s.Size() == other.Size() && s.ContainsAll(other)
}

// Slice returns the entities in deterministic order.
func (s *EntitySet) Slice() []*AnalysisEntity {
	if s == nil {
		return nil
	}
	out := make([]*AnalysisEntity, 0, len(s.m))
	for e := range s.m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *EntitySet) String() string {
	var parts []string
	for _, e := range s.Slice() {
		parts = append(parts, e.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
