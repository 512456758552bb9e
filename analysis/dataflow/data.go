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
	"sort"
	"strings"

	"github.com/mavasani/roslyn-analyzers/internal/pool"
)

var entityScratch = pool.NewSetPool[*AnalysisEntity]()

// AnalysisData is a mutable map from entities to abstract values. An absent entity implicitly
// holds the value domain's bottom.
type AnalysisData[V any] struct {
	values map[*AnalysisEntity]V
}

// NewAnalysisData returns an empty map.
func NewAnalysisData[V any]() *AnalysisData[V] {
	return &AnalysisData[V]{values: map[*AnalysisEntity]V{}}
}

// Get returns the value of e and whether it is explicitly present.
func (d *AnalysisData[V]) Get(e *AnalysisEntity) (V, bool) {
	v, ok := d.values[e]
	return v, ok
}

// Set stores the value of e.
func (d *AnalysisData[V]) Set(e *AnalysisEntity, v V) {
	d.values[e] = v
}

// Remove drops the entry of e.
func (d *AnalysisData[V]) Remove(e *AnalysisEntity) {
	delete(d.values, e)
}

// Has reports whether e is explicitly present.
func (d *AnalysisData[V]) Has(e *AnalysisEntity) bool {
	_, ok := d.values[e]
	return ok
}

// Size returns the number of tracked entities.
func (d *AnalysisData[V]) Size() int { return len(d.values) }

// Clone returns an independent copy.
func (d *AnalysisData[V]) Clone() *AnalysisData[V] {
	out := &AnalysisData[V]{values: make(map[*AnalysisEntity]V, len(d.values))}
	for e, v := range d.values {
		out.values[e] = v
	}
	return out
}

// ForEach visits every entry in deterministic entity order.
func (d *AnalysisData[V]) ForEach(f func(e *AnalysisEntity, v V)) {
	for _, e := range d.Entities() {
		f(e, d.values[e])
	}
}

// Entities returns the tracked entities in deterministic order.
func (d *AnalysisData[V]) Entities() []*AnalysisEntity {
	return d.AppendEntities(make([]*AnalysisEntity, 0, len(d.values)))
}

// AppendEntities appends the tracked entities to buf in deterministic order and returns the
// extended slice. Callers holding a pooled scratch slice iterate without a per-call allocation.
func (d *AnalysisData[V]) AppendEntities(buf []*AnalysisEntity) []*AnalysisEntity {
	for e := range d.values {
		buf = append(buf, e)
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i].ID() < buf[j].ID() })
	return buf
}

// MergeWith joins other into d pointwise. An entity present on only one side was never tracked on
// the other path, so it joins against the value domain's default; joining against bottom instead
// would let a single path's fact survive the join unweakened.
func (d *AnalysisData[V]) MergeWith(other *AnalysisData[V], domain AbstractValueDomain[V]) {
	def := domain.Default()
	for e, ov := range other.values {
		if v, ok := d.values[e]; ok {
			d.values[e] = domain.Merge(v, ov)
		} else {
			d.values[e] = domain.Merge(def, ov)
		}
	}
	for e, v := range d.values {
		if _, ok := other.values[e]; !ok {
			d.values[e] = domain.Merge(v, def)
		}
	}
}

// CompareWith compares d as the old value against new. It returns 0 when equal, a negative value
// when d is pointwise at or below new with at least one strict increase, and a positive value
// when any entry regressed or is incomparable. Unlike MergeWith, absent entries compare against
// bottom, not the default: becoming tracked is growth (the empty snapshot is the least element),
// and an entry disappearing from new is a regression.
func (d *AnalysisData[V]) CompareWith(new *AnalysisData[V], domain AbstractValueDomain[V]) int {
	bottom := domain.Bottom()
	result := 0
	seen := entityScratch.Acquire()
	defer entityScratch.Release(seen)
	for e, ov := range d.values {
		seen[e] = true
		nv, ok := new.values[e]
		if !ok {
			nv = bottom
		}
		switch c := domain.Compare(ov, nv); {
		case c > 0:
			return 1
		case c < 0:
			result = -1
		}
	}
	for e, nv := range new.values {
		if seen[e] {
			continue
		}
		switch c := domain.Compare(bottom, nv); {
		case c > 0:
			return 1
		case c < 0:
			result = -1
		}
	}
	return result
}

func (d *AnalysisData[V]) String() string {
	var parts []string
	d.ForEach(func(e *AnalysisEntity, v V) {
		parts = append(parts, e.String()+" -> "+stringify(v))
	})
	return "{" + strings.Join(parts, ", ") + "}"
}

func stringify(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "?"
}

// DataDomain lifts an AbstractValueDomain pointwise to AnalysisData. WidenOnBackEdge, when set,
// runs after a back-edge merge over the entities whose value changed across the edge, and is the
// hook that bounds growth around loops.
type DataDomain[V any] struct {
	Values          AbstractValueDomain[V]
	WidenOnBackEdge func(merged *AnalysisData[V], changed []*AnalysisEntity)
}

var _ AnalysisDomain[*AnalysisData[int]] = DataDomain[int]{}

func (d DataDomain[V]) Bottom() *AnalysisData[V] { return NewAnalysisData[V]() }

func (d DataDomain[V]) Clone(data *AnalysisData[V]) *AnalysisData[V] { return data.Clone() }

func (d DataDomain[V]) Merge(a, b *AnalysisData[V]) *AnalysisData[V] {
	out := a.Clone()
	out.MergeWith(b, d.Values)
	return out
}

func (d DataDomain[V]) MergeOnBackEdge(old, incoming *AnalysisData[V]) *AnalysisData[V] {
	merged := d.Merge(old, incoming)
	if d.WidenOnBackEdge == nil {
		return merged
	}
	var changed []*AnalysisEntity
	for _, e := range merged.Entities() {
		mv, _ := merged.Get(e)
		ov, ok := old.Get(e)
		if !ok {
			ov = d.Values.Bottom()
		}
		if d.Values.Compare(ov, mv) != 0 {
			changed = append(changed, e)
		}
	}
	if len(changed) > 0 {
		d.WidenOnBackEdge(merged, changed)
	}
	return merged
}

func (d DataDomain[V]) Compare(old, new *AnalysisData[V]) int {
	return old.CompareWith(new, d.Values)
}
