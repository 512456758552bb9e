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

import "fmt"

// branchSnapshots holds the per-entity branch overlays. A nil side means that branch is
// infeasible.
type branchSnapshots[V any] struct {
	trueData  *AnalysisData[V]
	falseData *AnalysisData[V]
}

func (b *branchSnapshots[V]) clone() *branchSnapshots[V] {
	out := &branchSnapshots[V]{}
	if b.trueData != nil {
		out.trueData = b.trueData.Clone()
	}
	if b.falseData != nil {
		out.falseData = b.falseData.Clone()
	}
	return out
}

// PredicatedData is the core entity map plus, for each boolean-typed entity currently branched
// on, a pair of branch overlays holding the facts strengthened under each outcome of the
// predicate. Overlays are deltas: entities they do not mention keep their ambient core value.
type PredicatedData[V any] struct {
	// Core is the ambient analysis data.
	Core *AnalysisData[V]

	predicated map[*AnalysisEntity]*branchSnapshots[V]
}

// NewPredicatedData wraps core with no tracked predicates.
func NewPredicatedData[V any](core *AnalysisData[V]) *PredicatedData[V] {
	return &PredicatedData[V]{Core: core}
}

// HasPredicatedData reports whether e is currently branched on.
func (d *PredicatedData[V]) HasPredicatedData(e *AnalysisEntity) bool {
	_, ok := d.predicated[e]
	return ok
}

// TrackedPredicateEntities returns the number of entities with live branch overlays.
func (d *PredicatedData[V]) TrackedPredicateEntities() int { return len(d.predicated) }

// StartTrackingPredicatedData records the branch overlays of e. A nil overlay marks that branch
// infeasible. Tracking an already tracked entity is a caller bug and panics.
func (d *PredicatedData[V]) StartTrackingPredicatedData(e *AnalysisEntity,
	trueData, falseData *AnalysisData[V]) {
	if d.HasPredicatedData(e) {
		panic(fmt.Sprintf("dataflow: predicated data already tracked for %s", e))
	}
	if d.predicated == nil {
		d.predicated = map[*AnalysisEntity]*branchSnapshots[V]{}
	}
	d.predicated[e] = &branchSnapshots[V]{trueData: trueData, falseData: falseData}
}

// ApplyPredicatedDataForEntity overlays the branch overlay of e for the taken branch onto the
// core data and stops tracking e. The returned kind classifies the predicate: AlwaysFalse when the
// taken true branch is infeasible, AlwaysTrue when the untaken false branch is infeasible, and the
// mirror of those for a false taken branch. An untracked entity is a no-op reporting Unknown.
func (d *PredicatedData[V]) ApplyPredicatedDataForEntity(e *AnalysisEntity,
	trueBranch bool) PredicateValueKind {
	snaps, ok := d.predicated[e]
	if !ok {
		return PredicateUnknown
	}
	delete(d.predicated, e)

	taken, other := snaps.trueData, snaps.falseData
	if !trueBranch {
		taken, other = other, taken
	}
	kind := PredicateUnknown
	switch {
	case taken == nil:
		kind = PredicateAlwaysFalse
		if !trueBranch {
			kind = PredicateAlwaysTrue
		}
	case other == nil:
		kind = PredicateAlwaysTrue
		if !trueBranch {
			kind = PredicateAlwaysFalse
		}
	}
	if taken != nil {
		taken.ForEach(func(k *AnalysisEntity, v V) {
			d.Core.Set(k, v)
		})
	}
	return kind
}

// StopTrackingPredicatedData drops the branch overlays of e without applying them.
func (d *PredicatedData[V]) StopTrackingPredicatedData(e *AnalysisEntity) {
	delete(d.predicated, e)
}

// TransferPredicatedData moves the branch overlays of from onto to, as when a captured predicate
// temporary is re-bound to a fresh capture.
func (d *PredicatedData[V]) TransferPredicatedData(from, to *AnalysisEntity) {
	snaps, ok := d.predicated[from]
	if !ok {
		return
	}
	delete(d.predicated, from)
	if d.HasPredicatedData(to) {
		panic(fmt.Sprintf("dataflow: predicated data already tracked for %s", to))
	}
	d.predicated[to] = snaps
}

// Clone deep-copies the core data and every branch overlay.
func (d *PredicatedData[V]) Clone() *PredicatedData[V] {
	out := &PredicatedData[V]{Core: d.Core.Clone()}
	if len(d.predicated) > 0 {
		out.predicated = make(map[*AnalysisEntity]*branchSnapshots[V], len(d.predicated))
		for e, snaps := range d.predicated {
			out.predicated[e] = snaps.clone()
		}
	}
	return out
}

// MergeWith joins other into d. Core data merges pointwise. For an entity branched on in both,
// the overlays merge side by side, each entry falling back to the other side's ambient core value
// when its overlay does not mention the key. For an entity branched on in only one side, that
// side's overlays merge against the other side's core data: the other side never branched on the
// entity, so its effective branch value there is the ambient core value.
func (d *PredicatedData[V]) MergeWith(other *PredicatedData[V], domain AbstractValueDomain[V]) {
	var coreBefore *AnalysisData[V]
	if len(d.predicated) > 0 || len(other.predicated) > 0 {
		coreBefore = d.Core.Clone()
	}
	d.Core.MergeWith(other.Core, domain)
	if coreBefore == nil {
		return
	}

	merged := map[*AnalysisEntity]*branchSnapshots[V]{}
	for e, snaps := range d.predicated {
		if otherSnaps, ok := other.predicated[e]; ok {
			merged[e] = &branchSnapshots[V]{
				trueData:  mergeOverlays(snaps.trueData, coreBefore, otherSnaps.trueData, other.Core, domain),
				falseData: mergeOverlays(snaps.falseData, coreBefore, otherSnaps.falseData, other.Core, domain),
			}
		} else {
			merged[e] = &branchSnapshots[V]{
				trueData:  mergeOverlayWithCore(snaps.trueData, other.Core, domain),
				falseData: mergeOverlayWithCore(snaps.falseData, other.Core, domain),
			}
		}
	}
	for e, snaps := range other.predicated {
		if _, ok := d.predicated[e]; ok {
			continue
		}
		merged[e] = &branchSnapshots[V]{
			trueData:  mergeOverlayWithCore(snaps.trueData, coreBefore, domain),
			falseData: mergeOverlayWithCore(snaps.falseData, coreBefore, domain),
		}
	}
	if len(merged) == 0 {
		merged = nil
	}
	d.predicated = merged
}

// mergeOverlays joins two overlays of the same branch of the same entity. A branch infeasible on
// one side contributes nothing; its facts come entirely from the feasible side.
func mergeOverlays[V any](a *AnalysisData[V], aCore *AnalysisData[V],
	b *AnalysisData[V], bCore *AnalysisData[V], domain AbstractValueDomain[V]) *AnalysisData[V] {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	}
	out := NewAnalysisData[V]()
	def := domain.Default()
	join := func(k *AnalysisEntity, v V, otherOverlay, otherCore *AnalysisData[V]) V {
		ov, ok := otherOverlay.Get(k)
		if !ok {
			if ov, ok = otherCore.Get(k); !ok {
				ov = def
			}
		}
		return domain.Merge(v, ov)
	}
	a.ForEach(func(k *AnalysisEntity, v V) {
		out.Set(k, join(k, v, b, bCore))
	})
	b.ForEach(func(k *AnalysisEntity, v V) {
		if !out.Has(k) {
			out.Set(k, join(k, v, a, aCore))
		}
	})
	return out
}

// mergeOverlayWithCore joins an overlay against ambient core data from a side that never branched
// on the entity. A nil overlay comes back as an empty one: the branch is feasible through the
// other side even though this side proved it infeasible.
func mergeOverlayWithCore[V any](overlay, otherCore *AnalysisData[V],
	domain AbstractValueDomain[V]) *AnalysisData[V] {
	out := NewAnalysisData[V]()
	if overlay == nil {
		return out
	}
	def := domain.Default()
	overlay.ForEach(func(k *AnalysisEntity, v V) {
		ov, ok := otherCore.Get(k)
		if !ok {
			ov = def
		}
		out.Set(k, domain.Merge(v, ov))
	})
	return out
}

// CompareWith compares d as the old value against new. Branch overlays only shrink as predicates
// are consumed, so the overlay maps are compared for equality; a change in overlays with equal
// core data reports as an increase to keep the fixed-point loop re-processing.
func (d *PredicatedData[V]) CompareWith(new *PredicatedData[V], domain AbstractValueDomain[V]) int {
	if c := d.Core.CompareWith(new.Core, domain); c != 0 {
		return c
	}
	if !d.equalOverlays(new, domain) {
		return -1
	}
	return 0
}

func (d *PredicatedData[V]) equalOverlays(other *PredicatedData[V],
	domain AbstractValueDomain[V]) bool {
	if len(d.predicated) != len(other.predicated) {
		return false
	}
	for e, snaps := range d.predicated {
		otherSnaps, ok := other.predicated[e]
		if !ok {
			return false
		}
		if !equalOverlay(snaps.trueData, otherSnaps.trueData, domain) ||
			!equalOverlay(snaps.falseData, otherSnaps.falseData, domain) {
			return false
		}
	}
	return true
}

func equalOverlay[V any](a, b *AnalysisData[V], domain AbstractValueDomain[V]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.CompareWith(b, domain) == 0 && b.CompareWith(a, domain) == 0
}
