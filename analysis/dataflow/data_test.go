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
	"testing"

	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

func TestEntityFactoryInterns(t *testing.T) {
	f := NewEntityFactory()
	sym := &ops.Symbol{Name: "x", Kind: ops.SymbolLocal}
	if f.ForLocal(sym) != f.ForLocal(sym) {
		t.Error("same symbol must intern to the same entity")
	}
	if f.ForCapture(1, ops.BoolType) != f.ForCapture(1, ops.BoolType) {
		t.Error("same capture id must intern to the same entity")
	}
	if f.ForLocal(sym) == f.ForLocal(&ops.Symbol{Name: "x", Kind: ops.SymbolLocal}) {
		t.Error("distinct symbols must yield distinct entities")
	}
}

// Symbols compare by pointer identity: a shadowing local or a same-named parameter from another
// scope must not conflate with an existing entity just because the names collide.
func TestEntityFactoryKeysOnSymbolIdentity(t *testing.T) {
	f := NewEntityFactory()
	outer := &ops.Symbol{Name: "x", Kind: ops.SymbolLocal}
	shadow := &ops.Symbol{Name: "x", Kind: ops.SymbolLocal}
	if f.ForLocal(outer) == f.ForLocal(shadow) {
		t.Error("shadowing local must get its own entity")
	}

	p1 := &ops.Symbol{Name: "arg", Kind: ops.SymbolParameter}
	p2 := &ops.Symbol{Name: "arg", Kind: ops.SymbolParameter}
	if f.ForParameter(p1) == f.ForParameter(p2) {
		t.Error("same-named parameters must get distinct entities")
	}

	parent := localEntity(f, "obj")
	f1 := &ops.Symbol{Name: "F", Kind: ops.SymbolField}
	f2 := &ops.Symbol{Name: "F", Kind: ops.SymbolField}
	if f.ForFieldOfParent(parent, f1) == f.ForFieldOfParent(parent, f2) {
		t.Error("same-named fields from different symbols must get distinct entities")
	}
	if f.ForStaticField(f1) == f.ForStaticField(f2) {
		t.Error("same-named static fields from different symbols must get distinct entities")
	}
}

func TestEntityFactoryFieldNeedsKnownInstance(t *testing.T) {
	f := NewEntityFactory()
	parent := localEntity(f, "obj")
	field := &ops.Symbol{Name: "F", Kind: ops.SymbolField}

	if _, ok := f.ForField(parent, nil, field); ok {
		t.Error("nil instance location must not produce a field entity")
	}
	if _, ok := f.ForField(parent, UnknownPointsTo, field); ok {
		t.Error("unknown instance location must not produce a field entity")
	}

	sites := NewAllocationSiteFactory()
	loc := NewKnownPointsTo(NewLocationSet(allocSite(t, sites, "A")), NullStateNotNull)
	fe1, ok := f.ForField(parent, loc, field)
	if !ok {
		t.Fatal("known instance location must produce a field entity")
	}
	fe2, _ := f.ForField(parent, loc, field)
	if fe1 != fe2 {
		t.Error("same parent, location and field must intern to the same entity")
	}
}

func TestAnalysisDataMergeWith(t *testing.T) {
	f := NewEntityFactory()
	x, y, z := localEntity(f, "x"), localEntity(f, "y"), localEntity(f, "z")
	dom := intValues{}

	a := overlay(map[*AnalysisEntity]int{x: 3, y: 1})
	b := overlay(map[*AnalysisEntity]int{y: 4, z: 2})
	a.MergeWith(b, dom)

	want := map[*AnalysisEntity]int{x: 3, y: 4, z: 2}
	if a.Size() != len(want) {
		t.Fatalf("size = %d, want %d", a.Size(), len(want))
	}
	for e, wv := range want {
		if got, ok := a.Get(e); !ok || got != wv {
			t.Errorf("%v = %d (present %v), want %d", e, got, ok, wv)
		}
	}
}

// An entity tracked on only one side joins against the domain's default, not bottom: the other
// path may have given it any value.
func TestAnalysisDataMergeWithUsesDefaultForAbsent(t *testing.T) {
	f := NewEntityFactory()
	x, y, z := localEntity(f, "x"), localEntity(f, "y"), localEntity(f, "z")
	dom := intValues{def: 9}

	a := overlay(map[*AnalysisEntity]int{x: 3, y: 1})
	b := overlay(map[*AnalysisEntity]int{y: 4, z: 2})
	a.MergeWith(b, dom)

	want := map[*AnalysisEntity]int{x: 9, y: 4, z: 9}
	for e, wv := range want {
		if got, ok := a.Get(e); !ok || got != wv {
			t.Errorf("%v = %d (present %v), want %d", e, got, ok, wv)
		}
	}
}

func TestAnalysisDataCompareWith(t *testing.T) {
	f := NewEntityFactory()
	x, y := localEntity(f, "x"), localEntity(f, "y")
	dom := intValues{}

	tests := []struct {
		name     string
		old, new map[*AnalysisEntity]int
		want     int
	}{
		{"equal", map[*AnalysisEntity]int{x: 1}, map[*AnalysisEntity]int{x: 1}, 0},
		{"value grew", map[*AnalysisEntity]int{x: 1}, map[*AnalysisEntity]int{x: 2}, -1},
		{"entity added", map[*AnalysisEntity]int{x: 1}, map[*AnalysisEntity]int{x: 1, y: 1}, -1},
		{"value shrank", map[*AnalysisEntity]int{x: 2}, map[*AnalysisEntity]int{x: 1}, 1},
		{"entity dropped", map[*AnalysisEntity]int{x: 1, y: 1}, map[*AnalysisEntity]int{x: 1}, 1},
		{"mixed directions", map[*AnalysisEntity]int{x: 1, y: 2}, map[*AnalysisEntity]int{x: 2, y: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overlay(tt.old).CompareWith(overlay(tt.new), dom); got != tt.want {
				t.Errorf("compare = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAnalysisDataCloneIsIndependent(t *testing.T) {
	f := NewEntityFactory()
	x := localEntity(f, "x")
	orig := overlay(map[*AnalysisEntity]int{x: 1})
	cl := orig.Clone()
	cl.Set(x, 9)
	if got, _ := orig.Get(x); got != 1 {
		t.Errorf("original mutated through clone: x = %d, want 1", got)
	}
}

func TestEntitySetOperations(t *testing.T) {
	f := NewEntityFactory()
	a, b, c := localEntity(f, "a"), localEntity(f, "b"), localEntity(f, "c")

	s := NewEntitySet(a, b)
	if !s.Contains(a) || !s.Contains(b) || s.Contains(c) {
		t.Errorf("membership wrong in %v", s)
	}
	if got := s.With(c); got.Size() != 3 || s.Size() != 2 {
		t.Error("With must not mutate the receiver")
	}
	if got := s.Without(a); got.Contains(a) || got.Size() != 1 {
		t.Errorf("Without(a) = %v", got)
	}
	if got := s.Intersect(NewEntitySet(b, c)); got.Size() != 1 || !got.Contains(b) {
		t.Errorf("intersect = %v, want {b}", got)
	}
	if got := s.Union(NewEntitySet(c)); got.Size() != 3 {
		t.Errorf("union = %v, want 3 members", got)
	}
	if !s.Equal(NewEntitySet(b, a)) {
		t.Error("sets with the same members must be equal")
	}
}
