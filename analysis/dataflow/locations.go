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
)

// LocationKind discriminates the kinds of abstract memory locations.
type LocationKind int

const (
	// LocationNull is the null reference
	LocationNull LocationKind = iota

	// LocationNone marks values of non-reference type, which never point anywhere
	LocationNone

	// LocationAllocation is an allocation site, identified by its creating operation
	LocationAllocation
)

// An AbstractLocation is the denotation of what an entity may point to: the null singleton, the
// no-location singleton for non-reference values, or an allocation site. Locations are immutable
// and compared by pointer identity; allocation sites are interned per factory so the same creating
// operation always yields the same location.
type AbstractLocation struct {
	Kind LocationKind

	// Site is the creating operation of an allocation location, nil for the singletons.
	Site ops.Operation

	// SiteType is the static type allocated at the site.
	SiteType ops.TypeInfo

	id int
}

// NullLocation is the location of the null reference.
var NullLocation = &AbstractLocation{Kind: LocationNull, id: 0}

// NoLocation is the distinguished location of values that never point anywhere meaningful.
var NoLocation = &AbstractLocation{Kind: LocationNone, id: 1}

func (l *AbstractLocation) String() string {
	switch l.Kind {
	case LocationNull:
		return "null"
	case LocationNone:
		return "nowhere"
	default:
		return fmt.Sprintf("alloc#%d(%s)", l.id, l.SiteType.Name)
	}
}

// An AllocationSiteFactory interns allocation-site locations for one analysis run.
type AllocationSiteFactory struct {
	sites map[ops.Operation]*AbstractLocation
	next  int
}

// NewAllocationSiteFactory returns an empty factory. Ids start after the singleton locations.
func NewAllocationSiteFactory() *AllocationSiteFactory {
	return &AllocationSiteFactory{sites: map[ops.Operation]*AbstractLocation{}, next: 2}
}

// Site returns the location of the allocation performed by op, creating it on first use.
func (f *AllocationSiteFactory) Site(op ops.Operation, t ops.TypeInfo) *AbstractLocation {
	if loc, ok := f.sites[op]; ok {
		return loc
	}
	loc := &AbstractLocation{Kind: LocationAllocation, Site: op, SiteType: t, id: f.next}
	f.next++
	f.sites[op] = loc
	return loc
}

// A LocationSet is an immutable set of abstract locations. Mutating operations return a new set
// and may return a shared input when the result is equal to it.
type LocationSet struct {
	m map[*AbstractLocation]bool
}

var emptyLocationSet = &LocationSet{m: map[*AbstractLocation]bool{}}

// NewLocationSet returns the set of the given locations.
func NewLocationSet(locs ...*AbstractLocation) *LocationSet {
	if len(locs) == 0 {
		return emptyLocationSet
	}
	m := make(map[*AbstractLocation]bool, len(locs))
	for _, l := range locs {
		m[l] = true
	}
	return &LocationSet{m: m}
}

// Size returns the number of locations in the set.
func (s *LocationSet) Size() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Contains returns true when l is in the set.
func (s *LocationSet) Contains(l *AbstractLocation) bool {
	return s != nil && s.m[l]
}

// Union returns the union of the two sets.
func (s *LocationSet) Union(other *LocationSet) *LocationSet {
	if other.Size() == 0 || s == other {
		return s
	}
	if s.Size() == 0 {
		return other
	}
	if s.ContainsAll(other) {
		return s
	}
	m := make(map[*AbstractLocation]bool, len(s.m)+len(other.m))
	for l := range s.m {
		m[l] = true
	}
	for l := range other.m {
		m[l] = true
	}
	return &LocationSet{m: m}
}

// ContainsAll returns true when every location of other is in the set.
func (s *LocationSet) ContainsAll(other *LocationSet) bool {
	if other.Size() == 0 {
		return true
	}
	if s.Size() < other.Size() {
		return false
	}
	for l := range other.m {
		if !s.m[l] {
			return false
		}
	}
	return true
}

// Equal returns true when both sets hold the same locations.
func (s *LocationSet) Equal(other *LocationSet) bool {
	return s.Size() == other.Size() && s.ContainsAll(other)
}

// Slice returns the locations in deterministic order.
func (s *LocationSet) Slice() []*AbstractLocation {
	if s == nil {
		return nil
	}
	out := make([]*AbstractLocation, 0, len(s.m))
	for l := range s.m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *LocationSet) String() string {
	var parts []string
	for _, l := range s.Slice() {
		parts = append(parts, l.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
