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

// PointsToKind classifies a points-to value.
type PointsToKind int

const (
	// PointsToUndefined marks a value for an entity not yet seen on this path.
	PointsToUndefined PointsToKind = iota
	// PointsToInvalid marks a value proven unreachable.
	PointsToInvalid
	// PointsToUnknown is the safe top: the value may point anywhere.
	PointsToUnknown
	// PointsToKnown carries a concrete location set.
	PointsToKnown
)

func (k PointsToKind) String() string {
	switch k {
	case PointsToUndefined:
		return "undefined"
	case PointsToInvalid:
		return "invalid"
	case PointsToUnknown:
		return "unknown"
	case PointsToKnown:
		return "known"
	}
	return fmt.Sprintf("PointsToKind(%d)", int(k))
}

// NullState is the nullness component of a points-to value.
type NullState int

const (
	NullStateUndefined NullState = iota
	NullStateInvalid
	NullStateNull
	NullStateNotNull
	NullStateMaybeNull
)

func (s NullState) String() string {
	switch s {
	case NullStateUndefined:
		return "undefined"
	case NullStateInvalid:
		return "invalid"
	case NullStateNull:
		return "null"
	case NullStateNotNull:
		return "notnull"
	case NullStateMaybeNull:
		return "maybenull"
	}
	return fmt.Sprintf("NullState(%d)", int(s))
}

// JoinNullStates joins two null states. Undefined and Invalid are placeholders, not facts, so
// they yield the other side. Null joined with NotNull is MaybeNull.
func JoinNullStates(a, b NullState) NullState {
	switch {
	case a == b:
		return a
	case a == NullStateUndefined || a == NullStateInvalid:
		return b
	case b == NullStateUndefined || b == NullStateInvalid:
		return a
	default:
		// Null/NotNull/MaybeNull, unequal.
		return NullStateMaybeNull
	}
}

// nullStateLeq reports whether a is at or below b in the join order.
func nullStateLeq(a, b NullState) bool {
	return a == b || JoinNullStates(a, b) == b
}

// A PointsToValue describes what a reference-typed entity or operation may point to. Values are
// immutable; mutating operations return new values.
//
// Invariants: a Null state carries exactly the null location; a Known kind carries a real null
// state (Null, NotNull or MaybeNull); the copy set never contains the owning entity.
type PointsToValue struct {
	kind         PointsToKind
	locations    *LocationSet
	nullState    NullState
	copyEntities *EntitySet
}

// Shared sentinel values.
var (
	UndefinedPointsTo = &PointsToValue{kind: PointsToUndefined,
		locations: NewLocationSet(), nullState: NullStateUndefined, copyEntities: emptyEntitySet}
	InvalidPointsTo = &PointsToValue{kind: PointsToInvalid,
		locations: NewLocationSet(), nullState: NullStateInvalid, copyEntities: emptyEntitySet}
	UnknownPointsTo = &PointsToValue{kind: PointsToUnknown,
		locations: NewLocationSet(), nullState: NullStateMaybeNull, copyEntities: emptyEntitySet}
	UnknownNotNullPointsTo = &PointsToValue{kind: PointsToUnknown,
		locations: NewLocationSet(), nullState: NullStateNotNull, copyEntities: emptyEntitySet}
	NullPointsTo = &PointsToValue{kind: PointsToKnown,
		locations: NewLocationSet(NullLocation), nullState: NullStateNull, copyEntities: emptyEntitySet}
	// NoLocationPointsTo stands in for values of non-reference types.
	NoLocationPointsTo = &PointsToValue{kind: PointsToKnown,
		locations: NewLocationSet(NoLocation), nullState: NullStateNotNull, copyEntities: emptyEntitySet}
)

// NewKnownPointsTo returns a Known value over the given non-empty location set.
func NewKnownPointsTo(locations *LocationSet, nullState NullState) *PointsToValue {
	return &PointsToValue{kind: PointsToKnown, locations: locations, nullState: nullState,
		copyEntities: emptyEntitySet}
}

func (v *PointsToValue) Kind() PointsToKind       { return v.kind }
func (v *PointsToValue) Locations() *LocationSet  { return v.locations }
func (v *PointsToValue) NullState() NullState     { return v.nullState }
func (v *PointsToValue) CopyEntities() *EntitySet { return v.copyEntities }

// IsNull reports whether the value is proven null.
func (v *PointsToValue) IsNull() bool { return v.nullState == NullStateNull }

// WithNullState returns the value with its null state replaced. Strengthening to Null also
// collapses the location set to the null location to keep the Null invariant.
func (v *PointsToValue) WithNullState(s NullState) *PointsToValue {
	if v.nullState == s {
		return v
	}
	out := *v
	out.nullState = s
	if s == NullStateNull {
		out.kind = PointsToKnown
		out.locations = NewLocationSet(NullLocation)
	}
	return &out
}

// WithCopyEntities returns the value with its copy set replaced.
func (v *PointsToValue) WithCopyEntities(s *EntitySet) *PointsToValue {
	if v.copyEntities.Equal(s) {
		return v
	}
	out := *v
	out.copyEntities = s
	return &out
}

// Merge joins two values. maxLocations bounds the merged location set; past the bound the result
// collapses to Unknown with the joined null state.
func (v *PointsToValue) Merge(other *PointsToValue, maxLocations int) *PointsToValue {
	if v == other {
		return v
	}
	nullState := JoinNullStates(v.nullState, other.nullState)
	copies := v.copyEntities.Intersect(other.copyEntities)

	kind := v.kind
	if other.kind > kind {
		kind = other.kind
	}
	if v.kind == PointsToUndefined || v.kind == PointsToUnknown ||
		other.kind == PointsToUndefined || other.kind == PointsToUnknown {
		kind = PointsToUnknown
	}

	if kind != PointsToKnown {
		out := &PointsToValue{kind: kind, locations: NewLocationSet(), nullState: nullState,
			copyEntities: copies}
		return out.canonical()
	}

	locations := v.locations.Union(other.locations)
	if maxLocations > 0 && locations.Size() > maxLocations {
		return &PointsToValue{kind: PointsToUnknown, locations: NewLocationSet(),
			nullState: nullState, copyEntities: copies}
	}
	if nullState == NullStateNull {
		locations = NewLocationSet(NullLocation)
	}
	out := &PointsToValue{kind: PointsToKnown, locations: locations, nullState: nullState,
		copyEntities: copies}
	return out.canonical()
}

// canonical folds values equal to a shared sentinel back onto it, so pointer comparison catches
// the common cases.
func (v *PointsToValue) canonical() *PointsToValue {
	if v.copyEntities.Size() != 0 {
		return v
	}
	for _, s := range []*PointsToValue{UndefinedPointsTo, InvalidPointsTo, UnknownPointsTo,
		UnknownNotNullPointsTo, NullPointsTo, NoLocationPointsTo} {
		if v.Equal(s) {
			return s
		}
	}
	return v
}

// Equal reports structural equality.
func (v *PointsToValue) Equal(other *PointsToValue) bool {
	if v == other {
		return true
	}
	return v.kind == other.kind && v.nullState == other.nullState &&
		v.locations.Equal(other.locations) && v.copyEntities.Equal(other.copyEntities)
}

// leq reports whether v is at or below other in the join order.
func (v *PointsToValue) leq(other *PointsToValue) bool {
	if v == other {
		return true
	}
	if other.kind == PointsToUnknown {
		return nullStateLeq(v.nullState, other.nullState) &&
			other.copyEntities.Size() <= v.copyEntities.Size() &&
			v.copyEntities.ContainsAll(other.copyEntities)
	}
	if v.kind == PointsToUndefined || v.kind == PointsToInvalid {
		return nullStateLeq(v.nullState, other.nullState)
	}
	if v.kind != other.kind {
		return false
	}
	return other.locations.ContainsAll(v.locations) &&
		nullStateLeq(v.nullState, other.nullState) &&
		v.copyEntities.ContainsAll(other.copyEntities)
}

// PointsToDomain is the AbstractValueDomain of points-to values.
type PointsToDomain struct {
	// MaxLocations bounds location sets before collapsing to Unknown. Zero means unbounded.
	MaxLocations int
}

var _ AbstractValueDomain[*PointsToValue] = PointsToDomain{}

func (PointsToDomain) Bottom() *PointsToValue { return UndefinedPointsTo }

// Default is the value of an entity no path has tracked: it may point anywhere and may be null.
func (PointsToDomain) Default() *PointsToValue { return UnknownPointsTo }

func (d PointsToDomain) Merge(a, b *PointsToValue) *PointsToValue {
	return a.Merge(b, d.MaxLocations)
}

// Compare returns 0 when equal, a negative value when old is strictly below new, and a positive
// value otherwise. Incomparable pairs report positive so the engine can flag the non-monotone
// update.
func (PointsToDomain) Compare(old, new *PointsToValue) int {
	switch {
	case old.Equal(new):
		return 0
	case old.leq(new):
		return -1
	default:
		return 1
	}
}

func (v *PointsToValue) String() string {
	switch v.kind {
	case PointsToKnown:
		return fmt.Sprintf("known%s:%s", v.locations.String(), v.nullState)
	default:
		return fmt.Sprintf("%s:%s", v.kind, v.nullState)
	}
}
