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

package ops

import "fmt"

// SymbolKind discriminates the kinds of program symbols an operation can reference.
type SymbolKind int

const (
	// SymbolLocal is a local variable of the analyzed procedure
	SymbolLocal SymbolKind = iota

	// SymbolParameter is a parameter of the analyzed procedure
	SymbolParameter

	// SymbolField is a field or property of some containing type
	SymbolField

	// SymbolMethod is a callable procedure
	SymbolMethod

	// SymbolType names a type, e.g. the receiver of a static member access
	SymbolType
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolLocal:
		return "local"
	case SymbolParameter:
		return "parameter"
	case SymbolField:
		return "field"
	case SymbolMethod:
		return "method"
	case SymbolType:
		return "type"
	default:
		return fmt.Sprintf("symbolkind(%d)", int(k))
	}
}

// TypeInfo is the static type information the analyses need about a value: an identifying name,
// whether the type is a reference (nillable) type, and whether it is the boolean type.
// The engine never resolves types itself; the frontend that builds the operations fills these in.
type TypeInfo struct {
	Name        string
	IsReference bool
	IsBool      bool
	IsString    bool
}

// BoolType is the TypeInfo used for boolean-valued operations.
var BoolType = TypeInfo{Name: "bool", IsBool: true}

// StringType is the TypeInfo for string values. Strings are reference-like for content tracking but
// never nil in this model.
var StringType = TypeInfo{Name: "string", IsString: true}

// A Symbol identifies a storage location or callable in the analyzed procedure's scope. Symbols are
// compared by pointer identity: the frontend must create exactly one Symbol per program symbol.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Type      TypeInfo
	Container string // name of the containing type or procedure, for diagnostics only
}

func (s *Symbol) String() string {
	if s == nil {
		return "<nil symbol>"
	}
	return fmt.Sprintf("%s %s", s.Kind, s.Name)
}
