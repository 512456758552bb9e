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

// Package ops defines the operation model consumed by the dataflow analyses: a closed set of
// operation kinds with one struct per kind. Transfer functions dispatch with an exhaustive type
// switch; any operation shape a frontend cannot express is lowered to *Unknown, which every
// analysis treats conservatively.
package ops

import "fmt"

// OperationKind identifies the variant of an Operation.
type OperationKind int

const (
	KindInvalid OperationKind = iota
	KindUnknown
	KindLiteral
	KindParameterReference
	KindLocalReference
	KindFieldReference
	KindInstanceReference
	KindFlowCapture
	KindFlowCaptureReference
	KindSimpleAssignment
	KindBinaryOperation
	KindUnaryOperation
	KindInvocation
	KindObjectCreation
	KindConversion
	KindCoalesce
	KindIsNull
	KindNameOf
	KindReturn
	KindThrow
)

var kindNames = map[OperationKind]string{
	KindInvalid:              "invalid",
	KindUnknown:              "unknown",
	KindLiteral:              "literal",
	KindParameterReference:   "parameterReference",
	KindLocalReference:       "localReference",
	KindFieldReference:       "fieldReference",
	KindInstanceReference:    "instanceReference",
	KindFlowCapture:          "flowCapture",
	KindFlowCaptureReference: "flowCaptureReference",
	KindSimpleAssignment:     "simpleAssignment",
	KindBinaryOperation:      "binaryOperation",
	KindUnaryOperation:       "unaryOperation",
	KindInvocation:           "invocation",
	KindObjectCreation:       "objectCreation",
	KindConversion:           "conversion",
	KindCoalesce:             "coalesce",
	KindIsNull:               "isNull",
	KindNameOf:               "nameOf",
	KindReturn:               "return",
	KindThrow:                "throw",
}

func (k OperationKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("operationKind(%d)", int(k))
}

// Operation is the interface implemented by every operation variant. Operations are immutable once
// a control-flow graph has been finalized; they are compared by pointer identity, so the same
// Operation value appearing in two blocks denotes the same program point.
type Operation interface {
	Kind() OperationKind
	Type() TypeInfo
}

// CaptureID identifies a flow capture (an expression temporary introduced by the frontend when an
// expression's value crosses a block boundary, e.g. the condition of a branch).
type CaptureID int

// BinaryOperatorKind is the operator of a BinaryOperation.
type BinaryOperatorKind int

const (
	BinaryAdd BinaryOperatorKind = iota
	BinaryEquals
	BinaryNotEquals
	BinaryOther
)

func (k BinaryOperatorKind) String() string {
	switch k {
	case BinaryAdd:
		return "+"
	case BinaryEquals:
		return "=="
	case BinaryNotEquals:
		return "!="
	default:
		return "<op>"
	}
}

// UnaryOperatorKind is the operator of a UnaryOperation.
type UnaryOperatorKind int

const (
	UnaryNot UnaryOperatorKind = iota
	UnaryOther
)

// WellKnownMethod tags invocations of the small allowlist of side-effect-free, content-preserving
// methods the value-content analysis understands. Everything else is MethodNone and treated as
// potentially content-destroying.
type WellKnownMethod int

const (
	MethodNone WellKnownMethod = iota
	MethodStringConcat
	MethodStringInterpolate
	MethodClone
)

// WellKnownField tags field references with known constant content, such as the empty-string
// singleton field.
type WellKnownField int

const (
	FieldNone WellKnownField = iota
	FieldStringEmpty
)

type operation struct {
	typ TypeInfo
}

func (o operation) Type() TypeInfo { return o.typ }

// Literal is a compile-time constant. A nil literal of reference type has IsNull set and Value nil.
type Literal struct {
	operation
	Value  any
	IsNull bool
}

func (*Literal) Kind() OperationKind { return KindLiteral }

// ParameterReference reads or designates a parameter.
type ParameterReference struct {
	operation
	Parameter *Symbol
}

func (*ParameterReference) Kind() OperationKind { return KindParameterReference }

// LocalReference reads or designates a local variable.
type LocalReference struct {
	operation
	Local *Symbol
}

func (*LocalReference) Kind() OperationKind { return KindLocalReference }

// FieldReference reads or designates a field of an instance. Instance is nil for static fields.
type FieldReference struct {
	operation
	Instance  Operation
	Field     *Symbol
	WellKnown WellKnownField
}

func (*FieldReference) Kind() OperationKind { return KindFieldReference }

// InstanceReference designates the receiver of the analyzed procedure.
type InstanceReference struct {
	operation
}

func (*InstanceReference) Kind() OperationKind { return KindInstanceReference }

// FlowCapture binds the value of Captured to the capture temporary ID. The frontend introduces
// captures when an expression value flows across a block boundary.
type FlowCapture struct {
	operation
	ID       CaptureID
	Captured Operation
}

func (*FlowCapture) Kind() OperationKind { return KindFlowCapture }

// FlowCaptureReference reads a previously captured temporary.
type FlowCaptureReference struct {
	operation
	ID CaptureID
}

func (*FlowCaptureReference) Kind() OperationKind { return KindFlowCaptureReference }

// SimpleAssignment writes the value of Value into the location designated by Target.
type SimpleAssignment struct {
	operation
	Target Operation
	Value  Operation
}

func (*SimpleAssignment) Kind() OperationKind { return KindSimpleAssignment }

// BinaryOperation combines two operands. Equality and inequality operators participate in
// predicate analysis; the rest only propagate content.
type BinaryOperation struct {
	operation
	Operator BinaryOperatorKind
	Left     Operation
	Right    Operation
}

func (*BinaryOperation) Kind() OperationKind { return KindBinaryOperation }

// UnaryOperation applies a unary operator. Logical negation swaps the branches of predicate
// analysis.
type UnaryOperation struct {
	operation
	Operator UnaryOperatorKind
	Operand  Operation
}

func (*UnaryOperation) Kind() OperationKind { return KindUnaryOperation }

// Invocation calls Method on Instance (nil for static calls) with the given arguments.
type Invocation struct {
	operation
	Method    *Symbol
	Instance  Operation
	Arguments []Operation
	WellKnown WellKnownMethod
}

func (*Invocation) Kind() OperationKind { return KindInvocation }

// ObjectCreation allocates a new object. The operation itself is the allocation site identity used
// by the points-to analysis.
type ObjectCreation struct {
	operation
	Arguments []Operation
}

func (*ObjectCreation) Kind() OperationKind { return KindObjectCreation }

// Conversion converts Operand to the operation's type. The frontend states whether the conversion
// provably always succeeds or always fails; when neither is known, a non-null operand may become
// null at runtime.
type Conversion struct {
	operation
	Operand       Operation
	AlwaysSucceed bool
	AlwaysFail    bool
}

func (*Conversion) Kind() OperationKind { return KindConversion }

// Coalesce evaluates Value and, when it is null, WhenNull.
type Coalesce struct {
	operation
	Value    Operation
	WhenNull Operation
}

func (*Coalesce) Kind() OperationKind { return KindCoalesce }

// IsNull tests its operand against null. It is the canonical predicate shape the frontends lower
// implicit null checks to.
type IsNull struct {
	operation
	Operand Operation
}

func (*IsNull) Kind() OperationKind { return KindIsNull }

// NameOf evaluates to the source name of the referenced symbol, as a string literal would.
type NameOf struct {
	operation
	Referenced *Symbol
}

func (*NameOf) Kind() OperationKind { return KindNameOf }

// Return leaves the procedure, optionally with a value.
type Return struct {
	operation
	Returned Operation
}

func (*Return) Kind() OperationKind { return KindReturn }

// Throw raises an exception carrying Thrown.
type Throw struct {
	operation
	Thrown Operation
}

func (*Throw) Kind() OperationKind { return KindThrow }

// Unknown stands for any operation shape the frontend could not express. Analyses must treat its
// value as top.
type Unknown struct {
	operation
}

func (*Unknown) Kind() OperationKind { return KindUnknown }

// Invalid marks an operation in code that did not compile. Analyses skip it.
type Invalid struct {
	operation
}

func (*Invalid) Kind() OperationKind { return KindInvalid }
