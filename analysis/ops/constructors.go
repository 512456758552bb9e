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

// Constructors for the operation variants. Frontends must build operations through these so every
// operation carries its static type.

// NewLiteral returns a constant of the given type.
func NewLiteral(t TypeInfo, value any) *Literal {
	return &Literal{operation: operation{typ: t}, Value: value}
}

// NewNullLiteral returns the null constant of a reference type.
func NewNullLiteral(t TypeInfo) *Literal {
	return &Literal{operation: operation{typ: t}, IsNull: true}
}

// NewParameterReference returns a reference to the parameter symbol.
func NewParameterReference(p *Symbol) *ParameterReference {
	return &ParameterReference{operation: operation{typ: p.Type}, Parameter: p}
}

// NewLocalReference returns a reference to the local symbol.
func NewLocalReference(l *Symbol) *LocalReference {
	return &LocalReference{operation: operation{typ: l.Type}, Local: l}
}

// NewFieldReference returns a reference to field on instance. Instance may be nil for static fields.
func NewFieldReference(instance Operation, field *Symbol) *FieldReference {
	return &FieldReference{operation: operation{typ: field.Type}, Instance: instance, Field: field}
}

// NewWellKnownFieldReference returns a static field reference carrying a well-known content tag.
func NewWellKnownFieldReference(field *Symbol, wk WellKnownField) *FieldReference {
	return &FieldReference{operation: operation{typ: field.Type}, Field: field, WellKnown: wk}
}

// NewInstanceReference returns a reference to the receiver of type t.
func NewInstanceReference(t TypeInfo) *InstanceReference {
	return &InstanceReference{operation: operation{typ: t}}
}

// NewFlowCapture captures the value of captured under id.
func NewFlowCapture(id CaptureID, captured Operation) *FlowCapture {
	return &FlowCapture{operation: operation{typ: captured.Type()}, ID: id, Captured: captured}
}

// NewFlowCaptureReference reads the capture id with static type t.
func NewFlowCaptureReference(id CaptureID, t TypeInfo) *FlowCaptureReference {
	return &FlowCaptureReference{operation: operation{typ: t}, ID: id}
}

// NewSimpleAssignment assigns value to target. The assignment's own value is the assigned value.
func NewSimpleAssignment(target, value Operation) *SimpleAssignment {
	return &SimpleAssignment{operation: operation{typ: target.Type()}, Target: target, Value: value}
}

// NewBinaryOperation combines left and right with the operator. Equality operators produce booleans
// regardless of t.
func NewBinaryOperation(t TypeInfo, operator BinaryOperatorKind, left, right Operation) *BinaryOperation {
	if operator == BinaryEquals || operator == BinaryNotEquals {
		t = BoolType
	}
	return &BinaryOperation{operation: operation{typ: t}, Operator: operator, Left: left, Right: right}
}

// NewUnaryOperation applies operator to operand.
func NewUnaryOperation(operator UnaryOperatorKind, operand Operation) *UnaryOperation {
	return &UnaryOperation{operation: operation{typ: operand.Type()}, Operator: operator, Operand: operand}
}

// NewInvocation calls method with the given receiver and arguments. t is the result type.
func NewInvocation(t TypeInfo, method *Symbol, instance Operation, args ...Operation) *Invocation {
	return &Invocation{operation: operation{typ: t}, Method: method, Instance: instance, Arguments: args}
}

// NewWellKnownInvocation calls a method on the content-preserving allowlist.
func NewWellKnownInvocation(t TypeInfo, method *Symbol, wk WellKnownMethod, instance Operation,
	args ...Operation) *Invocation {
	return &Invocation{operation: operation{typ: t}, Method: method, Instance: instance, Arguments: args,
		WellKnown: wk}
}

// NewObjectCreation allocates an object of type t. The returned operation is the allocation site.
func NewObjectCreation(t TypeInfo, args ...Operation) *ObjectCreation {
	return &ObjectCreation{operation: operation{typ: t}, Arguments: args}
}

// NewConversion converts operand to type t.
func NewConversion(t TypeInfo, operand Operation, alwaysSucceed, alwaysFail bool) *Conversion {
	return &Conversion{operation: operation{typ: t}, Operand: operand,
		AlwaysSucceed: alwaysSucceed, AlwaysFail: alwaysFail}
}

// NewCoalesce evaluates value and falls back to whenNull when value is null.
func NewCoalesce(value, whenNull Operation) *Coalesce {
	return &Coalesce{operation: operation{typ: value.Type()}, Value: value, WhenNull: whenNull}
}

// NewIsNull tests operand against null.
func NewIsNull(operand Operation) *IsNull {
	return &IsNull{operation: operation{typ: BoolType}, Operand: operand}
}

// NewNameOf evaluates to the name of sym.
func NewNameOf(sym *Symbol) *NameOf {
	return &NameOf{operation: operation{typ: StringType}, Referenced: sym}
}

// NewReturn leaves the procedure with an optional value (nil for bare returns).
func NewReturn(returned Operation) *Return {
	t := TypeInfo{}
	if returned != nil {
		t = returned.Type()
	}
	return &Return{operation: operation{typ: t}, Returned: returned}
}

// NewThrow raises thrown.
func NewThrow(thrown Operation) *Throw {
	t := TypeInfo{}
	if thrown != nil {
		t = thrown.Type()
	}
	return &Throw{operation: operation{typ: t}, Thrown: thrown}
}

// NewUnknown returns the conservative stand-in operation with static type t.
func NewUnknown(t TypeInfo) *Unknown {
	return &Unknown{operation: operation{typ: t}}
}

// NewInvalid marks an operation in non-compiling code.
func NewInvalid() *Invalid {
	return &Invalid{}
}
