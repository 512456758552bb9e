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

// Package ssabridge lowers go/ssa functions into the operation and control-flow model the
// dataflow analyses consume. The lowering is deliberately lossy: every SSA shape without a
// counterpart in the operation model becomes an Unknown operation, which the analyses treat as
// top. Register values become local entities named after their SSA registers.
package ssabridge

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/ops"
)

// BuildGraph lowers fn into a finalized control-flow graph.
func BuildGraph(fn *ssa.Function) (*cfg.Graph, error) {
	if fn == nil || len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("ssabridge: function %v has no body", fn)
	}
	lw := &lowerer{
		fn:      fn,
		builder: cfg.NewBuilder(&ops.Symbol{Name: fn.String(), Kind: ops.SymbolMethod}),
		locals:  map[string]*ops.Symbol{},
		blocks:  map[*ssa.BasicBlock]*cfg.BasicBlock{},
	}
	return lw.lower()
}

type lowerer struct {
	fn      *ssa.Function
	builder *cfg.Builder
	locals  map[string]*ops.Symbol
	blocks  map[*ssa.BasicBlock]*cfg.BasicBlock
}

func (lw *lowerer) lower() (*cfg.Graph, error) {
	for _, sb := range lw.fn.Blocks {
		lw.blocks[sb] = lw.builder.NewBlock()
	}
	lw.builder.SetFallThrough(lw.builder.Entry(), lw.blocks[lw.fn.Blocks[0]])
	for _, sb := range lw.fn.Blocks {
		lw.lowerBlock(sb)
	}
	return lw.builder.Finish()
}

func (lw *lowerer) lowerBlock(sb *ssa.BasicBlock) {
	blk := lw.blocks[sb]
	for _, instr := range sb.Instrs {
		switch in := instr.(type) {
		case *ssa.DebugRef:
			// No dataflow content.
		case *ssa.If:
			lw.builder.SetConditional(blk, lw.valueOp(in.Cond),
				lw.blocks[sb.Succs[0]], lw.blocks[sb.Succs[1]])
		case *ssa.Jump:
			lw.builder.SetFallThrough(blk, lw.blocks[sb.Succs[0]])
		case *ssa.Return:
			if len(in.Results) == 1 {
				lw.builder.AddOperation(blk, ops.NewReturn(lw.valueOp(in.Results[0])))
			}
			lw.builder.SetReturn(blk)
		case *ssa.Panic:
			lw.builder.AddOperation(blk, ops.NewThrow(lw.valueOp(in.X)))
			lw.builder.SetThrow(blk)
		case *ssa.Store:
			lw.builder.AddOperation(blk,
				ops.NewSimpleAssignment(lw.addressOp(in.Addr), lw.valueOp(in.Val)))
		default:
			if v, ok := instr.(ssa.Value); ok {
				lw.lowerRegister(blk, v)
			} else {
				lw.builder.AddOperation(blk, ops.NewUnknown(ops.TypeInfo{}))
			}
		}
	}
	// SSA blocks always carry a terminator; a block left open here means the switch above missed
	// one, and wiring the first successor keeps the graph well formed.
	if blk.FallThrough == nil && blk.Conditional == nil && len(sb.Succs) > 0 {
		lw.builder.SetFallThrough(blk, lw.blocks[sb.Succs[0]])
	}
}

// lowerRegister emits "reg = rhs" for an SSA register definition.
func (lw *lowerer) lowerRegister(blk *cfg.BasicBlock, v ssa.Value) {
	rhs := lw.rhsOp(v)
	target := ops.NewLocalReference(lw.localFor(v))
	lw.builder.AddOperation(blk, ops.NewSimpleAssignment(target, rhs))
}

func (lw *lowerer) rhsOp(v ssa.Value) ops.Operation {
	t := lw.typeOf(v.Type())
	switch in := v.(type) {
	case *ssa.BinOp:
		return ops.NewBinaryOperation(t, binOpKind(in.Op), lw.valueOp(in.X), lw.valueOp(in.Y))
	case *ssa.UnOp:
		if in.Op == token.NOT {
			return ops.NewUnaryOperation(ops.UnaryNot, lw.valueOp(in.X))
		}
		return ops.NewUnknown(t)
	case *ssa.Call:
		return lw.callOp(in, t)
	case *ssa.Alloc, *ssa.MakeSlice, *ssa.MakeMap, *ssa.MakeChan, *ssa.MakeClosure:
		return ops.NewObjectCreation(t)
	case *ssa.FieldAddr:
		return ops.NewFieldReference(lw.valueOp(in.X), lw.fieldSymbol(in))
	case *ssa.ChangeType:
		return ops.NewConversion(t, lw.valueOp(in.X), true, false)
	case *ssa.Convert:
		return ops.NewConversion(t, lw.valueOp(in.X), true, false)
	case *ssa.ChangeInterface:
		return ops.NewConversion(t, lw.valueOp(in.X), true, false)
	case *ssa.MakeInterface:
		return ops.NewConversion(t, lw.valueOp(in.X), true, false)
	case *ssa.TypeAssert:
		return ops.NewConversion(t, lw.valueOp(in.X), false, false)
	case *ssa.Phi:
		// Joining happens at block merge; the register itself is conservatively unknown.
		return ops.NewUnknown(t)
	}
	return ops.NewUnknown(t)
}

func (lw *lowerer) callOp(call *ssa.Call, t ops.TypeInfo) ops.Operation {
	name := "<dynamic>"
	if callee := call.Call.StaticCallee(); callee != nil {
		name = callee.String()
	}
	method := &ops.Symbol{Name: name, Kind: ops.SymbolMethod}
	args := make([]ops.Operation, 0, len(call.Call.Args))
	for _, a := range call.Call.Args {
		args = append(args, lw.valueOp(a))
	}
	return ops.NewInvocation(t, method, nil, args...)
}

// valueOp turns an SSA value read into an operation.
func (lw *lowerer) valueOp(v ssa.Value) ops.Operation {
	t := lw.typeOf(v.Type())
	switch in := v.(type) {
	case *ssa.Const:
		if in.Value == nil {
			return ops.NewNullLiteral(t)
		}
		return ops.NewLiteral(t, constValue(in.Value))
	case *ssa.Parameter:
		return ops.NewParameterReference(lw.paramFor(in))
	case *ssa.Global:
		sym := &ops.Symbol{Name: in.Name(), Kind: ops.SymbolField,
			Container: in.Pkg.Pkg.Path(), Type: t}
		return ops.NewFieldReference(nil, sym)
	case *ssa.Function:
		return ops.NewUnknown(t)
	}
	return ops.NewLocalReference(lw.localFor(v))
}

// addressOp turns a store target into a designating operation.
func (lw *lowerer) addressOp(addr ssa.Value) ops.Operation {
	switch in := addr.(type) {
	case *ssa.FieldAddr:
		return ops.NewFieldReference(lw.valueOp(in.X), lw.fieldSymbol(in))
	case *ssa.Alloc:
		return ops.NewLocalReference(lw.localFor(in))
	case *ssa.Global:
		return lw.valueOp(in)
	}
	return ops.NewLocalReference(lw.localFor(addr))
}

func (lw *lowerer) localFor(v ssa.Value) *ops.Symbol {
	name := v.Name()
	if sym, ok := lw.locals[name]; ok {
		return sym
	}
	sym := &ops.Symbol{Name: name, Kind: ops.SymbolLocal,
		Container: lw.fn.Name(), Type: lw.typeOf(v.Type())}
	lw.locals[name] = sym
	return sym
}

func (lw *lowerer) paramFor(p *ssa.Parameter) *ops.Symbol {
	key := "arg:" + p.Name()
	if sym, ok := lw.locals[key]; ok {
		return sym
	}
	sym := &ops.Symbol{Name: p.Name(), Kind: ops.SymbolParameter,
		Container: lw.fn.Name(), Type: lw.typeOf(p.Type())}
	lw.locals[key] = sym
	return sym
}

func (lw *lowerer) fieldSymbol(fa *ssa.FieldAddr) *ops.Symbol {
	st := fa.X.Type().Underlying().(*types.Pointer).Elem().Underlying().(*types.Struct)
	f := st.Field(fa.Field)
	key := "field:" + st.String() + "." + f.Name()
	if sym, ok := lw.locals[key]; ok {
		return sym
	}
	sym := &ops.Symbol{Name: f.Name(), Kind: ops.SymbolField, Container: st.String(),
		Type: lw.typeOf(f.Type())}
	lw.locals[key] = sym
	return sym
}

func (lw *lowerer) typeOf(t types.Type) ops.TypeInfo {
	info := ops.TypeInfo{Name: t.String()}
	switch u := t.Underlying().(type) {
	case *types.Basic:
		info.IsBool = u.Info()&types.IsBoolean != 0
		info.IsString = u.Info()&types.IsString != 0
	case *types.Pointer, *types.Interface, *types.Slice, *types.Map, *types.Chan,
		*types.Signature:
		info.IsReference = true
	}
	return info
}

func binOpKind(op token.Token) ops.BinaryOperatorKind {
	switch op {
	case token.ADD:
		return ops.BinaryAdd
	case token.EQL:
		return ops.BinaryEquals
	case token.NEQ:
		return ops.BinaryNotEquals
	}
	return ops.BinaryOther
}

func constValue(v constant.Value) any {
	switch v.Kind() {
	case constant.Bool:
		return constant.BoolVal(v)
	case constant.String:
		return constant.StringVal(v)
	case constant.Int:
		if i, ok := constant.Int64Val(v); ok {
			return int(i)
		}
	case constant.Float:
		if f, ok := constant.Float64Val(v); ok {
			return f
		}
	}
	return v.ExactString()
}
