package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Assembler: in-process bytecode builder
// ---------------------------------------------------------------------------

type openBlock struct {
	kind  Keyword
	begin int
	head  int
}

// Assembler builds a Block instruction by instruction, filling in the
// nesting metadata that the control-flow handlers rely on.
type Assembler struct {
	name   string
	ins    []Instruction
	open   []openBlock
	source int

	branchOwner int
	markBranch  bool
	err         error
}

// NewAssembler creates an assembler for a block called name.
func NewAssembler(name string) *Assembler {
	return &Assembler{name: name, source: -1}
}

// Len returns the number of instructions emitted so far.
func (a *Assembler) Len() int { return len(a.ins) }

// Line sets the source index recorded on subsequent instructions.
func (a *Assembler) Line(n int) *Assembler {
	a.source = n
	return a
}

func (a *Assembler) fail(format string, args ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("assembler %s: "+format, append([]any{a.name}, args...)...)
	}
}

func (a *Assembler) emit(h Header, args ...Argument) int {
	idx := len(a.ins)
	if a.source >= 0 {
		h.Source = a.source
	} else {
		h.Source = idx
	}
	if a.markBranch {
		h.Branch = true
		h.Nest = a.branchOwner
		a.markBranch = false
	}
	a.ins = append(a.ins, Instruction{Header: h, Args: args})
	return idx
}

// Command emits a command.
func (a *Assembler) Command(op Keyword, args ...Argument) *Assembler {
	a.emit(Header{Kind: RequestCommand, Op: op}, args...)
	return a
}

// VoidCommand emits a command whose result is discarded.
func (a *Assembler) VoidCommand(op Keyword, args ...Argument) *Assembler {
	a.emit(Header{Kind: RequestCommand, Op: op, VoidCall: true}, args...)
	return a
}

// Bind emits name = value.
func (a *Assembler) Bind(name string, value Argument) *Assembler {
	return a.VoidCommand(KwBind, IdentArg(name), value)
}

// BindLocal emits a bind that always creates name in the current layer.
func (a *Assembler) BindLocal(name string, value Argument) *Assembler {
	a.emit(Header{Kind: RequestCommand, Op: KwBind, VoidCall: true, Local: true}, IdentArg(name), value)
	return a
}

// Assign emits target = value for an existing binding or member.
func (a *Assembler) Assign(target, value Argument) *Assembler {
	return a.VoidCommand(KwBind, target, value)
}

// Op emits a binary operator; the result is pushed on the return stack.
func (a *Assembler) Op(op Keyword, lhs, rhs Argument) *Assembler {
	return a.Command(op, lhs, rhs)
}

// Call emits a call of the global or local function fn.
func (a *Assembler) Call(fn string, args ...Argument) *Assembler {
	a.emit(Header{Kind: RequestFunction, Func: fn}, args...)
	return a
}

// CallVoid emits a call whose result is discarded.
func (a *Assembler) CallVoid(fn string, args ...Argument) *Assembler {
	a.emit(Header{Kind: RequestFunction, Func: fn, VoidCall: true}, args...)
	return a
}

// Method emits a method call on receiver.
func (a *Assembler) Method(receiver Argument, fn string, args ...Argument) *Assembler {
	a.emit(Header{Kind: RequestFunction, Func: fn, Domain: receiver}, args...)
	return a
}

// MethodVoid emits a method call whose result is discarded.
func (a *Assembler) MethodVoid(receiver Argument, fn string, args ...Argument) *Assembler {
	a.emit(Header{Kind: RequestFunction, Func: fn, Domain: receiver, VoidCall: true}, args...)
	return a
}

// Return emits a return.
func (a *Assembler) Return(args ...Argument) *Assembler {
	return a.Command(KwReturn, args...)
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

func (a *Assembler) begin(kind Keyword, head int, args ...Argument) int {
	idx := a.emit(Header{Kind: RequestCommand, Op: kind}, args...)
	if head < 0 {
		head = idx
	}
	a.open = append(a.open, openBlock{kind: kind, begin: idx, head: head})
	return idx
}

func (a *Assembler) top(kinds ...Keyword) (openBlock, bool) {
	if len(a.open) == 0 {
		return openBlock{}, false
	}
	ob := a.open[len(a.open)-1]
	for _, k := range kinds {
		if ob.kind == k {
			return ob, true
		}
	}
	return openBlock{}, false
}

// If opens an if block testing cond.
func (a *Assembler) If(cond Argument) *Assembler {
	a.begin(KwIf, -1, cond)
	return a
}

// Elif adds a clause testing cond.
func (a *Assembler) Elif(cond Argument) *Assembler {
	return a.ElifWith(func(*Assembler) Argument { return cond })
}

// ElifWith adds a clause whose condition is computed by code emitted from
// build. The clause starts at the first instruction build emits.
func (a *Assembler) ElifWith(build func(*Assembler) Argument) *Assembler {
	ob, ok := a.top(KwIf)
	if !ok {
		a.fail("elif outside if")
		return a
	}
	a.branchOwner, a.markBranch = ob.begin, true
	cond := build(a)
	a.emit(Header{Kind: RequestCommand, Op: KwElif, Nest: ob.begin}, cond)
	return a
}

// Else adds the final clause of an if or case block.
func (a *Assembler) Else() *Assembler {
	ob, ok := a.top(KwIf, KwCase)
	if !ok {
		a.fail("else outside if/case")
		return a
	}
	a.branchOwner, a.markBranch = ob.begin, true
	a.emit(Header{Kind: RequestCommand, Op: KwElse, Nest: ob.begin})
	return a
}

// Case opens a case block over subject.
func (a *Assembler) Case(subject Argument) *Assembler {
	a.begin(KwCase, -1, subject)
	return a
}

// When adds a clause matching any of cands.
func (a *Assembler) When(cands ...Argument) *Assembler {
	ob, ok := a.top(KwCase)
	if !ok {
		a.fail("when outside case")
		return a
	}
	a.branchOwner, a.markBranch = ob.begin, true
	a.emit(Header{Kind: RequestCommand, Op: KwWhen, Nest: ob.begin}, cands...)
	return a
}

// While opens a loop testing cond.
func (a *Assembler) While(cond Argument) *Assembler {
	return a.WhileWith(func(*Assembler) Argument { return cond })
}

// WhileWith opens a loop whose condition is computed by code emitted from
// build; each iteration re-enters at the first of those instructions.
func (a *Assembler) WhileWith(build func(*Assembler) Argument) *Assembler {
	head := len(a.ins)
	cond := build(a)
	a.begin(KwWhile, head, cond)
	return a
}

// For opens a loop binding unit to each element of container.
func (a *Assembler) For(unit string, container Argument) *Assembler {
	a.begin(KwFor, -1, IdentArg(unit), container)
	return a
}

// Break leaves depth enclosing loops.
func (a *Assembler) Break(depth int) *Assembler {
	a.emit(Header{Kind: RequestCommand, Op: KwBreak, EscapeDepth: depth})
	return a
}

// Continue restarts the depth-th enclosing loop.
func (a *Assembler) Continue(depth int) *Assembler {
	a.emit(Header{Kind: RequestCommand, Op: KwContinue, EscapeDepth: depth})
	return a
}

// Struct opens a struct definition. super may be empty.
func (a *Assembler) Struct(id, super string) *Assembler {
	args := []Argument{IdentArg(id)}
	if super != "" {
		args = append(args, IdentArg(super))
	}
	a.begin(KwStruct, -1, args...)
	return a
}

// Module opens a module definition.
func (a *Assembler) Module(id string) *Assembler {
	a.begin(KwModule, -1, IdentArg(id))
	return a
}

// Include mixes module into the struct being defined.
func (a *Assembler) Include(module string) *Assembler {
	return a.VoidCommand(KwInclude, VarArg(module))
}

// Fn opens a function definition. A parameter written "name?" is
// optional, "name..." collects the remaining arguments.
func (a *Assembler) Fn(id string, params ...string) *Assembler {
	args := []Argument{IdentArg(id)}
	for _, p := range params {
		arg := IdentArg(p)
		switch {
		case strings.HasSuffix(p, "..."):
			arg = IdentArg(strings.TrimSuffix(p, "..."))
			arg.Variable = true
		case strings.HasSuffix(p, "?"):
			arg = IdentArg(strings.TrimSuffix(p, "?"))
			arg.Optional = true
		}
		args = append(args, arg)
	}
	a.begin(KwFn, -1, args...)
	return a
}

// End closes the innermost open block.
func (a *Assembler) End() *Assembler {
	if len(a.open) == 0 {
		a.fail("end without block")
		return a
	}
	ob := a.open[len(a.open)-1]
	a.open = a.open[:len(a.open)-1]
	idx := a.emit(Header{Kind: RequestCommand, Op: KwEnd, NestKind: ob.kind, Nest: ob.head})
	a.ins[ob.begin].Header.NestEnd = idx
	return a
}

// Build returns the assembled block.
func (a *Assembler) Build() (*Block, error) {
	if a.err != nil {
		return nil, a.err
	}
	if len(a.open) > 0 {
		return nil, fmt.Errorf("assembler %s: %d unterminated block(s)", a.name, len(a.open))
	}
	ins := make([]Instruction, len(a.ins))
	copy(ins, a.ins)
	return NewBlock(a.name, ins), nil
}

// MustBuild is Build for fixtures known to be well formed.
func (a *Assembler) MustBuild() *Block {
	b, err := a.Build()
	if err != nil {
		panic(err)
	}
	return b
}
