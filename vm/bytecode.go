package vm

import (
	"sort"
	"strconv"
)

// ---------------------------------------------------------------------------
// Keyword definitions
// ---------------------------------------------------------------------------

// Keyword identifies a command, block keyword or operator.
type Keyword uint16

// Commands
const (
	KwNop Keyword = iota
	KwBind
	KwDelivering
	KwSwap
	KwDestroy
	KwHash
	KwTypeID
	KwMethods
	KwExist
	KwNullObj
	KwConvert
	KwReturn
	KwAssert
	KwHandle
	KwWait
	KwLeave
	KwDomainAssert
	KwExpList
	KwInitArray
	KwUsing
	KwUsingTable
	KwApplyLayout
	KwOffensiveMode
	KwTime
	KwVersion
	KwCodeName
	KwInclude
	KwSuper
)

// Block keywords
const (
	KwIf Keyword = iota + 0x40
	KwElif
	KwElse
	KwWhile
	KwFor
	KwCase
	KwWhen
	KwEnd
	KwContinue
	KwBreak
	KwStruct
	KwModule
	KwFn
)

// Operators
const (
	KwAdd Keyword = iota + 0x80
	KwSub
	KwMul
	KwDiv
	KwEquals
	KwNotEqual
	KwLess
	KwLessOrEqual
	KwGreater
	KwGreaterOrEqual
	KwAnd
	KwOr
	KwNot
)

var keywordNames = map[Keyword]string{
	KwNop:            "nop",
	KwBind:           "bind",
	KwDelivering:     "delivering",
	KwSwap:           "swap",
	KwDestroy:        "destroy",
	KwHash:           "hash",
	KwTypeID:         "typeid",
	KwMethods:        "methods",
	KwExist:          "exist",
	KwNullObj:        "null_obj",
	KwConvert:        "convert",
	KwReturn:         "return",
	KwAssert:         "assert",
	KwHandle:         "handle",
	KwWait:           "wait",
	KwLeave:          "leave",
	KwDomainAssert:   "domain_assert",
	KwExpList:        "explist",
	KwInitArray:      "init_array",
	KwUsing:          "using",
	KwUsingTable:     "using_table",
	KwApplyLayout:    "apply_layout",
	KwOffensiveMode:  "offensive_mode",
	KwTime:           "time",
	KwVersion:        "version",
	KwCodeName:       "codename",
	KwInclude:        "include",
	KwSuper:          "super",
	KwIf:             "if",
	KwElif:           "elif",
	KwElse:           "else",
	KwWhile:          "while",
	KwFor:            "for",
	KwCase:           "case",
	KwWhen:           "when",
	KwEnd:            "end",
	KwContinue:       "continue",
	KwBreak:          "break",
	KwStruct:         "struct",
	KwModule:         "module",
	KwFn:             "fn",
	KwAdd:            "+",
	KwSub:            "-",
	KwMul:            "*",
	KwDiv:            "/",
	KwEquals:         "==",
	KwNotEqual:       "!=",
	KwLess:           "<",
	KwLessOrEqual:    "<=",
	KwGreater:        ">",
	KwGreaterOrEqual: ">=",
	KwAnd:            "and",
	KwOr:             "or",
	KwNot:            "not",
}

func (k Keyword) String() string {
	if name, ok := keywordNames[k]; ok {
		return name
	}
	return "keyword(" + strconv.Itoa(int(k)) + ")"
}

func (k Keyword) isOperator() bool { return k >= KwAdd && k <= KwNot }

func (k Keyword) isLoop() bool { return k == KwWhile || k == KwFor }

// ---------------------------------------------------------------------------
// Arguments
// ---------------------------------------------------------------------------

// ArgKind says where an argument's value comes from.
type ArgKind uint8

const (
	// ArgNull yields the null value.
	ArgNull ArgKind = iota
	// ArgLiteral is a literal encoded in Data.
	ArgLiteral
	// ArgObject names a binding in the scope stack.
	ArgObject
	// ArgReturn pops the frame's return stack.
	ArgReturn
)

// LiteralType is the lexical type of a literal argument.
type LiteralType uint8

const (
	LitString LiteralType = iota
	LitInt
	LitFloat
	LitBool
	LitIdentifier
	LitWideString
)

// Argument is an operand of an instruction.
type Argument struct {
	Kind ArgKind
	Lit  LiteralType
	Data string

	// Domain names the object a member is looked up in. DomainKind is
	// ArgObject for a named binding and ArgReturn for the return stack.
	Domain     string
	DomainKind ArgKind

	// UseLastAssert resolves the member against the value recorded by the
	// previous domain_assert; AssertChainTail clears it afterwards.
	UseLastAssert   bool
	AssertChainTail bool

	// Parameter markers used by fn definitions.
	Optional bool
	Variable bool
}

// IntArg is an int literal.
func IntArg(i int64) Argument { return Argument{Kind: ArgLiteral, Lit: LitInt, Data: strconv.FormatInt(i, 10)} }

// FloatArg is a float literal.
func FloatArg(f float64) Argument {
	return Argument{Kind: ArgLiteral, Lit: LitFloat, Data: strconv.FormatFloat(f, 'g', -1, 64)}
}

// BoolArg is a bool literal.
func BoolArg(b bool) Argument { return Argument{Kind: ArgLiteral, Lit: LitBool, Data: strconv.FormatBool(b)} }

// StrArg is a string literal.
func StrArg(s string) Argument { return Argument{Kind: ArgLiteral, Lit: LitString, Data: s} }

// WStrArg is a wide string literal.
func WStrArg(s string) Argument { return Argument{Kind: ArgLiteral, Lit: LitWideString, Data: s} }

// IdentArg is a literal identifier, e.g. the target of a bind.
func IdentArg(name string) Argument { return Argument{Kind: ArgLiteral, Lit: LitIdentifier, Data: name} }

// VarArg names a binding.
func VarArg(name string) Argument { return Argument{Kind: ArgObject, Data: name} }

// RetArg pops the return stack.
func RetArg() Argument { return Argument{Kind: ArgReturn} }

// NullArg yields null.
func NullArg() Argument { return Argument{Kind: ArgNull} }

// MemberArg names member of the binding domain.
func MemberArg(domain, member string) Argument {
	return Argument{Kind: ArgObject, Data: member, Domain: domain, DomainKind: ArgObject}
}

// RetMemberArg names member of the value on top of the return stack.
func RetMemberArg(member string) Argument {
	return Argument{Kind: ArgObject, Data: member, DomainKind: ArgReturn}
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// RequestKind distinguishes commands from function calls.
type RequestKind uint8

const (
	RequestCommand RequestKind = iota
	RequestFunction
)

// Header is the per-instruction metadata.
//
// Nest, NestEnd and Branch are positions in the origin block:
//   - block begin (if/while/for/case/struct/module/fn): NestEnd is the
//     index of the matching end.
//   - end: NestKind is the kind of the closed block and Nest the loop head
//     to jump back to.
//   - the first instruction of an elif/else/when clause has Branch set and
//     Nest pointing at the owning if/case.
type Header struct {
	Kind   RequestKind
	Op     Keyword
	Func   string
	Domain Argument

	Source      int
	NestKind    Keyword
	Nest        int
	NestEnd     int
	Branch      bool
	EscapeDepth int
	VoidCall    bool
	Local       bool
}

// Instruction is one bytecode request.
type Instruction struct {
	Header Header
	Args   []Argument
}

// IsCommand reports whether the instruction is a command of kind op.
func (in *Instruction) IsCommand(op Keyword) bool {
	return in.Header.Kind == RequestCommand && in.Header.Op == op
}

// Block is a sequence of instructions. Blocks spliced out of another block
// for fn bodies keep a pointer to that origin, so jump targets recorded in
// headers stay valid.
type Block struct {
	Name         string
	Instructions []Instruction

	origin   *Block
	branches map[int][]int
}

// NewBlock creates a block from ins.
func NewBlock(name string, ins []Instruction) *Block {
	return &Block{Name: name, Instructions: ins}
}

// Len returns the number of instructions.
func (b *Block) Len() int { return len(b.Instructions) }

// At returns the instruction at i.
func (b *Block) At(i int) *Instruction { return &b.Instructions[i] }

// Origin returns the block b was spliced from, or b itself.
func (b *Block) Origin() *Block {
	if b.origin != nil {
		return b.origin
	}
	return b
}

// Branches returns the clause start positions of the if/case block that
// begins at begin, in ascending order.
func (b *Block) Branches(begin int) []int {
	root := b.Origin()
	if root.branches == nil {
		root.branches = make(map[int][]int)
		for i := range root.Instructions {
			h := &root.Instructions[i].Header
			if h.Branch {
				root.branches[h.Nest] = append(root.branches[h.Nest], i)
			}
		}
		for _, list := range root.branches {
			sort.Ints(list)
		}
	}
	return root.branches[begin]
}

// splice copies instructions [from, to) of b into a new block whose
// origin is b's origin.
func (b *Block) splice(from, to int) *Block {
	if from < 0 {
		from = 0
	}
	if to > len(b.Instructions) {
		to = len(b.Instructions)
	}
	var ins []Instruction
	if from < to {
		ins = make([]Instruction, to-from)
		copy(ins, b.Instructions[from:to])
	}
	return &Block{Name: b.Name, Instructions: ins, origin: b.Origin()}
}
