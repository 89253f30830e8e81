package blockfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/vgxbj/Kagami/vm"
)

// Magic and FormatVersion identify a block file.
const (
	Magic         = "KBC"
	FormatVersion = 1
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("blockfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type wireBlock struct {
	Magic        string            `cbor:"1,keyasint"`
	Version      int               `cbor:"2,keyasint"`
	Name         string            `cbor:"3,keyasint,omitempty"`
	Instructions []wireInstruction `cbor:"4,keyasint"`
}

type wireInstruction struct {
	Header wireHeader `cbor:"1,keyasint"`
	Args   []wireArg  `cbor:"2,keyasint,omitempty"`
}

type wireHeader struct {
	Kind        uint8    `cbor:"1,keyasint,omitempty"`
	Op          uint16   `cbor:"2,keyasint,omitempty"`
	Func        string   `cbor:"3,keyasint,omitempty"`
	Domain      *wireArg `cbor:"4,keyasint,omitempty"`
	Source      int      `cbor:"5,keyasint,omitempty"`
	NestKind    uint16   `cbor:"6,keyasint,omitempty"`
	Nest        int      `cbor:"7,keyasint,omitempty"`
	NestEnd     int      `cbor:"8,keyasint,omitempty"`
	Branch      bool     `cbor:"9,keyasint,omitempty"`
	EscapeDepth int      `cbor:"10,keyasint,omitempty"`
	VoidCall    bool     `cbor:"11,keyasint,omitempty"`
	Local       bool     `cbor:"12,keyasint,omitempty"`
}

type wireArg struct {
	Kind            uint8  `cbor:"1,keyasint,omitempty"`
	Lit             uint8  `cbor:"2,keyasint,omitempty"`
	Data            string `cbor:"3,keyasint,omitempty"`
	Domain          string `cbor:"4,keyasint,omitempty"`
	DomainKind      uint8  `cbor:"5,keyasint,omitempty"`
	UseLastAssert   bool   `cbor:"6,keyasint,omitempty"`
	AssertChainTail bool   `cbor:"7,keyasint,omitempty"`
	Optional        bool   `cbor:"8,keyasint,omitempty"`
	Variable        bool   `cbor:"9,keyasint,omitempty"`
}

func toWireArg(a vm.Argument) wireArg {
	return wireArg{
		Kind:            uint8(a.Kind),
		Lit:             uint8(a.Lit),
		Data:            a.Data,
		Domain:          a.Domain,
		DomainKind:      uint8(a.DomainKind),
		UseLastAssert:   a.UseLastAssert,
		AssertChainTail: a.AssertChainTail,
		Optional:        a.Optional,
		Variable:        a.Variable,
	}
}

func (w wireArg) arg() vm.Argument {
	return vm.Argument{
		Kind:            vm.ArgKind(w.Kind),
		Lit:             vm.LiteralType(w.Lit),
		Data:            w.Data,
		Domain:          w.Domain,
		DomainKind:      vm.ArgKind(w.DomainKind),
		UseLastAssert:   w.UseLastAssert,
		AssertChainTail: w.AssertChainTail,
		Optional:        w.Optional,
		Variable:        w.Variable,
	}
}

func toWire(b *vm.Block) *wireBlock {
	wb := &wireBlock{
		Magic:        Magic,
		Version:      FormatVersion,
		Name:         b.Name,
		Instructions: make([]wireInstruction, len(b.Instructions)),
	}
	for i, in := range b.Instructions {
		h := in.Header
		wh := wireHeader{
			Kind:        uint8(h.Kind),
			Op:          uint16(h.Op),
			Func:        h.Func,
			Source:      h.Source,
			NestKind:    uint16(h.NestKind),
			Nest:        h.Nest,
			NestEnd:     h.NestEnd,
			Branch:      h.Branch,
			EscapeDepth: h.EscapeDepth,
			VoidCall:    h.VoidCall,
			Local:       h.Local,
		}
		if h.Domain != (vm.Argument{}) {
			d := toWireArg(h.Domain)
			wh.Domain = &d
		}
		wi := wireInstruction{Header: wh}
		for _, a := range in.Args {
			wi.Args = append(wi.Args, toWireArg(a))
		}
		wb.Instructions[i] = wi
	}
	return wb
}

func (wb *wireBlock) block() (*vm.Block, error) {
	if wb.Magic != Magic {
		return nil, fmt.Errorf("blockfile: bad magic %q", wb.Magic)
	}
	if wb.Version != FormatVersion {
		return nil, fmt.Errorf("blockfile: unsupported format version %d", wb.Version)
	}
	n := len(wb.Instructions)
	ins := make([]vm.Instruction, n)
	for i, wi := range wb.Instructions {
		wh := wi.Header
		h := vm.Header{
			Kind:        vm.RequestKind(wh.Kind),
			Op:          vm.Keyword(wh.Op),
			Func:        wh.Func,
			Source:      wh.Source,
			NestKind:    vm.Keyword(wh.NestKind),
			Nest:        wh.Nest,
			NestEnd:     wh.NestEnd,
			Branch:      wh.Branch,
			EscapeDepth: wh.EscapeDepth,
			VoidCall:    wh.VoidCall,
			Local:       wh.Local,
		}
		if wh.Domain != nil {
			h.Domain = wh.Domain.arg()
		}
		if h.Kind == vm.RequestFunction && h.Func == "" {
			return nil, fmt.Errorf("blockfile: instruction %d: call without function name", i)
		}
		if h.Nest < 0 || h.Nest >= n || h.NestEnd < 0 || h.NestEnd >= n {
			return nil, fmt.Errorf("blockfile: instruction %d: nest position out of range", i)
		}
		if h.EscapeDepth < 0 {
			return nil, fmt.Errorf("blockfile: instruction %d: negative escape depth", i)
		}
		var args []vm.Argument
		for _, wa := range wi.Args {
			args = append(args, wa.arg())
		}
		ins[i] = vm.Instruction{Header: h, Args: args}
	}
	return vm.NewBlock(wb.Name, ins), nil
}
