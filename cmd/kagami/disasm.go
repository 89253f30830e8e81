package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vgxbj/Kagami/blockfile"
	"github.com/vgxbj/Kagami/vm"
)

// runDisasm prints the instructions of a block file.
func runDisasm(w io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: kagami disasm <file.kbc>")
	}
	b, err := blockfile.ReadFile(args[0])
	if err != nil {
		return err
	}
	disasm(w, b)
	return nil
}

func disasm(w io.Writer, b *vm.Block) {
	fmt.Fprintf(w, "block %s (%d instructions)\n", b.Name, b.Len())
	for i := 0; i < b.Len(); i++ {
		in := b.At(i)
		h := in.Header
		var op string
		if h.Kind == vm.RequestFunction {
			op = "call " + h.Func
			if h.Domain != (vm.Argument{}) {
				op = "call " + formatArg(h.Domain) + "." + h.Func
			}
		} else {
			op = h.Op.String()
		}
		args := make([]string, len(in.Args))
		for j, a := range in.Args {
			args[j] = formatArg(a)
		}
		line := fmt.Sprintf("%4d  %-4d %-16s %s", i, h.Source, op, strings.Join(args, ", "))
		var notes []string
		if h.NestEnd > 0 {
			notes = append(notes, "end@"+strconv.Itoa(h.NestEnd))
		}
		if h.Op == vm.KwEnd && h.Kind == vm.RequestCommand {
			notes = append(notes, h.NestKind.String()+"@"+strconv.Itoa(h.Nest))
		}
		if h.Branch {
			notes = append(notes, "clause of "+strconv.Itoa(h.Nest))
		}
		if h.VoidCall {
			notes = append(notes, "void")
		}
		if len(notes) > 0 {
			line += "  ; " + strings.Join(notes, " ")
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func formatArg(a vm.Argument) string {
	var s string
	switch a.Kind {
	case vm.ArgNull:
		s = "null"
	case vm.ArgReturn:
		s = "<ret>"
	case vm.ArgLiteral:
		switch a.Lit {
		case vm.LitString:
			s = strconv.Quote(a.Data)
		case vm.LitWideString:
			s = "w" + strconv.Quote(a.Data)
		case vm.LitIdentifier:
			s = "'" + a.Data
		default:
			s = a.Data
		}
	case vm.ArgObject:
		s = a.Data
		switch {
		case a.DomainKind == vm.ArgReturn:
			s = "<ret>." + a.Data
		case a.Domain != "":
			s = a.Domain + "." + a.Data
		}
	}
	if a.Optional {
		s += "?"
	}
	if a.Variable {
		s += "..."
	}
	return s
}
