package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// if / elif / else
// ---------------------------------------------------------------------------

func buildClassify(x int64) *Block {
	a := NewAssembler("classify").
		Bind("x", IntArg(x)).
		Bind("r", StrArg("")).
		Bind("tests", IntArg(0)).
		Op(KwLess, VarArg("x"), IntArg(3)).
		If(RetArg()).
		Bind("r", StrArg("small")).
		ElifWith(func(a *Assembler) Argument {
			a.Op(KwAdd, VarArg("tests"), IntArg(1))
			a.Bind("tests", RetArg())
			a.Op(KwLess, VarArg("x"), IntArg(10))
			return RetArg()
		}).
		Bind("r", StrArg("medium")).
		Else().
		Bind("r", StrArg("large")).
		End()
	return a.MustBuild()
}

func TestIfElifElse(t *testing.T) {
	tests := []struct {
		x     int64
		want  string
		tests int64
	}{
		{1, "small", 0},
		{5, "medium", 1},
		{20, "large", 1},
	}
	for _, tt := range tests {
		m := runBlock(t, buildClassify(tt.x))
		wantString(t, m, "r", tt.want)
		// the elif condition code only runs when the if clause failed
		wantInt(t, m, "tests", tt.tests)
	}
}

func TestIfRequiresBool(t *testing.T) {
	b := NewAssembler("badif").
		If(IntArg(1)).
		End().
		MustBuild()
	_, err := runFailing(t, b)
	if !errors.Is(err, ErrType) {
		t.Errorf("err = %v, want a TypeError", err)
	}
}

func TestNestedIf(t *testing.T) {
	b := NewAssembler("nested").
		Bind("r", IntArg(0)).
		If(BoolArg(true)).
		If(BoolArg(false)).
		Bind("r", IntArg(1)).
		Else().
		Bind("r", IntArg(2)).
		End().
		Else().
		Bind("r", IntArg(3)).
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "r", 2)
}

// ---------------------------------------------------------------------------
// case / when
// ---------------------------------------------------------------------------

func buildCase(subject Argument) *Block {
	return NewAssembler("case").
		Bind("r", StrArg("")).
		Case(subject).
		When(IntArg(1), IntArg(2)).
		Bind("r", StrArg("low")).
		When(IntArg(5), StrArg("five")).
		Bind("r", StrArg("five")).
		Else().
		Bind("r", StrArg("other")).
		End().
		MustBuild()
}

func TestCaseWhen(t *testing.T) {
	tests := []struct {
		subject Argument
		want    string
	}{
		{IntArg(2), "low"},
		{IntArg(5), "five"},
		{StrArg("five"), "five"},
		{StrArg("5"), "other"},
		{IntArg(9), "other"},
	}
	for _, tt := range tests {
		m := runBlock(t, buildCase(tt.subject))
		wantString(t, m, "r", tt.want)
	}
}

func TestCaseWithoutMatch(t *testing.T) {
	b := NewAssembler("nomatch").
		Bind("r", IntArg(0)).
		Case(IntArg(3)).
		When(IntArg(1)).
		Bind("r", IntArg(1)).
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "r", 0)
	if depth := m.Scopes().Depth(); depth != 1 {
		t.Errorf("scope depth = %d after case, want 1", depth)
	}
}

func TestCaseRequiresPlainSubject(t *testing.T) {
	b := NewAssembler("badcase").
		Bind("r", StrArg("")).
		Command(KwInitArray, IntArg(1), IntArg(2)).
		Case(RetArg()).
		When(IntArg(1)).
		Bind("r", StrArg("one")).
		Else().
		Bind("r", StrArg("else")).
		End().
		MustBuild()
	m, err := runFailing(t, b)
	if !errors.Is(err, ErrType) {
		t.Errorf("err = %v, want a TypeError", err)
	}
	wantString(t, m, "r", "")
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func TestWhileCounts(t *testing.T) {
	b := NewAssembler("while").
		Bind("i", IntArg(0)).
		Bind("sum", IntArg(0)).
		WhileWith(func(a *Assembler) Argument {
			a.Op(KwLess, VarArg("i"), IntArg(5))
			return RetArg()
		}).
		Op(KwAdd, VarArg("i"), IntArg(1)).
		Bind("i", RetArg()).
		Op(KwAdd, VarArg("sum"), VarArg("i")).
		Bind("sum", RetArg()).
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "i", 5)
	wantInt(t, m, "sum", 15)
	if depth := m.Scopes().Depth(); depth != 1 {
		t.Errorf("scope depth = %d after loop, want 1", depth)
	}
}

func TestWhileLocalsAreFreshEachIteration(t *testing.T) {
	b := NewAssembler("locals").
		Bind("i", IntArg(0)).
		Bind("seen", IntArg(0)).
		WhileWith(func(a *Assembler) Argument {
			a.Op(KwLess, VarArg("i"), IntArg(3))
			return RetArg()
		}).
		Op(KwAdd, VarArg("i"), IntArg(1)).
		Bind("i", RetArg()).
		BindLocal("tmp", IntArg(1)).
		Op(KwAdd, VarArg("seen"), VarArg("tmp")).
		Bind("seen", RetArg()).
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "seen", 3)
	if _, ok := m.Global("tmp"); ok {
		t.Error("loop local leaked into the outer scope")
	}
}

func TestBreakDepthTwo(t *testing.T) {
	b := NewAssembler("break2").
		Bind("i", IntArg(0)).
		Bind("hits", IntArg(0)).
		WhileWith(func(a *Assembler) Argument {
			a.Op(KwLess, VarArg("i"), IntArg(10))
			return RetArg()
		}).
		Op(KwAdd, VarArg("i"), IntArg(1)).
		Bind("i", RetArg()).
		While(BoolArg(true)).
		Op(KwAdd, VarArg("hits"), IntArg(1)).
		Bind("hits", RetArg()).
		Op(KwEquals, VarArg("i"), IntArg(3)).
		If(RetArg()).
		Break(2).
		End().
		Break(1).
		End().
		End().
		Bind("after", BoolArg(true)).
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "i", 3)
	wantInt(t, m, "hits", 3)
	if v, _ := global(t, m, "after").AsBool(); !v {
		t.Error("code after the loops did not run")
	}
	if depth := m.Scopes().Depth(); depth != 1 {
		t.Errorf("scope depth = %d after break, want 1", depth)
	}
}

func TestContinueSkipsRest(t *testing.T) {
	// sum of odd numbers below 10
	b := NewAssembler("continue").
		Bind("i", IntArg(0)).
		Bind("sum", IntArg(0)).
		WhileWith(func(a *Assembler) Argument {
			a.Op(KwLess, VarArg("i"), IntArg(9))
			return RetArg()
		}).
		Op(KwAdd, VarArg("i"), IntArg(1)).
		Bind("i", RetArg()).
		Op(KwDiv, VarArg("i"), IntArg(2)).
		Op(KwMul, RetArg(), IntArg(2)).
		Op(KwEquals, RetArg(), VarArg("i")).
		If(RetArg()).
		Continue(0).
		End().
		Op(KwAdd, VarArg("sum"), VarArg("i")).
		Bind("sum", RetArg()).
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "sum", 25)
}

func TestBreakOutsideLoop(t *testing.T) {
	b := NewAssembler("stray").
		Break(1).
		MustBuild()
	_, err := runFailing(t, b)
	if !errors.Is(err, ErrControlFlow) {
		t.Errorf("err = %v, want a ControlFlowError", err)
	}
}

func TestForOverArray(t *testing.T) {
	b := NewAssembler("for").
		Command(KwInitArray, IntArg(1), IntArg(2), IntArg(3)).
		Bind("arr", RetArg()).
		Bind("sum", IntArg(0)).
		Bind("count", IntArg(0)).
		For("e", VarArg("arr")).
		Op(KwAdd, VarArg("sum"), VarArg("e")).
		Bind("sum", RetArg()).
		Op(KwAdd, VarArg("count"), IntArg(1)).
		Bind("count", RetArg()).
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "sum", 6)
	wantInt(t, m, "count", 3)
	if _, ok := m.Global("e"); ok {
		t.Error("loop unit leaked into the outer scope")
	}
}

func TestForOverEmptyArray(t *testing.T) {
	b := NewAssembler("forempty").
		Command(KwInitArray).
		Bind("arr", RetArg()).
		Bind("count", IntArg(0)).
		For("e", VarArg("arr")).
		Op(KwAdd, VarArg("count"), IntArg(1)).
		Bind("count", RetArg()).
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "count", 0)
}

func TestForBreak(t *testing.T) {
	b := NewAssembler("forbreak").
		Command(KwInitArray, IntArg(4), IntArg(5), IntArg(6)).
		Bind("arr", RetArg()).
		Bind("last", IntArg(0)).
		For("e", VarArg("arr")).
		Bind("last", VarArg("e")).
		Op(KwEquals, VarArg("e"), IntArg(5)).
		If(RetArg()).
		Break(1).
		End().
		End().
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "last", 5)
}

func TestForRequiresIterable(t *testing.T) {
	b := NewAssembler("fornotiterable").
		For("e", IntArg(3)).
		End().
		MustBuild()
	_, err := runFailing(t, b)
	if !errors.Is(err, ErrType) {
		t.Errorf("err = %v, want a TypeError", err)
	}
}
