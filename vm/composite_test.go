package vm

import (
	"errors"
	"testing"
)

// pointStruct emits
//
//	struct Point
//	    x = 0
//	    y = 0
//	    fn initializer(a, b) self.x = a; self.y = b end
//	    fn sum() return self.x + self.y end
//	end
func pointStruct(a *Assembler) *Assembler {
	return a.Struct("Point", "").
		Bind("x", IntArg(0)).
		Bind("y", IntArg(0)).
		Fn("initializer", "a", "b").
		Assign(MemberArg(SelfBinding, "x"), VarArg("a")).
		Assign(MemberArg(SelfBinding, "y"), VarArg("b")).
		End().
		Fn("sum").
		Op(KwAdd, MemberArg(SelfBinding, "x"), MemberArg(SelfBinding, "y")).
		Return(RetArg()).
		End().
		End()
}

func TestStructConstructAndMethod(t *testing.T) {
	b := pointStruct(NewAssembler("point")).
		Call("Point", IntArg(3), IntArg(4)).
		Bind("p", RetArg()).
		Method(VarArg("p"), "sum").
		Bind("r", RetArg()).
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "r", 7)
	p := global(t, m, "p")
	if p.TypeID() != "Point" {
		t.Errorf("TypeID(p) = %q, want Point", p.TypeID())
	}
	st, _ := p.AsStruct()
	if _, ok := st.Member(m.Heap(), memberInitializer); ok {
		t.Error("instance carries the initializer")
	}
	if depth := m.Scopes().Depth(); depth != 1 {
		t.Errorf("scope depth = %d, want 1", depth)
	}
}

func TestStructInstancesAreIndependent(t *testing.T) {
	b := pointStruct(NewAssembler("independent")).
		Call("Point", IntArg(1), IntArg(1)).
		Bind("a", RetArg()).
		Call("Point", IntArg(1), IntArg(1)).
		Bind("b", RetArg()).
		Assign(MemberArg("a", "x"), IntArg(10)).
		Method(VarArg("a"), "sum").
		Bind("ra", RetArg()).
		Method(VarArg("b"), "sum").
		Bind("rb", RetArg()).
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "ra", 11)
	wantInt(t, m, "rb", 2)
}

func TestStructInheritanceWithSuper(t *testing.T) {
	// struct Point3 < Point
	//     z = 0
	//     fn initializer(a, b, c) super(a, b); self.z = c end
	//     fn sum3() return self.sum() + self.z end
	// end
	a := pointStruct(NewAssembler("inherit")).
		Struct("Point3", "Point").
		Bind("z", IntArg(0)).
		Fn("initializer", "a", "b", "c").
		VoidCommand(KwSuper, VarArg("a"), VarArg("b")).
		Assign(MemberArg(SelfBinding, "z"), VarArg("c")).
		End().
		Fn("sum3").
		Method(VarArg(SelfBinding), "sum").
		Op(KwAdd, RetArg(), MemberArg(SelfBinding, "z")).
		Return(RetArg()).
		End().
		End().
		Call("Point3", IntArg(1), IntArg(2), IntArg(3)).
		Bind("p", RetArg()).
		Method(VarArg("p"), "sum").
		Bind("r2", RetArg()).
		Method(VarArg("p"), "sum3").
		Bind("r3", RetArg())
	m := runBlock(t, a.MustBuild())

	wantInt(t, m, "r2", 3)
	wantInt(t, m, "r3", 6)
	if id := global(t, m, "p").TypeID(); id != "Point3" {
		t.Errorf("TypeID(p) = %q, want Point3", id)
	}
}

func TestInheritedMembers(t *testing.T) {
	// struct Base      v = 1; fn get() return self.v end end
	// struct Derived < Base end
	b := NewAssembler("inherited").
		Struct("Base", "").
		Bind("v", IntArg(1)).
		Fn("get").
		Return(MemberArg(SelfBinding, "v")).
		End().
		End().
		Struct("Derived", "Base").
		End().
		Call("Derived").
		Bind("a", RetArg()).
		Call("Derived").
		Bind("b", RetArg()).
		Assign(MemberArg("a", "v"), IntArg(5)).
		Method(VarArg("a"), "get").
		Bind("ra", RetArg()).
		Method(VarArg("b"), "get").
		Bind("rb", RetArg()).
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "ra", 5)
	wantInt(t, m, "rb", 1)

	getOf := func(name string) *Function {
		t.Helper()
		st, err := global(t, m, name).AsStruct()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		v, ok := st.Member(m.Heap(), "get")
		if !ok {
			t.Fatalf("%s has no get member", name)
		}
		fn, err := v.AsFunction()
		if err != nil {
			t.Fatalf("%s.get: %v", name, err)
		}
		return fn
	}
	if getOf("a") != getOf("b") {
		t.Error("inherited function member is not shared between instances")
	}
}

func TestStructWithMissingSuper(t *testing.T) {
	b := NewAssembler("nosuper").
		Struct("Orphan", "Nobody").
		Bind("x", IntArg(0)).
		End().
		MustBuild()
	_, err := runFailing(t, b)
	if !errors.Is(err, ErrLookup) {
		t.Errorf("err = %v, want a LookupError", err)
	}
}

func TestStructWithoutInitializer(t *testing.T) {
	b := NewAssembler("noinit").
		Struct("Bag", "").
		Bind("n", IntArg(1)).
		End().
		Call("Bag").
		Bind("bag", RetArg()).
		MustBuild()
	m := runBlock(t, b)

	st, err := global(t, m, "bag").AsStruct()
	if err != nil {
		t.Fatalf("bag: %v", err)
	}
	if v, _ := st.Member(m.Heap(), "n"); v.String() != "1" {
		t.Errorf("bag.n = %v, want 1", v)
	}

	bad := NewAssembler("noinitargs").
		Struct("Bag", "").
		End().
		Call("Bag", IntArg(1)).
		MustBuild()
	if _, err := runFailing(t, bad); !errors.Is(err, ErrArgument) {
		t.Errorf("err = %v, want an ArgumentError", err)
	}
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

func greeterModule(a *Assembler) *Assembler {
	return a.Module("Greeter").
		Bind("greeting", StrArg("hi")).
		Fn("greet").
		Return(MemberArg(SelfBinding, "greeting")).
		End().
		End()
}

func TestModuleMethod(t *testing.T) {
	b := greeterModule(NewAssembler("module")).
		Method(VarArg("Greeter"), "greet").
		Bind("g", RetArg()).
		MustBuild()
	m := runBlock(t, b)

	wantString(t, m, "g", "hi")
	if id := global(t, m, "Greeter").TypeID(); id != "Greeter" {
		t.Errorf("TypeID(Greeter) = %q", id)
	}
}

func TestModuleIsNotCallable(t *testing.T) {
	b := greeterModule(NewAssembler("callmodule")).
		Call("Greeter").
		MustBuild()
	if _, err := runFailing(t, b); !errors.Is(err, ErrType) {
		t.Errorf("err = %v, want a TypeError", err)
	}
}

func TestIncludeModule(t *testing.T) {
	b := greeterModule(NewAssembler("include")).
		Struct("Person", "").
		Include("Greeter").
		Bind("greeting", StrArg("hello")).
		End().
		Struct("Robot", "").
		Include("Greeter").
		End().
		Call("Person").
		Bind("p", RetArg()).
		Method(VarArg("p"), "greet").
		Bind("gp", RetArg()).
		Call("Robot").
		Bind("r", RetArg()).
		Method(VarArg("r"), "greet").
		Bind("gr", RetArg()).
		MustBuild()
	m := runBlock(t, b)

	// members defined by the struct body win over included ones
	wantString(t, m, "gp", "hello")
	wantString(t, m, "gr", "hi")
}

func TestIncludeRequiresModule(t *testing.T) {
	b := NewAssembler("badinclude").
		Bind("n", IntArg(1)).
		Struct("S", "").
		Include("n").
		End().
		MustBuild()
	if _, err := runFailing(t, b); !errors.Is(err, ErrType) {
		t.Errorf("err = %v, want a TypeError", err)
	}
}

func TestIncludeOutsideStruct(t *testing.T) {
	b := greeterModule(NewAssembler("strayinclude")).
		Include("Greeter").
		MustBuild()
	if _, err := runFailing(t, b); !errors.Is(err, ErrControlFlow) {
		t.Errorf("err = %v, want a ControlFlowError", err)
	}
}

func TestInvokeScriptMethodFromHost(t *testing.T) {
	b := pointStruct(NewAssembler("hostinvoke")).
		Call("Point", IntArg(5), IntArg(6)).
		Bind("p", RetArg()).
		MustBuild()
	m := runBlock(t, b)

	h, ok := m.Scopes().Base().Find("p")
	if !ok {
		t.Fatal("p is not bound")
	}
	v, err := m.Invoke(RefValue(h), "sum", nil)
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if n, _ := v.AsInt(); n != 11 {
		t.Errorf("p.sum() = %v, want 11", v)
	}
	if m.CallDepth() != 0 {
		t.Errorf("call depth = %d after host invoke, want 0", m.CallDepth())
	}
	// p survives the call
	st, err := global(t, m, "p").AsStruct()
	if err != nil {
		t.Fatalf("p: %v", err)
	}
	if x, _ := st.Member(m.Heap(), "x"); x.String() != "5" {
		t.Errorf("p.x = %v after host invoke, want 5", x)
	}
}
