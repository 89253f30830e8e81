package vm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// buildListener binds total = 0 and registers on_click(x) adding x to
// total for ("ui", "click") events, then waits. ("ui", "stop") leaves.
func buildListener() *Block {
	return NewAssembler("listener").
		Bind("total", IntArg(0)).
		Bind("clicks", IntArg(0)).
		Fn("on_click", "x").
		Op(KwAdd, VarArg("total"), VarArg("x")).
		Bind("total", RetArg()).
		Op(KwAdd, VarArg("clicks"), IntArg(1)).
		Bind("clicks", RetArg()).
		End().
		Fn("on_stop").
		VoidCommand(KwLeave).
		End().
		VoidCommand(KwHandle, StrArg("ui"), StrArg("click"), VarArg("on_click")).
		VoidCommand(KwHandle, StrArg("ui"), StrArg("stop"), VarArg("on_stop")).
		VoidCommand(KwWait).
		MustBuild()
}

func click(n int64) Event {
	return Event{Source: "ui", Kind: "click", Args: []Value{Int(n)}}
}

func TestEventsRunHandlersUntilSourceCloses(t *testing.T) {
	src := NewChanSource(8)
	src.Send(click(3))
	src.Send(click(4))
	src.Close()

	m := runBlock(t, buildListener(), WithEventSource(src))

	wantInt(t, m, "total", 7)
	wantInt(t, m, "clicks", 2)
	if m.Hanging() {
		t.Error("machine still hanging after the source closed")
	}
	// handlers never nest: each runs directly above the main frame
	if m.PeakCallDepth() != 2 {
		t.Errorf("peak call depth = %d, want 2", m.PeakCallDepth())
	}
}

func TestHeldEventIsDeliveredFirst(t *testing.T) {
	src := NewChanSource(8)
	reg := NewRegistry()
	// emit(n) queues ticks 2 and 3 while the first handler is still running.
	emit := NewNative("emit", "n", Fixed, func(args *Args) Result {
		if n, _ := args.Get("n").AsInt(); n == 1 {
			src.Send(Event{Source: "ui", Kind: "tick", Args: []Value{Int(2)}})
			src.Send(Event{Source: "ui", Kind: "tick", Args: []Value{Int(3)}})
			src.Close()
		}
		return Ok(Null())
	})
	if err := reg.RegisterFunction(emit); err != nil {
		t.Fatal(err)
	}
	reg.Freeze()

	b := NewAssembler("held").
		Command(KwInitArray).
		Bind("seen", RetArg()).
		Fn("on_tick", "x").
		CallVoid("emit", VarArg("x")).
		Bind("pad", IntArg(0)).
		MethodVoid(VarArg("seen"), "push", VarArg("x")).
		End().
		VoidCommand(KwHandle, StrArg("ui"), StrArg("tick"), VarArg("on_tick")).
		VoidCommand(KwWait).
		MustBuild()
	src.Send(Event{Source: "ui", Kind: "tick", Args: []Value{Int(1)}})

	m := NewMachine(reg, b, WithEventSource(src))
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	arr, err := global(t, m, "seen").AsArray()
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	var got []int64
	for _, v := range arr.Elems {
		n, _ := v.AsInt()
		got = append(got, n)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("handled %v, want [1 2 3]", got)
	}
	if m.PeakCallDepth() != 2 {
		t.Errorf("peak call depth = %d, want 2", m.PeakCallDepth())
	}
}

func TestLeaveEndsWaiting(t *testing.T) {
	src := NewChanSource(8)
	src.Send(click(1))
	src.Send(Event{Source: "ui", Kind: "stop"})
	src.Send(click(100))

	m := runBlock(t, buildListener(), WithEventSource(src))

	wantInt(t, m, "total", 1)
	if m.Hanging() {
		t.Error("machine still hanging after leave")
	}
}

func TestEventArityMismatchIsDiscarded(t *testing.T) {
	src := NewChanSource(8)
	src.Send(Event{Source: "ui", Kind: "click"})
	src.Send(Event{Source: "ui", Kind: "click", Args: []Value{Int(1), Int(2)}})
	src.Send(click(5))
	src.Close()

	m := runBlock(t, buildListener(), WithEventSource(src))

	wantInt(t, m, "total", 5)
	wantInt(t, m, "clicks", 1)
}

func TestEventWithoutHandlerIsDropped(t *testing.T) {
	src := NewChanSource(8)
	src.Send(Event{Source: "net", Kind: "click", Args: []Value{Int(9)}})
	src.Send(Event{Source: "ui", Kind: "drag", Args: []Value{Int(9)}})
	src.Send(click(2))
	src.Close()

	m := runBlock(t, buildListener(), WithEventSource(src))

	wantInt(t, m, "total", 2)
}

func TestEventContextBinding(t *testing.T) {
	b := NewAssembler("context").
		Bind("seen", NullArg()).
		Fn("on_open").
		Bind("seen", VarArg(ContextBinding)).
		End().
		VoidCommand(KwHandle, IntArg(1), StrArg("open"), VarArg("on_open")).
		VoidCommand(KwWait).
		MustBuild()
	src := NewChanSource(1)
	src.Send(Event{Source: "1", Kind: "open", Context: String("main_window")})
	src.Close()

	m := runBlock(t, b, WithEventSource(src))

	wantString(t, m, "seen", "main_window")
}

func TestNativeEventHandler(t *testing.T) {
	var got []int64
	handler := NewNative("record", "n", Fixed, func(args *Args) Result {
		n, _ := args.Get("n").AsInt()
		got = append(got, n)
		return Ok(Null())
	})
	b := NewAssembler("native").
		VoidCommand(KwWait).
		MustBuild()
	src := NewChanSource(4)
	src.Send(Event{Source: "ui", Kind: "tick", Args: []Value{Int(1)}})
	src.Send(Event{Source: "ui", Kind: "tick", Args: []Value{Int(2)}})
	src.Close()

	m := NewMachine(nil, b, WithEventSource(src))
	m.HandleEvent("ui", "tick", handler)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("handled %v, want [1 2]", got)
	}
}

func TestWaitWithoutSourceReturns(t *testing.T) {
	b := NewAssembler("nosource").
		VoidCommand(KwWait).
		Bind("after", IntArg(1)).
		MustBuild()
	m := runBlock(t, b)

	wantInt(t, m, "after", 1)
	if m.Hanging() {
		t.Error("machine still hanging without an event source")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	src := NewChanSource(1)
	defer src.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	m := NewMachine(nil, buildListener(), WithEventSource(src))
	err := m.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestHandleRejectsBadOperands(t *testing.T) {
	tests := []struct {
		name string
		args []Argument
	}{
		{"handler not a function", []Argument{StrArg("ui"), StrArg("click"), IntArg(1)}},
		{"kind not a string", []Argument{StrArg("ui"), IntArg(2), VarArg("f")}},
		{"bad source", []Argument{BoolArg(true), StrArg("click"), VarArg("f")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewAssembler("badhandle").
				Fn("f").
				End().
				VoidCommand(KwHandle, tt.args...).
				MustBuild()
			_, err := runFailing(t, b)
			if !errors.Is(err, ErrType) {
				t.Errorf("err = %v, want a TypeError", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ChanSource
// ---------------------------------------------------------------------------

func TestChanSource(t *testing.T) {
	src := NewChanSource(0)
	if _, ok := src.Poll(); ok {
		t.Fatal("Poll() on an empty source returned an event")
	}
	if !src.Send(Event{Kind: "a"}) {
		t.Fatal("Send() = false on an open source")
	}
	src.Close()
	src.Close()
	if src.Send(Event{Kind: "b"}) {
		t.Error("Send() after Close succeeded")
	}

	ev, err := src.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if ev.Kind != "a" || ev.ID == "" {
		t.Errorf("event = %+v, want kind a with an id", ev)
	}
	if _, err := src.Wait(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Wait() on a drained source = %v, want ErrSourceClosed", err)
	}
}

func TestChanSourceCloseReleasesSender(t *testing.T) {
	src := NewChanSource(1)
	src.Send(click(1))

	done := make(chan bool)
	go func() { done <- src.Send(click(2)) }()
	src.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Send() on a full closed source succeeded")
		}
	case <-time.After(time.Second):
		t.Fatal("Send() still blocked after Close")
	}
}
