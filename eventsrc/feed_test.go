package eventsrc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vgxbj/Kagami/vm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// server upgrades each request, writes msgs and then either closes
// normally or, with hold set, keeps reading until the client goes away.
func server(t *testing.T, msgs []string, hold bool) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if hold {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedDelivers(t *testing.T) {
	url := server(t, []string{
		`{"source":"ui","kind":"click","args":[1]}`,
		`garbage`,
		`{"source":"ui","kind":"click","args":[2]}`,
	}, false)
	src := vm.NewChanSource(8)
	feed := NewFeed(url, src)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := feed.Dial(ctx); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := feed.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	feed.Close()

	if feed.Received() != 2 || feed.Dropped() != 1 {
		t.Errorf("received = %d, dropped = %d, want 2 and 1", feed.Received(), feed.Dropped())
	}
	for _, want := range []string{"1", "2"} {
		ev, ok := src.Poll()
		if !ok {
			t.Fatalf("missing event %s", want)
		}
		if ev.Kind != "click" || ev.Args[0].String() != want {
			t.Errorf("event = %+v, want click %s", ev, want)
		}
	}
}

func TestFeedStopsOnCancel(t *testing.T) {
	url := server(t, nil, true)
	feed := NewFeed(url, vm.NewChanSource(1))

	if err := feed.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := feed.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want DeadlineExceeded", err)
	}
}

func TestFeedStopsWhenSinkCloses(t *testing.T) {
	url := server(t, []string{`{"source":"ui","kind":"click"}`}, true)
	src := vm.NewChanSource(1)
	src.Close()
	feed := NewFeed(url, src)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := feed.Dial(ctx); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := feed.Run(ctx); err != nil {
		t.Errorf("Run() = %v, want nil once the sink is closed", err)
	}
	feed.Close()
}

func TestFeedNotConnected(t *testing.T) {
	feed := NewFeed("ws://127.0.0.1:1/none", vm.NewChanSource(1))
	if err := feed.Run(context.Background()); err == nil {
		t.Error("Run succeeded without Dial")
	}
	if err := feed.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestFeedRunsMachineHandlers(t *testing.T) {
	url := server(t, []string{
		`{"source":"ui","kind":"add","args":[5]}`,
		`{"source":"ui","kind":"add","args":[6]}`,
	}, false)
	src := vm.NewChanSource(4)
	feed := NewFeed(url, src)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := feed.Dial(ctx); err != nil {
		t.Fatal(err)
	}
	go func() {
		feed.Run(ctx)
		src.Close()
	}()

	b := vm.NewAssembler("sum").
		Bind("total", vm.IntArg(0)).
		Fn("on_add", "n").
		Op(vm.KwAdd, vm.VarArg("total"), vm.VarArg("n")).
		Bind("total", vm.RetArg()).
		End().
		VoidCommand(vm.KwHandle, vm.StrArg("ui"), vm.StrArg("add"), vm.VarArg("on_add")).
		VoidCommand(vm.KwWait).
		MustBuild()
	m := vm.NewMachine(nil, b, vm.WithEventSource(src))
	if err := m.Run(ctx); err != nil {
		t.Fatalf("machine: %v", err)
	}
	if v, _ := m.Global("total"); v.String() != "11" {
		t.Errorf("total = %v, want 11", v)
	}
}
