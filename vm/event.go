package vm

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Event is an externally delivered occurrence. Args must be plain values
// or arrays of them; they cross goroutines and never reference a heap.
type Event struct {
	ID      string
	Source  string
	Kind    string
	Args    []Value
	Context Value
}

// EventSource supplies events to a machine.
type EventSource interface {
	// Poll returns the next event without blocking.
	Poll() (Event, bool)
	// Wait blocks until an event arrives or ctx is done.
	Wait(ctx context.Context) (Event, error)
}

// ErrSourceClosed is returned by Wait once a source is closed and drained.
var ErrSourceClosed = errors.New("event source closed")

// ChanSource is an in-process EventSource backed by a buffered channel.
// Send and Close may be called from any goroutine.
type ChanSource struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewChanSource creates a source buffering up to buffer events.
func NewChanSource(buffer int) *ChanSource {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanSource{ch: make(chan Event, buffer), done: make(chan struct{})}
}

// Send queues ev, blocking while the buffer is full. It returns false once
// the source is closed.
func (s *ChanSource) Send(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Close stops accepting events and releases blocked senders. Queued events
// can still be received.
func (s *ChanSource) Close() {
	s.once.Do(func() { close(s.done) })
}

// Poll implements EventSource.
func (s *ChanSource) Poll() (Event, bool) {
	select {
	case ev := <-s.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

// Wait implements EventSource.
func (s *ChanSource) Wait(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-s.done:
		select {
		case ev := <-s.ch:
			return ev, nil
		default:
			return Event{}, ErrSourceClosed
		}
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Handlers and the suspend point
// ---------------------------------------------------------------------------

type eventKey struct {
	source string
	kind   string
}

// EventSourceID is implemented by host payloads that can be named as an
// event source in a handle command.
type EventSourceID interface {
	EventSourceID() string
}

func (m *Machine) sourceKey(v Value) (string, bool) {
	v = m.heap.Unpack(v)
	switch v.Tag() {
	case TagString:
		return v.str, true
	case TagInt:
		return strconv.FormatInt(v.num, 10), true
	}
	if src, ok := v.Payload().(EventSourceID); ok {
		return src.EventSourceID(), true
	}
	return "", false
}

// HandleEvent registers fn for events of kind from source.
func (m *Machine) HandleEvent(source, kind string, fn *Function) {
	m.handlers[eventKey{source: source, kind: kind}] = fn
}

// cmdHandle implements handle(source, kind, fn).
func (m *Machine) cmdHandle(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 3) {
		return
	}
	fnVal := m.fetchValue(&ins.Args[2], f)
	kindVal := m.fetchValue(&ins.Args[1], f)
	srcVal := m.fetch(&ins.Args[0], f, false)
	if f.failed() {
		return
	}
	fn, err := fnVal.AsFunction()
	if err != nil {
		f.setError(TypeError, "Event handler is not a function - %s", fnVal.TypeID())
		return
	}
	kind, err := kindVal.AsString()
	if err != nil {
		f.setError(TypeError, "Event kind must be a string - %s", kindVal.TypeID())
		return
	}
	source, ok := m.sourceKey(srcVal)
	if !ok {
		f.setError(TypeError, "Invalid event source - %s", m.heap.Unpack(srcVal).TypeID())
		return
	}
	m.HandleEvent(source, kind, fn)
}

// nextEvent takes the pending event, or asks the source for one. Only a
// freezing machine blocks.
func (m *Machine) nextEvent() (Event, bool) {
	if m.pending != nil {
		ev := *m.pending
		m.pending = nil
		return ev, true
	}
	if m.source == nil {
		return Event{}, false
	}
	if !m.freezing {
		return m.source.Poll()
	}
	ev, err := m.source.Wait(m.ctx)
	if err != nil {
		if errors.Is(err, ErrSourceClosed) {
			m.log.Infof("machine %s: event source closed", m.id)
			m.hanging = false
			return Event{}, false
		}
		m.err = err
		return Event{}, false
	}
	return ev, true
}

// suspend is the only point where the machine yields to its event source.
// It reports whether a handler frame was pushed.
func (m *Machine) suspend() bool {
	if m.source == nil && m.pending == nil {
		if m.freezing {
			m.log.Warningf("machine %s: waiting without an event source", m.id)
			m.hanging = false
		}
		return false
	}
	for {
		ev, ok := m.nextEvent()
		if !ok {
			return false
		}
		if m.dispatchEvent(ev) {
			return true
		}
		if !m.freezing {
			return false
		}
	}
}

// holdEvent moves one event from the source into the pending slot while a
// handler runs, so it is delivered first once the handler returns.
func (m *Machine) holdEvent() {
	if m.pending != nil || m.source == nil {
		return
	}
	if ev, ok := m.source.Poll(); ok {
		m.pending = &ev
	}
}

// dispatchEvent runs the handler registered for ev. Events without a
// handler are dropped.
func (m *Machine) dispatchEvent(ev Event) bool {
	fn, ok := m.handlers[eventKey{source: ev.Source, kind: ev.Kind}]
	if !ok {
		m.log.Debugf("machine %s: no handler for %s/%s", m.id, ev.Source, ev.Kind)
		return false
	}
	if len(fn.Params) != len(ev.Args) {
		m.log.Warningf("machine %s: invalid function for event %s/%s: want %d argument(s), have %d",
			m.id, ev.Source, ev.Kind, len(fn.Params), len(ev.Args))
		return false
	}
	args := make(map[string]Value, len(ev.Args)+1)
	for i, p := range fn.Params {
		args[p] = m.heap.Copy(ev.Args[i])
	}
	if !ev.Context.IsNull() {
		args[ContextBinding] = ev.Context
	}

	caller := m.top()
	switch fn.kind {
	case ImplNative:
		res := fn.native(&Args{m: args, machine: m})
		if res.Level == LevelError {
			m.log.Errorf("machine %s: event handler %s: %s", m.id, fn.ID, res.Detail)
		}
		m.heap.Drop(res.Value)
		return false
	case ImplExternal:
		ctx := &ExternalContext{Args: args, machine: m}
		if status := fn.external(ctx); status < 1 {
			m.log.Errorf("machine %s: event handler %s failed with status %d", m.id, fn.ID, status)
		}
		return false
	}

	if !m.pushFunction(fn, args, caller) {
		caller.err = nil
		m.log.Errorf("machine %s: cannot run event handler %s: call stack is full", m.id, fn.ID)
		return false
	}
	f := m.top()
	f.eventProcessing = true
	f.eventRoot = true
	m.freezing = false
	return true
}
