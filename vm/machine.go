package vm

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// Version and CodeName are reported by the version and codename commands.
const (
	Version  = "0.9.0"
	CodeName = "Shiori"
)

// DefaultMaxCallDepth bounds the call stack of a machine.
const DefaultMaxCallDepth = 10000

// ---------------------------------------------------------------------------
// Machine: bytecode execution engine
// ---------------------------------------------------------------------------

// Machine executes a block. It exclusively owns its call, frame and scope
// stacks; the heap and the outermost scope layer may be shared with a
// parent machine running a script that loaded this one.
type Machine struct {
	id     uuid.UUID
	reg    *Registry
	heap   *Heap
	scopes *ScopeStack
	calls  []*Block
	frames []*Frame

	handlers map[eventKey]*Function
	source   EventSource
	pending  *Event
	hanging  bool
	freezing bool

	offensive bool
	refresh   func()

	loader   ScriptLoader
	config   ConfigLoader
	included map[string]bool

	log       commonlog.Logger
	maxDepth  int
	peakDepth int

	ctx context.Context
	err error
}

// Option configures a Machine.
type Option func(*Machine)

// WithEventSource sets the source polled by the event loop.
func WithEventSource(src EventSource) Option {
	return func(m *Machine) { m.source = src }
}

// WithScriptLoader sets the collaborator resolving `using` of scripts.
func WithScriptLoader(l ScriptLoader) Option {
	return func(m *Machine) { m.loader = l }
}

// WithConfigLoader sets the collaborator resolving layout files.
func WithConfigLoader(c ConfigLoader) Option {
	return func(m *Machine) { m.config = c }
}

// WithLogger replaces the default "kagami.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithMaxCallDepth bounds the call stack.
func WithMaxCallDepth(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxDepth = n
		}
	}
}

// WithHeap makes the machine allocate from heap.
func WithHeap(heap *Heap) Option {
	return func(m *Machine) { m.heap = heap }
}

// WithRefresh installs the hook called every tick in offensive mode.
func WithRefresh(fn func()) Option {
	return func(m *Machine) { m.refresh = fn }
}

// WithOffensive starts the machine in offensive mode, as if the script
// had run offensive_mode(true).
func WithOffensive(on bool) Option {
	return func(m *Machine) { m.offensive = on }
}

// NewMachine creates a machine that will run block with the natives of reg.
func NewMachine(reg *Registry, block *Block, opts ...Option) *Machine {
	if reg == nil {
		reg = DefaultRegistry()
	}
	m := &Machine{
		id:       uuid.New(),
		reg:      reg,
		handlers: make(map[eventKey]*Function),
		included: make(map[string]bool),
		log:      commonlog.GetLogger("kagami.vm"),
		maxDepth: DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.heap == nil {
		m.heap = NewHeap()
	}
	if m.scopes == nil {
		m.scopes = NewScopeStack(m.heap)
	}
	if block != nil {
		m.calls = []*Block{block}
	}
	return m
}

// newSubMachine creates a machine for a loaded script. It shares the heap,
// the outermost scope layer and the loaded-script set with m.
func (m *Machine) newSubMachine(block *Block) *Machine {
	sub := &Machine{
		id:       uuid.New(),
		reg:      m.reg,
		heap:     m.heap,
		scopes:   newDelegatedScope(m.heap, m.scopes.Base()),
		calls:    []*Block{block},
		handlers: m.handlers,
		loader:   m.loader,
		config:   m.config,
		included: m.included,
		log:      m.log,
		maxDepth: m.maxDepth,
		refresh:  m.refresh,
	}
	return sub
}

// ID returns the machine's instance id.
func (m *Machine) ID() uuid.UUID { return m.id }

// Registry returns the registry the machine was built with.
func (m *Machine) Registry() *Registry { return m.reg }

// Heap returns the machine's heap.
func (m *Machine) Heap() *Heap { return m.heap }

// Scopes returns the machine's scope stack.
func (m *Machine) Scopes() *ScopeStack { return m.scopes }

// CallDepth returns the current call stack depth.
func (m *Machine) CallDepth() int { return len(m.calls) }

// PeakCallDepth returns the deepest call stack seen so far.
func (m *Machine) PeakCallDepth() int { return m.peakDepth }

// Hanging reports whether the machine is waiting for events.
func (m *Machine) Hanging() bool { return m.hanging }

// Err returns the error that stopped the machine, if any.
func (m *Machine) Err() error { return m.err }

// Lookup returns the unpacked value bound to name.
func (m *Machine) Lookup(name string) (Value, bool) {
	h, ok := m.scopes.Find(name)
	if !ok {
		return Null(), false
	}
	return m.heap.Unpack(RefValue(h)), true
}

// Global returns the unpacked value bound to name in the outermost layer.
func (m *Machine) Global(name string) (Value, bool) {
	h, ok := m.scopes.Base().Find(name)
	if !ok {
		return Null(), false
	}
	return m.heap.Unpack(RefValue(h)), true
}

// SetGlobal binds name in the outermost layer.
func (m *Machine) SetGlobal(name string, v Value) {
	m.scopes.createIn(m.scopes.Base(), name, v)
}

func (m *Machine) top() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// Run executes the machine's block until it finishes, fails, or ctx is
// cancelled while waiting for events.
func (m *Machine) Run(ctx context.Context) error {
	if len(m.calls) == 0 {
		return errors.New("machine has no block to run")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.ctx = ctx
	m.log.Debugf("machine %s: running %q", m.id, m.calls[0].Name)
	m.run(nil)
	if m.err != nil {
		m.log.Errorf("machine %s: %s", m.id, m.err)
	}
	return m.err
}
