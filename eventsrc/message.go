// Package eventsrc feeds events from a websocket connection into a
// machine's event source.
package eventsrc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vgxbj/Kagami/vm"
)

// Message is the JSON form of an event:
//
//	{"id": "...", "source": "main_window", "kind": "click", "args": [1, "ok"], "context": "main_window"}
//
// id is optional. Args may hold numbers, strings, booleans, null and
// arrays of those.
type Message struct {
	ID      string `json:"id,omitempty"`
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Args    []any  `json:"args,omitempty"`
	Context any    `json:"context,omitempty"`
}

// Decode parses one message into an event.
func Decode(data []byte) (vm.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return vm.Event{}, fmt.Errorf("eventsrc: decode message: %w", err)
	}
	if msg.Source == "" || msg.Kind == "" {
		return vm.Event{}, errors.New("eventsrc: message needs source and kind")
	}

	ev := vm.Event{ID: msg.ID, Source: msg.Source, Kind: msg.Kind}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	for i, raw := range msg.Args {
		v, err := toValue(raw)
		if err != nil {
			return vm.Event{}, fmt.Errorf("eventsrc: arg %d: %w", i, err)
		}
		ev.Args = append(ev.Args, v)
	}
	ctx, err := toValue(msg.Context)
	if err != nil {
		return vm.Event{}, fmt.Errorf("eventsrc: context: %w", err)
	}
	ev.Context = ctx
	return ev, nil
}

func toValue(raw any) (vm.Value, error) {
	switch x := raw.(type) {
	case nil:
		return vm.Null(), nil
	case bool:
		return vm.Bool(x), nil
	case string:
		return vm.String(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return vm.Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return vm.Null(), fmt.Errorf("bad number %s", x)
		}
		return vm.Float(f), nil
	case []any:
		elems := make([]vm.Value, len(x))
		for i, e := range x {
			v, err := toValue(e)
			if err != nil {
				return vm.Null(), err
			}
			elems[i] = v
		}
		return vm.ArrayOf(elems...), nil
	}
	return vm.Null(), fmt.Errorf("unsupported value %T", raw)
}

// Encode renders ev as a message.
func Encode(ev vm.Event) ([]byte, error) {
	msg := Message{ID: ev.ID, Source: ev.Source, Kind: ev.Kind}
	for i, v := range ev.Args {
		raw, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("eventsrc: arg %d: %w", i, err)
		}
		msg.Args = append(msg.Args, raw)
	}
	ctx, err := fromValue(ev.Context)
	if err != nil {
		return nil, fmt.Errorf("eventsrc: context: %w", err)
	}
	msg.Context = ctx
	return json.Marshal(msg)
}

func fromValue(v vm.Value) (any, error) {
	switch v.Tag() {
	case vm.TagNull:
		return nil, nil
	case vm.TagInt:
		return v.AsInt()
	case vm.TagFloat:
		return v.AsFloat()
	case vm.TagBool:
		return v.AsBool()
	case vm.TagString, vm.TagWideString:
		return v.String(), nil
	case vm.TagArray:
		a, err := v.AsArray()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(a.Elems))
		for i, e := range a.Elems {
			if out[i], err = fromValue(e); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value %s", v.TypeID())
}
