package eventsrc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"

	"github.com/vgxbj/Kagami/vm"
)

// Sink receives decoded events. *vm.ChanSource satisfies it.
type Sink interface {
	Send(ev vm.Event) bool
}

// Feed reads event messages from a websocket server.
type Feed struct {
	url    string
	sink   Sink
	dialer websocket.Dialer
	log    commonlog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	received atomic.Int64
	dropped  atomic.Int64
}

// NewFeed creates a feed from url into sink.
func NewFeed(url string, sink Sink) *Feed {
	return &Feed{
		url:    url,
		sink:   sink,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    commonlog.GetLogger("kagami.eventsrc"),
	}
}

// URL returns the server address.
func (f *Feed) URL() string { return f.url }

// Received returns the number of events handed to the sink.
func (f *Feed) Received() int64 { return f.received.Load() }

// Dropped returns the number of messages that could not be decoded.
func (f *Feed) Dropped() int64 { return f.dropped.Load() }

// Dial connects to the server.
func (f *Feed) Dial(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("eventsrc: dial %s: %w", f.url, err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.log.Infof("connected to %s", f.url)
	return nil
}

func (f *Feed) connection() *websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

// Run delivers messages to the sink until the server closes the
// connection, the sink stops accepting events, or ctx is done. A normal
// close returns nil.
func (f *Feed) Run(ctx context.Context) error {
	conn := f.connection()
	if conn == nil {
		return errors.New("eventsrc: feed is not connected")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Infof("%s closed the feed", f.url)
				return nil
			}
			return fmt.Errorf("eventsrc: read %s: %w", f.url, err)
		}

		ev, err := Decode(data)
		if err != nil {
			f.dropped.Add(1)
			f.log.Warningf("dropping message: %s", err)
			continue
		}
		if !f.sink.Send(ev) {
			f.log.Debugf("sink closed, stopping feed")
			return nil
		}
		f.received.Add(1)
	}
}

// Close sends a close frame and closes the connection.
func (f *Feed) Close() error {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}
