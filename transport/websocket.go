// Package transport implements the websocket client side of the relay
// protocol. Envelopes travel as JSON text frames; decoding and payload
// validation happen here so the engine only ever sees typed events.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-mesh/domain/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	inboundBacklog = 256
)

// WebsocketTransport is a single persistent connection to the relay. The
// read pump runs on its own goroutine from Dial until the connection
// drops; Send is safe for concurrent use.
type WebsocketTransport struct {
	log    *slog.Logger
	conn   *websocket.Conn
	events chan event.Inbound

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay websocket endpoint, authenticating with a
// bearer token. The returned transport is already pumping events.
func Dial(ctx context.Context, url, token string, log *slog.Logger) (*WebsocketTransport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	t := &WebsocketTransport{
		log:    log,
		conn:   conn,
		events: make(chan event.Inbound, inboundBacklog),
	}
	go t.readPump()
	go t.pingLoop()
	return t, nil
}

// Send marshals the envelope onto the wire. Concurrent writers are
// serialized; gorilla connections support one writer at a time.
func (t *WebsocketTransport) Send(ctx context.Context, env event.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	return nil
}

// Events returns the inbound event stream. The last element before close
// is always a ConnectionLost event, whether the drop was local or remote.
func (t *WebsocketTransport) Events() <-chan event.Inbound {
	return t.events
}

func (t *WebsocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		deadline := time.Now().Add(writeWait)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *WebsocketTransport) readPump() {
	defer func() {
		_ = t.Close()
		t.events <- event.Inbound{Type: event.TypeConnectionLost, Event: event.ConnectionLost{}}
		close(t.events)
	}()

	t.conn.SetReadLimit(1 << 20)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env event.Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn("Connection dropped", "error", err)
			}
			return
		}
		decoded, err := event.Decode(env)
		if err != nil {
			// Bad frames are dropped, not fatal. A misbehaving peer must
			// not take the whole connection down.
			t.log.Warn("Dropping undecodable frame", "type", env.Type, "error", err)
			continue
		}
		select {
		case t.events <- event.Inbound{Type: env.Type, From: env.From, Event: decoded}:
		default:
			t.log.Error("Inbound backlog full, dropping event", "type", env.Type)
		}
	}
}

func (t *WebsocketTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		t.writeMu.Lock()
		err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		t.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}
