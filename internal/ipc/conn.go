package ipc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

// connState names the per-connection state machine's states.
type connState int

const (
	stateAwaitAuth connState = iota
	stateAuthenticated
	stateClosed
)

// connection holds one accepted, upgraded WebSocket peer through its
// whole lifetime: auth gate, then the authenticated dispatch loop.
// Writes are serialized by writeMu since the dispatch loop may, in
// principle, be extended to answer requests out of receive order.
type connection struct {
	ws    *websocket.Conn
	token string
	deps  Deps

	writeMu sync.Mutex
	state   connState
}

func newConnection(ws *websocket.Conn, token string, deps Deps) *connection {
	return &connection{ws: ws, token: token, deps: deps, state: stateAwaitAuth}
}

func (c *connection) run() {
	defer c.ws.Close()

	if !c.awaitAuth() {
		return
	}

	for {
		kind, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		var env ClientEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError(0, ErrInvalidMessage, "failed to decode envelope")
			continue
		}

		if env.Type == kindAuthHandshake {
			c.sendError(env.RequestID, ErrAuthError, "Auth handshake already completed")
			continue
		}

		c.handleAuthenticated(env)
	}
}

// awaitAuth implements the [Accepted]->[AwaitAuth]->[Authenticated]
// transitions: the first binary frame must be a valid AuthHandshake
// naming the configured token. A well-formed handshake with the wrong
// token gets an AuthHandshakeResponse{success:false} before the
// connection closes; any other bad first frame closes it silently.
func (c *connection) awaitAuth() bool {
	kind, raw, err := c.ws.ReadMessage()
	if err != nil {
		return false
	}
	if kind != websocket.BinaryMessage {
		return false
	}

	var env ClientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	if env.Type != kindAuthHandshake {
		return false
	}

	var payload authHandshakePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return false
	}

	if payload.Token != c.token {
		if c.deps.Metrics != nil {
			c.deps.Metrics.AuthFailures.Inc()
		}
		msg := "Invalid authentication token"
		c.send(ServerEnvelope{
			RequestID: 1,
			Type:      kindAuthHandshakeResponse,
			Payload:   authHandshakeResponsePayload{Success: false, Error: &msg},
		})
		return false
	}

	c.send(ServerEnvelope{
		RequestID: 1,
		Type:      kindAuthHandshakeResponse,
		Payload:   authHandshakeResponsePayload{Success: true},
	})
	c.state = stateAuthenticated
	return true
}

func (c *connection) handleAuthenticated(env ClientEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Tracef("dispatch kind=%s request_id=%d", env.Type, env.RequestID)
	if c.deps.Metrics != nil {
		c.deps.Metrics.DispatchCalls.WithLabelValues(env.Type).Inc()
	}

	reply, err := dispatch(ctx, c.deps, env)
	if err != nil {
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordDispatchError(err)
		}
		if ipcErr, ok := err.(*errs.Error); ok {
			logger.Warningf("dispatch error [%s] family=%s variant=%s: %s", env.Type, ipcErr.Family, ipcErr.Variant, ipcErr.Message)
		} else {
			logger.Warningf("dispatch error [%s]: %v", env.Type, err)
		}
		c.sendError(env.RequestID, ErrInternalError, err.Error())
		return
	}
	if reply == nil {
		c.sendError(env.RequestID, ErrNotImplemented, "unrecognized payload kind: "+env.Type)
		return
	}

	c.send(ServerEnvelope{RequestID: env.RequestID, Type: reply.Type, Payload: reply.Payload})
}

func (c *connection) send(env ServerEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		logger.Errorf("failed to encode ipc envelope: %v", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		logger.Debugf("ipc write failed, peer likely gone: %v", err)
	}
}

func (c *connection) sendError(requestID uint64, code, message string) {
	c.send(ServerEnvelope{
		RequestID: requestID,
		Type:      kindError,
		Payload:   errorPayload{Code: code, Message: message},
	})
}
