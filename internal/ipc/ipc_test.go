package ipc_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TonyMarkham/opencode-tauri/internal/appconfig"
	"github.com/TonyMarkham/opencode-tauri/internal/descriptor"
	"github.com/TonyMarkham/opencode-tauri/internal/ipc"
	"github.com/TonyMarkham/opencode-tauri/internal/state"
)

type wireEnvelope struct {
	RequestID uint64          `json:"request_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

func startServer(t *testing.T, token string) (*ipc.Server, *state.Actor, *appconfig.Actor) {
	t.Helper()
	stateActor := state.New()
	t.Cleanup(stateActor.Stop)
	configActor := appconfig.New(t.TempDir(), appconfig.Default(), appconfig.Catalog{})
	t.Cleanup(configActor.Stop)

	srv, err := ipc.New(0, token, ipc.Deps{StateActor: stateActor, ConfigActor: configActor, Binary: "assistant"})
	if err != nil {
		t.Fatalf("ipc.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
	})
	go func() { _ = srv.Serve(ctx) }()
	return srv, stateActor, configActor
}

func dial(t *testing.T, srv *ipc.Server) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/", srv.Addr().String())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, requestID uint64, kind string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(wireEnvelope{RequestID: requestID, Type: kind, Payload: marshalRaw(t, payload)})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func marshalRaw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	if v == nil {
		return json.RawMessage("{}")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got %d", kind)
	}
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func authenticate(t *testing.T, conn *websocket.Conn, token string) wireEnvelope {
	t.Helper()
	sendEnvelope(t, conn, 1, "AuthHandshake", map[string]string{"token": token})
	return readEnvelope(t, conn)
}

func TestAuthAcceptedThenListSessions(t *testing.T) {
	backendSrv := httptest.NewServer(sessionListHandler())
	defer backendSrv.Close()

	srv, stateActor, _ := startServer(t, "test-token-12345")
	if _, err := stateActor.SetServer(mustDescriptor(t, backendSrv.URL)); err != nil {
		t.Fatal(err)
	}

	conn := dial(t, srv)
	resp := authenticate(t, conn, "test-token-12345")
	if resp.RequestID != 1 || resp.Type != "AuthHandshakeResponse" {
		t.Fatalf("unexpected handshake reply: %+v", resp)
	}
	var authPayload struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Payload, &authPayload); err != nil || !authPayload.Success {
		t.Fatalf("expected successful handshake, got %s (err=%v)", resp.Payload, err)
	}

	sendEnvelope(t, conn, 2, "ListSessions", nil)
	reply := readEnvelope(t, conn)
	if reply.RequestID != 2 || reply.Type != "SessionList" {
		t.Fatalf("unexpected list-sessions reply: %+v", reply)
	}
}

func TestAuthRejectedClosesConnection(t *testing.T) {
	srv, _, _ := startServer(t, "test-token-12345")
	conn := dial(t, srv)

	resp := authenticate(t, conn, "wrong")
	var payload struct {
		Success bool    `json:"success"`
		Error   *string `json:"error"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Success {
		t.Fatal("expected handshake rejection")
	}
	if payload.Error == nil || !strings.Contains(*payload.Error, "Invalid authentication token") {
		t.Fatalf("unexpected error message: %+v", payload.Error)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after rejected handshake")
	}
}

func TestNonAuthFirstFrameClosesConnection(t *testing.T) {
	srv, _, _ := startServer(t, "test-token-12345")
	conn := dial(t, srv)

	sendEnvelope(t, conn, 1, "ListSessions", nil)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close when first frame is not AuthHandshake")
	}
}

func TestDoubleHandshakeRepliesAuthErrorButStaysOpen(t *testing.T) {
	backendSrv := httptest.NewServer(sessionListHandler())
	defer backendSrv.Close()

	srv, stateActor, _ := startServer(t, "test-token-12345")
	if _, err := stateActor.SetServer(mustDescriptor(t, backendSrv.URL)); err != nil {
		t.Fatal(err)
	}

	conn := dial(t, srv)
	authenticate(t, conn, "test-token-12345")

	sendEnvelope(t, conn, 5, "AuthHandshake", map[string]string{"token": "test-token-12345"})
	reply := readEnvelope(t, conn)
	if reply.Type != "Error" {
		t.Fatalf("expected Error reply to second handshake, got %+v", reply)
	}
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(reply.Payload, &errPayload); err != nil {
		t.Fatal(err)
	}
	if errPayload.Code != "AuthError" || !strings.Contains(errPayload.Message, "already completed") {
		t.Fatalf("unexpected error payload: %+v", errPayload)
	}

	sendEnvelope(t, conn, 6, "ListSessions", nil)
	followUp := readEnvelope(t, conn)
	if followUp.Type != "SessionList" {
		t.Fatalf("expected connection to remain usable, got %+v", followUp)
	}
}

func TestStopWithNoBindingRepliesInternalError(t *testing.T) {
	srv, _, _ := startServer(t, "test-token-12345")
	conn := dial(t, srv)
	authenticate(t, conn, "test-token-12345")

	sendEnvelope(t, conn, 2, "StopServer", nil)
	reply := readEnvelope(t, conn)
	if reply.Type != "Error" {
		t.Fatalf("expected Error reply, got %+v", reply)
	}
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(reply.Payload, &errPayload); err != nil {
		t.Fatal(err)
	}
	if errPayload.Code != "InternalError" || !strings.Contains(errPayload.Message, "No server connected") {
		t.Fatalf("unexpected error payload: %+v", errPayload)
	}
}

func TestDecodeFailureRepliesInvalidMessageWithZeroRequestID(t *testing.T) {
	srv, _, _ := startServer(t, "test-token-12345")
	conn := dial(t, srv)
	authenticate(t, conn, "test-token-12345")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	reply := readEnvelope(t, conn)
	if reply.Type != "Error" || reply.RequestID != 0 {
		t.Fatalf("expected Error with request_id 0, got %+v", reply)
	}
}

func TestGetConfigIncludesCatalogAndAppConfig(t *testing.T) {
	stateActor := state.New()
	t.Cleanup(stateActor.Stop)
	configActor := appconfig.New(t.TempDir(), appconfig.Default(), appconfig.Catalog{})
	t.Cleanup(configActor.Stop)
	catalog := appconfig.Catalog{Models: []appconfig.Model{{ID: "gpt-5", Name: "GPT-5", ProviderID: "openai"}}}

	srv, err := ipc.New(0, "test-token-12345", ipc.Deps{StateActor: stateActor, ConfigActor: configActor, Binary: "assistant", Catalog: catalog})
	if err != nil {
		t.Fatalf("ipc.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() { cancel(); _ = srv.Close() })
	go func() { _ = srv.Serve(ctx) }()

	conn := dial(t, srv)
	authenticate(t, conn, "test-token-12345")

	sendEnvelope(t, conn, 2, "GetConfig", nil)
	reply := readEnvelope(t, conn)
	if reply.Type != "GetConfigResponse" {
		t.Fatalf("unexpected reply type: %+v", reply)
	}
	var payload struct {
		AppConfigJSON    string `json:"appConfigJson"`
		ModelsConfigJSON string `json:"modelsConfigJson"`
	}
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(payload.ModelsConfigJSON, "gpt-5") {
		t.Fatalf("expected models config to include catalog contents, got %s", payload.ModelsConfigJSON)
	}
	if payload.AppConfigJSON == "" {
		t.Fatal("expected non-empty app config json")
	}
}

func sessionListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}
}

func mustDescriptor(t *testing.T, baseURL string) descriptor.Server {
	t.Helper()
	d, err := descriptor.NewBuilder().
		PID(1234).
		Port(19999).
		BaseURL(baseURL).
		Name("assistant").
		Command("assistant serve").
		Owned(false).
		Build()
	if err != nil {
		t.Fatalf("build descriptor: %v", err)
	}
	return d
}
