package ipc

import "encoding/json"

// ClientEnvelope is one client→server frame: a request id and a
// payload whose shape depends on Type. Payload is left raw until the
// dispatch table knows which concrete struct to decode it into.
type ClientEnvelope struct {
	RequestID uint64          `json:"request_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// ServerEnvelope is one server→client frame.
type ServerEnvelope struct {
	RequestID uint64      `json:"request_id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
}

// Payload kind names, shared by both directions of the envelope.
const (
	kindAuthHandshake         = "AuthHandshake"
	kindAuthHandshakeResponse = "AuthHandshakeResponse"
	kindDiscoverServer        = "DiscoverServer"
	kindDiscoverServerResp    = "DiscoverServerResponse"
	kindSpawnServer           = "SpawnServer"
	kindSpawnServerResp       = "SpawnServerResponse"
	kindCheckHealth           = "CheckHealth"
	kindCheckHealthResp       = "CheckHealthResponse"
	kindStopServer            = "StopServer"
	kindStopServerResp        = "StopServerResponse"
	kindListSessions          = "ListSessions"
	kindSessionList           = "SessionList"
	kindCreateSession         = "CreateSession"
	kindSessionInfo           = "SessionInfo"
	kindDeleteSession         = "DeleteSession"
	kindDeleteSessionResp     = "DeleteSessionResponse"
	kindGetConfig             = "GetConfig"
	kindGetConfigResp         = "GetConfigResponse"
	kindUpdateConfig          = "UpdateConfig"
	kindUpdateConfigResp      = "UpdateConfigResponse"
	kindSendMessage           = "SendMessage"
	kindError                 = "Error"
)

// Error codes sent in Error payloads.
const (
	ErrAuthError      = "AuthError"
	ErrInvalidMessage = "InvalidMessage"
	ErrInternalError  = "InternalError"
	ErrNotImplemented = "NotImplemented"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authHandshakePayload struct {
	Token string `json:"token"`
}

type authHandshakeResponsePayload struct {
	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`
}

type spawnServerPayload struct {
	Port *uint16 `json:"port,omitempty"`
}

type serverDescriptorPayload struct {
	PID     int    `json:"pid"`
	Port    uint16 `json:"port"`
	BaseURL string `json:"baseUrl"`
	Name    string `json:"name"`
	Command string `json:"command"`
	Owned   bool   `json:"owned"`
}

type serverResponsePayload struct {
	Server *serverDescriptorPayload `json:"server,omitempty"`
}

type checkHealthResponsePayload struct {
	Healthy bool `json:"healthy"`
}

type successPayload struct {
	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`
}

type createSessionPayload struct {
	Title *string `json:"title,omitempty"`
}

type deleteSessionPayload struct {
	SessionID string `json:"sessionID"`
}

type sessionListPayload struct {
	Sessions []sessionPayload `json:"sessions"`
}

type sessionPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type getConfigResponsePayload struct {
	AppConfigJSON    string `json:"appConfigJson"`
	ModelsConfigJSON string `json:"modelsConfigJson"`
}

type updateConfigPayload struct {
	ConfigJSON string `json:"configJson"`
}

type sendMessageModel struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

type sendMessagePayload struct {
	SessionID string           `json:"sessionID"`
	Text      string           `json:"text"`
	Model     sendMessageModel `json:"model"`
	Agent     *string          `json:"agent,omitempty"`
}

type messageInfoPayload struct {
	ID        string                   `json:"id"`
	SessionID string                   `json:"sessionID"`
	Parts     []map[string]interface{} `json:"parts"`
}
