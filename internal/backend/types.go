package backend

import "time"

// Session is the normalized (internal-naming) view of a backend chat
// session, as returned by ListSessions and CreateSession.
type Session struct {
	ID        string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageInfo is the normalized response to SendMessage.
type MessageInfo struct {
	ID        string                   `json:"message_id"`
	SessionID string                   `json:"session_id"`
	Parts     []map[string]interface{} `json:"parts"`
}
