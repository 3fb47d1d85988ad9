// Package backend is a thin typed wrapper over the backend's REST
// surface. Every outgoing body is produced by codec.DenormalizeJSON and
// every incoming body passes through codec.NormalizeJSON, so the rest
// of this broker only ever sees internal (snake_case) field names.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TonyMarkham/opencode-tauri/internal/codec"
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

const defaultTimeout = 30 * time.Second

// Client is a thin HTTP wrapper bound to a single backend base URL.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	directoryHdr  string
	directoryName string
}

// New validates baseURL and returns a Client bound to it. directory, if
// non-empty, is sent as the X-Working-Directory header on every
// request.
func New(baseURL, directory string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.Wrap(errs.FamilyHTTPClient, "UrlParseError", "invalid backend base url: "+baseURL, err)
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: defaultTimeout},
		directoryHdr:  "X-Working-Directory",
		directoryName: directory,
	}, nil
}

// BaseURL returns the URL this client is bound to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		denorm := codec.DenormalizeJSON(toJSONValue(body))
		raw, err := json.Marshal(denorm)
		if err != nil {
			return nil, errs.Wrap(errs.FamilyHTTPClient, "JsonError", "failed to encode request body", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errs.Wrap(errs.FamilyHTTPClient, "HttpError", "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.directoryName != "" {
		req.Header.Set(c.directoryHdr, c.directoryName)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		httpErr := errs.Wrap(errs.FamilyHTTPClient, "HttpError", "request failed", err)
		if ctx.Err() == nil {
			// Do() failed without the caller cancelling: DNS, refused,
			// reset, or our own client timeout — all transient-network,
			// not a permanent rejection.
			httpErr.WithNetworkFlags(false, true)
		}
		return nil, httpErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.FamilyHTTPClient, "HttpError", "failed to read response body", err)
	}

	if resp.StatusCode >= 300 {
		return nil, errs.New(errs.FamilyHTTPClient, "ServerError",
			fmt.Sprintf("HTTP %d - %s", resp.StatusCode, string(respBody))).WithHTTPStatus(resp.StatusCode)
	}
	return respBody, nil
}

func toJSONValue(v interface{}) interface{} {
	raw, _ := json.Marshal(v)
	var out interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func decodeNormalized(raw []byte, out interface{}) error {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return errs.Wrap(errs.FamilyHTTPClient, "JsonError", "failed to decode response", err)
	}
	normalized := codec.NormalizeJSON(generic)
	reencoded, err := json.Marshal(normalized)
	if err != nil {
		return errs.Wrap(errs.FamilyHTTPClient, "JsonError", "failed to re-encode normalized response", err)
	}
	if err := json.Unmarshal(reencoded, out); err != nil {
		return errs.Wrap(errs.FamilyHTTPClient, "JsonError", "failed to decode normalized response", err)
	}
	return nil
}

// ListSessions returns every session known to the backend.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	raw, err := c.do(ctx, http.MethodGet, "/session", nil)
	if err != nil {
		return nil, err
	}
	var sessions []Session
	if err := decodeNormalized(raw, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession creates a new session, optionally titled.
func (c *Client) CreateSession(ctx context.Context, title *string) (Session, error) {
	body := map[string]interface{}{}
	if title != nil {
		body["title"] = *title
	}
	raw, err := c.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return Session{}, err
	}
	var session Session
	if err := decodeNormalized(raw, &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// DeleteSession deletes the named session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(sessionID), nil)
	return err
}

// SyncAPIKey PUTs a provider credential into the backend's auth store.
func (c *Client) SyncAPIKey(ctx context.Context, provider, key string) error {
	body := map[string]interface{}{"type": "api", "key": key}
	_, err := c.do(ctx, http.MethodPut, "/auth/"+url.PathEscape(provider), body)
	return err
}

// SendMessage posts one chat turn and returns the normalized response.
// agent is optional; pass "" to omit it.
func (c *Client) SendMessage(ctx context.Context, sessionID, text, modelID, providerID, agent string) (MessageInfo, error) {
	body := map[string]interface{}{
		"modelID":    modelID,
		"providerID": providerID,
		"parts": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	}
	if agent != "" {
		body["agent"] = agent
	}

	raw, err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/message", body)
	if err != nil {
		return MessageInfo{}, err
	}

	var generic map[string]interface{}
	if jsonErr := json.Unmarshal(raw, &generic); jsonErr != nil {
		return MessageInfo{}, errs.Wrap(errs.FamilyHTTPClient, "JsonError", "failed to decode send_message response", jsonErr)
	}

	info, _ := generic["info"].(map[string]interface{})
	if info == nil {
		info = map[string]interface{}{}
	}
	partsRaw, _ := generic["parts"].([]interface{})
	transformed := make([]map[string]interface{}, 0, len(partsRaw))
	for _, p := range partsRaw {
		part, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		kind, _ := part["type"].(string)
		transformed = append(transformed, map[string]interface{}{
			snakeCase(kind): part,
		})
	}
	info["parts"] = transformed

	normalized := codec.NormalizeJSON(info)
	reencoded, err := json.Marshal(normalized)
	if err != nil {
		return MessageInfo{}, errs.Wrap(errs.FamilyHTTPClient, "JsonError", "failed to re-encode message info", err)
	}
	var result MessageInfo
	if err := json.Unmarshal(reencoded, &result); err != nil {
		return MessageInfo{}, errs.Wrap(errs.FamilyHTTPClient, "JsonError", "failed to decode message info", err)
	}
	return result, nil
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
