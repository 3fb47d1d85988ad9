package ipc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/clock"

	"github.com/TonyMarkham/opencode-tauri/internal/appconfig"
	"github.com/TonyMarkham/opencode-tauri/internal/descriptor"
	"github.com/TonyMarkham/opencode-tauri/internal/discovery"
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
	"github.com/TonyMarkham/opencode-tauri/internal/spawn"
)

// reply is what a dispatch handler produces on success; dispatch
// itself owns translating a nil reply (unknown kind) and a non-nil
// error into the appropriate Error envelope.
type reply struct {
	Type    string
	Payload interface{}
}

// dispatch is the payload-kind dispatch table. A nil, nil return
// means the payload kind is unrecognized (caller replies
// Error{NotImplemented}); a non-nil error means the caller replies
// Error{InternalError}.
func dispatch(ctx context.Context, deps Deps, env ClientEnvelope) (*reply, error) {
	switch env.Type {
	case kindDiscoverServer:
		return dispatchDiscoverServer(ctx, deps)
	case kindSpawnServer:
		return dispatchSpawnServer(ctx, deps, env.Payload)
	case kindCheckHealth:
		return dispatchCheckHealth(ctx, deps)
	case kindStopServer:
		return dispatchStopServer(ctx, deps)
	case kindListSessions:
		return dispatchListSessions(ctx, deps)
	case kindCreateSession:
		return dispatchCreateSession(ctx, deps, env.Payload)
	case kindDeleteSession:
		return dispatchDeleteSession(ctx, deps, env.Payload)
	case kindGetConfig:
		return dispatchGetConfig(deps)
	case kindUpdateConfig:
		return dispatchUpdateConfig(deps, env.Payload)
	case kindSendMessage:
		return dispatchSendMessage(ctx, deps, env.Payload)
	default:
		return nil, nil
	}
}

func toDescriptorPayload(d *descriptor.Server) *serverDescriptorPayload {
	if d == nil {
		return nil
	}
	return &serverDescriptorPayload{
		PID: d.PID, Port: d.Port, BaseURL: d.BaseURL,
		Name: d.Name, Command: d.Command, Owned: d.Owned,
	}
}

func dispatchDiscoverServer(ctx context.Context, deps Deps) (*reply, error) {
	d, err := discovery.Discover(ctx, deps.Binary)
	if err != nil {
		return nil, err
	}
	if d != nil {
		if _, err := deps.StateActor.SetServer(*d); err != nil {
			return nil, err
		}
		setBackendBoundGauge(deps, 1)
	}
	return &reply{Type: kindDiscoverServerResp, Payload: serverResponsePayload{Server: toDescriptorPayload(d)}}, nil
}

func setBackendBoundGauge(deps Deps, v float64) {
	if deps.Metrics != nil {
		deps.Metrics.BackendBound.Set(v)
	}
}

func dispatchSpawnServer(ctx context.Context, deps Deps, raw json.RawMessage) (*reply, error) {
	var payload spawnServerPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, errs.Wrap(errs.FamilyValidation, "InvalidField", "failed to decode SpawnServer payload", err)
		}
	}
	opts := spawn.Options{Binary: deps.Binary}
	if payload.Port != nil {
		opts.Port = *payload.Port
	}
	if deps.Metrics != nil {
		deps.Metrics.SpawnAttempts.Inc()
	}
	d, err := spawn.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	if deps.Metrics != nil {
		deps.Metrics.SpawnSuccesses.Inc()
	}
	if _, err := deps.StateActor.SetServer(*d); err != nil {
		return nil, err
	}
	setBackendBoundGauge(deps, 1)
	return &reply{Type: kindSpawnServerResp, Payload: serverResponsePayload{Server: toDescriptorPayload(d)}}, nil
}

func dispatchCheckHealth(ctx context.Context, deps Deps) (*reply, error) {
	binding := deps.StateActor.Snapshot()
	if binding.Server == nil {
		return nil, errs.New(errs.FamilyIPC, "NoBinding", "No server connected")
	}
	healthy := discovery.CheckHealth(ctx, binding.Server.BaseURL)
	return &reply{Type: kindCheckHealthResp, Payload: checkHealthResponsePayload{Healthy: healthy}}, nil
}

func dispatchStopServer(ctx context.Context, deps Deps) (*reply, error) {
	binding := deps.StateActor.Snapshot()
	if binding.Server == nil {
		return nil, errs.New(errs.FamilyIPC, "NoBinding", "No server connected")
	}
	ok := false
	if binding.Server.Owned {
		ok = discovery.StopPid(ctx, binding.Server.PID, clock.WallClock)
	} else {
		ok = true
	}
	if ok {
		if err := deps.StateActor.ClearServer(); err != nil {
			return nil, err
		}
		setBackendBoundGauge(deps, 0)
	}
	return &reply{Type: kindStopServerResp, Payload: successPayload{Success: ok}}, nil
}

func dispatchListSessions(ctx context.Context, deps Deps) (*reply, error) {
	binding := deps.StateActor.Snapshot()
	if binding.Client == nil {
		return nil, errs.New(errs.FamilyIPC, "NoBinding", "No server connected")
	}
	sessions, err := binding.Client.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]sessionPayload, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPayload{
			ID: s.ID, Title: s.Title,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
			UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
		})
	}
	return &reply{Type: kindSessionList, Payload: sessionListPayload{Sessions: out}}, nil
}

func dispatchCreateSession(ctx context.Context, deps Deps, raw json.RawMessage) (*reply, error) {
	var payload createSessionPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, errs.Wrap(errs.FamilyValidation, "InvalidField", "failed to decode CreateSession payload", err)
		}
	}
	binding := deps.StateActor.Snapshot()
	if binding.Client == nil {
		return nil, errs.New(errs.FamilyIPC, "NoBinding", "No server connected")
	}
	session, err := binding.Client.CreateSession(ctx, payload.Title)
	if err != nil {
		return nil, err
	}
	return &reply{Type: kindSessionInfo, Payload: sessionPayload{
		ID: session.ID, Title: session.Title,
		CreatedAt: session.CreatedAt.Format(time.RFC3339),
		UpdatedAt: session.UpdatedAt.Format(time.RFC3339),
	}}, nil
}

func dispatchDeleteSession(ctx context.Context, deps Deps, raw json.RawMessage) (*reply, error) {
	var payload deleteSessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.FamilyValidation, "InvalidField", "failed to decode DeleteSession payload", err)
	}
	binding := deps.StateActor.Snapshot()
	if binding.Client == nil {
		return nil, errs.New(errs.FamilyIPC, "NoBinding", "No server connected")
	}
	err := binding.Client.DeleteSession(ctx, payload.SessionID)
	return &reply{Type: kindDeleteSessionResp, Payload: successPayload{Success: err == nil}}, nil
}

func dispatchGetConfig(deps Deps) (*reply, error) {
	appCfg := deps.ConfigActor.Snapshot()
	appRaw, err := json.Marshal(appCfg)
	if err != nil {
		return nil, errs.Wrap(errs.FamilyConfig, "Io", "failed to encode app config", err)
	}
	modelsRaw, err := json.Marshal(deps.Catalog)
	if err != nil {
		return nil, errs.Wrap(errs.FamilyConfig, "Io", "failed to encode model catalog", err)
	}
	return &reply{Type: kindGetConfigResp, Payload: getConfigResponsePayload{
		AppConfigJSON:    string(appRaw),
		ModelsConfigJSON: string(modelsRaw),
	}}, nil
}

func dispatchUpdateConfig(deps Deps, raw json.RawMessage) (*reply, error) {
	var payload updateConfigPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.FamilyValidation, "InvalidField", "failed to decode UpdateConfig payload", err)
	}

	var cfg appconfig.AppConfig
	if err := json.Unmarshal([]byte(payload.ConfigJSON), &cfg); err != nil {
		msg := err.Error()
		return &reply{Type: kindUpdateConfigResp, Payload: successPayload{Success: false, Error: &msg}}, nil
	}
	if err := deps.ConfigActor.UpdateAppConfig(cfg); err != nil {
		return nil, err
	}
	return &reply{Type: kindUpdateConfigResp, Payload: successPayload{Success: true}}, nil
}

func dispatchSendMessage(ctx context.Context, deps Deps, raw json.RawMessage) (*reply, error) {
	var payload sendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.FamilyValidation, "InvalidField", "failed to decode SendMessage payload", err)
	}
	binding := deps.StateActor.Snapshot()
	if binding.Client == nil {
		return nil, errs.New(errs.FamilyIPC, "NoBinding", "No server connected")
	}
	agent := ""
	if payload.Agent != nil {
		agent = *payload.Agent
	}
	info, err := binding.Client.SendMessage(ctx, payload.SessionID, payload.Text, payload.Model.ModelID, payload.Model.ProviderID, agent)
	if err != nil {
		return nil, err
	}
	return &reply{Type: kindSessionInfo, Payload: messageInfoPayload{
		ID: info.ID, SessionID: info.SessionID, Parts: info.Parts,
	}}, nil
}
