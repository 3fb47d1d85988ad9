package errs_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

func TestNewCapturesCallerLocation(t *testing.T) {
	err := errs.New(errs.FamilyValidation, "Empty", "field is required")
	if !strings.Contains(err.Loc.File, "errs_test.go") {
		t.Fatalf("expected location to point at this test file, got %q", err.Loc.File)
	}
	if err.Loc.Line == 0 {
		t.Fatalf("expected non-zero line")
	}
}

func TestErrorDisplayFormat(t *testing.T) {
	err := errs.New(errs.FamilyDiscovery, "NotFound", "no listening backend found")
	s := err.Error()
	if !strings.HasPrefix(s, "Discovery NotFound: no listening backend found [") {
		t.Fatalf("unexpected format: %s", s)
	}
}

func TestWrapPreservesSourceChain(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := errs.Wrap(errs.FamilySpawn, "Spawn", "failed to launch backend", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected source chain in display: %s", err.Error())
	}
}

func TestIsMatchesFamilyAndVariant(t *testing.T) {
	err := errs.New(errs.FamilyIPC, "AuthError", "bad token")
	if !errors.Is(err, errs.Sentinel(errs.FamilyIPC, "AuthError")) {
		t.Fatalf("expected errors.Is to match sentinel by family+variant")
	}
	if errors.Is(err, errs.Sentinel(errs.FamilyIPC, "NotImplemented")) {
		t.Fatalf("expected errors.Is to reject mismatched variant")
	}
}

func TestIsRetryableOnlyOnAuthSync(t *testing.T) {
	nonAuth := errs.New(errs.FamilyConfig, "Validation", "bad config")
	if nonAuth.IsRetryable() {
		t.Fatalf("non-AuthSync family must never be retryable")
	}

	timeoutErr := errs.New(errs.FamilyAuthSync, "Network", "timed out").WithNetworkFlags(true, false)
	if !timeoutErr.IsRetryable() {
		t.Fatalf("expected timeout AuthSync error to be retryable")
	}

	statusErr := errs.New(errs.FamilyAuthSync, "HTTPStatus", "rate limited").WithHTTPStatus(429)
	if !statusErr.IsRetryable() {
		t.Fatalf("expected 429 AuthSync error to be retryable")
	}

	notFoundErr := errs.New(errs.FamilyAuthSync, "HTTPStatus", "missing").WithHTTPStatus(404)
	if notFoundErr.IsRetryable() {
		t.Fatalf("expected 404 AuthSync error to not be retryable")
	}
}

func TestHTTPStatusAndNetworkFlagsAccessors(t *testing.T) {
	bare := errs.New(errs.FamilyHTTPClient, "ServerError", "boom")
	if _, hasHTTP := bare.HTTPStatus(); hasHTTP {
		t.Fatalf("expected no HTTP status on a bare error")
	}

	withStatus := errs.New(errs.FamilyHTTPClient, "ServerError", "boom").WithHTTPStatus(503)
	status, hasHTTP := withStatus.HTTPStatus()
	if !hasHTTP || status != 503 {
		t.Fatalf("expected HTTPStatus to report (503, true), got (%d, %v)", status, hasHTTP)
	}

	withFlags := errs.New(errs.FamilyHTTPClient, "HttpError", "refused").WithNetworkFlags(false, true)
	isTimeout, isConnection := withFlags.NetworkFlags()
	if isTimeout || !isConnection {
		t.Fatalf("expected NetworkFlags to report (false, true), got (%v, %v)", isTimeout, isConnection)
	}
}

func TestWithDetailAttachesStructuredPayload(t *testing.T) {
	type reason struct{ Kind string }
	err := errs.New(errs.FamilyValidation, "TooShort", "too short").WithDetail(reason{Kind: "TooShort"})
	d, ok := err.Detail.(reason)
	if !ok || d.Kind != "TooShort" {
		t.Fatalf("expected Detail to carry the attached struct, got %#v", err.Detail)
	}
}
