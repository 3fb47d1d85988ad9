package creds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/clock"
	"github.com/juju/loggo/v2"

	"github.com/TonyMarkham/opencode-tauri/internal/appconfig"
	"github.com/TonyMarkham/opencode-tauri/internal/authprobe"
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
	"github.com/TonyMarkham/opencode-tauri/internal/retrypolicy"
	"github.com/TonyMarkham/opencode-tauri/internal/secret"
)

var logger = loggo.GetLogger("deskbroker.creds")

// SyncPolicy configures the credential sync pass.
type SyncPolicy struct {
	OverallTimeout     time.Duration
	PerProviderRetries int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Clock              clock.Clock
}

// DefaultSyncPolicy is the sync policy used at process startup.
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		OverallTimeout:     30 * time.Second,
		PerProviderRetries: 3,
		InitialDelay:       200 * time.Millisecond,
		MaxDelay:           2 * time.Second,
		Clock:              clock.WallClock,
	}
}

// LoadDotEnv tries cwd then the executable's directory; a missing file
// in either location is not an error.
func LoadDotEnv() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	exePath, err := os.Executable()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
}

// Candidate is one provider's env-sourced credential before sync.
type Candidate struct {
	Provider string
	Key      secret.Redacted
}

// Collect reads, per catalog provider with a non-empty APIKeyEnv, the
// named environment variable and validates it, returning only the
// providers with a well-formed key. Rejected candidates are logged,
// not returned — a malformed key degrades this subsystem rather than
// crashing the broker.
func Collect(catalog appconfig.Catalog, getenv func(string) string) []Candidate {
	if getenv == nil {
		getenv = os.Getenv
	}
	var out []Candidate
	for _, p := range catalog.Providers {
		if p.APIKeyEnv == "" {
			continue
		}
		raw := getenv(p.APIKeyEnv)
		if raw == "" {
			continue
		}
		if err := Validate(p.Name, raw); err != nil {
			logger.Infof("skipping credential for provider %s: %v", p.Name, err)
			continue
		}
		out = append(out, Candidate{Provider: p.Name, Key: secret.New(raw)})
	}
	return out
}

// Syncer pushes a provider credential to the backend. Implemented by
// *backend.Client in production and faked in tests.
type Syncer interface {
	SyncAPIKey(ctx context.Context, provider, key string) error
}

// Sync runs the full credential sync pass: collect candidates, skip any
// provider authprobe reports as already Configured, and push the rest
// to the backend with per-provider retry, all bounded by policy's
// overall timeout.
func Sync(ctx context.Context, catalog appconfig.Catalog, dataDir string, syncer Syncer, policy SyncPolicy, getenv func(string) string) error {
	ctx, cancel := context.WithTimeout(ctx, policy.OverallTimeout)
	defer cancel()

	candidates := Collect(catalog, getenv)
	if len(candidates) == 0 {
		return nil
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Provider
	}
	statuses := authprobe.CheckBatch(dataDir, names)

	retry := retrypolicy.Policy{
		InitialDelay: policy.InitialDelay,
		MaxDelay:     policy.MaxDelay,
		Multiplier:   2,
		Deadline:     policy.OverallTimeout,
		Clock:        policy.Clock,
	}

	var firstErr error
	for _, c := range candidates {
		if statuses[c.Provider] == authprobe.Configured {
			logger.Debugf("skipping provider %s: already has OAuth configured", c.Provider)
			continue
		}
		attempts := 0
		err := retry.Run(ctx, func(ctx context.Context) error {
			attempts++
			if attempts > policy.PerProviderRetries {
				return fmt.Errorf("%w: exhausted %d retries syncing provider %s",
					retrypolicy.ErrStop, policy.PerProviderRetries, c.Provider)
			}
			syncErr := syncer.SyncAPIKey(ctx, c.Provider, c.Key.Reveal())
			if syncErr == nil {
				return nil
			}
			tagged := classifySyncError(c.Provider, syncErr)
			if !tagged.IsRetryable() {
				return fmt.Errorf("%w: %v", retrypolicy.ErrStop, tagged)
			}
			return tagged
		})
		if err != nil {
			logger.Warningf("failed to sync credential for provider %s: %v", c.Provider, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// classifySyncError re-tags a Syncer error (typically FamilyHTTPClient,
// from *backend.Client) as FamilyAuthSync, carrying over whatever
// HTTP-status or network-level retry signal the original error had.
// IsRetryable only answers for FamilyAuthSync, so this is the step that
// lets the retry loop distinguish a transient 503 from a permanent 400.
// A Syncer that returns a bare error (not an *errs.Error) is assumed
// transient, matching the "unknown failure, worth one more try" default
// a plain context.DeadlineExceeded from a slow dial implies.
func classifySyncError(provider string, err error) *errs.Error {
	tagged := errs.Wrap(errs.FamilyAuthSync, "SyncFailed",
		fmt.Sprintf("failed to sync credential for provider %s", provider), err)
	src, ok := err.(*errs.Error)
	if !ok {
		tagged.WithNetworkFlags(errors.Is(err, context.DeadlineExceeded), true)
		return tagged
	}
	if status, hasHTTP := src.HTTPStatus(); hasHTTP {
		tagged.WithHTTPStatus(status)
	}
	if isTimeout, isConnection := src.NetworkFlags(); isTimeout || isConnection {
		tagged.WithNetworkFlags(isTimeout, isConnection)
	}
	return tagged
}
