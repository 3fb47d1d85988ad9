package appconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

var logger = loggo.GetLogger("deskbroker.appconfig")

const configFileName = "config.json"

type updateCmd struct{ config AppConfig }

// Actor validates and persists AppConfig updates, same shape as
// internal/state.Actor: a bounded command channel drained by a single
// tomb-supervised goroutine, with reads going through an RWMutex-backed
// snapshot.
type Actor struct {
	configDir string
	catalog   Catalog
	commands  chan updateCmd
	tomb      tomb.Tomb
	startOnce sync.Once

	mu      sync.RWMutex
	current AppConfig
}

// New constructs an Actor seeded with initial. Call Load first to get
// the on-disk-or-default value to seed it with. catalog is consulted on
// every update to validate Server.PreferredProvider; pass the zero
// Catalog if none has been loaded yet.
func New(configDir string, initial AppConfig, catalog Catalog) *Actor {
	return &Actor{
		configDir: configDir,
		catalog:   catalog,
		commands:  make(chan updateCmd, 100),
		current:   initial,
	}
}

// Load reads <configDir>/config.json. A missing file yields Default()
// with no error; any other IO, parse, or validation failure is
// returned with location information attached.
func Load(configDir string) (AppConfig, error) {
	path := filepath.Join(configDir, configFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return AppConfig{}, errs.Wrap(errs.FamilyConfig, "Io", "failed to read config file", err)
	}
	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, errs.Wrap(errs.FamilyConfig, "Parse", "failed to parse config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (a *Actor) ensureStarted() {
	a.startOnce.Do(func() {
		a.tomb.Go(a.loop)
	})
}

func (a *Actor) loop() error {
	for {
		select {
		case cmd := <-a.commands:
			a.apply(cmd)
		case <-a.tomb.Dying():
			return tomb.ErrDying
		}
	}
}

func (a *Actor) apply(cmd updateCmd) {
	if err := cmd.config.Validate(); err != nil {
		logger.Warningf("rejected invalid config update: %v", err)
		return
	}
	if err := cmd.config.ValidatePreferredProvider(a.catalog); err != nil {
		logger.Warningf("rejected invalid config update: %v", err)
		return
	}
	a.mu.Lock()
	a.current = cmd.config
	a.mu.Unlock()

	if err := save(a.configDir, cmd.config); err != nil {
		// Persistence failure does not roll back memory: the running
		// process treats its in-memory copy as authoritative and will
		// simply retry persistence on the next successful update.
		logger.Errorf("failed to persist config: %v", err)
	}
}

// UpdateAppConfig queues a validated replacement of the whole config.
// Invalid updates are logged and dropped without altering memory.
func (a *Actor) UpdateAppConfig(cfg AppConfig) error {
	a.ensureStarted()
	select {
	case a.commands <- updateCmd{config: cfg}:
		return nil
	case <-a.tomb.Dead():
		return errs.New(errs.FamilyConfig, "Io", "config actor died")
	}
}

// Snapshot returns the current in-memory config.
func (a *Actor) Snapshot() AppConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Stop signals the actor's consumer goroutine to exit and waits for it.
func (a *Actor) Stop() {
	a.tomb.Kill(nil)
	_ = a.tomb.Wait()
}

// save serializes cfg as pretty JSON and writes it atomically via a
// temp-file-then-rename, so a crash mid-write never leaves config.json
// truncated or half-written.
func save(configDir string, cfg AppConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errs.Wrap(errs.FamilyConfig, "Io", "failed to encode config", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return errs.Wrap(errs.FamilyConfig, "Io", "failed to create config directory", err)
	}

	finalPath := filepath.Join(configDir, configFileName)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return errs.Wrap(errs.FamilyConfig, "Io", "failed to write temp config file", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errs.Wrap(errs.FamilyConfig, "Io", "failed to rename temp config file into place", err)
	}
	return nil
}
