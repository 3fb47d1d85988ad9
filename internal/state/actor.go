// Package state owns the single piece of ambient mutable state this
// broker has: which backend is currently bound, and the HTTP client
// derived from it. Mutations are serialized through a single-consumer
// goroutine supervised by gopkg.in/tomb.v2. Readers get a lock-free-ish
// snapshot: the read path only ever holds the mutex for the duration
// of a struct copy.
package state

import (
	"sync"

	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"

	"github.com/TonyMarkham/opencode-tauri/internal/backend"
	"github.com/TonyMarkham/opencode-tauri/internal/descriptor"
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

var logger = loggo.GetLogger("deskbroker.state")

// Binding is a consistent snapshot of the currently bound backend.
type Binding struct {
	Server *descriptor.Server
	Client *backend.Client
}

type command interface{ isCommand() }

type setServerCmd struct {
	server descriptor.Server
	reply  chan Binding
}

func (setServerCmd) isCommand() {}

type clearServerCmd struct {
	reply chan struct{}
}

func (clearServerCmd) isCommand() {}

// Actor serializes mutations to the current backend binding. The zero
// value is not usable; construct with New.
type Actor struct {
	commands chan command
	tomb     tomb.Tomb

	startOnce sync.Once

	mu      sync.RWMutex
	current Binding
}

// New returns an Actor. Its consumer goroutine is spawned lazily on the
// first SetServer/ClearServer call, since it must start inside the
// caller's chosen execution context rather than at construction time.
func New() *Actor {
	return &Actor{
		commands: make(chan command, 100),
	}
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

func (a *Actor) apply(cmd command) {
	switch c := cmd.(type) {
	case setServerCmd:
		a.mu.Lock()
		prev := a.current.Server
		var client *backend.Client
		if existing, err := backend.New(c.server.BaseURL, ""); err != nil {
			logger.Warningf("failed to construct backend client for %s: %v", c.server.BaseURL, err)
			client = nil
		} else {
			client = existing
		}
		if prev != nil {
			logger.Warningf("replacing bound backend pid=%d port=%d with pid=%d port=%d",
				prev.PID, prev.Port, c.server.PID, c.server.Port)
		}
		server := c.server
		a.current = Binding{Server: &server, Client: client}
		result := a.current
		a.mu.Unlock()
		if c.reply != nil {
			c.reply <- result
		}
	case clearServerCmd:
		a.mu.Lock()
		a.current = Binding{}
		a.mu.Unlock()
		if c.reply != nil {
			close(c.reply)
		}
	}
}

// SetServer installs a new bound backend, replacing any existing one,
// and waits for the actor goroutine to apply it before returning. The
// returned Binding reflects the applied state, so callers never race a
// Snapshot against their own still-queued command. If client
// construction for the new base URL fails, the descriptor is still
// retained and the client slot is left nil — see DESIGN.md's Open
// Question on this deliberately preserved behaviour.
func (a *Actor) SetServer(server descriptor.Server) (Binding, error) {
	reply := make(chan Binding, 1)
	if err := a.send(setServerCmd{server: server, reply: reply}); err != nil {
		return Binding{}, err
	}
	select {
	case binding := <-reply:
		return binding, nil
	case <-a.tomb.Dead():
		return Binding{}, errs.New(errs.FamilyIPC, "Io", "state actor died")
	}
}

// ClearServer removes the current binding entirely, waiting for the
// actor goroutine to apply it before returning.
func (a *Actor) ClearServer() error {
	reply := make(chan struct{})
	if err := a.send(clearServerCmd{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-a.tomb.Dead():
		return errs.New(errs.FamilyIPC, "Io", "state actor died")
	}
}

func (a *Actor) send(cmd command) error {
	a.ensureStarted()
	select {
	case a.commands <- cmd:
		return nil
	case <-a.tomb.Dead():
		return errs.New(errs.FamilyIPC, "Io", "state actor died")
	}
}

// Snapshot returns the current binding. Safe for concurrent use; never
// blocks on a pending write for longer than the copy itself.
func (a *Actor) Snapshot() Binding {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Stop signals the actor's consumer goroutine to exit and waits for it.
func (a *Actor) Stop() {
	a.tomb.Kill(nil)
	_ = a.tomb.Wait()
}
