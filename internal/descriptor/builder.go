package descriptor

import (
	"strings"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

// Builder accumulates the optional fields of a Server descriptor via
// fluent setters, deferring validation to Build.
type Builder struct {
	pid      int
	pidSet   bool
	port     uint16
	portSet  bool
	baseURL  string
	name     string
	command  string
	owned    bool
	ownedSet bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) PID(pid int) *Builder {
	b.pid = pid
	b.pidSet = true
	return b
}

func (b *Builder) Port(port uint16) *Builder {
	b.port = port
	b.portSet = true
	return b
}

func (b *Builder) BaseURL(url string) *Builder {
	b.baseURL = url
	return b
}

func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

func (b *Builder) Command(cmd string) *Builder {
	b.command = cmd
	return b
}

func (b *Builder) Owned(owned bool) *Builder {
	b.owned = owned
	b.ownedSet = true
	return b
}

// Build validates the accumulated fields in a fixed order and returns
// the first offending field's name in the error: pid, then port, then
// base URL, then name, then command, then owned.
func (b *Builder) Build() (Server, error) {
	if !b.pidSet || b.pid <= 0 {
		return Server{}, errs.New(errs.FamilyValidation, "MissingField", "pid is required and must be a positive integer")
	}
	if !b.portSet || b.port == 0 {
		return Server{}, errs.New(errs.FamilyValidation, "MissingField", "port is required")
	}
	if b.baseURL == "" {
		return Server{}, errs.New(errs.FamilyValidation, "MissingField", "base_url is required")
	}
	if !strings.HasPrefix(b.baseURL, "http://") && !strings.HasPrefix(b.baseURL, "https://") {
		return Server{}, errs.New(errs.FamilyValidation, "InvalidField", "base_url must start with http:// or https://")
	}
	if b.name == "" {
		return Server{}, errs.New(errs.FamilyValidation, "MissingField", "name is required")
	}
	if b.command == "" {
		return Server{}, errs.New(errs.FamilyValidation, "MissingField", "command is required")
	}
	if !b.ownedSet {
		return Server{}, errs.New(errs.FamilyValidation, "MissingField", "owned is required")
	}

	return Server{
		PID:     b.pid,
		Port:    b.port,
		BaseURL: b.baseURL,
		Name:    b.name,
		Command: b.command,
		Owned:   b.owned,
	}, nil
}
