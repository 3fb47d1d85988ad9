// Package discovery finds an already-running backend process on the
// loopback interface and exposes health/stop primitives over a pid.
// Candidate matching and socket enumeration go through
// github.com/shirou/gopsutil/v4, which gives us a single cross-platform
// surface over /proc, sysctl, and the Windows process/tcp tables
// instead of hand-rolled per-OS parsing.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/TonyMarkham/opencode-tauri/internal/descriptor"
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
	"github.com/TonyMarkham/opencode-tauri/internal/retrypolicy"
)

// portOverride is process-wide, intended for test fixtures only. It is
// guarded by a mutex rather than left as a bare package variable so
// concurrent test suites setting it do not race.
var (
	portOverrideMu sync.Mutex
	portOverride   *uint16
)

// SetPortOverride installs a fixed port for Discover to look for,
// bypassing process-name matching entirely. Pass nil to clear it.
func SetPortOverride(port *uint16) {
	portOverrideMu.Lock()
	defer portOverrideMu.Unlock()
	portOverride = port
}

func getPortOverride() *uint16 {
	portOverrideMu.Lock()
	defer portOverrideMu.Unlock()
	return portOverride
}

const listenState = "LISTEN"

// candidateNames lists image names that might host the backend binary,
// plus the configured binary name itself.
func candidateNames(binary string) []string {
	return []string{"bun", "node", binary}
}

// Discover finds a running backend: if a port override is set, find
// whatever is listening on it; otherwise scan processes for one that
// looks like the backend and inspect its listening sockets.
func Discover(ctx context.Context, binary string) (*descriptor.Server, error) {
	if override := getPortOverride(); override != nil {
		return discoverByPort(ctx, *override, binary)
	}
	return discoverByProcessName(ctx, binary)
}

func listListeningConns() ([]net.ConnectionStat, error) {
	conns, err := net.Connections("inet")
	if err != nil {
		return nil, errs.Wrap(errs.FamilyDiscovery, "Io", "failed to enumerate listening sockets", err)
	}
	out := conns[:0]
	for _, c := range conns {
		if c.Status == listenState {
			out = append(out, c)
		}
	}
	return out, nil
}

func discoverByPort(ctx context.Context, port uint16, binary string) (*descriptor.Server, error) {
	conns, err := listListeningConns()
	if err != nil {
		return nil, err
	}
	for _, c := range conns {
		if c.Laddr.Port != uint32(port) {
			continue
		}
		if c.Pid == 0 {
			continue
		}
		// owned=false: this path discovered rather than spawned the
		// process; see DESIGN.md's Open Question on Owned semantics.
		return buildDescriptorForPid(ctx, int(c.Pid), port, binary, false)
	}
	return nil, nil
}

func discoverByProcessName(ctx context.Context, binary string) (*descriptor.Server, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.FamilyDiscovery, "Io", "failed to enumerate processes", err)
	}
	names := candidateNames(binary)

	for _, p := range procs {
		name, _ := p.NameWithContext(ctx)
		cmdline, _ := p.CmdlineWithContext(ctx)
		if !matchesCandidate(name, cmdline, names, binary) {
			continue
		}

		conns, err := net.ConnectionsPidWithContext(ctx, "inet", p.Pid)
		if err != nil {
			continue
		}
		for _, c := range conns {
			if c.Status != listenState || c.Laddr.Port == 0 {
				continue
			}
			d, err := buildDescriptorForPid(ctx, int(p.Pid), uint16(c.Laddr.Port), binary, false)
			if err != nil {
				return nil, err
			}
			return d, nil
		}
	}
	return nil, nil
}

func matchesCandidate(name, cmdline string, names []string, binary string) bool {
	nameContainsAny := false
	for _, n := range names {
		if n != "" && strings.Contains(strings.ToLower(name), strings.ToLower(n)) {
			nameContainsAny = true
			break
		}
	}
	if !nameContainsAny {
		return false
	}
	cmdMentionsBinary := strings.Contains(strings.ToLower(cmdline), strings.ToLower(binary)) ||
		strings.Contains(strings.ToLower(name), strings.ToLower(binary))
	return cmdMentionsBinary
}

func buildDescriptorForPid(ctx context.Context, pid int, port uint16, binary string, owned bool) (*descriptor.Server, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, errs.Wrap(errs.FamilyDiscovery, "Io", "failed to inspect discovered process", err)
	}
	name, _ := p.NameWithContext(ctx)
	cmdline, _ := p.CmdlineWithContext(ctx)
	if name == "" {
		name = binary
	}
	if cmdline == "" {
		cmdline = binary
	}

	d, err := descriptor.NewBuilder().
		PID(pid).
		Port(port).
		BaseURL(fmt.Sprintf("http://127.0.0.1:%d", port)).
		Name(name).
		Command(cmdline).
		Owned(owned).
		Build()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CheckHealth does a GET <base_url>/doc with a 3s timeout, returning
// true iff the response is 2xx and false on any failure.
func CheckHealth(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/doc", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// StopPid refuses pid 1 and no-ops on nonexistent pids without sending
// any signal. Otherwise it attempts a graceful terminate, falls back to
// a forceful kill if unavailable, then polls for the process's
// disappearance with exponential backoff bounded at 5s.
func StopPid(ctx context.Context, pid int, clk clock.Clock) bool {
	if pid == 1 {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		// Process does not exist: discovery races (it died between
		// listing and kill) are a success-returning no-op, not an error.
		return true
	}

	if err := p.TerminateWithContext(ctx); err != nil {
		_ = p.KillWithContext(ctx)
	}

	policy := retrypolicy.Policy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2,
		Deadline:     5 * time.Second,
		Clock:        clk,
	}
	err = policy.Run(ctx, func(ctx context.Context) error {
		exists, err := process.PidExistsWithContext(ctx, int32(pid))
		if err != nil || exists {
			return errs.New(errs.FamilyDiscovery, "StillRunning", "process has not exited yet")
		}
		return nil
	})
	return err == nil
}
