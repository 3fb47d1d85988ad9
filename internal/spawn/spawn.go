// Package spawn launches the backend process, parses its stdout for the
// listening URL it announces, and polls it for health with exponential
// backoff before handing back a descriptor.
package spawn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"

	"github.com/TonyMarkham/opencode-tauri/internal/descriptor"
	"github.com/TonyMarkham/opencode-tauri/internal/discovery"
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
	"github.com/TonyMarkham/opencode-tauri/internal/retrypolicy"
)

var logger = loggo.GetLogger("deskbroker.spawn")

var stdoutURLPattern = regexp.MustCompile(`http://(?P<host>[^\s:]+):(?P<port>\d+)`)

const maxStdoutLines = 100

// Options configures one spawn attempt.
type Options struct {
	Binary   string
	Port     uint16 // 0 lets the backend auto-select.
	Hostname string // defaults to 127.0.0.1.
	Clock    clock.Clock
}

// Launch starts the child, parses its announced listening URL from
// stdout, waits for it to answer healthily, and returns a Server
// descriptor with Owned=true. On any failure the child is not left
// running: Launch either kills it (timeout case) or it never
// successfully started in the first place.
func Launch(ctx context.Context, opt Options) (*descriptor.Server, error) {
	hostname := opt.Hostname
	if hostname == "" {
		hostname = "127.0.0.1"
	}
	portArg := "0"
	if opt.Port != 0 {
		portArg = strconv.Itoa(int(opt.Port))
	}

	args := []string{"serve", "--port", portArg, "--hostname", hostname}
	cmd, err := launchCommand(opt.Binary, args)
	if err != nil {
		return nil, errs.Wrap(errs.FamilySpawn, "Spawn", "failed to launch backend process", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.Wrap(errs.FamilySpawn, "Spawn", "failed to attach stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errs.Wrap(errs.FamilySpawn, "Spawn", "failed to attach stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.FamilySpawn, "Spawn", "failed to start backend process", err)
	}

	go drainStderr(stderr)

	port, host, err := parseListeningURL(stdout)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	if host != "127.0.0.1" && host != hostname && host != "localhost" {
		logger.Warningf("backend announced unexpected listen host %q, expected %q", host, hostname)
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	waitClock := opt.Clock
	if waitClock == nil {
		waitClock = clock.WallClock
	}
	if err := waitForHealth(ctx, baseURL, waitClock); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	// This broker tracks only the pid from here on and never calls
	// Wait on the child. Release frees the os.Process handle while
	// leaving the process running; it does not reap the child when it
	// exits and does not close the stdout/stderr pipes attached above.
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		logger.Warningf("failed to release child process handle for pid %d: %v", pid, err)
	}

	d, err := descriptor.NewBuilder().
		PID(pid).
		Port(port).
		BaseURL(baseURL).
		Name(opt.Binary).
		Command(cmd.String()).
		Owned(true).
		Build()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func launchCommand(binary string, args []string) (*exec.Cmd, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		// Not found on PATH: fall back to the directory of the current
		// executable.
		exePath, exeErr := os.Executable()
		if exeErr != nil {
			return nil, err
		}
		candidate := filepath.Join(filepath.Dir(exePath), binary)
		if _, statErr := os.Stat(candidate); statErr != nil {
			return nil, err
		}
		path = candidate
	}
	return exec.Command(path, args...), nil
}

func drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Tracef("backend stderr: %s", scanner.Text())
	}
}

func parseListeningURL(stdout io.Reader) (uint16, string, error) {
	scanner := bufio.NewScanner(stdout)
	lines := 0
	for scanner.Scan() && lines < maxStdoutLines {
		lines++
		line := scanner.Text()
		m := stdoutURLPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		host := m[stdoutURLPattern.SubexpIndex("host")]
		portStr := m[stdoutURLPattern.SubexpIndex("port")]
		portNum, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || portNum == 0 {
			continue
		}
		return uint16(portNum), host, nil
	}
	return 0, "", errs.New(errs.FamilySpawn, "Parse", "stdout ended without a listening URL")
}

func waitForHealth(ctx context.Context, baseURL string, clk clock.Clock) error {
	policy := retrypolicy.Policy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Deadline:     20 * time.Second,
		Clock:        clk,
	}
	err := policy.Run(ctx, func(ctx context.Context) error {
		if discovery.CheckHealth(ctx, baseURL) {
			return nil
		}
		return errs.New(errs.FamilySpawn, "NotHealthy", "backend not yet responding")
	})
	if err != nil {
		return errs.Wrap(errs.FamilySpawn, "Timeout", "backend did not become healthy within budget", err)
	}
	return nil
}
