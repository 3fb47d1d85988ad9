// Command deskbrokerd is the broker process: it wires the state and
// config actors, loads the model/provider catalog, starts the
// loopback IPC server, and waits for SIGINT/SIGTERM to shut down
// cleanly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
	"github.com/spf13/viper"

	"github.com/TonyMarkham/opencode-tauri/internal/appconfig"
	"github.com/TonyMarkham/opencode-tauri/internal/authprobe"
	"github.com/TonyMarkham/opencode-tauri/internal/creds"
	"github.com/TonyMarkham/opencode-tauri/internal/discovery"
	"github.com/TonyMarkham/opencode-tauri/internal/ipc"
	"github.com/TonyMarkham/opencode-tauri/internal/logging"
	"github.com/TonyMarkham/opencode-tauri/internal/metrics"
	"github.com/TonyMarkham/opencode-tauri/internal/state"
)

var logger = loggo.GetLogger("deskbroker.main")

func settings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DESKBROKER")
	v.AutomaticEnv()
	v.SetDefault("port", 19876)
	v.SetDefault("config_dir", defaultConfigDir())
	v.SetDefault("resource_dir", ".")
	v.SetDefault("assistant_binary", "assistant")
	v.SetDefault("auth_token", "")
	v.SetDefault("metrics_addr", "")
	return v
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskbroker"
	}
	return home + "/.config/deskbroker"
}

func main() {
	logging.Configure()
	cfg := settings()

	stateActor := state.New()
	defer stateActor.Stop()

	configDir := cfg.GetString("config_dir")
	initialAppConfig, err := appconfig.Load(configDir)
	if err != nil {
		logger.Errorf("failed to load app config, falling back to defaults: %v", err)
		initialAppConfig = appconfig.Default()
	}

	catalog, err := appconfig.LoadCatalog(cfg.GetString("resource_dir"))
	if err != nil {
		logger.Errorf("failed to load model catalog: %v", err)
		catalog = appconfig.DefaultCatalog()
	}

	configActor := appconfig.New(configDir, initialAppConfig, catalog)
	defer configActor.Stop()

	binary := cfg.GetString("assistant_binary")

	creds.LoadDotEnv()
	syncCredentialsAtStartup(stateActor, catalog, binary)

	metricsRegistry := metrics.New()

	port := uint16(cfg.GetUint("port"))
	token := cfg.GetString("auth_token")

	server, err := ipc.New(port, token, ipc.Deps{
		StateActor:  stateActor,
		ConfigActor: configActor,
		Binary:      binary,
		Catalog:     catalog,
		Metrics:     metricsRegistry,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "deskbrokerd: failed to start ipc server:", err)
		os.Exit(1)
	}
	logger.Infof("ipc listening on %s", server.Addr())

	serveCtx, serveCancel := context.WithCancel(context.Background())

	if addr := cfg.GetString("metrics_addr"); addr != "" {
		go func() {
			if err := metricsRegistry.Serve(serveCtx, addr); err != nil {
				logger.Errorf("metrics listener error: %v", err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- server.Serve(serveCtx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Infof("received signal %v, shutting down", s)
	case err := <-done:
		if err != nil {
			logger.Errorf("ipc server exited: %v", err)
		}
	}

	shutdown(serveCancel, server, stateActor)
}

// syncCredentialsAtStartup discovers an already-running backend, if
// any, and pushes env-sourced API keys to it. Sync operates against a
// bound backend's HTTP client; since nothing forces a backend to
// already be running at process start, a backend discovered here
// simply means the webview gets it pre-synced rather than waiting for
// its own first DiscoverServer/SpawnServer call to trigger a sync pass
// (not yet wired for that path — see DESIGN.md).
func syncCredentialsAtStartup(stateActor *state.Actor, catalog appconfig.Catalog, binary string) {
	discoverCtx, discoverCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer discoverCancel()

	d, err := discovery.Discover(discoverCtx, binary)
	if err != nil {
		logger.Debugf("no backend discovered at startup: %v", err)
		return
	}
	if d == nil {
		return
	}
	binding, err := stateActor.SetServer(*d)
	if err != nil {
		logger.Warningf("failed to bind discovered backend at startup: %v", err)
		return
	}
	if binding.Client == nil {
		return
	}

	syncCtx, syncCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer syncCancel()
	dataDir := authprobe.DataDir(os.Getenv, "")
	if err := creds.Sync(syncCtx, catalog, dataDir, binding.Client, creds.DefaultSyncPolicy(), os.Getenv); err != nil {
		logger.Warningf("credential sync completed with errors: %v", err)
	}
}

func shutdown(cancel context.CancelFunc, server *ipc.Server, stateActor *state.Actor) {
	cancel()
	_ = server.Close()

	binding := stateActor.Snapshot()
	if binding.Server != nil && binding.Server.Owned {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if !discovery.StopPid(stopCtx, binding.Server.PID, clock.WallClock) {
			logger.Warningf("failed to stop owned backend pid=%d during shutdown", binding.Server.PID)
		}
	}
}
