package state_test

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/TonyMarkham/opencode-tauri/internal/descriptor"
	"github.com/TonyMarkham/opencode-tauri/internal/state"
)

func makeServer(t *testing.T, pid int, baseURL string) descriptor.Server {
	t.Helper()
	d, err := descriptor.NewBuilder().
		PID(pid).
		Port(1234).
		BaseURL(baseURL).
		Name("assistant").
		Command("assistant serve").
		Owned(true).
		Build()
	if err != nil {
		t.Fatalf("failed to build descriptor: %v", err)
	}
	return d
}

func TestSetServerThenSnapshot(t *testing.T) {
	actor := state.New()
	defer actor.Stop()

	srv := httptest.NewServer(nil)
	defer srv.Close()

	d := makeServer(t, 100, srv.URL)
	applied, err := actor.SetServer(d)
	if err != nil {
		t.Fatalf("SetServer: %v", err)
	}
	if applied.Server == nil || applied.Server.PID != 100 {
		t.Fatalf("unexpected binding returned by SetServer: %+v", applied)
	}

	snap := actor.Snapshot()
	if snap.Server == nil || snap.Server.PID != 100 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Client == nil {
		t.Fatalf("expected a client to be constructed for a valid base url")
	}
	if snap.Client.BaseURL() != snap.Server.BaseURL {
		t.Fatalf("client/descriptor base url mismatch: %s vs %s", snap.Client.BaseURL(), snap.Server.BaseURL)
	}
}

func TestClearServerEmptiesBinding(t *testing.T) {
	actor := state.New()
	defer actor.Stop()

	srv := httptest.NewServer(nil)
	defer srv.Close()

	_, _ = actor.SetServer(makeServer(t, 100, srv.URL))
	if err := actor.ClearServer(); err != nil {
		t.Fatalf("ClearServer: %v", err)
	}
	snap := actor.Snapshot()
	if snap.Server != nil || snap.Client != nil {
		t.Fatalf("expected empty binding, got %+v", snap)
	}
}

func TestConcurrentReadsNeverSeeTornState(t *testing.T) {
	actor := state.New()
	defer actor.Stop()

	srv1 := httptest.NewServer(nil)
	defer srv1.Close()
	srv2 := httptest.NewServer(nil)
	defer srv2.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_, _ = actor.SetServer(makeServer(t, 100+i, srv1.URL))
			} else {
				_, _ = actor.SetServer(makeServer(t, 100+i, srv2.URL))
			}
		}
	}()

	for i := 0; i < 500; i++ {
		snap := actor.Snapshot()
		if snap.Server != nil && snap.Client != nil {
			if snap.Client.BaseURL() != snap.Server.BaseURL {
				close(stop)
				wg.Wait()
				t.Fatalf("observed torn state: descriptor base url %s, client base url %s",
					snap.Server.BaseURL, snap.Client.BaseURL())
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestReplacingServerLogsButSucceeds(t *testing.T) {
	actor := state.New()
	defer actor.Stop()

	srv := httptest.NewServer(nil)
	defer srv.Close()

	_, _ = actor.SetServer(makeServer(t, 1, srv.URL))
	if _, err := actor.SetServer(makeServer(t, 2, srv.URL)); err != nil {
		t.Fatalf("unexpected error replacing server: %v", err)
	}
	snap := actor.Snapshot()
	if snap.Server.PID != 2 {
		t.Fatalf("expected replacement to win, got pid %d", snap.Server.PID)
	}
}
