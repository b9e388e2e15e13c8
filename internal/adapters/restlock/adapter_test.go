package restlock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keyfold/keyfold-core/internal/adapters"
	"github.com/keyfold/keyfold-core/internal/device"
)

// fastConfig keeps backoff waits negligible in tests.
func fastConfig(name, baseURL string) Config {
	return Config{
		Name:       name,
		BaseURL:    baseURL,
		APIKey:     "test-key",
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

func TestFetchDevicesStrictDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/devices" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		// d1: fully populated. d2: bare minimum — optional fields absent,
		// unknown lock state. Third entry lacks an id and must be skipped.
		_, _ = w.Write([]byte(`{"devices": [
			{"id": "d1", "name": "Front Door", "kind": "lock", "online": true,
			 "remote_enabled": false, "model": "LW-200", "firmware": "1.4.2",
			 "lock": {"state": "locked", "battery": 80},
			 "updated_at": "2026-03-10T12:00:00Z"},
			{"id": "d2", "name": "Back Door", "kind": "lock", "online": false,
			 "lock": {"state": "ajar"}},
			{"name": "ghost", "kind": "lock", "online": true}
		]}`))
	}))
	defer server.Close()

	adapter, err := New(fastConfig("lockwise", server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	devices, err := adapter.FetchDevices(context.Background())
	if err != nil {
		t.Fatalf("FetchDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices (malformed entry skipped), got %d", len(devices))
	}

	d1 := devices[0]
	if d1.Vendor != "lockwise" || d1.Kind != device.KindLock {
		t.Errorf("d1 vendor/kind: %s/%s", d1.Vendor, d1.Kind)
	}
	if d1.RemoteOperationEnabled {
		t.Error("d1 remote operation should be disabled")
	}
	if d1.Model == nil || *d1.Model != "LW-200" {
		t.Errorf("d1 model: %v", d1.Model)
	}
	if d1.Lock == nil || d1.Lock.State != device.StateLocked {
		t.Errorf("d1 lock: %+v", d1.Lock)
	}
	if d1.Lock.BatteryLevel == nil || *d1.Lock.BatteryLevel != 80 {
		t.Errorf("d1 battery: %v", d1.Lock.BatteryLevel)
	}
	if d1.StateUpdatedAt == nil {
		t.Error("d1 updated_at should be set")
	}

	d2 := devices[1]
	if d2.Model != nil || d2.FirmwareVersion != nil {
		t.Error("absent vendor fields must stay nil, not be defaulted")
	}
	if !d2.RemoteOperationEnabled {
		t.Error("absent remote_enabled flag means remote operation is permitted")
	}
	if d2.Lock == nil || d2.Lock.State != device.StateUnknown {
		t.Errorf("unrecognised lock state should decode as unknown, got %+v", d2.Lock)
	}
	if d2.Lock.BatteryLevel != nil {
		t.Error("absent battery must stay nil")
	}
	if d2.StateUpdatedAt != nil {
		t.Error("absent updated_at must stay nil")
	}
}

func TestDeviceStateNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"code": "unknown_device", "message": "no such device"}}`))
	}))
	defer server.Close()

	adapter, err := New(fastConfig("lockwise", server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = adapter.DeviceState(context.Background(), "d-missing")
	if !adapters.IsNotFound(err) {
		t.Errorf("expected not_found classification, got %v", err)
	}
}

func TestExecuteCommandRefreshesExpiredToken(t *testing.T) {
	var refreshes, commands atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/auth/refresh":
			refreshes.Add(1)
			_, _ = w.Write([]byte(`{"token": "fresh-token", "expires_in": 900}`))

		case strings.HasSuffix(r.URL.Path, "/commands"):
			commands.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["operation"] != "lock" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"id": "d1", "name": "Front Door", "kind": "lock",
				"online": true, "lock": {"state": "locked"}}`))

		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter, err := New(fastConfig("lockwise", server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dev, err := adapter.ExecuteCommand(context.Background(), "d1", device.Command{Operation: device.OpLock})
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if dev.Lock == nil || dev.Lock.State != device.StateLocked {
		t.Errorf("expected locked state, got %+v", dev.Lock)
	}

	if n := refreshes.Load(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
	if n := commands.Load(); n != 2 {
		t.Errorf("command calls = %d, want 2 (expired, then replayed)", n)
	}
}

func TestRateLimitedRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"devices": []}`))
	}))
	defer server.Close()

	adapter, err := New(fastConfig("lockwise", server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	devices, err := adapter.FetchDevices(context.Background())
	if err != nil {
		t.Fatalf("FetchDevices: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected empty listing, got %d devices", len(devices))
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3 (two throttled, one success)", n)
	}
}

func TestStatusClassification(t *testing.T) {
	status := http.StatusNotImplemented
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	adapter, err := New(fastConfig("lockwise", server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = adapter.ExecuteCommand(context.Background(), "d1", device.Command{Operation: device.OpUnlock})
	if !adapters.IsUnsupported(err) {
		t.Errorf("501: expected unsupported, got %v", err)
	}

	status = http.StatusConflict
	_, err = adapter.ExecuteCommand(context.Background(), "d1", device.Command{Operation: device.OpUnlock})
	if adapters.ClassOf(err) != adapters.ClassOperationFailed {
		t.Errorf("409: expected operation_failed, got %v", err)
	}
}

func TestExecuteCommandRejectsNonCommandable(t *testing.T) {
	adapter, err := New(fastConfig("lockwise", "http://vendor.invalid"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = adapter.ExecuteCommand(context.Background(), "d1",
		device.Command{Operation: device.OpViewStatus})
	if !adapters.IsUnsupported(err) {
		t.Errorf("expected unsupported for non-commandable operation, got %v", err)
	}
}

func TestRevokeAuthClearsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/auth/refresh":
			_, _ = w.Write([]byte(`{"token": "tok-1"}`))
		case "/v1/auth/revoke":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter, err := New(fastConfig("lockwise", server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := adapter.RefreshAuth(context.Background()); err != nil {
		t.Fatalf("RefreshAuth: %v", err)
	}
	if adapter.token != "tok-1" {
		t.Fatalf("token = %q, want tok-1", adapter.token)
	}

	if err := adapter.RevokeAuth(context.Background()); err != nil {
		t.Fatalf("RevokeAuth: %v", err)
	}
	if adapter.token != "" {
		t.Error("token should be cleared after revocation")
	}
}
