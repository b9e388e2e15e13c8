package restlock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/keyfold/keyfold-core/internal/adapters"
	"github.com/keyfold/keyfold-core/internal/device"
)

const defaultTimeout = 15 * time.Second

// Config holds the connection settings for one vendor account.
type Config struct {
	// Name is the deployment-unique vendor name.
	Name string
	// BaseURL is the vendor API root, e.g. https://api.lockwise.example.
	BaseURL string
	// APIKey is exchanged for short-lived bearer tokens.
	APIKey string
	// MinSpacing is the minimum gap between requests to this vendor.
	MinSpacing time.Duration
	// MaxRetries and BaseDelay parameterise the backoff loop.
	MaxRetries int
	BaseDelay  time.Duration
	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Logger is the minimal logging interface the adapter needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Adapter talks to a REST lock vendor. It satisfies adapters.Adapter.
type Adapter struct {
	name   string
	apiKey string
	client *resty.Client
	logger Logger

	pacer   *adapters.Pacer
	retry   *adapters.RetryPolicy
	refresh adapters.RefreshGroup

	mu    sync.RWMutex
	token string
}

// New creates a restlock adapter. logger may be nil.
func New(cfg Config, logger Logger) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("restlock: vendor name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("restlock: base URL is required")
	}
	if logger == nil {
		logger = noopLogger{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Adapter{
		name:   cfg.Name,
		apiKey: cfg.APIKey,
		client: client,
		logger: logger,
		pacer:  adapters.NewPacer(cfg.MinSpacing),
		retry:  adapters.NewRetryPolicy(cfg.MaxRetries, cfg.BaseDelay),
	}, nil
}

// Name returns the configured vendor name.
func (a *Adapter) Name() string {
	return a.name
}

// FetchDevices returns every device the vendor account can see.
func (a *Adapter) FetchDevices(ctx context.Context) ([]*device.Device, error) {
	var list wireDeviceList
	err := a.call(ctx, "fetchDevices", func() error {
		resp, err := a.request(ctx).SetResult(&list).Get("/v1/devices")
		return a.classify("fetchDevices", resp, err)
	})
	if err != nil {
		return nil, err
	}

	devices := make([]*device.Device, 0, len(list.Devices))
	for i := range list.Devices {
		dev, err := list.Devices[i].toDevice(a.name)
		if err != nil {
			// One malformed payload does not poison the whole listing.
			a.logger.Warn("skipping malformed device payload",
				"vendor", a.name, "error", err.Error())
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// DeviceState returns the current state of one device.
func (a *Adapter) DeviceState(ctx context.Context, id string) (*device.Device, error) {
	var wire wireDevice
	err := a.call(ctx, "deviceState", func() error {
		resp, err := a.request(ctx).SetResult(&wire).Get("/v1/devices/" + id)
		return a.classify("deviceState", resp, err)
	})
	if err != nil {
		return nil, err
	}

	dev, err := wire.toDevice(a.name)
	if err != nil {
		return nil, adapters.NewError(a.name, "deviceState", adapters.ClassOperationFailed, err)
	}
	return dev, nil
}

// ExecuteCommand performs a state-changing operation on a device.
func (a *Adapter) ExecuteCommand(ctx context.Context, id string, cmd device.Command) (*device.Device, error) {
	if err := cmd.Validate(); err != nil {
		return nil, adapters.NewError(a.name, "executeCommand", adapters.ClassUnsupported, err)
	}

	body := map[string]any{"operation": string(cmd.Operation)}
	if len(cmd.Settings) > 0 {
		body["settings"] = cmd.Settings
	}

	var wire wireDevice
	err := a.call(ctx, "executeCommand", func() error {
		resp, err := a.request(ctx).
			SetBody(body).
			SetResult(&wire).
			Post("/v1/devices/" + id + "/commands")
		return a.classify("executeCommand", resp, err)
	})
	if err != nil {
		return nil, err
	}

	dev, err := wire.toDevice(a.name)
	if err != nil {
		return nil, adapters.NewError(a.name, "executeCommand", adapters.ClassOperationFailed, err)
	}
	return dev, nil
}

// RefreshAuth exchanges the API key for a fresh bearer token. Concurrent
// callers share one underlying refresh.
func (a *Adapter) RefreshAuth(ctx context.Context) error {
	return a.refresh.Do(ctx, a.refreshToken)
}

// RevokeAuth invalidates the current token at the vendor.
func (a *Adapter) RevokeAuth(ctx context.Context) error {
	resp, err := a.request(ctx).Post("/v1/auth/revoke")
	if err := a.classify("revokeAuth", resp, err); err != nil {
		return err
	}
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
	return nil
}

// call wraps one vendor operation with pacing, backoff, and a single
// refresh-and-replay on an expired credential.
func (a *Adapter) call(ctx context.Context, op string, fn func() error) error {
	return a.retry.Do(ctx, func() error {
		if err := a.pacer.Wait(ctx); err != nil {
			return err
		}
		err := fn()
		if !adapters.IsAuthExpired(err) {
			return err
		}

		a.logger.Debug("credential expired, refreshing", "vendor", a.name, "op", op)
		if refreshErr := a.refresh.Do(ctx, a.refreshToken); refreshErr != nil {
			return refreshErr
		}
		if err := a.pacer.Wait(ctx); err != nil {
			return err
		}
		return fn()
	})
}

// refreshToken performs the actual key-for-token exchange.
func (a *Adapter) refreshToken(ctx context.Context) error {
	var token wireToken
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"api_key": a.apiKey}).
		SetResult(&token).
		Post("/v1/auth/refresh")
	if err := a.classify("refreshAuth", resp, err); err != nil {
		return err
	}
	if token.Token == "" {
		return adapters.NewError(a.name, "refreshAuth", adapters.ClassOperationFailed,
			fmt.Errorf("vendor returned empty token"))
	}

	a.mu.Lock()
	a.token = token.Token
	a.mu.Unlock()
	return nil
}

// request builds a request carrying the current bearer token.
func (a *Adapter) request(ctx context.Context) *resty.Request {
	a.mu.RLock()
	token := a.token
	a.mu.RUnlock()

	req := a.client.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// classify maps transport errors and HTTP statuses onto the adapter error
// classes the orchestrator dispatches on.
func (a *Adapter) classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return adapters.NewError(a.name, op, adapters.ClassNetwork, err)
	}
	if resp == nil {
		return adapters.NewError(a.name, op, adapters.ClassNetwork, fmt.Errorf("no response"))
	}
	if resp.IsSuccess() {
		return nil
	}

	detail := vendorMessage(resp.Body())
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return adapters.NewError(a.name, op, adapters.ClassAuthExpired, detail)
	case http.StatusNotFound:
		return adapters.NewError(a.name, op, adapters.ClassNotFound, detail)
	case http.StatusTooManyRequests:
		return adapters.NewError(a.name, op, adapters.ClassRateLimited, detail)
	case http.StatusNotImplemented, http.StatusMethodNotAllowed:
		return adapters.NewError(a.name, op, adapters.ClassUnsupported, detail)
	default:
		if resp.StatusCode() >= http.StatusInternalServerError {
			return adapters.NewError(a.name, op, adapters.ClassNetwork, detail)
		}
		return adapters.NewError(a.name, op, adapters.ClassOperationFailed, detail)
	}
}

// vendorMessage pulls the vendor's error body, falling back to nil when it
// is absent or unparseable.
func vendorMessage(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var wire wireError
	if err := json.Unmarshal(body, &wire); err != nil || wire.Error.Message == "" {
		return nil
	}
	if wire.Error.Code != "" {
		return fmt.Errorf("%s: %s", wire.Error.Code, wire.Error.Message)
	}
	return fmt.Errorf("%s", wire.Error.Message)
}
