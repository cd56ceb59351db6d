package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/entitlement"
)

// Catalog is the parsed result of one backend fetch: the published plugins
// and their per-tenant enablement records.
type Catalog struct {
	Plugins []entitlement.Plugin
	// States is keyed by tenant id, then plugin id. Tenant id 0 holds
	// deployment-wide records that apply to every tenant not explicitly
	// listed.
	States map[int64]map[string]entitlement.PluginState
}

// CatalogClient fetches the plugin catalog. Implemented by Client; stubbed in
// tests.
type CatalogClient interface {
	FetchCatalog(ctx context.Context) (Catalog, error)
}

// ClientConfig tunes the HTTP catalog client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// RetryMax bounds retries on unreachable backends. Malformed payloads
	// are never retried.
	RetryMax  int
	RetryBase time.Duration
}

// Client talks to the plugin backend over HTTP.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	validate *validator.Validate
}

// NewClient constructs a catalog client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}
}

type pluginPayload struct {
	ID      string `json:"id" validate:"required,uuid"`
	Name    string `json:"name" validate:"required"`
	Version string `json:"version" validate:"required"`
}

type statePayload struct {
	ID       string `json:"id" validate:"required,uuid"`
	Status   string `json:"status" validate:"required"`
	TenantID int64  `json:"tenant_id,omitempty"`
}

type catalogPayload struct {
	Plugins []pluginPayload `json:"plugins"`
	States  []statePayload  `json:"states"`
}

// FetchCatalog performs the catalog request with bounded retry on transport
// failures. A 404 means the deployment publishes no plugins and yields an
// empty catalog; any other non-200 status counts as unreachable.
func (c *Client) FetchCatalog(ctx context.Context) (Catalog, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		catalog, err := c.fetchOnce(ctx)
		if err == nil {
			return catalog, nil
		}
		if !errors.Is(err, ErrUnreachable) || attempt >= c.cfg.RetryMax {
			return Catalog{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return Catalog{}, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
		case <-time.After(c.cfg.RetryBase << attempt):
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/plugins", nil)
	if err != nil {
		return Catalog{}, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusNotFound:
		// No plugins published. Not an error.
		return Catalog{States: map[int64]map[string]entitlement.PluginState{}}, nil
	default:
		return Catalog{}, fmt.Errorf("%w: status %d", ErrUnreachable, res.StatusCode)
	}

	var payload catalogPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Catalog{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	return c.buildCatalog(payload)
}

func (c *Client) buildCatalog(payload catalogPayload) (Catalog, error) {
	catalog := Catalog{
		Plugins: make([]entitlement.Plugin, 0, len(payload.Plugins)),
		States:  make(map[int64]map[string]entitlement.PluginState),
	}
	known := make(map[string]struct{}, len(payload.Plugins))

	for _, p := range payload.Plugins {
		if err := c.validate.Struct(p); err != nil {
			return Catalog{}, fmt.Errorf("%w: plugin %q: %v", ErrMalformed, p.ID, err)
		}
		if _, dup := known[p.ID]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate plugin id %q", ErrMalformed, p.ID)
		}
		known[p.ID] = struct{}{}
		catalog.Plugins = append(catalog.Plugins, entitlement.Plugin{ID: p.ID, Name: p.Name, Version: p.Version})
	}

	for _, s := range payload.States {
		if _, err := uuid.Parse(s.ID); err != nil {
			return Catalog{}, fmt.Errorf("%w: state id %q: %v", ErrMalformed, s.ID, err)
		}
		if _, ok := known[s.ID]; !ok {
			// A state record for an unpublished plugin cannot enable
			// anything; drop it rather than fail the whole fetch.
			continue
		}
		tenant := catalog.States[s.TenantID]
		if tenant == nil {
			tenant = make(map[string]entitlement.PluginState)
			catalog.States[s.TenantID] = tenant
		}
		if _, dup := tenant[s.ID]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate state for plugin %q", ErrMalformed, s.ID)
		}
		tenant[s.ID] = entitlement.PluginState{
			PluginID: s.ID,
			Status:   entitlement.ParsePluginStatus(s.Status),
		}
	}
	return catalog, nil
}
