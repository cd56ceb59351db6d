// Package marketplace serves the plugin tier catalog and resolves upgrade
// targets against it.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridianhq/meridian/internal/entitlement"
)

var (
	// ErrUnreachable indicates the marketplace backend could not be reached.
	ErrUnreachable = errors.New("marketplace: backend unreachable")
	// ErrMalformed indicates the response failed schema or tier-invariant
	// validation.
	ErrMalformed = errors.New("marketplace: malformed catalog payload")
	// ErrUnknownPlugin indicates the plugin has no marketplace listing.
	ErrUnknownPlugin = errors.New("marketplace: unknown plugin")
)

// Listing is one plugin's marketplace entry with its normalized tiers.
type Listing struct {
	ID          string
	Name        string
	Description string
	Tiers       []entitlement.Tier
}

// Client fetches the marketplace catalog over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
}

// NewClient constructs a marketplace client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		validate: validator.New(),
	}
}

type tierPayload struct {
	TierID        string   `json:"tier_id" validate:"required"`
	Name          string   `json:"name" validate:"required"`
	Features      []string `json:"features"`
	PriceMonthly  *float64 `json:"price_monthly,omitempty"`
	PriceYearly   *float64 `json:"price_yearly,omitempty"`
	PriceLifetime *float64 `json:"price_lifetime,omitempty"`
}

type listingPayload struct {
	ID          string        `json:"id" validate:"required,uuid"`
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description"`
	Tiers       []tierPayload `json:"tiers" validate:"dive"`
}

type catalogPayload struct {
	Plugins []listingPayload `json:"plugins"`
}

// FetchCatalog retrieves and validates the marketplace catalog. Tier order
// follows array position; the monotonicity invariant is enforced here so
// everything downstream can trust it.
func (c *Client) FetchCatalog(ctx context.Context) ([]Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/saas/marketplace", nil)
	if err != nil {
		return nil, fmt.Errorf("marketplace: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, res.StatusCode)
	}

	var payload catalogPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}

	listings := make([]Listing, 0, len(payload.Plugins))
	for _, p := range payload.Plugins {
		if err := c.validate.Struct(p); err != nil {
			return nil, fmt.Errorf("%w: listing %q: %v", ErrMalformed, p.ID, err)
		}
		tiers := make([]entitlement.Tier, 0, len(p.Tiers))
		for pos, t := range p.Tiers {
			features := make([]entitlement.FeatureKey, 0, len(t.Features))
			for _, f := range t.Features {
				features = append(features, entitlement.FeatureKey(f))
			}
			tiers = append(tiers, entitlement.Tier{
				ID:            t.TierID,
				Name:          t.Name,
				Position:      pos,
				Features:      features,
				PriceMonthly:  t.PriceMonthly,
				PriceYearly:   t.PriceYearly,
				PriceLifetime: t.PriceLifetime,
			})
		}
		normalized, err := entitlement.NormalizeTiers(tiers)
		if err != nil {
			return nil, fmt.Errorf("%w: listing %q: %v", ErrMalformed, p.ID, err)
		}
		listings = append(listings, Listing{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Tiers:       normalized,
		})
	}
	return listings, nil
}
