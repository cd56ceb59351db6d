package marketplace

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridianhq/meridian/internal/entitlement"
)

// TierView is the wire shape of a tier in catalog responses, with display
// prices formatted server side.
type TierView struct {
	TierID        string   `json:"tier_id"`
	Name          string   `json:"name"`
	Features      []string `json:"features"`
	PriceMonthly  string   `json:"price_monthly,omitempty"`
	PriceYearly   string   `json:"price_yearly,omitempty"`
	PriceLifetime string   `json:"price_lifetime,omitempty"`
}

// ListingView is the wire shape of one marketplace listing.
type ListingView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tiers       []TierView `json:"tiers"`
}

var pricePrinter = message.NewPrinter(language.English)

func formatPrice(amount *float64) string {
	if amount == nil {
		return ""
	}
	return pricePrinter.Sprintf("$%.2f", *amount)
}

func toTierView(t entitlement.Tier) TierView {
	features := make([]string, len(t.Features))
	for i, f := range t.Features {
		features[i] = string(f)
	}
	return TierView{
		TierID:        t.ID,
		Name:          t.Name,
		Features:      features,
		PriceMonthly:  formatPrice(t.PriceMonthly),
		PriceYearly:   formatPrice(t.PriceYearly),
		PriceLifetime: formatPrice(t.PriceLifetime),
	}
}

func toListingView(l Listing) ListingView {
	tiers := make([]TierView, len(l.Tiers))
	for i, t := range l.Tiers {
		tiers[i] = toTierView(t)
	}
	return ListingView{ID: l.ID, Name: l.Name, Description: l.Description, Tiers: tiers}
}
