// Package pricing computes compliant sell prices from cost, fee, tax and
// competitor data. All operations are pure and deterministic.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/dmarques/spsync/internal/config"
	"github.com/dmarques/spsync/pkg/models"
)

var (
	one = decimal.NewFromInt(1)
	// Divisor clamp when fees would consume the whole price.
	minFeeFactor = decimal.RequireFromString("0.0001")
	charmCents   = decimal.RequireFromString("0.99")
)

// Engine derives floor and recommended prices from a resolved PricingConfig.
type Engine struct {
	cfg config.PricingConfig
}

// NewEngine creates an Engine. The config is read-only after construction.
func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Floor computes the minimum price that still guarantees the configured
// margin after marketplace fees, shipping and VAT. Negative costs are
// treated as zero.
func (e *Engine) Floor(cost decimal.Decimal) decimal.Decimal {
	if cost.IsNegative() {
		cost = decimal.Zero
	}

	margin := e.tierMargin(cost)
	target := cost.Mul(one.Add(margin)).Add(e.cfg.ShippingCost).Add(e.cfg.FixedSurcharge)

	// Referral fees apply to the VAT-exclusive sell price, so back them out
	// before adding VAT.
	feeFactor := one.Sub(e.cfg.FeeRate.Mul(one.Add(e.cfg.FeeSurchargeRate)))
	if feeFactor.LessThanOrEqual(decimal.Zero) {
		feeFactor = minFeeFactor
	}
	priceExVAT := target.Div(feeFactor)
	priceIncVAT := priceExVAT.Mul(one.Add(e.cfg.VATRate))

	p := e.round(priceIncVAT)
	if e.cfg.MinAbsFloor.IsPositive() && p.LessThan(e.cfg.MinAbsFloor) {
		p = e.cfg.MinAbsFloor
	}
	return p.Round(2)
}

// Recommend computes the competitive sell price for a row. With a known
// competitor price it undercuts by the configured step but never drops below
// the floor; without one it returns the floor. A configured max price cap is
// applied, but the floor still wins over the cap.
func (e *Engine) Recommend(cost, competitorPrice decimal.Decimal) models.PricingResult {
	floor := e.Floor(cost)

	final := floor
	if competitorPrice.IsPositive() {
		candidate := competitorPrice.Sub(e.cfg.UndercutStep).Round(2)
		if candidate.GreaterThan(final) {
			final = candidate
		}
	}
	if e.cfg.MaxPriceCap.IsPositive() && final.GreaterThan(e.cfg.MaxPriceCap) {
		final = e.cfg.MaxPriceCap
		if final.LessThan(floor) {
			final = floor
		}
	}

	return models.PricingResult{
		FloorPrice:       floor,
		RecommendedPrice: final.Round(2),
	}
}

// tierMargin selects the first tier whose upper cost bound covers cost.
// Tiers are sorted ascending at config load.
func (e *Engine) tierMargin(cost decimal.Decimal) decimal.Decimal {
	for _, t := range e.cfg.Tiers {
		if cost.LessThanOrEqual(t.MaxCost) {
			return t.Margin
		}
	}
	return e.cfg.DefaultMargin
}

// round applies the configured rounding policy. Plain policy rounds to two
// decimals. The ".99" policy rounds up to the nearest X.99: every price in
// [N, N+1) becomes N.99, including an exact integer N.
func (e *Engine) round(p decimal.Decimal) decimal.Decimal {
	p = p.Round(2)
	if e.cfg.Rounding != ".99" {
		return p
	}
	return p.Floor().Add(charmCents)
}
