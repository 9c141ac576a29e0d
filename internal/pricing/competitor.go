package pricing

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/dmarques/spsync/internal/spapi"
)

// CompetitorSource supplies the lowest competing offer for a catalog item.
// The boolean is false when no competitor price is known.
type CompetitorSource interface {
	LowestPrice(ctx context.Context, asin string) (decimal.Decimal, bool, error)
}

// OffersSource reads competing offers from the marketplace pricing API and
// returns the lowest landed price.
type OffersSource struct {
	client spapi.Client
}

func NewOffersSource(client spapi.Client) *OffersSource {
	return &OffersSource{client: client}
}

func (s *OffersSource) LowestPrice(ctx context.Context, asin string) (decimal.Decimal, bool, error) {
	offers, err := s.client.GetListingOffers(ctx, asin)
	if err != nil {
		if spapi.IsFatal(err) {
			return decimal.Zero, false, err
		}
		// Offer lookups are best effort: price from the floor instead.
		slog.Debug("offer lookup degraded", "asin", asin, "error", err)
		return decimal.Zero, false, nil
	}

	lowest := decimal.Zero
	found := false
	for _, o := range offers {
		p := decimal.NewFromFloat(o.LandedPrice)
		if !p.IsPositive() {
			continue
		}
		if !found || p.LessThan(lowest) {
			lowest = p
			found = true
		}
	}
	return lowest, found, nil
}

// NoCompetitor never knows a competing price. Used when offer data is
// unavailable or deliberately ignored.
type NoCompetitor struct{}

func (NoCompetitor) LowestPrice(context.Context, string) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

var _ CompetitorSource = (*OffersSource)(nil)
var _ CompetitorSource = NoCompetitor{}
