// Package plan turns resolved, priced supplier rows into marketplace actions
// and manages operator approval of ambiguous matches.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmarques/spsync/internal/pricing"
	"github.com/dmarques/spsync/internal/store"
	"github.com/dmarques/spsync/pkg/models"
)

// Resolver is the piece of the identity layer the planner needs.
type Resolver interface {
	Resolve(ctx context.Context, desc models.ProductDescriptor) (models.ResolutionResult, error)
}

// Planner classifies supplier rows and derives the per-row action. One
// classification per SKU; re-classifying replaces the stored snapshot.
type Planner struct {
	resolver    Resolver
	engine      *pricing.Engine
	competitors pricing.CompetitorSource
	store       store.Store
}

func New(resolver Resolver, engine *pricing.Engine, competitors pricing.CompetitorSource, st store.Store) *Planner {
	if competitors == nil {
		competitors = pricing.NoCompetitor{}
	}
	return &Planner{resolver: resolver, engine: engine, competitors: competitors, store: st}
}

// Classify resolves and prices one descriptor, assigns its action, and
// persists the resulting snapshot.
func (p *Planner) Classify(ctx context.Context, desc models.ProductDescriptor) (*models.Classification, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	res, err := p.resolver.Resolve(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", desc.SKU, err)
	}

	competitor := decimal.Zero
	if res.ASIN != "" {
		price, ok, err := p.competitors.LowestPrice(ctx, res.ASIN)
		if err != nil {
			return nil, fmt.Errorf("competitor price for %s: %w", res.ASIN, err)
		}
		if ok {
			competitor = price
		}
	}
	priced := p.engine.Recommend(desc.Cost, competitor)

	status, action, err := p.classify(ctx, res)
	if err != nil {
		return nil, err
	}

	c := &models.Classification{
		SKU:        desc.SKU,
		EAN:        desc.EAN,
		Brand:      desc.Brand,
		Title:      desc.Title,
		Category:   desc.Category,
		Cost:       desc.Cost,
		Stock:      maxInt(desc.Stock, 0),
		Status:     status,
		ASIN:       res.ASIN,
		Score:      res.Score,
		Action:     action,
		FloorPrice: priced.FloorPrice,
		SellPrice:  priced.RecommendedPrice,
		Candidates: res.Candidates,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := p.store.UpsertClassification(ctx, c); err != nil {
		return nil, fmt.Errorf("persist classification %s: %w", desc.SKU, err)
	}
	return c, nil
}

// classify maps a resolution outcome to the stored status and action. A
// catalog match whose ASIN already appears in the listings index is forced to
// listed, overriding the resolver: the seller offer exists even though the
// per-SKU lookup missed it.
func (p *Planner) classify(ctx context.Context, res models.ResolutionResult) (string, string, error) {
	switch res.Status {
	case models.ResolutionListed:
		return models.ResolutionListed, models.ActionUpdatePriceStock, nil
	case models.ResolutionMatch:
		if res.ASIN != "" {
			_, err := p.store.GetListingByASIN(ctx, res.ASIN)
			if err == nil {
				return models.ResolutionListed, models.ActionUpdatePriceStock, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return "", "", fmt.Errorf("listings index lookup: %w", err)
			}
		}
		return models.ResolutionMatch, models.ActionCreateListing, nil
	case models.ResolutionAmbiguous:
		return models.ResolutionAmbiguous, models.ActionReview, nil
	case models.ResolutionNotFound:
		return models.ResolutionNotFound, models.ActionCreateProduct, nil
	}
	return "", "", fmt.Errorf("unknown resolution status %q", res.Status)
}

// Plan converts classifications into submittable actions. Review rows are
// excluded: they are never auto-submitted.
func (p *Planner) Plan(classifications []*models.Classification) []models.PlannedAction {
	var actions []models.PlannedAction
	for _, c := range classifications {
		if c.Action == models.ActionReview {
			continue
		}
		actions = append(actions, models.PlannedAction{
			SKU:    c.SKU,
			ASIN:   c.ASIN,
			Action: c.Action,
			Price:  c.SellPrice,
			Stock:  maxInt(c.Stock, 0),
		})
	}
	return actions
}

// Approve resolves a review row to a concrete catalog item. With asin empty
// the preferred candidate is chosen: the first whose brand matches the row's
// brand, else the first candidate. Rows without candidates are left unchanged.
func (p *Planner) Approve(ctx context.Context, sku, asin string) (*models.Classification, error) {
	c, err := p.store.GetClassification(ctx, sku)
	if err != nil {
		return nil, err
	}
	if c.Action != models.ActionReview {
		return nil, fmt.Errorf("classification %s is %s, not awaiting review", sku, c.Action)
	}

	score := c.Score
	if asin == "" {
		chosen, ok := preferredCandidate(c.Candidates, c.Brand)
		if !ok {
			return c, nil
		}
		asin = chosen.ASIN
		score = chosen.Score
	}

	c.ASIN = asin
	c.Status = models.ResolutionMatch
	c.Score = score
	c.Action = models.ActionCreateListing
	if _, err := p.store.GetListingByASIN(ctx, asin); err == nil {
		c.Status = models.ResolutionListed
		c.Action = models.ActionUpdatePriceStock
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("listings index lookup: %w", err)
	}
	c.UpdatedAt = time.Now().UTC()

	if err := p.store.UpsertClassification(ctx, c); err != nil {
		return nil, fmt.Errorf("persist approval %s: %w", sku, err)
	}
	return c, nil
}

// BulkApprove approves each SKU with its preferred candidate and returns how
// many rows changed. Per-row failures are logged and skipped.
func (p *Planner) BulkApprove(ctx context.Context, skus []string) (int, error) {
	approved := 0
	for _, sku := range skus {
		before, err := p.store.GetClassification(ctx, sku)
		if err != nil {
			slog.Warn("bulk approve skipped row", "sku", sku, "error", err)
			continue
		}
		after, err := p.Approve(ctx, sku, "")
		if err != nil {
			slog.Warn("bulk approve skipped row", "sku", sku, "error", err)
			continue
		}
		if after.Action != before.Action {
			approved++
		}
	}
	return approved, nil
}

// preferredCandidate picks the first brand-matching candidate, else the first.
func preferredCandidate(cands []models.CatalogCandidate, brand string) (models.CatalogCandidate, bool) {
	if len(cands) == 0 {
		return models.CatalogCandidate{}, false
	}
	want := strings.ToLower(strings.TrimSpace(brand))
	if want != "" {
		for _, c := range cands {
			if strings.ToLower(strings.TrimSpace(c.Brand)) == want {
				return c, true
			}
		}
	}
	return cands[0], true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
