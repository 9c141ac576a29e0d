// Package resolve decides whether a supplier product already exists on the
// marketplace and under which catalog identifier, using layered exact and
// fuzzy matching with confidence scoring.
package resolve

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/dmarques/spsync/internal/cache"
	"github.com/dmarques/spsync/internal/spapi"
	"github.com/dmarques/spsync/pkg/models"
)

const (
	// matchThreshold is the minimum best-candidate score for catalog_match.
	matchThreshold = 0.80

	brandWeight   = 0.20
	simHighBonus  = 0.15
	simHighCutoff = 0.90
	simMidBonus   = 0.10
	simMidCutoff  = 0.80

	maxCandidates = 5
	maxTokens     = 6

	cacheTTL = 12 * time.Hour
)

var reModelToken = regexp.MustCompile(`[A-Z0-9]{2,}[-_A-Z0-9]*`)
var reWhitespace = regexp.MustCompile(`\s+`)

// Resolver resolves ProductDescriptors against the marketplace catalog.
// Lookup failures degrade to "no results" for that step; only a credential
// failure aborts resolution.
type Resolver struct {
	client   spapi.Client
	cache    cache.Cache
	sellerID string
}

// New creates a Resolver. cache may be nil to disable result caching.
func New(client spapi.Client, c cache.Cache, sellerID string) *Resolver {
	return &Resolver{client: client, cache: c, sellerID: sellerID}
}

// Resolve runs the layered matching algorithm: own listing, then exact
// identifier, then brand-filtered and unfiltered keyword search with
// candidate scoring. The first definitive match wins.
func (r *Resolver) Resolve(ctx context.Context, desc models.ProductDescriptor) (models.ResolutionResult, error) {
	if res, ok := r.cached(ctx, desc.SKU); ok {
		return res, nil
	}

	// 1. Already listed under this SKU?
	if r.sellerID != "" && desc.SKU != "" {
		item, err := r.client.GetListing(ctx, r.sellerID, desc.SKU)
		if err != nil {
			if spapi.IsFatal(err) {
				return models.ResolutionResult{}, err
			}
			slog.Debug("listing lookup degraded", "sku", desc.SKU, "error", err)
		} else if item != nil {
			res := models.ResolutionResult{Status: models.ResolutionListed, ASIN: item.ASIN, Score: 1.0}
			r.remember(ctx, desc.SKU, res)
			return res, nil
		}
	}

	// 2. Exact identifier lookup; the first hit is an exact match.
	if desc.EAN != "" {
		items, err := r.client.SearchByIdentifier(ctx, desc.EAN)
		if err != nil {
			if spapi.IsFatal(err) {
				return models.ResolutionResult{}, err
			}
			slog.Debug("identifier lookup degraded", "sku", desc.SKU, "error", err)
		} else if len(items) > 0 {
			res := models.ResolutionResult{Status: models.ResolutionMatch, ASIN: items[0].ASIN, Score: 1.0}
			r.remember(ctx, desc.SKU, res)
			return res, nil
		}
	}

	// 3. Keyword search, brand-filtered first, then unfiltered.
	keywords := strings.TrimSpace(desc.Title)
	if keywords == "" {
		keywords = desc.SKU
	}
	items := r.search(ctx, keywords, desc.Brand)
	if len(items) == 0 && desc.Brand != "" {
		items = r.search(ctx, keywords, "")
	}

	res := scoreCandidates(items, desc)
	r.remember(ctx, desc.SKU, res)
	return res, nil
}

func (r *Resolver) search(ctx context.Context, keywords, brand string) []spapi.CatalogItem {
	items, err := r.client.SearchByKeywords(ctx, keywords, brand)
	if err != nil {
		slog.Debug("keyword search degraded", "keywords", keywords, "brand", brand, "error", err)
		return nil
	}
	return items
}

// scoreCandidates scores every returned catalog item against the descriptor
// and classifies the outcome by the best score.
func scoreCandidates(items []spapi.CatalogItem, desc models.ProductDescriptor) models.ResolutionResult {
	if len(items) == 0 {
		return models.ResolutionResult{Status: models.ResolutionNotFound}
	}

	tokens := extractModelTokens(firstNonEmpty(desc.Title, desc.SKU))
	reference := strings.TrimSpace(desc.Brand + " " + strings.Join(tokens, " "))

	candidates := make([]models.CatalogCandidate, 0, len(items))
	best := -1
	for i, it := range items {
		sc := 0.0
		if brandsEqual(it.Brand, desc.Brand) {
			sc += brandWeight
		}

		sim := similarity(it.Title, reference)
		if sim >= simHighCutoff {
			sc += simHighBonus
		} else if sim >= simMidCutoff {
			sc += simMidBonus
		}

		sc = math.Min(math.Round(sc*100)/100, 1.0)
		candidates = append(candidates, models.CatalogCandidate{
			ASIN:  it.ASIN,
			Title: it.Title,
			Brand: it.Brand,
			Score: sc,
		})
		// Ties break in first-seen order.
		if best < 0 || sc > candidates[best].Score {
			best = i
		}
	}

	if candidates[best].Score >= matchThreshold {
		return models.ResolutionResult{
			Status: models.ResolutionMatch,
			ASIN:   candidates[best].ASIN,
			Score:  candidates[best].Score,
		}
	}
	// Ambiguous rows surface the top candidates for manual review.
	return models.ResolutionResult{
		Status:     models.ResolutionAmbiguous,
		Score:      candidates[best].Score,
		Candidates: topByScore(candidates, maxCandidates),
	}
}

// topByScore returns up to n candidates ordered by descending score,
// preserving first-seen order among equals.
func topByScore(cands []models.CatalogCandidate, n int) []models.CatalogCandidate {
	out := make([]models.CatalogCandidate, len(cands))
	copy(out, cands)
	// Stable insertion keeps ties in input order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// extractModelTokens pulls up to maxTokens alphanumeric model-like tokens
// (length >= 2, uppercase-normalized) out of a product title or SKU.
func extractModelTokens(s string) []string {
	tokens := reModelToken.FindAllString(strings.ToUpper(s), -1)
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	return tokens
}

// normalize collapses whitespace and lowercases for comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(reWhitespace.ReplaceAllString(s, " ")))
}

func brandsEqual(a, b string) bool {
	return a != "" && normalize(a) == normalize(b)
}

// similarity is a normalized edit-distance ratio in [0,1] between the
// whitespace-collapsed lowercase forms of a and b.
func similarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" && nb == "" {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	return 1.0 - float64(dist)/float64(longest)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (r *Resolver) cached(ctx context.Context, sku string) (models.ResolutionResult, bool) {
	if r.cache == nil || sku == "" {
		return models.ResolutionResult{}, false
	}
	raw, ok, err := r.cache.Get(ctx, cache.ResolutionKey(sku))
	if err != nil || !ok {
		return models.ResolutionResult{}, false
	}
	var res models.ResolutionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return models.ResolutionResult{}, false
	}
	return res, true
}

func (r *Resolver) remember(ctx context.Context, sku string, res models.ResolutionResult) {
	if r.cache == nil || sku == "" {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cache.ResolutionKey(sku), raw, cacheTTL); err != nil {
		slog.Debug("resolution cache write failed", "sku", sku, "error", err)
	}
}
