package models

// Resolution statuses, in decreasing order of certainty.
const (
	ResolutionListed    = "listed"
	ResolutionMatch     = "catalog_match"
	ResolutionAmbiguous = "catalog_ambiguous"
	ResolutionNotFound  = "not_found"
)

// CatalogCandidate is one marketplace catalog item considered during fuzzy
// matching. Candidates live for the duration of one resolution call; for
// ambiguous rows the top five are persisted for manual review.
type CatalogCandidate struct {
	ASIN  string  `json:"asin"`
	Title string  `json:"title"`
	Brand string  `json:"brand"`
	Score float64 `json:"score"`
}

// ResolutionResult is the outcome of resolving one ProductDescriptor against
// the marketplace catalog. ASIN is set only for listed/catalog_match;
// Candidates only for catalog_ambiguous.
type ResolutionResult struct {
	Status     string             `json:"status"`
	ASIN       string             `json:"asin,omitempty"`
	Score      float64            `json:"score"`
	Candidates []CatalogCandidate `json:"candidates,omitempty"`
}
