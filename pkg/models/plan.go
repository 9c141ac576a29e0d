package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actions a classified row can be assigned. Review rows are never
// auto-submitted; they wait for operator approval.
const (
	ActionUpdatePriceStock = "update_price_stock"
	ActionCreateListing    = "create_listing"
	ActionCreateProduct    = "create_product"
	ActionReview           = "review"
)

// PricingResult holds the two prices the engine derives for a row.
// RecommendedPrice is always >= FloorPrice.
type PricingResult struct {
	FloorPrice       decimal.Decimal `json:"floor_price"`
	RecommendedPrice decimal.Decimal `json:"recommended_price"`
}

// PlannedAction is the per-row decision the planner hands to the feed
// manager. One per ProductDescriptor per run.
type PlannedAction struct {
	SKU    string          `json:"sku"`
	ASIN   string          `json:"asin,omitempty"`
	Action string          `json:"action"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
}

// Classification is the persisted resolution snapshot for one SKU. It is the
// single-writer resource a sync run reads and the classify operation writes;
// runs are serialized by a distributed lock, never interleaved per row.
type Classification struct {
	SKU        string             `db:"sku"         json:"sku"`
	EAN        string             `db:"ean"         json:"ean,omitempty"`
	Brand      string             `db:"brand"       json:"brand"`
	Title      string             `db:"title"       json:"title"`
	Category   string             `db:"category"    json:"category,omitempty"`
	Cost       decimal.Decimal    `db:"cost"        json:"cost"`
	Stock      int                `db:"stock"       json:"stock"`
	Status     string             `db:"status"      json:"status"`
	ASIN       string             `db:"asin"        json:"asin,omitempty"`
	Score      float64            `db:"score"       json:"score"`
	Action     string             `db:"action"      json:"action"`
	FloorPrice decimal.Decimal    `db:"floor_price"   json:"floor_price"`
	SellPrice  decimal.Decimal    `db:"sell_price"    json:"sell_price"`
	Candidates []CatalogCandidate `db:"candidates"  json:"candidates,omitempty"`
	UpdatedAt  time.Time          `db:"updated_at"  json:"updated_at"`
}
