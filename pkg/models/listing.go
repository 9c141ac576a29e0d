package models

import "time"

// Listing is one row of the seller's current-listings index, rebuilt from
// the merchant listings report. Keyed by both seller SKU and ASIN.
type Listing struct {
	ASIN      string    `db:"asin"       json:"asin"`
	SellerSKU string    `db:"seller_sku" json:"seller_sku"`
	Price     string    `db:"price"      json:"price"`
	Quantity  string    `db:"quantity"   json:"quantity"`
	Condition string    `db:"condition"  json:"condition"`
	Status    string    `db:"status"     json:"status"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
