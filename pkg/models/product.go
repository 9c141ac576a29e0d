// Package models contains shared data models used across the spsync codebase.
package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductDescriptor is one supplier catalog row. Created per input row and
// immutable within a run.
type ProductDescriptor struct {
	SKU      string          `db:"sku"      json:"sku"`
	EAN      string          `db:"ean"      json:"ean,omitempty"`
	Brand    string          `db:"brand"    json:"brand"`
	Title    string          `db:"title"    json:"title"`
	Category string          `db:"category" json:"category,omitempty"`
	Cost     decimal.Decimal `db:"cost"     json:"cost"`
	Stock    int             `db:"stock"    json:"stock"`
}

// Validate reports whether the descriptor is usable. A missing SKU is the
// only hard failure; negative cost and stock are normalized to zero by the
// pricing and planning layers rather than rejected here.
func (p ProductDescriptor) Validate() error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("descriptor has empty sku")
	}
	return nil
}
