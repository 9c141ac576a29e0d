package feed

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/dmarques/spsync/pkg/models"
)

// Column headers are part of the platform contract: names and order must
// match byte-for-byte.
const (
	pricingHeader   = "sku\tprice\tcurrency"
	inventoryHeader = "sku\tquantity\tfulfillment-channel"
	listingsHeader  = "sku\tproduct-id\tproduct-id-type\tprice\tquantity\tadd-delete\tcondition-type"

	feedContentType = "text/tab-separated-values; charset=UTF-8"
)

// BuildPricingFeed serializes price rows for the pricing feed.
func BuildPricingFeed(actions []models.PlannedAction, currency string) []byte {
	var b strings.Builder
	b.WriteString(pricingHeader + "\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", a.SKU, a.Price.StringFixed(2), currency)
	}
	return []byte(b.String())
}

// BuildInventoryFeed serializes stock rows for the inventory feed.
func BuildInventoryFeed(actions []models.PlannedAction) []byte {
	var b strings.Builder
	b.WriteString(inventoryHeader + "\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "%s\t%d\tDEFAULT\n", a.SKU, a.Stock)
	}
	return []byte(b.String())
}

// BuildListingsFeed serializes new-listing rows for the flat-file listings
// feed. product-id is the matched ASIN (type 1); rows without one leave the
// column empty for platform-side catalog creation.
func BuildListingsFeed(actions []models.PlannedAction) []byte {
	var b strings.Builder
	b.WriteString(listingsHeader + "\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "%s\t%s\t1\t%s\t%d\ta\tNew\n", a.SKU, a.ASIN, a.Price.StringFixed(2), a.Stock)
	}
	return []byte(b.String())
}

// ParseFeed parses a tab-separated feed document back into header-keyed rows.
// Used to verify the serialize/parse round trip.
func ParseFeed(data []byte) ([]map[string]string, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("empty feed document")
	}
	header := strings.Split(lines[0], "\t")

	rows := make([]map[string]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// listingReportColumns maps report header variants onto Listing fields.
var listingReportColumns = map[string]string{
	"asin1":          "asin",
	"asin":           "asin",
	"seller-sku":     "sku",
	"sku":            "sku",
	"price":          "price",
	"quantity":       "quantity",
	"qty":            "quantity",
	"item-condition": "condition",
	"condition-type": "condition",
	"status":         "status",
}

// ParseListingsReport parses the tab-delimited merchant listings report into
// Listing rows. Header names vary across marketplaces, so columns are mapped
// tolerantly; rows without a SKU are dropped.
func ParseListingsReport(text string) []models.Listing {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return nil
	}

	fields := map[string]int{}
	for i, col := range strings.Split(lines[0], "\t") {
		if name, ok := listingReportColumns[strings.ToLower(strings.TrimSpace(col))]; ok {
			if _, taken := fields[name]; !taken {
				fields[name] = i
			}
		}
	}
	if _, ok := fields["sku"]; !ok {
		return nil
	}

	pick := func(cols []string, name string) string {
		i, ok := fields[name]
		if !ok || i >= len(cols) {
			return ""
		}
		return strings.TrimSpace(cols[i])
	}

	var listings []models.Listing
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		l := models.Listing{
			ASIN:      pick(cols, "asin"),
			SellerSKU: pick(cols, "sku"),
			Price:     pick(cols, "price"),
			Quantity:  pick(cols, "quantity"),
			Condition: pick(cols, "condition"),
			Status:    pick(cols, "status"),
		}
		if l.SellerSKU == "" {
			continue
		}
		listings = append(listings, l)
	}
	return listings
}

var gzipMagic = []byte{0x1f, 0x8b}

// DecodeDocument turns a downloaded result document into text. Gzip content
// is decompressed with a raw-deflate fallback; byte content that is not
// valid UTF-8 is decoded as Latin-1. Decoding is best effort and never
// fails: undecodable input degrades to the closest readable form.
func DecodeDocument(raw []byte, compression string) string {
	data := raw
	if compression == "GZIP" || bytes.HasPrefix(raw, gzipMagic) {
		if d, err := gunzip(raw); err == nil {
			data = d
		} else if d, err := io.ReadAll(flate.NewReader(bytes.NewReader(raw))); err == nil && len(d) > 0 {
			data = d
		}
	}

	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func gunzip(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
