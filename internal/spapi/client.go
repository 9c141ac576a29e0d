// Package spapi is the HTTP client for the marketplace selling-partner
// protocol: catalog lookups, listings, feeds, reports and pricing offers.
// Every state-changing or read call is SigV4-signed; pre-signed document
// URLs are fetched unsigned.
package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmarques/spsync/internal/config"
)

// CatalogItem is one marketplace catalog entry from a search result.
type CatalogItem struct {
	ASIN  string
	Title string
	Brand string
}

// FeedInfo is the processing state of one submitted feed.
type FeedInfo struct {
	FeedID           string
	ProcessingStatus string
	ResultDocumentID string
}

// ReportInfo is the processing state of one requested report.
type ReportInfo struct {
	ReportID         string
	ProcessingStatus string
	ReportDocumentID string
}

// DocumentInfo describes an uploadable or downloadable document: its id,
// pre-signed URL and compression.
type DocumentInfo struct {
	DocumentID  string
	URL         string
	ContentType string
	Compression string // "GZIP" or empty
}

// Offer is one competing offer for an ASIN; LandedPrice includes shipping.
type Offer struct {
	LandedPrice float64
}

// Client is the interface for all marketplace calls. The simulation
// implementation honors the same contract, so callers never branch on the
// transport.
type Client interface {
	GetListing(ctx context.Context, sellerID, sku string) (*CatalogItem, error)
	SearchByIdentifier(ctx context.Context, ean string) ([]CatalogItem, error)
	SearchByKeywords(ctx context.Context, keywords, brand string) ([]CatalogItem, error)
	GetListingOffers(ctx context.Context, asin string) ([]Offer, error)

	CreateFeedDocument(ctx context.Context, contentType string) (*DocumentInfo, error)
	UploadDocument(ctx context.Context, doc *DocumentInfo, body []byte) error
	CreateFeed(ctx context.Context, feedType, documentID string) (string, error)
	GetFeed(ctx context.Context, feedID string) (*FeedInfo, error)
	GetFeedDocument(ctx context.Context, documentID string) (*DocumentInfo, error)

	CreateReport(ctx context.Context, reportType string) (string, error)
	GetReport(ctx context.Context, reportID string) (*ReportInfo, error)
	GetReportDocument(ctx context.Context, documentID string) (*DocumentInfo, error)

	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPClient implements Client against the real selling-partner endpoint.
type HTTPClient struct {
	cfg     config.MarketplaceConfig
	session *Session
	signer  *Signer
	client  *http.Client
}

// NewHTTPClient creates a signed HTTP client using the given session.
func NewHTTPClient(cfg config.MarketplaceConfig, session *Session) *HTTPClient {
	return &HTTPClient{
		cfg:     cfg,
		session: session,
		signer:  NewSigner(cfg.AccessKey, cfg.SecretKey, cfg.Region),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// do performs one signed call and returns the response body. Non-2xx
// responses map to ErrPlatform with a truncated body.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, int, error) {
	u := c.cfg.Endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("x-amz-access-token", token)
	c.signer.Sign(req, body, time.Now())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, resp.StatusCode, fmt.Errorf("%w: %s %s returned %d: %s",
			ErrPlatform, method, path, resp.StatusCode, truncate(string(respBody), 400))
	}
	return respBody, resp.StatusCode, nil
}

// --- Catalog and listings ---

type catalogResponse struct {
	Items []catalogItem `json:"items"`
}

type catalogItem struct {
	ASIN      string           `json:"asin"`
	Summaries []catalogSummary `json:"summaries"`
}

type catalogSummary struct {
	ItemName string `json:"itemName"`
	Brand    string `json:"brand"`
	ASIN     string `json:"asin"`
}

func (c *HTTPClient) GetListing(ctx context.Context, sellerID, sku string) (*CatalogItem, error) {
	path := fmt.Sprintf("/listings/2021-08-01/items/%s/%s",
		url.PathEscape(sellerID), url.PathEscape(sku))

	body, status, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp struct {
		Summaries []catalogSummary `json:"summaries"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding listing response: %w", err)
	}
	if len(resp.Summaries) == 0 || resp.Summaries[0].ASIN == "" {
		return nil, nil
	}
	return &CatalogItem{
		ASIN:  resp.Summaries[0].ASIN,
		Title: resp.Summaries[0].ItemName,
		Brand: resp.Summaries[0].Brand,
	}, nil
}

func (c *HTTPClient) SearchByIdentifier(ctx context.Context, ean string) ([]CatalogItem, error) {
	query := url.Values{
		"identifiers":     {ean},
		"identifiersType": {"EAN"},
		"marketplaceIds":  {c.cfg.MarketplaceID},
		"includedData":    {"identifiers,attributes,summaries"},
	}
	return c.searchCatalog(ctx, query)
}

func (c *HTTPClient) SearchByKeywords(ctx context.Context, keywords, brand string) ([]CatalogItem, error) {
	query := url.Values{
		"keywords":       {keywords},
		"marketplaceIds": {c.cfg.MarketplaceID},
		"includedData":   {"identifiers,attributes,summaries"},
	}
	if brand != "" {
		query.Set("brandNames", brand)
	}
	return c.searchCatalog(ctx, query)
}

func (c *HTTPClient) searchCatalog(ctx context.Context, query url.Values) ([]CatalogItem, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/catalog/2022-04-01/items", query, nil)
	if err != nil {
		return nil, err
	}

	var resp catalogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding catalog response: %w", err)
	}

	items := make([]CatalogItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		out := CatalogItem{ASIN: it.ASIN}
		if len(it.Summaries) > 0 {
			out.Title = it.Summaries[0].ItemName
			out.Brand = it.Summaries[0].Brand
		}
		items = append(items, out)
	}
	return items, nil
}

func (c *HTTPClient) GetListingOffers(ctx context.Context, asin string) ([]Offer, error) {
	path := fmt.Sprintf("/products/pricing/v0/listings/%s/offers", url.PathEscape(asin))
	query := url.Values{"MarketplaceId": {c.cfg.MarketplaceID}}

	body, _, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Payload struct {
			Offers []struct {
				ListingPrice struct {
					Amount float64 `json:"Amount"`
				} `json:"ListingPrice"`
				Shipping struct {
					Amount float64 `json:"Amount"`
				} `json:"Shipping"`
			} `json:"Offers"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding offers response: %w", err)
	}

	offers := make([]Offer, 0, len(resp.Payload.Offers))
	for _, o := range resp.Payload.Offers {
		offers = append(offers, Offer{LandedPrice: o.ListingPrice.Amount + o.Shipping.Amount})
	}
	return offers, nil
}

// --- Feeds ---

func (c *HTTPClient) CreateFeedDocument(ctx context.Context, contentType string) (*DocumentInfo, error) {
	payload, _ := json.Marshal(map[string]string{"contentType": contentType})

	body, _, err := c.do(ctx, http.MethodPost, "/feeds/2021-06-30/documents", nil, payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		FeedDocumentID string `json:"feedDocumentId"`
		URL            string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding feed document response: %w", err)
	}
	return &DocumentInfo{
		DocumentID:  resp.FeedDocumentID,
		URL:         resp.URL,
		ContentType: contentType,
	}, nil
}

// UploadDocument PUTs raw bytes to the document's pre-signed URL. The URL
// embeds its own authorization, so the request is not signed.
func (c *HTTPClient) UploadDocument(ctx context.Context, doc *DocumentInfo, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, doc.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	if doc.ContentType != "" {
		req.Header.Set("Content-Type", doc.ContentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: document upload returned %d: %s",
			ErrPlatform, resp.StatusCode, truncate(string(b), 400))
	}
	return nil
}

func (c *HTTPClient) CreateFeed(ctx context.Context, feedType, documentID string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"feedType":            feedType,
		"marketplaceIds":      []string{c.cfg.MarketplaceID},
		"inputFeedDocumentId": documentID,
	})

	body, _, err := c.do(ctx, http.MethodPost, "/feeds/2021-06-30/feeds", nil, payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		FeedID string `json:"feedId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding feed response: %w", err)
	}
	return resp.FeedID, nil
}

func (c *HTTPClient) GetFeed(ctx context.Context, feedID string) (*FeedInfo, error) {
	path := "/feeds/2021-06-30/feeds/" + url.PathEscape(feedID)

	body, _, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		FeedID               string `json:"feedId"`
		ProcessingStatus     string `json:"processingStatus"`
		ResultFeedDocumentID string `json:"resultFeedDocumentId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding feed status: %w", err)
	}
	return &FeedInfo{
		FeedID:           resp.FeedID,
		ProcessingStatus: resp.ProcessingStatus,
		ResultDocumentID: resp.ResultFeedDocumentID,
	}, nil
}

func (c *HTTPClient) GetFeedDocument(ctx context.Context, documentID string) (*DocumentInfo, error) {
	path := "/feeds/2021-06-30/documents/" + url.PathEscape(documentID)
	return c.getDocument(ctx, path, documentID)
}

// --- Reports ---

func (c *HTTPClient) CreateReport(ctx context.Context, reportType string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"reportType":     reportType,
		"marketplaceIds": []string{c.cfg.MarketplaceID},
	})

	body, _, err := c.do(ctx, http.MethodPost, "/reports/2021-06-30/reports", nil, payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		ReportID string `json:"reportId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding report response: %w", err)
	}
	return resp.ReportID, nil
}

func (c *HTTPClient) GetReport(ctx context.Context, reportID string) (*ReportInfo, error) {
	path := "/reports/2021-06-30/reports/" + url.PathEscape(reportID)

	body, _, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ReportID         string `json:"reportId"`
		ProcessingStatus string `json:"processingStatus"`
		ReportDocumentID string `json:"reportDocumentId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding report status: %w", err)
	}
	return &ReportInfo{
		ReportID:         resp.ReportID,
		ProcessingStatus: resp.ProcessingStatus,
		ReportDocumentID: resp.ReportDocumentID,
	}, nil
}

func (c *HTTPClient) GetReportDocument(ctx context.Context, documentID string) (*DocumentInfo, error) {
	path := "/reports/2021-06-30/documents/" + url.PathEscape(documentID)
	return c.getDocument(ctx, path, documentID)
}

func (c *HTTPClient) getDocument(ctx context.Context, path, documentID string) (*DocumentInfo, error) {
	body, _, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		URL                  string `json:"url"`
		CompressionAlgorithm string `json:"compressionAlgorithm"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding document response: %w", err)
	}
	return &DocumentInfo{
		DocumentID:  documentID,
		URL:         resp.URL,
		Compression: resp.CompressionAlgorithm,
	}, nil
}

// Download GETs a pre-signed document URL, unsigned.
func (c *HTTPClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: document download returned %d: %s",
			ErrPlatform, resp.StatusCode, truncate(string(b), 400))
	}
	return io.ReadAll(resp.Body)
}

// IsFatal reports whether err should abort a whole run rather than a single
// row or operation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
