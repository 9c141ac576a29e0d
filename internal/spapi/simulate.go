package spapi

import (
	"context"
	"fmt"
	"sync/atomic"
)

// simListingsReport is the canned merchant-listings report returned in
// simulation so the listings refresh path works without credentials.
const simListingsReport = "asin1\tseller-sku\tprice\tquantity\titem-condition\tstatus\n" +
	"B0CW3J3F71\tAJ-DOORPROTECTPLUS-W\t59.99\t10\tNew\tActive\n"

// SimClient is the deterministic no-op transport: every operation succeeds
// immediately with a canned terminal payload. It implements the same Client
// contract as HTTPClient, so callers need no branching between simulated and
// real transport.
type SimClient struct {
	seq atomic.Int64
}

// NewSimClient creates a SimClient.
func NewSimClient() *SimClient {
	return &SimClient{}
}

func (c *SimClient) next(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, c.seq.Add(1))
}

func (c *SimClient) GetListing(_ context.Context, _, _ string) (*CatalogItem, error) {
	return nil, nil
}

func (c *SimClient) SearchByIdentifier(_ context.Context, _ string) ([]CatalogItem, error) {
	return nil, nil
}

func (c *SimClient) SearchByKeywords(_ context.Context, _, _ string) ([]CatalogItem, error) {
	return nil, nil
}

func (c *SimClient) GetListingOffers(_ context.Context, _ string) ([]Offer, error) {
	return nil, nil
}

func (c *SimClient) CreateFeedDocument(_ context.Context, contentType string) (*DocumentInfo, error) {
	return &DocumentInfo{
		DocumentID:  c.next("SIM-FEEDDOC"),
		ContentType: contentType,
	}, nil
}

func (c *SimClient) UploadDocument(_ context.Context, _ *DocumentInfo, _ []byte) error {
	return nil
}

func (c *SimClient) CreateFeed(_ context.Context, _, _ string) (string, error) {
	return c.next("SIM-FEED"), nil
}

func (c *SimClient) GetFeed(_ context.Context, feedID string) (*FeedInfo, error) {
	return &FeedInfo{
		FeedID:           feedID,
		ProcessingStatus: "DONE",
		ResultDocumentID: "SIM-RESULT",
	}, nil
}

func (c *SimClient) GetFeedDocument(_ context.Context, documentID string) (*DocumentInfo, error) {
	return &DocumentInfo{DocumentID: documentID}, nil
}

func (c *SimClient) CreateReport(_ context.Context, _ string) (string, error) {
	return c.next("SIM-REPORT"), nil
}

func (c *SimClient) GetReport(_ context.Context, reportID string) (*ReportInfo, error) {
	return &ReportInfo{
		ReportID:         reportID,
		ProcessingStatus: "DONE",
		ReportDocumentID: "SIM-REPORTDOC",
	}, nil
}

func (c *SimClient) GetReportDocument(_ context.Context, documentID string) (*DocumentInfo, error) {
	return &DocumentInfo{DocumentID: documentID}, nil
}

func (c *SimClient) Download(_ context.Context, _ string) ([]byte, error) {
	return []byte(simListingsReport), nil
}

// Compile-time check that SimClient implements Client.
var _ Client = (*SimClient)(nil)
