package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarques/spsync/internal/config"
	"github.com/dmarques/spsync/internal/spapi"
	"github.com/dmarques/spsync/pkg/models"
)

// fakeFeedClient scripts the poll responses; everything else records calls.
type fakeFeedClient struct {
	spapi.SimClient

	uploaded []byte

	feedResponses []pollStep
	feedCalls     int

	reportResponses []pollStep
	reportCalls     int

	downloadBody []byte
	downloadErr  error
	compression  string
}

type pollStep struct {
	status string
	docID  string
	err    error
}

func (f *fakeFeedClient) UploadDocument(_ context.Context, _ *spapi.DocumentInfo, body []byte) error {
	f.uploaded = body
	return nil
}

func (f *fakeFeedClient) GetFeed(_ context.Context, feedID string) (*spapi.FeedInfo, error) {
	step := f.feedResponses[minInt(f.feedCalls, len(f.feedResponses)-1)]
	f.feedCalls++
	if step.err != nil {
		return nil, step.err
	}
	return &spapi.FeedInfo{FeedID: feedID, ProcessingStatus: step.status, ResultDocumentID: step.docID}, nil
}

func (f *fakeFeedClient) GetReport(_ context.Context, reportID string) (*spapi.ReportInfo, error) {
	step := f.reportResponses[minInt(f.reportCalls, len(f.reportResponses)-1)]
	f.reportCalls++
	if step.err != nil {
		return nil, step.err
	}
	return &spapi.ReportInfo{ReportID: reportID, ProcessingStatus: step.status, ReportDocumentID: step.docID}, nil
}

func (f *fakeFeedClient) GetFeedDocument(_ context.Context, documentID string) (*spapi.DocumentInfo, error) {
	return &spapi.DocumentInfo{DocumentID: documentID, URL: "https://doc", Compression: f.compression}, nil
}

func (f *fakeFeedClient) GetReportDocument(_ context.Context, documentID string) (*spapi.DocumentInfo, error) {
	return &spapi.DocumentInfo{DocumentID: documentID, URL: "https://doc", Compression: f.compression}, nil
}

func (f *fakeFeedClient) Download(context.Context, string) ([]byte, error) {
	return f.downloadBody, f.downloadErr
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// fakeClock advances only when the manager sleeps.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func testManager(client spapi.Client) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(client, config.FeedConfig{
		PollInterval:       10 * time.Second,
		PollDeadline:       420 * time.Second,
		ReportPollInterval: 15 * time.Second,
		ReportPollDeadline: 900 * time.Second,
	})
	m.now = clock.now
	m.sleep = clock.sleep
	return m, clock
}

func TestSubmit(t *testing.T) {
	client := &fakeFeedClient{}
	m, _ := testManager(client)

	body := []byte("sku\tprice\tcurrency\nS1\t19.99\tEUR\n")
	job, err := m.Submit(context.Background(), models.FeedTypePricing, body)
	require.NoError(t, err)
	assert.Equal(t, models.FeedStatusSubmitted, job.Status)
	assert.Equal(t, models.FeedTypePricing, job.FeedType)
	assert.NotEmpty(t, job.FeedID)
	assert.Equal(t, body, client.uploaded)
}

func TestPoll_ReachesTerminalAfterTwoIntervals(t *testing.T) {
	client := &fakeFeedClient{feedResponses: []pollStep{
		{status: models.FeedStatusInProgress},
		{status: models.FeedStatusInProgress},
		{status: models.FeedStatusDone, docID: "DOC-1"},
	}}
	m, clock := testManager(client)

	job := &models.FeedJob{FeedID: "F1", Status: models.FeedStatusSubmitted}
	got, err := m.Poll(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.FeedStatusDone, got.Status)
	assert.Equal(t, "DOC-1", got.ResultDocumentID)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, clock.sleeps)
}

func TestPoll_DeadlineReturnsLastSnapshotWithoutError(t *testing.T) {
	client := &fakeFeedClient{feedResponses: []pollStep{
		{status: models.FeedStatusInProgress},
	}}
	m, clock := testManager(client)

	job := &models.FeedJob{FeedID: "F1", Status: models.FeedStatusSubmitted}
	got, err := m.Poll(context.Background(), job)
	require.NoError(t, err, "deadline expiry is a synthetic outcome, not an error")
	assert.Equal(t, models.FeedStatusInProgress, got.Status)
	// 420s deadline / 10s interval: the loop slept up to just past the deadline.
	assert.GreaterOrEqual(t, len(clock.sleeps), 42)
}

func TestPoll_TransportErrorMeansStatusUnknown(t *testing.T) {
	client := &fakeFeedClient{feedResponses: []pollStep{
		{err: spapi.ErrTimeout},
		{err: spapi.ErrUnreachable},
		{status: models.FeedStatusDone},
	}}
	m, _ := testManager(client)

	job := &models.FeedJob{FeedID: "F1", Status: models.FeedStatusSubmitted}
	got, err := m.Poll(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.FeedStatusDone, got.Status)
	assert.Equal(t, 3, client.feedCalls)
}

func TestPoll_AuthErrorAborts(t *testing.T) {
	client := &fakeFeedClient{feedResponses: []pollStep{{err: spapi.ErrAuth}}}
	m, _ := testManager(client)

	job := &models.FeedJob{FeedID: "F1", Status: models.FeedStatusSubmitted}
	_, err := m.Poll(context.Background(), job)
	assert.ErrorIs(t, err, spapi.ErrAuth)
}

func TestFeedJob_RefusesLeavingTerminalState(t *testing.T) {
	job := &models.FeedJob{FeedID: "F1", Status: models.FeedStatusDone}
	err := job.Transition(models.FeedStatusInProgress, time.Now())
	require.Error(t, err)
	assert.Equal(t, models.FeedStatusDone, job.Status)
}

func TestFetchResultDocument_NoDocumentIsOptional(t *testing.T) {
	m, _ := testManager(&fakeFeedClient{})

	_, ok, err := m.FetchResultDocument(context.Background(), &models.FeedJob{FeedID: "F1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchResultDocument_DownloadFailureDegrades(t *testing.T) {
	client := &fakeFeedClient{downloadErr: spapi.ErrPlatform}
	m, _ := testManager(client)

	job := &models.FeedJob{FeedID: "F1", ResultDocumentID: "DOC-1"}
	_, ok, err := m.FetchResultDocument(context.Background(), job)
	require.NoError(t, err, "missing report is not an error")
	assert.False(t, ok)
}

func TestFetchResultDocument_DecodesBody(t *testing.T) {
	client := &fakeFeedClient{downloadBody: []byte("ok\trows\n1\t2\n")}
	m, _ := testManager(client)

	job := &models.FeedJob{FeedID: "F1", ResultDocumentID: "DOC-1"}
	text, ok, err := m.FetchResultDocument(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ok\trows\n1\t2\n", text)
}

func TestFetchListingsReport(t *testing.T) {
	report := "asin1\tseller-sku\tprice\tquantity\titem-condition\tstatus\n" +
		"B0CW3J3F71\tAJ-DOORPROTECTPLUS-W\t59.99\t10\tNew\tActive\n"
	client := &fakeFeedClient{
		reportResponses: []pollStep{
			{status: models.FeedStatusInProgress},
			{status: models.FeedStatusDone, docID: "RDOC-1"},
		},
		downloadBody: []byte(report),
	}
	m, clock := testManager(client)

	listings, text, err := m.FetchListingsReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report, text)
	require.Len(t, listings, 1)
	assert.Equal(t, "B0CW3J3F71", listings[0].ASIN)
	assert.Equal(t, "AJ-DOORPROTECTPLUS-W", listings[0].SellerSKU)
	assert.Equal(t, []time.Duration{15 * time.Second}, clock.sleeps, "report cadence")
}

func TestFetchListingsReport_CancelledReportFails(t *testing.T) {
	client := &fakeFeedClient{reportResponses: []pollStep{
		{status: models.FeedStatusCancelled},
	}}
	m, _ := testManager(client)

	_, _, err := m.FetchListingsReport(context.Background())
	assert.Error(t, err)
}
