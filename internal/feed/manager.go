// Package feed drives the asynchronous bulk-submission protocol: document
// serialization, submit, poll-to-terminal, and result retrieval.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmarques/spsync/internal/config"
	"github.com/dmarques/spsync/internal/spapi"
	"github.com/dmarques/spsync/pkg/models"
)

const merchantListingsReport = "GET_MERCHANT_LISTINGS_ALL_DATA"

// Manager runs the submit→poll→retrieve state machine for feeds and reports.
// Poll loops are blocking waits bounded by the configured deadline, not by
// external cancellation.
type Manager struct {
	client spapi.Client
	cfg    config.FeedConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(client spapi.Client, cfg config.FeedConfig) *Manager {
	return &Manager{
		client: client,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Submit creates a content document, uploads body, and creates the feed job.
func (m *Manager) Submit(ctx context.Context, feedType string, body []byte) (*models.FeedJob, error) {
	doc, err := m.client.CreateFeedDocument(ctx, feedContentType)
	if err != nil {
		return nil, fmt.Errorf("create feed document: %w", err)
	}
	if err := m.client.UploadDocument(ctx, doc, body); err != nil {
		return nil, fmt.Errorf("upload feed document: %w", err)
	}

	feedID, err := m.client.CreateFeed(ctx, feedType, doc.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}

	now := m.now().UTC()
	job := &models.FeedJob{
		FeedID:      feedID,
		FeedType:    feedType,
		Status:      models.FeedStatusSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	slog.Info("feed submitted", "feed_id", feedID, "feed_type", feedType, "bytes", len(body))
	return job, nil
}

// Poll drives job to a terminal status or to the deadline, whichever comes
// first. On deadline it returns the last observed snapshot without error.
// Transport and platform failures during a poll mean "status unknown": the
// loop keeps going. Only a credential failure aborts.
func (m *Manager) Poll(ctx context.Context, job *models.FeedJob) (*models.FeedJob, error) {
	deadline := m.now().Add(m.cfg.PollDeadline)

	for {
		info, err := m.client.GetFeed(ctx, job.FeedID)
		if err != nil {
			if spapi.IsFatal(err) {
				return job, err
			}
			slog.Warn("feed poll degraded", "feed_id", job.FeedID, "error", err)
		} else if info != nil {
			if info.ProcessingStatus != "" && info.ProcessingStatus != job.Status {
				if err := job.Transition(info.ProcessingStatus, m.now().UTC()); err != nil {
					return job, err
				}
			}
			if info.ResultDocumentID != "" {
				job.ResultDocumentID = info.ResultDocumentID
			}
			if job.Terminal() {
				slog.Info("feed finished", "feed_id", job.FeedID, "status", job.Status)
				return job, nil
			}
		}

		if m.now().After(deadline) {
			slog.Warn("feed poll deadline reached", "feed_id", job.FeedID, "status", job.Status)
			return job, nil
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return job, err
		}
	}
}

// FetchResultDocument retrieves and decodes the processing report of a
// finished feed. The report is an optional result: jobs without one, and
// retrieval failures, return ok=false rather than an error.
func (m *Manager) FetchResultDocument(ctx context.Context, job *models.FeedJob) (string, bool, error) {
	if job.ResultDocumentID == "" {
		slog.Info("feed has no processing report", "feed_id", job.FeedID)
		return "", false, nil
	}

	doc, err := m.client.GetFeedDocument(ctx, job.ResultDocumentID)
	if err != nil {
		if spapi.IsFatal(err) {
			return "", false, err
		}
		slog.Warn("processing report unavailable", "feed_id", job.FeedID, "error", err)
		return "", false, nil
	}

	raw, err := m.client.Download(ctx, doc.URL)
	if err != nil {
		if spapi.IsFatal(err) {
			return "", false, err
		}
		slog.Warn("processing report download failed", "feed_id", job.FeedID, "error", err)
		return "", false, nil
	}

	return DecodeDocument(raw, doc.Compression), true, nil
}

// FetchListingsReport requests the merchant listings report, polls it to
// completion, and returns the parsed listing rows plus the decoded report
// text for snapshotting.
func (m *Manager) FetchListingsReport(ctx context.Context) ([]models.Listing, string, error) {
	reportID, err := m.client.CreateReport(ctx, merchantListingsReport)
	if err != nil {
		return nil, "", fmt.Errorf("create listings report: %w", err)
	}

	info, err := m.pollReport(ctx, reportID)
	if err != nil {
		return nil, "", err
	}
	if info.ProcessingStatus != models.FeedStatusDone || info.ReportDocumentID == "" {
		return nil, "", fmt.Errorf("listings report %s not ready: status %s", reportID, info.ProcessingStatus)
	}

	doc, err := m.client.GetReportDocument(ctx, info.ReportDocumentID)
	if err != nil {
		return nil, "", fmt.Errorf("get report document: %w", err)
	}
	raw, err := m.client.Download(ctx, doc.URL)
	if err != nil {
		return nil, "", fmt.Errorf("download report: %w", err)
	}

	text := DecodeDocument(raw, doc.Compression)
	return ParseListingsReport(text), text, nil
}

// pollReport mirrors the feed poll loop with the report cadence. The last
// observed state is returned at the deadline.
func (m *Manager) pollReport(ctx context.Context, reportID string) (*spapi.ReportInfo, error) {
	deadline := m.now().Add(m.cfg.ReportPollDeadline)
	last := &spapi.ReportInfo{ReportID: reportID, ProcessingStatus: models.FeedStatusSubmitted}

	for {
		info, err := m.client.GetReport(ctx, reportID)
		if err != nil {
			if spapi.IsFatal(err) {
				return last, err
			}
			slog.Warn("report poll degraded", "report_id", reportID, "error", err)
		} else if info != nil {
			last = info
			if models.FeedStatusTerminal(info.ProcessingStatus) {
				return info, nil
			}
		}

		if m.now().After(deadline) {
			slog.Warn("report poll deadline reached", "report_id", reportID, "status", last.ProcessingStatus)
			return last, nil
		}
		if err := m.sleep(ctx, m.cfg.ReportPollInterval); err != nil {
			return last, err
		}
	}
}
