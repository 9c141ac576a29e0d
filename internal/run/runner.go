// Package run orchestrates whole sync runs: classify every stored product,
// turn eligible rows into feed submissions, and record the outcome. Runs are
// serialized by a distributed lock; rows fail individually.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dmarques/spsync/internal/cache"
	"github.com/dmarques/spsync/internal/config"
	"github.com/dmarques/spsync/internal/feed"
	"github.com/dmarques/spsync/internal/plan"
	"github.com/dmarques/spsync/internal/spapi"
	"github.com/dmarques/spsync/internal/store"
	"github.com/dmarques/spsync/pkg/models"
)

// ErrRunInProgress is returned when another run holds the lock.
var ErrRunInProgress = errors.New("another sync run is in progress")

// runLockTTL bounds how long a crashed run can block the next one.
const runLockTTL = 30 * time.Minute

// FeedManager is the part of the feed layer the runner drives.
type FeedManager interface {
	Submit(ctx context.Context, feedType string, body []byte) (*models.FeedJob, error)
	Poll(ctx context.Context, job *models.FeedJob) (*models.FeedJob, error)
	FetchResultDocument(ctx context.Context, job *models.FeedJob) (string, bool, error)
	FetchListingsReport(ctx context.Context) ([]models.Listing, string, error)
}

// Runner executes classify, sync and listings-refresh runs.
type Runner struct {
	store    store.Store
	planner  *plan.Planner
	feeds    FeedManager
	cache    cache.Cache
	simulate bool
	currency string
	dataDir  string
}

func NewRunner(st store.Store, planner *plan.Planner, feeds FeedManager, c cache.Cache, cfg *config.Config) *Runner {
	return &Runner{
		store:    st,
		planner:  planner,
		feeds:    feeds,
		cache:    c,
		simulate: cfg.Marketplace.Simulate,
		currency: cfg.Pricing.Currency,
		dataDir:  cfg.Feeds.DataDir,
	}
}

// ClassifyAll resolves and prices every stored product. Row failures are
// isolated: a malformed row is skipped, a platform failure marks the row
// failed, and only a credential failure aborts the batch.
func (r *Runner) ClassifyAll(ctx context.Context) ([]models.RowReport, error) {
	products, err := r.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	reports := make([]models.RowReport, 0, len(products))
	for _, p := range products {
		if err := p.Validate(); err != nil {
			reports = append(reports, models.RowReport{
				SKU: p.SKU, Status: models.RowStatusSkipped, Message: err.Error(),
			})
			continue
		}

		c, err := r.planner.Classify(ctx, p)
		if err != nil {
			if spapi.IsFatal(err) {
				return reports, err
			}
			slog.Warn("classification failed", "sku", p.SKU, "error", err)
			reports = append(reports, models.RowReport{
				SKU: p.SKU, Status: models.RowStatusFailed, Message: err.Error(),
			})
			continue
		}
		reports = append(reports, models.RowReport{
			SKU: c.SKU, Action: c.Action, Status: models.RowStatusOK,
		})
	}
	return reports, nil
}

// Sync submits the planned actions of all classified rows as bulk feeds and
// returns the persisted run summary. Concurrent calls are refused: the whole
// run is the unit of serialization.
func (r *Runner) Sync(ctx context.Context) (*models.RunSummary, error) {
	token := uuid.NewString()
	ok, err := r.cache.AcquireLock(ctx, cache.RunLockKey(), token, runLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := r.cache.ReleaseLock(context.WithoutCancel(ctx), cache.RunLockKey(), token); err != nil {
			slog.Warn("run lock release failed", "error", err)
		}
	}()

	return r.sync(ctx)
}

func (r *Runner) sync(ctx context.Context) (*models.RunSummary, error) {
	started := time.Now().UTC()
	runID := uuid.New()
	slog.Info("sync run started", "run_id", runID, "simulated", r.simulate)

	classifications, err := r.store.ListClassifications(ctx, store.ClassificationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}

	summary := &models.RunSummary{
		ID:           runID,
		Simulated:    r.simulate,
		ActionCounts: map[string]int{},
		StartedAt:    started,
	}

	actions := r.planner.Plan(classifications)
	rowStatus := map[string]*models.RowReport{}
	for _, c := range classifications {
		summary.ActionCounts[c.Action]++
		report := &models.RowReport{SKU: c.SKU, Action: c.Action, Status: models.RowStatusOK}
		if c.Action == models.ActionReview {
			report.Status = models.RowStatusSkipped
			report.Message = "awaiting review"
		}
		rowStatus[c.SKU] = report
	}

	for _, batch := range r.groupFeeds(actions) {
		outcome := r.submitFeed(ctx, runID, batch)
		if outcome == nil {
			continue
		}
		summary.Feeds = append(summary.Feeds, *outcome)
		// Update rows appear in both the pricing and the inventory batch. A
		// failed mark from either feed sticks even when the other succeeds:
		// a row is ok only if every feed carrying it went through.
		if models.FeedStatusTerminal(outcome.Status) && outcome.Status != models.FeedStatusDone {
			for _, a := range batch.actions {
				if rep := rowStatus[a.SKU]; rep != nil {
					rep.Status = models.RowStatusFailed
					rep.Message = fmt.Sprintf("feed %s ended %s", outcome.FeedID, outcome.Status)
				}
			}
		}
	}

	for _, c := range classifications {
		summary.Rows = append(summary.Rows, *rowStatus[c.SKU])
	}
	summary.FinishedAt = time.Now().UTC()

	if err := r.store.CreateRun(ctx, summary); err != nil {
		return nil, fmt.Errorf("persist run summary: %w", err)
	}
	r.writeSummaryFile(summary)

	slog.Info("sync run finished", "run_id", runID,
		"feeds", len(summary.Feeds), "rows", len(summary.Rows))
	return summary, nil
}

// feedBatch is one feed document's worth of actions.
type feedBatch struct {
	feedType string
	body     []byte
	actions  []models.PlannedAction
}

// groupFeeds splits planned actions into feed documents: price and stock
// updates for rows already listed, one flat-file listings feed for the rest.
func (r *Runner) groupFeeds(actions []models.PlannedAction) []feedBatch {
	var updates, creates []models.PlannedAction
	for _, a := range actions {
		switch a.Action {
		case models.ActionUpdatePriceStock:
			updates = append(updates, a)
		case models.ActionCreateListing, models.ActionCreateProduct:
			creates = append(creates, a)
		}
	}

	var batches []feedBatch
	if len(updates) > 0 {
		batches = append(batches,
			feedBatch{models.FeedTypePricing, feed.BuildPricingFeed(updates, r.currency), updates},
			feedBatch{models.FeedTypeInventory, feed.BuildInventoryFeed(updates), updates},
		)
	}
	if len(creates) > 0 {
		batches = append(batches,
			feedBatch{models.FeedTypeListings, feed.BuildListingsFeed(creates), creates})
	}
	return batches
}

// submitFeed runs one feed through submit→poll→report. A submission failure
// marks all of the batch's rows failed via a synthetic ERROR outcome.
func (r *Runner) submitFeed(ctx context.Context, runID uuid.UUID, batch feedBatch) *models.FeedOutcome {
	job, err := r.feeds.Submit(ctx, batch.feedType, batch.body)
	if err != nil {
		slog.Error("feed submission failed", "feed_type", batch.feedType, "error", err)
		return &models.FeedOutcome{FeedType: batch.feedType, Status: models.FeedStatusError}
	}

	job, err = r.feeds.Poll(ctx, job)
	if err != nil {
		slog.Error("feed polling aborted", "feed_id", job.FeedID, "error", err)
		return &models.FeedOutcome{FeedID: job.FeedID, FeedType: job.FeedType, Status: models.FeedStatusError}
	}

	outcome := &models.FeedOutcome{FeedID: job.FeedID, FeedType: job.FeedType, Status: job.Status}

	if job.Terminal() {
		report, ok, err := r.feeds.FetchResultDocument(ctx, job)
		if err != nil {
			slog.Warn("processing report fetch aborted", "feed_id", job.FeedID, "error", err)
		} else if ok {
			name := fmt.Sprintf("report_%s_%s.txt", runID, job.FeedID)
			path, werr := feed.SafeReplace(filepath.Join(r.dataDir, name), []byte(report))
			if werr != nil {
				slog.Warn("processing report write failed", "feed_id", job.FeedID, "error", werr)
			} else {
				outcome.ReportPath = path
			}
		}
	}
	return outcome
}

// writeSummaryFile mirrors the persisted summary to a per-run JSON file.
// Best effort: the database row is the source of truth.
func (r *Runner) writeSummaryFile(summary *models.RunSummary) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		slog.Warn("run summary encode failed", "run_id", summary.ID, "error", err)
		return
	}
	name := fmt.Sprintf("sync_%s.json", summary.ID)
	if _, err := feed.SafeReplace(filepath.Join(r.dataDir, name), data); err != nil {
		slog.Warn("run summary write failed", "run_id", summary.ID, "error", err)
	}
}

// RefreshListings pulls the merchant listings report and rebuilds the
// listings index. The decoded report text is snapshotted to disk.
func (r *Runner) RefreshListings(ctx context.Context) (int, error) {
	listings, text, err := r.feeds.FetchListingsReport(ctx)
	if err != nil {
		return 0, err
	}

	if err := r.store.ReplaceListings(ctx, listings); err != nil {
		return 0, fmt.Errorf("replace listings: %w", err)
	}
	if _, err := feed.SafeReplace(filepath.Join(r.dataDir, "merchant_listings.txt"), []byte(text)); err != nil {
		slog.Warn("listings snapshot write failed", "error", err)
	}

	slog.Info("listings index refreshed", "rows", len(listings))
	return len(listings), nil
}
