package models

import (
	"fmt"
	"time"
)

// Feed processing statuses as reported by the marketplace. The last four are
// terminal: a job never transitions out of them.
const (
	FeedStatusSubmitted  = "SUBMITTED"
	FeedStatusInProgress = "IN_PROGRESS"
	FeedStatusDone       = "DONE"
	FeedStatusCancelled  = "CANCELLED"
	FeedStatusFatal      = "FATAL"
	FeedStatusError      = "ERROR"
)

// Feed types submitted by a sync run.
const (
	FeedTypePricing   = "POST_PRODUCT_PRICING_DATA"
	FeedTypeInventory = "POST_INVENTORY_AVAILABILITY_DATA"
	FeedTypeListings  = "POST_FLAT_FILE_LISTINGS_DATA"
)

// FeedJob tracks one asynchronous bulk submission. Created on submission and
// mutated only by polling.
type FeedJob struct {
	FeedID           string    `json:"feed_id"`
	FeedType         string    `json:"feed_type"`
	Status           string    `json:"status"`
	ResultDocumentID string    `json:"result_document_id,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Terminal reports whether the job has reached a final processing status.
func (j *FeedJob) Terminal() bool {
	return FeedStatusTerminal(j.Status)
}

// FeedStatusTerminal reports whether status is one of the four final states.
func FeedStatusTerminal(status string) bool {
	switch status {
	case FeedStatusDone, FeedStatusCancelled, FeedStatusFatal, FeedStatusError:
		return true
	}
	return false
}

// Transition moves the job to status. Transitions out of a terminal state
// are refused.
func (j *FeedJob) Transition(status string, at time.Time) error {
	if j.Terminal() {
		return fmt.Errorf("feed %s is %s: cannot transition to %s", j.FeedID, j.Status, status)
	}
	j.Status = status
	j.UpdatedAt = at
	return nil
}
