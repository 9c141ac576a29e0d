package models

import (
	"time"

	"github.com/google/uuid"
)

// Row outcomes recorded in the per-run report. Every input descriptor gets
// exactly one report row, even under partial failure.
const (
	RowStatusOK      = "ok"
	RowStatusSkipped = "skipped"
	RowStatusFailed  = "failed"
)

// RowReport is the per-descriptor outcome of one run.
type RowReport struct {
	SKU     string `json:"sku"`
	Action  string `json:"action,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// FeedOutcome records the terminal (or last observed) state of one feed
// submitted by a run.
type FeedOutcome struct {
	FeedID     string `json:"feed_id"`
	FeedType   string `json:"feed_type"`
	Status     string `json:"status"`
	ReportPath string `json:"report_path,omitempty"`
}

// RunSummary is written once per run: feed outcomes, counts of rows by
// action, and the per-row report.
type RunSummary struct {
	ID           uuid.UUID      `db:"id"            json:"id"`
	Simulated    bool           `db:"simulated"     json:"simulated"`
	ActionCounts map[string]int `db:"action_counts" json:"action_counts"`
	Feeds        []FeedOutcome  `db:"feeds"         json:"feeds"`
	Rows         []RowReport    `db:"rows"          json:"rows"`
	StartedAt    time.Time      `db:"started_at"    json:"started_at"`
	FinishedAt   time.Time      `db:"finished_at"   json:"finished_at"`
}
