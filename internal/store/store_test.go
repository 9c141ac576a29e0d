package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmarques/spsync/internal/store"
	"github.com/dmarques/spsync/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("spsync_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func testProduct(sku string) models.ProductDescriptor {
	return models.ProductDescriptor{
		SKU:      sku,
		EAN:      "8435325455553",
		Brand:    "Ajax",
		Title:    "Ajax TurretCam 2000",
		Category: "cameras",
		Cost:     decimal.NewFromFloat(15.00),
		Stock:    7,
	}
}

// --- Product Tests ---

func TestUpsertAndListProducts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	n, err := s.UpsertProducts(ctx, []models.ProductDescriptor{
		testProduct("SKU-B"),
		testProduct("SKU-A"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Upsert again with changed cost: same row count, new value.
	p := testProduct("SKU-A")
	p.Cost = decimal.NewFromFloat(18.50)
	p.Stock = 3
	_, err = s.UpsertProducts(ctx, []models.ProductDescriptor{p})
	require.NoError(t, err)

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "SKU-A", products[0].SKU, "ordered by sku")
	assert.True(t, products[0].Cost.Equal(decimal.NewFromFloat(18.50)))
	assert.Equal(t, 3, products[0].Stock)
}

// --- Classification Tests ---

func testClassification(sku string) *models.Classification {
	return &models.Classification{
		SKU:        sku,
		EAN:        "8435325455553",
		Brand:      "Ajax",
		Title:      "Ajax TurretCam 2000",
		Cost:       decimal.NewFromFloat(15.00),
		Stock:      7,
		Status:     models.ResolutionAmbiguous,
		Score:      0.2,
		Action:     models.ActionReview,
		FloorPrice: decimal.NewFromFloat(36.97),
		SellPrice:  decimal.NewFromFloat(36.97),
		Candidates: []models.CatalogCandidate{
			{ASIN: "B0CAND01", Title: "TurretCam", Brand: "Ajax", Score: 0.2},
			{ASIN: "B0CAND02", Title: "Other", Brand: "Other", Score: 0.0},
		},
	}
}

func TestUpsertAndGetClassification(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.UpsertClassification(ctx, testClassification("SKU-1")))

	got, err := s.GetClassification(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionAmbiguous, got.Status)
	assert.Equal(t, models.ActionReview, got.Action)
	assert.True(t, got.FloorPrice.Equal(decimal.NewFromFloat(36.97)))
	require.Len(t, got.Candidates, 2)
	assert.Equal(t, "B0CAND01", got.Candidates[0].ASIN)

	// Re-classifying the same SKU replaces the snapshot.
	c := testClassification("SKU-1")
	c.Status = models.ResolutionMatch
	c.ASIN = "B0CAND01"
	c.Score = 1.0
	c.Action = models.ActionCreateListing
	c.Candidates = nil
	require.NoError(t, s.UpsertClassification(ctx, c))

	got, err = s.GetClassification(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionMatch, got.Status)
	assert.Equal(t, "B0CAND01", got.ASIN)
	assert.Empty(t, got.Candidates)
}

func TestGetClassificationNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetClassification(context.Background(), "NOPE")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListClassificationsFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	ambiguous := testClassification("SKU-AMB")
	require.NoError(t, s.UpsertClassification(ctx, ambiguous))

	matched := testClassification("SKU-MATCH")
	matched.Status = models.ResolutionMatch
	matched.ASIN = "B0CAND01"
	matched.Action = models.ActionCreateListing
	require.NoError(t, s.UpsertClassification(ctx, matched))

	all, err := s.ListClassifications(ctx, store.ClassificationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	review, err := s.ListClassifications(ctx, store.ClassificationFilter{Action: models.ActionReview})
	require.NoError(t, err)
	require.Len(t, review, 1)
	assert.Equal(t, "SKU-AMB", review[0].SKU)

	limited, err := s.ListClassifications(ctx, store.ClassificationFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Listing Tests ---

func TestReplaceListings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	first := []models.Listing{
		{ASIN: "B0AAA", SellerSKU: "SKU-1", Price: "59.99", Quantity: "10", Condition: "New", Status: "Active"},
		{ASIN: "B0BBB", SellerSKU: "SKU-2", Price: "12.49", Quantity: "0", Condition: "New", Status: "Inactive"},
	}
	require.NoError(t, s.ReplaceListings(ctx, first))

	got, err := s.GetListingBySKU(ctx, "SKU-2")
	require.NoError(t, err)
	assert.Equal(t, "B0BBB", got.ASIN)

	// A fresh snapshot fully replaces the previous one.
	second := []models.Listing{
		{ASIN: "B0CCC", SellerSKU: "SKU-3", Price: "9.99", Quantity: "1", Condition: "New", Status: "Active"},
	}
	require.NoError(t, s.ReplaceListings(ctx, second))

	_, err = s.GetListingBySKU(ctx, "SKU-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	byASIN, err := s.GetListingByASIN(ctx, "B0CCC")
	require.NoError(t, err)
	assert.Equal(t, "SKU-3", byASIN.SellerSKU)
}

// --- Run Tests ---

func TestCreateAndGetRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	run := &models.RunSummary{
		ID:        uuid.New(),
		Simulated: true,
		ActionCounts: map[string]int{
			models.ActionUpdatePriceStock: 2,
			models.ActionReview:           1,
		},
		Feeds: []models.FeedOutcome{
			{FeedID: "SIM-FEED-1", FeedType: models.FeedTypePricing, Status: models.FeedStatusDone},
		},
		Rows: []models.RowReport{
			{SKU: "SKU-1", Action: models.ActionUpdatePriceStock, Status: models.RowStatusOK},
			{SKU: "SKU-2", Status: models.RowStatusFailed, Message: "invalid cost"},
		},
		StartedAt:  time.Now().UTC().Truncate(time.Millisecond),
		FinishedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.CreateRun(ctx, run))

	// Same ID again is a duplicate.
	assert.ErrorIs(t, s.CreateRun(ctx, run), store.ErrDuplicateKey)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ActionCounts, got.ActionCounts)
	require.Len(t, got.Feeds, 1)
	assert.Equal(t, "SIM-FEED-1", got.Feeds[0].FeedID)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, models.RowStatusFailed, got.Rows[1].Status)
}

func TestListRunsNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var last uuid.UUID
	for i := 0; i < 3; i++ {
		run := &models.RunSummary{
			ID:           uuid.New(),
			ActionCounts: map[string]int{},
			Feeds:        []models.FeedOutcome{},
			Rows:         []models.RowReport{},
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			FinishedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		require.NoError(t, s.CreateRun(ctx, run))
		last = run.ID
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, last, runs[0].ID)
}

// --- API Key Tests ---

func TestAPIKeyLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "ops",
		KeyHash:   "$2a$10$fakehashfakehashfakehash",
		KeyPrefix: "sps_abc",
		Scopes:    []string{"read", "write"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "sps_abc")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, []string{"read", "write"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	keys, err = s.GetAPIKeyByPrefix(ctx, "sps_abc")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	keys, err = s.GetAPIKeyByPrefix(ctx, "sps_abc")
	require.NoError(t, err)
	assert.Empty(t, keys, "revoked keys are excluded")

	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)
}
