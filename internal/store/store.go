package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmarques/spsync/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	UpsertProducts(ctx context.Context, products []models.ProductDescriptor) (int, error)
	ListProducts(ctx context.Context) ([]models.ProductDescriptor, error)

	UpsertClassification(ctx context.Context, c *models.Classification) error
	GetClassification(ctx context.Context, sku string) (*models.Classification, error)
	ListClassifications(ctx context.Context, filter ClassificationFilter) ([]*models.Classification, error)

	ReplaceListings(ctx context.Context, listings []models.Listing) error
	GetListingBySKU(ctx context.Context, sellerSKU string) (*models.Listing, error)
	GetListingByASIN(ctx context.Context, asin string) (*models.Listing, error)

	CreateRun(ctx context.Context, run *models.RunSummary) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// ClassificationFilter narrows ListClassifications. Zero values match all.
type ClassificationFilter struct {
	Status string
	Action string
	Limit  int
}
