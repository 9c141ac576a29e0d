package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmarques/spsync/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Products ---

func (s *PostgresStore) UpsertProducts(ctx context.Context, products []models.ProductDescriptor) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(
			`INSERT INTO products (sku, ean, brand, title, category, cost, stock, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			 ON CONFLICT (sku) DO UPDATE SET
			   ean = EXCLUDED.ean, brand = EXCLUDED.brand, title = EXCLUDED.title,
			   category = EXCLUDED.category, cost = EXCLUDED.cost, stock = EXCLUDED.stock,
			   updated_at = NOW()`,
			p.SKU, p.EAN, p.Brand, p.Title, p.Category, p.Cost.String(), p.Stock)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range products {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("upsert product: %w", err)
		}
	}
	return len(products), nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]models.ProductDescriptor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sku, ean, brand, title, category, cost::text, stock FROM products ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.ProductDescriptor
	for rows.Next() {
		var p models.ProductDescriptor
		var cost string
		if err := rows.Scan(&p.SKU, &p.EAN, &p.Brand, &p.Title, &p.Category, &cost, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parse product cost: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Classifications ---

func (s *PostgresStore) UpsertClassification(ctx context.Context, c *models.Classification) error {
	cands, err := json.Marshal(c.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO classifications
		   (sku, ean, brand, title, category, cost, stock, status, asin, score,
		    action, floor_price, sell_price, candidates, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		 ON CONFLICT (sku) DO UPDATE SET
		   ean = EXCLUDED.ean, brand = EXCLUDED.brand, title = EXCLUDED.title,
		   category = EXCLUDED.category, cost = EXCLUDED.cost, stock = EXCLUDED.stock,
		   status = EXCLUDED.status, asin = EXCLUDED.asin, score = EXCLUDED.score,
		   action = EXCLUDED.action, floor_price = EXCLUDED.floor_price,
		   sell_price = EXCLUDED.sell_price, candidates = EXCLUDED.candidates,
		   updated_at = NOW()`,
		c.SKU, c.EAN, c.Brand, c.Title, c.Category, c.Cost.String(), c.Stock,
		c.Status, c.ASIN, c.Score, c.Action, c.FloorPrice.String(), c.SellPrice.String(), cands)
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}
	return nil
}

const classificationColumns = `sku, ean, brand, title, category, cost::text, stock, status,
	asin, score, action, floor_price::text, sell_price::text, candidates, updated_at`

func scanClassification(row pgx.Row) (*models.Classification, error) {
	var c models.Classification
	var cost, floor, sell string
	var cands []byte
	err := row.Scan(&c.SKU, &c.EAN, &c.Brand, &c.Title, &c.Category, &cost, &c.Stock,
		&c.Status, &c.ASIN, &c.Score, &c.Action, &floor, &sell, &cands, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse cost: %w", err)
	}
	if c.FloorPrice, err = decimal.NewFromString(floor); err != nil {
		return nil, fmt.Errorf("parse floor price: %w", err)
	}
	if c.SellPrice, err = decimal.NewFromString(sell); err != nil {
		return nil, fmt.Errorf("parse sell price: %w", err)
	}
	if len(cands) > 0 {
		if err := json.Unmarshal(cands, &c.Candidates); err != nil {
			return nil, fmt.Errorf("unmarshal candidates: %w", err)
		}
	}
	return &c, nil
}

func (s *PostgresStore) GetClassification(ctx context.Context, sku string) (*models.Classification, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+classificationColumns+` FROM classifications WHERE sku = $1`, sku)

	c, err := scanClassification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get classification: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListClassifications(ctx context.Context, filter ClassificationFilter) ([]*models.Classification, error) {
	query := `SELECT ` + classificationColumns + ` FROM classifications WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	query += " ORDER BY sku"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Classification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Listings index ---

// ReplaceListings atomically swaps the listings index for a fresh snapshot.
func (s *PostgresStore) ReplaceListings(ctx context.Context, listings []models.Listing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin listings replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("clear listings: %w", err)
	}
	for _, l := range listings {
		_, err := tx.Exec(ctx,
			`INSERT INTO listings (asin, seller_sku, price, quantity, condition, status, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 ON CONFLICT (seller_sku) DO UPDATE SET
			   asin = EXCLUDED.asin, price = EXCLUDED.price, quantity = EXCLUDED.quantity,
			   condition = EXCLUDED.condition, status = EXCLUDED.status, updated_at = NOW()`,
			l.ASIN, l.SellerSKU, l.Price, l.Quantity, l.Condition, l.Status)
		if err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetListingBySKU(ctx context.Context, sellerSKU string) (*models.Listing, error) {
	return s.getListing(ctx,
		`SELECT asin, seller_sku, price, quantity, condition, status, updated_at
		 FROM listings WHERE seller_sku = $1`, sellerSKU)
}

func (s *PostgresStore) GetListingByASIN(ctx context.Context, asin string) (*models.Listing, error) {
	return s.getListing(ctx,
		`SELECT asin, seller_sku, price, quantity, condition, status, updated_at
		 FROM listings WHERE asin = $1 LIMIT 1`, asin)
}

func (s *PostgresStore) getListing(ctx context.Context, query, arg string) (*models.Listing, error) {
	var l models.Listing
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&l.ASIN, &l.SellerSKU, &l.Price, &l.Quantity, &l.Condition, &l.Status, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.RunSummary) error {
	counts, err := json.Marshal(run.ActionCounts)
	if err != nil {
		return fmt.Errorf("marshal action counts: %w", err)
	}
	feeds, err := json.Marshal(run.Feeds)
	if err != nil {
		return fmt.Errorf("marshal feeds: %w", err)
	}
	rowsJSON, err := json.Marshal(run.Rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, simulated, action_counts, feeds, rows, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Simulated, counts, feeds, rowsJSON, run.StartedAt, run.FinishedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func scanRun(row pgx.Row) (*models.RunSummary, error) {
	var r models.RunSummary
	var counts, feeds, rowsJSON []byte
	err := row.Scan(&r.ID, &r.Simulated, &counts, &feeds, &rowsJSON, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(counts, &r.ActionCounts); err != nil {
		return nil, fmt.Errorf("unmarshal action counts: %w", err)
	}
	if err := json.Unmarshal(feeds, &r.Feeds); err != nil {
		return nil, fmt.Errorf("unmarshal feeds: %w", err)
	}
	if err := json.Unmarshal(rowsJSON, &r.Rows); err != nil {
		return nil, fmt.Errorf("unmarshal rows: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.RunSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, simulated, action_counts, feeds, rows, started_at, finished_at
		 FROM runs WHERE id = $1`, id)

	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, simulated, action_counts, feeds, rows, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*models.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
