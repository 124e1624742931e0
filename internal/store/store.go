package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PoolConfig controls the connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
	tx *sqlx.Tx
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string, pool PoolConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// NewStoreFromDB wraps an existing connection
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn inside a transaction, rolling back on error/panic
func (s *Store) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&Store{db: s.db, q: tx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		if IsConcurrencyError(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const productColumns = `id, name, description, price, stock, category, image_url, active, created_at, updated_at`

// CreateProduct creates a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, category, image_url, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, s.q, product, query,
		product.Name, product.Description, product.Price, product.Stock,
		product.Category, product.ImageURL, product.Active)
}

// UpdateProduct overwrites the mutable product fields
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, stock = $4, category = $5,
			image_url = $6, active = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, s.q, &product.UpdatedAt, query,
		product.Name, product.Description, product.Price, product.Stock,
		product.Category, product.ImageURL, product.Active, product.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves catalog products
func (s *Store) GetProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE 1 = 1"
	args := []interface{}{}
	if !filter.IncludeInactive {
		query += " AND active = TRUE"
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY id"

	products := []models.Product{}
	err := sqlx.SelectContext(ctx, s.q, &products, query, args...)
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	return s.selectProductsIn(ctx, "SELECT "+productColumns+" FROM products WHERE id IN (?) ORDER BY id", ids)
}

// LockProductsByIDs selects products FOR UPDATE in ascending id order so that
// concurrent checkouts acquire row locks in the same sequence
func (s *Store) LockProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	products, err := s.selectProductsIn(ctx, "SELECT "+productColumns+" FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	return products, nil
}

func (s *Store) selectProductsIn(ctx context.Context, query string, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In(query, ids)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var products []models.Product
	err = sqlx.SelectContext(ctx, s.q, &products, query, args...)
	return products, err
}

// DecrementStock removes quantity units, refusing to go below zero
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("failed to decrement stock: %w", models.ErrInvalidQuantity)
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	return expectAffected(res, ErrStockConflict)
}

// IncrementStock returns quantity units to the pool
func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("failed to increment stock: %w", models.ErrInvalidQuantity)
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

func expectAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
