package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commerce-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const cartColumns = `id, user_id, created_at, updated_at`

// GetCartByUserID retrieves the user's cart with its items
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	return s.getCart(ctx, "SELECT "+cartColumns+" FROM carts WHERE user_id = $1", userID)
}

// LockCartByUserID retrieves the user's cart and holds its row lock until the
// transaction ends
func (s *Store) LockCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	return s.getCart(ctx, "SELECT "+cartColumns+" FROM carts WHERE user_id = $1 FOR UPDATE", userID)
}

func (s *Store) getCart(ctx context.Context, query string, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := sqlx.GetContext(ctx, s.q, &cart, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items := []models.CartItem{}
	err = sqlx.SelectContext(ctx, s.q, &items,
		"SELECT id, cart_id, product_id, quantity, created_at FROM cart_items WHERE cart_id = $1 ORDER BY id",
		cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	cart.Items = items

	return &cart, nil
}

// CreateCart creates the user's cart unless another request already did
func (s *Store) CreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return s.GetCartByUserID(ctx, userID)
}

// AddCartItem upserts a cart line, adding to the quantity on conflict
func (s *Store) AddCartItem(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("failed to add cart item: %w", models.ErrInvalidQuantity)
	}
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity, created_at`

	var item models.CartItem
	if err := sqlx.GetContext(ctx, s.q, &item, query, cartID, productID, quantity); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return &item, nil
}

// UpdateCartItemQuantity sets the quantity of a cart line
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

// DeleteCartItem removes a cart line
func (s *Store) DeleteCartItem(ctx context.Context, itemID int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

// ClearCart removes every line; the cart row itself is kept
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	_, err := s.q.ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE id = $1", cartID)
	return err
}
