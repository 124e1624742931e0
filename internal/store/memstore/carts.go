package memstore

import (
	"context"
	"sort"

	"commerce-service/internal/models"
	"commerce-service/internal/store"
)

// GetCartByUserID retrieves the user's cart with its items
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	defer s.lock()()
	return s.cartFor(userID)
}

// LockCartByUserID behaves like GetCartByUserID; isolation comes from WithTx
func (s *Store) LockCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	defer s.lock()()
	return s.cartFor(userID)
}

func (s *Store) cartFor(userID int64) (*models.Cart, error) {
	cartID, ok := s.data.cartByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cart := s.data.carts[cartID]

	cart.Items = []models.CartItem{}
	for _, item := range s.data.cartItems {
		if item.CartID == cartID {
			cart.Items = append(cart.Items, item)
		}
	}
	sort.Slice(cart.Items, func(i, j int) bool { return cart.Items[i].ID < cart.Items[j].ID })
	return &cart, nil
}

// CreateCart returns the user's cart, creating it on first use
func (s *Store) CreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	defer s.lock()()

	if _, ok := s.data.cartByUser[userID]; !ok {
		s.data.cartSeq++
		now := s.now()
		s.data.carts[s.data.cartSeq] = models.Cart{
			ID:        s.data.cartSeq,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.data.cartByUser[userID] = s.data.cartSeq
	}
	return s.cartFor(userID)
}

// AddCartItem inserts a line or increments the quantity of the existing one
func (s *Store) AddCartItem(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, models.ErrInvalidQuantity
	}
	defer s.lock()()

	if _, ok := s.data.carts[cartID]; !ok {
		return nil, store.ErrNotFound
	}
	for id, item := range s.data.cartItems {
		if item.CartID == cartID && item.ProductID == productID {
			item.Quantity += quantity
			s.data.cartItems[id] = item
			return &item, nil
		}
	}

	s.data.cartItemSeq++
	item := models.CartItem{
		ID:        s.data.cartItemSeq,
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: s.now(),
	}
	s.data.cartItems[item.ID] = item
	return &item, nil
}

// UpdateCartItemQuantity sets the quantity of a cart line
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	defer s.lock()()

	item, ok := s.data.cartItems[itemID]
	if !ok {
		return store.ErrNotFound
	}
	item.Quantity = quantity
	s.data.cartItems[itemID] = item
	return nil
}

// DeleteCartItem removes a cart line
func (s *Store) DeleteCartItem(ctx context.Context, itemID int64) error {
	defer s.lock()()

	if _, ok := s.data.cartItems[itemID]; !ok {
		return store.ErrNotFound
	}
	delete(s.data.cartItems, itemID)
	return nil
}

// ClearCart removes every line of the cart
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	defer s.lock()()

	for id, item := range s.data.cartItems {
		if item.CartID == cartID {
			delete(s.data.cartItems, id)
		}
	}
	if cart, ok := s.data.carts[cartID]; ok {
		cart.UpdatedAt = s.now()
		s.data.carts[cartID] = cart
	}
	return nil
}
