package service

import (
	"context"
	"errors"
	"fmt"

	"commerce-service/internal/apperror"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// CartService manages the single active cart of each user
type CartService struct {
	store  store.Repository
	locks  *UserLocks
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo store.Repository, locks *UserLocks) *CartService {
	return &CartService{
		store:  repo,
		locks:  locks,
		logger: util.GetLogger(),
	}
}

// GetCart returns the user's cart, creating an empty one on first access
func (s *CartService) GetCart(ctx context.Context, userID int64) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		cart, err = s.store.CreateCart(ctx, userID)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, storeError(err, "cart not found")
	}

	return cartView(ctx, s.store, cart)
}

// AddItem adds quantity units of a product, merging with an existing line
func (s *CartService) AddItem(ctx context.Context, userID int64, req AddCartItemRequest) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if req.Quantity < 1 || req.Quantity > MaxLineQuantity {
		return nil, apperror.Newf(apperror.KindValidation, "quantity must be between 1 and %d", MaxLineQuantity)
	}

	var view *CartView
	err := s.mutate(ctx, userID, func(tx store.Repository, cart *models.Cart) error {
		product, err := tx.GetProductByID(ctx, req.ProductID)
		if err != nil {
			return storeError(err, fmt.Sprintf("product not found: %d", req.ProductID))
		}
		if !product.Active {
			return apperror.Newf(apperror.KindInvalidState, "product is not available: %s", product.Name)
		}

		inCart := 0
		if existing, ok := cart.FindProduct(product.ID); ok {
			inCart = existing.Quantity
		}
		if req.Quantity > MaxLineQuantity-inCart {
			return apperror.Newf(apperror.KindValidation, "quantity must be between 1 and %d", MaxLineQuantity)
		}
		if req.Quantity > product.Stock-inCart {
			return apperror.Newf(apperror.KindInvalidState, "insufficient stock for: %s", product.Name)
		}

		if _, err := tx.AddCartItem(ctx, cart.ID, product.ID, req.Quantity); err != nil {
			return storeError(err, "cart not found")
		}

		view, err = reloadCartView(ctx, tx, userID)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("add").Inc()
	s.logger.Debug("Cart item added",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))
	return view, nil
}

// UpdateItem sets the quantity of a cart line; zero or less removes it
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID int64, quantity int) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if quantity > MaxLineQuantity {
		return nil, apperror.Newf(apperror.KindValidation, "quantity must be between 1 and %d", MaxLineQuantity)
	}

	var view *CartView
	err := s.mutate(ctx, userID, func(tx store.Repository, cart *models.Cart) error {
		item, ok := cart.FindItem(itemID)
		if !ok {
			return apperror.Newf(apperror.KindNotFound, "cart item not found: %d", itemID)
		}

		if quantity <= 0 {
			if err := tx.DeleteCartItem(ctx, item.ID); err != nil {
				return storeError(err, fmt.Sprintf("cart item not found: %d", itemID))
			}
		} else {
			product, err := tx.GetProductByID(ctx, item.ProductID)
			if err != nil {
				return storeError(err, fmt.Sprintf("product not found: %d", item.ProductID))
			}
			if quantity > product.Stock {
				return apperror.Newf(apperror.KindInvalidState, "insufficient stock for: %s", product.Name)
			}
			if err := tx.UpdateCartItemQuantity(ctx, item.ID, quantity); err != nil {
				return storeError(err, fmt.Sprintf("cart item not found: %d", itemID))
			}
		}

		var err error
		view, err = reloadCartView(ctx, tx, userID)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	op := "update"
	if quantity <= 0 {
		op = "remove"
	}
	util.CartOperationsTotal.WithLabelValues(op).Inc()
	return view, nil
}

// RemoveItem deletes a cart line
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID int64) (*CartView, error) {
	return s.UpdateItem(ctx, userID, itemID, 0)
}

// ClearCart empties the cart; the cart itself is kept
func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	err := s.mutate(ctx, userID, func(tx store.Repository, cart *models.Cart) error {
		return storeError(tx.ClearCart(ctx, cart.ID), "cart not found")
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// mutate runs fn under the user's lock inside a transaction holding the cart row
func (s *CartService) mutate(ctx context.Context, userID int64, fn func(tx store.Repository, cart *models.Cart) error) error {
	unlock, err := s.locks.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.WithTx(ctx, func(tx store.Repository) error {
		cart, err := lockOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		return fn(tx, cart)
	})
}

func lockOrCreateCart(ctx context.Context, tx store.Repository, userID int64) (*models.Cart, error) {
	cart, err := tx.LockCartByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		if _, err = tx.CreateCart(ctx, userID); err != nil {
			return nil, storeError(err, "cart not found")
		}
		cart, err = tx.LockCartByUserID(ctx, userID)
	}
	if err != nil {
		return nil, storeError(err, "cart not found")
	}
	return cart, nil
}

func reloadCartView(ctx context.Context, repo store.Repository, userID int64) (*CartView, error) {
	cart, err := repo.GetCartByUserID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "cart not found")
	}
	return cartView(ctx, repo, cart)
}

func cartView(ctx context.Context, repo store.Repository, cart *models.Cart) (*CartView, error) {
	products, err := repo.GetProductsByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, storeError(err, "product not found")
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return newCartView(cart, byID), nil
}
