package service

import (
	"time"

	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps the units a single cart line may hold
const MaxLineQuantity = 10000

// AddCartItemRequest represents a request to add a product to the cart
type AddCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1,max=10000"`
}

// UpdateCartItemRequest sets the quantity of a cart line; 0 removes it
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,max=10000"`
}

// CheckoutRequest represents a request to turn the cart into an order
type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" binding:"required"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// ProductRequest represents a catalog write
type ProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock" binding:"required"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
}

// CartView is the cart as returned to clients
type CartView struct {
	ID          int64           `json:"id"`
	Items       []CartItemView  `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalItems  int             `json:"total_items"`
}

// CartItemView is one cart line priced at the current product price
type CartItemView struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderView is an order as returned to clients
type OrderView struct {
	ID              int64              `json:"id"`
	Items           []OrderItemView    `json:"items"`
	TotalAmount     decimal.Decimal    `json:"total_amount"`
	Status          models.OrderStatus `json:"status"`
	ShippingAddress string             `json:"shipping_address"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// OrderItemView is an order line with its captured price
type OrderItemView struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// AvailabilityView reports how many units can currently be ordered
type AvailabilityView struct {
	ProductID int64  `json:"product_id"`
	Available int    `json:"available"`
	Source    string `json:"source"`
}

func newCartView(cart *models.Cart, products map[int64]models.Product) *CartView {
	view := &CartView{
		ID:          cart.ID,
		Items:       make([]CartItemView, 0, len(cart.Items)),
		TotalAmount: decimal.Zero,
	}

	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		view.Items = append(view.Items, CartItemView{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    item.Quantity,
			Subtotal:    subtotal,
		})
		view.TotalAmount = view.TotalAmount.Add(subtotal)
		view.TotalItems += item.Quantity
	}

	return view
}

func newOrderView(order *models.Order) *OrderView {
	view := &OrderView{
		ID:              order.ID,
		Items:           make([]OrderItemView, 0, len(order.Items)),
		TotalAmount:     order.TotalAmount,
		Status:          order.Status,
		ShippingAddress: order.ShippingAddress,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}

	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Subtotal:    item.Subtotal,
		})
	}

	return view
}
