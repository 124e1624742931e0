package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	Category    string          `db:"category" json:"category,omitempty"`
	ImageURL    string          `db:"image_url" json:"image_url,omitempty"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Cart is the single shopping cart owned by a user
type Cart struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	Items     []CartItem `db:"-" json:"items"`
}

// FindItem returns the line item with the given id, if present
func (c *Cart) FindItem(itemID int64) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// FindProduct returns the line item holding the given product, if present
func (c *Cart) FindProduct(productID int64) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// ProductIDs lists the distinct products referenced by the cart
func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// CartItem is one product line in a cart
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Cancellable reports whether an order in this status may still be cancelled
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// Order represents a customer order
type Order struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          OrderStatus     `db:"status" json:"status"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	IdempotencyKey  string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	Items           []OrderItem     `db:"-" json:"items"`
}

// ItemsTotal sums the subtotals of every order line
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// OrderItem is an immutable line of an order with the price captured at checkout
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Subtotal    decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// ErrInvalidQuantity is returned for a line or stock movement of less than one unit
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// NewOrderItem snapshots a product line, computing the subtotal from the unit price
func NewOrderItem(product *Product, quantity int) (OrderItem, error) {
	if quantity < 1 {
		return OrderItem{}, ErrInvalidQuantity
	}
	return OrderItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		Price:       product.Price,
		Subtotal:    product.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
