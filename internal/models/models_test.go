package models

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderItemSubtotal(t *testing.T) {
	product := &Product{ID: 7, Name: "Widget", Price: decimal.RequireFromString("19.99")}

	item, err := NewOrderItem(product, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(7), item.ProductID)
	assert.Equal(t, "Widget", item.ProductName)
	assert.True(t, item.Subtotal.Equal(decimal.RequireFromString("59.97")), "got %s", item.Subtotal)
}

func TestOrderItemsTotalIsExact(t *testing.T) {
	order := &Order{}
	for i := 0; i < 10; i++ {
		item, err := NewOrderItem(&Product{Price: decimal.RequireFromString("0.10")}, 1)
		require.NoError(t, err)
		order.Items = append(order.Items, item)
	}

	assert.True(t, order.ItemsTotal().Equal(decimal.NewFromInt(1)), "got %s", order.ItemsTotal())
}

func TestNewOrderItemRejectsNonPositiveQuantity(t *testing.T) {
	product := &Product{ID: 7, Name: "Widget", Price: decimal.RequireFromString("19.99")}

	for _, qty := range []int{0, -1, math.MinInt} {
		_, err := NewOrderItem(product, qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity, "quantity %d", qty)
	}
}

func TestOrderStatusCancellable(t *testing.T) {
	assert.True(t, OrderStatusPending.Cancellable())
	assert.True(t, OrderStatusConfirmed.Cancellable())
	assert.False(t, OrderStatusCancelled.Cancellable())
	assert.False(t, OrderStatus("SHIPPED").Cancellable())
}

func TestCartLookups(t *testing.T) {
	cart := &Cart{Items: []CartItem{
		{ID: 1, ProductID: 10, Quantity: 2},
		{ID: 2, ProductID: 20, Quantity: 1},
	}}

	item, ok := cart.FindItem(2)
	assert.True(t, ok)
	assert.Equal(t, int64(20), item.ProductID)

	_, ok = cart.FindItem(3)
	assert.False(t, ok)

	item, ok = cart.FindProduct(10)
	assert.True(t, ok)
	assert.Equal(t, 2, item.Quantity)

	assert.Equal(t, []int64{10, 20}, cart.ProductIDs())
}
