package store

import (
	"testing"
	"time"

	"bookshop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAppendOrderItemComputesSubTotal(t *testing.T) {
	db := openTestDB(t)
	o, err := CreateOrder(db, 1, "BK-TEST-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, o.Status)
	assert.Equal(t, int64(0), o.TotalCents)

	item, err := AppendOrderItem(db, o.ID, 7, 3, 1250)
	require.NoError(t, err)
	assert.Equal(t, int64(3750), item.SubTotalCents)
}

func TestUpdateOrderItemQuantity(t *testing.T) {
	db := openTestDB(t)
	o, err := CreateOrder(db, 1, "BK-TEST-2")
	require.NoError(t, err)
	_, err = AppendOrderItem(db, o.ID, 7, 2, 500)
	require.NoError(t, err)

	item, err := UpdateOrderItemQuantity(db, o.ID, 7, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)
	assert.Equal(t, int64(2500), item.SubTotalCents, "sub-total recomputed from the frozen unit price")

	_, err = UpdateOrderItemQuantity(db, o.ID, 99, 5)
	assert.ErrorIs(t, err, ErrOrderItemNotFound)
}

func TestDeleteOrderItem(t *testing.T) {
	db := openTestDB(t)
	o, err := CreateOrder(db, 1, "BK-TEST-3")
	require.NoError(t, err)
	_, err = AppendOrderItem(db, o.ID, 7, 2, 500)
	require.NoError(t, err)

	require.NoError(t, DeleteOrderItem(db, o.ID, 7))
	items, err := GetOrderItems(db, o.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, DeleteOrderItem(db, o.ID, 7), ErrOrderItemNotFound)
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	db := openTestDB(t)
	err := UpdateOrderStatus(db, 12345, model.StatusCheck)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListOrdersByUserNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		o := &model.Order{
			OrderNo:   "BK-LIST-" + string(rune('A'+i)),
			UserID:    42,
			Status:    model.StatusDraft,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(o).Error)
	}
	// another user's order must not leak in
	require.NoError(t, db.Create(&model.Order{OrderNo: "BK-LIST-X", UserID: 7, Status: model.StatusDraft}).Error)

	orders, err := ListOrdersByUser(db, 42, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "BK-LIST-C", orders[0].OrderNo)
	assert.Equal(t, "BK-LIST-A", orders[2].OrderNo)

	orders, err = ListOrdersByUser(db, 42, 2, 2)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "BK-LIST-A", orders[0].OrderNo)

	n, err := CountOrdersByUser(db, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
