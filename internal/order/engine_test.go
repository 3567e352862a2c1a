package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"bookshop/internal/model"
	"bookshop/internal/queue"
	"bookshop/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=10000&_txlock=immediate", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.InventoryRecord{},
	))
	return db
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewEngine(db, nil, nil), db
}

// seedBook creates a product plus its inventory record.
func seedBook(t *testing.T, db *gorm.DB, title string, priceCents, stock int64) *model.Product {
	t.Helper()
	p := &model.Product{
		SKU:        "SKU-" + uuid.NewString()[:8],
		Title:      title,
		Author:     "test author",
		PriceCents: priceCents,
	}
	require.NoError(t, store.CreateProduct(db, p))
	_, err := store.CreateInventory(db, p.ID, stock, 0)
	require.NoError(t, err)
	return p
}

func inventoryOf(t *testing.T, db *gorm.DB, productID uint) model.InventoryRecord {
	t.Helper()
	rec, err := store.GetInventory(db, productID)
	require.NoError(t, err)
	return *rec
}

// assertTotalInvariant checks order.total == sum of item sub-totals.
func assertTotalInvariant(t *testing.T, db *gorm.DB, orderID uint) {
	t.Helper()
	o, err := store.GetOrder(db, orderID)
	require.NoError(t, err)
	items, err := store.GetOrderItems(db, orderID)
	require.NoError(t, err)
	var sum int64
	for _, it := range items {
		sum += it.SubTotalCents
	}
	assert.Equal(t, sum, o.TotalCents)
}

func TestCreateOrderSnapshotsPrices(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p1 := seedBook(t, db, "Book One", 1200, 10)
	p2 := seedBook(t, db, "Book Two", 800, 10)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{
		{ProductID: p1.ID, Quantity: 2},
		{ProductID: p2.ID, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, details.Status)
	assert.Equal(t, int64(2*1200+3*800), details.TotalCents)
	require.Len(t, details.Items, 2)
	assert.Equal(t, "Book One", details.Items[0].ProductTitle)
	assertTotalInvariant(t, db, details.OrderID)

	// a later catalog price change must not touch the placed order
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", p1.ID).Update("price_cents", 9999).Error)
	after, err := eng.GetOrderDetails(ctx, details.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), after.Items[0].UnitPriceCents)
	assert.Equal(t, details.TotalCents, after.TotalCents)

	// creation must not touch inventory
	rec := inventoryOf(t, db, p1.ID)
	assert.Equal(t, int64(0), rec.Reserved)
	assert.Equal(t, int64(10), rec.Quantity)
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	eng, db := newTestEngine(t)
	p := seedBook(t, db, "Duplicated Book", 500, 10)

	details, err := eng.CreateOrder(context.Background(), 1, []ItemRequest{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: p.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, details.Items, 1)
	assert.Equal(t, 3, details.Items[0].Quantity)
	assert.Equal(t, int64(1500), details.TotalCents)
}

func TestCreateOrderInputValidation(t *testing.T) {
	eng, db := newTestEngine(t)
	p := seedBook(t, db, "Validation Book", 500, 10)
	ctx := context.Background()

	var be *BusinessError
	_, err := eng.CreateOrder(ctx, 0, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.ErrorAs(t, err, &be)

	_, err = eng.CreateOrder(ctx, 1, nil)
	require.ErrorAs(t, err, &be)

	_, err = eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 0}})
	require.ErrorAs(t, err, &be)
}

func TestCreateOrderUnknownProductRollsBack(t *testing.T) {
	eng, db := newTestEngine(t)
	p := seedBook(t, db, "Existing Book", 1000, 10)

	_, err := eng.CreateOrder(context.Background(), 1, []ItemRequest{
		{ProductID: p.ID, Quantity: 2},
		{ProductID: p.ID + 999, Quantity: 1},
	})
	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, p.ID+999, pnf.ProductID)

	// the whole transaction must roll back: no order, no items
	var orders, items int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&model.OrderItem{}).Count(&items).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestValidateOrderStockGate(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Scarce Book", 1000, 5)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 6}})
	require.NoError(t, err)

	_, err = eng.ValidateOrder(ctx, details.OrderID)
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Len(t, ise.Shortfalls, 1)
	assert.Equal(t, p.ID, ise.Shortfalls[0].ProductID)
	assert.Equal(t, "Scarce Book", ise.Shortfalls[0].ProductTitle)
	assert.Equal(t, int64(5), ise.Shortfalls[0].AvailableQuantity)
	assert.Equal(t, int64(6), ise.Shortfalls[0].RequestedQuantity)

	rec := inventoryOf(t, db, p.ID)
	assert.Equal(t, int64(0), rec.Reserved, "failed validation must leave no reservation")

	o, err := store.GetOrder(db, details.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, o.Status)
}

func TestValidateOrderEnumeratesEveryShortfall(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	short1 := seedBook(t, db, "Short One", 1000, 1)
	short2 := seedBook(t, db, "Short Two", 1000, 2)
	plenty := seedBook(t, db, "Plenty", 1000, 100)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{
		{ProductID: short1.ID, Quantity: 3},
		{ProductID: plenty.ID, Quantity: 5},
		{ProductID: short2.ID, Quantity: 4},
	})
	require.NoError(t, err)

	_, err = eng.ValidateOrder(ctx, details.OrderID)
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Len(t, ise.Shortfalls, 2, "every under-stocked line, not just the first")

	// no partial reservation, including the line that had plenty
	for _, p := range []*model.Product{short1, short2, plenty} {
		assert.Equal(t, int64(0), inventoryOf(t, db, p.ID).Reserved)
	}
}

func TestValidateOrderMissingInventoryRecordCountsAsZero(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := &model.Product{SKU: "SKU-norec", Title: "No Stock Record", PriceCents: 700}
	require.NoError(t, store.CreateProduct(db, p))

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = eng.ValidateOrder(ctx, details.OrderID)
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Len(t, ise.Shortfalls, 1)
	assert.Equal(t, int64(0), ise.Shortfalls[0].AvailableQuantity)
}

func TestReservationCommitFlow(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Reserved Book", 1000, 5)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)

	checked, err := eng.ValidateOrder(ctx, details.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheck, checked.Status)
	rec := inventoryOf(t, db, p.ID)
	assert.Equal(t, int64(3), rec.Reserved)
	assert.Equal(t, int64(5), rec.Quantity)

	done, err := eng.ConfirmOrder(ctx, details.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	rec = inventoryOf(t, db, p.ID)
	assert.Equal(t, int64(0), rec.Reserved)
	assert.Equal(t, int64(2), rec.Quantity)
	assertTotalInvariant(t, db, details.OrderID)
}

func TestStateMachineGuards(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Guarded Book", 1000, 10)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	var be *BusinessError
	// confirm straight from draft must fail, no state change
	_, err = eng.ConfirmOrder(ctx, details.OrderID)
	require.ErrorAs(t, err, &be)
	o, _ := store.GetOrder(db, details.OrderID)
	assert.Equal(t, model.StatusDraft, o.Status)
	assert.Equal(t, int64(10), inventoryOf(t, db, p.ID).Quantity)

	_, err = eng.ValidateOrder(ctx, details.OrderID)
	require.NoError(t, err)

	// validating again from check must fail
	_, err = eng.ValidateOrder(ctx, details.OrderID)
	require.ErrorAs(t, err, &be)
	o, _ = store.GetOrder(db, details.OrderID)
	assert.Equal(t, model.StatusCheck, o.Status)
	assert.Equal(t, int64(1), inventoryOf(t, db, p.ID).Reserved, "failed transition must not re-reserve")

	// unknown order id
	_, err = eng.ValidateOrder(ctx, 99999)
	require.ErrorAs(t, err, &be)
}

func TestValidateEmptiedOrderRejected(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Emptied Book", 1000, 10)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = eng.DeleteOrderItem(ctx, details.OrderID, p.ID)
	require.NoError(t, err)

	var be *BusinessError
	_, err = eng.ValidateOrder(ctx, details.OrderID)
	require.ErrorAs(t, err, &be)
}

func TestCancelReleasesAndIsNotIdempotent(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Canceled Book", 1000, 5)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	_, err = eng.ValidateOrder(ctx, details.OrderID)
	require.NoError(t, err)
	require.Equal(t, int64(3), inventoryOf(t, db, p.ID).Reserved)

	canceled, err := eng.CancelOrder(ctx, details.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, canceled.Status)
	assert.Equal(t, int64(0), inventoryOf(t, db, p.ID).Reserved)
	assert.Equal(t, int64(5), inventoryOf(t, db, p.ID).Quantity)

	// second cancel is a business error and must not double-release
	var be *BusinessError
	_, err = eng.CancelOrder(ctx, details.OrderID)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, int64(0), inventoryOf(t, db, p.ID).Reserved)
}

func TestCancelDraftTouchesNoInventory(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Draft Cancel Book", 1000, 5)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	canceled, err := eng.CancelOrder(ctx, details.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, canceled.Status)

	rec := inventoryOf(t, db, p.ID)
	assert.Equal(t, int64(0), rec.Reserved)
	assert.Equal(t, int64(5), rec.Quantity)
}

func TestCancelCompletedRejected(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Done Book", 1000, 5)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	_, err = eng.ValidateOrder(ctx, details.OrderID)
	require.NoError(t, err)
	_, err = eng.ConfirmOrder(ctx, details.OrderID)
	require.NoError(t, err)

	var be *BusinessError
	_, err = eng.CancelOrder(ctx, details.OrderID)
	require.ErrorAs(t, err, &be)
	rec := inventoryOf(t, db, p.ID)
	assert.Equal(t, int64(3), rec.Quantity, "canceling a completed order must not restock")
}

func TestEditOrderItem(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p1 := seedBook(t, db, "Edited Book", 1000, 10)
	p2 := seedBook(t, db, "Second Book", 600, 10)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{
		{ProductID: p1.ID, Quantity: 2},
		{ProductID: p2.ID, Quantity: 1},
	})
	require.NoError(t, err)

	edited, err := eng.EditOrderItem(ctx, details.OrderID, p1.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5*1000+600), edited.TotalCents)
	assert.Equal(t, model.StatusDraft, edited.Status)
	assertTotalInvariant(t, db, details.OrderID)

	var be *BusinessError
	_, err = eng.EditOrderItem(ctx, details.OrderID, p1.ID, 0)
	require.ErrorAs(t, err, &be)

	_, err = eng.EditOrderItem(ctx, details.OrderID, p1.ID+999, 2)
	require.ErrorAs(t, err, &be)
}

func TestDeleteOrderItemRecomputesTotal(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p1 := seedBook(t, db, "Kept Book", 1000, 10)
	p2 := seedBook(t, db, "Dropped Book", 600, 10)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{
		{ProductID: p1.ID, Quantity: 2},
		{ProductID: p2.ID, Quantity: 1},
	})
	require.NoError(t, err)

	after, err := eng.DeleteOrderItem(ctx, details.OrderID, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), after.TotalCents)
	require.Len(t, after.Items, 1)
	assertTotalInvariant(t, db, details.OrderID)
}

func TestEditGuardAfterValidation(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Locked Book", 1000, 10)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	_, err = eng.ValidateOrder(ctx, details.OrderID)
	require.NoError(t, err)

	var be *BusinessError
	_, err = eng.EditOrderItem(ctx, details.OrderID, p.ID, 5)
	require.ErrorAs(t, err, &be)
	_, err = eng.DeleteOrderItem(ctx, details.OrderID, p.ID)
	require.ErrorAs(t, err, &be)

	// neither order nor inventory changed
	o, _ := store.GetOrder(db, details.OrderID)
	assert.Equal(t, model.StatusCheck, o.Status)
	assert.Equal(t, int64(2000), o.TotalCents)
	assert.Equal(t, int64(2), inventoryOf(t, db, p.ID).Reserved)
}

// Two validations racing for the same stock: at most one may win, and the
// ledger invariant 0 <= reserved <= quantity must hold afterwards.
func TestConcurrentValidationNeverOverReserves(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	p := seedBook(t, db, "Contended Book", 1000, 5)

	d1, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	d2, err := eng.CreateOrder(ctx, 2, []ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uint{d1.OrderID, d2.OrderID} {
		wg.Add(1)
		go func(idx int, orderID uint) {
			defer wg.Done()
			_, errs[idx] = eng.ValidateOrder(ctx, orderID)
		}(i, id)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.LessOrEqual(t, successes, 1, "both validations succeeding would over-reserve")

	rec := inventoryOf(t, db, p.ID)
	assert.GreaterOrEqual(t, rec.Reserved, int64(0))
	assert.LessOrEqual(t, rec.Reserved, rec.Quantity)
	assert.Equal(t, int64(3*successes), rec.Reserved)
}

// fakePublisher records events and optionally fails.
type fakePublisher struct {
	mu     sync.Mutex
	events []queue.OrderEvent
	fail   bool
}

func (f *fakePublisher) Publish(_ context.Context, ev queue.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("broker down")
	}
	f.events = append(f.events, ev)
	return nil
}

func TestLifecycleEventsPublished(t *testing.T) {
	db := openTestDB(t)
	pub := &fakePublisher{}
	eng := NewEngine(db, pub, nil)
	ctx := context.Background()
	p := seedBook(t, db, "Eventful Book", 1000, 10)

	details, err := eng.CreateOrder(ctx, 1, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = eng.ValidateOrder(ctx, details.OrderID)
	require.NoError(t, err)
	_, err = eng.ConfirmOrder(ctx, details.OrderID)
	require.NoError(t, err)

	require.Len(t, pub.events, 3)
	assert.Equal(t, queue.EventOrderCreated, pub.events[0].EventType)
	assert.Equal(t, queue.EventOrderValidated, pub.events[1].EventType)
	assert.Equal(t, queue.EventOrderCompleted, pub.events[2].EventType)
	for _, ev := range pub.events {
		assert.NoError(t, ev.Validate())
		assert.Equal(t, details.OrderNo, ev.OrderNo)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	db := openTestDB(t)
	pub := &fakePublisher{fail: true}
	eng := NewEngine(db, pub, nil)
	p := seedBook(t, db, "Unlucky Book", 1000, 10)

	details, err := eng.CreateOrder(context.Background(), 1, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err, "event publish failure must not fail the order")
	require.NotNil(t, details)
}
