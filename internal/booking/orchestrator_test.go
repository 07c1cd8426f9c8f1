package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/inventory"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store *orders.MemStore
	orch  *Orchestrator
	clk   *clock
}

func newFixture(t *testing.T, stock map[string]int) fixture {
	t.Helper()
	s := orders.NewMemStore()
	for id, n := range stock {
		s.SeedBucket(orders.Bucket{ID: id, TourID: "T1", Stock: n})
	}
	clk := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	o := New(s, inventory.New(nil), Options{Now: clk.Now})
	return fixture{store: s, orch: o, clk: clk}
}

func (f fixture) create(t *testing.T, id string, items ...orders.Item) *orders.Order {
	t.Helper()
	ord, err := f.orch.CreateOrderTx(context.Background(), CreateOrderInput{
		OrderID: id, Amount: 2_000_000, CustomerEmail: "guest@example.vn", Items: items,
	})
	require.NoError(t, err)
	return ord
}

func TestCreateOrderTakesSeats(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 5})
	ord := f.create(t, "ORD100", orders.Item{BucketID: "b1", Adults: 2, Infants: 1})

	assert.True(t, ord.StockDeducted)
	assert.Equal(t, orders.StatusPending, ord.Status)
	require.NotNil(t, ord.ExpiresAt)
	assert.Equal(t, f.clk.Now().Add(time.Hour), *ord.ExpiresAt)
	assert.Equal(t, 2, f.store.Stock("b1"))
}

func TestCreateOrderGeneratesID(t *testing.T) {
	f := newFixture(t, nil)
	ord := f.create(t, "")
	assert.NotEmpty(t, ord.OrderID)
	assert.False(t, ord.StockDeducted)
}

func TestFailedDeductionPersistsNothing(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 5, "b2": 1})

	_, err := f.orch.CreateOrderTx(context.Background(), CreateOrderInput{
		OrderID: "ORD101", Amount: 1,
		Items: []orders.Item{{BucketID: "b1", Adults: 3}, {BucketID: "b2", Adults: 2}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = f.orch.GetOrder(context.Background(), "ORD101")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	assert.Equal(t, 5, f.store.Stock("b1"))
	assert.Equal(t, 1, f.store.Stock("b2"))
}

func TestCreateOrderDuplicateID(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 5})
	f.create(t, "ORD102", orders.Item{BucketID: "b1", Adults: 1})

	_, err := f.orch.CreateOrderTx(context.Background(), CreateOrderInput{
		OrderID: "ORD102", Amount: 1, Items: []orders.Item{{BucketID: "b1", Adults: 1}},
	})
	assert.ErrorIs(t, err, orders.ErrDuplicateOrder)
	assert.Equal(t, 4, f.store.Stock("b1"))
}

func TestCreateOrderRejectsSeparatorInID(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.CreateOrderTx(context.Background(), CreateOrderInput{OrderID: "ORD_1", Amount: 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestScenarioORD001(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 2})
	ord := f.create(t, "ORD001", orders.Item{BucketID: "b1", Adults: 2})
	assert.Equal(t, 0, f.store.Stock("b1"))

	_, err := f.orch.CreateOrderTx(context.Background(), CreateOrderInput{
		OrderID: "ORD002", Amount: 1, Items: []orders.Item{{BucketID: "b1", Adults: 1}},
	})
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)

	got, err := f.orch.GetOrder(context.Background(), ord.OrderID)
	require.NoError(t, err)
	assert.True(t, got.StockDeducted)
	assert.Equal(t, 0, f.store.Stock("b1"))

	// a replayed success does not take the seats a second time
	_, err = f.orch.CompletePaymentTx(context.Background(), "ORD001", PaymentData{Method: orders.MethodMoMo})
	require.NoError(t, err)
	_, err = f.orch.CompletePaymentTx(context.Background(), "ORD001", PaymentData{Method: orders.MethodMoMo})
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.Stock("b1"))
}

func TestCancelRestoresOnce(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 4})
	f.create(t, "ORD103", orders.Item{BucketID: "b1", Adults: 3})

	st := orders.StatusCancelled
	r, err := f.orch.UpdateOrderTx(context.Background(), "ORD103", orders.Update{Status: &st}, UpdateOptions{HandleStock: true})
	require.NoError(t, err)
	assert.True(t, r.StockRestored)
	assert.False(t, r.Order.StockDeducted)
	assert.Nil(t, r.Order.ExpiresAt)
	assert.Equal(t, 4, f.store.Stock("b1"))

	r, err = f.orch.UpdateOrderTx(context.Background(), "ORD103", orders.Update{Status: &st}, UpdateOptions{HandleStock: true})
	require.NoError(t, err)
	assert.False(t, r.StockRestored)
	assert.Equal(t, 4, f.store.Stock("b1"))
}

func TestInvalidTransition(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "ORD104")

	st := orders.StatusCompleted
	_, err := f.orch.UpdateOrderTx(context.Background(), "ORD104", orders.Update{Status: &st}, UpdateOptions{})
	assert.Equal(t, "INVALID_TRANSITION", apperr.CodeOf(err))

	_, err = f.orch.UpdateOrderTx(context.Background(), "missing", orders.Update{Status: &st}, UpdateOptions{})
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestCompletePayment(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 3})
	f.create(t, "ORD105", orders.Item{BucketID: "b1", Adults: 1})

	r, err := f.orch.CompletePaymentTx(context.Background(), "ORD105", PaymentData{
		Method: orders.MethodVNPay, TransactionID: "14012345",
	})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, r.Order.Status)
	assert.Equal(t, orders.PaymentCompleted, r.Order.PaymentStatus)
	assert.Equal(t, "14012345", r.Order.TransactionID)
	require.NotNil(t, r.Order.PaidAt)
	assert.Nil(t, r.Order.ExpiresAt)
	assert.False(t, r.StockDeducted)
	assert.Equal(t, 2, f.store.Stock("b1"))
}

func TestLatePaymentRetakesSeats(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 2})
	f.create(t, "ORD106", orders.Item{BucketID: "b1", Adults: 2})

	f.clk.Advance(2 * time.Hour)
	res, err := f.orch.CleanupExpiredOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CleanedCount)
	assert.Equal(t, 2, f.store.Stock("b1"))

	r, err := f.orch.CompletePaymentTx(context.Background(), "ORD106", PaymentData{Method: orders.MethodMoMo})
	require.NoError(t, err)
	assert.True(t, r.StockDeducted)
	assert.Equal(t, orders.StatusConfirmed, r.Order.Status)
	assert.Equal(t, 0, f.store.Stock("b1"))
}

func TestLatePaymentWithoutSeatsAborts(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 2})
	f.create(t, "ORD107", orders.Item{BucketID: "b1", Adults: 2})
	f.clk.Advance(2 * time.Hour)
	_, err := f.orch.CleanupExpiredOrders(context.Background())
	require.NoError(t, err)

	f.create(t, "ORD108", orders.Item{BucketID: "b1", Adults: 2})

	_, err = f.orch.CompletePaymentTx(context.Background(), "ORD107", PaymentData{Method: orders.MethodMoMo})
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)

	got, err := f.orch.GetOrder(context.Background(), "ORD107")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusExpired, got.Status)
	assert.Equal(t, orders.PaymentExpired, got.PaymentStatus)
}

func TestFailAfterPaidIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "ORD109")
	_, err := f.orch.CompletePaymentTx(context.Background(), "ORD109", PaymentData{Method: orders.MethodMoMo})
	require.NoError(t, err)

	r, err := f.orch.FailPaymentTx(context.Background(), "ORD109", orders.MethodMoMo, "user cancelled")
	require.NoError(t, err)
	assert.False(t, r.Changed)
	assert.Equal(t, orders.PaymentCompleted, r.Order.PaymentStatus)
}

func TestPreparePayment(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "ORD110")

	_, err := f.orch.PreparePaymentTx(context.Background(), "ORD110", orders.MethodMoMo, 1)
	assert.Equal(t, "AMOUNT_MISMATCH", apperr.CodeOf(err))

	_, err = f.orch.FailPaymentTx(context.Background(), "ORD110", orders.MethodMoMo, "timeout")
	require.NoError(t, err)
	got, err := f.orch.GetOrder(context.Background(), "ORD110")
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)

	f.clk.Advance(10 * time.Minute)
	ord, err := f.orch.PreparePaymentTx(context.Background(), "ORD110", orders.MethodVNPay, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, ord.PaymentStatus)
	assert.Equal(t, orders.MethodVNPay, ord.PaymentMethod)
	assert.Empty(t, ord.FailureReason)
	require.NotNil(t, ord.ExpiresAt)
	assert.Equal(t, f.clk.Now().Add(time.Hour), *ord.ExpiresAt)

	_, err = f.orch.CompletePaymentTx(context.Background(), "ORD110", PaymentData{})
	require.NoError(t, err)
	_, err = f.orch.PreparePaymentTx(context.Background(), "ORD110", orders.MethodVNPay, 0)
	assert.Equal(t, "ALREADY_PAID", apperr.CodeOf(err))
}

func TestFailedPaymentReleasesSeats(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 3})
	f.create(t, "ORD112", orders.Item{BucketID: "b1", Adults: 2})
	require.Equal(t, 1, f.store.Stock("b1"))

	r, err := f.orch.FailPaymentTx(context.Background(), "ORD112", orders.MethodMoMo, "MoMo 1006")
	require.NoError(t, err)
	assert.True(t, r.StockRestored)
	assert.False(t, r.Order.StockDeducted)
	assert.Nil(t, r.Order.ExpiresAt)
	assert.Equal(t, 3, f.store.Stock("b1"))

	// a second failure callback must not give the seats back twice
	_, err = f.orch.FailPaymentTx(context.Background(), "ORD112", orders.MethodMoMo, "MoMo 1006")
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.Stock("b1"))

	// the sweep never sees the order, and no seats stay held
	f.clk.Advance(2 * time.Hour)
	res, err := f.orch.CleanupExpiredOrders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TotalFound)
	assert.Equal(t, 3, f.store.Stock("b1"))
}

func TestRetryRetakesSeats(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 3})
	f.create(t, "ORD113", orders.Item{BucketID: "b1", Adults: 2})
	_, err := f.orch.FailPaymentTx(context.Background(), "ORD113", orders.MethodVNPay, "VNPay 24")
	require.NoError(t, err)

	ord, err := f.orch.PreparePaymentTx(context.Background(), "ORD113", orders.MethodMoMo, 0)
	require.NoError(t, err)
	assert.True(t, ord.StockDeducted)
	assert.Equal(t, 1, f.store.Stock("b1"))

	// an abandoned retry is swept like any other pending order
	f.clk.Advance(2 * time.Hour)
	res, err := f.orch.CleanupExpiredOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CleanedCount)
	assert.Equal(t, 3, f.store.Stock("b1"))
}

func TestRetryWithoutSeatsAborts(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 2})
	f.create(t, "ORD114", orders.Item{BucketID: "b1", Adults: 2})
	_, err := f.orch.FailPaymentTx(context.Background(), "ORD114", orders.MethodMoMo, "MoMo 1006")
	require.NoError(t, err)
	f.create(t, "ORD115", orders.Item{BucketID: "b1", Adults: 2})

	_, err = f.orch.PreparePaymentTx(context.Background(), "ORD114", orders.MethodMoMo, 0)
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)

	got, err := f.orch.GetOrder(context.Background(), "ORD114")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentFailed, got.PaymentStatus)
	assert.False(t, got.StockDeducted)
	assert.Equal(t, 0, f.store.Stock("b1"))
}

func TestObserverSeesPreviousStatus(t *testing.T) {
	f := newFixture(t, nil)
	var froms []orders.Status
	f.orch.Observe(ObserverFunc(func(_ context.Context, _ *orders.Order, from orders.Status) {
		froms = append(froms, from)
	}))

	f.create(t, "ORD116")
	f.clk.Advance(2 * time.Hour)
	_, err := f.orch.CleanupExpiredOrders(context.Background())
	require.NoError(t, err)

	st := orders.StatusExpired
	_, err = f.orch.UpdateOrderTx(context.Background(), "ORD116", orders.Update{Status: &st}, UpdateOptions{})
	require.NoError(t, err)

	assert.Equal(t, []orders.Status{"", orders.StatusPending, orders.StatusExpired}, froms)
}

func TestObserversSeeCommittedChanges(t *testing.T) {
	f := newFixture(t, nil)
	var mu sync.Mutex
	var seen []orders.Status
	f.orch.Observe(ObserverFunc(func(_ context.Context, o *orders.Order, _ orders.Status) {
		mu.Lock()
		seen = append(seen, o.Status)
		mu.Unlock()
	}))

	f.create(t, "ORD111")
	st := orders.StatusCompleted
	_, _ = f.orch.UpdateOrderTx(context.Background(), "ORD111", orders.Update{Status: &st}, UpdateOptions{})
	_, err := f.orch.CompletePaymentTx(context.Background(), "ORD111", PaymentData{})
	require.NoError(t, err)

	assert.Equal(t, []orders.Status{orders.StatusPending, orders.StatusConfirmed}, seen)
}

type createHook struct {
	ObserverFunc
	created []string
}

func (h *createHook) OrderCreated(_ context.Context, o *orders.Order) error {
	h.created = append(h.created, o.OrderID)
	return nil
}

func TestCreateObserverSeesOnlyNewOrders(t *testing.T) {
	f := newFixture(t, map[string]int{"b1": 5})
	h := &createHook{ObserverFunc: func(context.Context, *orders.Order, orders.Status) {}}
	f.orch.Observe(h)

	f.create(t, "ORD120", orders.Item{BucketID: "b1", Adults: 1})
	st := orders.StatusCancelled
	_, err := f.orch.UpdateOrderTx(context.Background(), "ORD120", orders.Update{Status: &st}, UpdateOptions{HandleStock: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"ORD120"}, h.created)
}
