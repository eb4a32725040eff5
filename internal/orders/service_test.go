package orders

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/bundlehub/internal/alerts"
	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/utils"
	"github.com/sudo-init-do/bundlehub/internal/wallet"
)

type orderNotifier struct {
	alerts.Nop
	mu     sync.Mutex
	placed []alerts.OrderPlacedPayload
	low    []int64
}

func (n *orderNotifier) OrderPlaced(_ context.Context, p alerts.OrderPlacedPayload, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, p)
	return nil
}

func (n *orderNotifier) LowBalance(_ context.Context, _, _ string, balance int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.low = append(n.low, balance)
	return nil
}

type fixture struct {
	svc    *Service
	wallet *wallet.Service
	store  *ledger.BoltStore
	notify *orderNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := ledger.OpenBolt(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Wallet: config.Wallet{Currency: "GHS", TopUpMin: 100, TopUpMax: 500000, HistoryLimit: 50, LowBalanceThreshold: 500},
		Orders: config.Orders{EnabledCarriers: []string{"MTN", "TELECEL"}},
	}
	log := zaptest.NewLogger(t)
	n := &orderNotifier{}
	ws := wallet.NewService(store, nil, n, cfg, log)
	return &fixture{svc: NewService(store, ws, n, cfg, log), wallet: ws, store: store, notify: n}
}

func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.wallet.Adjust(context.Background(), "admin-1", userID, amount, "seed")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	w, err := f.wallet.Balance(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func purchase(amount int64) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID:      "user-1",
		Email:       "ama@example.com",
		Carrier:     "mtn",
		PackageID:   "2",
		Amount:      amount,
		PhoneNumber: "0241234567",
	}
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "user-1", 3000)

	_, err := f.svc.PlaceOrder(ctx, purchase(5000))
	var ierr *ledger.InsufficientFundsError
	require.True(t, errors.As(err, &ierr))
	assert.EqualValues(t, 3000, ierr.Balance)

	assert.EqualValues(t, 3000, f.balance(t, "user-1"))
	orders, err := f.svc.UserOrders(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.notify.placed)
}

func TestPlaceOrderDebitsAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "user-1", 3000)

	placed, err := f.svc.PlaceOrder(ctx, purchase(2000))
	require.NoError(t, err)
	assert.EqualValues(t, 1000, placed.NewBalance)
	assert.True(t, strings.HasPrefix(placed.TransactionID, "TXN_"))
	assert.EqualValues(t, 1000, f.balance(t, "user-1"))

	o, err := f.store.OrderByID(ctx, placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CarrierMTN, o.Carrier)
	assert.Equal(t, "2GB", o.PackageName)
	assert.Equal(t, ledger.OrderPending, o.Status)
	assert.Equal(t, placed.TransactionID, o.TransactionID)
	assert.EqualValues(t, 1000, o.BalanceAfter)

	txs, err := f.wallet.History(ctx, "user-1", 0)
	require.NoError(t, err)
	var purchases []ledger.Transaction
	for _, tx := range txs {
		if tx.Kind == ledger.KindPurchase {
			purchases = append(purchases, tx)
		}
	}
	require.Len(t, purchases, 1)
	assert.Equal(t, placed.TransactionID, purchases[0].Reference)
	assert.EqualValues(t, 2000, purchases[0].Amount)

	require.Len(t, f.notify.placed, 1)
	assert.Equal(t, placed.OrderID, f.notify.placed[0].OrderID)
	assert.Empty(t, f.notify.low, "1000 is above the threshold")
}

func TestPlaceOrderWarnsOnLowBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", 1000)

	_, err := f.svc.PlaceOrder(context.Background(), purchase(800))
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, f.notify.low)
}

func TestConcurrentOrdersNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "user-1", 10000)

	const attempts = 25
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		ok, refused int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(ctx, purchase(700))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ledger.ErrInsufficientFunds) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 14, ok)
	assert.Equal(t, attempts-14, refused)
	assert.EqualValues(t, 10000-14*700, f.balance(t, "user-1"))

	orders, err := f.svc.UserOrders(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 14)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", 3000)

	cases := []struct {
		name  string
		edit  func(*PlaceOrderRequest)
		field string
	}{
		{"missing carrier", func(r *PlaceOrderRequest) { r.Carrier = "" }, "carrier"},
		{"disabled carrier", func(r *PlaceOrderRequest) { r.Carrier = "AT" }, "carrier"},
		{"unknown carrier", func(r *PlaceOrderRequest) { r.Carrier = "GLO" }, "carrier"},
		{"missing package", func(r *PlaceOrderRequest) { r.PackageID = " " }, "package_id"},
		{"zero amount", func(r *PlaceOrderRequest) { r.Amount = 0 }, "amount"},
		{"missing phone", func(r *PlaceOrderRequest) { r.PhoneNumber = "" }, "phone_number"},
		{"short phone", func(r *PlaceOrderRequest) { r.PhoneNumber = "02412" }, "phone_number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := purchase(1000)
			tc.edit(&req)
			_, err := f.svc.PlaceOrder(context.Background(), req)
			var verr *ledger.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.EqualValues(t, 3000, f.balance(t, "user-1"))
}

func TestPlaceOrderAcceptsInternationalNumbers(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", 3000)

	req := purchase(1000)
	req.PhoneNumber = "+233 24 123 4567"
	req.PackageName = "Weekly 5GB"
	placed, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	o, err := f.store.OrderByID(context.Background(), placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "+233241234567", o.PhoneNumber)
	assert.Equal(t, "Weekly 5GB", o.PackageName)
}

func TestNewServiceRegistersPhoneRule(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.validate.Var("0241234567", "phone"))
	assert.NoError(t, f.svc.validate.Var("+233241234567", "phone"))
	assert.Error(t, f.svc.validate.Var("12345", "phone"))
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "user-1", 3000)
	placed, err := f.svc.PlaceOrder(ctx, purchase(1000))
	require.NoError(t, err)

	o, err := f.svc.UpdateStatus(ctx, placed.OrderID, ledger.OrderProcessing)
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderProcessing, o.Status)

	_, err = f.svc.UpdateStatus(ctx, placed.OrderID, ledger.OrderPending)
	assert.True(t, ledger.IsValidation(err))

	o, err = f.svc.UpdateStatus(ctx, placed.OrderID, ledger.OrderCompleted)
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderCompleted, o.Status)

	// a delivered order can no longer be refunded
	_, err = f.svc.UpdateStatus(ctx, placed.OrderID, ledger.OrderFailed)
	assert.ErrorIs(t, err, ledger.ErrOrderNotRefundable)
	assert.EqualValues(t, 2000, f.balance(t, "user-1"))

	_, err = f.svc.UpdateStatus(ctx, "missing", ledger.OrderProcessing)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
}

func TestFailedOrderRefundedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "user-1", 3000)
	placed, err := f.svc.PlaceOrder(ctx, purchase(2000))
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		refunded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateStatus(ctx, placed.OrderID, ledger.OrderFailed)
			if err == nil {
				mu.Lock()
				refunded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ledger.ErrOrderNotRefundable)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, refunded)
	assert.EqualValues(t, 3000, f.balance(t, "user-1"))

	o, err := f.store.OrderByID(ctx, placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderFailed, o.Status)
}

func TestCreateOrderHandler(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", 3000)
	h := NewHandler(f.svc, zaptest.NewLogger(t))

	post := func(body string) *httptest.ResponseRecorder {
		e := echo.New()
		e.Validator = utils.NewValidator()
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("user_id", "user-1")
		c.Set("email", "ama@example.com")
		require.NoError(t, h.CreateOrder(c))
		return rec
	}

	rec := post(`{"network":"MTN","package_id":"5","amount":5000,"phone_number":"0241234567"}`)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient balance")

	assert.Equal(t, http.StatusBadRequest, post(`{"network":"MTN","amount":500}`).Code)

	rec = post(`{"network":"MTN","package_id":"2","amount":2000,"phone_number":"0241234567"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"new_balance":1000`)
}
