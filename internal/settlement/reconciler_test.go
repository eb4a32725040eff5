package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/bundlehub/internal/alerts"
	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/idempotency"
	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/paystack"
	"github.com/sudo-init-do/bundlehub/internal/wallet"
)

const testSecret = "sk_test_settlement"

// fakePaystack serves both checkout and verify from an in-memory status table
type fakePaystack struct {
	mu       sync.Mutex
	statuses map[string]string
	amounts  map[string]int64
	verifies int
}

func newFakePaystack() *fakePaystack {
	return &fakePaystack{statuses: map[string]string{}, amounts: map[string]int64{}}
}

func (f *fakePaystack) InitializeCheckout(_ context.Context, req paystack.CheckoutRequest) (*paystack.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[req.Reference] = "ongoing"
	f.amounts[req.Reference] = req.Amount
	return &paystack.Checkout{AuthorizationURL: "https://checkout.paystack.com/x", Reference: req.Reference}, nil
}

func (f *fakePaystack) VerifyTransaction(_ context.Context, ref string) (*paystack.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	status, ok := f.statuses[ref]
	if !ok {
		return nil, &paystack.GatewayError{Op: "verify", StatusCode: 404, Message: "Transaction reference not found"}
	}
	return &paystack.Verification{Reference: ref, Status: status, Amount: f.amounts[ref], Channel: "card", GatewayResponse: "Approved"}, nil
}

func (f *fakePaystack) set(ref, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[ref] = status
}

type recordingNotifier struct {
	alerts.Nop
	mu        sync.Mutex
	completed []string
	admin     []string
}

func (n *recordingNotifier) TopUpCompleted(_ context.Context, _, _, ref string, _, _ int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, ref)
	return nil
}

func (n *recordingNotifier) AdminAlert(_ context.Context, _, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, msg)
	return nil
}

type fixture struct {
	rec    *Reconciler
	wallet *wallet.Service
	store  *ledger.BoltStore
	gw     *fakePaystack
	notify *recordingNotifier
}

func testConfig() *config.Config {
	return &config.Config{
		Paystack: config.Paystack{SecretKey: testSecret},
		Wallet:   config.Wallet{Currency: "GHS", TopUpMin: 100, TopUpMax: 500000, HistoryLimit: 50},
		Settle: config.Settlement{
			LookupRetries:  2,
			LookupDelay:    time.Millisecond,
			ReconcileAfter: time.Minute,
		},
	}
}

func newFixture(t *testing.T, dedupe idempotency.Deduper) *fixture {
	t.Helper()
	store, err := ledger.OpenBolt(filepath.Join(t.TempDir(), "settle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if dedupe == nil {
		dedupe = idempotency.Nop{}
	}
	cfg := testConfig()
	log := zaptest.NewLogger(t)
	gw := newFakePaystack()
	n := &recordingNotifier{}
	ws := wallet.NewService(store, gw, n, cfg, log)
	return &fixture{
		rec:    NewReconciler(store, ws, gw, dedupe, n, cfg, log),
		wallet: ws,
		store:  store,
		gw:     gw,
		notify: n,
	}
}

func (f *fixture) topUp(t *testing.T, userID string, amount int64) string {
	t.Helper()
	topup, err := f.wallet.InitiateTopUp(context.Background(), userID, amount, userID+"@example.com")
	require.NoError(t, err)
	return topup.PaymentReference
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	w, err := f.wallet.Balance(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func webhookBody(t *testing.T, ref string, amount int64) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": paystack.EventChargeSuccess,
		"data": map[string]any{
			"reference":        ref,
			"status":           "success",
			"amount":           amount,
			"paid_at":          "2024-05-01T10:00:00.000Z",
			"channel":          "mobile_money",
			"gateway_response": "Approved",
			"ip_address":       "41.66.0.1",
		},
	})
	require.NoError(t, err)
	return body, paystack.Sign(testSecret, body)
}

// Webhook first, then the client verifies the same reference
func TestWebhookThenVerifyCreditsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 5000)
	f.gw.set(ref, "success")

	body, sig := webhookBody(t, ref, 5000)
	require.NoError(t, f.rec.HandleWebhook(ctx, body, sig))
	assert.EqualValues(t, 5000, f.balance(t, "user-1"))

	v, err := f.rec.VerifySettlement(ctx, "user-1", ref)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, v.NewBalance)
	assert.Equal(t, ledger.StatusCompleted, v.Status)
	assert.EqualValues(t, 5000, f.balance(t, "user-1"))
	assert.Zero(t, f.gw.verifies, "completed top-ups are answered from the ledger")

	tx, err := f.store.TransactionByPaymentRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, SourceWebhook, tx.Metadata["settled_via"])
	assert.Equal(t, "mobile_money", tx.Metadata["channel"])
	assert.Equal(t, []string{ref}, f.notify.completed)
}

func TestVerifyBeforeWebhook(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 2500)
	f.gw.set(ref, "success")

	v, err := f.rec.VerifySettlement(ctx, "user-1", ref)
	require.NoError(t, err)
	assert.EqualValues(t, 2500, v.NewBalance)

	body, sig := webhookBody(t, ref, 2500)
	require.NoError(t, f.rec.HandleWebhook(ctx, body, sig))
	assert.EqualValues(t, 2500, f.balance(t, "user-1"))
}

func TestConcurrentSettleCreditsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 1000)

	const triggers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < triggers; i++ {
		source := SourceWebhook
		if i%2 == 0 {
			source = SourceVerify
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.rec.Settle(ctx, ref, Confirmation{Status: "success", Amount: 1000, Source: source})
			assert.NoError(t, err)
			if err == nil && res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.EqualValues(t, 1000, f.balance(t, "user-1"))
}

// Two top-ups settling at the same time on one wallet lose no update
func TestConcurrentTopUpsOnOneWallet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	refs := []string{f.topUp(t, "user-1", 1000), f.topUp(t, "user-1", 1000)}

	var wg sync.WaitGroup
	for _, ref := range refs {
		for _, source := range []string{SourceWebhook, SourceVerify} {
			wg.Add(1)
			go func(ref, source string) {
				defer wg.Done()
				_, err := f.rec.Settle(ctx, ref, Confirmation{Status: "success", Source: source})
				assert.NoError(t, err)
			}(ref, source)
		}
	}
	wg.Wait()

	assert.EqualValues(t, 2000, f.balance(t, "user-1"))
}

func TestUnknownReference(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.topUp(t, "user-1", 1000)

	_, err := f.rec.Settle(ctx, "wallet_topup_missing", Confirmation{Status: "success", Source: SourceWebhook})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	body, sig := webhookBody(t, "wallet_topup_missing", 1000)
	assert.NoError(t, f.rec.HandleWebhook(ctx, body, sig), "unknown references are acknowledged")
	assert.Zero(t, f.balance(t, "user-1"))
}

func TestWebhookBadSignature(t *testing.T) {
	f := newFixture(t, nil)
	ref := f.topUp(t, "user-1", 1000)

	body, _ := webhookBody(t, ref, 1000)
	err := f.rec.HandleWebhook(context.Background(), body, paystack.Sign("wrong", body))
	assert.ErrorIs(t, err, paystack.ErrBadSignature)
	assert.Zero(t, f.balance(t, "user-1"))
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{"event":"transfer.success","data":{"reference":"x"}}`)
	assert.NoError(t, f.rec.HandleWebhook(context.Background(), body, paystack.Sign(testSecret, body)))
}

func TestFailedPaymentIsNotCredited(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 1000)
	f.gw.set(ref, "failed")

	v, err := f.rec.VerifySettlement(ctx, "user-1", ref)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, v.Status)
	assert.Zero(t, v.NewBalance)

	// a late success for a failed top-up is a conflict, never a credit
	_, err = f.rec.Settle(ctx, ref, Confirmation{Status: "success", Source: SourceWebhook})
	assert.ErrorIs(t, err, ledger.ErrSettlementConflict)
	assert.Zero(t, f.balance(t, "user-1"))
	assert.Len(t, f.notify.admin, 1)

	body, sig := webhookBody(t, ref, 1000)
	assert.NoError(t, f.rec.HandleWebhook(ctx, body, sig))
}

func TestAbandonedCheckoutStaysPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 1000)
	f.gw.set(ref, "abandoned")

	v, err := f.rec.VerifySettlement(ctx, "user-1", ref)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, v.Status)

	f.gw.set(ref, "success")
	v, err = f.rec.VerifySettlement(ctx, "user-1", ref)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, v.Status)
	assert.EqualValues(t, 1000, v.NewBalance)
}

func TestAmountMismatchIsConflict(t *testing.T) {
	f := newFixture(t, nil)
	ref := f.topUp(t, "user-1", 5000)

	body, sig := webhookBody(t, ref, 500)
	require.NoError(t, f.rec.HandleWebhook(context.Background(), body, sig))

	assert.Zero(t, f.balance(t, "user-1"))
	tx, err := f.store.TransactionByPaymentRef(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.Len(t, f.notify.admin, 1)
}

func TestVerifyForeignReference(t *testing.T) {
	f := newFixture(t, nil)
	ref := f.topUp(t, "user-1", 1000)
	f.gw.set(ref, "success")

	_, err := f.rec.VerifySettlement(context.Background(), "user-2", ref)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	assert.Zero(t, f.balance(t, "user-1"))
}

func TestVerifyGatewayErrorLeavesPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 1000)
	f.gw.mu.Lock()
	delete(f.gw.statuses, ref)
	f.gw.mu.Unlock()

	_, err := f.rec.VerifySettlement(ctx, "user-1", ref)
	var gerr *paystack.GatewayError
	require.True(t, errors.As(err, &gerr))

	tx, err := f.store.TransactionByPaymentRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
}

func TestDuplicateWebhookDroppedByDedupe(t *testing.T) {
	mr, dedupe := redisDedupe(t)
	f := newFixture(t, dedupe)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 3000)

	body, sig := webhookBody(t, ref, 3000)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.rec.HandleWebhook(ctx, body, sig))
	}
	assert.EqualValues(t, 3000, f.balance(t, "user-1"))
	assert.Len(t, f.notify.completed, 1)
	assert.True(t, mr.Exists("webhook:paystack:"+ref))
}

func redisDedupe(t *testing.T) (*miniredis.Miniredis, *idempotency.RedisDeduper) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, idempotency.NewRedisDeduper(client, "webhook:paystack", time.Hour, zaptest.NewLogger(t))
}

func signedEvent(t *testing.T, payload map[string]any) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body, paystack.Sign(testSecret, body)
}

// Paystack may omit data.status and data.amount on charge.success
func TestWebhookWithoutStatusOrAmountCredits(t *testing.T) {
	mr, dedupe := redisDedupe(t)
	f := newFixture(t, dedupe)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 5000)

	body, sig := signedEvent(t, map[string]any{
		"event": paystack.EventChargeSuccess,
		"data": map[string]any{
			"reference":        ref,
			"paid_at":          "2024-05-01T10:00:00.000Z",
			"gateway_response": "Successful",
			"channel":          "card",
			"ip_address":       "41.66.0.1",
		},
	})
	require.NoError(t, f.rec.HandleWebhook(ctx, body, sig))
	// the gateway retries; the claim keeps it from crediting twice
	require.NoError(t, f.rec.HandleWebhook(ctx, body, sig))

	assert.EqualValues(t, 5000, f.balance(t, "user-1"))
	assert.Len(t, f.notify.completed, 1)
	assert.True(t, mr.Exists("webhook:paystack:"+ref))

	tx, err := f.store.TransactionByPaymentRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	assert.Equal(t, SourceWebhook, tx.Metadata["settled_via"])
	assert.Equal(t, "card", tx.Metadata["channel"])
}

func TestUnsettledWebhookReleasesDedupeClaim(t *testing.T) {
	mr, dedupe := redisDedupe(t)
	f := newFixture(t, dedupe)
	ctx := context.Background()
	ref := f.topUp(t, "user-1", 2000)

	body, sig := signedEvent(t, map[string]any{
		"event": paystack.EventChargeSuccess,
		"data":  map[string]any{"reference": ref, "status": "ongoing"},
	})
	require.NoError(t, f.rec.HandleWebhook(ctx, body, sig))
	assert.Zero(t, f.balance(t, "user-1"))
	assert.False(t, mr.Exists("webhook:paystack:"+ref))

	body, sig = webhookBody(t, ref, 2000)
	require.NoError(t, f.rec.HandleWebhook(ctx, body, sig))
	assert.EqualValues(t, 2000, f.balance(t, "user-1"))
}

func TestReconcilePending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	paid := f.topUp(t, "user-1", 1500)
	declined := f.topUp(t, "user-1", 700)
	waiting := f.topUp(t, "user-1", 900)
	f.gw.set(paid, "success")
	f.gw.set(declined, "failed")
	f.gw.set(waiting, "abandoned")

	sum, err := f.rec.ReconcilePending(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, &ReconcileSummary{Checked: 3, Credited: 1, Failed: 1, Pending: 1}, sum)
	assert.EqualValues(t, 1500, f.balance(t, "user-1"))

	tx, err := f.store.TransactionByPaymentRef(ctx, paid)
	require.NoError(t, err)
	assert.Equal(t, SourceReconcile, tx.Metadata["settled_via"])

	// a second sweep only revisits the one still waiting
	sum, err = f.rec.ReconcilePending(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Checked)
	assert.EqualValues(t, 1500, f.balance(t, "user-1"))
}
