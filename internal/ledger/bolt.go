package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
)

var (
	bucketWallets      = []byte("wallets")
	bucketWalletByUser = []byte("wallets_by_user")
	bucketTxs          = []byte("transactions")
	bucketTxByRef      = []byte("transactions_by_ref")
	bucketTxByPayRef   = []byte("transactions_by_payment_ref")
	bucketOrders       = []byte("orders")
	bucketOrderByTxn   = []byte("orders_by_transaction")
)

// BoltStore implements Store on an embedded BoltDB file.
// Bolt runs one read-write transaction at a time, so every Update below is
// serializable and read-modify-write inside it cannot lose updates.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path and ensures all buckets exist
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketWallets, bucketWalletByUser, bucketTxs,
			bucketTxByRef, bucketTxByPayRef, bucketOrders, bucketOrderByTxn} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Ping(context.Context) error { return nil }

func (s *BoltStore) Close() error { return s.db.Close() }

func getJSON(b *bolt.Bucket, key string, v any) (bool, error) {
	raw := b.Get([]byte(key))
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), raw)
}

func loadWallet(tx *bolt.Tx, id string) (*Wallet, error) {
	var w Wallet
	ok, err := getJSON(tx.Bucket(bucketWallets), id, &w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWalletNotFound
	}
	return &w, nil
}

func loadWalletByUser(tx *bolt.Tx, userID string) (*Wallet, error) {
	id := tx.Bucket(bucketWalletByUser).Get([]byte(userID))
	if id == nil {
		return nil, ErrWalletNotFound
	}
	return loadWallet(tx, string(id))
}

func (s *BoltStore) GetOrCreateWallet(_ context.Context, userID, currency string) (*Wallet, error) {
	var out *Wallet
	err := s.db.Update(func(tx *bolt.Tx) error {
		w, err := loadWalletByUser(tx, userID)
		if err == nil {
			out = w
			return nil
		}
		if err != ErrWalletNotFound {
			return err
		}
		now := time.Now().UTC()
		w = &Wallet{ID: uuid.NewString(), UserID: userID, Currency: currency, CreatedAt: now, UpdatedAt: now}
		if err := putJSON(tx.Bucket(bucketWallets), w.ID, w); err != nil {
			return err
		}
		out = w
		return tx.Bucket(bucketWalletByUser).Put([]byte(userID), []byte(w.ID))
	})
	return out, err
}

func (s *BoltStore) WalletByUser(_ context.Context, userID string) (*Wallet, error) {
	var out *Wallet
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = loadWalletByUser(tx, userID)
		return err
	})
	return out, err
}

func (s *BoltStore) ListWallets(context.Context) ([]Wallet, error) {
	var out []Wallet
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWallets).ForEach(func(_, v []byte) error {
			var w Wallet
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			out = append(out, w)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func saveWallet(tx *bolt.Tx, w *Wallet) error {
	w.UpdatedAt = time.Now().UTC()
	return putJSON(tx.Bucket(bucketWallets), w.ID, w)
}

func loadTx(tx *bolt.Tx, id string) (*Transaction, error) {
	var t Transaction
	ok, err := getJSON(tx.Bucket(bucketTxs), id, &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &t, nil
}

func insertTx(tx *bolt.Tx, t *Transaction) error {
	byRef := tx.Bucket(bucketTxByRef)
	byPayRef := tx.Bucket(bucketTxByPayRef)
	if byRef.Get([]byte(t.Reference)) != nil {
		return ErrDuplicateReference
	}
	if t.PaymentReference != "" && byPayRef.Get([]byte(t.PaymentReference)) != nil {
		return ErrDuplicateReference
	}
	if _, err := loadWallet(tx, t.WalletID); err != nil {
		return err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if err := putJSON(tx.Bucket(bucketTxs), t.ID, t); err != nil {
		return err
	}
	if err := byRef.Put([]byte(t.Reference), []byte(t.ID)); err != nil {
		return err
	}
	if t.PaymentReference != "" {
		return byPayRef.Put([]byte(t.PaymentReference), []byte(t.ID))
	}
	return nil
}

func (s *BoltStore) CreateTransaction(_ context.Context, t *Transaction) error {
	return s.db.Update(func(tx *bolt.Tx) error { return insertTx(tx, t) })
}

func (s *BoltStore) TransactionByPaymentRef(_ context.Context, ref string) (*Transaction, error) {
	var out *Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketTxByPayRef).Get([]byte(ref))
		if id == nil {
			return ErrTransactionNotFound
		}
		var err error
		out, err = loadTx(tx, string(id))
		return err
	})
	return out, err
}

func (s *BoltStore) filterTxs(keep func(*Transaction) bool, limit int, newestFirst bool) ([]Transaction, error) {
	var out []Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTxs).ForEach(func(_, v []byte) error {
			var t Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if keep(&t) {
				out = append(out, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BoltStore) ListTransactions(_ context.Context, walletID string, limit int) ([]Transaction, error) {
	return s.filterTxs(func(t *Transaction) bool { return t.WalletID == walletID }, limit, true)
}

func (s *BoltStore) ListAllTransactions(_ context.Context, limit int) ([]Transaction, error) {
	return s.filterTxs(func(*Transaction) bool { return true }, limit, true)
}

func (s *BoltStore) ListPendingTopUps(_ context.Context, createdBefore time.Time, limit int) ([]Transaction, error) {
	return s.filterTxs(func(t *Transaction) bool {
		return t.Kind == KindTopUp && t.Status == StatusPending &&
			t.PaymentReference != "" && t.CreatedAt.Before(createdBefore)
	}, limit, false)
}

func (s *BoltStore) CompletePending(_ context.Context, txID string, metadata map[string]any) (bool, int64, error) {
	var (
		won     bool
		balance int64
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		t, err := loadTx(tx, txID)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			return nil
		}
		w, err := loadWallet(tx, t.WalletID)
		if err != nil {
			return err
		}

		t.Status = StatusCompleted
		t.Metadata = MergeMetadata(t.Metadata, metadata)
		t.UpdatedAt = time.Now().UTC()
		if err := putJSON(tx.Bucket(bucketTxs), t.ID, t); err != nil {
			return err
		}
		w.Balance += t.Amount
		if err := saveWallet(tx, w); err != nil {
			return err
		}
		won, balance = true, w.Balance
		return nil
	})
	return won, balance, err
}

func (s *BoltStore) FailPending(_ context.Context, txID string, metadata map[string]any) (bool, error) {
	var won bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		t, err := loadTx(tx, txID)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			return nil
		}
		t.Status = StatusFailed
		t.Metadata = MergeMetadata(t.Metadata, metadata)
		t.UpdatedAt = time.Now().UTC()
		won = true
		return putJSON(tx.Bucket(bucketTxs), t.ID, t)
	})
	return won, err
}

func (s *BoltStore) MergeMetadata(_ context.Context, txID string, metadata map[string]any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t, err := loadTx(tx, txID)
		if err != nil {
			return err
		}
		t.Metadata = MergeMetadata(t.Metadata, metadata)
		t.UpdatedAt = time.Now().UTC()
		return putJSON(tx.Bucket(bucketTxs), t.ID, t)
	})
}

func boltDebit(tx *bolt.Tx, walletID string, amount int64) (int64, error) {
	w, err := loadWallet(tx, walletID)
	if err != nil {
		return 0, err
	}
	if w.Balance < amount {
		return 0, &InsufficientFundsError{Balance: w.Balance, Requested: amount}
	}
	w.Balance -= amount
	if err := saveWallet(tx, w); err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func boltCredit(tx *bolt.Tx, walletID string, amount int64) (int64, error) {
	w, err := loadWallet(tx, walletID)
	if err != nil {
		return 0, err
	}
	w.Balance += amount
	if err := saveWallet(tx, w); err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *BoltStore) ApplyAdjustment(_ context.Context, walletID string, delta int64, t *Transaction) (int64, error) {
	var balance int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		if delta < 0 {
			balance, err = boltDebit(tx, walletID, -delta)
		} else {
			balance, err = boltCredit(tx, walletID, delta)
		}
		if err != nil {
			return err
		}
		t.WalletID = walletID
		return insertTx(tx, t)
	})
	return balance, err
}

func (s *BoltStore) PlaceOrder(_ context.Context, walletID string, o *Order, t *Transaction) (int64, error) {
	var balance int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		balance, err = boltDebit(tx, walletID, o.Amount)
		if err != nil {
			return err
		}
		t.WalletID = walletID
		if err := insertTx(tx, t); err != nil {
			return err
		}

		byTxn := tx.Bucket(bucketOrderByTxn)
		if byTxn.Get([]byte(o.TransactionID)) != nil {
			return ErrDuplicateReference
		}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		o.CreatedAt, o.UpdatedAt = now, now
		o.BalanceAfter = balance
		if err := putJSON(tx.Bucket(bucketOrders), o.ID, o); err != nil {
			return err
		}
		return byTxn.Put([]byte(o.TransactionID), []byte(o.ID))
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func loadOrder(tx *bolt.Tx, id string) (*Order, error) {
	var o Order
	ok, err := getJSON(tx.Bucket(bucketOrders), id, &o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (s *BoltStore) OrderByID(_ context.Context, id string) (*Order, error) {
	var out *Order
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = loadOrder(tx, id)
		return err
	})
	return out, err
}

func (s *BoltStore) OrdersByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrders).ForEach(func(_, v []byte) error {
			var o Order
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			if o.UserID == userID {
				out = append(out, o)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func hasStatus(s OrderStatus, in []OrderStatus) bool {
	for _, x := range in {
		if s == x {
			return true
		}
	}
	return false
}

func (s *BoltStore) TransitionOrder(_ context.Context, id string, from []OrderStatus, to OrderStatus) (bool, error) {
	var won bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		o, err := loadOrder(tx, id)
		if err != nil {
			return err
		}
		if !hasStatus(o.Status, from) {
			return nil
		}
		o.Status = to
		o.UpdatedAt = time.Now().UTC()
		won = true
		return putJSON(tx.Bucket(bucketOrders), o.ID, o)
	})
	return won, err
}

func (s *BoltStore) RefundOrder(_ context.Context, orderID string, t *Transaction) (int64, error) {
	var balance int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !hasStatus(o.Status, []OrderStatus{OrderPending, OrderProcessing}) {
			return ErrOrderNotRefundable
		}
		o.Status = OrderFailed
		o.UpdatedAt = time.Now().UTC()
		if err := putJSON(tx.Bucket(bucketOrders), o.ID, o); err != nil {
			return err
		}
		balance, err = boltCredit(tx, t.WalletID, t.Amount)
		if err != nil {
			return err
		}
		return insertTx(tx, t)
	})
	return balance, err
}

var _ Store = (*BoltStore)(nil)
