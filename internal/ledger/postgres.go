package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const walletColumns = `id, user_id, balance, currency, created_at, updated_at`

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, userID, currency string) (*Wallet, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance, currency, created_at, updated_at)
		 VALUES ($1, $2, 0, $3, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID, currency,
	)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	return s.WalletByUser(ctx, userID)
}

func (s *PostgresStore) WalletByUser(ctx context.Context, userID string) (*Wallet, error) {
	return scanWallet(s.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

func (s *PostgresStore) ListWallets(ctx context.Context) ([]Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

const txColumns = `id, wallet_id, kind, amount, reference, payment_reference, status, description, metadata, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t      Transaction
		payRef *string
	)
	err := row.Scan(&t.ID, &t.WalletID, &t.Kind, &t.Amount, &t.Reference, &payRef,
		&t.Status, &t.Description, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if payRef != nil {
		t.PaymentReference = *payRef
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func insertTransaction(ctx context.Context, q querier, t *Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (`+txColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.WalletID, t.Kind, t.Amount, t.Reference, nullable(t.PaymentReference),
		t.Status, t.Description, t.Metadata, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, t *Transaction) error {
	return insertTransaction(ctx, s.pool, t)
}

func (s *PostgresStore) TransactionByPaymentRef(ctx context.Context, ref string) (*Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE payment_reference = $1`, ref))
}

func (s *PostgresStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE wallet_id = $1
		 ORDER BY created_at DESC LIMIT NULLIF($2, 0)`, walletID, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) ListAllTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions ORDER BY created_at DESC LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) ListPendingTopUps(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions
		 WHERE kind = 'topup' AND status = 'pending' AND payment_reference IS NOT NULL AND created_at < $1
		 ORDER BY created_at ASC LIMIT NULLIF($2, 0)`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) CompletePending(ctx context.Context, txID string, metadata map[string]any) (bool, int64, error) {
	var (
		won     bool
		balance int64
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var walletID string
		var amount int64
		// the status guard is the compare-and-swap: only one caller sees a row
		err := tx.QueryRow(ctx,
			`UPDATE transactions
			 SET status = 'completed', metadata = metadata || $2, updated_at = NOW()
			 WHERE id = $1 AND status = 'pending'
			 RETURNING wallet_id, amount`,
			txID, ensureMap(metadata),
		).Scan(&walletID, &amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("complete transaction: %w", err)
		}

		if err := tx.QueryRow(ctx,
			`UPDATE wallets SET balance = balance + $1, updated_at = NOW()
			 WHERE id = $2 RETURNING balance`,
			amount, walletID,
		).Scan(&balance); err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}
		won = true
		return nil
	})
	return won, balance, err
}

func (s *PostgresStore) FailPending(ctx context.Context, txID string, metadata map[string]any) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions
		 SET status = 'failed', metadata = metadata || $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		txID, ensureMap(metadata),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MergeMetadata(ctx context.Context, txID string, metadata map[string]any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET metadata = metadata || $2, updated_at = NOW() WHERE id = $1`,
		txID, ensureMap(metadata),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func ensureMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// debit is the conditional decrement behind every balance reduction
func debit(ctx context.Context, q querier, walletID string, amount int64) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = NOW()
		 WHERE id = $2 AND balance >= $1
		 RETURNING balance`,
		amount, walletID,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit wallet: %w", err)
	}

	// either the wallet is missing or the guard refused the debit
	var current int64
	if err := q.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, walletID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}
	return 0, &InsufficientFundsError{Balance: current, Requested: amount}
}

func (s *PostgresStore) ApplyAdjustment(ctx context.Context, walletID string, delta int64, t *Transaction) (int64, error) {
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		if delta < 0 {
			balance, err = debit(ctx, tx, walletID, -delta)
		} else {
			err = tx.QueryRow(ctx,
				`UPDATE wallets SET balance = balance + $1, updated_at = NOW()
				 WHERE id = $2 RETURNING balance`,
				delta, walletID,
			).Scan(&balance)
			if errors.Is(err, pgx.ErrNoRows) {
				err = ErrWalletNotFound
			}
		}
		if err != nil {
			return err
		}
		t.WalletID = walletID
		return insertTransaction(ctx, tx, t)
	})
	return balance, err
}

const orderColumns = `id, user_id, carrier, package_id, package_name, amount, phone_number, status, transaction_id, balance_after, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Carrier, &o.PackageID, &o.PackageName, &o.Amount,
		&o.PhoneNumber, &o.Status, &o.TransactionID, &o.BalanceAfter, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) PlaceOrder(ctx context.Context, walletID string, o *Order, t *Transaction) (int64, error) {
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = debit(ctx, tx, walletID, o.Amount)
		if err != nil {
			return err
		}

		t.WalletID = walletID
		if err := insertTransaction(ctx, tx, t); err != nil {
			return fmt.Errorf("record purchase: %w", err)
		}

		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		o.CreatedAt, o.UpdatedAt = now, now
		o.BalanceAfter = balance
		_, err = tx.Exec(ctx,
			`INSERT INTO orders (`+orderColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			o.ID, o.UserID, o.Carrier, o.PackageID, o.PackageName, o.Amount, o.PhoneNumber,
			o.Status, o.TransactionID, o.BalanceAfter, o.CreatedAt, o.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PostgresStore) OrderByID(ctx context.Context, id string) (*Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (s *PostgresStore) OrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func statusStrings(in []OrderStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func (s *PostgresStore) TransitionOrder(ctx context.Context, id string, from []OrderStatus, to OrderStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`,
		to, id, statusStrings(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RefundOrder(ctx context.Context, orderID string, t *Transaction) (int64, error) {
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE orders SET status = 'failed', updated_at = NOW()
			 WHERE id = $1 AND status IN ('pending', 'processing')`,
			orderID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotRefundable
		}

		err = tx.QueryRow(ctx,
			`UPDATE wallets SET balance = balance + $1, updated_at = NOW()
			 WHERE id = $2 RETURNING balance`,
			t.Amount, t.WalletID,
		).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		if err != nil {
			return err
		}
		return insertTransaction(ctx, tx, t)
	})
	return balance, err
}

var _ Store = (*PostgresStore)(nil)
