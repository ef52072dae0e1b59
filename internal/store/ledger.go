// Package store holds the demo SQLite ledger used when no banking backend
// is configured.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	bankmodel "github.com/zhouzirui/voicebank/backend/internal/model/banking"
	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

const (
	demoBalanceCents = 1_000_000
	statusCompleted  = "completed"
)

// Customer is a seeded demo user. Token is what a client presents to the
// session endpoint.
type Customer struct {
	Name  string
	Phone string
	Token string
}

// DemoCustomers are created on first start.
var DemoCustomers = []Customer{
	{Name: "Demo User", Phone: "5550000", Token: "demo-token"},
	{Name: "Alex Morgan", Phone: "5551234", Token: "alex-token"},
	{Name: "Sam Lee", Phone: "5559876", Token: "sam-token"},
}

var (
	errInvalidToken      = &dialogue.DomainError{Reason: "Invalid token"}
	errAccountNotFound   = &dialogue.DomainError{Reason: "Account not found"}
	errInsufficient      = &dialogue.DomainError{Reason: "Insufficient balance"}
	errRecipientNotFound = &dialogue.DomainError{Reason: "Recipient not found"}
	errInvalidAmount     = &dialogue.DomainError{Reason: "Amount must be greater than zero"}
)

// Ledger is a banking backend on SQLite. Amounts are stored in cents.
type Ledger struct {
	db      *sql.DB
	writeMu sync.Mutex
	logger  *zap.Logger
}

// OpenLedger opens (creating when needed) the ledger at dbPath and seeds
// the demo customers.
func OpenLedger(ctx context.Context, dbPath string, logger *zap.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := &Ledger{db: db, logger: telemetry.OrNop(logger).Named("ledger")}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := l.seed(ctx, DemoCustomers); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed demo customers: %w", err)
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema(ctx context.Context) error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS customers (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		token TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES customers(user_id),
		account_number TEXT NOT NULL UNIQUE,
		balance_cents INTEGER NOT NULL,
		account_type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(account_id),
		type TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		recipient TEXT,
		description TEXT,
		created_at INTEGER NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, created_at);
	`
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (l *Ledger) seed(ctx context.Context, customers []Customer) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for _, c := range customers {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM customers WHERE phone = ?`, c.Phone).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check customer %s: %w", c.Phone, err)
		}
		if exists > 0 {
			continue
		}

		userID := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customers (user_id, name, phone, token, created_at) VALUES (?, ?, ?, ?, ?)`,
			userID, c.Name, c.Phone, c.Token, now,
		); err != nil {
			return fmt.Errorf("insert customer %s: %w", c.Phone, err)
		}
		accountNumber := "ACC" + strings.ToUpper(uuid.NewString()[:8])
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (account_id, user_id, account_number, balance_cents, account_type) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), userID, accountNumber, demoBalanceCents, "savings",
		); err != nil {
			return fmt.Errorf("insert account for %s: %w", c.Phone, err)
		}
		l.logger.Info("seeded demo customer", zap.String("name", c.Name), zap.String("phone", c.Phone))
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type accountRow struct {
	bankmodel.Account
	UserID       string
	Name         string
	BalanceCents int64
}

func lookupAccount(ctx context.Context, q queryer, where string, arg string) (*accountRow, error) {
	query := `
		SELECT a.account_id, a.account_number, a.balance_cents, a.account_type, c.user_id, c.name
		FROM customers c JOIN accounts a ON a.user_id = c.user_id
		WHERE ` + where + ` LIMIT 1`

	var row accountRow
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&row.AccountID, &row.AccountNumber, &row.BalanceCents, &row.AccountType, &row.UserID, &row.Name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}
	row.Balance = fromCents(row.BalanceCents)
	return &row, nil
}

func (l *Ledger) accountForToken(ctx context.Context, q queryer, token string) (*accountRow, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errInvalidToken
	}
	var known int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM customers WHERE token = ?`, token).Scan(&known); err != nil {
		return nil, fmt.Errorf("look up token: %w", err)
	}
	if known == 0 {
		return nil, errInvalidToken
	}
	row, err := lookupAccount(ctx, q, "c.token = ?", token)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errAccountNotFound
	}
	return row, nil
}

// GetAccount returns the account owned by token.
func (l *Ledger) GetAccount(ctx context.Context, token string) (*bankmodel.Account, error) {
	row, err := l.accountForToken(ctx, l.db, token)
	if err != nil {
		return nil, l.wrap("get_account", err)
	}
	acct := row.Account
	return &acct, nil
}

// ListTransactions returns up to limit entries, most recent first.
func (l *Ledger) ListTransactions(ctx context.Context, token string, limit int) ([]bankmodel.Transaction, error) {
	row, err := l.accountForToken(ctx, l.db, token)
	if err != nil {
		return nil, l.wrap("list_transactions", err)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT transaction_id, account_id, type, amount_cents, recipient, description, created_at, status
		FROM transactions WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, row.AccountID, limit)
	if err != nil {
		return nil, l.wrap("list_transactions", fmt.Errorf("query transactions: %w", err))
	}
	defer rows.Close()

	txs := []bankmodel.Transaction{}
	for rows.Next() {
		var (
			t           bankmodel.Transaction
			kind        string
			cents       int64
			recipient   sql.NullString
			description sql.NullString
			createdAt   int64
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &kind, &cents, &recipient, &description, &createdAt, &t.Status); err != nil {
			return nil, l.wrap("list_transactions", fmt.Errorf("scan transaction: %w", err))
		}
		t.Type = bankmodel.TransactionType(kind)
		t.Amount = fromCents(cents)
		t.Recipient = recipient.String
		t.Description = description.String
		t.Timestamp = time.Unix(0, createdAt).UTC()
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, l.wrap("list_transactions", fmt.Errorf("iterate transactions: %w", err))
	}
	return txs, nil
}

// Transfer moves req.Amount to the customer registered with
// req.RecipientPhone, recording a debit and a matching credit.
func (l *Ledger) Transfer(ctx context.Context, token string, req bankmodel.TransferRequest) (*bankmodel.OperationResult, error) {
	cents, err := toCents(req.Amount)
	if err != nil {
		return nil, l.wrap("transfer", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, l.wrap("transfer", fmt.Errorf("begin transfer: %w", err))
	}
	defer tx.Rollback()

	sender, err := l.accountForToken(ctx, tx, token)
	if err != nil {
		return nil, l.wrap("transfer", err)
	}
	if sender.BalanceCents < cents {
		return nil, errInsufficient
	}
	recipient, err := lookupAccount(ctx, tx, "c.phone = ?", strings.TrimSpace(req.RecipientPhone))
	if err != nil {
		return nil, l.wrap("transfer", err)
	}
	if recipient == nil {
		return nil, errRecipientNotFound
	}

	description := strings.TrimSpace(req.Description)
	debitDesc := description
	if debitDesc == "" {
		debitDesc = "Transfer to " + recipient.Name
	}
	creditDesc := description
	if creditDesc == "" {
		creditDesc = "Received from " + sender.Name
	}

	now := time.Now()
	if err := adjustBalance(ctx, tx, sender.AccountID, -cents); err != nil {
		return nil, l.wrap("transfer", err)
	}
	if err := adjustBalance(ctx, tx, recipient.AccountID, cents); err != nil {
		return nil, l.wrap("transfer", err)
	}
	debit, err := insertTransaction(ctx, tx, sender.AccountID, bankmodel.Debit, cents, recipient.Name, debitDesc, now)
	if err != nil {
		return nil, l.wrap("transfer", err)
	}
	if _, err := insertTransaction(ctx, tx, recipient.AccountID, bankmodel.Credit, cents, sender.Name, creditDesc, now); err != nil {
		return nil, l.wrap("transfer", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, l.wrap("transfer", fmt.Errorf("commit transfer: %w", err))
	}

	l.logger.Info("transfer completed",
		zap.String("from", sender.AccountNumber),
		zap.String("to", recipient.AccountNumber),
		zap.Float64("amount", debit.Amount),
	)
	return &bankmodel.OperationResult{Success: true, Message: "Transfer completed", Transaction: debit}, nil
}

// PayBill debits req.Amount against req.BillType.
func (l *Ledger) PayBill(ctx context.Context, token string, req bankmodel.BillPaymentRequest) (*bankmodel.OperationResult, error) {
	cents, err := toCents(req.Amount)
	if err != nil {
		return nil, l.wrap("pay_bill", err)
	}
	billType := strings.TrimSpace(req.BillType)
	if billType == "" {
		return nil, &dialogue.DomainError{Reason: "Bill type is required"}
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, l.wrap("pay_bill", fmt.Errorf("begin bill payment: %w", err))
	}
	defer tx.Rollback()

	account, err := l.accountForToken(ctx, tx, token)
	if err != nil {
		return nil, l.wrap("pay_bill", err)
	}
	if account.BalanceCents < cents {
		return nil, errInsufficient
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = billType + " bill payment"
	}

	if err := adjustBalance(ctx, tx, account.AccountID, -cents); err != nil {
		return nil, l.wrap("pay_bill", err)
	}
	debit, err := insertTransaction(ctx, tx, account.AccountID, bankmodel.Debit, cents, billType, description, time.Now())
	if err != nil {
		return nil, l.wrap("pay_bill", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, l.wrap("pay_bill", fmt.Errorf("commit bill payment: %w", err))
	}
	return &bankmodel.OperationResult{Success: true, Message: "Bill paid", Transaction: debit}, nil
}

func adjustBalance(ctx context.Context, tx *sql.Tx, accountID string, deltaCents int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE account_id = ?`,
		deltaCents, accountID,
	); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func insertTransaction(
	ctx context.Context,
	tx *sql.Tx,
	accountID string,
	kind bankmodel.TransactionType,
	cents int64,
	recipient, description string,
	at time.Time,
) (bankmodel.Transaction, error) {
	t := bankmodel.Transaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Type:        kind,
		Amount:      fromCents(cents),
		Recipient:   recipient,
		Description: description,
		Timestamp:   at.UTC(),
		Status:      statusCompleted,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, account_id, type, amount_cents, recipient, description, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, accountID, string(kind), cents, recipient, description, at.UnixNano(), t.Status,
	); err != nil {
		return bankmodel.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// wrap passes domain errors through and marks everything else as a
// service failure.
func (l *Ledger) wrap(op string, err error) error {
	var domainErr *dialogue.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	l.logger.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
	return dialogue.NewServiceError("ledger", op, err)
}

func toCents(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, errInvalidAmount
	}
	cents := int64(math.Round(amount * 100))
	if cents <= 0 {
		return 0, errInvalidAmount
	}
	return cents, nil
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
