package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	bankmodel "github.com/zhouzirui/voicebank/backend/internal/model/banking"
	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/service/banking"
)

var _ banking.Client = (*Ledger)(nil)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func requireDomainError(t *testing.T, err error, reason string) {
	t.Helper()
	var domainErr *dialogue.DomainError
	if !errors.As(err, &domainErr) || domainErr.Reason != reason {
		t.Fatalf("expected domain error %q, got %v", reason, err)
	}
}

func TestSeededAccounts(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for _, c := range DemoCustomers {
		acct, err := l.GetAccount(ctx, c.Token)
		if err != nil {
			t.Fatalf("GetAccount(%s): %v", c.Token, err)
		}
		if acct.Balance != 10000 || acct.AccountType != "savings" {
			t.Fatalf("unexpected seeded account %+v", acct)
		}
	}

	_, err := l.GetAccount(ctx, "nope")
	requireDomainError(t, err, "Invalid token")
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l, err := OpenLedger(ctx, path, nil)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	if _, err := l.PayBill(ctx, "demo-token", bankmodel.BillPaymentRequest{BillType: "water", Amount: 100}); err != nil {
		t.Fatalf("PayBill: %v", err)
	}
	_ = l.Close()

	l, err = OpenLedger(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	acct, err := l.GetAccount(ctx, "demo-token")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.Balance != 9900 {
		t.Fatalf("balance after reopen = %.2f", acct.Balance)
	}
}

func TestTransferWritesDebitAndCredit(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	res, err := l.Transfer(ctx, "demo-token", bankmodel.TransferRequest{RecipientPhone: "5551234", Amount: 20})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !res.Success || res.Transaction.Type != bankmodel.Debit || res.Transaction.Amount != 20 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Transaction.Description != "Transfer to Alex Morgan" || res.Transaction.Recipient != "Alex Morgan" {
		t.Fatalf("unexpected defaults %+v", res.Transaction)
	}

	sender, _ := l.GetAccount(ctx, "demo-token")
	recipient, _ := l.GetAccount(ctx, "alex-token")
	if sender.Balance != 9980 || recipient.Balance != 10020 {
		t.Fatalf("balances = %.2f / %.2f", sender.Balance, recipient.Balance)
	}

	credits, err := l.ListTransactions(ctx, "alex-token", 5)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(credits) != 1 || credits[0].Type != bankmodel.Credit || credits[0].Recipient != "Demo User" {
		t.Fatalf("unexpected recipient history %+v", credits)
	}
}

func TestTransferRejections(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Transfer(ctx, "demo-token", bankmodel.TransferRequest{RecipientPhone: "5551234", Amount: 10000.01})
	requireDomainError(t, err, "Insufficient balance")

	_, err = l.Transfer(ctx, "demo-token", bankmodel.TransferRequest{RecipientPhone: "0000000", Amount: 1})
	requireDomainError(t, err, "Recipient not found")

	_, err = l.Transfer(ctx, "demo-token", bankmodel.TransferRequest{RecipientPhone: "5551234", Amount: -5})
	requireDomainError(t, err, "Amount must be greater than zero")

	acct, _ := l.GetAccount(ctx, "demo-token")
	if acct.Balance != 10000 {
		t.Fatalf("rejected transfers changed the balance: %.2f", acct.Balance)
	}
	txs, _ := l.ListTransactions(ctx, "demo-token", 5)
	if len(txs) != 0 {
		t.Fatalf("rejected transfers left %d records", len(txs))
	}
}

func TestPayBill(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	res, err := l.PayBill(ctx, "sam-token", bankmodel.BillPaymentRequest{BillType: "electricity", Amount: 45.25})
	if err != nil {
		t.Fatalf("PayBill: %v", err)
	}
	if res.Transaction.Description != "electricity bill payment" || res.Transaction.Recipient != "electricity" {
		t.Fatalf("unexpected transaction %+v", res.Transaction)
	}
	acct, _ := l.GetAccount(ctx, "sam-token")
	if acct.Balance != 9954.75 {
		t.Fatalf("balance = %.2f", acct.Balance)
	}

	_, err = l.PayBill(ctx, "sam-token", bankmodel.BillPaymentRequest{BillType: "water", Amount: 20000})
	requireDomainError(t, err, "Insufficient balance")
}

func TestListTransactionsOrderAndLimit(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for _, bill := range []string{"water", "gas", "internet", "phone"} {
		if _, err := l.PayBill(ctx, "demo-token", bankmodel.BillPaymentRequest{BillType: bill, Amount: 1}); err != nil {
			t.Fatalf("PayBill(%s): %v", bill, err)
		}
	}

	txs, err := l.ListTransactions(ctx, "demo-token", 3)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if txs[0].Recipient != "phone" || txs[2].Recipient != "gas" {
		t.Fatalf("unexpected order %s, %s, %s", txs[0].Recipient, txs[1].Recipient, txs[2].Recipient)
	}
}
