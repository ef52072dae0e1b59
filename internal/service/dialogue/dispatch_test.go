package dialogue

import (
	"testing"
	"time"

	bankmodel "github.com/zhouzirui/voicebank/backend/internal/model/banking"
	dialoguemodel "github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

func TestDispatchResponses(t *testing.T) {
	withBalance := dialoguemodel.Session{Account: &bankmodel.Account{Balance: 125.5}}

	cases := []struct {
		name    string
		intent  dialoguemodel.Intent
		session dialoguemodel.Session
		want    string
		kind    dialoguemodel.PendingKind
	}{
		{"balance", dialoguemodel.CheckBalance, withBalance, "Your current balance is 125.50 dollars", dialoguemodel.PendingNone},
		{"balance without snapshot", dialoguemodel.CheckBalance, dialoguemodel.Session{}, "Your current balance is 0.00 dollars", dialoguemodel.PendingNone},
		{"transfer", dialoguemodel.TransferMoney, dialoguemodel.Session{}, TextTransferPrompt, dialoguemodel.PendingTransfer},
		{"bill", dialoguemodel.PayBill, dialoguemodel.Session{}, TextBillPrompt, dialoguemodel.PendingBillPay},
		{"help", dialoguemodel.Help, dialoguemodel.Session{}, TextHelp, dialoguemodel.PendingNone},
		{"unknown", dialoguemodel.Unknown, dialoguemodel.Session{}, TextUnknown, dialoguemodel.PendingNone},
		{"empty statement", dialoguemodel.MiniStatement, dialoguemodel.Session{}, "You have 0 recent transactions.", dialoguemodel.PendingNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Dispatch(tc.intent, tc.session, 0)
			if got.Response != tc.want {
				t.Fatalf("response = %q, want %q", got.Response, tc.want)
			}
			if got.Pending.Kind != tc.kind {
				t.Fatalf("pending kind = %q, want %q", got.Pending.Kind, tc.kind)
			}
			if got.Replace != (tc.kind != dialoguemodel.PendingNone) {
				t.Fatalf("replace = %v", got.Replace)
			}
		})
	}
}

func TestDispatchPendingSlots(t *testing.T) {
	got := Dispatch(dialoguemodel.TransferMoney, dialoguemodel.Session{}, 0)
	if len(got.Pending.Required) != 2 || got.Pending.Required[0] != "phone" || got.Pending.Required[1] != "amount" {
		t.Fatalf("transfer requires %v", got.Pending.Required)
	}
	got = Dispatch(dialoguemodel.PayBill, dialoguemodel.Session{}, 0)
	if len(got.Pending.Required) != 2 || got.Pending.Required[0] != "billType" || got.Pending.Required[1] != "amount" {
		t.Fatalf("bill pay requires %v", got.Pending.Required)
	}
}

func TestMiniStatementOrderingAndLimit(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	txs := []bankmodel.Transaction{
		{ID: "old", Type: bankmodel.Debit, Amount: 1, Timestamp: base.Add(-4 * time.Hour)},
		{ID: "newest", Type: bankmodel.Credit, Amount: 50, Timestamp: base},
		{ID: "mid", Type: bankmodel.Debit, Amount: 12.5, Timestamp: base.Add(-2 * time.Hour)},
		{ID: "second", Type: bankmodel.Debit, Amount: 20, Timestamp: base.Add(-time.Hour)},
		{ID: "oldest", Type: bankmodel.Credit, Amount: 99, Timestamp: base.Add(-5 * time.Hour)},
	}

	got := Dispatch(dialoguemodel.MiniStatement, dialoguemodel.Session{Transactions: txs}, 0).Response
	want := "You have 3 recent transactions. Received 50.00 dollars. Paid 20.00 dollars. Paid 12.50 dollars"
	if got != want {
		t.Fatalf("statement = %q\nwant        %q", got, want)
	}

	got = Dispatch(dialoguemodel.MiniStatement, dialoguemodel.Session{Transactions: txs[:1]}, 0).Response
	if got != "You have 1 recent transactions. Paid 1.00 dollars" {
		t.Fatalf("single statement = %q", got)
	}
}

func TestDispatchDoesNotMutateSession(t *testing.T) {
	txs := []bankmodel.Transaction{
		{ID: "a", Timestamp: time.Unix(1, 0)},
		{ID: "b", Timestamp: time.Unix(2, 0)},
	}
	Dispatch(dialoguemodel.MiniStatement, dialoguemodel.Session{Transactions: txs}, 0)
	if txs[0].ID != "a" {
		t.Fatal("dispatch reordered the caller's transactions")
	}
}
