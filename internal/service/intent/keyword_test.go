package intent

import (
	"context"
	"testing"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

func TestMatchKeywords(t *testing.T) {
	cases := []struct {
		text   string
		intent dialogue.Intent
		label  string
	}{
		{"check my balance", dialogue.CheckBalance, "check_balance"},
		{"How much do I have?", dialogue.CheckBalance, "check_balance"},
		{"transfer money", dialogue.TransferMoney, "transfer_money"},
		{"pay electricity bill", dialogue.PayBill, "pay_bill"},
		{"show my transactions", dialogue.MiniStatement, "mini_statement"},
		{"help me", dialogue.Help, "help"},
		{"I want to change pin", dialogue.Unknown, "change_pin"},
		{"good morning", dialogue.Unknown, "unknown"},
		{"", dialogue.Unknown, "unknown"},
	}

	for _, tc := range cases {
		got := MatchKeywords(tc.text)
		if got.Intent != tc.intent || got.Label != tc.label {
			t.Errorf("MatchKeywords(%q) = %s/%s, want %s/%s", tc.text, got.Intent, got.Label, tc.intent, tc.label)
		}
	}
}

func TestMatchKeywordsConfidence(t *testing.T) {
	if got := MatchKeywords("balance please").Confidence; got != matchConfidence {
		t.Fatalf("match confidence = %v", got)
	}
	if got := MatchKeywords("hello").Confidence; got != unknownConfidence {
		t.Fatalf("unknown confidence = %v", got)
	}
}

func TestMatchKeywordsRuleOrder(t *testing.T) {
	// "send" belongs to transfer, which is checked before bill payment.
	if got := MatchKeywords("send water bill payment").Intent; got != dialogue.TransferMoney {
		t.Fatalf("expected transfer_money, got %s", got)
	}
}

func TestMatchKeywordsEntities(t *testing.T) {
	got := MatchKeywords("transfer 250 to 0712 345 678")
	if got.Entities[dialogue.SlotPhone] != "0712345678" {
		t.Fatalf("phone entity = %q", got.Entities[dialogue.SlotPhone])
	}
	if got.Entities[dialogue.SlotAmount] != "250" {
		t.Fatalf("amount entity = %q", got.Entities[dialogue.SlotAmount])
	}

	bill := MatchKeywords("pay my electricity bill of 40.50")
	if bill.Entities[dialogue.SlotBillType] != "electricity" || bill.Entities[dialogue.SlotAmount] != "40.50" {
		t.Fatalf("bill entities = %v", bill.Entities)
	}

	if len(MatchKeywords("balance").Entities) != 0 {
		t.Fatalf("balance should carry no entities")
	}
}

func TestKeywordClassifierNeverFails(t *testing.T) {
	res, err := NewKeywordClassifier().Classify(context.Background(), "what can you do")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Intent != dialogue.Help {
		t.Fatalf("expected help, got %s", res.Intent)
	}
}
