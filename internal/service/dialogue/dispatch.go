package dialogue

import (
	"fmt"
	"sort"
	"strings"

	bankmodel "github.com/zhouzirui/voicebank/backend/internal/model/banking"
	dialoguemodel "github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

// Fixed response texts.
const (
	TextTransferPrompt = "Please enter the recipient phone number and amount"
	TextBillPrompt     = "Please enter the bill type and amount"
	TextHelp           = "You can check balance, transfer money, pay bills, or view recent transactions. Just speak naturally!"
	TextUnknown        = "I did not understand that. Try saying check balance, transfer money, or pay bill"
	TextTransferDone   = "Transfer completed successfully"
	TextBillDone       = "Bill payment completed successfully"
)

// DefaultStatementSpeakLimit is how many transactions a mini statement reads out.
const DefaultStatementSpeakLimit = 3

// Decision is the outcome of dispatching one intent.
type Decision struct {
	Response string
	// Pending replaces the session's pending operation (and clears its
	// slots) when Replace is set.
	Pending dialoguemodel.PendingOperation
	Replace bool
}

// Dispatch decides the response for intent given the session. It does not
// mutate s. speakLimit caps the mini statement; zero means the default.
func Dispatch(intent dialoguemodel.Intent, s dialoguemodel.Session, speakLimit int) Decision {
	switch intent {
	case dialoguemodel.CheckBalance:
		var balance float64
		if s.Account != nil {
			balance = s.Account.Balance
		}
		return Decision{Response: fmt.Sprintf("Your current balance is %.2f dollars", balance)}

	case dialoguemodel.MiniStatement:
		return Decision{Response: miniStatement(s.Transactions, speakLimit)}

	case dialoguemodel.TransferMoney:
		pending, _ := dialoguemodel.NewPending(intent)
		return Decision{Response: TextTransferPrompt, Pending: pending, Replace: true}

	case dialoguemodel.PayBill:
		pending, _ := dialoguemodel.NewPending(intent)
		return Decision{Response: TextBillPrompt, Pending: pending, Replace: true}

	case dialoguemodel.Help:
		return Decision{Response: TextHelp}

	case dialoguemodel.Unknown:
		return Decision{Response: TextUnknown}
	}
	return Decision{Response: TextUnknown}
}

func miniStatement(txs []bankmodel.Transaction, limit int) string {
	if limit <= 0 {
		limit = DefaultStatementSpeakLimit
	}

	ordered := append([]bankmodel.Transaction(nil), txs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	entries := make([]string, 0, len(ordered))
	for _, tx := range ordered {
		verb := "Received"
		if tx.Type == bankmodel.Debit {
			verb = "Paid"
		}
		entries = append(entries, fmt.Sprintf("%s %.2f dollars", verb, tx.Amount))
	}

	text := fmt.Sprintf("You have %d recent transactions. ", len(ordered)) + strings.Join(entries, ". ")
	return strings.TrimSpace(text)
}
