package banking

import "time"

// TransactionType distinguishes money leaving and entering an account.
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

// Account is a read-only snapshot of the caller's account.
type Account struct {
	AccountID     string  `json:"account_id"`
	AccountNumber string  `json:"account_number"`
	Balance       float64 `json:"balance"`
	AccountType   string  `json:"account_type"`
}

// Transaction is a single ledger entry as reported by the bank.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id,omitempty"`
	Type        TransactionType `json:"transaction_type"`
	Amount      float64         `json:"amount"`
	Recipient   string          `json:"recipient,omitempty"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	Status      string          `json:"status,omitempty"`
}

// TransferRequest moves money to the account registered to RecipientPhone.
type TransferRequest struct {
	RecipientPhone string  `json:"recipient_phone"`
	Amount         float64 `json:"amount"`
	Description    string  `json:"description"`
}

// BillPaymentRequest pays a utility or service bill from the account.
type BillPaymentRequest struct {
	BillType    string  `json:"bill_type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// OperationResult is returned by a successful transfer or bill payment.
type OperationResult struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	Transaction Transaction `json:"transaction"`
}
