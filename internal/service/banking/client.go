// Package banking talks to the account and transaction backend.
package banking

import (
	"context"

	bankmodel "github.com/zhouzirui/voicebank/backend/internal/model/banking"
)

// Client is the banking backend. Business-rule rejections come back as
// *dialogue.DomainError, everything else as *dialogue.ServiceError.
type Client interface {
	GetAccount(ctx context.Context, token string) (*bankmodel.Account, error)
	ListTransactions(ctx context.Context, token string, limit int) ([]bankmodel.Transaction, error)
	Transfer(ctx context.Context, token string, req bankmodel.TransferRequest) (*bankmodel.OperationResult, error)
	PayBill(ctx context.Context, token string, req bankmodel.BillPaymentRequest) (*bankmodel.OperationResult, error)
}
