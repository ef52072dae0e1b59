package dialogue

import "strings"

// Intent is the closed set of banking actions the controller understands.
type Intent string

const (
	CheckBalance  Intent = "check_balance"
	MiniStatement Intent = "mini_statement"
	TransferMoney Intent = "transfer_money"
	PayBill       Intent = "pay_bill"
	Help          Intent = "help"
	Unknown       Intent = "unknown"
)

// Intents lists every valid intent in dispatch-table order.
var Intents = []Intent{CheckBalance, MiniStatement, TransferMoney, PayBill, Help, Unknown}

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case CheckBalance, MiniStatement, TransferMoney, PayBill, Help, Unknown:
		return true
	}
	return false
}

// ParseIntent maps a classifier label onto the closed enumeration.
// Labels outside the set, including the legacy "change_pin", become Unknown.
func ParseIntent(label string) Intent {
	i := Intent(strings.ToLower(strings.TrimSpace(label)))
	if i.Valid() {
		return i
	}
	return Unknown
}

// PendingKind tags the operation awaiting slot values.
type PendingKind string

const (
	PendingNone     PendingKind = ""
	PendingTransfer PendingKind = "transfer"
	PendingBillPay  PendingKind = "bill_pay"
)

// Slot names.
const (
	SlotPhone    = "phone"
	SlotAmount   = "amount"
	SlotBillType = "billType"
)

// RequiredSlots returns the slot names that must be filled before the
// operation can execute.
func (k PendingKind) RequiredSlots() []string {
	switch k {
	case PendingTransfer:
		return []string{SlotPhone, SlotAmount}
	case PendingBillPay:
		return []string{SlotBillType, SlotAmount}
	case PendingNone:
		return nil
	}
	return nil
}

// Accepts reports whether slot belongs to the operation.
func (k PendingKind) Accepts(slot string) bool {
	for _, name := range k.RequiredSlots() {
		if name == slot {
			return true
		}
	}
	return false
}

// PendingOperation is a multi-turn operation awaiting its required slots.
type PendingOperation struct {
	Kind      PendingKind `json:"kind"`
	Required  []string    `json:"required,omitempty"`
	CreatedBy Intent      `json:"createdBy,omitempty"`
}

// Active reports whether an operation is pending.
func (p PendingOperation) Active() bool {
	return p.Kind != PendingNone
}

// NewPending builds the pending operation created by intent, if any.
func NewPending(intent Intent) (PendingOperation, bool) {
	switch intent {
	case TransferMoney:
		return PendingOperation{Kind: PendingTransfer, Required: PendingTransfer.RequiredSlots(), CreatedBy: intent}, true
	case PayBill:
		return PendingOperation{Kind: PendingBillPay, Required: PendingBillPay.RequiredSlots(), CreatedBy: intent}, true
	case CheckBalance, MiniStatement, Help, Unknown:
		return PendingOperation{}, false
	}
	return PendingOperation{}, false
}
