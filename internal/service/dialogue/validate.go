package dialogue

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	dialoguemodel "github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

// amountPattern accepts plain decimals only, so hex floats, exponents and
// digit separators are rejected before parsing.
var amountPattern = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

// slotValues are validated, typed slot contents.
type slotValues struct {
	Phone    string
	BillType string
	Amount   float64
}

// validateSlots checks every required slot of kind. The returned error is a
// *dialogue.ValidationError naming each bad field.
func validateSlots(kind dialoguemodel.PendingKind, slots map[string]string) (slotValues, error) {
	var (
		values slotValues
		fields = map[string]string{}
	)

	for _, name := range kind.RequiredSlots() {
		raw := strings.TrimSpace(slots[name])
		switch name {
		case dialoguemodel.SlotPhone:
			if raw == "" {
				fields[name] = "phone number is required"
			}
			values.Phone = raw
		case dialoguemodel.SlotBillType:
			if raw == "" {
				fields[name] = "bill type is required"
			}
			values.BillType = raw
		case dialoguemodel.SlotAmount:
			amount, err := parseAmount(raw)
			if err != nil {
				fields[name] = err.Error()
			}
			values.Amount = amount
		}
	}

	if len(fields) > 0 {
		return slotValues{}, &dialoguemodel.ValidationError{Fields: fields}
	}
	return values, nil
}

func parseAmount(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("amount is required")
	}
	if !amountPattern.MatchString(raw) {
		return 0, fmt.Errorf("amount must be a number")
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("amount must be a number")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	return amount, nil
}

// missingSlotsNotice is the notice shown when a submission fails validation.
func missingSlotsNotice(kind dialoguemodel.PendingKind) string {
	switch kind {
	case dialoguemodel.PendingTransfer:
		return "Please enter phone number and amount"
	case dialoguemodel.PendingBillPay:
		return "Please enter bill type and amount"
	case dialoguemodel.PendingNone:
		return "Nothing to submit"
	}
	return "Nothing to submit"
}

func noPendingError() error {
	return fmt.Errorf("%w: %w", dialoguemodel.ErrNoPendingOperation, &dialoguemodel.ValidationError{
		Fields: map[string]string{"pending": "no operation is waiting for input"},
	})
}
