package fee

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

// DeriveStatus is the only source of a row's status.
// A row with nothing assigned owes nothing, so it is Paid.
func DeriveStatus(assigned, paid decimal.Decimal) Status {
	switch {
	case !assigned.IsPositive():
		return StatusPaid
	case paid.IsZero():
		return StatusPending
	case paid.GreaterThanOrEqual(assigned):
		return StatusPaid
	default:
		return StatusPartiallyPaid
	}
}

// CheckInvariants verifies 0 <= paid <= assigned and the derived status.
func (p Payment) CheckInvariants() error {
	switch {
	case p.AssignedAmount.IsNegative():
		return core.NewInvalidAmountError("assigned_amount", p.AssignedAmount, "cannot be negative")
	case p.PaidAmount.IsNegative():
		return core.NewInvalidAmountError("paid_amount", p.PaidAmount, "cannot be negative")
	case p.PaidAmount.GreaterThan(p.AssignedAmount):
		return core.NewInvalidAmountError("paid_amount", p.PaidAmount, "cannot exceed the assigned amount")
	}
	if want := DeriveStatus(p.AssignedAmount, p.PaidAmount); p.Status != want {
		return errors.Errorf("fee assignment %s: status %q should be %q", p.ID, p.Status, want)
	}
	return nil
}
