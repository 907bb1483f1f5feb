package fee

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

// operation names, used in metrics and error contexts
const (
	OpRecordPayment    = "record_payment"
	OpApplyConcession  = "apply_concession"
	OpEditAssignment   = "edit_assignment"
	OpDeleteAssignment = "delete_assignment"
	OpAssign           = "assign"
)

type (
	PaymentInput struct {
		Amount decimal.Decimal `json:"amount"`
		Date   time.Time       `json:"date"` // defaults to today
		Mode   *string         `json:"payment_mode" validate:"omitempty,max=50"`
		Note   *string         `json:"note" validate:"omitempty,max=500"`
		Actor  core.Actor      `json:"-"`
	}

	// PaymentResult tells how much of the requested amount was applied; the rest is Excess.
	PaymentResult struct {
		Payment Payment         `json:"payment"`
		Applied decimal.Decimal `json:"applied"`
		Excess  decimal.Decimal `json:"excess"`
		Clamped bool            `json:"clamped"`
	}

	ConcessionInput struct {
		ConcessionTypeID string          `json:"concession_type_id" validate:"required"`
		Amount           decimal.Decimal `json:"amount"`
		Actor            core.Actor      `json:"-"`
	}

	ConcessionResult struct {
		Payment    Payment    `json:"payment"`
		Concession Concession `json:"concession"`
	}

	// EditInput is an administrative correction; unset fields are kept.
	EditInput struct {
		AssignedAmount *decimal.Decimal `json:"assigned_amount"`
		DueDate        *time.Time       `json:"due_date"`
		Reason         *string          `json:"reason" validate:"omitempty,max=500"`
		Actor          core.Actor       `json:"-"`
	}

	EditResult struct {
		Payment Payment `json:"payment"`
		// Reopened is set when a Paid row got an open balance again.
		Reopened bool `json:"reopened"`
	}
)

func (in *PaymentInput) Validate() error {
	in.Mode = core.CleanStringPtr(in.Mode)
	in.Note = core.CleanStringPtr(in.Note)
	if err := checkAmount("amount", in.Amount, true); err != nil {
		return err
	}
	return core.ValidateStruct(in)
}

func (in *ConcessionInput) Validate() error {
	in.ConcessionTypeID = core.CleanString(in.ConcessionTypeID)
	if err := core.ValidateStruct(in); err != nil {
		return err
	}
	return checkAmount("amount", in.Amount, true)
}

func (in *EditInput) Validate() error {
	in.Reason = core.CleanStringPtr(in.Reason)
	if in.AssignedAmount == nil && in.DueDate == nil {
		return fieldError("assigned_amount", "one of assigned_amount or due_date is required")
	}
	if err := core.ValidateStruct(in); err != nil {
		return err
	}
	if in.AssignedAmount != nil {
		return checkAmount("assigned_amount", *in.AssignedAmount, false)
	}
	return nil
}

// LedgerService mutates ledger rows. Every mutation is one atomic read-modify-write of the row.
type LedgerService struct {
	store   Store
	logger  core.Logger
	metrics Metrics
}

func NewLedgerService(store Store, logger core.Logger, metrics Metrics) *LedgerService {
	if metrics == nil {
		metrics = NopMetrics
	}
	return &LedgerService{store: store, logger: logger, metrics: metrics}
}

// mutateFunc changes the locked row in place and describes the change.
type mutateFunc func(repo Repository, p *Payment) (LedgerEvent, error)

// mutate locks the row, applies fn, re-derives the status, checks the invariants, saves with a version check
// and appends the ledger event, all in one transaction.
func (svc *LedgerService) mutate(ctx context.Context, op, schoolID, id string, actor core.Actor, fn mutateFunc) (Payment, error) {
	start := time.Now()
	defer func() { svc.metrics.ObserveOperation(op, time.Since(start)) }()

	var saved Payment
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		p, err := repo.LockPayment(ctx, schoolID, id)
		if err != nil {
			return err
		}
		before := p

		evt, err := fn(repo, &p)
		if err != nil {
			return err
		}
		p.Status = DeriveStatus(p.AssignedAmount, p.PaidAmount)
		if err = p.CheckInvariants(); err != nil {
			return err
		}
		p.UpdatedAt = core.NowFunc()
		if saved, err = repo.SavePayment(ctx, p); err != nil {
			return err
		}

		evt.SchoolID = schoolID
		evt.StudentID = p.StudentID
		evt.PaymentID = p.ID
		evt.AssignedBefore, evt.AssignedAfter = before.AssignedAmount, saved.AssignedAmount
		evt.PaidBefore, evt.PaidAfter = before.PaidAmount, saved.PaidAmount
		evt.Actor = actor.String()
		evt.CreatedAt = p.UpdatedAt
		_, err = repo.CreateEvent(ctx, evt)
		return err
	})
	if err != nil {
		svc.onError(op, schoolID, id, actor, err)
		return Payment{}, errors.Wrap(err, op)
	}
	return saved, nil
}

func (svc *LedgerService) onError(op, schoolID, id string, actor core.Actor, err error) {
	if core.IsConflict(err) {
		svc.metrics.Conflict(op)
		svc.logger.Warn("concurrent update on fee assignment", actor, map[string]interface{}{
			"op": op, "school_id": schoolID, "fee_assignment_id": id,
		})
	}
}

// RecordPayment adds amount to the paid amount of the row, clamped to what is due.
// The clamped excess is reported in the result, never dropped silently.
func (svc *LedgerService) RecordPayment(ctx context.Context, schoolID, id string, in PaymentInput) (PaymentResult, error) {
	if err := in.Validate(); err != nil {
		return PaymentResult{}, err
	}
	date := core.Date(core.NowFunc())
	if !in.Date.IsZero() {
		date = core.Date(in.Date)
	}

	var res PaymentResult
	p, err := svc.mutate(ctx, OpRecordPayment, schoolID, id, in.Actor, func(_ Repository, p *Payment) (LedgerEvent, error) {
		due := p.Due()
		res.Applied = decimal.Min(in.Amount, due)
		res.Excess = in.Amount.Sub(res.Applied)
		res.Clamped = res.Excess.IsPositive()

		p.PaidAmount = p.PaidAmount.Add(res.Applied)
		p.PaymentDate = &date
		p.PaymentMode = in.Mode
		p.Notes = appendNote(p.Notes, date, in.Note)
		return LedgerEvent{
			Kind:        EventPayment,
			Amount:      res.Applied,
			Excess:      res.Excess,
			PaymentMode: in.Mode,
			Note:        in.Note,
		}, nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	res.Payment = p

	svc.metrics.PaymentRecorded(res.Clamped)
	if res.Clamped {
		svc.logger.Warn("payment exceeds the due balance, excess not applied", in.Actor, map[string]interface{}{
			"school_id":         schoolID,
			"fee_assignment_id": id,
			"requested":         in.Amount.StringFixed(2),
			"applied":           res.Applied.StringFixed(2),
			"excess":            res.Excess.StringFixed(2),
		})
	}
	return res, nil
}

// ApplyConcession waives part of the due balance by reducing the assigned amount.
func (svc *LedgerService) ApplyConcession(ctx context.Context, schoolID, id string, in ConcessionInput) (ConcessionResult, error) {
	if err := in.Validate(); err != nil {
		return ConcessionResult{}, err
	}

	var res ConcessionResult
	p, err := svc.mutate(ctx, OpApplyConcession, schoolID, id, in.Actor, func(repo Repository, p *Payment) (LedgerEvent, error) {
		if _, err := repo.GetConcessionType(ctx, schoolID, in.ConcessionTypeID); err != nil {
			return LedgerEvent{}, err
		}
		if due := p.Due(); in.Amount.GreaterThan(due) {
			return LedgerEvent{}, &core.ExceedsDueError{Requested: in.Amount, Due: due}
		}
		p.AssignedAmount = p.AssignedAmount.Sub(in.Amount)

		var err error
		res.Concession, err = repo.CreateConcession(ctx, Concession{
			SchoolID:         schoolID,
			StudentID:        p.StudentID,
			PaymentID:        p.ID,
			ConcessionTypeID: in.ConcessionTypeID,
			Amount:           in.Amount,
			Actor:            in.Actor.String(),
			CreatedAt:        core.NowFunc(),
		})
		if err != nil {
			return LedgerEvent{}, err
		}
		return LedgerEvent{Kind: EventConcession, Amount: in.Amount, Note: strPtr(in.ConcessionTypeID)}, nil
	})
	if err != nil {
		return ConcessionResult{}, err
	}
	res.Payment = p
	svc.metrics.ConcessionApplied()
	return res, nil
}

// EditAssignment corrects the assigned amount or the due date of a row.
// An amount below what was already paid is rejected, never clamped.
func (svc *LedgerService) EditAssignment(ctx context.Context, schoolID, id string, in EditInput) (EditResult, error) {
	if err := in.Validate(); err != nil {
		return EditResult{}, err
	}

	var res EditResult
	p, err := svc.mutate(ctx, OpEditAssignment, schoolID, id, in.Actor, func(_ Repository, p *Payment) (LedgerEvent, error) {
		wasPaid := p.Status == StatusPaid
		evt := LedgerEvent{Kind: EventAdjustment, Note: in.Reason}
		if in.AssignedAmount != nil {
			amt := *in.AssignedAmount
			if amt.LessThan(p.PaidAmount) {
				return LedgerEvent{}, core.NewInvalidAmountError(
					"assigned_amount", amt, "cannot be less than the paid amount of "+p.PaidAmount.StringFixed(2))
			}
			evt.Amount = amt.Sub(p.AssignedAmount)
			p.AssignedAmount = amt
		}
		if in.DueDate != nil {
			due := core.Date(*in.DueDate)
			p.DueDate = &due
		}
		res.Reopened = wasPaid && DeriveStatus(p.AssignedAmount, p.PaidAmount) != StatusPaid
		return evt, nil
	})
	if err != nil {
		return EditResult{}, err
	}
	res.Payment = p

	if res.Reopened {
		svc.logger.Warn("paid fee assignment reopened", in.Actor, map[string]interface{}{
			"school_id":         schoolID,
			"fee_assignment_id": id,
			"assigned_amount":   p.AssignedAmount.StringFixed(2),
			"paid_amount":       p.PaidAmount.StringFixed(2),
			"reason":            deref(in.Reason),
		})
	}
	return res, nil
}

// DeleteAssignment removes a row that never received any money.
// Its audit trail is kept.
func (svc *LedgerService) DeleteAssignment(ctx context.Context, schoolID, id string, actor core.Actor) error {
	start := time.Now()
	defer func() { svc.metrics.ObserveOperation(OpDeleteAssignment, time.Since(start)) }()

	err := svc.store.Atomic(ctx, func(repo Repository) error {
		p, err := repo.LockPayment(ctx, schoolID, id)
		if err != nil {
			return err
		}
		if p.PaidAmount.IsPositive() {
			return &core.HasPaymentsError{ID: p.ID, Paid: p.PaidAmount}
		}
		if err = repo.DeletePayment(ctx, p); err != nil {
			return err
		}
		_, err = repo.CreateEvent(ctx, LedgerEvent{
			SchoolID:       schoolID,
			StudentID:      p.StudentID,
			PaymentID:      p.ID,
			Kind:           EventDeleted,
			Amount:         p.AssignedAmount,
			AssignedBefore: p.AssignedAmount,
			PaidBefore:     p.PaidAmount,
			Actor:          actor.String(),
			CreatedAt:      core.NowFunc(),
		})
		return err
	})
	if err != nil {
		svc.onError(OpDeleteAssignment, schoolID, id, actor, err)
		return errors.Wrap(err, OpDeleteAssignment)
	}
	svc.logger.Info("fee assignment deleted", actor, map[string]interface{}{
		"school_id": schoolID, "fee_assignment_id": id,
	})
	return nil
}

// appendNote keeps the history of payment notes, one dated line per payment.
func appendNote(notes *string, date time.Time, note *string) *string {
	if note == nil {
		return notes
	}
	line := date.Format("2006-01-02") + ": " + *note
	if notes == nil || *notes == "" {
		return &line
	}
	joined := *notes + "\n" + line
	return &joined
}
