package fee

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

type (
	Totals struct {
		Count    int             `json:"count"`
		Assigned decimal.Decimal `json:"assigned"`
		Paid     decimal.Decimal `json:"paid"`
		Due      decimal.Decimal `json:"due"`
	}

	Balance struct {
		StudentID string `json:"student_id"`
		Totals
		Payments []Payment `json:"payments"`
	}

	ClassSummary struct {
		ClassID  string `json:"class_id"`
		Students int    `json:"students"`
		Totals
		ByStatus map[Status]Totals `json:"by_status"`
	}
)

func (t *Totals) add(p Payment) {
	t.Count++
	t.Assigned = t.Assigned.Add(p.AssignedAmount)
	t.Paid = t.Paid.Add(p.PaidAmount)
	t.Due = t.Due.Add(p.Due())
}

// QueryService is the read-only side of the ledger.
type QueryService struct {
	store Store
}

func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

func (svc *QueryService) Payment(ctx context.Context, schoolID, id string) (Payment, error) {
	return svc.store.GetPayment(ctx, schoolID, id)
}

func (svc *QueryService) Payments(ctx context.Context, filter PaymentFilter, ordering []core.DBOrdering) ([]Payment, error) {
	if err := checkSchool(filter.SchoolID); err != nil {
		return nil, err
	}
	return svc.store.QueryPayments(ctx, filter, ordering)
}

// StudentBalance sums every row of a student, oldest due first.
func (svc *QueryService) StudentBalance(ctx context.Context, schoolID, studentID string) (Balance, error) {
	pmts, err := svc.Payments(ctx,
		PaymentFilter{SchoolID: schoolID, StudentIDs: []string{studentID}},
		[]core.DBOrdering{{Field: "due_date", Ascending: true}, {Field: "created_at", Ascending: true}},
	)
	if err != nil {
		return Balance{}, errors.Wrap(err, "querying student balance")
	}
	bal := Balance{StudentID: studentID, Payments: pmts}
	for _, p := range pmts {
		bal.add(p)
	}
	return bal, nil
}

// ClassSummary sums the rows charged to a class, overall and by status.
func (svc *QueryService) ClassSummary(ctx context.Context, schoolID, classID string) (ClassSummary, error) {
	pmts, err := svc.Payments(ctx, PaymentFilter{SchoolID: schoolID, ClassID: classID}, nil)
	if err != nil {
		return ClassSummary{}, errors.Wrap(err, "querying class summary")
	}
	sum := ClassSummary{ClassID: classID, ByStatus: make(map[Status]Totals, len(Statuses))}
	for _, st := range Statuses {
		sum.ByStatus[st] = Totals{}
	}
	students := make(map[string]bool)
	for _, p := range pmts {
		students[p.StudentID] = true
		sum.add(p)
		t := sum.ByStatus[p.Status]
		t.add(p)
		sum.ByStatus[p.Status] = t
	}
	sum.Students = len(students)
	return sum, nil
}

// Concessions lists the concessions applied to a row, oldest first. They outlive the row.
func (svc *QueryService) Concessions(ctx context.Context, schoolID, paymentID string) ([]Concession, error) {
	return svc.store.QueryConcessions(ctx, schoolID, paymentID)
}

// Events is the audit trail of a row, oldest first. It outlives the row.
func (svc *QueryService) Events(ctx context.Context, schoolID, paymentID string) ([]LedgerEvent, error) {
	return svc.store.QueryEvents(ctx, schoolID, paymentID)
}
