package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

func (r *repository) CreatePayment(_ context.Context, p fee.Payment) (fee.Payment, error) {
	if err := p.CheckInvariants(); err != nil {
		return fee.Payment{}, err
	}
	defer r.lock()()
	p.ID = newID(p.ID)
	p.Version = 1
	r.tbl().payments[p.ID] = p
	return p, nil
}

func (r *repository) GetPayment(_ context.Context, schoolID, id string) (fee.Payment, error) {
	defer r.rlock()()
	if p, ok := r.tbl().payments[id]; ok && p.SchoolID == schoolID {
		return p, nil
	}
	return fee.Payment{}, core.NewNotFoundError(fee.EntityPayment, id)
}

// LockPayment is GetPayment: units of work are already serialized.
func (r *repository) LockPayment(ctx context.Context, schoolID, id string) (fee.Payment, error) {
	return r.GetPayment(ctx, schoolID, id)
}

func (r *repository) SavePayment(_ context.Context, p fee.Payment) (fee.Payment, error) {
	if err := p.CheckInvariants(); err != nil {
		return fee.Payment{}, err
	}
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.payments[p.ID]
	if !ok || orig.SchoolID != p.SchoolID {
		return fee.Payment{}, core.NewNotFoundError(fee.EntityPayment, p.ID)
	}
	if orig.Version != p.Version {
		return fee.Payment{}, errors.Wrapf(core.ErrConflict, "fee assignment %s: version %d, has %d", p.ID, p.Version, orig.Version)
	}
	p.Version++
	p.CreatedAt = orig.CreatedAt
	t.payments[p.ID] = p
	return p, nil
}

func (r *repository) DeletePayment(_ context.Context, p fee.Payment) error {
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.payments[p.ID]
	if !ok || orig.SchoolID != p.SchoolID {
		return core.NewNotFoundError(fee.EntityPayment, p.ID)
	}
	if orig.Version != p.Version {
		return errors.Wrapf(core.ErrConflict, "fee assignment %s: version %d, has %d", p.ID, p.Version, orig.Version)
	}
	delete(t.payments, p.ID)
	return nil
}

func (r *repository) QueryPayments(_ context.Context, filter fee.PaymentFilter, ordering []core.DBOrdering) ([]fee.Payment, error) {
	defer r.rlock()()
	t := r.tbl()

	students := toSet(filter.StudentIDs)
	statuses := make(map[fee.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	eq := func(ptr *string, want string) bool {
		return want == "" || (ptr != nil && *ptr == want)
	}

	pmts := make([]fee.Payment, 0)
	for _, p := range t.payments {
		switch {
		case p.SchoolID != filter.SchoolID,
			len(students) > 0 && !students[p.StudentID],
			len(statuses) > 0 && !statuses[p.Status],
			!eq(p.ClassID, filter.ClassID),
			!eq(p.CategoryID, filter.CategoryID),
			!eq(p.FeeTypeID, filter.FeeTypeID),
			!eq(p.GroupID, filter.GroupID),
			!eq(p.InstallmentID, filter.InstallmentID),
			filter.DueBefore != nil && (p.DueDate == nil || !p.DueDate.Before(*filter.DueBefore)):
			continue
		}
		pmts = append(pmts, p)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(pmts, func(i, j int) bool {
		for _, ord := range ordering {
			c := comparePayments(pmts[i], pmts[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return pmts[i].ID < pmts[j].ID
	})
	return pmts, nil
}

// comparePayments orders nil dates last, like Postgres does for ascending orders.
func comparePayments(a, b fee.Payment, field string) int {
	cmpTime := func(x, y *time.Time) int {
		switch {
		case x == nil && y == nil:
			return 0
		case x == nil:
			return 1
		case y == nil:
			return -1
		case x.Before(*y):
			return -1
		case x.After(*y):
			return 1
		}
		return 0
	}
	switch field {
	case "created_at":
		return cmpTime(&a.CreatedAt, &b.CreatedAt)
	case "due_date":
		return cmpTime(a.DueDate, b.DueDate)
	case "payment_date":
		return cmpTime(a.PaymentDate, b.PaymentDate)
	case "assigned_amount":
		return a.AssignedAmount.Cmp(b.AssignedAmount)
	case "paid_amount":
		return a.PaidAmount.Cmp(b.PaidAmount)
	case "status":
		switch {
		case a.Status < b.Status:
			return -1
		case a.Status > b.Status:
			return 1
		}
	}
	return 0
}

func (r *repository) AssignmentKeys(_ context.Context, schoolID string, studentIDs []string) ([]fee.AssignmentKey, error) {
	defer r.rlock()()
	students := toSet(studentIDs)
	keys := make([]fee.AssignmentKey, 0)
	for _, p := range r.tbl().payments {
		if p.SchoolID == schoolID && students[p.StudentID] {
			keys = append(keys, p.Key())
		}
	}
	return keys, nil
}

func (r *repository) StudentsWithGroup(_ context.Context, schoolID, classID, groupID string) ([]string, error) {
	defer r.rlock()()
	t := r.tbl()
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, p := range t.payments {
		if p.SchoolID != schoolID || p.GroupID == nil || *p.GroupID != groupID || seen[p.StudentID] {
			continue
		}
		s, ok := t.students[p.StudentID]
		if !ok || s.SchoolID != schoolID || s.ClassID != classID || !s.IsActive {
			continue
		}
		seen[p.StudentID] = true
		ids = append(ids, p.StudentID)
	}
	sort.Strings(ids)
	return ids, nil
}

// LockAssignments is a no-op: units of work are already serialized.
func (r *repository) LockAssignments(_ context.Context, _ string) error {
	return nil
}

func (r *repository) CreateConcession(_ context.Context, c fee.Concession) (fee.Concession, error) {
	defer r.lock()()
	t := r.tbl()
	c.ID = newID(c.ID)
	t.concessions = append(t.concessions, c)
	return c, nil
}

func (r *repository) QueryConcessions(_ context.Context, schoolID, paymentID string) ([]fee.Concession, error) {
	defer r.rlock()()
	cs := make([]fee.Concession, 0)
	for _, c := range r.tbl().concessions {
		if c.SchoolID == schoolID && c.PaymentID == paymentID {
			cs = append(cs, c)
		}
	}
	return cs, nil
}

func (r *repository) CreateEvent(_ context.Context, e fee.LedgerEvent) (fee.LedgerEvent, error) {
	defer r.lock()()
	t := r.tbl()
	e.ID = newID(e.ID)
	t.events = append(t.events, e)
	return e, nil
}

func (r *repository) QueryEvents(_ context.Context, schoolID, paymentID string) ([]fee.LedgerEvent, error) {
	defer r.rlock()()
	evts := make([]fee.LedgerEvent, 0)
	for _, e := range r.tbl().events {
		if e.SchoolID == schoolID && e.PaymentID == paymentID {
			evts = append(evts, e)
		}
	}
	return evts, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
