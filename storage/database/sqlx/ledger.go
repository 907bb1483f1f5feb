package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

var (
	paymentColumns = []string{
		"id", "school_id", "student_id", "fee_category_id", "fee_type_id", "fee_type_group_id", "installment_id",
		"class_id", "assigned_amount", "paid_amount", "status", "due_date", "payment_date", "payment_mode", "notes",
		"version", "created_at", "updated_at",
	}
	concessionColumns = []string{
		"id", "school_id", "student_id", "fee_assignment_id", "concession_type_id", "amount", "actor", "created_at",
	}
	eventColumns = []string{
		"id", "school_id", "student_id", "fee_assignment_id", "kind", "amount", "excess", "assigned_before",
		"assigned_after", "paid_before", "paid_after", "payment_mode", "note", "actor", "created_at",
	}

	// sortable fee_assignments columns
	paymentSortColumns = map[string]bool{
		"created_at": true, "due_date": true, "payment_date": true,
		"assigned_amount": true, "paid_amount": true, "status": true,
	}

	savePaymentQuery = func() string {
		sets := make([]string, 0, len(paymentColumns))
		for _, col := range paymentColumns {
			switch col {
			case "id", "school_id", "student_id", "version", "created_at":
				continue
			}
			sets = append(sets, col+" = :"+col)
		}
		return "UPDATE fee_assignments SET " + strings.Join(sets, ", ") + ", version = version + 1" +
			" WHERE id = :id AND school_id = :school_id AND version = :version"
	}()
)

func (r *repository) CreatePayment(ctx context.Context, p fee.Payment) (fee.Payment, error) {
	if err := p.CheckInvariants(); err != nil {
		return fee.Payment{}, err
	}
	p.ID = newID(p.ID)
	p.Version = 1
	row := boilPayment(p)
	if err := r.insert(ctx, "fee_assignments", paymentColumns, row, fee.EntityPayment); err != nil {
		return fee.Payment{}, err
	}
	return unboilPayment(row), nil
}

func (r *repository) getPayment(ctx context.Context, schoolID, id, suffix string) (fee.Payment, error) {
	var row paymentRow
	q := selectQuery("fee_assignments", paymentColumns, "id = $1 AND school_id = $2"+suffix)
	if err := r.get(ctx, &row, fee.EntityPayment, id, q, id, schoolID); err != nil {
		return fee.Payment{}, err
	}
	return unboilPayment(row), nil
}

func (r *repository) GetPayment(ctx context.Context, schoolID, id string) (fee.Payment, error) {
	return r.getPayment(ctx, schoolID, id, "")
}

// LockPayment takes the row lock; it is held until the transaction ends (use it inside Store.Atomic).
// Waiting longer than the lock timeout fails with core.ErrConflict.
func (r *repository) LockPayment(ctx context.Context, schoolID, id string) (fee.Payment, error) {
	return r.getPayment(ctx, schoolID, id, " FOR UPDATE")
}

// versionMismatch tells a lost compare-and-swap apart from a missing row.
func (r *repository) versionMismatch(ctx context.Context, p fee.Payment) error {
	var version int
	q := "SELECT version FROM fee_assignments WHERE id = $1 AND school_id = $2"
	if err := sqlx.GetContext(ctx, r.exec, &version, q, p.ID, p.SchoolID); err != nil {
		return trapNoRowsErr(err, fee.EntityPayment, p.ID, "checking fee assignment version")
	}
	return errors.Wrapf(core.ErrConflict, "fee assignment %s: version %d, has %d", p.ID, p.Version, version)
}

func (r *repository) SavePayment(ctx context.Context, p fee.Payment) (fee.Payment, error) {
	if err := p.CheckInvariants(); err != nil {
		return fee.Payment{}, err
	}
	if !validID(p.ID) {
		return fee.Payment{}, core.NewNotFoundError(fee.EntityPayment, p.ID)
	}
	row := boilPayment(p)
	res, err := sqlx.NamedExecContext(ctx, r.exec, savePaymentQuery, row)
	if err != nil {
		return fee.Payment{}, mapErr(err, "updating fee assignment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fee.Payment{}, errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return fee.Payment{}, r.versionMismatch(ctx, p)
	}
	return r.GetPayment(ctx, p.SchoolID, p.ID)
}

func (r *repository) DeletePayment(ctx context.Context, p fee.Payment) error {
	if !validID(p.ID) {
		return core.NewNotFoundError(fee.EntityPayment, p.ID)
	}
	res, err := r.exec.ExecContext(ctx,
		"DELETE FROM fee_assignments WHERE id = $1 AND school_id = $2 AND version = $3", p.ID, p.SchoolID, p.Version)
	if err != nil {
		return mapErr(err, "deleting fee assignment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return r.versionMismatch(ctx, p)
	}
	return nil
}

func (r *repository) QueryPayments(ctx context.Context, filter fee.PaymentFilter, ordering []core.DBOrdering) ([]fee.Payment, error) {
	conds := []string{"school_id = ?"}
	args := []interface{}{filter.SchoolID}
	if len(filter.StudentIDs) > 0 {
		conds = append(conds, "student_id IN (?)")
		args = append(args, filter.StudentIDs)
	}
	if filter.ClassID != "" {
		conds = append(conds, "class_id = ?")
		args = append(args, filter.ClassID)
	}
	for _, ref := range []struct{ col, id string }{
		{"fee_category_id", filter.CategoryID},
		{"fee_type_id", filter.FeeTypeID},
		{"fee_type_group_id", filter.GroupID},
		{"installment_id", filter.InstallmentID},
	} {
		if ref.id == "" {
			continue
		}
		if !validID(ref.id) {
			return []fee.Payment{}, nil
		}
		conds = append(conds, ref.col+" = ?")
		args = append(args, ref.id)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		conds = append(conds, "status IN (?)")
		args = append(args, statuses)
	}
	if filter.DueBefore != nil {
		conds = append(conds, "due_date < ?")
		args = append(args, core.Date(*filter.DueBefore))
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if paymentSortColumns[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at ASC")
	}
	orderList = append(orderList, "id ASC")

	q := selectQuery("fee_assignments", paymentColumns, strings.Join(conds, " AND ")) +
		" ORDER BY " + strings.Join(orderList, ", ")
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building fee assignments query")
	}

	var rows []paymentRow
	if err = sqlx.SelectContext(ctx, r.exec, &rows, r.exec.Rebind(q), args...); err != nil {
		return nil, mapErr(err, "querying fee assignments")
	}
	return unboilPayments(rows), nil
}

func (r *repository) AssignmentKeys(ctx context.Context, schoolID string, studentIDs []string) ([]fee.AssignmentKey, error) {
	if len(studentIDs) == 0 {
		return []fee.AssignmentKey{}, nil
	}
	var rows []keyRow
	q := `SELECT student_id, fee_category_id, fee_type_id, fee_type_group_id, installment_id
		FROM fee_assignments WHERE school_id = $1 AND student_id = ANY($2)`
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID, pq.Array(studentIDs)); err != nil {
		return nil, mapErr(err, "querying assignment keys")
	}
	keys := make([]fee.AssignmentKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, unboilKey(row))
	}
	return keys, nil
}

func (r *repository) StudentsWithGroup(ctx context.Context, schoolID, classID, groupID string) ([]string, error) {
	ids := make([]string, 0)
	if !validID(groupID) {
		return ids, nil
	}
	q := `SELECT DISTINCT s.id FROM students s
		JOIN fee_assignments fa ON fa.student_id = s.id AND fa.school_id = s.school_id
		WHERE s.school_id = $1 AND s.class_id = $2 AND s.is_active AND fa.fee_type_group_id = $3
		ORDER BY s.id`
	if err := sqlx.SelectContext(ctx, r.exec, &ids, q, schoolID, classID, groupID); err != nil {
		return nil, mapErr(err, "querying group holders")
	}
	return ids, nil
}

// LockAssignments takes a transaction-level advisory lock on the school.
func (r *repository) LockAssignments(ctx context.Context, schoolID string) error {
	if _, err := r.exec.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, hashtext($2))", assignLockSpace, schoolID); err != nil {
		return mapErr(err, "locking fee assignments")
	}
	return nil
}

func (r *repository) CreateConcession(ctx context.Context, c fee.Concession) (fee.Concession, error) {
	c.ID = newID(c.ID)
	row := boilConcession(c)
	if err := r.insert(ctx, "concessions", concessionColumns, row, "concession"); err != nil {
		return fee.Concession{}, err
	}
	return unboilConcession(row), nil
}

func (r *repository) QueryConcessions(ctx context.Context, schoolID, paymentID string) ([]fee.Concession, error) {
	cs := make([]fee.Concession, 0)
	if !validID(paymentID) {
		return cs, nil
	}
	var rows []concessionRow
	q := selectQuery("concessions", concessionColumns, "school_id = $1 AND fee_assignment_id = $2 ORDER BY created_at, id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID, paymentID); err != nil {
		return nil, mapErr(err, "querying concessions")
	}
	for _, row := range rows {
		cs = append(cs, unboilConcession(row))
	}
	return cs, nil
}

func (r *repository) CreateEvent(ctx context.Context, e fee.LedgerEvent) (fee.LedgerEvent, error) {
	e.ID = newID(e.ID)
	row := boilEvent(e)
	if err := r.insert(ctx, "ledger_events", eventColumns, row, "ledger event"); err != nil {
		return fee.LedgerEvent{}, err
	}
	return unboilEvent(row), nil
}

func (r *repository) QueryEvents(ctx context.Context, schoolID, paymentID string) ([]fee.LedgerEvent, error) {
	evts := make([]fee.LedgerEvent, 0)
	if !validID(paymentID) {
		return evts, nil
	}
	var rows []eventRow
	q := selectQuery("ledger_events", eventColumns, "school_id = $1 AND fee_assignment_id = $2 ORDER BY created_at, id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID, paymentID); err != nil {
		return nil, mapErr(err, "querying ledger events")
	}
	for _, row := range rows {
		evts = append(evts, unboilEvent(row))
	}
	return evts, nil
}
