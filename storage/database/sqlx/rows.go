package sqlxrepos

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

// Storage rows and their conversion from (boil) and to (unboil) the domain models.

type (
	categoryRow struct {
		ID          string      `db:"id"`
		SchoolID    string      `db:"school_id"`
		Name        string      `db:"name"`
		Description null.String `db:"description"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	feeTypeRow struct {
		ID              string          `db:"id"`
		SchoolID        string          `db:"school_id"`
		Name            string          `db:"name"`
		DisplayName     string          `db:"display_name"`
		CategoryID      string          `db:"fee_category_id"`
		InstallmentType string          `db:"installment_type"`
		IsRefundable    bool            `db:"is_refundable"`
		DefaultAmount   decimal.Decimal `db:"default_amount"`
		Description     null.String     `db:"description"`
		CreatedAt       time.Time       `db:"created_at"`
		UpdatedAt       time.Time       `db:"updated_at"`
	}

	groupRow struct {
		ID        string    `db:"id"`
		SchoolID  string    `db:"school_id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	groupItemRow struct {
		GroupID   string `db:"fee_type_group_id"`
		FeeTypeID string `db:"fee_type_id"`
		Position  int    `db:"position"`
	}

	planRow struct {
		ID          string      `db:"id"`
		SchoolID    string      `db:"school_id"`
		Title       string      `db:"title"`
		StartDate   time.Time   `db:"start_date"`
		EndDate     time.Time   `db:"end_date"`
		LastDate    time.Time   `db:"last_date"`
		Description null.String `db:"description"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	concessionTypeRow struct {
		ID          string      `db:"id"`
		SchoolID    string      `db:"school_id"`
		Title       string      `db:"title"`
		Description null.String `db:"description"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	structureRow struct {
		ID             string    `db:"id"`
		SchoolID       string    `db:"school_id"`
		ClassID        string    `db:"class_id"`
		AcademicYearID string    `db:"academic_year_id"`
		CreatedAt      time.Time `db:"created_at"`
		UpdatedAt      time.Time `db:"updated_at"`
	}

	structureItemRow struct {
		StructureID string          `db:"fee_structure_id"`
		CategoryID  string          `db:"fee_category_id"`
		Amount      decimal.Decimal `db:"amount"`
	}

	paymentRow struct {
		ID             string          `db:"id"`
		SchoolID       string          `db:"school_id"`
		StudentID      string          `db:"student_id"`
		CategoryID     null.String     `db:"fee_category_id"`
		FeeTypeID      null.String     `db:"fee_type_id"`
		GroupID        null.String     `db:"fee_type_group_id"`
		InstallmentID  null.String     `db:"installment_id"`
		ClassID        null.String     `db:"class_id"`
		AssignedAmount decimal.Decimal `db:"assigned_amount"`
		PaidAmount     decimal.Decimal `db:"paid_amount"`
		Status         string          `db:"status"`
		DueDate        null.Time       `db:"due_date"`
		PaymentDate    null.Time       `db:"payment_date"`
		PaymentMode    null.String     `db:"payment_mode"`
		Notes          null.String     `db:"notes"`
		Version        int             `db:"version"`
		CreatedAt      time.Time       `db:"created_at"`
		UpdatedAt      time.Time       `db:"updated_at"`
	}

	keyRow struct {
		StudentID     string      `db:"student_id"`
		CategoryID    null.String `db:"fee_category_id"`
		FeeTypeID     null.String `db:"fee_type_id"`
		GroupID       null.String `db:"fee_type_group_id"`
		InstallmentID null.String `db:"installment_id"`
	}

	concessionRow struct {
		ID               string          `db:"id"`
		SchoolID         string          `db:"school_id"`
		StudentID        string          `db:"student_id"`
		PaymentID        string          `db:"fee_assignment_id"`
		ConcessionTypeID string          `db:"concession_type_id"`
		Amount           decimal.Decimal `db:"amount"`
		Actor            string          `db:"actor"`
		CreatedAt        time.Time       `db:"created_at"`
	}

	eventRow struct {
		ID             string          `db:"id"`
		SchoolID       string          `db:"school_id"`
		StudentID      string          `db:"student_id"`
		PaymentID      string          `db:"fee_assignment_id"`
		Kind           string          `db:"kind"`
		Amount         decimal.Decimal `db:"amount"`
		Excess         decimal.Decimal `db:"excess"`
		AssignedBefore decimal.Decimal `db:"assigned_before"`
		AssignedAfter  decimal.Decimal `db:"assigned_after"`
		PaidBefore     decimal.Decimal `db:"paid_before"`
		PaidAfter      decimal.Decimal `db:"paid_after"`
		PaymentMode    null.String     `db:"payment_mode"`
		Note           null.String     `db:"note"`
		Actor          string          `db:"actor"`
		CreatedAt      time.Time       `db:"created_at"`
	}
)

func boilCategory(cat fee.Category) categoryRow {
	return categoryRow{
		ID:          cat.ID,
		SchoolID:    cat.SchoolID,
		Name:        cat.Name,
		Description: null.StringFromPtr(cat.Description),
		CreatedAt:   cat.CreatedAt.UTC(),
		UpdatedAt:   cat.UpdatedAt.UTC(),
	}
}

func unboilCategory(row categoryRow) fee.Category {
	return fee.Category{
		ID:          row.ID,
		SchoolID:    row.SchoolID,
		Name:        row.Name,
		Description: row.Description.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func boilFeeType(ft fee.FeeType) feeTypeRow {
	return feeTypeRow{
		ID:              ft.ID,
		SchoolID:        ft.SchoolID,
		Name:            ft.Name,
		DisplayName:     ft.DisplayName,
		CategoryID:      ft.CategoryID,
		InstallmentType: string(ft.InstallmentType),
		IsRefundable:    ft.IsRefundable,
		DefaultAmount:   ft.DefaultAmount,
		Description:     null.StringFromPtr(ft.Description),
		CreatedAt:       ft.CreatedAt.UTC(),
		UpdatedAt:       ft.UpdatedAt.UTC(),
	}
}

func unboilFeeType(row feeTypeRow) fee.FeeType {
	return fee.FeeType{
		ID:              row.ID,
		SchoolID:        row.SchoolID,
		Name:            row.Name,
		DisplayName:     row.DisplayName,
		CategoryID:      row.CategoryID,
		InstallmentType: fee.InstallmentType(row.InstallmentType),
		IsRefundable:    row.IsRefundable,
		DefaultAmount:   row.DefaultAmount,
		Description:     row.Description.Ptr(),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func boilGroup(grp fee.Group) (groupRow, []groupItemRow) {
	items := make([]groupItemRow, 0, len(grp.FeeTypeIDs))
	for i, ftID := range grp.FeeTypeIDs {
		items = append(items, groupItemRow{GroupID: grp.ID, FeeTypeID: ftID, Position: i})
	}
	return groupRow{
		ID:        grp.ID,
		SchoolID:  grp.SchoolID,
		Name:      grp.Name,
		CreatedAt: grp.CreatedAt.UTC(),
		UpdatedAt: grp.UpdatedAt.UTC(),
	}, items
}

// unboilGroup expects items ordered by position.
func unboilGroup(row groupRow, items []groupItemRow) fee.Group {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.FeeTypeID)
	}
	return fee.Group{
		ID:         row.ID,
		SchoolID:   row.SchoolID,
		Name:       row.Name,
		FeeTypeIDs: ids,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func boilPlan(plan fee.Plan) planRow {
	return planRow{
		ID:          plan.ID,
		SchoolID:    plan.SchoolID,
		Title:       plan.Title,
		StartDate:   core.Date(plan.StartDate),
		EndDate:     core.Date(plan.EndDate),
		LastDate:    core.Date(plan.LastDate),
		Description: null.StringFromPtr(plan.Description),
		CreatedAt:   plan.CreatedAt.UTC(),
		UpdatedAt:   plan.UpdatedAt.UTC(),
	}
}

func unboilPlan(row planRow) fee.Plan {
	return fee.Plan{
		ID:          row.ID,
		SchoolID:    row.SchoolID,
		Title:       row.Title,
		StartDate:   core.Date(row.StartDate),
		EndDate:     core.Date(row.EndDate),
		LastDate:    core.Date(row.LastDate),
		Description: row.Description.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func boilConcessionType(ct fee.ConcessionType) concessionTypeRow {
	return concessionTypeRow{
		ID:          ct.ID,
		SchoolID:    ct.SchoolID,
		Title:       ct.Title,
		Description: null.StringFromPtr(ct.Description),
		CreatedAt:   ct.CreatedAt.UTC(),
		UpdatedAt:   ct.UpdatedAt.UTC(),
	}
}

func unboilConcessionType(row concessionTypeRow) fee.ConcessionType {
	return fee.ConcessionType{
		ID:          row.ID,
		SchoolID:    row.SchoolID,
		Title:       row.Title,
		Description: row.Description.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func boilStructure(st fee.Structure) (structureRow, []structureItemRow) {
	items := make([]structureItemRow, 0, len(st.Items))
	for catID, amt := range st.Items {
		items = append(items, structureItemRow{StructureID: st.ID, CategoryID: catID, Amount: amt})
	}
	return structureRow{
		ID:             st.ID,
		SchoolID:       st.SchoolID,
		ClassID:        st.ClassID,
		AcademicYearID: st.AcademicYearID,
		CreatedAt:      st.CreatedAt.UTC(),
		UpdatedAt:      st.UpdatedAt.UTC(),
	}, items
}

func unboilStructure(row structureRow, items []structureItemRow) fee.Structure {
	amts := make(map[string]decimal.Decimal, len(items))
	for _, it := range items {
		amts[it.CategoryID] = it.Amount
	}
	return fee.Structure{
		ID:             row.ID,
		SchoolID:       row.SchoolID,
		ClassID:        row.ClassID,
		AcademicYearID: row.AcademicYearID,
		Items:          amts,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func boilDate(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(core.Date(*t))
}

func unboilDate(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	d := core.Date(t.Time)
	return &d
}

func boilPayment(p fee.Payment) paymentRow {
	return paymentRow{
		ID:             p.ID,
		SchoolID:       p.SchoolID,
		StudentID:      p.StudentID,
		CategoryID:     null.StringFromPtr(p.CategoryID),
		FeeTypeID:      null.StringFromPtr(p.FeeTypeID),
		GroupID:        null.StringFromPtr(p.GroupID),
		InstallmentID:  null.StringFromPtr(p.InstallmentID),
		ClassID:        null.StringFromPtr(p.ClassID),
		AssignedAmount: p.AssignedAmount,
		PaidAmount:     p.PaidAmount,
		Status:         string(p.Status),
		DueDate:        boilDate(p.DueDate),
		PaymentDate:    boilDate(p.PaymentDate),
		PaymentMode:    null.StringFromPtr(p.PaymentMode),
		Notes:          null.StringFromPtr(p.Notes),
		Version:        p.Version,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func unboilPayment(row paymentRow) fee.Payment {
	return fee.Payment{
		ID:             row.ID,
		SchoolID:       row.SchoolID,
		StudentID:      row.StudentID,
		CategoryID:     row.CategoryID.Ptr(),
		FeeTypeID:      row.FeeTypeID.Ptr(),
		GroupID:        row.GroupID.Ptr(),
		InstallmentID:  row.InstallmentID.Ptr(),
		ClassID:        row.ClassID.Ptr(),
		AssignedAmount: row.AssignedAmount,
		PaidAmount:     row.PaidAmount,
		Status:         fee.Status(row.Status),
		DueDate:        unboilDate(row.DueDate),
		PaymentDate:    unboilDate(row.PaymentDate),
		PaymentMode:    row.PaymentMode.Ptr(),
		Notes:          row.Notes.Ptr(),
		Version:        row.Version,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func unboilPayments(rows []paymentRow) []fee.Payment {
	pmts := make([]fee.Payment, 0, len(rows))
	for _, row := range rows {
		pmts = append(pmts, unboilPayment(row))
	}
	return pmts
}

func unboilKey(row keyRow) fee.AssignmentKey {
	return fee.AssignmentKey{
		StudentID:     row.StudentID,
		CategoryID:    row.CategoryID.String,
		FeeTypeID:     row.FeeTypeID.String,
		GroupID:       row.GroupID.String,
		InstallmentID: row.InstallmentID.String,
	}
}

func boilConcession(c fee.Concession) concessionRow {
	return concessionRow{
		ID:               c.ID,
		SchoolID:         c.SchoolID,
		StudentID:        c.StudentID,
		PaymentID:        c.PaymentID,
		ConcessionTypeID: c.ConcessionTypeID,
		Amount:           c.Amount,
		Actor:            c.Actor,
		CreatedAt:        c.CreatedAt.UTC(),
	}
}

func unboilConcession(row concessionRow) fee.Concession {
	return fee.Concession{
		ID:               row.ID,
		SchoolID:         row.SchoolID,
		StudentID:        row.StudentID,
		PaymentID:        row.PaymentID,
		ConcessionTypeID: row.ConcessionTypeID,
		Amount:           row.Amount,
		Actor:            row.Actor,
		CreatedAt:        row.CreatedAt.UTC(),
	}
}

func boilEvent(e fee.LedgerEvent) eventRow {
	return eventRow{
		ID:             e.ID,
		SchoolID:       e.SchoolID,
		StudentID:      e.StudentID,
		PaymentID:      e.PaymentID,
		Kind:           string(e.Kind),
		Amount:         e.Amount,
		Excess:         e.Excess,
		AssignedBefore: e.AssignedBefore,
		AssignedAfter:  e.AssignedAfter,
		PaidBefore:     e.PaidBefore,
		PaidAfter:      e.PaidAfter,
		PaymentMode:    null.StringFromPtr(e.PaymentMode),
		Note:           null.StringFromPtr(e.Note),
		Actor:          e.Actor,
		CreatedAt:      e.CreatedAt.UTC(),
	}
}

func unboilEvent(row eventRow) fee.LedgerEvent {
	return fee.LedgerEvent{
		ID:             row.ID,
		SchoolID:       row.SchoolID,
		StudentID:      row.StudentID,
		PaymentID:      row.PaymentID,
		Kind:           fee.EventKind(row.Kind),
		Amount:         row.Amount,
		Excess:         row.Excess,
		AssignedBefore: row.AssignedBefore,
		AssignedAfter:  row.AssignedAfter,
		PaidBefore:     row.PaidBefore,
		PaidAfter:      row.PaidAfter,
		PaymentMode:    row.PaymentMode.Ptr(),
		Note:           row.Note.Ptr(),
		Actor:          row.Actor,
		CreatedAt:      row.CreatedAt.UTC(),
	}
}
