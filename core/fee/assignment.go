package fee

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

// DefaultChunkSize is the number of students assigned per transaction.
const DefaultChunkSize = 200

type TargetMode string

const (
	// TargetStudents charges an explicit list of students.
	TargetStudents TargetMode = "students"
	// TargetClass charges the current roster of a class.
	TargetClass TargetMode = "class"
	// TargetGroupHolders charges the students of a class already holding rows of a fee type group.
	TargetGroupHolders TargetMode = "group_holders"
)

// skip reasons
const (
	SkipDuplicate     = "duplicate"
	SkipNotInSchool   = "student not found in school"
	SkipNoAmount      = "no amount resolved for fee category"
	SkipMissingMember = "fee type of the group not found"
	SkipZeroAmount    = "zero amount"
)

type (
	AssignInput struct {
		Target        TargetMode `json:"target" validate:"required,oneof=students class group_holders"`
		StudentIDs    []string   `json:"student_ids" validate:"omitempty,dive,required"`
		ClassID       string     `json:"class_id"`
		TargetGroupID string     `json:"target_group_id"`

		// catalog reference: one of FeeTypeID, GroupID or CategoryIDs (with an installment)
		FeeTypeID     string   `json:"fee_type_id"`
		GroupID       string   `json:"fee_type_group_id"`
		CategoryIDs   []string `json:"fee_category_ids" validate:"omitempty,unique,dive,required"`
		InstallmentID string   `json:"installment_id"`

		// amount rule: Overrides by fee type or category id, then Amount (not for groups), then the
		// fee type default or the class fee structure for AcademicYearID
		Amount         *decimal.Decimal           `json:"amount" validate:"omitempty,gte=0"`
		Overrides      map[string]decimal.Decimal `json:"overrides" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
		AcademicYearID string                     `json:"academic_year_id"`

		DueDate         *time.Time `json:"due_date"`
		AllowDuplicates bool       `json:"allow_duplicates"`
		Actor           core.Actor `json:"-"`
	}

	AssignSkip struct {
		StudentID string `json:"student_id"`
		Reference string `json:"reference"`
		Reason    string `json:"reason"`
	}

	AssignResult struct {
		Created  int          `json:"created"`
		Skipped  int          `json:"skipped"`
		Skips    []AssignSkip `json:"skips"`
		Payments []Payment    `json:"payments"`
	}

	// line is one charge to materialize for every target student.
	line struct {
		ref        string
		categoryID string
		feeTypeID  string
		groupID    string
		amount     decimal.Decimal
		failure    string // set when the line cannot be charged
	}
)

func (in *AssignInput) Validate() error {
	in.StudentIDs = cleanIDs(in.StudentIDs)
	in.CategoryIDs = cleanIDs(in.CategoryIDs)
	in.ClassID = core.CleanString(in.ClassID)
	in.TargetGroupID = core.CleanString(in.TargetGroupID)
	in.FeeTypeID = core.CleanString(in.FeeTypeID)
	in.GroupID = core.CleanString(in.GroupID)
	in.InstallmentID = core.CleanString(in.InstallmentID)
	in.AcademicYearID = core.CleanString(in.AcademicYearID)
	if err := core.ValidateStruct(in); err != nil {
		return err
	}

	var flds []core.FieldError
	switch in.Target {
	case TargetStudents:
		if len(in.StudentIDs) == 0 {
			flds = append(flds, core.FieldError{Field: "student_ids", Error: "at least one student is required"})
		}
	case TargetClass:
		if in.ClassID == "" {
			flds = append(flds, core.FieldError{Field: "class_id", Error: "this field is required"})
		}
	case TargetGroupHolders:
		if in.ClassID == "" {
			flds = append(flds, core.FieldError{Field: "class_id", Error: "this field is required"})
		}
		if in.TargetGroupID == "" {
			flds = append(flds, core.FieldError{Field: "target_group_id", Error: "this field is required"})
		}
	}

	var refs int
	for _, set := range []bool{in.FeeTypeID != "", in.GroupID != "", len(in.CategoryIDs) > 0} {
		if set {
			refs++
		}
	}
	if refs != 1 {
		flds = append(flds, core.FieldError{
			Field: "fee_type_id", Error: "exactly one of fee_type_id, fee_type_group_id or fee_category_ids is required",
		})
	}
	if in.GroupID != "" && in.Amount != nil {
		flds = append(flds, core.FieldError{Field: "amount", Error: "not allowed with fee_type_group_id, use overrides"})
	}
	if len(in.CategoryIDs) > 0 && in.InstallmentID == "" {
		flds = append(flds, core.FieldError{Field: "installment_id", Error: "this field is required with fee_category_ids"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}

	if in.Amount != nil {
		if err := checkAmount("amount", *in.Amount, false); err != nil {
			return err
		}
	}
	for id, amt := range in.Overrides {
		if err := checkAmount("overrides["+id+"]", amt, false); err != nil {
			return err
		}
	}
	return nil
}

// AssignmentService turns catalog selections into ledger rows.
type AssignmentService struct {
	store     Store
	roster    RosterProvider
	logger    core.Logger
	metrics   Metrics
	chunkSize int
}

func NewAssignmentService(store Store, roster RosterProvider, logger core.Logger, metrics Metrics, chunkSize int) *AssignmentService {
	if metrics == nil {
		metrics = NopMetrics
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &AssignmentService{store: store, roster: roster, logger: logger, metrics: metrics, chunkSize: chunkSize}
}

// AssignToStudents creates one row per target student and resolved charge.
// Failures are isolated per student (and per chunk); they are reported as skips.
// Unless AllowDuplicates is set, a charge whose key already exists in the ledger is skipped as a duplicate.
func (svc *AssignmentService) AssignToStudents(ctx context.Context, schoolID string, in AssignInput) (AssignResult, error) {
	start := time.Now()
	defer func() { svc.metrics.ObserveOperation(OpAssign, time.Since(start)) }()

	if err := checkSchool(schoolID); err != nil {
		return AssignResult{}, err
	}
	if err := in.Validate(); err != nil {
		return AssignResult{}, err
	}

	res := AssignResult{Skips: []AssignSkip{}, Payments: []Payment{}}

	lines, err := svc.resolveLines(ctx, schoolID, in)
	if err != nil {
		return AssignResult{}, errors.Wrap(err, "resolving fee assignment")
	}
	dueDate, err := svc.resolveDueDate(ctx, schoolID, in)
	if err != nil {
		return AssignResult{}, errors.Wrap(err, "resolving fee assignment")
	}
	students, err := svc.resolveTargets(ctx, schoolID, in, &res)
	if err != nil {
		return AssignResult{}, errors.Wrap(err, "resolving target students")
	}

	for lo := 0; lo < len(students); lo += svc.chunkSize {
		hi := lo + svc.chunkSize
		if hi > len(students) {
			hi = len(students)
		}
		svc.assignChunk(ctx, schoolID, in, students[lo:hi], lines, dueDate, &res)
	}

	res.Created = len(res.Payments)
	res.Skipped = len(res.Skips)
	svc.metrics.AssignmentRows(res.Created, res.Skipped)
	svc.logger.Info("fees assigned", in.Actor, map[string]interface{}{
		"school_id": schoolID, "target": in.Target, "students": len(students),
		"created": res.Created, "skipped": res.Skipped,
	})
	return res, nil
}

// assignChunk inserts the rows of a few students in one transaction. A failed chunk is reported as skips.
func (svc *AssignmentService) assignChunk(
	ctx context.Context, schoolID string, in AssignInput, students []string, lines []line, dueDate *time.Time, res *AssignResult,
) {
	var (
		created []Payment
		skips   []AssignSkip
	)
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		created, skips = nil, nil

		if err := repo.LockAssignments(ctx, schoolID); err != nil {
			return err
		}
		existing := make(map[AssignmentKey]bool)
		if !in.AllowDuplicates {
			keys, err := repo.AssignmentKeys(ctx, schoolID, students)
			if err != nil {
				return err
			}
			for _, k := range keys {
				existing[k] = true
			}
		}

		now := core.NowFunc()
		for _, studentID := range students {
			for _, ln := range lines {
				if ln.failure != "" {
					skips = append(skips, AssignSkip{StudentID: studentID, Reference: ln.ref, Reason: ln.failure})
					continue
				}
				p := Payment{
					SchoolID:       schoolID,
					StudentID:      studentID,
					CategoryID:     strPtr(ln.categoryID),
					FeeTypeID:      strPtr(ln.feeTypeID),
					GroupID:        strPtr(ln.groupID),
					InstallmentID:  strPtr(in.InstallmentID),
					ClassID:        strPtr(in.ClassID),
					AssignedAmount: ln.amount,
					PaidAmount:     decimal.Zero,
					Status:         DeriveStatus(ln.amount, decimal.Zero),
					DueDate:        dueDate,
					CreatedAt:      now,
					UpdatedAt:      now,
				}
				key := p.Key()
				if !in.AllowDuplicates && existing[key] {
					skips = append(skips, AssignSkip{StudentID: studentID, Reference: ln.ref, Reason: SkipDuplicate})
					continue
				}

				p, err := repo.CreatePayment(ctx, p)
				if err != nil {
					return err
				}
				_, err = repo.CreateEvent(ctx, LedgerEvent{
					SchoolID:      schoolID,
					StudentID:     studentID,
					PaymentID:     p.ID,
					Kind:          EventAssigned,
					Amount:        p.AssignedAmount,
					AssignedAfter: p.AssignedAmount,
					Actor:         in.Actor.String(),
					CreatedAt:     now,
				})
				if err != nil {
					return err
				}
				existing[key] = true
				created = append(created, p)
			}
		}
		return nil
	})
	if err != nil {
		svc.logger.Error("fee assignment chunk failed", err, in.Actor, map[string]interface{}{
			"school_id": schoolID, "students": len(students),
		})
		if core.IsConflict(err) {
			svc.metrics.Conflict(OpAssign)
		}
		for _, studentID := range students {
			for _, ln := range lines {
				res.Skips = append(res.Skips, AssignSkip{StudentID: studentID, Reference: ln.ref, Reason: errors.Cause(err).Error()})
			}
		}
		return
	}
	res.Payments = append(res.Payments, created...)
	res.Skips = append(res.Skips, skips...)
}

// resolveLines looks up the catalog reference once and computes the charge of each resolved line.
// Group members resolving to zero are not materialized; any other zero line is reported as a skip.
func (svc *AssignmentService) resolveLines(ctx context.Context, schoolID string, in AssignInput) ([]line, error) {
	override := func(id string) (decimal.Decimal, bool) {
		if amt, ok := in.Overrides[id]; ok {
			return amt, true
		}
		if in.Amount != nil {
			return *in.Amount, true
		}
		return decimal.Zero, false
	}

	var lines []line
	keep := func(ln line) {
		switch {
		case ln.failure != "" || ln.amount.IsPositive():
			lines = append(lines, ln)
		case ln.groupID == "":
			ln.failure = SkipZeroAmount
			lines = append(lines, ln)
		}
	}

	switch {
	case in.FeeTypeID != "":
		ft, err := svc.store.GetFeeType(ctx, schoolID, in.FeeTypeID)
		if err != nil {
			return nil, refError(err, "fee_type_id")
		}
		amt, ok := override(ft.ID)
		if !ok {
			amt = ft.DefaultAmount
		}
		keep(line{ref: EntityFeeType + ":" + ft.ID, categoryID: ft.CategoryID, feeTypeID: ft.ID, amount: amt})

	case in.GroupID != "":
		grp, err := svc.store.GetGroup(ctx, schoolID, in.GroupID)
		if err != nil {
			return nil, refError(err, "fee_type_group_id")
		}
		for _, ftID := range grp.FeeTypeIDs {
			ln := line{ref: EntityFeeType + ":" + ftID, feeTypeID: ftID, groupID: grp.ID}
			ft, err := svc.store.GetFeeType(ctx, schoolID, ftID)
			switch {
			case core.IsNotFound(err):
				ln.failure = SkipMissingMember
			case err != nil:
				return nil, err
			default:
				ln.categoryID = ft.CategoryID
				if amt, ok := in.Overrides[ft.ID]; ok {
					ln.amount = amt
				} else {
					ln.amount = ft.DefaultAmount
				}
			}
			keep(ln)
		}

	default:
		var st *Structure
		if in.ClassID != "" && in.AcademicYearID != "" {
			found, err := svc.store.GetStructureFor(ctx, schoolID, in.ClassID, in.AcademicYearID)
			switch {
			case err == nil:
				st = &found
			case !core.IsNotFound(err):
				return nil, err
			}
		}
		for _, catID := range in.CategoryIDs {
			if _, err := svc.store.GetCategory(ctx, schoolID, catID); err != nil {
				return nil, refError(err, "fee_category_ids")
			}
			ln := line{ref: EntityCategory + ":" + catID, categoryID: catID}
			if amt, ok := override(catID); ok {
				ln.amount = amt
			} else if amt, ok := structureAmount(st, catID); ok {
				ln.amount = amt
			} else {
				ln.failure = SkipNoAmount
			}
			keep(ln)
		}
	}
	return lines, nil
}

func structureAmount(st *Structure, categoryID string) (decimal.Decimal, bool) {
	if st == nil {
		return decimal.Zero, false
	}
	amt, ok := st.Items[categoryID]
	return amt, ok
}

// resolveDueDate defaults to the last date of the installment plan.
func (svc *AssignmentService) resolveDueDate(ctx context.Context, schoolID string, in AssignInput) (*time.Time, error) {
	var due *time.Time
	if in.InstallmentID != "" {
		plan, err := svc.store.GetPlan(ctx, schoolID, in.InstallmentID)
		if err != nil {
			return nil, refError(err, "installment_id")
		}
		last := plan.LastDate
		due = &last
	}
	if in.DueDate != nil {
		d := core.Date(*in.DueDate)
		due = &d
	}
	return due, nil
}

// resolveTargets snapshots the target students. Explicit students outside the school are skipped.
func (svc *AssignmentService) resolveTargets(ctx context.Context, schoolID string, in AssignInput, res *AssignResult) ([]string, error) {
	switch in.Target {
	case TargetClass:
		return svc.roster.ActiveStudents(ctx, schoolID, in.ClassID)
	case TargetGroupHolders:
		if _, err := svc.store.GetGroup(ctx, schoolID, in.TargetGroupID); err != nil {
			return nil, refError(err, "target_group_id")
		}
		return svc.store.StudentsWithGroup(ctx, schoolID, in.ClassID, in.TargetGroupID)
	}

	ids := uniqueIDs(in.StudentIDs)
	found, err := svc.roster.StudentsInSchool(ctx, schoolID, ids)
	if err != nil {
		return nil, err
	}
	enrolled := make(map[string]bool, len(found))
	for _, id := range found {
		enrolled[id] = true
	}
	students := make([]string, 0, len(ids))
	for _, id := range ids {
		if !enrolled[id] {
			res.Skips = append(res.Skips, AssignSkip{StudentID: id, Reference: EntityStudent + ":" + id, Reason: SkipNotInSchool})
			continue
		}
		students = append(students, id)
	}
	return students, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	return uniq
}
