package fee

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entities, as named in errors and reference counts.
const (
	EntityCategory       = "fee_category"
	EntityFeeType        = "fee_type"
	EntityGroup          = "fee_type_group"
	EntityPlan           = "installment_plan"
	EntityConcessionType = "concession_type"
	EntityStructure      = "fee_structure"
	EntityPayment        = "fee_assignment"
	EntityStudent        = "student"
)

// Kinds of records blocking a catalog deletion.
const (
	RefPayments       = "fee_assignments"
	RefFeeTypes       = "fee_types"
	RefGroups         = "fee_type_groups"
	RefStructureItems = "fee_structures"
	RefConcessions    = "concessions"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
)

var Statuses = []Status{StatusPending, StatusPartiallyPaid, StatusPaid}

type InstallmentType string

const (
	InstallmentTypeInstallments InstallmentType = "installments"
	InstallmentTypeExtraCharge  InstallmentType = "extra_charge"
)

type Category struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type FeeType struct {
	ID              string          `json:"id"`
	SchoolID        string          `json:"school_id"`
	Name            string          `json:"name"`
	DisplayName     string          `json:"display_name"`
	CategoryID      string          `json:"fee_category_id"`
	InstallmentType InstallmentType `json:"installment_type"`
	IsRefundable    bool            `json:"is_refundable"`
	DefaultAmount   decimal.Decimal `json:"default_amount"`
	Description     *string         `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Group is a bundle of fee types assignable together.
type Group struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"school_id"`
	Name       string    `json:"name"`
	FeeTypeIDs []string  `json:"fee_type_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Plan is an installment plan: a billing window with its own final due date.
type Plan struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	Title       string    `json:"title"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	LastDate    time.Time `json:"last_date"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ConcessionType struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Structure is the per class and academic year template of amounts by fee category.
type Structure struct {
	ID             string                     `json:"id"`
	SchoolID       string                     `json:"school_id"`
	ClassID        string                     `json:"class_id"`
	AcademicYearID string                     `json:"academic_year_id"`
	Items          map[string]decimal.Decimal `json:"structure"` // {fee category ID: amount}
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Payment is a ledger row: a single charge owed by one student, and what was paid against it.
type Payment struct {
	ID             string          `json:"id"`
	SchoolID       string          `json:"school_id"`
	StudentID      string          `json:"student_id"`
	CategoryID     *string         `json:"fee_category_id"`
	FeeTypeID      *string         `json:"fee_type_id"`
	GroupID        *string         `json:"fee_type_group_id"`
	InstallmentID  *string         `json:"installment_id"`
	ClassID        *string         `json:"class_id"`
	AssignedAmount decimal.Decimal `json:"assigned_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Status         Status          `json:"status"`
	DueDate        *time.Time      `json:"due_date"`
	PaymentDate    *time.Time      `json:"payment_date"`
	PaymentMode    *string         `json:"payment_mode"`
	Notes          *string         `json:"notes"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Due is what is left to pay on the row.
func (p Payment) Due() decimal.Decimal {
	return p.AssignedAmount.Sub(p.PaidAmount)
}

// Key identifies the charge for duplicate detection.
func (p Payment) Key() AssignmentKey {
	return AssignmentKey{
		StudentID:     p.StudentID,
		CategoryID:    deref(p.CategoryID),
		FeeTypeID:     deref(p.FeeTypeID),
		GroupID:       deref(p.GroupID),
		InstallmentID: deref(p.InstallmentID),
	}
}

// AssignmentKey is (student, catalog reference, installment); empty strings stand for unset references.
type AssignmentKey struct {
	StudentID     string
	CategoryID    string
	FeeTypeID     string
	GroupID       string
	InstallmentID string
}

// Concession is the append-only audit record of a discount applied to a ledger row.
type Concession struct {
	ID               string          `json:"id"`
	SchoolID         string          `json:"school_id"`
	StudentID        string          `json:"student_id"`
	PaymentID        string          `json:"fee_assignment_id"`
	ConcessionTypeID string          `json:"concession_type_id"`
	Amount           decimal.Decimal `json:"amount"`
	Actor            string          `json:"actor"`
	CreatedAt        time.Time       `json:"created_at"`
}

type EventKind string

const (
	EventAssigned   EventKind = "assigned"
	EventPayment    EventKind = "payment"
	EventConcession EventKind = "concession"
	EventAdjustment EventKind = "adjustment"
	EventDeleted    EventKind = "deleted"
)

// LedgerEvent is the append-only trail of every mutation of a ledger row. Events outlive the row.
type LedgerEvent struct {
	ID             string          `json:"id"`
	SchoolID       string          `json:"school_id"`
	StudentID      string          `json:"student_id"`
	PaymentID      string          `json:"fee_assignment_id"`
	Kind           EventKind       `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Excess         decimal.Decimal `json:"excess"`
	AssignedBefore decimal.Decimal `json:"assigned_before"`
	AssignedAfter  decimal.Decimal `json:"assigned_after"`
	PaidBefore     decimal.Decimal `json:"paid_before"`
	PaidAfter      decimal.Decimal `json:"paid_after"`
	PaymentMode    *string         `json:"payment_mode"`
	Note           *string         `json:"note"`
	Actor          string          `json:"actor"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PaymentFilter applies AND on its set fields. SchoolID is mandatory.
type PaymentFilter struct {
	SchoolID      string
	StudentIDs    []string
	ClassID       string
	CategoryID    string
	FeeTypeID     string
	GroupID       string
	InstallmentID string
	Statuses      []Status
	DueBefore     *time.Time
}

// PaymentOrderings maps API ordering fields to columns.
var PaymentOrderings = map[string]string{
	"created_at":      "created_at",
	"due_date":        "due_date",
	"payment_date":    "payment_date",
	"assigned_amount": "assigned_amount",
	"paid_amount":     "paid_amount",
	"status":          "status",
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
