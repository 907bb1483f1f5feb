package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	logsvc "github.com/trezcool/feeledger/services/logger"
	inmemdb "github.com/trezcool/feeledger/storage/database/inmem"
)

// Services bundles the ledger services over a fresh in-memory store.
type Services struct {
	DB         *inmemdb.DB
	Catalog    *fee.CatalogService
	Assignment *fee.AssignmentService
	Ledger     *fee.LedgerService
	Query      *fee.QueryService
}

func NewServices(chunkSize ...int) Services {
	size := fee.DefaultChunkSize
	if len(chunkSize) > 0 {
		size = chunkSize[0]
	}
	db := inmemdb.Open()
	logger := logsvc.NewNopLogger()
	return Services{
		DB:         db,
		Catalog:    fee.NewCatalogService(db, logger),
		Assignment: fee.NewAssignmentService(db, db, logger, fee.NopMetrics, size),
		Ledger:     fee.NewLedgerService(db, logger, fee.NopMetrics),
		Query:      fee.NewQueryService(db),
	}
}

func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func AmountPtr(s string) *decimal.Decimal {
	d := Amount(s)
	return &d
}

func StrPtr(s string) *string {
	return &s
}

func NewID() string {
	return uuid.New().String()
}

// AddStudents enrolls active students in a class and returns their ids.
func AddStudents(db *inmemdb.DB, schoolID, classID string, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := NewID()
		db.AddStudent(inmemdb.Student{ID: id, SchoolID: schoolID, ClassID: classID, IsActive: true})
		ids = append(ids, id)
	}
	return ids
}

func CreateCategory(t *testing.T, svc *fee.CatalogService, schoolID, name string) fee.Category {
	cat, err := svc.CreateCategory(context.Background(), schoolID, fee.NewCategory{Name: name})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}

func CreateFeeType(t *testing.T, svc *fee.CatalogService, schoolID, categoryID, name, defaultAmount string) fee.FeeType {
	ft, err := svc.CreateFeeType(context.Background(), schoolID, fee.NewFeeType{
		Name:            name,
		DisplayName:     name,
		CategoryID:      categoryID,
		InstallmentType: fee.InstallmentTypeInstallments,
		DefaultAmount:   Amount(defaultAmount),
	})
	if err != nil {
		t.Fatalf("CreateFeeType() failed: %v", err)
	}
	return ft
}

func CreateGroup(t *testing.T, svc *fee.CatalogService, schoolID, name string, feeTypeIDs ...string) fee.Group {
	grp, err := svc.CreateGroup(context.Background(), schoolID, fee.NewGroup{Name: name, FeeTypeIDs: feeTypeIDs})
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return grp
}

func CreatePlan(t *testing.T, svc *fee.CatalogService, schoolID, title string, start, end, last time.Time) fee.Plan {
	plan, err := svc.CreatePlan(context.Background(), schoolID, fee.NewPlan{
		Title: title, StartDate: start, EndDate: end, LastDate: last,
	})
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	return plan
}

func CreateConcessionType(t *testing.T, svc *fee.CatalogService, schoolID, title string) fee.ConcessionType {
	ct, err := svc.CreateConcessionType(context.Background(), schoolID, fee.NewConcessionType{Title: title})
	if err != nil {
		t.Fatalf("CreateConcessionType() failed: %v", err)
	}
	return ct
}

// CreatePayment inserts a pending ledger row for a fee type directly in the store.
func CreatePayment(t *testing.T, repo fee.Repository, schoolID, studentID, feeTypeID, assigned string) fee.Payment {
	now := core.NowFunc()
	amt := Amount(assigned)
	p, err := repo.CreatePayment(context.Background(), fee.Payment{
		SchoolID:       schoolID,
		StudentID:      studentID,
		FeeTypeID:      &feeTypeID,
		AssignedAmount: amt,
		PaidAmount:     decimal.Zero,
		Status:         fee.DeriveStatus(amt, decimal.Zero),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreatePayment() failed: %v", err)
	}
	return p
}
