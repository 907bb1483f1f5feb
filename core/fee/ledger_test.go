package fee_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	testutil "github.com/trezcool/feeledger/tests"
)

const schoolID = "school-s"

var ctx = context.Background()

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, testutil.Amount(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

// setupRow creates a fee type in the school and a pending row of `assigned` for a new student.
func setupRow(t *testing.T, svcs testutil.Services, assigned string) fee.Payment {
	t.Helper()
	cat := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Tuition")
	ft := testutil.CreateFeeType(t, svcs.Catalog, schoolID, cat.ID, "Monthly Tuition", "0")
	return testutil.CreatePayment(t, svcs.DB, schoolID, testutil.NewID(), ft.ID, assigned)
}

func TestLedger_TuitionScenario(t *testing.T) {
	svcs := testutil.NewServices()
	cat := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Tuition")
	ft := testutil.CreateFeeType(t, svcs.Catalog, schoolID, cat.ID, "Monthly Tuition", "0")
	concession := testutil.CreateConcessionType(t, svcs.Catalog, schoolID, "Sibling discount")
	studentA := testutil.AddStudents(svcs.DB, schoolID, "class-1", 1)[0]

	res, err := svcs.Assignment.AssignToStudents(ctx, schoolID, fee.AssignInput{
		Target:     fee.TargetStudents,
		StudentIDs: []string{studentA},
		FeeTypeID:  ft.ID,
		Amount:     testutil.AmountPtr("5000"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	row := res.Payments[0]
	assertAmount(t, "5000", row.AssignedAmount)
	assertAmount(t, "0", row.PaidAmount)
	assert.Equal(t, fee.StatusPending, row.Status)

	paid, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("2000")})
	require.NoError(t, err)
	assertAmount(t, "2000", paid.Payment.PaidAmount)
	assert.Equal(t, fee.StatusPartiallyPaid, paid.Payment.Status)
	assert.False(t, paid.Clamped)

	conc, err := svcs.Ledger.ApplyConcession(ctx, schoolID, row.ID, fee.ConcessionInput{
		ConcessionTypeID: concession.ID,
		Amount:           testutil.Amount("1000"),
	})
	require.NoError(t, err)
	assertAmount(t, "4000", conc.Payment.AssignedAmount)
	assertAmount(t, "2000", conc.Payment.PaidAmount)
	assert.Equal(t, fee.StatusPartiallyPaid, conc.Payment.Status)
	assertAmount(t, "1000", conc.Concession.Amount)

	clamped, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("5000")})
	require.NoError(t, err)
	assertAmount(t, "4000", clamped.Payment.PaidAmount)
	assertAmount(t, "4000", clamped.Payment.AssignedAmount)
	assert.Equal(t, fee.StatusPaid, clamped.Payment.Status)
	assert.True(t, clamped.Clamped)
	assertAmount(t, "2000", clamped.Applied)
	assertAmount(t, "3000", clamped.Excess)

	evts, err := svcs.Query.Events(ctx, schoolID, row.ID)
	require.NoError(t, err)
	kinds := make([]fee.EventKind, 0, len(evts))
	for _, e := range evts {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []fee.EventKind{fee.EventAssigned, fee.EventPayment, fee.EventConcession, fee.EventPayment}, kinds)

	concs, err := svcs.Query.Concessions(ctx, schoolID, row.ID)
	require.NoError(t, err)
	assert.Len(t, concs, 1)
}

func TestLedger_RecordPayment_NeverExceedsAssigned(t *testing.T) {
	sequences := map[string][]string{
		"exact":          {"50"},
		"under":          {"10", "10"},
		"over in one":    {"80"},
		"over over time": {"30", "30", "30"},
		"cents":          {"0.01", "49.98", "0.02"},
	}
	for name, amounts := range sequences {
		t.Run(name, func(t *testing.T) {
			svcs := testutil.NewServices()
			row := setupRow(t, svcs, "50")
			for _, amt := range amounts {
				res, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount(amt)})
				require.NoError(t, err)
				p := res.Payment
				assert.True(t, p.PaidAmount.LessThanOrEqual(p.AssignedAmount))
				assert.Equal(t, fee.DeriveStatus(p.AssignedAmount, p.PaidAmount), p.Status)
				assert.NoError(t, p.CheckInvariants())
			}
		})
	}
}

func TestLedger_RecordPayment_OrderIndependent(t *testing.T) {
	for name, amounts := range map[string][]string{"30 then 20": {"30", "20"}, "20 then 30": {"20", "30"}} {
		t.Run(name, func(t *testing.T) {
			svcs := testutil.NewServices()
			row := setupRow(t, svcs, "50")
			for _, amt := range amounts {
				_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount(amt)})
				require.NoError(t, err)
			}
			p, err := svcs.Query.Payment(ctx, schoolID, row.ID)
			require.NoError(t, err)
			assertAmount(t, "50", p.PaidAmount)
			assert.Equal(t, fee.StatusPaid, p.Status)
		})
	}
}

func TestLedger_RecordPayment_Concurrent(t *testing.T) {
	svcs := testutil.NewServices()
	row := setupRow(t, svcs, "50")

	var wg sync.WaitGroup
	for _, amt := range []string{"30", "20"} {
		wg.Add(1)
		go func(amt string) {
			defer wg.Done()
			_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount(amt)})
			assert.NoError(t, err)
		}(amt)
	}
	wg.Wait()

	p, err := svcs.Query.Payment(ctx, schoolID, row.ID)
	require.NoError(t, err)
	assertAmount(t, "50", p.PaidAmount)
	assert.Equal(t, fee.StatusPaid, p.Status)
}

func TestLedger_RecordPayment_ManyConcurrentPayments(t *testing.T) {
	svcs := testutil.NewServices()
	row := setupRow(t, svcs, "100")

	const n = 60
	var wg sync.WaitGroup
	var mu sync.Mutex
	excess := decimal.Zero
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("2")})
			if assert.NoError(t, err) {
				mu.Lock()
				excess = excess.Add(res.Excess)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, err := svcs.Query.Payment(ctx, schoolID, row.ID)
	require.NoError(t, err)
	assertAmount(t, "100", p.PaidAmount)
	assertAmount(t, "20", excess, "no payment is lost: applied + excess == requested")
	assert.Equal(t, n+1, p.Version)
}

func TestLedger_RecordPayment_Errors(t *testing.T) {
	svcs := testutil.NewServices()
	row := setupRow(t, svcs, "50")

	tests := []struct {
		name     string
		schoolID string
		id       string
		amount   string
		check    func(t *testing.T, err error)
	}{
		{
			name: "zero amount", schoolID: schoolID, id: row.ID, amount: "0",
			check: func(t *testing.T, err error) {
				var amtErr *core.InvalidAmountError
				assert.ErrorAs(t, err, &amtErr)
			},
		},
		{
			name: "negative amount", schoolID: schoolID, id: row.ID, amount: "-10",
			check: func(t *testing.T, err error) {
				var amtErr *core.InvalidAmountError
				assert.ErrorAs(t, err, &amtErr)
			},
		},
		{
			name: "unknown row", schoolID: schoolID, id: testutil.NewID(), amount: "10",
			check: func(t *testing.T, err error) { assert.True(t, core.IsNotFound(err)) },
		},
		{
			name: "row of another school", schoolID: "school-t", id: row.ID, amount: "10",
			check: func(t *testing.T, err error) { assert.True(t, core.IsNotFound(err)) },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svcs.Ledger.RecordPayment(ctx, tc.schoolID, tc.id, fee.PaymentInput{Amount: testutil.Amount(tc.amount)})
			require.Error(t, err)
			tc.check(t, err)
		})
	}

	p, err := svcs.Query.Payment(ctx, schoolID, row.ID)
	require.NoError(t, err)
	assertAmount(t, "0", p.PaidAmount)
	assert.Equal(t, row.Version, p.Version)
}

func TestLedger_RecordPayment_Details(t *testing.T) {
	svcs := testutil.NewServices()
	row := setupRow(t, svcs, "50")
	day1 := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
	day2 := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{
		Amount: testutil.Amount("10"), Date: day1, Mode: testutil.StrPtr("cash"), Note: testutil.StrPtr("first"),
	})
	require.NoError(t, err)
	res, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{
		Amount: testutil.Amount("15"), Date: day2, Mode: testutil.StrPtr("online"), Note: testutil.StrPtr("second"),
	})
	require.NoError(t, err)

	p := res.Payment
	require.NotNil(t, p.PaymentDate)
	assert.Equal(t, day2, *p.PaymentDate)
	assert.Equal(t, "online", *p.PaymentMode)
	assert.Equal(t, "2024-03-01: first\n2024-03-09: second", *p.Notes)
}

func TestLedger_ApplyConcession(t *testing.T) {
	t.Run("exact due drives status to paid", func(t *testing.T) {
		svcs := testutil.NewServices()
		ct := testutil.CreateConcessionType(t, svcs.Catalog, schoolID, "Scholarship")
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("20")})
		require.NoError(t, err)

		res, err := svcs.Ledger.ApplyConcession(ctx, schoolID, row.ID, fee.ConcessionInput{
			ConcessionTypeID: ct.ID, Amount: testutil.Amount("30"),
		})
		require.NoError(t, err)
		assert.Equal(t, fee.StatusPaid, res.Payment.Status)
		assert.True(t, res.Payment.AssignedAmount.Equal(res.Payment.PaidAmount))
	})

	t.Run("full waiver of a pending row", func(t *testing.T) {
		svcs := testutil.NewServices()
		ct := testutil.CreateConcessionType(t, svcs.Catalog, schoolID, "Scholarship")
		row := setupRow(t, svcs, "50")

		res, err := svcs.Ledger.ApplyConcession(ctx, schoolID, row.ID, fee.ConcessionInput{
			ConcessionTypeID: ct.ID, Amount: testutil.Amount("50"),
		})
		require.NoError(t, err)
		assertAmount(t, "0", res.Payment.AssignedAmount)
		assert.Equal(t, fee.StatusPaid, res.Payment.Status)
	})

	t.Run("more than due is rejected and changes nothing", func(t *testing.T) {
		svcs := testutil.NewServices()
		ct := testutil.CreateConcessionType(t, svcs.Catalog, schoolID, "Scholarship")
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("20")})
		require.NoError(t, err)

		_, err = svcs.Ledger.ApplyConcession(ctx, schoolID, row.ID, fee.ConcessionInput{
			ConcessionTypeID: ct.ID, Amount: testutil.Amount("30.01"),
		})
		var dueErr *core.ExceedsDueError
		require.ErrorAs(t, err, &dueErr)
		assertAmount(t, "30", dueErr.Due)

		p, err := svcs.Query.Payment(ctx, schoolID, row.ID)
		require.NoError(t, err)
		assertAmount(t, "50", p.AssignedAmount)
		assertAmount(t, "20", p.PaidAmount)
		concs, err := svcs.Query.Concessions(ctx, schoolID, row.ID)
		require.NoError(t, err)
		assert.Empty(t, concs)
	})

	t.Run("unknown concession type", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.ApplyConcession(ctx, schoolID, row.ID, fee.ConcessionInput{
			ConcessionTypeID: testutil.NewID(), Amount: testutil.Amount("10"),
		})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("non positive amount", func(t *testing.T) {
		svcs := testutil.NewServices()
		ct := testutil.CreateConcessionType(t, svcs.Catalog, schoolID, "Scholarship")
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.ApplyConcession(ctx, schoolID, row.ID, fee.ConcessionInput{
			ConcessionTypeID: ct.ID, Amount: testutil.Amount("0"),
		})
		var amtErr *core.InvalidAmountError
		assert.ErrorAs(t, err, &amtErr)
	})
}

func TestLedger_EditAssignment(t *testing.T) {
	t.Run("below paid is rejected", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("30")})
		require.NoError(t, err)

		_, err = svcs.Ledger.EditAssignment(ctx, schoolID, row.ID, fee.EditInput{AssignedAmount: testutil.AmountPtr("25")})
		var amtErr *core.InvalidAmountError
		require.ErrorAs(t, err, &amtErr)

		p, err := svcs.Query.Payment(ctx, schoolID, row.ID)
		require.NoError(t, err)
		assertAmount(t, "50", p.AssignedAmount)
	})

	t.Run("negative is rejected", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.EditAssignment(ctx, schoolID, row.ID, fee.EditInput{AssignedAmount: testutil.AmountPtr("-1")})
		var amtErr *core.InvalidAmountError
		assert.ErrorAs(t, err, &amtErr)
	})

	t.Run("empty edit", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.EditAssignment(ctx, schoolID, row.ID, fee.EditInput{})
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("reopens a paid row", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("50")})
		require.NoError(t, err)

		res, err := svcs.Ledger.EditAssignment(ctx, schoolID, row.ID, fee.EditInput{
			AssignedAmount: testutil.AmountPtr("70"), Reason: testutil.StrPtr("late fee"),
		})
		require.NoError(t, err)
		assert.True(t, res.Reopened)
		assert.Equal(t, fee.StatusPartiallyPaid, res.Payment.Status)

		evts, err := svcs.Query.Events(ctx, schoolID, row.ID)
		require.NoError(t, err)
		last := evts[len(evts)-1]
		assert.Equal(t, fee.EventAdjustment, last.Kind)
		assertAmount(t, "20", last.Amount)
		assertAmount(t, "50", last.AssignedBefore)
		assertAmount(t, "70", last.AssignedAfter)
		assert.Equal(t, "late fee", *last.Note)
	})

	t.Run("due date only", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")
		due := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

		res, err := svcs.Ledger.EditAssignment(ctx, schoolID, row.ID, fee.EditInput{DueDate: &due})
		require.NoError(t, err)
		assert.False(t, res.Reopened)
		require.NotNil(t, res.Payment.DueDate)
		assert.Equal(t, core.Date(due), *res.Payment.DueDate)
		assertAmount(t, "50", res.Payment.AssignedAmount)
	})
}

func TestLedger_DeleteAssignment(t *testing.T) {
	t.Run("with payments fails and keeps the row", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")
		_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("0.01")})
		require.NoError(t, err)
		before, err := svcs.Query.Payment(ctx, schoolID, row.ID)
		require.NoError(t, err)

		err = svcs.Ledger.DeleteAssignment(ctx, schoolID, row.ID, core.Actor{})
		var hpErr *core.HasPaymentsError
		require.ErrorAs(t, err, &hpErr)

		after, err := svcs.Query.Payment(ctx, schoolID, row.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("without payments keeps the audit trail", func(t *testing.T) {
		svcs := testutil.NewServices()
		row := setupRow(t, svcs, "50")

		err := svcs.Ledger.DeleteAssignment(ctx, schoolID, row.ID, core.Actor{ID: "1", Name: "admin"})
		require.NoError(t, err)

		_, err = svcs.Query.Payment(ctx, schoolID, row.ID)
		assert.True(t, core.IsNotFound(err))

		evts, err := svcs.Query.Events(ctx, schoolID, row.ID)
		require.NoError(t, err)
		require.Len(t, evts, 1)
		assert.Equal(t, fee.EventDeleted, evts[0].Kind)
		assert.Equal(t, "admin", evts[0].Actor)
	})

	t.Run("unknown row", func(t *testing.T) {
		svcs := testutil.NewServices()
		err := svcs.Ledger.DeleteAssignment(ctx, schoolID, testutil.NewID(), core.Actor{})
		assert.True(t, core.IsNotFound(err))
	})
}

func TestLedger_StaleWriteIsAConflict(t *testing.T) {
	svcs := testutil.NewServices()
	row := setupRow(t, svcs, "50")
	_, err := svcs.Ledger.RecordPayment(ctx, schoolID, row.ID, fee.PaymentInput{Amount: testutil.Amount("10")})
	require.NoError(t, err)

	// row still holds the version read before the payment
	row.PaidAmount = testutil.Amount("5")
	row.Status = fee.StatusPartiallyPaid
	_, err = svcs.DB.SavePayment(ctx, row)
	assert.True(t, core.IsConflict(err))

	err = svcs.DB.DeletePayment(ctx, row)
	assert.True(t, core.IsConflict(err))

	p, err := svcs.Query.Payment(ctx, schoolID, row.ID)
	require.NoError(t, err)
	assertAmount(t, "10", p.PaidAmount)
}
