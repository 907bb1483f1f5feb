package echoapi_test

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/fee"
	testutil "github.com/trezcool/feeledger/tests"
)

func Test_ledgerApi(t *testing.T) {
	app := setup(t)
	base := "/v1/schools/" + schoolID
	cat := testutil.CreateCategory(t, app.Catalog, schoolID, "Tuition")
	ft := testutil.CreateFeeType(t, app.Catalog, schoolID, cat.ID, "Monthly", "5000")
	ct := testutil.CreateConcessionType(t, app.Catalog, schoolID, "Merit")
	students := testutil.AddStudents(app.DB, schoolID, "class-1", 2)

	var res fee.AssignResult
	app.do(t, http.MethodPost, base+"/assignments", map[string]interface{}{
		"target": "class", "class_id": "class-1", "fee_type_id": ft.ID,
	}, http.StatusOK, &res)
	require.Equal(t, 2, res.Created)
	row := res.Payments[0]
	for _, p := range res.Payments {
		if p.StudentID == students[0] {
			row = p
		}
	}
	rowPath := base + "/payments/" + row.ID

	t.Run("invalid assignment", func(t *testing.T) {
		var errs map[string]string
		app.do(t, http.MethodPost, base+"/assignments", map[string]interface{}{"target": "everyone"}, http.StatusBadRequest, &errs)
		assert.Contains(t, errs, "target")
	})

	t.Run("tuition scenario", func(t *testing.T) {
		var pr fee.PaymentResult
		app.do(t, http.MethodPost, rowPath+"/payments", map[string]string{"amount": "2000", "payment_mode": "cash"}, http.StatusOK, &pr)
		assert.Equal(t, fee.StatusPartiallyPaid, pr.Payment.Status)
		assert.False(t, pr.Clamped)

		var cr fee.ConcessionResult
		app.do(t, http.MethodPost, rowPath+"/concessions", map[string]string{
			"concession_type_id": ct.ID, "amount": "1000",
		}, http.StatusCreated, &cr)
		assert.True(t, cr.Payment.AssignedAmount.Equal(testutil.Amount("4000")))

		app.do(t, http.MethodPost, rowPath+"/payments", map[string]string{"amount": "5000"}, http.StatusOK, &pr)
		assert.True(t, pr.Clamped)
		assert.True(t, pr.Applied.Equal(testutil.Amount("2000")))
		assert.True(t, pr.Excess.Equal(testutil.Amount("3000")))
		assert.Equal(t, fee.StatusPaid, pr.Payment.Status)
		assert.True(t, pr.Payment.PaidAmount.Equal(pr.Payment.AssignedAmount))

		var evts []fee.LedgerEvent
		app.do(t, http.MethodGet, rowPath+"/events", nil, http.StatusOK, &evts)
		require.Len(t, evts, 4)
		assert.Equal(t, fee.EventAssigned, evts[0].Kind)
		assert.Equal(t, fee.EventPayment, evts[3].Kind)

		var cs []fee.Concession
		app.do(t, http.MethodGet, rowPath+"/concessions", nil, http.StatusOK, &cs)
		assert.Len(t, cs, 1)
	})

	other := res.Payments[0]
	if other.ID == row.ID {
		other = res.Payments[1]
	}
	otherPath := base + "/payments/" + other.ID

	runTests(t, app, []httpTest{
		{
			name: "zero payment", method: http.MethodPost, path: otherPath + "/payments",
			body:     []byte(`{"amount": "0"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"amount": "invalid amount 0.00: must be greater than zero"}),
		},
		{
			name: "concession over the due", method: http.MethodPost, path: otherPath + "/concessions",
			body:     marshallObj(t, map[string]string{"concession_type_id": ct.ID, "amount": "6000"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"error": "concession of 6000.00 exceeds the due balance of 5000.00",
				"due":   "5000",
			}),
		},
		{
			name: "delete a paid row", method: http.MethodDelete, path: rowPath,
			wantCode: http.StatusConflict,
		},
		{
			name: "row of another school", method: http.MethodGet, path: "/v1/schools/school-2/payments/" + row.ID,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: `fee assignment "` + row.ID + `" not found`}),
		},
		{
			name: "edit below paid", method: http.MethodPut, path: rowPath,
			body:     []byte(`{"assigned_amount": "100"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"assigned_amount": "invalid assigned_amount 100.00: cannot be less than the paid amount of 4000.00",
			}),
		},
		{
			name: "bad due_before", method: http.MethodGet, path: base + "/payments?due_before=tomorrow",
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"due_before": "expected a date formatted as 2006-01-02"}),
		},
	})

	t.Run("edit reopens a paid row", func(t *testing.T) {
		var er fee.EditResult
		app.do(t, http.MethodPut, rowPath, map[string]string{"assigned_amount": "4500", "reason": "late fee"}, http.StatusOK, &er)
		assert.True(t, er.Reopened)
		assert.Equal(t, fee.StatusPartiallyPaid, er.Payment.Status)
	})

	t.Run("queries", func(t *testing.T) {
		var pmts []fee.Payment
		app.do(t, http.MethodGet, base+"/payments?status=pending&ordering=-assigned_amount", nil, http.StatusOK, &pmts)
		require.Len(t, pmts, 1)
		assert.Equal(t, other.ID, pmts[0].ID)

		app.do(t, http.MethodGet, base+"/payments?student_id="+students[0]+","+students[1], nil, http.StatusOK, &pmts)
		assert.Len(t, pmts, 2)

		var bal fee.Balance
		app.do(t, http.MethodGet, base+"/students/"+students[0]+"/balance", nil, http.StatusOK, &bal)
		assert.Equal(t, 1, bal.Count)
		assert.True(t, bal.Due.Equal(testutil.Amount("500")))

		var sum fee.ClassSummary
		app.do(t, http.MethodGet, base+"/classes/class-1/summary", nil, http.StatusOK, &sum)
		assert.Equal(t, 2, sum.Students)
		assert.True(t, sum.Due.Equal(testutil.Amount("5500")))
		assert.Equal(t, 1, sum.ByStatus[fee.StatusPending].Count)
	})

	t.Run("delete an unpaid row keeps its trail", func(t *testing.T) {
		app.do(t, http.MethodDelete, otherPath, nil, http.StatusNoContent, nil)
		app.do(t, http.MethodGet, otherPath, nil, http.StatusNotFound, nil)

		var evts []fee.LedgerEvent
		app.do(t, http.MethodGet, otherPath+"/events", nil, http.StatusOK, &evts)
		require.Len(t, evts, 2)
		assert.Equal(t, fee.EventDeleted, evts[1].Kind)
	})

	t.Run("metrics", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/metrics")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "feeledger_payments_recorded_total 2")
		assert.Contains(t, body, "feeledger_payment_clamps_total 1")
		assert.Contains(t, body, "feeledger_concessions_applied_total 1")
		assert.True(t, strings.Contains(body, `feeledger_assignment_rows_total{result="created"} 2`))
	})
}

func Test_ledgerApi_concurrentPayments(t *testing.T) {
	app := setup(t)
	base := "/v1/schools/" + schoolID
	cat := testutil.CreateCategory(t, app.Catalog, schoolID, "Tuition")
	ft := testutil.CreateFeeType(t, app.Catalog, schoolID, cat.ID, "Books", "50")
	student := testutil.AddStudents(app.DB, schoolID, "class-1", 1)[0]
	row := testutil.CreatePayment(t, app.DB, schoolID, student, ft.ID, "50")
	path := base + "/payments/" + row.ID + "/payments"

	var wg sync.WaitGroup
	for _, amt := range []string{"30", "20"} {
		wg.Add(1)
		go func(amt string) {
			defer wg.Done()
			req, rec := newActorRequest(http.MethodPost, path, "cashier", []byte(`{"amount": "`+amt+`"}`))
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}(amt)
	}
	wg.Wait()

	var p fee.Payment
	app.do(t, http.MethodGet, base+"/payments/"+row.ID, nil, http.StatusOK, &p)
	assert.Equal(t, fee.StatusPaid, p.Status)
	assert.True(t, p.PaidAmount.Equal(testutil.Amount("50")))

	var evts []fee.LedgerEvent
	app.do(t, http.MethodGet, base+"/payments/"+row.ID+"/events", nil, http.StatusOK, &evts)
	require.Len(t, evts, 2)
	for _, e := range evts {
		assert.Equal(t, "cashier", e.Actor)
	}
}

func Test_ledgerApi_dateOnlyBodies(t *testing.T) {
	app := setup(t)
	base := "/v1/schools/" + schoolID
	cat := testutil.CreateCategory(t, app.Catalog, schoolID, "Tuition")
	ft := testutil.CreateFeeType(t, app.Catalog, schoolID, cat.ID, "Monthly", "5000")
	testutil.AddStudents(app.DB, schoolID, "class-1", 1)

	var plan fee.Plan
	app.do(t, http.MethodPost, base+"/installment-plans", map[string]string{
		"title": "Term 1", "start_date": "2024-01-01", "end_date": "2024-03-31", "last_date": "2024-01-15",
	}, http.StatusCreated, &plan)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), plan.LastDate)

	var res fee.AssignResult
	app.do(t, http.MethodPost, base+"/assignments", map[string]interface{}{
		"target": "class", "class_id": "class-1", "fee_type_id": ft.ID,
		"installment_id": plan.ID, "due_date": "2024-02-01",
	}, http.StatusOK, &res)
	require.Equal(t, 1, res.Created)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *res.Payments[0].DueDate)
	rowPath := base + "/payments/" + res.Payments[0].ID

	var pr fee.PaymentResult
	app.do(t, http.MethodPost, rowPath+"/payments", map[string]string{"amount": "100.50", "date": "2024-05-01"}, http.StatusOK, &pr)
	require.NotNil(t, pr.Payment.PaymentDate)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *pr.Payment.PaymentDate)
	assert.True(t, pr.Applied.Equal(testutil.Amount("100.50")))

	app.do(t, http.MethodPost, rowPath+"/payments", map[string]string{"amount": "10", "date": "01/05/2024"}, http.StatusBadRequest, nil)
}
