package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/fee"
	testutil "github.com/trezcool/feeledger/tests"
)

func TestHome(t *testing.T) {
	app := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func Test_catalogApi(t *testing.T) {
	app := setup(t)
	base := "/v1/schools/" + schoolID

	var cat fee.Category
	app.do(t, http.MethodPost, base+"/fee-categories", fee.NewCategory{Name: " Tuition "}, http.StatusCreated, &cat)
	assert.Equal(t, "Tuition", cat.Name)
	assert.Equal(t, schoolID, cat.SchoolID)

	var ft fee.FeeType
	app.do(t, http.MethodPost, base+"/fee-types", map[string]interface{}{
		"name":             "monthly",
		"display_name":     "Monthly tuition",
		"fee_category_id":  cat.ID,
		"installment_type": "installments",
		"default_amount":   "5000",
	}, http.StatusCreated, &ft)
	assert.True(t, ft.DefaultAmount.Equal(testutil.Amount("5000")))

	runTests(t, app, []httpTest{
		{
			name: "duplicate category", method: http.MethodPost, path: base + "/fee-categories",
			body:     marshallObj(t, fee.NewCategory{Name: "TUITION"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"name": "a fee category with this name already exists"}),
		},
		{
			name: "blank category", method: http.MethodPost, path: base + "/fee-categories",
			body:     marshallObj(t, fee.NewCategory{Name: "  "}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "same name in another school", method: http.MethodPost, path: "/v1/schools/school-2/fee-categories",
			body:     marshallObj(t, fee.NewCategory{Name: "Tuition"}),
			wantCode: http.StatusCreated,
		},
		{
			name: "malformed body", method: http.MethodPost, path: base + "/fee-categories",
			body:     []byte(`{"name": `),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown category", method: http.MethodGet, path: base + "/fee-categories/lol",
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: `fee category "lol" not found`}),
		},
		{
			name: "category of another school", method: http.MethodGet, path: "/v1/schools/school-2/fee-categories/" + cat.ID,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: `fee category "` + cat.ID + `" not found`}),
		},
		{
			name: "retrieve category", method: http.MethodGet, path: base + "/fee-categories/" + cat.ID,
			wantCode: http.StatusOK, wantData: marshallObj(t, cat),
		},
		{
			name: "fee type of unknown category", method: http.MethodPost, path: base + "/fee-types",
			body: marshallObj(t, map[string]interface{}{
				"name": "bus", "display_name": "Bus", "fee_category_id": "lol",
				"installment_type": "extra_charge", "default_amount": "800",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"fee_category_id": `fee category "lol" not found`}),
		},
		{
			name: "over-precise amount", method: http.MethodPost, path: base + "/fee-types",
			body: marshallObj(t, map[string]interface{}{
				"name": "bus", "display_name": "Bus", "fee_category_id": cat.ID,
				"installment_type": "extra_charge", "default_amount": "800.005",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"default_amount": "invalid default_amount 800.01: cannot have more than 2 decimal places",
			}),
		},
		{
			name: "referenced category", method: http.MethodDelete, path: base + "/fee-categories/" + cat.ID,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, map[string]interface{}{
				"error": "cannot delete fee category: referenced by 1 fee types",
				"count": 1,
				"refs":  map[string]int{fee.RefFeeTypes: 1},
			}),
		},
		{
			name: "list fee types", method: http.MethodGet, path: base + "/fee-types",
			wantCode: http.StatusOK, wantData: marshallObj(t, []fee.FeeType{ft}),
		},
		{
			name: "empty list", method: http.MethodGet, path: "/v1/schools/school-3/fee-types",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
	})

	t.Run("update and delete", func(t *testing.T) {
		var updated fee.FeeType
		app.do(t, http.MethodPut, base+"/fee-types/"+ft.ID, map[string]interface{}{"default_amount": "4500"}, http.StatusOK, &updated)
		assert.True(t, updated.DefaultAmount.Equal(testutil.Amount("4500")))
		assert.Equal(t, ft.Name, updated.Name)

		app.do(t, http.MethodDelete, base+"/fee-types/"+ft.ID, nil, http.StatusNoContent, nil)
		app.do(t, http.MethodDelete, base+"/fee-categories/"+cat.ID, nil, http.StatusNoContent, nil)
		app.do(t, http.MethodGet, base+"/fee-categories/"+cat.ID, nil, http.StatusNotFound, nil)
	})
}

func Test_catalogApi_plansGroupsStructures(t *testing.T) {
	app := setup(t)
	base := "/v1/schools/" + schoolID
	cat := testutil.CreateCategory(t, app.Catalog, schoolID, "Tuition")
	ft := testutil.CreateFeeType(t, app.Catalog, schoolID, cat.ID, "Monthly", "5000")

	t.Run("installment plan", func(t *testing.T) {
		var plan fee.Plan
		app.do(t, http.MethodPost, base+"/installment-plans", fee.NewPlan{
			Title:     "Term 1",
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			LastDate:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		}, http.StatusCreated, &plan)
		assert.Equal(t, "Term 1", plan.Title)

		var errs map[string]string
		app.do(t, http.MethodPost, base+"/installment-plans", fee.NewPlan{
			Title:     "Inverted",
			StartDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			LastDate:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		}, http.StatusBadRequest, &errs)
		assert.Contains(t, errs, "end_date")

		var plans []fee.Plan
		app.do(t, http.MethodGet, base+"/installment-plans", nil, http.StatusOK, &plans)
		assert.Len(t, plans, 1)
	})

	t.Run("fee type group", func(t *testing.T) {
		var grp fee.Group
		app.do(t, http.MethodPost, base+"/fee-type-groups", fee.NewGroup{Name: "Bundle", FeeTypeIDs: []string{ft.ID}}, http.StatusCreated, &grp)
		assert.Equal(t, []string{ft.ID}, grp.FeeTypeIDs)

		var errs map[string]string
		app.do(t, http.MethodPost, base+"/fee-type-groups", fee.NewGroup{Name: "Empty"}, http.StatusBadRequest, &errs)
		assert.Contains(t, errs, "fee_type_ids")

		app.do(t, http.MethodPut, base+"/fee-type-groups/"+grp.ID, map[string]interface{}{"name": "Full bundle"}, http.StatusOK, &grp)
		assert.Equal(t, "Full bundle", grp.Name)
	})

	t.Run("fee structure", func(t *testing.T) {
		var st fee.Structure
		app.do(t, http.MethodPost, base+"/fee-structures", map[string]interface{}{
			"class_id": "class-1", "academic_year_id": "2024", "structure": map[string]string{cat.ID: "12000"},
		}, http.StatusCreated, &st)
		require.Contains(t, st.Items, cat.ID)
		assert.True(t, st.Items[cat.ID].Equal(testutil.Amount("12000")))

		var errs map[string]string
		app.do(t, http.MethodPost, base+"/fee-structures", map[string]interface{}{
			"class_id": "class-1", "academic_year_id": "2024", "structure": map[string]string{cat.ID: "1"},
		}, http.StatusBadRequest, &errs)
		assert.NotEmpty(t, errs)
	})

	t.Run("concession type", func(t *testing.T) {
		var ct fee.ConcessionType
		app.do(t, http.MethodPost, base+"/concession-types", fee.NewConcessionType{Title: "Sibling"}, http.StatusCreated, &ct)
		app.do(t, http.MethodGet, base+"/concession-types/"+ct.ID, nil, http.StatusOK, &ct)
		assert.Equal(t, "Sibling", ct.Title)
		app.do(t, http.MethodDelete, base+"/concession-types/"+ct.ID, nil, http.StatusNoContent, nil)
	})
}
