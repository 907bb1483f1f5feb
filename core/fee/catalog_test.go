package fee_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	testutil "github.com/trezcool/feeledger/tests"
)

func assertFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var vErr *core.ValidationError
	if assert.ErrorAs(t, err, &vErr) {
		fields := make([]string, 0, len(vErr.Fields))
		for _, f := range vErr.Fields {
			fields = append(fields, f.Field)
		}
		assert.Contains(t, fields, field)
	}
}

func TestCatalog_Category(t *testing.T) {
	svcs := testutil.NewServices()
	cat := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Tuition")
	assert.NotEmpty(t, cat.ID)
	assert.Equal(t, schoolID, cat.SchoolID)

	t.Run("name is unique per school ignoring case", func(t *testing.T) {
		_, err := svcs.Catalog.CreateCategory(ctx, schoolID, fee.NewCategory{Name: "  tuition "})
		assertFieldError(t, err, "name")
		assert.ErrorIs(t, err, fee.ErrNameTaken)

		other, err := svcs.Catalog.CreateCategory(ctx, "school-t", fee.NewCategory{Name: "Tuition"})
		require.NoError(t, err)
		assert.NotEqual(t, cat.ID, other.ID)
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := svcs.Catalog.CreateCategory(ctx, schoolID, fee.NewCategory{Name: "   "})
		assertFieldError(t, err, "name")
	})

	t.Run("missing school", func(t *testing.T) {
		_, err := svcs.Catalog.CreateCategory(ctx, "", fee.NewCategory{Name: "Sports"})
		assertFieldError(t, err, "school_id")
	})

	t.Run("update", func(t *testing.T) {
		transport := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Transport")

		_, err := svcs.Catalog.UpdateCategory(ctx, schoolID, transport.ID, fee.UpdateCategory{Name: testutil.StrPtr("TUITION")})
		assertFieldError(t, err, "name")

		upd, err := svcs.Catalog.UpdateCategory(ctx, schoolID, transport.ID, fee.UpdateCategory{
			Name:        testutil.StrPtr("Transport"),
			Description: testutil.StrPtr("school bus"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Transport", upd.Name)
		assert.Equal(t, "school bus", *upd.Description)

		_, err = svcs.Catalog.UpdateCategory(ctx, schoolID, testutil.NewID(), fee.UpdateCategory{Name: testutil.StrPtr("X")})
		assert.True(t, core.IsNotFound(err))

		_, err = svcs.Catalog.UpdateCategory(ctx, "school-t", transport.ID, fee.UpdateCategory{Name: testutil.StrPtr("X")})
		assert.True(t, core.IsNotFound(err), "rows of another school are invisible")
	})

	t.Run("query", func(t *testing.T) {
		cats, err := svcs.Catalog.QueryCategories(ctx, schoolID)
		require.NoError(t, err)
		assert.Len(t, cats, 2)
	})
}

func TestCatalog_FeeType(t *testing.T) {
	svcs := testutil.NewServices()
	cat := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Tuition")

	valid := func() fee.NewFeeType {
		return fee.NewFeeType{
			Name:            "Monthly Tuition",
			DisplayName:     "Monthly tuition fee",
			CategoryID:      cat.ID,
			InstallmentType: fee.InstallmentTypeInstallments,
			DefaultAmount:   testutil.Amount("5000"),
		}
	}

	ft, err := svcs.Catalog.CreateFeeType(ctx, schoolID, valid())
	require.NoError(t, err)
	assertAmount(t, "5000", ft.DefaultAmount)

	tests := []struct {
		name  string
		edit  func(nt *fee.NewFeeType)
		field string
	}{
		{"duplicate name", func(nt *fee.NewFeeType) { nt.Name = "MONTHLY tuition" }, "name"},
		{"invalid characters", func(nt *fee.NewFeeType) { nt.Name = "tuition/monthly" }, "name"},
		{"unknown category", func(nt *fee.NewFeeType) { nt.Name = "Other"; nt.CategoryID = testutil.NewID() }, "fee_category_id"},
		{"unknown installment type", func(nt *fee.NewFeeType) { nt.Name = "Other"; nt.InstallmentType = "weekly" }, "installment_type"},
		{"negative default", func(nt *fee.NewFeeType) { nt.Name = "Other"; nt.DefaultAmount = testutil.Amount("-1") }, "default_amount"},
		{"missing display name", func(nt *fee.NewFeeType) { nt.Name = "Other"; nt.DisplayName = "" }, "display_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nt := valid()
			tc.edit(&nt)
			_, err := svcs.Catalog.CreateFeeType(ctx, schoolID, nt)
			assertFieldError(t, err, tc.field)
		})
	}

	t.Run("over-precise default", func(t *testing.T) {
		nt := valid()
		nt.Name = "Other"
		nt.DefaultAmount = testutil.Amount("10.001")
		_, err := svcs.Catalog.CreateFeeType(ctx, schoolID, nt)
		var amtErr *core.InvalidAmountError
		assert.ErrorAs(t, err, &amtErr)
	})

	t.Run("update", func(t *testing.T) {
		other := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Extras")
		upd, err := svcs.Catalog.UpdateFeeType(ctx, schoolID, ft.ID, fee.UpdateFeeType{
			CategoryID:    &other.ID,
			DefaultAmount: testutil.AmountPtr("5500"),
		})
		require.NoError(t, err)
		assert.Equal(t, other.ID, upd.CategoryID)
		assertAmount(t, "5500", upd.DefaultAmount)
		assert.Equal(t, ft.Name, upd.Name)

		_, err = svcs.Catalog.UpdateFeeType(ctx, schoolID, ft.ID, fee.UpdateFeeType{CategoryID: testutil.StrPtr(testutil.NewID())})
		assertFieldError(t, err, "fee_category_id")
	})
}

func TestCatalog_Group(t *testing.T) {
	svcs := testutil.NewServices()
	cat := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Tuition")
	a := testutil.CreateFeeType(t, svcs.Catalog, schoolID, cat.ID, "A", "100")
	b := testutil.CreateFeeType(t, svcs.Catalog, schoolID, cat.ID, "B", "200")

	grp := testutil.CreateGroup(t, svcs.Catalog, schoolID, "Bundle", a.ID, b.ID)
	assert.Equal(t, []string{a.ID, b.ID}, grp.FeeTypeIDs)

	t.Run("at least one fee type", func(t *testing.T) {
		_, err := svcs.Catalog.CreateGroup(ctx, schoolID, fee.NewGroup{Name: "Empty"})
		assertFieldError(t, err, "fee_type_ids")

		_, err = svcs.Catalog.UpdateGroup(ctx, schoolID, grp.ID, fee.UpdateGroup{FeeTypeIDs: []string{}})
		assertFieldError(t, err, "fee_type_ids")
	})

	t.Run("fee types must exist", func(t *testing.T) {
		_, err := svcs.Catalog.CreateGroup(ctx, schoolID, fee.NewGroup{Name: "Broken", FeeTypeIDs: []string{a.ID, testutil.NewID()}})
		assertFieldError(t, err, "fee_type_ids")
	})

	t.Run("fee types of another school", func(t *testing.T) {
		otherCat := testutil.CreateCategory(t, svcs.Catalog, "school-t", "Tuition")
		foreign := testutil.CreateFeeType(t, svcs.Catalog, "school-t", otherCat.ID, "A", "100")
		_, err := svcs.Catalog.CreateGroup(ctx, schoolID, fee.NewGroup{Name: "Foreign", FeeTypeIDs: []string{foreign.ID}})
		assertFieldError(t, err, "fee_type_ids")
	})

	t.Run("update members", func(t *testing.T) {
		upd, err := svcs.Catalog.UpdateGroup(ctx, schoolID, grp.ID, fee.UpdateGroup{FeeTypeIDs: []string{b.ID}})
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID}, upd.FeeTypeIDs)
		assert.Equal(t, "Bundle", upd.Name)
	})
}

func TestCatalog_Plan(t *testing.T) {
	svcs := testutil.NewServices()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	plan := testutil.CreatePlan(t, svcs.Catalog, schoolID, "Term 1", jan, mar, due)
	assert.Equal(t, due, plan.LastDate)

	t.Run("end before start", func(t *testing.T) {
		_, err := svcs.Catalog.CreatePlan(ctx, schoolID, fee.NewPlan{Title: "Term 2", StartDate: mar, EndDate: jan, LastDate: due})
		assertFieldError(t, err, "end_date")
	})

	t.Run("same day window", func(t *testing.T) {
		_, err := svcs.Catalog.CreatePlan(ctx, schoolID, fee.NewPlan{Title: "Exam day", StartDate: jan, EndDate: jan, LastDate: jan})
		assert.NoError(t, err)
	})

	t.Run("duplicate title", func(t *testing.T) {
		_, err := svcs.Catalog.CreatePlan(ctx, schoolID, fee.NewPlan{Title: "term 1", StartDate: jan, EndDate: mar, LastDate: due})
		assertFieldError(t, err, "title")
	})

	t.Run("update keeps the window valid", func(t *testing.T) {
		before := jan.AddDate(0, 0, -1)
		_, err := svcs.Catalog.UpdatePlan(ctx, schoolID, plan.ID, fee.UpdatePlan{EndDate: &before})
		assertFieldError(t, err, "end_date")

		got, err := svcs.Catalog.GetPlan(ctx, schoolID, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, mar, got.EndDate, "a rejected update writes nothing")

		apr := mar.AddDate(0, 0, 30)
		upd, err := svcs.Catalog.UpdatePlan(ctx, schoolID, plan.ID, fee.UpdatePlan{EndDate: &apr})
		require.NoError(t, err)
		assert.Equal(t, apr, upd.EndDate)
	})
}

func TestCatalog_Structure(t *testing.T) {
	svcs := testutil.NewServices()
	cat := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Tuition")

	st, err := svcs.Catalog.CreateStructure(ctx, schoolID, fee.NewStructure{
		ClassID: "class-1", AcademicYearID: "2024",
		Items: map[string]decimal.Decimal{cat.ID: testutil.Amount("12000")},
	})
	require.NoError(t, err)
	assertAmount(t, "12000", st.Items[cat.ID])

	t.Run("one per class and year", func(t *testing.T) {
		_, err := svcs.Catalog.CreateStructure(ctx, schoolID, fee.NewStructure{
			ClassID: "class-1", AcademicYearID: "2024",
			Items: map[string]decimal.Decimal{cat.ID: testutil.Amount("1")},
		})
		assertFieldError(t, err, "class_id")

		_, err = svcs.Catalog.CreateStructure(ctx, schoolID, fee.NewStructure{
			ClassID: "class-1", AcademicYearID: "2025",
			Items: map[string]decimal.Decimal{cat.ID: testutil.Amount("13000")},
		})
		assert.NoError(t, err)
	})

	t.Run("categories must exist", func(t *testing.T) {
		_, err := svcs.Catalog.CreateStructure(ctx, schoolID, fee.NewStructure{
			ClassID: "class-2", AcademicYearID: "2024",
			Items: map[string]decimal.Decimal{testutil.NewID(): testutil.Amount("1")},
		})
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := svcs.Catalog.CreateStructure(ctx, schoolID, fee.NewStructure{
			ClassID: "class-2", AcademicYearID: "2024",
			Items: map[string]decimal.Decimal{cat.ID: testutil.Amount("-5")},
		})
		assert.Error(t, err)
	})

	t.Run("update replaces the items", func(t *testing.T) {
		other := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Transport")
		upd, err := svcs.Catalog.UpdateStructure(ctx, schoolID, st.ID, fee.UpdateStructure{
			Items: map[string]decimal.Decimal{other.ID: testutil.Amount("900")},
		})
		require.NoError(t, err)
		assert.Len(t, upd.Items, 1)
		assertAmount(t, "900", upd.Items[other.ID])
	})
}

func TestCatalog_DeleteIsBlockedByReferences(t *testing.T) {
	svcs := testutil.NewServices()
	cat := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Tuition")
	ft := testutil.CreateFeeType(t, svcs.Catalog, schoolID, cat.ID, "Monthly", "100")
	grp := testutil.CreateGroup(t, svcs.Catalog, schoolID, "Bundle", ft.ID)
	ct := testutil.CreateConcessionType(t, svcs.Catalog, schoolID, "Sibling")
	students := testutil.AddStudents(svcs.DB, schoolID, "class-1", 2)

	res, err := svcs.Assignment.AssignToStudents(ctx, schoolID, fee.AssignInput{
		Target: fee.TargetStudents, StudentIDs: students, GroupID: grp.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)
	_, err = svcs.Ledger.ApplyConcession(ctx, schoolID, res.Payments[0].ID, fee.ConcessionInput{
		ConcessionTypeID: ct.ID, Amount: testutil.Amount("10"),
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		delete func() error
		refs   map[string]int
	}{
		{
			name:   "category",
			delete: func() error { return svcs.Catalog.DeleteCategory(ctx, schoolID, cat.ID) },
			refs:   map[string]int{fee.RefPayments: 2, fee.RefFeeTypes: 1},
		},
		{
			name:   "fee type",
			delete: func() error { return svcs.Catalog.DeleteFeeType(ctx, schoolID, ft.ID) },
			refs:   map[string]int{fee.RefPayments: 2, fee.RefGroups: 1},
		},
		{
			name:   "group",
			delete: func() error { return svcs.Catalog.DeleteGroup(ctx, schoolID, grp.ID) },
			refs:   map[string]int{fee.RefPayments: 2},
		},
		{
			name:   "concession type",
			delete: func() error { return svcs.Catalog.DeleteConcessionType(ctx, schoolID, ct.ID) },
			refs:   map[string]int{fee.RefConcessions: 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.delete()
			var riErr *core.ReferentialIntegrityError
			if assert.ErrorAs(t, err, &riErr) {
				assert.Equal(t, tc.refs, riErr.Refs)
			}
		})
	}

	t.Run("unreferenced entities are deleted", func(t *testing.T) {
		spare := testutil.CreateCategory(t, svcs.Catalog, schoolID, "Spare")
		require.NoError(t, svcs.Catalog.DeleteCategory(ctx, schoolID, spare.ID))
		_, err := svcs.Catalog.GetCategory(ctx, schoolID, spare.ID)
		assert.True(t, core.IsNotFound(err))

		err = svcs.Catalog.DeleteCategory(ctx, schoolID, spare.ID)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("deleting the rows unblocks the group", func(t *testing.T) {
		for _, p := range res.Payments {
			require.NoError(t, svcs.Ledger.DeleteAssignment(ctx, schoolID, p.ID, core.Actor{}))
		}
		assert.NoError(t, svcs.Catalog.DeleteGroup(ctx, schoolID, grp.ID))
	})
}
