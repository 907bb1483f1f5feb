package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the comma separated `ordering` query param ("-" prefix for descending),
// keeping only the fields in allowed.
func (ord *Ordering) Bind(ctx echo.Context, allowed map[string]string) {
	ord.Orderings = core.ParseOrdering(ctx.QueryParam(orderingParam), allowed)
}

// PaymentQuery is the query string of the payment list endpoints.
type PaymentQuery struct {
	StudentIDs    []string `query:"student_id"`
	ClassID       string   `query:"class_id"`
	CategoryID    string   `query:"fee_category_id"`
	FeeTypeID     string   `query:"fee_type_id"`
	GroupID       string   `query:"fee_type_group_id"`
	InstallmentID string   `query:"installment_id"`
	Statuses      []string `query:"status"`
	DueBefore     string   `query:"due_before"` // YYYY-MM-DD
}

func (q *PaymentQuery) Filter(schoolID string) (fee.PaymentFilter, error) {
	filter := fee.PaymentFilter{
		SchoolID:      schoolID,
		StudentIDs:    cleanList(q.StudentIDs),
		ClassID:       core.CleanString(q.ClassID),
		CategoryID:    core.CleanString(q.CategoryID),
		FeeTypeID:     core.CleanString(q.FeeTypeID),
		GroupID:       core.CleanString(q.GroupID),
		InstallmentID: core.CleanString(q.InstallmentID),
	}
	for _, s := range cleanList(q.Statuses) {
		filter.Statuses = append(filter.Statuses, fee.Status(strings.ToLower(s)))
	}
	if due := core.CleanString(q.DueBefore); due != "" {
		t, err := time.Parse(dateLayout, due)
		if err != nil {
			return fee.PaymentFilter{}, core.NewValidationError(nil, core.FieldError{
				Field: "due_before", Error: "expected a date formatted as " + dateLayout,
			})
		}
		filter.DueBefore = &t
	}
	return filter, nil
}

const dateLayout = "2006-01-02"

// cleanList drops blank values and splits comma separated ones.
func cleanList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			if s = core.CleanString(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
