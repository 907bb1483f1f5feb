package fee

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

var (
	// MaxAmount is the exclusive upper bound of any amount (NUMERIC(14,2)).
	MaxAmount = decimal.New(1, 12)

	planDatesTag  = "plandates"
	planDatesText = "end_date cannot be before start_date"

	requiredFeeTypesText = "at least one fee type is required"
)

func init() {
	core.Validate.RegisterStructValidation(planStructValidation, NewPlan{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, planDatesTag, planDatesText)
}

// planStructValidation checks that the billing window of a plan is not inverted.
func planStructValidation(sl validator.StructLevel) {
	plan, ok := sl.Current().Interface().(NewPlan)
	if !ok || plan.StartDate.IsZero() || plan.EndDate.IsZero() {
		return
	}
	if plan.EndDate.Before(plan.StartDate) {
		sl.ReportError(plan.EndDate, "end_date", "EndDate", planDatesTag, "")
	}
}

// checkAmount rejects negative, over-precise and over-limit amounts, and zero when positive is set.
func checkAmount(field string, amt decimal.Decimal, positive bool) error {
	switch {
	case positive && !amt.IsPositive():
		return core.NewInvalidAmountError(field, amt, "must be greater than zero")
	case amt.IsNegative():
		return core.NewInvalidAmountError(field, amt, "cannot be negative")
	case !amt.Equal(amt.Round(2)):
		return core.NewInvalidAmountError(field, amt, "cannot have more than 2 decimal places")
	case amt.GreaterThanOrEqual(MaxAmount):
		return core.NewInvalidAmountError(field, amt, "exceeds the maximum amount")
	}
	return nil
}

func checkSchool(schoolID string) error {
	if core.CleanString(schoolID) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "school_id", Error: "this field is required"})
	}
	return nil
}

func fieldError(field, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: msg})
}
