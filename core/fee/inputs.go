package fee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

type (
	NewCategory struct {
		Name        string  `json:"name" validate:"required,max=100"`
		Description *string `json:"description"`
	}

	UpdateCategory struct {
		Name        *string `json:"name" validate:"omitempty,notblank,max=100"`
		Description *string `json:"description"`
	}

	NewFeeType struct {
		Name            string          `json:"name" validate:"required,max=100,alphanum_"`
		DisplayName     string          `json:"display_name" validate:"required,max=150"`
		CategoryID      string          `json:"fee_category_id" validate:"required"`
		InstallmentType InstallmentType `json:"installment_type" validate:"required,oneof=installments extra_charge"`
		IsRefundable    bool            `json:"is_refundable"`
		DefaultAmount   decimal.Decimal `json:"default_amount" validate:"gte=0"`
		Description     *string         `json:"description"`
	}

	UpdateFeeType struct {
		Name            *string          `json:"name" validate:"omitempty,notblank,max=100,alphanum_"`
		DisplayName     *string          `json:"display_name" validate:"omitempty,notblank,max=150"`
		CategoryID      *string          `json:"fee_category_id" validate:"omitempty,notblank"`
		InstallmentType *InstallmentType `json:"installment_type" validate:"omitempty,oneof=installments extra_charge"`
		IsRefundable    *bool            `json:"is_refundable"`
		DefaultAmount   *decimal.Decimal `json:"default_amount" validate:"omitempty,gte=0"`
		Description     *string          `json:"description"`
	}

	NewGroup struct {
		Name       string   `json:"name" validate:"required,max=100"`
		FeeTypeIDs []string `json:"fee_type_ids" validate:"required,min=1,unique,dive,required"`
	}

	UpdateGroup struct {
		Name       *string  `json:"name" validate:"omitempty,notblank,max=100"`
		FeeTypeIDs []string `json:"fee_type_ids" validate:"omitempty,min=1,unique,dive,required"`
	}

	NewPlan struct {
		Title       string    `json:"title" validate:"required,max=150"`
		StartDate   time.Time `json:"start_date" validate:"required"`
		EndDate     time.Time `json:"end_date" validate:"required"`
		LastDate    time.Time `json:"last_date" validate:"required"`
		Description *string   `json:"description"`
	}

	UpdatePlan struct {
		Title       *string    `json:"title" validate:"omitempty,notblank,max=150"`
		StartDate   *time.Time `json:"start_date"`
		EndDate     *time.Time `json:"end_date"`
		LastDate    *time.Time `json:"last_date"`
		Description *string    `json:"description"`
	}

	NewConcessionType struct {
		Title       string  `json:"title" validate:"required,max=150"`
		Description *string `json:"description"`
	}

	UpdateConcessionType struct {
		Title       *string `json:"title" validate:"omitempty,notblank,max=150"`
		Description *string `json:"description"`
	}

	NewStructure struct {
		ClassID        string                     `json:"class_id" validate:"required"`
		AcademicYearID string                     `json:"academic_year_id" validate:"required"`
		Items          map[string]decimal.Decimal `json:"structure" validate:"required,min=1,dive,keys,required,endkeys,gte=0"`
	}

	UpdateStructure struct {
		Items map[string]decimal.Decimal `json:"structure" validate:"required,min=1,dive,keys,required,endkeys,gte=0"`
	}
)

func (nc *NewCategory) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanStringPtr(nc.Description)
	return core.ValidateStruct(nc)
}

func (uc *UpdateCategory) Validate() error {
	uc.Name = cleanPtr(uc.Name)
	uc.Description = cleanPtr(uc.Description)
	return core.ValidateStruct(uc)
}

func (nt *NewFeeType) Validate() error {
	nt.Name = core.CleanString(nt.Name)
	nt.DisplayName = core.CleanString(nt.DisplayName)
	nt.CategoryID = core.CleanString(nt.CategoryID)
	nt.Description = core.CleanStringPtr(nt.Description)
	if err := core.ValidateStruct(nt); err != nil {
		return err
	}
	return checkAmount("default_amount", nt.DefaultAmount, false)
}

func (ut *UpdateFeeType) Validate() error {
	ut.Name = cleanPtr(ut.Name)
	ut.DisplayName = cleanPtr(ut.DisplayName)
	ut.CategoryID = cleanPtr(ut.CategoryID)
	ut.Description = cleanPtr(ut.Description)
	if err := core.ValidateStruct(ut); err != nil {
		return err
	}
	if ut.DefaultAmount != nil {
		return checkAmount("default_amount", *ut.DefaultAmount, false)
	}
	return nil
}

func (ng *NewGroup) Validate() error {
	ng.Name = core.CleanString(ng.Name)
	ng.FeeTypeIDs = cleanIDs(ng.FeeTypeIDs)
	return core.ValidateStruct(ng)
}

func (ug *UpdateGroup) Validate() error {
	ug.Name = cleanPtr(ug.Name)
	if ug.FeeTypeIDs != nil {
		ug.FeeTypeIDs = cleanIDs(ug.FeeTypeIDs)
		if len(ug.FeeTypeIDs) == 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "fee_type_ids", Error: requiredFeeTypesText})
		}
	}
	return core.ValidateStruct(ug)
}

func (np *NewPlan) Validate() error {
	np.Title = core.CleanString(np.Title)
	np.Description = core.CleanStringPtr(np.Description)
	return core.ValidateStruct(np)
}

func (up *UpdatePlan) Validate() error {
	up.Title = cleanPtr(up.Title)
	up.Description = cleanPtr(up.Description)
	return core.ValidateStruct(up)
}

func (nc *NewConcessionType) Validate() error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanStringPtr(nc.Description)
	return core.ValidateStruct(nc)
}

func (uc *UpdateConcessionType) Validate() error {
	uc.Title = cleanPtr(uc.Title)
	uc.Description = cleanPtr(uc.Description)
	return core.ValidateStruct(uc)
}

func (ns *NewStructure) Validate() error {
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.AcademicYearID = core.CleanString(ns.AcademicYearID)
	if err := core.ValidateStruct(ns); err != nil {
		return err
	}
	return checkItems(ns.Items)
}

func (us *UpdateStructure) Validate() error {
	if err := core.ValidateStruct(us); err != nil {
		return err
	}
	return checkItems(us.Items)
}

func checkItems(items map[string]decimal.Decimal) error {
	for catID, amt := range items {
		if err := checkAmount("structure["+catID+"]", amt, false); err != nil {
			return err
		}
	}
	return nil
}

// cleanPtr trims a partial update field. Unlike core.CleanStringPtr, blank values are kept so validation can reject them.
func cleanPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := core.CleanString(*s)
	return &c
}

func cleanIDs(ids []string) []string {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		cleaned = append(cleaned, core.CleanString(id))
	}
	return cleaned
}
