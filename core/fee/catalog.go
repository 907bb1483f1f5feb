package fee

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

// CatalogService manages the definitions a school charges from.
type CatalogService struct {
	store  Store
	logger core.Logger
}

func NewCatalogService(store Store, logger core.Logger) *CatalogService {
	return &CatalogService{store: store, logger: logger}
}

func (svc *CatalogService) checkName(ctx context.Context, repo Repository, entity, schoolID, field, name, excludeID string) error {
	taken, err := repo.NameExists(ctx, entity, schoolID, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return nameTakenError(entity, field)
	}
	return nil
}

// checkDelete fails with a ReferentialIntegrityError while anything references the entity.
func (svc *CatalogService) checkDelete(ctx context.Context, repo Repository, entity, schoolID, id string) error {
	refs, err := repo.CountReferences(ctx, entity, schoolID, id)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		svc.logger.Info("catalog deletion blocked", map[string]interface{}{
			"entity": entity, "id": id, "school_id": schoolID, "refs": refs,
		})
		return core.NewReferentialIntegrityError(entity, id, refs)
	}
	return nil
}

func nameTakenError(entity, field string) error {
	return core.NewValidationError(ErrNameTaken, core.FieldError{
		Field: field,
		Error: fmt.Sprintf("a %s with this %s already exists", strings.ReplaceAll(entity, "_", " "), field),
	})
}

// mapNameErr converts a unique constraint hit reported by the store.
func mapNameErr(err error, entity, field string) error {
	if errors.Is(err, ErrNameTaken) {
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			return nameTakenError(entity, field)
		}
	}
	return err
}

// refError turns a missing referenced entity into a validation error on field.
func refError(err error, field string) error {
	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		return fieldError(field, nf.Error())
	}
	return err
}

// Categories

func (svc *CatalogService) CreateCategory(ctx context.Context, schoolID string, nc NewCategory) (Category, error) {
	if err := checkSchool(schoolID); err != nil {
		return Category{}, err
	}
	if err := nc.Validate(); err != nil {
		return Category{}, err
	}
	now := core.NowFunc()
	cat := Category{
		SchoolID:    schoolID,
		Name:        nc.Name,
		Description: nc.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if err := svc.checkName(ctx, repo, EntityCategory, schoolID, "name", cat.Name, ""); err != nil {
			return err
		}
		var err error
		cat, err = repo.CreateCategory(ctx, cat)
		return err
	})
	if err != nil {
		return Category{}, errors.Wrap(mapNameErr(err, EntityCategory, "name"), "creating fee category")
	}
	return cat, nil
}

func (svc *CatalogService) GetCategory(ctx context.Context, schoolID, id string) (Category, error) {
	return svc.store.GetCategory(ctx, schoolID, id)
}

func (svc *CatalogService) QueryCategories(ctx context.Context, schoolID string) ([]Category, error) {
	return svc.store.QueryCategories(ctx, schoolID)
}

func (svc *CatalogService) UpdateCategory(ctx context.Context, schoolID, id string, uc UpdateCategory) (Category, error) {
	if err := uc.Validate(); err != nil {
		return Category{}, err
	}
	var cat Category
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		var err error
		if cat, err = repo.GetCategory(ctx, schoolID, id); err != nil {
			return err
		}
		if uc.Name != nil {
			if err = svc.checkName(ctx, repo, EntityCategory, schoolID, "name", *uc.Name, id); err != nil {
				return err
			}
			cat.Name = *uc.Name
		}
		if uc.Description != nil {
			cat.Description = core.CleanStringPtr(uc.Description)
		}
		cat.UpdatedAt = core.NowFunc()
		cat, err = repo.UpdateCategory(ctx, cat)
		return err
	})
	if err != nil {
		return Category{}, errors.Wrap(mapNameErr(err, EntityCategory, "name"), "updating fee category")
	}
	return cat, nil
}

func (svc *CatalogService) DeleteCategory(ctx context.Context, schoolID, id string) error {
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetCategory(ctx, schoolID, id); err != nil {
			return err
		}
		if err := svc.checkDelete(ctx, repo, EntityCategory, schoolID, id); err != nil {
			return err
		}
		return repo.DeleteCategory(ctx, schoolID, id)
	})
	return errors.Wrap(err, "deleting fee category")
}

// Fee types

func (svc *CatalogService) CreateFeeType(ctx context.Context, schoolID string, nt NewFeeType) (FeeType, error) {
	if err := checkSchool(schoolID); err != nil {
		return FeeType{}, err
	}
	if err := nt.Validate(); err != nil {
		return FeeType{}, err
	}
	now := core.NowFunc()
	ft := FeeType{
		SchoolID:        schoolID,
		Name:            nt.Name,
		DisplayName:     nt.DisplayName,
		CategoryID:      nt.CategoryID,
		InstallmentType: nt.InstallmentType,
		IsRefundable:    nt.IsRefundable,
		DefaultAmount:   nt.DefaultAmount,
		Description:     nt.Description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetCategory(ctx, schoolID, ft.CategoryID); err != nil {
			return refError(err, "fee_category_id")
		}
		if err := svc.checkName(ctx, repo, EntityFeeType, schoolID, "name", ft.Name, ""); err != nil {
			return err
		}
		var err error
		ft, err = repo.CreateFeeType(ctx, ft)
		return err
	})
	if err != nil {
		return FeeType{}, errors.Wrap(mapNameErr(err, EntityFeeType, "name"), "creating fee type")
	}
	return ft, nil
}

func (svc *CatalogService) GetFeeType(ctx context.Context, schoolID, id string) (FeeType, error) {
	return svc.store.GetFeeType(ctx, schoolID, id)
}

func (svc *CatalogService) QueryFeeTypes(ctx context.Context, schoolID string) ([]FeeType, error) {
	return svc.store.QueryFeeTypes(ctx, schoolID)
}

func (svc *CatalogService) UpdateFeeType(ctx context.Context, schoolID, id string, ut UpdateFeeType) (FeeType, error) {
	if err := ut.Validate(); err != nil {
		return FeeType{}, err
	}
	var ft FeeType
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		var err error
		if ft, err = repo.GetFeeType(ctx, schoolID, id); err != nil {
			return err
		}
		if ut.Name != nil {
			if err = svc.checkName(ctx, repo, EntityFeeType, schoolID, "name", *ut.Name, id); err != nil {
				return err
			}
			ft.Name = *ut.Name
		}
		if ut.CategoryID != nil && *ut.CategoryID != ft.CategoryID {
			if _, err = repo.GetCategory(ctx, schoolID, *ut.CategoryID); err != nil {
				return refError(err, "fee_category_id")
			}
			ft.CategoryID = *ut.CategoryID
		}
		if ut.DisplayName != nil {
			ft.DisplayName = *ut.DisplayName
		}
		if ut.InstallmentType != nil {
			ft.InstallmentType = *ut.InstallmentType
		}
		if ut.IsRefundable != nil {
			ft.IsRefundable = *ut.IsRefundable
		}
		if ut.DefaultAmount != nil {
			ft.DefaultAmount = *ut.DefaultAmount
		}
		if ut.Description != nil {
			ft.Description = core.CleanStringPtr(ut.Description)
		}
		ft.UpdatedAt = core.NowFunc()
		ft, err = repo.UpdateFeeType(ctx, ft)
		return err
	})
	if err != nil {
		return FeeType{}, errors.Wrap(mapNameErr(err, EntityFeeType, "name"), "updating fee type")
	}
	return ft, nil
}

func (svc *CatalogService) DeleteFeeType(ctx context.Context, schoolID, id string) error {
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetFeeType(ctx, schoolID, id); err != nil {
			return err
		}
		if err := svc.checkDelete(ctx, repo, EntityFeeType, schoolID, id); err != nil {
			return err
		}
		return repo.DeleteFeeType(ctx, schoolID, id)
	})
	return errors.Wrap(err, "deleting fee type")
}

// Groups

func (svc *CatalogService) checkFeeTypes(ctx context.Context, repo Repository, schoolID string, ids []string) error {
	for _, id := range ids {
		if _, err := repo.GetFeeType(ctx, schoolID, id); err != nil {
			return refError(err, "fee_type_ids")
		}
	}
	return nil
}

func (svc *CatalogService) CreateGroup(ctx context.Context, schoolID string, ng NewGroup) (Group, error) {
	if err := checkSchool(schoolID); err != nil {
		return Group{}, err
	}
	if err := ng.Validate(); err != nil {
		return Group{}, err
	}
	now := core.NowFunc()
	grp := Group{
		SchoolID:   schoolID,
		Name:       ng.Name,
		FeeTypeIDs: ng.FeeTypeIDs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if err := svc.checkFeeTypes(ctx, repo, schoolID, grp.FeeTypeIDs); err != nil {
			return err
		}
		if err := svc.checkName(ctx, repo, EntityGroup, schoolID, "name", grp.Name, ""); err != nil {
			return err
		}
		var err error
		grp, err = repo.CreateGroup(ctx, grp)
		return err
	})
	if err != nil {
		return Group{}, errors.Wrap(mapNameErr(err, EntityGroup, "name"), "creating fee type group")
	}
	return grp, nil
}

func (svc *CatalogService) GetGroup(ctx context.Context, schoolID, id string) (Group, error) {
	return svc.store.GetGroup(ctx, schoolID, id)
}

func (svc *CatalogService) QueryGroups(ctx context.Context, schoolID string) ([]Group, error) {
	return svc.store.QueryGroups(ctx, schoolID)
}

func (svc *CatalogService) UpdateGroup(ctx context.Context, schoolID, id string, ug UpdateGroup) (Group, error) {
	if err := ug.Validate(); err != nil {
		return Group{}, err
	}
	var grp Group
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		var err error
		if grp, err = repo.GetGroup(ctx, schoolID, id); err != nil {
			return err
		}
		if ug.Name != nil {
			if err = svc.checkName(ctx, repo, EntityGroup, schoolID, "name", *ug.Name, id); err != nil {
				return err
			}
			grp.Name = *ug.Name
		}
		if ug.FeeTypeIDs != nil {
			if err = svc.checkFeeTypes(ctx, repo, schoolID, ug.FeeTypeIDs); err != nil {
				return err
			}
			grp.FeeTypeIDs = ug.FeeTypeIDs
		}
		grp.UpdatedAt = core.NowFunc()
		grp, err = repo.UpdateGroup(ctx, grp)
		return err
	})
	if err != nil {
		return Group{}, errors.Wrap(mapNameErr(err, EntityGroup, "name"), "updating fee type group")
	}
	return grp, nil
}

func (svc *CatalogService) DeleteGroup(ctx context.Context, schoolID, id string) error {
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetGroup(ctx, schoolID, id); err != nil {
			return err
		}
		if err := svc.checkDelete(ctx, repo, EntityGroup, schoolID, id); err != nil {
			return err
		}
		return repo.DeleteGroup(ctx, schoolID, id)
	})
	return errors.Wrap(err, "deleting fee type group")
}

// Installment plans

func (svc *CatalogService) CreatePlan(ctx context.Context, schoolID string, np NewPlan) (Plan, error) {
	if err := checkSchool(schoolID); err != nil {
		return Plan{}, err
	}
	if err := np.Validate(); err != nil {
		return Plan{}, err
	}
	now := core.NowFunc()
	plan := Plan{
		SchoolID:    schoolID,
		Title:       np.Title,
		StartDate:   core.Date(np.StartDate),
		EndDate:     core.Date(np.EndDate),
		LastDate:    core.Date(np.LastDate),
		Description: np.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if err := svc.checkName(ctx, repo, EntityPlan, schoolID, "title", plan.Title, ""); err != nil {
			return err
		}
		var err error
		plan, err = repo.CreatePlan(ctx, plan)
		return err
	})
	if err != nil {
		return Plan{}, errors.Wrap(mapNameErr(err, EntityPlan, "title"), "creating installment plan")
	}
	return plan, nil
}

func (svc *CatalogService) GetPlan(ctx context.Context, schoolID, id string) (Plan, error) {
	return svc.store.GetPlan(ctx, schoolID, id)
}

func (svc *CatalogService) QueryPlans(ctx context.Context, schoolID string) ([]Plan, error) {
	return svc.store.QueryPlans(ctx, schoolID)
}

func (svc *CatalogService) UpdatePlan(ctx context.Context, schoolID, id string, up UpdatePlan) (Plan, error) {
	if err := up.Validate(); err != nil {
		return Plan{}, err
	}
	var plan Plan
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		var err error
		if plan, err = repo.GetPlan(ctx, schoolID, id); err != nil {
			return err
		}
		if up.Title != nil {
			if err = svc.checkName(ctx, repo, EntityPlan, schoolID, "title", *up.Title, id); err != nil {
				return err
			}
			plan.Title = *up.Title
		}
		if up.StartDate != nil {
			plan.StartDate = core.Date(*up.StartDate)
		}
		if up.EndDate != nil {
			plan.EndDate = core.Date(*up.EndDate)
		}
		if up.LastDate != nil {
			plan.LastDate = core.Date(*up.LastDate)
		}
		if up.Description != nil {
			plan.Description = core.CleanStringPtr(up.Description)
		}
		// the merged plan must still hold a valid window
		merged := NewPlan{Title: plan.Title, StartDate: plan.StartDate, EndDate: plan.EndDate, LastDate: plan.LastDate}
		if err = core.ValidateStruct(merged); err != nil {
			return err
		}
		plan.UpdatedAt = core.NowFunc()
		plan, err = repo.UpdatePlan(ctx, plan)
		return err
	})
	if err != nil {
		return Plan{}, errors.Wrap(mapNameErr(err, EntityPlan, "title"), "updating installment plan")
	}
	return plan, nil
}

func (svc *CatalogService) DeletePlan(ctx context.Context, schoolID, id string) error {
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetPlan(ctx, schoolID, id); err != nil {
			return err
		}
		if err := svc.checkDelete(ctx, repo, EntityPlan, schoolID, id); err != nil {
			return err
		}
		return repo.DeletePlan(ctx, schoolID, id)
	})
	return errors.Wrap(err, "deleting installment plan")
}

// Concession types

func (svc *CatalogService) CreateConcessionType(ctx context.Context, schoolID string, nc NewConcessionType) (ConcessionType, error) {
	if err := checkSchool(schoolID); err != nil {
		return ConcessionType{}, err
	}
	if err := nc.Validate(); err != nil {
		return ConcessionType{}, err
	}
	now := core.NowFunc()
	ct := ConcessionType{
		SchoolID:    schoolID,
		Title:       nc.Title,
		Description: nc.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if err := svc.checkName(ctx, repo, EntityConcessionType, schoolID, "title", ct.Title, ""); err != nil {
			return err
		}
		var err error
		ct, err = repo.CreateConcessionType(ctx, ct)
		return err
	})
	if err != nil {
		return ConcessionType{}, errors.Wrap(mapNameErr(err, EntityConcessionType, "title"), "creating concession type")
	}
	return ct, nil
}

func (svc *CatalogService) GetConcessionType(ctx context.Context, schoolID, id string) (ConcessionType, error) {
	return svc.store.GetConcessionType(ctx, schoolID, id)
}

func (svc *CatalogService) QueryConcessionTypes(ctx context.Context, schoolID string) ([]ConcessionType, error) {
	return svc.store.QueryConcessionTypes(ctx, schoolID)
}

func (svc *CatalogService) UpdateConcessionType(ctx context.Context, schoolID, id string, uc UpdateConcessionType) (ConcessionType, error) {
	if err := uc.Validate(); err != nil {
		return ConcessionType{}, err
	}
	var ct ConcessionType
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		var err error
		if ct, err = repo.GetConcessionType(ctx, schoolID, id); err != nil {
			return err
		}
		if uc.Title != nil {
			if err = svc.checkName(ctx, repo, EntityConcessionType, schoolID, "title", *uc.Title, id); err != nil {
				return err
			}
			ct.Title = *uc.Title
		}
		if uc.Description != nil {
			ct.Description = core.CleanStringPtr(uc.Description)
		}
		ct.UpdatedAt = core.NowFunc()
		ct, err = repo.UpdateConcessionType(ctx, ct)
		return err
	})
	if err != nil {
		return ConcessionType{}, errors.Wrap(mapNameErr(err, EntityConcessionType, "title"), "updating concession type")
	}
	return ct, nil
}

func (svc *CatalogService) DeleteConcessionType(ctx context.Context, schoolID, id string) error {
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetConcessionType(ctx, schoolID, id); err != nil {
			return err
		}
		if err := svc.checkDelete(ctx, repo, EntityConcessionType, schoolID, id); err != nil {
			return err
		}
		return repo.DeleteConcessionType(ctx, schoolID, id)
	})
	return errors.Wrap(err, "deleting concession type")
}

// Fee structures

func (svc *CatalogService) checkCategories(ctx context.Context, repo Repository, schoolID string, items map[string]string) error {
	for catID, field := range items {
		if _, err := repo.GetCategory(ctx, schoolID, catID); err != nil {
			return refError(err, field)
		}
	}
	return nil
}

func itemFields(items map[string]decimal.Decimal) map[string]string {
	fields := make(map[string]string, len(items))
	for catID := range items {
		fields[catID] = "structure[" + catID + "]"
	}
	return fields
}

func (svc *CatalogService) CreateStructure(ctx context.Context, schoolID string, ns NewStructure) (Structure, error) {
	if err := checkSchool(schoolID); err != nil {
		return Structure{}, err
	}
	if err := ns.Validate(); err != nil {
		return Structure{}, err
	}
	now := core.NowFunc()
	st := Structure{
		SchoolID:       schoolID,
		ClassID:        ns.ClassID,
		AcademicYearID: ns.AcademicYearID,
		Items:          ns.Items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if err := svc.checkCategories(ctx, repo, schoolID, itemFields(st.Items)); err != nil {
			return err
		}
		_, err := repo.GetStructureFor(ctx, schoolID, st.ClassID, st.AcademicYearID)
		switch {
		case err == nil:
			return fieldError("class_id", "a fee structure already exists for this class and academic year")
		case !core.IsNotFound(err):
			return err
		}
		st, err = repo.CreateStructure(ctx, st)
		return err
	})
	if err != nil {
		return Structure{}, errors.Wrap(mapNameErr(err, EntityStructure, "class_id"), "creating fee structure")
	}
	return st, nil
}

func (svc *CatalogService) GetStructure(ctx context.Context, schoolID, id string) (Structure, error) {
	return svc.store.GetStructure(ctx, schoolID, id)
}

func (svc *CatalogService) QueryStructures(ctx context.Context, schoolID string) ([]Structure, error) {
	return svc.store.QueryStructures(ctx, schoolID)
}

func (svc *CatalogService) UpdateStructure(ctx context.Context, schoolID, id string, us UpdateStructure) (Structure, error) {
	if err := us.Validate(); err != nil {
		return Structure{}, err
	}
	var st Structure
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		var err error
		if st, err = repo.GetStructure(ctx, schoolID, id); err != nil {
			return err
		}
		if err = svc.checkCategories(ctx, repo, schoolID, itemFields(us.Items)); err != nil {
			return err
		}
		st.Items = us.Items
		st.UpdatedAt = core.NowFunc()
		st, err = repo.UpdateStructure(ctx, st)
		return err
	})
	if err != nil {
		return Structure{}, errors.Wrap(err, "updating fee structure")
	}
	return st, nil
}

func (svc *CatalogService) DeleteStructure(ctx context.Context, schoolID, id string) error {
	err := svc.store.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetStructure(ctx, schoolID, id); err != nil {
			return err
		}
		return repo.DeleteStructure(ctx, schoolID, id)
	})
	return errors.Wrap(err, "deleting fee structure")
}
