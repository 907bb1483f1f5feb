package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func copyIDs(ids []string) []string {
	return append([]string(nil), ids...)
}

func copyItems(items map[string]decimal.Decimal) map[string]decimal.Decimal {
	c := make(map[string]decimal.Decimal, len(items))
	for k, v := range items {
		c[k] = v
	}
	return c
}

func byName(a, b, idA, idB string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return idA < idB
	}
	return la < lb
}

// Categories

func (r *repository) CreateCategory(_ context.Context, cat fee.Category) (fee.Category, error) {
	defer r.lock()()
	t := r.tbl()
	if r.nameExists(t, fee.EntityCategory, cat.SchoolID, cat.Name, "") {
		return fee.Category{}, fee.ErrNameTaken
	}
	cat.ID = newID(cat.ID)
	t.categories[cat.ID] = cat
	return cat, nil
}

func (r *repository) GetCategory(_ context.Context, schoolID, id string) (fee.Category, error) {
	defer r.rlock()()
	if cat, ok := r.tbl().categories[id]; ok && cat.SchoolID == schoolID {
		return cat, nil
	}
	return fee.Category{}, core.NewNotFoundError(fee.EntityCategory, id)
}

func (r *repository) QueryCategories(_ context.Context, schoolID string) ([]fee.Category, error) {
	defer r.rlock()()
	cats := make([]fee.Category, 0)
	for _, cat := range r.tbl().categories {
		if cat.SchoolID == schoolID {
			cats = append(cats, cat)
		}
	}
	sort.Slice(cats, func(i, j int) bool { return byName(cats[i].Name, cats[j].Name, cats[i].ID, cats[j].ID) })
	return cats, nil
}

func (r *repository) UpdateCategory(_ context.Context, cat fee.Category) (fee.Category, error) {
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.categories[cat.ID]
	if !ok || orig.SchoolID != cat.SchoolID {
		return fee.Category{}, core.NewNotFoundError(fee.EntityCategory, cat.ID)
	}
	if r.nameExists(t, fee.EntityCategory, cat.SchoolID, cat.Name, cat.ID) {
		return fee.Category{}, fee.ErrNameTaken
	}
	cat.CreatedAt = orig.CreatedAt
	t.categories[cat.ID] = cat
	return cat, nil
}

func (r *repository) DeleteCategory(_ context.Context, schoolID, id string) error {
	defer r.lock()()
	t := r.tbl()
	if cat, ok := t.categories[id]; !ok || cat.SchoolID != schoolID {
		return core.NewNotFoundError(fee.EntityCategory, id)
	}
	delete(t.categories, id)
	return nil
}

// Fee types

func (r *repository) CreateFeeType(_ context.Context, ft fee.FeeType) (fee.FeeType, error) {
	defer r.lock()()
	t := r.tbl()
	if r.nameExists(t, fee.EntityFeeType, ft.SchoolID, ft.Name, "") {
		return fee.FeeType{}, fee.ErrNameTaken
	}
	ft.ID = newID(ft.ID)
	t.feeTypes[ft.ID] = ft
	return ft, nil
}

func (r *repository) GetFeeType(_ context.Context, schoolID, id string) (fee.FeeType, error) {
	defer r.rlock()()
	if ft, ok := r.tbl().feeTypes[id]; ok && ft.SchoolID == schoolID {
		return ft, nil
	}
	return fee.FeeType{}, core.NewNotFoundError(fee.EntityFeeType, id)
}

func (r *repository) QueryFeeTypes(_ context.Context, schoolID string) ([]fee.FeeType, error) {
	defer r.rlock()()
	fts := make([]fee.FeeType, 0)
	for _, ft := range r.tbl().feeTypes {
		if ft.SchoolID == schoolID {
			fts = append(fts, ft)
		}
	}
	sort.Slice(fts, func(i, j int) bool { return byName(fts[i].Name, fts[j].Name, fts[i].ID, fts[j].ID) })
	return fts, nil
}

func (r *repository) UpdateFeeType(_ context.Context, ft fee.FeeType) (fee.FeeType, error) {
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.feeTypes[ft.ID]
	if !ok || orig.SchoolID != ft.SchoolID {
		return fee.FeeType{}, core.NewNotFoundError(fee.EntityFeeType, ft.ID)
	}
	if r.nameExists(t, fee.EntityFeeType, ft.SchoolID, ft.Name, ft.ID) {
		return fee.FeeType{}, fee.ErrNameTaken
	}
	ft.CreatedAt = orig.CreatedAt
	t.feeTypes[ft.ID] = ft
	return ft, nil
}

func (r *repository) DeleteFeeType(_ context.Context, schoolID, id string) error {
	defer r.lock()()
	t := r.tbl()
	if ft, ok := t.feeTypes[id]; !ok || ft.SchoolID != schoolID {
		return core.NewNotFoundError(fee.EntityFeeType, id)
	}
	delete(t.feeTypes, id)
	return nil
}

// Groups

func (r *repository) CreateGroup(_ context.Context, grp fee.Group) (fee.Group, error) {
	defer r.lock()()
	t := r.tbl()
	if r.nameExists(t, fee.EntityGroup, grp.SchoolID, grp.Name, "") {
		return fee.Group{}, fee.ErrNameTaken
	}
	grp.ID = newID(grp.ID)
	grp.FeeTypeIDs = copyIDs(grp.FeeTypeIDs)
	t.groups[grp.ID] = grp
	return grp, nil
}

func (r *repository) GetGroup(_ context.Context, schoolID, id string) (fee.Group, error) {
	defer r.rlock()()
	if grp, ok := r.tbl().groups[id]; ok && grp.SchoolID == schoolID {
		grp.FeeTypeIDs = copyIDs(grp.FeeTypeIDs)
		return grp, nil
	}
	return fee.Group{}, core.NewNotFoundError(fee.EntityGroup, id)
}

func (r *repository) QueryGroups(_ context.Context, schoolID string) ([]fee.Group, error) {
	defer r.rlock()()
	grps := make([]fee.Group, 0)
	for _, grp := range r.tbl().groups {
		if grp.SchoolID == schoolID {
			grp.FeeTypeIDs = copyIDs(grp.FeeTypeIDs)
			grps = append(grps, grp)
		}
	}
	sort.Slice(grps, func(i, j int) bool { return byName(grps[i].Name, grps[j].Name, grps[i].ID, grps[j].ID) })
	return grps, nil
}

func (r *repository) UpdateGroup(_ context.Context, grp fee.Group) (fee.Group, error) {
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.groups[grp.ID]
	if !ok || orig.SchoolID != grp.SchoolID {
		return fee.Group{}, core.NewNotFoundError(fee.EntityGroup, grp.ID)
	}
	if r.nameExists(t, fee.EntityGroup, grp.SchoolID, grp.Name, grp.ID) {
		return fee.Group{}, fee.ErrNameTaken
	}
	grp.CreatedAt = orig.CreatedAt
	grp.FeeTypeIDs = copyIDs(grp.FeeTypeIDs)
	t.groups[grp.ID] = grp
	return grp, nil
}

func (r *repository) DeleteGroup(_ context.Context, schoolID, id string) error {
	defer r.lock()()
	t := r.tbl()
	if grp, ok := t.groups[id]; !ok || grp.SchoolID != schoolID {
		return core.NewNotFoundError(fee.EntityGroup, id)
	}
	delete(t.groups, id)
	return nil
}

// Installment plans

func (r *repository) CreatePlan(_ context.Context, plan fee.Plan) (fee.Plan, error) {
	defer r.lock()()
	t := r.tbl()
	if r.nameExists(t, fee.EntityPlan, plan.SchoolID, plan.Title, "") {
		return fee.Plan{}, fee.ErrNameTaken
	}
	plan.ID = newID(plan.ID)
	t.plans[plan.ID] = plan
	return plan, nil
}

func (r *repository) GetPlan(_ context.Context, schoolID, id string) (fee.Plan, error) {
	defer r.rlock()()
	if plan, ok := r.tbl().plans[id]; ok && plan.SchoolID == schoolID {
		return plan, nil
	}
	return fee.Plan{}, core.NewNotFoundError(fee.EntityPlan, id)
}

func (r *repository) QueryPlans(_ context.Context, schoolID string) ([]fee.Plan, error) {
	defer r.rlock()()
	plans := make([]fee.Plan, 0)
	for _, plan := range r.tbl().plans {
		if plan.SchoolID == schoolID {
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].StartDate.Equal(plans[j].StartDate) {
			return byName(plans[i].Title, plans[j].Title, plans[i].ID, plans[j].ID)
		}
		return plans[i].StartDate.Before(plans[j].StartDate)
	})
	return plans, nil
}

func (r *repository) UpdatePlan(_ context.Context, plan fee.Plan) (fee.Plan, error) {
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.plans[plan.ID]
	if !ok || orig.SchoolID != plan.SchoolID {
		return fee.Plan{}, core.NewNotFoundError(fee.EntityPlan, plan.ID)
	}
	if r.nameExists(t, fee.EntityPlan, plan.SchoolID, plan.Title, plan.ID) {
		return fee.Plan{}, fee.ErrNameTaken
	}
	plan.CreatedAt = orig.CreatedAt
	t.plans[plan.ID] = plan
	return plan, nil
}

func (r *repository) DeletePlan(_ context.Context, schoolID, id string) error {
	defer r.lock()()
	t := r.tbl()
	if plan, ok := t.plans[id]; !ok || plan.SchoolID != schoolID {
		return core.NewNotFoundError(fee.EntityPlan, id)
	}
	delete(t.plans, id)
	return nil
}

// Concession types

func (r *repository) CreateConcessionType(_ context.Context, ct fee.ConcessionType) (fee.ConcessionType, error) {
	defer r.lock()()
	t := r.tbl()
	if r.nameExists(t, fee.EntityConcessionType, ct.SchoolID, ct.Title, "") {
		return fee.ConcessionType{}, fee.ErrNameTaken
	}
	ct.ID = newID(ct.ID)
	t.concessionTypes[ct.ID] = ct
	return ct, nil
}

func (r *repository) GetConcessionType(_ context.Context, schoolID, id string) (fee.ConcessionType, error) {
	defer r.rlock()()
	if ct, ok := r.tbl().concessionTypes[id]; ok && ct.SchoolID == schoolID {
		return ct, nil
	}
	return fee.ConcessionType{}, core.NewNotFoundError(fee.EntityConcessionType, id)
}

func (r *repository) QueryConcessionTypes(_ context.Context, schoolID string) ([]fee.ConcessionType, error) {
	defer r.rlock()()
	cts := make([]fee.ConcessionType, 0)
	for _, ct := range r.tbl().concessionTypes {
		if ct.SchoolID == schoolID {
			cts = append(cts, ct)
		}
	}
	sort.Slice(cts, func(i, j int) bool { return byName(cts[i].Title, cts[j].Title, cts[i].ID, cts[j].ID) })
	return cts, nil
}

func (r *repository) UpdateConcessionType(_ context.Context, ct fee.ConcessionType) (fee.ConcessionType, error) {
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.concessionTypes[ct.ID]
	if !ok || orig.SchoolID != ct.SchoolID {
		return fee.ConcessionType{}, core.NewNotFoundError(fee.EntityConcessionType, ct.ID)
	}
	if r.nameExists(t, fee.EntityConcessionType, ct.SchoolID, ct.Title, ct.ID) {
		return fee.ConcessionType{}, fee.ErrNameTaken
	}
	ct.CreatedAt = orig.CreatedAt
	t.concessionTypes[ct.ID] = ct
	return ct, nil
}

func (r *repository) DeleteConcessionType(_ context.Context, schoolID, id string) error {
	defer r.lock()()
	t := r.tbl()
	if ct, ok := t.concessionTypes[id]; !ok || ct.SchoolID != schoolID {
		return core.NewNotFoundError(fee.EntityConcessionType, id)
	}
	delete(t.concessionTypes, id)
	return nil
}

// Fee structures

func (r *repository) CreateStructure(_ context.Context, st fee.Structure) (fee.Structure, error) {
	defer r.lock()()
	t := r.tbl()
	for _, other := range t.structures {
		if other.SchoolID == st.SchoolID && other.ClassID == st.ClassID && other.AcademicYearID == st.AcademicYearID {
			return fee.Structure{}, fee.ErrNameTaken
		}
	}
	st.ID = newID(st.ID)
	st.Items = copyItems(st.Items)
	t.structures[st.ID] = st
	return st, nil
}

func (r *repository) GetStructure(_ context.Context, schoolID, id string) (fee.Structure, error) {
	defer r.rlock()()
	if st, ok := r.tbl().structures[id]; ok && st.SchoolID == schoolID {
		st.Items = copyItems(st.Items)
		return st, nil
	}
	return fee.Structure{}, core.NewNotFoundError(fee.EntityStructure, id)
}

func (r *repository) GetStructureFor(_ context.Context, schoolID, classID, academicYearID string) (fee.Structure, error) {
	defer r.rlock()()
	for _, st := range r.tbl().structures {
		if st.SchoolID == schoolID && st.ClassID == classID && st.AcademicYearID == academicYearID {
			st.Items = copyItems(st.Items)
			return st, nil
		}
	}
	return fee.Structure{}, core.NewNotFoundError(fee.EntityStructure, classID+"/"+academicYearID)
}

func (r *repository) QueryStructures(_ context.Context, schoolID string) ([]fee.Structure, error) {
	defer r.rlock()()
	sts := make([]fee.Structure, 0)
	for _, st := range r.tbl().structures {
		if st.SchoolID == schoolID {
			st.Items = copyItems(st.Items)
			sts = append(sts, st)
		}
	}
	sort.Slice(sts, func(i, j int) bool {
		if sts[i].ClassID == sts[j].ClassID {
			return sts[i].AcademicYearID < sts[j].AcademicYearID
		}
		return sts[i].ClassID < sts[j].ClassID
	})
	return sts, nil
}

func (r *repository) UpdateStructure(_ context.Context, st fee.Structure) (fee.Structure, error) {
	defer r.lock()()
	t := r.tbl()
	orig, ok := t.structures[st.ID]
	if !ok || orig.SchoolID != st.SchoolID {
		return fee.Structure{}, core.NewNotFoundError(fee.EntityStructure, st.ID)
	}
	// class and academic year are immutable
	orig.Items = copyItems(st.Items)
	orig.UpdatedAt = st.UpdatedAt
	t.structures[st.ID] = orig
	orig.Items = copyItems(orig.Items)
	return orig, nil
}

func (r *repository) DeleteStructure(_ context.Context, schoolID, id string) error {
	defer r.lock()()
	t := r.tbl()
	if st, ok := t.structures[id]; !ok || st.SchoolID != schoolID {
		return core.NewNotFoundError(fee.EntityStructure, id)
	}
	delete(t.structures, id)
	return nil
}

// Integrity

func (r *repository) NameExists(_ context.Context, entity, schoolID, name, excludeID string) (bool, error) {
	defer r.rlock()()
	return r.nameExists(r.tbl(), entity, schoolID, name, excludeID), nil
}

func (r *repository) nameExists(t *tables, entity, schoolID, name, excludeID string) bool {
	match := func(sID, id, n string) bool {
		return sID == schoolID && id != excludeID && strings.EqualFold(n, name)
	}
	switch entity {
	case fee.EntityCategory:
		for _, v := range t.categories {
			if match(v.SchoolID, v.ID, v.Name) {
				return true
			}
		}
	case fee.EntityFeeType:
		for _, v := range t.feeTypes {
			if match(v.SchoolID, v.ID, v.Name) {
				return true
			}
		}
	case fee.EntityGroup:
		for _, v := range t.groups {
			if match(v.SchoolID, v.ID, v.Name) {
				return true
			}
		}
	case fee.EntityPlan:
		for _, v := range t.plans {
			if match(v.SchoolID, v.ID, v.Title) {
				return true
			}
		}
	case fee.EntityConcessionType:
		for _, v := range t.concessionTypes {
			if match(v.SchoolID, v.ID, v.Title) {
				return true
			}
		}
	}
	return false
}

func (r *repository) CountReferences(_ context.Context, entity, schoolID, id string) (map[string]int, error) {
	defer r.rlock()()
	t := r.tbl()
	refs := make(map[string]int)
	count := func(kind string, ok bool) {
		if ok {
			refs[kind]++
		}
	}

	for _, p := range t.payments {
		if p.SchoolID != schoolID {
			continue
		}
		switch entity {
		case fee.EntityCategory:
			count(fee.RefPayments, p.CategoryID != nil && *p.CategoryID == id)
		case fee.EntityFeeType:
			count(fee.RefPayments, p.FeeTypeID != nil && *p.FeeTypeID == id)
		case fee.EntityGroup:
			count(fee.RefPayments, p.GroupID != nil && *p.GroupID == id)
		case fee.EntityPlan:
			count(fee.RefPayments, p.InstallmentID != nil && *p.InstallmentID == id)
		}
	}

	switch entity {
	case fee.EntityCategory:
		for _, ft := range t.feeTypes {
			count(fee.RefFeeTypes, ft.SchoolID == schoolID && ft.CategoryID == id)
		}
		for _, st := range t.structures {
			_, ok := st.Items[id]
			count(fee.RefStructureItems, st.SchoolID == schoolID && ok)
		}
	case fee.EntityFeeType:
		for _, grp := range t.groups {
			count(fee.RefGroups, grp.SchoolID == schoolID && contains(grp.FeeTypeIDs, id))
		}
	case fee.EntityConcessionType:
		for _, c := range t.concessions {
			count(fee.RefConcessions, c.SchoolID == schoolID && c.ConcessionTypeID == id)
		}
	}
	return refs, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
