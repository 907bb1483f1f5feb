package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

var (
	categoryColumns       = []string{"id", "school_id", "name", "description", "created_at", "updated_at"}
	feeTypeColumns        = []string{"id", "school_id", "name", "display_name", "fee_category_id", "installment_type", "is_refundable", "default_amount", "description", "created_at", "updated_at"}
	groupColumns          = []string{"id", "school_id", "name", "created_at", "updated_at"}
	groupItemColumns      = []string{"fee_type_group_id", "fee_type_id", "position"}
	planColumns           = []string{"id", "school_id", "title", "start_date", "end_date", "last_date", "description", "created_at", "updated_at"}
	concessionTypeColumns = []string{"id", "school_id", "title", "description", "created_at", "updated_at"}
	structureColumns      = []string{"id", "school_id", "class_id", "academic_year_id", "created_at", "updated_at"}
	structureItemColumns  = []string{"fee_structure_id", "fee_category_id", "amount"}

	// {entity: {table, name column}}
	nameColumns = map[string][2]string{
		fee.EntityCategory:       {"fee_categories", "name"},
		fee.EntityFeeType:        {"fee_types", "name"},
		fee.EntityGroup:          {"fee_type_groups", "name"},
		fee.EntityPlan:           {"installment_plans", "title"},
		fee.EntityConcessionType: {"concession_types", "title"},
	}
)

func selectQuery(table string, cols []string, where string) string {
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + table + " WHERE " + where
}

func insertQuery(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)", table, strings.Join(cols, ", "), strings.Join(cols, ", :"))
}

// updateQuery sets every column but the keys and created_at, for the row of the school.
func updateQuery(table string, cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		switch col {
		case "id", "school_id", "created_at":
			continue
		}
		sets = append(sets, col+" = :"+col)
	}
	return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE id = :id AND school_id = :school_id"
}

func (r *repository) insert(ctx context.Context, table string, cols []string, row interface{}, entity string) error {
	if _, err := sqlx.NamedExecContext(ctx, r.exec, insertQuery(table, cols), row); err != nil {
		return mapErr(err, "inserting "+entity)
	}
	return nil
}

func (r *repository) update(ctx context.Context, table string, cols []string, row interface{}, entity, id string) error {
	if !validID(id) {
		return core.NewNotFoundError(entity, id)
	}
	res, err := sqlx.NamedExecContext(ctx, r.exec, updateQuery(table, cols), row)
	if err != nil {
		return mapErr(err, "updating "+entity)
	}
	return checkAffected(res, entity, id)
}

// Categories

func (r *repository) CreateCategory(ctx context.Context, cat fee.Category) (fee.Category, error) {
	cat.ID = newID(cat.ID)
	row := boilCategory(cat)
	if err := r.insert(ctx, "fee_categories", categoryColumns, row, fee.EntityCategory); err != nil {
		return fee.Category{}, err
	}
	return unboilCategory(row), nil
}

func (r *repository) GetCategory(ctx context.Context, schoolID, id string) (fee.Category, error) {
	var row categoryRow
	q := selectQuery("fee_categories", categoryColumns, "id = $1 AND school_id = $2")
	if err := r.get(ctx, &row, fee.EntityCategory, id, q, id, schoolID); err != nil {
		return fee.Category{}, err
	}
	return unboilCategory(row), nil
}

func (r *repository) QueryCategories(ctx context.Context, schoolID string) ([]fee.Category, error) {
	var rows []categoryRow
	q := selectQuery("fee_categories", categoryColumns, "school_id = $1 ORDER BY lower(name), id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID); err != nil {
		return nil, mapErr(err, "querying fee categories")
	}
	cats := make([]fee.Category, 0, len(rows))
	for _, row := range rows {
		cats = append(cats, unboilCategory(row))
	}
	return cats, nil
}

func (r *repository) UpdateCategory(ctx context.Context, cat fee.Category) (fee.Category, error) {
	row := boilCategory(cat)
	if err := r.update(ctx, "fee_categories", categoryColumns, row, fee.EntityCategory, cat.ID); err != nil {
		return fee.Category{}, err
	}
	return unboilCategory(row), nil
}

func (r *repository) DeleteCategory(ctx context.Context, schoolID, id string) error {
	return r.delete(ctx, "fee_categories", fee.EntityCategory, schoolID, id)
}

// Fee types

func (r *repository) CreateFeeType(ctx context.Context, ft fee.FeeType) (fee.FeeType, error) {
	ft.ID = newID(ft.ID)
	row := boilFeeType(ft)
	if err := r.insert(ctx, "fee_types", feeTypeColumns, row, fee.EntityFeeType); err != nil {
		return fee.FeeType{}, err
	}
	return unboilFeeType(row), nil
}

func (r *repository) GetFeeType(ctx context.Context, schoolID, id string) (fee.FeeType, error) {
	var row feeTypeRow
	q := selectQuery("fee_types", feeTypeColumns, "id = $1 AND school_id = $2")
	if err := r.get(ctx, &row, fee.EntityFeeType, id, q, id, schoolID); err != nil {
		return fee.FeeType{}, err
	}
	return unboilFeeType(row), nil
}

func (r *repository) QueryFeeTypes(ctx context.Context, schoolID string) ([]fee.FeeType, error) {
	var rows []feeTypeRow
	q := selectQuery("fee_types", feeTypeColumns, "school_id = $1 ORDER BY lower(name), id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID); err != nil {
		return nil, mapErr(err, "querying fee types")
	}
	fts := make([]fee.FeeType, 0, len(rows))
	for _, row := range rows {
		fts = append(fts, unboilFeeType(row))
	}
	return fts, nil
}

func (r *repository) UpdateFeeType(ctx context.Context, ft fee.FeeType) (fee.FeeType, error) {
	row := boilFeeType(ft)
	if err := r.update(ctx, "fee_types", feeTypeColumns, row, fee.EntityFeeType, ft.ID); err != nil {
		return fee.FeeType{}, err
	}
	return unboilFeeType(row), nil
}

func (r *repository) DeleteFeeType(ctx context.Context, schoolID, id string) error {
	return r.delete(ctx, "fee_types", fee.EntityFeeType, schoolID, id)
}

// Groups

func (r *repository) insertGroupItems(ctx context.Context, items []groupItemRow) error {
	q := insertQuery("fee_type_group_items", groupItemColumns)
	for _, it := range items {
		if _, err := sqlx.NamedExecContext(ctx, r.exec, q, it); err != nil {
			return mapErr(err, "inserting fee type group item")
		}
	}
	return nil
}

// groupItems returns the items of the groups, by group id, in position order.
func (r *repository) groupItems(ctx context.Context, groupIDs []string) (map[string][]groupItemRow, error) {
	items := make(map[string][]groupItemRow, len(groupIDs))
	if len(groupIDs) == 0 {
		return items, nil
	}
	var rows []groupItemRow
	q := selectQuery("fee_type_group_items", groupItemColumns, "fee_type_group_id = ANY($1) ORDER BY fee_type_group_id, position")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, pq.Array(groupIDs)); err != nil {
		return nil, mapErr(err, "querying fee type group items")
	}
	for _, row := range rows {
		items[row.GroupID] = append(items[row.GroupID], row)
	}
	return items, nil
}

func (r *repository) CreateGroup(ctx context.Context, grp fee.Group) (fee.Group, error) {
	grp.ID = newID(grp.ID)
	row, items := boilGroup(grp)
	if err := r.insert(ctx, "fee_type_groups", groupColumns, row, fee.EntityGroup); err != nil {
		return fee.Group{}, err
	}
	if err := r.insertGroupItems(ctx, items); err != nil {
		return fee.Group{}, err
	}
	return unboilGroup(row, items), nil
}

func (r *repository) GetGroup(ctx context.Context, schoolID, id string) (fee.Group, error) {
	var row groupRow
	q := selectQuery("fee_type_groups", groupColumns, "id = $1 AND school_id = $2")
	if err := r.get(ctx, &row, fee.EntityGroup, id, q, id, schoolID); err != nil {
		return fee.Group{}, err
	}
	items, err := r.groupItems(ctx, []string{row.ID})
	if err != nil {
		return fee.Group{}, err
	}
	return unboilGroup(row, items[row.ID]), nil
}

func (r *repository) QueryGroups(ctx context.Context, schoolID string) ([]fee.Group, error) {
	var rows []groupRow
	q := selectQuery("fee_type_groups", groupColumns, "school_id = $1 ORDER BY lower(name), id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID); err != nil {
		return nil, mapErr(err, "querying fee type groups")
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	items, err := r.groupItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	grps := make([]fee.Group, 0, len(rows))
	for _, row := range rows {
		grps = append(grps, unboilGroup(row, items[row.ID]))
	}
	return grps, nil
}

func (r *repository) UpdateGroup(ctx context.Context, grp fee.Group) (fee.Group, error) {
	row, items := boilGroup(grp)
	if err := r.update(ctx, "fee_type_groups", groupColumns, row, fee.EntityGroup, grp.ID); err != nil {
		return fee.Group{}, err
	}
	if _, err := r.exec.ExecContext(ctx, "DELETE FROM fee_type_group_items WHERE fee_type_group_id = $1", grp.ID); err != nil {
		return fee.Group{}, mapErr(err, "replacing fee type group items")
	}
	if err := r.insertGroupItems(ctx, items); err != nil {
		return fee.Group{}, err
	}
	return unboilGroup(row, items), nil
}

func (r *repository) DeleteGroup(ctx context.Context, schoolID, id string) error {
	return r.delete(ctx, "fee_type_groups", fee.EntityGroup, schoolID, id)
}

// Installment plans

func (r *repository) CreatePlan(ctx context.Context, plan fee.Plan) (fee.Plan, error) {
	plan.ID = newID(plan.ID)
	row := boilPlan(plan)
	if err := r.insert(ctx, "installment_plans", planColumns, row, fee.EntityPlan); err != nil {
		return fee.Plan{}, err
	}
	return unboilPlan(row), nil
}

func (r *repository) GetPlan(ctx context.Context, schoolID, id string) (fee.Plan, error) {
	var row planRow
	q := selectQuery("installment_plans", planColumns, "id = $1 AND school_id = $2")
	if err := r.get(ctx, &row, fee.EntityPlan, id, q, id, schoolID); err != nil {
		return fee.Plan{}, err
	}
	return unboilPlan(row), nil
}

func (r *repository) QueryPlans(ctx context.Context, schoolID string) ([]fee.Plan, error) {
	var rows []planRow
	q := selectQuery("installment_plans", planColumns, "school_id = $1 ORDER BY start_date, lower(title), id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID); err != nil {
		return nil, mapErr(err, "querying installment plans")
	}
	plans := make([]fee.Plan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, unboilPlan(row))
	}
	return plans, nil
}

func (r *repository) UpdatePlan(ctx context.Context, plan fee.Plan) (fee.Plan, error) {
	row := boilPlan(plan)
	if err := r.update(ctx, "installment_plans", planColumns, row, fee.EntityPlan, plan.ID); err != nil {
		return fee.Plan{}, err
	}
	return unboilPlan(row), nil
}

func (r *repository) DeletePlan(ctx context.Context, schoolID, id string) error {
	return r.delete(ctx, "installment_plans", fee.EntityPlan, schoolID, id)
}

// Concession types

func (r *repository) CreateConcessionType(ctx context.Context, ct fee.ConcessionType) (fee.ConcessionType, error) {
	ct.ID = newID(ct.ID)
	row := boilConcessionType(ct)
	if err := r.insert(ctx, "concession_types", concessionTypeColumns, row, fee.EntityConcessionType); err != nil {
		return fee.ConcessionType{}, err
	}
	return unboilConcessionType(row), nil
}

func (r *repository) GetConcessionType(ctx context.Context, schoolID, id string) (fee.ConcessionType, error) {
	var row concessionTypeRow
	q := selectQuery("concession_types", concessionTypeColumns, "id = $1 AND school_id = $2")
	if err := r.get(ctx, &row, fee.EntityConcessionType, id, q, id, schoolID); err != nil {
		return fee.ConcessionType{}, err
	}
	return unboilConcessionType(row), nil
}

func (r *repository) QueryConcessionTypes(ctx context.Context, schoolID string) ([]fee.ConcessionType, error) {
	var rows []concessionTypeRow
	q := selectQuery("concession_types", concessionTypeColumns, "school_id = $1 ORDER BY lower(title), id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID); err != nil {
		return nil, mapErr(err, "querying concession types")
	}
	cts := make([]fee.ConcessionType, 0, len(rows))
	for _, row := range rows {
		cts = append(cts, unboilConcessionType(row))
	}
	return cts, nil
}

func (r *repository) UpdateConcessionType(ctx context.Context, ct fee.ConcessionType) (fee.ConcessionType, error) {
	row := boilConcessionType(ct)
	if err := r.update(ctx, "concession_types", concessionTypeColumns, row, fee.EntityConcessionType, ct.ID); err != nil {
		return fee.ConcessionType{}, err
	}
	return unboilConcessionType(row), nil
}

func (r *repository) DeleteConcessionType(ctx context.Context, schoolID, id string) error {
	return r.delete(ctx, "concession_types", fee.EntityConcessionType, schoolID, id)
}

// Fee structures

func (r *repository) insertStructureItems(ctx context.Context, items []structureItemRow) error {
	q := insertQuery("fee_structure_items", structureItemColumns)
	for _, it := range items {
		if _, err := sqlx.NamedExecContext(ctx, r.exec, q, it); err != nil {
			return mapErr(err, "inserting fee structure item")
		}
	}
	return nil
}

func (r *repository) structureItems(ctx context.Context, structureIDs []string) (map[string][]structureItemRow, error) {
	items := make(map[string][]structureItemRow, len(structureIDs))
	if len(structureIDs) == 0 {
		return items, nil
	}
	var rows []structureItemRow
	q := selectQuery("fee_structure_items", structureItemColumns, "fee_structure_id = ANY($1)")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, pq.Array(structureIDs)); err != nil {
		return nil, mapErr(err, "querying fee structure items")
	}
	for _, row := range rows {
		items[row.StructureID] = append(items[row.StructureID], row)
	}
	return items, nil
}

func (r *repository) getStructure(ctx context.Context, id, query string, args ...interface{}) (fee.Structure, error) {
	var row structureRow
	if err := r.get(ctx, &row, fee.EntityStructure, id, query, args...); err != nil {
		return fee.Structure{}, err
	}
	items, err := r.structureItems(ctx, []string{row.ID})
	if err != nil {
		return fee.Structure{}, err
	}
	return unboilStructure(row, items[row.ID]), nil
}

func (r *repository) CreateStructure(ctx context.Context, st fee.Structure) (fee.Structure, error) {
	st.ID = newID(st.ID)
	row, items := boilStructure(st)
	if err := r.insert(ctx, "fee_structures", structureColumns, row, fee.EntityStructure); err != nil {
		return fee.Structure{}, err
	}
	if err := r.insertStructureItems(ctx, items); err != nil {
		return fee.Structure{}, err
	}
	return unboilStructure(row, items), nil
}

func (r *repository) GetStructure(ctx context.Context, schoolID, id string) (fee.Structure, error) {
	q := selectQuery("fee_structures", structureColumns, "id = $1 AND school_id = $2")
	return r.getStructure(ctx, id, q, id, schoolID)
}

func (r *repository) GetStructureFor(ctx context.Context, schoolID, classID, academicYearID string) (fee.Structure, error) {
	var row structureRow
	q := selectQuery("fee_structures", structureColumns, "school_id = $1 AND class_id = $2 AND academic_year_id = $3")
	if err := sqlx.GetContext(ctx, r.exec, &row, q, schoolID, classID, academicYearID); err != nil {
		return fee.Structure{}, trapNoRowsErr(err, fee.EntityStructure, classID+"/"+academicYearID, "getting fee structure")
	}
	items, err := r.structureItems(ctx, []string{row.ID})
	if err != nil {
		return fee.Structure{}, err
	}
	return unboilStructure(row, items[row.ID]), nil
}

func (r *repository) QueryStructures(ctx context.Context, schoolID string) ([]fee.Structure, error) {
	var rows []structureRow
	q := selectQuery("fee_structures", structureColumns, "school_id = $1 ORDER BY class_id, academic_year_id")
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, schoolID); err != nil {
		return nil, mapErr(err, "querying fee structures")
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	items, err := r.structureItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	sts := make([]fee.Structure, 0, len(rows))
	for _, row := range rows {
		sts = append(sts, unboilStructure(row, items[row.ID]))
	}
	return sts, nil
}

func (r *repository) UpdateStructure(ctx context.Context, st fee.Structure) (fee.Structure, error) {
	row, items := boilStructure(st)
	if err := r.update(ctx, "fee_structures", structureColumns, row, fee.EntityStructure, st.ID); err != nil {
		return fee.Structure{}, err
	}
	if _, err := r.exec.ExecContext(ctx, "DELETE FROM fee_structure_items WHERE fee_structure_id = $1", st.ID); err != nil {
		return fee.Structure{}, mapErr(err, "replacing fee structure items")
	}
	if err := r.insertStructureItems(ctx, items); err != nil {
		return fee.Structure{}, err
	}
	return unboilStructure(row, items), nil
}

func (r *repository) DeleteStructure(ctx context.Context, schoolID, id string) error {
	return r.delete(ctx, "fee_structures", fee.EntityStructure, schoolID, id)
}

// Integrity

func (r *repository) NameExists(ctx context.Context, entity, schoolID, name, excludeID string) (bool, error) {
	tc, ok := nameColumns[entity]
	if !ok {
		return false, fmt.Errorf("no name column for %s", entity)
	}
	q := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE school_id = $1 AND lower(%s) = lower($2) AND id::text <> $3)",
		tc[0], tc[1])
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec, &exists, q, schoolID, name, excludeID); err != nil {
		return false, mapErr(err, "checking "+entity+" uniqueness")
	}
	return exists, nil
}

// referenceQueries are the counts of the records referencing each catalog entity ($1: school, $2: id).
var referenceQueries = map[string][]struct{ kind, query string }{
	fee.EntityCategory: {
		{fee.RefPayments, "SELECT COUNT(*) FROM fee_assignments WHERE school_id = $1 AND fee_category_id = $2"},
		{fee.RefFeeTypes, "SELECT COUNT(*) FROM fee_types WHERE school_id = $1 AND fee_category_id = $2"},
		{fee.RefStructureItems, `SELECT COUNT(DISTINCT si.fee_structure_id) FROM fee_structure_items si
			JOIN fee_structures s ON s.id = si.fee_structure_id WHERE s.school_id = $1 AND si.fee_category_id = $2`},
	},
	fee.EntityFeeType: {
		{fee.RefPayments, "SELECT COUNT(*) FROM fee_assignments WHERE school_id = $1 AND fee_type_id = $2"},
		{fee.RefGroups, `SELECT COUNT(DISTINCT gi.fee_type_group_id) FROM fee_type_group_items gi
			JOIN fee_type_groups g ON g.id = gi.fee_type_group_id WHERE g.school_id = $1 AND gi.fee_type_id = $2`},
	},
	fee.EntityGroup: {
		{fee.RefPayments, "SELECT COUNT(*) FROM fee_assignments WHERE school_id = $1 AND fee_type_group_id = $2"},
	},
	fee.EntityPlan: {
		{fee.RefPayments, "SELECT COUNT(*) FROM fee_assignments WHERE school_id = $1 AND installment_id = $2"},
	},
	fee.EntityConcessionType: {
		{fee.RefConcessions, "SELECT COUNT(*) FROM concessions WHERE school_id = $1 AND concession_type_id = $2"},
	},
}

func (r *repository) CountReferences(ctx context.Context, entity, schoolID, id string) (map[string]int, error) {
	refs := make(map[string]int)
	if !validID(id) {
		return refs, nil
	}
	for _, ref := range referenceQueries[entity] {
		var n int
		if err := sqlx.GetContext(ctx, r.exec, &n, ref.query, schoolID, id); err != nil {
			return nil, mapErr(err, "counting "+ref.kind)
		}
		if n > 0 {
			refs[ref.kind] = n
		}
	}
	return refs, nil
}
