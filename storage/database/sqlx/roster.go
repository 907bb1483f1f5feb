package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func (r *repository) ActiveStudents(ctx context.Context, schoolID, classID string) ([]string, error) {
	ids := make([]string, 0)
	q := "SELECT id FROM students WHERE school_id = $1 AND class_id = $2 AND is_active ORDER BY id"
	if err := sqlx.SelectContext(ctx, r.exec, &ids, q, schoolID, classID); err != nil {
		return nil, mapErr(err, "querying class roster")
	}
	return ids, nil
}

func (r *repository) StudentsInSchool(ctx context.Context, schoolID string, ids []string) ([]string, error) {
	found := make([]string, 0, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	q := "SELECT id FROM students WHERE school_id = $1 AND id = ANY($2)"
	if err := sqlx.SelectContext(ctx, r.exec, &found, q, schoolID, pq.Array(ids)); err != nil {
		return nil, mapErr(err, "querying students")
	}
	return found, nil
}
