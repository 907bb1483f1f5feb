package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

// postgres error codes
const (
	uniqueViolation      = "23505"
	foreignKeyViolation  = "23503"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	lockNotAvailable     = "55P03"
)

// assignLockSpace namespaces the advisory locks taken by bulk assignments.
const assignLockSpace = 7151

type (
	// Store is the PostgreSQL fee.Store and fee.RosterProvider.
	// Calls made on the Store are auto-committed; Atomic runs them in one transaction.
	Store struct {
		*repository
		db          *sqlx.DB
		lockTimeout time.Duration
	}

	repository struct {
		exec sqlx.ExtContext
	}
)

var (
	_ fee.Store          = (*Store)(nil)
	_ fee.RosterProvider = (*Store)(nil)
)

// NewStore wraps an open lib/pq connection pool. Row locks wait at most lockTimeout (0: no limit).
func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	xdb := sqlx.NewDb(db, "postgres")
	return &Store{repository: &repository{exec: xdb}, db: xdb, lockTimeout: lockTimeout}
}

func (s *Store) Atomic(ctx context.Context, fn func(repo fee.Repository) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
			return mapErr(err, "setting lock timeout")
		}
	}
	if err = fn(&repository{exec: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapErr(err, "committing transaction")
	}
	return nil
}

// mapErr maps unique violations to fee.ErrNameTaken, and lost concurrent writes and references
// removed by a concurrent delete to core.ErrConflict.
func mapErr(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return errors.Wrapf(fee.ErrNameTaken, "%s: %s", msg, pqErr.Constraint)
		case serializationFailure, deadlockDetected, lockNotAvailable, foreignKeyViolation:
			return errors.Wrapf(core.ErrConflict, "%s: %s", msg, pqErr.Message)
		}
	}
	return errors.Wrap(err, msg)
}

// trapNoRowsErr maps psql "no rows" err to a NotFoundError
func trapNoRowsErr(err error, entity, id, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewNotFoundError(entity, id)
	}
	return mapErr(err, msg)
}

// validID reports whether id can be looked up in a UUID column; other ids never resolve.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func (r *repository) get(ctx context.Context, dest interface{}, entity, id, query string, args ...interface{}) error {
	if !validID(id) {
		return core.NewNotFoundError(entity, id)
	}
	if err := sqlx.GetContext(ctx, r.exec, dest, query, args...); err != nil {
		return trapNoRowsErr(err, entity, id, "getting "+entity)
	}
	return nil
}

// delete removes a row of the school; a missing row is a NotFoundError.
func (r *repository) delete(ctx context.Context, table, entity, schoolID, id string) error {
	if !validID(id) {
		return core.NewNotFoundError(entity, id)
	}
	res, err := r.exec.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return mapErr(err, "deleting "+entity)
	}
	return checkAffected(res, entity, id)
}

func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return core.NewNotFoundError(entity, id)
	}
	return nil
}
