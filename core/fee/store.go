package fee

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

// ErrNameTaken is returned by stores when a unique name/title constraint is hit.
var ErrNameTaken = errors.New("name already taken")

type (
	// Repository is the persistence port of the ledger. Implementations scope every read and write
	// by school and return *core.NotFoundError for ids that do not resolve within it.
	Repository interface {
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		GetCategory(ctx context.Context, schoolID, id string) (Category, error)
		QueryCategories(ctx context.Context, schoolID string) ([]Category, error)
		UpdateCategory(ctx context.Context, cat Category) (Category, error)
		DeleteCategory(ctx context.Context, schoolID, id string) error

		CreateFeeType(ctx context.Context, ft FeeType) (FeeType, error)
		GetFeeType(ctx context.Context, schoolID, id string) (FeeType, error)
		QueryFeeTypes(ctx context.Context, schoolID string) ([]FeeType, error)
		UpdateFeeType(ctx context.Context, ft FeeType) (FeeType, error)
		DeleteFeeType(ctx context.Context, schoolID, id string) error

		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroup(ctx context.Context, schoolID, id string) (Group, error)
		QueryGroups(ctx context.Context, schoolID string) ([]Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		DeleteGroup(ctx context.Context, schoolID, id string) error

		CreatePlan(ctx context.Context, plan Plan) (Plan, error)
		GetPlan(ctx context.Context, schoolID, id string) (Plan, error)
		QueryPlans(ctx context.Context, schoolID string) ([]Plan, error)
		UpdatePlan(ctx context.Context, plan Plan) (Plan, error)
		DeletePlan(ctx context.Context, schoolID, id string) error

		CreateConcessionType(ctx context.Context, ct ConcessionType) (ConcessionType, error)
		GetConcessionType(ctx context.Context, schoolID, id string) (ConcessionType, error)
		QueryConcessionTypes(ctx context.Context, schoolID string) ([]ConcessionType, error)
		UpdateConcessionType(ctx context.Context, ct ConcessionType) (ConcessionType, error)
		DeleteConcessionType(ctx context.Context, schoolID, id string) error

		CreateStructure(ctx context.Context, st Structure) (Structure, error)
		GetStructure(ctx context.Context, schoolID, id string) (Structure, error)
		// GetStructureFor finds the structure of a class for an academic year.
		GetStructureFor(ctx context.Context, schoolID, classID, academicYearID string) (Structure, error)
		QueryStructures(ctx context.Context, schoolID string) ([]Structure, error)
		UpdateStructure(ctx context.Context, st Structure) (Structure, error)
		DeleteStructure(ctx context.Context, schoolID, id string) error

		// NameExists does a case-insensitive match on the name (or title) of the entity, ignoring excludeID.
		NameExists(ctx context.Context, entity, schoolID, name, excludeID string) (bool, error)
		// CountReferences returns the live records referencing a catalog entity, by kind. Zero counts are omitted.
		CountReferences(ctx context.Context, entity, schoolID, id string) (map[string]int, error)

		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		GetPayment(ctx context.Context, schoolID, id string) (Payment, error)
		// LockPayment reads the row and holds it until the end of the enclosing Atomic call.
		LockPayment(ctx context.Context, schoolID, id string) (Payment, error)
		// SavePayment persists p only if its Version still matches the stored one (core.ErrConflict otherwise)
		// and returns it with the incremented version.
		SavePayment(ctx context.Context, p Payment) (Payment, error)
		// DeletePayment has the same version check as SavePayment.
		DeletePayment(ctx context.Context, p Payment) error
		QueryPayments(ctx context.Context, filter PaymentFilter, ordering []core.DBOrdering) ([]Payment, error)
		// AssignmentKeys returns the keys of the existing rows of the given students.
		AssignmentKeys(ctx context.Context, schoolID string, studentIDs []string) ([]AssignmentKey, error)
		// StudentsWithGroup returns the students of a class already holding rows of a group.
		StudentsWithGroup(ctx context.Context, schoolID, classID, groupID string) ([]string, error)
		// LockAssignments serializes bulk assignments of a school until the end of the enclosing Atomic call.
		LockAssignments(ctx context.Context, schoolID string) error

		CreateConcession(ctx context.Context, c Concession) (Concession, error)
		QueryConcessions(ctx context.Context, schoolID, paymentID string) ([]Concession, error)

		CreateEvent(ctx context.Context, e LedgerEvent) (LedgerEvent, error)
		QueryEvents(ctx context.Context, schoolID, paymentID string) ([]LedgerEvent, error)
	}

	// Store is a Repository that can run a unit of work atomically.
	// Calls made directly on the Store are auto-committed.
	Store interface {
		Repository

		// Atomic runs fn in a single transaction; any error returned by fn rolls everything back.
		// Lost concurrent writes surface as core.ErrConflict.
		Atomic(ctx context.Context, fn func(repo Repository) error) error
	}

	// RosterProvider gives point-in-time snapshots of class rosters.
	RosterProvider interface {
		ActiveStudents(ctx context.Context, schoolID, classID string) ([]string, error)
		// StudentsInSchool returns the subset of ids enrolled in the school.
		StudentsInSchool(ctx context.Context, schoolID string, ids []string) ([]string, error)
	}

	// Metrics receives ledger instrumentation.
	Metrics interface {
		PaymentRecorded(clamped bool)
		ConcessionApplied()
		Conflict(op string)
		AssignmentRows(created, skipped int)
		ObserveOperation(op string, d time.Duration)
	}
)

type nopMetrics struct{}

func (nopMetrics) PaymentRecorded(bool)                   {}
func (nopMetrics) ConcessionApplied()                     {}
func (nopMetrics) Conflict(string)                        {}
func (nopMetrics) AssignmentRows(int, int)                {}
func (nopMetrics) ObserveOperation(string, time.Duration) {}

// NopMetrics discards all instrumentation.
var NopMetrics Metrics = nopMetrics{}
