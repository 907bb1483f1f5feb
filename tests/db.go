package testutil

import (
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/storage/database"
)

// tables truncated between PostgreSQL tests, dependants first
var ledgerTables = []string{
	"ledger_events", "concessions", "fee_assignments", "fee_structure_items", "fee_structures",
	"concession_types", "installment_plans", "fee_type_group_items", "fee_type_groups", "fee_types",
	"fee_categories", "students",
}

// PrepareDB opens the test database, migrates it and empties it.
// The test is skipped unless TEST_DATABASE_HOST is set (TEST_DATABASE_{PORT,NAME,USER,PASSWORD} optional).
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" || testing.Short() {
		t.Skip("TEST_DATABASE_HOST not set")
	}

	conf := core.NewTestConfig()
	conf.Database.Host = host
	if port, err := strconv.Atoi(os.Getenv("TEST_DATABASE_PORT")); err == nil {
		conf.Database.Port = port
	}
	for env, dst := range map[string]*string{
		"TEST_DATABASE_NAME":     &conf.Database.Name,
		"TEST_DATABASE_USER":     &conf.Database.User,
		"TEST_DATABASE_PASSWORD": &conf.Database.Password,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	for _, tbl := range ledgerTables {
		if _, err = db.Exec("TRUNCATE " + tbl + " CASCADE"); err != nil {
			t.Fatalf("truncating %s failed: %v", tbl, err)
		}
	}
	return db
}

// InsertStudents enrolls active students in the PostgreSQL roster and returns their ids.
func InsertStudents(t *testing.T, db *sql.DB, schoolID, classID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := NewID()
		if _, err := db.Exec("INSERT INTO students (id, school_id, class_id) VALUES ($1, $2, $3)", id, schoolID, classID); err != nil {
			t.Fatalf("inserting student failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
