package inmemdb

import (
	"context"
	"sort"
)

func (db *DB) ActiveStudents(_ context.Context, schoolID, classID string) ([]string, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	ids := make([]string, 0)
	for _, s := range db.t.students {
		if s.SchoolID == schoolID && s.ClassID == classID && s.IsActive {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (db *DB) StudentsInSchool(_ context.Context, schoolID string, ids []string) ([]string, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	found := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := db.t.students[id]; ok && s.SchoolID == schoolID {
			found = append(found, id)
		}
	}
	return found, nil
}
