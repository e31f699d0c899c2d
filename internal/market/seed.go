package market

import (
	"context"
	"fmt"

	"github.com/Elizabethomito/tutormarket/internal/db"
)

// Demo catalog. Pre-determined ids keep the seed idempotent across
// restarts: every insert is INSERT OR IGNORE on the primary key.
const (
	SeedDeptCSID   = "seed-dept-cs---0000-0000-0000-000000000001"
	SeedDeptMathID = "seed-dept-math-0000-0000-0000-000000000002"
	SeedDeptPhysID = "seed-dept-phys-0000-0000-0000-000000000003"

	SeedCourseCS101ID   = "seed-course-cs101--0000-0000-000000000010"
	SeedCourseCS201ID   = "seed-course-cs201--0000-0000-000000000011"
	SeedCourseCS301ID   = "seed-course-cs301--0000-0000-000000000012"
	SeedCourseMath101ID = "seed-course-ma101--0000-0000-000000000020"
	SeedCourseMath201ID = "seed-course-ma201--0000-0000-000000000021"
	SeedCoursePhys101ID = "seed-course-ph101--0000-0000-000000000030"
)

type seedDept struct{ id, code, name string }
type seedCourse struct{ id, dept, code, name string }

var demoDepartments = []seedDept{
	{SeedDeptCSID, "CS", "Computer Science"},
	{SeedDeptMathID, "MATH", "Mathematics"},
	{SeedDeptPhysID, "PHYS", "Physics"},
}

var demoCourses = []seedCourse{
	{SeedCourseCS101ID, SeedDeptCSID, "CS101", "Introduction to Programming"},
	{SeedCourseCS201ID, SeedDeptCSID, "CS201", "Data Structures"},
	{SeedCourseCS301ID, SeedDeptCSID, "CS301", "Algorithms"},
	{SeedCourseMath101ID, SeedDeptMathID, "MATH101", "Calculus I"},
	{SeedCourseMath201ID, SeedDeptMathID, "MATH201", "Linear Algebra"},
	{SeedCoursePhys101ID, SeedDeptPhysID, "PHYS101", "Mechanics"},
}

// SeedResult counts rows the seed actually inserted.
type SeedResult struct {
	Departments int `json:"departments"`
	Courses     int `json:"courses"`
}

// SeedCatalog loads the demo departments and courses. Running it again
// inserts nothing.
func (s *Service) SeedCatalog(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	err := s.write(ctx, "seed_catalog", func(t *txn) error {
		now := db.Millis(t.now)
		for _, d := range demoDepartments {
			res, err := t.exec(`INSERT OR IGNORE INTO departments (id, code, name, created_at) VALUES (?, ?, ?, ?)`,
				d.id, d.code, d.name, now)
			if err != nil {
				return fmt.Errorf("seed department %s: %w", d.code, err)
			}
			n, _ := res.RowsAffected()
			result.Departments += int(n)
		}
		for _, c := range demoCourses {
			res, err := t.exec(`INSERT OR IGNORE INTO courses (id, department_id, code, name, created_at) VALUES (?, ?, ?, ?, ?)`,
				c.id, c.dept, c.code, c.name, now)
			if err != nil {
				return fmt.Errorf("seed course %s: %w", c.code, err)
			}
			n, _ := res.RowsAffected()
			result.Courses += int(n)
		}
		return nil
	})
	if err == nil {
		s.log.Info("demo catalog seeded", "departments", result.Departments, "courses", result.Courses)
	}
	return result, err
}
