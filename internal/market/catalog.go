package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// Catalog reads are public reference data and need no caller.

func (s *Service) ListDepartments(ctx context.Context) ([]models.Department, error) {
	depts := []models.Department{}
	err := s.read(ctx, func(t *txn) error {
		rows, err := t.query(`SELECT id, code, name, created_at FROM departments ORDER BY code`)
		if err != nil {
			return fmt.Errorf("list departments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var d models.Department
			var created int64
			if err := rows.Scan(&d.ID, &d.Code, &d.Name, &created); err != nil {
				return fmt.Errorf("scan department: %w", err)
			}
			d.CreatedAt = db.FromMillis(created)
			depts = append(depts, d)
		}
		return rows.Err()
	})
	return depts, err
}

var courseSelect = sq.Select("c.id", "c.department_id", "d.code", "c.code", "c.name", "c.created_at").
	From("courses c").
	Join("departments d ON d.id = c.department_id")

func scanCourse(row scanner) (*models.Course, error) {
	var c models.Course
	var created int64
	if err := row.Scan(&c.ID, &c.DepartmentID, &c.DepartmentCode, &c.Code, &c.Name, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = db.FromMillis(created)
	return &c, nil
}

// ListCourses filters by department and a text match on code or name.
func (s *Service) ListCourses(ctx context.Context, departmentID, search string) ([]models.Course, error) {
	q := courseSelect.OrderBy("c.code")
	if departmentID != "" {
		q = q.Where(sq.Eq{"c.department_id": departmentID})
	}
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		q = q.Where(sq.Or{sq.Like{"c.code": like}, sq.Like{"c.name": like}})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build course query: %w", err)
	}

	courses := []models.Course{}
	err = s.read(ctx, func(t *txn) error {
		rows, err := t.query(query, args...)
		if err != nil {
			return fmt.Errorf("list courses: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCourse(rows)
			if err != nil {
				return fmt.Errorf("scan course: %w", err)
			}
			courses = append(courses, *c)
		}
		return rows.Err()
	})
	return courses, err
}

func (t *txn) courseByID(id string) (*models.Course, error) {
	query, args, err := courseSelect.Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build course query: %w", err)
	}
	c, err := scanCourse(t.queryRow(query, args...))
	if err != nil {
		return nil, notFound(err, "course")
	}
	return c, nil
}

func (s *Service) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	var course *models.Course
	err := s.read(ctx, func(t *txn) error {
		var err error
		course, err = t.courseByID(courseID)
		return err
	})
	return course, err
}

// CreateDepartment adds a department. Admin only, audited.
func (s *Service) CreateDepartment(ctx context.Context, caller models.Identity, req models.CreateDepartmentRequest) (*models.Department, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return nil, err
	}

	dept := &models.Department{ID: uuid.NewString(), Code: req.Code, Name: req.Name}
	err := s.write(ctx, "create_department", func(t *txn) error {
		admin, err := t.requireAdmin(caller)
		if err != nil {
			return err
		}
		if taken, err := t.exists(`SELECT 1 FROM departments WHERE code = ?`, req.Code); err != nil {
			return err
		} else if taken {
			return apperr.Invalid("department code %q already exists", req.Code)
		}
		dept.CreatedAt = t.now
		if _, err := t.exec(`INSERT INTO departments (id, code, name, created_at) VALUES (?, ?, ?, ?)`,
			dept.ID, dept.Code, dept.Name, db.Millis(t.now)); err != nil {
			return fmt.Errorf("insert department: %w", err)
		}
		return t.audit(admin.ID, models.AuditDepartmentCreated, dept.ID, "department",
			map[string]any{"code": dept.Code, "name": dept.Name})
	})
	if err != nil {
		return nil, err
	}
	return dept, nil
}

// CreateCourse adds a course under an existing department. Admin only, audited.
func (s *Service) CreateCourse(ctx context.Context, caller models.Identity, req models.CreateCourseRequest) (*models.Course, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var course *models.Course
	err := s.write(ctx, "create_course", func(t *txn) error {
		admin, err := t.requireAdmin(caller)
		if err != nil {
			return err
		}
		if ok, err := t.exists(`SELECT 1 FROM departments WHERE id = ?`, req.DepartmentID); err != nil {
			return err
		} else if !ok {
			return apperr.NotFound("department not found")
		}
		if taken, err := t.exists(`SELECT 1 FROM courses WHERE code = ?`, req.Code); err != nil {
			return err
		} else if taken {
			return apperr.Invalid("course code %q already exists", req.Code)
		}

		id := uuid.NewString()
		if _, err := t.exec(`INSERT INTO courses (id, department_id, code, name, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, req.DepartmentID, req.Code, req.Name, db.Millis(t.now)); err != nil {
			return fmt.Errorf("insert course: %w", err)
		}
		if err := t.audit(admin.ID, models.AuditCourseCreated, id, "course",
			map[string]any{"code": req.Code, "department_id": req.DepartmentID}); err != nil {
			return err
		}
		course, err = t.courseByID(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

// exists reports whether query returns at least one row.
func (t *txn) exists(query string, args ...any) (bool, error) {
	var one int
	err := t.queryRow(query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}
