package market

import (
	"errors"
	"testing"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

func TestSeedCatalog_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.svc.SeedCatalog(ctx)
	if err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	if first.Departments != 3 || first.Courses != 6 {
		t.Errorf("first run: %+v", first)
	}
	second, err := env.svc.SeedCatalog(ctx)
	if err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	if second.Departments != 0 || second.Courses != 0 {
		t.Errorf("second run inserted rows: %+v", second)
	}
	depts, _ := env.svc.ListDepartments(ctx)
	if len(depts) != 3 {
		t.Errorf("departments: %d", len(depts))
	}
}

func TestListCourses(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)

	all, err := env.svc.ListCourses(ctx, "", "")
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(all) != 6 || all[0].Code != "CS101" {
		t.Errorf("all courses: %+v", all)
	}
	if all[0].DepartmentCode != "CS" {
		t.Errorf("department code: %q", all[0].DepartmentCode)
	}

	maths, _ := env.svc.ListCourses(ctx, SeedDeptMathID, "")
	if len(maths) != 2 {
		t.Errorf("maths courses: %+v", maths)
	}
	algo, _ := env.svc.ListCourses(ctx, "", "algorithms")
	if len(algo) != 1 || algo[0].ID != SeedCourseCS301ID {
		t.Errorf("name search: %+v", algo)
	}
	byCode, _ := env.svc.ListCourses(ctx, SeedDeptCSID, "cs2")
	if len(byCode) != 1 || byCode[0].Code != "CS201" {
		t.Errorf("code search: %+v", byCode)
	}

	if _, err := env.svc.GetCourse(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing course: got %v", err)
	}
}

func TestCreateCatalogEntries(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := seedUser(t, env, adminSubject, "Root")
	user, _ := seedUser(t, env, "plain", "Plain")

	if _, err := env.svc.CreateDepartment(ctx, user, models.CreateDepartmentRequest{Code: "BIO", Name: "Biology"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-admin: got %v", err)
	}

	dept, err := env.svc.CreateDepartment(ctx, admin, models.CreateDepartmentRequest{Code: " bio ", Name: "Biology"})
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}
	if dept.Code != "BIO" {
		t.Errorf("code not normalised: %q", dept.Code)
	}
	if _, err := env.svc.CreateDepartment(ctx, admin, models.CreateDepartmentRequest{Code: "Bio", Name: "Again"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("duplicate department: got %v", err)
	}

	course, err := env.svc.CreateCourse(ctx, admin, models.CreateCourseRequest{DepartmentID: dept.ID, Code: "bio110", Name: "Cell Biology"})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if course.Code != "BIO110" || course.DepartmentCode != "BIO" {
		t.Errorf("course: %+v", course)
	}
	if _, err := env.svc.CreateCourse(ctx, admin, models.CreateCourseRequest{DepartmentID: "missing", Code: "X1", Name: "X"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown department: got %v", err)
	}
	if _, err := env.svc.CreateCourse(ctx, admin, models.CreateCourseRequest{DepartmentID: dept.ID, Code: "BIO110", Name: "Dup"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("duplicate course: got %v", err)
	}

	logs, err := env.svc.ListAuditLogs(ctx, admin, models.AuditFilter{})
	if err != nil {
		t.Fatalf("ListAuditLogs: %v", err)
	}
	if len(logs) != 2 || logs[0].Action != models.AuditCourseCreated || logs[1].Action != models.AuditDepartmentCreated {
		t.Errorf("audit trail: %+v", logs)
	}
}
