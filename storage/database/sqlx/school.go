package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
)

type schoolRepository struct {
	repository
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{repository{db: db}}
}

const (
	classColumns   = "id, tenant_id, name, level, academic_year, tuition_fee, created_at, updated_at"
	studentColumns = `id, tenant_id, matricule, first_name, last_name, sex, birth_date, class_id, guardian_name,
		guardian_phone, guardian_email, is_active, created_at, updated_at`
)

func (repo schoolRepository) CreateClass(ctx context.Context, scope tenant.Scope, c school.Class) (school.Class, error) {
	if err := scope.Check(); err != nil {
		return school.Class{}, err
	}
	c.TenantID = scope.TenantID()
	q := `INSERT INTO classes (` + classColumns + `)
		VALUES (:id, :tenant_id, :name, :level, :academic_year, :tuition_fee, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, c); err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return c, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, scope tenant.Scope, id string) (school.Class, error) {
	if err := scope.Check(); err != nil {
		return school.Class{}, err
	}
	var c school.Class
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &c,
		`SELECT `+classColumns+` FROM classes WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return school.Class{}, trapNoRowsErr(err, school.ErrClassNotFound, "getting class")
	}
	return c, nil
}

func (repo schoolRepository) QueryClasses(ctx context.Context, scope tenant.Scope, filter school.ClassFilter, ordering []core.DBOrdering) ([]school.Class, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	w := scoped(scope, "tenant_id")
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(name ILIKE ? OR level ILIKE ?)", pattern, pattern)
	}
	if filter.AcademicYear != "" {
		w.add("academic_year = ?", filter.AcademicYear)
	}
	exec := repo.getExec(ctx)
	classes := make([]school.Class, 0)
	q := rebind(exec, `SELECT `+classColumns+` FROM classes`+w.String()+orderBy(ordering, ""))
	if err := sqlx.SelectContext(ctx, exec, &classes, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo schoolRepository) UpdateClass(ctx context.Context, scope tenant.Scope, c school.Class) (school.Class, error) {
	if err := scope.Check(); err != nil {
		return school.Class{}, err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx,
		`UPDATE classes SET name = $1, level = $2, academic_year = $3, tuition_fee = $4, updated_at = $5
		WHERE tenant_id = $6 AND id = $7`,
		c.Name, c.Level, c.AcademicYear, c.TuitionFee, c.UpdatedAt, scope.TenantID(), c.ID)
	if err != nil {
		return school.Class{}, errors.Wrap(err, "updating class")
	}
	if err = checkAffected(res, school.ErrClassNotFound); err != nil {
		return school.Class{}, err
	}
	return c, nil
}

func (repo schoolRepository) DeleteClass(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx, `DELETE FROM classes WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return checkAffected(res, school.ErrClassNotFound)
}

func (repo schoolRepository) CountStudents(ctx context.Context, scope tenant.Scope, classID string) (int, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	var n int
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &n,
		`SELECT COUNT(*) FROM students WHERE tenant_id = $1 AND class_id = $2`, scope.TenantID(), classID)
	return n, errors.Wrap(err, "counting students")
}

func (repo schoolRepository) CreateStudent(ctx context.Context, scope tenant.Scope, s school.Student) (school.Student, error) {
	if err := scope.Check(); err != nil {
		return school.Student{}, err
	}
	s.TenantID = scope.TenantID()
	q := `INSERT INTO students (` + studentColumns + `) VALUES (:id, :tenant_id, :matricule, :first_name, :last_name,
		:sex, :birth_date, :class_id, :guardian_name, :guardian_phone, :guardian_email, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, s); err != nil {
		if isUniqueViolation(err) {
			return school.Student{}, school.ErrMatriculeExists
		}
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo schoolRepository) GetStudent(ctx context.Context, scope tenant.Scope, id string) (school.Student, error) {
	if err := scope.Check(); err != nil {
		return school.Student{}, err
	}
	var s school.Student
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &s,
		`SELECT `+studentColumns+` FROM students WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return school.Student{}, trapNoRowsErr(err, school.ErrStudentNotFound, "getting student")
	}
	return s, nil
}

func (repo schoolRepository) QueryStudents(ctx context.Context, scope tenant.Scope, filter school.StudentFilter, ordering []core.DBOrdering) ([]school.Student, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	w := scoped(scope, "tenant_id")
	if filter.ClassID != "" {
		w.add("class_id = ?", filter.ClassID)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(first_name ILIKE ? OR last_name ILIKE ? OR matricule ILIKE ? OR guardian_name ILIKE ?)",
			pattern, pattern, pattern, pattern)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	exec := repo.getExec(ctx)
	students := make([]school.Student, 0)
	q := rebind(exec, `SELECT `+studentColumns+` FROM students`+w.String()+orderBy(ordering, ""))
	if err := sqlx.SelectContext(ctx, exec, &students, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo schoolRepository) UpdateStudent(ctx context.Context, scope tenant.Scope, s school.Student) (school.Student, error) {
	if err := scope.Check(); err != nil {
		return school.Student{}, err
	}
	s.TenantID = scope.TenantID()
	q := `UPDATE students SET matricule = :matricule, first_name = :first_name, last_name = :last_name, sex = :sex,
		birth_date = :birth_date, class_id = :class_id, guardian_name = :guardian_name, guardian_phone = :guardian_phone,
		guardian_email = :guardian_email, is_active = :is_active, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, s)
	if err != nil {
		if isUniqueViolation(err) {
			return school.Student{}, school.ErrMatriculeExists
		}
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	if err = checkAffected(res, school.ErrStudentNotFound); err != nil {
		return school.Student{}, err
	}
	return s, nil
}

func (repo schoolRepository) DeleteStudent(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx, `DELETE FROM students WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return school.ErrStudentHasInvoices
		}
		return errors.Wrap(err, "deleting student")
	}
	return checkAffected(res, school.ErrStudentNotFound)
}

func (repo schoolRepository) NextSequence(ctx context.Context, scope tenant.Scope, kind string, year int) (int, error) {
	return nextSequence(ctx, repo.getExec(ctx), scope, kind, year)
}
