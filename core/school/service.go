// Package school keeps the class and student records of a tenant.
package school

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/phone"
	"github.com/samaecole/backend/core/tenant"
)

const matriculeKind = "matricule"

var (
	ErrClassNotFound      = core.NewNotFoundError("class not found")
	ErrStudentNotFound    = core.NewNotFoundError("student not found")
	ErrClassNotEmpty      = errors.New("this class still has students")
	ErrMatriculeExists    = errors.New("this matricule is already used")
	ErrStudentHasInvoices = errors.New("this student has invoices and cannot be deleted")
)

var (
	classOrdering   = []string{"name", "level", "academic_year", "created_at"}
	studentOrdering = []string{"last_name", "first_name", "matricule", "created_at"}
)

type (
	// Repository methods are all tenant scoped.
	Repository interface {
		CreateClass(ctx context.Context, scope tenant.Scope, c Class) (Class, error)
		GetClass(ctx context.Context, scope tenant.Scope, id string) (Class, error)
		QueryClasses(ctx context.Context, scope tenant.Scope, filter ClassFilter, ordering []core.DBOrdering) ([]Class, error)
		UpdateClass(ctx context.Context, scope tenant.Scope, c Class) (Class, error)
		DeleteClass(ctx context.Context, scope tenant.Scope, id string) error
		CountStudents(ctx context.Context, scope tenant.Scope, classID string) (int, error)

		CreateStudent(ctx context.Context, scope tenant.Scope, s Student) (Student, error)
		GetStudent(ctx context.Context, scope tenant.Scope, id string) (Student, error)
		QueryStudents(ctx context.Context, scope tenant.Scope, filter StudentFilter, ordering []core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, scope tenant.Scope, s Student) (Student, error)
		DeleteStudent(ctx context.Context, scope tenant.Scope, id string) error

		// NextSequence increments and returns the per tenant counter of kind for year.
		NextSequence(ctx context.Context, scope tenant.Scope, kind string, year int) (int, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		validate *validator.Validate
	}
)

func NewService(repo Repository, tx core.Transactor, validate *validator.Validate) *Service {
	return &Service{repo: repo, tx: tx, validate: validate}
}

func orderingOr(ordering []core.DBOrdering, allowed []string, fallback core.DBOrdering) []core.DBOrdering {
	ordering = core.FilterOrdering(ordering, allowed...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{fallback}
	}
	return ordering
}

// Classes

func (svc *Service) ListClasses(ctx context.Context, ac access.Context, filter ClassFilter, ordering []core.DBOrdering) ([]Class, error) {
	scope, err := ac.Require(authz.ClassesView)
	if err != nil {
		return nil, err
	}
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryClasses(ctx, scope, filter, orderingOr(ordering, classOrdering, core.DBOrdering{Field: "name", Ascending: true}))
}

func (svc *Service) GetClass(ctx context.Context, ac access.Context, id string) (Class, error) {
	scope, err := ac.Require(authz.ClassesView)
	if err != nil {
		return Class{}, err
	}
	return svc.repo.GetClass(ctx, scope, id)
}

func (svc *Service) CreateClass(ctx context.Context, ac access.Context, data ClassInput) (Class, error) {
	scope, err := ac.Require(authz.ClassesCreate)
	if err != nil {
		return Class{}, err
	}
	data.Clean()
	if err = svc.validate.Struct(data); err != nil {
		return Class{}, err
	}

	now := core.NowFunc()
	return svc.repo.CreateClass(ctx, scope, Class{
		ID:           uuid.New().String(),
		TenantID:     scope.TenantID(),
		Name:         data.Name,
		Level:        data.Level,
		AcademicYear: data.AcademicYear,
		TuitionFee:   data.TuitionFee,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) UpdateClass(ctx context.Context, ac access.Context, id string, data ClassInput) (Class, error) {
	scope, err := ac.Require(authz.ClassesEdit)
	if err != nil {
		return Class{}, err
	}
	data.Clean()
	if err = svc.validate.Struct(data); err != nil {
		return Class{}, err
	}

	c, err := svc.repo.GetClass(ctx, scope, id)
	if err != nil {
		return Class{}, err
	}
	c.Name = data.Name
	c.Level = data.Level
	c.AcademicYear = data.AcademicYear
	c.TuitionFee = data.TuitionFee
	c.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateClass(ctx, scope, c)
}

// DeleteClass refuses to delete a class that still has students.
func (svc *Service) DeleteClass(ctx context.Context, ac access.Context, id string) error {
	scope, err := ac.Require(authz.ClassesDelete)
	if err != nil {
		return err
	}
	if _, err = svc.repo.GetClass(ctx, scope, id); err != nil {
		return err
	}
	n, err := svc.repo.CountStudents(ctx, scope, id)
	if err != nil {
		return errors.Wrap(err, "counting students")
	}
	if n > 0 {
		return ErrClassNotEmpty
	}
	return svc.repo.DeleteClass(ctx, scope, id)
}

// Students

func (svc *Service) ListStudents(ctx context.Context, ac access.Context, filter StudentFilter, ordering []core.DBOrdering) ([]Student, error) {
	scope, err := ac.Require(authz.StudentsView)
	if err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.QueryStudents(ctx, scope, filter, orderingOr(ordering, studentOrdering, core.DBOrdering{Field: "last_name", Ascending: true}))
}

func (svc *Service) GetStudent(ctx context.Context, ac access.Context, id string) (Student, error) {
	scope, err := ac.Require(authz.StudentsView)
	if err != nil {
		return Student{}, err
	}
	return svc.repo.GetStudent(ctx, scope, id)
}

// apply copies validated input onto s. The class must belong to the same tenant.
func (svc *Service) apply(ctx context.Context, scope tenant.Scope, s *Student, data StudentInput) error {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return err
	}

	s.FirstName = data.FirstName
	s.LastName = data.LastName
	s.Sex = data.Sex
	s.GuardianName = data.GuardianName
	s.GuardianEmail = data.GuardianEmail
	if data.Matricule != "" {
		s.Matricule = data.Matricule
	}
	if data.IsActive != nil {
		s.IsActive = *data.IsActive
	}

	s.BirthDate = null.Time{}
	if data.BirthDate != "" {
		d, err := time.Parse(dateLayout, data.BirthDate)
		if err != nil {
			return core.NewFieldError("birth_date", "invalid date")
		}
		s.BirthDate = null.TimeFrom(d)
	}

	s.GuardianPhone = ""
	if data.GuardianPhone != "" {
		canon, err := phone.Normalize(data.GuardianPhone)
		if err != nil {
			return core.NewFieldError("guardian_phone", err.Error())
		}
		s.GuardianPhone = canon
	}

	s.ClassID = null.String{}
	if data.ClassID != "" {
		if _, err := svc.repo.GetClass(ctx, scope, data.ClassID); err != nil {
			if errors.Cause(err) == ErrClassNotFound {
				return core.NewFieldError("class_id", "unknown class")
			}
			return errors.Wrap(err, "getting class")
		}
		s.ClassID = null.StringFrom(data.ClassID)
	}
	return nil
}

func matriculeError(err error) error {
	if errors.Cause(err) == ErrMatriculeExists {
		return core.NewFieldError("matricule", ErrMatriculeExists.Error())
	}
	return err
}

// CreateStudent generates a matricule of the form ELV-YYYY-NNNN when none is given.
func (svc *Service) CreateStudent(ctx context.Context, ac access.Context, data StudentInput) (Student, error) {
	scope, err := ac.Require(authz.StudentsCreate)
	if err != nil {
		return Student{}, err
	}

	now := core.NowFunc()
	s := Student{
		ID:        uuid.New().String(),
		TenantID:  scope.TenantID(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = svc.apply(ctx, scope, &s, data); err != nil {
		return Student{}, err
	}

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if s.Matricule == "" {
			n, err := svc.repo.NextSequence(ctx, scope, matriculeKind, now.Year())
			if err != nil {
				return errors.Wrap(err, "generating matricule")
			}
			s.Matricule = fmt.Sprintf("ELV-%d-%04d", now.Year(), n)
		}
		s, err = svc.repo.CreateStudent(ctx, scope, s)
		return err
	})
	if err != nil {
		return Student{}, matriculeError(err)
	}
	return s, nil
}

func (svc *Service) UpdateStudent(ctx context.Context, ac access.Context, id string, data StudentInput) (Student, error) {
	scope, err := ac.Require(authz.StudentsEdit)
	if err != nil {
		return Student{}, err
	}
	s, err := svc.repo.GetStudent(ctx, scope, id)
	if err != nil {
		return Student{}, err
	}
	if err = svc.apply(ctx, scope, &s, data); err != nil {
		return Student{}, err
	}
	s.UpdatedAt = core.NowFunc()
	s, err = svc.repo.UpdateStudent(ctx, scope, s)
	if err != nil {
		return Student{}, matriculeError(err)
	}
	return s, nil
}

func (svc *Service) DeleteStudent(ctx context.Context, ac access.Context, id string) error {
	scope, err := ac.Require(authz.StudentsDelete)
	if err != nil {
		return err
	}
	if _, err = svc.repo.GetStudent(ctx, scope, id); err != nil {
		return err
	}
	return svc.repo.DeleteStudent(ctx, scope, id)
}
