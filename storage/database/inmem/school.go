package inmemdb

import (
	"context"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
)

type schoolRepository struct {
	db *DB
}

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

var (
	classComparators = comparators[school.Class]{
		"name":          func(a, b school.Class) int { return strings.Compare(a.Name, b.Name) },
		"level":         func(a, b school.Class) int { return strings.Compare(a.Level, b.Level) },
		"academic_year": func(a, b school.Class) int { return strings.Compare(a.AcademicYear, b.AcademicYear) },
		"created_at":    func(a, b school.Class) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
	studentComparators = comparators[school.Student]{
		"last_name":  func(a, b school.Student) int { return strings.Compare(a.LastName, b.LastName) },
		"first_name": func(a, b school.Student) int { return strings.Compare(a.FirstName, b.FirstName) },
		"matricule":  func(a, b school.Student) int { return strings.Compare(a.Matricule, b.Matricule) },
		"created_at": func(a, b school.Student) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
)

func (repo *schoolRepository) CreateClass(_ context.Context, scope tenant.Scope, c school.Class) (school.Class, error) {
	if err := scope.Check(); err != nil {
		return school.Class{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	c.TenantID = scope.TenantID()
	repo.db.classes[c.ID] = &c
	return c, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, scope tenant.Scope, id string) (school.Class, error) {
	if err := scope.Check(); err != nil {
		return school.Class{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.classes[id]; ok && c.TenantID == scope.TenantID() {
		return *c, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) QueryClasses(_ context.Context, scope tenant.Scope, filter school.ClassFilter, ordering []core.DBOrdering) ([]school.Class, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := make([]school.Class, 0)
	for _, c := range repo.db.classes {
		if c.TenantID != scope.TenantID() {
			continue
		}
		if filter.Search != "" && !matches(filter.Search, c.Name, c.Level) {
			continue
		}
		if filter.AcademicYear != "" && c.AcademicYear != filter.AcademicYear {
			continue
		}
		classes = append(classes, *c)
	}
	sortRows(classes, ordering, classComparators)
	return classes, nil
}

func (repo *schoolRepository) UpdateClass(_ context.Context, scope tenant.Scope, c school.Class) (school.Class, error) {
	if err := scope.Check(); err != nil {
		return school.Class{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.classes[c.ID]
	if !ok || stored.TenantID != scope.TenantID() {
		return school.Class{}, school.ErrClassNotFound
	}
	c.TenantID = stored.TenantID
	c.CreatedAt = stored.CreatedAt
	repo.db.classes[c.ID] = &c
	return c, nil
}

func (repo *schoolRepository) DeleteClass(_ context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	if c, ok := repo.db.classes[id]; !ok || c.TenantID != scope.TenantID() {
		return school.ErrClassNotFound
	}
	for _, s := range repo.db.students {
		if s.ClassID.Valid && s.ClassID.String == id {
			s.ClassID = null.String{}
		}
	}
	delete(repo.db.classes, id)
	return nil
}

func (repo *schoolRepository) CountStudents(_ context.Context, scope tenant.Scope, classID string) (int, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, s := range repo.db.students {
		if s.TenantID == scope.TenantID() && s.ClassID.Valid && s.ClassID.String == classID {
			n++
		}
	}
	return n, nil
}

func (repo *schoolRepository) matriculeTaken(tenantID, matricule, excludedID string) bool {
	for _, s := range repo.db.students {
		if s.TenantID == tenantID && s.Matricule == matricule && s.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) CreateStudent(_ context.Context, scope tenant.Scope, s school.Student) (school.Student, error) {
	if err := scope.Check(); err != nil {
		return school.Student{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	s.TenantID = scope.TenantID()
	if repo.matriculeTaken(s.TenantID, s.Matricule, "") {
		return school.Student{}, school.ErrMatriculeExists
	}
	repo.db.students[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, scope tenant.Scope, id string) (school.Student, error) {
	if err := scope.Check(); err != nil {
		return school.Student{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.students[id]; ok && s.TenantID == scope.TenantID() {
		return *s, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) QueryStudents(_ context.Context, scope tenant.Scope, filter school.StudentFilter, ordering []core.DBOrdering) ([]school.Student, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]school.Student, 0)
	for _, s := range repo.db.students {
		if s.TenantID != scope.TenantID() {
			continue
		}
		if filter.ClassID != "" && s.ClassID.String != filter.ClassID {
			continue
		}
		if filter.Search != "" && !matches(filter.Search, s.FirstName, s.LastName, s.Matricule, s.GuardianName) {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		students = append(students, *s)
	}
	sortRows(students, ordering, studentComparators)
	return students, nil
}

func (repo *schoolRepository) UpdateStudent(_ context.Context, scope tenant.Scope, s school.Student) (school.Student, error) {
	if err := scope.Check(); err != nil {
		return school.Student{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.students[s.ID]
	if !ok || stored.TenantID != scope.TenantID() {
		return school.Student{}, school.ErrStudentNotFound
	}
	if repo.matriculeTaken(stored.TenantID, s.Matricule, s.ID) {
		return school.Student{}, school.ErrMatriculeExists
	}
	s.TenantID = stored.TenantID
	s.CreatedAt = stored.CreatedAt
	repo.db.students[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) DeleteStudent(_ context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	if s, ok := repo.db.students[id]; !ok || s.TenantID != scope.TenantID() {
		return school.ErrStudentNotFound
	}
	for _, inv := range repo.db.invoices {
		if inv.StudentID == id {
			return school.ErrStudentHasInvoices
		}
	}
	delete(repo.db.students, id)
	return nil
}

func (repo *schoolRepository) NextSequence(_ context.Context, scope tenant.Scope, kind string, year int) (int, error) {
	return repo.db.nextSequence(scope, kind, year)
}
