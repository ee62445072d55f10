package school

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
)

const dateLayout = "2006-01-02"

type Class struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"-" db:"tenant_id"`
	Name         string    `json:"name" db:"name"`
	Level        string    `json:"level" db:"level"`
	AcademicYear string    `json:"academic_year" db:"academic_year"`
	TuitionFee   int64     `json:"tuition_fee" db:"tuition_fee"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type ClassInput struct {
	Name         string `json:"name" validate:"required,notblank,max=100"`
	Level        string `json:"level" validate:"max=50"`
	AcademicYear string `json:"academic_year" validate:"max=20"`
	TuitionFee   int64  `json:"tuition_fee" validate:"gte=0"`
}

func (ci *ClassInput) Clean() {
	ci.Name = core.CleanString(ci.Name)
	ci.Level = core.CleanString(ci.Level)
	ci.AcademicYear = core.CleanString(ci.AcademicYear)
}

type ClassFilter struct {
	Search       string `query:"search"`
	AcademicYear string `query:"academic_year"`
}

type Student struct {
	ID            string      `json:"id" db:"id"`
	TenantID      string      `json:"-" db:"tenant_id"`
	Matricule     string      `json:"matricule" db:"matricule"`
	FirstName     string      `json:"first_name" db:"first_name"`
	LastName      string      `json:"last_name" db:"last_name"`
	Sex           string      `json:"sex" db:"sex"`
	BirthDate     null.Time   `json:"birth_date" db:"birth_date"`
	ClassID       null.String `json:"class_id" db:"class_id"`
	GuardianName  string      `json:"guardian_name" db:"guardian_name"`
	GuardianPhone string      `json:"guardian_phone" db:"guardian_phone"`
	GuardianEmail string      `json:"guardian_email" db:"guardian_email"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

func (s Student) FullName() string {
	return core.CleanString(s.FirstName + " " + s.LastName)
}

type StudentInput struct {
	Matricule     string `json:"matricule" validate:"max=30"`
	FirstName     string `json:"first_name" validate:"required,notblank,max=100"`
	LastName      string `json:"last_name" validate:"required,notblank,max=100"`
	Sex           string `json:"sex" validate:"omitempty,oneof=M F"`
	BirthDate     string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	ClassID       string `json:"class_id" validate:"omitempty,uuid"`
	GuardianName  string `json:"guardian_name" validate:"max=200"`
	GuardianPhone string `json:"guardian_phone" validate:"omitempty,sn_phone"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
	IsActive      *bool  `json:"is_active"`
}

func (si *StudentInput) Clean() {
	si.Matricule = core.CleanString(si.Matricule)
	si.FirstName = core.CleanString(si.FirstName)
	si.LastName = core.CleanString(si.LastName)
	si.Sex = core.CleanString(si.Sex)
	si.BirthDate = core.CleanString(si.BirthDate)
	si.ClassID = core.CleanString(si.ClassID)
	si.GuardianName = core.CleanString(si.GuardianName)
	si.GuardianPhone = core.CleanString(si.GuardianPhone)
	si.GuardianEmail = core.CleanString(si.GuardianEmail, true /* lower */)
}

type StudentFilter struct {
	ClassID  string `query:"class_id"`
	Search   string `query:"search"`
	IsActive *bool  `query:"is_active"`
}

func (sf *StudentFilter) Clean() {
	sf.ClassID = core.CleanString(sf.ClassID)
	sf.Search = core.CleanString(sf.Search)
}
