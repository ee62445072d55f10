package tenant

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
)

type Status string

const (
	StatusActive    Status = "actif"
	StatusSuspended Status = "suspendu"
	StatusBlocked   Status = "bloque"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended || s == StatusBlocked
}

type AccountType string

const (
	AccountDemo AccountType = "demo"
	AccountPaid AccountType = "payant"
)

func (at AccountType) Valid() bool {
	return at == AccountDemo || at == AccountPaid
}

// Tenant is a school: the unit of data isolation.
type Tenant struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Email        string      `json:"email" db:"email"`
	Phone        string      `json:"phone" db:"phone"`
	Address      string      `json:"address" db:"address"`
	City         string      `json:"city" db:"city"`
	LogoURL      string      `json:"logo_url" db:"logo_url"`
	LogoKey      string      `json:"-" db:"logo_key"`
	PrimaryColor string      `json:"primary_color" db:"primary_color"`
	Status       Status      `json:"status" db:"status"`
	StatusReason string      `json:"status_reason" db:"status_reason"`
	AccountType  AccountType `json:"account_type" db:"account_type"`
	ExpiresAt    null.Time   `json:"expires_at" db:"expires_at"` // end of trial for demo accounts
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// UpdateTenant holds the school settings an admin may change.
type UpdateTenant struct {
	Name         string `json:"name" validate:"required,notblank,max=200"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"omitempty,sn_phone"`
	Address      string `json:"address" validate:"max=500"`
	City         string `json:"city" validate:"max=100"`
	PrimaryColor string `json:"primary_color" validate:"omitempty,hexcolor"`
}

func (ut *UpdateTenant) Clean() {
	ut.Name = core.CleanString(ut.Name)
	ut.Email = core.CleanString(ut.Email, true /* lower */)
	ut.Phone = core.CleanString(ut.Phone)
	ut.Address = core.CleanString(ut.Address)
	ut.City = core.CleanString(ut.City)
	ut.PrimaryColor = core.CleanString(ut.PrimaryColor)
}

type StatusChange struct {
	Status Status `json:"status" validate:"required,oneof=actif suspendu bloque"`
	Reason string `json:"reason" validate:"max=500"`
}

type AccountChange struct {
	AccountType AccountType `json:"account_type" validate:"required,oneof=demo payant"`
	ExpiresAt   *time.Time  `json:"expires_at"`
}

type QueryFilter struct {
	Search      string      `query:"search"`
	Status      Status      `query:"status"`
	AccountType AccountType `query:"account_type"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

type SignupStatus string

const (
	SignupPending  SignupStatus = "en_attente"
	SignupApproved SignupStatus = "approuvee"
	SignupRejected SignupStatus = "rejetee"
)

// SignupRequest is a school asking to be onboarded; a super-admin approves or rejects it.
type SignupRequest struct {
	ID              string       `json:"id" db:"id"`
	SchoolName      string       `json:"school_name" db:"school_name"`
	ContactName     string       `json:"contact_name" db:"contact_name"`
	Email           string       `json:"email" db:"email"`
	Phone           string       `json:"phone" db:"phone"`
	City            string       `json:"city" db:"city"`
	Message         string       `json:"message" db:"message"`
	Status          SignupStatus `json:"status" db:"status"`
	RejectionReason string       `json:"rejection_reason" db:"rejection_reason"`
	TenantID        null.String  `json:"tenant_id" db:"tenant_id"`
	ReviewedBy      string       `json:"reviewed_by" db:"reviewed_by"`
	ReviewedAt      null.Time    `json:"reviewed_at" db:"reviewed_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

type NewSignup struct {
	SchoolName  string `json:"school_name" validate:"required,notblank,max=200"`
	ContactName string `json:"contact_name" validate:"required,notblank,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"omitempty,sn_phone"`
	City        string `json:"city" validate:"max=100"`
	Message     string `json:"message" validate:"max=2000"`
}

func (ns *NewSignup) Clean() {
	ns.SchoolName = core.CleanString(ns.SchoolName)
	ns.ContactName = core.CleanString(ns.ContactName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.City = core.CleanString(ns.City)
	ns.Message = core.CleanString(ns.Message)
}

type Approval struct {
	AccountType AccountType `json:"account_type" validate:"omitempty,oneof=demo payant"`
	TrialDays   int         `json:"trial_days" validate:"gte=0,lte=365"`
}

type Rejection struct {
	Reason string `json:"reason" validate:"required,notblank,max=2000"`
}

// SignupView is a signup request as listed to super-admins.
type SignupView struct {
	SignupRequest
	PossibleDuplicates []string `json:"possible_duplicates"`
}

type ApprovalResult struct {
	Signup         SignupRequest `json:"signup"`
	Tenant         Tenant        `json:"tenant"`
	InvitationID   string        `json:"invitation_id"`
	InvitationSent bool          `json:"invitation_sent"`
}

// Usage is a tenant's activity as seen from the super-admin console.
type Usage struct {
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	TenantName string `json:"tenant_name" db:"tenant_name"`
	Status     Status `json:"status" db:"status"`
	Users      int    `json:"users" db:"users"`
	Students   int    `json:"students" db:"students"`
	Invoices   int    `json:"invoices" db:"invoices"`
	Invoiced   int64  `json:"invoiced" db:"invoiced"`
	Collected  int64  `json:"collected" db:"collected"`
}

type UsageReport struct {
	Tenants       []Usage `json:"tenants"`
	TotalTenants  int     `json:"total_tenants"`
	ActiveTenants int     `json:"active_tenants"`
	Users         int     `json:"users"`
	Students      int     `json:"students"`
	Invoices      int     `json:"invoices"`
	Invoiced      int64   `json:"invoiced"`
	Collected     int64   `json:"collected"`
}
