package tenant

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
)

var (
	ErrNotFound         = core.NewNotFoundError("school not found")
	ErrSignupNotFound   = core.NewNotFoundError("signup request not found")
	ErrSignupReviewed   = errors.New("signup request already reviewed")
	ErrDuplicatePending = errors.New("a signup request for this email is already pending")
)

type (
	Repository interface {
		CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
		GetTenant(ctx context.Context, id string) (Tenant, error)
		QueryTenants(ctx context.Context, filter QueryFilter) ([]Tenant, error)
		UpdateTenant(ctx context.Context, t Tenant) (Tenant, error)
		TenantNames(ctx context.Context) ([]string, error)

		CreateSignup(ctx context.Context, sr SignupRequest) (SignupRequest, error)
		GetSignup(ctx context.Context, id string) (SignupRequest, error)
		QuerySignups(ctx context.Context, status SignupStatus) ([]SignupRequest, error)
		HasPendingSignup(ctx context.Context, email string) (bool, error)
		// ReviewSignup persists sr only while the stored request is still pending;
		// it returns ErrSignupReviewed otherwise.
		ReviewSignup(ctx context.Context, sr SignupRequest) (SignupRequest, error)

		TenantUsage(ctx context.Context) ([]Usage, error)
	}

	// AdminInviter invites the first admin of a newly approved school.
	AdminInviter interface {
		// CheckInvitable returns a validation error when email cannot be invited.
		CheckInvitable(ctx context.Context, email string) error
		// IssueAdmin stores the invitation; it joins the transaction carried by ctx.
		IssueAdmin(ctx context.Context, t Tenant, email, fullName, issuedBy string) (invitationID string, err error)
		DeliverAdmin(ctx context.Context, t Tenant, invitationID string) (sent bool, err error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		inviter  AdminInviter
		mailSvc  core.EmailService
		conf     *core.Config
		logger   core.Logger
		validate *validator.Validate
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	inviter AdminInviter,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		inviter:  inviter,
		mailSvc:  mailSvc,
		conf:     conf,
		logger:   logger,
		validate: validate,
	}
}

// SetInviter breaks the construction cycle between tenants and invitations.
func (svc *Service) SetInviter(inviter AdminInviter) {
	svc.inviter = inviter
}

func (svc *Service) Get(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenant(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Tenant, error) {
	filter.Clean()
	return svc.repo.QueryTenants(ctx, filter)
}

// UpdateProfile changes the school settings of the scoped tenant.
func (svc *Service) UpdateProfile(ctx context.Context, scope Scope, data UpdateTenant) (Tenant, error) {
	if err := scope.Check(); err != nil {
		return Tenant{}, err
	}
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Tenant{}, err
	}

	t, err := svc.repo.GetTenant(ctx, scope.TenantID())
	if err != nil {
		return Tenant{}, errors.Wrap(err, "getting tenant")
	}
	t.Name = data.Name
	t.Email = data.Email
	t.Phone = data.Phone
	t.Address = data.Address
	t.City = data.City
	t.PrimaryColor = data.PrimaryColor
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTenant(ctx, t)
}

// SetLogo records the stored logo of the scoped tenant.
func (svc *Service) SetLogo(ctx context.Context, scope Scope, key, url string) (Tenant, error) {
	if err := scope.Check(); err != nil {
		return Tenant{}, err
	}
	t, err := svc.repo.GetTenant(ctx, scope.TenantID())
	if err != nil {
		return Tenant{}, errors.Wrap(err, "getting tenant")
	}
	t.LogoKey = key
	t.LogoURL = url
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTenant(ctx, t)
}

// SetStatus activates, suspends or blocks a tenant. Members of a non active tenant are denied at next request.
func (svc *Service) SetStatus(ctx context.Context, id string, change StatusChange) (Tenant, error) {
	change.Reason = core.CleanString(change.Reason)
	if err := svc.validate.Struct(change); err != nil {
		return Tenant{}, err
	}
	if change.Status != StatusActive && change.Reason == "" {
		return Tenant{}, core.NewFieldError("reason", "a reason is required to suspend or block a school")
	}

	t, err := svc.repo.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, errors.Wrap(err, "getting tenant")
	}
	t.Status = change.Status
	t.StatusReason = change.Reason
	if change.Status == StatusActive {
		t.StatusReason = ""
	}
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTenant(ctx, t)
}

// SetAccount switches a tenant between demo and paid accounts.
func (svc *Service) SetAccount(ctx context.Context, id string, change AccountChange) (Tenant, error) {
	if err := svc.validate.Struct(change); err != nil {
		return Tenant{}, err
	}
	if change.AccountType == AccountDemo && change.ExpiresAt == nil {
		return Tenant{}, core.NewFieldError("expires_at", "a demo account needs an expiration date")
	}

	t, err := svc.repo.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, errors.Wrap(err, "getting tenant")
	}
	t.AccountType = change.AccountType
	if change.ExpiresAt != nil {
		t.ExpiresAt = null.TimeFrom(change.ExpiresAt.UTC())
	} else {
		t.ExpiresAt = null.Time{}
	}
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTenant(ctx, t)
}

// SubmitSignup records a public signup request.
func (svc *Service) SubmitSignup(ctx context.Context, data NewSignup) (SignupRequest, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return SignupRequest{}, err
	}

	pending, err := svc.repo.HasPendingSignup(ctx, data.Email)
	if err != nil {
		return SignupRequest{}, errors.Wrap(err, "checking pending signups")
	}
	if pending {
		return SignupRequest{}, core.NewValidationError(ErrDuplicatePending, core.FieldError{Field: "email", Error: ErrDuplicatePending.Error()})
	}
	if err = svc.inviter.CheckInvitable(ctx, data.Email); err != nil {
		return SignupRequest{}, err
	}

	sr := SignupRequest{
		ID:          uuid.New().String(),
		SchoolName:  data.SchoolName,
		ContactName: data.ContactName,
		Email:       data.Email,
		Phone:       data.Phone,
		City:        data.City,
		Message:     data.Message,
		Status:      SignupPending,
		CreatedAt:   core.NowFunc(),
	}
	return svc.repo.CreateSignup(ctx, sr)
}

// ListSignups returns the signup requests with the existing schools their name resembles.
func (svc *Service) ListSignups(ctx context.Context, status SignupStatus) ([]SignupView, error) {
	signups, err := svc.repo.QuerySignups(ctx, status)
	if err != nil {
		return nil, errors.Wrap(err, "querying signups")
	}
	names, err := svc.repo.TenantNames(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing tenant names")
	}

	views := make([]SignupView, 0, len(signups))
	for _, sr := range signups {
		v := SignupView{SignupRequest: sr, PossibleDuplicates: []string{}}
		if sr.Status == SignupPending {
			v.PossibleDuplicates = SimilarNames(sr.SchoolName, names)
		}
		views = append(views, v)
	}
	return views, nil
}

// Approve creates the tenant of a pending signup request and invites its contact as admin.
// The tenant, the reviewed request and the invitation are stored in one transaction; the email
// is sent after it commits. A delivery failure is reported in the result and the invitation can
// be sent again from the super-admin console.
func (svc *Service) Approve(ctx context.Context, reviewerID, signupID string, data Approval) (ApprovalResult, error) {
	if err := svc.validate.Struct(data); err != nil {
		return ApprovalResult{}, err
	}
	if data.AccountType == "" {
		data.AccountType = AccountDemo
	}
	if data.TrialDays == 0 {
		data.TrialDays = svc.conf.Tenant.TrialDays
	}

	var res ApprovalResult
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		sr, err := svc.repo.GetSignup(ctx, signupID)
		if err != nil {
			return errors.Wrap(err, "getting signup")
		}
		if sr.Status != SignupPending {
			return ErrSignupReviewed
		}
		if err = svc.inviter.CheckInvitable(ctx, sr.Email); err != nil {
			return err
		}

		now := core.NowFunc()
		t := Tenant{
			ID:          uuid.New().String(),
			Name:        sr.SchoolName,
			Email:       sr.Email,
			Phone:       sr.Phone,
			City:        sr.City,
			Status:      StatusActive,
			AccountType: data.AccountType,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if data.AccountType == AccountDemo {
			t.ExpiresAt = null.TimeFrom(now.Add(time.Duration(data.TrialDays) * 24 * time.Hour))
		}
		if t, err = svc.repo.CreateTenant(ctx, t); err != nil {
			return errors.Wrap(err, "creating tenant")
		}

		sr.Status = SignupApproved
		sr.TenantID = null.StringFrom(t.ID)
		sr.ReviewedBy = reviewerID
		sr.ReviewedAt = null.TimeFrom(now)
		if sr, err = svc.repo.ReviewSignup(ctx, sr); err != nil {
			return errors.Wrap(err, "reviewing signup")
		}

		if res.InvitationID, err = svc.inviter.IssueAdmin(ctx, t, sr.Email, sr.ContactName, reviewerID); err != nil {
			return errors.Wrap(err, "issuing admin invitation")
		}
		res.Signup = sr
		res.Tenant = t
		return nil
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	sent, err := svc.inviter.DeliverAdmin(ctx, res.Tenant, res.InvitationID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("admin invitation %s not delivered: %v", res.InvitationID, err))
	}
	res.InvitationSent = sent
	return res, nil
}

// Reject closes a pending signup request and emails the reason to its contact.
func (svc *Service) Reject(ctx context.Context, reviewerID, signupID string, data Rejection) (SignupRequest, error) {
	data.Reason = core.CleanString(data.Reason)
	if err := svc.validate.Struct(data); err != nil {
		return SignupRequest{}, err
	}

	sr, err := svc.repo.GetSignup(ctx, signupID)
	if err != nil {
		return SignupRequest{}, errors.Wrap(err, "getting signup")
	}
	if sr.Status != SignupPending {
		return SignupRequest{}, ErrSignupReviewed
	}

	sr.Status = SignupRejected
	sr.RejectionReason = data.Reason
	sr.ReviewedBy = reviewerID
	sr.ReviewedAt = null.TimeFrom(core.NowFunc())
	if sr, err = svc.repo.ReviewSignup(ctx, sr); err != nil {
		return SignupRequest{}, errors.Wrap(err, "reviewing signup")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: sr.ContactName, Address: sr.Email}},
		Subject:      fmt.Sprintf("Votre demande d'inscription pour %s", sr.SchoolName),
		TemplateName: "signup_rejected",
		TemplateData: map[string]string{
			"ContactName":    sr.ContactName,
			"SchoolName":     sr.SchoolName,
			"Reason":         sr.RejectionReason,
			"SupportContact": svc.conf.SupportContact,
		},
	})
	return sr, nil
}

// Usage aggregates the activity of every tenant.
func (svc *Service) Usage(ctx context.Context) (UsageReport, error) {
	usage, err := svc.repo.TenantUsage(ctx)
	if err != nil {
		return UsageReport{}, errors.Wrap(err, "querying usage")
	}

	report := UsageReport{Tenants: usage, TotalTenants: len(usage)}
	for _, u := range usage {
		if u.Status == StatusActive {
			report.ActiveTenants++
		}
		report.Users += u.Users
		report.Students += u.Students
		report.Invoices += u.Invoices
		report.Invoiced += u.Invoiced
		report.Collected += u.Collected
	}
	return report, nil
}

// Gate applies LoginGate with the configured support contact.
func (svc *Service) Gate(t Tenant) error {
	return LoginGate(t, core.NowFunc(), svc.conf.SupportContact)
}
