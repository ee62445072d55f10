// Package invitation issues the time-bounded tokens through which staff accounts are created.
package invitation

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
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/internal/scope"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
)

const RefHeader = "X-Sama-Invitation-Ref"

var (
	ErrNotFound       = core.NewNotFoundError("invitation not found")
	ErrPending        = errors.New("an invitation is already pending for this email")
	ErrIdentityExists = errors.New("an account with this email already exists")
	ErrTenantJoined   = errors.New("this school already has members")
)

type (
	Repository interface {
		CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		GetInvitation(ctx context.Context, scope tenant.Scope, id string) (Invitation, error)
		// GetInvitationByToken is unscoped: the token is the invitee's only credential.
		GetInvitationByToken(ctx context.Context, token string) (Invitation, error)
		QueryInvitations(ctx context.Context, scope tenant.Scope, filter QueryFilter) ([]Invitation, error)
		HasPendingInvitation(ctx context.Context, scope tenant.Scope, email string) (bool, error)
		// TransitionInvitation moves an invitation from one status to another in a single conditional
		// update and reports whether it did. A false return means the stored status was not `from`.
		TransitionInvitation(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
		DeleteInvitation(ctx context.Context, scope tenant.Scope, id string) error
	}

	Service struct {
		repo       Repository
		tx         core.Transactor
		identities *identity.Service
		users      user.Repository
		tenants    tenant.Repository
		mailSvc    core.EmailService
		conf       *core.Config
		logger     core.Logger
		validate   *validator.Validate
		listeners  []Listener
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	identities *identity.Service,
	users user.Repository,
	tenants tenant.Repository,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	listeners ...Listener,
) *Service {
	return &Service{
		repo:       repo,
		tx:         tx,
		identities: identities,
		users:      users,
		tenants:    tenants,
		mailSvc:    mailSvc,
		conf:       conf,
		logger:     logger,
		validate:   validate,
		listeners:  listeners,
	}
}

func (svc *Service) notify(ctx context.Context, event Event, inv Invitation) {
	for _, l := range svc.listeners {
		l.InvitationEvent(ctx, event, inv)
	}
}

// Create invites a secretary or an accountant into the caller's school.
func (svc *Service) Create(ctx context.Context, ac access.Context, data NewInvitation) (Delivery, error) {
	scope, err := ac.Require(authz.UsersInvite)
	if err != nil {
		return Delivery{}, err
	}
	data.Clean()
	if err = svc.validate.Struct(data); err != nil {
		return Delivery{}, err
	}

	inv, err := svc.issue(ctx, scope, data, ac.ActorID())
	if err != nil {
		return Delivery{}, err
	}
	return svc.deliver(ctx, inv, ac.Tenant.Name), nil
}

// IssueAdmin stores the first admin invitation of a newly approved school. It runs inside
// the approval transaction and sends nothing: DeliverAdmin emails it once the approval is committed.
func (svc *Service) IssueAdmin(ctx context.Context, t tenant.Tenant, email, fullName, issuedBy string) (string, error) {
	data := NewInvitation{Email: email, FullName: fullName, Role: authz.RoleAdmin}
	data.Clean()
	inv, err := svc.issue(ctx, scope.New(t.ID), data, issuedBy)
	if err != nil {
		return "", err
	}
	return inv.ID, nil
}

// DeliverAdmin emails the admin invitation id of t.
func (svc *Service) DeliverAdmin(ctx context.Context, t tenant.Tenant, id string) (bool, error) {
	inv, err := svc.repo.GetInvitation(ctx, scope.New(t.ID), id)
	if err != nil {
		return false, errors.Wrap(err, "getting invitation")
	}
	return svc.deliver(ctx, inv, t.Name).EmailSent, nil
}

// CheckInvitable returns a validation error when email already belongs to an account.
func (svc *Service) CheckInvitable(ctx context.Context, email string) error {
	_, err := svc.identities.GetByEmail(ctx, email)
	if err == nil {
		return core.NewValidationError(ErrIdentityExists, core.FieldError{Field: "email", Error: ErrIdentityExists.Error()})
	}
	if errors.Cause(err) != identity.ErrNotFound {
		return errors.Wrap(err, "checking existing identity")
	}
	return nil
}

// ReissueAdmin is the super-admin's way to retry the admin invitation of a school nobody has
// joined yet: a still valid invitation is emailed again, an expired or cancelled one is replaced
// by a new invitation to the same person.
func (svc *Service) ReissueAdmin(ctx context.Context, ac access.Context, tenantID string) (Delivery, error) {
	if !ac.IsSuperAdmin() {
		return Delivery{}, authz.ErrForbidden
	}
	t, err := svc.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return Delivery{}, errors.Wrap(err, "getting tenant")
	}
	sc := scope.New(t.ID)

	members, err := svc.users.QueryUsers(ctx, sc, user.QueryFilter{}, nil)
	if err != nil {
		return Delivery{}, errors.Wrap(err, "querying members")
	}
	if len(members) > 0 {
		return Delivery{}, ErrTenantJoined
	}

	invs, err := svc.repo.QueryInvitations(ctx, sc, QueryFilter{})
	if err != nil {
		return Delivery{}, errors.Wrap(err, "querying invitations")
	}
	var last *Invitation
	for i := range invs { // most recent first
		if invs[i].Role == authz.RoleAdmin {
			last = &invs[i]
			break
		}
	}
	if last == nil {
		return Delivery{}, ErrNotFound
	}

	switch err = svc.usable(ctx, *last); errors.Cause(err) {
	case nil:
		d := svc.deliver(ctx, *last, t.Name)
		svc.notify(ctx, EventResent, *last)
		return d, nil
	case ErrExpired, ErrCancelled:
		data := NewInvitation{Email: last.Email, FullName: last.FullName, Role: authz.RoleAdmin, Message: last.Message}
		inv, err := svc.issue(ctx, sc, data, ac.ActorID())
		if err != nil {
			return Delivery{}, err
		}
		return svc.deliver(ctx, inv, t.Name), nil
	default:
		return Delivery{}, err
	}
}

func (svc *Service) issue(ctx context.Context, scope tenant.Scope, data NewInvitation, issuedBy string) (Invitation, error) {
	pending, err := svc.repo.HasPendingInvitation(ctx, scope, data.Email)
	if err != nil {
		return Invitation{}, errors.Wrap(err, "checking pending invitations")
	}
	if pending {
		return Invitation{}, core.NewValidationError(ErrPending, core.FieldError{Field: "email", Error: ErrPending.Error()})
	}

	if err = svc.CheckInvitable(ctx, data.Email); err != nil {
		return Invitation{}, err
	}

	token, err := NewToken()
	if err != nil {
		return Invitation{}, errors.Wrap(err, "generating token")
	}

	now := core.NowFunc()
	inv, err := svc.repo.CreateInvitation(ctx, Invitation{
		ID:        uuid.New().String(),
		TenantID:  scope.TenantID(),
		Email:     data.Email,
		FullName:  data.FullName,
		Role:      data.Role,
		Message:   data.Message,
		Token:     token,
		Status:    StatusSent,
		ExpiresAt: now.Add(svc.conf.Auth.InvitationTTL),
		InvitedBy: issuedBy,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Invitation{}, errors.Wrap(err, "creating invitation")
	}
	svc.notify(ctx, EventCreated, inv)
	return inv, nil
}

// deliver emails the activation link. Failures are reported, never rolled back.
func (svc *Service) deliver(ctx context.Context, inv Invitation, schoolName string) Delivery {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: inv.FullName, Address: inv.Email}},
		Subject:      fmt.Sprintf("Invitation à rejoindre %s", schoolName),
		TemplateName: "invitation",
		TemplateData: map[string]string{
			"FullName":   inv.FullName,
			"SchoolName": schoolName,
			"RoleLabel":  inv.Role.Label(),
			"Message":    inv.Message,
			"Link":       svc.conf.InvitationLink(inv.Token),
			"ExpiresAt":  inv.ExpiresAt.Format("02/01/2006 15:04"),
		},
	}
	msg.SetHeader(RefHeader, Ref(inv.Token))

	d := Delivery{Invitation: inv}
	if err := svc.mailSvc.Send(ctx, msg); err != nil {
		svc.logger.Warn(fmt.Sprintf("invitation %s not delivered: %v", inv.ID, err))
		d.DeliveryError = "L'invitation a été créée mais l'email n'a pas pu être envoyé. Vous pouvez le renvoyer."
		return d
	}
	d.EmailSent = true
	return d
}

// usable returns the state error of an invitation that can no longer be used.
// A sent invitation past its expiration instant is moved to expire on the spot.
func (svc *Service) usable(ctx context.Context, inv Invitation) error {
	if inv.Status != StatusSent {
		return stateError(inv.Status)
	}
	now := core.NowFunc()
	if !inv.Expired(now) {
		return nil
	}

	ok, err := svc.repo.TransitionInvitation(ctx, inv.ID, StatusSent, StatusExpired, now)
	if err != nil {
		return errors.Wrap(err, "expiring invitation")
	}
	if !ok {
		return svc.currentState(ctx, inv.Token)
	}
	inv.Status = StatusExpired
	svc.notify(ctx, EventExpired, inv)
	return ErrExpired
}

// currentState re-reads an invitation that lost a conditional transition.
func (svc *Service) currentState(ctx context.Context, token string) error {
	inv, err := svc.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		return errors.Wrap(err, "getting invitation")
	}
	return stateError(inv.Status)
}

func (svc *Service) byToken(ctx context.Context, token string) (Invitation, error) {
	if token == "" {
		return Invitation{}, ErrNotFound
	}
	inv, err := svc.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Invitation{}, ErrNotFound
		}
		return Invitation{}, errors.Wrap(err, "getting invitation")
	}
	return inv, nil
}

// Validate checks the token of an activation link and describes the invitation behind it.
func (svc *Service) Validate(ctx context.Context, token string) (View, error) {
	inv, err := svc.byToken(ctx, token)
	if err != nil {
		return View{}, err
	}
	if err = svc.usable(ctx, inv); err != nil {
		return View{}, err
	}

	t, err := svc.tenants.GetTenant(ctx, inv.TenantID)
	if err != nil {
		return View{}, errors.Wrap(err, "getting tenant")
	}
	return View{
		Email:      inv.Email,
		FullName:   inv.FullName,
		Role:       inv.Role,
		RoleLabel:  inv.Role.Label(),
		SchoolName: t.Name,
		Message:    inv.Message,
		Status:     inv.Status,
		ExpiresAt:  inv.ExpiresAt,
	}, nil
}

// Accept consumes the invitation: the identity and its membership are created, and the invitation
// moves to accepte, in one transaction. Of concurrent consumers only one succeeds; the others get
// ErrAlreadyUsed.
func (svc *Service) Accept(ctx context.Context, token string, data Acceptance) (AcceptResult, error) {
	if err := svc.validate.Struct(data); err != nil {
		return AcceptResult{}, err
	}
	inv, err := svc.byToken(ctx, token)
	if err != nil {
		return AcceptResult{}, err
	}
	if err = svc.usable(ctx, inv); err != nil {
		return AcceptResult{}, err
	}

	var ident identity.Identity
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := core.NowFunc()
		ok, err := svc.repo.TransitionInvitation(ctx, inv.ID, StatusSent, StatusAccepted, now)
		if err != nil {
			return errors.Wrap(err, "accepting invitation")
		}
		if !ok {
			return svc.currentState(ctx, token)
		}

		ident, err = svc.identities.Register(ctx, identity.NewIdentity{
			Email:           inv.Email,
			Password:        data.Password,
			PasswordConfirm: data.PasswordConfirm,
		})
		if err != nil {
			return err
		}

		_, err = svc.users.CreateUser(ctx, user.User{
			ID:         uuid.New().String(),
			IdentityID: ident.ID,
			TenantID:   inv.TenantID,
			FullName:   inv.FullName,
			Email:      inv.Email,
			Role:       inv.Role,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return errors.Wrap(err, "creating user")
		}

		inv.Status = StatusAccepted
		inv.AcceptedAt = null.TimeFrom(now)
		inv.UpdatedAt = now
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}
	svc.notify(ctx, EventAccepted, inv)

	res := AcceptResult{Outcome: OutcomeCompleted, Invitation: inv}
	if !ident.EmailConfirmed() {
		res.Outcome = OutcomeConfirmationRequired
		if err = svc.identities.SendEmailConfirmation(ctx, ident); err != nil {
			svc.logger.Warn(fmt.Sprintf("confirmation email for %s not delivered: %v", ident.ID, err))
		}
	}
	return res, nil
}

func (svc *Service) get(ctx context.Context, ac access.Context, id string) (tenant.Scope, Invitation, error) {
	scope, err := ac.Require(authz.UsersInvite)
	if err != nil {
		return tenant.Scope{}, Invitation{}, err
	}
	inv, err := svc.repo.GetInvitation(ctx, scope, id)
	if err != nil {
		return tenant.Scope{}, Invitation{}, err
	}
	return scope, inv, nil
}

func (svc *Service) Get(ctx context.Context, ac access.Context, id string) (Invitation, error) {
	_, inv, err := svc.get(ctx, ac, id)
	return inv, err
}

// Resend emails the same token again. Status and expiration are left untouched.
func (svc *Service) Resend(ctx context.Context, ac access.Context, id string) (Delivery, error) {
	_, inv, err := svc.get(ctx, ac, id)
	if err != nil {
		return Delivery{}, err
	}
	if err = svc.usable(ctx, inv); err != nil {
		return Delivery{}, err
	}
	d := svc.deliver(ctx, inv, ac.Tenant.Name)
	svc.notify(ctx, EventResent, inv)
	return d, nil
}

// Cancel withdraws a sent invitation; its token stops working.
func (svc *Service) Cancel(ctx context.Context, ac access.Context, id string) (Invitation, error) {
	_, inv, err := svc.get(ctx, ac, id)
	if err != nil {
		return Invitation{}, err
	}
	if err = svc.usable(ctx, inv); err != nil {
		return Invitation{}, err
	}

	now := core.NowFunc()
	ok, err := svc.repo.TransitionInvitation(ctx, inv.ID, StatusSent, StatusCancelled, now)
	if err != nil {
		return Invitation{}, errors.Wrap(err, "cancelling invitation")
	}
	if !ok {
		return Invitation{}, svc.currentState(ctx, inv.Token)
	}
	inv.Status = StatusCancelled
	inv.UpdatedAt = now
	svc.notify(ctx, EventCancelled, inv)
	return inv, nil
}

// Delete removes the invitation whatever its status.
func (svc *Service) Delete(ctx context.Context, ac access.Context, id string) error {
	scope, inv, err := svc.get(ctx, ac, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteInvitation(ctx, scope, id); err != nil {
		return errors.Wrap(err, "deleting invitation")
	}
	svc.notify(ctx, EventDeleted, inv)
	return nil
}

// List returns the invitations of the caller's school, most recent first.
func (svc *Service) List(ctx context.Context, ac access.Context, filter QueryFilter) ([]Invitation, error) {
	scope, err := ac.Require(authz.UsersInvite)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryInvitations(ctx, scope, filter)
}
