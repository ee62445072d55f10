package identity

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
)

var (
	ErrNotFound        = core.NewNotFoundError("identity not found")
	ErrSessionNotFound = core.NewNotFoundError("session not found")
	ErrEmailExists     = errors.New("an account with this email already exists")
	ErrSessionInactive = &AuthError{Message: "session expired or revoked"}
	ErrInvalidLink     = core.NewValidationError(errors.New("invalid or expired link"))
)

type (
	Repository interface {
		CreateIdentity(ctx context.Context, ident Identity) (Identity, error)
		GetIdentityByID(ctx context.Context, id string) (Identity, error)
		GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
		UpdateIdentity(ctx context.Context, ident Identity) (Identity, error)

		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		RevokeSession(ctx context.Context, id string) error

		PlatformRole(ctx context.Context, identityID string) (string, error) // "" when none
		GrantPlatformRole(ctx context.Context, identityID, role string) error
	}

	Service struct {
		repo         Repository
		mailSvc      core.EmailService
		conf         *core.Config
		validate     *validator.Validate
		listeners    []Listener
		resetTokens  tokenGenerator
		emailTokens  tokenGenerator
		frontendBase string
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, validate *validator.Validate, listeners ...Listener) *Service {
	return &Service{
		repo:         repo,
		mailSvc:      mailSvc,
		conf:         conf,
		validate:     validate,
		listeners:    listeners,
		resetTokens:  newTokenGenerator("password_reset", conf.SecretKey, conf.Auth.PasswordResetTimeoutDelta),
		emailTokens:  newTokenGenerator("email_confirmation", conf.SecretKey, conf.Auth.PasswordResetTimeoutDelta),
		frontendBase: conf.FrontendBaseURL,
	}
}

func (svc *Service) notify(ctx context.Context, event Event, sess Session) {
	for _, l := range svc.listeners {
		l.SessionEvent(ctx, event, sess)
	}
}

// Authenticate checks the credentials of an identity.
// Credential problems are *AuthError; anything else is an infrastructure error.
func (svc *Service) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	creds.Clean()
	if err := svc.validate.Struct(creds); err != nil {
		return Identity{}, err
	}

	ident, err := svc.repo.GetIdentityByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Identity{}, ErrBadCredentials
		}
		return Identity{}, errors.Wrap(err, "finding identity by email")
	}
	if err = ident.CheckPassword(creds.Password); err != nil {
		return Identity{}, ErrBadCredentials
	}
	if svc.conf.Auth.RequireEmailConfirmation && !ident.EmailConfirmed() {
		return Identity{}, ErrEmailNotConfirmed
	}
	return ident, nil
}

// StartSession opens a new session for ident and records the login.
func (svc *Service) StartSession(ctx context.Context, ident Identity) (Session, error) {
	now := core.NowFunc()
	sess, err := svc.repo.CreateSession(ctx, Session{
		ID:         uuid.New().String(),
		IdentityID: ident.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(svc.conf.Auth.SessionLifetime),
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}

	ident.LastLogin = null.TimeFrom(now)
	ident.UpdatedAt = now
	if _, err = svc.repo.UpdateIdentity(ctx, ident); err != nil {
		return Session{}, errors.Wrap(err, "setting last login")
	}

	svc.notify(ctx, EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the session. Revoking an already revoked session is a no-op.
func (svc *Service) SignOut(ctx context.Context, sessionID string) error {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	if sess.RevokedAt.Valid {
		return nil
	}
	if err = svc.repo.RevokeSession(ctx, sessionID); err != nil {
		return errors.Wrap(err, "revoking session")
	}
	svc.notify(ctx, EventSignedOut, sess)
	return nil
}

// Refresh checks that the session can still be used to issue a new token.
func (svc *Service) Refresh(ctx context.Context, sessionID string) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return Session{}, ErrSessionInactive
		}
		return Session{}, errors.Wrap(err, "getting session")
	}
	if !sess.Active(core.NowFunc()) {
		return Session{}, ErrSessionInactive
	}
	svc.notify(ctx, EventTokenRefreshed, sess)
	return sess, nil
}

// CurrentUser returns the identity behind an active session, nil otherwise.
func (svc *Service) CurrentUser(ctx context.Context, sessionID, identityID string) (*Identity, error) {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting session")
	}
	if sess.IdentityID != identityID || !sess.Active(core.NowFunc()) {
		return nil, nil
	}

	ident, err := svc.repo.GetIdentityByID(ctx, identityID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting identity")
	}
	return &ident, nil
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Identity, error) {
	return svc.repo.GetIdentityByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByID(ctx context.Context, id string) (Identity, error) {
	return svc.repo.GetIdentityByID(ctx, id)
}

// Register creates an identity. The email is considered confirmed unless confirmation is required.
func (svc *Service) Register(ctx context.Context, ni NewIdentity) (Identity, error) {
	ni.Clean()
	if err := svc.validate.Struct(ni); err != nil {
		return Identity{}, err
	}

	now := core.NowFunc()
	ident := Identity{
		ID:        uuid.New().String(),
		Email:     ni.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !svc.conf.Auth.RequireEmailConfirmation {
		ident.EmailConfirmedAt = null.TimeFrom(now)
	}
	if err := ident.SetPassword(ni.Password); err != nil {
		return Identity{}, errors.Wrap(err, "hashing password")
	}

	ident, err := svc.repo.CreateIdentity(ctx, ident)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return Identity{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return Identity{}, errors.Wrap(err, "creating identity")
	}
	return ident, nil
}

// SetPassword replaces the password of the identity with the given email.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	ident, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = ident.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	ident.UpdatedAt = core.NowFunc()
	_, err = svc.repo.UpdateIdentity(ctx, ident)
	return err
}

func (svc *Service) IsSuperAdmin(ctx context.Context, identityID string) (bool, error) {
	role, err := svc.repo.PlatformRole(ctx, identityID)
	if err != nil {
		return false, errors.Wrap(err, "getting platform role")
	}
	return role == PlatformRoleSuperAdmin, nil
}

func (svc *Service) GrantSuperAdmin(ctx context.Context, identityID string) error {
	return svc.repo.GrantPlatformRole(ctx, identityID, PlatformRoleSuperAdmin)
}

func (svc *Service) link(path string, ident Identity, token string) string {
	q := make(url.Values)
	q.Set("uid", EncodeUID(ident))
	q.Set("token", token)
	return fmt.Sprintf("%s/%s?%s", svc.frontendBase, path, q.Encode())
}

// RequestPasswordReset emails a password reset link. Unknown emails return ErrNotFound.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	ident, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := svc.resetTokens.makeToken(ident)
	if err != nil {
		return errors.Wrap(err, "making token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: ident.Email}},
		Subject:      "Réinitialisation de votre mot de passe",
		TemplateName: "password_reset",
		TemplateData: map[string]string{"Link": svc.link("mot-de-passe/nouveau", ident, token)},
	})
	return nil
}

func (svc *Service) identityFromUID(ctx context.Context, uid string) (Identity, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return Identity{}, ErrInvalidLink
	}
	ident, err := svc.repo.GetIdentityByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Identity{}, ErrInvalidLink
		}
		return Identity{}, errors.Wrap(err, "getting identity")
	}
	return ident, nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetPassword) error {
	if err := svc.validate.Struct(data); err != nil {
		return err
	}
	ident, err := svc.identityFromUID(ctx, data.UID)
	if err != nil {
		return err
	}
	if err = svc.resetTokens.verifyToken(ident, data.Token); err != nil {
		return ErrInvalidLink
	}
	if err = ident.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	ident.UpdatedAt = core.NowFunc()
	_, err = svc.repo.UpdateIdentity(ctx, ident)
	return errors.Wrap(err, "updating identity")
}

// SendEmailConfirmation delivers the confirmation link synchronously.
func (svc *Service) SendEmailConfirmation(ctx context.Context, ident Identity) error {
	token, err := svc.emailTokens.makeToken(ident)
	if err != nil {
		return errors.Wrap(err, "making token")
	}
	return svc.mailSvc.Send(ctx, &core.EmailMessage{
		To:           []mail.Address{{Address: ident.Email}},
		Subject:      "Confirmez votre adresse email",
		TemplateName: "email_confirmation",
		TemplateData: map[string]string{"Link": svc.link("confirmer-email", ident, token)},
	})
}

func (svc *Service) ConfirmEmail(ctx context.Context, data ConfirmEmail) error {
	if err := svc.validate.Struct(data); err != nil {
		return err
	}
	ident, err := svc.identityFromUID(ctx, data.UID)
	if err != nil {
		return err
	}
	if ident.EmailConfirmed() {
		return nil
	}
	if err = svc.emailTokens.verifyToken(ident, data.Token); err != nil {
		return ErrInvalidLink
	}
	now := core.NowFunc()
	ident.EmailConfirmedAt = null.TimeFrom(now)
	ident.UpdatedAt = now
	_, err = svc.repo.UpdateIdentity(ctx, ident)
	return errors.Wrap(err, "updating identity")
}
