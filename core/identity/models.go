package identity

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/samaecole/backend/core"
)

// Identity is an authenticable account. What it may access is decided by its tenant membership
// or platform role, never by the identity itself.
type Identity struct {
	ID               string    `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	PasswordHash     []byte    `json:"-" db:"password_hash"`
	EmailConfirmedAt null.Time `json:"email_confirmed_at" db:"email_confirmed_at"`
	LastLogin        null.Time `json:"last_login" db:"last_login"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

func (i *Identity) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	i.PasswordHash = hash
	return nil
}

func (i *Identity) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(i.PasswordHash, []byte(pwd))
}

func (i Identity) EmailConfirmed() bool {
	return i.EmailConfirmedAt.Valid
}

// Session is a login session; its ID is carried by the bearer token.
type Session struct {
	ID         string    `json:"id" db:"id"`
	IdentityID string    `json:"identity_id" db:"identity_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	RevokedAt  null.Time `json:"revoked_at" db:"revoked_at"`
}

func (s Session) Active(now time.Time) bool {
	return !s.RevokedAt.Valid && now.Before(s.ExpiresAt)
}

const PlatformRoleSuperAdmin = "super_admin"

type NewIdentity struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (ni *NewIdentity) Clean() {
	ni.Email = core.CleanString(ni.Email, true /* lower */)
}

type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Clean() {
	c.Email = core.CleanString(c.Email, true /* lower */)
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required,min=6,max=72"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

type ConfirmEmail struct {
	Token string `json:"token" validate:"required"`
	UID   string `json:"uid" validate:"required"`
}

// AuthError is an authentication failure whose message can be shown to the user.
type AuthError struct {
	Message string
}

func (e AuthError) Error() string {
	return e.Message
}

var (
	ErrBadCredentials    = &AuthError{Message: "Email ou mot de passe incorrect"}
	ErrEmailNotConfirmed = &AuthError{Message: "email not confirmed"}
)

type Event string

const (
	EventSignedIn       Event = "signed_in"
	EventSignedOut      Event = "signed_out"
	EventTokenRefreshed Event = "token_refreshed"
)

// Listener is notified of session lifecycle events.
type Listener interface {
	SessionEvent(ctx context.Context, event Event, sess Session)
}
