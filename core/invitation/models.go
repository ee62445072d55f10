package invitation

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/authz"
)

type Status string

const (
	StatusSent      Status = "envoye"
	StatusAccepted  Status = "accepte"
	StatusExpired   Status = "expire"
	StatusCancelled Status = "annule"
)

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusExpired || s == StatusCancelled
}

// Invitation lets a named person create an account bound to a school and a role.
// It is consumed at most once.
type Invitation struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	Email      string     `json:"email" db:"email"`
	FullName   string     `json:"full_name" db:"full_name"`
	Role       authz.Role `json:"role" db:"role"`
	Message    string     `json:"message" db:"message"`
	Token      string     `json:"-" db:"token"`
	Status     Status     `json:"status" db:"status"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	InvitedBy  string     `json:"invited_by" db:"invited_by"`
	AcceptedAt null.Time  `json:"accepted_at" db:"accepted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired reports whether a sent invitation is past its expiration instant.
func (inv Invitation) Expired(now time.Time) bool {
	return inv.Status == StatusSent && now.After(inv.ExpiresAt)
}

type NewInvitation struct {
	Email    string     `json:"email" validate:"required,email"`
	FullName string     `json:"full_name" validate:"required,notblank,max=200"`
	Role     authz.Role `json:"role" validate:"required,invitable_role"`
	Message  string     `json:"message" validate:"max=1000"`
}

func (ni *NewInvitation) Clean() {
	ni.Email = core.CleanString(ni.Email, true /* lower */)
	ni.FullName = core.CleanString(ni.FullName)
	ni.Message = core.CleanString(ni.Message)
}

type Acceptance struct {
	Password        string `json:"password" validate:"required,min=6,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type QueryFilter struct {
	Status Status `query:"status"`
}

// View is what an invitee sees when opening the activation link.
type View struct {
	Email      string     `json:"email"`
	FullName   string     `json:"full_name"`
	Role       authz.Role `json:"role"`
	RoleLabel  string     `json:"role_label"`
	SchoolName string     `json:"school_name"`
	Message    string     `json:"message"`
	Status     Status     `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// Delivery is the outcome of an operation that persists an invitation then emails it.
// A failed delivery leaves the invitation in place so it can be resent.
type Delivery struct {
	Invitation    Invitation `json:"invitation"`
	EmailSent     bool       `json:"email_sent"`
	DeliveryError string     `json:"delivery_error,omitempty"`
}

type Outcome string

const (
	OutcomeCompleted            Outcome = "completed"
	OutcomeConfirmationRequired Outcome = "confirmation_required"
)

type AcceptResult struct {
	Outcome    Outcome    `json:"outcome"`
	Invitation Invitation `json:"invitation"`
}

// StateError is returned when an invitation is no longer usable.
type StateError struct {
	Status Status
}

func (e StateError) Error() string {
	switch e.Status {
	case StatusAccepted:
		return "Cette invitation a déjà été utilisée."
	case StatusExpired:
		return "Cette invitation a expiré. Demandez à l'administrateur de votre école de vous en envoyer une nouvelle."
	case StatusCancelled:
		return "Cette invitation a été annulée."
	}
	return "Cette invitation n'est plus valide."
}

var (
	ErrAlreadyUsed = &StateError{Status: StatusAccepted}
	ErrExpired     = &StateError{Status: StatusExpired}
	ErrCancelled   = &StateError{Status: StatusCancelled}
)

// stateError returns the error describing an invitation in status s.
func stateError(s Status) error {
	switch s {
	case StatusAccepted:
		return ErrAlreadyUsed
	case StatusExpired:
		return ErrExpired
	case StatusCancelled:
		return ErrCancelled
	}
	return &StateError{Status: s}
}

type Event string

const (
	EventCreated   Event = "created"
	EventResent    Event = "resent"
	EventAccepted  Event = "accepted"
	EventExpired   Event = "expired"
	EventCancelled Event = "cancelled"
	EventDeleted   Event = "deleted"
)

// Listener is notified of the lifecycle events of invitations.
type Listener interface {
	InvitationEvent(ctx context.Context, event Event, inv Invitation)
}

const tokenBytes = 32

// NewToken returns a random URL-safe token carrying 256 bits of entropy.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Ref correlates an email with its invitation without exposing the token.
func Ref(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}
