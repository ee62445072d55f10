package tenant

import (
	"fmt"
	"time"
)

type GateReason string

const (
	GateBlocked      GateReason = "blocked"
	GateSuspended    GateReason = "suspended"
	GateTrialExpired GateReason = "trial_expired"
	GateUnknown      GateReason = "unknown_status"
)

// GateError denies access to a tenant; Message is shown to the user.
type GateError struct {
	Reason  GateReason
	Message string
}

func (e GateError) Error() string {
	return e.Message
}

// LoginGate decides whether members of t may use the application at now.
// Any status it does not know about denies access.
func LoginGate(t Tenant, now time.Time, supportContact string) error {
	contact := ""
	if supportContact != "" {
		contact = " Contactez le support : " + supportContact + "."
	}

	switch t.Status {
	case StatusBlocked:
		return &GateError{Reason: GateBlocked, Message: "L'accès de votre école a été bloqué." + reasonSuffix(t) + contact}
	case StatusSuspended:
		return &GateError{Reason: GateSuspended, Message: "Le compte de votre école est suspendu." + reasonSuffix(t) + contact}
	case StatusActive:
	default:
		return &GateError{Reason: GateUnknown, Message: "Le statut de votre école ne permet pas la connexion." + contact}
	}

	switch t.AccountType {
	case AccountPaid:
		return nil
	case AccountDemo:
		if t.ExpiresAt.Valid && !now.Before(t.ExpiresAt.Time) {
			return &GateError{
				Reason:  GateTrialExpired,
				Message: fmt.Sprintf("La période d'essai de votre école a pris fin le %s.", t.ExpiresAt.Time.Format("02/01/2006")) + contact,
			}
		}
		return nil
	default:
		return &GateError{Reason: GateUnknown, Message: "Le type de compte de votre école ne permet pas la connexion." + contact}
	}
}

func reasonSuffix(t Tenant) string {
	if t.StatusReason == "" {
		return ""
	}
	return " Motif : " + t.StatusReason + "."
}
