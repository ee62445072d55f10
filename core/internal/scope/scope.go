// Package scope mints tenant scopes. Only the packages under core can import it:
// access resolves the scope of a request, invitation the scope of a school being approved.
package scope

import "github.com/pkg/errors"

var ErrInvalid = errors.New("missing tenant scope")

// Scope restricts repository operations to a single tenant.
// Its zero value is invalid and every scoped repository rejects it.
type Scope struct {
	tenantID string
}

func New(tenantID string) Scope {
	return Scope{tenantID: tenantID}
}

func (s Scope) TenantID() string {
	return s.tenantID
}

func (s Scope) Valid() bool {
	return s.tenantID != ""
}

// Check returns ErrInvalid for the zero Scope.
func (s Scope) Check() error {
	if !s.Valid() {
		return ErrInvalid
	}
	return nil
}
