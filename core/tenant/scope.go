package tenant

import "github.com/samaecole/backend/core/internal/scope"

var ErrInvalidScope = scope.ErrInvalid

// Scope restricts repository operations to a single tenant. Outside core it can only be
// obtained from a resolved access context; its zero value is rejected by every repository.
type Scope = scope.Scope
