package access

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/tenant"
)

// Authenticator composes sign-in: credentials, session, tenant resolution and the tenant gate.
type Authenticator struct {
	identities *identity.Service
	resolver   *Resolver
	conf       *core.Config
	logger     core.Logger
}

func NewAuthenticator(identities *identity.Service, resolver *Resolver, conf *core.Config, logger core.Logger) *Authenticator {
	return &Authenticator{identities: identities, resolver: resolver, conf: conf, logger: logger}
}

// admit applies the checks every request of a tenant member goes through.
func (a *Authenticator) admit(c Context) error {
	if c.Kind != KindTenant {
		return nil
	}
	if c.User != nil && !c.User.IsActive {
		return ErrDeactivated
	}
	return tenant.LoginGate(*c.Tenant, core.NowFunc(), a.conf.SupportContact)
}

// SignIn authenticates the credentials and opens a session.
// When anything fails once the session exists, the session is revoked before returning:
// no usable session is left behind for unprovisioned, deactivated or gated accounts.
func (a *Authenticator) SignIn(ctx context.Context, creds identity.Credentials) (Context, identity.Session, error) {
	ident, err := a.identities.Authenticate(ctx, creds)
	if err != nil {
		return Context{}, identity.Session{}, err
	}

	sess, err := a.identities.StartSession(ctx, ident)
	if err != nil {
		return Context{}, identity.Session{}, errors.Wrap(err, "starting session")
	}

	c, err := a.resolver.Resolve(ctx, ident)
	if err == nil {
		err = a.admit(c)
	}
	if err != nil {
		if rErr := a.identities.SignOut(ctx, sess.ID); rErr != nil {
			a.logger.Error(fmt.Sprintf("revoking denied session: %v", rErr), rErr)
		}
		return Context{}, identity.Session{}, err
	}

	c.SessionID = sess.ID
	return c, sess, nil
}

// Load rebuilds the Context of an authenticated request. Tenant status and membership changes
// apply immediately to existing sessions.
func (a *Authenticator) Load(ctx context.Context, sessionID, identityID string) (Context, error) {
	ident, err := a.identities.CurrentUser(ctx, sessionID, identityID)
	if err != nil {
		return Context{}, errors.Wrap(err, "getting current user")
	}
	if ident == nil {
		return Context{}, identity.ErrSessionInactive
	}

	c, err := a.resolver.Resolve(ctx, *ident)
	if err != nil {
		return Context{}, err
	}
	if err = a.admit(c); err != nil {
		return Context{}, err
	}
	c.SessionID = sessionID
	return c, nil
}

// SignOut ends the session of c.
func (a *Authenticator) SignOut(ctx context.Context, c Context) error {
	return a.identities.SignOut(ctx, c.SessionID)
}

// Refresh checks that the session of a token being refreshed is still usable.
func (a *Authenticator) Refresh(ctx context.Context, sessionID, identityID string) (Context, error) {
	c, err := a.Load(ctx, sessionID, identityID)
	if err != nil {
		return Context{}, err
	}
	if _, err = a.identities.Refresh(ctx, sessionID); err != nil {
		return Context{}, err
	}
	return c, nil
}
