package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
)

const (
	contextTokenKey  = "userToken"
	contextAccessKey = "access"
	tokenAudience    = "sama-ecole"
)

// Claims represents the authorization claims transmitted via a JWT.
// The token id is the session id: revoking the session revokes the token.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Kind         string `json:"kind,omitempty"`
	TenantID     string `json:"tid,omitempty"`
	Role         string `json:"role,omitempty"`
}

type authenticator struct {
	conf *core.Config
	auth *access.Authenticator
	jwt  echo.MiddlewareFunc
}

func newAuthenticator(conf *core.Config, auth *access.Authenticator) *authenticator {
	a := &authenticator{conf: conf, auth: auth}
	a.jwt = middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	})
	return a
}

func (a *authenticator) claims(ac access.Context, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        ac.SessionID,
			Issuer:    a.conf.AppName,
			Subject:   ac.Identity.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        ac.Identity.Email,
		Kind:         ac.Kind.String(),
	}
	if ac.Tenant != nil {
		claims.TenantID = ac.Tenant.ID
		claims.Role = ac.Role.String()
	}
	return claims
}

// token signs a JWT representing the session of ac.
func (a *authenticator) token(ac access.Context, origIat ...int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, a.claims(ac, origIat...))
	ss, err := token.SignedString([]byte(a.conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// loadAccess rebuilds the access context of the token's session on every request,
// so revoked sessions, deactivated members and gated schools are refused right away.
func (a *authenticator) loadAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		ac, err := a.auth.Load(ctx.Request().Context(), claims.Id, claims.Subject)
		if err != nil {
			return err
		}
		ctx.Set(contextAccessKey, ac)
		return next(ctx)
	}
}

// refresh re-issues the token within the refresh window of its original issue time.
func (a *authenticator) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	ac, err := a.auth.Refresh(ctx.Request().Context(), claims.Id, claims.Subject)
	if err != nil {
		return "", err
	}
	return a.token(ac, claims.OrigIssuedAt)
}

func contextAccess(ctx echo.Context) (access.Context, error) {
	if ac, ok := ctx.Get(contextAccessKey).(access.Context); ok {
		return ac, nil
	}
	return access.Context{}, errUnauthorized
}

// tenantMember lets through the staff of a school.
func tenantMember(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ac, err := contextAccess(ctx)
		if err != nil {
			return err
		}
		if ac.Kind != access.KindTenant {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func superAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ac, err := contextAccess(ctx)
		if err != nil {
			return err
		}
		if !ac.IsSuperAdmin() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}
