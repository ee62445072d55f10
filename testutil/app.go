// Package testutil assembles the services over the in-memory database for tests.
package testutil

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/document"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/report"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/staff"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
	emailsvc "github.com/samaecole/backend/services/email"
	logsvc "github.com/samaecole/backend/services/logger"
	storagesvc "github.com/samaecole/backend/services/storage"
	inmemdb "github.com/samaecole/backend/storage/database/inmem"
)

const Password = "passer123"

// App holds every service, wired the way the API server wires them.
type App struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Mail       *emailsvc.ConsoleServiceMock
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Store      *storagesvc.FileStore
	Sessions   *SessionRecorder

	TenantRepo tenant.Repository
	UserRepo   user.Repository

	Identities  *identity.Service
	Tenants     *tenant.Service
	Invitations *invitation.Service
	Auth        *access.Authenticator
	Staff       *staff.Service
	School      *school.Service
	Billing     *billing.Service
	Documents   *document.Service
	Reports     *report.Service
}

// NewApp builds an App over a fresh in-memory database. opts may adjust the configuration.
func NewApp(t testing.TB, opts ...func(conf *core.Config)) *App {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Storage.Dir = t.TempDir()
	for _, opt := range opts {
		opt(conf)
	}

	std := logrus.New()
	std.SetOutput(io.Discard)
	logger := logsvc.NewRollbarLogger(std, conf)
	validate, translator := core.NewValidator()
	mail := emailsvc.NewConsoleServiceMock(conf, logger)
	store := storagesvc.NewFileStore(conf)

	db := inmemdb.Open()
	identityRepo := inmemdb.NewIdentityRepository(db)
	tenantRepo := inmemdb.NewTenantRepository(db)
	userRepo := inmemdb.NewUserRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	billingRepo := inmemdb.NewBillingRepository(db)

	sessions := &SessionRecorder{}
	identities := identity.NewService(identityRepo, mail, conf, validate, sessions)
	tenants := tenant.NewService(tenantRepo, db, nil, mail, conf, logger, validate)
	invitations := invitation.NewService(inmemdb.NewInvitationRepository(db), db, identities, userRepo, tenantRepo,
		mail, conf, logger, validate)
	tenants.SetInviter(invitations)
	resolver := access.NewResolver(identities, userRepo, tenantRepo)
	schools := school.NewService(schoolRepo, db, validate)
	bills := billing.NewService(billingRepo, schoolRepo, db, validate)

	return &App{
		Conf:        conf,
		DB:          db,
		Mail:        mail,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Store:       store,
		Sessions:    sessions,
		TenantRepo:  tenantRepo,
		UserRepo:    userRepo,
		Identities:  identities,
		Tenants:     tenants,
		Invitations: invitations,
		Auth:        access.NewAuthenticator(identities, resolver, conf, logger),
		Staff:       staff.NewService(userRepo),
		School:      schools,
		Billing:     bills,
		Documents:   document.NewService(billingRepo, schoolRepo, store, mail, logger),
		Reports:     report.NewService(inmemdb.NewReportRepository(db), billingRepo, schoolRepo),
	}
}

// CreateTenant stores an active paid school; adjust may change it before it is stored.
func (a *App) CreateTenant(t testing.TB, name string, adjust ...func(t *tenant.Tenant)) tenant.Tenant {
	t.Helper()
	now := core.NowFunc()
	tn := tenant.Tenant{
		ID:          uuid.New().String(),
		Name:        name,
		Email:       "contact@" + uuid.New().String()[:8] + ".sn",
		Phone:       "+221338210000",
		City:        "Dakar",
		Status:      tenant.StatusActive,
		AccountType: tenant.AccountPaid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, fn := range adjust {
		fn(&tn)
	}
	tn, err := a.TenantRepo.CreateTenant(context.Background(), tn)
	require.NoError(t, err)
	return tn
}

// Demo makes a school a demo account whose trial ends at expires.
func Demo(expires time.Time) func(t *tenant.Tenant) {
	return func(t *tenant.Tenant) {
		t.AccountType = tenant.AccountDemo
		t.ExpiresAt = null.TimeFrom(expires)
	}
}

// CreateMember registers an identity with Password and attaches it to tn with role.
func (a *App) CreateMember(t testing.TB, tn tenant.Tenant, email string, role authz.Role) (identity.Identity, user.User) {
	t.Helper()
	ctx := context.Background()
	ident, err := a.Identities.Register(ctx, identity.NewIdentity{Email: email, Password: Password, PasswordConfirm: Password})
	require.NoError(t, err)

	now := core.NowFunc()
	usr, err := a.UserRepo.CreateUser(ctx, user.User{
		ID:         uuid.New().String(),
		IdentityID: ident.ID,
		TenantID:   tn.ID,
		FullName:   "Membre " + role.Label(),
		Email:      ident.Email,
		Role:       role,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	return ident, usr
}

// Member returns the access context of a new member of tn.
func (a *App) Member(t testing.TB, tn tenant.Tenant, email string, role authz.Role) access.Context {
	t.Helper()
	ident, _ := a.CreateMember(t, tn, email, role)
	return a.ContextOf(t, ident)
}

// ContextOf resolves the access context of ident without a session.
func (a *App) ContextOf(t testing.TB, ident identity.Identity) access.Context {
	t.Helper()
	ac, err := access.NewResolver(a.Identities, a.UserRepo, a.TenantRepo).Resolve(context.Background(), ident)
	require.NoError(t, err)
	return ac
}

// SuperAdmin returns the access context of a new platform super-admin.
func (a *App) SuperAdmin(t testing.TB, email string) access.Context {
	t.Helper()
	ctx := context.Background()
	ident, err := a.Identities.Register(ctx, identity.NewIdentity{Email: email, Password: Password, PasswordConfirm: Password})
	require.NoError(t, err)
	require.NoError(t, a.Identities.GrantSuperAdmin(ctx, ident.ID))
	return a.ContextOf(t, ident)
}

// SessionRecorder keeps every session event in order.
type SessionRecorder struct {
	mu     sync.Mutex
	events []SessionEvent
}

type SessionEvent struct {
	Event   identity.Event
	Session identity.Session
}

func (r *SessionRecorder) SessionEvent(_ context.Context, event identity.Event, sess identity.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, SessionEvent{Event: event, Session: sess})
}

func (r *SessionRecorder) Events() []SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionEvent(nil), r.events...)
}

// Clock pins core.NowFunc for the duration of a test. Tests using it must not run in parallel.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func FreezeClock(t testing.TB, at time.Time) *Clock {
	t.Helper()
	c := &Clock{now: at}
	orig := core.NowFunc
	core.NowFunc = c.Now
	t.Cleanup(func() {
		core.NowFunc = orig
	})
	return c
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ErrorFields lists the fields named by a validation failure, whichever validator produced it.
func ErrorFields(err error) []string {
	var fields []string
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		for _, fe := range vErrs {
			fields = append(fields, fe.Field())
		}
		return fields
	}
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		for _, fe := range vErr.Fields {
			fields = append(fields, fe.Field)
		}
	}
	return fields
}
