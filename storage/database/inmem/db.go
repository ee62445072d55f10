// Package inmemdb keeps every repository in memory for tests.
package inmemdb

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
)

type sequenceKey struct {
	tenantID string
	kind     string
	year     int
}

// DB holds every table behind a single lock.
type DB struct {
	sync.RWMutex
	txMu sync.Mutex

	identities    map[string]*identity.Identity
	sessions      map[string]*identity.Session
	platformRoles map[string]string
	tenants       map[string]*tenant.Tenant
	signups       map[string]*tenant.SignupRequest
	users         map[string]*user.User
	invitations   map[string]*invitation.Invitation
	classes       map[string]*school.Class
	students      map[string]*school.Student
	feeTypes      map[string]*billing.FeeType
	invoices      map[string]*billing.Invoice
	payments      map[string]*billing.Payment
	sequences     map[sequenceKey]int
}

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		identities:    make(map[string]*identity.Identity),
		sessions:      make(map[string]*identity.Session),
		platformRoles: make(map[string]string),
		tenants:       make(map[string]*tenant.Tenant),
		signups:       make(map[string]*tenant.SignupRequest),
		users:         make(map[string]*user.User),
		invitations:   make(map[string]*invitation.Invitation),
		classes:       make(map[string]*school.Class),
		students:      make(map[string]*school.Student),
		feeTypes:      make(map[string]*billing.FeeType),
		invoices:      make(map[string]*billing.Invoice),
		payments:      make(map[string]*billing.Payment),
		sequences:     make(map[sequenceKey]int),
	}
}

// WithinTx runs transactions one at a time. Nested calls join the running one.
// When fn fails every table is restored to its state before the transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if core.TxFromContext(ctx) == db {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(core.ContextWithTx(ctx, db)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// snapshot is a copy of every table, taken when a transaction starts.
type snapshot struct {
	identities    map[string]*identity.Identity
	sessions      map[string]*identity.Session
	platformRoles map[string]string
	tenants       map[string]*tenant.Tenant
	signups       map[string]*tenant.SignupRequest
	users         map[string]*user.User
	invitations   map[string]*invitation.Invitation
	classes       map[string]*school.Class
	students      map[string]*school.Student
	feeTypes      map[string]*billing.FeeType
	invoices      map[string]*billing.Invoice
	payments      map[string]*billing.Payment
	sequences     map[sequenceKey]int
}

func (db *DB) snapshot() snapshot {
	db.RLock()
	defer db.RUnlock()
	return snapshot{
		identities:    cloneTable(db.identities),
		sessions:      cloneTable(db.sessions),
		platformRoles: maps.Clone(db.platformRoles),
		tenants:       cloneTable(db.tenants),
		signups:       cloneTable(db.signups),
		users:         cloneTable(db.users),
		invitations:   cloneTable(db.invitations),
		classes:       cloneTable(db.classes),
		students:      cloneTable(db.students),
		feeTypes:      cloneTable(db.feeTypes),
		invoices:      cloneTable(db.invoices),
		payments:      cloneTable(db.payments),
		sequences:     maps.Clone(db.sequences),
	}
}

func (db *DB) restore(s snapshot) {
	db.Lock()
	defer db.Unlock()
	db.identities = s.identities
	db.sessions = s.sessions
	db.platformRoles = s.platformRoles
	db.tenants = s.tenants
	db.signups = s.signups
	db.users = s.users
	db.invitations = s.invitations
	db.classes = s.classes
	db.students = s.students
	db.feeTypes = s.feeTypes
	db.invoices = s.invoices
	db.payments = s.payments
	db.sequences = s.sequences
}

// cloneTable copies the rows so that updates made in place during the transaction are not seen.
func cloneTable[T any](m map[string]*T) map[string]*T {
	out := make(map[string]*T, len(m))
	for k, v := range m {
		row := *v
		out[k] = &row
	}
	return out
}

func (db *DB) nextSequence(scope tenant.Scope, kind string, year int) (int, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	db.Lock()
	defer db.Unlock()
	key := sequenceKey{tenantID: scope.TenantID(), kind: kind, year: year}
	db.sequences[key]++
	return db.sequences[key], nil
}

// comparators maps an ordering field to a three-way comparison.
type comparators[T any] map[string]func(a, b T) int

func sortRows[T any](rows []T, ordering []core.DBOrdering, cmps comparators[T]) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

// matches reports whether any of fields contains search, ignoring case.
func matches(search string, fields ...string) bool {
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
