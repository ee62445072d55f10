package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/tenant"
)

type invitationRepository struct {
	db *DB
}

func NewInvitationRepository(db *DB) invitation.Repository {
	return &invitationRepository{db: db}
}

func (repo *invitationRepository) CreateInvitation(_ context.Context, inv invitation.Invitation) (invitation.Invitation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.invitations[inv.ID] = &inv
	return inv, nil
}

func (repo *invitationRepository) GetInvitation(_ context.Context, scope tenant.Scope, id string) (invitation.Invitation, error) {
	if err := scope.Check(); err != nil {
		return invitation.Invitation{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if inv, ok := repo.db.invitations[id]; ok && inv.TenantID == scope.TenantID() {
		return *inv, nil
	}
	return invitation.Invitation{}, invitation.ErrNotFound
}

func (repo *invitationRepository) GetInvitationByToken(_ context.Context, token string) (invitation.Invitation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, inv := range repo.db.invitations {
		if inv.Token == token {
			return *inv, nil
		}
	}
	return invitation.Invitation{}, invitation.ErrNotFound
}

func (repo *invitationRepository) QueryInvitations(_ context.Context, scope tenant.Scope, filter invitation.QueryFilter) ([]invitation.Invitation, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	invitations := make([]invitation.Invitation, 0)
	for _, inv := range repo.db.invitations {
		if inv.TenantID == scope.TenantID() && (filter.Status == "" || inv.Status == filter.Status) {
			invitations = append(invitations, *inv)
		}
	}
	sort.Slice(invitations, func(i, j int) bool { return invitations[i].CreatedAt.After(invitations[j].CreatedAt) })
	return invitations, nil
}

func (repo *invitationRepository) HasPendingInvitation(_ context.Context, scope tenant.Scope, email string) (bool, error) {
	if err := scope.Check(); err != nil {
		return false, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	now := core.NowFunc()
	for _, inv := range repo.db.invitations {
		if inv.TenantID == scope.TenantID() && strings.EqualFold(inv.Email, email) &&
			inv.Status == invitation.StatusSent && !inv.ExpiresAt.Before(now) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *invitationRepository) TransitionInvitation(_ context.Context, id string, from, to invitation.Status, at time.Time) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	inv, ok := repo.db.invitations[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	inv.UpdatedAt = at
	if to == invitation.StatusAccepted {
		inv.AcceptedAt = null.TimeFrom(at)
	}
	return true, nil
}

func (repo *invitationRepository) DeleteInvitation(_ context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	if inv, ok := repo.db.invitations[id]; !ok || inv.TenantID != scope.TenantID() {
		return invitation.ErrNotFound
	}
	delete(repo.db.invitations, id)
	return nil
}
