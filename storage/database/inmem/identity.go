package inmemdb

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/identity"
)

type identityRepository struct {
	db *DB
}

func NewIdentityRepository(db *DB) identity.Repository {
	return &identityRepository{db: db}
}

func (repo *identityRepository) emailTaken(email, excludedID string) bool {
	for _, ident := range repo.db.identities {
		if ident.Email == email && ident.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *identityRepository) CreateIdentity(_ context.Context, ident identity.Identity) (identity.Identity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.emailTaken(ident.Email, "") {
		return identity.Identity{}, identity.ErrEmailExists
	}
	repo.db.identities[ident.ID] = &ident
	return ident, nil
}

func (repo *identityRepository) GetIdentityByID(_ context.Context, id string) (identity.Identity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ident, ok := repo.db.identities[id]; ok {
		return *ident, nil
	}
	return identity.Identity{}, identity.ErrNotFound
}

func (repo *identityRepository) GetIdentityByEmail(_ context.Context, email string) (identity.Identity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, ident := range repo.db.identities {
		if ident.Email == email {
			return *ident, nil
		}
	}
	return identity.Identity{}, identity.ErrNotFound
}

func (repo *identityRepository) UpdateIdentity(_ context.Context, ident identity.Identity) (identity.Identity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.identities[ident.ID]; !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	if repo.emailTaken(ident.Email, ident.ID) {
		return identity.Identity{}, identity.ErrEmailExists
	}
	repo.db.identities[ident.ID] = &ident
	return ident, nil
}

func (repo *identityRepository) CreateSession(_ context.Context, sess identity.Session) (identity.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}

func (repo *identityRepository) GetSession(_ context.Context, id string) (identity.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		return *sess, nil
	}
	return identity.Session{}, identity.ErrSessionNotFound
}

func (repo *identityRepository) RevokeSession(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if sess, ok := repo.db.sessions[id]; ok && !sess.RevokedAt.Valid {
		sess.RevokedAt = null.TimeFrom(core.NowFunc())
	}
	return nil
}

func (repo *identityRepository) PlatformRole(_ context.Context, identityID string) (string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.platformRoles[identityID], nil
}

func (repo *identityRepository) GrantPlatformRole(_ context.Context, identityID, role string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.platformRoles[identityID] = role
	return nil
}
