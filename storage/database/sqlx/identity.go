package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/identity"
)

type identityRepository struct {
	repository
}

var _ identity.Repository = (*identityRepository)(nil) // interface compliance check

func NewIdentityRepository(db *sqlx.DB) identity.Repository {
	return &identityRepository{repository{db: db}}
}

const identityColumns = "id, email, password_hash, email_confirmed_at, last_login, created_at, updated_at"

func (repo identityRepository) CreateIdentity(ctx context.Context, ident identity.Identity) (identity.Identity, error) {
	q := `INSERT INTO identities (` + identityColumns + `)
		VALUES (:id, :email, :password_hash, :email_confirmed_at, :last_login, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, ident); err != nil {
		if isUniqueViolation(err) {
			return identity.Identity{}, identity.ErrEmailExists
		}
		return identity.Identity{}, errors.Wrap(err, "inserting identity")
	}
	return ident, nil
}

func (repo identityRepository) GetIdentityByID(ctx context.Context, id string) (identity.Identity, error) {
	var ident identity.Identity
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &ident, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	if err != nil {
		return identity.Identity{}, trapNoRowsErr(err, identity.ErrNotFound, "getting identity")
	}
	return ident, nil
}

func (repo identityRepository) GetIdentityByEmail(ctx context.Context, email string) (identity.Identity, error) {
	var ident identity.Identity
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &ident, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	if err != nil {
		return identity.Identity{}, trapNoRowsErr(err, identity.ErrNotFound, "getting identity by email")
	}
	return ident, nil
}

func (repo identityRepository) UpdateIdentity(ctx context.Context, ident identity.Identity) (identity.Identity, error) {
	q := `UPDATE identities SET email = :email, password_hash = :password_hash, email_confirmed_at = :email_confirmed_at,
		last_login = :last_login, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, ident)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.Identity{}, identity.ErrEmailExists
		}
		return identity.Identity{}, errors.Wrap(err, "updating identity")
	}
	if err = checkAffected(res, identity.ErrNotFound); err != nil {
		return identity.Identity{}, err
	}
	return ident, nil
}

func (repo identityRepository) CreateSession(ctx context.Context, sess identity.Session) (identity.Session, error) {
	q := `INSERT INTO sessions (id, identity_id, created_at, expires_at, revoked_at)
		VALUES (:id, :identity_id, :created_at, :expires_at, :revoked_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, sess); err != nil {
		return identity.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (repo identityRepository) GetSession(ctx context.Context, id string) (identity.Session, error) {
	var sess identity.Session
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &sess,
		`SELECT id, identity_id, created_at, expires_at, revoked_at FROM sessions WHERE id = $1`, id)
	if err != nil {
		return identity.Session{}, trapNoRowsErr(err, identity.ErrSessionNotFound, "getting session")
	}
	return sess, nil
}

func (repo identityRepository) RevokeSession(ctx context.Context, id string) error {
	_, err := repo.getExec(ctx).ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, core.NowFunc(), id)
	return errors.Wrap(err, "revoking session")
}

func (repo identityRepository) PlatformRole(ctx context.Context, identityID string) (string, error) {
	var role string
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &role, `SELECT role FROM platform_roles WHERE identity_id = $1`, identityID)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.Wrap(err, "getting platform role")
	}
	return role, nil
}

func (repo identityRepository) GrantPlatformRole(ctx context.Context, identityID, role string) error {
	_, err := repo.getExec(ctx).ExecContext(ctx,
		`INSERT INTO platform_roles (identity_id, role, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (identity_id) DO UPDATE SET role = EXCLUDED.role`,
		identityID, role, core.NowFunc())
	return errors.Wrap(err, "granting platform role")
}
