package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/tenant"
)

type invitationRepository struct {
	repository
}

var _ invitation.Repository = (*invitationRepository)(nil) // interface compliance check

func NewInvitationRepository(db *sqlx.DB) invitation.Repository {
	return &invitationRepository{repository{db: db}}
}

const invitationColumns = `id, tenant_id, email, full_name, role, message, token, status, expires_at, invited_by,
	accepted_at, created_at, updated_at`

func (repo invitationRepository) CreateInvitation(ctx context.Context, inv invitation.Invitation) (invitation.Invitation, error) {
	q := `INSERT INTO invitations (` + invitationColumns + `) VALUES (:id, :tenant_id, :email, :full_name, :role, :message,
		:token, :status, :expires_at, :invited_by, :accepted_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, inv); err != nil {
		return invitation.Invitation{}, errors.Wrap(err, "inserting invitation")
	}
	return inv, nil
}

func (repo invitationRepository) GetInvitation(ctx context.Context, scope tenant.Scope, id string) (invitation.Invitation, error) {
	if err := scope.Check(); err != nil {
		return invitation.Invitation{}, err
	}
	var inv invitation.Invitation
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &inv,
		`SELECT `+invitationColumns+` FROM invitations WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return invitation.Invitation{}, trapNoRowsErr(err, invitation.ErrNotFound, "getting invitation")
	}
	return inv, nil
}

func (repo invitationRepository) GetInvitationByToken(ctx context.Context, token string) (invitation.Invitation, error) {
	var inv invitation.Invitation
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &inv, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token)
	if err != nil {
		return invitation.Invitation{}, trapNoRowsErr(err, invitation.ErrNotFound, "getting invitation by token")
	}
	return inv, nil
}

func (repo invitationRepository) QueryInvitations(ctx context.Context, scope tenant.Scope, filter invitation.QueryFilter) ([]invitation.Invitation, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	w := scoped(scope, "tenant_id")
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	exec := repo.getExec(ctx)
	invitations := make([]invitation.Invitation, 0)
	q := rebind(exec, `SELECT `+invitationColumns+` FROM invitations`+w.String()+` ORDER BY created_at DESC`)
	if err := sqlx.SelectContext(ctx, exec, &invitations, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying invitations")
	}
	return invitations, nil
}

func (repo invitationRepository) HasPendingInvitation(ctx context.Context, scope tenant.Scope, email string) (bool, error) {
	if err := scope.Check(); err != nil {
		return false, err
	}
	var pending bool
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &pending,
		`SELECT EXISTS (SELECT 1 FROM invitations WHERE tenant_id = $1 AND email = $2 AND status = $3 AND expires_at >= $4)`,
		scope.TenantID(), email, invitation.StatusSent, core.NowFunc())
	return pending, errors.Wrap(err, "checking pending invitations")
}

// TransitionInvitation is a single conditional update: of concurrent transitions from the same
// status, only the first to commit affects a row.
func (repo invitationRepository) TransitionInvitation(ctx context.Context, id string, from, to invitation.Status, at time.Time) (bool, error) {
	q := `UPDATE invitations SET status = $1, updated_at = $2`
	if to == invitation.StatusAccepted {
		q += `, accepted_at = $2`
	}
	q += ` WHERE id = $3 AND status = $4`

	res, err := repo.getExec(ctx).ExecContext(ctx, q, to, at, id, from)
	if err != nil {
		return false, errors.Wrap(err, "transitioning invitation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "getting affected rows")
	}
	return n == 1, nil
}

func (repo invitationRepository) DeleteInvitation(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx, `DELETE FROM invitations WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return errors.Wrap(err, "deleting invitation")
	}
	return checkAffected(res, invitation.ErrNotFound)
}
