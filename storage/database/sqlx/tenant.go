package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/tenant"
)

type tenantRepository struct {
	repository
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *sqlx.DB) tenant.Repository {
	return &tenantRepository{repository{db: db}}
}

const (
	tenantColumns = `id, name, email, phone, address, city, logo_url, logo_key, primary_color, status, status_reason,
		account_type, expires_at, created_at, updated_at`
	signupColumns = `id, school_name, contact_name, email, phone, city, message, status, rejection_reason, tenant_id,
		reviewed_by, reviewed_at, created_at`
)

func (repo tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	q := `INSERT INTO tenants (` + tenantColumns + `) VALUES (:id, :name, :email, :phone, :address, :city, :logo_url,
		:logo_key, :primary_color, :status, :status_reason, :account_type, :expires_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, t); err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return t, nil
}

func (repo tenantRepository) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &t, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	if err != nil {
		return tenant.Tenant{}, trapNoRowsErr(err, tenant.ErrNotFound, "getting tenant")
	}
	return t, nil
}

func (repo tenantRepository) QueryTenants(ctx context.Context, filter tenant.QueryFilter) ([]tenant.Tenant, error) {
	w := &where{}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(name ILIKE ? OR email ILIKE ? OR city ILIKE ?)", pattern, pattern, pattern)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.AccountType != "" {
		w.add("account_type = ?", filter.AccountType)
	}

	exec := repo.getExec(ctx)
	tenants := make([]tenant.Tenant, 0)
	q := rebind(exec, `SELECT `+tenantColumns+` FROM tenants`+w.String()+` ORDER BY name`)
	if err := sqlx.SelectContext(ctx, exec, &tenants, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying tenants")
	}
	return tenants, nil
}

func (repo tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	q := `UPDATE tenants SET name = :name, email = :email, phone = :phone, address = :address, city = :city,
		logo_url = :logo_url, logo_key = :logo_key, primary_color = :primary_color, status = :status,
		status_reason = :status_reason, account_type = :account_type, expires_at = :expires_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, t)
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "updating tenant")
	}
	if err = checkAffected(res, tenant.ErrNotFound); err != nil {
		return tenant.Tenant{}, err
	}
	return t, nil
}

func (repo tenantRepository) TenantNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	if err := sqlx.SelectContext(ctx, repo.getExec(ctx), &names, `SELECT name FROM tenants ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "listing tenant names")
	}
	return names, nil
}

func (repo tenantRepository) CreateSignup(ctx context.Context, sr tenant.SignupRequest) (tenant.SignupRequest, error) {
	q := `INSERT INTO signup_requests (` + signupColumns + `) VALUES (:id, :school_name, :contact_name, :email, :phone,
		:city, :message, :status, :rejection_reason, :tenant_id, :reviewed_by, :reviewed_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, sr); err != nil {
		return tenant.SignupRequest{}, errors.Wrap(err, "inserting signup request")
	}
	return sr, nil
}

func (repo tenantRepository) GetSignup(ctx context.Context, id string) (tenant.SignupRequest, error) {
	var sr tenant.SignupRequest
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &sr, `SELECT `+signupColumns+` FROM signup_requests WHERE id = $1`, id)
	if err != nil {
		return tenant.SignupRequest{}, trapNoRowsErr(err, tenant.ErrSignupNotFound, "getting signup request")
	}
	return sr, nil
}

func (repo tenantRepository) QuerySignups(ctx context.Context, status tenant.SignupStatus) ([]tenant.SignupRequest, error) {
	w := &where{}
	if status != "" {
		w.add("status = ?", status)
	}
	exec := repo.getExec(ctx)
	signups := make([]tenant.SignupRequest, 0)
	q := rebind(exec, `SELECT `+signupColumns+` FROM signup_requests`+w.String()+` ORDER BY created_at DESC`)
	if err := sqlx.SelectContext(ctx, exec, &signups, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying signup requests")
	}
	return signups, nil
}

func (repo tenantRepository) HasPendingSignup(ctx context.Context, email string) (bool, error) {
	var pending bool
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &pending,
		`SELECT EXISTS (SELECT 1 FROM signup_requests WHERE email = $1 AND status = $2)`, email, tenant.SignupPending)
	return pending, errors.Wrap(err, "checking pending signup requests")
}

func (repo tenantRepository) ReviewSignup(ctx context.Context, sr tenant.SignupRequest) (tenant.SignupRequest, error) {
	q := `UPDATE signup_requests SET status = :status, rejection_reason = :rejection_reason, tenant_id = :tenant_id,
		reviewed_by = :reviewed_by, reviewed_at = :reviewed_at WHERE id = :id AND status = 'en_attente'`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, sr)
	if err != nil {
		return tenant.SignupRequest{}, errors.Wrap(err, "reviewing signup request")
	}
	if err = checkAffected(res, tenant.ErrSignupReviewed); err != nil {
		return tenant.SignupRequest{}, err
	}
	return sr, nil
}

func (repo tenantRepository) TenantUsage(ctx context.Context) ([]tenant.Usage, error) {
	q := `SELECT t.id AS tenant_id, t.name AS tenant_name, t.status,
		(SELECT COUNT(*) FROM users u WHERE u.tenant_id = t.id) AS users,
		(SELECT COUNT(*) FROM students s WHERE s.tenant_id = t.id) AS students,
		(SELECT COUNT(*) FROM invoices i WHERE i.tenant_id = t.id AND i.status <> 'brouillon') AS invoices,
		(SELECT COALESCE(SUM(i.total), 0) FROM invoices i WHERE i.tenant_id = t.id AND i.status <> 'brouillon') AS invoiced,
		(SELECT COALESCE(SUM(p.amount), 0) FROM payments p WHERE p.tenant_id = t.id) AS collected
		FROM tenants t ORDER BY t.name`
	usage := make([]tenant.Usage, 0)
	if err := sqlx.SelectContext(ctx, repo.getExec(ctx), &usage, q); err != nil {
		return nil, errors.Wrap(err, "querying tenant usage")
	}
	return usage, nil
}
