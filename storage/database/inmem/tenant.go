package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/tenant"
)

type tenantRepository struct {
	db *DB
}

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CreateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.tenants[t.ID] = &t
	return t, nil
}

func (repo *tenantRepository) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.tenants[id]; ok {
		return *t, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) QueryTenants(_ context.Context, filter tenant.QueryFilter) ([]tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tenants := make([]tenant.Tenant, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		if filter.Search != "" && !matches(filter.Search, t.Name, t.Email, t.City) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.AccountType != "" && t.AccountType != filter.AccountType {
			continue
		}
		tenants = append(tenants, *t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (repo *tenantRepository) UpdateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tenants[t.ID]; !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	repo.db.tenants[t.ID] = &t
	return t, nil
}

func (repo *tenantRepository) TenantNames(_ context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	names := make([]string, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (repo *tenantRepository) CreateSignup(_ context.Context, sr tenant.SignupRequest) (tenant.SignupRequest, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.signups[sr.ID] = &sr
	return sr, nil
}

func (repo *tenantRepository) GetSignup(_ context.Context, id string) (tenant.SignupRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sr, ok := repo.db.signups[id]; ok {
		return *sr, nil
	}
	return tenant.SignupRequest{}, tenant.ErrSignupNotFound
}

func (repo *tenantRepository) QuerySignups(_ context.Context, status tenant.SignupStatus) ([]tenant.SignupRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	signups := make([]tenant.SignupRequest, 0, len(repo.db.signups))
	for _, sr := range repo.db.signups {
		if status == "" || sr.Status == status {
			signups = append(signups, *sr)
		}
	}
	sort.Slice(signups, func(i, j int) bool { return signups[i].CreatedAt.After(signups[j].CreatedAt) })
	return signups, nil
}

func (repo *tenantRepository) HasPendingSignup(_ context.Context, email string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, sr := range repo.db.signups {
		if sr.Status == tenant.SignupPending && strings.EqualFold(sr.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *tenantRepository) ReviewSignup(_ context.Context, sr tenant.SignupRequest) (tenant.SignupRequest, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.signups[sr.ID]
	if !ok || stored.Status != tenant.SignupPending {
		return tenant.SignupRequest{}, tenant.ErrSignupReviewed
	}
	stored.Status = sr.Status
	stored.RejectionReason = sr.RejectionReason
	stored.TenantID = sr.TenantID
	stored.ReviewedBy = sr.ReviewedBy
	stored.ReviewedAt = sr.ReviewedAt
	return *stored, nil
}

func (repo *tenantRepository) TenantUsage(_ context.Context) ([]tenant.Usage, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byTenant := make(map[string]*tenant.Usage, len(repo.db.tenants))
	usage := make([]tenant.Usage, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		byTenant[t.ID] = &tenant.Usage{TenantID: t.ID, TenantName: t.Name, Status: t.Status}
	}
	for _, u := range repo.db.users {
		if tu, ok := byTenant[u.TenantID]; ok {
			tu.Users++
		}
	}
	for _, s := range repo.db.students {
		if tu, ok := byTenant[s.TenantID]; ok {
			tu.Students++
		}
	}
	for _, inv := range repo.db.invoices {
		if tu, ok := byTenant[inv.TenantID]; ok && inv.Status != billing.InvoiceDraft {
			tu.Invoices++
			tu.Invoiced += inv.Total
		}
	}
	for _, p := range repo.db.payments {
		if tu, ok := byTenant[p.TenantID]; ok {
			tu.Collected += p.Amount
		}
	}
	for _, tu := range byTenant {
		usage = append(usage, *tu)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].TenantName < usage[j].TenantName })
	return usage, nil
}
