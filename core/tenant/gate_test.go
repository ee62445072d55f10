package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
)

func TestLoginGate(t *testing.T) {
	now := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		tenant  Tenant
		reason  GateReason
		message string
	}{
		{
			name:   "active paid",
			tenant: Tenant{Status: StatusActive, AccountType: AccountPaid},
		},
		{
			name:   "active demo within trial",
			tenant: Tenant{Status: StatusActive, AccountType: AccountDemo, ExpiresAt: null.TimeFrom(now.Add(time.Hour))},
		},
		{
			name:   "active demo without end",
			tenant: Tenant{Status: StatusActive, AccountType: AccountDemo},
		},
		{
			name:    "demo trial over",
			tenant:  Tenant{Status: StatusActive, AccountType: AccountDemo, ExpiresAt: null.TimeFrom(now.Add(-24 * time.Hour))},
			reason:  GateTrialExpired,
			message: "La période d'essai de votre école a pris fin le 30/09/2024.",
		},
		{
			name:    "demo ending right now",
			tenant:  Tenant{Status: StatusActive, AccountType: AccountDemo, ExpiresAt: null.TimeFrom(now)},
			reason:  GateTrialExpired,
			message: "01/10/2024",
		},
		{
			name:    "suspended with reason",
			tenant:  Tenant{Status: StatusSuspended, StatusReason: "impayé", AccountType: AccountPaid},
			reason:  GateSuspended,
			message: "Motif : impayé.",
		},
		{
			name:    "blocked",
			tenant:  Tenant{Status: StatusBlocked, AccountType: AccountPaid},
			reason:  GateBlocked,
			message: "bloqué",
		},
		{
			name:    "blocked takes precedence over the trial",
			tenant:  Tenant{Status: StatusBlocked, AccountType: AccountDemo, ExpiresAt: null.TimeFrom(now.Add(-time.Hour))},
			reason:  GateBlocked,
			message: "bloqué",
		},
		{
			name:    "unknown status",
			tenant:  Tenant{Status: "archive", AccountType: AccountPaid},
			reason:  GateUnknown,
			message: "statut",
		},
		{
			name:    "unknown account type",
			tenant:  Tenant{Status: StatusActive, AccountType: "gratuit"},
			reason:  GateUnknown,
			message: "type de compte",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := LoginGate(tc.tenant, now, "support@samaecole.sn")
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			gErr, ok := err.(*GateError)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tc.reason, gErr.Reason)
			assert.Contains(t, gErr.Message, tc.message)
			assert.Contains(t, gErr.Message, "support@samaecole.sn")
		})
	}
}

func TestLoginGateWithoutSupportContact(t *testing.T) {
	err := LoginGate(Tenant{Status: StatusSuspended, AccountType: AccountPaid}, time.Now(), "")
	require.Error(t, err)
	assert.Equal(t, "Le compte de votre école est suspendu.", err.Error())
}

func TestSimilarNames(t *testing.T) {
	existing := []string{
		"Institution Sainte Jeanne d'Arc",
		"Groupe Scolaire Les Pédagogues",
		"Cours Privés Le Savoir",
		"",
	}

	tests := []struct {
		name string
		want []string
	}{
		{"institution  SAINTE jeanne d'arc", []string{"Institution Sainte Jeanne d'Arc"}},
		{"Institution Sainte Jeanne Darc", []string{"Institution Sainte Jeanne d'Arc"}},
		{"Groupe Scolaire Les Pedagogues", []string{"Groupe Scolaire Les Pédagogues"}},
		{"Lycée Seydina Limamou Laye", []string{}},
		{"   ", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SimilarNames(tc.name, existing))
		})
	}
}
