package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core/invitation"
)

func TestTransitionInvitation(t *testing.T) {
	at := time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		to       invitation.Status
		query    string
		affected int64
		want     bool
	}{
		{
			name:     "accept wins",
			to:       invitation.StatusAccepted,
			query:    "UPDATE invitations SET status = $1, updated_at = $2, accepted_at = $2 WHERE id = $3 AND status = $4",
			affected: 1,
			want:     true,
		},
		{
			name:     "accept loses",
			to:       invitation.StatusAccepted,
			query:    "accepted_at = $2 WHERE id = $3 AND status = $4",
			affected: 0,
			want:     false,
		},
		{
			name:     "expire",
			to:       invitation.StatusExpired,
			query:    "UPDATE invitations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4",
			affected: 1,
			want:     true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewInvitationRepository(db)

			mock.ExpectExec(literal(tc.query)).
				WithArgs(tc.to, at, "inv1", invitation.StatusSent).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			ok, err := repo.TransitionInvitation(context.Background(), "inv1", invitation.StatusSent, tc.to, at)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHasPendingInvitation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInvitationRepository(db)

	mock.ExpectQuery(literal("SELECT EXISTS (SELECT 1 FROM invitations WHERE tenant_id = $1 AND email = $2 AND status = $3")).
		WithArgs(testTenantID, "awa@ecole.sn", invitation.StatusSent, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	pending, err := repo.HasPendingInvitation(context.Background(), testScope, "awa@ecole.sn")
	require.NoError(t, err)
	assert.True(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}
