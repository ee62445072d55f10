package sqlxrepos

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core/billing"
)

func TestFinanceStatsExcludesDrafts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(literal("status <> $2")).
		WithArgs(testTenantID, billing.InvoiceDraft).
		WillReturnRows(sqlmock.NewRows([]string{"invoiced", "collected"}).AddRow(50000, 20000))

	stats, err := repo.FinanceStats(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), stats.Invoiced)
	assert.Equal(t, int64(20000), stats.Collected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentStats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(literal("AS active_students")).
		WithArgs(testTenantID).
		WillReturnRows(sqlmock.NewRows([]string{"students", "active_students", "classes"}).AddRow(120, 115, 6))

	stats, err := repo.StudentStats(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, 120, stats.Students)
	assert.Equal(t, 115, stats.ActiveStudents)
	assert.Equal(t, 6, stats.Classes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoicesByStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(literal("GROUP BY status")).
		WithArgs(testTenantID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "total"}).
			AddRow("envoyee", 4, 52000).
			AddRow("payee", 2, 26000))

	counts, err := repo.InvoicesByStatus(context.Background(), testScope)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, billing.InvoicePaid, counts[1].Status)
	assert.Equal(t, int64(26000), counts[1].Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
