package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-scheduler-api/internal/models"
)

func TestDepartmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(`rooms_count FROM departments d WHERE 1=1 AND \(LOWER\(d.name\) LIKE \$1 OR LOWER\(d.code\) LIKE \$1\) ORDER BY d.name ASC LIMIT 5 OFFSET 5`).
		WithArgs("%sci%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "description", "created_at", "rooms_count"}).
			AddRow("dep-1", "Science", "SCI", "", time.Now(), 3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM departments d WHERE 1=1")).
		WithArgs("%sci%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	list, total, err := repo.List(context.Background(), models.DepartmentFilter{Search: "Sci", Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].RoomsCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryCreateAndExists(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO departments")).
		WithArgs(sqlmock.AnyArg(), "Science", "SCI", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM departments WHERE LOWER(code) = LOWER($1) LIMIT 1")).
		WithArgs("sci").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	dep := &models.Department{Name: "Science", Code: "SCI"}
	require.NoError(t, repo.Create(context.Background(), dep))
	assert.NotEmpty(t, dep.ID)

	exists, err := repo.ExistsByCode(context.Background(), "sci", "")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
