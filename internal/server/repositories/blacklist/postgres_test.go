package blacklist

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

var now = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func TestAdd_InsertThenNoop(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+token_blacklist\b.*ON\s+CONFLICT\s+\(jti\)\s+DO\s+NOTHING\s*$`
	e := &models.BlacklistEntry{JTI: "j1", UserID: "u1", ExpiresAt: now.Add(time.Minute), Reason: "logout", CreatedAt: now}
	mock.ExpectExec(q).WithArgs("j1", "u1", e.ExpiresAt, "logout", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("j1", "u1", e.ExpiresAt, "logout", now).WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Add(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Add(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestAdd_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+token_blacklist`).WillReturnError(errors.New("db down"))

	_, err := repo.Add(context.Background(), &models.BlacklistEntry{JTI: "j1"})
	require.ErrorContains(t, err, "db error: db down")
}

func TestExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^SELECT\s+EXISTS\s+\(SELECT\s+1\s+FROM\s+token_blacklist\s+WHERE\s+jti\s*=\s*\$1\)$`
	mock.ExpectQuery(q).WithArgs("j1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q).WithArgs("j2").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(q).WithArgs("j3").WillReturnError(errors.New("timeout"))

	found, err := repo.Exists(context.Background(), "j1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Exists(context.Background(), "j2")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = repo.Exists(context.Background(), "j3")
	require.Error(t, err)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+token_blacklist\s+WHERE\s+expires_at\s*<=\s*\$1$`).
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}
