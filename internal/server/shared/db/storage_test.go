package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
)

type stubManager struct {
	repomanager.RepositoryManager
	migrated bool
	err      error
}

func (m *stubManager) RunMigrations(context.Context, *sql.DB) error {
	m.migrated = true
	return m.err
}

func withSeams(t *testing.T, conn *sql.DB, mgr *stubManager) {
	t.Helper()
	prevOpen, prevMgr, prevBackoff := openDB, newRepoManager, connectBackoff
	openDB = func(string) (*sql.DB, error) { return conn, nil }
	newRepoManager = func() repomanager.RepositoryManager { return mgr }
	connectBackoff = time.Millisecond
	t.Cleanup(func() {
		openDB, newRepoManager, connectBackoff = prevOpen, prevMgr, prevBackoff
	})
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), memory.DSN, logging.Nop{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s.Runner)
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}

func TestOpen_RetriesPingThenMigrates(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mgr := &stubManager{}
	withSeams(t, conn, mgr)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	s, err := Open(context.Background(), "postgres://example", logging.Nop{})
	require.NoError(t, err)
	assert.True(t, mgr.migrated)
	assert.Same(t, mgr, s.Repos)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectPing()
	assert.NoError(t, s.Ping(context.Background()))

	mock.ExpectClose()
	require.NoError(t, s.Close())
}

func TestOpen_GivesUp(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mgr := &stubManager{}
	withSeams(t, conn, mgr)

	for i := 0; i < connectAttempts; i++ {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	}
	mock.ExpectClose()

	_, err = Open(context.Background(), "postgres://example", logging.Nop{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 attempts")
	assert.False(t, mgr.migrated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_MigrationFailure(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mgr := &stubManager{err: errors.New("bad migration")}
	withSeams(t, conn, mgr)

	mock.ExpectPing()
	mock.ExpectClose()

	_, err = Open(context.Background(), "postgres://example", logging.Nop{})
	require.ErrorContains(t, err, "migration error")
	require.NoError(t, mock.ExpectationsWereMet())
}
