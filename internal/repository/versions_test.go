package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionForUpdateEnsuresAndLocksRow(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewVersionRepository(dbx)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO collection_versions").
		WithArgs(int64(7), "families").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT retreat_id, kind, version, locked FROM collection_versions .* FOR UPDATE").
		WithArgs(int64(7), "families").
		WillReturnRows(sqlmock.NewRows([]string{"retreat_id", "kind", "version", "locked"}).AddRow(7, "families", 3, true))
	mock.ExpectRollback()

	tx, err := dbx.Beginx()
	require.NoError(t, err)
	st, err := repo.ForUpdate(ctx, tx, 7, model.KindFamilies)
	require.NoError(t, err)
	_ = tx.Rollback()

	assert.Equal(t, int64(3), st.Version)
	assert.True(t, st.Locked)
	assert.Equal(t, model.KindFamilies, st.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionForUpdateUnknownRetreat(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewVersionRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO collection_versions").
		WillReturnError(&mysql.MySQLError{Number: errNoReferencedRow, Message: "foreign key constraint fails"})
	mock.ExpectRollback()

	tx, err := dbx.Beginx()
	require.NoError(t, err)
	_, err = repo.ForUpdate(context.Background(), tx, 99, model.KindTents)
	_ = tx.Rollback()

	assert.True(t, errs.IsNotFound(err))
}

func TestVersionBumpReturnsNewValue(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewVersionRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET version = version + 1, updated_at = NOW()")).
		WithArgs(int64(1), "spaces").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT version FROM collection_versions").
		WithArgs(int64(1), "spaces").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))
	mock.ExpectCommit()

	tx, err := dbx.Beginx()
	require.NoError(t, err)
	v, err := repo.Bump(context.Background(), tx, 1, model.KindSpaces)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(5), v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionSetLockedTouchesUpdatedAt(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewVersionRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET locked = ?, updated_at = NOW()")).
		WithArgs(true, int64(4), "tents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := dbx.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.SetLocked(context.Background(), tx, 4, model.KindTents, true))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionGetMissingRowIsZero(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewVersionRepository(dbx)

	mock.ExpectQuery("SELECT retreat_id, kind, version, locked").
		WithArgs(int64(2), "roster").
		WillReturnRows(sqlmock.NewRows([]string{"retreat_id", "kind", "version", "locked"}))

	st, err := repo.Get(context.Background(), 2, model.KindRoster)
	require.NoError(t, err)
	assert.Equal(t, model.CollectionState{RetreatID: 2, Kind: model.KindRoster}, st)
}
