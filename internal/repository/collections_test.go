package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceDeletesMissingUpdatesAndInserts(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewTentsRepository()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tents WHERE retreat_id = ? AND id NOT IN (?)")).
		WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tents SET label = ?, capacity = ?, locked = ? WHERE id = ? AND retreat_id = ?")).
		WithArgs("A", 4, false, int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tents (retreat_id, label, capacity, locked) VALUES (?, ?, ?, ?)")).
		WithArgs(int64(1), "B", 6, false).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	tx, err := dbx.Beginx()
	require.NoError(t, err)
	out, err := repo.Replace(context.Background(), tx, 1, []model.Tent{
		{ID: 5, Label: "A", Capacity: 4},
		{Label: "B", Capacity: 6},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, out, 2)
	assert.Equal(t, int64(9), out[1].ID)
	assert.Equal(t, int64(1), out[1].RetreatID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceWithEmptySetDeletesAll(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewSpacesRepository()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM service_spaces WHERE retreat_id = ?")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	tx, err := dbx.Beginx()
	require.NoError(t, err)
	out, err := repo.Replace(context.Background(), tx, 3, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFamiliesScansGroupColumns(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewFamiliesRepository()

	cols := []string{"id", "retreat_id", "name", "members", "locked",
		"group_status", "group_version", "group_link", "group_external_id", "group_channel",
		"group_created_at", "group_last_notified_at", "group_error"}
	mock.ExpectQuery("SELECT id, retreat_id, name, members, locked").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(4, 1, "Silva", []byte(`[{"name":"Ana"}]`), true, "active", 2, "L1", "E1", "whatsapp", nil, nil, nil))

	got, err := repo.Load(context.Background(), dbx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	f := got[0]
	assert.True(t, f.Locked)
	assert.Equal(t, model.GroupActive, f.Status)
	assert.Equal(t, int64(2), f.GroupLifecycle.Version)
	assert.True(t, f.Matches("E1", "L1"))
	assert.Equal(t, "Ana", f.Members[0].Name)
}

func TestDeliveriesRecordReportsInsert(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewDeliveriesRepository(dbx)

	mock.ExpectExec("INSERT INTO notification_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notification_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	d := model.Delivery{DedupeKey: "k", EventID: "e", Channel: "email", Recipient: "a@b.c"}

	first, err := repo.Record(context.Background(), d)
	require.NoError(t, err)
	second, err := repo.Record(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}
