package columns

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "columns.db"))
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLStore(db, "sqlite3", "column_state")
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))

	views, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, views)

	require.NoError(t, store.Save(context.Background(), sample))
	views, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sample, views)

	// saves replace everything
	require.NoError(t, store.Save(context.Background(), map[string][]State{"only": {{Name: "A", Width: 1}}}))
	views, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, sortedViewIDs(views))
}

func TestNewSQLStore_Validation(t *testing.T) {
	_, err := NewSQLStore(nil, "sqlite3", "")
	assert.Error(t, err)
	_, err = NewSQLStore(nil, "oracle", "columns")
	assert.Error(t, err)
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLStore(db, "pgx", "column_state")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "column_state"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO "column_state" (view_id, name, visible, position, width) VALUES ($1, $2, $3, $4, $5)`).
		WithArgs("tables", "Rows", true, 0, 80).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.Save(context.Background(), map[string][]State{"tables": sample["tables"]})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SaveRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLStore(db, "postgres", "column_state")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err = store.Save(context.Background(), map[string][]State{"tables": sample["tables"]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LoadErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLStore(db, "postgres", "column_state")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT view_id").WillReturnError(errors.New("connection reset"))
	_, err = store.Load(context.Background())
	assert.Error(t, err)

	mock.ExpectQuery("SELECT view_id").WillReturnRows(
		sqlmock.NewRows([]string{"view_id", "name", "visible", "position", "width"}).
			AddRow("tables", "Rows", true, "not-a-number", 80))
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.NoError(t, mock.ExpectationsWereMet())
}
