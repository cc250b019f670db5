package state

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tabtesting "github.com/teranos/tabsync/internal/testing"
)

func strptr(s string) *string { return &s }

func TestLoadAbsentKeysReturnNil(t *testing.T) {
	db := tabtesting.CreateTestDB(t)
	store := New(db, nil)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded.DeviceID)
	assert.Nil(t, loaded.LamportClock)
	assert.Nil(t, loaded.LastSyncClock)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	db := tabtesting.CreateTestDB(t)
	store := New(db, nil)

	require.NoError(t, store.Save(SaveFields{
		DeviceID:     strptr("d1"),
		LamportClock: strptr("5"),
	}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded.DeviceID)
	assert.Equal(t, "d1", *loaded.DeviceID)
	require.NotNil(t, loaded.LamportClock)
	assert.Equal(t, "5", *loaded.LamportClock)
	assert.Nil(t, loaded.LastSyncClock, "last_sync_clock untouched by a partial save")
}

func TestSaveUpsertOverwritesExistingValue(t *testing.T) {
	db := tabtesting.CreateTestDB(t)
	store := New(db, nil)

	require.NoError(t, store.Save(SaveFields{LamportClock: strptr("1")}))
	require.NoError(t, store.Save(SaveFields{LamportClock: strptr("2")}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded.LamportClock)
	assert.Equal(t, "2", *loaded.LamportClock)
}

// TestSaveFailureOnOneKeyDoesNotCorruptAnother exercises the crash-safety
// claim in the component design: each key is written by its own
// statement, so a mock driver that fails the second of two writes must
// still have durably applied the first.
func TestSaveFailureOnOneKeyDoesNotCorruptAnother(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store := New(mockDB, nil)

	mock.ExpectExec("INSERT INTO sync_state").
		WithArgs(keyDeviceID, "d1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sync_state").
		WithArgs(keyLamportClock, "7").
		WillReturnError(assert.AnError)

	err = store.Save(SaveFields{
		DeviceID:     strptr("d1"),
		LamportClock: strptr("7"),
	})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
