package state

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/tabsync/errors"
)

const (
	keyDeviceID      = "device_id"
	keyLamportClock  = "lamport_clock"
	keyLastSyncClock = "last_sync_clock"
)

// Loaded is the result of Load: each field is absent (nil) if the key
// was never persisted.
type Loaded struct {
	DeviceID      *string
	LamportClock  *string
	LastSyncClock *string
}

// SaveFields is the subset of keys to write in one Save call. A nil
// field is left untouched.
type SaveFields struct {
	DeviceID      *string
	LamportClock  *string
	LastSyncClock *string
}

// Store persists the three keys the core owns in a single-table
// key/value layout, so a crash mid-save of one key never corrupts
// another (each is its own row, written by its own statement).
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// New wraps an already-migrated *sql.DB. log may be nil.
func New(db *sql.DB, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{db: db, log: log}
}

// Load reads all three keys. Missing keys are reported as absent
// (nil), not an error — a fresh install has no prior state.
func (s *Store) Load() (Loaded, error) {
	var out Loaded
	for key, dst := range map[string]**string{
		keyDeviceID:      &out.DeviceID,
		keyLamportClock:  &out.LamportClock,
		keyLastSyncClock: &out.LastSyncClock,
	} {
		var value string
		err := s.db.QueryRow("SELECT value FROM sync_state WHERE key = ?", key).Scan(&value)
		switch {
		case err == nil:
			v := value
			*dst = &v
		case errors.Is(err, sql.ErrNoRows):
			// absent key; leave nil
		default:
			return Loaded{}, errors.Wrapf(err, "load key %q", key)
		}
	}
	return out, nil
}

// Save writes the subset of fields provided. Each key is written with
// its own upsert statement so a crash between two fields leaves the
// first durably applied and the second simply unwritten, never a torn
// value for either — satisfying the "crash mid-save cannot corrupt an
// unrelated key" requirement without needing a single all-or-nothing
// transaction across unrelated keys.
func (s *Store) Save(fields SaveFields) error {
	type write struct {
		key   string
		value *string
	}
	writes := []write{
		{keyDeviceID, fields.DeviceID},
		{keyLamportClock, fields.LamportClock},
		{keyLastSyncClock, fields.LastSyncClock},
	}
	for _, w := range writes {
		key, value := w.key, w.value
		if value == nil {
			continue
		}
		if _, err := s.db.Exec(
			`INSERT INTO sync_state (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, *value,
		); err != nil {
			s.log.Warnw("failed to persist key", "key", key, "error", err)
			return errors.Wrapf(err, "save key %q", key)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
