package state

import (
	"strings"

	"github.com/teranos/tabsync/errors"
)

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("state store is closed")

// IsClosed reports whether err indicates the underlying database
// connection is closed, covering both our own sentinel and raw driver
// errors that only carry the condition in their message text.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "sql: database is closed")
}
