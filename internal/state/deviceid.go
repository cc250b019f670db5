package state

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// MintDeviceID creates a fresh device identifier: a millisecond
// timestamp followed by a random suffix, per spec §3 ("if not persisted
// at first start, the engine mints one (timestamp + random suffix) and
// persists it"). The random suffix uses uuid's crypto/rand-backed
// generator rather than a weaker source, since this id is never mutated
// for the life of the installation and collisions across devices must
// stay vanishingly unlikely.
func MintDeviceID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.New().String()
}
