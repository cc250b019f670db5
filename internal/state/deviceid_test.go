package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMintDeviceIDIsNonEmptyAndUnique(t *testing.T) {
	now := time.Now()
	a := MintDeviceID(now)
	b := MintDeviceID(now)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b, "two mints at the same instant must not collide")
}
