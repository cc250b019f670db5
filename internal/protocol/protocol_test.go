package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabsync/internal/ops"
)

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, KindAuthInvalid, ClassifyStatus(401))
	assert.Equal(t, KindPermissionDenied, ClassifyStatus(403))
	assert.Equal(t, KindTransientTransport, ClassifyStatus(500))
	assert.Equal(t, KindTransientTransport, ClassifyStatus(503))
	assert.Equal(t, KindInvalidData, ClassifyStatus(400))
}

func TestRetryableKinds(t *testing.T) {
	assert.True(t, KindTransientTransport.Retryable())
	assert.True(t, KindAuthInvalid.Retryable())
	assert.True(t, KindInvalidData.Retryable())
	assert.False(t, KindPermissionDenied.Retryable())
	assert.False(t, KindLocalApplyFailed.Retryable())
	assert.False(t, KindPersistenceFailed.Retryable())
}

func TestFirstSyncRequestHasNullSinceClock(t *testing.T) {
	req := Request{
		Clock:      0,
		DeviceID:   "d1",
		SinceClock: nil,
		Operations: []ops.Msg{},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["since_clock"])
	assert.Equal(t, "0", raw["clock"])
	assert.Equal(t, []any{}, raw["operations"], "empty drain still produces a valid request payload")
}

func TestResponseRoundTrip(t *testing.T) {
	resp := Response{
		Clock: 5,
		Operations: []ops.Msg{
			ops.NewCloseTab("t1", 42),
		},
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, uint64(5), decoded.Clock.Uint64())
	require.Len(t, decoded.Operations, 1)
	assert.Equal(t, ops.TypeCloseTab, decoded.Operations[0].Type)
}
