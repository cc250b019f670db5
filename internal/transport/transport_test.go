package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabsync/internal/httpclient"
	"github.com/teranos/tabsync/internal/protocol"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	safer := httpclient.WrapClient(srv.Client())
	return NewWithClient(srv.URL, "test-token", safer, nil), srv
}

func TestSyncSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.Response{Clock: 5})
	})

	resp, err := client.Sync(context.Background(), protocol.Request{Clock: 0, DeviceID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), resp.Clock.Uint64())
}

func TestSyncClassifiesAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("unauthorized"))
	})

	_, err := client.Sync(context.Background(), protocol.Request{Clock: 0, DeviceID: "d1"})
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, protocol.KindAuthInvalid, te.Kind)
}

func TestSyncClassifiesServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Sync(context.Background(), protocol.Request{Clock: 0, DeviceID: "d1"})
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, protocol.KindTransientTransport, te.Kind)
}
