// Package transport implements the single POST /sync HTTP exchange
// atop the SSRF-hardened client pattern, translating HTTP outcomes into
// the protocol package's error taxonomy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/tabsync/errors"
	"github.com/teranos/tabsync/internal/httpclient"
	"github.com/teranos/tabsync/internal/protocol"
)

// Client issues the sync exchange against a configured server URL.
type Client struct {
	http      *httpclient.SaferClient
	serverURL string
	bearer    string
	log       *zap.SugaredLogger
}

// New constructs a Client. serverURL must point at the host exposing
// POST /sync; bearer is attached as "Authorization: Bearer <bearer>" on
// every request. log may be nil.
func New(serverURL, bearer string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	return NewWithClient(serverURL, bearer, httpclient.NewSaferClient(timeout), log)
}

// NewWithClient constructs a Client around a caller-supplied
// *httpclient.SaferClient, so tests can pass httpclient.WrapClient
// around an httptest server without tripping the private-IP block.
func NewWithClient(serverURL, bearer string, client *httpclient.SaferClient, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		http:      client,
		serverURL: serverURL,
		bearer:    bearer,
		log:       log,
	}
}

// TransportError wraps a transport-level failure with the error
// taxonomy kind it was classified as.
type TransportError struct {
	Kind protocol.ErrorKind
	Err  error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Sync performs one POST /sync exchange.
func (c *Client) Sync(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return protocol.Response{}, &TransportError{Kind: protocol.KindInvalidData, Err: errors.Wrap(err, "encode request")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/sync", bytes.NewReader(body))
	if err != nil {
		return protocol.Response{}, &TransportError{Kind: protocol.KindTransientTransport, Err: errors.Wrap(err, "build request")}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warnw("sync request failed", "error", err)
		return protocol.Response{}, &TransportError{Kind: protocol.KindTransientTransport, Err: errors.Wrap(err, "do request")}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Response{}, &TransportError{Kind: protocol.KindTransientTransport, Err: errors.Wrap(err, "read response body")}
	}

	if resp.StatusCode != http.StatusOK {
		kind := protocol.ClassifyStatus(resp.StatusCode)
		return protocol.Response{}, &TransportError{
			Kind: kind,
			Err:  errors.Newf("sync request failed with status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out protocol.Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return protocol.Response{}, &TransportError{Kind: protocol.KindInvalidData, Err: errors.Wrap(err, "decode response")}
	}

	return out, nil
}
