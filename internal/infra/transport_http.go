package infra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// SyncPath is the partner endpoint served by the control API.
const SyncPath = "/v1/brotherhood/sync"

// ContentTypeJWT marks signed sync bodies.
const ContentTypeJWT = "application/jwt"

const maxSyncBody = 16 << 10

// HTTPTransport exchanges payloads by POSTing to the partner daemon's control API.
type HTTPTransport struct {
	peerURL string
	signer  *PayloadSigner
	client  *http.Client
}

// NewHTTPTransport creates a transport for the partner at peerURL.
func NewHTTPTransport(peerURL string, signer *PayloadSigner) *HTTPTransport {
	return NewHTTPTransportWithClient(peerURL, signer, &http.Client{})
}

// NewHTTPTransportWithClient creates a transport with a custom client (for testing).
func NewHTTPTransportWithClient(peerURL string, signer *PayloadSigner, client *http.Client) *HTTPTransport {
	return &HTTPTransport{
		peerURL: strings.TrimRight(peerURL, "/"),
		signer:  signer,
		client:  client,
	}
}

// Exchange sends ours and returns the partner's reply.
// 503 from the partner means it is up but not paired yet.
func (t *HTTPTransport) Exchange(ctx context.Context, mine domain.SyncPayload) (domain.SyncPayload, error) {
	token, err := t.signer.Sign(mine)
	if err != nil {
		return domain.SyncPayload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.peerURL+SyncPath, bytes.NewBufferString(token))
	if err != nil {
		return domain.SyncPayload{}, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypeJWT)

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.SyncPayload{}, fmt.Errorf("sync request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSyncBody))
	if err != nil {
		return domain.SyncPayload{}, fmt.Errorf("read sync response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return domain.SyncPayload{}, domain.ErrPartnerUnavailable
	default:
		return domain.SyncPayload{}, fmt.Errorf("sync request: partner returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return t.signer.Verify(strings.TrimSpace(string(body)))
}

var _ domain.PartnerTransport = (*HTTPTransport)(nil)
