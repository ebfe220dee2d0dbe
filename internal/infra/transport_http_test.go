package infra

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/test/fixtures"
)

// partnerServer answers sync requests the way a paired daemon does.
func partnerServer(t *testing.T, signer *PayloadSigner, reply domain.SyncPayload, got *domain.SyncPayload) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SyncPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		p, err := signer.Verify(string(body))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		*got = p
		token, err := signer.Sign(reply)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ContentTypeJWT)
		_, _ = io.WriteString(w, token)
	}))
}

func TestHTTPTransport_Exchange(t *testing.T) {
	clock := fixtures.NewFakeClock(t0)
	signer := newTestSigner(t, "pair", clock)

	var received domain.SyncPayload
	srv := partnerServer(t, signer, testPayload("bro", t0), &received)
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", signer)
	theirs, err := tr.Exchange(context.Background(), testPayload("me", t0))
	require.NoError(t, err)

	assert.Equal(t, "me", received.DeviceID)
	assert.Equal(t, "bro", theirs.DeviceID)
	assert.Equal(t, 4, theirs.Streak)
}

func TestHTTPTransport_Errors(t *testing.T) {
	clock := fixtures.NewFakeClock(t0)
	signer := newTestSigner(t, "pair", clock)

	tests := []struct {
		name        string
		handler     http.HandlerFunc
		unavailable bool
	}{
		{
			name: "partner not paired yet",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "brotherhood disabled", http.StatusServiceUnavailable)
			},
			unavailable: true,
		},
		{
			name: "partner rejects signature",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad signature", http.StatusUnauthorized)
			},
		},
		{
			name: "partner reply unsigned",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"device_id":"bro"}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPTransport(srv.URL, signer).Exchange(context.Background(), testPayload("me", t0))
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, errors.Is(err, domain.ErrPartnerUnavailable))
		})
	}
}

func TestHTTPTransport_RespectsContext(t *testing.T) {
	signer := newTestSigner(t, "pair", fixtures.NewFakeClock(t0))
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPTransport(srv.URL, signer).Exchange(ctx, testPayload("me", t0))
	assert.Error(t, err)
}
