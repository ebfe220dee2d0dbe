package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

func TestClient(t *testing.T) {
	h := newAPIHarness(t)
	h.brotherhood.state = domain.BrotherhoodState{PartnerID: "bro", Status: domain.SyncWaitingForPartner}
	srv := httptest.NewServer(NewRouter(h.deps, zap.NewNop()))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", st.Detector)
	assert.Equal(t, "2024-05-01", st.Today.Date)

	b, err := c.Brotherhood(ctx)
	require.NoError(t, err)
	assert.Equal(t, "waiting_for_partner", b.Status)

	h.deps.Brotherhood = nil
	srv2 := httptest.NewServer(NewRouter(h.deps, zap.NewNop()))
	defer srv2.Close()
	_, err = NewClient(srv2.URL).Brotherhood(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewClient_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7431", NewClient("127.0.0.1:7431/").base)
	assert.Equal(t, "https://peer", NewClient("https://peer").base)
}
