package flow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

func newFlowServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "testnet", time.Second)
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"36395f9dde50ea27":   "36395f9dde50ea27",
		"0x36395F9DDE50EA27": "36395f9dde50ea27",
		"0x1":                "0000000000000001",
	}
	for in, want := range cases {
		got, err := NormalizeAddress(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "0x", "zz395f9dde50ea27", "0x36395f9dde50ea2700"} {
		_, err := NormalizeAddress(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidAddress, bad)
	}
}

func TestGetBalance(t *testing.T) {
	var gotPath, gotQuery string
	client := newFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"address":"36395f9dde50ea27","balance":"123450000000"}`)
	})

	bal, err := client.GetBalance(context.Background(), "0x36395f9dde50ea27")
	require.NoError(t, err)

	assert.Equal(t, "/v1/accounts/36395f9dde50ea27", gotPath)
	assert.Equal(t, "block_height=sealed", gotQuery)
	assert.Equal(t, "0x36395f9dde50ea27", bal.Address)
	assert.Equal(t, uint64(123450000000), bal.BaseUnits)
	assert.InDelta(t, 1234.5, bal.Balance, 1e-9)
	assert.Equal(t, "1234.50000000 FLOW", bal.BalanceFormatted)
	assert.Equal(t, "testnet", bal.Network)
	assert.False(t, bal.Timestamp.IsZero())
}

func TestGetBalanceNotFound(t *testing.T) {
	client := newFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":404,"message":"account not found"}`)
	})

	_, err := client.GetBalance(context.Background(), "0000000000000000")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.True(t, IsNotFound(err))
}

func TestGetBalanceBadRequestNotFound(t *testing.T) {
	client := newFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":400,"message":"account with address 0000000000000000 does not exist"}`)
	})

	_, err := client.GetBalance(context.Background(), "0000000000000000")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestGetBalanceUpstreamErrors(t *testing.T) {
	client := newFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.GetBalance(context.Background(), "36395f9dde50ea27")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	_, err = NewClient(slow.URL, "testnet", 20*time.Millisecond).GetBalance(context.Background(), "36395f9dde50ea27")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestGetBalanceInvalidAddressSkipsUpstream(t *testing.T) {
	called := false
	client := newFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	_, err := client.GetBalance(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	assert.False(t, called)
}
