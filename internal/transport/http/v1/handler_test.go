package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/flow"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/sdk"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/config"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/service"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/policy"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/tests/helpers"
)

const defaultAddress = "36395f9dde50ea27"

func newTestHandler(t *testing.T, backend sdk.Backend) (*Handler, *service.Service) {
	t.Helper()
	cfg := &config.Config{
		Defaults:           domain.SessionConfig{Model: "mock-model"},
		FlowNetwork:        "testnet",
		FlowDefaultAddress: "0x" + defaultAddress,
		FlowTimeout:        time.Second,
	}
	flowServer := helpers.NewFlowServer(t, map[string]string{defaultAddress: "123450000000"})
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	svc := service.New(cfg, backend, nil, nil, flow.NewClient(flowServer.URL, cfg.FlowNetwork, cfg.FlowTimeout), policyEngine)
	return NewHandler(svc), svc
}

func newRouter(h *Handler) *echo.Echo {
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// parseSSE decodes every data event of an SSE body.
func parseSSE(t *testing.T, body string) []domain.Chunk {
	t.Helper()
	var chunks []domain.Chunk
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var c domain.Chunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &c))
		chunks = append(chunks, c)
	}
	return chunks
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChatAutoCreatesSession(t *testing.T) {
	h, _ := newTestHandler(t, sdk.NewMockBackend())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Chat(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")

	chunks := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(chunks), 3)
	first, last := chunks[0], chunks[len(chunks)-1]
	assert.Equal(t, domain.ChunkTypeSessionCreated, first.Type)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, domain.ChunkTypeDone, last.Type)
	assert.Equal(t, first.SessionID, last.SessionID)
}

func TestCreateChatListDelete(t *testing.T) {
	h, _ := newTestHandler(t, sdk.NewMockBackend())
	e := newRouter(h)

	rec := do(e, http.MethodPost, "/api/sessions", `{"project_id":"p"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[domain.CreateSessionResponse](t, rec)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, "p", created.ProjectID)
	assert.Equal(t, domain.SessionStatusCreated, created.Status)
	id := created.SessionID

	rec = do(e, http.MethodPost, "/api/chat", `{"message":"hello","session_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	chunks := parseSSE(t, rec.Body.String())
	for _, c := range chunks {
		assert.NotEqual(t, domain.ChunkTypeSessionCreated, c.Type)
	}
	assert.Equal(t, domain.ChunkTypeDone, chunks[len(chunks)-1].Type)
	assert.Equal(t, id, chunks[len(chunks)-1].SessionID)

	rec = do(e, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[domain.ListSessionsResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, id, list.Sessions[0].SessionID)
	assert.Equal(t, "p", list.Sessions[0].ProjectID)
	assert.Equal(t, 3, list.Sessions[0].MessagesCount)

	rec = do(e, http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[domain.SessionDetail](t, rec)
	assert.Equal(t, domain.SessionStateIdle, detail.State)
	assert.Equal(t, "mock-model", detail.Config.Model)

	rec = do(e, http.MethodGet, "/api/sessions/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[domain.MessagesResponse](t, rec)
	require.Len(t, msgs.Messages, 3)
	assert.Equal(t, "hello", msgs.Messages[0].Content)

	rec = do(e, http.MethodDelete, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode[domain.DeleteSessionResponse](t, rec)
	assert.Equal(t, id, deleted.SessionID)
	assert.Equal(t, domain.SessionStatusDeleted, deleted.Status)

	rec = do(e, http.MethodGet, "/api/sessions", "")
	assert.Zero(t, decode[domain.ListSessionsResponse](t, rec).Total)

	rec = do(e, http.MethodDelete, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[domain.ErrorResponse](t, rec).Error)
}

func TestChatValidation(t *testing.T) {
	h, svc := newTestHandler(t, sdk.NewMockBackend())
	e := newRouter(h)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing message", `{}`, http.StatusUnprocessableEntity},
		{"empty message", `{"message":""}`, http.StatusUnprocessableEntity},
		{"wrong type", `{"message":5}`, http.StatusUnprocessableEntity},
		{"malformed", `{"message":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
			assert.NotEmpty(t, decode[domain.ErrorResponse](t, rec).Error)
		})
	}
	assert.Empty(t, svc.ListSessions(), "no session may be created for a rejected request")
}

func TestChatSDKUnavailable(t *testing.T) {
	h, _ := newTestHandler(t, &sdk.MockBackend{Unavailable: true})
	e := newRouter(h)

	rec := do(e, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode[domain.ErrorResponse](t, rec).Error, "sdk unavailable")
}

func TestCreateSessionRejectsBadConfig(t *testing.T) {
	h, _ := newTestHandler(t, sdk.NewMockBackend())
	e := newRouter(h)

	rec := do(e, http.MethodPost, "/api/sessions", `{"config":{"temperature":0.5,"colour":"red"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(e, http.MethodPost, "/api/sessions", `{"config":{"temperature":5}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotEmpty(t, decode[domain.ErrorResponse](t, rec).Details)

	rec = do(e, http.MethodPost, "/api/sessions", `{"config":{"model":"claude-haiku-4-5","temperature":0.3}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBalance(t *testing.T) {
	h, _ := newTestHandler(t, sdk.NewMockBackend())
	e := newRouter(h)

	for _, path := range []string{
		"/api/flow/balance/" + defaultAddress,
		"/api/flow/balance/0x" + defaultAddress,
		"/api/flow/balance",
	} {
		rec := do(e, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		bal := decode[domain.Balance](t, rec)
		assert.Equal(t, "0x"+defaultAddress, bal.Address)
		assert.Equal(t, 1234.5, bal.Balance)
		assert.Equal(t, "1234.50000000 FLOW", bal.BalanceFormatted)
		assert.Equal(t, "testnet", bal.Network)
		assert.False(t, bal.Timestamp.IsZero())
	}

	rec := do(e, http.MethodGet, "/api/flow/balance/0000000000000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(decode[domain.ErrorResponse](t, rec).Error, "Account not found"))

	rec = do(e, http.MethodGet, "/api/flow/balance/not-hex", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBalanceUpstreamDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	cfg := &config.Config{Defaults: domain.SessionConfig{Model: "m"}, FlowDefaultAddress: defaultAddress}
	svc := service.New(cfg, sdk.NewMockBackend(), nil, nil, flow.NewClient(dead.URL, "testnet", time.Second), nil)
	e := newRouter(NewHandler(svc))

	rec := do(e, http.MethodGet, "/api/flow/balance", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndSDKStatus(t *testing.T) {
	h, _ := newTestHandler(t, sdk.NewMockBackend())
	e := newRouter(h)

	rec := do(e, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[domain.HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.SDKAvailable)
	assert.Zero(t, health.SessionsActive)

	rec = do(e, http.MethodGet, "/api/sdk-status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[domain.SDKStatusResponse](t, rec)
	assert.True(t, status.SDKAvailable)
	assert.Equal(t, "ready", status.HandlerStatus)
	assert.Equal(t, "mock", status.Info["backend"])
}

func TestWatchSession(t *testing.T) {
	h, svc := newTestHandler(t, sdk.NewMockBackend())
	server := httptest.NewServer(newRouter(h))
	defer server.Close()

	sess, err := svc.CreateSession(context.Background(), "", domain.SessionConfig{})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/" + sess.ID() + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return svc.Hub().SubscriberCount(sess.ID()) == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Post(server.URL+"/api/chat", echo.MIMEApplicationJSON,
		strings.NewReader(`{"message":"watched","session_id":"`+sess.ID()+`"}`))
	require.NoError(t, err)
	_, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var seen []domain.ChunkType
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var c domain.Chunk
		require.NoError(t, json.Unmarshal(data, &c))
		seen = append(seen, c.Type)
		if c.Type == domain.ChunkTypeDone {
			break
		}
	}
	assert.Contains(t, seen, domain.ChunkTypeTextDelta)
	assert.Contains(t, seen, domain.ChunkTypeResult)

	require.NoError(t, svc.DeleteSession(sess.ID()))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWatchUnknownSession(t *testing.T) {
	h, _ := newTestHandler(t, sdk.NewMockBackend())
	rec := do(newRouter(h), http.MethodGet, "/api/sessions/nope/watch", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
