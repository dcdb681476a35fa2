package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"chat-sync/internal/auth"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/mocks"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/ws"
)

func testRouter(debug bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := &mocks.SyncServiceMock{}
	tokens := auth.NewService("secret", 0)
	registry := ws.NewRegistry()

	return newRouter(routes{
		dialogs:     handlers.NewDialogHandler(svc, zap.NewNop()),
		messages:    handlers.NewMessageHandler(svc, zap.NewNop()),
		updates:     handlers.NewUpdatesHandler(svc, zap.NewNop()),
		ws:          ws.NewHandler(registry, svc, tokens, rabbitmq.NewNoopPublisher(), 8, zap.NewNop()),
		auth:        middleware.AuthMiddleware(tokens),
		sessions:    registry,
		nodeID:      "node-test",
		debugRoutes: debug,
	})
}

func TestRouterHealthAndMetrics(t *testing.T) {
	r := testRouter(false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "node-test")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRequiresAuth(t *testing.T) {
	r := testRouter(false)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/dialogs"},
		{http.MethodPost, "/messages"},
		{http.MethodGet, "/updates"},
		{http.MethodGet, "/ws"},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestRouterDebugRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	testRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"node_id":"node-test","sessions":0,"request_id":"`+rec.Header().Get("X-Request-Id")+`"}`, rec.Body.String())
}
