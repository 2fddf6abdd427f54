package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func sessionRouter(manager OTPManagerInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSessionHandler(manager)
	r := gin.New()
	r.POST("/api/sessions", h.Register)
	r.DELETE("/api/sessions/:id", h.Unregister)
	r.POST("/api/sessions/:id/wait", h.Wait)
	r.POST("/api/sessions/:id/otp", h.ManualOTP)
	r.GET("/health", h.Health)
	return r
}

func TestSessionRegister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router := sessionRouter(&mockManager{registerID: "sess-1"})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions",
			strings.NewReader(`{"email": "a@b.com", "phone_number": "+90555"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"session_id":"sess-1"`)
	})

	t.Run("missing identifiers", func(t *testing.T) {
		router := sessionRouter(&mockManager{registerErr: services.ErrNoIdentifier})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		router := sessionRouter(&mockManager{})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{broken`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSessionUnregister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router := sessionRouter(&mockManager{unregisterOK: true})

		req := httptest.NewRequest(http.MethodDelete, "/api/sessions/sess-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		router := sessionRouter(&mockManager{unregisterOK: false})

		req := httptest.NewRequest(http.MethodDelete, "/api/sessions/missing", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSessionWait(t *testing.T) {
	t.Run("code delivered", func(t *testing.T) {
		manager := &mockManager{waitCode: "654321", waitOK: true}
		router := sessionRouter(manager)

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/wait",
			strings.NewReader(`{"timeout_seconds": 30}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"654321"`)
		assert.Equal(t, 30*time.Second, manager.lastWaitTimeout)
	})

	t.Run("empty body selects server default", func(t *testing.T) {
		manager := &mockManager{waitCode: "654321", waitOK: true}
		router := sessionRouter(manager)

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/wait", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, time.Duration(0), manager.lastWaitTimeout)
	})

	t.Run("timeout", func(t *testing.T) {
		router := sessionRouter(&mockManager{waitOK: false})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/wait", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestTimeout, w.Code)
	})
}

func TestSessionManualOTP(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router := sessionRouter(&mockManager{})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/otp",
			strings.NewReader(`{"code": "654321"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		router := sessionRouter(&mockManager{})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/otp",
			strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		router := sessionRouter(&mockManager{manualErr: services.ErrSessionNotFound})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/missing/otp",
			strings.NewReader(`{"code": "654321"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHealth(t *testing.T) {
	router := sessionRouter(&mockManager{health: services.HealthStatus{
		ListenerConnected: true,
		ActiveSessions:    3,
	}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"listener_connected":true`)
	assert.Contains(t, w.Body.String(), `"active_sessions":3`)
}
