package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/config"
	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*Router, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.JWT.Secret = "test_secret"
	cfg.JWT.TokenExpiry = time.Hour

	registry := services.NewSessionRegistry(time.Minute)
	tokens := services.NewWebhookTokenService(services.NewSMSPatternMatcher(), nil, "http://localhost:8080")
	manager := services.NewOTPManager(registry, tokens, services.NewSMSPatternMatcher(), nil, time.Second)

	jwtToken, err := middleware.GenerateToken("operator", cfg)
	require.NoError(t, err)

	return NewRouter(cfg, manager, tokens), jwtToken
}

func doJSON(r *Router, method, path, jwtToken, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if jwtToken != "" {
		req.Header.Set("Authorization", "Bearer "+jwtToken)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPIRequiresAuth(t *testing.T) {
	r, jwtToken := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/sessions", "", `{"email": "a@b.com"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/sessions", jwtToken, `{"email": "a@b.com"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSessionLifecycleThroughAPI(t *testing.T) {
	r, jwtToken := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/sessions", jwtToken, `{"phone_number": "+905551234567"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)

	// Manual code injection, then the wait returns immediately.
	w = doJSON(r, http.MethodPost, "/api/sessions/"+created.SessionID+"/otp", jwtToken, `{"code": "654321"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/sessions/"+created.SessionID+"/wait", jwtToken, `{"timeout_seconds": 1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"654321"`)

	w = doJSON(r, http.MethodDelete, "/api/sessions/"+created.SessionID, jwtToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/sessions/"+created.SessionID, jwtToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookRoundTripThroughAPI(t *testing.T) {
	r, jwtToken := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/tokens", jwtToken, `{"account_id": "acct-1", "phone_number": "+90555"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var issued struct {
		Token      string `json:"token"`
		WebhookURL string `json:"webhook_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.Token)

	w = doJSON(r, http.MethodPost, "/api/sessions", jwtToken, `{"phone_number": "+90555"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// The webhook surface needs no JWT, only the URL token.
	w = doJSON(r, http.MethodPost, "/webhook/sms/"+issued.Token, "", `{"message": "Your code is 654321"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"otp_extracted":true`)
	assert.Contains(t, w.Body.String(), created.SessionID)

	w = doJSON(r, http.MethodPost, "/api/sessions/"+created.SessionID+"/wait", jwtToken, `{"timeout_seconds": 1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"654321"`)

	// Revoked tokens stop validating on the public surface.
	w = doJSON(r, http.MethodDelete, "/api/tokens/"+issued.Token, jwtToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/webhook/sms/"+issued.Token, "", `{"message": "Your code is 111222"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookUnknownToken(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/webhook/sms/whk_nope", "", `{"message": "code 1234"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/webhook/sms/whk_abc", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSecurityHeadersPresent(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
