package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/models"
	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockManager implements OTPManagerInterface for handler tests
type mockManager struct {
	registerID      string
	registerErr     error
	unregisterOK    bool
	waitCode        string
	waitOK          bool
	webhookResult   *services.WebhookResult
	webhookErr      error
	manualErr       error
	startID         string
	startErr        error
	endErr          error
	health          services.HealthStatus
	lastToken       string
	lastPayload     []byte
	lastWaitTimeout time.Duration
}

func (m *mockManager) RegisterSession(email, phone, country string, metadata map[string]string) (string, error) {
	return m.registerID, m.registerErr
}

func (m *mockManager) UnregisterSession(sessionID string) bool { return m.unregisterOK }

func (m *mockManager) WaitForOTP(sessionID string, timeout time.Duration) (string, bool) {
	m.lastWaitTimeout = timeout
	return m.waitCode, m.waitOK
}

func (m *mockManager) ProcessSMSWebhook(token string, rawPayload []byte) (*services.WebhookResult, error) {
	m.lastToken = token
	m.lastPayload = rawPayload
	return m.webhookResult, m.webhookErr
}

func (m *mockManager) ManualOTPInput(sessionID, code string) error { return m.manualErr }
func (m *mockManager) StartSession(accountID string) (string, error) {
	return m.startID, m.startErr
}
func (m *mockManager) EndSession(sessionID string) error  { return m.endErr }
func (m *mockManager) HealthCheck() services.HealthStatus { return m.health }

// mockTokens implements TokenServiceInterface for handler tests
type mockTokens struct {
	generated   string
	registered  *models.WebhookToken
	regErr      error
	validated   *models.WebhookToken
	looked      *models.WebhookToken
	processCode string
	processErr  error
	revokeErr   error
	lastPayload []byte
}

func (m *mockTokens) Generate() string { return m.generated }
func (m *mockTokens) Register(token, accountID, phoneNumber string) (*models.WebhookToken, error) {
	return m.registered, m.regErr
}
func (m *mockTokens) Validate(token string) *models.WebhookToken { return m.validated }
func (m *mockTokens) Lookup(token string) *models.WebhookToken { return m.looked }
func (m *mockTokens) Process(token string, rawPayload []byte) (string, *models.WebhookToken, error) {
	m.lastPayload = rawPayload
	return m.processCode, m.validated, m.processErr
}
func (m *mockTokens) Revoke(token string) error { return m.revokeErr }

func webhookRouter(manager OTPManagerInterface, tokens TokenServiceInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(manager, tokens)
	r := gin.New()
	r.POST("/webhook/sms/:token", h.ReceiveSMS)
	r.GET("/webhook/sms/:token/status", h.Status)
	r.POST("/webhook/sms/:token/test", h.Test)
	return r
}

func TestReceiveSMS(t *testing.T) {
	t.Run("delivers and reports session", func(t *testing.T) {
		manager := &mockManager{webhookResult: &services.WebhookResult{
			AccountID:    "acct-1",
			OTPExtracted: true,
			SessionID:    "sess-1",
		}}
		router := webhookRouter(manager, &mockTokens{})

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_abc",
			strings.NewReader(`{"message": "Your code is 654321"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "whk_abc", manager.lastToken)
		assert.Contains(t, w.Body.String(), `"otp_extracted":true`)
		assert.Contains(t, w.Body.String(), `"session_id":"sess-1"`)
	})

	t.Run("extraction miss omits session id", func(t *testing.T) {
		manager := &mockManager{webhookResult: &services.WebhookResult{AccountID: "acct-1"}}
		router := webhookRouter(manager, &mockTokens{})

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_abc",
			strings.NewReader(`{"message": "no code"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"otp_extracted":false`)
		assert.NotContains(t, w.Body.String(), "session_id")
	})

	t.Run("unknown token is 404", func(t *testing.T) {
		manager := &mockManager{webhookErr: services.ErrTokenInvalid}
		router := webhookRouter(manager, &mockTokens{})

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_nope",
			strings.NewReader(`{"message": "x"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed payload is 400", func(t *testing.T) {
		manager := &mockManager{webhookErr: models.ErrNoMessageField}
		router := webhookRouter(manager, &mockTokens{})

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_abc",
			strings.NewReader(`{broken`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookStatus(t *testing.T) {
	t.Run("active token", func(t *testing.T) {
		tokens := &mockTokens{looked: &models.WebhookToken{
			Token:       "whk_abc",
			AccountID:   "acct-1",
			PhoneNumber: "+905551234567",
			SessionID:   "sess-1",
			CreatedAt:   time.Unix(1690000000, 0),
			LastUsedAt:  time.Unix(1700000000, 0),
			IsActive:    true,
		}}
		router := webhookRouter(&mockManager{}, tokens)

		req := httptest.NewRequest(http.MethodGet, "/webhook/sms/whk_abc/status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"active"`)
		assert.Contains(t, w.Body.String(), `"linked":true`)
		assert.Contains(t, w.Body.String(), `"phone_number":"+905551234567"`)
		assert.Contains(t, w.Body.String(), `"created_at":1690000000`)
	})

	t.Run("revoked token reports inactive", func(t *testing.T) {
		tokens := &mockTokens{looked: &models.WebhookToken{
			Token:     "whk_abc",
			AccountID: "acct-1",
			IsActive:  false,
		}}
		router := webhookRouter(&mockManager{}, tokens)

		req := httptest.NewRequest(http.MethodGet, "/webhook/sms/whk_abc/status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"inactive"`)
	})

	t.Run("unknown token", func(t *testing.T) {
		router := webhookRouter(&mockManager{}, &mockTokens{})

		req := httptest.NewRequest(http.MethodGet, "/webhook/sms/whk_nope/status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWebhookTest(t *testing.T) {
	t.Run("reports extraction without delivery", func(t *testing.T) {
		manager := &mockManager{}
		tokens := &mockTokens{processCode: "9999",
			validated: &models.WebhookToken{Token: "whk_abc"}}
		router := webhookRouter(manager, tokens)

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_abc/test",
			strings.NewReader(`{"message": "OTP 9999"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"otp_extracted":true`)
		// The dry run must never reach the manager's delivery path.
		assert.Empty(t, manager.lastToken)
		assert.Nil(t, manager.lastPayload)
	})

	t.Run("empty body uses sample payload", func(t *testing.T) {
		tokens := &mockTokens{processCode: "123456",
			validated: &models.WebhookToken{Token: "whk_abc"}}
		router := webhookRouter(&mockManager{}, tokens)

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_abc/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(tokens.lastPayload), "123456")
	})

	t.Run("unknown token", func(t *testing.T) {
		router := webhookRouter(&mockManager{}, &mockTokens{processErr: services.ErrTokenInvalid})

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_nope/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed payload", func(t *testing.T) {
		router := webhookRouter(&mockManager{}, &mockTokens{processErr: models.ErrNoMessageField})

		req := httptest.NewRequest(http.MethodPost, "/webhook/sms/whk_abc/test",
			strings.NewReader(`{"from": "+90555"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookTestDoesNotWakeWaiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := services.NewSessionRegistry(time.Minute)
	tokens := services.NewWebhookTokenService(services.NewSMSPatternMatcher(), nil, "http://localhost:8080")
	manager := services.NewOTPManager(registry, tokens, services.NewSMSPatternMatcher(), nil, time.Second)

	token := tokens.Generate()
	_, err := tokens.Register(token, "acct-1", "+905551234567")
	require.NoError(t, err)

	sessionID, err := manager.StartSession("acct-1")
	require.NoError(t, err)

	h := NewWebhookHandler(manager, tokens)
	r := gin.New()
	r.POST("/webhook/sms/:token/test", h.Test)

	req := httptest.NewRequest(http.MethodPost, "/webhook/sms/"+token+"/test",
		strings.NewReader(`{"message": "OTP 9999"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"otp_extracted":true`)

	// The linked session must still be waiting, with no code stored.
	code, ok := manager.WaitForOTP(sessionID, 50*time.Millisecond)
	assert.False(t, ok)
	assert.Empty(t, code)
	session := registry.Get(sessionID)
	require.NotNil(t, session)
	assert.Empty(t, session.ReceivedCode)
}
