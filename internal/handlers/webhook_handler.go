package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler serves the public SMS delivery surface. The token in
// the URL is the only authentication; unknown tokens get a 404 so the
// endpoint does not confirm which tokens exist.
type WebhookHandler struct {
	manager OTPManagerInterface
	tokens  TokenServiceInterface
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(manager OTPManagerInterface, tokens TokenServiceInterface) *WebhookHandler {
	return &WebhookHandler{manager: manager, tokens: tokens}
}

// ReceiveSMS handles an inbound SMS forwarded by a device
func (h *WebhookHandler) ReceiveSMS(c *gin.Context) {
	token := c.Param("token")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	result, err := h.manager.ProcessSMSWebhook(token, body)
	if err != nil {
		if errors.Is(err, services.ErrTokenInvalid) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		logger.Debug("Rejected webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	response := gin.H{
		"status":        "success",
		"account_id":    result.AccountID,
		"otp_extracted": result.OTPExtracted,
	}
	if result.SessionID != "" {
		response["session_id"] = result.SessionID
	}
	c.JSON(http.StatusOK, response)
}

// Status reports the token's full state, revoked tokens included. Only
// tokens that were never issued get a 404.
func (h *WebhookHandler) Status(c *gin.Context) {
	record := h.tokens.Lookup(c.Param("token"))
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	status := "active"
	if !record.IsActive {
		status = "inactive"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"account_id":   record.AccountID,
		"phone_number": record.PhoneNumber,
		"linked":       record.SessionID != "",
		"created_at":   record.CreatedAt.Unix(),
		"last_used_at": record.LastUsedAt.Unix(),
	})
}

// Test is a dry run: it validates the token and the payload shape and
// reports whether a code would have been extracted, without touching
// any session. The registry is never involved here; a test POST can
// never wake a waiter.
func (h *WebhookHandler) Test(c *gin.Context) {
	token := c.Param("token")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		body = []byte(`{"message": "Test verification code 123456"}`)
	}

	code, _, err := h.tokens.Process(token, body)
	if err != nil {
		if errors.Is(err, services.ErrTokenInvalid) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"otp_extracted": code != "",
	})
}
