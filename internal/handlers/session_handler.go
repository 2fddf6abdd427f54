package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RegisterSessionRequest struct {
	Email       string            `json:"email"`
	PhoneNumber string            `json:"phone_number"`
	Country     string            `json:"country"`
	Metadata    map[string]string `json:"metadata"`
}

type WaitRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

type ManualOTPRequest struct {
	Code string `json:"code"`
}

// SessionHandler serves the operator-facing session API
type SessionHandler struct {
	manager OTPManagerInterface
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager OTPManagerInterface) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// Register creates a waiting session
func (h *SessionHandler) Register(c *gin.Context) {
	var req RegisterSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sessionID, err := h.manager.RegisterSession(req.Email, req.PhoneNumber, req.Country, req.Metadata)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session_id": sessionID})
}

// Unregister removes a session
func (h *SessionHandler) Unregister(c *gin.Context) {
	if !h.manager.UnregisterSession(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Wait blocks until the session's code arrives or the timeout elapses.
// A zero or absent timeout selects the server default; a timed-out wait
// is a 408 so pollers can distinguish it from a missing session.
func (h *SessionHandler) Wait(c *gin.Context) {
	sessionID := c.Param("id")

	var req WaitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	code, ok := h.manager.WaitForOTP(sessionID, time.Duration(req.TimeoutSeconds)*time.Second)
	if !ok {
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "No code received"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": code})
}

// ManualOTP injects a code read off a phone screen by an operator
func (h *SessionHandler) ManualOTP(c *gin.Context) {
	sessionID := c.Param("id")

	var req ManualOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code is required"})
		return
	}

	if err := h.manager.ManualOTPInput(sessionID, req.Code); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Info("Manual OTP submitted", zap.String("session_id", sessionID))
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Health is the public liveness and readiness probe
func (h *SessionHandler) Health(c *gin.Context) {
	status := h.manager.HealthCheck()
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"listener_connected":  status.ListenerConnected,
		"listener_reconnects": status.ListenerReconnects,
		"listener_stopped":    status.ListenerStopped,
		"active_sessions":     status.ActiveSessions,
	})
}
