package handlers

import (
	"errors"
	"net/http"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"

	"github.com/gin-gonic/gin"
)

type RegisterTokenRequest struct {
	AccountID   string `json:"account_id"`
	PhoneNumber string `json:"phone_number"`
}

// TokenHandler serves the operator-facing webhook token API
type TokenHandler struct {
	tokens TokenServiceInterface
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(tokens TokenServiceInterface) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// Register issues and persists a webhook token for an account
func (h *TokenHandler) Register(c *gin.Context) {
	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.AccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account ID is required"})
		return
	}

	token := h.tokens.Generate()
	record, err := h.tokens.Register(token, req.AccountID, req.PhoneNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":       record.Token,
		"webhook_url": record.WebhookURL,
	})
}

// Revoke permanently deactivates a token
func (h *TokenHandler) Revoke(c *gin.Context) {
	if err := h.tokens.Revoke(c.Param("token")); err != nil {
		if errors.Is(err, services.ErrTokenInvalid) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
