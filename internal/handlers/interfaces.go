package handlers

import (
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/models"
	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"
)

// OTPManagerInterface defines the contract for session orchestration
// This interface is used for dependency injection and testing
type OTPManagerInterface interface {
	RegisterSession(email, phone, country string, metadata map[string]string) (string, error)
	UnregisterSession(sessionID string) bool
	WaitForOTP(sessionID string, timeout time.Duration) (string, bool)
	ProcessSMSWebhook(token string, rawPayload []byte) (*services.WebhookResult, error)
	ManualOTPInput(sessionID, code string) error
	StartSession(accountID string) (string, error)
	EndSession(sessionID string) error
	HealthCheck() services.HealthStatus
}

// TokenServiceInterface defines the contract for webhook token operations
// This interface is used for dependency injection and testing
type TokenServiceInterface interface {
	Generate() string
	Register(token, accountID, phoneNumber string) (*models.WebhookToken, error)
	Validate(token string) *models.WebhookToken
	Lookup(token string) *models.WebhookToken
	Process(token string, rawPayload []byte) (string, *models.WebhookToken, error)
	Revoke(token string) error
}
