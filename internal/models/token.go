package models

import "time"

// WebhookToken is a long-lived, revocable delivery handle for one
// external account. The token string stands in for the account's real
// phone number on the public webhook URL.
type WebhookToken struct {
	Token       string    `json:"token"`
	AccountID   string    `json:"account_id"`
	PhoneNumber string    `json:"phone_number"`
	SessionID   string    `json:"session_id,omitempty"`
	WebhookURL  string    `json:"webhook_url"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	IsActive    bool      `json:"is_active"`
}
