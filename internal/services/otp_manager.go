package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/models"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrNoIdentifier indicates a session registration with neither an
	// email nor a phone number. This is the one place the invariant is
	// enforced; the registry itself accepts identifier-less sessions.
	ErrNoIdentifier = errors.New("at least one of email or phone number is required")

	// ErrSessionNotFound indicates an unknown session id on an
	// operation that needs one.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAccountNotRegistered indicates an account with no active
	// webhook token.
	ErrAccountNotRegistered = errors.New("account has no registered webhook token")
)

// HealthStatus is the operational snapshot returned by HealthCheck.
type HealthStatus struct {
	ListenerConnected  bool `json:"listener_connected"`
	ListenerReconnects int  `json:"listener_reconnects"`
	ListenerStopped    bool `json:"listener_stopped"`
	ActiveSessions     int  `json:"active_sessions"`
}

// OTPManager is the orchestrator: it composes the session registry,
// the webhook token service and the mailbox listener into the public
// surface the automation runs and the HTTP handlers use. It holds no
// state of its own beyond its collaborators; the registry and token
// locks are taken sequentially, never nested.
type OTPManager struct {
	registry           *SessionRegistry
	tokens             *WebhookTokenService
	smsMatcher         *PatternMatcher
	listener           *MailboxListener // may be nil when mail polling is disabled
	defaultWaitTimeout time.Duration
}

// NewOTPManager wires the orchestrator.
func NewOTPManager(registry *SessionRegistry, tokens *WebhookTokenService, smsMatcher *PatternMatcher, listener *MailboxListener, defaultWaitTimeout time.Duration) *OTPManager {
	if defaultWaitTimeout <= 0 {
		defaultWaitTimeout = 2 * time.Minute
	}
	return &OTPManager{
		registry:           registry,
		tokens:             tokens,
		smsMatcher:         smsMatcher,
		listener:           listener,
		defaultWaitTimeout: defaultWaitTimeout,
	}
}

// RegisterSession creates a waiting session. At least one of email or
// phone must be present.
func (m *OTPManager) RegisterSession(email, phone, country string, metadata map[string]string) (string, error) {
	if email == "" && phone == "" {
		return "", ErrNoIdentifier
	}
	session := m.registry.Register(email, phone, country, metadata)
	logger.Info("Registered OTP session",
		zap.String("session_id", session.SessionID),
		zap.String("email", session.TargetEmail),
		zap.String("phone", session.PhoneNumber),
	)
	return session.SessionID, nil
}

// UnregisterSession removes a session, reporting whether it existed.
func (m *OTPManager) UnregisterSession(sessionID string) bool {
	m.tokens.UnlinkBySession(sessionID)
	return m.registry.Unregister(sessionID)
}

// WaitForOTP blocks until the session's code arrives or the timeout
// elapses. If a code was already delivered it returns immediately;
// this fast path also closes the notify-before-wait race. A timeout
// marks the session EXPIRED but does not destroy it; the caller still
// owns the unregister. A zero timeout selects the configured default.
func (m *OTPManager) WaitForOTP(sessionID string, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		timeout = m.defaultWaitTimeout
	}

	// Fast path: code already stored, including a second call after a
	// previous successful wait.
	if code, ok := m.registry.CodeFor(sessionID); ok {
		return code, true
	}

	session := m.registry.MarkWaiting(sessionID)
	if session == nil {
		return "", false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-session.Wake:
		if code, ok := m.registry.CodeFor(sessionID); ok {
			return code, true
		}
		return "", false
	case <-timer.C:
		m.registry.MarkExpired(sessionID)
		logger.Debug("Wait for OTP timed out",
			zap.String("session_id", sessionID),
			zap.Duration("timeout", timeout),
		)
		return "", false
	}
}

// WebhookResult is what the webhook HTTP handler reports back.
type WebhookResult struct {
	AccountID    string `json:"account_id"`
	OTPExtracted bool   `json:"otp_extracted"`
	SessionID    string `json:"session_id,omitempty"`
}

// ProcessSMSWebhook handles an inbound webhook hit: token validation
// and extraction in the token service, then routing to the linked
// session, falling back to a phone-number lookup when no session is
// linked. Returns ErrTokenInvalid for unknown/revoked tokens and the
// payload parse error for malformed bodies.
func (m *OTPManager) ProcessSMSWebhook(token string, rawPayload []byte) (*WebhookResult, error) {
	code, record, err := m.tokens.Process(token, rawPayload)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{AccountID: record.AccountID}
	if code == "" {
		return result, nil
	}
	result.OTPExtracted = true

	sessionID := record.SessionID
	if sessionID == "" {
		if session := m.registry.FindByPhone(record.PhoneNumber); session != nil {
			sessionID = session.SessionID
		}
	}
	if sessionID == "" {
		logger.Debug("Extracted SMS code has no listening session",
			zap.String("account_id", record.AccountID))
		return result, nil
	}

	if m.registry.Notify(sessionID, code) {
		result.SessionID = sessionID
		logger.Info("Delivered SMS code to session",
			zap.String("session_id", sessionID),
			zap.String("account_id", record.AccountID),
		)
	}
	return result, nil
}

// ProcessSMS is the programmatic ingestion path: the identifier is
// either a webhook token or a raw phone number (tokens are prefixed,
// so the namespaces cannot collide). Returns the extracted code and
// whether a session was notified.
func (m *OTPManager) ProcessSMS(identifier, message string) (string, bool) {
	if strings.HasPrefix(identifier, TokenPrefix) {
		payload, _ := json.Marshal(map[string]string{"message": message})
		result, err := m.ProcessSMSWebhook(identifier, payload)
		if err != nil || !result.OTPExtracted {
			return "", false
		}
		return m.codeIfDelivered(result.SessionID)
	}

	code, found := m.smsMatcher.Extract(message)
	if !found {
		return "", false
	}
	session := m.registry.FindByPhone(identifier)
	if session == nil {
		return "", false
	}
	if !m.registry.Notify(session.SessionID, code) {
		return "", false
	}
	return code, true
}

func (m *OTPManager) codeIfDelivered(sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	return m.registry.CodeFor(sessionID)
}

// ManualOTPInput is the operator override: it injects a code into a
// session directly, bypassing both channels.
func (m *OTPManager) ManualOTPInput(sessionID, code string) error {
	if code == "" {
		return errors.New("code is required")
	}
	entry := models.NewOTPEntry(code, models.SourceManual, sessionID, "")
	if !m.registry.Notify(sessionID, entry.Code) {
		return ErrSessionNotFound
	}
	logger.Info("Manual OTP input accepted", zap.String("session_id", sessionID))
	return nil
}

// StartSession registers a session for a persistent account and links
// the account's webhook token to it in one step.
func (m *OTPManager) StartSession(accountID string) (string, error) {
	record := m.tokens.FindByAccount(accountID)
	if record == nil {
		return "", ErrAccountNotRegistered
	}

	sessionID, err := m.RegisterSession("", record.PhoneNumber, "", map[string]string{"account_id": accountID})
	if err != nil {
		return "", err
	}

	if err := m.tokens.LinkSession(record.Token, sessionID); err != nil {
		m.registry.Unregister(sessionID)
		return "", err
	}
	return sessionID, nil
}

// EndSession unlinks the session from any token and unregisters it.
func (m *OTPManager) EndSession(sessionID string) error {
	m.tokens.UnlinkBySession(sessionID)
	if !m.registry.Unregister(sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

// RunSweeper periodically removes expired sessions until the context
// is cancelled.
func (m *OTPManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.registry.CleanupExpired()
		}
	}
}

// HealthCheck reports listener connectivity and session counts.
func (m *OTPManager) HealthCheck() HealthStatus {
	status := HealthStatus{
		ActiveSessions: m.registry.Count(),
	}
	if m.listener != nil {
		stats := m.listener.Stats()
		status.ListenerConnected = stats.Connected
		status.ListenerReconnects = stats.Reconnects
		status.ListenerStopped = stats.Stopped
	}
	return status
}
