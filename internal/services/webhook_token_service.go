package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/db"
	"github.com/akbyhakan/VFS-Bot1-sub000/internal/models"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"go.uber.org/zap"
)

// TokenPrefix namespaces webhook tokens so they can never collide with
// phone numbers in mixed-argument call sites.
const TokenPrefix = "whk_"

var (
	// ErrTokenExists indicates a registration collision, which is a
	// hard error: token strings must be globally unique at issuance.
	ErrTokenExists = errors.New("webhook token already registered")

	// ErrTokenInvalid indicates an unknown or revoked token. Validation
	// fails closed with this, never with a panic or a different error
	// per cause, so the hot path stays branch-free for callers.
	ErrTokenInvalid = errors.New("invalid or inactive webhook token")
)

// WebhookTokenService issues per-account delivery tokens, parses
// heterogeneous inbound SMS payloads and extracts codes from them. It
// deliberately has no registry dependency: routing the extracted code
// to a session is the orchestrator's job.
type WebhookTokenService struct {
	mu        sync.Mutex
	tokens    map[string]*models.WebhookToken
	byAccount map[string]string // account id -> token string
	matcher   *PatternMatcher
	repo      db.TokenRepository // nil in memory-only mode (tests)
	baseURL   string
}

// NewWebhookTokenService creates the service. repo may be nil, in
// which case tokens live only in memory.
func NewWebhookTokenService(matcher *PatternMatcher, repo db.TokenRepository, baseURL string) *WebhookTokenService {
	return &WebhookTokenService{
		tokens:    make(map[string]*models.WebhookToken),
		byAccount: make(map[string]string),
		matcher:   matcher,
		repo:      repo,
		baseURL:   baseURL,
	}
}

// LoadActive rebuilds the in-memory token map from persistence.
func (s *WebhookTokenService) LoadActive() error {
	if s.repo == nil {
		return nil
	}

	records, err := s.repo.ListActive()
	if err != nil {
		return fmt.Errorf("failed to load webhook tokens: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		// Linked sessions do not survive a restart; the registry is
		// memory-resident and rebuilt empty.
		record.SessionID = ""
		s.tokens[record.Token] = record
		s.byAccount[record.AccountID] = record.Token
	}
	logger.Info("Loaded webhook tokens", zap.Int("count", len(records)))
	return nil
}

// Generate produces a prefixed random token string. Uniqueness is
// checked at registration, not here.
func (s *WebhookTokenService) Generate() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in no state to
		// keep issuing credentials.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return TokenPrefix + hex.EncodeToString(buf)
}

// Register records a token for an account. A token string that was
// ever registered, even if since revoked, cannot be registered again.
func (s *WebhookTokenService) Register(token, accountID, phoneNumber string) (*models.WebhookToken, error) {
	if token == "" || accountID == "" {
		return nil, fmt.Errorf("token and account id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token]; exists {
		return nil, ErrTokenExists
	}

	now := time.Now()
	record := &models.WebhookToken{
		Token:       token,
		AccountID:   accountID,
		PhoneNumber: phoneNumber,
		WebhookURL:  s.baseURL + "/webhook/sms/" + token,
		CreatedAt:   now,
		LastUsedAt:  now,
		IsActive:    true,
	}

	if s.repo != nil {
		if err := s.repo.Create(record); err != nil {
			return nil, fmt.Errorf("failed to persist token: %w", err)
		}
	}

	s.tokens[token] = record
	s.byAccount[accountID] = token

	logger.Info("Registered webhook token",
		zap.String("account_id", accountID),
		zap.String("token", token),
	)
	snapshot := *record
	return &snapshot, nil
}

// Validate returns the token record, or nil for unknown and revoked
// tokens. It never returns an error: a wrong or replayed token is the
// common case on a public webhook URL.
func (s *WebhookTokenService) Validate(token string) *models.WebhookToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok || !record.IsActive {
		return nil
	}
	snapshot := *record
	return &snapshot
}

// Lookup returns the token record whether or not it is still active.
// Only tokens that were never registered come back nil; revoked tokens
// keep reporting their state for operator inspection.
func (s *WebhookTokenService) Lookup(token string) *models.WebhookToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil
	}
	snapshot := *record
	return &snapshot
}

// FindByAccount returns the account's token record, or nil.
func (s *WebhookTokenService) FindByAccount(accountID string) *models.WebhookToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byAccount[accountID]
	if !ok {
		return nil
	}
	record, ok := s.tokens[token]
	if !ok || !record.IsActive {
		return nil
	}
	snapshot := *record
	return &snapshot
}

// LinkSession points a token at a live session.
func (s *WebhookTokenService) LinkSession(token, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	return s.mutate(token, func(record *models.WebhookToken) {
		record.SessionID = sessionID
	})
}

// UnlinkSession clears the token's session binding.
func (s *WebhookTokenService) UnlinkSession(token string) error {
	return s.mutate(token, func(record *models.WebhookToken) {
		record.SessionID = ""
	})
}

// UnlinkBySession clears any token binding that points at the given
// session. Used when a session ends without the caller knowing which
// token was linked to it.
func (s *WebhookTokenService) UnlinkBySession(sessionID string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.tokens {
		if record.SessionID == sessionID {
			record.SessionID = ""
			s.persist(record)
		}
	}
}

// Revoke permanently deactivates a token. Idempotent: revoking an
// already-revoked token succeeds. The record stays for audit and the
// token string can never validate or be re-registered.
func (s *WebhookTokenService) Revoke(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return ErrTokenInvalid
	}
	if !record.IsActive {
		return nil
	}

	record.IsActive = false
	record.SessionID = ""
	s.persist(record)
	logger.Info("Revoked webhook token",
		zap.String("account_id", record.AccountID),
		zap.String("token", token),
	)
	return nil
}

// Process validates the token, normalizes the payload and extracts a
// code. LastUsedAt is touched on every valid-token hit, including
// extraction misses: the hit itself is telemetry. The caller gets the
// code and the token snapshot; delivering to a session is not done
// here.
func (s *WebhookTokenService) Process(token string, rawPayload []byte) (string, *models.WebhookToken, error) {
	s.mu.Lock()
	record, ok := s.tokens[token]
	if !ok || !record.IsActive {
		s.mu.Unlock()
		return "", nil, ErrTokenInvalid
	}
	record.LastUsedAt = time.Now()
	s.persist(record)
	snapshot := *record
	s.mu.Unlock()

	payload, err := models.ParseSMSPayload(rawPayload)
	if err != nil {
		return "", &snapshot, err
	}

	code, found := s.matcher.Extract(payload.Message)
	if !found {
		logger.Debug("No code in SMS payload",
			zap.String("account_id", snapshot.AccountID))
		return "", &snapshot, nil
	}

	return code, &snapshot, nil
}

// mutate applies fn to a live token under the lock and persists it.
func (s *WebhookTokenService) mutate(token string, fn func(*models.WebhookToken)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok || !record.IsActive {
		return ErrTokenInvalid
	}
	fn(record)
	s.persist(record)
	return nil
}

// persist is best effort for mutations: a storage hiccup must not
// break OTP delivery, so failures are logged and the in-memory state
// stays authoritative. Caller holds the lock.
func (s *WebhookTokenService) persist(record *models.WebhookToken) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(record); err != nil {
		logger.Warn("Failed to persist token update",
			zap.String("token", record.Token),
			zap.Error(err),
		)
	}
}
