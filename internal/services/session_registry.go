package services

import (
	"strings"
	"sync"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/models"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRegistry is the concurrent-safe store of waiting sessions. It
// holds the primary map keyed by session id plus secondary indices by
// email and phone number. All reads and writes go through one mutex so
// concurrent register/unregister never produce torn views.
type SessionRegistry struct {
	mu             sync.Mutex
	sessions       map[string]*models.OTPSession
	byEmail        map[string]string // lower-cased email -> session id
	byPhone        map[string]string // exact phone string -> session id
	sessionTimeout time.Duration
}

// NewSessionRegistry creates a registry with the given session timeout.
func NewSessionRegistry(sessionTimeout time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:       make(map[string]*models.OTPSession),
		byEmail:        make(map[string]string),
		byPhone:        make(map[string]string),
		sessionTimeout: sessionTimeout,
	}
}

// Register creates a session and indexes it. Registering an email or
// phone that is already mapped displaces the previous mapping (last
// registration wins, supporting session replacement); the displaced
// session stays reachable by id and the displacement is logged.
func (r *SessionRegistry) Register(email, phone, country string, metadata map[string]string) *models.OTPSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := &models.OTPSession{
		SessionID:   uuid.NewString(),
		TargetEmail: strings.ToLower(email),
		PhoneNumber: phone,
		Country:     country,
		Metadata:    metadata,
		State:       models.SessionActive,
		CreatedAt:   time.Now(),
		Wake:        make(chan struct{}),
	}

	if session.TargetEmail != "" {
		if prev, ok := r.byEmail[session.TargetEmail]; ok {
			logger.Warn("Email mapping displaced by re-registration",
				zap.String("email", session.TargetEmail),
				zap.String("previous_session_id", prev),
				zap.String("session_id", session.SessionID),
			)
		}
		r.byEmail[session.TargetEmail] = session.SessionID
	}
	if session.PhoneNumber != "" {
		if prev, ok := r.byPhone[session.PhoneNumber]; ok {
			logger.Warn("Phone mapping displaced by re-registration",
				zap.String("phone", session.PhoneNumber),
				zap.String("previous_session_id", prev),
				zap.String("session_id", session.SessionID),
			)
		}
		r.byPhone[session.PhoneNumber] = session.SessionID
	}

	r.sessions[session.SessionID] = session
	return session
}

// Unregister removes a session and its index entries. Returns false if
// the id is unknown.
func (r *SessionRegistry) Unregister(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(sessionID)
}

// removeLocked drops a session and any index entries that still point
// at it. An index entry displaced by a later registration belongs to
// that later session and is left alone.
func (r *SessionRegistry) removeLocked(sessionID string) bool {
	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	delete(r.sessions, sessionID)
	if session.TargetEmail != "" && r.byEmail[session.TargetEmail] == sessionID {
		delete(r.byEmail, session.TargetEmail)
	}
	if session.PhoneNumber != "" && r.byPhone[session.PhoneNumber] == sessionID {
		delete(r.byPhone, session.PhoneNumber)
	}
	return true
}

// Get returns the session for an id, or nil.
func (r *SessionRegistry) Get(sessionID string) *models.OTPSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// FindByEmail looks up a session by target email, case-insensitively.
func (r *SessionRegistry) FindByEmail(email string) *models.OTPSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil
	}
	return r.sessions[id]
}

// FindByPhone looks up a session by exact phone string. No
// normalization: callers pass E.164 throughout.
func (r *SessionRegistry) FindByPhone(phone string) *models.OTPSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return nil
	}
	return r.sessions[id]
}

// Notify stores the code, marks the session OTP_RECEIVED and wakes the
// waiter. Returns false for unknown ids, which is a frequent, normal
// outcome for unrelated traffic. A second notify for the same session
// is a no-op: the wake channel is closed at most once. EXPIRED is
// terminal: a code arriving after a wait timed out is dropped, the
// caller must register a fresh session to retry.
func (r *SessionRegistry) Notify(sessionID, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	if session.State == models.SessionExpired {
		logger.Debug("Late code for expired session dropped",
			zap.String("session_id", sessionID))
		return false
	}

	if session.State == models.SessionOTPReceived {
		logger.Debug("Duplicate notify ignored", zap.String("session_id", sessionID))
		return true
	}

	session.ReceivedCode = code
	session.State = models.SessionOTPReceived
	close(session.Wake)
	return true
}

// MarkWaiting transitions a session to WAITING_OTP if it has not
// already reached a terminal state. Returns the session, or nil when
// the id is unknown.
func (r *SessionRegistry) MarkWaiting(sessionID string) *models.OTPSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	if session.State == models.SessionActive {
		session.State = models.SessionWaitingOTP
	}
	return session
}

// MarkExpired flags a timed-out wait. The session is not destroyed;
// the caller still owns its lifecycle and must unregister explicitly.
func (r *SessionRegistry) MarkExpired(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[sessionID]; ok && session.State != models.SessionOTPReceived {
		session.State = models.SessionExpired
	}
}

// CodeFor returns the received code for a session, if one has arrived.
// Reading under the registry lock keeps the fast path in WaitForOTP
// race-free against a concurrent Notify.
func (r *SessionRegistry) CodeFor(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok || session.ReceivedCode == "" {
		return "", false
	}
	return session.ReceivedCode, true
}

// CleanupExpired sweeps sessions older than the configured timeout and
// returns how many were removed.
func (r *SessionRegistry) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, session := range r.sessions {
		if session.ExpiredBy(now, r.sessionTimeout) {
			r.removeLocked(id)
			removed++
		}
	}

	if removed > 0 {
		logger.Info("Swept expired sessions", zap.Int("count", removed))
	}
	return removed
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
