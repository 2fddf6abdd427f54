package models

import "time"

// SessionState tracks where a waiting automation run is in its lifecycle.
type SessionState string

const (
	SessionActive      SessionState = "ACTIVE"
	SessionWaitingOTP  SessionState = "WAITING_OTP"
	SessionOTPReceived SessionState = "OTP_RECEIVED"
	SessionExpired     SessionState = "EXPIRED"
)

// OTPSession represents one automation run waiting for a passcode.
// Wake is a one-shot signal: it is closed exactly once, under the
// registry lock, when a code arrives. Receivers that find ReceivedCode
// already set must not wait on it.
type OTPSession struct {
	SessionID    string            `json:"session_id"`
	TargetEmail  string            `json:"target_email,omitempty"`
	PhoneNumber  string            `json:"phone_number,omitempty"`
	Country      string            `json:"country,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	State        SessionState      `json:"state"`
	CreatedAt    time.Time         `json:"created_at"`
	ReceivedCode string            `json:"received_code,omitempty"`
	Wake         chan struct{}     `json:"-"`
}

// ExpiredBy reports whether the session is older than the given timeout.
func (s *OTPSession) ExpiredBy(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.CreatedAt) > timeout
}
