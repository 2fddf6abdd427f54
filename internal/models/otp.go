package models

import "time"

// OTPSource identifies the channel an OTP observation arrived on.
type OTPSource string

const (
	SourceEmail  OTPSource = "EMAIL"
	SourceSMS    OTPSource = "SMS"
	SourceManual OTPSource = "MANUAL"
)

// rawDataLimit bounds the forensic copy kept on each entry.
const rawDataLimit = 256

// OTPEntry is a parsed, channel-tagged code observation. Entries are
// consumed immediately by the orchestrator and never persisted.
type OTPEntry struct {
	Code             string    `json:"code"`
	Source           OTPSource `json:"source"`
	TargetIdentifier string    `json:"target_identifier"`
	ReceivedAt       time.Time `json:"received_at"`
	RawData          string    `json:"raw_data,omitempty"`
}

// NewOTPEntry builds an entry, truncating the raw payload copy.
func NewOTPEntry(code string, source OTPSource, target, raw string) *OTPEntry {
	if len(raw) > rawDataLimit {
		raw = raw[:rawDataLimit]
	}
	return &OTPEntry{
		Code:             code,
		Source:           source,
		TargetIdentifier: target,
		ReceivedAt:       time.Now(),
		RawData:          raw,
	}
}
