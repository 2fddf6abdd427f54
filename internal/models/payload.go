package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNoMessageField is returned when an inbound payload carries none of
// the known message body fields.
var ErrNoMessageField = errors.New("payload has no message field")

// Field-name candidates per logical attribute, in priority order. The
// first populated candidate wins, independently per attribute. Forwarder
// apps disagree on naming, so these tables are the single place new
// variants get added.
var (
	messageFields   = []string{"message", "text", "body", "sms", "content", "msg"}
	phoneFields     = []string{"from", "phone", "phone_number", "sender", "number"}
	timestampFields = []string{"timestamp", "time", "date", "received_at"}
	simSlotFields   = []string{"sim_slot", "slot", "sim"}
)

// SMSPayload is the normalized form of an arbitrary inbound webhook body.
type SMSPayload struct {
	Message     string    `json:"message"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SimSlot     int       `json:"sim_slot,omitempty"`
	RawPayload  string    `json:"raw_payload,omitempty"`
}

// ParseSMSPayload normalizes a raw JSON object. It fails only when no
// message field is present; every other attribute is best effort.
func ParseSMSPayload(raw []byte) (*SMSPayload, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return NewSMSPayload(fields, string(raw))
}

// NewSMSPayload normalizes an already-decoded JSON object.
func NewSMSPayload(fields map[string]interface{}, raw string) (*SMSPayload, error) {
	msg := firstString(fields, messageFields)
	if msg == "" {
		return nil, ErrNoMessageField
	}

	p := &SMSPayload{
		Message:     msg,
		PhoneNumber: firstString(fields, phoneFields),
		Timestamp:   time.Now(),
		RawPayload:  raw,
	}
	if len(p.RawPayload) > rawDataLimit {
		p.RawPayload = p.RawPayload[:rawDataLimit]
	}

	if ts := firstString(fields, timestampFields); ts != "" {
		if parsed, ok := parseTimestamp(ts); ok {
			p.Timestamp = parsed
		}
	}

	if slot := firstString(fields, simSlotFields); slot != "" {
		if n, err := strconv.Atoi(slot); err == nil {
			p.SimSlot = n
		}
	}

	return p, nil
}

// firstString returns the first candidate present with a non-empty
// value, rendered as a string. Numbers arrive as float64 from
// encoding/json; integral values are printed without a fraction.
func firstString(fields map[string]interface{}, candidates []string) string {
	for _, name := range candidates {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val
			}
		case float64:
			if val == float64(int64(val)) {
				return strconv.FormatInt(int64(val), 10)
			}
			return strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(val)
		}
	}
	return ""
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Epoch seconds or milliseconds
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}
