package services

import (
	"fmt"
	"regexp"
)

// PatternMatcher extracts a numeric OTP from free text using an ordered
// rule list. Rules are compiled once at construction and evaluated in
// order; the first rule whose capture group matches wins. Order is a
// deliberate priority: vendor/locale phrasing beats generic "code:"
// phrasing, which beats a bare-digit fallback. No match is the normal
// outcome for unrelated traffic, not an error.
type PatternMatcher struct {
	rules []*regexp.Regexp
}

// EmailOTPPatterns is tuned for mail bodies: verbose text, so it
// requires exactly 6 digits to keep the false-positive rate down.
var EmailOTPPatterns = []string{
	`(?im)one[- ]?time\s+(?:password|passcode|code)\D{0,20}\b(\d{6})\b`,
	`(?im)tek\s+kullan[ıi]ml[ıi]k\s+[sş]ifre\D{0,20}\b(\d{6})\b`,
	`(?im)do[gğ]rulama\s+kodu\D{0,20}\b(\d{6})\b`,
	`(?im)verification\s+code\D{0,20}\b(\d{6})\b`,
	`(?im)\botp\b\D{0,20}\b(\d{6})\b`,
	`(?im)\b(?:code|kod|pin)\b\D{0,20}\b(\d{6})\b`,
	`(?m)\b(\d{6})\b`,
}

// SMSOTPPatterns accepts 4-6 digit codes but deliberately has no bare
// 4-digit fallback: short messages are full of prices, PINs and years.
var SMSOTPPatterns = []string{
	`(?im)tek\s+kullan[ıi]ml[ıi]k\s+[sş]ifre\D{0,20}\b(\d{4,6})\b`,
	`(?im)do[gğ]rulama\s+kodu\D{0,20}\b(\d{4,6})\b`,
	`(?im)verification\s+code\D{0,20}\b(\d{4,6})\b`,
	`(?im)\botp\b\D{0,20}\b(\d{4,6})\b`,
	`(?im)\b(?:code|kod|[sş]ifre)\b\D{0,20}\b(\d{4,6})\b`,
	`(?m)\b(\d{6})\b`,
}

// NewPatternMatcher compiles the given expressions, preserving order.
// Every expression must contain at least one capture group.
func NewPatternMatcher(exprs []string) (*PatternMatcher, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("at least one pattern is required")
	}

	rules := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %q has no capture group", expr)
		}
		rules = append(rules, re)
	}

	return &PatternMatcher{rules: rules}, nil
}

// NewEmailPatternMatcher returns the curated matcher for mail bodies.
func NewEmailPatternMatcher() *PatternMatcher {
	m, err := NewPatternMatcher(EmailOTPPatterns)
	if err != nil {
		panic(err) // curated patterns, compile failure is a programmer error
	}
	return m
}

// NewSMSPatternMatcher returns the curated matcher for SMS texts.
func NewSMSPatternMatcher() *PatternMatcher {
	m, err := NewPatternMatcher(SMSOTPPatterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Extract returns the first rule's captured code, or ok=false when no
// rule matches.
func (m *PatternMatcher) Extract(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range m.rules {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		for _, group := range match[1:] {
			if group != "" {
				return group, true
			}
		}
	}
	return "", false
}
