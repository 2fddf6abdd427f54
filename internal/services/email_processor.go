package services

import (
	"bytes"
	"io"
	netmail "net/mail"
	"regexp"
	"strings"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/models"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

// recipientHeaders are checked in priority order. The mailbox is a
// catch-all: many logical addresses route through one physical inbox,
// so the envelope recipient has to be recovered from headers.
var recipientHeaders = []string{"To", "Delivered-To", "X-Original-To"}

var (
	scriptRe = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// EmailProcessor converts a raw mail message into a normalized OTP
// observation: the addressed recipient plus the extracted code.
type EmailProcessor struct {
	matcher *PatternMatcher
}

// NewEmailProcessor creates a processor using the given rule set.
func NewEmailProcessor(matcher *PatternMatcher) *EmailProcessor {
	return &EmailProcessor{matcher: matcher}
}

// Process returns the entry for a message, or nil when no recipient or
// no code is found. Malformed MIME never aborts: decode failures
// degrade to an empty body and the message simply yields no entry.
func (p *EmailProcessor) Process(raw []byte) *models.OTPEntry {
	recipient := extractRecipient(raw)
	if recipient == "" {
		return nil
	}

	subject, body := extractContent(raw)

	text := subject + "\n" + body
	code, ok := p.matcher.Extract(text)
	if !ok {
		return nil
	}

	logger.Debug("Extracted code from email",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
	)
	return models.NewOTPEntry(code, models.SourceEmail, recipient, text)
}

// extractRecipient returns the first parseable RFC 5322 address from
// the priority header list, lower-cased.
func extractRecipient(raw []byte) string {
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	for _, name := range recipientHeaders {
		value := msg.Header.Get(name)
		if value == "" {
			continue
		}
		addrs, err := netmail.ParseAddressList(value)
		if err != nil || len(addrs) == 0 {
			continue
		}
		return strings.ToLower(addrs[0].Address)
	}
	return ""
}

// extractContent returns the decoded subject and the preferred body:
// first text/plain part, else first text/html stripped to plain text.
// Attachments are skipped. Any decode failure degrades to what was
// recovered so far.
func extractContent(raw []byte) (subject, body string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Headers may still be readable even when MIME parsing fails.
		if msg, herr := netmail.ReadMessage(bytes.NewReader(raw)); herr == nil {
			subject = msg.Header.Get("Subject")
		}
		return subject, ""
	}

	subject, _ = mr.Header.Subject()

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Debug("Stopping MIME walk on decode error", zap.Error(err))
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue // attachment
		}

		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}

		switch contentType {
		case "text/plain":
			if plain == "" {
				if data, err := io.ReadAll(part.Body); err == nil {
					plain = string(data)
				}
			}
		case "text/html":
			if html == "" {
				if data, err := io.ReadAll(part.Body); err == nil {
					html = string(data)
				}
			}
		}

		if plain != "" {
			break // preferred body found, no need to read further parts
		}
	}

	if plain != "" {
		return subject, plain
	}
	return subject, stripHTML(html)
}

// stripHTML reduces an HTML body to text: script and style blocks are
// dropped entirely, remaining tags become spaces.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}
	text := scriptRe.ReplaceAllString(html, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
