package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
)

// IMAPTransport is the production MailTransport: one TLS connection to
// an IMAP server, authenticated with address + app password.
type IMAPTransport struct {
	Host     string
	Port     int
	Address  string
	Password string
	Folder   string

	client *imapclient.Client
}

// NewIMAPTransport builds a transport; the connection is not opened
// until Connect.
func NewIMAPTransport(host string, port int, address, password, folder string) *IMAPTransport {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPTransport{
		Host:     host,
		Port:     port,
		Address:  address,
		Password: password,
		Folder:   folder,
	}
}

// Connect dials, authenticates and selects the folder. Any prior
// connection is discarded first.
func (t *IMAPTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.client != nil {
		_ = t.client.Close()
		t.client = nil
	}

	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	logger.Debug("Dialing IMAP server", zap.String("address", addr))

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := client.Login(t.Address, t.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("IMAP login failed: %w", err)
	}

	if _, err := client.Select(t.Folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return fmt.Errorf("failed to select %s: %w", t.Folder, err)
	}

	t.client = client
	return nil
}

// Noop sends the keepalive no-op.
func (t *IMAPTransport) Noop() error {
	if t.client == nil {
		return fmt.Errorf("not connected")
	}
	return t.client.Noop().Wait()
}

// SearchRecent returns UIDs of unseen messages received since the
// cutoff. The server compares Since at date granularity (the protocol
// sends a dd-Mon-yyyy date), which is fine for a recency window meant
// to skip stale backlog.
func (t *IMAPTransport) SearchRecent(since time.Time) ([]string, error) {
	if t.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	criteria := &imap.SearchCriteria{
		Since:   since,
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := t.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	uids := data.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// Fetch retrieves the full raw RFC 822 message for a UID.
func (t *IMAPTransport) Fetch(id string) ([]byte, error) {
	if t.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	options := &imap.FetchOptions{
		UID: true,
		BodySection: []*imap.FetchItemBodySection{
			{Specifier: imap.PartSpecifierNone}, // full message
		},
	}

	cmd := t.client.Fetch(imap.UIDSetNum(imap.UID(uid)), options)

	var raw []byte
	var readErr error
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			section, ok := item.(imapclient.FetchItemDataBodySection)
			if !ok {
				continue
			}
			data, err := io.ReadAll(section.Literal)
			if err != nil {
				readErr = err
				continue
			}
			raw = data
		}
	}

	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read message body: %w", readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return raw, nil
}

// Close logs out, falling back to a hard close if the server does not
// answer. Safe on an already-dead connection.
func (t *IMAPTransport) Close() error {
	if t.client == nil {
		return nil
	}
	client := t.client
	t.client = nil

	if err := client.Logout().Wait(); err != nil {
		_ = client.Close()
		return err
	}
	return nil
}
