package services

import (
	"context"
	"sync"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"go.uber.org/zap"
)

// MailTransport is the connection the listener owns. The production
// implementation is IMAPTransport; tests substitute a fake.
type MailTransport interface {
	// Connect establishes and authenticates a fresh connection,
	// selecting the configured folder.
	Connect(ctx context.Context) error
	// Noop sends a keepalive on the live connection.
	Noop() error
	// SearchRecent returns ids of unseen messages received since the
	// given cutoff.
	SearchRecent(since time.Time) ([]string, error)
	// Fetch retrieves the full raw message for an id.
	Fetch(id string) ([]byte, error)
	// Close logs out and tears the connection down. Safe to call on a
	// dead connection.
	Close() error
}

// ListenerConfig carries the poll-loop tuning knobs.
type ListenerConfig struct {
	PollInterval         time.Duration
	KeepaliveInterval    time.Duration
	RecencyWindow        time.Duration
	DedupMax             int
	BackoffFloor         time.Duration
	BackoffCeiling       time.Duration
	MaxConsecutiveErrors int
}

// ListenerStats is a point-in-time health snapshot.
type ListenerStats struct {
	Connected  bool `json:"connected"`
	Reconnects int  `json:"reconnects"`
	Stopped    bool `json:"stopped"`
}

// MailboxListener is the long-running poll loop that owns one mail
// connection. Each cycle it searches for unseen recent messages,
// fetches the ones not yet in the dedup window, runs them through the
// email processor and notifies the matching session. Connection
// failures reconnect with doubling backoff; five consecutive failures
// stop the listener for good.
type MailboxListener struct {
	transport MailTransport
	processor *EmailProcessor
	registry  *SessionRegistry
	cfg       ListenerConfig
	processed *dedupSet

	mu         sync.Mutex
	connected  bool
	reconnects int
	stopped    bool
}

// NewMailboxListener wires a listener. Zero config fields get sane
// defaults so tests can set only what they exercise.
func NewMailboxListener(transport MailTransport, processor *EmailProcessor, registry *SessionRegistry, cfg ListenerConfig) *MailboxListener {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 30 * time.Second
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = 24 * time.Hour
	}
	if cfg.DedupMax <= 0 {
		cfg.DedupMax = 1000
	}
	if cfg.BackoffFloor <= 0 {
		cfg.BackoffFloor = 5 * time.Second
	}
	if cfg.BackoffCeiling < cfg.BackoffFloor {
		cfg.BackoffCeiling = 5 * time.Minute
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 5
	}

	return &MailboxListener{
		transport: transport,
		processor: processor,
		registry:  registry,
		cfg:       cfg,
		processed: newDedupSet(cfg.DedupMax),
	}
}

// Run drives the listener until the context is cancelled or the
// consecutive-error limit is reached. It always attempts to close
// the connection on the way out, even after abnormal loop exits.
func (l *MailboxListener) Run(ctx context.Context) {
	defer l.setStopped()

	backoff := l.cfg.BackoffFloor
	consecutive := 0

	for ctx.Err() == nil {
		if err := l.transport.Connect(ctx); err != nil {
			consecutive++
			logger.Warn("Mailbox connect failed",
				zap.Error(err),
				zap.Int("consecutive_errors", consecutive),
				zap.Duration("backoff", backoff),
			)
			if consecutive >= l.cfg.MaxConsecutiveErrors {
				logger.Error("Mailbox listener giving up after repeated failures",
					zap.Int("consecutive_errors", consecutive))
				return
			}
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = minDuration(backoff*2, l.cfg.BackoffCeiling)
			continue
		}

		// Successful connection resets the backoff to the floor.
		backoff = l.cfg.BackoffFloor
		l.setConnected(true)
		logger.Info("Mailbox connected")

		err := l.pollLoop(ctx, &consecutive)

		l.setConnected(false)
		if closeErr := l.transport.Close(); closeErr != nil {
			logger.Debug("Mailbox close failed", zap.Error(closeErr))
		}

		if ctx.Err() != nil {
			return
		}

		consecutive++
		logger.Warn("Mailbox connection lost, reconnecting",
			zap.Error(err),
			zap.Int("consecutive_errors", consecutive),
		)
		if consecutive >= l.cfg.MaxConsecutiveErrors {
			logger.Error("Mailbox listener giving up after repeated failures",
				zap.Int("consecutive_errors", consecutive))
			return
		}

		l.bumpReconnects()
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = minDuration(backoff*2, l.cfg.BackoffCeiling)
	}
}

// pollLoop runs fetch-and-process cycles on a live connection. It
// returns a non-nil error on connection-level failures, which forces a
// reconnect; per-message failures are absorbed inside the cycle.
func (l *MailboxListener) pollLoop(ctx context.Context, consecutive *int) error {
	lastKeepalive := time.Now()

	for {
		if !sleepCtx(ctx, l.cfg.PollInterval) {
			return ctx.Err()
		}

		if time.Since(lastKeepalive) >= l.cfg.KeepaliveInterval {
			if err := l.transport.Noop(); err != nil {
				return err
			}
			lastKeepalive = time.Now()
		}

		cutoff := time.Now().Add(-l.cfg.RecencyWindow)
		ids, err := l.transport.SearchRecent(cutoff)
		if err != nil {
			return err
		}

		// A full successful cycle clears the error streak.
		*consecutive = 0

		for _, id := range ids {
			if l.processed.Contains(id) {
				continue
			}
			l.processed.Add(id)
			l.handleMessage(id)
		}
	}
}

// handleMessage fetches and processes one message. Fetch failures put
// the id back up for retry on the next cycle; extraction misses and
// unknown recipients are normal and leave the id marked processed.
func (l *MailboxListener) handleMessage(id string) {
	raw, err := l.transport.Fetch(id)
	if err != nil {
		l.processed.Remove(id)
		logger.Warn("Message fetch failed, will retry",
			zap.String("message_id", id),
			zap.Error(err),
		)
		return
	}

	entry := l.processor.Process(raw)
	if entry == nil {
		logger.Debug("Message yielded no code", zap.String("message_id", id))
		return
	}

	session := l.registry.FindByEmail(entry.TargetIdentifier)
	if session == nil {
		logger.Debug("No session waiting for recipient",
			zap.String("recipient", entry.TargetIdentifier))
		return
	}

	if l.registry.Notify(session.SessionID, entry.Code) {
		logger.Info("Delivered email code to session",
			zap.String("session_id", session.SessionID),
			zap.String("recipient", entry.TargetIdentifier),
		)
	}
}

// Stats returns a health snapshot for the orchestrator.
func (l *MailboxListener) Stats() ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ListenerStats{
		Connected:  l.connected,
		Reconnects: l.reconnects,
		Stopped:    l.stopped,
	}
}

func (l *MailboxListener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}

func (l *MailboxListener) bumpReconnects() {
	l.mu.Lock()
	l.reconnects++
	l.mu.Unlock()
}

func (l *MailboxListener) setStopped() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
}

// sleepCtx waits for d, returning false if the context fired first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
