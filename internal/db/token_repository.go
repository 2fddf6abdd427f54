package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/models"
)

// TokenRepository defines the interface for webhook-token persistence
type TokenRepository interface {
	Create(token *models.WebhookToken) error
	GetByToken(token string) (*models.WebhookToken, error)
	Update(token *models.WebhookToken) error
	ListActive() ([]*models.WebhookToken, error)
}

// tokenRepository implements TokenRepository over sqlite
type tokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *sql.DB) TokenRepository {
	return &tokenRepository{db: db}
}

// Create inserts a token record. The token string is the primary key,
// so a duplicate insert fails at the database as well as in memory.
func (r *tokenRepository) Create(token *models.WebhookToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}

	query := `
		INSERT INTO webhook_tokens (token, account_id, phone_number, session_id,
			webhook_url, created_at, last_used_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		token.Token,
		token.AccountID,
		token.PhoneNumber,
		token.SessionID,
		token.WebhookURL,
		token.CreatedAt.Unix(),
		token.LastUsedAt.Unix(),
		token.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

// GetByToken retrieves a token record, nil when absent.
func (r *tokenRepository) GetByToken(token string) (*models.WebhookToken, error) {
	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	query := `
		SELECT token, account_id, phone_number, session_id,
			webhook_url, created_at, last_used_at, is_active
		FROM webhook_tokens
		WHERE token = ?
	`

	record := &models.WebhookToken{}
	var createdAt, lastUsedAt int64
	err := r.db.QueryRow(query, token).Scan(
		&record.Token,
		&record.AccountID,
		&record.PhoneNumber,
		&record.SessionID,
		&record.WebhookURL,
		&createdAt,
		&lastUsedAt,
		&record.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	record.CreatedAt = time.Unix(createdAt, 0)
	record.LastUsedAt = time.Unix(lastUsedAt, 0)
	return record, nil
}

// Update persists mutable fields of a token record.
func (r *tokenRepository) Update(token *models.WebhookToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}

	query := `
		UPDATE webhook_tokens
		SET session_id = ?, last_used_at = ?, is_active = ?
		WHERE token = ?
	`

	result, err := r.db.Exec(query,
		token.SessionID,
		token.LastUsedAt.Unix(),
		token.IsActive,
		token.Token,
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("token not found: %s", token.Token)
	}

	return nil
}

// ListActive returns all tokens that can still validate. Used to
// rebuild the in-memory token map at startup.
func (r *tokenRepository) ListActive() ([]*models.WebhookToken, error) {
	query := `
		SELECT token, account_id, phone_number, session_id,
			webhook_url, created_at, last_used_at, is_active
		FROM webhook_tokens
		WHERE is_active = 1
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.WebhookToken
	for rows.Next() {
		record := &models.WebhookToken{}
		var createdAt, lastUsedAt int64
		if err := rows.Scan(
			&record.Token,
			&record.AccountID,
			&record.PhoneNumber,
			&record.SessionID,
			&record.WebhookURL,
			&createdAt,
			&lastUsedAt,
			&record.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		record.CreatedAt = time.Unix(createdAt, 0)
		record.LastUsedAt = time.Unix(lastUsedAt, 0)
		tokens = append(tokens, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}

	return tokens, nil
}
