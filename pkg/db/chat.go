package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChatQueries persists follow-up conversations about a sentiment analysis.
type ChatQueries struct {
	db  *sql.DB
	now func() time.Time
}

// ChatSession is one conversation. SentimentAnalysisID is zero when the
// analysis it was opened on no longer exists.
type ChatSession struct {
	SessionID           string
	Ticker              string
	Period              string
	SentimentAnalysisID int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ExpiresAt           time.Time
}

// ChatMessage is one turn; MessageType is "user" or "assistant".
type ChatMessage struct {
	ID          int64          `json:"id"`
	SessionID   string         `json:"-"`
	MessageType string         `json:"message_type"`
	Content     string         `json:"content"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CreateChatSession inserts s. CreatedAt and UpdatedAt default to now.
func (q *ChatQueries) CreateChatSession(ctx context.Context, s ChatSession) error {
	now := q.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	var analysis sql.NullInt64
	if s.SentimentAnalysisID > 0 {
		analysis = sql.NullInt64{Int64: s.SentimentAnalysisID, Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_id, ticker, period, sentiment_analysis_id, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.SessionID, strings.ToUpper(s.Ticker), s.Period, analysis,
		s.CreatedAt.UnixMilli(), s.UpdatedAt.UnixMilli(), s.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

// GetChatSession returns an unexpired session or ErrNotFound.
func (q *ChatQueries) GetChatSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT session_id, ticker, period, COALESCE(sentiment_analysis_id, 0), created_at, updated_at, expires_at
		FROM chat_sessions
		WHERE session_id = ? AND expires_at > ?
	`, sessionID, q.now().UnixMilli())

	var (
		s                         ChatSession
		created, updated, expires int64
	)
	if err := row.Scan(&s.SessionID, &s.Ticker, &s.Period, &s.SentimentAnalysisID, &created, &updated, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query chat session: %w", err)
	}
	s.CreatedAt = time.UnixMilli(created)
	s.UpdatedAt = time.UnixMilli(updated)
	s.ExpiresAt = time.UnixMilli(expires)
	return &s, nil
}

// AddChatMessage appends m to its session and touches the session.
func (q *ChatQueries) AddChatMessage(ctx context.Context, m ChatMessage) (*ChatMessage, error) {
	now := q.now()
	meta, err := json.Marshal(m.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode chat meta: %w", err)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, message_type, content, meta, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.SessionID, m.MessageType, m.Content, string(meta), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE session_id = ?`,
		now.UnixMilli(), m.SessionID); err != nil {
		return nil, fmt.Errorf("touch chat session: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	m.CreatedAt = now
	return &m, nil
}

// ChatHistory returns up to limit messages of a session, oldest first.
func (q *ChatQueries) ChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, session_id, message_type, content, COALESCE(meta, ''), created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var (
			m       ChatMessage
			meta    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MessageType, &m.Content, &meta, &created); err != nil {
			return nil, err
		}
		if meta != "" && meta != "null" {
			_ = json.Unmarshal([]byte(meta), &m.Meta)
		}
		m.CreatedAt = time.UnixMilli(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CleanupExpiredChats deletes expired sessions with their messages and
// returns how many sessions went.
func (q *ChatQueries) CleanupExpiredChats(ctx context.Context) (int64, error) {
	cutoff := q.now().UnixMilli()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE session_id IN (SELECT session_id FROM chat_sessions WHERE expires_at <= ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("purge chat messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE expires_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge chat sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}
