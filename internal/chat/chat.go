// Package chat runs follow-up conversations about a finished sentiment
// analysis.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"market-dashboard/internal/data"
	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/monitor"
	"market-dashboard/internal/sentiment"
	"market-dashboard/pkg/db"
)

var (
	ErrSessionNotFound = errors.New("invalid or expired session")
	ErrEmptyMessage    = errors.New("message is required")
)

const (
	SessionTTL = 24 * time.Hour

	task           = "sentiment_chat"
	historyLimit   = 50
	contextTurns   = 10
	maxMessageLen  = 4000
	fallbackAnswer = "I'm sorry, I couldn't process that request."
)

// Store persists sessions and messages. *db.ChatQueries satisfies it.
type Store interface {
	CreateChatSession(ctx context.Context, s db.ChatSession) error
	GetChatSession(ctx context.Context, sessionID string) (*db.ChatSession, error)
	AddChatMessage(ctx context.Context, m db.ChatMessage) (*db.ChatMessage, error)
	ChatHistory(ctx context.Context, sessionID string, limit int) ([]db.ChatMessage, error)
	CleanupExpiredChats(ctx context.Context) (int64, error)
}

// Analyses looks up the analysis a session discusses. *db.CacheQueries
// satisfies it.
type Analyses interface {
	GetSentimentByID(ctx context.Context, id int64) (*db.SentimentEntry, error)
}

// Options wires a Service. Analyses and Metrics are optional.
type Options struct {
	Store    Store
	Analyses Analyses
	LLM      sentiment.LLM
	Model    string
	Metrics  *monitor.SystemMetrics
}

// Service opens sessions and answers messages.
type Service struct {
	opts Options
	now  func() time.Time
}

func NewService(opts Options) *Service {
	if opts.LLM == nil {
		opts.LLM = sentiment.MockLLM{}
	}
	if opts.Model == "" {
		opts.Model = sentiment.DefaultLLMModel
	}
	return &Service{opts: opts, now: time.Now}
}

// Reply is the assistant's answer to one message.
type Reply struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	MessageID int64  `json:"message_id"`
}

// CreateSession opens a session on analysisID. A missing analysis is not an
// error; the session then runs without its context.
func (s *Service) CreateSession(ctx context.Context, ticker, period string, analysisID int64) (string, error) {
	ticker = marketsession.Normalize(ticker)
	if ticker == "" {
		return "", data.ErrInvalidTicker
	}
	if period == "" {
		period = sentiment.DefaultPeriod
	}
	if !data.ValidPeriod(period) {
		return "", fmt.Errorf("%w: %s", data.ErrInvalidPeriod, period)
	}

	if n, err := s.opts.Store.CleanupExpiredChats(ctx); err != nil {
		log.Printf("chat: cleanup before create: %v", err)
	} else if n > 0 {
		log.Printf("chat: removed %d expired sessions", n)
	}

	if analysisID > 0 && s.analysis(ctx, analysisID) == nil {
		analysisID = 0
	}

	id := uuid.NewString()
	now := s.now()
	err := s.opts.Store.CreateChatSession(ctx, db.ChatSession{
		SessionID:           id,
		Ticker:              ticker,
		Period:              period,
		SentimentAnalysisID: analysisID,
		CreatedAt:           now,
		UpdatedAt:           now,
		ExpiresAt:           now.Add(SessionTTL),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Send stores message, asks the model with the analysis and the recent
// turns as context, and stores the answer.
func (s *Service) Send(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := s.opts.Store.ChatHistory(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, err
	}
	if _, err := s.opts.Store.AddChatMessage(ctx, db.ChatMessage{SessionID: sessionID, MessageType: "user", Content: message}); err != nil {
		return nil, err
	}

	start := s.now()
	comp, err := s.opts.LLM.Complete(ctx, sentiment.ChatRequest{
		Task:        task,
		Model:       s.opts.Model,
		Messages:    s.conversation(ctx, sess, history, message),
		Temperature: 0.3,
		MaxTokens:   800,
	})
	elapsed := s.now().Sub(start)
	if s.opts.Metrics != nil {
		s.opts.Metrics.SentimentLatency.RecordDuration(elapsed)
	}
	if err != nil {
		s.countError()
		return nil, err
	}
	if sentiment.IsErrorMarker(comp.Content) {
		s.countError()
		return nil, fmt.Errorf("%w: %s", sentiment.ErrUpstreamContent, strings.TrimSpace(comp.Content))
	}

	answer := strings.TrimSpace(comp.Content)
	if answer == "" {
		answer = fallbackAnswer
	}
	saved, err := s.opts.Store.AddChatMessage(ctx, db.ChatMessage{
		SessionID:   sessionID,
		MessageType: "assistant",
		Content:     answer,
		Meta: map[string]any{
			"model":       comp.Model,
			"tokens":      comp.Usage.TotalTokens,
			"duration_ms": float64(elapsed.Microseconds()) / 1000,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Reply{SessionID: sessionID, Response: answer, MessageID: saved.ID}, nil
}

// History returns up to limit messages, oldest first.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]db.ChatMessage, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	msgs, err := s.opts.Store.ChatHistory(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []db.ChatMessage{}
	}
	return msgs, nil
}

// CleanupExpired removes sessions past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.opts.Store.CleanupExpiredChats(ctx)
}

func (s *Service) session(ctx context.Context, id string) (*db.ChatSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.opts.Store.GetChatSession(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

func (s *Service) analysis(ctx context.Context, id int64) *db.SentimentEntry {
	if s.opts.Analyses == nil || id <= 0 {
		return nil
	}
	e, err := s.opts.Analyses.GetSentimentByID(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("chat: load analysis %d: %v", id, err)
		}
		return nil
	}
	return e
}

// conversation is the system prompt, the last turns and the new message.
func (s *Service) conversation(ctx context.Context, sess *db.ChatSession, history []db.ChatMessage, message string) []sentiment.Message {
	if len(history) > contextTurns {
		history = history[len(history)-contextTurns:]
	}
	out := make([]sentiment.Message, 0, len(history)+2)
	out = append(out, sentiment.Message{Role: "system", Content: systemPrompt(sess.Ticker, s.analysis(ctx, sess.SentimentAnalysisID))})
	for _, m := range history {
		out = append(out, sentiment.Message{Role: m.MessageType, Content: m.Content})
	}
	return append(out, sentiment.Message{Role: "user", Content: message})
}

func systemPrompt(ticker string, analysis *db.SentimentEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a financial analyst AI assistant discussing your previous analysis of %s. ", ticker)
	b.WriteString("Provide educational insights, reference prior analysis, maintain a professional tone, ")
	b.WriteString("and avoid personalized investment advice.\n\nORIGINAL ANALYSIS CONTEXT:\n")
	b.WriteString(analysisContext(analysis))
	return b.String()
}

// analysisContext pretty-prints the report's sections, or the whole report
// when it has none.
func analysisContext(e *db.SentimentEntry) string {
	if e == nil || len(e.Data) == 0 {
		return "{}"
	}
	raw := json.RawMessage(e.Data)
	var report map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &report); err == nil {
		if sections, ok := report["sentiment_analysis"]; ok {
			raw = sections
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func (s *Service) countError() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncrementErrors()
	}
}
