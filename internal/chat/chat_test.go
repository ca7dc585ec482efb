package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"market-dashboard/internal/data"
	"market-dashboard/internal/sentiment"
	"market-dashboard/pkg/db"
)

type recordingLLM struct {
	mu     sync.Mutex
	answer string
	seen   [][]sentiment.Message
}

func (r *recordingLLM) Complete(ctx context.Context, req sentiment.ChatRequest) (*sentiment.Completion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, req.Messages)
	return &sentiment.Completion{Content: r.answer, Model: "test-model", Usage: sentiment.Usage{TotalTokens: 42}}, nil
}

func (r *recordingLLM) last() []sentiment.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}

func newTestService(t *testing.T, llm sentiment.LLM) (*Service, *db.Database) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	svc := NewService(Options{Store: database.Chat(), Analyses: database.Cache(), LLM: llm})
	return svc, database
}

func TestConversation(t *testing.T) {
	llm := &recordingLLM{answer: "Momentum is positive."}
	svc, database := newTestService(t, llm)
	ctx := context.Background()

	analysisID, err := database.Cache().SetSentiment(ctx, db.SentimentEntry{
		Ticker: "AAPL", Period: "1y", Model: "m",
		Data: []byte(`{"ticker":"AAPL","sentiment_analysis":{"summary":"bullish"}}`),
	}, time.Hour)
	if err != nil {
		t.Fatalf("seed analysis: %v", err)
	}

	id, err := svc.CreateSession(ctx, " aapl ", "1y", analysisID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reply, err := svc.Send(ctx, id, "Why bullish?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Response != "Momentum is positive." || reply.MessageID == 0 {
		t.Fatalf("reply=%+v", reply)
	}
	first := llm.last()
	if len(first) != 2 || first[0].Role != "system" || first[1].Content != "Why bullish?" {
		t.Fatalf("messages=%+v", first)
	}
	if !strings.Contains(first[0].Content, "analysis of AAPL") || !strings.Contains(first[0].Content, `"summary": "bullish"`) {
		t.Fatalf("system prompt=%q", first[0].Content)
	}
	if strings.Contains(first[0].Content, `"ticker"`) {
		t.Fatalf("system prompt should carry only the sections: %q", first[0].Content)
	}

	if _, err := svc.Send(ctx, id, "And the risks?"); err != nil {
		t.Fatalf("send again: %v", err)
	}
	second := llm.last()
	roles := make([]string, len(second))
	for i, m := range second {
		roles[i] = m.Role
	}
	if got := strings.Join(roles, ","); got != "system,user,assistant,user" {
		t.Fatalf("roles=%s", got)
	}

	history, err := svc.History(ctx, id, 0)
	if err != nil || len(history) != 4 {
		t.Fatalf("history=%+v err=%v", history, err)
	}
	if history[1].MessageType != "assistant" || history[1].Meta["model"] != "test-model" {
		t.Fatalf("assistant turn=%+v", history[1])
	}
}

func TestSendErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		svc, _ := newTestService(t, &recordingLLM{answer: "x"})
		if _, err := svc.Send(ctx, "nope", "hi"); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("empty message", func(t *testing.T) {
		svc, _ := newTestService(t, &recordingLLM{answer: "x"})
		id, _ := svc.CreateSession(ctx, "AAPL", "1y", 0)
		if _, err := svc.Send(ctx, id, "   "); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("error marker", func(t *testing.T) {
		svc, _ := newTestService(t, &recordingLLM{answer: "[ERROR] provider overloaded"})
		id, _ := svc.CreateSession(ctx, "AAPL", "1y", 0)
		if _, err := svc.Send(ctx, id, "hi"); !errors.Is(err, sentiment.ErrUpstreamContent) {
			t.Fatalf("err=%v", err)
		}
		history, _ := svc.History(ctx, id, 0)
		if len(history) != 1 || history[0].MessageType != "user" {
			t.Fatalf("error answer should not be stored: %+v", history)
		}
	})
}

func TestCreateSessionValidation(t *testing.T) {
	svc, database := newTestService(t, sentiment.MockLLM{})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx, "MSFT", "", 999)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s, err := database.Chat().GetChatSession(ctx, id)
	if err != nil || s.SentimentAnalysisID != 0 || s.Period != sentiment.DefaultPeriod {
		t.Fatalf("session=%+v err=%v", s, err)
	}

	reply, err := svc.Send(ctx, id, "hello there")
	if err != nil || !strings.HasPrefix(reply.Response, "[MOCK:sentiment_chat] hello there") {
		t.Fatalf("reply=%+v err=%v", reply, err)
	}

	if _, err := svc.CreateSession(ctx, "MSFT", "3w", 0); !errors.Is(err, data.ErrInvalidPeriod) {
		t.Fatalf("err=%v", err)
	}
	if _, err := svc.CreateSession(ctx, "  ", "1y", 0); !errors.Is(err, data.ErrInvalidTicker) {
		t.Fatalf("err=%v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	svc, _ := newTestService(t, sentiment.MockLLM{})
	ctx := context.Background()

	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, err := svc.CreateSession(ctx, "AAPL", "1y", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.now = time.Now
	if _, err := svc.Send(ctx, old, "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session answered: %v", err)
	}

	n, err := svc.CleanupExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleaned=%d err=%v, expected 1", n, err)
	}
}
