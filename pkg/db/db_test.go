package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	database := openTestDB(t)
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	ok, err := columnExists(database.DB, "sentiment_cache", "processing_time_ms")
	if err != nil || !ok {
		t.Fatalf("processing_time_ms column missing: ok=%v err=%v", ok, err)
	}
}

func TestStockCacheTTL(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	q := database.Cache()
	now := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	if err := q.SetStockData(ctx, "aapl", "1mo", "history", []byte(`{"rows":[]}`), 21, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	t.Run("hit is case-insensitive on ticker", func(t *testing.T) {
		e, err := q.GetStockData(ctx, "AAPL", "1mo", "history")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(e.Data) != `{"rows":[]}` || e.DataPoints != 21 {
			t.Errorf("entry=%+v", e)
		}
	})

	t.Run("other data type misses", func(t *testing.T) {
		if _, err := q.GetStockData(ctx, "AAPL", "1mo", "info"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("overwrite replaces payload", func(t *testing.T) {
		if err := q.SetStockData(ctx, "AAPL", "1mo", "history", []byte(`{"rows":[1]}`), 1, time.Hour); err != nil {
			t.Fatalf("set: %v", err)
		}
		e, err := q.GetStockData(ctx, "AAPL", "1mo", "history")
		if err != nil || string(e.Data) != `{"rows":[1]}` {
			t.Errorf("entry=%+v err=%v", e, err)
		}
	})

	t.Run("expired entry misses and purges", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		if _, err := q.GetStockData(ctx, "AAPL", "1mo", "history"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after expiry, got %v", err)
		}
		n, err := q.PurgeExpired(ctx)
		if err != nil || n != 1 {
			t.Errorf("purged=%d err=%v, expected 1", n, err)
		}
	})
}

func TestSentimentCache(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	q := database.Cache()

	long := make([]byte, 1500)
	for i := range long {
		long[i] = 'x'
	}
	id1, err := q.SetSentiment(ctx, SentimentEntry{Ticker: "msft", Period: "2y", Model: "m", Data: []byte(`{}`), Text: string(long)}, 6*time.Hour)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	id2, err := q.SetSentiment(ctx, SentimentEntry{Ticker: "MSFT", Period: "2y", Model: "m", Data: []byte(`{"v":2}`), ProcessingTimeMs: 12}, 6*time.Hour)
	if err != nil {
		t.Fatalf("set again: %v", err)
	}
	if id2 == id1 {
		t.Fatalf("expected a fresh row id")
	}

	e, err := q.GetSentiment(ctx, "MSFT", "2y", "m")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.ID != id2 || string(e.Data) != `{"v":2}` || e.ProcessingTimeMs != 12 {
		t.Fatalf("entry=%+v", e)
	}
	if _, err := q.GetSentiment(ctx, "MSFT", "2y", "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	byID, err := q.GetSentimentByID(ctx, id2)
	if err != nil || byID.Ticker != "MSFT" || string(byID.Data) != `{"v":2}` {
		t.Fatalf("by id=%+v err=%v", byID, err)
	}
	if _, err := q.GetSentimentByID(ctx, id1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replaced row should be gone, got %v", err)
	}
}

func TestChatSessions(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	q := database.Chat()
	now := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	for _, s := range []ChatSession{
		{SessionID: "live", Ticker: "aapl", Period: "1y", SentimentAnalysisID: 7, ExpiresAt: now.Add(24 * time.Hour)},
		{SessionID: "stale", Ticker: "msft", Period: "1y", ExpiresAt: now.Add(time.Hour)},
	} {
		if err := q.CreateChatSession(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.SessionID, err)
		}
	}

	s, err := q.GetChatSession(ctx, "live")
	if err != nil || s.Ticker != "AAPL" || s.SentimentAnalysisID != 7 {
		t.Fatalf("session=%+v err=%v", s, err)
	}
	if s, err := q.GetChatSession(ctx, "stale"); err != nil || s.SentimentAnalysisID != 0 {
		t.Fatalf("session=%+v err=%v", s, err)
	}

	now = now.Add(time.Minute)
	for i, m := range []ChatMessage{
		{SessionID: "live", MessageType: "user", Content: "why?"},
		{SessionID: "live", MessageType: "assistant", Content: "because", Meta: map[string]any{"model": "m1"}},
		{SessionID: "stale", MessageType: "user", Content: "hi"},
	} {
		if _, err := q.AddChatMessage(ctx, m); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	history, err := q.ChatHistory(ctx, "live", 50)
	if err != nil || len(history) != 2 {
		t.Fatalf("history=%+v err=%v", history, err)
	}
	if history[0].Content != "why?" || history[1].Meta["model"] != "m1" {
		t.Fatalf("history=%+v", history)
	}
	if touched, _ := q.GetChatSession(ctx, "live"); !touched.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at=%v, expected %v", touched.UpdatedAt, now)
	}

	now = now.Add(2 * time.Hour)
	if _, err := q.GetChatSession(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session should miss, got %v", err)
	}
	n, err := q.CleanupExpiredChats(ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleaned=%d err=%v, expected 1", n, err)
	}
	if left, _ := q.ChatHistory(ctx, "stale", 50); len(left) != 0 {
		t.Fatalf("expired messages kept: %+v", left)
	}
	if kept, _ := q.ChatHistory(ctx, "live", 50); len(kept) != 2 {
		t.Fatalf("live messages=%d", len(kept))
	}
}

func TestClearAll(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	if err := database.Cache().SetStockData(ctx, "AAPL", "1y", "history", []byte(`{}`), 0, time.Hour); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if _, err := database.Cache().SetSentiment(ctx, SentimentEntry{Ticker: "AAPL", Period: "2y", Model: "m", Data: []byte(`{}`)}, time.Hour); err != nil {
		t.Fatalf("set sentiment: %v", err)
	}
	chat := database.Chat()
	if err := chat.CreateChatSession(ctx, ChatSession{SessionID: "s", Ticker: "AAPL", Period: "2y", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := chat.AddChatMessage(ctx, ChatMessage{SessionID: "s", MessageType: "user", Content: "x"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := database.Settings("c").Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	before, err := database.ClearAll(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if before != (TableCounts{ChatMessages: 1, ChatSessions: 1, StockCache: 1, SentimentCache: 1}) {
		t.Fatalf("before=%+v", before)
	}
	after, err := database.ClearAll(ctx)
	if err != nil || after != (TableCounts{}) {
		t.Fatalf("after=%+v err=%v", after, err)
	}
	if v, ok, _ := database.Settings("c").Get(ctx, "theme"); !ok || v != "dark" {
		t.Fatalf("settings should survive a clear")
	}
}

func TestSettingsIsolation(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	a := database.Settings("client-a")
	b := database.Settings("client-b")

	if err := a.Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}

	t.Run("owner reads value", func(t *testing.T) {
		v, ok, err := a.Get(ctx, "theme")
		if err != nil || !ok || v != "dark" {
			t.Errorf("get=%q ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("other client sees nothing", func(t *testing.T) {
		_, ok, err := b.Get(ctx, "theme")
		if err != nil || ok {
			t.Errorf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := a.Remove(ctx, "theme"); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, ok, _ := a.Get(ctx, "theme"); ok {
			t.Errorf("value survived remove")
		}
	})

	t.Run("client id required", func(t *testing.T) {
		anon := database.Settings("")
		if err := anon.Set(ctx, "k", "v"); err != ErrClientIDRequired {
			t.Errorf("expected ErrClientIDRequired, got %v", err)
		}
	})
}
