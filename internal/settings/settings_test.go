package settings

import (
	"context"
	"errors"
	"slices"
	"testing"

	"market-dashboard/internal/chart"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}
func (failingStore) Set(context.Context, string, string) error { return nil }
func (failingStore) Remove(context.Context, string) error { return nil }

func TestLoadDefaults(t *testing.T) {
	s, err := Load(context.Background(), NewMemoryStore())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Defaults()
	if s.Panel != def.Panel || s.Ticker != def.Ticker || s.CandleSeconds != def.CandleSeconds {
		t.Fatalf("settings=%+v, expected defaults", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	in := Settings{
		Panel:         "sentiment",
		Ticker:        " vod.l ",
		Watchlist:     []string{"aapl", "AAPL", "btc-usd"},
		Chart:         chart.Config{MovingAverages: []int{200, 50}, ShowRSI: true, Theme: chart.ThemeDark},
		CandleSeconds: 30,
	}
	if err := Save(ctx, store, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Ticker != "VOD.L" || out.Panel != "sentiment" || out.CandleSeconds != 30 {
		t.Fatalf("settings=%+v", out)
	}
	if !slices.Equal(out.Watchlist, []string{"AAPL", "BTC-USD"}) {
		t.Fatalf("watchlist=%v", out.Watchlist)
	}
	if !out.Chart.Equal(in.Chart) {
		t.Fatalf("chart=%+v", out.Chart)
	}
}

func TestLoadDiscardsCorruptValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Set(ctx, keyCandle, `"soon"`)
	store.Set(ctx, keyPanel, `"sentiment"`)
	store.Set(ctx, keyWatchlist, `{not json`)

	s, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.CandleSeconds != Defaults().CandleSeconds {
		t.Fatalf("candle=%d, expected default", s.CandleSeconds)
	}
	if s.Panel != "sentiment" {
		t.Fatalf("panel=%s", s.Panel)
	}
	if !slices.Equal(s.Watchlist, Defaults().Watchlist) {
		t.Fatalf("watchlist=%v, expected default", s.Watchlist)
	}
}

func TestLoadStoreError(t *testing.T) {
	if _, err := Load(context.Background(), failingStore{}); err == nil {
		t.Fatalf("expected error from failing store")
	}
}

func TestResetAndWatchlist(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := Defaults()
	if s.Watch("aapl") {
		t.Fatalf("duplicate watch accepted")
	}
	if !s.Watch("tsla") || !s.Unwatch("AAPL") {
		t.Fatalf("watch/unwatch failed")
	}
	s.CandleSeconds = 7
	if err := Save(ctx, store, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := Load(ctx, store)
	if got.CandleSeconds != 10 || !slices.Contains(got.Watchlist, "TSLA") || slices.Contains(got.Watchlist, "AAPL") {
		t.Fatalf("settings=%+v", got)
	}

	if err := Reset(ctx, store); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ = Load(ctx, store)
	if !slices.Equal(got.Watchlist, Defaults().Watchlist) {
		t.Fatalf("watchlist after reset=%v", got.Watchlist)
	}
}
