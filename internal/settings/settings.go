// Package settings holds a client's persisted dashboard preferences behind a
// small key-value interface.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"market-dashboard/internal/chart"
)

// Store is the persistence the settings are read from and written to.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

const (
	keyPanel     = "panel"
	keyTicker    = "ticker"
	keyWatchlist = "watchlist"
	keyChart     = "chart_config"
	keyCandle    = "candle_seconds"
)

var allKeys = []string{keyPanel, keyTicker, keyWatchlist, keyChart, keyCandle}

// Panels the dashboard can show.
var Panels = []string{"chart", "live", "prediction", "sentiment", "info"}

// CandleDurations are the selectable live candle lengths in seconds.
var CandleDurations = []int{5, 10, 15, 30, 60, 300}

const maxWatchlist = 20

// Settings is everything a client persists between visits.
type Settings struct {
	Panel         string       `json:"panel"`
	Ticker        string       `json:"ticker"`
	Watchlist     []string     `json:"watchlist"`
	Chart         chart.Config `json:"chart"`
	CandleSeconds int          `json:"candle_seconds"`
}

// Defaults is what a new client starts with.
func Defaults() Settings {
	return Settings{
		Panel:         "chart",
		Ticker:        "AAPL",
		Watchlist:     []string{"AAPL", "MSFT", "GOOGL"},
		Chart:         chart.DefaultConfig(),
		CandleSeconds: 10,
	}
}

// Normalize coerces out-of-range fields to their defaults.
func (s Settings) Normalize() Settings {
	def := Defaults()
	if !slices.Contains(Panels, s.Panel) {
		s.Panel = def.Panel
	}
	s.Ticker = strings.ToUpper(strings.TrimSpace(s.Ticker))
	if s.Ticker == "" {
		s.Ticker = def.Ticker
	}
	var wl []string
	for _, t := range s.Watchlist {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" && !slices.Contains(wl, t) && len(wl) < maxWatchlist {
			wl = append(wl, t)
		}
	}
	s.Watchlist = wl
	s.Chart = s.Chart.Normalize()
	if !slices.Contains(CandleDurations, s.CandleSeconds) {
		s.CandleSeconds = def.CandleSeconds
	}
	return s
}

// Watch adds ticker to the watchlist; it reports false when already present
// or the list is full.
func (s *Settings) Watch(ticker string) bool {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || slices.Contains(s.Watchlist, ticker) || len(s.Watchlist) >= maxWatchlist {
		return false
	}
	s.Watchlist = append(s.Watchlist, ticker)
	return true
}

// Unwatch removes ticker from the watchlist.
func (s *Settings) Unwatch(ticker string) bool {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	i := slices.Index(s.Watchlist, ticker)
	if i < 0 {
		return false
	}
	s.Watchlist = slices.Delete(s.Watchlist, i, i+1)
	return true
}

// Load reads settings from store. Missing keys take defaults; unreadable
// values are logged and replaced by defaults.
func Load(ctx context.Context, store Store) (Settings, error) {
	s := Defaults()
	for _, key := range allKeys {
		raw, ok, err := store.Get(ctx, key)
		if err != nil {
			return Defaults(), fmt.Errorf("load %s: %w", key, err)
		}
		if !ok {
			continue
		}
		var target any
		switch key {
		case keyPanel:
			target = &s.Panel
		case keyTicker:
			target = &s.Ticker
		case keyWatchlist:
			target = &s.Watchlist
		case keyChart:
			target = &s.Chart
		case keyCandle:
			target = &s.CandleSeconds
		}
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			log.Printf("settings: discard corrupt %s: %v", key, err)
		}
	}
	return s.Normalize(), nil
}

// Save writes every field of s to store.
func Save(ctx context.Context, store Store, s Settings) error {
	s = s.Normalize()
	values := map[string]any{
		keyPanel:     s.Panel,
		keyTicker:    s.Ticker,
		keyWatchlist: s.Watchlist,
		keyChart:     s.Chart,
		keyCandle:    s.CandleSeconds,
	}
	for _, key := range allKeys {
		raw, err := json.Marshal(values[key])
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := store.Set(ctx, key, string(raw)); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// Reset removes every persisted key so the next Load yields defaults.
func Reset(ctx context.Context, store Store) error {
	for _, key := range allKeys {
		if err := store.Remove(ctx, key); err != nil {
			return fmt.Errorf("reset %s: %w", key, err)
		}
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
