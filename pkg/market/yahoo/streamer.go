package yahoo

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultStreamURL is Yahoo's public pricing websocket.
const DefaultStreamURL = "wss://streamer.finance.yahoo.com/?version=2"

// Streamer subscribes to Yahoo's pricing websocket.
type Streamer struct {
	URL          string
	dialer       *websocket.Dialer
	pingInterval time.Duration
}

// NewStreamer builds a streamer against url; empty means DefaultStreamURL.
func NewStreamer(url string) *Streamer {
	if url == "" {
		url = DefaultStreamURL
	}
	return &Streamer{
		URL: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		pingInterval: 30 * time.Second,
	}
}

// Subscribe streams decoded pricing frames for symbol until ctx is done, the
// connection drops or stop is called. The channel is closed on exit; Err
// reports why the stream ended.
func (s *Streamer) Subscribe(ctx context.Context, symbol string) (<-chan Pricing, func(), func() error, error) {
	symbol = strings.ToUpper(symbol)
	header := http.Header{}
	header.Set("Origin", "https://finance.yahoo.com")
	header.Set("User-Agent", "Mozilla/5.0")

	conn, _, err := s.dialer.DialContext(ctx, s.URL, header)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial yahoo ws: %w", err)
	}
	if err := conn.WriteJSON(map[string][]string{"subscribe": {symbol}}); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	out := make(chan Pricing, 100)
	done := make(chan struct{})
	var (
		once    sync.Once
		writeMu sync.Mutex
		errMu   sync.Mutex
		exitErr error
	)
	stop := func() {
		once.Do(func() {
			close(done)
			writeMu.Lock()
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			_ = conn.Close()
		})
	}
	errFn := func() error {
		errMu.Lock()
		defer errMu.Unlock()
		return exitErr
	}

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer close(out)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-done:
					// closed by caller
				default:
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						log.Printf("yahoo ws %s read error: %v", symbol, err)
					}
					errMu.Lock()
					exitErr = err
					errMu.Unlock()
				}
				return
			}

			p, err := DecodeFrame(msg)
			if err != nil {
				log.Printf("yahoo ws %s decode error: %v", symbol, err)
				continue
			}
			if !strings.EqualFold(p.ID, symbol) {
				continue
			}
			select {
			case out <- p:
			case <-done:
				return
			}
		}
	}()

	return out, stop, errFn, nil
}
