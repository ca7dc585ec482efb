package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"market-dashboard/internal/data"
	"market-dashboard/internal/relay"
	"market-dashboard/internal/settings"
	"market-dashboard/internal/stream"
	"market-dashboard/internal/view"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// tickSocket relays the hub's frames for one ticker. Unknown tickers get a
// control frame and a policy-violation close; a failed lookup closes with
// try-again-later.
func (s *Server) tickSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Hub == nil {
		closeWith(conn, websocket.CloseInternalServerErr, "relay not ready")
		return
	}

	ticker := c.Param("ticker")
	vctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	err = s.Data.Validate(vctx, ticker)
	cancel()
	if err != nil {
		reason, code, msg := stream.ReasonInvalidTicker, websocket.ClosePolicyViolation, "Invalid ticker: "+ticker
		switch {
		case errors.Is(err, data.ErrInvalidTicker):
		case errors.Is(err, context.DeadlineExceeded):
			reason, code, msg = stream.ReasonUpstreamTimeout, websocket.CloseTryAgainLater, "Timed out validating "+ticker
		default:
			log.Printf("ws %s validation failed: %v", ticker, err)
			reason, code, msg = stream.ReasonUpstreamError, websocket.CloseTryAgainLater, "Unable to validate "+ticker
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(stream.NewControl(false, reason, msg))
		closeWith(conn, code, msg)
		return
	}

	frames, unsub := s.Hub.Subscribe(ticker)
	defer unsub()

	// The browser only ever sends close frames; reading surfaces them.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("ws %s write error: %v", ticker, err)
				return
			}
		}
	}
}

// chartSocket serves a live chart view. A token query parameter loads the
// client's saved chart settings.
func (s *Server) chartSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Hub == nil {
		closeWith(conn, websocket.CloseInternalServerErr, "relay not ready")
		return
	}

	prefs := s.clientSettings(c)
	view.Serve(c.Request.Context(), conn, view.Options{
		Dialer:        relay.Dialer{Hub: s.Hub},
		Validator:     stream.ValidatorFunc(s.Data.Validate),
		Sessions:      s.Data.Sessions(),
		Metrics:       s.Metrics,
		Config:        prefs.Chart,
		CandleSeconds: prefs.CandleSeconds,
	})
}

func (s *Server) clientSettings(c *gin.Context) settings.Settings {
	tok := c.Query("token")
	if tok == "" || s.DB == nil {
		return settings.Defaults()
	}
	clientID, err := parseToken(tok, s.JWTSecret)
	if err != nil {
		return settings.Defaults()
	}
	st, err := settings.Load(c.Request.Context(), s.DB.Settings(clientID))
	if err != nil {
		log.Printf("ws chart: load settings for %s: %v", clientID, err)
		return settings.Defaults()
	}
	return st
}
