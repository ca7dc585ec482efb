package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

// ErrTickerRejected is returned by validators for unknown symbols.
var ErrTickerRejected = errors.New("stream: ticker rejected")

// Conn is a message-oriented inbound connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a tick connection for a ticker.
type Dialer interface {
	Dial(ctx context.Context, ticker string) (Conn, error)
}

// Validator checks a ticker before a session is opened.
type Validator interface {
	Validate(ctx context.Context, ticker string) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, ticker string) error

func (f ValidatorFunc) Validate(ctx context.Context, ticker string) error { return f(ctx, ticker) }

// IsNormalClose reports whether err ends a connection cleanly.
func IsNormalClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// WSDialer connects to the relay's /ws/{ticker} endpoint.
type WSDialer struct {
	BaseURL string
	Dialer  *websocket.Dialer
	Header  http.Header
}

// NewWSDialer targets baseURL, e.g. ws://localhost:8080.
func NewWSDialer(baseURL string) *WSDialer {
	return &WSDialer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *WSDialer) Dial(ctx context.Context, ticker string) (Conn, error) {
	u := d.BaseURL + "/ws/" + url.PathEscape(ticker)
	conn, resp, err := d.Dialer.DialContext(ctx, u, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", u, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// HTTPValidator asks the dashboard API whether a ticker exists.
type HTTPValidator struct {
	client *resty.Client
}

// NewHTTPValidator targets baseURL, e.g. http://localhost:8080.
func NewHTTPValidator(baseURL string) *HTTPValidator {
	return &HTTPValidator{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(10 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

func (v *HTTPValidator) Validate(ctx context.Context, ticker string) error {
	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	resp, err := v.client.R().
		SetContext(ctx).
		SetPathParam("ticker", ticker).
		SetResult(&env).
		SetError(&env).
		Get("/api/financial/ticker/{ticker}")
	if err != nil {
		return fmt.Errorf("validate %s: %w", ticker, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound, resp.StatusCode() == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrTickerRejected, ticker)
	case resp.IsError():
		return fmt.Errorf("validate %s: status %d", ticker, resp.StatusCode())
	case !env.Success:
		return fmt.Errorf("%w: %s: %s", ErrTickerRejected, ticker, env.Message)
	}
	return nil
}
