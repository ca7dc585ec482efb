package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"market-dashboard/internal/aggregator"
)

// SystemMessageSource marks control frames on the tick socket.
const SystemMessageSource = "system_message"

// Control reasons sent by the relay.
const (
	ReasonConnected       = "connected_to_yahoo_finance"
	ReasonUpstreamError   = "yahoo_finance_connection_error"
	ReasonMarketClosed    = "market_closed"
	ReasonInvalidTicker   = "invalid_ticker"
	ReasonUpstreamTimeout = "yahoo_finance_timeout"
)

var ErrMalformedFrame = errors.New("stream: malformed frame")

// TickMessage is the JSON tick frame. Volume is session-cumulative.
type TickMessage struct {
	Open          float64 `json:"open,omitempty"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Timestamp     string  `json:"timestamp"`
	CandleStart   string  `json:"candle_start,omitempty"`
	Source        string  `json:"source,omitempty"`
	MarketHours   bool    `json:"market_hours"`
	LastSize      int64   `json:"last_size,omitempty"`
}

// ControlMessage is the JSON control frame.
type ControlMessage struct {
	Source             string `json:"source"`
	StreamingAvailable bool   `json:"streaming_available"`
	Message            string `json:"message"`
	Reason             string `json:"reason,omitempty"`
	MarketInfo         any    `json:"market_info,omitempty"`
}

// NewControl builds a control frame.
func NewControl(available bool, reason, message string) ControlMessage {
	return ControlMessage{
		Source:             SystemMessageSource,
		StreamingAvailable: available,
		Message:            message,
		Reason:             reason,
	}
}

// Frame is one classified inbound message: exactly one of Tick or Control
// is set.
type Frame struct {
	Tick    *aggregator.Tick
	Control *ControlMessage
}

// inbound accepts both frame shapes and both timestamp encodings.
type inbound struct {
	Source             string          `json:"source"`
	StreamingAvailable *bool           `json:"streaming_available"`
	Message            string          `json:"message"`
	Reason             string          `json:"reason"`
	Close              *float64        `json:"close"`
	Volume             float64         `json:"volume"`
	Change             float64         `json:"change"`
	ChangePercent      float64         `json:"change_percent"`
	Timestamp          json.RawMessage `json:"timestamp"`
}

// Classify decodes a raw frame. Control frames are recognised by their
// source sentinel; anything else must carry a close and a timestamp.
func Classify(raw []byte) (Frame, error) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if in.Source == SystemMessageSource {
		ctl := ControlMessage{
			Source:  in.Source,
			Message: in.Message,
			Reason:  in.Reason,
		}
		if in.StreamingAvailable != nil {
			ctl.StreamingAvailable = *in.StreamingAvailable
		}
		return Frame{Control: &ctl}, nil
	}

	if in.Close == nil {
		return Frame{}, fmt.Errorf("%w: missing close", ErrMalformedFrame)
	}
	ts, err := parseTimestamp(in.Timestamp)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Tick: &aggregator.Tick{
		Close:            *in.Close,
		CumulativeVolume: in.Volume,
		ChangeAbs:        in.Change,
		ChangePct:        in.ChangePercent,
		Timestamp:        ts,
	}}, nil
}

// parseTimestamp accepts an ISO-8601 string or epoch milliseconds, as a
// number or a numeric string.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", ErrMalformedFrame)
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedFrame, s)
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %s", ErrMalformedFrame, raw)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// FormatTimestamp renders t the way tick frames carry it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
