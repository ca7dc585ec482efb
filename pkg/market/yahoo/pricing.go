package yahoo

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// PricingData field numbers.
const (
	fieldID            = 1
	fieldPrice         = 2
	fieldTime          = 3
	fieldCurrency      = 4
	fieldExchange      = 5
	fieldQuoteType     = 6
	fieldMarketHours   = 7
	fieldChangePercent = 8
	fieldDayVolume     = 9
	fieldDayHigh       = 10
	fieldDayLow        = 11
	fieldChange        = 12
	fieldShortName     = 13
	fieldOpenPrice     = 15
	fieldPreviousClose = 16
	fieldLastSize      = 22
)

var ErrEmptyFrame = errors.New("yahoo: empty pricing frame")

// DecodeFrame unwraps a streamer text frame. Newer endpoints wrap the payload
// as {"type":"pricing","message":"<base64>"}; older ones send bare base64.
func DecodeFrame(frame []byte) (Pricing, error) {
	payload := strings.TrimSpace(string(frame))
	if strings.HasPrefix(payload, "{") {
		var env struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return Pricing{}, fmt.Errorf("yahoo: decode envelope: %w", err)
		}
		if env.Type != "" && env.Type != "pricing" {
			return Pricing{}, fmt.Errorf("yahoo: unexpected frame type %q", env.Type)
		}
		payload = env.Message
	}
	if payload == "" {
		return Pricing{}, ErrEmptyFrame
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Pricing{}, fmt.Errorf("yahoo: decode base64: %w", err)
	}
	return DecodePricing(raw)
}

// DecodePricing parses a PricingData protobuf message. Unknown fields are
// skipped.
func DecodePricing(b []byte) (Pricing, error) {
	var p Pricing
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldTime:
				p.Time = protowire.DecodeZigZag(v)
			case fieldDayVolume:
				p.DayVolume = protowire.DecodeZigZag(v)
			case fieldLastSize:
				p.LastSize = protowire.DecodeZigZag(v)
			case fieldQuoteType:
				p.QuoteType = int32(v)
			case fieldMarketHours:
				p.MarketHours = int32(v)
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
			f := math.Float32frombits(v)
			switch num {
			case fieldPrice:
				p.Price = f
			case fieldChangePercent:
				p.ChangePercent = f
			case fieldDayHigh:
				p.DayHigh = f
			case fieldDayLow:
				p.DayLow = f
			case fieldChange:
				p.Change = f
			case fieldOpenPrice:
				p.OpenPrice = f
			case fieldPreviousClose:
				p.PreviousClose = f
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldID:
				p.ID = string(v)
			case fieldCurrency:
				p.Currency = string(v)
			case fieldExchange:
				p.Exchange = string(v)
			case fieldShortName:
				p.ShortName = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if p.ID == "" {
		return p, ErrEmptyFrame
	}
	return p, nil
}

// EncodePricing is the inverse of DecodePricing for the fields it knows.
func EncodePricing(p Pricing) []byte {
	var b []byte
	str := func(num protowire.Number, s string) {
		if s != "" {
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, s)
		}
	}
	f32 := func(num protowire.Number, f float32) {
		if f != 0 {
			b = protowire.AppendTag(b, num, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(f))
		}
	}
	s64 := func(num protowire.Number, v int64) {
		if v != 0 {
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(v))
		}
	}
	i32 := func(num protowire.Number, v int32) {
		if v != 0 {
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(v))
		}
	}

	str(fieldID, p.ID)
	f32(fieldPrice, p.Price)
	s64(fieldTime, p.Time)
	str(fieldCurrency, p.Currency)
	str(fieldExchange, p.Exchange)
	i32(fieldQuoteType, p.QuoteType)
	i32(fieldMarketHours, p.MarketHours)
	f32(fieldChangePercent, p.ChangePercent)
	s64(fieldDayVolume, p.DayVolume)
	f32(fieldDayHigh, p.DayHigh)
	f32(fieldDayLow, p.DayLow)
	f32(fieldChange, p.Change)
	str(fieldShortName, p.ShortName)
	f32(fieldOpenPrice, p.OpenPrice)
	f32(fieldPreviousClose, p.PreviousClose)
	s64(fieldLastSize, p.LastSize)
	return b
}
