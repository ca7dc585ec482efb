package marketsession

import (
	"strings"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return ts
}

func TestSessionBounds(t *testing.T) {
	calc := New(nil)
	cases := []struct {
		ticker string
		now    string
		start  string
		end    string
	}{
		{"AAPL", "2024-03-12T18:00:00Z", "2024-03-12T14:30:00Z", "2024-03-12T21:00:00Z"},
		// 21:00 at UTC-5 is still the 12th locally.
		{"AAPL", "2024-03-13T02:00:00Z", "2024-03-12T14:30:00Z", "2024-03-12T21:00:00Z"},
		{"VOD.L", "2024-03-12T18:00:00Z", "2024-03-12T08:00:00Z", "2024-03-12T16:30:00Z"},
		{"SHOP.TO", "2024-03-12T12:00:00Z", "2024-03-12T14:30:00Z", "2024-03-12T21:00:00Z"},
		// 09:00 on the 13th in Sydney-naive time.
		{"BHP.AX", "2024-03-12T23:00:00Z", "2024-03-13T00:00:00Z", "2024-03-13T06:00:00Z"},
		{"BTC-USD", "2024-03-16T10:00:00Z", "2024-03-16T00:00:00Z", "2024-03-17T00:00:00Z"},
	}

	for _, tc := range cases {
		start, end := calc.Session(tc.ticker, mustTime(t, tc.now))
		if want := mustTime(t, tc.start).UnixMilli(); start != want {
			t.Fatalf("%s@%s start=%s, expected %s", tc.ticker, tc.now, time.UnixMilli(start).UTC(), tc.start)
		}
		if want := mustTime(t, tc.end).UnixMilli(); end != want {
			t.Fatalf("%s@%s end=%s, expected %s", tc.ticker, tc.now, time.UnixMilli(end).UTC(), tc.end)
		}
	}
}

func TestSessionIgnoresHostZone(t *testing.T) {
	calc := New(nil)
	utc := mustTime(t, "2024-03-12T18:00:00Z")
	tokyo := utc.In(time.FixedZone("JST", 9*3600))

	s1, e1 := calc.Session("AAPL", utc)
	s2, e2 := calc.Session("AAPL", tokyo)
	if s1 != s2 || e1 != e2 {
		t.Fatalf("session depends on input zone: %d-%d vs %d-%d", s1, e1, s2, e2)
	}
}

func TestLookupOrder(t *testing.T) {
	calc := New(nil)
	cases := map[string]string{
		"AAPL":    "US",
		"vod.l":   "UK",
		"RY.TO":   "TSX",
		"CBA.AX":  "ASX",
		"ETH-USD": "CRYPTO",
		"BRK-B":   "US",
	}
	for ticker, code := range cases {
		if got := calc.Lookup(ticker).Code; got != code {
			t.Fatalf("Lookup(%s)=%s, expected %s", ticker, got, code)
		}
	}
}

func TestStatus(t *testing.T) {
	calc := New(nil)
	cases := []struct {
		ticker string
		now    string
		open   bool
		reason string
	}{
		{"AAPL", "2024-03-12T15:00:00Z", true, "Market is open"},
		{"AAPL", "2024-03-12T13:00:00Z", false, "opens at 9:30"},
		{"VOD.L", "2024-03-12T18:00:00Z", false, "closed at 16:30"},
		{"AAPL", "2024-03-16T15:00:00Z", false, "closed on weekends"},
		{"BTC-USD", "2024-03-16T15:00:00Z", true, "Market is open"},
	}
	for _, tc := range cases {
		st := calc.Status(tc.ticker, mustTime(t, tc.now))
		if st.Open != tc.open {
			t.Fatalf("%s@%s open=%v, expected %v (%s)", tc.ticker, tc.now, st.Open, tc.open, st.Reason)
		}
		if !strings.Contains(st.Reason, tc.reason) {
			t.Fatalf("%s@%s reason=%q, expected to contain %q", tc.ticker, tc.now, st.Reason, tc.reason)
		}
	}
}

func TestParseTable(t *testing.T) {
	data := []byte(`
markets:
  - code: HK
    name: Hong Kong Exchange
    suffixes: [".HK"]
    utc_offset: 8
    open_hour: 9.5
    close_hour: 16
  - code: US
    name: US Stock Market
    utc_offset: -5
    open_hour: 9.5
    close_hour: 16
`)
	markets, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	calc := New(markets)
	if got := calc.Lookup("0700.HK").Code; got != "HK" {
		t.Fatalf("Lookup(0700.HK)=%s, expected HK", got)
	}
	if got := calc.Lookup("VOD.L").Code; got != "US" {
		t.Fatalf("Lookup(VOD.L)=%s, expected US catch-all", got)
	}

	if _, err := Parse([]byte("markets:\n  - code: X\n    open_hour: 17\n    close_hour: 9\n")); err == nil {
		t.Fatalf("expected invalid hours error")
	}
}
