package marketsession

import "strings"

// Market describes one exchange's trading session in a fixed UTC offset.
// Offsets are DST-naive; holidays are not modelled.
type Market struct {
	Code        string   `yaml:"code" json:"code"`
	Name        string   `yaml:"name" json:"name"`
	Suffixes    []string `yaml:"suffixes" json:"suffixes,omitempty"`
	Pair        bool     `yaml:"pair" json:"pair,omitempty"`
	UTCOffset   float64  `yaml:"utc_offset" json:"utc_offset"`
	OpenHour    float64  `yaml:"open_hour" json:"open_hour"`
	CloseHour   float64  `yaml:"close_hour" json:"close_hour"`
	OpenAllWeek bool     `yaml:"open_all_week" json:"open_all_week,omitempty"`
}

// Matches reports whether the upper-cased ticker belongs to this market.
// A market with no suffixes and no pair rule is a catch-all.
func (m Market) Matches(ticker string) bool {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if m.Pair {
		base, quote, ok := strings.Cut(t, "-")
		// BRK-B style share classes are not pairs.
		return ok && base != "" && len(quote) >= 3 && !strings.Contains(quote, "-")
	}
	if len(m.Suffixes) == 0 {
		return true
	}
	for _, s := range m.Suffixes {
		if s != "" && strings.HasSuffix(t, strings.ToUpper(s)) {
			return true
		}
	}
	return false
}

// DefaultMarkets is the built-in table. Order matters: first match wins and
// the US entry is the catch-all.
func DefaultMarkets() []Market {
	return []Market{
		{Code: "UK", Name: "London Stock Exchange", Suffixes: []string{".L"}, UTCOffset: 0, OpenHour: 8, CloseHour: 16.5},
		{Code: "TSX", Name: "Toronto Stock Exchange", Suffixes: []string{".TO"}, UTCOffset: -5, OpenHour: 9.5, CloseHour: 16},
		{Code: "ASX", Name: "Australian Securities Exchange", Suffixes: []string{".AX"}, UTCOffset: 10, OpenHour: 10, CloseHour: 16},
		{Code: "CRYPTO", Name: "Crypto Market", Pair: true, UTCOffset: 0, OpenHour: 0, CloseHour: 24, OpenAllWeek: true},
		{Code: "US", Name: "US Stock Market", UTCOffset: -5, OpenHour: 9.5, CloseHour: 16},
	}
}
