package data

import "strings"

var suffixMarkets = map[string]MarketDetail{
	"TO": {Country: "Canada", Market: "TSX", Currency: "CAD", Timezone: "America/Toronto"},
	"L":  {Country: "United Kingdom", Market: "LSE", Currency: "GBP", Timezone: "Europe/London"},
	"DE": {Country: "Germany", Market: "XETRA", Currency: "EUR", Timezone: "Europe/Berlin"},
	"PA": {Country: "France", Market: "Euronext Paris", Currency: "EUR", Timezone: "Europe/Paris"},
	"AS": {Country: "Netherlands", Market: "Euronext Amsterdam", Currency: "EUR", Timezone: "Europe/Amsterdam"},
	"MI": {Country: "Italy", Market: "Borsa Italiana", Currency: "EUR", Timezone: "Europe/Rome"},
	"MC": {Country: "Spain", Market: "BME", Currency: "EUR", Timezone: "Europe/Madrid"},
	"SW": {Country: "Switzerland", Market: "SIX Swiss", Currency: "CHF", Timezone: "Europe/Zurich"},
	"T":  {Country: "Japan", Market: "TSE", Currency: "JPY", Timezone: "Asia/Tokyo"},
	"HK": {Country: "Hong Kong", Market: "HKEX", Currency: "HKD", Timezone: "Asia/Hong_Kong"},
	"SS": {Country: "China", Market: "Shanghai Stock Exchange", Currency: "CNY", Timezone: "Asia/Shanghai"},
	"SZ": {Country: "China", Market: "Shenzhen Stock Exchange", Currency: "CNY", Timezone: "Asia/Shanghai"},
	"AX": {Country: "Australia", Market: "ASX", Currency: "AUD", Timezone: "Australia/Sydney"},
	"SI": {Country: "Singapore", Market: "SGX", Currency: "SGD", Timezone: "Asia/Singapore"},
	"KS": {Country: "South Korea", Market: "KOSPI", Currency: "KRW", Timezone: "Asia/Seoul"},
	"NS": {Country: "India", Market: "NSE", Currency: "INR", Timezone: "Asia/Kolkata"},
	"BO": {Country: "India", Market: "BSE", Currency: "INR", Timezone: "Asia/Kolkata"},
	"SA": {Country: "Brazil", Market: "B3", Currency: "BRL", Timezone: "America/Sao_Paulo"},
}

var securityTypes = map[string]string{
	"EQUITY":         "stock",
	"ETF":            "etf",
	"MUTUALFUND":     "mutual_fund",
	"INDEX":          "index",
	"CRYPTOCURRENCY": "crypto",
	"CURRENCY":       "currency",
	"FUTURE":         "future",
	"OPTION":         "option",
}

// SecurityType maps a Yahoo quote type to the dashboard's label; unknown
// types read as "stock".
func SecurityType(quoteType string) string {
	if t, ok := securityTypes[strings.ToUpper(quoteType)]; ok {
		return t
	}
	return "stock"
}

// DetectMarket labels symbol's listing from its exchange suffix, falling back
// to a US listing on exchange.
func DetectMarket(symbol, exchange, currency string) MarketDetail {
	if i := strings.LastIndex(symbol, "."); i >= 0 {
		if m, ok := suffixMarkets[strings.ToUpper(symbol[i+1:])]; ok {
			return m
		}
	}
	if exchange == "" {
		exchange = "NASDAQ/NYSE"
	}
	if currency == "" {
		currency = "USD"
	}
	return MarketDetail{Country: "United States", Market: exchange, Currency: currency, Timezone: "America/New_York"}
}
