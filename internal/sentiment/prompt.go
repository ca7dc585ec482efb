package sentiment

import (
	"encoding/json"
	"fmt"
	"strings"
)

const outputSchema = `{
  "executive_summary": "string, 2-4 paragraphs",
  "sentiment": {"label": "BULLISH|BEARISH|NEUTRAL", "confidence": "number 0-1", "drivers": ["up to 5 strings"]},
  "technical_outlook": {"summary": "string", "trend": "BULLISH|BEARISH|MIXED|NEUTRAL", "momentum_indicators": "string"},
  "fundamental_assessment": {"summary": "string", "strengths": ["string"], "weaknesses": ["string"], "valuation_assessment": "string"},
  "recommendation": {"action": "BUY|SELL|HOLD|WATCH", "confidence": "number 0-1", "time_horizon": "SHORT_TERM|MEDIUM_TERM|LONG_TERM", "rationale": "string"},
  "risks": [{"category": "TECHNICAL|FUNDAMENTAL|MACRO|NEWS|REGULATORY|OTHER", "description": "string", "severity": "LOW|MEDIUM|HIGH"}],
  "catalysts": [{"event": "string", "expected_timing": "string", "potential_impact": "POSITIVE|NEGATIVE|NEUTRAL"}]
}`

// BuildPrompt renders c as the analysis prompt.
func BuildPrompt(c *Context) string {
	var b strings.Builder
	pa, ta := c.PriceAction, c.Technical
	ma, lv := ta.MovingAverages, ta.Levels

	fmt.Fprintf(&b, "You are a professional financial analyst providing investment research. Analyze the following data for %s and provide a structured investment analysis.\n\n", c.Ticker)

	b.WriteString("**COMPANY OVERVIEW:**\n")
	fmt.Fprintf(&b, "Name: %s\nSector: %s\nIndustry: %s\n", c.Company.Name, orNA(c.Company.Sector), orNA(c.Company.Industry))
	fmt.Fprintf(&b, "Market: %s (%s)\n", orNA(c.Company.Market), orNA(c.Company.Country))
	fmt.Fprintf(&b, "Market Cap: %s\n\n", marketCap(c.Company.MarketCap))

	fmt.Fprintf(&b, "**PRICE ACTION (last %d datapoints):**\n", pa.DataPoints)
	fmt.Fprintf(&b, "Current Price: $%.2f\n", pa.CurrentPrice)
	fmt.Fprintf(&b, "1M Return: %+.2f%%\n3M Return: %+.2f%%\n6M Return: %+.2f%%\n", pa.OneMonthReturn, pa.ThreeMonthReturn, pa.SixMonthReturn)
	fmt.Fprintf(&b, "Annualized Volatility: %.2f%%\n", pa.Volatility)
	fmt.Fprintf(&b, "Volume Trend (10d vs avg): %+.2f%%\n", pa.VolumeTrend)
	fmt.Fprintf(&b, "Date Range: %s to %s\n\n", pa.DateRange.Start, pa.DateRange.End)

	b.WriteString("**TECHNICAL ANALYSIS:**\n")
	fmt.Fprintf(&b, "MA20: $%.2f, MA50: $%.2f, MA200: $%.2f\n", ma.MA20, ma.MA50, ma.MA200)
	fmt.Fprintf(&b, "Price vs MA20: %+.2f%%\nPrice vs MA50: %+.2f%%\n", ma.PriceVsMA20, ma.PriceVsMA50)
	fmt.Fprintf(&b, "Trend: %s\n", ma.Trend)
	fmt.Fprintf(&b, "RSI: %.1f (%s)\n", ta.Momentum.RSI, ta.Momentum.RSISignal)
	fmt.Fprintf(&b, "Resistance: $%.2f\nSupport: $%.2f\n", lv.Resistance, lv.Support)
	fmt.Fprintf(&b, "Distance to Resistance: %+.2f%%\nDistance to Support: %+.2f%%\n\n", lv.DistanceToResistance, lv.DistanceToSupport)

	b.WriteString("**PREDICTIONS (if available):**\n")
	preds := c.Predictions
	if preds == nil {
		preds = &PredictionContext{Available: false}
	}
	pj, _ := json.MarshalIndent(preds, "", "  ")
	b.Write(pj)
	b.WriteString("\n\n")

	b.WriteString("**RECENT NEWS:**\n")
	b.WriteString(formatHeadlines(c.News))
	b.WriteString("\n\n")

	b.WriteString("Respond with ONLY a JSON object of this shape, no additional text:\n")
	b.WriteString(outputSchema)
	b.WriteString("\n")
	return b.String()
}

func orNA(s string) string {
	if s == "" || s == "Unknown" {
		return "N/A"
	}
	return s
}

// marketCap formats v with thousands separators.
func marketCap(v int64) string {
	if v <= 0 {
		return "N/A"
	}
	s := fmt.Sprint(v)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String()
}
