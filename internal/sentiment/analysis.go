package sentiment

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Caps applied to structured output lists.
const (
	maxDrivers   = 5
	maxRisks     = 6
	maxCatalysts = 6
	summaryRunes = 400
)

// Sentiment is the headline verdict of an analysis: PlainText when the model
// answered in prose, Structured when it returned the requested JSON.
type Sentiment interface {
	isSentiment()
}

// PlainText carries an unstructured answer.
type PlainText struct {
	Text string
}

// Structured is a validated verdict.
type Structured struct {
	Label      string
	Confidence float64
	Drivers    []string
}

func (PlainText) isSentiment()  {}
func (Structured) isSentiment() {}

func (p PlainText) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}{"plain_text", p.Text})
}

func (s Structured) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind       string   `json:"kind"`
		Label      string   `json:"label"`
		Confidence float64  `json:"confidence"`
		Drivers    []string `json:"drivers"`
	}{"structured", s.Label, s.Confidence, nonNil(s.Drivers)})
}

func decodeSentiment(raw json.RawMessage) (Sentiment, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v struct {
		Kind       string   `json:"kind"`
		Text       string   `json:"text"`
		Label      string   `json:"label"`
		Confidence float64  `json:"confidence"`
		Drivers    []string `json:"drivers"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch v.Kind {
	case "plain_text":
		return PlainText{Text: v.Text}, nil
	case "structured":
		return Structured{Label: v.Label, Confidence: v.Confidence, Drivers: v.Drivers}, nil
	}
	return nil, fmt.Errorf("unknown sentiment kind %q", v.Kind)
}

// Sections are the narrative blocks of a report.
type Sections struct {
	ExecutiveSummary         string `json:"executive_summary"`
	SentimentAnalysis        string `json:"sentiment_analysis"`
	TechnicalOutlook         string `json:"technical_outlook"`
	FundamentalAssessment    string `json:"fundamental_assessment"`
	InvestmentRecommendation string `json:"investment_recommendation"`
	FullAnalysis             string `json:"full_analysis"`
}

type Risk struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

type Catalyst struct {
	Event          string `json:"event"`
	ExpectedTiming string `json:"expected_timing,omitempty"`
	Impact         string `json:"potential_impact"`
}

// Analysis is a parsed model answer.
type Analysis struct {
	Sections  Sections
	Sentiment Sentiment
	Risks     []Risk
	Catalysts []Catalyst
}

// output is the JSON document the prompt asks for.
type output struct {
	ExecutiveSummary string `json:"executive_summary"`
	Sentiment        struct {
		Label      string   `json:"label"`
		Confidence float64  `json:"confidence"`
		Drivers    []string `json:"drivers"`
	} `json:"sentiment"`
	TechnicalOutlook struct {
		Summary            string `json:"summary"`
		Trend              string `json:"trend"`
		MomentumIndicators string `json:"momentum_indicators"`
	} `json:"technical_outlook"`
	FundamentalAssessment struct {
		Summary             string   `json:"summary"`
		Strengths           []string `json:"strengths"`
		Weaknesses          []string `json:"weaknesses"`
		ValuationAssessment string   `json:"valuation_assessment"`
	} `json:"fundamental_assessment"`
	Recommendation struct {
		Action      string  `json:"action"`
		Confidence  float64 `json:"confidence"`
		TimeHorizon string  `json:"time_horizon"`
		Rationale   string  `json:"rationale"`
	} `json:"recommendation"`
	Risks     []Risk     `json:"risks"`
	Catalysts []Catalyst `json:"catalysts"`
}

var (
	labels  = map[string]bool{"BULLISH": true, "BEARISH": true, "NEUTRAL": true}
	actions = map[string]bool{"BUY": true, "SELL": true, "HOLD": true, "WATCH": true}
)

func (o *output) validate() error {
	o.Sentiment.Label = strings.ToUpper(strings.TrimSpace(o.Sentiment.Label))
	o.Recommendation.Action = strings.ToUpper(strings.TrimSpace(o.Recommendation.Action))
	switch {
	case strings.TrimSpace(o.ExecutiveSummary) == "":
		return fmt.Errorf("executive_summary is empty")
	case !labels[o.Sentiment.Label]:
		return fmt.Errorf("sentiment.label %q", o.Sentiment.Label)
	case o.Sentiment.Confidence < 0 || o.Sentiment.Confidence > 1:
		return fmt.Errorf("sentiment.confidence %v out of [0,1]", o.Sentiment.Confidence)
	case !actions[o.Recommendation.Action]:
		return fmt.Errorf("recommendation.action %q", o.Recommendation.Action)
	}
	return nil
}

// IsErrorMarker reports whether content is an error the model gateway
// returned in place of an answer.
func IsErrorMarker(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "[ERROR]")
}

// Parse reads a model answer. JSON that validates becomes Structured;
// anything else is kept as PlainText.
func Parse(content string) Analysis {
	var o output
	if err := json.Unmarshal([]byte(stripFences(content)), &o); err == nil && o.validate() == nil {
		return structured(o, content)
	}
	return Analysis{
		Sections: Sections{
			ExecutiveSummary:  truncate(content, summaryRunes),
			SentimentAnalysis: content,
			FullAnalysis:      content,
		},
		Sentiment: PlainText{Text: content},
	}
}

func structured(o output, raw string) Analysis {
	drivers := capped(o.Sentiment.Drivers, maxDrivers)
	verdict := fmt.Sprintf("%s (confidence %.0f%%)", o.Sentiment.Label, o.Sentiment.Confidence*100)
	if len(drivers) > 0 {
		verdict += ": " + strings.Join(drivers, "; ")
	}

	technical := o.TechnicalOutlook.Summary
	if o.TechnicalOutlook.MomentumIndicators != "" {
		technical += "\n\n" + o.TechnicalOutlook.MomentumIndicators
	}
	fundamental := o.FundamentalAssessment.Summary
	if o.FundamentalAssessment.ValuationAssessment != "" {
		fundamental += "\n\nValuation: " + o.FundamentalAssessment.ValuationAssessment
	}
	rec := o.Recommendation.Action
	if o.Recommendation.TimeHorizon != "" {
		rec += " (" + o.Recommendation.TimeHorizon + ")"
	}
	if o.Recommendation.Rationale != "" {
		rec += ": " + o.Recommendation.Rationale
	}

	return Analysis{
		Sections: Sections{
			ExecutiveSummary:         o.ExecutiveSummary,
			SentimentAnalysis:        verdict,
			TechnicalOutlook:         technical,
			FundamentalAssessment:    fundamental,
			InvestmentRecommendation: rec,
			FullAnalysis:             raw,
		},
		Sentiment: Structured{
			Label:      o.Sentiment.Label,
			Confidence: o.Sentiment.Confidence,
			Drivers:    drivers,
		},
		Risks:     capped(o.Risks, maxRisks),
		Catalysts: capped(o.Catalysts, maxCatalysts),
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func capped[T any](v []T, n int) []T {
	if len(v) > n {
		return v[:n]
	}
	return v
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
