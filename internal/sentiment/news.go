package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Headline is one news item passed to the model.
type Headline struct {
	Title       string `json:"title"`
	Source      string `json:"source,omitempty"`
	URL         string `json:"url,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// NewsProvider returns recent company headlines.
type NewsProvider interface {
	Headlines(ctx context.Context, ticker string, limit int) ([]Headline, error)
}

// YahooNews reads headlines from Yahoo's search endpoint.
type YahooNews struct {
	client *resty.Client
}

const DefaultYahooSearchURL = "https://query1.finance.yahoo.com"

func NewYahooNews(baseURL string) *YahooNews {
	if baseURL == "" {
		baseURL = DefaultYahooSearchURL
	}
	return &YahooNews{client: resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", "Mozilla/5.0")}
}

func (y *YahooNews) Headlines(ctx context.Context, ticker string, limit int) ([]Headline, error) {
	var out struct {
		News []struct {
			Title       string `json:"title"`
			Publisher   string `json:"publisher"`
			Link        string `json:"link"`
			PublishTime int64  `json:"providerPublishTime"`
		} `json:"news"`
	}
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":           ticker,
			"quotesCount": "0",
			"newsCount":   fmt.Sprint(limit),
		}).
		SetResult(&out).
		Get("/v1/finance/search")
	if err != nil {
		return nil, fmt.Errorf("news %s: %w", ticker, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("news %s: status %d", ticker, resp.StatusCode())
	}

	headlines := make([]Headline, 0, len(out.News))
	for _, n := range out.News {
		if strings.TrimSpace(n.Title) == "" {
			continue
		}
		h := Headline{Title: n.Title, Source: n.Publisher, URL: n.Link}
		if n.PublishTime > 0 {
			h.PublishedAt = time.Unix(n.PublishTime, 0).UTC().Format(time.RFC3339)
		}
		headlines = append(headlines, h)
		if len(headlines) == limit {
			break
		}
	}
	return headlines, nil
}

// formatHeadlines renders headlines as a numbered list.
func formatHeadlines(headlines []Headline) string {
	if len(headlines) == 0 {
		return "No recent news available."
	}
	var b strings.Builder
	for i, h := range headlines {
		fmt.Fprintf(&b, "%d. %s", i+1, h.Title)
		if h.Source != "" {
			fmt.Fprintf(&b, " (%s", h.Source)
			if len(h.PublishedAt) >= 10 {
				fmt.Fprintf(&b, ", %s", h.PublishedAt[:10])
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
