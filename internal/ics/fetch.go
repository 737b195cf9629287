package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "calwatch/internal/log"
)

// fetchTimeout bounds one feed request end to end.
const fetchTimeout = 10 * time.Second

// Feed identifies one iCal media-release feed.
type Feed struct {
	// BaseURL is the feed host, e.g. "https://releases.example.com".
	BaseURL string
	// APIKey is sent as the apikey query parameter.
	APIKey string
	// Name is the calendar name in the feed path.
	Name string
	// SourceName is the logical name stamped on produced events.
	SourceName string
}

// URL builds the feed endpoint: {base}/feed/v3/calendar/<Name>.ics?apikey=<key>.
func (f Feed) URL() (string, error) {
	if f.BaseURL == "" {
		return "", errors.New("feed base URL is empty")
	}
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("feed", "v3", "calendar", f.Name+".ics")
	q := u.Query()
	q.Set("apikey", f.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetcher retrieves raw feed bodies over HTTP.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch performs one GET of the feed and returns the raw ICS payload.
// Any non-2xx status is a fetch failure.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]byte, error) {
	endpoint, err := feed.URL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	appLog.Info("ics fetch start", "source", feed.SourceName, "url", redactURL(endpoint))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ics fetch: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	appLog.Info("ics fetch success", "source", feed.SourceName, "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// redactURL strips the query string (the apikey) before a URL reaches
// the log.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "ics://...(redacted)"
	}
	parsed.RawQuery = ""
	return parsed.String()
}
