// Package reddit searches Reddit link posts through the OAuth API using
// application-only (client credentials) auth.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"brandpulse/internal/domain"
	"brandpulse/internal/httpx"
	"brandpulse/internal/logger"
	"brandpulse/internal/metrics"
	"brandpulse/internal/pacing"
)

const (
	Source = "reddit"

	defaultAuthURL      = "https://www.reddit.com/api/v1/access_token"
	defaultAPIURL       = "https://oauth.reddit.com"
	defaultUserAgent    = "brandpulse/1.0"
	defaultMaxPages     = 15
	defaultPageInterval = time.Second
	pageLimit           = 100
)

var (
	// ErrRateLimited is returned when Reddit answers 429 before any posts
	// were collected. Callers may retry later; the client never waits.
	ErrRateLimited        = errors.New("reddit rate limit exceeded")
	ErrMissingCredentials = errors.New("reddit client id and secret are required")
)

type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	MaxPages     int
	PageInterval time.Duration

	AuthURL    string
	APIURL     string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

type Client struct {
	cfg   Config
	http  *http.Client
	log   *logger.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.PageInterval <= 0 {
		cfg.PageInterval = defaultPageInterval
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httpx.ExternalHTTPClient()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Client{cfg: cfg, http: httpClient, log: log, sleep: pacing.Sleep}
}

// Query is a search term bounded to a creation-time window (inclusive).
type Query struct {
	Term  string
	Start time.Time
	End   time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
}

type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("reddit returned %d: %s", e.Status, e.Body)
}

// Search pages through relevance-sorted results, keeping posts created
// inside the query window. It stops at an empty page, a missing cursor, or
// MaxPages. A failure after some posts were collected ends the search early
// and returns what was gathered.
func (c *Client) Search(ctx context.Context, q Query) ([]domain.Record, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var (
		records []domain.Record
		seen    = make(map[string]bool)
		after   string
	)
	for page := 1; page <= c.cfg.MaxPages; page++ {
		if page > 1 {
			if err := c.sleep(ctx, c.cfg.PageInterval); err != nil {
				return records, err
			}
		}

		result, err := c.searchPage(ctx, token, q.Term, after)
		if err != nil {
			metrics.ObserveSearchPage(metrics.OutcomeError)
			var se *statusError
			rateLimited := errors.As(err, &se) && se.Status == http.StatusTooManyRequests
			if len(records) == 0 {
				if rateLimited {
					return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
				}
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return records, ctxErr
			}
			c.log.Warn("reddit search stopped early", "term", q.Term, "page", page, "collected", len(records), "error", err)
			break
		}
		metrics.ObserveSearchPage(metrics.OutcomeSuccess)

		for _, child := range result.Data.Children {
			p := child.Data
			if p.ID == "" || seen[p.ID] {
				continue
			}
			created := time.Unix(int64(p.CreatedUTC), 0).UTC()
			if created.Before(q.Start) || created.After(q.End) {
				continue
			}
			seen[p.ID] = true
			records = append(records, toRecord(p, created))
		}
		c.log.Debug("reddit search page", "term", q.Term, "page", page, "children", len(result.Data.Children), "collected", len(records))

		if len(result.Data.Children) == 0 || result.Data.After == "" {
			break
		}
		after = result.Data.After
	}

	c.log.Info("reddit search done", "term", q.Term, "records", len(records))
	return records, nil
}

func toRecord(p post, created time.Time) domain.Record {
	text := strings.TrimSpace(p.Title)
	if body := strings.TrimSpace(p.Selftext); body != "" {
		text += "\n\n" + body
	}
	var link string
	if p.Permalink != "" {
		link = "https://reddit.com" + p.Permalink
	}
	return domain.Record{
		Source:     Source,
		SourceID:   p.ID,
		Author:     p.Author,
		Community:  p.Subreddit,
		URL:        link,
		Text:       text,
		Engagement: p.Score,
		Timestamp:  created,
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	body, err := c.do(req)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("reddit token: %w", err)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parsing reddit token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("reddit token response missing access_token")
	}
	return tok.AccessToken, nil
}

func (c *Client) searchPage(ctx context.Context, token, term, after string) (listing, error) {
	params := url.Values{
		"q":     {term},
		"sort":  {"relevance"},
		"limit": {fmt.Sprint(pageLimit)},
		"type":  {"link"},
	}
	if after != "" {
		params.Set("after", after)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return listing{}, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	body, err := c.do(req)
	if err != nil {
		return listing{}, err
	}
	var result listing
	if err := json.Unmarshal(body, &result); err != nil {
		return listing{}, fmt.Errorf("parsing search response: %w", err)
	}
	return result, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
