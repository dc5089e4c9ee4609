// Package reddit collects social posts mentioning tracked symbols from the
// investing subreddits, via the OAuth client-credentials flow.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/clients/fetch"
	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
)

const (
	tokenURL   = "https://www.reddit.com/api/v1/access_token"
	apiBaseURL = "https://oauth.reddit.com"
	sourceName = "reddit"
)

// Subreddits searched for symbol mentions.
var subreddits = []string{"stocks", "investing", "wallstreetbets", "StockMarket"}

// ErrNotConfigured is returned when no Reddit credentials are present.
var ErrNotConfigured = errors.New("reddit credentials not configured")

// Client is the Reddit adapter.
type Client struct {
	creds   config.SourceCredentials
	fetcher *fetch.Client
	http    *http.Client
	log     zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(creds config.SourceCredentials, limit config.RateLimit, log zerolog.Logger) *Client {
	return &Client{
		creds:   creds,
		fetcher: fetch.New(sourceName, limit, log),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", sourceName).Logger(),
	}
}

// Name implements config.SelfTester.
func (c *Client) Name() string { return sourceName }

// SelfTest verifies the credentials by acquiring a token.
func (c *Client) SelfTest(ctx context.Context) domain.APIStatus {
	if !c.creds.Configured() {
		return domain.APIInvalidCredentials
	}
	if _, err := c.accessToken(ctx); err != nil {
		if errors.Is(err, errAuthRejected) {
			return domain.APIInvalidCredentials
		}
		return domain.APIFailed
	}
	return domain.APIHealthy
}

var errAuthRejected = errors.New("auth rejected")

// accessToken returns a valid bearer token, refreshing when the cached one
// is within a minute of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.creds.APIKey, c.creds.APISecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: status %d", errAuthRejected, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := jsonDecode(resp, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", errAuthRejected
	}

	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	c.log.Debug().Msg("access token refreshed")
	return c.token, nil
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Subreddit   string  `json:"subreddit"`
				Author      string  `json:"author"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Score       int64   `json:"score"`
				UpvoteRatio float64 `json:"upvote_ratio"`
				NumComments int64   `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
				Permalink   string  `json:"permalink"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchPosts searches the tracked subreddits for recent posts mentioning
// the symbol. Posts without a creation timestamp are dropped.
func (c *Client) FetchPosts(ctx context.Context, symbol string) ([]domain.SocialPost, error) {
	if !c.creds.Configured() {
		return nil, ErrNotConfigured
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"User-Agent":    c.creds.UserAgent,
	}

	var posts []domain.SocialPost
	for _, sub := range subreddits {
		u := fmt.Sprintf("%s/r/%s/search?q=%s&restrict_sr=1&sort=new&t=week&limit=25",
			apiBaseURL, sub, url.QueryEscape(symbol))

		var listing listingResponse
		if err := c.fetcher.GetJSON(ctx, u, headers, &listing); err != nil {
			if errors.Is(err, fetch.ErrRateLimited) {
				return posts, err
			}
			c.log.Warn().Err(err).Str("subreddit", sub).Str("symbol", symbol).
				Msg("subreddit search failed, continuing with the rest")
			continue
		}

		for _, child := range listing.Data.Children {
			d := child.Data
			if d.CreatedUTC <= 0 {
				continue
			}
			if !mentionsSymbol(symbol, d.Title, d.Selftext) {
				continue
			}
			posts = append(posts, domain.SocialPost{
				ExternalID:  d.ID,
				Symbol:      symbol,
				Channel:     d.Subreddit,
				Author:      d.Author,
				Title:       d.Title,
				Text:        d.Selftext,
				Score:       d.Score,
				UpvoteRatio: d.UpvoteRatio,
				NumComments: d.NumComments,
				CreatedUTC:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
				URL:         "https://www.reddit.com" + d.Permalink,
				Quality:     1.0,
			})
		}
	}
	return posts, nil
}

// mentionsSymbol filters out search noise: the symbol must appear as a
// standalone token or cashtag.
func mentionsSymbol(symbol, title, text string) bool {
	haystack := strings.ToUpper(title + " " + text)
	needle := strings.ToUpper(symbol)
	for _, candidate := range []string{"$" + needle, needle} {
		idx := strings.Index(haystack, candidate)
		for idx >= 0 {
			before := idx == 0 || !isWordChar(haystack[idx-1])
			afterIdx := idx + len(candidate)
			after := afterIdx >= len(haystack) || !isWordChar(haystack[afterIdx])
			if before && after {
				return true
			}
			next := strings.Index(haystack[idx+1:], candidate)
			if next < 0 {
				break
			}
			idx += 1 + next
		}
	}
	return false
}

func isWordChar(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func jsonDecode(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}
	return nil
}
