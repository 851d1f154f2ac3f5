package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spacesedan/sentiharvest/config"
	"github.com/spacesedan/sentiharvest/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnitNotFound = errors.New("unit not found")
	ErrForbidden    = errors.New("access forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RedditClient talks to the Reddit OAuth API with application-only credentials.
// It implements fetcher.Source and fetcher.ReplySource.
type RedditClient struct {
	Config    *clientcredentials.Config
	Client    *http.Client
	apiURL    string
	userAgent string
	limiter   *rate.Limiter
	mu        sync.Mutex

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxRetries     int
}

type RedditOption func(*RedditClient)

// WithEndpoints points the client at alternative auth and API hosts.
func WithEndpoints(authURL, apiURL string) RedditOption {
	return func(rc *RedditClient) {
		rc.Config.TokenURL = authURL
		rc.apiURL = strings.TrimRight(apiURL, "/")
	}
}

func WithBackoff(initial, maxBackoff time.Duration, retries int) RedditOption {
	return func(rc *RedditClient) {
		rc.initialBackoff = initial
		rc.maxBackoff = maxBackoff
		rc.maxRetries = retries
	}
}

func NewRedditClient(cfg *config.Config, opts ...RedditOption) *RedditClient {
	rc := &RedditClient{
		Config: &clientcredentials.Config{
			ClientID:     cfg.RedditClientID,
			ClientSecret: cfg.RedditClientSecret,
			TokenURL:     REDDIT_AUTH_URL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		apiURL:         REDDIT_API_URL,
		userAgent:      cfg.RedditUserAgent,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(cfg.RequestsPerMinute, 1))), 1),
		initialBackoff: INITIAL_BACKOFF,
		maxBackoff:     MAX_BACKOFF,
		maxRetries:     MAX_RETRIES,
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.Client = rc.newHTTPClient()
	return rc
}

func (rc *RedditClient) newHTTPClient() *http.Client {
	base := &http.Client{
		Timeout:   REQUEST_TIMEOUT,
		Transport: &userAgentTransport{userAgent: rc.userAgent, next: http.DefaultTransport},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := rc.Config.Client(ctx)
	client.Timeout = REQUEST_TIMEOUT
	return client
}

// RefreshClient drops the cached token so the next request authenticates again.
func (rc *RedditClient) RefreshClient() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Client = rc.newHTTPClient()
}

func (rc *RedditClient) httpClient() *http.Client {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.Client
}

func (rc *RedditClient) CheckUnit(ctx context.Context, unit string) error {
	body, err := rc.get(ctx, "/r/"+url.PathEscape(unit)+"/about", nil)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: r/%s", ErrUnitNotFound, unit)
	}
	if err != nil {
		return err
	}

	var thing models.RedditThing
	if err := json.Unmarshal(body, &thing); err != nil {
		return fmt.Errorf("failed to decode about response: %w", err)
	}
	if thing.Kind != models.REDDIT_KIND_SUBREDDIT {
		return fmt.Errorf("%w: r/%s", ErrUnitNotFound, unit)
	}

	var about models.RedditSubredditData
	if err := json.Unmarshal(thing.Data, &about); err != nil {
		return fmt.Errorf("failed to decode subreddit: %w", err)
	}

	slog.Info("[RedditClient] Connected to subreddit",
		slog.String("unit", about.DisplayName),
		slog.Int("subscribers", about.Subscribers))
	return nil
}

func (rc *RedditClient) ListByRecency(ctx context.Context, unit string, limit int) ([]models.RawItem, error) {
	return rc.listing(ctx, unit, "new", nil, limit)
}

func (rc *RedditClient) ListByRank(ctx context.Context, unit string, limit int) ([]models.RawItem, error) {
	return rc.listing(ctx, unit, "hot", nil, limit)
}

func (rc *RedditClient) ListTopInRange(ctx context.Context, unit, rangeFilter string, limit int) ([]models.RawItem, error) {
	return rc.listing(ctx, unit, "top", url.Values{"t": {rangeFilter}}, limit)
}

// listing pages through /r/{unit}/{sort} until limit posts are collected or
// the listing runs out.
func (rc *RedditClient) listing(ctx context.Context, unit, sort string, extra url.Values, limit int) ([]models.RawItem, error) {
	var items []models.RawItem
	after := ""

	for len(items) < limit {
		query := url.Values{}
		for k, v := range extra {
			query[k] = v
		}
		query.Set("limit", strconv.Itoa(min(limit-len(items), REDDIT_MAX_PAGE_LIMIT)))
		query.Set("raw_json", "1")
		if after != "" {
			query.Set("after", after)
		}

		body, err := rc.get(ctx, "/r/"+url.PathEscape(unit)+"/"+sort, query)
		if err != nil {
			return nil, err
		}

		var listing models.RedditListing
		if err := json.Unmarshal(body, &listing); err != nil {
			return nil, fmt.Errorf("failed to decode %s listing: %w", sort, err)
		}

		for _, child := range listing.Data.Children {
			if child.Kind != models.REDDIT_KIND_POST {
				continue
			}
			var post models.RedditPostData
			if err := json.Unmarshal(child.Data, &post); err != nil {
				return nil, fmt.Errorf("failed to decode post: %w", err)
			}
			items = append(items, rawItemFromPost(post))
			if len(items) == limit {
				break
			}
		}

		if listing.Data.After == "" || len(listing.Data.Children) == 0 {
			break
		}
		after = listing.Data.After
	}

	return items, nil
}

// FetchReplies returns the reply tree of a post. Truncated branches come back
// as IsMore placeholders.
func (rc *RedditClient) FetchReplies(ctx context.Context, itemID, sortOrder string) ([]models.RawReply, error) {
	query := url.Values{"raw_json": {"1"}}
	if sortOrder != "" {
		query.Set("sort", sortOrder)
	}

	body, err := rc.get(ctx, "/comments/"+url.PathEscape(itemID), query)
	if err != nil {
		return nil, err
	}

	var listings []models.RedditListing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode comments for %s: %w", itemID, err)
	}
	if len(listings) < 2 {
		return nil, nil
	}

	return parseReplies(listings[1].Data.Children)
}

func parseReplies(children []models.RedditThing) ([]models.RawReply, error) {
	var replies []models.RawReply
	for _, child := range children {
		switch child.Kind {
		case models.REDDIT_KIND_MORE:
			replies = append(replies, models.RawReply{IsMore: true})
		case models.REDDIT_KIND_COMMENT:
			var c models.RedditCommentData
			if err := json.Unmarshal(child.Data, &c); err != nil {
				return nil, fmt.Errorf("failed to decode comment: %w", err)
			}

			reply := models.RawReply{
				ID:        c.ID,
				Author:    c.Author,
				Body:      c.Body,
				Score:     c.Score,
				CreatedAt: fromUnix(c.CreatedUTC),
				Permalink: c.Permalink,
				Depth:     c.Depth,
			}

			// replies is "" when the comment has none
			if len(c.Replies) > 0 && c.Replies[0] == '{' {
				var nested models.RedditListing
				if err := json.Unmarshal(c.Replies, &nested); err != nil {
					return nil, fmt.Errorf("failed to decode replies of %s: %w", c.ID, err)
				}
				kids, err := parseReplies(nested.Data.Children)
				if err != nil {
					return nil, err
				}
				reply.Children = kids
			}
			replies = append(replies, reply)
		}
	}
	return replies, nil
}

func rawItemFromPost(p models.RedditPostData) models.RawItem {
	author := p.Author
	if author == "[deleted]" {
		author = ""
	}
	return models.RawItem{
		ID:          p.ID,
		Title:       p.Title,
		Body:        p.Selftext,
		Author:      author,
		CreatedAt:   fromUnix(p.CreatedUTC),
		Score:       p.Score,
		UpvoteRatio: p.UpvoteRatio,
		NumComments: p.NumComments,
		URL:         p.URL,
		Permalink:   p.Permalink,
	}
}

func fromUnix(sec float64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}

// get performs a rate-limited GET against the API. A 401 re-authenticates once;
// 429 and 5xx responses and transport errors are retried with backoff.
func (rc *RedditClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := rc.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	backoff := rc.initialBackoff
	refreshed := false

	for attempt := 0; ; attempt++ {
		if err := rc.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := rc.do(ctx, endpoint)
		if err == nil && status == http.StatusOK {
			return body, nil
		}

		switch {
		case err != nil:
			slog.Warn("[RedditClient] Request failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		case status == http.StatusUnauthorized:
			if refreshed {
				return nil, fmt.Errorf("%w: %s", ErrUnauthorized, path)
			}
			slog.Warn("[RedditClient] Token expired - Refreshing and Retrying...")
			rc.RefreshClient()
			refreshed = true
			continue
		case status == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		case status == http.StatusForbidden:
			return nil, fmt.Errorf("%w: %s", ErrForbidden, path)
		case status == http.StatusTooManyRequests || status >= 500:
			slog.Warn("[RedditClient] Retryable response",
				slog.String("path", path),
				slog.Int("status", status))
		default:
			return nil, fmt.Errorf("unexpected status %d for %s", status, path)
		}

		if attempt >= rc.maxRetries {
			if err == nil {
				err = fmt.Errorf("status %d", status)
			}
			return nil, fmt.Errorf("max retries reached for %s: %w", path, err)
		}

		slog.Warn("[RedditClient] Retrying request",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > rc.maxBackoff {
			backoff = rc.maxBackoff
		}
	}
}

func (rc *RedditClient) do(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}
