package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacesedan/sentiharvest/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redditServer struct {
	*httptest.Server
	tokens   atomic.Int32
	handlers map[string]http.HandlerFunc
}

func newRedditServer(t *testing.T, handlers map[string]http.HandlerFunc) *redditServer {
	t.Helper()
	rs := &redditServer{handlers: handlers}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			n := rs.tokens.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"bearer","expires_in":3600}`, n)
			return
		}
		if r.Header.Get("User-Agent") != "test-agent/1.0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h, ok := rs.handlers[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func newTestRedditClient(rs *redditServer) *RedditClient {
	cfg := &config.Config{
		RedditClientID:     "id",
		RedditClientSecret: "secret",
		RedditUserAgent:    "test-agent/1.0",
		RequestsPerMinute:  600000,
	}
	return NewRedditClient(cfg,
		WithEndpoints(rs.URL+"/api/v1/access_token", rs.URL),
		WithBackoff(time.Millisecond, 4*time.Millisecond, 3))
}

func post(id string, created int) string {
	return fmt.Sprintf(`{"kind":"t3","data":{"id":%q,"title":"Title %s","selftext":"Body %s","author":"user_%s",
		"score":12,"upvote_ratio":0.91,"num_comments":4,"created_utc":%d.0,"url":"https://example.com/%s",
		"permalink":"/r/nyc/comments/%s/title/"}}`, id, id, id, id, created, id, id)
}

func TestRedditClient_ListByRecencyPaginates(t *testing.T) {
	var afters []string
	rs := newRedditServer(t, map[string]http.HandlerFunc{
		"/r/nyc/new": func(w http.ResponseWriter, r *http.Request) {
			afters = append(afters, r.URL.Query().Get("after"))
			assert.Equal(t, "1", r.URL.Query().Get("raw_json"))
			assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			if r.URL.Query().Get("after") == "" {
				fmt.Fprintf(w, `{"kind":"Listing","data":{"after":"t3_b","children":[%s,%s]}}`, post("a", 1700000000), post("b", 1700000100))
				return
			}
			fmt.Fprintf(w, `{"kind":"Listing","data":{"after":null,"children":[%s]}}`, post("c", 1700000200))
		},
	})
	rc := newTestRedditClient(rs)

	items, err := rc.ListByRecency(context.Background(), "nyc", 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"", "t3_b"}, afters)

	a := items[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "Title a", a.Title)
	assert.Equal(t, "Body a", a.Body)
	assert.Equal(t, "user_a", a.Author)
	assert.Equal(t, 12, a.Score)
	assert.Equal(t, 0.91, a.UpvoteRatio)
	assert.Equal(t, 4, a.NumComments)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), a.CreatedAt)
	assert.Equal(t, "/r/nyc/comments/a/title/", a.Permalink)
}

func TestRedditClient_ListStopsAtLimit(t *testing.T) {
	rs := newRedditServer(t, map[string]http.HandlerFunc{
		"/r/nyc/top": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "week", r.URL.Query().Get("t"))
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			fmt.Fprintf(w, `{"kind":"Listing","data":{"after":"t3_c","children":[%s,%s,%s]}}`,
				post("a", 1), post("b", 2), post("c", 3))
		},
	})
	items, err := newTestRedditClient(rs).ListTopInRange(context.Background(), "nyc", "week", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRedditClient_RefreshesTokenOnUnauthorized(t *testing.T) {
	var calls atomic.Int32
	rs := newRedditServer(t, map[string]http.HandlerFunc{
		"/r/nyc/hot": func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"))
			fmt.Fprintf(w, `{"kind":"Listing","data":{"children":[%s]}}`, post("a", 1))
		},
	})

	items, err := newTestRedditClient(rs).ListByRank(context.Background(), "nyc", 5)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(2), rs.tokens.Load())
}

func TestRedditClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	rs := newRedditServer(t, map[string]http.HandlerFunc{
		"/r/nyc/new": func(w http.ResponseWriter, r *http.Request) {
			switch calls.Add(1) {
			case 1:
				w.WriteHeader(http.StatusTooManyRequests)
			case 2:
				w.WriteHeader(http.StatusBadGateway)
			default:
				fmt.Fprintf(w, `{"kind":"Listing","data":{"children":[%s]}}`, post("a", 1))
			}
		},
	})

	items, err := newTestRedditClient(rs).ListByRecency(context.Background(), "nyc", 5)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRedditClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	rs := newRedditServer(t, map[string]http.HandlerFunc{
		"/r/nyc/new": func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})

	_, err := newTestRedditClient(rs).ListByRecency(context.Background(), "nyc", 5)
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestRedditClient_CheckUnit(t *testing.T) {
	rs := newRedditServer(t, map[string]http.HandlerFunc{
		"/r/nyc/about": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"kind":"t5","data":{"display_name":"nyc","subscribers":1200000}}`)
		},
		"/r/private/about": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	})
	rc := newTestRedditClient(rs)

	assert.NoError(t, rc.CheckUnit(context.Background(), "nyc"))
	assert.True(t, errors.Is(rc.CheckUnit(context.Background(), "missing"), ErrUnitNotFound))
	assert.True(t, errors.Is(rc.CheckUnit(context.Background(), "private"), ErrForbidden))
}

func TestRedditClient_MissingPostIsNotAMissingUnit(t *testing.T) {
	rc := newTestRedditClient(newRedditServer(t, nil))

	_, err := rc.FetchReplies(context.Background(), "gone", "top")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnitNotFound)

	assert.ErrorIs(t, rc.CheckUnit(context.Background(), "gone"), ErrUnitNotFound)
}

func TestRedditClient_FetchRepliesBuildsTree(t *testing.T) {
	rs := newRedditServer(t, map[string]http.HandlerFunc{
		"/comments/p1": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "top", r.URL.Query().Get("sort"))
			fmt.Fprint(w, `[
				{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"p1"}}]}},
				{"kind":"Listing","data":{"children":[
					{"kind":"t1","data":{"id":"c1","author":"ann","body":"top level","score":10,"created_utc":1700000000,
						"permalink":"/r/nyc/comments/p1/_/c1/","depth":0,
						"replies":{"kind":"Listing","data":{"children":[
							{"kind":"t1","data":{"id":"c2","author":"ben","body":"nested","score":3,"depth":1,"replies":""}},
							{"kind":"more","data":{"count":7,"children":["x","y"]}}
						]}}}},
					{"kind":"t1","data":{"id":"c3","author":"[deleted]","body":"[removed]","score":-1,"depth":0,"replies":""}}
				]}}
			]`)
		},
	})

	tree, err := newTestRedditClient(rs).FetchReplies(context.Background(), "p1", "top")
	require.NoError(t, err)
	require.Len(t, tree, 2)

	c1 := tree[0]
	assert.Equal(t, "c1", c1.ID)
	assert.Equal(t, "ann", c1.Author)
	assert.Equal(t, 10, c1.Score)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), c1.CreatedAt)
	require.Len(t, c1.Children, 2)
	assert.Equal(t, "c2", c1.Children[0].ID)
	assert.Equal(t, 1, c1.Children[0].Depth)
	assert.True(t, c1.Children[1].IsMore)

	assert.Equal(t, "c3", tree[1].ID)
	assert.Empty(t, tree[1].Children)
}
