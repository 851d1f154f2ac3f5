package clients

import "time"

const (
	MAX_RETRIES     = 5
	INITIAL_BACKOFF = 1 * time.Second
	MAX_BACKOFF     = 32 * time.Second
	REQUEST_TIMEOUT = 30 * time.Second

	REDDIT_AUTH_URL       = "https://www.reddit.com/api/v1/access_token"
	REDDIT_API_URL        = "https://oauth.reddit.com"
	REDDIT_MAX_PAGE_LIMIT = 100
)
