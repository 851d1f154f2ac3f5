package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spacesedan/sentiharvest/config"
	"github.com/valkey-io/valkey-go"
)

const (
	VALKEY_REPLIES_KEY_PREFIX = "sentiharvest:replies:"
	VALKEY_RETRIES            = 3
	VALKEY_RETRY_DELAY        = 250 * time.Millisecond
)

// ValkeyClient remembers which items had their replies harvested recently.
// Each item id gets its own key so entries expire independently.
type ValkeyClient struct {
	Client   valkey.Client
	opts     valkey.ClientOption
	cooldown time.Duration
	mu       sync.Mutex
}

func NewValkeyClient(ctx context.Context, cfg *config.Config) (*ValkeyClient, error) {
	opts := valkey.ClientOption{
		InitAddress:      []string{cfg.ValkeyAddress},
		Password:         cfg.ValkeyPassword,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
		DisableCache:     true,
	}
	if cfg.ValkeyTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	client, err := connectValkey(ctx, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey",
		slog.String("address", cfg.ValkeyAddress))
	return &ValkeyClient{Client: client, opts: opts, cooldown: cfg.ReplyCooldown()}, nil
}

func connectValkey(ctx context.Context, opts valkey.ClientOption) (valkey.Client, error) {
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}
	return client, nil
}

func (vc *ValkeyClient) recreateClient(ctx context.Context) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
	client, err := connectValkey(ctx, vc.opts)
	if err != nil {
		slog.Error("[ValkeyClient] Recreate failed", slog.String("error", err.Error()))
		return
	}
	vc.Client.Close()
	vc.Client = client
	slog.Info("[ValkeyClient] Successfully reconnected to valkey")
}

func (vc *ValkeyClient) client() valkey.Client {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.Client
}

func (vc *ValkeyClient) Close() {
	vc.client().Close()
}

// MarkHarvested starts the cooldown for each item id.
func (vc *ValkeyClient) MarkHarvested(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	seconds := int64(vc.cooldown / time.Second)
	build := func(c valkey.Client) []valkey.Completed {
		cmds := make([]valkey.Completed, 0, len(itemIDs))
		for _, id := range itemIDs {
			cmds = append(cmds, c.B().Set().Key(RepliesKey(id)).Value("1").ExSeconds(seconds).Build())
		}
		return cmds
	}

	for _, res := range vc.DoMultiWithRetry(ctx, build, VALKEY_RETRIES) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("failed to mark replies harvested: %w", err)
		}
	}

	slog.Debug("[ValkeyClient] Marked replies harvested", slog.Int("items", len(itemIDs)))
	return nil
}

// FilterUnharvested returns the ids, in input order, that are not inside their cooldown.
func (vc *ValkeyClient) FilterUnharvested(ctx context.Context, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = RepliesKey(id)
	}

	res := vc.DoWithRetry(ctx, func(c valkey.Client) valkey.Completed {
		return c.B().Mget().Key(keys...).Build()
	}, VALKEY_RETRIES)
	if err := res.Error(); err != nil {
		return nil, fmt.Errorf("failed to read reply cooldowns: %w", err)
	}

	values, err := res.ToArray()
	if err != nil {
		return nil, fmt.Errorf("failed to decode reply cooldowns: %w", err)
	}

	pending := make([]string, 0, len(itemIDs))
	for i, id := range itemIDs {
		if i >= len(values) || values[i].IsNil() {
			pending = append(pending, id)
		}
	}
	return pending, nil
}

func RepliesKey(itemID string) string {
	return VALKEY_REPLIES_KEY_PREFIX + itemID
}

// DoMultiWithRetry builds the commands afresh on every attempt. A Completed is
// recycled once sent, so it must not be resent.
func (vc *ValkeyClient) DoMultiWithRetry(ctx context.Context, build func(valkey.Client) []valkey.Completed, retries int) []valkey.ValkeyResult {
	var results []valkey.ValkeyResult

	for i := 0; i < retries; i++ {
		c := vc.client()
		results = c.DoMulti(ctx, build(c)...)
		var failed error
		for _, r := range results {
			if r.Error() != nil {
				failed = r.Error()
				break
			}
		}
		if failed == nil {
			break
		}

		slog.Warn("[ValkeyClient] Do Multi failed",
			slog.Int("attempt", i+1),
			slog.String("error", failed.Error()))
		if isConnectionError(failed) {
			vc.recreateClient(ctx)
		}
		if !sleepCtx(ctx, VALKEY_RETRY_DELAY) {
			break
		}
	}

	return results
}

func (vc *ValkeyClient) DoWithRetry(ctx context.Context, build func(valkey.Client) valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		c := vc.client()
		result = c.Do(ctx, build(c))
		if result.Error() == nil {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", result.Error().Error()))
		if isConnectionError(result.Error()) {
			vc.recreateClient(ctx)
		}
		if !sleepCtx(ctx, VALKEY_RETRY_DELAY) {
			break
		}
	}

	return result
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
