package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pingsantohq/slotwatch/pkg/types"
)

const (
	defaultGame    = "IW5"
	defaultTimeout = 10 * time.Second
	userAgent      = "slotwatch/0.1.0"
)

// ErrSourceUnavailable marks any transport, status or decode failure of a
// directory fetch. Callers treat it as a recoverable per-cycle failure.
var ErrSourceUnavailable = errors.New("server directory unavailable")

// Config holds the static configuration for a directory Client.
type Config struct {
	Endpoint string
	Game     string
	Timeout  time.Duration
	// MinSpacing is the minimum delay between two requests. Zero disables pacing.
	MinSpacing time.Duration
}

// Dependencies allow test overrides for HTTP client, clock, and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *log.Logger
}

// Client fetches and filters the server list published by one directory endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	game       string
	limiter    *rate.Limiter
	now        func() time.Time
	logger     *log.Logger
}

// NewClient builds a directory client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("directory endpoint is required")
	}
	game := strings.TrimSpace(cfg.Game)
	if game == "" {
		game = defaultGame
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				ForceAttemptHTTP2:   true,
				MaxIdleConnsPerHost: 2,
			},
		}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var limiter *rate.Limiter
	if cfg.MinSpacing > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinSpacing), 1)
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		game:       game,
		limiter:    limiter,
		now:        now,
		logger:     logger,
	}, nil
}

// Endpoint returns the directory URL this client reads from.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch performs one GET against the directory and returns the records whose
// game tag matches. An empty slice means the directory had nothing to offer.
func (c *Client) Fetch(ctx context.Context) ([]types.ServerRecord, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrSourceUnavailable, c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSourceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %s", ErrSourceUnavailable, resp.Status)
	}

	servers, total, skipped, err := decodeServers(body, c.game)
	if err != nil {
		return nil, fmt.Errorf("%w: decode server list: %v", ErrSourceUnavailable, err)
	}
	c.logger.Printf("directory fetch endpoint=%s records=%d matched=%d skipped=%d", c.endpoint, total, len(servers), skipped)
	return servers, nil
}

// decodeServers reads the top-level list and fully decodes only the records
// tagged with game, so a malformed record elsewhere in the list cannot fail
// the fetch. Matching records that do not decode are counted as skipped.
func decodeServers(body []byte, game string) (servers []types.ServerRecord, total, skipped int, err error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, 0, err
	}
	servers = make([]types.ServerRecord, 0, len(raw))
	for _, item := range raw {
		var tag struct {
			Game json.RawMessage `json:"game"`
		}
		if err := json.Unmarshal(item, &tag); err != nil {
			continue
		}
		var name string
		if err := json.Unmarshal(tag.Game, &name); err != nil || name != game {
			continue
		}
		var rec types.ServerRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			skipped++
			continue
		}
		servers = append(servers, rec)
	}
	return servers, len(raw), skipped, nil
}

// Snapshot wraps Fetch and stamps the result with the endpoint and fetch time.
func (c *Client) Snapshot(ctx context.Context) (types.Snapshot, error) {
	servers, err := c.Fetch(ctx)
	if err != nil {
		return types.Snapshot{}, err
	}
	return types.Snapshot{
		Endpoint:  c.endpoint,
		FetchedAt: c.now().UTC(),
		Servers:   servers,
	}, nil
}
