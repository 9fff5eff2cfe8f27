package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/go-redis/redis/v8"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

// Sentinel errors for Redis operations.
var (
	ErrDisabled         = errors.New("redis: disabled in configuration")
	ErrConnectionFailed = errors.New("redis: connection failed")
	ErrPublishFailed    = errors.New("redis: publish failed")
)

// Client publishes entries to a single Redis stream.
type Client struct {
	rdb    *goredis.Client
	stream string
	maxLen int64
}

// Connect opens a client and verifies the server with PING.
//
// Parameters:
//   - ctx: Context bounding the PING
//   - cfg: Redis configuration from config.yaml
//
// Returns:
//   - *Client: Ready client
//   - error: ErrDisabled, or ErrConnectionFailed if PING fails
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{rdb: rdb, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

// Stream returns the stream name entries are appended to.
func (c *Client) Stream() string {
	return c.stream
}

// Publish appends one entry to the stream and returns its stream ID.
// Values that are not strings, byte slices or numbers are JSON encoded.
func (c *Client) Publish(ctx context.Context, values map[string]any) (string, error) {
	encoded := make(map[string]any, len(values))
	for k, v := range values {
		s, err := streamValue(v)
		if err != nil {
			return "", fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, k, err)
		}
		encoded[k] = s
	}

	args := &goredis.XAddArgs{
		Stream: c.stream,
		Values: encoded,
	}
	if c.maxLen > 0 {
		args.MaxLen = c.maxLen
		args.Approx = true
	}

	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return id, nil
}

func streamValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case json.RawMessage:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
