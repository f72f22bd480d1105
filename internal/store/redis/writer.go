package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Publication is one fan-out write: appended to a stream, stored as the
// latest value under a key and published on a channel, in one round trip.
type Publication struct {
	Stream    string
	MaxLen    int64
	LatestKey string
	TTL       time.Duration
	Channel   string
	Payload   string
}

// Conn is the subset of Redis the publisher and the lock need.
type Conn interface {
	Write(ctx context.Context, p Publication) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DelIfEqual deletes key only while it still holds value.
	DelIfEqual(ctx context.Context, key, value string) (bool, error)
	// ExpireIfEqual resets the TTL of key only while it still holds value.
	ExpireIfEqual(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Close() error
}

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Client is the go-redis backed Conn.
type Client struct {
	client *goredis.Client
}

var _ Conn = (*Client)(nil)

// Raw returns the underlying Redis client for health checks.
func (c *Client) Raw() *goredis.Client { return c.client }

// Dial connects and pings the server.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{client: client}, nil
}

// Write pipelines XADD + SET + PUBLISH.
func (c *Client) Write(ctx context.Context, p Publication) error {
	pipe := c.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.Stream,
		MaxLen: p.MaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": p.Payload},
	})
	if p.LatestKey != "" {
		pipe.Set(ctx, p.LatestKey, p.Payload, p.TTL)
	}
	if p.Channel != "" {
		pipe.Publish(ctx, p.Channel, p.Payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", p.Stream, err)
	}
	return nil
}

// SetNX sets key only if absent.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

var delIfEqual = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DelIfEqual runs a compare-and-delete script.
func (c *Client) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	n, err := delIfEqual.Run(ctx, c.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var expireIfEqual = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ExpireIfEqual runs a compare-and-PEXPIRE script.
func (c *Client) ExpireIfEqual(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := expireIfEqual.Run(ctx, c.client, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Subscribe relays payloads published on channel until ctx ends. The
// returned channel is closed when the subscription stops.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ps := c.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}
	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- m.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis client.
func (c *Client) Close() error {
	return c.client.Close()
}
