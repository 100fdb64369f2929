package redis

import (
	"context"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	rdb *redis.Client
}

func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// LogStore keeps the newest log lines in a capped redis list so the tail survives restarts.
type LogStore struct {
	client *Client
	key    string
	max    int64
}

func (c *Client) LogStore(key string, max int) *LogStore {
	return &LogStore{client: c, key: key, max: int64(max)}
}

func (s *LogStore) Append(ctx context.Context, line string) error {
	pipe := s.client.rdb.TxPipeline()
	pipe.LPush(ctx, s.key, line)
	pipe.LTrim(ctx, s.key, 0, s.max-1)
	_, err := pipe.Exec(ctx)
	return err
}

// Tail returns up to n lines, oldest first.
func (s *LogStore) Tail(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	lines, err := s.client.rdb.LRange(ctx, s.key, 0, int64(n)-1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	slices.Reverse(lines)
	return lines, nil
}
