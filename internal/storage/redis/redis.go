package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Key layout shared by the store and the bus.
const (
	tokenKeyPrefix = "token:"
	indexKeyPrefix = "index:"
	updatedAtIndex = indexKeyPrefix + "updated_at"
)

// NewClient parses a redis:// URL, connects and pings.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func tokenKey(address string) string {
	return tokenKeyPrefix + address
}

func indexKey(metric string) string {
	return indexKeyPrefix + metric
}
