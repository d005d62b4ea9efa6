package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes messages with PUBLISH, one redis channel per notify channel.
type RedisNotifier struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisNotifier(rdb *redis.Client, prefix string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, prefix: prefix}
}

func (n *RedisNotifier) Notify(ctx context.Context, channel string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.prefix+channel, body).Err()
}
