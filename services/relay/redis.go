package relaysvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
)

const channelPrefix = "shule:room:"

// RedisRelay shares rooms between API instances: payloads are published on redis
// and every instance forwards what it receives to its local Hub.
type RedisRelay struct {
	rdb    *redis.Client
	hub    *Hub
	logger core.Logger
}

var _ appointment.Relay = (*RedisRelay)(nil) // interface compliance check

// NewRedisClient connects to the redis server at conf.RedisAddr.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, logger core.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, hub: hub, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, room string, payload []byte) error {
	return errors.Wrap(r.rdb.Publish(ctx, channelPrefix+room, payload).Err(), "publishing to redis")
}

// Run forwards the payloads of every room to the local Hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			room := strings.TrimPrefix(msg.Channel, channelPrefix)
			if err := r.hub.Publish(ctx, room, []byte(msg.Payload)); err != nil {
				r.logger.Warn(fmt.Sprintf("relay: forwarding redis message: %v", err), err)
				if errors.Cause(err) == errHubClosed {
					return
				}
			}
		}
	}
}
