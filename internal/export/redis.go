package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"vnsensor/internal/measurement"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	// List keeps the newest MaxLen measurements. Empty disables it.
	List    string
	MaxLen  int64
	Timeout time.Duration
}

func (o *RedisOptions) defaults() {
	if o.Channel == "" {
		o.Channel = "vnsensor:measurements"
	}
	if o.MaxLen <= 0 {
		o.MaxLen = 1000
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
}

// Redis publishes each measurement as JSON on a channel and keeps a capped
// list of recent ones.
type Redis struct {
	*pump
	client redis.Cmdable
	closer func() error
	opts   RedisOptions
}

func NewRedis(opts RedisOptions, capacity int, log logrus.FieldLogger) (*Redis, error) {
	opts.defaults()
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return newRedis(client, client.Close, opts, capacity, log), nil
}

func newRedis(client redis.Cmdable, closer func() error, opts RedisOptions, capacity int, log logrus.FieldLogger) *Redis {
	opts.defaults()
	r := &Redis{client: client, closer: closer, opts: opts}
	r.pump = newPump("redis", capacity, log, r.publish)
	return r
}

func (r *Redis) publish(c measurement.CompositeData) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal measurement: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.opts.Channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if r.opts.List == "" {
		return nil
	}
	if err := r.client.LPush(ctx, r.opts.List, b).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return r.client.LTrim(ctx, r.opts.List, 0, r.opts.MaxLen-1).Err()
}

func (r *Redis) Close() error {
	r.pump.close()
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
