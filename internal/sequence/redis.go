package sequence

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "salestrack:seq:"

// nextScript raises the counter to the floor when it lags, then increments,
// all inside one atomic script execution.
var nextScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if floor > current then
	current = floor
end
current = current + 1
redis.call('SET', KEYS[1], current)
return current
`)

// Redis keeps counters in Redis so every server process shares them.
type Redis struct {
	client redis.Scripter
}

func NewRedis(client redis.Scripter) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Next(ctx context.Context, namespace string, floor Floor) (int64, error) {
	var persisted int64
	if floor != nil {
		value, err := floor(ctx)
		if err != nil {
			return 0, fmt.Errorf("read floor for %s: %w", namespace, err)
		}
		persisted = value
	}

	seq, err := nextScript.Run(ctx, r.client, []string{keyPrefix + namespace}, persisted).Int64()
	if err != nil {
		return 0, fmt.Errorf("allocate %s: %w", namespace, err)
	}
	return seq, nil
}
