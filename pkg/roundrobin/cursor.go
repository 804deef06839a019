package roundrobin

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "distribution:rr:queue:"

var ErrNoEligible = errors.New("roundrobin: no eligible agents")

// KEYS[1] cursor key, ARGV[1] eligible count. A missing, non numeric or
// out of range value restarts from 0. Returns the index to use now and
// stores the next one.
const nextScript = `
local count = tonumber(ARGV[1])
local index = tonumber(redis.call('GET', KEYS[1]))
if index == nil or index ~= math.floor(index) or index < 0 or index >= count then
	index = 0
end
redis.call('SET', KEYS[1], (index + 1) % count)
return index
`

// Cursor is a per-queue pointer into a deterministically ordered list of
// eligible agents.
type Cursor struct {
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func ProvideCursor(redisClient *redis.Client, loggerFactory *infra.LoggerFactory) *Cursor {
	return &Cursor{
		redisClient: redisClient,
		logger:      loggerFactory.Create("RoundRobin").Sugar(),
	}
}

func key(queueID int64) string {
	return keyPrefix + strconv.FormatInt(queueID, 10)
}

// Next returns the index to pick in [0, eligibleCount) and advances the
// stored cursor in the same atomic step.
func (c *Cursor) Next(ctx context.Context, queueID int64, eligibleCount int) (int, error) {
	if eligibleCount <= 0 {
		return 0, ErrNoEligible
	}

	index, err := c.redisClient.Eval(ctx, nextScript, []string{key(queueID)}, eligibleCount).Int64()
	if err != nil {
		return 0, fmt.Errorf("advance cursor of queue[%v]: %w", queueID, err)
	}

	if index < 0 || index >= int64(eligibleCount) {
		c.logger.Warnf("cursor of queue[%v] returned index[%v] out of range[%v], using 0", queueID, index, eligibleCount)
		index = 0
	}

	c.logger.Debugf("queue[%v] cursor index[%v] of eligible[%v]", queueID, index, eligibleCount)
	return int(index), nil
}

func (c *Cursor) Reset(ctx context.Context, queueID int64) error {
	if err := c.redisClient.Del(ctx, key(queueID)).Err(); err != nil {
		return fmt.Errorf("reset cursor of queue[%v]: %w", queueID, err)
	}
	c.logger.Infof("queue[%v] cursor reset", queueID)
	return nil
}
