// Package presence tracks which agents currently hold at least one live
// connection. State lives in redis so every server process sees the same
// set of online agents.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	onlineKeyPrefix = "presence:online:"
	connsKeyPrefix  = "presence:conns:"
)

// KEYS[1] connection set, KEYS[2] online marker. ARGV[1] connection id,
// ARGV[2] ttl seconds. Returns the connection count.
const markConnectedScript = `
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
redis.call('SET', KEYS[2], '1', 'EX', ARGV[2])
return redis.call('SCARD', KEYS[1])
`

// KEYS[1] connection set, KEYS[2] online marker. ARGV[1] connection id.
// Returns the connection count left.
const markDisconnectedScript = `
redis.call('SREM', KEYS[1], ARGV[1])
local remaining = redis.call('SCARD', KEYS[1])
if remaining == 0 then
	redis.call('DEL', KEYS[1], KEYS[2])
end
return remaining
`

type Tracker struct {
	ttl       time.Duration
	scanCount int64

	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func ProvideTracker(config *config.Config, redisClient *redis.Client, loggerFactory *infra.LoggerFactory) *Tracker {
	return NewTracker(redisClient, config.PresenceTtl(), int64(*config.PresenceScanCount), loggerFactory)
}

func NewTracker(redisClient *redis.Client, ttl time.Duration, scanCount int64, loggerFactory *infra.LoggerFactory) *Tracker {
	return &Tracker{
		ttl:         ttl,
		scanCount:   scanCount,
		redisClient: redisClient,
		logger:      loggerFactory.Create("Presence").Sugar(),
	}
}

func onlineKey(agentID int64) string {
	return onlineKeyPrefix + strconv.FormatInt(agentID, 10)
}

func connsKey(agentID int64) string {
	return connsKeyPrefix + strconv.FormatInt(agentID, 10)
}

func (t *Tracker) ttlSeconds() int {
	return int(t.ttl / time.Second)
}

// MarkConnected registers connID for the agent and (re)sets the online
// marker with the safety ttl.
func (t *Tracker) MarkConnected(ctx context.Context, agentID int64, connID string) error {
	count, err := t.redisClient.Eval(ctx, markConnectedScript,
		[]string{connsKey(agentID), onlineKey(agentID)},
		connID, t.ttlSeconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("mark agent[%v] conn[%v] connected: %w", agentID, connID, err)
	}

	t.logger.Debugf("agent[%v] connected conn[%v] connections[%v]", agentID, connID, count)
	return nil
}

// MarkDisconnected removes connID. When it was the last connection the
// agent goes offline right away. Returns the connections left.
func (t *Tracker) MarkDisconnected(ctx context.Context, agentID int64, connID string) (int64, error) {
	remaining, err := t.redisClient.Eval(ctx, markDisconnectedScript,
		[]string{connsKey(agentID), onlineKey(agentID)},
		connID,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("mark agent[%v] conn[%v] disconnected: %w", agentID, connID, err)
	}

	if remaining == 0 {
		t.logger.Infof("agent[%v] offline, last conn[%v] closed", agentID, connID)
	} else {
		t.logger.Debugf("agent[%v] disconnected conn[%v] connections[%v]", agentID, connID, remaining)
	}
	return remaining, nil
}

func (t *Tracker) IsOnline(ctx context.Context, agentID int64) (bool, error) {
	n, err := t.redisClient.Exists(ctx, onlineKey(agentID)).Result()
	if err != nil {
		return false, fmt.Errorf("check agent[%v] online: %w", agentID, err)
	}
	return n > 0, nil
}

// ListOnline walks the online markers with SCAN so a large key space never
// blocks redis.
func (t *Tracker) ListOnline(ctx context.Context) (map[int64]struct{}, error) {
	online := make(map[int64]struct{})

	var cursor uint64
	for {
		keys, next, err := t.redisClient.Scan(ctx, cursor, onlineKeyPrefix+"*", t.scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan online agents: %w", err)
		}

		for _, key := range keys {
			agentID, err := strconv.ParseInt(strings.TrimPrefix(key, onlineKeyPrefix), 10, 64)
			if err != nil {
				t.logger.Warnf("skip malformed presence key[%v]", key)
				continue
			}
			online[agentID] = struct{}{}
		}

		if next == 0 {
			break
		}
		cursor = next
	}

	return online, nil
}

// Heartbeat refreshes the ttl of a connected agent without touching its
// connection set. Returns false if the agent had no online marker.
func (t *Tracker) Heartbeat(ctx context.Context, agentID int64) (bool, error) {
	ok, err := t.redisClient.Expire(ctx, onlineKey(agentID), t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("heartbeat agent[%v]: %w", agentID, err)
	}
	if !ok {
		t.logger.Debugf("heartbeat for agent[%v] without online marker", agentID)
		return false, nil
	}

	if err := t.redisClient.Expire(ctx, connsKey(agentID), t.ttl).Err(); err != nil {
		return true, fmt.Errorf("heartbeat agent[%v] connections: %w", agentID, err)
	}
	return true, nil
}

// ForceOffline drops the agent regardless of open connections.
func (t *Tracker) ForceOffline(ctx context.Context, agentID int64) error {
	if err := t.redisClient.Del(ctx, onlineKey(agentID), connsKey(agentID)).Err(); err != nil {
		return fmt.Errorf("force agent[%v] offline: %w", agentID, err)
	}
	t.logger.Infof("agent[%v] forced offline", agentID)
	return nil
}
