package config

import (
	"context"
	"sync"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// RuntimeConfig redis key.
	runtimeCfgRedisKey = "distribution:config"
)

// Settings that operators flip in redis without restarting the server.
type runtimeValues struct {
	// If true, a ticket is left for manual pickup when the queue lock
	// cannot be acquired. Default false: distribute unlocked.
	LockFailClosed bool `redis:"lockFailClosed"`

	// If false, every automatic queue behaves as MANUAL.
	IsAutoDistributionEnabled bool `redis:"isAutoDistributionEnabled"`
}

type RuntimeConfig struct {
	values runtimeValues
	lock   sync.RWMutex

	updateInterval time.Duration

	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func ProvideRuntimeConfig(config *Config, redisClient *redis.Client, loggerFactory *infra.LoggerFactory) *RuntimeConfig {
	return &RuntimeConfig{
		values: runtimeValues{
			LockFailClosed:            false,
			IsAutoDistributionEnabled: true,
		},
		updateInterval: time.Duration(*config.RuntimeConfigUpdateSeconds) * time.Second,
		redisClient:    redisClient,
		logger:         loggerFactory.Create("RuntimeConfig").Sugar(),
	}
}

func (c *RuntimeConfig) LockFailClosed() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.values.LockFailClosed
}

func (c *RuntimeConfig) IsAutoDistributionEnabled() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.values.IsAutoDistributionEnabled
}

// Reload reads the redis hash once. Fields missing from the hash keep
// their current value.
func (c *RuntimeConfig) Reload(ctx context.Context) error {
	c.lock.RLock()
	values := c.values
	c.lock.RUnlock()

	if err := c.redisClient.HGetAll(ctx, runtimeCfgRedisKey).Scan(&values); err != nil {
		return err
	}

	c.lock.Lock()
	c.values = values
	c.lock.Unlock()
	return nil
}

func (c *RuntimeConfig) Run(ctx context.Context) {
	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		if err := c.Reload(ctx); err != nil {
			c.logger.Errorf("err reading runtime config from redis %v", err)
		} else {
			c.logger.Debugf("updated runtime config lockFailClosed[%v] isAutoDistributionEnabled[%v]", c.LockFailClosed(), c.IsAutoDistributionEnabled())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
