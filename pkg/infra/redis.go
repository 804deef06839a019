package infra

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisPingTimeout = 5 * time.Second

// ProvideRedisClient builds the one redis client shared by presence, lock,
// round-robin cursor and runtime config. Components receive it through wire.
func ProvideRedisClient(loggerFactory *LoggerFactory) (*redis.Client, func(), error) {
	logger := loggerFactory.Create("RedisClient").Sugar()
	redisDb, err := strconv.Atoi(os.Getenv("REDIS_DB"))
	if err != nil {
		logger.Errorf("invalid redis db %v", err)
		return nil, nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_HOST"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDb,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			logger.Infof("redis connected to host[%v] db[%v]", os.Getenv("REDIS_HOST"), redisDb)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Errorf("cannot ping redis host[%v] %v", os.Getenv("REDIS_HOST"), err)
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, func() {
		if err := client.Close(); err != nil {
			logger.Errorf("cannot close redis %v", err)
		}
	}, nil
}
