package config

import (
	"flag"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PresenceTtlSeconds *int
	PresenceScanCount  *int

	LockTtlSeconds          *int
	LockMaxRetries          *int
	LockRetryIntervalMsec   *int
	LockOwnerCheckedRelease *bool

	ExcludedRoles *string

	DistributeTimeoutSeconds   *int
	RuntimeConfigUpdateSeconds *int

	StatsWindowSize *int

	PingIntervalSeconds *int
}

var CFG = &Config{
	PresenceTtlSeconds:         flag.Int("presence-ttl-seconds", 3600, "Safety TTL of an agent's online marker. Guards against connections that vanish without a clean close."),
	PresenceScanCount:          flag.Int("presence-scan-count", 100, "COUNT hint for each SCAN call when listing online agents."),
	LockTtlSeconds:             flag.Int("lock-ttl-seconds", 5, "Expiry of a per-queue distribution lock. A crashed holder releases the queue after this period."),
	LockMaxRetries:             flag.Int("lock-max-retries", 3, "Max attempts to acquire a per-queue distribution lock."),
	LockRetryIntervalMsec:      flag.Int("lock-retry-interval-msec", 100, "Sleep between lock acquire attempts."),
	LockOwnerCheckedRelease:    flag.Bool("lock-owner-checked-release", true, "Only delete a lock on release if it still holds our owner token. Set false for the legacy unconditional delete."),
	ExcludedRoles:              flag.String("excluded-roles", "Auditor", "Comma separated role names whose members never receive automatic assignments."),
	DistributeTimeoutSeconds:   flag.Int("distribute-timeout-seconds", 10, "Deadline of one distribution call."),
	RuntimeConfigUpdateSeconds: flag.Int("runtime-config-update-seconds", 5, "Interval to reload runtime config from redis."),
	StatsWindowSize:            flag.Int("stats-window-size", 100, "The size of sliding window for calculating average distribution latency."),
	PingIntervalSeconds:        flag.Int("ping-interval-seconds", 30, "Send pings to websocket peer with this interval."),
}

// Load reads .env (if any) and parses flags. Must be called once from main
// before Setup.
func Load() {
	_ = godotenv.Load()
	flag.Parse()
}

func ProvideConfig() *Config {
	return CFG
}

func (c *Config) PresenceTtl() time.Duration {
	return time.Duration(*c.PresenceTtlSeconds) * time.Second
}

func (c *Config) LockTtl() time.Duration {
	return time.Duration(*c.LockTtlSeconds) * time.Second
}

func (c *Config) LockRetryInterval() time.Duration {
	return time.Duration(*c.LockRetryIntervalMsec) * time.Millisecond
}

func (c *Config) DistributeTimeout() time.Duration {
	return time.Duration(*c.DistributeTimeoutSeconds) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(*c.PingIntervalSeconds) * time.Second
}

// ExcludedRoleNames splits ExcludedRoles, dropping blanks.
func (c *Config) ExcludedRoleNames() []string {
	var names []string
	for _, name := range strings.Split(*c.ExcludedRoles, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
