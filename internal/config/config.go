// Package config loads the environment-variable configuration recognized
// by the storage engine. It follows the same convention the teacher
// repo's cmd/coordinator used for COORDINATOR_ADDR: a single Load that
// reads os.Getenv with documented defaults, no external config library.
//
// No config/flags library (viper, koanf, envconfig, ...) appears anywhere
// in the retrieved example corpus, so this piece is intentionally kept on
// the standard library rather than reaching for an unrepresented
// dependency.
package config

import (
	"os"
	"strconv"
	"time"
)

// Database holds per-shard connection-pool configuration.
type Database struct {
	URL             string
	MaxConnections  int
	MinConnections  int
	AcquireTimeout  time.Duration
}

// Cache holds L1 capacity configuration.
type Cache struct {
	Capacity int
}

// WAL holds write-ahead-log retry/retention configuration.
type WAL struct {
	MaxRetryAttempts   int
	MaxTransactionAge  time.Duration
	BaseRetryDelay     time.Duration
	MaxRetryDelay      time.Duration
	CleanupInterval    time.Duration
}

// Consistency holds the eventual-consistency manager's timing knobs.
type Consistency struct {
	CrossShardTimeout         time.Duration
	MaxCompensationAttempts   int
	CompensationRetryDelay    time.Duration
	CompensationCheckInterval time.Duration
}

// Router holds query-router behavior knobs.
type Router struct {
	ReplicationFactor      int
	EnableReadFromReplicas bool
}

// Server holds the knobs for the process that wires every package
// together: how many shards it hosts, where its WAL directory lives,
// and where its admin HTTP surface listens.
type Server struct {
	ShardCount   int
	WALDir       string
	AdminAddr    string
	DSNTemplate  string // fmt-style template taking one %d shard id argument
}

// Config is the fully-resolved configuration for one storage-engine
// process.
type Config struct {
	Server      Server
	Database    Database
	Cache       Cache
	WAL         WAL
	Consistency Consistency
	Router      Router
}

// Load reads configuration from the environment, applying the defaults
// named in spec.md's configuration table and design note §5 (DB acquire
// 8s, cross-shard wait 30s). The breaker's 30s recovery default is not
// part of Config; it is tao.BreakerRecoveryTimeout.
func Load() Config {
	return Config{
		Server: Server{
			ShardCount:  getEnvInt("TAOSERVER_SHARD_COUNT", 4),
			WALDir:      getEnv("TAOSERVER_WAL_DIR", "./data/wal"),
			AdminAddr:   getEnv("TAOSERVER_ADMIN_ADDR", ":9090"),
			DSNTemplate: getEnv("TAOSERVER_DSN_TEMPLATE", "./data/shard_%d.db"),
		},
		Database: Database{
			URL:            getEnv("DATABASE_URL", "file::memory:?cache=shared"),
			MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 10),
			MinConnections: getEnvInt("DB_MIN_CONNECTIONS", 1),
			AcquireTimeout: getEnvDuration("DB_ACQUIRE_TIMEOUT_SECS", 8*time.Second, time.Second),
		},
		Cache: Cache{
			Capacity: getEnvInt("CACHE_CAPACITY", 10_000),
		},
		WAL: WAL{
			MaxRetryAttempts:  getEnvInt("wal.max_retry_attempts", 5),
			MaxTransactionAge: getEnvDurationMs("wal.max_transaction_age_ms", 5*time.Minute),
			BaseRetryDelay:    getEnvDurationMs("wal.base_retry_delay_ms", 200*time.Millisecond),
			MaxRetryDelay:     getEnvDurationMs("wal.max_retry_delay_ms", 30*time.Second),
			CleanupInterval:   getEnvDurationMs("wal.cleanup_interval_ms", 30*time.Second),
		},
		Consistency: Consistency{
			CrossShardTimeout:         getEnvDurationMs("consistency.cross_shard_timeout_ms", 30*time.Second),
			MaxCompensationAttempts:   getEnvInt("consistency.max_compensation_attempts", 5),
			CompensationRetryDelay:    getEnvDurationMs("consistency.compensation_retry_delay_ms", time.Second),
			CompensationCheckInterval: getEnvDurationMs("consistency.compensation_check_interval_ms", 5*time.Second),
		},
		Router: Router{
			ReplicationFactor:      getEnvInt("router.replication_factor", 2),
			EnableReadFromReplicas: getEnvBool("router.enable_read_from_replicas", false),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration, unit time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * unit
		}
	}
	return def
}

func getEnvDurationMs(key string, def time.Duration) time.Duration {
	return getEnvDuration(key, def, time.Millisecond)
}
