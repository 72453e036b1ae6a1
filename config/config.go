package config

import (
	"fmt"
	"time"

	"github.com/mohitkumar/chatflow/action"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/model"
)

type StorageType string

type QueueType string

type DispatchMode string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"
const STORAGE_TYPE_SQLITE StorageType = "sqlite"

const QUEUE_TYPE_REDIS QueueType = "redis"
const QUEUE_TYPE_INMEM QueueType = "memory"

const DISPATCH_MODE_ASYNC DispatchMode = "async"
const DISPATCH_MODE_SYNC DispatchMode = "sync"

type Config struct {
	RedisConfig     RedisStorageConfig
	SqliteConfig    SqliteStorageConfig
	HttpPort        int
	StorageType     StorageType
	QueueType       QueueType
	DispatchMode    DispatchMode
	ClusterConfig   ClusterConfig
	ExecutorConfig  ExecutorConfig
	EngineConfig    EngineConfig
	FlowConfig      FlowConfig
	OutboundConfig  OutboundConfig
	AnalyticsConfig analytics.DataCollectorConfig
	LogConfig       LogConfig
	Actions         []action.HttpActionConfig
}

type ClusterConfig struct {
	NodeName       string
	Peers          []string
	PartitionCount int
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
	PoolSize  int
	Password  string
	LockTTL   time.Duration
}

type SqliteStorageConfig struct {
	Path string
}

type ExecutorConfig struct {
	Lanes        int
	Capacity     int
	BatchSize    int
	PollInterval time.Duration
	// SweepInterval and SweepAfter drive the sweeper that requeues inbound
	// entries left new or queued for longer than SweepAfter.
	SweepInterval time.Duration
	SweepAfter    time.Duration
}

type EngineConfig struct {
	MaxHops           int
	DefaultFlow       string
	RetryCount        int
	RetryAfterSeconds int
	RetryPolicy       model.RetryPolicy
}

type FlowConfig struct {
	Dir            string
	ReloadSchedule string
}

type OutboundConfig struct {
	Url            string
	TimeoutSeconds int
}

type LogConfig struct {
	Level    string
	Encoding string
}

func (c Config) Validate() error {
	switch c.StorageType {
	case STORAGE_TYPE_REDIS, STORAGE_TYPE_INMEM, STORAGE_TYPE_SQLITE:
	default:
		return fmt.Errorf("unknown storage implementation %s", c.StorageType)
	}
	switch c.QueueType {
	case QUEUE_TYPE_REDIS, QUEUE_TYPE_INMEM:
	default:
		return fmt.Errorf("unknown queue implementation %s", c.QueueType)
	}
	switch c.DispatchMode {
	case DISPATCH_MODE_ASYNC, DISPATCH_MODE_SYNC:
	default:
		return fmt.Errorf("unknown dispatch mode %s", c.DispatchMode)
	}
	switch c.EngineConfig.RetryPolicy {
	case model.RETRY_POLICY_FIXED, model.RETRY_POLICY_BACKOFF:
	default:
		return fmt.Errorf("unknown retry policy %s", c.EngineConfig.RetryPolicy)
	}
	if c.StorageType == STORAGE_TYPE_SQLITE && c.SqliteConfig.Path == "" {
		return fmt.Errorf("sqlite storage needs sqlite-path")
	}
	if c.QueueType == QUEUE_TYPE_INMEM && c.DispatchMode == DISPATCH_MODE_ASYNC && len(c.ClusterConfig.Peers) > 0 {
		return fmt.Errorf("in memory queue can not be shared with peers")
	}
	for _, a := range c.Actions {
		if a.Name == "" || a.Url == "" {
			return fmt.Errorf("http action needs a name and an url")
		}
	}
	return nil
}
