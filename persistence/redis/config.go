package redis

import "time"

type Config struct {
	Addrs     []string
	Namespace string
	PoolSize  int
	Password  string
	LockTTL   time.Duration
	LockWait  time.Duration
}
