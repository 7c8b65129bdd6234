package redis

import goredis "github.com/redis/go-redis/v9"

// NewClient returns nil when no address is configured. A nil client puts the
// cache into degraded mode; it never disables a feature.
func NewClient(addr, password string, db int) *goredis.Client {
	if addr == "" {
		return nil
	}

	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
