package limiter

import (
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewRedis creates a client for addr, defaulting the port to 6379. The
// returned func closes it.
func NewRedis(addr, user, password string) (*redis.Client, func() error) {
	if !strings.Contains(addr, ":") {
		addr += ":6379"
	}

	r := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: user,
		Password: password,
	})

	return r, r.Close
}
