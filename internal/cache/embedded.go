package cache

import (
	"fmt"

	"github.com/alicebob/miniredis/v2"
)

// StartEmbedded runs an in-process Redis server and returns a cache connected
// to it. Used when the service runs with the memory store and no REDIS_URL.
// The returned stop func closes the client and the server.
func StartEmbedded() (*RedisCache, func(), error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded redis: %w", err)
	}

	rc, err := NewRedisCache("redis://" + mr.Addr())
	if err != nil {
		mr.Close()
		return nil, nil, fmt.Errorf("connect embedded redis: %w", err)
	}

	stop := func() {
		_ = rc.Close()
		mr.Close()
	}
	return rc, stop, nil
}
