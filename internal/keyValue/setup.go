package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TTL cache in front of the identity directory. Runs against redis, or
// an in-process map with a sweep goroutine in self-contained mode.

type Value struct {
	value   string
	expires time.Time
}

var mutex sync.RWMutex
var hashmap = make(map[string]Value)

var sugar *zap.SugaredLogger
var redisClient *redis.Client
var redisCtx = context.Background()
var selfContained = true

func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _selfContained bool) {
	sugar = _sugar
	redisClient = _redisClient
	selfContained = _selfContained

	if selfContained {
		go checkForLocalExpiredKeys()
	}
}

func checkForLocalExpiredKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		mutex.Lock()
		for key, v := range hashmap {
			if v.expires.Before(time.Now()) {
				delete(hashmap, key)
			}
		}
		mutex.Unlock()
	}
}

// Get returns the cached value, or "" when the key is absent or
// already expired.
func Get(key string) (string, error) {
	if selfContained {
		mutex.RLock()
		defer mutex.RUnlock()

		v := hashmap[key]
		if !v.expires.IsZero() && v.expires.Before(time.Now()) {
			return "", nil
		}

		return v.value, nil
	}

	value, err := redisClient.Get(redisCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, err
}

func Set(key string, value string, expires time.Duration) error {
	if selfContained {
		sugar.Debugf("Caching key [%s] in hashmap", key)

		mutex.Lock()
		defer mutex.Unlock()

		hashmap[key] = Value{value, time.Now().Add(expires)}

		return nil
	}

	sugar.Debugf("Caching key [%s] in redis", key)
	_, err := redisClient.Set(redisCtx, key, value, expires).Result()
	return err
}
