package app

import (
	"github.com/go-redis/redis/v8"
)

func ConnectRedis(config string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: config,
		DB:   0,
	})

	return rdb, nil
}
