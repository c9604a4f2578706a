// Package testutil provides an in-memory broker backed by miniredis for
// package tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/logger"
)

// NewBroker starts a miniredis server and returns a broker client connected
// to it. Both are torn down via t.Cleanup.
func NewBroker(t *testing.T) (*broker.Client, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	client := broker.NewFromRedis(rdb, logger.NewDefault("test"))
	t.Cleanup(func() { _ = client.Close() })

	return client, mini
}
