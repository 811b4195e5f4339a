package redisstore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sportshub/storage/docstore/docstoretest"
)

// Runs against a live server when TEST_REDIS_ADDR is set (eg. localhost:6379).
func TestStore_Contract(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	st := New(client, nil)
	defer st.Close()

	docstoretest.Run(t, st, "test-"+strconv.FormatInt(time.Now().UnixNano(), 36))
}
