package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errdigest/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	return rc
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- AddIfAbsent ---

func TestAddIfAbsent_FirstWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.DedupKey("hash:" + uuid.NewString())

	added, err := rc.AddIfAbsent(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = rc.AddIfAbsent(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestAddIfAbsent_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.DedupKey("hash:" + uuid.NewString())

	added, err := rc.AddIfAbsent(ctx, key, 1*time.Second)
	require.NoError(t, err)
	require.True(t, added)

	time.Sleep(1500 * time.Millisecond)

	added, err = rc.AddIfAbsent(ctx, key, 1*time.Second)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestAddIfAbsent_Concurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.DedupKey("hash:" + uuid.NewString())

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := rc.AddIfAbsent(ctx, key, 10*time.Second)
			if err == nil && added {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	_, err := rc.AddIfAbsent(ctx, "del:key", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, rc.Delete(ctx, "del:key"))

	added, err := rc.AddIfAbsent(ctx, "del:key", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestDelete_NonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	err := rc.Delete(context.Background(), "does:not:exist")
	assert.NoError(t, err)
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("10.0.0." + uuid.NewString()[:4])

	for want := int64(1); want <= 3; want++ {
		val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("expiry:" + uuid.NewString()[:8])

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

func TestIncrWithExpiry_FixedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("window:" + uuid.NewString()[:8])
	window := 2 * time.Second

	// steady traffic inside and across windows must not keep the key alive
	for round := 0; round < 3; round++ {
		val, err := rc.IncrWithExpiry(ctx, key, window)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val, "round %d opens a new window", round)

		time.Sleep(1200 * time.Millisecond)
		val, err = rc.IncrWithExpiry(ctx, key, window)
		require.NoError(t, err)
		assert.Equal(t, int64(2), val, "round %d", round)

		// past the first increment's expiry, not the second's
		time.Sleep(1200 * time.Millisecond)
	}
}

// --- Cache Key Builders ---

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "dedup:hash:abc", cache.DedupKey("hash:abc"))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:10.0.0.1", cache.RateLimitKey("10.0.0.1"))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	assert.NotEqual(t, cache.DedupKey("x"), cache.RateLimitKey("x"))
}
