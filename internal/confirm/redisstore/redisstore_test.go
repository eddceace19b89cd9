package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStore_AllowAndIsAllowed(t *testing.T) {
	client := startRedis(t)
	store := New(client, "session-1", 0)
	ctx := context.Background()

	allowed, err := store.IsAllowed(ctx, "shell:rm")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, store.Allow(ctx, "shell:rm"))

	allowed, err = store.IsAllowed(ctx, "shell:rm")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestStore_ScopedBySession(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	a := New(client, "session-a", 0)
	b := New(client, "session-b", 0)

	require.NoError(t, a.Allow(ctx, "edit:main.go"))

	allowedInA, err := a.IsAllowed(ctx, "edit:main.go")
	require.NoError(t, err)
	require.True(t, allowedInA)

	allowedInB, err := b.IsAllowed(ctx, "edit:main.go")
	require.NoError(t, err)
	require.False(t, allowedInB)
}

func TestStore_TTLExpiresEntries(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := New(client, "session-ttl", 500*time.Millisecond)

	require.NoError(t, store.Allow(ctx, "shell:ls"))
	allowed, err := store.IsAllowed(ctx, "shell:ls")
	require.NoError(t, err)
	require.True(t, allowed)

	time.Sleep(900 * time.Millisecond)

	allowed, err = store.IsAllowed(ctx, "shell:ls")
	require.NoError(t, err)
	require.False(t, allowed, "entry should have expired")
}
