package presence

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func backends() map[string]func(t *testing.T) Table {
	return map[string]func(t *testing.T) Table{
		"memory": func(*testing.T) Table { return NewMemory() },
		"redis": func(t *testing.T) Table {
			mr := miniredis.RunT(t)
			return NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}
}

func TestTable(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("single connection", func(t *testing.T) {
				req := require.New(t)
				table := open(t)
				defer table.Close()
				ctx := context.Background()

				first, err := table.MarkOnline(ctx, "u1", "c1")
				req.NoError(err)
				req.True(first)

				online, err := table.IsOnline(ctx, "u1")
				req.NoError(err)
				req.True(online)

				last, err := table.MarkOffline(ctx, "u1", "c1")
				req.NoError(err)
				req.True(last)

				online, err = table.IsOnline(ctx, "u1")
				req.NoError(err)
				req.False(online)
			})

			t.Run("multiple connections", func(t *testing.T) {
				req := require.New(t)
				table := open(t)
				defer table.Close()
				ctx := context.Background()

				first, err := table.MarkOnline(ctx, "u1", "c1")
				req.NoError(err)
				req.True(first)
				first, err = table.MarkOnline(ctx, "u1", "c2")
				req.NoError(err)
				req.False(first)

				last, err := table.MarkOffline(ctx, "u1", "c1")
				req.NoError(err)
				req.False(last)

				online, err := table.IsOnline(ctx, "u1")
				req.NoError(err)
				req.True(online)

				last, err = table.MarkOffline(ctx, "u1", "c2")
				req.NoError(err)
				req.True(last)
			})

			t.Run("idempotent mark online", func(t *testing.T) {
				req := require.New(t)
				table := open(t)
				defer table.Close()
				ctx := context.Background()

				_, err := table.MarkOnline(ctx, "u1", "c1")
				req.NoError(err)
				first, err := table.MarkOnline(ctx, "u1", "c1")
				req.NoError(err)
				req.False(first)

				last, err := table.MarkOffline(ctx, "u1", "c1")
				req.NoError(err)
				req.True(last)
			})

			t.Run("stale disconnect keeps newer connection", func(t *testing.T) {
				req := require.New(t)
				table := open(t)
				defer table.Close()
				ctx := context.Background()

				_, err := table.MarkOnline(ctx, "u1", "new")
				req.NoError(err)

				last, err := table.MarkOffline(ctx, "u1", "old")
				req.NoError(err)
				req.False(last)

				online, err := table.IsOnline(ctx, "u1")
				req.NoError(err)
				req.True(online)
			})

			t.Run("online subset keeps order", func(t *testing.T) {
				req := require.New(t)
				table := open(t)
				defer table.Close()
				ctx := context.Background()

				for _, u := range []string{"c", "a"} {
					_, err := table.MarkOnline(ctx, u, "conn-"+u)
					req.NoError(err)
				}

				subset, err := table.OnlineSubsetOf(ctx, []string{"a", "b", "c", "d"})
				req.NoError(err)
				req.Equal([]string{"a", "c"}, subset)

				subset, err = table.OnlineSubsetOf(ctx, nil)
				req.NoError(err)
				req.Empty(subset)
			})
		})
	}
}

func TestMemoryConcurrentConnections(t *testing.T) {
	table := NewMemory()
	ctx := context.Background()
	conns := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = table.MarkOnline(ctx, "u1", c)
		}()
	}
	wg.Wait()

	lasts := 0
	var mu sync.Mutex
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last, _ := table.MarkOffline(ctx, "u1", c)
			if last {
				mu.Lock()
				lasts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, lasts)
	online, err := table.IsOnline(ctx, "u1")
	require.NoError(t, err)
	require.False(t, online)
}
