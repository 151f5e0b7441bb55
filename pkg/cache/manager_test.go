package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on a dedicated test DB and
// skips the test when none is available. Integration tests exercise the
// same paths against a containerized instance.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager_PanicsOnNilClient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := Key{Path: "/v1/workflows", Params: url.Values{"active": []string{"true"}}}
	entry := NewEntry([]byte(`{"data": []}`), 200, time.Minute)

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != `{"data": []}` {
		t.Errorf("Data = %s, want the stored body", got.Data)
	}
	if got.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", got.StatusCode)
	}
}

func TestManager_GetMissingKey(t *testing.T) {
	m := NewManager(setupTestRedis(t))

	_, err := m.Get(context.Background(), Key{Path: "/v1/nope"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_SetExpiredEntrySkipped(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := Key{Path: "/v1/workflows"}
	expired := NewEntry([]byte(`{}`), 200, -time.Second)

	if err := m.Set(ctx, key, expired); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("error = %v, want ErrCacheMiss (expired entries are not stored)", err)
	}
}

func TestManager_SetNilEntry(t *testing.T) {
	m := NewManager(setupTestRedis(t))

	if err := m.Set(context.Background(), Key{Path: "/v1/workflows"}, nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}

func TestManager_Delete(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := Key{Path: "/v1/workflows/7"}
	if err := m.Set(ctx, key, NewEntry([]byte(`{"id": 7}`), 200, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("error = %v, want ErrCacheMiss after delete", err)
	}
}

func TestManager_CorruptEntry(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client)
	ctx := context.Background()

	key := Key{Path: "/v1/workflows"}
	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	_, err := m.Get(ctx, key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("error = %v, want ErrInvalidEntry", err)
	}
}
