package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client, "test")
}

func TestGetMissingKey(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	data, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"v":1}` {
		t.Fatalf("unexpected value %q", data)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteMissingKeyIsNoError(t *testing.T) {
	store := newTestStore(t)
	if err := store.Delete(context.Background(), "absent"); err != nil {
		t.Fatalf("delete missing key: %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := SetJSON(ctx, store, "p", payload{Name: "x", Count: 3}); err != nil {
		t.Fatalf("set json: %v", err)
	}

	var got payload
	if err := GetJSON(ctx, store, "p", &got); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if got.Name != "x" || got.Count != 3 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestPrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := NewRedisWithClient(client, "a")
	b := NewRedisWithClient(client, "b")
	ctx := context.Background()

	if err := a.Set(ctx, "k", []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected prefix isolation, got %v", err)
	}
}
