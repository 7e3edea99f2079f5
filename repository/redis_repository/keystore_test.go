package redis_repository

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *KeyStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client, err := Conn(ctx, host, port.Port(), "", 0, 5*time.Second)
	if err != nil {
		t.Fatalf("redis conn: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewKeyStore(client)
}

func TestKeyStoreQueueAndSets(t *testing.T) {
	ks := startRedis(t)
	ctx := context.Background()

	if err := ks.RPush(ctx, "queue:s1", "a", "b"); err != nil {
		t.Fatalf("RPush: %v", err)
	}
	v, ok, err := ks.LPop(ctx, "queue:s1")
	if err != nil || !ok || v != "a" {
		t.Fatalf("LPop = %q %v %v", v, ok, err)
	}
	n, _ := ks.LLen(ctx, "queue:s1")
	if n != 1 {
		t.Fatalf("expected 1 remaining, got %d", n)
	}
	if err := ks.LPush(ctx, "queue:s1", "a"); err != nil {
		t.Fatalf("LPush: %v", err)
	}
	if v, _, _ := ks.LPop(ctx, "queue:s1"); v != "a" {
		t.Fatalf("expected requeued head, got %q", v)
	}
	_, _, _ = ks.LPop(ctx, "queue:s1")
	if _, ok, err := ks.LPop(ctx, "queue:s1"); ok || err != nil {
		t.Fatalf("expected empty pop, got ok=%v err=%v", ok, err)
	}

	if n, err := ks.SAdd(ctx, "seen:s1", "Delhi", "Delhi", "Agra"); err != nil || n != 2 {
		t.Fatalf("SAdd = %d, %v", n, err)
	}
	if n, _ := ks.SAdd(ctx, "seen:s1", "Delhi"); n != 0 {
		t.Fatalf("SAdd of an existing member added %d", n)
	}
	members, _ := ks.SMembers(ctx, "seen:s1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}

	if _, ok, _ := ks.Get(ctx, "answer:none"); ok {
		t.Fatalf("expected missing key")
	}
	if err := ks.Set(ctx, "answer:s1", "{}", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := ks.Expire(ctx, time.Second, "answer:s1", "seen:s1", "missing"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if c, _ := ks.Incr(ctx, "attempts:s1"); c != 1 {
		t.Fatalf("expected first attempt 1, got %d", c)
	}
}

func TestKeyStorePubSub(t *testing.T) {
	ks := startRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := ks.Subscribe(ctx, "logs:s1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := ks.Publish(context.Background(), "logs:s1", "hello"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-ch:
		if msg != "hello" {
			t.Fatalf("unexpected payload %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	cancel()
	for range ch {
	}
}
