package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"lahtotiedot/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	redisStore, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return redisStore, s
}

func testUser() store.User {
	return store.User{
		ID:          "usr_abc123",
		Email:       "pekka@example.fi",
		DisplayName: "Pekka Suunnittelija",
		Role:        "suunnittelija",
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	tokenHash := "test-token-hash"

	if err := redisStore.SaveRefreshSession(ctx, tokenHash, testUser(), time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	user, err := redisStore.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "usr_abc123" || user.Email != "pekka@example.fi" || user.Role != "suunnittelija" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	if err := redisStore.SaveRefreshSession(ctx, "expired-token", testUser(), time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := redisStore.LookupRefreshSession(ctx, "expired-token"); err == nil {
		t.Fatalf("expected lookup of expired token to fail")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	if err := redisStore.SaveRefreshSession(ctx, "revoked-token", testUser(), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := redisStore.RevokeRefreshSession(ctx, "revoked-token"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := redisStore.LookupRefreshSession(ctx, "revoked-token"); err == nil {
		t.Fatalf("expected lookup of revoked token to fail")
	}
}

func TestUnknownRoleNormalizes(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	user := testUser()
	user.Role = "something-old"
	if err := redisStore.SaveRefreshSession(ctx, "legacy-token", user, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := redisStore.LookupRefreshSession(ctx, "legacy-token")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.Role != "edustaja" {
		t.Errorf("expected unknown role to normalize to edustaja, got %q", got.Role)
	}
}
