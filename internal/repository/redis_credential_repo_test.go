package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/libraryfront/internal/model"
)

func newRedisRepoTest(t *testing.T) (*RedisCredentialRepo, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisCredentialRepo(rdb, "test"), mr
}

func testCredential() *model.Credential {
	now := time.Now()
	return &model.Credential{
		Token:        "T",
		RefreshToken: "R",
		User: &model.UserIdentity{
			ID:       1,
			Username: "alice",
			Email:    "alice@example.com",
			Roles:    []string{"MEMBER"},
		},
		ExpiresAt: now.Add(time.Hour),
		UpdatedAt: now,
	}
}

func TestRedisCredentialRepo_SaveAndFind(t *testing.T) {
	repo, mr := newRedisRepoTest(t)
	ctx := context.Background()

	if err := repo.Save(ctx, "client-1", testCredential()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// 永続化フィールド名は token / refreshToken / user
	if got := mr.HGet("test:credential:client-1", "token"); got != "T" {
		t.Errorf("token field = %q, want %q", got, "T")
	}
	if got := mr.HGet("test:credential:client-1", "refreshToken"); got != "R" {
		t.Errorf("refreshToken field = %q, want %q", got, "R")
	}
	if got := mr.HGet("test:credential:client-1", "user"); got == "" {
		t.Error("user field should be set")
	}

	cred, err := repo.FindByClientID(ctx, "client-1")
	if err != nil {
		t.Fatalf("FindByClientID: %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential, got nil")
	}
	if cred.Token != "T" || cred.RefreshToken != "R" {
		t.Errorf("tokens = (%q, %q), want (T, R)", cred.Token, cred.RefreshToken)
	}
	if cred.User == nil || cred.User.ID != 1 || cred.User.Username != "alice" {
		t.Errorf("user = %+v, want id=1 username=alice", cred.User)
	}
	if cred.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be restored")
	}
}

func TestRedisCredentialRepo_Find_Absent_ReturnsNil(t *testing.T) {
	repo, _ := newRedisRepoTest(t)

	cred, err := repo.FindByClientID(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("FindByClientID: %v", err)
	}
	if cred != nil {
		t.Errorf("expected nil, got %+v", cred)
	}
}

func TestRedisCredentialRepo_Save_OverwritesPreviousRecord(t *testing.T) {
	repo, _ := newRedisRepoTest(t)
	ctx := context.Background()

	if err := repo.Save(ctx, "client-1", testCredential()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	next := testCredential()
	next.Token = "T2"
	next.RefreshToken = ""
	if err := repo.Save(ctx, "client-1", next); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cred, err := repo.FindByClientID(ctx, "client-1")
	if err != nil {
		t.Fatalf("FindByClientID: %v", err)
	}
	if cred.Token != "T2" {
		t.Errorf("Token = %q, want %q", cred.Token, "T2")
	}
	if cred.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty", cred.RefreshToken)
	}
}

func TestRedisCredentialRepo_ExpiredRecord_IsAbsent(t *testing.T) {
	repo, mr := newRedisRepoTest(t)
	ctx := context.Background()

	if err := repo.Save(ctx, "client-1", testCredential()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	cred, err := repo.FindByClientID(ctx, "client-1")
	if err != nil {
		t.Fatalf("FindByClientID: %v", err)
	}
	if cred != nil {
		t.Errorf("expected nil after expiry, got %+v", cred)
	}
}

func TestRedisCredentialRepo_Save_PastExpiry_ReturnsError(t *testing.T) {
	repo, mr := newRedisRepoTest(t)

	cred := testCredential()
	cred.ExpiresAt = time.Now().Add(-time.Minute)
	if err := repo.Save(context.Background(), "client-1", cred); err == nil {
		t.Fatal("expected error for past expiry, got nil")
	}
	if mr.Exists("test:credential:client-1") {
		t.Error("no key should be written for a past expiry")
	}
}

func TestRedisCredentialRepo_Delete_IsIdempotent(t *testing.T) {
	repo, mr := newRedisRepoTest(t)
	ctx := context.Background()

	if err := repo.Save(ctx, "client-1", testCredential()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.DeleteByClientID(ctx, "client-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := repo.DeleteByClientID(ctx, "client-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if mr.Exists("test:credential:client-1") {
		t.Error("key should be deleted")
	}
}

func TestRedisCredentialRepo_Unavailable_ReturnsError(t *testing.T) {
	repo, mr := newRedisRepoTest(t)
	mr.Close()

	if _, err := repo.FindByClientID(context.Background(), "client-1"); err == nil {
		t.Fatal("expected error when redis is unavailable, got nil")
	}
}

func TestNewRedisCredentialRepo_DefaultPrefix(t *testing.T) {
	repo := NewRedisCredentialRepo(nil, "")
	if got := repo.key("abc"); got != "libraryfront:credential:abc" {
		t.Errorf("key = %q, want %q", got, "libraryfront:credential:abc")
	}
}
