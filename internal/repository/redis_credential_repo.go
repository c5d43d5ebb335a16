package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/libraryfront/internal/model"
)

// Redisハッシュのフィールド名。
const (
	fieldToken        = "token"
	fieldRefreshToken = "refreshToken"
	fieldUser         = "user"
	fieldUpdatedAt    = "updatedAt"
	fieldExpiresAt    = "expiresAt"
)

// RedisCredentialRepo はRedisを使用した資格情報リポジトリ。
// 1クライアントにつき1つのハッシュを持ち、EXPIREATで期限を管理する。
type RedisCredentialRepo struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCredentialRepo はRedisCredentialRepoを生成する。
// prefixが空の場合は "libraryfront" を使用する。
func NewRedisCredentialRepo(rdb *redis.Client, prefix string) *RedisCredentialRepo {
	if prefix == "" {
		prefix = "libraryfront"
	}
	return &RedisCredentialRepo{rdb: rdb, prefix: prefix}
}

func (r *RedisCredentialRepo) key(clientID string) string {
	return r.prefix + ":credential:" + clientID
}

// Save は資格情報を保存する。
// 既存のハッシュを削除してから書き込むため、古いフィールドは残らない。
func (r *RedisCredentialRepo) Save(ctx context.Context, clientID string, cred *model.Credential) error {
	if !cred.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("failed to save credential: expiry %s is in the past", cred.ExpiresAt.Format(time.RFC3339))
	}

	userData, err := json.Marshal(cred.User)
	if err != nil {
		return fmt.Errorf("failed to encode credential user: %w", err)
	}

	key := r.key(clientID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldToken, cred.Token,
			fieldRefreshToken, cred.RefreshToken,
			fieldUser, string(userData),
			fieldUpdatedAt, strconv.FormatInt(cred.UpdatedAt.Unix(), 10),
			fieldExpiresAt, strconv.FormatInt(cred.ExpiresAt.Unix(), 10),
		)
		pipe.ExpireAt(ctx, key, cred.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// FindByClientID は資格情報を取得する。キーが存在しない場合はnilを返す。
func (r *RedisCredentialRepo) FindByClientID(ctx context.Context, clientID string) (*model.Credential, error) {
	values, err := r.rdb.HGetAll(ctx, r.key(clientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if len(values) == 0 || values[fieldToken] == "" {
		return nil, nil
	}

	cred := &model.Credential{
		Token:        values[fieldToken],
		RefreshToken: values[fieldRefreshToken],
		UpdatedAt:    parseUnix(values[fieldUpdatedAt]),
		ExpiresAt:    parseUnix(values[fieldExpiresAt]),
	}
	if err := decodeUser([]byte(values[fieldUser]), cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// DeleteByClientID は資格情報を削除する。
func (r *RedisCredentialRepo) DeleteByClientID(ctx context.Context, clientID string) error {
	if err := r.rdb.Del(ctx, r.key(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// compile-time interface check
var _ CredentialRepository = (*RedisCredentialRepo)(nil)
