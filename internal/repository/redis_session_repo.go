package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/socialprofile/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッションはJSONとして1キーに保存し、有効期限はキーのTTLで管理する。
type RedisSessionRepo struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient, prefix string) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, prefix: prefix}
}

// NewRedisClient はREDIS_URLからRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisSessionRepo) key(id string) string {
	return r.prefix + ":session:" + id
}

// Create はセッションを作成する。すでに期限切れのセッションは保存しない。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if err := r.set(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(time.Now()) {
		return nil, nil
	}

	return session, nil
}

// Save はセッションを上書き保存し、TTLを有効期限に合わせて更新する。
func (r *RedisSessionRepo) Save(ctx context.Context, session *model.Session) error {
	if err := r.set(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) set(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return r.client.Del(ctx, r.key(session.ID)).Err()
	}

	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(session.ID), data, ttl).Err()
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)

// Ping はRedisへの疎通を確認する。
func (r *RedisSessionRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
