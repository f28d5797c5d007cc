package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/erazemk/sweetshop/internal/store"
)

// Revoker keeps the list of logged-out token IDs until they expire.
type Revoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// SQLRevoker stores revocations in the revoked_tokens table.
type SQLRevoker struct {
	db *sqlx.DB
}

// NewSQLRevoker returns a revoker backed by the application database.
func NewSQLRevoker(db *sqlx.DB) *SQLRevoker {
	return &SQLRevoker{db: db}
}

func (r *SQLRevoker) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return store.RevokeToken(ctx, r.db, jti, expiresAt)
}

func (r *SQLRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return store.IsTokenRevoked(ctx, r.db, jti)
}

const revokedKeyPrefix = "sweetshop:revoked:"

// RedisRevoker stores revocations as keys that expire with the token.
type RedisRevoker struct {
	client *redis.Client
}

// NewRedisRevoker connects to the Redis server at url and pings it.
func NewRedisRevoker(ctx context.Context, url string) (*RedisRevoker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.PoolTimeout = 30 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisRevoker{client: client}, nil
}

func (r *RedisRevoker) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis connection pool.
func (r *RedisRevoker) Close() error {
	return r.client.Close()
}
