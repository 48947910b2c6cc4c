// Package cache provides the Redis-backed read cache for wallet balances and
// batch progress polling. The database is always the source of truth; cache
// entries are invalidated on every posting and status write.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payops/internal/config"
	"payops/internal/models"

	"github.com/redis/go-redis/v9"
)

// Default TTLs. Batch progress is polled aggressively, so it gets a short
// TTL rather than explicit invalidation from the processing loop.
const (
	WalletTTL   = 5 * time.Minute
	ProgressTTL = 2 * time.Second
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LoadRedisConfig reads the Redis connection settings from the environment.
func LoadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:     config.GetEnv("REDIS_HOST", "localhost"),
		Port:     config.GetEnv("REDIS_PORT", "6379"),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetIntEnv("REDIS_DB", 0),
	}
}

func NewRedisClient(cfg *RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

type Service struct {
	client *redis.Client
}

func NewService(client *redis.Client) *Service {
	return &Service{client: client}
}

func (s *Service) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *Service) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func walletKey(ownerID uint, ownerType string) string {
	return fmt.Sprintf("wallet:%s:%d", ownerType, ownerID)
}

func progressKey(batchID uint) string {
	return fmt.Sprintf("batch:progress:%d", batchID)
}

// CacheWallet stores a wallet snapshot for balance reads.
func (s *Service) CacheWallet(ctx context.Context, wallet *models.Wallet) error {
	return s.set(ctx, walletKey(wallet.OwnerID, wallet.OwnerType), wallet, WalletTTL)
}

// GetWallet returns the cached wallet, or (nil, nil) on a miss.
func (s *Service) GetWallet(ctx context.Context, ownerID uint, ownerType string) (*models.Wallet, error) {
	var wallet models.Wallet
	found, err := s.get(ctx, walletKey(ownerID, ownerType), &wallet)
	if err != nil || !found {
		return nil, err
	}
	return &wallet, nil
}

// InvalidateWallet drops the wallet snapshot after a posting.
func (s *Service) InvalidateWallet(ctx context.Context, ownerID uint, ownerType string) error {
	return s.client.Del(ctx, walletKey(ownerID, ownerType)).Err()
}

// CacheBatchProgress stores a short-lived batch progress snapshot.
func (s *Service) CacheBatchProgress(ctx context.Context, batchID uint, progress interface{}) error {
	return s.set(ctx, progressKey(batchID), progress, ProgressTTL)
}

// GetBatchProgress loads a cached progress snapshot into dest; found reports
// whether the key was present.
func (s *Service) GetBatchProgress(ctx context.Context, batchID uint, dest interface{}) (bool, error) {
	return s.get(ctx, progressKey(batchID), dest)
}

// FlushAll clears the cache; used at startup.
func (s *Service) FlushAll(ctx context.Context) error {
	return s.client.FlushAll(ctx).Err()
}

// Close releases the underlying Redis connection.
func (s *Service) Close() error {
	return s.client.Close()
}
