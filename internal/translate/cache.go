package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf-translator/internal/logger"
)

// Store persists translations by cache key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CacheKey 计算缓存键（SHA256 of source|target|text）
func CacheKey(source, target, text string) string {
	hash := sha256.Sum256([]byte(source + "|" + target + "|" + text))
	return hex.EncodeToString(hash[:])
}

// CachedService serves repeated translations from a Store.
// Store failures are logged and never fail a translation.
type CachedService struct {
	next  Service
	store Store
}

// NewCachedService wraps next with store.
func NewCachedService(next Service, store Store) *CachedService {
	return &CachedService{next: next, store: store}
}

// Translate implements Service.
func (c *CachedService) Translate(ctx context.Context, text, source, target string) (string, error) {
	key := CacheKey(source, target, text)

	if v, ok, err := c.store.Get(ctx, key); err != nil {
		logger.Warn("translation cache read failed", logger.Err(err))
	} else if ok {
		return v, nil
	}

	out, err := c.next.Translate(ctx, text, source, target)
	if err != nil {
		return "", err
	}

	if err := c.store.Set(ctx, key, out); err != nil {
		logger.Warn("translation cache write failed", logger.Err(err))
	}
	return out, nil
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Hash        string    `json:"hash"`
	Original    string    `json:"original,omitempty"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheFile 缓存文件格式
type CacheFile struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

const cacheFileVersion = "1.0"

// FileStore 基于 JSON 文件的翻译缓存
type FileStore struct {
	cachePath string
	cache     map[string]CacheEntry // hash -> CacheEntry
	mu        sync.RWMutex
}

// NewFileStore 创建新的文件缓存实例，需调用 Load 读取已有内容
func NewFileStore(cachePath string) *FileStore {
	return &FileStore{
		cachePath: cachePath,
		cache:     make(map[string]CacheEntry),
	}
}

// Get 获取缓存的翻译
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok {
		return "", false, nil
	}
	return entry.Translation, true, nil
}

// Set 设置翻译缓存
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = CacheEntry{
		Hash:        key,
		Translation: value,
		CreatedAt:   time.Now(),
	}
	return nil
}

// Load 从文件加载缓存；文件不存在时保持空缓存
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachePath == "" {
		return nil
	}

	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var cacheFile CacheFile
	if err := json.Unmarshal(data, &cacheFile); err != nil {
		return fmt.Errorf("failed to parse cache file: %w", err)
	}
	if cacheFile.Version != cacheFileVersion {
		logger.Warn("ignoring cache file with unknown version",
			logger.String("path", s.cachePath),
			logger.String("version", cacheFile.Version))
		return nil
	}

	s.cache = make(map[string]CacheEntry, len(cacheFile.Entries))
	for _, entry := range cacheFile.Entries {
		s.cache[entry.Hash] = entry
	}
	return nil
}

// Save 保存缓存到文件
func (s *FileStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cachePath == "" {
		return nil
	}

	entries := make([]CacheEntry, 0, len(s.cache))
	for _, entry := range s.cache {
		entries = append(entries, entry)
	}

	data, err := json.MarshalIndent(CacheFile{Version: cacheFileVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if dir := filepath.Dir(s.cachePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	if err := os.WriteFile(s.cachePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// Size 返回缓存中的条目数量
func (s *FileStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// RedisStore shares translations between runs and hosts through Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultRedisTTL is how long a cached translation lives in Redis.
const DefaultRedisTTL = 30 * 24 * time.Hour

// NewRedisStore connects to the Redis instance described by url (redis://host:port/db).
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		prefix: "pdft:translation:",
		ttl:    ttl,
	}, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
