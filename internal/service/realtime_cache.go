package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/pkg/redis"
)

// 实时姿态缓存键
const (
	realtimeKeyPrefix = "posture:current:"
	realtimeTTL       = 5 * time.Minute
)

// CurrentPosture 用户当前姿态快照
type CurrentPosture struct {
	UserID      int64     `json:"user_id"`
	State       string    `json:"state"`
	Risk        string    `json:"risk"`
	StableAngle float64   `json:"stable_angle"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RealtimeCache 实时姿态的 Redis 缓存
//
// 每次评估完成后写入，带TTL：长时间无样本的用户查询会自然
// 回落到数据库里的开放记录。
type RealtimeCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRealtimeCache 创建实时姿态缓存
func NewRealtimeCache(client *redis.Client, logger *zap.Logger) *RealtimeCache {
	return &RealtimeCache{
		client: client,
		logger: logger,
	}
}

func realtimeKey(userID int64) string {
	return fmt.Sprintf("%s%d", realtimeKeyPrefix, userID)
}

// SetCurrent 写入用户当前姿态
func (c *RealtimeCache) SetCurrent(ctx context.Context, snapshot *CurrentPosture) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal posture snapshot: %w", err)
	}

	if err := c.client.Set(ctx, realtimeKey(snapshot.UserID), data, realtimeTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache posture snapshot: %w", err)
	}
	return nil
}

// GetCurrent 读取用户当前姿态，缓存未命中时返回 (nil, nil)
func (c *RealtimeCache) GetCurrent(ctx context.Context, userID int64) (*CurrentPosture, error) {
	data, err := c.client.Get(ctx, realtimeKey(userID)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read posture snapshot: %w", err)
	}

	var snapshot CurrentPosture
	if err := json.Unmarshal(data, &snapshot); err != nil {
		// 缓存内容损坏按未命中处理，回落数据库
		c.logger.Warn("Corrupt posture snapshot in cache, ignoring",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, nil
	}
	return &snapshot, nil
}
