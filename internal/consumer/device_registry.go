// Package consumer 样本接入：MQTT → Redis Streams → 摄入服务
package consumer

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/pkg/redis"
)

const deviceKeyPrefix = "device:user:"

// ErrDeviceUnbound 设备序列号没有绑定用户
var ErrDeviceUnbound = fmt.Errorf("device not bound to any user")

// DeviceRegistry 智能服装设备与用户的绑定关系（Redis）
type DeviceRegistry struct {
	client *redis.Client
	logger *zap.Logger
}

// NewDeviceRegistry 创建设备绑定表
func NewDeviceRegistry(client *redis.Client, logger *zap.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		client: client,
		logger: logger,
	}
}

func deviceKey(serial string) string {
	return deviceKeyPrefix + serial
}

// Bind 绑定设备到用户（覆盖旧绑定）
func (r *DeviceRegistry) Bind(ctx context.Context, serial string, userID int64) error {
	if serial == "" || userID == 0 {
		return fmt.Errorf("serial and user_id are required")
	}
	if err := r.client.Set(ctx, deviceKey(serial), userID, 0).Err(); err != nil {
		return fmt.Errorf("failed to bind device: %w", err)
	}
	r.logger.Info("Device bound",
		zap.String("serial", serial),
		zap.Int64("user_id", userID))
	return nil
}

// Unbind 解除设备绑定
func (r *DeviceRegistry) Unbind(ctx context.Context, serial string) error {
	if err := r.client.Del(ctx, deviceKey(serial)).Err(); err != nil {
		return fmt.Errorf("failed to unbind device: %w", err)
	}
	return nil
}

// Resolve 根据设备序列号查找绑定的用户
func (r *DeviceRegistry) Resolve(ctx context.Context, serial string) (int64, error) {
	val, err := r.client.Get(ctx, deviceKey(serial)).Result()
	if err != nil {
		if err == goredis.Nil {
			return 0, ErrDeviceUnbound
		}
		return 0, fmt.Errorf("failed to resolve device: %w", err)
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt device binding for %s: %w", serial, err)
	}
	return userID, nil
}
