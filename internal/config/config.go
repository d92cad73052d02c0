// Package config 姿态监测服务配置
package config

import (
	"os"
	"time"

	"github.com/XuYifan-423/Sync-Life/pkg/config"
)

// Config 姿态监测服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 摄入管线配置
	Ingest struct {
		ConsumerName string        // 消费者名称（多实例时区分）
		SessionTTL   time.Duration // 在线会话空闲回收时间
		SweepEvery   time.Duration // 会话清理周期
	}

	// 外部ML姿态估计服务（为空时禁用，只用本地启发式）
	PoseServiceURL string

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
//
// 公共段（数据库/Redis/MQTT）先填默认值再交给 LoadFromEnv 按前缀
// 覆盖，连接池参数也从这里带入。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "synclife",
		SSLMode:  "disable",
		MaxConns: 25,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "sync-posture",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Ingest.ConsumerName = getEnv("CONSUMER_NAME", "sync-posture-1")
	cfg.Ingest.SessionTTL = getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute)
	cfg.Ingest.SweepEvery = getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute)

	cfg.PoseServiceURL = getEnv("POSE_SERVICE_URL", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
