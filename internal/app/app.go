// Package app 组装姿态监测服务的全部组件
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/config"
	"github.com/XuYifan-423/Sync-Life/internal/consumer"
	"github.com/XuYifan-423/Sync-Life/internal/repository"
	"github.com/XuYifan-423/Sync-Life/internal/segmenter"
	"github.com/XuYifan-423/Sync-Life/internal/service"
	"github.com/XuYifan-423/Sync-Life/internal/session"
	"github.com/XuYifan-423/Sync-Life/pkg/database"
	"github.com/XuYifan-423/Sync-Life/pkg/mqtt"
	"github.com/XuYifan-423/Sync-Life/pkg/redis"
)

// App 姿态监测服务
//
// 数据通路：MQTT（服装上报）→ Redis Streams → StreamConsumer →
// PostureService（估计器/分类器/切分器）→ PostgreSQL。
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	sessions *session.Store

	posture  *service.PostureService
	accounts *service.AccountService
	reports  *service.ReportService
	registry *consumer.DeviceRegistry

	mqttConsumer   *consumer.MQTTConsumer
	streamConsumer *consumer.StreamConsumer
}

// New 创建并连接全部依赖
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := redis.NewRedisClient(&cfg.Redis)
	if err := redis.Ping(context.Background(), redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	usersRepo := repository.NewUsersRepository(db, logger)
	recordsRepo := repository.NewPostureRecordsRepository(db, logger)
	calibrationsRepo := repository.NewCalibrationsRepository(db, logger)

	sessions := session.NewStore(cfg.Ingest.SessionTTL, logger)
	seg := segmenter.New(recordsRepo, logger)
	cache := service.NewRealtimeCache(redisClient, logger)

	var pose service.PoseEstimator
	if cfg.PoseServiceURL != "" {
		pose = service.NewPoseClient(cfg.PoseServiceURL, logger)
		logger.Info("External pose estimation enabled",
			zap.String("url", cfg.PoseServiceURL))
	}

	posture := service.NewPostureService(
		usersRepo, calibrationsRepo, recordsRepo,
		sessions, seg, cache, pose, logger,
	)
	registry := consumer.NewDeviceRegistry(redisClient, logger)

	return &App{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		redisClient:    redisClient,
		sessions:       sessions,
		posture:        posture,
		accounts:       service.NewAccountService(usersRepo, redisClient, logger),
		reports:        service.NewReportService(usersRepo, recordsRepo, logger),
		registry:       registry,
		streamConsumer: consumer.NewStreamConsumer(redisClient, posture, cfg.Ingest.ConsumerName, logger),
	}, nil
}

// Start 启动摄入管线（阻塞直到 ctx 取消）
func (a *App) Start(ctx context.Context) error {
	a.sessions.StartJanitor(a.cfg.Ingest.SweepEvery)

	mqttClient, err := mqtt.NewClient(&a.cfg.MQTT, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	a.mqttClient = mqttClient
	a.mqttConsumer = consumer.NewMQTTConsumer(mqttClient, a.redisClient, a.registry, a.logger)

	if err := a.mqttConsumer.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("Posture service started",
		zap.String("consumer", a.cfg.Ingest.ConsumerName))
	return a.streamConsumer.Start(ctx)
}

// Stop 优雅关闭
func (a *App) Stop(ctx context.Context) error {
	if a.mqttConsumer != nil {
		a.mqttConsumer.Stop()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	a.sessions.Stop()

	if err := redis.Close(a.redisClient); err != nil {
		a.logger.Warn("Failed to close redis client", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	return nil
}

// Posture 样本摄入与实时姿态服务
func (a *App) Posture() *service.PostureService { return a.posture }

// Accounts 账户服务
func (a *App) Accounts() *service.AccountService { return a.accounts }

// Reports 活动报告服务
func (a *App) Reports() *service.ReportService { return a.reports }

// Devices 设备绑定表
func (a *App) Devices() *consumer.DeviceRegistry { return a.registry }
