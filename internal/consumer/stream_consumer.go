package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
	"github.com/XuYifan-423/Sync-Life/internal/service"
	"github.com/XuYifan-423/Sync-Life/pkg/redis"
)

// 消费者组参数
const (
	consumerGroup   = "posture-ingest"
	readBatchSize   = 10
	initialBackoff  = 1 * time.Second
	maxBackoff      = 30 * time.Second
	metricsInterval = 60 * time.Second
)

// SampleIngester 样本摄入接口（由 PostureService 实现）
type SampleIngester interface {
	ProcessTrunkSample(ctx context.Context, msg *models.TrunkSampleMessage) (*service.IngestResult, error)
	ProcessSensorFrame(ctx context.Context, msg *models.FrameMessage) (*service.IngestResult, error)
}

// Metrics 消费指标
type Metrics struct {
	mu             sync.Mutex
	processed      int64
	failed         int64
	evaluations    int64
	lastReportTime time.Time
}

func (m *Metrics) record(failed bool, evaluated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if failed {
		m.failed++
		return
	}
	m.processed++
	if evaluated {
		m.evaluations++
	}
}

func (m *Metrics) snapshot() (processed, failed, evaluations int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	processed, failed, evaluations = m.processed, m.failed, m.evaluations
	m.processed, m.failed, m.evaluations = 0, 0, 0
	m.lastReportTime = time.Now()
	return
}

// StreamConsumer 样本流消费者
//
// 消费者组方式读取 posture:samples:stream，按信封类型分发到
// 摄入服务。读取失败按指数退避重试；单条消息的业务错误记录
// 指标后确认，不阻塞后续样本。
type StreamConsumer struct {
	redisClient  *redis.Client
	ingester     SampleIngester
	consumerName string
	logger       *zap.Logger
	metrics      *Metrics
}

// NewStreamConsumer 创建样本流消费者
func NewStreamConsumer(redisClient *redis.Client, ingester SampleIngester, consumerName string, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		redisClient:  redisClient,
		ingester:     ingester,
		consumerName: consumerName,
		logger:       logger,
		metrics:      &Metrics{lastReportTime: time.Now()},
	}
}

// Start 启动消费循环（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := redis.CreateConsumerGroup(ctx, c.redisClient, SampleStream, consumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", SampleStream),
		zap.String("group", consumerGroup),
		zap.String("consumer", c.consumerName))

	go c.metricsLoop(ctx)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopping")
			return nil
		default:
		}

		messages, err := redis.ReadFromStream(ctx, c.redisClient, SampleStream, consumerGroup, c.consumerName, readBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to read from stream",
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		for _, msg := range messages {
			c.handleMessage(ctx, &msg)
		}
	}
}

// handleMessage 处理并确认单条流消息
func (c *StreamConsumer) handleMessage(ctx context.Context, msg *redis.StreamMessage) {
	evaluated, err := c.dispatch(ctx, msg)
	if err != nil {
		c.metrics.record(true, false)
		c.logger.Error("Failed to process sample",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	} else {
		c.metrics.record(false, evaluated)
	}

	// 成功与否都确认：坏消息重投不会变好，业务错误已计入指标
	if err := redis.AckMessage(ctx, c.redisClient, SampleStream, consumerGroup, msg.ID); err != nil {
		c.logger.Warn("Failed to ack message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}

func (c *StreamConsumer) dispatch(ctx context.Context, msg *redis.StreamMessage) (bool, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return false, fmt.Errorf("stream message has no data field")
	}

	var envelope models.SampleEnvelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return false, fmt.Errorf("failed to parse sample envelope: %w", err)
	}

	var result *service.IngestResult
	var err error
	switch envelope.Kind {
	case models.SampleKindTrunk:
		if envelope.Trunk == nil {
			return false, models.ErrMissingField
		}
		result, err = c.ingester.ProcessTrunkSample(ctx, envelope.Trunk)
	case models.SampleKindFrame:
		if envelope.Frame == nil {
			return false, models.ErrMissingField
		}
		result, err = c.ingester.ProcessSensorFrame(ctx, envelope.Frame)
	default:
		return false, fmt.Errorf("unknown envelope kind %q", envelope.Kind)
	}
	if err != nil {
		return false, err
	}
	return result.Status == service.IngestEvaluated, nil
}

// metricsLoop 周期性输出消费指标
func (c *StreamConsumer) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, failed, evaluations := c.metrics.snapshot()
			c.logger.Info("Stream consumer metrics",
				zap.Int64("processed", processed),
				zap.Int64("failed", failed),
				zap.Int64("evaluations", evaluations))
		}
	}
}
