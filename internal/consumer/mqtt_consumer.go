package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
	"github.com/XuYifan-423/Sync-Life/pkg/mqtt"
	"github.com/XuYifan-423/Sync-Life/pkg/redis"
)

// SampleStream 样本流名称
const SampleStream = "posture:samples:stream"

// 智能服装上报主题：garment/{serial}/samples
const garmentTopicPattern = "garment/+/samples"

// garmentSample 服装端上报的样本（已解码为浮点值，二进制线协议
// 的解码在设备网关完成）
type garmentSample struct {
	Kind       string              `json:"kind"` // trunk | frame
	State      string              `json:"state,omitempty"`
	TrunkAngle float64             `json:"trunk_angle,omitempty"`
	Frame      *models.SensorFrame `json:"frame,omitempty"`
	Timestamp  int64               `json:"timestamp"`
}

// MQTTConsumer 订阅服装上报主题，归一化后转发到 Redis Streams
//
// 只做接线：设备→用户解析和信封组装，不做任何姿态计算。
type MQTTConsumer struct {
	mqttClient  *mqtt.Client
	redisClient *redis.Client
	registry    *DeviceRegistry
	logger      *zap.Logger
}

// NewMQTTConsumer 创建MQTT接入消费者
func NewMQTTConsumer(mqttClient *mqtt.Client, redisClient *redis.Client, registry *DeviceRegistry, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		mqttClient:  mqttClient,
		redisClient: redisClient,
		registry:    registry,
		logger:      logger,
	}
}

// Start 订阅服装上报主题
func (c *MQTTConsumer) Start(ctx context.Context) error {
	err := c.mqttClient.Subscribe(garmentTopicPattern, 1, func(topic string, payload []byte) error {
		return c.handleSample(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to garment samples: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", garmentTopicPattern))
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() {
	if err := c.mqttClient.Unsubscribe(garmentTopicPattern); err != nil {
		c.logger.Warn("Failed to unsubscribe", zap.Error(err))
	}
}

// handleSample 单条上报消息：解析 → 解析设备绑定 → 组装信封 → 入流
func (c *MQTTConsumer) handleSample(ctx context.Context, topic string, payload []byte) error {
	serial := serialFromTopic(topic)
	if serial == "" {
		return fmt.Errorf("malformed garment topic: %s", topic)
	}

	var sample garmentSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return fmt.Errorf("failed to parse garment sample: %w", err)
	}

	userID, err := c.registry.Resolve(ctx, serial)
	if err != nil {
		return fmt.Errorf("failed to resolve device %s: %w", serial, err)
	}

	envelope, err := buildEnvelope(userID, &sample)
	if err != nil {
		return err
	}

	if _, err := redis.PublishJSONToStream(ctx, c.redisClient, SampleStream, envelope); err != nil {
		return fmt.Errorf("failed to publish sample to stream: %w", err)
	}
	return nil
}

func serialFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "garment" || parts[2] != "samples" {
		return ""
	}
	return parts[1]
}

func buildEnvelope(userID int64, sample *garmentSample) (*models.SampleEnvelope, error) {
	switch sample.Kind {
	case models.SampleKindTrunk:
		state, ok := models.ParseState(sample.State)
		if !ok || !state.IsValid() {
			return nil, fmt.Errorf("unknown posture state %q", sample.State)
		}
		return &models.SampleEnvelope{
			Kind: models.SampleKindTrunk,
			Trunk: &models.TrunkSampleMessage{
				UserID:     userID,
				State:      state,
				TrunkAngle: sample.TrunkAngle,
				Timestamp:  sample.Timestamp,
			},
		}, nil
	case models.SampleKindFrame:
		if sample.Frame == nil {
			return nil, models.ErrMissingField
		}
		return &models.SampleEnvelope{
			Kind: models.SampleKindFrame,
			Frame: &models.FrameMessage{
				UserID:    userID,
				Frame:     *sample.Frame,
				Timestamp: sample.Timestamp,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown sample kind %q", sample.Kind)
	}
}
