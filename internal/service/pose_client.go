package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// PoseEstimator 外部姿态估计协作方
//
// 可选依赖：不可用或出错时上层回落到本地重力偏差启发式。
type PoseEstimator interface {
	EstimatePose(ctx context.Context, userID int64, frame *models.SensorFrame) (models.State, error)
}

// PoseClient 外部ML全身姿态估计服务的HTTP客户端
type PoseClient struct {
	client *resty.Client
	logger *zap.Logger
}

// NewPoseClient 创建姿态估计客户端
func NewPoseClient(baseURL string, logger *zap.Logger) *PoseClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &PoseClient{
		client: client,
		logger: logger,
	}
}

type poseEstimateRequest struct {
	UserID int64              `json:"user_id"`
	Frame  models.SensorFrame `json:"frame"`
}

type poseEstimateResponse struct {
	State      string  `json:"state"`
	Confidence float64 `json:"confidence"`
}

// EstimatePose 请求外部服务估计一帧的姿态
func (c *PoseClient) EstimatePose(ctx context.Context, userID int64, frame *models.SensorFrame) (models.State, error) {
	var result poseEstimateResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(poseEstimateRequest{UserID: userID, Frame: *frame}).
		SetResult(&result).
		Post("/v1/pose/estimate")
	if err != nil {
		return models.StateUnknown, fmt.Errorf("pose estimation request failed: %w", err)
	}
	if resp.IsError() {
		return models.StateUnknown, fmt.Errorf("pose estimation returned status %d", resp.StatusCode())
	}

	state, ok := models.ParseState(result.State)
	if !ok || !state.IsValid() {
		return models.StateUnknown, fmt.Errorf("pose estimation returned unknown state %q", result.State)
	}

	c.logger.Debug("External pose estimate",
		zap.Int64("user_id", userID),
		zap.String("state", state.String()),
		zap.Float64("confidence", result.Confidence))
	return state, nil
}
