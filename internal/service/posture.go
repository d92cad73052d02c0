// Package service 业务服务层：样本摄入、账户、报告
package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/classifier"
	"github.com/XuYifan-423/Sync-Life/internal/models"
	"github.com/XuYifan-423/Sync-Life/internal/segmenter"
	"github.com/XuYifan-423/Sync-Life/internal/session"
)

// 躯干角物理有效范围（度，开区间）。范围外的样本直接拒绝，
// 绝不截断进估计器。
const (
	trunkAngleMin = -10.0
	trunkAngleMax = 40.0
)

// UserStore 用户读取接口
type UserStore interface {
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
}

// CalibrationStore 校准参考持久化接口
type CalibrationStore interface {
	SaveCalibration(ctx context.Context, ref *models.CalibrationRef) error
	GetActiveCalibration(ctx context.Context, userID int64) (*models.CalibrationRef, error)
}

// RecordReader 记录查询接口（实时姿态兜底用）
type RecordReader interface {
	GetOpenRecord(ctx context.Context, userID int64) (*models.PostureRecord, error)
	GetLatestRecord(ctx context.Context, userID int64) (*models.PostureRecord, error)
}

// IngestStatus 一次样本摄入的结果状态
type IngestStatus string

const (
	// IngestCalculating 窗口未满或方差未达标，继续积累——正常结果，不是错误
	IngestCalculating IngestStatus = "calculating"
	// IngestUncalibrated 运动分类器还没有T-Pose校准参考
	IngestUncalibrated IngestStatus = "uncalibrated"
	// IngestEvaluated 完成了一次完整评估（风险分级 + 切分器提交）
	IngestEvaluated IngestStatus = "evaluated"
)

// IngestResult 样本摄入结果
type IngestResult struct {
	Status      IngestStatus     `json:"status"`
	State       models.State     `json:"state"`
	StableAngle float64          `json:"stable_angle,omitempty"`
	Risk        models.RiskLevel `json:"risk,omitempty"`
	Transition  bool             `json:"transition"` // 是否引起换段
}

// PostureService 姿态样本摄入服务
type PostureService struct {
	users        UserStore
	calibrations CalibrationStore
	records      RecordReader
	sessions     *session.Store
	segmenter    *segmenter.Segmenter
	cache        *RealtimeCache
	poseClient   PoseEstimator // 可空
	logger       *zap.Logger
}

// NewPostureService 创建姿态服务
// poseClient 可以为 nil，此时全部使用本地重力偏差启发式
func NewPostureService(
	users UserStore,
	calibrations CalibrationStore,
	records RecordReader,
	sessions *session.Store,
	seg *segmenter.Segmenter,
	cache *RealtimeCache,
	poseClient PoseEstimator,
	logger *zap.Logger,
) *PostureService {
	return &PostureService{
		users:        users,
		calibrations: calibrations,
		records:      records,
		sessions:     sessions,
		segmenter:    seg,
		cache:        cache,
		poseClient:   poseClient,
		logger:       logger,
	}
}

// ProcessTrunkSample 摄入一个预计算好的躯干角样本
func (s *PostureService) ProcessTrunkSample(ctx context.Context, msg *models.TrunkSampleMessage) (*IngestResult, error) {
	if msg == nil || msg.UserID == 0 {
		return nil, models.ErrMissingField
	}
	if !msg.State.IsValid() {
		return nil, models.ErrMissingField
	}
	if msg.TrunkAngle <= trunkAngleMin || msg.TrunkAngle >= trunkAngleMax {
		return nil, models.ErrAngleOutOfRange
	}

	user, err := s.users.GetUserByID(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}

	at := time.Now()
	if msg.Timestamp > 0 {
		at = time.Unix(msg.Timestamp, 0)
	}

	return s.evaluate(ctx, user, msg.State, msg.TrunkAngle, at)
}

// ProcessSensorFrame 摄入一帧原始的全身传感器数据
//
// 姿态标签优先用外部ML协作方，失败或未配置时回落到本地
// 重力偏差启发式；躯干角从第一个IMU的加速度推导。
func (s *PostureService) ProcessSensorFrame(ctx context.Context, msg *models.FrameMessage) (*IngestResult, error) {
	if msg == nil || msg.UserID == 0 {
		return nil, models.ErrMissingField
	}

	user, err := s.users.GetUserByID(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}

	sess := s.sessions.Get(user.ID, user.AgeGroup)
	if err := s.ensureCalibration(ctx, user.ID, sess); err != nil {
		return nil, err
	}

	state := s.classifyFrame(ctx, user.ID, sess, &msg.Frame)
	if state == models.StateUnknown {
		// 校准前的正常前置状态，样本丢弃等校准
		return &IngestResult{Status: IngestUncalibrated, State: models.StateUnknown}, nil
	}

	angle := trunkPitch(&msg.Frame)
	if angle <= trunkAngleMin || angle >= trunkAngleMax {
		return nil, models.ErrAngleOutOfRange
	}

	at := time.Now()
	if msg.Timestamp > 0 {
		at = time.Unix(msg.Timestamp, 0)
	}

	return s.evaluate(ctx, user, state, angle, at)
}

// Calibrate 用一帧T-Pose站立数据完成校准：落库并装载到在线会话
func (s *PostureService) Calibrate(ctx context.Context, userID int64, frame *models.SensorFrame) (*models.CalibrationRef, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ref, err := classifier.CalibrationFromFrame(frame)
	if err != nil {
		return nil, err
	}
	ref.CalibrationID = uuid.New().String()
	ref.UserID = user.ID
	ref.CreatedAt = time.Now()

	if err := s.calibrations.SaveCalibration(ctx, ref); err != nil {
		return nil, err
	}

	s.sessions.Get(user.ID, user.AgeGroup).SetCalibration(ref)
	s.logger.Info("User calibrated",
		zap.Int64("user_id", user.ID),
		zap.String("calibration_id", ref.CalibrationID))
	return ref, nil
}

// CurrentPosture 查询用户当前姿态
//
// 兜底链：缓存 → 开放记录 → 最近一条已关闭记录。用户从未
// 产生过记录时才返回 ErrRecordNotFound。
func (s *PostureService) CurrentPosture(ctx context.Context, userID int64) (*CurrentPosture, error) {
	snapshot, err := s.cache.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		return snapshot, nil
	}

	rec, err := s.records.GetOpenRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec, err = s.records.GetLatestRecord(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	updatedAt := rec.StartTime
	if rec.EndTime != nil {
		updatedAt = *rec.EndTime
	}
	return &CurrentPosture{
		UserID:      userID,
		State:       rec.State.String(),
		Risk:        string(rec.RiskLevel),
		StableAngle: rec.TrunkStableAngle,
		UpdatedAt:   updatedAt,
	}, nil
}

// evaluate 估计器→风险分级→切分器的公共路径
func (s *PostureService) evaluate(ctx context.Context, user *models.User, state models.State, angle float64, at time.Time) (*IngestResult, error) {
	sess := s.sessions.Get(user.ID, user.AgeGroup)

	result := &IngestResult{State: state}
	err := sess.Serialized(func() error {
		stable, ok := sess.ObserveTrunk(state, angle)
		if !ok {
			result.Status = IngestCalculating
			return nil
		}

		stdRange, found := classifier.StandardRange(user.AgeGroup, state)
		if !found {
			return models.ErrMissingField
		}
		risk := classifier.ClassifyRisk(stable, stdRange, user.AgeGroup, user.HasIlls())

		changed, err := s.segmenter.Ingest(ctx, segmenter.Evaluation{
			UserID:      user.ID,
			State:       state,
			StableAngle: stable,
			Risk:        risk,
			At:          at,
		})
		if err != nil {
			return err
		}

		result.Status = IngestEvaluated
		result.StableAngle = stable
		result.Risk = risk
		result.Transition = changed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status == IngestEvaluated {
		snapshot := &CurrentPosture{
			UserID:      user.ID,
			State:       state.String(),
			Risk:        string(result.Risk),
			StableAngle: result.StableAngle,
			UpdatedAt:   at,
		}
		if err := s.cache.SetCurrent(ctx, snapshot); err != nil {
			// 缓存失败不影响评估结果，下一次评估会覆盖
			s.logger.Warn("Failed to update realtime posture cache",
				zap.Int64("user_id", user.ID),
				zap.Error(err))
		}
	}
	return result, nil
}

// ensureCalibration 确保在线会话已装载激活的校准参考
func (s *PostureService) ensureCalibration(ctx context.Context, userID int64, sess *session.Session) error {
	if sess.Calibrated() {
		return nil
	}
	ref, err := s.calibrations.GetActiveCalibration(ctx, userID)
	if err != nil {
		return err
	}
	if ref != nil {
		sess.SetCalibration(ref)
	}
	return nil
}

// classifyFrame 外部ML优先，出错回落本地启发式
func (s *PostureService) classifyFrame(ctx context.Context, userID int64, sess *session.Session, frame *models.SensorFrame) models.State {
	if s.poseClient != nil {
		state, err := s.poseClient.EstimatePose(ctx, userID, frame)
		if err == nil {
			// ML结果不经过本地分类器，但仍要推进运动强度缓冲区
			sess.ClassifyFrame(frame)
			return state
		}
		s.logger.Warn("External pose estimation failed, falling back to heuristic",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
	return sess.ClassifyFrame(frame)
}

// trunkPitch 从第一个IMU（胸口）的加速度推导躯干俯仰角（度）
func trunkPitch(frame *models.SensorFrame) float64 {
	acc := frame.Readings[0].Acc
	return -math.Atan2(acc[0], math.Sqrt(acc[1]*acc[1]+acc[2]*acc[2])) * 180 / math.Pi
}
