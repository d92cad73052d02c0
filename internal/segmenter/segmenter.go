// Package segmenter 把连续的姿态评估结果切分成历史记录段
//
// 每个用户任意时刻最多一条"开放"记录（end_time 为空）。评估结果
// 与开放记录的 (姿态, 风险) 相同则什么都不做；不同则在单个事务里
// 关闭旧段、打开新段。同一评估结果重复提交是幂等的。
package segmenter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// RecordStore 姿态记录的持久化接口
//
// GetOpenRecord 在没有开放记录时返回 (nil, nil)。
// TransitionRecord 必须原子完成"关闭旧段+打开新段"。
type RecordStore interface {
	GetOpenRecord(ctx context.Context, userID int64) (*models.PostureRecord, error)
	CreateOpenRecord(ctx context.Context, rec *models.PostureRecord) error
	TransitionRecord(ctx context.Context, openRecordID int64, closedAt time.Time, next *models.PostureRecord) error
}

// Evaluation 一次完整的姿态评估结果
type Evaluation struct {
	UserID      int64
	State       models.State
	StableAngle float64
	Risk        models.RiskLevel
	At          time.Time
}

// Segmenter 姿态记录切分器
type Segmenter struct {
	store  RecordStore
	logger *zap.Logger
}

// New 创建切分器
func New(store RecordStore, logger *zap.Logger) *Segmenter {
	return &Segmenter{store: store, logger: logger}
}

// Ingest 提交一次评估结果
//
// 返回值表示这次提交是否改变了记录状态（新开段或换段）。
func (s *Segmenter) Ingest(ctx context.Context, ev Evaluation) (bool, error) {
	open, err := s.store.GetOpenRecord(ctx, ev.UserID)
	if err != nil {
		return false, err
	}

	if open == nil {
		rec := &models.PostureRecord{
			UserID:           ev.UserID,
			State:            ev.State,
			TrunkStableAngle: ev.StableAngle,
			RiskLevel:        ev.Risk,
			StartTime:        ev.At,
		}
		if err := s.store.CreateOpenRecord(ctx, rec); err != nil {
			return false, err
		}
		s.logger.Info("Posture segment opened",
			zap.Int64("user_id", ev.UserID),
			zap.String("state", ev.State.String()),
			zap.String("risk", string(ev.Risk)))
		return true, nil
	}

	// 姿态和风险都没变：幂等，不产生新段
	if open.State == ev.State && open.RiskLevel == ev.Risk {
		return false, nil
	}

	next := &models.PostureRecord{
		UserID:           ev.UserID,
		State:            ev.State,
		TrunkStableAngle: ev.StableAngle,
		RiskLevel:        ev.Risk,
		StartTime:        ev.At,
	}
	if err := s.store.TransitionRecord(ctx, open.RecordID, ev.At, next); err != nil {
		return false, err
	}
	s.logger.Info("Posture segment transitioned",
		zap.Int64("user_id", ev.UserID),
		zap.String("from_state", open.State.String()),
		zap.String("to_state", ev.State.String()),
		zap.String("to_risk", string(ev.Risk)),
		zap.Float64("closed_duration_seconds", ev.At.Sub(open.StartTime).Seconds()))
	return true, nil
}
