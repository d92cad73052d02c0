// Package session 维护每个用户的在线分析会话
//
// 一个会话持有该用户的稳定角度估计器、运动姿态分类器和最近一次
// 的姿态标签。样本流按用户串行处理，会话内部用互斥锁保证估计器
// 不被并发更新。长时间无样本的会话由后台清理协程回收。
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/classifier"
	"github.com/XuYifan-423/Sync-Life/internal/estimator"
	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// 估计器参数按年龄组选择：老年用户窗口更长、阈值更宽
const (
	windowSizeDefault = 15
	windowSizeSenior  = 20

	varianceThresholdDefault = 1.5
	varianceThresholdSenior  = 2.5
)

// DefaultIdleTTL 会话空闲回收时间
const DefaultIdleTTL = 30 * time.Minute

// Session 单个用户的在线分析会话
type Session struct {
	mu       sync.Mutex // 保护估计器/分类器内部状态
	ingestMu sync.Mutex // 整条"读开放记录-判断-写"流水线的串行化点

	userID    int64
	estimator *estimator.StableAngleEstimator
	motion    *classifier.MotionPoseClassifier
	lastState models.State
	lastSeen  time.Time
}

func newSession(userID int64, ageGroup models.AgeGroup) *Session {
	windowSize := windowSizeDefault
	threshold := varianceThresholdDefault
	if ageGroup == models.AgeGroupSenior {
		windowSize = windowSizeSenior
		threshold = varianceThresholdSenior
	}
	return &Session{
		userID:    userID,
		estimator: estimator.New(windowSize, threshold),
		motion:    classifier.NewMotionPoseClassifier(),
		lastState: models.StateUnknown,
		lastSeen:  time.Now(),
	}
}

// ObserveTrunk 输入一个带姿态标签的躯干角样本
//
// 姿态标签与上一样本不同则先清空估计器窗口——不同姿态的角度
// 分布不可混合。返回当前的稳定角度（窗口满且方差达标时 ok=true）。
func (s *Session) ObserveTrunk(state models.State, angle float64) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state != s.lastState {
		s.estimator.Reset()
		s.lastState = state
	}
	s.estimator.AddSample(angle)
	s.lastSeen = time.Now()
	return s.estimator.StableAngle()
}

// ClassifyFrame 用运动姿态分类器处理一帧原始传感器数据
// 未校准时返回 StateUnknown。
func (s *Session) ClassifyFrame(frame *models.SensorFrame) models.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = time.Now()
	return s.motion.Update(frame)
}

// SetCalibration 设置运动姿态分类器的T-Pose校准参考
func (s *Session) SetCalibration(ref *models.CalibrationRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.motion.SetCalibration(ref)
	s.lastSeen = time.Now()
}

// Calibrated 是否已加载校准参考
func (s *Session) Calibrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motion.Calibrated()
}

// Serialized 在用户级流水线锁内执行 fn
//
// 同一用户并发摄入时，换段的读-判-写序列不是原子的，必须在这里
// 串行化；不同用户互不阻塞。
func (s *Session) Serialized(fn func() error) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	return fn()
}

// LastState 最近一次样本的姿态标签
func (s *Session) LastState() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastState
}

func (s *Session) idleSince(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen) > ttl
}

// Store 会话存储
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	idleTTL time.Duration
	logger  *zap.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewStore 创建会话存储
// idleTTL <= 0 时使用默认值
func NewStore(idleTTL time.Duration, logger *zap.Logger) *Store {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Store{
		sessions: make(map[int64]*Session),
		idleTTL:  idleTTL,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Get 获取用户会话，不存在则按年龄组参数创建
func (st *Store) Get(userID int64, ageGroup models.AgeGroup) *Session {
	st.mu.RLock()
	s, ok := st.sessions[userID]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[userID]; ok {
		return s
	}
	s = newSession(userID, ageGroup)
	st.sessions[userID] = s
	st.logger.Debug("Session created",
		zap.Int64("user_id", userID),
		zap.String("age_group", string(ageGroup)))
	return s
}

// Peek 获取已存在的会话，不创建
func (st *Store) Peek(userID int64) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[userID]
	return s, ok
}

// Remove 移除用户会话（用户资料变更需要重建估计器参数时调用）
func (st *Store) Remove(userID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, userID)
}

// Len 当前会话数
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// StartJanitor 启动空闲会话清理协程
func (st *Store) StartJanitor(interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-st.stopCh:
				return
			case <-ticker.C:
				st.evictIdle()
			}
		}
	}()
}

// Stop 停止清理协程
func (st *Store) Stop() {
	close(st.stopCh)
	st.wg.Wait()
}

func (st *Store) evictIdle() {
	now := time.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for userID, s := range st.sessions {
		if s.idleSince(now, st.idleTTL) {
			delete(st.sessions, userID)
			evicted++
		}
	}
	if evicted > 0 {
		st.logger.Info("Evicted idle sessions",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(st.sessions)))
	}
}
