package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
	"github.com/XuYifan-423/Sync-Life/internal/segmenter"
	"github.com/XuYifan-423/Sync-Life/internal/session"
)

// ---- 测试替身 ----

type fakeUserStore struct {
	users map[int64]*models.User
}

func (f *fakeUserStore) GetUserByID(_ context.Context, userID int64) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

type fakeCalibrationStore struct {
	active map[int64]*models.CalibrationRef
	saved  []*models.CalibrationRef
}

func (f *fakeCalibrationStore) SaveCalibration(_ context.Context, ref *models.CalibrationRef) error {
	if f.active == nil {
		f.active = map[int64]*models.CalibrationRef{}
	}
	f.active[ref.UserID] = ref
	f.saved = append(f.saved, ref)
	return nil
}

func (f *fakeCalibrationStore) GetActiveCalibration(_ context.Context, userID int64) (*models.CalibrationRef, error) {
	return f.active[userID], nil
}

// memRecordStore 内存版姿态记录存储（带锁，供并发摄入测试使用）
type memRecordStore struct {
	mu      sync.Mutex
	open    map[int64]*models.PostureRecord
	closed  []*models.PostureRecord
	nextID  int64
	created int
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{open: map[int64]*models.PostureRecord{}, nextID: 1}
}

func (m *memRecordStore) GetOpenRecord(_ context.Context, userID int64) (*models.PostureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.open[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecordStore) GetLatestRecord(_ context.Context, userID int64) (*models.PostureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.open[userID]; ok {
		cp := *rec
		return &cp, nil
	}
	for i := len(m.closed) - 1; i >= 0; i-- {
		if m.closed[i].UserID == userID {
			cp := *m.closed[i]
			return &cp, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (m *memRecordStore) CreateOpenRecord(_ context.Context, rec *models.PostureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.RecordID = m.nextID
	m.nextID++
	m.created++
	m.open[rec.UserID] = rec
	return nil
}

func (m *memRecordStore) TransitionRecord(_ context.Context, openRecordID int64, closedAt time.Time, next *models.PostureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.open[next.UserID]
	if prev == nil || prev.RecordID != openRecordID {
		return models.ErrRecordNotFound
	}
	dur := closedAt.Sub(prev.StartTime).Seconds()
	prev.EndTime = &closedAt
	prev.Duration = &dur
	m.closed = append(m.closed, prev)

	next.RecordID = m.nextID
	m.nextID++
	m.open[next.UserID] = next
	return nil
}

type fakePoseEstimator struct {
	state models.State
	err   error
	calls int
}

func (f *fakePoseEstimator) EstimatePose(_ context.Context, _ int64, _ *models.SensorFrame) (models.State, error) {
	f.calls++
	return f.state, f.err
}

type postureFixture struct {
	svc     *PostureService
	users   *fakeUserStore
	records *memRecordStore
	calibs  *fakeCalibrationStore
	cache   *RealtimeCache
	mr      *miniredis.Miniredis
}

func newPostureFixture(t *testing.T, pose PoseEstimator) *postureFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	users := &fakeUserStore{users: map[int64]*models.User{}}
	records := newMemRecordStore()
	calibs := &fakeCalibrationStore{}
	cache := NewRealtimeCache(client, logger)
	sessions := session.NewStore(time.Minute, logger)
	seg := segmenter.New(records, logger)

	return &postureFixture{
		svc:     NewPostureService(users, calibs, records, sessions, seg, cache, pose, logger),
		users:   users,
		records: records,
		calibs:  calibs,
		cache:   cache,
		mr:      mr,
	}
}

func seniorUser(id int64) *models.User {
	return &models.User{
		ID: id, Phone: "13800000001", Email: "senior@example.com",
		Age: 70, AgeGroup: models.AgeGroupSenior, Ills: "",
	}
}

// ---- 摄入路径 ----

func TestProcessTrunkSample_EndToEndSeniorSit(t *testing.T) {
	// 70岁无病史用户，SIT 姿态，9.5° 样本重复20次（窗口20、方差0）：
	// 稳定角 9.5，落在 SENIOR/SIT 标准区间 [0,10] 内 → NORMAL，
	// 产生且仅产生一条开放记录
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	var result *IngestResult
	var err error
	for i := 0; i < 20; i++ {
		result, err = fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
			UserID: 1, State: models.StateSit, TrunkAngle: 9.5,
		})
		require.NoError(t, err)
		if i < 19 {
			assert.Equal(t, IngestCalculating, result.Status, "sample %d", i)
		}
	}

	require.Equal(t, IngestEvaluated, result.Status)
	assert.Equal(t, 9.5, result.StableAngle)
	assert.Equal(t, models.RiskNormal, result.Risk)
	assert.True(t, result.Transition)

	open := fx.records.open[1]
	require.NotNil(t, open)
	assert.Equal(t, models.StateSit, open.State)
	assert.Equal(t, 9.5, open.TrunkStableAngle)
	assert.Empty(t, fx.records.closed)

	// 后续相同评估是幂等的
	result, err = fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
		UserID: 1, State: models.StateSit, TrunkAngle: 9.5,
	})
	require.NoError(t, err)
	assert.Equal(t, IngestEvaluated, result.Status)
	assert.False(t, result.Transition)
	assert.Empty(t, fx.records.closed)
}

func TestProcessTrunkSample_AngleValidation(t *testing.T) {
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	// 物理范围是开区间 (-10, 40)：边界值也拒绝，绝不截断
	for _, angle := range []float64{-10.0, 40.0, -15.0, 90.0} {
		_, err := fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
			UserID: 1, State: models.StateSit, TrunkAngle: angle,
		})
		assert.ErrorIs(t, err, models.ErrAngleOutOfRange, "angle=%v", angle)
	}

	// 区间内的值正常接收
	_, err := fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
		UserID: 1, State: models.StateSit, TrunkAngle: -9.9,
	})
	assert.NoError(t, err)
}

func TestProcessTrunkSample_UnknownUser(t *testing.T) {
	fx := newPostureFixture(t, nil)

	_, err := fx.svc.ProcessTrunkSample(context.Background(), &models.TrunkSampleMessage{
		UserID: 99, State: models.StateSit, TrunkAngle: 5.0,
	})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestProcessTrunkSample_MissingFields(t *testing.T) {
	fx := newPostureFixture(t, nil)

	_, err := fx.svc.ProcessTrunkSample(context.Background(), &models.TrunkSampleMessage{
		State: models.StateSit, TrunkAngle: 5.0,
	})
	assert.ErrorIs(t, err, models.ErrMissingField)

	_, err = fx.svc.ProcessTrunkSample(context.Background(), &models.TrunkSampleMessage{
		UserID: 1, State: models.StateUnknown, TrunkAngle: 5.0,
	})
	assert.ErrorIs(t, err, models.ErrMissingField)
}

func TestProcessTrunkSample_StateChangeTransitions(t *testing.T) {
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
			UserID: 1, State: models.StateSit, TrunkAngle: 9.5,
		})
		require.NoError(t, err)
	}
	require.NotNil(t, fx.records.open[1])

	// 姿态切换：窗口重置，重新积累20个样本后换段
	var result *IngestResult
	for i := 0; i < 20; i++ {
		var err error
		result, err = fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
			UserID: 1, State: models.StateStand, TrunkAngle: 2.0,
		})
		require.NoError(t, err)
	}
	require.Equal(t, IngestEvaluated, result.Status)
	assert.True(t, result.Transition)
	require.Len(t, fx.records.closed, 1)
	assert.Equal(t, models.StateSit, fx.records.closed[0].State)
	assert.Equal(t, models.StateStand, fx.records.open[1].State)
}

func TestProcessTrunkSample_ConcurrentSameUser(t *testing.T) {
	// 同一用户的读开放记录-判断-写换段序列必须串行化：
	// 并发灌入远超窗口数量的相同样本，只允许出现一次建档，
	// 绝不允许误换段（同 state/risk 下关闭再新建）
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	const workers = 8
	const samplesPerWorker = 10

	var wg sync.WaitGroup
	errCh := make(chan error, workers*samplesPerWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < samplesPerWorker; i++ {
				_, err := fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
					UserID: 1, State: models.StateSit, TrunkAngle: 9.5,
				})
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.NotNil(t, fx.records.open[1])
	assert.Equal(t, models.StateSit, fx.records.open[1].State)
	assert.Equal(t, 1, fx.records.created, "exactly one record must be created")
	assert.Empty(t, fx.records.closed, "identical evaluations must never close the record")
}

// ---- 帧路径 ----

func standFrame(mag float64) *models.SensorFrame {
	f := &models.SensorFrame{}
	for i := range f.Readings {
		f.Readings[i].Acc = [3]float64{0, 0, mag}
	}
	return f
}

func TestProcessSensorFrame_UncalibratedSentinel(t *testing.T) {
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)

	result, err := fx.svc.ProcessSensorFrame(context.Background(), &models.FrameMessage{
		UserID: 1, Frame: *standFrame(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, IngestUncalibrated, result.Status)
	assert.Equal(t, models.StateUnknown, result.State)
}

func TestProcessSensorFrame_AfterCalibration(t *testing.T) {
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	ref, err := fx.svc.Calibrate(ctx, 1, standFrame(1.0))
	require.NoError(t, err)
	assert.NotEmpty(t, ref.CalibrationID)
	require.Len(t, fx.calibs.saved, 1)

	// 站立帧：重力方向与校准一致 → STAND，躯干俯仰 0°
	result, err := fx.svc.ProcessSensorFrame(ctx, &models.FrameMessage{
		UserID: 1, Frame: *standFrame(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, IngestCalculating, result.Status)
	assert.Equal(t, models.StateStand, result.State)
}

func TestProcessSensorFrame_LoadsPersistedCalibration(t *testing.T) {
	// 会话冷启动：校准参考从存储装载而不是要求重新校准
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)
	fx.calibs.active = map[int64]*models.CalibrationRef{
		1: {CalibrationID: "cal-1", UserID: 1,
			UpperGravity: [3]float64{0, 0, 1}, LowerGravity: [3]float64{0, 0, 1}},
	}

	result, err := fx.svc.ProcessSensorFrame(context.Background(), &models.FrameMessage{
		UserID: 1, Frame: *standFrame(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateStand, result.State)
}

func TestProcessSensorFrame_MLFallbackToHeuristic(t *testing.T) {
	pose := &fakePoseEstimator{err: errors.New("upstream unavailable")}
	fx := newPostureFixture(t, pose)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	_, err := fx.svc.Calibrate(ctx, 1, standFrame(1.0))
	require.NoError(t, err)

	result, err := fx.svc.ProcessSensorFrame(ctx, &models.FrameMessage{
		UserID: 1, Frame: *standFrame(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateStand, result.State, "must fall back to the gravity heuristic")
	assert.Equal(t, 1, pose.calls)
}

func TestProcessSensorFrame_MLResultPreferred(t *testing.T) {
	pose := &fakePoseEstimator{state: models.StateSit}
	fx := newPostureFixture(t, pose)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	_, err := fx.svc.Calibrate(ctx, 1, standFrame(1.0))
	require.NoError(t, err)

	result, err := fx.svc.ProcessSensorFrame(ctx, &models.FrameMessage{
		UserID: 1, Frame: *standFrame(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateSit, result.State)
}

// ---- 实时姿态 ----

func TestCurrentPosture_CacheThenFallback(t *testing.T) {
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)
	ctx := context.Background()

	// 无缓存无记录
	_, err := fx.svc.CurrentPosture(ctx, 1)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	// 评估完成后缓存命中
	for i := 0; i < 20; i++ {
		_, err := fx.svc.ProcessTrunkSample(ctx, &models.TrunkSampleMessage{
			UserID: 1, State: models.StateSit, TrunkAngle: 9.5,
		})
		require.NoError(t, err)
	}
	current, err := fx.svc.CurrentPosture(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "SIT", current.State)
	assert.Equal(t, "NORMAL", current.Risk)
	assert.Equal(t, 9.5, current.StableAngle)

	// 缓存过期后回落到开放记录
	fx.mr.FastForward(10 * time.Minute)
	current, err = fx.svc.CurrentPosture(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "SIT", current.State)
}

func TestCurrentPosture_ClosedRecordFallback(t *testing.T) {
	// 缓存过期、没有开放记录时回落到最近一条已关闭记录，
	// 时间取关闭时刻
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	dur := 1800.0
	fx.records.closed = append(fx.records.closed, &models.PostureRecord{
		RecordID: 1, UserID: 1, State: models.StateLie, TrunkStableAngle: 2.0,
		RiskLevel: models.RiskNormal, StartTime: start, EndTime: &end, Duration: &dur,
	})

	current, err := fx.svc.CurrentPosture(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "LIE", current.State)
	assert.Equal(t, 2.0, current.StableAngle)
	assert.True(t, end.Equal(current.UpdatedAt))
}

func TestCalibrate_ZeroFrameRejected(t *testing.T) {
	fx := newPostureFixture(t, nil)
	fx.users.users[1] = seniorUser(1)

	_, err := fx.svc.Calibrate(context.Background(), 1, &models.SensorFrame{})
	assert.ErrorIs(t, err, models.ErrNoCalibration)
}
