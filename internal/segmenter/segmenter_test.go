package segmenter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// fakeRecordStore 内存版 RecordStore，记录每次调用
type fakeRecordStore struct {
	open        map[int64]*models.PostureRecord
	closed      []*models.PostureRecord
	nextID      int64
	createCalls int
	transCalls  int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{open: make(map[int64]*models.PostureRecord), nextID: 1}
}

func (f *fakeRecordStore) GetOpenRecord(_ context.Context, userID int64) (*models.PostureRecord, error) {
	rec, ok := f.open[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecordStore) CreateOpenRecord(_ context.Context, rec *models.PostureRecord) error {
	f.createCalls++
	rec.RecordID = f.nextID
	f.nextID++
	f.open[rec.UserID] = rec
	return nil
}

func (f *fakeRecordStore) TransitionRecord(_ context.Context, openRecordID int64, closedAt time.Time, next *models.PostureRecord) error {
	f.transCalls++
	prev := f.open[next.UserID]
	if prev == nil || prev.RecordID != openRecordID {
		return models.ErrRecordNotFound
	}
	dur := closedAt.Sub(prev.StartTime).Seconds()
	prev.EndTime = &closedAt
	prev.Duration = &dur
	f.closed = append(f.closed, prev)

	next.RecordID = f.nextID
	f.nextID++
	f.open[next.UserID] = next
	return nil
}

func TestSegmenter_FirstEvaluationOpensRecord(t *testing.T) {
	store := newFakeRecordStore()
	seg := New(store, zap.NewNop())

	now := time.Now()
	changed, err := seg.Ingest(context.Background(), Evaluation{
		UserID: 1, State: models.StateSit, StableAngle: 9.5,
		Risk: models.RiskNormal, At: now,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	open := store.open[1]
	require.NotNil(t, open)
	assert.Equal(t, models.StateSit, open.State)
	assert.Equal(t, 9.5, open.TrunkStableAngle)
	assert.Equal(t, models.RiskNormal, open.RiskLevel)
	assert.True(t, open.IsOpen())
}

func TestSegmenter_SameStateAndRiskIsIdempotent(t *testing.T) {
	store := newFakeRecordStore()
	seg := New(store, zap.NewNop())
	ctx := context.Background()

	ev := Evaluation{UserID: 1, State: models.StateSit, StableAngle: 9.5,
		Risk: models.RiskNormal, At: time.Now()}
	_, err := seg.Ingest(ctx, ev)
	require.NoError(t, err)

	// 同样的评估结果再提交多少次都不产生新段
	for i := 0; i < 5; i++ {
		ev.At = ev.At.Add(time.Minute)
		ev.StableAngle = 9.6 // 稳定角微小波动不触发换段
		changed, err := seg.Ingest(ctx, ev)
		require.NoError(t, err)
		assert.False(t, changed)
	}
	assert.Equal(t, 1, store.createCalls)
	assert.Equal(t, 0, store.transCalls)
	assert.Empty(t, store.closed)
}

func TestSegmenter_StateChangeClosesAndOpens(t *testing.T) {
	store := newFakeRecordStore()
	seg := New(store, zap.NewNop())
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := seg.Ingest(ctx, Evaluation{
		UserID: 1, State: models.StateSit, StableAngle: 4.0,
		Risk: models.RiskNormal, At: start,
	})
	require.NoError(t, err)

	// 30分钟后换姿态：旧段关闭，时长为实际经过的秒数
	at := start.Add(30 * time.Minute)
	changed, err := seg.Ingest(ctx, Evaluation{
		UserID: 1, State: models.StateStand, StableAngle: 1.0,
		Risk: models.RiskNormal, At: at,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	require.Len(t, store.closed, 1)
	closed := store.closed[0]
	assert.Equal(t, models.StateSit, closed.State)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, at, *closed.EndTime)
	require.NotNil(t, closed.Duration)
	assert.Equal(t, 1800.0, *closed.Duration)

	open := store.open[1]
	assert.Equal(t, models.StateStand, open.State)
	assert.Equal(t, at, open.StartTime)
}

func TestSegmenter_RiskChangeAloneTriggersTransition(t *testing.T) {
	store := newFakeRecordStore()
	seg := New(store, zap.NewNop())
	ctx := context.Background()

	start := time.Now()
	_, err := seg.Ingest(ctx, Evaluation{
		UserID: 1, State: models.StateSit, StableAngle: 4.0,
		Risk: models.RiskNormal, At: start,
	})
	require.NoError(t, err)

	// 姿态不变但风险升级：仍然换段
	changed, err := seg.Ingest(ctx, Evaluation{
		UserID: 1, State: models.StateSit, StableAngle: 14.0,
		Risk: models.RiskMild, At: start.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, store.transCalls)
	assert.Equal(t, models.RiskMild, store.open[1].RiskLevel)
}

func TestSegmenter_UsersAreIndependent(t *testing.T) {
	store := newFakeRecordStore()
	seg := New(store, zap.NewNop())
	ctx := context.Background()

	now := time.Now()
	_, err := seg.Ingest(ctx, Evaluation{UserID: 1, State: models.StateSit, Risk: models.RiskNormal, At: now})
	require.NoError(t, err)
	_, err = seg.Ingest(ctx, Evaluation{UserID: 2, State: models.StateStand, Risk: models.RiskNormal, At: now})
	require.NoError(t, err)

	assert.Equal(t, models.StateSit, store.open[1].State)
	assert.Equal(t, models.StateStand, store.open[2].State)
	assert.Empty(t, store.closed)
}
