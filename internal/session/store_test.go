package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

func TestStore_GetCreatesPerAgeGroupParams(t *testing.T) {
	st := NewStore(time.Minute, zap.NewNop())

	senior := st.Get(1, models.AgeGroupSenior)
	youth := st.Get(2, models.AgeGroupYouth)

	// 老年窗口20：喂19个恒定样本仍不稳定，第20个才稳定
	for i := 0; i < 19; i++ {
		_, ok := senior.ObserveTrunk(models.StateSit, 9.5)
		require.False(t, ok)
	}
	angle, ok := senior.ObserveTrunk(models.StateSit, 9.5)
	require.True(t, ok)
	assert.Equal(t, 9.5, angle)

	// 其他年龄组窗口15
	for i := 0; i < 14; i++ {
		_, ok := youth.ObserveTrunk(models.StateSit, 3.0)
		require.False(t, ok)
	}
	_, ok = youth.ObserveTrunk(models.StateSit, 3.0)
	assert.True(t, ok)
}

func TestStore_GetReturnsSameSession(t *testing.T) {
	st := NewStore(time.Minute, zap.NewNop())

	s1 := st.Get(7, models.AgeGroupPrime)
	s2 := st.Get(7, models.AgeGroupPrime)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, st.Len())
}

func TestSession_StateChangeResetsEstimator(t *testing.T) {
	st := NewStore(time.Minute, zap.NewNop())
	s := st.Get(1, models.AgeGroupYouth)

	for i := 0; i < 15; i++ {
		s.ObserveTrunk(models.StateSit, 4.0)
	}
	_, ok := s.ObserveTrunk(models.StateSit, 4.0)
	require.True(t, ok)

	// 姿态标签变化：窗口清空，重新累积
	_, ok = s.ObserveTrunk(models.StateStand, 1.0)
	assert.False(t, ok)
	assert.Equal(t, models.StateStand, s.LastState())

	for i := 0; i < 14; i++ {
		_, ok = s.ObserveTrunk(models.StateStand, 1.0)
	}
	assert.True(t, ok)
}

func TestSession_ClassifyFrameUncalibrated(t *testing.T) {
	st := NewStore(time.Minute, zap.NewNop())
	s := st.Get(1, models.AgeGroupPrime)

	frame := &models.SensorFrame{}
	assert.Equal(t, models.StateUnknown, s.ClassifyFrame(frame))
	assert.False(t, s.Calibrated())
}

func TestStore_EvictIdle(t *testing.T) {
	st := NewStore(10*time.Millisecond, zap.NewNop())

	st.Get(1, models.AgeGroupYouth)
	st.Get(2, models.AgeGroupSenior)
	require.Equal(t, 2, st.Len())

	time.Sleep(25 * time.Millisecond)
	st.Get(2, models.AgeGroupSenior).ObserveTrunk(models.StateSit, 5.0) // 刷新活跃时间

	st.evictIdle()
	assert.Equal(t, 1, st.Len())
	_, ok := st.Peek(1)
	assert.False(t, ok)
	_, ok = st.Peek(2)
	assert.True(t, ok)
}

func TestStore_Remove(t *testing.T) {
	st := NewStore(time.Minute, zap.NewNop())
	st.Get(1, models.AgeGroupYouth)
	st.Remove(1)
	assert.Equal(t, 0, st.Len())
}
