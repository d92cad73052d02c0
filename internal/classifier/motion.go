package classifier

import (
	"math"
	"sync"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// 运动强度判定参数（与传感器物理量纲绑定的经验常数，不可推导）
const (
	accMagBufferLen       = 20   // 加速度幅值滚动缓冲区长度
	accMagMinSamples      = 5    // 缓冲区样本数超过该值才计算方差
	runVarianceThreshold  = 15.0 // 方差 > 15.0 判定为跑步
	walkVarianceThreshold = 1.5  // 方差 > 1.5（且 ≤15.0）判定为行走
)

// 静态姿态细分参数（与T-Pose校准参考的偏差角，度）
const (
	lieUpperAngleDeg = 50 // 上身偏差 > 50° 判定为躺
	sitUpperAngleDeg = 40 // 上身偏差 < 40° 且
	sitLowerAngleDeg = 50 // 下身偏差 > 50° 判定为坐
)

// MotionPoseClassifier 运动姿态分类器
//
// 两级判定：先用全身平均加速度幅值的滚动方差区分 跑/走/静止，
// 再对静止或行走帧用上身/下身平均重力方向与校准参考的偏差角
// 细分 躺/坐/站。跑步覆盖一切；行走+站立的组合输出行走。
//
// 使用前必须先设置T-Pose校准参考，否则返回 StateUnknown 哨兵值。
// 组件内部不做自动重校准。
type MotionPoseClassifier struct {
	mu sync.RWMutex

	accMagBuffer []float64
	ref          *models.CalibrationRef
}

// NewMotionPoseClassifier 创建运动姿态分类器（未校准状态）
func NewMotionPoseClassifier() *MotionPoseClassifier {
	return &MotionPoseClassifier{
		accMagBuffer: make([]float64, 0, accMagBufferLen),
	}
}

// CalibrationFromFrame 从一帧T-Pose站立数据计算校准参考
//
// 取上身6个、下身5个传感器的平均加速度向量作为重力参考方向，
// 并做单位化。加速度全零的帧无法校准。
func CalibrationFromFrame(frame *models.SensorFrame) (*models.CalibrationRef, error) {
	upper := meanAcc(frame.Upper())
	lower := meanAcc(frame.Lower())

	upperN, okU := normalize(upper)
	lowerN, okL := normalize(lower)
	if !okU || !okL {
		return nil, models.ErrNoCalibration
	}

	return &models.CalibrationRef{
		UpperGravity: upperN,
		LowerGravity: lowerN,
	}, nil
}

// SetCalibration 设置（或替换）校准参考
// 与进行中的 Update 调用互斥，不会出现撕裂读。
func (c *MotionPoseClassifier) SetCalibration(ref *models.CalibrationRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref = ref
}

// Calibrated 是否已设置校准参考
func (c *MotionPoseClassifier) Calibrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ref != nil
}

// Update 输入一帧全身传感器数据，返回姿态状态
//
// 未校准时返回 StateUnknown（正常的启动期前置条件，不是错误）。
func (c *MotionPoseClassifier) Update(frame *models.SensorFrame) models.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ref == nil {
		return models.StateUnknown
	}

	// 1. 动静判断：全身平均加速度幅值入滚动缓冲区，方差越大动作越剧烈
	avgMag := meanAccMagnitude(frame.Readings[:])
	if len(c.accMagBuffer) >= accMagBufferLen {
		c.accMagBuffer = c.accMagBuffer[1:]
	}
	c.accMagBuffer = append(c.accMagBuffer, avgMag)

	var accVariance float64
	if len(c.accMagBuffer) > accMagMinSamples {
		accVariance = variance(c.accMagBuffer)
	}

	isRun := accVariance > runVarianceThreshold
	isWalk := !isRun && accVariance > walkVarianceThreshold

	if isRun {
		return models.StateRun // 跑步覆盖一切静态细分
	}

	// 2. 静态姿态细分：当前帧上身/下身平均重力方向与校准参考的偏差角
	pose := models.StateStand
	upperDev := angleBetweenDeg(meanAcc(frame.Upper()), c.ref.UpperGravity)
	lowerDev := angleBetweenDeg(meanAcc(frame.Lower()), c.ref.LowerGravity)

	switch {
	case upperDev > lieUpperAngleDeg:
		pose = models.StateLie
	case upperDev < sitUpperAngleDeg && lowerDev > sitLowerAngleDeg:
		pose = models.StateSit
	default:
		pose = models.StateStand
	}

	// 3. 综合输出：行走+站立 → 行走；其余以细分姿态为准
	if isWalk && pose == models.StateStand {
		return models.StateWalk
	}
	return pose
}

// Reset 清空运动强度缓冲区（校准参考保留）
func (c *MotionPoseClassifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accMagBuffer = c.accMagBuffer[:0]
}

// ---- 向量运算 ----

func meanAcc(readings []models.SensorReading) [3]float64 {
	var sum [3]float64
	if len(readings) == 0 {
		return sum
	}
	for _, r := range readings {
		sum[0] += r.Acc[0]
		sum[1] += r.Acc[1]
		sum[2] += r.Acc[2]
	}
	n := float64(len(readings))
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
}

func meanAccMagnitude(readings []models.SensorReading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += math.Sqrt(r.Acc[0]*r.Acc[0] + r.Acc[1]*r.Acc[1] + r.Acc[2]*r.Acc[2])
	}
	return sum / float64(len(readings))
}

func normalize(v [3]float64) ([3]float64, bool) {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return [3]float64{}, false
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}, true
}

// angleBetweenDeg 两向量夹角（度），点积做 [-1,1] 截断避免浮点越界
func angleBetweenDeg(v1, v2 [3]float64) float64 {
	const eps = 1e-6
	n1 := math.Sqrt(v1[0]*v1[0]+v1[1]*v1[1]+v1[2]*v1[2]) + eps
	n2 := math.Sqrt(v2[0]*v2[0]+v2[1]*v2[1]+v2[2]*v2[2]) + eps

	dot := (v1[0]*v2[0] + v1[1]*v2[1] + v1[2]*v2[2]) / (n1 * n2)
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot) * 180 / math.Pi
}

// variance 总体方差（与缓冲区语义一致，除以 n）
func variance(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / n
}
