// Package estimator 提供稳定角度估计
//
// 传感器上报的躯干角逐帧抖动明显，不能直接用于风险分级。
// StableAngleEstimator 维护最近 N 个样本的滑动窗口，增量更新
// 均值和方差：窗口未满时方差低、样本少，不输出；窗口满且方差
// 低于阈值时认为信号已稳定，输出窗口均值作为"稳定角度"。
package estimator

// StableAngleEstimator 滑动窗口稳定角度估计器
//
// 均值/方差均为增量更新（Welford 式递推），任何情况下都不会
// 对整个缓冲区重新求和。非并发安全，调用方负责串行化。
type StableAngleEstimator struct {
	windowSize        int
	varianceThreshold float64

	angles   []float64
	mean     float64
	variance float64
}

// New 创建估计器
// windowSize: 窗口大小（老年用户20，其他15）
// varianceThreshold: 方差阈值（老年用户2.5，其他1.5）
func New(windowSize int, varianceThreshold float64) *StableAngleEstimator {
	return &StableAngleEstimator{
		windowSize:        windowSize,
		varianceThreshold: varianceThreshold,
		angles:            make([]float64, 0, windowSize),
	}
}

// AddSample 添加一个角度样本，O(1)
func (e *StableAngleEstimator) AddSample(angle float64) {
	if len(e.angles) >= e.windowSize {
		// 窗口已满：淘汰最旧样本，滑动更新均值和方差
		oldAngle := e.angles[0]
		e.angles = e.angles[1:]

		oldMean := e.mean
		e.mean = oldMean + (angle-oldAngle)/float64(e.windowSize)
		if e.windowSize > 1 {
			e.variance = e.variance + (angle-e.mean)*(angle-oldMean)/float64(e.windowSize-1)
		}
	} else {
		// 增长阶段：加权平均更新均值，成对增量更新方差
		n := len(e.angles)
		oldMean := e.mean
		e.mean = (oldMean*float64(n) + angle) / float64(n+1)
		if n > 0 {
			e.variance = (e.variance*float64(n-1) + (angle-oldMean)*(angle-e.mean)) / float64(n)
		}
	}
	e.angles = append(e.angles, angle)
}

// StableAngle 返回稳定角度
//
// 只有窗口已满且方差不超过阈值时才输出；否则第二个返回值为 false，
// 表示"仍在计算中"——这是正常结果，不是错误。
func (e *StableAngleEstimator) StableAngle() (float64, bool) {
	if len(e.angles) >= e.windowSize && e.variance <= e.varianceThreshold {
		return e.mean, true
	}
	return 0, false
}

// Reset 清空缓冲区并归零均值/方差（姿态状态标签变化时调用）
func (e *StableAngleEstimator) Reset() {
	e.angles = e.angles[:0]
	e.mean = 0
	e.variance = 0
}

// Len 当前窗口内的样本数
func (e *StableAngleEstimator) Len() int {
	return len(e.angles)
}

// WindowSize 配置的窗口大小
func (e *StableAngleEstimator) WindowSize() int {
	return e.windowSize
}

// Variance 当前窗口方差
func (e *StableAngleEstimator) Variance() float64 {
	return e.variance
}
