package models

import "time"

// 智能服装传感器布局：共11个IMU，前6个在上衣，后5个在裤子
const (
	SensorCount      = 11
	UpperSensorCount = 6
	LowerSensorCount = 5
)

// SensorReading 单个IMU的一次采样
type SensorReading struct {
	Acc  [3]float64 `json:"acc"`  // 加速度 (x, y, z)
	Quat [4]float64 `json:"quat"` // 姿态四元数 (w, x, y, z)
}

// SensorFrame 一帧完整的全身传感器数据（11 × [acc x3, quat x4]）
type SensorFrame struct {
	Readings [SensorCount]SensorReading `json:"readings"`
}

// Upper 上身传感器（前6个）
func (f *SensorFrame) Upper() []SensorReading {
	return f.Readings[:UpperSensorCount]
}

// Lower 下身传感器（后5个）
func (f *SensorFrame) Lower() []SensorReading {
	return f.Readings[UpperSensorCount:]
}

// CalibrationRef T-Pose校准参考
//
// 校准时记录站立状态下上身/下身的平均重力方向（单位向量），
// 之后的姿态判断都以它为零参考。重新校准前所有分类调用共享只读。
type CalibrationRef struct {
	CalibrationID string     `json:"calibration_id"`
	UserID        int64      `json:"user_id"`
	UpperGravity  [3]float64 `json:"upper_gravity"`
	LowerGravity  [3]float64 `json:"lower_gravity"`
	CreatedAt     time.Time  `json:"created_at"`
}

// 样本流消息类型
const (
	SampleKindTrunk = "trunk" // 预计算的躯干角 + 状态标签
	SampleKindFrame = "frame" // 原始多IMU帧
)

// TrunkSampleMessage posture:samples:stream 上的躯干角样本消息
type TrunkSampleMessage struct {
	UserID     int64   `json:"user_id"`
	State      State   `json:"state"`
	TrunkAngle float64 `json:"trunk_angle"`
	Timestamp  int64   `json:"timestamp"`
}

// FrameMessage posture:samples:stream 上的原始传感器帧消息
type FrameMessage struct {
	UserID    int64       `json:"user_id"`
	Frame     SensorFrame `json:"frame"`
	Timestamp int64       `json:"timestamp"`
}

// SampleEnvelope 样本流消息信封（kind 区分消息类型）
type SampleEnvelope struct {
	Kind  string              `json:"kind"`
	Trunk *TrunkSampleMessage `json:"trunk,omitempty"`
	Frame *FrameMessage       `json:"frame,omitempty"`
}
