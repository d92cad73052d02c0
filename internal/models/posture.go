package models

import "time"

// State 姿态状态
//
// 数据库中按整数存储，API 边界按名称字符串输出，映射只在这里维护。
type State int

const (
	StateLie   State = 0
	StateStand State = 1
	StateSit   State = 2
	StateWalk  State = 3
	StateRun   State = 4

	// StateUnknown 哨兵值：运动分类器尚未校准时返回
	StateUnknown State = 5
)

var stateNames = map[State]string{
	StateLie:     "LIE",
	StateStand:   "STAND",
	StateSit:     "SIT",
	StateWalk:    "WALK",
	StateRun:     "RUN",
	StateUnknown: "UNKNOWN",
}

// String 返回状态名称
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseState 根据名称解析状态
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateUnknown, false
}

// IsValid 是否为可记录的姿态状态（不含哨兵值）
func (s State) IsValid() bool {
	return s >= StateLie && s <= StateRun
}

// RiskLevel 姿态风险等级
type RiskLevel string

const (
	RiskNormal RiskLevel = "NORMAL"
	RiskMild   RiskLevel = "MILD_RISK"
	RiskSevere RiskLevel = "SEVERE_RISK"
)

// PostureRecord 姿态记录
//
// 生命周期：检测到 (state, risk) 变化时以"未结束"状态创建（EndTime 为空）；
// 后续样本与当前 (state, risk) 一致时保持打开；不一致的瞬间被关闭
// （设置 EndTime，Duration = EndTime - StartTime，只计算一次），同时
// 原子地创建新的打开记录。同一用户任意时刻至多一条打开记录。
type PostureRecord struct {
	RecordID         int64      `json:"record_id"`
	UserID           int64      `json:"user_id"`
	State            State      `json:"state"`
	TrunkStableAngle float64    `json:"trunk_stable_angle"`
	RiskLevel        RiskLevel  `json:"posture_risk_level"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Duration         *float64   `json:"duration,omitempty"` // 秒
}

// IsOpen 记录是否仍在进行中
func (r *PostureRecord) IsOpen() bool {
	return r.EndTime == nil
}

// DurationSeconds 记录时长（秒）；未结束的记录返回 0
func (r *PostureRecord) DurationSeconds() float64 {
	if r.Duration == nil {
		return 0
	}
	return *r.Duration
}
