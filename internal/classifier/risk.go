// Package classifier 提供姿态风险分级和运动姿态识别
package classifier

import (
	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// AngleRange 某年龄组某姿态下躯干角的标准区间（度）
type AngleRange struct {
	Low  float64
	High float64
}

// Mid 区间中点
func (r AngleRange) Mid() float64 {
	return (r.Low + r.High) / 2
}

// Contains 角度是否落在区间内（闭区间）
func (r AngleRange) Contains(angle float64) bool {
	return r.Low <= angle && angle <= r.High
}

// angleStandards 躯干角标准区间表（年龄组 × 姿态 → 区间）
//
// 配置数据，来自临床经验值：青年与壮年共用一套区间，
// 中年、老年逐级放宽。
var angleStandards = map[models.AgeGroup]map[models.State]AngleRange{
	models.AgeGroupYouth: {
		models.StateLie:   {0, 3},
		models.StateStand: {0, 2},
		models.StateSit:   {0, 5},
		models.StateWalk:  {3, 8},
		models.StateRun:   {8, 12},
	},
	models.AgeGroupPrime: {
		models.StateLie:   {0, 3},
		models.StateStand: {0, 2},
		models.StateSit:   {0, 5},
		models.StateWalk:  {3, 8},
		models.StateRun:   {8, 12},
	},
	models.AgeGroupMiddle: {
		models.StateLie:   {0, 5},
		models.StateStand: {0, 3},
		models.StateSit:   {0, 8},
		models.StateWalk:  {5, 10},
		models.StateRun:   {10, 15},
	},
	models.AgeGroupSenior: {
		models.StateLie:   {0, 5},
		models.StateStand: {0, 4},
		models.StateSit:   {0, 10},
		models.StateWalk:  {8, 12},
		models.StateRun:   {12, 15},
	},
}

// StandardRange 查询标准区间
func StandardRange(ageGroup models.AgeGroup, state models.State) (AngleRange, bool) {
	byState, ok := angleStandards[ageGroup]
	if !ok {
		return AngleRange{}, false
	}
	r, ok := byState[state]
	return r, ok
}

// 偏差阈值：区间外时 MILD 与 SEVERE 的分界（度，含边界）
const (
	deviationCutoffDefault = 10.0
	deviationCutoffSenior  = 12.0 // 无既往病史的老年用户放宽
)

// ClassifyRisk 姿态风险分级（纯函数）
//
// 角度落在标准区间内（闭区间）为 NORMAL。区间外按与区间中点的
// 偏差分级：无既往病史的老年用户偏差 ≤12° 为 MILD，否则 SEVERE；
// 其余所有组合（包括有病史的老年用户）用更严格的 10° 分界——
// 一旦记录了病史，年龄带来的宽容度即被取消。
func ClassifyRisk(angle float64, stdRange AngleRange, ageGroup models.AgeGroup, hasIlls bool) models.RiskLevel {
	if stdRange.Contains(angle) {
		return models.RiskNormal
	}

	deviation := angle - stdRange.Mid()
	if deviation < 0 {
		deviation = -deviation
	}

	cutoff := deviationCutoffDefault
	if ageGroup == models.AgeGroupSenior && !hasIlls {
		cutoff = deviationCutoffSenior
	}

	if deviation <= cutoff {
		return models.RiskMild
	}
	return models.RiskSevere
}
