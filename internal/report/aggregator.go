// Package report 把已落库的姿态记录聚合成活动报告
//
// 纯计算层：输入一段时间窗口内的记录，输出步数/卡路里/距离等
// 估算指标和按窗口粒度分桶的展示数据。所有指标只基于已关闭
// 记录的 duration，开放记录贡献为零。
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// Period 报告时间范围
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// 步频/能耗/步幅模型（固定模型估算值，不是测量值）
const (
	stepsPerMinuteWalk = 100.0
	stepsPerMinuteRun  = 160.0

	caloriesPerStepWalk = 0.04
	caloriesPerStepRun  = 0.06

	strideMetersWalk = 0.7
	strideMetersRun  = 0.9
)

// 展示分桶常数
const (
	dayTrendBuckets   = 8 // 每3小时一桶
	weekDayBuckets    = 7
	monthWeekBuckets  = 4
	trendBucketHours  = 3
	daysPerWeekBucket = 7
)

// WindowFor 解析时间窗口（半开区间 [start, end)）
//
// day: [今天零点, now)；week: [now−7天的零点, 今天零点)；
// month: [now−30天的零点, 今天零点)。
func WindowFor(period Period, now time.Time) (time.Time, time.Time, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case PeriodDay:
		return midnight, now, nil
	case PeriodWeek:
		return midnight.AddDate(0, 0, -7), midnight, nil
	case PeriodMonth:
		return midnight.AddDate(0, 0, -30), midnight, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown report period: %s", period)
	}
}

// ActivityMetrics 窗口内的活动指标汇总
type ActivityMetrics struct {
	Steps           int     `json:"steps"`
	Calories        float64 `json:"calories"`
	DistanceKm      float64 `json:"distance_km"`
	ActiveMinutes   float64 `json:"active_minutes"`
	DurationByState map[string]float64 `json:"duration_by_state"` // 秒
}

// TimelineEntry day 视图的单条记录行
type TimelineEntry struct {
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Span            string     `json:"span"`
	State           string     `json:"state"`
	Angle           float64    `json:"angle"`
	Risk            string     `json:"risk"`
	DurationMinutes float64    `json:"duration_minutes"`
}

// DayBucket week 视图的单日分桶
type DayBucket struct {
	Date         string             `json:"date"`
	HoursByState map[string]float64 `json:"hours_by_state"`
	HoursByRisk  map[string]float64 `json:"hours_by_risk"`
}

// WeekBucket month 视图的周分桶（week 1 为最近7天）
type WeekBucket struct {
	Week         int                `json:"week"`
	HoursByState map[string]float64 `json:"hours_by_state"`
	HoursByRisk  map[string]float64 `json:"hours_by_risk"`
}

// TrendPoint 活动趋势序列的一个点
type TrendPoint struct {
	Label         string  `json:"label"`
	Steps         int     `json:"steps"`
	ActiveMinutes float64 `json:"active_minutes"`
}

// DistributionEntry 姿态时间占比
type DistributionEntry struct {
	State   string  `json:"state"`
	Hours   float64 `json:"hours"`
	Percent float64 `json:"percent"`
}

// Report 聚合结果
//
// 字段按窗口粒度互斥填充：day 填 Timeline，week 填 Daily，
// month 填 Weekly；Trend 和 Distribution 任何粒度都有。
type Report struct {
	Period       Period              `json:"period"`
	WindowStart  time.Time           `json:"window_start"`
	WindowEnd    time.Time           `json:"window_end"`
	Metrics      ActivityMetrics     `json:"metrics"`
	Timeline     []TimelineEntry     `json:"timeline,omitempty"`
	Daily        []DayBucket         `json:"daily,omitempty"`
	Weekly       []WeekBucket        `json:"weekly,omitempty"`
	Trend        []TrendPoint        `json:"trend"`
	Distribution []DistributionEntry `json:"distribution"`
}

// stepsFor 单条记录的估算步数（非步行/跑步为0）
func stepsFor(rec *models.PostureRecord) float64 {
	durMin := rec.DurationSeconds() / 60
	switch rec.State {
	case models.StateWalk:
		return durMin * stepsPerMinuteWalk
	case models.StateRun:
		return durMin * stepsPerMinuteRun
	default:
		return 0
	}
}

func isActive(state models.State) bool {
	return state == models.StateStand || state == models.StateWalk || state == models.StateRun
}

// ComputeMetrics 计算窗口活动指标
func ComputeMetrics(records []*models.PostureRecord) ActivityMetrics {
	m := ActivityMetrics{
		DurationByState: map[string]float64{
			models.StateLie.String():   0,
			models.StateStand.String(): 0,
			models.StateSit.String():   0,
			models.StateWalk.String():  0,
			models.StateRun.String():   0,
		},
	}

	var steps, distanceKm float64
	for _, rec := range records {
		dur := rec.DurationSeconds()
		m.DurationByState[rec.State.String()] += dur

		s := stepsFor(rec)
		steps += s
		switch rec.State {
		case models.StateWalk:
			m.Calories += caloriesPerStepWalk * s
			distanceKm += strideMetersWalk * s / 1000
		case models.StateRun:
			m.Calories += caloriesPerStepRun * s
			distanceKm += strideMetersRun * s / 1000
		}

		if isActive(rec.State) {
			m.ActiveMinutes += dur / 60
		}
	}

	m.Steps = int(math.Round(steps))
	// 距离只在最后做一次舍入，中间全程保留精度
	m.DistanceKm = round1(distanceKm)
	return m
}

// Build 生成完整报告
//
// records 必须已按 start_time 升序排列且落在 [start, end) 内
// （仓库查询保证），now 用于 month 视图的周序号计算。
func Build(period Period, now, start, end time.Time, records []*models.PostureRecord) *Report {
	r := &Report{
		Period:      period,
		WindowStart: start,
		WindowEnd:   end,
		Metrics:     ComputeMetrics(records),
	}

	switch period {
	case PeriodDay:
		r.Timeline = buildTimeline(records)
	case PeriodWeek:
		r.Daily = buildDayBuckets(start, records)
	case PeriodMonth:
		r.Weekly = buildWeekBuckets(now, records)
	}

	r.Trend = buildTrend(period, start, now, records)
	r.Distribution = buildDistribution(r.Metrics.DurationByState)
	return r
}

func buildTimeline(records []*models.PostureRecord) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(records))
	for _, rec := range records {
		span := rec.StartTime.Format("15:04")
		if rec.EndTime != nil {
			span += " - " + rec.EndTime.Format("15:04")
		} else {
			span += " -"
		}
		entries = append(entries, TimelineEntry{
			StartTime:       rec.StartTime,
			EndTime:         rec.EndTime,
			Span:            span,
			State:           rec.State.String(),
			Angle:           rec.TrunkStableAngle,
			Risk:            string(rec.RiskLevel),
			DurationMinutes: round1(rec.DurationSeconds() / 60),
		})
	}
	return entries
}

func newHoursByState() map[string]float64 {
	return map[string]float64{
		models.StateLie.String():   0,
		models.StateStand.String(): 0,
		models.StateSit.String():   0,
		models.StateWalk.String():  0,
		models.StateRun.String():   0,
	}
}

func newHoursByRisk() map[string]float64 {
	return map[string]float64{
		string(models.RiskNormal): 0,
		string(models.RiskMild):   0,
		string(models.RiskSevere): 0,
	}
}

func buildDayBuckets(start time.Time, records []*models.PostureRecord) []DayBucket {
	buckets := make([]DayBucket, weekDayBuckets)
	for i := range buckets {
		buckets[i] = DayBucket{
			Date:         start.AddDate(0, 0, i).Format("2006-01-02"),
			HoursByState: newHoursByState(),
			HoursByRisk:  newHoursByRisk(),
		}
	}

	for _, rec := range records {
		idx := int(rec.StartTime.Sub(start).Hours() / 24)
		if idx < 0 || idx >= weekDayBuckets {
			continue
		}
		hours := rec.DurationSeconds() / 3600
		buckets[idx].HoursByState[rec.State.String()] += hours
		buckets[idx].HoursByRisk[string(rec.RiskLevel)] += hours
	}

	for i := range buckets {
		roundHours(buckets[i].HoursByState)
		roundHours(buckets[i].HoursByRisk)
	}
	return buckets
}

// buildWeekBuckets month 视图的4个固定周桶
//
// 周序号 = 距今天数/7 + 1。超过28天的记录折入第4桶而不是丢弃，
// 30天窗口的第29、30天因此并入最后一桶。
func buildWeekBuckets(now time.Time, records []*models.PostureRecord) []WeekBucket {
	buckets := make([]WeekBucket, monthWeekBuckets)
	for i := range buckets {
		buckets[i] = WeekBucket{
			Week:         i + 1,
			HoursByState: newHoursByState(),
			HoursByRisk:  newHoursByRisk(),
		}
	}

	for _, rec := range records {
		days := int(now.Sub(rec.StartTime).Hours() / 24)
		week := days/daysPerWeekBucket + 1
		if week > monthWeekBuckets {
			week = monthWeekBuckets
		}
		if week < 1 {
			week = 1
		}
		hours := rec.DurationSeconds() / 3600
		buckets[week-1].HoursByState[rec.State.String()] += hours
		buckets[week-1].HoursByRisk[string(rec.RiskLevel)] += hours
	}

	for i := range buckets {
		roundHours(buckets[i].HoursByState)
		roundHours(buckets[i].HoursByRisk)
	}
	return buckets
}

func buildTrend(period Period, start, now time.Time, records []*models.PostureRecord) []TrendPoint {
	var points []TrendPoint
	bucketOf := func(rec *models.PostureRecord) int { return -1 }

	switch period {
	case PeriodDay:
		points = make([]TrendPoint, dayTrendBuckets)
		for i := range points {
			points[i].Label = fmt.Sprintf("%02d:00-%02d:00", i*trendBucketHours, (i+1)*trendBucketHours)
		}
		bucketOf = func(rec *models.PostureRecord) int {
			return rec.StartTime.Hour() / trendBucketHours
		}
	case PeriodWeek:
		points = make([]TrendPoint, weekDayBuckets)
		for i := range points {
			points[i].Label = start.AddDate(0, 0, i).Format("2006-01-02")
		}
		bucketOf = func(rec *models.PostureRecord) int {
			return int(rec.StartTime.Sub(start).Hours() / 24)
		}
	case PeriodMonth:
		points = make([]TrendPoint, monthWeekBuckets)
		for i := range points {
			points[i].Label = fmt.Sprintf("week %d", i+1)
		}
		bucketOf = func(rec *models.PostureRecord) int {
			days := int(now.Sub(rec.StartTime).Hours() / 24)
			week := days/daysPerWeekBucket + 1
			if week > monthWeekBuckets {
				week = monthWeekBuckets
			}
			if week < 1 {
				week = 1
			}
			return week - 1
		}
	}

	stepsAcc := make([]float64, len(points))
	for _, rec := range records {
		idx := bucketOf(rec)
		if idx < 0 || idx >= len(points) {
			continue
		}
		stepsAcc[idx] += stepsFor(rec)
		if isActive(rec.State) {
			points[idx].ActiveMinutes += rec.DurationSeconds() / 60
		}
	}
	for i := range points {
		points[i].Steps = int(math.Round(stepsAcc[i]))
		points[i].ActiveMinutes = round1(points[i].ActiveMinutes)
	}
	return points
}

func buildDistribution(durationByState map[string]float64) []DistributionEntry {
	var total float64
	for _, d := range durationByState {
		total += d
	}

	order := []models.State{
		models.StateLie, models.StateStand, models.StateSit,
		models.StateWalk, models.StateRun,
	}
	entries := make([]DistributionEntry, 0, len(order))
	for _, state := range order {
		dur := durationByState[state.String()]
		entry := DistributionEntry{
			State: state.String(),
			Hours: round2(dur / 3600),
		}
		if total > 0 {
			entry.Percent = round1(dur / total * 100)
		}
		entries = append(entries, entry)
	}
	return entries
}

func roundHours(m map[string]float64) {
	for k, v := range m {
		m[k] = round2(v)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
