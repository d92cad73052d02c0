package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
	"github.com/XuYifan-423/Sync-Life/internal/report"
)

// RecordRangeReader 时间窗口记录查询接口
type RecordRangeReader interface {
	GetRecordsInRange(ctx context.Context, userID int64, start, end time.Time) ([]*models.PostureRecord, error)
}

// ReportService 活动报告服务
type ReportService struct {
	users   UserStore
	records RecordRangeReader
	logger  *zap.Logger
}

// NewReportService 创建报告服务
func NewReportService(users UserStore, records RecordRangeReader, logger *zap.Logger) *ReportService {
	return &ReportService{
		users:   users,
		records: records,
		logger:  logger,
	}
}

// Activity 生成指定粒度的活动报告
func (s *ReportService) Activity(ctx context.Context, userID int64, period report.Period, now time.Time) (*report.Report, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	start, end, err := report.WindowFor(period, now)
	if err != nil {
		return nil, err
	}

	records, err := s.records.GetRecordsInRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	return report.Build(period, now, start, end, records), nil
}

// ExportExcel 生成报告并导出为xlsx字节
func (s *ReportService) ExportExcel(ctx context.Context, userID int64, period report.Period, now time.Time) ([]byte, error) {
	r, err := s.Activity(ctx, userID, period, now)
	if err != nil {
		return nil, err
	}
	return report.ExportExcel(r)
}
