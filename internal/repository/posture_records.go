package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// PostureRecordsRepository 姿态记录仓库
//
// 每个用户最多一条开放记录（end_time IS NULL），换段通过单个事务
// 完成关闭+新建，任何中间状态都不会出现"两条开放记录"。
type PostureRecordsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostureRecordsRepository 创建姿态记录仓库
func NewPostureRecordsRepository(db *sql.DB, logger *zap.Logger) *PostureRecordsRepository {
	return &PostureRecordsRepository{
		db:     db,
		logger: logger,
	}
}

const recordColumns = `
	record_id,
	user_id,
	state,
	trunk_stable_angle,
	risk_level,
	start_time,
	end_time,
	duration
`

func scanRecord(row interface{ Scan(...interface{}) error }) (*models.PostureRecord, error) {
	var rec models.PostureRecord
	var endTime sql.NullTime
	var duration sql.NullFloat64

	err := row.Scan(
		&rec.RecordID,
		&rec.UserID,
		&rec.State,
		&rec.TrunkStableAngle,
		&rec.RiskLevel,
		&rec.StartTime,
		&endTime,
		&duration,
	)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		rec.EndTime = &endTime.Time
	}
	if duration.Valid {
		rec.Duration = &duration.Float64
	}
	return &rec, nil
}

// GetOpenRecord 获取用户当前的开放记录，没有时返回 (nil, nil)
func (r *PostureRecordsRepository) GetOpenRecord(ctx context.Context, userID int64) (*models.PostureRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM posture_records
		WHERE user_id = $1
		  AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`, recordColumns)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open posture record: %w", err)
	}
	return rec, nil
}

// CreateOpenRecord 创建新的开放记录
func (r *PostureRecordsRepository) CreateOpenRecord(ctx context.Context, rec *models.PostureRecord) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}

	query := `
		INSERT INTO posture_records (
			user_id,
			state,
			trunk_stable_angle,
			risk_level,
			start_time
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING record_id
	`

	err := r.db.QueryRowContext(ctx, query,
		rec.UserID,
		rec.State,
		rec.TrunkStableAngle,
		rec.RiskLevel,
		rec.StartTime,
	).Scan(&rec.RecordID)
	if err != nil {
		return fmt.Errorf("failed to create posture record: %w", err)
	}
	return nil
}

// TransitionRecord 原子换段：关闭旧记录并打开新记录
//
// 关闭时一次性写入 end_time 和 duration（秒），之后不再改动。
func (r *PostureRecordsRepository) TransitionRecord(ctx context.Context, openRecordID int64, closedAt time.Time, next *models.PostureRecord) error {
	if next == nil {
		return fmt.Errorf("next record is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	closeQuery := `
		UPDATE posture_records
		SET end_time = $1,
		    duration = EXTRACT(EPOCH FROM ($1 - start_time))
		WHERE record_id = $2
		  AND end_time IS NULL
	`

	result, err := tx.ExecContext(ctx, closeQuery, closedAt, openRecordID)
	if err != nil {
		return fmt.Errorf("failed to close posture record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrRecordNotFound
	}

	openQuery := `
		INSERT INTO posture_records (
			user_id,
			state,
			trunk_stable_angle,
			risk_level,
			start_time
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING record_id
	`

	err = tx.QueryRowContext(ctx, openQuery,
		next.UserID,
		next.State,
		next.TrunkStableAngle,
		next.RiskLevel,
		next.StartTime,
	).Scan(&next.RecordID)
	if err != nil {
		return fmt.Errorf("failed to open next posture record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record transition: %w", err)
	}
	return nil
}

// GetRecordsInRange 获取时间窗口内的记录（按开始时间升序，含开放记录）
func (r *PostureRecordsRepository) GetRecordsInRange(ctx context.Context, userID int64, start, end time.Time) ([]*models.PostureRecord, error) {
	if !end.After(start) {
		return nil, models.ErrInvalidTimeRange
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM posture_records
		WHERE user_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time ASC
	`, recordColumns)

	rows, err := r.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query posture records: %w", err)
	}
	defer rows.Close()

	records := []*models.PostureRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posture record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posture records: %w", err)
	}
	return records, nil
}

// GetLatestRecord 获取用户最近一条记录（实时姿态兜底查询）
func (r *PostureRecordsRepository) GetLatestRecord(ctx context.Context, userID int64) (*models.PostureRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM posture_records
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT 1
	`, recordColumns)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get latest posture record: %w", err)
	}
	return rec, nil
}
