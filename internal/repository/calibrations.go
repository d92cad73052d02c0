package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// CalibrationsRepository T-Pose校准参考仓库
//
// 每个用户只有一条激活的校准参考，重新校准时旧参考停用、新参考
// 插入，历史保留可追溯。
type CalibrationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCalibrationsRepository 创建校准参考仓库
func NewCalibrationsRepository(db *sql.DB, logger *zap.Logger) *CalibrationsRepository {
	return &CalibrationsRepository{
		db:     db,
		logger: logger,
	}
}

// SaveCalibration 保存新的校准参考并停用旧参考（单事务）
func (r *CalibrationsRepository) SaveCalibration(ctx context.Context, ref *models.CalibrationRef) error {
	if ref == nil {
		return fmt.Errorf("calibration is required")
	}
	if ref.CalibrationID == "" {
		return fmt.Errorf("calibration_id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE calibrations SET is_active = FALSE WHERE user_id = $1 AND is_active`,
		ref.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous calibration: %w", err)
	}

	query := `
		INSERT INTO calibrations (
			calibration_id,
			user_id,
			upper_x, upper_y, upper_z,
			lower_x, lower_y, lower_z,
			is_active,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
	`

	_, err = tx.ExecContext(ctx, query,
		ref.CalibrationID,
		ref.UserID,
		ref.UpperGravity[0], ref.UpperGravity[1], ref.UpperGravity[2],
		ref.LowerGravity[0], ref.LowerGravity[1], ref.LowerGravity[2],
		ref.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert calibration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit calibration: %w", err)
	}

	r.logger.Info("Calibration saved",
		zap.Int64("user_id", ref.UserID),
		zap.String("calibration_id", ref.CalibrationID))
	return nil
}

// GetActiveCalibration 获取用户当前激活的校准参考，没有时返回 (nil, nil)
func (r *CalibrationsRepository) GetActiveCalibration(ctx context.Context, userID int64) (*models.CalibrationRef, error) {
	query := `
		SELECT
			calibration_id,
			user_id,
			upper_x, upper_y, upper_z,
			lower_x, lower_y, lower_z,
			created_at
		FROM calibrations
		WHERE user_id = $1
		  AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`

	var ref models.CalibrationRef
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&ref.CalibrationID,
		&ref.UserID,
		&ref.UpperGravity[0], &ref.UpperGravity[1], &ref.UpperGravity[2],
		&ref.LowerGravity[0], &ref.LowerGravity[1], &ref.LowerGravity[2],
		&ref.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active calibration: %w", err)
	}
	return &ref, nil
}
