package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

func newCalibrationsRepo(t *testing.T) (*CalibrationsRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCalibrationsRepository(db, zap.NewNop()), mock
}

func TestSaveCalibration_DeactivatesThenInserts(t *testing.T) {
	repo, mock := newCalibrationsRepo(t)

	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE calibrations SET is_active = FALSE").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO calibrations").
		WithArgs("cal-id-1", int64(1), 0.0, 0.0, 1.0, 0.0, 0.0, 1.0, createdAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SaveCalibration(context.Background(), &models.CalibrationRef{
		CalibrationID: "cal-id-1",
		UserID:        1,
		UpperGravity:  [3]float64{0, 0, 1},
		LowerGravity:  [3]float64{0, 0, 1},
		CreatedAt:     createdAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCalibration_RequiresID(t *testing.T) {
	repo, _ := newCalibrationsRepo(t)

	err := repo.SaveCalibration(context.Background(), &models.CalibrationRef{UserID: 1})
	assert.Error(t, err)
}

func TestGetActiveCalibration_NoneIsNotError(t *testing.T) {
	repo, mock := newCalibrationsRepo(t)

	mock.ExpectQuery("SELECT(.|\n)+FROM calibrations").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"calibration_id"}))

	ref, err := repo.GetActiveCalibration(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestGetActiveCalibration_Found(t *testing.T) {
	repo, mock := newCalibrationsRepo(t)

	createdAt := time.Now()
	mock.ExpectQuery("SELECT(.|\n)+FROM calibrations(.|\n)+is_active").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"calibration_id", "user_id",
			"upper_x", "upper_y", "upper_z",
			"lower_x", "lower_y", "lower_z",
			"created_at",
		}).AddRow("cal-id-1", int64(1), 0.0, 0.0, 1.0, 0.1, 0.0, 0.9, createdAt))

	ref, err := repo.GetActiveCalibration(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "cal-id-1", ref.CalibrationID)
	assert.Equal(t, [3]float64{0, 0, 1}, ref.UpperGravity)
	assert.NoError(t, mock.ExpectationsWereMet())
}
