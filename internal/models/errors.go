package models

import "errors"

// 错误分类（校验错误在样本进入估计器之前拒绝，绝不静默截断）
var (
	ErrMissingField     = errors.New("missing required fields")
	ErrAngleOutOfRange  = errors.New("trunk angle out of range")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPhoneRegistered  = errors.New("phone number already registered")
	ErrEmailRegistered  = errors.New("email already registered")
	ErrCodeExpired      = errors.New("verification code expired or not found")
	ErrCodeMismatch     = errors.New("verification code mismatch")
	ErrRecordNotFound   = errors.New("posture record not found")
	ErrNoCalibration    = errors.New("calibration reference not set")
	ErrInvalidTimeRange = errors.New("invalid time range")
)
