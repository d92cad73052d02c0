// Package repository 封装 PostgreSQL 持久化访问
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/XuYifan-423/Sync-Life/internal/models"
)

// UsersRepository 用户仓库
type UsersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUsersRepository 创建用户仓库
func NewUsersRepository(db *sql.DB, logger *zap.Logger) *UsersRepository {
	return &UsersRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `
	id,
	phone,
	email,
	password_hash,
	identity,
	age,
	age_group,
	weight,
	height,
	ills,
	is_verified
`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var user models.User
	var identity sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Phone,
		&user.Email,
		&user.PasswordHash,
		&identity,
		&user.Age,
		&user.AgeGroup,
		&user.Weight,
		&user.Height,
		&user.Ills,
		&user.IsVerified,
	)
	if err != nil {
		return nil, err
	}
	if identity.Valid {
		user.Identity = &identity.String
	}
	return &user, nil
}

// CreateUser 创建用户
// 手机号/邮箱重复时返回哨兵错误，年龄组在此之前已由调用方计算好
func (r *UsersRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if user.Phone == "" || user.Email == "" {
		return models.ErrMissingField
	}

	// 先做唯一性预检，给出可区分的错误
	var phoneTaken, emailTaken bool
	err := r.db.QueryRowContext(ctx,
		`SELECT
			EXISTS(SELECT 1 FROM users WHERE phone = $1),
			EXISTS(SELECT 1 FROM users WHERE email = $2)`,
		user.Phone, user.Email,
	).Scan(&phoneTaken, &emailTaken)
	if err != nil {
		return fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	if phoneTaken {
		return models.ErrPhoneRegistered
	}
	if emailTaken {
		return models.ErrEmailRegistered
	}

	query := `
		INSERT INTO users (
			phone,
			email,
			password_hash,
			identity,
			age,
			age_group,
			weight,
			height,
			ills,
			is_verified,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
		)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		user.Phone,
		user.Email,
		user.PasswordHash,
		user.Identity,
		user.Age,
		user.AgeGroup,
		user.Weight,
		user.Height,
		user.Ills,
		user.IsVerified,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID 根据ID获取用户
func (r *UsersRepository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByPhone 根据手机号获取用户（登录用）
func (r *UsersRepository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE phone = $1`, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, phone))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}
	return user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (r *UsersRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// UpdateUser 部分更新用户资料
//
// age_group 不在允许列表里：注册时确定后不随资料更新重算。
func (r *UsersRepository) UpdateUser(ctx context.Context, userID int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return fmt.Errorf("updates cannot be empty")
	}

	allowedFields := map[string]bool{
		"phone":         true,
		"email":         true,
		"password_hash": true,
		"identity":      true,
		"age":           true,
		"weight":        true,
		"height":        true,
		"ills":          true,
		"is_verified":   true,
	}

	setParts := []string{}
	args := []interface{}{}
	argN := 1

	for field, value := range updates {
		if !allowedFields[field] {
			return fmt.Errorf("field '%s' is not allowed to update", field)
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}
	setParts = append(setParts, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, userID)
	query := fmt.Sprintf(`
		UPDATE users
		SET %s
		WHERE id = $%d
	`, strings.Join(setParts, ", "), argN)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrUserNotFound
	}

	return nil
}

// MarkVerified 标记用户已通过验证码校验
func (r *UsersRepository) MarkVerified(ctx context.Context, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
