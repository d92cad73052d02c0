package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/XuYifan-423/Sync-Life/internal/models"
	"github.com/XuYifan-423/Sync-Life/pkg/redis"
)

// 验证码参数：6位数字，5分钟有效，过期由 Redis TTL 自动清除
const (
	verificationKeyPrefix = "verification:code:"
	verificationTTL       = 5 * time.Minute
	verificationCodeMax   = 1000000

	bcryptCost = 12
)

// AccountStore 账户持久化接口
type AccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, userID int64, updates map[string]interface{}) error
	MarkVerified(ctx context.Context, userID int64) error
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Phone    string  `json:"phone"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Code     string  `json:"code"`
	Identity *string `json:"identity,omitempty"`
	Age      int     `json:"age"`
	Weight   float64 `json:"weight"`
	Height   float64 `json:"height"`
	Ills     string  `json:"ills"`
}

// UpdateProfileRequest 资料更新请求（全部可选字段）
//
// 年龄可以改，但注册时算好的年龄组不会重算。换邮箱会清掉
// 已验证标记，需要用新邮箱重新走验证码。
type UpdateProfileRequest struct {
	Phone    *string  `json:"phone,omitempty"`
	Email    *string  `json:"email,omitempty"`
	Password *string  `json:"password,omitempty"`
	Identity *string  `json:"identity,omitempty"`
	Age      *int     `json:"age,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Ills     *string  `json:"ills,omitempty"`
}

// AccountService 账户服务
type AccountService struct {
	store  AccountStore
	redis  *redis.Client
	logger *zap.Logger
}

// NewAccountService 创建账户服务
func NewAccountService(store AccountStore, redisClient *redis.Client, logger *zap.Logger) *AccountService {
	return &AccountService{
		store:  store,
		redis:  redisClient,
		logger: logger,
	}
}

func verificationKey(email string) string {
	return verificationKeyPrefix + email
}

// SendVerificationCode 生成并存储邮箱验证码
//
// 返回生成的验证码交给投递层（邮件发送是外部职责）。重复请求
// 直接覆盖旧码并重置TTL。
func (s *AccountService) SendVerificationCode(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", models.ErrMissingField
	}

	n, err := rand.Int(rand.Reader, big.NewInt(verificationCodeMax))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	if err := s.redis.Set(ctx, verificationKey(email), code, verificationTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}

	s.logger.Info("Verification code issued", zap.String("email", email))
	return code, nil
}

// checkVerificationCode 校验并消费验证码（一次性）
func (s *AccountService) checkVerificationCode(ctx context.Context, email, code string) error {
	stored, err := s.redis.Get(ctx, verificationKey(email)).Result()
	if err != nil {
		if err == goredis.Nil {
			return models.ErrCodeExpired
		}
		return fmt.Errorf("failed to read verification code: %w", err)
	}
	if stored != code {
		return models.ErrCodeMismatch
	}
	if err := s.redis.Del(ctx, verificationKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to consume verification code: %w", err)
	}
	return nil
}

// Register 注册新用户
//
// 年龄组在这里计算一次，之后不随资料更新重算。
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	if req == nil || req.Phone == "" || req.Email == "" || req.Password == "" {
		return nil, models.ErrMissingField
	}

	if err := s.checkVerificationCode(ctx, req.Email, req.Code); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Phone:        req.Phone,
		Email:        req.Email,
		PasswordHash: string(hash),
		Identity:     req.Identity,
		Age:          req.Age,
		AgeGroup:     models.AgeGroupForAge(req.Age),
		Weight:       req.Weight,
		Height:       req.Height,
		Ills:         req.Ills,
		IsVerified:   true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered",
		zap.Int64("user_id", user.ID),
		zap.String("age_group", string(user.AgeGroup)))
	return user, nil
}

// Login 手机号或邮箱登录
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	if identifier == "" || password == "" {
		return nil, models.ErrMissingField
	}

	user, err := s.store.GetUserByPhone(ctx, identifier)
	if err == models.ErrUserNotFound {
		user, err = s.store.GetUserByEmail(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidPassword
	}
	return user, nil
}

// GetUser 获取用户资料
func (s *AccountService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// VerifyEmail 用验证码重新验证邮箱（换邮箱后调用）
func (s *AccountService) VerifyEmail(ctx context.Context, email, code string) (*models.User, error) {
	if email == "" || code == "" {
		return nil, models.ErrMissingField
	}
	if err := s.checkVerificationCode(ctx, email, code); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true

	s.logger.Info("Email verified", zap.Int64("user_id", user.ID))
	return user, nil
}

// UpdateProfile 部分更新用户资料
func (s *AccountService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) error {
	if req == nil {
		return models.ErrMissingField
	}

	updates := map[string]interface{}{}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Email != nil {
		updates["email"] = *req.Email
		updates["is_verified"] = false
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		updates["password_hash"] = string(hash)
	}
	if req.Identity != nil {
		updates["identity"] = *req.Identity
	}
	if req.Age != nil {
		updates["age"] = *req.Age
	}
	if req.Weight != nil {
		updates["weight"] = *req.Weight
	}
	if req.Height != nil {
		updates["height"] = *req.Height
	}
	if req.Ills != nil {
		updates["ills"] = *req.Ills
	}
	if len(updates) == 0 {
		return models.ErrMissingField
	}

	return s.store.UpdateUser(ctx, userID, updates)
}
