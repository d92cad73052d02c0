package models

// AgeGroup 年龄组（注册时根据年龄计算一次，之后修改年龄不再重算）
type AgeGroup string

const (
	AgeGroupYouth  AgeGroup = "YOUTH"  // 11-24岁
	AgeGroupPrime  AgeGroup = "PRIME"  // 25-44岁
	AgeGroupMiddle AgeGroup = "MIDDLE" // 45-59岁
	AgeGroupSenior AgeGroup = "SENIOR" // 60岁以上（及10岁以下，沿用历史分组规则）
)

// AgeGroupForAge 根据年龄计算年龄组
func AgeGroupForAge(age int) AgeGroup {
	switch {
	case age >= 11 && age <= 24:
		return AgeGroupYouth
	case age >= 25 && age <= 44:
		return AgeGroupPrime
	case age >= 45 && age <= 59:
		return AgeGroupMiddle
	default:
		return AgeGroupSenior
	}
}

// User 用户信息
//
// AgeGroup 在创建时根据 Age 派生一次，之后即使修改 Age 也保持不变，
// 保证历史姿态记录的分组口径稳定。
type User struct {
	ID           int64    `json:"user_id"`
	Phone        string   `json:"phone"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	Identity     *string  `json:"identity,omitempty"`
	Age          int      `json:"age"`
	AgeGroup     AgeGroup `json:"age_group"`
	Weight       float64  `json:"weight"`
	Height       float64  `json:"height"`
	Ills         string   `json:"ills"` // 既往病史（自由文本，空串表示无）
	IsVerified   bool     `json:"is_verified"`
}

// HasIlls 是否有记录在案的既往病史
func (u *User) HasIlls() bool {
	return u.Ills != ""
}
