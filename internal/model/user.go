package model

type UserRole string

const (
	Teacher UserRole = "teacher"
	Student UserRole = "student"
	Manager UserRole = "manager"
)

// Valid 判断角色是否为已知取值
func (r UserRole) Valid() bool {
	switch r {
	case Teacher, Student, Manager:
		return true
	}
	return false
}

// swagger:model User
type User struct {
	BaseModel
	Email    string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	FullName string   `gorm:"size:100;not null" json:"full_name"`
	Role     UserRole `gorm:"size:16;not null" json:"role"`
	IsActive bool     `gorm:"not null;default:true" json:"is_active"`
}

func (User) TableName() string {
	return "users"
}
