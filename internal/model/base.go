package model

import (
	"time"

	"gorm.io/gorm"
)

// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AllModels 返回需要自动迁移的全部模型，顺序即建表顺序
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Class{},
		&Subject{},
		&ClassEnrollment{},
		&Exam{},
		&ExamQuestion{},
		&MultipleChoiceOption{},
		&ExamAttempt{},
		&ExamAnswer{},
	}
}
