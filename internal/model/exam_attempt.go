package model

import (
	"fmt"
	"time"
)

// ExamAttempt 学生对某场考试的一次限时作答
// swagger:model ExamAttempt
type ExamAttempt struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ExamID      uint       `gorm:"index;not null" json:"exam_id"`
	StudentID   uint       `gorm:"index;not null" json:"student_id"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TotalScore  Score      `gorm:"type:decimal(5,2)" json:"total_score"`
	IsCompleted bool       `gorm:"not null;default:false" json:"is_completed"`
	// InProgressKey 仅在未完成时有值，唯一索引保证同一 (exam, student) 至多一次进行中的作答
	InProgressKey *string   `gorm:"size:64;uniqueIndex" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

func InProgressKey(examID, studentID uint) string {
	return fmt.Sprintf("%d:%d", examID, studentID)
}

// swagger:model ExamAnswer
type ExamAnswer struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID        uint       `gorm:"not null;uniqueIndex:idx_answer_attempt_question" json:"attempt_id"`
	QuestionID       uint       `gorm:"not null;uniqueIndex:idx_answer_attempt_question" json:"question_id"`
	SelectedOptionID *uint      `json:"selected_option_id"`
	EssayAnswer      *string    `gorm:"type:text" json:"essay_answer"`
	Score            Score      `gorm:"type:decimal(5,2)" json:"score"`
	AnsweredAt       time.Time  `gorm:"not null" json:"answered_at"`
	GradedBy         *uint      `json:"graded_by,omitempty"`
	GradedAt         *time.Time `json:"graded_at,omitempty"`
}

func (ExamAnswer) TableName() string {
	return "exam_answers"
}
