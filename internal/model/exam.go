package model

import "time"

type ExamStatus string

const (
	ExamDraft   ExamStatus = "draft"
	ExamActive  ExamStatus = "active"
	ExamExpired ExamStatus = "expired"
)

func (s ExamStatus) Valid() bool {
	switch s {
	case ExamDraft, ExamActive, ExamExpired:
		return true
	}
	return false
}

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	Essay          QuestionType = "essay"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, Essay:
		return true
	}
	return false
}

// 分值上限：score / total_score 列为 decimal(5,2)
const (
	MaxQuestionPoints = 100
	MaxExamPoints     = 999
)

// swagger:model Exam
type Exam struct {
	BaseModel
	Title            string     `gorm:"size:255;not null" json:"title"`
	Description      *string    `gorm:"type:text" json:"description"`
	SubjectID        uint       `gorm:"index;not null" json:"subject_id"`
	CreatedBy        uint       `gorm:"index;not null" json:"created_by"`
	TimeLimitMinutes int        `gorm:"not null" json:"time_limit_minutes"`
	AccessDeadline   time.Time  `gorm:"not null" json:"access_deadline"`
	Status           ExamStatus `gorm:"size:16;not null;default:'draft'" json:"status"`
}

func (Exam) TableName() string {
	return "exams"
}

// AttemptDeadline 某次作答的截止时刻：开始时间 + 限时
func (e *Exam) AttemptDeadline(startedAt time.Time) time.Time {
	return startedAt.Add(time.Duration(e.TimeLimitMinutes) * time.Minute)
}

// OpenAt 考试在 now 时刻是否允许开始新的作答
func (e *Exam) OpenAt(now time.Time) bool {
	return e.Status == ExamActive && !now.After(e.AccessDeadline)
}

// swagger:model ExamQuestion
type ExamQuestion struct {
	ID           uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	ExamID       uint         `gorm:"not null;uniqueIndex:idx_exam_question_order" json:"exam_id"`
	QuestionText string       `gorm:"type:text;not null" json:"question_text"`
	QuestionType QuestionType `gorm:"size:32;not null" json:"question_type"`
	Points       int          `gorm:"not null" json:"points"`
	OrderIndex   int          `gorm:"not null;uniqueIndex:idx_exam_question_order" json:"order_index"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

// swagger:model MultipleChoiceOption
type MultipleChoiceOption struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestionID uint   `gorm:"not null;uniqueIndex:idx_question_option_order" json:"question_id"`
	OptionText string `gorm:"type:text;not null" json:"option_text"`
	IsCorrect  bool   `gorm:"not null" json:"is_correct"`
	OrderIndex int    `gorm:"not null;uniqueIndex:idx_question_option_order" json:"order_index"`
}

func (MultipleChoiceOption) TableName() string {
	return "multiple_choice_options"
}
