package model

import "time"

// swagger:model Class
type Class struct {
	BaseModel
	Name        string  `gorm:"size:255;not null" json:"name"`
	Description *string `gorm:"type:text" json:"description"`
}

func (Class) TableName() string {
	return "classes"
}

// Subject 隶属于某个班级，由一位教师负责
// swagger:model Subject
type Subject struct {
	BaseModel
	Name        string  `gorm:"size:255;not null" json:"name"`
	Description *string `gorm:"type:text" json:"description"`
	ClassID     uint    `gorm:"index;not null" json:"class_id"`
	TeacherID   uint    `gorm:"index;not null" json:"teacher_id"`
}

func (Subject) TableName() string {
	return "subjects"
}

// ClassEnrollment 学生与班级的关联；学生通过班级获得该班全部科目的访问权
type ClassEnrollment struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID  uint      `gorm:"not null;uniqueIndex:idx_enrollment_student_class" json:"student_id"`
	ClassID    uint      `gorm:"not null;uniqueIndex:idx_enrollment_student_class" json:"class_id"`
	EnrolledAt time.Time `gorm:"not null" json:"enrolled_at"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
}

func (ClassEnrollment) TableName() string {
	return "class_enrollments"
}
