package repository

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClassRepository 班级、科目与选课关系
type ClassRepository struct {
	DB *gorm.DB
}

func NewClassRepository(db *gorm.DB) *ClassRepository {
	return &ClassRepository{DB: db}
}

func (r *ClassRepository) CreateClass(ctx context.Context, class *model.Class) error {
	return r.DB.WithContext(ctx).Create(class).Error
}

func (r *ClassRepository) FindClassByID(ctx context.Context, id uint) (*model.Class, error) {
	var class model.Class
	if err := r.DB.WithContext(ctx).First(&class, id).Error; err != nil {
		return nil, notFound(err, util.ErrClassNotFound)
	}
	return &class, nil
}

func (r *ClassRepository) CreateSubject(ctx context.Context, subject *model.Subject) error {
	return r.DB.WithContext(ctx).Create(subject).Error
}

func (r *ClassRepository) FindSubjectByID(ctx context.Context, id uint) (*model.Subject, error) {
	var subject model.Subject
	if err := r.DB.WithContext(ctx).First(&subject, id).Error; err != nil {
		return nil, notFound(err, util.ErrSubjectNotFound)
	}
	return &subject, nil
}

// Enroll 建立或重新激活选课关系
func (r *ClassRepository) Enroll(ctx context.Context, studentID, classID uint, now time.Time) (*model.ClassEnrollment, error) {
	enrollment := model.ClassEnrollment{
		StudentID:  studentID,
		ClassID:    classID,
		EnrolledAt: now,
		IsActive:   true,
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "class_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"is_active": true}),
		}).Create(&enrollment).Error
		if err != nil {
			return fmt.Errorf("upsert enrollment: %w", err)
		}
		var stored model.ClassEnrollment
		if err := tx.Where("student_id = ? AND class_id = ?", studentID, classID).First(&stored).Error; err != nil {
			return err
		}
		enrollment = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Unenroll 停用选课关系，保留记录以便重新激活
func (r *ClassRepository) Unenroll(ctx context.Context, studentID, classID uint) (*model.ClassEnrollment, error) {
	var enrollment model.ClassEnrollment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			Where("student_id = ? AND class_id = ?", studentID, classID).
			First(&enrollment).Error; err != nil {
			return notFound(err, util.ErrEnrollmentNotFound)
		}
		enrollment.IsActive = false
		return tx.Model(&enrollment).Update("is_active", false).Error
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// IsEnrolled 学生是否通过有效选课关系属于科目所在班级
func (r *ClassRepository) IsEnrolled(ctx context.Context, studentID, subjectID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Table("class_enrollments e").
		Joins("JOIN subjects s ON s.class_id = e.class_id AND s.deleted_at IS NULL").
		Joins("JOIN classes c ON c.id = e.class_id AND c.deleted_at IS NULL").
		Joins("JOIN users u ON u.id = e.student_id AND u.deleted_at IS NULL").
		Where("e.student_id = ? AND s.id = ? AND e.is_active = ? AND u.is_active = ?", studentID, subjectID, true, true).
		Count(&count).Error
	return count > 0, err
}

func (r *ClassRepository) TeachesSubject(ctx context.Context, teacherID, subjectID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Subject{}).
		Where("id = ? AND teacher_id = ?", subjectID, teacherID).
		Count(&count).Error
	return count > 0, err
}
