package repository

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"fmt"

	"gorm.io/gorm"
)

// ExamRepository 考试、题目与选项的持久化
type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) CreateExam(ctx context.Context, exam *model.Exam) error {
	return r.DB.WithContext(ctx).Create(exam).Error
}

func (r *ExamRepository) FindExamByID(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).First(&exam, id).Error; err != nil {
		return nil, notFound(err, util.ErrExamNotFound)
	}
	return &exam, nil
}

func (r *ExamRepository) UpdateExamStatus(ctx context.Context, id uint, status model.ExamStatus) error {
	res := r.DB.WithContext(ctx).Model(&model.Exam{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrExamNotFound
	}
	return nil
}

// DeleteExam 在事务内删除考试及其题目、选项；存在作答记录时拒绝
func (r *ExamRepository) DeleteExam(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempts int64
		if err := tx.Model(&model.ExamAttempt{}).Where("exam_id = ?", id).Count(&attempts).Error; err != nil {
			return err
		}
		if attempts > 0 {
			return util.ErrExamHasAttempts
		}

		var questionIDs []uint
		if err := tx.Model(&model.ExamQuestion{}).Where("exam_id = ?", id).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).Delete(&model.MultipleChoiceOption{}).Error; err != nil {
				return fmt.Errorf("delete options: %w", err)
			}
			if err := tx.Where("exam_id = ?", id).Delete(&model.ExamQuestion{}).Error; err != nil {
				return fmt.Errorf("delete questions: %w", err)
			}
		}

		res := tx.Delete(&model.Exam{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrExamNotFound
		}
		return nil
	})
}

// ListBySubject 按截止时间升序列出科目下的全部考试
func (r *ExamRepository) ListBySubject(ctx context.Context, subjectID uint) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("access_deadline asc, id asc").
		Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) CountAttempts(ctx context.Context, examID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ExamAttempt{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}

// lockEditable 锁定考试行并确认题目仍可修改：未过期且没有任何作答
func lockEditable(tx *gorm.DB, examID uint) (*model.Exam, error) {
	var exam model.Exam
	if err := lockForUpdate(tx).First(&exam, examID).Error; err != nil {
		return nil, notFound(err, util.ErrExamNotFound)
	}
	if exam.Status == model.ExamExpired {
		return nil, util.ErrExamLocked
	}
	var attempts int64
	if err := tx.Model(&model.ExamAttempt{}).Where("exam_id = ?", examID).Count(&attempts).Error; err != nil {
		return nil, err
	}
	if attempts > 0 {
		return nil, util.ErrExamLocked
	}
	return &exam, nil
}

// CreateQuestion 在锁定考试行的事务内复核可编辑性与总分上限后插入
func (r *ExamRepository) CreateQuestion(ctx context.Context, question *model.ExamQuestion) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockEditable(tx, question.ExamID); err != nil {
			return err
		}
		var total int64
		if err := tx.Model(&model.ExamQuestion{}).
			Where("exam_id = ?", question.ExamID).
			Select("COALESCE(SUM(points), 0)").
			Scan(&total).Error; err != nil {
			return err
		}
		if total+int64(question.Points) > model.MaxExamPoints {
			return util.ErrExamPointsExceeded
		}
		if err := tx.Create(question).Error; err != nil {
			if IsUniqueViolation(err) {
				return util.ErrDuplicateOrderIndex
			}
			return err
		}
		return nil
	})
}

func (r *ExamRepository) FindQuestionByID(ctx context.Context, id uint) (*model.ExamQuestion, error) {
	var q model.ExamQuestion
	if err := r.DB.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, notFound(err, util.ErrQuestionNotFound)
	}
	return &q, nil
}

func (r *ExamRepository) ListQuestions(ctx context.Context, examID uint) ([]model.ExamQuestion, error) {
	var qs []model.ExamQuestion
	err := r.DB.WithContext(ctx).Where("exam_id = ?", examID).Order("order_index asc").Find(&qs).Error
	return qs, err
}

// CreateOption 插入选项；事务内复核可编辑性，isCorrect 时检查该题是否已有正确选项
func (r *ExamRepository) CreateOption(ctx context.Context, option *model.MultipleChoiceOption) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question model.ExamQuestion
		if err := tx.First(&question, option.QuestionID).Error; err != nil {
			return notFound(err, util.ErrQuestionNotFound)
		}
		if _, err := lockEditable(tx, question.ExamID); err != nil {
			return err
		}
		if option.IsCorrect {
			var correct int64
			if err := tx.Model(&model.MultipleChoiceOption{}).
				Where("question_id = ? AND is_correct = ?", option.QuestionID, true).
				Count(&correct).Error; err != nil {
				return err
			}
			if correct > 0 {
				return util.ErrMultipleCorrectOptions
			}
		}
		if err := tx.Create(option).Error; err != nil {
			if IsUniqueViolation(err) {
				return util.ErrDuplicateOrderIndex
			}
			return err
		}
		return nil
	})
}

func (r *ExamRepository) ListOptions(ctx context.Context, questionID uint) ([]model.MultipleChoiceOption, error) {
	var opts []model.MultipleChoiceOption
	err := r.DB.WithContext(ctx).Where("question_id = ?", questionID).Order("order_index asc").Find(&opts).Error
	return opts, err
}

// ListOptionsByExam 一次取出考试下全部选项，按题目与顺序排列
func (r *ExamRepository) ListOptionsByExam(ctx context.Context, examID uint) ([]model.MultipleChoiceOption, error) {
	var opts []model.MultipleChoiceOption
	err := r.DB.WithContext(ctx).
		Joins("JOIN exam_questions q ON q.id = multiple_choice_options.question_id").
		Where("q.exam_id = ?", examID).
		Order("multiple_choice_options.question_id asc, multiple_choice_options.order_index asc").
		Find(&opts).Error
	return opts, err
}
