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

// ExamAttemptRepository 作答记录与答案的持久化，所有状态迁移在此以原子方式完成
type ExamAttemptRepository struct {
	DB *gorm.DB
}

func NewExamAttemptRepository(db *gorm.DB) *ExamAttemptRepository {
	return &ExamAttemptRepository{DB: db}
}

// Create 插入进行中的作答。
// 事务内以共享锁读取考试行并复核可开始作答，与题目编辑互斥；唯一索引冲突即已有进行中的作答。
func (r *ExamAttemptRepository) Create(ctx context.Context, attempt *model.ExamAttempt) error {
	key := model.InProgressKey(attempt.ExamID, attempt.StudentID)
	attempt.InProgressKey = &key
	attempt.IsCompleted = false
	attempt.SubmittedAt = nil
	attempt.TotalScore = model.Score{}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exam model.Exam
		if err := lockForShare(tx).First(&exam, attempt.ExamID).Error; err != nil {
			return notFound(err, util.ErrExamNotFound)
		}
		if exam.Status != model.ExamActive {
			return util.ErrExamNotActive
		}
		if !exam.OpenAt(attempt.StartedAt) {
			return util.ErrDeadlinePassed
		}

		if err := tx.Create(attempt).Error; err != nil {
			if IsUniqueViolation(err) {
				return util.ErrAttemptAlreadyInProgress
			}
			return fmt.Errorf("create attempt: %w", err)
		}
		return nil
	})
}

func (r *ExamAttemptRepository) FindByID(ctx context.Context, id uint) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err, util.ErrAttemptNotFound)
	}
	return &a, nil
}

// FindInProgress 返回 (exam, student) 当前未完成的作答，不存在时返回 nil
func (r *ExamAttemptRepository) FindInProgress(ctx context.Context, examID, studentID uint) (*model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Where("exam_id = ? AND student_id = ? AND is_completed = ?", examID, studentID, false).
		Limit(1).Find(&attempts).Error
	if err != nil || len(attempts) == 0 {
		return nil, err
	}
	return &attempts[0], nil
}

// List 按开始时间倒序列出作答；studentID/examID 为 0 表示不过滤
func (r *ExamAttemptRepository) List(ctx context.Context, studentID, examID uint) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	query := r.DB.WithContext(ctx)
	if studentID != 0 {
		query = query.Where("student_id = ?", studentID)
	}
	if examID != 0 {
		query = query.Where("exam_id = ?", examID)
	}
	err := query.Order("started_at desc, id desc").Find(&attempts).Error
	return attempts, err
}

// GetAnswers 按题目顺序返回作答的全部答案
func (r *ExamAttemptRepository) GetAnswers(ctx context.Context, attemptID uint) ([]model.ExamAnswer, error) {
	var answers []model.ExamAnswer
	err := r.DB.WithContext(ctx).
		Joins("JOIN exam_questions q ON q.id = exam_answers.question_id").
		Where("exam_answers.attempt_id = ?", attemptID).
		Order("q.order_index asc, exam_answers.id asc").
		Find(&answers).Error
	return answers, err
}

func (r *ExamAttemptRepository) FindAnswer(ctx context.Context, attemptID, questionID uint) (*model.ExamAnswer, error) {
	var answer model.ExamAnswer
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		return nil, notFound(err, util.ErrAnswerNotFound)
	}
	return &answer, nil
}

// UpsertAnswer 写入或覆盖 (attempt, question) 的答案。
// 事务内先锁定作答行并复核状态与时限，与并发的交卷互斥。
func (r *ExamAttemptRepository) UpsertAnswer(ctx context.Context, answer *model.ExamAnswer, deadline time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt model.ExamAttempt
		if err := lockForUpdate(tx).First(&attempt, answer.AttemptID).Error; err != nil {
			return notFound(err, util.ErrAttemptNotFound)
		}
		if attempt.IsCompleted {
			return util.ErrAttemptCompleted
		}
		if answer.AnsweredAt.After(deadline) {
			return util.ErrTimeExpired
		}

		answer.GradedBy = nil
		answer.GradedAt = nil
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"selected_option_id", "essay_answer", "score", "answered_at", "graded_by", "graded_at",
			}),
		}).Create(answer).Error
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}

		var stored model.ExamAnswer
		if err := tx.Where("attempt_id = ? AND question_id = ?", answer.AttemptID, answer.QuestionID).First(&stored).Error; err != nil {
			return err
		}
		*answer = stored
		return nil
	})
}

// Finalize 以 is_completed=false 为条件的比较并交换：
// 汇总已评分答案写入总分，清除进行中标记。重复交卷返回 ErrAttemptAlreadyCompleted。
func (r *ExamAttemptRepository) Finalize(ctx context.Context, attemptID uint, submittedAt time.Time) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&attempt, attemptID).Error; err != nil {
			return notFound(err, util.ErrAttemptNotFound)
		}
		if attempt.IsCompleted {
			return util.ErrAttemptAlreadyCompleted
		}

		var answers []model.ExamAnswer
		if err := tx.Where("attempt_id = ?", attemptID).Find(&answers).Error; err != nil {
			return err
		}
		total := model.SumScores(answers)

		res := tx.Model(&model.ExamAttempt{}).
			Where("id = ? AND is_completed = ?", attemptID, false).
			Updates(map[string]interface{}{
				"is_completed":    true,
				"submitted_at":    submittedAt,
				"total_score":     total,
				"in_progress_key": nil,
			})
		if res.Error != nil {
			return fmt.Errorf("finalize attempt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return util.ErrAttemptAlreadyCompleted
		}

		attempt.IsCompleted = true
		attempt.SubmittedAt = &submittedAt
		attempt.TotalScore = total
		attempt.InProgressKey = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GradeAnswer 为已完成作答中的答案打分，并在同一事务内重算总分
func (r *ExamAttemptRepository) GradeAnswer(ctx context.Context, attemptID, questionID uint, score model.Score, graderID uint, gradedAt time.Time) (*model.ExamAttempt, *model.ExamAnswer, error) {
	var attempt model.ExamAttempt
	var answer model.ExamAnswer
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&attempt, attemptID).Error; err != nil {
			return notFound(err, util.ErrAttemptNotFound)
		}
		if !attempt.IsCompleted {
			return util.ErrAttemptNotCompleted
		}

		if err := tx.Where("attempt_id = ? AND question_id = ?", attemptID, questionID).First(&answer).Error; err != nil {
			return notFound(err, util.ErrAnswerNotFound)
		}
		err := tx.Model(&answer).Updates(map[string]interface{}{
			"score":     score,
			"graded_by": graderID,
			"graded_at": gradedAt,
		}).Error
		if err != nil {
			return fmt.Errorf("grade answer: %w", err)
		}
		answer.Score = score
		answer.GradedBy = &graderID
		answer.GradedAt = &gradedAt

		var answers []model.ExamAnswer
		if err := tx.Where("attempt_id = ?", attemptID).Find(&answers).Error; err != nil {
			return err
		}
		total := model.SumScores(answers)
		if err := tx.Model(&attempt).Update("total_score", total).Error; err != nil {
			return fmt.Errorf("update total score: %w", err)
		}
		attempt.TotalScore = total
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &attempt, &answer, nil
}
