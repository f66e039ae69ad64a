package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/repository"
	"edu_exam_backend/internal/util"
	"edu_exam_backend/pkg/logger"
	"edu_exam_backend/pkg/monitoring"
	"edu_exam_backend/pkg/tracing"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ExamDefinitions 作答引擎读取考试定义的入口。
// 两个方法返回的考试行都必须来自数据库。
type ExamDefinitions interface {
	GetExam(ctx context.Context, examID uint) (*model.Exam, error)
	GetDefinition(ctx context.Context, examID uint) (*ExamDefinition, error)
}

type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, subjectID uint) (bool, error)
}

// AttemptService 考试作答状态机：开始、答题、交卷、主观题评分。
// 时限惰性判定，不存在后台扫描。
type AttemptService struct {
	Repo        *repository.ExamAttemptRepository
	Exams       ExamDefinitions
	Enrollments EnrollmentChecker
	Policy      *Policy
	clock       Clock
}

func NewAttemptService(repo *repository.ExamAttemptRepository, exams ExamDefinitions, enrollments EnrollmentChecker, policy *Policy, clock Clock) *AttemptService {
	return &AttemptService{Repo: repo, Exams: exams, Enrollments: enrollments, Policy: policy, clock: clock}
}

// SubmitAnswerRequest 选择题只填 selected_option_id，主观题只填 essay_answer
type SubmitAnswerRequest struct {
	QuestionID       uint    `json:"question_id" binding:"required"`
	SelectedOptionID *uint   `json:"selected_option_id"`
	EssayAnswer      *string `json:"essay_answer"`
}

type GradeEssayRequest struct {
	Score *decimal.Decimal `json:"score" binding:"required"`
}

func reject(operation string, err error, fields ...zap.Field) {
	monitoring.OperationRejections.WithLabelValues(operation, util.CodeOf(err)).Inc()
	logger.Log.Debug("Exam operation rejected", append(fields, zap.String("operation", operation), zap.Error(err))...)
}

// StartAttempt 检查顺序：考试存在 → 已发布 → 未过截止时间 → 已选课 → 无进行中的作答
func (s *AttemptService) StartAttempt(ctx context.Context, actorID, examID uint) (attempt *model.ExamAttempt, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.StartAttempt")
	span.SetAttributes(attribute.Int64("exam_id", int64(examID)), attribute.Int64("student_id", int64(actorID)))
	defer tracing.EndSpan(span, &err)
	defer func() {
		if err != nil {
			reject("start", err, zap.Uint("exam_id", examID), zap.Uint("student_id", actorID))
		}
	}()

	actor, err := s.Policy.Require(ctx, actorID, PermAttemptTake)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.Student {
		return nil, util.ErrPermissionDenied
	}

	exam, err := s.Exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamActive {
		return nil, util.ErrExamNotActive
	}
	now := s.clock.Now()
	if !exam.OpenAt(now) {
		return nil, util.ErrDeadlinePassed
	}
	enrolled, err := s.Enrollments.IsEnrolled(ctx, actor.ID, exam.SubjectID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, util.ErrNotEnrolled
	}

	existing, err := s.Repo.FindInProgress(ctx, examID, actor.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, util.ErrAttemptAlreadyInProgress
	}

	attempt = &model.ExamAttempt{
		ExamID:    examID,
		StudentID: actor.ID,
		StartedAt: now,
	}
	// 插入事务内复核考试状态；并发开始时由唯一索引兜底
	if err := s.Repo.Create(ctx, attempt); err != nil {
		return nil, err
	}

	monitoring.AttemptsStarted.Inc()
	logger.Log.Info("Exam attempt started",
		zap.Uint("attempt_id", attempt.ID),
		zap.Uint("exam_id", examID),
		zap.Uint("student_id", actor.ID),
		zap.Time("deadline", exam.AttemptDeadline(now)))
	return attempt, nil
}

// loadOwnAttempt 读取作答并确认属于调用者
func (s *AttemptService) loadOwnAttempt(ctx context.Context, actor *model.User, attemptID uint) (*model.ExamAttempt, error) {
	attempt, err := s.Repo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != actor.ID && actor.Role != model.Manager {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}

// SubmitAnswer 写入或覆盖某题答案；选择题立即计分，主观题分数留空
func (s *AttemptService) SubmitAnswer(ctx context.Context, actorID, attemptID uint, req SubmitAnswerRequest) (answer *model.ExamAnswer, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.SubmitAnswer")
	span.SetAttributes(attribute.Int64("attempt_id", int64(attemptID)), attribute.Int64("question_id", int64(req.QuestionID)))
	defer tracing.EndSpan(span, &err)
	defer func() {
		if err != nil {
			reject("submit_answer", err, zap.Uint("attempt_id", attemptID), zap.Uint("question_id", req.QuestionID))
		}
	}()

	actor, err := s.Policy.Require(ctx, actorID, PermAttemptTake)
	if err != nil {
		return nil, err
	}
	attempt, err := s.Repo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != actor.ID {
		return nil, util.ErrPermissionDenied
	}
	if attempt.IsCompleted {
		return nil, util.ErrAttemptCompleted
	}

	def, err := s.Exams.GetDefinition(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	deadline := def.Exam.AttemptDeadline(attempt.StartedAt)
	if now.After(deadline) {
		return nil, util.ErrTimeExpired
	}

	question, ok := def.Question(req.QuestionID)
	if !ok {
		return nil, util.ErrQuestionNotInExam
	}

	score, err := scoreAnswer(question, req)
	if err != nil {
		return nil, err
	}

	answer = &model.ExamAnswer{
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		Score:      score,
		AnsweredAt: now,
	}
	switch question.QuestionType {
	case model.MultipleChoice:
		answer.SelectedOptionID = req.SelectedOptionID
	case model.Essay:
		answer.EssayAnswer = req.EssayAnswer
	}

	if err := s.Repo.UpsertAnswer(ctx, answer, deadline); err != nil {
		return nil, err
	}

	monitoring.AnswersSubmitted.WithLabelValues(string(question.QuestionType)).Inc()
	logger.Log.Debug("Exam answer recorded",
		zap.Uint("attempt_id", attempt.ID),
		zap.Uint("question_id", question.ID),
		zap.String("score", answer.Score.String()))
	return answer, nil
}

// scoreAnswer 校验答案形态并计算选择题得分（单一正确选项）
func scoreAnswer(question *QuestionDefinition, req SubmitAnswerRequest) (model.Score, error) {
	hasOption := req.SelectedOptionID != nil
	hasEssay := req.EssayAnswer != nil

	switch question.QuestionType {
	case model.MultipleChoice:
		if !hasOption || hasEssay {
			return model.Score{}, util.ErrAnswerTypeMismatch
		}
		for _, o := range question.Options {
			if o.ID == *req.SelectedOptionID {
				if o.IsCorrect {
					return model.ScoreFromInt(question.Points), nil
				}
				return model.ScoreFromInt(0), nil
			}
		}
		return model.Score{}, util.ErrAnswerTypeMismatch
	case model.Essay:
		if !hasEssay || hasOption {
			return model.Score{}, util.ErrAnswerTypeMismatch
		}
		return model.Score{}, nil
	}
	return model.Score{}, util.ErrAnswerTypeMismatch
}

// FinalizeAttempt 交卷是单向迁移；超时后交卷仍被接受，以已有答案计分
func (s *AttemptService) FinalizeAttempt(ctx context.Context, actorID, attemptID uint) (attempt *model.ExamAttempt, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.FinalizeAttempt")
	span.SetAttributes(attribute.Int64("attempt_id", int64(attemptID)))
	defer tracing.EndSpan(span, &err)
	defer func() {
		if err != nil {
			reject("finalize", err, zap.Uint("attempt_id", attemptID))
		}
	}()

	actor, err := s.Policy.Require(ctx, actorID, PermAttemptTake)
	if err != nil {
		return nil, err
	}
	current, err := s.loadOwnAttempt(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}
	if current.IsCompleted {
		return nil, util.ErrAttemptAlreadyCompleted
	}
	exam, err := s.Exams.GetExam(ctx, current.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	attempt, err = s.Repo.Finalize(ctx, attemptID, now)
	if err != nil {
		return nil, err
	}

	monitoring.AttemptsFinalized.Inc()
	logger.Log.Info("Exam attempt finalized",
		zap.Uint("attempt_id", attempt.ID),
		zap.Uint("exam_id", attempt.ExamID),
		zap.Uint("student_id", attempt.StudentID),
		zap.String("total_score", attempt.TotalScore.String()),
		zap.Bool("late", now.After(exam.AttemptDeadline(attempt.StartedAt))))
	return attempt, nil
}

var maxEssayScore = decimal.NewFromInt(100)

// GradeEssay 交卷后为主观题打分并重算总分
func (s *AttemptService) GradeEssay(ctx context.Context, actorID, attemptID, questionID uint, score decimal.Decimal) (answer *model.ExamAnswer, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.GradeEssay")
	span.SetAttributes(attribute.Int64("attempt_id", int64(attemptID)), attribute.Int64("question_id", int64(questionID)))
	defer tracing.EndSpan(span, &err)
	defer func() {
		if err != nil {
			reject("grade_essay", err, zap.Uint("attempt_id", attemptID), zap.Uint("question_id", questionID))
		}
	}()

	grader, err := s.Policy.Require(ctx, actorID, PermAttemptGrade)
	if err != nil {
		return nil, err
	}
	current, err := s.Repo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	def, err := s.Exams.GetDefinition(ctx, current.ExamID)
	if err != nil {
		return nil, err
	}
	ok, err := s.Policy.CanManageSubject(ctx, grader, def.Exam.SubjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrPermissionDenied
	}

	question, found := def.Question(questionID)
	if !found {
		return nil, util.ErrQuestionNotInExam
	}
	if question.QuestionType != model.Essay {
		return nil, util.ErrAnswerTypeMismatch
	}

	points := decimal.NewFromInt(int64(question.Points))
	if score.IsNegative() || score.GreaterThan(points) || score.GreaterThan(maxEssayScore) {
		return nil, util.ErrInvalidScore
	}

	attempt, answer, err := s.Repo.GradeAnswer(ctx, attemptID, questionID, model.NewScore(score), grader.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	monitoring.EssaysGraded.Inc()
	logger.Log.Info("Essay graded",
		zap.Uint("attempt_id", attemptID),
		zap.Uint("question_id", questionID),
		zap.Uint("grader_id", grader.ID),
		zap.String("score", answer.Score.String()),
		zap.String("total_score", attempt.TotalScore.String()))
	return answer, nil
}

func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uint) (*model.ExamAttempt, error) {
	return s.Repo.FindByID(ctx, attemptID)
}

func (s *AttemptService) GetAnswers(ctx context.Context, attemptID uint) ([]model.ExamAnswer, error) {
	if _, err := s.Repo.FindByID(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.Repo.GetAnswers(ctx, attemptID)
}
