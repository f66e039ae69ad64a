package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/repository"
	"edu_exam_backend/internal/util"
	"edu_exam_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// AnswerResult 答案连同题目信息；CorrectOptionID 对仍在进行中的考试向学生隐藏
type AnswerResult struct {
	model.ExamAnswer
	QuestionText    string             `json:"question_text"`
	QuestionType    model.QuestionType `json:"question_type"`
	Points          int                `json:"points"`
	OrderIndex      int                `json:"order_index"`
	CorrectOptionID *uint              `json:"correct_option_id,omitempty"`
}

type AttemptResult struct {
	Attempt   model.ExamAttempt `json:"attempt"`
	ExamTitle string            `json:"exam_title"`
	MaxScore  int               `json:"max_score"`
	Answers   []AnswerResult    `json:"answers"`
}

// ResultService 只读的成绩与作答记录查询
type ResultService struct {
	Repo   *repository.ExamAttemptRepository
	Exams  ExamDefinitions
	Policy *Policy
}

func NewResultService(repo *repository.ExamAttemptRepository, exams ExamDefinitions, policy *Policy) *ResultService {
	return &ResultService{Repo: repo, Exams: exams, Policy: policy}
}

// canView 本人、任课教师或管理员
func (s *ResultService) canView(ctx context.Context, actor *model.User, attempt *model.ExamAttempt, exam *model.Exam) (bool, error) {
	if s.Policy.Has(actor.Role, PermAttemptViewAll) {
		ok, err := s.Policy.CanManageSubject(ctx, actor, exam.SubjectID)
		if err != nil || ok {
			return ok, err
		}
	}
	return s.Policy.Has(actor.Role, PermAttemptViewOwn) && attempt.StudentID == actor.ID, nil
}

func (s *ResultService) GetResults(ctx context.Context, actorID, attemptID uint) (result *AttemptResult, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "ResultService.GetResults")
	span.SetAttributes(attribute.Int64("attempt_id", int64(attemptID)))
	defer tracing.EndSpan(span, &err)

	actor, err := s.Policy.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.Repo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	def, err := s.Exams.GetDefinition(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	exam := &def.Exam
	ok, err := s.canView(ctx, actor, attempt, exam)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrPermissionDenied
	}

	answers, err := s.Repo.GetAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	revealCorrect := actor.Role != model.Student || exam.Status != model.ExamActive
	result = &AttemptResult{
		Attempt:   *attempt,
		ExamTitle: exam.Title,
		MaxScore:  def.MaxScore(),
		Answers:   make([]AnswerResult, 0, len(answers)),
	}
	for _, a := range answers {
		q, ok := def.Question(a.QuestionID)
		if !ok {
			continue
		}
		ar := AnswerResult{
			ExamAnswer:   a,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Points:       q.Points,
			OrderIndex:   q.OrderIndex,
		}
		if revealCorrect && q.QuestionType == model.MultipleChoice {
			for _, o := range q.Options {
				if o.IsCorrect {
					id := o.ID
					ar.CorrectOptionID = &id
					break
				}
			}
		}
		result.Answers = append(result.Answers, ar)
	}
	return result, nil
}

// ListAttempts 学生只能看自己的；教师须指定考试且任教该科目；管理员不受限
func (s *ResultService) ListAttempts(ctx context.Context, actorID, studentID, examID uint) ([]model.ExamAttempt, error) {
	actor, err := s.Policy.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case model.Student:
		if studentID != 0 && studentID != actor.ID {
			return nil, util.ErrPermissionDenied
		}
		studentID = actor.ID
	case model.Teacher:
		if examID == 0 {
			return nil, util.NewValidationError("exam_id is required")
		}
		exam, err := s.Exams.GetExam(ctx, examID)
		if err != nil {
			return nil, err
		}
		ok, err := s.Policy.CanManageSubject(ctx, actor, exam.SubjectID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.ErrPermissionDenied
		}
	case model.Manager:
	default:
		return nil, util.ErrPermissionDenied
	}
	return s.Repo.List(ctx, studentID, examID)
}
