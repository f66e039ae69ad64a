package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/repository"
	"edu_exam_backend/internal/util"
	"edu_exam_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CourseDirectory 科目与选课事实
type CourseDirectory interface {
	GetSubject(ctx context.Context, subjectID uint) (*model.Subject, error)
	IsEnrolled(ctx context.Context, studentID, subjectID uint) (bool, error)
}

// ExamDefinitionService 维护考试、题目与选项。
// 考试行总是读库；题目与选项经过 DefinitionCache。
type ExamDefinitionService struct {
	Repo      *repository.ExamRepository
	Directory CourseDirectory
	Policy    *Policy
	Cache     *DefinitionCache
	clock     Clock
}

func NewExamDefinitionService(repo *repository.ExamRepository, directory CourseDirectory, policy *Policy, cache *DefinitionCache, clock Clock) *ExamDefinitionService {
	return &ExamDefinitionService{Repo: repo, Directory: directory, Policy: policy, Cache: cache, clock: clock}
}

type CreateExamRequest struct {
	Title            string           `json:"title" binding:"required"`
	Description      *string          `json:"description"`
	SubjectID        uint             `json:"subject_id" binding:"required"`
	TimeLimitMinutes int              `json:"time_limit_minutes" binding:"required,gt=0"`
	AccessDeadline   time.Time        `json:"access_deadline" binding:"required"`
	Status           model.ExamStatus `json:"status"`
}

type UpdateExamStatusRequest struct {
	Status model.ExamStatus `json:"status" binding:"required"`
}

type AddQuestionRequest struct {
	QuestionText string             `json:"question_text" binding:"required"`
	QuestionType model.QuestionType `json:"question_type" binding:"required"`
	Points       int                `json:"points" binding:"required,gt=0,lte=100"`
	OrderIndex   int                `json:"order_index" binding:"gte=0"`
}

type AddOptionRequest struct {
	OptionText string `json:"option_text" binding:"required"`
	IsCorrect  bool   `json:"is_correct"`
	OrderIndex int    `json:"order_index" binding:"gte=0"`
}

// PaperOption 试卷中的选项；IsCorrect 对学生隐藏
type PaperOption struct {
	ID         uint   `json:"id"`
	OptionText string `json:"option_text"`
	OrderIndex int    `json:"order_index"`
	IsCorrect  *bool  `json:"is_correct,omitempty"`
}

type PaperQuestion struct {
	ID           uint               `json:"id"`
	QuestionText string             `json:"question_text"`
	QuestionType model.QuestionType `json:"question_type"`
	Points       int                `json:"points"`
	OrderIndex   int                `json:"order_index"`
	Options      []PaperOption      `json:"options,omitempty"`
}

type ExamPaper struct {
	Exam      model.Exam      `json:"exam"`
	Questions []PaperQuestion `json:"questions"`
}

func (s *ExamDefinitionService) CreateExam(ctx context.Context, actorID uint, req CreateExamRequest) (*model.Exam, error) {
	actor, err := s.Policy.RequireSubject(ctx, actorID, PermExamManage, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Directory.GetSubject(ctx, req.SubjectID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, util.NewValidationError("title is required")
	}
	if req.TimeLimitMinutes <= 0 {
		return nil, util.NewValidationError("time_limit_minutes must be positive")
	}
	if req.AccessDeadline.IsZero() {
		return nil, util.NewValidationError("access_deadline is required")
	}
	status := req.Status
	if status == "" {
		status = model.ExamDraft
	}
	if !status.Valid() {
		return nil, util.NewValidationError("status must be one of draft, active, expired")
	}

	exam := &model.Exam{
		Title:            title,
		Description:      req.Description,
		SubjectID:        req.SubjectID,
		CreatedBy:        actor.ID,
		TimeLimitMinutes: req.TimeLimitMinutes,
		AccessDeadline:   req.AccessDeadline.UTC(),
		Status:           status,
	}
	if err := s.Repo.CreateExam(ctx, exam); err != nil {
		return nil, err
	}

	logger.Log.Info("Exam created", zap.Uint("exam_id", exam.ID), zap.Uint("subject_id", exam.SubjectID), zap.Uint("actor_id", actor.ID))
	return exam, nil
}

// UpdateExamStatus 已有作答的考试不能退回草稿
func (s *ExamDefinitionService) UpdateExamStatus(ctx context.Context, actorID, examID uint, status model.ExamStatus) (*model.Exam, error) {
	exam, err := s.Repo.FindExamByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Policy.RequireSubject(ctx, actorID, PermExamManage, exam.SubjectID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, util.NewValidationError("status must be one of draft, active, expired")
	}

	if status == model.ExamDraft && exam.Status != model.ExamDraft {
		attempts, err := s.Repo.CountAttempts(ctx, examID)
		if err != nil {
			return nil, err
		}
		if attempts > 0 {
			return nil, util.ErrInvalidStatusChange
		}
	}

	if err := s.Repo.UpdateExamStatus(ctx, examID, status); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, examID)

	logger.Log.Info("Exam status changed", zap.Uint("exam_id", examID), zap.String("from", string(exam.Status)), zap.String("to", string(status)))
	exam.Status = status
	return exam, nil
}

func (s *ExamDefinitionService) DeleteExam(ctx context.Context, actorID, examID uint) error {
	exam, err := s.Repo.FindExamByID(ctx, examID)
	if err != nil {
		return err
	}
	if _, err := s.Policy.RequireSubject(ctx, actorID, PermExamManage, exam.SubjectID); err != nil {
		return err
	}
	if err := s.Repo.DeleteExam(ctx, examID); err != nil {
		return err
	}
	s.Cache.Invalidate(ctx, examID)

	logger.Log.Info("Exam deleted", zap.Uint("exam_id", examID), zap.Uint("actor_id", actorID))
	return nil
}

func (s *ExamDefinitionService) AddQuestion(ctx context.Context, actorID, examID uint, req AddQuestionRequest) (*model.ExamQuestion, error) {
	exam, err := s.Repo.FindExamByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Policy.RequireSubject(ctx, actorID, PermExamManage, exam.SubjectID); err != nil {
		return nil, err
	}

	if !req.QuestionType.Valid() {
		return nil, util.NewValidationError("question_type must be multiple_choice or essay")
	}
	if req.Points <= 0 || req.Points > model.MaxQuestionPoints {
		return nil, util.NewValidationError("points must be between 1 and 100")
	}
	text := strings.TrimSpace(req.QuestionText)
	if text == "" {
		return nil, util.NewValidationError("question_text is required")
	}

	question := &model.ExamQuestion{
		ExamID:       examID,
		QuestionText: text,
		QuestionType: req.QuestionType,
		Points:       req.Points,
		OrderIndex:   req.OrderIndex,
	}
	// 可编辑性与总分上限在插入事务内复核
	if err := s.Repo.CreateQuestion(ctx, question); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, examID)
	return question, nil
}

func (s *ExamDefinitionService) AddOption(ctx context.Context, actorID, questionID uint, req AddOptionRequest) (*model.MultipleChoiceOption, error) {
	question, err := s.Repo.FindQuestionByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	exam, err := s.Repo.FindExamByID(ctx, question.ExamID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Policy.RequireSubject(ctx, actorID, PermExamManage, exam.SubjectID); err != nil {
		return nil, err
	}
	if question.QuestionType != model.MultipleChoice {
		return nil, util.ErrOptionsOnEssay
	}
	text := strings.TrimSpace(req.OptionText)
	if text == "" {
		return nil, util.NewValidationError("option_text is required")
	}

	option := &model.MultipleChoiceOption{
		QuestionID: questionID,
		OptionText: text,
		IsCorrect:  req.IsCorrect,
		OrderIndex: req.OrderIndex,
	}
	if err := s.Repo.CreateOption(ctx, option); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, exam.ID)
	return option, nil
}

// GetDefinition 考试行读库，题目与选项优先命中缓存
func (s *ExamDefinitionService) GetDefinition(ctx context.Context, examID uint) (*ExamDefinition, error) {
	exam, err := s.Repo.FindExamByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	def := &ExamDefinition{Exam: *exam}
	if questions, ok := s.Cache.Get(ctx, examID); ok {
		def.Questions = questions
		return def, nil
	}

	gen := s.Cache.Generation(ctx, examID)
	questions, err := s.Repo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	options, err := s.Repo.ListOptionsByExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[uint][]model.MultipleChoiceOption, len(questions))
	for _, o := range options {
		byQuestion[o.QuestionID] = append(byQuestion[o.QuestionID], o)
	}
	def.Questions = make([]QuestionDefinition, 0, len(questions))
	for _, q := range questions {
		def.Questions = append(def.Questions, QuestionDefinition{ExamQuestion: q, Options: byQuestion[q.ID]})
	}

	s.Cache.Set(ctx, examID, def.Questions, gen)
	return def, nil
}

// GetExam 不经过缓存，状态与截止时间检查以它为准
func (s *ExamDefinitionService) GetExam(ctx context.Context, examID uint) (*model.Exam, error) {
	return s.Repo.FindExamByID(ctx, examID)
}

// GetQuestions 按 order_index 升序
func (s *ExamDefinitionService) GetQuestions(ctx context.Context, examID uint) ([]model.ExamQuestion, error) {
	def, err := s.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	questions := make([]model.ExamQuestion, 0, len(def.Questions))
	for _, q := range def.Questions {
		questions = append(questions, q.ExamQuestion)
	}
	return questions, nil
}

// GetOptions 按 order_index 升序
func (s *ExamDefinitionService) GetOptions(ctx context.Context, questionID uint) ([]model.MultipleChoiceOption, error) {
	question, err := s.Repo.FindQuestionByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	def, err := s.GetDefinition(ctx, question.ExamID)
	if err != nil {
		return nil, err
	}
	if q, ok := def.Question(questionID); ok {
		return q.Options, nil
	}
	return s.Repo.ListOptions(ctx, questionID)
}

// authorizeRead 教师须任教该科目；学生须已选课且看不到草稿
func (s *ExamDefinitionService) authorizeRead(ctx context.Context, actorID uint, exam *model.Exam) (*model.User, error) {
	actor, err := s.Policy.Require(ctx, actorID, PermExamView)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.Manager, model.Teacher:
		ok, err := s.Policy.CanManageSubject(ctx, actor, exam.SubjectID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.ErrPermissionDenied
		}
	case model.Student:
		if exam.Status == model.ExamDraft {
			return nil, util.ErrExamNotFound
		}
		enrolled, err := s.Directory.IsEnrolled(ctx, actor.ID, exam.SubjectID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			return nil, util.ErrNotEnrolled
		}
	default:
		return nil, util.ErrPermissionDenied
	}
	return actor, nil
}

func (s *ExamDefinitionService) ViewExam(ctx context.Context, actorID, examID uint) (*model.Exam, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeRead(ctx, actorID, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

// ListExamsBySubject 学生只能看到当前可开始作答的考试
func (s *ExamDefinitionService) ListExamsBySubject(ctx context.Context, actorID, subjectID uint) ([]model.Exam, error) {
	actor, err := s.Policy.Require(ctx, actorID, PermExamView)
	if err != nil {
		return nil, err
	}
	if _, err := s.Directory.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	openOnly := false
	switch actor.Role {
	case model.Manager, model.Teacher:
		ok, err := s.Policy.CanManageSubject(ctx, actor, subjectID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.ErrPermissionDenied
		}
	case model.Student:
		enrolled, err := s.Directory.IsEnrolled(ctx, actor.ID, subjectID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			return nil, util.ErrNotEnrolled
		}
		openOnly = true
	default:
		return nil, util.ErrPermissionDenied
	}

	exams, err := s.Repo.ListBySubject(ctx, subjectID)
	if err != nil || !openOnly {
		return exams, err
	}
	now := s.clock.Now()
	open := make([]model.Exam, 0, len(exams))
	for i := range exams {
		if exams[i].OpenAt(now) {
			open = append(open, exams[i])
		}
	}
	return open, nil
}

// GetExamPaper 题目与选项；学生视图去掉正确答案标记
func (s *ExamDefinitionService) GetExamPaper(ctx context.Context, actorID, examID uint) (*ExamPaper, error) {
	def, err := s.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authorizeRead(ctx, actorID, &def.Exam)
	if err != nil {
		return nil, err
	}
	revealCorrect := actor.Role != model.Student

	paper := &ExamPaper{Exam: def.Exam, Questions: make([]PaperQuestion, 0, len(def.Questions))}
	for _, q := range def.Questions {
		pq := PaperQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Points:       q.Points,
			OrderIndex:   q.OrderIndex,
		}
		for _, o := range q.Options {
			po := PaperOption{ID: o.ID, OptionText: o.OptionText, OrderIndex: o.OrderIndex}
			if revealCorrect {
				correct := o.IsCorrect
				po.IsCorrect = &correct
			}
			pq.Options = append(pq.Options, po)
		}
		paper.Questions = append(paper.Questions, pq)
	}
	return paper, nil
}
