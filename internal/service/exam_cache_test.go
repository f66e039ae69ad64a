package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// afterQuestionsLoaded 在下一次读取 exam_questions 之后、回填缓存之前执行 fn 一次
func afterQuestionsLoaded(t *testing.T, db *gorm.DB, fn func()) {
	t.Helper()
	armed := true
	err := db.Callback().Query().After("gorm:query").Register("test:after_questions_"+t.Name(), func(tx *gorm.DB) {
		if !armed || tx.Statement.Table != "exam_questions" {
			return
		}
		armed = false
		fn()
	})
	require.NoError(t, err)
}

func TestExamDefinitionService_CacheHit(t *testing.T) {
	f, mr := newCachedEngineFixture(t)
	ctx := context.Background()

	def, err := f.exams.GetDefinition(ctx, f.exam.ID)
	require.NoError(t, err)
	require.Len(t, def.Questions, 2)
	assert.True(t, mr.Exists(definitionKey(f.exam.ID)))

	// 绕过服务直接写库，缓存命中时看不到这道题
	hidden := &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "hidden", QuestionType: model.Essay, Points: 5, OrderIndex: 5}
	require.NoError(t, f.examRepo.CreateQuestion(ctx, hidden))

	questions, err := f.exams.GetQuestions(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 2)

	options, err := f.exams.GetOptions(ctx, f.mcq.ID)
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.False(t, options[0].IsCorrect)
	assert.True(t, options[1].IsCorrect)

	// 题目缓存不影响考试行：状态变化立即可见
	require.NoError(t, f.examRepo.UpdateExamStatus(ctx, f.exam.ID, model.ExamExpired))
	def, err = f.exams.GetDefinition(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamExpired, def.Exam.Status)
	assert.Len(t, def.Questions, 2)
}

func TestExamDefinitionService_WritesInvalidateCache(t *testing.T) {
	f, mr := newCachedEngineFixture(t)
	ctx := context.Background()
	key := definitionKey(f.exam.ID)

	warm := func() {
		t.Helper()
		_, err := f.exams.GetDefinition(ctx, f.exam.ID)
		require.NoError(t, err)
		require.True(t, mr.Exists(key))
	}

	warm()
	_, err := f.exams.AddQuestion(ctx, f.teacher.ID, f.exam.ID, AddQuestionRequest{QuestionText: "new", QuestionType: model.Essay, Points: 5, OrderIndex: 3})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "AddQuestion")
	questions, err := f.exams.GetQuestions(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 3)

	warm()
	_, err = f.exams.AddOption(ctx, f.teacher.ID, f.mcq.ID, AddOptionRequest{OptionText: "C", OrderIndex: 3})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "AddOption")
	options, err := f.exams.GetOptions(ctx, f.mcq.ID)
	require.NoError(t, err)
	assert.Len(t, options, 3)

	warm()
	_, err = f.exams.UpdateExamStatus(ctx, f.teacher.ID, f.exam.ID, model.ExamDraft)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "UpdateExamStatus")

	warm()
	require.NoError(t, f.exams.DeleteExam(ctx, f.teacher.ID, f.exam.ID))
	assert.False(t, mr.Exists(key), "DeleteExam")
	_, err = f.exams.GetDefinition(ctx, f.exam.ID)
	assert.ErrorIs(t, err, util.ErrExamNotFound)
}

func TestExamDefinitionService_ConcurrentEditNotRecached(t *testing.T) {
	f, mr := newCachedEngineFixture(t)
	ctx := context.Background()

	afterQuestionsLoaded(t, f.db, func() {
		_, err := f.exams.AddQuestion(ctx, f.teacher.ID, f.exam.ID, AddQuestionRequest{QuestionText: "racing", QuestionType: model.Essay, Points: 5, OrderIndex: 3})
		require.NoError(t, err)
	})

	// 这次读取拿到的是编辑前的题目，但不能把它写回缓存
	def, err := f.exams.GetDefinition(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, def.Questions, 2)
	assert.False(t, mr.Exists(definitionKey(f.exam.ID)))

	questions, err := f.exams.GetQuestions(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 3)
}

func TestAttemptService_StartUsesCurrentExamStatus(t *testing.T) {
	f, _ := newCachedEngineFixture(t)
	ctx := context.Background()

	// 读者加载定义期间教师关闭考试
	afterQuestionsLoaded(t, f.db, func() {
		_, err := f.exams.UpdateExamStatus(ctx, f.teacher.ID, f.exam.ID, model.ExamExpired)
		require.NoError(t, err)
	})
	_, err := f.exams.GetExamPaper(ctx, f.teacher.ID, f.exam.ID)
	require.NoError(t, err)

	_, err = f.attempts.StartAttempt(ctx, f.student.ID, f.exam.ID)
	assert.ErrorIs(t, err, util.ErrExamNotActive)

	// 缓存仍是预热状态时直接改库，同样以库为准
	_, err = f.exams.UpdateExamStatus(ctx, f.teacher.ID, f.exam.ID, model.ExamActive)
	require.NoError(t, err)
	_, err = f.exams.GetDefinition(ctx, f.exam.ID)
	require.NoError(t, err)
	require.NoError(t, f.examRepo.UpdateExamStatus(ctx, f.exam.ID, model.ExamDraft))

	_, err = f.attempts.StartAttempt(ctx, f.student.ID, f.exam.ID)
	assert.ErrorIs(t, err, util.ErrExamNotActive)
}

func TestAttemptService_QuestionLookupsServedFromDefinition(t *testing.T) {
	f, _ := newCachedEngineFixture(t)
	ctx := context.Background()
	attempt := f.start(t)
	_, err := f.exams.GetDefinition(ctx, f.exam.ID)
	require.NoError(t, err)

	lookups := 0
	err = f.db.Callback().Query().After("gorm:query").Register("test:count_question_reads", func(tx *gorm.DB) {
		switch tx.Statement.Table {
		case "exam_questions", "multiple_choice_options":
			lookups++
		}
	})
	require.NoError(t, err)

	_, err = f.attempts.SubmitAnswer(ctx, f.student.ID, attempt.ID, SubmitAnswerRequest{QuestionID: f.mcq.ID, SelectedOptionID: uintPtr(f.optB.ID)})
	require.NoError(t, err)
	_, err = f.attempts.SubmitAnswer(ctx, f.student.ID, attempt.ID, SubmitAnswerRequest{QuestionID: f.essay.ID, EssayAnswer: strPtr("text")})
	require.NoError(t, err)
	_, err = f.attempts.FinalizeAttempt(ctx, f.student.ID, attempt.ID)
	require.NoError(t, err)
	res, err := f.results.GetResults(ctx, f.teacher.ID, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, res.MaxScore)

	assert.Zero(t, lookups)
}
