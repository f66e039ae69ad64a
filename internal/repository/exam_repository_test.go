package repository

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExamRepository_QuestionsAndOptionsOrdered(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	qs, err := f.exams.ListQuestions(ctx, f.exam.ID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, f.mcq.ID, qs[0].ID)
	assert.Equal(t, f.essay.ID, qs[1].ID)

	opts, err := f.exams.ListOptions(ctx, f.mcq.ID)
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "A", opts[0].OptionText)
	assert.True(t, opts[1].IsCorrect)

	all, err := f.exams.ListOptionsByExam(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestExamRepository_DuplicateOrderIndex(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	dup := &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "dup", QuestionType: model.Essay, Points: 1, OrderIndex: 1}
	assert.ErrorIs(t, f.exams.CreateQuestion(ctx, dup), util.ErrDuplicateOrderIndex)

	dupOpt := &model.MultipleChoiceOption{QuestionID: f.mcq.ID, OptionText: "C", OrderIndex: 2}
	assert.ErrorIs(t, f.exams.CreateOption(ctx, dupOpt), util.ErrDuplicateOrderIndex)
}

func TestExamRepository_SingleCorrectOption(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	second := &model.MultipleChoiceOption{QuestionID: f.mcq.ID, OptionText: "D", IsCorrect: true, OrderIndex: 3}
	assert.ErrorIs(t, f.exams.CreateOption(ctx, second), util.ErrMultipleCorrectOptions)

	orphan := &model.MultipleChoiceOption{QuestionID: 4242, OptionText: "X", IsCorrect: true, OrderIndex: 1}
	assert.ErrorIs(t, f.exams.CreateOption(ctx, orphan), util.ErrQuestionNotFound)
}

func TestExamRepository_DeleteExam(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	f.start(t, 7)
	assert.ErrorIs(t, f.exams.DeleteExam(ctx, f.exam.ID), util.ErrExamHasAttempts)

	other := &model.Exam{Title: "quiz", SubjectID: 1, CreatedBy: 1, TimeLimitMinutes: 5, AccessDeadline: t0, Status: model.ExamDraft}
	require.NoError(t, f.exams.CreateExam(ctx, other))
	q := &model.ExamQuestion{ExamID: other.ID, QuestionText: "q", QuestionType: model.MultipleChoice, Points: 1, OrderIndex: 1}
	require.NoError(t, f.exams.CreateQuestion(ctx, q))
	require.NoError(t, f.exams.CreateOption(ctx, &model.MultipleChoiceOption{QuestionID: q.ID, OptionText: "o", OrderIndex: 1}))

	require.NoError(t, f.exams.DeleteExam(ctx, other.ID))

	_, err := f.exams.FindExamByID(ctx, other.ID)
	assert.ErrorIs(t, err, util.ErrExamNotFound)
	_, err = f.exams.FindQuestionByID(ctx, q.ID)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
	opts, err := f.exams.ListOptions(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, opts)

	assert.ErrorIs(t, f.exams.DeleteExam(ctx, other.ID), util.ErrExamNotFound)
}

func TestExamRepository_ListBySubject(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	draft := &model.Exam{Title: "draft", SubjectID: 1, CreatedBy: 1, TimeLimitMinutes: 5, AccessDeadline: t0.Add(time.Hour), Status: model.ExamDraft}
	require.NoError(t, f.exams.CreateExam(ctx, draft))
	closed := &model.Exam{Title: "closed", SubjectID: 1, CreatedBy: 1, TimeLimitMinutes: 5, AccessDeadline: t0.Add(-time.Hour), Status: model.ExamActive}
	require.NoError(t, f.exams.CreateExam(ctx, closed))
	elsewhere := &model.Exam{Title: "other subject", SubjectID: 2, CreatedBy: 1, TimeLimitMinutes: 5, AccessDeadline: t0, Status: model.ExamActive}
	require.NoError(t, f.exams.CreateExam(ctx, elsewhere))

	all, err := f.exams.ListBySubject(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, closed.ID, all[0].ID)
	assert.Equal(t, draft.ID, all[1].ID)
	assert.Equal(t, f.exam.ID, all[2].ID)

	assert.ErrorIs(t, f.exams.UpdateExamStatus(ctx, 999, model.ExamActive), util.ErrExamNotFound)
}

func TestExamRepository_EditLockedByAttempts(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	f.start(t, 7)

	q := &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "late", QuestionType: model.Essay, Points: 5, OrderIndex: 3}
	assert.ErrorIs(t, f.exams.CreateQuestion(ctx, q), util.ErrExamLocked)
	assert.Zero(t, q.ID)

	o := &model.MultipleChoiceOption{QuestionID: f.mcq.ID, OptionText: "C", OrderIndex: 3}
	assert.ErrorIs(t, f.exams.CreateOption(ctx, o), util.ErrExamLocked)

	qs, err := f.exams.ListQuestions(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}

func TestExamRepository_EditLockedWhenExpired(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	require.NoError(t, f.exams.UpdateExamStatus(ctx, f.exam.ID, model.ExamExpired))

	q := &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "late", QuestionType: model.Essay, Points: 5, OrderIndex: 3}
	assert.ErrorIs(t, f.exams.CreateQuestion(ctx, q), util.ErrExamLocked)
	o := &model.MultipleChoiceOption{QuestionID: f.mcq.ID, OptionText: "C", OrderIndex: 3}
	assert.ErrorIs(t, f.exams.CreateOption(ctx, o), util.ErrExamLocked)

	orphan := &model.ExamQuestion{ExamID: 4242, QuestionText: "q", QuestionType: model.Essay, Points: 5, OrderIndex: 1}
	assert.ErrorIs(t, f.exams.CreateQuestion(ctx, orphan), util.ErrExamNotFound)
}

func TestExamRepository_TotalPointsCap(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	// 已有 10 + 20 分
	for i := 0; i < 9; i++ {
		q := &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "q", QuestionType: model.Essay, Points: model.MaxQuestionPoints, OrderIndex: 10 + i}
		require.NoError(t, f.exams.CreateQuestion(ctx, q))
	}
	// 930 分，再加 70 超过 999
	over := &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "q", QuestionType: model.Essay, Points: 70, OrderIndex: 30}
	assert.ErrorIs(t, f.exams.CreateQuestion(ctx, over), util.ErrExamPointsExceeded)

	fits := &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "q", QuestionType: model.Essay, Points: 69, OrderIndex: 30}
	require.NoError(t, f.exams.CreateQuestion(ctx, fits))
}
