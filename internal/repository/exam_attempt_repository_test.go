package repository

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/testutil"
	"edu_exam_backend/internal/util"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type attemptFixture struct {
	exams    *ExamRepository
	attempts *ExamAttemptRepository
	exam     *model.Exam
	mcq      *model.ExamQuestion
	essay    *model.ExamQuestion
	correct  *model.MultipleChoiceOption
	wrong    *model.MultipleChoiceOption
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	f := &attemptFixture{
		exams:    NewExamRepository(db),
		attempts: NewExamAttemptRepository(db),
	}

	f.exam = &model.Exam{
		Title:            "期中测验",
		SubjectID:        1,
		CreatedBy:        1,
		TimeLimitMinutes: 30,
		AccessDeadline:   t0.Add(24 * time.Hour),
		Status:           model.ExamActive,
	}
	require.NoError(t, f.exams.CreateExam(ctx, f.exam))

	f.mcq = &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "2+2?", QuestionType: model.MultipleChoice, Points: 10, OrderIndex: 1}
	require.NoError(t, f.exams.CreateQuestion(ctx, f.mcq))
	f.essay = &model.ExamQuestion{ExamID: f.exam.ID, QuestionText: "Explain", QuestionType: model.Essay, Points: 20, OrderIndex: 2}
	require.NoError(t, f.exams.CreateQuestion(ctx, f.essay))

	f.wrong = &model.MultipleChoiceOption{QuestionID: f.mcq.ID, OptionText: "A", OrderIndex: 1}
	require.NoError(t, f.exams.CreateOption(ctx, f.wrong))
	f.correct = &model.MultipleChoiceOption{QuestionID: f.mcq.ID, OptionText: "B", IsCorrect: true, OrderIndex: 2}
	require.NoError(t, f.exams.CreateOption(ctx, f.correct))
	return f
}

func (f *attemptFixture) start(t *testing.T, studentID uint) *model.ExamAttempt {
	t.Helper()
	a := &model.ExamAttempt{ExamID: f.exam.ID, StudentID: studentID, StartedAt: t0}
	require.NoError(t, f.attempts.Create(context.Background(), a))
	return a
}

func TestExamAttemptRepository_CreateRejectsSecondInProgress(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	first := f.start(t, 7)
	assert.NotZero(t, first.ID)
	assert.False(t, first.IsCompleted)
	assert.False(t, first.TotalScore.Valid)

	second := &model.ExamAttempt{ExamID: f.exam.ID, StudentID: 7, StartedAt: t0.Add(31 * time.Minute)}
	err := f.attempts.Create(ctx, second)
	assert.ErrorIs(t, err, util.ErrAttemptAlreadyInProgress)

	// 其他学生不受影响
	f.start(t, 8)

	_, err = f.attempts.Finalize(ctx, first.ID, t0.Add(10*time.Minute))
	require.NoError(t, err)

	again := f.start(t, 7)
	assert.NotEqual(t, first.ID, again.ID)

	inProgress, err := f.attempts.FindInProgress(ctx, f.exam.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, inProgress)
	assert.Equal(t, again.ID, inProgress.ID)
}

func TestExamAttemptRepository_CreateRechecksExam(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	late := &model.ExamAttempt{ExamID: f.exam.ID, StudentID: 7, StartedAt: t0.Add(25 * time.Hour)}
	assert.ErrorIs(t, f.attempts.Create(ctx, late), util.ErrDeadlinePassed)

	require.NoError(t, f.exams.UpdateExamStatus(ctx, f.exam.ID, model.ExamExpired))
	closed := &model.ExamAttempt{ExamID: f.exam.ID, StudentID: 7, StartedAt: t0}
	assert.ErrorIs(t, f.attempts.Create(ctx, closed), util.ErrExamNotActive)

	missing := &model.ExamAttempt{ExamID: 4242, StudentID: 7, StartedAt: t0}
	assert.ErrorIs(t, f.attempts.Create(ctx, missing), util.ErrExamNotFound)

	inProgress, err := f.attempts.FindInProgress(ctx, f.exam.ID, 7)
	require.NoError(t, err)
	assert.Nil(t, inProgress)
}

func TestExamAttemptRepository_UpsertAnswerReplaces(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	a := f.start(t, 7)
	deadline := f.exam.AttemptDeadline(a.StartedAt)

	first := &model.ExamAnswer{AttemptID: a.ID, QuestionID: f.mcq.ID, SelectedOptionID: &f.wrong.ID, Score: model.ScoreFromInt(0), AnsweredAt: t0.Add(2 * time.Minute)}
	require.NoError(t, f.attempts.UpsertAnswer(ctx, first, deadline))

	second := &model.ExamAnswer{AttemptID: a.ID, QuestionID: f.mcq.ID, SelectedOptionID: &f.correct.ID, Score: model.ScoreFromInt(10), AnsweredAt: t0.Add(5 * time.Minute)}
	require.NoError(t, f.attempts.UpsertAnswer(ctx, second, deadline))
	assert.Equal(t, first.ID, second.ID)

	answers, err := f.attempts.GetAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].SelectedOptionID)
	assert.Equal(t, f.correct.ID, *answers[0].SelectedOptionID)
	assert.Equal(t, "10.00", answers[0].Score.String())
}

func TestExamAttemptRepository_UpsertAnswerAfterDeadline(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	a := f.start(t, 7)
	deadline := f.exam.AttemptDeadline(a.StartedAt)

	ok := &model.ExamAnswer{AttemptID: a.ID, QuestionID: f.mcq.ID, SelectedOptionID: &f.wrong.ID, Score: model.ScoreFromInt(0), AnsweredAt: t0.Add(5 * time.Minute)}
	require.NoError(t, f.attempts.UpsertAnswer(ctx, ok, deadline))

	late := &model.ExamAnswer{AttemptID: a.ID, QuestionID: f.mcq.ID, SelectedOptionID: &f.correct.ID, Score: model.ScoreFromInt(10), AnsweredAt: t0.Add(31 * time.Minute)}
	assert.ErrorIs(t, f.attempts.UpsertAnswer(ctx, late, deadline), util.ErrTimeExpired)

	stored, err := f.attempts.FindAnswer(ctx, a.ID, f.mcq.ID)
	require.NoError(t, err)
	assert.Equal(t, f.wrong.ID, *stored.SelectedOptionID)
	assert.Equal(t, "0.00", stored.Score.String())
}

func TestExamAttemptRepository_FinalizeOnce(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	a := f.start(t, 7)
	deadline := f.exam.AttemptDeadline(a.StartedAt)

	require.NoError(t, f.attempts.UpsertAnswer(ctx, &model.ExamAnswer{
		AttemptID: a.ID, QuestionID: f.mcq.ID, SelectedOptionID: &f.correct.ID,
		Score: model.ScoreFromInt(10), AnsweredAt: t0.Add(5 * time.Minute),
	}, deadline))
	essay := "because"
	require.NoError(t, f.attempts.UpsertAnswer(ctx, &model.ExamAnswer{
		AttemptID: a.ID, QuestionID: f.essay.ID, EssayAnswer: &essay, AnsweredAt: t0.Add(6 * time.Minute),
	}, deadline))

	done, err := f.attempts.Finalize(ctx, a.ID, t0.Add(6*time.Minute))
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	assert.Equal(t, "10.00", done.TotalScore.String())

	_, err = f.attempts.Finalize(ctx, a.ID, t0.Add(7*time.Minute))
	assert.ErrorIs(t, err, util.ErrAttemptAlreadyCompleted)

	stored, err := f.attempts.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)
	assert.Nil(t, stored.InProgressKey)
	assert.Equal(t, "10.00", stored.TotalScore.String())
	require.NotNil(t, stored.SubmittedAt)
	assert.True(t, stored.SubmittedAt.Equal(t0.Add(6*time.Minute)))

	err = f.attempts.UpsertAnswer(ctx, &model.ExamAnswer{
		AttemptID: a.ID, QuestionID: f.mcq.ID, SelectedOptionID: &f.wrong.ID,
		Score: model.ScoreFromInt(0), AnsweredAt: t0.Add(8 * time.Minute),
	}, deadline)
	assert.ErrorIs(t, err, util.ErrAttemptCompleted)
}

func TestExamAttemptRepository_FinalizeUnknown(t *testing.T) {
	f := newAttemptFixture(t)
	_, err := f.attempts.Finalize(context.Background(), 999, t0)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestExamAttemptRepository_GradeAnswerRecomputesTotal(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	a := f.start(t, 7)
	deadline := f.exam.AttemptDeadline(a.StartedAt)

	require.NoError(t, f.attempts.UpsertAnswer(ctx, &model.ExamAnswer{
		AttemptID: a.ID, QuestionID: f.mcq.ID, SelectedOptionID: &f.correct.ID,
		Score: model.ScoreFromInt(10), AnsweredAt: t0.Add(time.Minute),
	}, deadline))
	essay := "long answer"
	require.NoError(t, f.attempts.UpsertAnswer(ctx, &model.ExamAnswer{
		AttemptID: a.ID, QuestionID: f.essay.ID, EssayAnswer: &essay, AnsweredAt: t0.Add(2 * time.Minute),
	}, deadline))

	_, _, err := f.attempts.GradeAnswer(ctx, a.ID, f.essay.ID, model.NewScore(decimal.RequireFromString("12.5")), 1, t0.Add(time.Hour))
	assert.ErrorIs(t, err, util.ErrAttemptNotCompleted)

	_, err = f.attempts.Finalize(ctx, a.ID, t0.Add(3*time.Minute))
	require.NoError(t, err)

	attempt, answer, err := f.attempts.GradeAnswer(ctx, a.ID, f.essay.ID, model.NewScore(decimal.RequireFromString("12.5")), 1, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "12.50", answer.Score.String())
	require.NotNil(t, answer.GradedBy)
	assert.Equal(t, uint(1), *answer.GradedBy)
	assert.Equal(t, "22.50", attempt.TotalScore.String())

	stored, err := f.attempts.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "22.50", stored.TotalScore.String())

	_, _, err = f.attempts.GradeAnswer(ctx, a.ID, 12345, model.ScoreFromInt(1), 1, t0)
	assert.ErrorIs(t, err, util.ErrAnswerNotFound)
}

func TestExamAttemptRepository_ListOrdersByStartedAt(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	first := f.start(t, 7)
	_, err := f.attempts.Finalize(ctx, first.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	second := &model.ExamAttempt{ExamID: f.exam.ID, StudentID: 7, StartedAt: t0.Add(time.Hour)}
	require.NoError(t, f.attempts.Create(ctx, second))
	f.start(t, 8)

	mine, err := f.attempts.List(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	all, err := f.attempts.List(ctx, 0, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestExamAttemptRepository_MySQLDuplicateKey(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `exams` WHERE .* FOR SHARE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "access_deadline"}).
			AddRow(1, string(model.ExamActive), t0.Add(time.Hour)))
	mock.ExpectExec("INSERT INTO `exam_attempts`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry '1:7' for key 'idx_exam_attempts_in_progress_key'"})
	mock.ExpectRollback()

	repo := NewExamAttemptRepository(db)
	err = repo.Create(context.Background(), &model.ExamAttempt{ExamID: 1, StudentID: 7, StartedAt: t0})
	assert.ErrorIs(t, err, util.ErrAttemptAlreadyInProgress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"mysql 1062", &mysqldriver.MySQLError{Number: 1062}, true},
		{"mysql other", &mysqldriver.MySQLError{Number: 1213}, false},
		{"postgres 23505", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "40001"}, false},
		{"sqlite", errors.New("constraint failed: UNIQUE constraint failed: exam_attempts.in_progress_key (2067)"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}
