package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/repository"
	"edu_exam_backend/internal/testutil"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) set(d time.Duration) { c.now = t0.Add(d) }

type engineFixture struct {
	db       *gorm.DB
	examRepo *repository.ExamRepository
	cache    *DefinitionCache
	clock    *fakeClock
	identity *IdentityService
	policy   *Policy
	exams    *ExamDefinitionService
	attempts *AttemptService
	results  *ResultService
	admin    *AdminService

	manager      *model.User
	teacher      *model.User
	otherTeacher *model.User
	student      *model.User
	otherStudent *model.User
	outsider     *model.User

	subject *model.Subject
	exam    *model.Exam
	mcq     *model.ExamQuestion
	essay   *model.ExamQuestion
	optA    *model.MultipleChoiceOption
	optB    *model.MultipleChoiceOption
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return buildEngineFixture(t, NewDefinitionCache(nil, time.Minute))
}

// newCachedEngineFixture 同 newEngineFixture，题目缓存接到进程内 Redis
func newCachedEngineFixture(t *testing.T) (*engineFixture, *miniredis.Miniredis) {
	t.Helper()
	rdb, mr := testutil.NewTestRedis(t)
	return buildEngineFixture(t, NewDefinitionCache(rdb, time.Minute)), mr
}

func buildEngineFixture(t *testing.T, cache *DefinitionCache) *engineFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	f := &engineFixture{db: db, examRepo: repository.NewExamRepository(db), cache: cache, clock: &fakeClock{now: t0}}
	f.identity = NewIdentityService(repository.NewUserRepository(db), repository.NewClassRepository(db), f.clock)
	f.policy = NewPolicy(f.identity, f.identity)
	f.exams = NewExamDefinitionService(f.examRepo, f.identity, f.policy, cache, f.clock)
	attemptRepo := repository.NewExamAttemptRepository(db)
	f.attempts = NewAttemptService(attemptRepo, f.exams, f.identity, f.policy, f.clock)
	f.results = NewResultService(attemptRepo, f.exams, f.policy)
	f.admin = NewAdminService(f.identity, f.policy)

	newUser := func(email string, role model.UserRole) *model.User {
		u, err := f.identity.CreateUser(ctx, CreateUserRequest{Email: email, FullName: email, Role: role})
		require.NoError(t, err)
		return u
	}
	f.manager = newUser("manager@school.edu", model.Manager)
	f.teacher = newUser("teacher@school.edu", model.Teacher)
	f.otherTeacher = newUser("teacher2@school.edu", model.Teacher)
	f.student = newUser("student@school.edu", model.Student)
	f.otherStudent = newUser("student2@school.edu", model.Student)
	f.outsider = newUser("outsider@school.edu", model.Student)

	class, err := f.admin.CreateClass(ctx, f.manager.ID, CreateClassRequest{Name: "Grade 10 A"})
	require.NoError(t, err)
	f.subject, err = f.admin.CreateSubject(ctx, f.manager.ID, CreateSubjectRequest{Name: "Math", ClassID: class.ID, TeacherID: f.teacher.ID})
	require.NoError(t, err)
	_, err = f.admin.Enroll(ctx, f.manager.ID, f.student.ID, class.ID)
	require.NoError(t, err)
	_, err = f.admin.Enroll(ctx, f.manager.ID, f.otherStudent.ID, class.ID)
	require.NoError(t, err)

	f.exam, err = f.exams.CreateExam(ctx, f.teacher.ID, CreateExamRequest{
		Title:            "Quiz 1",
		SubjectID:        f.subject.ID,
		TimeLimitMinutes: 30,
		AccessDeadline:   t0.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	f.mcq, err = f.exams.AddQuestion(ctx, f.teacher.ID, f.exam.ID, AddQuestionRequest{QuestionText: "Pick B", QuestionType: model.MultipleChoice, Points: 10, OrderIndex: 1})
	require.NoError(t, err)
	f.optA, err = f.exams.AddOption(ctx, f.teacher.ID, f.mcq.ID, AddOptionRequest{OptionText: "A", OrderIndex: 1})
	require.NoError(t, err)
	f.optB, err = f.exams.AddOption(ctx, f.teacher.ID, f.mcq.ID, AddOptionRequest{OptionText: "B", IsCorrect: true, OrderIndex: 2})
	require.NoError(t, err)
	f.essay, err = f.exams.AddQuestion(ctx, f.teacher.ID, f.exam.ID, AddQuestionRequest{QuestionText: "Explain", QuestionType: model.Essay, Points: 20, OrderIndex: 2})
	require.NoError(t, err)

	f.exam, err = f.exams.UpdateExamStatus(ctx, f.teacher.ID, f.exam.ID, model.ExamActive)
	require.NoError(t, err)
	return f
}

func (f *engineFixture) start(t *testing.T) *model.ExamAttempt {
	t.Helper()
	a, err := f.attempts.StartAttempt(context.Background(), f.student.ID, f.exam.ID)
	require.NoError(t, err)
	return a
}

func uintPtr(v uint) *uint { return &v }

func strPtr(v string) *string { return &v }
