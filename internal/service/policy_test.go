package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Has(t *testing.T) {
	p := NewPolicy(nil, nil)

	assert.True(t, p.Has(model.Student, PermAttemptTake))
	assert.False(t, p.Has(model.Student, PermAttemptGrade))
	assert.False(t, p.Has(model.Teacher, PermAttemptTake))
	assert.True(t, p.Has(model.Teacher, PermAttemptGrade))
	assert.True(t, p.Has(model.Manager, PermUserManage))
	assert.False(t, p.Has("guest", PermExamView))

	assert.True(t, matchPermission("attempt:*", PermAttemptViewAll))
	assert.False(t, matchPermission("exam:*", PermAttemptViewAll))
}

func TestPolicy_RequireUsesStoredRole(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	inactive, err := f.identity.CreateUser(ctx, CreateUserRequest{Email: "gone@school.edu", FullName: "Gone", Role: model.Manager, IsActive: new(bool)})
	require.NoError(t, err)
	assert.False(t, inactive.IsActive)

	_, err = f.policy.Require(ctx, inactive.ID, PermUserManage)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.policy.Require(ctx, f.teacher.ID, PermUserManage)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	u, err := f.policy.Require(ctx, f.manager.ID, PermUserManage)
	require.NoError(t, err)
	assert.Equal(t, f.manager.ID, u.ID)

	_, err = f.admin.CreateClass(ctx, f.teacher.ID, CreateClassRequest{Name: "nope"})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestIdentityService_Rules(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	role, err := f.identity.GetRole(ctx, f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Teacher, role)
	_, err = f.identity.GetRole(ctx, 9999)
	assert.ErrorIs(t, err, util.ErrUserNotFound)

	_, err = f.identity.CreateUser(ctx, CreateUserRequest{Email: "x@school.edu", FullName: "X", Role: "janitor"})
	assert.Equal(t, util.KindValidation, util.KindOf(err))
	_, err = f.identity.CreateUser(ctx, CreateUserRequest{Email: "STUDENT@school.edu", FullName: "dup", Role: model.Student})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)

	_, err = f.identity.CreateSubject(ctx, CreateSubjectRequest{Name: "Bio", ClassID: f.subject.ClassID, TeacherID: f.student.ID})
	assert.Equal(t, util.KindValidation, util.KindOf(err))
	_, err = f.identity.Enroll(ctx, f.teacher.ID, f.subject.ClassID)
	assert.Equal(t, util.KindValidation, util.KindOf(err))
	_, err = f.identity.Enroll(ctx, f.student.ID, 9999)
	assert.ErrorIs(t, err, util.ErrClassNotFound)

	ok, err := f.identity.IsEnrolled(ctx, f.student.ID, f.subject.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.identity.TeachesSubject(ctx, f.teacher.ID, f.subject.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
