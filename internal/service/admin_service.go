package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"edu_exam_backend/pkg/logger"

	"go.uber.org/zap"
)

// AdminService 管理员维护用户、班级、科目与选课
type AdminService struct {
	Identity *IdentityService
	Policy   *Policy
}

func NewAdminService(identity *IdentityService, policy *Policy) *AdminService {
	return &AdminService{Identity: identity, Policy: policy}
}

func (s *AdminService) CreateUser(ctx context.Context, actorID uint, req CreateUserRequest) (*model.User, error) {
	if _, err := s.Policy.Require(ctx, actorID, PermUserManage); err != nil {
		return nil, err
	}
	user, err := s.Identity.CreateUser(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("User created", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)), zap.Uint("actor_id", actorID))
	return user, nil
}

func (s *AdminService) CreateClass(ctx context.Context, actorID uint, req CreateClassRequest) (*model.Class, error) {
	if _, err := s.Policy.Require(ctx, actorID, PermUserManage); err != nil {
		return nil, err
	}
	return s.Identity.CreateClass(ctx, req)
}

func (s *AdminService) CreateSubject(ctx context.Context, actorID uint, req CreateSubjectRequest) (*model.Subject, error) {
	if _, err := s.Policy.Require(ctx, actorID, PermUserManage); err != nil {
		return nil, err
	}
	return s.Identity.CreateSubject(ctx, req)
}

func (s *AdminService) Enroll(ctx context.Context, actorID, studentID, classID uint) (*model.ClassEnrollment, error) {
	if _, err := s.Policy.Require(ctx, actorID, PermUserManage); err != nil {
		return nil, err
	}
	enrollment, err := s.Identity.Enroll(ctx, studentID, classID)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Student enrolled", zap.Uint("student_id", studentID), zap.Uint("class_id", classID))
	return enrollment, nil
}

// SetUserActive 管理员不能停用自己
func (s *AdminService) SetUserActive(ctx context.Context, actorID, userID uint, active bool) (*model.User, error) {
	if _, err := s.Policy.Require(ctx, actorID, PermUserManage); err != nil {
		return nil, err
	}
	if actorID == userID && !active {
		return nil, util.NewValidationError("cannot deactivate yourself")
	}
	user, err := s.Identity.SetUserActive(ctx, userID, active)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("User activation changed", zap.Uint("user_id", userID), zap.Bool("is_active", active), zap.Uint("actor_id", actorID))
	return user, nil
}

func (s *AdminService) Unenroll(ctx context.Context, actorID, studentID, classID uint) (*model.ClassEnrollment, error) {
	if _, err := s.Policy.Require(ctx, actorID, PermUserManage); err != nil {
		return nil, err
	}
	enrollment, err := s.Identity.Unenroll(ctx, studentID, classID)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Student unenrolled", zap.Uint("student_id", studentID), zap.Uint("class_id", classID))
	return enrollment, nil
}
