package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/repository"
	"edu_exam_backend/internal/util"
	"strings"
)

// IdentityService 用户、班级、科目与选课关系。
// 只提供事实查询与写入，不做授权；授权由 Policy 负责。
type IdentityService struct {
	UserRepo  *repository.UserRepository
	ClassRepo *repository.ClassRepository
	clock     Clock
}

func NewIdentityService(userRepo *repository.UserRepository, classRepo *repository.ClassRepository, clock Clock) *IdentityService {
	return &IdentityService{UserRepo: userRepo, ClassRepo: classRepo, clock: clock}
}

type CreateUserRequest struct {
	Email    string         `json:"email" binding:"required,email"`
	FullName string         `json:"full_name" binding:"required"`
	Role     model.UserRole `json:"role" binding:"required"`
	IsActive *bool          `json:"is_active"`
}

type CreateClassRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

type CreateSubjectRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	ClassID     uint    `json:"class_id" binding:"required"`
	TeacherID   uint    `json:"teacher_id" binding:"required"`
}

func (s *IdentityService) CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error) {
	if !req.Role.Valid() {
		return nil, util.NewValidationError("role must be one of teacher, student, manager")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.FullName) == "" {
		return nil, util.NewValidationError("email and full_name are required")
	}

	user := &model.User{
		Email:    email,
		FullName: strings.TrimSpace(req.FullName),
		Role:     req.Role,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *IdentityService) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	return s.UserRepo.FindByID(ctx, userID)
}

// SetUserActive 停用的账号无法通过任何权限检查
func (s *IdentityService) SetUserActive(ctx context.Context, userID uint, active bool) (*model.User, error) {
	return s.UserRepo.SetActive(ctx, userID, active)
}

func (s *IdentityService) GetRole(ctx context.Context, userID uint) (model.UserRole, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (s *IdentityService) CreateClass(ctx context.Context, req CreateClassRequest) (*model.Class, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, util.NewValidationError("name is required")
	}
	class := &model.Class{Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := s.ClassRepo.CreateClass(ctx, class); err != nil {
		return nil, err
	}
	return class, nil
}

// CreateSubject 科目须隶属已存在的班级，任课教师须为有效的教师账号
func (s *IdentityService) CreateSubject(ctx context.Context, req CreateSubjectRequest) (*model.Subject, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, util.NewValidationError("name is required")
	}
	if _, err := s.ClassRepo.FindClassByID(ctx, req.ClassID); err != nil {
		return nil, err
	}
	teacher, err := s.UserRepo.FindByID(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}
	if teacher.Role != model.Teacher || !teacher.IsActive {
		return nil, util.NewValidationError("teacher_id must reference an active teacher")
	}

	subject := &model.Subject{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ClassID:     req.ClassID,
		TeacherID:   req.TeacherID,
	}
	if err := s.ClassRepo.CreateSubject(ctx, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

func (s *IdentityService) GetSubject(ctx context.Context, subjectID uint) (*model.Subject, error) {
	return s.ClassRepo.FindSubjectByID(ctx, subjectID)
}

// Enroll 重复选课会重新激活原有记录
func (s *IdentityService) Enroll(ctx context.Context, studentID, classID uint) (*model.ClassEnrollment, error) {
	student, err := s.UserRepo.FindByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != model.Student {
		return nil, util.NewValidationError("only students can be enrolled")
	}
	if _, err := s.ClassRepo.FindClassByID(ctx, classID); err != nil {
		return nil, err
	}
	return s.ClassRepo.Enroll(ctx, studentID, classID, s.clock.Now())
}

// Unenroll 停用选课关系；学生随即失去该班全部科目的作答资格
func (s *IdentityService) Unenroll(ctx context.Context, studentID, classID uint) (*model.ClassEnrollment, error) {
	return s.ClassRepo.Unenroll(ctx, studentID, classID)
}

func (s *IdentityService) IsEnrolled(ctx context.Context, studentID, subjectID uint) (bool, error) {
	return s.ClassRepo.IsEnrolled(ctx, studentID, subjectID)
}

func (s *IdentityService) TeachesSubject(ctx context.Context, teacherID, subjectID uint) (bool, error) {
	return s.ClassRepo.TeachesSubject(ctx, teacherID, subjectID)
}
