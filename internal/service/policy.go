package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"errors"
	"strings"
)

type Permission string

const (
	PermUserManage     Permission = "user:manage"
	PermExamManage     Permission = "exam:manage"
	PermExamView       Permission = "exam:view"
	PermAttemptTake    Permission = "attempt:take"
	PermAttemptGrade   Permission = "attempt:grade"
	PermAttemptViewOwn Permission = "attempt:view-own"
	PermAttemptViewAll Permission = "attempt:view-all"
)

// RolePermissions 默认角色权限表，"*" 表示全部，"xxx:*" 表示前缀匹配
var RolePermissions = map[model.UserRole][]Permission{
	model.Student: {
		PermExamView,
		PermAttemptTake,
		PermAttemptViewOwn,
	},
	model.Teacher: {
		PermExamManage,
		PermExamView,
		PermAttemptGrade,
		PermAttemptViewAll,
	},
	model.Manager: {
		"*",
	},
}

// UserDirectory 提供权威的用户角色与状态
type UserDirectory interface {
	GetUser(ctx context.Context, userID uint) (*model.User, error)
}

// SubjectDirectory 提供教师与科目的归属关系
type SubjectDirectory interface {
	TeachesSubject(ctx context.Context, teacherID, subjectID uint) (bool, error)
}

// Policy 每个业务操作前调用的授权检查
type Policy struct {
	users       UserDirectory
	subjects    SubjectDirectory
	permissions map[model.UserRole][]Permission
}

func NewPolicy(users UserDirectory, subjects SubjectDirectory) *Policy {
	return &Policy{users: users, subjects: subjects, permissions: RolePermissions}
}

func (p *Policy) Has(role model.UserRole, perm Permission) bool {
	for _, granted := range p.permissions[role] {
		if matchPermission(granted, perm) {
			return true
		}
	}
	return false
}

func matchPermission(pattern, perm Permission) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if p := string(pattern); strings.HasSuffix(p, "*") {
		return strings.HasPrefix(string(perm), strings.TrimSuffix(p, "*"))
	}
	return false
}

// Actor 解析调用者；未知或停用的用户一律拒绝
func (p *Policy) Actor(ctx context.Context, userID uint) (*model.User, error) {
	user, err := p.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			return nil, util.ErrPermissionDenied
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, util.ErrPermissionDenied
	}
	return user, nil
}

// Require 以数据库中的角色为准校验权限，令牌中的角色不作数
func (p *Policy) Require(ctx context.Context, userID uint, perm Permission) (*model.User, error) {
	user, err := p.Actor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.Has(user.Role, perm) {
		return nil, util.ErrPermissionDenied
	}
	return user, nil
}

// CanManageSubject 管理员或该科目的任课教师
func (p *Policy) CanManageSubject(ctx context.Context, user *model.User, subjectID uint) (bool, error) {
	switch user.Role {
	case model.Manager:
		return true, nil
	case model.Teacher:
		return p.subjects.TeachesSubject(ctx, user.ID, subjectID)
	case model.Student:
		return false, nil
	}
	return false, nil
}

// RequireSubject 在 Require 基础上要求对科目有管理权
func (p *Policy) RequireSubject(ctx context.Context, userID uint, perm Permission, subjectID uint) (*model.User, error) {
	user, err := p.Require(ctx, userID, perm)
	if err != nil {
		return nil, err
	}
	ok, err := p.CanManageSubject(ctx, user, subjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrPermissionDenied
	}
	return user, nil
}
