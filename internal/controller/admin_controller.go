package controller

import (
	"edu_exam_backend/internal/service"
	"edu_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	Service *service.AdminService
}

func NewAdminController(svc *service.AdminService) *AdminController {
	return &AdminController{Service: svc}
}

type EnrollRequest struct {
	StudentID uint `json:"student_id" binding:"required"`
}

type SetUserActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// @Summary 创建用户
// @Tags 管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateUserRequest true "用户信息"
// @Success 201 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/admin/users [post]
func (c *AdminController) CreateUser(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	created, err := c.Service.CreateUser(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, created)
}

// @Summary 创建班级
// @Tags 管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateClassRequest true "班级信息"
// @Success 201 {object} util.Response
// @Router /api/admin/classes [post]
func (c *AdminController) CreateClass(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateClassRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	class, err := c.Service.CreateClass(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, class)
}

// @Summary 创建科目
// @Tags 管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateSubjectRequest true "科目信息"
// @Success 201 {object} util.Response
// @Router /api/admin/subjects [post]
func (c *AdminController) CreateSubject(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateSubjectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	subject, err := c.Service.CreateSubject(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, subject)
}

// @Summary 学生选课（加入班级）
// @Tags 管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "班级ID"
// @Param body body EnrollRequest true "学生ID"
// @Success 201 {object} util.Response
// @Router /api/admin/classes/{id}/enrollments [post]
func (c *AdminController) Enroll(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	classID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid class id")
		return
	}
	var req EnrollRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	enrollment, err := c.Service.Enroll(ctx.Request.Context(), user.UserID, req.StudentID, classID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, enrollment)
}

// @Summary 启用/停用用户
// @Tags 管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param body body SetUserActiveRequest true "是否启用"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/users/{id}/active [patch]
func (c *AdminController) SetUserActive(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	userID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}
	var req SetUserActiveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	updated, err := c.Service.SetUserActive(ctx.Request.Context(), user.UserID, userID, *req.IsActive)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, updated)
}

// @Summary 学生退课（停用选课关系）
// @Tags 管理模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "班级ID"
// @Param studentId path int true "学生ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/classes/{id}/enrollments/{studentId} [delete]
func (c *AdminController) Unenroll(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	classID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid class id")
		return
	}
	studentID, err := util.ParseID(ctx.Param("studentId"))
	if err != nil {
		util.BadRequest(ctx, "invalid student id")
		return
	}

	enrollment, err := c.Service.Unenroll(ctx.Request.Context(), user.UserID, studentID, classID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}
