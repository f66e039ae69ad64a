package controller

import (
	"edu_exam_backend/internal/service"
	"edu_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Service *service.ExamDefinitionService
}

func NewExamController(svc *service.ExamDefinitionService) *ExamController {
	return &ExamController{Service: svc}
}

// @Summary 创建考试
// @Description 任课教师或管理员创建考试，默认状态为草稿
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateExamRequest true "考试信息"
// @Success 201 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.Service.CreateExam(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, exam)
}

// @Summary 修改考试状态
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param body body service.UpdateExamStatusRequest true "目标状态"
// @Success 200 {object} util.Response
// @Router /api/exams/{id}/status [patch]
func (c *ExamController) UpdateStatus(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	examID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}
	var req service.UpdateExamStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.Service.UpdateExamStatus(ctx.Request.Context(), user.UserID, examID, req.Status)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// @Summary 删除考试
// @Description 已有作答记录的考试不可删除
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/exams/{id} [delete]
func (c *ExamController) DeleteExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	examID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	if err := c.Service.DeleteExam(ctx.Request.Context(), user.UserID, examID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": examID})
}

// @Summary 添加题目
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param body body service.AddQuestionRequest true "题目信息"
// @Success 201 {object} util.Response
// @Router /api/exams/{id}/questions [post]
func (c *ExamController) AddQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	examID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}
	var req service.AddQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question, err := c.Service.AddQuestion(ctx.Request.Context(), user.UserID, examID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, question)
}

// @Summary 添加选项
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param body body service.AddOptionRequest true "选项信息"
// @Success 201 {object} util.Response
// @Router /api/questions/{id}/options [post]
func (c *ExamController) AddOption(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	questionID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	var req service.AddOptionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	option, err := c.Service.AddOption(ctx.Request.Context(), user.UserID, questionID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, option)
}

// @Summary 科目下的考试列表
// @Description 学生只能看到进行中且未过截止时间的考试
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "科目ID"
// @Success 200 {object} util.Response
// @Router /api/subjects/{id}/exams [get]
func (c *ExamController) ListBySubject(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	subjectID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid subject id")
		return
	}

	exams, err := c.Service.ListExamsBySubject(ctx.Request.Context(), user.UserID, subjectID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": exams, "total": len(exams)})
}

// @Summary 考试详情
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	examID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	exam, err := c.Service.ViewExam(ctx.Request.Context(), user.UserID, examID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// @Summary 获取试卷
// @Description 题目与选项，学生视图不含正确答案
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/exams/{id}/paper [get]
func (c *ExamController) GetPaper(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	examID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	paper, err := c.Service.GetExamPaper(ctx.Request.Context(), user.UserID, examID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, paper)
}
