package controller

import (
	"edu_exam_backend/internal/service"
	"edu_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AttemptController struct {
	Attempts *service.AttemptService
	Results  *service.ResultService
}

func NewAttemptController(attempts *service.AttemptService, results *service.ResultService) *AttemptController {
	return &AttemptController{Attempts: attempts, Results: results}
}

// @Summary 开始作答
// @Description 同一考试同一时间只能有一次未交卷的作答
// @Tags 作答模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 201 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/exams/{id}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
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

	attempt, err := c.Attempts.StartAttempt(ctx.Request.Context(), user.UserID, examID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// @Summary 提交答案
// @Description 同一题重复提交以最后一次为准；选择题即时判分
// @Tags 作答模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param body body service.SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/attempts/{id}/answers [post]
func (c *AttemptController) SubmitAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}
	var req service.SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	answer, err := c.Attempts.SubmitAnswer(ctx.Request.Context(), user.UserID, attemptID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, answer)
}

// @Summary 交卷
// @Tags 作答模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Finalize(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	attempt, err := c.Attempts.FinalizeAttempt(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 主观题评分
// @Description 交卷后由任课教师或管理员评分，总分随之重算
// @Tags 作答模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param questionId path int true "题目ID"
// @Param body body service.GradeEssayRequest true "分数"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/answers/{questionId}/grade [put]
func (c *AttemptController) GradeEssay(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}
	questionID, err := util.ParseID(ctx.Param("questionId"))
	if err != nil {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	var req service.GradeEssayRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if req.Score.IsNegative() || req.Score.GreaterThan(decimal.NewFromInt(100)) {
		util.HandleError(ctx, util.ErrInvalidScore)
		return
	}

	answer, err := c.Attempts.GradeEssay(ctx.Request.Context(), user.UserID, attemptID, questionID, *req.Score)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, answer)
}

// @Summary 作答成绩
// @Tags 作答模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/results [get]
func (c *AttemptController) GetResults(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	result, err := c.Results.GetResults(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 作答记录列表
// @Tags 作答模块
// @Produce json
// @Security BearerAuth
// @Param student_id query int false "学生ID"
// @Param exam_id query int false "考试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts [get]
func (c *AttemptController) ListAttempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var studentID, examID uint
	if v := ctx.Query("student_id"); v != "" {
		id, err := util.ParseID(v)
		if err != nil {
			util.BadRequest(ctx, "invalid student_id")
			return
		}
		studentID = id
	}
	if v := ctx.Query("exam_id"); v != "" {
		id, err := util.ParseID(v)
		if err != nil {
			util.BadRequest(ctx, "invalid exam_id")
			return
		}
		examID = id
	}

	attempts, err := c.Results.ListAttempts(ctx.Request.Context(), user.UserID, studentID, examID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": attempts, "total": len(attempts)})
}
