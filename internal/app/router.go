package app

import (
	"edu_exam_backend/docs"
	"edu_exam_backend/internal/config"
	"edu_exam_backend/internal/middleware"
	"edu_exam_backend/internal/model"

	"edu_exam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)

		// 管理员相关接口
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}
}

func (a *App) registerStudentRoutes(r *gin.RouterGroup, c *controllers) {
	// 只读接口，细粒度权限在服务层校验
	r.GET("/subjects/:id/exams", c.exam.ListBySubject)
	r.GET("/exams/:id", c.exam.GetExam)
	r.GET("/exams/:id/paper", c.exam.GetPaper)
	r.GET("/attempts", c.attempt.ListAttempts)
	r.GET("/attempts/:id/results", c.attempt.GetResults)

	student := r.Group("")
	student.Use(middleware.RoleMiddleware(model.Student))
	{
		student.POST("/exams/:id/attempts", c.attempt.StartAttempt)
		student.POST("/attempts/:id/answers", c.attempt.SubmitAnswer)
		student.POST("/attempts/:id/submit", c.attempt.Finalize)
	}
}

func (a *App) registerTeacherRoutes(r *gin.RouterGroup, c *controllers) {
	teacher := r.Group("")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.POST("/exams", c.exam.CreateExam)
		teacher.PATCH("/exams/:id/status", c.exam.UpdateStatus)
		teacher.DELETE("/exams/:id", c.exam.DeleteExam)
		teacher.POST("/exams/:id/questions", c.exam.AddQuestion)
		teacher.POST("/questions/:id/options", c.exam.AddOption)
		teacher.PUT("/attempts/:id/answers/:questionId/grade", c.attempt.GradeEssay)
	}
}

func (a *App) registerAdminRoutes(r *gin.RouterGroup, c *controllers) {
	admin := r.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.Manager))
	{
		admin.POST("/users", c.admin.CreateUser)
		admin.POST("/classes", c.admin.CreateClass)
		admin.POST("/subjects", c.admin.CreateSubject)
		admin.POST("/classes/:id/enrollments", c.admin.Enroll)
		admin.DELETE("/classes/:id/enrollments/:studentId", c.admin.Unenroll)
		admin.PATCH("/users/:id/active", c.admin.SetUserActive)
	}
}
