package app

import (
	"context"
	"edu_exam_backend/internal/config"
	"edu_exam_backend/internal/controller"
	"edu_exam_backend/internal/middleware"
	"edu_exam_backend/internal/repository"
	"edu_exam_backend/internal/service"
	"edu_exam_backend/pkg/configwatcher"
	"edu_exam_backend/pkg/database"
	"edu_exam_backend/pkg/logger"
	"edu_exam_backend/pkg/monitoring"
	"edu_exam_backend/pkg/security"
	"edu_exam_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	tracer          *sdktrace.TracerProvider
	stop            chan struct{}
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user    *repository.UserRepository
	class   *repository.ClassRepository
	exam    *repository.ExamRepository
	attempt *repository.ExamAttemptRepository
}

type services struct {
	identity *service.IdentityService
	policy   *service.Policy
	admin    *service.AdminService
	exam     *service.ExamDefinitionService
	attempt  *service.AttemptService
	result   *service.ResultService
}

type controllers struct {
	admin   *controller.AdminController
	exam    *controller.ExamController
	attempt *controller.AttemptController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:    repository.NewUserRepository(db),
		class:   repository.NewClassRepository(db),
		exam:    repository.NewExamRepository(db),
		attempt: repository.NewExamAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client, clock service.Clock) *services {
	s := &services{}

	s.identity = service.NewIdentityService(repos.user, repos.class, clock)
	s.policy = service.NewPolicy(s.identity, s.identity)
	s.admin = service.NewAdminService(s.identity, s.policy)

	cache := service.NewDefinitionCache(rdb, cfg.Redis.DefinitionTTL())
	s.exam = service.NewExamDefinitionService(repos.exam, s.identity, s.policy, cache, clock)
	s.attempt = service.NewAttemptService(repos.attempt, s.exam, s.identity, s.policy, clock)
	s.result = service.NewResultService(repos.attempt, s.exam, s.policy)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		admin:   controller.NewAdminController(s.admin),
		exam:    controller.NewExamController(s.exam),
		attempt: controller.NewAttemptController(s.attempt, s.result),
		health:  controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.RequestID())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	router.Use(security.RateLimiter(security.NewLimiter(cfg.RateLimit.MaxRequests, window), a.stop))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// buildRouter 组装仓储、服务、控制器与路由
func (a *App) buildRouter(clock service.Clock) {
	repos := a.initRepositories(a.DB)
	services := a.initServices(repos, a.Config, a.Redis, clock)
	controllers := a.initControllers(services, a.DB, a.Redis)

	router := gin.Default()
	a.setupMiddlewares(router, a.Config)
	a.registerRoutes(router, controllers, a.Config)
	a.Router = router
}

func (a *App) watchConfig() {
	if a.Config.FilePath == "" {
		return
	}

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		if logger.SetLevel(newCfg.Log.Level) {
			logger.Log.Info("Log level reloaded", zap.String("level", newCfg.Log.Level))
		}
	})

	go func() {
		err := configwatcher.WatchConfig(a.Config.FilePath, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		}, a.stop)
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	// release 模式默认不迁移，除非显式 -migrate
	migrate := cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		stop:   make(chan struct{}),
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// 缓存不可用时退化为直接读库
		logger.Log.Warn("Redis unavailable, exam definition cache disabled", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.buildRouter(service.SystemClock{})
	app.watchConfig()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	close(a.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
