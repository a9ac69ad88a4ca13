package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-registrar-api/api/swagger"
	"github.com/noah-isme/campus-registrar-api/internal/handler"
	"github.com/noah-isme/campus-registrar-api/internal/middleware"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
	"github.com/noah-isme/campus-registrar-api/internal/service"
	"github.com/noah-isme/campus-registrar-api/pkg/cache"
	"github.com/noah-isme/campus-registrar-api/pkg/config"
	"github.com/noah-isme/campus-registrar-api/pkg/database"
	"github.com/noah-isme/campus-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-registrar-api/pkg/middleware/requestid"
)

// @title Campus Registrar API
// @version 0.1.0
// @description Enrollment, capacity and grading engine for academic sessions
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	// Repositories.
	sessionRepo := repository.NewSessionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, metricsSvc, logr)
	defer cacheRepo.Close()

	validate := validator.New()

	// Services.
	ledger := service.NewCapacityLedger(sectionRepo, metricsSvc, logr)
	eligibilitySvc := service.NewEligibilityService(courseRepo, studentRepo, enrollmentRepo, cacheRepo, cfg.Registrar.EligibilityCacheTTL, logr)
	gradeSvc := service.NewGradeService(submissionRepo, cacheRepo, cfg.Registrar.GradeCacheTTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, ledger, eligibilitySvc, gradeSvc,
		sectionRepo, courseRepo, studentRepo, sessionRepo, metricsSvc, validate, logr, cfg.Registrar.GradeTolerance)
	sessionSvc := service.NewSessionService(sessionRepo, sectionRepo, enrollmentRepo, gradeSvc, eligibilitySvc,
		validate, logr, cfg.Registrar.CloseWorkers, cfg.Registrar.CloseRetries)
	courseSvc := service.NewCourseService(courseRepo, sessionRepo, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, courseRepo, enrollmentRepo, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, sectionRepo, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, enrollmentRepo, gradeSvc, validate, logr)
	exportSvc := service.NewExportService(enrollmentRepo, sectionRepo, gradeSvc,
		cfg.Exports.Enabled, cfg.Exports.MaxRows, cfg.Exports.PDFTitle, logr)
	tokenSvc := service.NewTokenService(cfg.JWT, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sessionSvc.StartWorkers(ctx)
	defer sessionSvc.StopWorkers()

	// Handlers.
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc, exportSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	eligibilityHandler := handler.NewEligibilityHandler(eligibilitySvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.GET("/ops/snapshot", metricsHandler.Snapshot)

		sessions := api.Group("/sessions")
		{
			sessions.GET("", sessionHandler.List)
			sessions.POST("", sessionHandler.Create)
			sessions.GET("/active", sessionHandler.Active)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.PUT("/:id", sessionHandler.Update)
			sessions.PUT("/:id/activate", sessionHandler.Activate)
			sessions.PUT("/:id/close", sessionHandler.Close)
		}

		courses := api.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.POST("", courseHandler.Create)
			courses.GET("/:id", courseHandler.Get)
			courses.PUT("/:id", courseHandler.Update)
			courses.DELETE("/:id", courseHandler.Delete)
		}

		sections := api.Group("/sections")
		{
			sections.GET("", sectionHandler.List)
			sections.POST("", sectionHandler.Create)
			sections.GET("/:id", sectionHandler.Get)
			sections.PUT("/:id", sectionHandler.Update)
			sections.DELETE("/:id", sectionHandler.Delete)
			sections.PUT("/:id/publish", sectionHandler.Publish)
			sections.PUT("/:id/cancel", sectionHandler.Cancel)
			sections.PUT("/:id/lock", sectionHandler.Lock)
			sections.PUT("/:id/unlock", sectionHandler.Unlock)
			sections.GET("/:id/roster", sectionHandler.ExportRoster)
			sections.GET("/:id/assignments", assignmentHandler.ListBySection)
			sections.GET("/:id/grades/:studentId", gradeHandler.Summary)
		}

		enrollments := api.Group("/enrollments")
		{
			enrollments.GET("", enrollmentHandler.List)
			enrollments.POST("", enrollmentHandler.Create)
			enrollments.GET("/:id", enrollmentHandler.Get)
			enrollments.PUT("/:id/drop", enrollmentHandler.Drop)
			enrollments.PUT("/:id/complete", enrollmentHandler.Complete)
		}

		api.GET("/eligibility", eligibilityHandler.Check)

		assignments := api.Group("/assignments")
		{
			assignments.POST("", assignmentHandler.Create)
			assignments.GET("/:id", assignmentHandler.Get)
			assignments.PUT("/:id", assignmentHandler.Update)
			assignments.DELETE("/:id", assignmentHandler.Delete)
			assignments.GET("/:id/submissions", submissionHandler.ListByAssignment)
		}

		submissions := api.Group("/submissions")
		{
			submissions.POST("", submissionHandler.Create)
			submissions.GET("/:id", submissionHandler.Get)
			submissions.PUT("/:id/grade", submissionHandler.Grade)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down", zap.Duration("grace", 10*time.Second))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
