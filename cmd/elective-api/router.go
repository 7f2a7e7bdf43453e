package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/handler"
	"github.com/noah-isme/elective-api/internal/middleware"
	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/service"
	"github.com/noah-isme/elective-api/pkg/config"
	"github.com/noah-isme/elective-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/elective-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/elective-api/pkg/middleware/requestid"
)

type handlers struct {
	auth      *handler.AuthHandler
	students  *handler.StudentHandler
	courses   *handler.CourseHandler
	batches   *handler.BatchHandler
	reconcile *handler.ReconcileHandler
	auditLogs *handler.AuditLogHandler
	rosters   *handler.RosterHandler
	live      *handler.LiveHandler
	metrics   *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h handlers, auth *service.AuthService, audit auditStore, metrics *service.MetricsService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	recordAs := func(action string) gin.HandlerFunc {
		return middleware.Audit(audit, logr, action)
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/student/login", h.auth.StudentLogin)
	api.POST("/auth/admin/login", h.auth.AdminLogin)
	api.GET("/rosters/download", h.rosters.Download)
	api.GET("/ws/courses", middleware.JWTOrQuery(auth), h.live.Courses)

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))
	secured.GET("/courses", h.courses.List)
	secured.GET("/courses/:id", h.courses.Get)

	student := secured.Group("")
	student.Use(middleware.RequireRoles(models.RoleStudent))
	student.POST("/courses/:id/select", h.courses.Select)
	student.GET("/students/me", h.students.Me)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/students", h.students.List)
	admin.POST("/students", recordAs(models.AuditActionStudentCreate), h.students.Create)
	admin.POST("/students/import", recordAs(models.AuditActionStudentImport), h.students.Import)
	admin.GET("/students/:id", h.students.Get)
	admin.PUT("/students/:id", recordAs(models.AuditActionStudentUpdate), h.students.Update)
	admin.DELETE("/students/:id", recordAs(models.AuditActionStudentDelete), h.students.Delete)

	admin.GET("/courses", h.courses.List)
	admin.POST("/courses", recordAs(models.AuditActionCourseCreate), h.courses.Create)
	admin.PUT("/courses/:id", recordAs(models.AuditActionCourseUpdate), h.courses.Update)
	admin.DELETE("/courses/:id", recordAs(models.AuditActionCourseDelete), h.courses.Delete)
	admin.GET("/courses/:id/roster", h.courses.Roster)
	admin.GET("/courses/:id/roster/export", h.courses.ExportRoster)

	admin.GET("/batches", h.students.Batches)
	admin.PUT("/batch-semester", recordAs(models.AuditActionBatchSemester), h.batches.SetSemester)
	admin.PUT("/batch-promote", recordAs(models.AuditActionBatchPromote), h.batches.Promote)
	admin.POST("/reconcile", recordAs(models.AuditActionReconcile), h.reconcile.Run)
	admin.GET("/logs", h.auditLogs.List)

	return r
}
