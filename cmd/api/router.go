package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/student-tracker-api/internal/handler"
	"github.com/noah-isme/student-tracker-api/internal/middleware"
	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
	"github.com/noah-isme/student-tracker-api/pkg/config"
	"github.com/noah-isme/student-tracker-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-tracker-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-tracker-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth        middleware.SessionAuthenticator
	metrics     *service.MetricsService
	cookie      middleware.CookieConfig
	authHandler *handler.AuthHandler
	teachers    *handler.TeacherHandler
	subjects    *handler.SubjectHandler
	students    *handler.StudentHandler
	curricula   *handler.CurriculumHandler
	media       *handler.MediaHandler
	audit       *handler.AuditHandler
	observe     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.observe.Health)
	r.GET("/ready", deps.observe.Ready)
	r.GET("/metrics", deps.observe.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/media/:token", deps.media.Serve)

	auth := api.Group("/auth")
	auth.POST("/admin/login", deps.authHandler.AdminLogin)
	auth.POST("/teacher/login", deps.authHandler.TeacherLogin)

	session := middleware.Session(deps.auth, deps.cookie)
	authed := auth.Group("", session)
	authed.POST("/logout", deps.authHandler.Logout)
	authed.GET("/me", deps.authHandler.Me)

	admin := api.Group("/admin", session, middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/teachers", deps.teachers.List)
	admin.POST("/teachers", deps.teachers.Create)
	admin.GET("/teachers/:id", deps.teachers.Get)
	admin.PUT("/teachers/:id", deps.teachers.Update)
	admin.DELETE("/teachers/:id", deps.teachers.Delete)
	admin.PUT("/teachers/:id/picture", deps.teachers.UploadPicture)
	admin.DELETE("/teachers/:id/picture", deps.teachers.RemovePicture)

	admin.GET("/subjects", deps.subjects.List)
	admin.POST("/subjects", deps.subjects.Create)
	admin.GET("/subjects/:id", deps.subjects.Get)
	admin.PUT("/subjects/:id", deps.subjects.Update)
	admin.DELETE("/subjects/:id", deps.subjects.Delete)

	admin.GET("/students", deps.students.List)
	admin.POST("/students", deps.students.Create)
	admin.GET("/students/:id", deps.students.Get)
	admin.PUT("/students/:id", deps.students.Update)
	admin.DELETE("/students/:id", deps.students.Delete)
	admin.PUT("/students/:id/picture", deps.students.UploadPicture)
	admin.DELETE("/students/:id/picture", deps.students.RemovePicture)

	admin.GET("/curricula", deps.curricula.List)
	admin.POST("/curricula", deps.curricula.Create)
	admin.GET("/curricula/code-exists", deps.curricula.CodeExists)
	admin.GET("/curricula/:id", deps.curricula.Get)
	admin.PUT("/curricula/:id", deps.curricula.Update)
	admin.DELETE("/curricula/:id", deps.curricula.Delete)
	admin.GET("/curricula/:id/roster", deps.curricula.Roster)

	admin.GET("/audit-logs", deps.audit.List)
	admin.GET("/system/metrics", deps.observe.System)

	teacher := api.Group("/teacher", session, middleware.RequireRoles(models.RoleTeacher))
	teacher.GET("/curricula", deps.curricula.TeacherList)
	teacher.GET("/curricula/:id", deps.curricula.TeacherGet)
	teacher.GET("/curricula/:id/roster", deps.curricula.Roster)

	return r
}
