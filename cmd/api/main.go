package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/student-tracker-api/api/swagger"
	"github.com/noah-isme/student-tracker-api/internal/handler"
	"github.com/noah-isme/student-tracker-api/internal/middleware"
	"github.com/noah-isme/student-tracker-api/internal/repository"
	"github.com/noah-isme/student-tracker-api/internal/service"
	"github.com/noah-isme/student-tracker-api/pkg/cache"
	"github.com/noah-isme/student-tracker-api/pkg/config"
	"github.com/noah-isme/student-tracker-api/pkg/database"
	"github.com/noah-isme/student-tracker-api/pkg/export"
	"github.com/noah-isme/student-tracker-api/pkg/logger"
	"github.com/noah-isme/student-tracker-api/pkg/password"
	"github.com/noah-isme/student-tracker-api/pkg/storage"
)

// @title School Portal API
// @version 1.0.0
// @description Administration of teachers, subjects, students and curricula, plus the teacher portal.
// @BasePath /api/v1
// @schemes http https

const shutdownTimeout = 10 * time.Second

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logr.Info("database migrations applied")
	}

	redisClient, err := cache.NewRedis(context.Background(), cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	files, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		return fmt.Errorf("init upload storage: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	hasher := password.NewBcryptHasher(0)

	adminRepo := repository.NewAdminRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient)

	auditSvc := service.NewAuditService(auditRepo, metrics, logr)
	pictures := service.NewProfilePictureService(
		files,
		storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL),
		logr,
		service.ProfilePictureConfig{
			MaxFileSize:  cfg.Uploads.MaxFileSize,
			MaxDimension: cfg.Uploads.MaxDimension,
			URLPrefix:    cfg.APIPrefix + "/media",
		},
	)

	authSvc := service.NewAuthService(service.AuthServiceParams{
		Admins:    adminRepo,
		Teachers:  teacherRepo,
		Sessions:  sessionRepo,
		Hasher:    hasher,
		Audit:     auditSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
		Config: service.AuthConfig{
			Secret:               cfg.Session.Secret,
			Issuer:               cfg.Session.Issuer,
			Expiration:           cfg.Session.Expiration,
			PersistentExpiration: cfg.Session.PersistentExpiration,
		},
	})
	teacherSvc := service.NewTeacherService(service.TeacherServiceParams{
		Repo:      teacherRepo,
		Subjects:  subjectRepo,
		Hasher:    hasher,
		Pictures:  pictures,
		Audit:     auditSvc,
		Validator: validate,
		Logger:    logr,
	})
	subjectSvc := service.NewSubjectService(subjectRepo, auditSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, pictures, auditSvc, validate, logr)
	curriculumSvc := service.NewCurriculumService(service.CurriculumServiceParams{
		Repo:       curriculumRepo,
		Subjects:   subjectRepo,
		Teachers:   teacherRepo,
		Students:   studentRepo,
		Reconciler: service.NewAssignmentReconciler(metrics),
		Audit:      auditSvc,
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logr,
	})
	rosterSvc := service.NewRosterExportService(curriculumSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	created, err := authSvc.EnsureBootstrapAdmin(ctx,
		cfg.Bootstrap.AdminUsername,
		cfg.Bootstrap.AdminPassword,
		cfg.Bootstrap.AdminEmail,
		cfg.Bootstrap.AdminFullName,
	)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logr.Warn("bootstrap admin account created, rotate its password", zap.String("username", cfg.Bootstrap.AdminUsername))
	}

	cookie := middleware.CookieConfig{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.Secure,
	}
	router := newRouter(cfg, logr, routerDeps{
		auth:        authSvc,
		metrics:     metrics,
		cookie:      cookie,
		authHandler: handler.NewAuthHandler(authSvc, cookie),
		teachers:    handler.NewTeacherHandler(teacherSvc),
		subjects:    handler.NewSubjectHandler(subjectSvc),
		students:    handler.NewStudentHandler(studentSvc),
		curricula:   handler.NewCurriculumHandler(curriculumSvc, rosterSvc),
		media:       handler.NewMediaHandler(pictures, files),
		audit:       handler.NewAuditHandler(auditSvc),
		observe: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"database": db,
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
