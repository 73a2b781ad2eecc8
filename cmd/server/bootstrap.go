package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/api"
	"github.com/charlesng35/teacherrate/internal/app"
	"github.com/charlesng35/teacherrate/internal/app/maintenance"
	iauth "github.com/charlesng35/teacherrate/internal/auth"
	"github.com/charlesng35/teacherrate/internal/cache"
	"github.com/charlesng35/teacherrate/internal/database"
	"github.com/charlesng35/teacherrate/internal/middleware"
	"github.com/charlesng35/teacherrate/internal/monitoring"
	"github.com/charlesng35/teacherrate/internal/monitoring/checks"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/internal/search"
	"github.com/charlesng35/teacherrate/internal/security"
	"github.com/charlesng35/teacherrate/internal/services"
	"github.com/charlesng35/teacherrate/pkg/logger"
	"github.com/charlesng35/teacherrate/pkg/mail"
)

const indexSyncTimeout = 30 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *cache.RedisStore
	Cache    cache.Store
	Index    search.Index
	Teachers *services.TeacherService
	Cleaner  *maintenance.Cleaner
	Health   *monitoring.HealthManager
	Router   *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Cache = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Cache = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	stack.Index = search.NoopIndex{}
	if cfg.Search.Meilisearch.Enabled {
		index, indexErr := search.NewMeiliIndex(cfg.Search.MeiliClientConfig())
		if indexErr != nil {
			log.Warn("meilisearch unavailable; search falls back to name matching", zap.Error(indexErr))
		} else {
			stack.Index = index
		}
	}

	gateway, err := repository.NewGormGateway(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise repository gateway: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	security.NewAuditService(stack.DB, jwtSvc, cfg).Run(ctx).Log(logger.WithModule("security"))

	stack.Teachers, err = services.NewTeacherService(gateway,
		services.WithTeacherCache(stack.Cache, cfg.Cache.TeacherCacheTTL()),
		services.WithSearchIndex(stack.Index),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise teacher service: %w", err)
	}

	aggregate, err := services.NewAggregateService(gateway)
	if err != nil {
		return nil, fmt.Errorf("initialise aggregate service: %w", err)
	}

	ratings, err := services.NewRatingService(gateway, aggregate, services.WithTeacherObserver(stack.Teachers))
	if err != nil {
		return nil, fmt.Errorf("initialise rating service: %w", err)
	}

	notifier, err := newVerificationNotifier(cfg)
	if err != nil {
		return nil, err
	}

	accounts, err := services.NewAccountService(gateway,
		services.WithVerificationTTL(cfg.Auth.VerificationTTL()),
		services.WithVerificationNotifier(notifier),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise account service: %w", err)
	}

	if _, isNoop := stack.Index.(search.NoopIndex); !isNoop {
		syncCtx, cancel := context.WithTimeout(ctx, indexSyncTimeout)
		synced, syncErr := stack.Teachers.SyncIndex(syncCtx)
		cancel()
		if syncErr != nil {
			log.Warn("search index sync failed", zap.Error(syncErr))
		} else {
			log.Info("search index synced", zap.Int("teachers", synced))
		}
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(gateway, aggregate, dbStore,
			maintenance.WithTokenRetention(cfg.Maintenance.TokenRetention),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
			maintenance.WithReconcileSchedule(cfg.Maintenance.ReconcileSchedule),
			maintenance.WithCachePurgeSchedule(cfg.Maintenance.CachePurgeSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Health = readinessProbes(cfg, stack)

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		JWT:       jwtSvc,
		Config:    cfg,
		Teachers:  stack.Teachers,
		Ratings:   ratings,
		Accounts:  accounts,
		RateStore: middleware.NewCacheRateStore(stack.Cache),
		Readiness: stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// readinessProbes checks the database plus whichever optional backends are
// configured. A backend that failed to initialise is reported degraded.
func readinessProbes(cfg *app.Config, stack *runtimeStack) *monitoring.HealthManager {
	var redisPinger, searchPinger checks.Pinger
	if stack.Redis != nil {
		redisPinger = stack.Redis
	}
	if index, ok := stack.Index.(*search.MeiliIndex); ok {
		searchPinger = index
	}

	return monitoring.NewHealthManager(
		checks.Database(stack.DB, 0),
		checks.Optional("redis", redisPinger, cfg.Cache.Redis.Enabled, cfg.Cache.Redis.Timeout),
		checks.Optional("search", searchPinger, cfg.Search.Meilisearch.Enabled, 0),
	)
}

// newVerificationNotifier delivers verification links over SMTP, or into the
// log when SMTP is disabled.
func newVerificationNotifier(cfg *app.Config) (*services.VerificationMailer, error) {
	var (
		mailer mail.Mailer
		err    error
	)
	if cfg.Email.SMTP.Enabled {
		mailer, err = mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
	} else {
		mailer = mail.NewLogMailer(logger.WithModule("mail"))
	}

	notifier, err := services.NewVerificationMailer(mailer, cfg.Auth.Verification.BaseURL, cfg.Auth.Verification.AppName)
	if err != nil {
		return nil, fmt.Errorf("initialise verification mailer: %w", err)
	}
	return notifier, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			for _, jobErr := range multierr.Errors(err) {
				log.Warn("maintenance shutdown cleanup failed", zap.Error(jobErr))
			}
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Seed.DatabaseSeed()); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
