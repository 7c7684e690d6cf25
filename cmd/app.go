package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/access"
	"github.com/frahmantamala/ifarm/internal/audit"
	auditPostgres "github.com/frahmantamala/ifarm/internal/audit/postgres"
	"github.com/frahmantamala/ifarm/internal/auth"
	"github.com/frahmantamala/ifarm/internal/cache"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/frahmantamala/ifarm/internal/delegation"
	delegationPostgres "github.com/frahmantamala/ifarm/internal/delegation/postgres"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
	policyPostgres "github.com/frahmantamala/ifarm/internal/policy/postgres"
	"github.com/frahmantamala/ifarm/internal/role"
	rolePostgres "github.com/frahmantamala/ifarm/internal/role/postgres"
	"github.com/frahmantamala/ifarm/internal/tenant"
	tenantPostgres "github.com/frahmantamala/ifarm/internal/tenant/postgres"
	"github.com/frahmantamala/ifarm/internal/user"
	userPostgres "github.com/frahmantamala/ifarm/internal/user/postgres"
	"github.com/frahmantamala/ifarm/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// App holds the wired services shared by the server, worker and operator
// commands.
type App struct {
	Config *internal.Config
	Logger *slog.Logger

	GormDB *gorm.DB
	SQL    *sql.DB
	Redis  *redis.Client
	Bus    *events.EventBus

	Catalog     *permission.Catalog
	Tenants     *tenant.Service
	Users       *user.Service
	Policies    *policy.Service
	Roles       *role.Service
	Delegations *delegation.Service
	Audit       *audit.Service
	AuditWriter *audit.Writer
	Auth        *auth.Service
	Engine      *access.Engine
	GrantCache  *cache.GrantCache
}

// buildApp opens the stores and wires every service. withRedis forces a
// redis connection even when the grant cache is disabled.
func buildApp(ctx context.Context, cfg *internal.Config, withRedis bool) (*App, error) {
	lg := logger.LoggerWrapper()

	gdb, err := initGorm(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}

	app := &App{
		Config:  cfg,
		Logger:  lg,
		GormDB:  gdb,
		SQL:     sqlDB,
		Bus:     events.NewEventBus(lg),
		Catalog: permission.System(),
	}

	if cfg.Access.CacheEnabled || withRedis {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		app.Redis = client
	}

	auditStore := auditPostgres.NewStore(sqlx.NewDb(sqlDB, "pgx"))
	app.AuditWriter = audit.NewWriter(auditStore, audit.Config{
		QueueSize:    cfg.Audit.QueueSize,
		Workers:      cfg.Audit.Workers,
		WriteTimeout: cfg.Audit.WriteTimeout,
	}, lg)
	app.Audit = audit.NewService(auditStore, lg)
	audit.Subscribe(app.Bus, app.AuditWriter)

	app.Tenants = tenant.NewService(tenantPostgres.NewTenantRepository(gdb))
	app.Users = user.NewService(userPostgres.NewUserRepository(gdb))
	app.Policies = policy.NewService(policyPostgres.NewPolicyRepository(gdb), app.Bus, lg)
	app.Roles = role.NewService(rolePostgres.NewRoleRepository(gdb), app.Catalog, app.Policies, app.Users, app.Bus, lg)
	app.Delegations = delegation.NewService(delegationPostgres.NewDelegationRepository(gdb), app.Catalog, app.Roles, app.Users, app.Bus, lg)

	app.Engine = access.NewEngine(app.Catalog, access.Sources{
		Roles:       app.Roles,
		Delegations: app.Delegations,
		Policies:    app.Policies,
		Tenants:     app.Tenants,
	}, app.AuditWriter, lg)

	if cfg.Access.CacheEnabled && app.Redis != nil {
		app.GrantCache = cache.NewGrantCache(app.Redis, cfg.Access.CacheTTL, lg)
		app.GrantCache.Subscribe(app.Bus)
		app.Engine.WithCache(app.GrantCache)
	}

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	app.Auth = auth.NewService(app.Users, tokens, cfg.Security.BCryptCost, lg)

	return app, nil
}

// Close drains pending events and audit entries before releasing connections.
func (a *App) Close() {
	a.Bus.Wait()
	a.AuditWriter.Shutdown()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}
	if err := a.SQL.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
	}
}

// initGorm opens the postgres pool shared by gorm repositories and the sqlx
// audit store.
func initGorm(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
