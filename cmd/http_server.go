package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/ifarm/internal/access"
	"github.com/frahmantamala/ifarm/internal/audit"
	"github.com/frahmantamala/ifarm/internal/auth"
	"github.com/frahmantamala/ifarm/internal/delegation"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
	"github.com/frahmantamala/ifarm/internal/role"
	"github.com/frahmantamala/ifarm/internal/transport"
	"github.com/frahmantamala/ifarm/internal/transport/rest"
	"github.com/frahmantamala/ifarm/internal/user"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	app, err := buildApp(context.Background(), cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	router, err := setupRoutes(app)
	if err != nil {
		app.Logger.Error("failed to register routes", "error", err)
		app.Close()
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	app.Logger.Info("starting HTTP server", "address", addr, "cache_enabled", app.GrantCache != nil)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		app.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			app.Logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			app.Logger.Error("server failed to start", "error", err)
			app.Close()
			os.Exit(1)
		}
	}

	app.Close()
	app.Logger.Info("server stopped")
}

func setupRoutes(app *App) (*chi.Mux, error) {
	base := transport.NewBaseHandler(app.Logger)

	checks := map[string]rest.Checker{"postgres": app.SQL.PingContext}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }
	}

	handlers := rest.Handlers{
		Health:     rest.NewHealthHandler(base, checks),
		Auth:       auth.NewHandler(base, app.Auth),
		User:       user.NewHandler(base, app.Users),
		Permission: permission.NewHandler(base, app.Catalog),
		Role:       role.NewHandler(base, app.Roles),
		Policy:     policy.NewHandler(base, app.Policies),
		Delegation: delegation.NewHandler(base, app.Delegations, app.Engine),
		Access:     access.NewHandler(base, app.Engine, app.Users),
		Audit:      audit.NewHandler(base, app.Audit),
	}

	router := chi.NewRouter()
	err := rest.RegisterAllRoutes(router, handlers, app.Engine, rest.Options{
		Origins:          app.Config.Server.Origins(),
		Production:       app.Config.IsProduction(),
		DecideRateLimit:  app.Config.Access.DecideRateLimit,
		DecideRateWindow: app.Config.Access.DecideRateWindow,
	}, app.Logger)
	if err != nil {
		return nil, err
	}
	return router, nil
}
