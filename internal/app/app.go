// Package app boots the server: configuration, database, service wiring,
// and the HTTP listener lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rankpilot/rankpilot/internal/config"
	"github.com/rankpilot/rankpilot/internal/costlog"
	"github.com/rankpilot/rankpilot/internal/crawl"
	"github.com/rankpilot/rankpilot/internal/db"
	"github.com/rankpilot/rankpilot/internal/http/api"
	"github.com/rankpilot/rankpilot/internal/ledger"
	"github.com/rankpilot/rankpilot/internal/provider"
	"github.com/rankpilot/rankpilot/internal/quota"
	"github.com/rankpilot/rankpilot/internal/rank"
	"github.com/rankpilot/rankpilot/internal/ratelimit"
	internalsettings "github.com/rankpilot/rankpilot/internal/settings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful server shutdown after ctx cancellation.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed components and
// blocks until ctx is canceled or the listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	internalsettings.Bind(conn)
	if errValidate := quota.ValidateClassifications(); errValidate != nil {
		return errValidate
	}

	jwtConfig, _ := config.LoadJWTConfig(configPath)
	providerConfig, _ := config.LoadProviderConfig(configPath)

	deps := buildDependencies(conn, jwtConfig, providerConfig)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, deps)

	if port <= 0 {
		port = 8318
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// buildDependencies wires the service graph for the HTTP layer.
func buildDependencies(conn *gorm.DB, jwtConfig config.JWTConfig, providerConfig config.ProviderConfig) api.Dependencies {
	usageLedger := ledger.New(conn, nil)
	engine := quota.NewEngine(conn, usageLedger, internalsettings.DefaultPlanCodeValue(), nil)

	client := &http.Client{Timeout: providerConfig.ExecuteTimeout}
	drivers := provider.NewDriverRegistry(client)
	catalog := provider.NewCatalog(conn)
	resolver := provider.NewResolver(catalog, drivers)

	costs := costlog.NewLogger(conn, nil)
	limiter := ratelimit.NewManager(nil, nil, nil)
	manager := crawl.NewManager(conn, engine, resolver, drivers, costs, limiter, nil)
	tracker := rank.NewTracker(conn, nil)

	return api.Dependencies{
		DB:      conn,
		JWT:     jwtConfig,
		Quota:   engine,
		Drivers: drivers,
		Manager: manager,
		Tracker: tracker,
	}
}
