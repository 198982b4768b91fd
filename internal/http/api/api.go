// Package api wires the HTTP surface: route registration, JWT auth
// middleware, and token issuance.
package api

import (
	"net/http"

	"github.com/rankpilot/rankpilot/internal/config"
	"github.com/rankpilot/rankpilot/internal/crawl"
	"github.com/rankpilot/rankpilot/internal/http/api/handlers"
	"github.com/rankpilot/rankpilot/internal/provider"
	"github.com/rankpilot/rankpilot/internal/quota"
	"github.com/rankpilot/rankpilot/internal/rank"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies carries the services the HTTP layer exposes.
type Dependencies struct {
	DB      *gorm.DB
	JWT     config.JWTConfig
	Quota   *quota.Engine
	Drivers *provider.DriverRegistry
	Manager *crawl.Manager
	Tracker *rank.Tracker
}

// RegisterRoutes mounts the versioned API on the gin engine. Everything
// under /api/v1 except login and health requires a bearer token.
func RegisterRoutes(engine *gin.Engine, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, IssueToken)
	planHandler := handlers.NewPlanHandler(deps.DB)
	domainHandler := handlers.NewDomainHandler(deps.DB, deps.Quota)
	keywordHandler := handlers.NewKeywordHandler(deps.DB)
	providerHandler := handlers.NewProviderHandler(deps.DB, deps.Drivers)
	preferenceHandler := handlers.NewPreferenceHandler(deps.DB)
	quotaHandler := handlers.NewQuotaHandler(deps.DB, deps.Quota)
	taskHandler := handlers.NewTaskHandler(deps.Manager)
	rankHandler := handlers.NewRankHandler(deps.Tracker)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")
	v1.POST("/auth/login", authHandler.Login)
	v1.GET("/plans", planHandler.List)

	authed := v1.Group("")
	authed.Use(AuthMiddleware(deps.JWT))

	authed.GET("/domains", domainHandler.List)
	authed.POST("/domains", domainHandler.Create)
	authed.PATCH("/domains/:id/status", domainHandler.UpdateStatus)

	authed.GET("/domains/:id/keywords", keywordHandler.List)
	authed.POST("/domains/:id/keywords", keywordHandler.Create)

	authed.GET("/providers", providerHandler.List)
	authed.GET("/providers/settings", providerHandler.ListSettings)
	authed.PUT("/providers/:code/settings", providerHandler.UpsertSetting)

	authed.GET("/domains/:id/preferences", preferenceHandler.List)
	authed.PUT("/domains/:id/preferences", preferenceHandler.Upsert)

	authed.GET("/usage", quotaHandler.Summary)
	authed.GET("/usage/costs", quotaHandler.Costs)

	authed.POST("/domains/:id/tasks/speed", taskHandler.RunSpeedCheck)
	authed.POST("/domains/:id/tasks/crawl", taskHandler.RunCrawl)
	authed.POST("/domains/:id/tasks/backlinks", taskHandler.RunBacklinksFetch)
	authed.POST("/domains/:id/tasks/serp", taskHandler.RunSerpCheck)

	authed.GET("/rank/winners", rankHandler.Winners)
	authed.GET("/rank/losers", rankHandler.Losers)
}
