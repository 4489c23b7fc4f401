package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/scanform/scanform-api/api/swagger"
	"github.com/scanform/scanform-api/internal/handler"
	"github.com/scanform/scanform-api/internal/middleware"
	"github.com/scanform/scanform-api/internal/ratelimit"
	"github.com/scanform/scanform-api/internal/repository"
	"github.com/scanform/scanform-api/internal/service"
	"github.com/scanform/scanform-api/internal/token"
	"github.com/scanform/scanform-api/pkg/cache"
	"github.com/scanform/scanform-api/pkg/config"
	"github.com/scanform/scanform-api/pkg/database"
	"github.com/scanform/scanform-api/pkg/logger"
	corsmiddleware "github.com/scanform/scanform-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scanform/scanform-api/pkg/middleware/requestid"
)

// @title Scanform API
// @version 1.0.0
// @description Authentication and session backend for the Scanform feedback platform
// @BasePath /api/v1
// @schemes http https

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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// Revocation state lives here; without it no token can be
	// verified, so a missing store is fatal at startup.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	metricsSvc := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	revocations := repository.NewRevocationRepository(redisClient, cfg.JWT.StoreTimeout)

	accessCodec := token.NewCodec(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry, cfg.JWT.Issuer)
	refreshCodec := token.NewCodec(cfg.JWT.RefreshSecret, cfg.JWT.RefreshExpiry, cfg.JWT.Issuer)

	sessions := service.NewSessionService(users, revocations, accessCodec, refreshCodec, nil, logr, metricsSvc)
	csrf := service.NewCSRFService(cfg.CSRF.TokenTTL, logr)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.UseRedis {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.JWT.StoreTimeout, logr)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	authHandler := handler.NewAuthHandler(sessions, cfg.IsProduction())
	csrfHandler := handler.NewCSRFHandler(csrf, cfg.IsProduction())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if !cfg.IsProduction() {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(limiter, middleware.RateLimitOptions{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		}, logr, metricsSvc))
	}
	api.Use(middleware.CSRF(csrf, logr, metricsSvc))

	api.GET("/csrf-token", csrfHandler.Token)

	auth := api.Group("/auth")
	{
		loginLimit := middleware.RateLimitOptions{
			Limit:   cfg.RateLimit.LoginLimit,
			Window:  cfg.RateLimit.LoginWindow,
			RouteID: "auth:credentials",
		}
		credentialRoutes := auth.Group("")
		if cfg.RateLimit.Enabled {
			credentialRoutes.Use(middleware.RateLimit(limiter, loginLimit, logr, metricsSvc))
		}
		credentialRoutes.POST("/register", authHandler.Register)
		credentialRoutes.POST("/login", authHandler.Login)

		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.Auth(sessions), authHandler.Logout)
		auth.POST("/change-password", middleware.Auth(sessions), authHandler.ChangePassword)
		auth.GET("/me", middleware.Auth(sessions), authHandler.Me)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
