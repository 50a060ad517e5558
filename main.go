package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/mehmetcc/calibration-auth-service/docs"
	"github.com/mehmetcc/calibration-auth-service/internal/authentication"
	"github.com/mehmetcc/calibration-auth-service/internal/metrics"
	"github.com/mehmetcc/calibration-auth-service/internal/user"
	"github.com/mehmetcc/calibration-auth-service/internal/utils"
)

// @title           Calibration Auth Service API
// @version         1.0
// @description     Credential issuance and session lifecycle for the calibration platform.
//
// @host      localhost:8080
// @BasePath  /
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// load config
	cfg, err := utils.LoadConfig(".env")
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// init logger
	logger, err := utils.NewLogger(cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// init database
	db, err := utils.InitDatabase(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := utils.CloseDatabase(db); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()
	if err := db.AutoMigrate(&user.User{}, &authentication.RefreshTokenRecord{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	//
	// WIRE UP SERVICES
	//
	m := metrics.New(prometheus.DefaultRegisterer)
	hasher := utils.NewPasswordHasher(cfg.Security.BcryptCost)
	issuer, err := authentication.NewTokenIssuer(authentication.TokenConfig{
		AccessSecret:  cfg.Token.AccessTokenSecret,
		RefreshSecret: cfg.Token.RefreshTokenSecret,
		AccessTTL:     cfg.Token.AccessTokenTTL,
		RefreshTTL:    cfg.Token.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("configure token issuer: %w", err)
	}

	tokenStore := authentication.NewRecordRepository(db)
	userRepo := user.NewUserRepository(db)
	userService := user.NewUserService(userRepo, hasher, tokenStore, logger)
	sessionService := authentication.NewSessionService(userRepo, hasher, issuer, tokenStore, m, logger)

	// init Gin router
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), m.Middleware())
	if len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	//
	// SWAGGER (protected by Basic Auth, not JWT)
	//
	if cfg.Admin.Username != "" {
		swaggerGroup := router.Group("/swagger", gin.BasicAuth(gin.Accounts{
			cfg.Admin.Username: cfg.Admin.Password,
		}))
		swaggerGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGuard := authentication.AuthMiddleware(issuer, logger)
	public := router.Group("/", utils.RateLimitMiddleware(cfg.Security.AuthRateLimit, logger))
	protected := router.Group("/", authGuard)
	authentication.NewAuthHandler(public, protected, sessionService, authentication.CookieConfig{
		Name:   cfg.Cookie.Name,
		Path:   cfg.Cookie.Path,
		Domain: cfg.Cookie.Domain,
		Secure: cfg.Server.IsProduction(),
		MaxAge: issuer.RefreshTTL(),
	}, logger)

	adminGroup := router.Group("/", authGuard, authentication.RoleMiddleware(user.RoleAdmin, logger))
	user.NewUserHandler(adminGroup, userService, logger)

	//
	// BACKGROUND WORK
	//
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	purger := authentication.NewPurger(tokenStore, cfg.Security.TokenPurgeInterval, m, logger)
	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		purger.Run(ctx)
	}()

	//
	// START SERVER
	//
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serveErr:
		stop()
		<-purgeDone
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped gracefully")
	}
	<-purgeDone
	return nil
}
