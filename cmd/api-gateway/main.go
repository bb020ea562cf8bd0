package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/nhb-competitie-api/api/swagger"
	"github.com/noah-isme/nhb-competitie-api/internal/handler"
	internalmiddleware "github.com/noah-isme/nhb-competitie-api/internal/middleware"
	"github.com/noah-isme/nhb-competitie-api/internal/models"
	"github.com/noah-isme/nhb-competitie-api/internal/repository"
	"github.com/noah-isme/nhb-competitie-api/internal/service"
	"github.com/noah-isme/nhb-competitie-api/pkg/cache"
	"github.com/noah-isme/nhb-competitie-api/pkg/config"
	"github.com/noah-isme/nhb-competitie-api/pkg/database"
	"github.com/noah-isme/nhb-competitie-api/pkg/jobs"
	"github.com/noah-isme/nhb-competitie-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/nhb-competitie-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/nhb-competitie-api/pkg/middleware/requestid"
)

// @title NHB Competitie API
// @version 1.0.0
// @description Competition phases, kampioenschap rosters and the webshop cart of the federation.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(context.Background(), cfg.Database, "nhb-api")
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// The API keeps serving without Redis: pings fall back to polling and
	// cart counts are read from the database.
	redisClient, err := cache.NewRedis(context.Background(), cfg.Redis, "nhb-api")
	if err != nil {
		logr.Warn("redis unavailable, running without cache and pings", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	stores := service.NewStores(db)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	mutationCfg := service.MutationServiceConfig{
		Wait:    jobs.WaitConfig{Initial: cfg.Mutations.WaitInitial, Budget: cfg.Mutations.WaitBudget},
		Metrics: metricsSvc,
	}
	if redisClient != nil && cfg.Mutations.UseRedisPing {
		mutationCfg.CompetitionPing = jobs.NewRedisSignal(redisClient, pingChannel(service.QueueCompetition))
		mutationCfg.CartPing = jobs.NewRedisSignal(redisClient, pingChannel(service.QueueCart))
	}
	mutationSvc := service.NewMutationService(service.NewSQLTx(db), stores, validate, mutationCfg, logr)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix)
	}
	countSvc := service.NewCartCountService(cacheRepo, repository.NewCartRepository(db), metricsSvc, cfg.Cart.CountInterval, logr)
	cartSvc := service.NewCartService(service.NewSQLTx(db), countSvc, cfg.Cart.FederationClubID, logr)

	competitionHandler := handler.NewCompetitionHandler(mutationSvc)
	kampHandler := handler.NewKampioenschapHandler(mutationSvc)
	cartHandler := handler.NewCartHandler(mutationSvc, cartSvc, countSvc)
	mutationHandler := handler.NewMutationHandler(mutationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessProbes(db.PingContext, redisClient))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))

	competitions := api.Group("/competitions", internalmiddleware.RequireRoles(models.RoleBKO))
	competitions.POST("/season", competitionHandler.OpenSeason)
	competitions.POST("/seed-averages", competitionHandler.FixSeedAverages)
	competitions.POST("/:id/transitions", competitionHandler.Transition)

	kamps := api.Group("/kampioenschappen")
	kamps.POST("/:id/cut", internalmiddleware.RequireRoles(models.RoleBKO, models.RoleRKO), kampHandler.Cut)
	entrants := kamps.Group("/entrants")
	entrants.POST("/:id/sign-on", internalmiddleware.RequireRoles(models.RoleHWL, models.RoleRKO), kampHandler.SignOn)
	entrants.POST("/:id/sign-off", internalmiddleware.RequireRoles(models.RoleHWL, models.RoleRKO), kampHandler.SignOff)
	entrants.POST("/:id/move", internalmiddleware.RequireRoles(models.RoleBKO, models.RoleRKO), kampHandler.MoveClass)

	mutations := api.Group("/mutations")
	mutations.GET("/competition/:id", mutationHandler.CompetitionStatus)
	mutations.GET("/cart/:id", mutationHandler.CartStatus)

	shoppers := internalmiddleware.RequireRoles(models.RoleSporter, models.RoleHWL)
	cart := api.Group("/cart", shoppers)
	cart.GET("", cartHandler.Contents)
	cart.GET("/count", cartHandler.Count)
	cart.POST("/registrations", cartHandler.AddRegistration)
	cart.DELETE("/items/:id", cartHandler.RemoveItem)
	cart.POST("/discount-code", cartHandler.SetDiscountCode)
	cart.POST("/checkout", cartHandler.Checkout)
	api.POST("/registrations/:id/cancel", shoppers, cartHandler.CancelRegistration)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

// pingChannel is the Redis pub/sub channel shared with the mutaties worker.
func pingChannel(queue string) string {
	return "mutaties:" + queue
}

func readinessProbes(dbPing func(context.Context) error, client *redis.Client) map[string]func(context.Context) error {
	probes := map[string]func(context.Context) error{"database": dbPing}
	if client != nil {
		probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return probes
}
