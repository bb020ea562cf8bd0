package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	"github.com/noah-isme/nhb-competitie-api/internal/repository"
	"github.com/noah-isme/nhb-competitie-api/internal/service"
	"github.com/noah-isme/nhb-competitie-api/pkg/broker"
	"github.com/noah-isme/nhb-competitie-api/pkg/cache"
	"github.com/noah-isme/nhb-competitie-api/pkg/config"
	"github.com/noah-isme/nhb-competitie-api/pkg/database"
	"github.com/noah-isme/nhb-competitie-api/pkg/jobs"
	"github.com/noah-isme/nhb-competitie-api/pkg/logger"
)

type queueName int

const (
	queueCompetition queueName = iota
	queueCart
)

func (q queueName) String() string {
	if q == queueCart {
		return service.QueueCart
	}
	return service.QueueCompetition
}

// runner is one processor bound to its wake channel.
type runner interface {
	Run(ctx context.Context, stopAt time.Time) error
}

// worker holds the connections shared by the processors of one run.
type worker struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sqlx.DB
	redis     *redis.Client
	publisher *broker.Publisher
	metrics   *service.MetricsService
	signals   []*jobs.RedisSignal
}

func newWorker() (*worker, error) {
	if err := jobs.ValidateDuration(globalFlags.duration); err != nil {
		return nil, err
	}
	if globalFlags.stopExactly > 59 {
		return nil, fmt.Errorf("invalid --stop-exactly %d, expected 0-59", globalFlags.stopExactly)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if _, err := maxprocs.Set(maxprocs.Logger(logr.Sugar().Infof)); err != nil {
		logr.Warn("set GOMAXPROCS failed", zap.Error(err))
	}

	db, err := database.NewPostgres(context.Background(), cfg.Database, programName)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	w := &worker{cfg: cfg, logger: logr, db: db, metrics: service.NewMetricsService()}
	// redis carries the cart count cache and, when enabled, the pings
	client, err := cache.NewRedis(context.Background(), cfg.Redis, programName)
	if err != nil {
		logr.Warn("redis unavailable, polling only and no cart count invalidation", zap.Error(err))
	} else {
		w.redis = client
	}
	if cfg.Broker.URL != "" {
		w.publisher = broker.NewPublisher(cfg.Broker)
	}
	return w, nil
}

func (w *worker) close() {
	for _, s := range w.signals {
		_ = s.Close()
	}
	if w.publisher != nil {
		_ = w.publisher.Close()
	}
	if w.redis != nil {
		_ = w.redis.Close()
	}
	_ = w.db.Close()
	_ = w.logger.Sync()
}

func (w *worker) stopAt(now time.Time) time.Time {
	opts := jobs.StopOptions{
		Duration: globalFlags.duration,
		Margin:   w.cfg.Mutations.StopMargin,
		Quick:    globalFlags.quick,
	}
	minute := globalFlags.stopExactly
	if minute < 0 {
		minute = w.cfg.Mutations.StopMinute
	}
	if minute >= 0 && minute <= 59 {
		opts.StopMinute = &minute
	}
	return jobs.StopAt(now, opts)
}

func (w *worker) waiter(queue queueName) jobs.Waiter {
	if w.redis == nil || !w.cfg.Mutations.UseRedisPing {
		return jobs.NewLocalSignal()
	}
	signal := jobs.NewRedisSignal(w.redis, "mutaties:"+queue.String())
	w.signals = append(w.signals, signal)
	return signal
}

func (w *worker) roster() service.RosterConfig {
	return service.RosterConfig{Cap: w.cfg.Kampioenschap.RosterCap, DefaultLimit: w.cfg.Kampioenschap.DefaultLimit}
}

func (w *worker) processor(queue queueName) runner {
	tx := service.NewSQLTx(w.db)
	cfg := jobs.ProcessorConfig{Logger: logger.ForQueue(w.logger, queue.String()), Observer: w.metrics}

	switch queue {
	case queueCart:
		var cacheRepo service.CacheRepository
		if w.redis != nil {
			cacheRepo = repository.NewCacheRepository(w.redis, w.cfg.Redis.KeyPrefix)
		}
		counts := service.NewCartCountService(cacheRepo, repository.NewCartRepository(w.db), w.metrics, w.cfg.Cart.CountInterval, w.logger)
		carts := service.NewCartService(tx, counts, w.cfg.Cart.FederationClubID, w.logger)
		cfg.PollInterval = w.cfg.Mutations.CartPoll
		cfg.CodeName = service.CartCodeName
		return jobs.NewProcessor[*models.CartMutation](queue.String(), repository.NewCartMutationRepository(w.db), w.waiter(queue),
			service.CartHandlers(carts), cfg)
	default:
		var notifier *service.TaskNotifier
		if w.publisher != nil {
			notifier = service.NewTaskNotifier(w.publisher, w.logger)
		}
		phases := service.NewPhaseService(tx, notifier, w.roster(), w.logger)
		kamps := service.NewKampService(tx, w.roster(), w.logger)
		cfg.PollInterval = w.cfg.Mutations.CompetitionPoll
		cfg.CodeName = service.CompetitionCodeName
		return jobs.NewProcessor[*models.CompetitionMutation](queue.String(), repository.NewCompetitionMutationRepository(w.db), w.waiter(queue),
			service.CompetitionHandlers(phases, kamps), cfg)
	}
}

// serveMetrics exposes /metrics until ctx is done.
func (w *worker) serveMetrics(ctx context.Context) error {
	addr := w.cfg.Metrics.WorkerAddr
	if globalFlags.metricsAddr != "" {
		addr = globalFlags.metricsAddr
	}
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", w.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	w.logger.Info("metrics listener starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
