package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cppla/discussion/config"
	"github.com/cppla/discussion/notifications"
	"github.com/cppla/discussion/routes"
	"github.com/cppla/discussion/storage"
	"github.com/cppla/discussion/utils"
)

const serviceName = "discussion"

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := utils.InitTracing(ctx, serviceName)
	if err != nil {
		utils.Sugar.Fatalf("init tracing: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		utils.Sugar.Fatalf("init database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		utils.Sugar.Fatalf("get sql.DB: %v", err)
	}

	if rc := utils.InitRedis(cfg.Redis); rc == nil {
		utils.Sugar.Info("redis not configured, response cache disabled")
	}

	store, err := storage.NewMinIO(ctx, cfg.MinIO)
	if errors.Is(err, storage.ErrStorageDisabled) {
		utils.Sugar.Info("minio not configured, attachments disabled")
		store = nil
	} else if err != nil {
		utils.Sugar.Fatalf("init storage: %v", err)
	}

	registry := notifications.NewRegistry()
	if err := notifications.RegisterTables(registry, db, cfg.Notify.RelatedTables); err != nil {
		utils.Sugar.Fatalf("register related objects: %v", err)
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	notifyMetrics, err := notifications.NewMetrics(metrics)
	if err != nil {
		utils.Sugar.Fatalf("register notification metrics: %v", err)
	}

	var sender notifications.Sender = notifications.NewStoreSender(db)
	if cfg.Notify.Email {
		sender = notifications.MultiSender{sender, notifications.NewMailSender(nil)}
	}
	notifier := notifications.NewNotifier(db, registry, sender,
		notifications.WithSync(cfg.Notify.Sync),
		notifications.WithTimeout(time.Duration(cfg.Notify.TimeoutSec)*time.Second),
		notifications.WithMetrics(notifyMetrics),
	)

	utils.StartNotificationPruner(ctx, db,
		time.Duration(cfg.Notify.PruneReadAfterDays)*24*time.Hour,
		time.Duration(cfg.Notify.PruneIntervalMinute)*time.Minute,
	)

	r, err := routes.SetupRouter(cfg, routes.Deps{
		DB:       db,
		Storage:  store,
		Notifier: notifier,
		Registry: registry,
		Metrics:  metrics,
	})
	if err != nil {
		utils.Sugar.Fatalf("setup router: %v", err)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.App.AppPort)
	err = utils.GraceServer(":"+cfg.App.AppPort, otelhttp.NewHandler(r, serviceName),
		time.Duration(cfg.App.ShutdownTimeoutSec)*time.Second,
		notifier.Wait,
		func(context.Context) error { cancel(); return nil },
		shutdownTracing,
		func(context.Context) error { return sqlDB.Close() },
	)
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
