package main

import (
	"context"
	"fmt"
	"os"

	redisbus "github.com/corefin/metrichub/internal/clients/redis"
	"github.com/corefin/metrichub/internal/compute"
	"github.com/corefin/metrichub/internal/db"
	"github.com/corefin/metrichub/internal/handlers"
	"github.com/corefin/metrichub/internal/jobs"
	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/observability"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/server"
	"github.com/corefin/metrichub/internal/services"
	"github.com/corefin/metrichub/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownTracing := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "metrichub",
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if shutdownTracing != nil {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	metricRepo := repos.NewMetricRepo(thePG, log)
	versionRepo := repos.NewMetricVersionRepo(thePG, log)
	caliberRepo := repos.NewCaliberRepo(thePG, log)
	bindingRepo := repos.NewBindingRepo(thePG, log)
	valueRepo := repos.NewMetricValueRepo(thePG, log)
	sourceRepo := repos.NewSourceValueRepo(thePG, log)
	dimRepo := repos.NewDimRepo(thePG, log)
	taskRepo := repos.NewTaskRunRepo(thePG, log)

	// Task event bus (optional)
	var notifier services.TaskNotifier
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err := redisbus.NewTaskBus(log)
		if err != nil {
			log.Warn("Redis task bus init failed, falling back to no-op notifier", "error", err)
			notifier = services.NewNopTaskNotifier()
		} else {
			defer bus.Close()
			notifier = services.NewRedisTaskNotifier(bus, log)
		}
	} else {
		notifier = services.NewNopTaskNotifier()
	}

	// Services
	log.Info("Setting up services from main...")
	metricService := services.NewMetricService(thePG, log, metricRepo, versionRepo)
	caliberService := services.NewCaliberService(thePG, log, caliberRepo)
	bindingService := services.NewBindingService(thePG, log, versionRepo, caliberRepo, bindingRepo)
	dimensionService := services.NewDimensionService(thePG, log, dimRepo)
	taskService := services.NewTaskService(thePG, log, versionRepo, taskRepo, notifier)
	valueService := services.NewValueService(thePG, log, bindingRepo, valueRepo, sourceRepo)

	// Worker pool
	workerCfg := utils.LoadWorkerConfig(log)
	resolver := compute.NewResolver(versionRepo, bindingRepo, log)
	registry := jobs.NewRegistry()
	if err := registry.Register(jobs.NewComputeHandler(thePG, log, workerCfg, resolver, valueRepo, sourceRepo)); err != nil {
		log.Error("Handler registration failed", "error", err)
		os.Exit(1)
	}
	worker := jobs.NewWorker(thePG, log, workerCfg, taskRepo, registry, notifier)
	worker.Start(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	metricHandler := handlers.NewMetricHandler(metricService)
	caliberHandler := handlers.NewCaliberHandler(caliberService)
	bindingHandler := handlers.NewBindingHandler(bindingService)
	dimensionHandler := handlers.NewDimensionHandler(dimensionService)
	taskHandler := handlers.NewTaskHandler(taskService)
	valueHandler := handlers.NewValueHandler(valueService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		MetricHandler:    metricHandler,
		CaliberHandler:   caliberHandler,
		BindingHandler:   bindingHandler,
		DimensionHandler: dimensionHandler,
		TaskHandler:      taskHandler,
		ValueHandler:     valueHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
