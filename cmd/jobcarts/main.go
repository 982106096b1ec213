package main

import (
	"eventmarket/internal/identity"
	identityrepo "eventmarket/internal/identity/repository"
	"eventmarket/internal/jobcarts/handler"
	"eventmarket/internal/jobcarts/repository"
	"eventmarket/internal/jobcarts/service"
	"eventmarket/internal/jobcarts/validator"
	"eventmarket/pkg/app"
	"eventmarket/pkg/config"
	"eventmarket/pkg/events"
	"eventmarket/pkg/kafka"
	kafka_config "eventmarket/pkg/kafka/config"
	kafka_middleware "eventmarket/pkg/kafka/middleware"
	"eventmarket/pkg/session"
)

const ServiceName = "job-carts"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStorage()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Job Carts service")
	serverApp := app.NewApplication(cfg)

	publisher := initEvents(cfg, serverApp)
	jobCartService := initServices(cfg, publisher)
	serverApp.SetApp(handler.NewJobCartHandler(jobCartService, initResolver(cfg), cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, publisher events.Publisher) service.JobCartService {
	carts, claims, err := repository.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create job cart repositories", "error", err)
	}

	jobCartService := service.NewJobCartService(
		carts,
		claims,
		validator.NewJobCartValidator(),
		publisher,
		session.NewState(),
		cfg,
	)

	cfg.Log.Info("Job Carts service initialized", "storage_driver", cfg.StorageDriver)
	return jobCartService
}

func initResolver(cfg *config.Config) *identity.Resolver {
	users, err := identityrepo.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create user repository", "error", err)
	}
	resolver, err := identity.NewResolver(users, cfg.IdentityCacheSize, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create identity resolver", "error", err)
	}
	return resolver
}

func initEvents(cfg *config.Config, serverApp *app.Application) events.Publisher {
	if !cfg.KafkaEnabled {
		return events.Nop{}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, cfg.KafkaTopicJobCartEvents, cfg.KafkaDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create job cart event producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafka_middleware.MetricsProducerMiddleware())
	serverApp.OnShutdown(producer.Close)

	return events.NewKafkaPublisher(nil, producer, ServiceName)
}
