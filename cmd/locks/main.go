package main

import (
	"os"

	"eventmarket/internal/identity"
	identityrepo "eventmarket/internal/identity/repository"
	"eventmarket/internal/locks/handler"
	"eventmarket/internal/locks/repository"
	"eventmarket/internal/locks/service"
	"eventmarket/internal/locks/validator"
	"eventmarket/pkg/app"
	"eventmarket/pkg/config"
	"eventmarket/pkg/events"
	"eventmarket/pkg/kafka"
	kafka_config "eventmarket/pkg/kafka/config"
	kafka_middleware "eventmarket/pkg/kafka/middleware"

	"github.com/google/uuid"
)

const ServiceName = "locks"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStorage()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Locks service")
	serverApp := app.NewApplication(cfg)

	instanceID := instanceName()
	notifier := service.NewNotifier()
	publisher := initEvents(cfg, serverApp, notifier, instanceID)

	lockService := initServices(cfg, notifier, publisher)
	serverApp.AddWorker(service.NewSweeper(lockService, cfg.LockSweepInterval, cfg.Log))
	serverApp.SetApp(handler.NewLockHandler(lockService, initResolver(cfg), cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, notifier *service.Notifier, publisher events.Publisher) service.LockService {
	repo, err := repository.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create lock repository", "error", err)
	}

	lockService := service.NewLockService(
		repo,
		validator.NewLockValidator(),
		notifier,
		publisher,
		cfg,
	)

	cfg.Log.Info("Locks service initialized",
		"storage_driver", cfg.StorageDriver,
		"lease_duration", cfg.LockLeaseDuration,
	)
	return lockService
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

// initEvents wires the release topic both ways: this instance publishes its
// releases and wakes local waiters for releases made by its peers. Each
// instance reads with its own group so every peer sees every release.
func initEvents(cfg *config.Config, serverApp *app.Application, notifier *service.Notifier, instanceID string) events.Publisher {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, lock releases are only announced in-process")
		return events.Nop{}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, cfg.KafkaTopicLockEvents, cfg.KafkaDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create lock event producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafka_middleware.MetricsProducerMiddleware())
	serverApp.OnShutdown(producer.Close)

	listener := service.NewReleaseListener(notifier, instanceID, cfg.Log)
	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.Log, cfg.KafkaTopicLockEvents, "lock-release-"+instanceID, "", listener.Handle)
	if err != nil {
		cfg.Log.Fatal("Failed to create lock release consumer", "error", err)
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafka_middleware.MetricsConsumerMiddleware())
	serverApp.AddWorker(kafka.NewWorker("lock-release-listener", consumer))

	return events.NewKafkaPublisher(producer, nil, instanceID)
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = ServiceName
	}
	return host + "-" + uuid.NewString()[:8]
}
