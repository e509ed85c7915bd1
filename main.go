package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"reminder-service/internal/analysis"
	"reminder-service/internal/api"
	"reminder-service/internal/config"
	"reminder-service/internal/db"
	"reminder-service/internal/delivery"
	"reminder-service/internal/jira"
	"reminder-service/internal/jobs"
	"reminder-service/internal/kafka"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/providers"
	"reminder-service/internal/services"
)

var (
	_ services.Store          = (*db.DB)(nil)
	_ delivery.HistoryStore   = (*db.DB)(nil)
	_ delivery.EventSink      = (*kafka.Publisher)(nil)
	_ analysis.ItemSource     = (*jira.Client)(nil)
	_ analysis.ActivitySource = (*jira.Client)(nil)
	_ jobs.Locker             = (*db.DB)(nil)
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := config.LoadEngine(cfg.EngineFile)
	if err != nil {
		logger.Fatalf("Engine configuration invalid: %v", err)
	}
	engine, err := config.NewEngineStore(eng)
	if err != nil {
		logger.Fatalf("Engine configuration invalid: %v", err)
	}

	// Connect to database
	dbConn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.Migrate(ctx); err != nil {
		logger.Fatalf("Database migration failed: %v", err)
	}

	tracker, err := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Username, cfg.Jira.Token, cfg.Jira.StoryPointsField, logger)
	if err != nil {
		logger.Fatalf("Jira client init failed: %v", err)
	}

	orch := analysis.NewOrchestrator(engine, analysis.Collaborators{
		Items:       tracker,
		Activity:    tracker,
		Preferences: dbConn,
		Sent:        dbConn,
	}, logger, analysis.WithDefaultJQL(cfg.Jira.DefaultJQL))

	mgrOpts := []delivery.Option{
		delivery.OnDelivered(func(n models.Notification) {
			orch.Invalidate(n.IssueKey)
			orch.InvalidateRecipient(n.RecipientID)
		}),
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.EventsTopic != "" {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer publisher.Close()
		mgrOpts = append(mgrOpts, delivery.WithEvents(publisher))
	}
	mgr := delivery.NewManager(engine, dbConn, logger, mgrOpts...)

	hub := providers.NewHub(logger)
	mgr.Register(providers.NewInApp(hub))
	mgr.Register(providers.NewInbox(dbConn))
	mgr.Register(providers.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.RatePerSecond, logger, nil))
	mgr.Register(providers.NewEmail(providers.EmailConfig{
		SMTPServer: cfg.Email.SMTPServer,
		SMTPPort:   cfg.Email.SMTPPort,
		Username:   cfg.Email.Username,
		Password:   cfg.Email.Password,
		FromName:   cfg.Email.FromName,
	}, nil))

	// Initialize reminder service
	svc := services.New(engine, orch, mgr, dbConn, logger, services.Options{
		QueueSize:  cfg.Notification.QueueSize,
		MaxWorkers: cfg.Notification.MaxWorkers,
	})
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Initialize Kafka consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, svc, logger)
		defer consumer.Close()
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	} else {
		logger.Warnf("KAFKA_BROKERS not set, tracker events disabled")
	}

	driver, err := jobs.NewCron(cfg, svc, dbConn, logger)
	if err != nil {
		logger.Fatalf("Scheduler init failed: %v", err)
	}
	driver.Start()

	// Start API server
	router := api.NewRouter(cfg.API.BasePath, svc, hub, logger)
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	driver.Stop()
	svc.Stop()
	wg.Wait()
	logger.Infof("Service stopped")
}
