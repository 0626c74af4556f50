package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"upswatch/cache"
	"upswatch/config"
	"upswatch/database"
	"upswatch/handlers"
	"upswatch/kafka"
	"upswatch/models"
	"upswatch/notify"
	"upswatch/nut"
	"upswatch/scheduler"
	"upswatch/secrets"
	"upswatch/websocket"
)

// maxPollBackoff caps how long the poller sleeps after repeated failures.
const maxPollBackoff = 5 * time.Minute

// nocommThreshold is the number of consecutive poll failures before COMMBAD
// escalates to NOCOMM.
const nocommThreshold = 5

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting upswatch on port %s, polling %s every %s",
		cfg.Server.Port, cfg.UPSTarget(), cfg.UPS.PollingInterval)

	// Initialize database
	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	if err := db.SeedNotificationSettings(); err != nil {
		log.Fatalf("Failed to seed notification settings: %v", err)
	}

	log.Println("Database connection established")

	// Credentials at rest
	key, err := secrets.LoadOrCreateKey(cfg.Notify.EncryptionKey, cfg.Notify.KeyFile)
	if err != nil {
		log.Fatalf("Failed to resolve encryption key: %v", err)
	}
	box, err := secrets.New(key)
	if err != nil {
		log.Fatalf("Failed to initialize secret store: %v", err)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(cfg.Server.AllowOrigins)
	go wsHub.Run()

	log.Println("WebSocket hub started")

	// Notification channels behind one dispatcher
	emailChannel := notify.NewEmailChannel(db, box, cfg.Notify.MsmtpCommand, cfg.Notify.TestCooldown)
	ntfyChannel := notify.NewNtfyChannel(db, box)
	webhookChannel := notify.NewWebhookChannel(db, box)
	dispatcher := notify.NewDispatcher(db, emailChannel, ntfyChannel, webhookChannel)

	// Optional telemetry export
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.SampleTopic, cfg.Kafka.EventTopic)
	if err != nil {
		log.Fatalf("Failed to initialize kafka producer: %v", err)
	}
	if producer != nil {
		defer producer.Close()
		log.Printf("Kafka export enabled, brokers: %v", cfg.Kafka.Brokers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sample buffer and UPS reader
	loc := cfg.Location()
	aggregator := cache.New(db, loc, cfg.Cache.WindowSeconds, cfg.UPS.PollingInterval)
	reader := nut.NewReader(cfg.UPS.Command, cfg.UPSTarget(), cfg.UPS.CommandTimeout, cfg.UPS.RealpowerNominal)

	poller := &poller{
		cfg:        cfg,
		reader:     reader,
		aggregator: aggregator,
		db:         db,
		hub:        wsHub,
		dispatcher: dispatcher,
		producer:   producer,
	}
	go poller.run(ctx)

	// Maintenance jobs
	sched := scheduler.New(loc)
	sched.Daily("daily-rollup-backfill", 0, 5, true, func(ctx context.Context) error {
		return db.BackfillDailyRollup(time.Now(), loc)
	})
	sched.Start(ctx)

	// Initialize HTTP handlers
	handler := handlers.New(db, wsHub, dispatcher, emailChannel, ntfyChannel, webhookChannel, producer)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	router.Use(func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == "OPTIONS" {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	})

	handler.RegisterRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("HTTP server listening on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()
	sched.Wait()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// poller drives the read/buffer/flush cycle for one UPS.
type poller struct {
	cfg        *config.Config
	reader     *nut.Reader
	aggregator *cache.Aggregator
	db         *database.DB
	hub        *websocket.Hub
	dispatcher *notify.Dispatcher
	producer   *kafka.Producer

	lastStatus string
	failures   int
}

func (p *poller) run(ctx context.Context) {
	interval := p.cfg.UPS.PollingInterval
	wait := interval

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		sample, err := p.reader.Read(ctx)
		if err != nil {
			wait = p.handleReadError(ctx, err, wait)
			continue
		}

		if p.failures >= 1 {
			p.raiseEvent(ctx, models.EventCommOK, "Communication with UPS restored")
		}
		p.failures = 0
		wait = interval

		for _, eventType := range nut.StatusTransitions(p.lastStatus, sample.UPSStatus) {
			p.raiseEvent(ctx, eventType, "")
		}
		p.lastStatus = sample.UPSStatus

		p.aggregator.Add(sample)
		p.hub.BroadcastSample(sample)

		now := time.Now()
		if p.aggregator.IsSaveTime(now) {
			rec, err := p.aggregator.Flush(now)
			if err != nil {
				log.Printf("Failed to flush aggregates: %v", err)
				continue
			}
			if rec != nil {
				p.producer.PublishAggregate(rec)
			}
		}
	}
}

// handleReadError raises communication events and backs the poller off
// exponentially, capped at maxPollBackoff.
func (p *poller) handleReadError(ctx context.Context, err error, wait time.Duration) time.Duration {
	p.failures++

	var connErr *nut.ConnectionError
	if errors.As(err, &connErr) {
		switch p.failures {
		case 1:
			p.raiseEvent(ctx, models.EventCommBad, "Communication with UPS lost")
		case nocommThreshold:
			p.raiseEvent(ctx, models.EventNoComm, "UPS is unavailable")
		}
	}

	log.Printf("Poll failed (%d consecutive): %v", p.failures, err)

	wait *= 2
	if wait > maxPollBackoff {
		wait = maxPollBackoff
	}
	return wait
}

// raiseEvent records a detected transition and fans out notifications. The
// event is persisted before any delivery is attempted.
func (p *poller) raiseEvent(ctx context.Context, eventType models.EventType, message string) {
	event, err := p.db.RecordEvent(p.cfg.UPS.Name, eventType, message, "")
	if err != nil {
		log.Printf("Failed to record %s event: %v", eventType, err)
		return
	}

	log.Printf("Event recorded: %s for %s", eventType, p.cfg.UPS.Name)

	p.hub.BroadcastEvent(event)
	p.producer.PublishEvent(event)

	go p.dispatcher.Dispatch(context.WithoutCancel(ctx), event)
}
