package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/weathermail/weathermail/api"
	"github.com/weathermail/weathermail/datastore"
	"github.com/weathermail/weathermail/delivery"
	"github.com/weathermail/weathermail/processing"
	rh "github.com/weathermail/weathermail/route-handlers"
	"github.com/weathermail/weathermail/scheduler"
	"github.com/weathermail/weathermail/weather"
)

const (
	defaultPort            = "4000"
	defaultDatabaseURL     = "user=postgres password=password dbname=weathermail host=localhost port=5432 sslmode=disable"
	defaultDigestCron      = "0 7 * * *" // 7:00 AM
	defaultSendGridFrom    = "weatherinmail@gmail.com"
	defaultSendGridName    = "WeatherMail"
	defaultUnsubscribeLink = "https://weathermail.com/preferences"
	defaultWelcomeLogoURL  = "https://weathermail.com/assets/images/emailheaderlogo.png"
	dbPingTimeout          = 5 * time.Second
	shutdownTimeout        = 15 * time.Second
	outboundHTTPTimeout    = 10 * time.Second
	dbMaxOpenConns         = 25
	dbMaxIdleConns         = 25
	dbConnMaxLifetime      = 5 * time.Minute
)

type config struct {
	port              string
	databaseURL       string
	digestCron        string
	cronTimezone      string
	sendGridAPIKey    string
	sendGridFromEmail string
	sendGridFromName  string
	openWeatherAPIKey string
	adminAPIKey       string
	unsubscribeLink   string
	welcomeLogoURL    string
	version           string
}

func main() {
	cfg := loadConfig()

	db, err := setupDatabase(cfg.databaseURL)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer db.Close()

	subscriberRepo := datastore.NewSubscriberRepository(db)

	// Outbound dependencies share one HTTP client with a bounded timeout.
	httpClient := &http.Client{Timeout: outboundHTTPTimeout}

	emailProvider := delivery.NewSendGridProvider(httpClient, cfg.sendGridAPIKey, cfg.sendGridFromEmail, cfg.sendGridFromName)
	mailer := delivery.NewMailer(emailProvider, cfg.unsubscribeLink, cfg.welcomeLogoURL)

	weatherClient := weather.NewClient(httpClient, cfg.openWeatherAPIKey)
	geocoder := weather.NewGeocoder(httpClient, cfg.openWeatherAPIKey)

	digestProcessor := processing.NewDigestProcessor(subscriberRepo, weatherClient, mailer)

	digestScheduler := scheduler.New(digestProcessor, cfg.digestCron, cfg.cronTimezone)
	if err := digestScheduler.Start(); err != nil {
		log.Fatalf("Scheduler setup failed: %v", err)
	}
	defer digestScheduler.Stop()

	router := api.SetupRoutes(api.Handlers{
		Subscription:  rh.NewSubscriptionHandler(subscriberRepo, mailer),
		City:          rh.NewCityHandler(geocoder),
		Email:         rh.NewEmailHandler(cfg.unsubscribeLink, cfg.welcomeLogoURL),
		Health:        rh.NewHealthHandler(subscriberRepo, cfg.version),
		Admin:         rh.NewAdminHandler(subscriberRepo, mailer),
		SchedulerTick: digestScheduler.HandleTick,
		AdminKey:      cfg.adminAPIKey,
	})

	startServer(cfg.port, router)
}

func loadConfig() config {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found: %v", err)
	}

	cfg := config{
		port:              getenvDefault("PORT", defaultPort),
		databaseURL:       os.Getenv("DB_CONNECTION_STRING"),
		digestCron:        getenvDefault("DAILY_DIGEST_CRON", defaultDigestCron),
		cronTimezone:      os.Getenv("CRON_TZ"),
		sendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		sendGridFromEmail: getenvDefault("SENDGRID_FROM_EMAIL", defaultSendGridFrom),
		sendGridFromName:  getenvDefault("SENDGRID_FROM_NAME", defaultSendGridName),
		openWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		adminAPIKey:       os.Getenv("ADMIN_API_KEY"),
		unsubscribeLink:   getenvDefault("UNSUBSCRIBE_URL", defaultUnsubscribeLink),
		welcomeLogoURL:    getenvDefault("WELCOME_LOGO_URL", defaultWelcomeLogoURL),
		version:           getenvDefault("GIT_SHA", "dev"),
	}

	if cfg.databaseURL == "" {
		cfg.databaseURL = defaultDatabaseURL
		log.Println("WARNING: DB_CONNECTION_STRING not set, using default local connection string.")
	}
	if cfg.sendGridAPIKey == "" {
		log.Println("WARNING: SENDGRID_API_KEY not set. Email delivery will fail at runtime.")
	}
	if cfg.openWeatherAPIKey == "" {
		log.Println("WARNING: OPENWEATHER_API_KEY not set. Digests will use sample weather data.")
	}
	if cfg.adminAPIKey == "" {
		log.Println("WARNING: ADMIN_API_KEY not set. Admin endpoints will respond 503.")
	}

	return cfg
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupDatabase(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close() // Close unusable connection pool
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection successful")
	return db, nil
}

func startServer(port string, router http.Handler) {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("WeatherMail server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownSignal // Block until signal received
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
