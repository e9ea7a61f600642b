package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/attendee-import/internal/api"
	"github.com/ignite/attendee-import/internal/archive"
	"github.com/ignite/attendee-import/internal/config"
	"github.com/ignite/attendee-import/internal/importer"
	"github.com/ignite/attendee-import/internal/notify"
	"github.com/ignite/attendee-import/internal/store"
	"github.com/ignite/attendee-import/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Attendee Import Server starting")

	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Config file %s unavailable (%v), using defaults", configPath, err)
		cfg = config.Default()
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.GetURL())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	defer db.Close()
	pg := store.New(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to ping redis at %s: %v", cfg.Redis.GetAddr(), err)
	}
	sessions := worker.NewImportSessionService(redisClient)

	var notifier importer.Notifier
	if cfg.SES.Enabled {
		mailer, err := notify.NewSESMailer(context.Background(), cfg.SES)
		if err != nil {
			log.Fatalf("Failed to initialize SES: %v", err)
		}
		notifier = mailer
		log.Printf("[SES] Confirmation emails enabled (region=%s, sender=%s)", cfg.SES.Region, cfg.SES.Sender)
	} else {
		log.Println("[SES] Confirmation emails disabled")
	}

	archiver, err := archive.New(context.Background(), cfg.Archive)
	if err != nil {
		log.Fatalf("Failed to initialize S3 archive: %v", err)
	}
	if archiver != nil {
		log.Printf("[Archive] Uploads archived to s3://%s/%s", cfg.Archive.S3Bucket, cfg.Archive.S3Prefix)
	}

	svc := importer.NewService(pg, notifier)
	svc.Limits = importer.Limits{
		MaxBytes: cfg.Import.MaxFileBytes,
		MaxRows:  cfg.Import.MaxRows,
	}

	handlers := api.NewHandlers(pg, pg, svc, sessions, archiver)
	server := api.NewServer(handlers)

	addr := fmt.Sprintf("%s:%d", host, port)
	go func() {
		log.Printf("Listening on http://%s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
