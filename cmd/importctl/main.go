package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ignite/attendee-import/internal/config"
	"github.com/ignite/attendee-import/internal/importer"
	"github.com/ignite/attendee-import/internal/notify"
	"github.com/ignite/attendee-import/internal/store"
)

// importctl runs one import from the command line, without the API server.
// Useful for operational backfills and for previewing a file before handing
// it to organizers.
func main() {
	var (
		eventID    = flag.String("event", "", "event UUID (required)")
		file       = flag.String("file", "", "CSV file to import (required)")
		mappingStr = flag.String("mapping", "", "field mapping JSON, e.g. {\"Email Address\":\"email\"}")
		strategy   = flag.String("strategy", "skip", "duplicate strategy: skip or create")
		dryRun     = flag.Bool("dry-run", false, "validate only, import nothing")
		notifyFlag = flag.Bool("notify", false, "send confirmation emails")
		configPath = flag.String("config", "config/config.yaml", "config file path")
	)
	flag.Parse()

	if *eventID == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	evID, err := uuid.Parse(*eventID)
	if err != nil {
		log.Fatalf("Invalid event ID: %v", err)
	}

	var dupStrategy importer.DuplicateStrategy
	switch *strategy {
	case "skip":
		dupStrategy = importer.DuplicateSkip
	case "create":
		dupStrategy = importer.DuplicateCreate
	default:
		log.Fatalf("Unknown strategy %q (want skip or create)", *strategy)
	}

	var mapping importer.FieldMapping
	if *mappingStr != "" {
		if err := json.Unmarshal([]byte(*mappingStr), &mapping); err != nil {
			log.Fatalf("Invalid mapping JSON: %v", err)
		}
	}

	content, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Reading %s: %v", *file, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}

	db, err := sql.Open("postgres", cfg.Database.GetURL())
	if err != nil {
		log.Fatalf("Opening database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Pinging database: %v", err)
	}
	pg := store.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ev, err := pg.GetEvent(ctx, evID)
	if err != nil {
		log.Fatalf("Loading event: %v", err)
	}
	if ev == nil {
		log.Fatalf("Event %s not found", evID)
	}
	log.Printf("Importing into event %q (%s)", ev.Name, ev.ID)

	var notifier importer.Notifier
	if *notifyFlag && cfg.SES.Enabled {
		mailer, err := notify.NewSESMailer(ctx, cfg.SES)
		if err != nil {
			log.Fatalf("Initializing SES: %v", err)
		}
		notifier = mailer
	}

	svc := importer.NewService(pg, notifier)
	svc.Limits = importer.Limits{MaxBytes: cfg.Import.MaxFileBytes, MaxRows: cfg.Import.MaxRows}

	if *dryRun {
		report, err := svc.Validate(ctx, content, ev, mapping, dupStrategy)
		if err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		fmt.Printf("Dry run: %d rows, %d valid, %d errors, %d duplicates, %d warnings\n",
			report.TotalRows, len(report.Valid), len(report.Errors), report.DuplicateCount, len(report.Warnings))
		printErrors(report.Errors)
		return
	}

	result, err := svc.Run(ctx, content, ev, importer.RunOptions{
		Mapping:           mapping,
		Strategy:          dupStrategy,
		SendNotifications: notifier != nil,
		OnProgress: func(attempted, total int) {
			if attempted%500 == 0 || attempted == total {
				log.Printf("  %d/%d rows", attempted, total)
			}
		},
	})
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	fmt.Printf("Import %s: %d imported, %d failed, %d duplicates\n",
		result.Status, result.SuccessCount, result.FailureCount, result.DuplicateCount)
	printErrors(result.Errors)
	if result.Status == importer.StatusCancelled {
		os.Exit(1)
	}
}

func printErrors(errs []importer.ValidationError) {
	for _, e := range errs {
		fmt.Printf("  row %d: %s: %s\n", e.Row, e.Field, e.Message)
	}
}
