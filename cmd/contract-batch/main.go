package main

// Batch-review contract files against a running API server:
//   go run ./cmd/contract-batch -dir ./contracts -server http://localhost:8080/api/v1
// With -watch the directory is also monitored for new files.

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"contract-backend/internal/analyzer"
	"contract-backend/internal/apiclient"
	"contract-backend/internal/extract/ocr"
	"contract-backend/internal/ingest"
	"contract-backend/internal/shared/config"
)

func main() {
	var (
		dir          = flag.String("dir", ".", "directory containing contract files")
		server       = flag.String("server", "http://localhost:8080/api/v1", "API base URL")
		workers      = flag.Int("workers", 3, "concurrent analyses")
		watch        = flag.Bool("watch", false, "keep watching the directory for new files")
		guestID      = flag.String("guest", "", "guest identity (generated when empty)")
		businessType = flag.String("business-type", "", "business type for analysis context")
		concerns     = flag.String("concerns", "", "legal concerns for analysis context")
	)
	flag.Parse()

	cfg := config.Load()
	guest := *guestID
	if guest == "" {
		guest = uuid.NewString()
	}

	client := apiclient.NewClient(*server,
		apiclient.WithGuestID(guest),
		apiclient.WithPollInterval(cfg.PollInterval),
	)
	images := ocr.New(ocr.Config{
		Binary:      cfg.OCRBinary,
		Languages:   cfg.OCRLanguages,
		TessdataDir: cfg.OCRTessdataDir,
	})
	a := analyzer.New(client, images, analyzer.Options{
		PollAttempts:      cfg.PollMaxAttempts,
		CompressThreshold: cfg.CompressThreshold,
	})
	userCtx := apiclient.UserContext{
		BusinessType:  *businessType,
		LegalConcerns: *concerns,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)

	run := func(path string) {
		g.Go(func() error {
			start := time.Now()
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Printf("FAIL  %s  read: %v\n", path, err)
				return nil
			}
			result, err := a.Analyze(ctx, path, data, userCtx)
			if err != nil {
				fmt.Printf("FAIL  %s  %v\n", path, err)
				return nil
			}
			tag := ""
			if result.Fallback {
				tag = "  [pattern-only]"
			}
			fmt.Printf("OK    %s  score=%d risks=%d %.1fs%s\n",
				path, result.Score, len(result.Risks), time.Since(start).Seconds(), tag)
			return nil
		})
	}

	if *watch {
		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{*dir},
			InitialScan: true,
			Debounce:    500 * time.Millisecond,
		})
		if err != nil {
			log.Fatalf("watcher error: %v", err)
		}
		log.Printf("watching %s (workers=%d)", *dir, *workers)
		go func() {
			for err := range errs {
				log.Printf("watcher: %v", err)
			}
		}()
		for path := range events {
			run(path)
		}
	} else {
		paths, err := ingest.Scan([]string{*dir}, nil)
		if err != nil {
			log.Fatalf("scan error: %v", err)
		}
		if len(paths) == 0 {
			log.Printf("no contract files under %s", *dir)
		}
		for _, path := range paths {
			run(path)
		}
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("batch error: %v", err)
	}
}
