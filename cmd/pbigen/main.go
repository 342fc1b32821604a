// Command pbigen is the builder's single entry point, dispatching on
// os.Args[1] the same way the teacher's cmd/server/main.go special-cases
// "migrate" before bootstrapping its service stack. Four subcommands:
//
//	pbigen build [-apply] [-backup] [-verbose] <request.json>   one-shot, synchronous
//	pbigen serve                                     HTTP API (internal/api)
//	pbigen worker                                    NATS build worker
//	pbigen migrate                                   no-op, kept for symmetry
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pinggolf/pbi-tmdl-builder/internal/api"
	"github.com/pinggolf/pbi-tmdl-builder/internal/buildlock"
	"github.com/pinggolf/pbi-tmdl-builder/internal/config"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/orchestrator"
	"github.com/pinggolf/pbi-tmdl-builder/internal/progress"
	"github.com/pinggolf/pbi-tmdl-builder/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("pbigen: no .env file found, reading configuration from environment")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "serve":
		err = runServe()
	case "worker":
		err = runWorker()
	case "migrate":
		runMigrate()
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("pbigen: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pbigen <build|serve|worker|migrate> [flags]")
}

// runMigrate is a documented no-op: this repository owns no schema of
// its own (see SPEC_FULL.md §0) and keeps the subcommand only for
// symmetry with the teacher's single-binary dispatch.
func runMigrate() {
	log.Printf("pbigen: migrate is a no-op, this builder owns no database")
}

// runBuild reads a model.BuildRequest from a JSON file and runs it
// in-process, synchronously, with no NATS or HTTP involved — the path a
// CI pipeline or a script uses instead of going through the API or the
// queue worker.
func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	apply := fs.Bool("apply", false, "write changes to disk (default: analyze only)")
	backup := fs.Bool("backup", false, "create a timestamped backup before writing (ModeApply only)")
	verbose := fs.Bool("verbose", false, "print progress events as they occur")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("build requires exactly one argument: path to a BuildRequest JSON file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading request file: %w", err)
	}

	var req model.BuildRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parsing request file: %w", err)
	}

	mode := orchestrator.ModeAnalyze
	if *apply {
		mode = orchestrator.ModeApply
	}

	var sink progress.Sink
	if *verbose {
		sink = func(stage, detail string) { log.Printf("pbigen: %s: %s", stage, detail) }
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := orchestrator.Build(ctx, req, mode, orchestrator.ApplyOptions{CreateBackup: *backup}, sink)
	if err != nil {
		return err
	}

	return printResult(result)
}

func printResult(result orchestrator.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runServe starts the HTTP API only. NATS is not dialed here — that is
// what the worker subcommand is for.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	locks := buildlock.NewRegistry()
	rateLimiter := api.NewRateLimiterService(cfg.BuildApplyRateLimit, cfg.BuildApplyBurst)
	server := api.NewServer(cfg, locks, rateLimiter)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AppPort),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("pbigen: serving on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("pbigen: http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("pbigen: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// runWorker connects to NATS and runs build jobs published to
// queue.SubjectBuildRequest until interrupted.
func runWorker() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	mgr, err := queue.NewManager(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer mgr.Close()

	locks := buildlock.NewRegistry()
	worker := queue.NewWorker(mgr, locks)

	ctx, cancel := signalContext()
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	log.Printf("pbigen: worker running, queue group %s", queue.QueueGroupBuild)
	<-ctx.Done()
	log.Printf("pbigen: worker shutting down")
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()
	return ctx, cancel
}
