package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"paperkg/internal/config"
	"paperkg/internal/debugwriter"
	"paperkg/internal/storage"
	"paperkg/pkg/agent"
	"paperkg/pkg/ai/openai"
	"paperkg/pkg/define"
	"paperkg/pkg/discovery"
	"paperkg/pkg/discovery/arxiv"
	"paperkg/pkg/discovery/openalex"
	"paperkg/pkg/downloader"
	"paperkg/pkg/edc"
	"paperkg/pkg/extract"
	"paperkg/pkg/integrate"
	"paperkg/pkg/leaselock"
	"paperkg/pkg/logger"
	"paperkg/pkg/logger/console"
	"paperkg/pkg/parser"
	"paperkg/pkg/preparse"
	pgxstore "paperkg/pkg/store/pgx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "paperkg: "+err.Error())
		os.Exit(1)
	}

	debug := os.Getenv("DEBUG") == "true"
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: debug}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aiClient := openai.New(openai.Params{
		ChatModel:  cfg.ChatModel,
		ChatURL:    cfg.ChatBaseURL,
		ChatKey:    cfg.ChatAPIKey,
		EmbedModel: cfg.EmbedModel,
		EmbedURL:   cfg.EmbedBaseURL,
		EmbedKey:   cfg.EmbedAPIKey,
	})

	db, err := pgxstore.New(ctx, pgxstore.Params{
		DatabaseURL:      cfg.DatabaseURL,
		Embedder:         aiClient,
		BatchConcurrency: cfg.SimilarityBatchConcurrent,
	})
	if err != nil {
		logger.Fatal("paperkg: connect to database", "err", err)
	}
	defer db.Close()

	if err := db.Init(ctx); err != nil {
		logger.Fatal("paperkg: apply migrations", "err", err)
	}

	lease := leaselock.New(db.Pool())

	parserClient := parser.New(cfg.ParserBaseURL, cfg.ParserAPIKey)
	preParser := preparse.New(aiClient)
	extractor := extract.New(aiClient)
	extractor.ChunkingEnabled = cfg.ExtractChunkingEnabled
	extractor.TokenBudget = cfg.ExtractTokenBudget

	definer := define.New(aiClient)
	definer.BatchSize = cfg.DefinerBatchSize
	debugWriter := debugwriter.New(cfg.DebugDir)

	edcWorkflow := edc.New(parserClient, preParser, extractor, definer, db, debugWriter)
	integrateWorkflow := integrate.New(db, aiClient, debugWriter)
	integrateWorkflow.ResolveLimit = cfg.IntegrationResolveLimit

	discoveryProvider := discovery.New(openalex.New(cfg.OpenAlexBaseURL), arxiv.New(cfg.ArxivBaseURL))

	// storage.NewClient returns a typed nil when AWS_BUCKET is unset; assign
	// through a plain interface variable so downloader sees a true nil
	// Mirror rather than a non-nil interface wrapping a nil *storage.Client.
	var mirror downloader.Mirror
	if s3Client := storage.NewClient(ctx); s3Client != nil {
		mirror = s3Client
	}
	downloadDir := downloadDirOrDefault()
	downloadClient := downloader.New(downloadDir, mirror)

	controller := agent.New(aiClient, aiClient, discoveryProvider, downloadClient, edcWorkflow, integrateWorkflow, db, cfg.AgentStepCap)
	controller.Lease = lease

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: paperkg --agent \"<task description>\" | paperkg <path-to-pdf> [--integrate]")
		os.Exit(1)
	}

	var runErr error
	if args[0] == "--agent" {
		runErr = runAgent(ctx, controller, args[1:])
	} else {
		runErr = runSinglePaper(ctx, controller, db, args)
	}

	if runErr != nil {
		logger.Error("paperkg: run failed", "err", runErr)
		os.Exit(1)
	}
}

func runAgent(ctx context.Context, controller *agent.Controller, rest []string) error {
	task := strings.Join(rest, " ")
	if task == "" {
		return fmt.Errorf("--agent requires a free-form task description")
	}

	answer, err := controller.Run(ctx, task)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

func runSinglePaper(ctx context.Context, controller *agent.Controller, db *pgxstore.GraphDBStorage, args []string) error {
	paperPath := args[0]
	integrateRequested := false
	for _, a := range args[1:] {
		if a == "--integrate" {
			integrateRequested = true
		}
	}
	if !integrateRequested {
		controller.Integrate = nil
	}

	result := controller.ProcessPaper(ctx, paperPath, "")
	if !result.Success {
		return fmt.Errorf("%s", result.Error)
	}

	logger.Info("paperkg: processed paper",
		"path", paperPath,
		"entitiesExtracted", result.Stats.EntitiesExtracted,
		"relationshipsExtracted", result.Stats.RelationshipsExtracted,
		"entitiesMerged", result.Stats.EntitiesMerged,
		"entitiesCreated", result.Stats.EntitiesCreated,
	)
	return nil
}

func downloadDirOrDefault() string {
	if dir := os.Getenv("DOWNLOAD_DIR"); dir != "" {
		return dir
	}
	return "downloads"
}
