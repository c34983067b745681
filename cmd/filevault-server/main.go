// Command filevault-server runs the filevault daemon. With the "mcp"
// argument it instead serves the file tools over MCP on stdin/stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/diane-assistant/filevault/internal/api"
	"github.com/diane-assistant/filevault/internal/blob"
	"github.com/diane-assistant/filevault/internal/config"
	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/internal/logger"
	"github.com/diane-assistant/filevault/internal/model"
	"github.com/diane-assistant/filevault/internal/orchestrator"
	"github.com/diane-assistant/filevault/mcp"
	"github.com/diane-assistant/filevault/mcp/tools/files"
)

// Version is set at build time via ldflags
var Version = "dev"

// services holds everything the daemon and the MCP mode share.
type services struct {
	db       *db.DB
	store    *contentstore.Store
	pending  *files.PendingActions
	provider *files.Provider
}

func main() {
	mcpMode := len(os.Args) > 1 && os.Args[1] == "mcp"
	if len(os.Args) > 1 && !mcpMode {
		switch os.Args[1] {
		case "version", "--version":
			fmt.Printf("filevault-server %s\n", Version)
			return
		default:
			fmt.Fprintf(os.Stderr, "Usage: filevault-server [mcp|version]\n")
			os.Exit(2)
		}
	}

	cfg := config.Load()

	logCfg := logger.Config{
		LogDir:    cfg.LogDir(),
		Debug:     cfg.Debug,
		JSON:      cfg.LogJSON,
		Component: "server",
	}
	if mcpMode {
		// stdout carries the protocol
		logCfg.Output = os.Stderr
		logCfg.FileName = "mcp.log"
		logCfg.Component = "mcp"
	}
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	mcp.Version = Version
	api.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", "error", err)
	}
	defer svc.db.Close()

	if mcpMode {
		slog.Info("Serving MCP on stdio")
		if err := mcp.NewServer(svc.provider).Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			logger.Fatal("MCP server failed", "error", err)
		}
		return
	}

	if err := run(ctx, cfg, svc); err != nil {
		logger.Fatal("Server failed", "error", err)
	}
}

func openServices(ctx context.Context, cfg config.Config) (*services, error) {
	if err := os.MkdirAll(config.Dir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	database, err := db.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	blobs, err := openBlobs(ctx, cfg.Blobs)
	if err != nil {
		database.Close()
		return nil, err
	}

	policy, err := contentstore.ParseDeletePolicy(cfg.Storage.DeletePolicy)
	if err != nil {
		database.Close()
		return nil, err
	}

	tmp := filepath.Join(config.Dir(), "tmp")
	if err := os.MkdirAll(tmp, 0700); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	store := contentstore.New(database, blobs, contentstore.Options{Policy: policy, TempDir: tmp})
	pending := files.NewPendingActions()
	slog.Info("Content store ready",
		"driver", cfg.Database.Driver,
		"db", cfg.Database.Path,
		"blobs", cfg.Blobs.Backend,
		"delete_policy", store.Policy())

	return &services{
		db:       database,
		store:    store,
		pending:  pending,
		provider: files.NewProvider(store, pending),
	}, nil
}

func openBlobs(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "s3":
		s3, err := blob.NewS3Store(ctx, blob.S3Options{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 blob store: %w", err)
		}
		return s3, nil
	case "local", "":
		local, err := blob.NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize blob directory: %w", err)
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

func run(ctx context.Context, cfg config.Config, svc *services) error {
	client, err := model.New(ctx, model.Options{
		Provider:  cfg.Model.Provider,
		Model:     cfg.Model.Name,
		APIKey:    cfg.Model.APIKey,
		MaxTokens: int64(cfg.Model.MaxTokens),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model client: %w", err)
	}
	slog.Info("Model client ready", "model", client.Name(), "max_concurrent", cfg.Model.MaxConcurrent)

	assistant := orchestrator.New(orchestrator.Options{
		Chats:   svc.db,
		Files:   svc.store,
		Tools:   svc.provider,
		Pending: svc.pending,
		Model:   model.NewBounded(client, int64(cfg.Model.MaxConcurrent)),
		Timeout: cfg.ModelTimeout(),
	})

	server := api.NewServer(api.Options{
		Store:      svc.store,
		Assistant:  assistant,
		MCP:        mcp.NewServer(svc.provider),
		SocketPath: config.SocketPath(),
		HTTPAddr:   cfg.HTTPAddr(),
		APIKey:     cfg.HTTP.APIKey,
	})

	pidFile := filepath.Join(config.Dir(), "filevault.pid")
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		slog.Warn("Failed to write PID file", "error", err)
	}
	defer os.Remove(pidFile)

	if err := server.Start(); err != nil {
		return err
	}
	slog.Info("Filevault started", "version", Version, "pid", os.Getpid())

	<-ctx.Done()
	slog.Info("Shutting down")
	return server.Stop()
}
