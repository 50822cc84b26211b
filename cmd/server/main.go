// Command server runs the document-chat API: PDF upload, lazily built
// per-document vector stores, grounded question answering, and billing
// webhooks. Configuration comes from the environment (a local .env file is
// honored in development).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/docuchat/go-pdf-chat-backend/internal/config"
	"github.com/docuchat/go-pdf-chat-backend/internal/embedding"
	httpapi "github.com/docuchat/go-pdf-chat-backend/internal/http"
	"github.com/docuchat/go-pdf-chat-backend/internal/llm"
	"github.com/docuchat/go-pdf-chat-backend/internal/observability"
	"github.com/docuchat/go-pdf-chat-backend/internal/pdftext"
	"github.com/docuchat/go-pdf-chat-backend/internal/repo"
	"github.com/docuchat/go-pdf-chat-backend/internal/storage"
	"github.com/docuchat/go-pdf-chat-backend/internal/sysutil"
	"github.com/docuchat/go-pdf-chat-backend/internal/vectorindex"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	blobs, err := storage.NewFSStore(cfg.BlobRoot)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.BlobRoot).Msg("blob store init failed")
	}

	index, err := vectorindex.NewPineconeClient(vectorindex.PineconeConfig{
		Host:    cfg.RAG.IndexHost,
		APIKey:  cfg.RAG.IndexAPIKey,
		Timeout: cfg.RAG.RequestTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("vector index client init failed")
	}

	embedder, err := embedding.NewHFClient(embedding.HFConfig{
		BaseURL: cfg.RAG.EmbedBaseURL,
		APIKey:  cfg.RAG.EmbedAPIKey,
		Model:   cfg.RAG.EmbedModel,
		Timeout: cfg.RAG.RequestTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("embedding client init failed")
	}

	completer, err := llm.NewGroqClient(llm.GroqConfig{
		BaseURL:     cfg.RAG.LLMBaseURL,
		APIKey:      cfg.RAG.LLMAPIKey,
		Model:       cfg.RAG.LLMModel,
		Temperature: cfg.RAG.LLMTemperature,
		MaxTokens:   cfg.RAG.LLMMaxTokens,
		Timeout:     cfg.RAG.RequestTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("completion client init failed")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Deps{
		Index:     index,
		Embedder:  embedder,
		Completer: completer,
		Blobs:     blobs,
		Extractor: pdftext.New(),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
