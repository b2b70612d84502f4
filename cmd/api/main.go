// Package main is the entry point for the guest chat API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/config"
	"github.com/menuqr/tablechat/internal/handler"
	"github.com/menuqr/tablechat/internal/llm"
	natsclient "github.com/menuqr/tablechat/internal/nats"
	"github.com/menuqr/tablechat/internal/service"
	"github.com/menuqr/tablechat/pkg/logger"
	"github.com/menuqr/tablechat/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("env", cfg.Env))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "tablechat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Initialize LLM client. A missing key leaves the gateway unconfigured.
	var llmClient llm.Client
	if cfg.LLMAPIKey == "" {
		log.Warn("LLM API key not set, chat replies will report a configuration error",
			zap.String("provider", cfg.LLMProvider),
			zap.Bool("api_key_present", false),
		)
	} else {
		llmClient, err = llm.NewClient(llm.Provider(cfg.LLMProvider), llm.Options{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
		})
		if err != nil {
			log.Error("failed to create LLM client", zap.Error(err), zap.String("provider", cfg.LLMProvider))
			os.Exit(1)
		}
	}

	// Transcript log. NATS is dialed lazily on first use.
	var (
		store  service.TranscriptStore
		pinger handler.Pinger
	)
	if cfg.TranscriptsEnabled {
		transcriptLog := natsclient.NewTranscriptLog(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		defer transcriptLog.Close()
		store, pinger = transcriptLog, transcriptLog
	}

	// Initialize services
	transcriptSvc := service.NewTranscriptService(store, 256, log)
	identitySvc := service.NewIdentityService(cfg.UIDCookieMaxAge, cfg.IsProduction())
	chatSvc := service.NewChatService(llmClient, service.ChatOptions{
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
	}, transcriptSvc, log)

	router := handler.NewRouter(handler.Routes{
		Identity:            handler.NewIdentityHandler(identitySvc, log),
		Chat:                handler.NewChatHandler(chatSvc, identitySvc, cfg.ChatMode, log),
		Table:               handler.NewTableHandler(),
		Transcripts:         handler.NewTranscriptHandler(transcriptSvc, log),
		Health:              handler.NewHealthHandler(chatSvc.Configured(), pinger),
		Logger:              log,
		JWTSecret:           cfg.JWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRequests:   cfg.RateLimitRequests,
		RateLimitIPRequests: cfg.RateLimitIPRequests,
		RateLimitWindow:     cfg.RateLimitWindow,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort), zap.String("chat_mode", cfg.ChatMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Flush queued transcript records before the NATS connection closes.
	transcriptSvc.Close()

	log.Info("server stopped")
}
