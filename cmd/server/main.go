package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Brownie44l1/digitpad/internal/config"
	"github.com/Brownie44l1/digitpad/internal/handlers"
	"github.com/Brownie44l1/digitpad/internal/logging"
	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/Brownie44l1/digitpad/internal/quiz"
	"github.com/Brownie44l1/digitpad/internal/recognizer"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	// Get the project root directory
	execPath, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get working directory: %v", err)
	}

	// If running from cmd/server, go up two levels
	if filepath.Base(execPath) == "server" {
		execPath = filepath.Join(execPath, "../..")
	}

	configPath := os.Getenv("DIGITPAD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join(execPath, "digitpad.toml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	modelOpts := cfg.ModelOptions()
	if !filepath.IsAbs(modelOpts.ModelPath) {
		modelOpts.ModelPath = filepath.Join(execPath, modelOpts.ModelPath)
	}
	if modelOpts.MetadataPath != "" && !filepath.IsAbs(modelOpts.MetadataPath) {
		modelOpts.MetadataPath = filepath.Join(execPath, modelOpts.MetadataPath)
	}

	logger.Info("loading model", "path", modelOpts.ModelPath)

	recOpts := cfg.RecognizerOptions()
	metadata := model.DefaultMetadata()

	// A model that fails to load leaves the server up and reporting
	// model_unavailable, so the classifier and predictor must stay nil
	// interfaces.
	var (
		classifier recognizer.Classifier
		predictor  handlers.Predictor
	)
	modelServer, err := model.NewServer(modelOpts)
	if err != nil {
		logger.Error("model unavailable", "error", err)
	} else {
		defer modelServer.Close()
		classifier = modelServer
		predictor = modelServer
		metadata = modelServer.Metadata
		if metadata.ImageSize != recOpts.Normalize.Size {
			logger.Warn("digit size overridden by model metadata",
				"configured", recOpts.Normalize.Size, "model", metadata.ImageSize)
			recOpts.Normalize.Size = metadata.ImageSize
		}
	}

	handler := handlers.NewHandler(handlers.Deps{
		Recognizer: recognizer.New(classifier, recOpts, logger),
		Predictor:  predictor,
		Metadata:   metadata,
		Quiz:       quiz.NewBook(cfg.RoundDuration(), nil),
		Logger:     logger,
		MaxPadSide: cfg.Server.MaxPadSide,
		Debounce:   cfg.Debounce(),
		MaxPads:    cfg.Server.MaxPads,
		PadIdle:    cfg.PadIdle(),
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           enableCORS(handler.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting", "port", cfg.Server.Port, "classes", metadata.Classes,
		"model_loaded", classifier != nil, "policy", recOpts.Normalize.Policy.String(),
		"score_mode", recOpts.ScoreMode.String())
	log.Println("Endpoints:")
	log.Println("  GET    /health              - Health check")
	log.Println("  POST   /predict             - Raw 28x28 tensor prediction")
	log.Println("  POST   /recognize           - Recognize a number from strokes")
	log.Println("  POST   /recognize/image     - Recognize a number from an image upload")
	log.Println("  POST   /pads                - Create an interactive pad")
	log.Println("  POST   /pads/{id}/strokes   - Add strokes (debounced recognition)")
	log.Println("  GET    /pads/{id}           - Latest recognition result")
	log.Println("  DELETE /pads/{id}/ink       - Clear a pad")
	log.Println("  DELETE /pads/{id}           - Close a pad")
	log.Println("  POST   /quiz                - Start a quiz round")
	log.Println("  POST   /quiz/{id}/answer    - Answer a quiz round")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}
