package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/minicut/minicut-agent/internal/api"
	"github.com/minicut/minicut-agent/internal/config"
	"github.com/minicut/minicut-agent/internal/convert"
	"github.com/minicut/minicut-agent/internal/db"
	"github.com/minicut/minicut-agent/internal/ffmpeg"
	"github.com/minicut/minicut-agent/internal/logging"
	"github.com/minicut/minicut-agent/internal/playback"
	"github.com/minicut/minicut-agent/internal/session"
	"github.com/minicut/minicut-agent/internal/store"
	"github.com/minicut/minicut-agent/internal/ui"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// A .env next to the binary is a dev convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.TempDir(), 0755); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting minicut agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	st := store.New(database, logger)

	authToken, err := ensureAuthToken(st)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                    MINICUT AGENT v0.1.0                   ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	backend := newBackend(cfg, logger)

	conversions := convert.NewService(backend, st, logger)
	defer conversions.Close()

	sess := session.New(backend, st, logger)
	defer sess.Close()

	playbackSvc := playback.NewServer(logger)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@hourly", func() {
		sweepTempDir(cfg.TempDir(), logger)
	}); err != nil {
		return fmt.Errorf("failed to schedule temp sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Session:   sess,
		Convert:   conversions,
		Config:    st,
		Settings:  st,
		Playback:  playbackSvc,
		Logger:    logger,
		StartTime: startTime,
		Version:   Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Conversions: conversions,
			Logger:      logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newBackend prefers the real ffmpeg binaries and falls back to the stub so
// the agent still starts on machines without ffmpeg installed.
func newBackend(cfg config.Config, logger *slog.Logger) ffmpeg.FFmpeg {
	backendCfg := ffmpeg.Config{
		FFmpegPath:     cfg.FFmpegPath(),
		FFprobePath:    cfg.FFprobePath(),
		TempDir:        cfg.TempDir(),
		ProbeTimeout:   cfg.TimeoutProbe(),
		ExtractTimeout: cfg.TimeoutExtract(),
		DetectTimeout:  cfg.TimeoutDetect(),
		ConvertTimeout: cfg.TimeoutConvert(),
		Logger:         logger,
	}

	backend, err := ffmpeg.NewSubprocess(backendCfg)
	if err != nil {
		logger.Warn("ffmpeg unavailable, media operations stubbed", "error", err)
		return ffmpeg.NewStub(logger)
	}
	return backend
}

func ensureAuthToken(st *store.Store) (string, error) {
	ctx := context.Background()

	existing, err := st.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := st.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}

// sweepTempDir removes extraction scratch files older than an hour.
func sweepTempDir(dir string, logger *slog.Logger) {
	cutoff := time.Now().Add(-time.Hour)
	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return
	}
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("temp sweep failed to remove file", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Debug("temp sweep removed stale frames", "count", removed, "dir", dir)
	}
}
