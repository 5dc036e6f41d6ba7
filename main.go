package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/notes-bin/imgstore/internal/api"
	"github.com/notes-bin/imgstore/internal/config"
	"github.com/notes-bin/imgstore/internal/images"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "imgstore",
	Short:         "HTTP API for storing, listing and serving user images",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("failed to execute command", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// requestBodyLimit caps upload request bodies for a decoded payload limit.
// base64 inflates the payload by 4/3, plus room for the other fields. Zero
// means no limit.
func requestBodyLimit(maxUploadSize int64) int64 {
	if maxUploadSize <= 0 {
		return 0
	}
	return (maxUploadSize+2)/3*4 + 64<<10
}

func run(ctx context.Context) error {
	// 加载 .env，文件不存在时忽略
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	// 初始化存储
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := images.NewService(b.objects, b.records,
		images.MaxUploadSize(cfg.MaxUploadSize),
		images.PresignTTL(time.Duration(cfg.PresignTTL)),
	)

	// 设置路由
	handler := api.NewHandler(svc, b.files, api.NewMetrics(), requestBodyLimit(cfg.MaxUploadSize))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.SetupRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 启动服务器，收到信号后优雅关闭
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting on port", "port", cfg.Port,
			"metadata_backend", cfg.MetadataBackend, "object_backend", cfg.ObjectBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}
