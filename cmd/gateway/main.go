// ストアフロントAPI Gatewayのエントリポイント。
// パスプレフィックスで転送先サービスを決定し、サーキットブレーカーで保護しながら中継する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/nao1215/shopgate/internal/gateway"
	"github.com/nao1215/shopgate/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Gatewayサービスの実行に失敗: %v\n", err)
		os.Exit(1)
	}
}

// run は設定を読み込み、シグナルを受け取るまでGatewayを実行する。
func run() error {
	cfg, err := gateway.LoadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("Gatewayサーバーの初期化に失敗: %w", err)
	}
	defer server.Close()

	log.Info("設定を読み込みました",
		zap.String("port", cfg.Port),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.Int("services", len(cfg.Services)),
		zap.Int("routes", len(cfg.Routes)),
		zap.Bool("shared_health_store", cfg.RedisURL != ""),
	)
	return server.Run(ctx)
}
