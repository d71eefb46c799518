package main

import (
	"context"
	"flag"
	"log"

	"webcamshooter/internal/app"
	"webcamshooter/internal/config"
	"webcamshooter/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "設定ファイルのパス (デフォルト: $SHOOTER_CONFIG)")
	flag.Parse()

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	logger := logging.New(cfg.Log)

	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Fatal("サーバーの起動に失敗しました")
	}
}
