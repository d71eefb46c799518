// Package main はWebcam Shooterサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"webcamshooter/internal/app"
	"webcamshooter/internal/config"
	"webcamshooter/internal/logging"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", "", "設定ファイルのパス (デフォルト: $SHOOTER_CONFIG)")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		driver     = flag.String("driver", "", "カメラドライバー v4l2 / testpattern (デフォルト: v4l2)")
		device     = flag.String("device", "", "カメラデバイスのパス (デフォルト: 自動検出)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Webcam Shooter")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *driver != "" {
		cfg.Camera.Driver = *driver
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	logger := logging.New(cfg.Log)
	logger.Infof("Webcam Shooter サーバーを起動します: %s", cfg.ServerAddress())

	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Fatal("サーバーの起動に失敗しました")
	}
}
