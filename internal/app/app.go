// Package app は各コンポーネントを組み立ててアプリケーションを起動する
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"webcamshooter/internal/camera"
	"webcamshooter/internal/config"
	"webcamshooter/internal/logging"
	"webcamshooter/internal/server"
	"webcamshooter/internal/session"
)

// Run は設定に従ってセッションとHTTPサーバーを起動し、終了まで待つ
func Run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	acquirer, err := camera.NewAcquirerFactory().Create(cfg.Camera.Driver, camera.AcquirerConfig{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
	}, logging.Component(log, "camera"))
	if err != nil {
		return fmt.Errorf("カメラの初期化に失敗: %w", err)
	}

	sess, err := session.New(session.Options{
		Acquirer: acquirer,
		Shooter:  cfg.Shooter,
		Filter:   cfg.Filter,
		Log:      logging.Component(log, "session"),
	})
	if err != nil {
		return fmt.Errorf("セッションの作成に失敗: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessDone := make(chan error, 1)
	go func() {
		sessDone <- sess.Run(sessCtx)
	}()

	srv := server.New(cfg, sess, logging.Component(log, "http"))
	srvErr := srv.Start(ctx)

	// サーバー停止後にセッションを終了してカメラを解放する
	cancel()
	return errors.Join(srvErr, <-sessDone)
}
