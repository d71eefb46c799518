package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Camera  CameraConfig  `yaml:"camera"`
	Shooter ShooterConfig `yaml:"shooter"`
	Filter  FilterConfig  `yaml:"filter"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver string `yaml:"driver"` // "v4l2" または "testpattern"
	Device string `yaml:"device"` // デバイスパス (空の場合は自動検出)

	FPS    int `yaml:"fps"`    // フレームレート (fps)
	Width  int `yaml:"width"`  // 取得する画像幅
	Height int `yaml:"height"` // 取得する画像高さ
}

// ShooterConfig は描画ループとスナップショットの設定
type ShooterConfig struct {
	// 処理サーフェスのサイズ（起動時に一度だけ決まる）
	SurfaceWidth  int `yaml:"surface_width"`
	SurfaceHeight int `yaml:"surface_height"`

	RefreshRate int           `yaml:"refresh_rate"` // 描画ループのリフレッシュレート (Hz)
	SettleDelay time.Duration `yaml:"settle_delay"` // 撮影後にプレビューを再開するまでの待機時間
	JPEGQuality int           `yaml:"jpeg_quality"` // スナップショットのJPEG品質 (1-100)
}

// FilterConfig はカラークランプの初期値
type FilterConfig struct {
	Red   RangeConfig `yaml:"red"`
	Green RangeConfig `yaml:"green"`
	Blue  RangeConfig `yaml:"blue"`
}

// RangeConfig は1チャンネル分の範囲
type RangeConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text または json
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Driver: "v4l2",
			Device: "",
			FPS:    15,
			Width:  1280,
			Height: 720,
		},
		Shooter: ShooterConfig{
			SurfaceWidth:  640,
			SurfaceHeight: 480,
			RefreshRate:   30,
			SettleDelay:   2 * time.Second,
			JPEGQuality:   92,
		},
		Filter: FilterConfig{
			Red:   RangeConfig{Min: 0, Max: 255},
			Green: RangeConfig{Min: 0, Max: 255},
			Blue:  RangeConfig{Min: 0, Max: 255},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
// path が空の場合は SHOOTER_CONFIG 環境変数を参照し、どちらも無ければデフォルト値を使う
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SHOOTER_CONFIG")
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// 環境変数で上書き
	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルの内容をデフォルト値の上に重ねる
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}

	return nil
}

// applyEnv は環境変数の値で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	// カメラ設定の検証
	switch c.Camera.Driver {
	case "v4l2", "testpattern":
	default:
		errs = append(errs, fmt.Errorf("サポートされていないカメラドライバー: %q", c.Camera.Driver))
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		errs = append(errs, fmt.Errorf("無効なFPS値: %d", c.Camera.FPS))
	}
	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		errs = append(errs, fmt.Errorf("無効な幅: %d", c.Camera.Width))
	}
	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		errs = append(errs, fmt.Errorf("無効な高さ: %d", c.Camera.Height))
	}

	// 描画設定の検証
	if c.Shooter.SurfaceWidth <= 0 || c.Shooter.SurfaceHeight <= 0 {
		errs = append(errs, fmt.Errorf("無効なサーフェスサイズ: %dx%d", c.Shooter.SurfaceWidth, c.Shooter.SurfaceHeight))
	}
	if c.Shooter.RefreshRate <= 0 || c.Shooter.RefreshRate > 240 {
		errs = append(errs, fmt.Errorf("無効なリフレッシュレート: %d", c.Shooter.RefreshRate))
	}
	if c.Shooter.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("無効な待機時間: %s", c.Shooter.SettleDelay))
	}
	if c.Shooter.JPEGQuality < 1 || c.Shooter.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("無効なJPEG品質: %d", c.Shooter.JPEGQuality))
	}

	// フィルター初期値の検証（min > max は許容する）
	for name, r := range map[string]RangeConfig{"red": c.Filter.Red, "green": c.Filter.Green, "blue": c.Filter.Blue} {
		if !inByteRange(r.Min) || !inByteRange(r.Max) {
			errs = append(errs, fmt.Errorf("無効なフィルター範囲 %s: %d-%d", name, r.Min, r.Max))
		}
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// FrameInterval は描画ループ1周期の間隔を返す
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Shooter.RefreshRate)
}

func inByteRange(v int) bool {
	return v >= 0 && v <= 255
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
