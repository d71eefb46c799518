package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// cancelTrack はキャプチャ処理をキャンセル関数で止めるトラック
type cancelTrack struct {
	kind   string
	label  string
	cancel context.CancelFunc
	once   sync.Once
}

func (t *cancelTrack) Kind() string { return t.kind }
func (t *cancelTrack) Label() string { return t.label }

// Stop はキャプチャ処理を停止する。複数回呼んでも安全
func (t *cancelTrack) Stop() {
	t.once.Do(t.cancel)
}

// captureStream はビデオトラック1本だけを持つストリーム
type captureStream struct {
	id     string
	tracks []Track
	frames <-chan []byte
}

func newCaptureStream(label string, frames <-chan []byte, cancel context.CancelFunc) *captureStream {
	return &captureStream{
		id: uuid.New().String(),
		tracks: []Track{
			&cancelTrack{kind: "video", label: label, cancel: cancel},
		},
		frames: frames,
	}
}

func (s *captureStream) ID() string { return s.id }
func (s *captureStream) Tracks() []Track { return s.tracks }
func (s *captureStream) Frames() <-chan []byte { return s.frames }

// FFmpegAcquirer はffmpeg経由でV4L2デバイスのストリームを取得する
type FFmpegAcquirer struct {
	config    AcquirerConfig
	discovery Discovery
	log       logrus.FieldLogger
}

// NewFFmpegAcquirer は新しいFFmpegAcquirerを作成する
func NewFFmpegAcquirer(config AcquirerConfig, discovery Discovery, log logrus.FieldLogger) *FFmpegAcquirer {
	return &FFmpegAcquirer{
		config:    config,
		discovery: discovery,
		log:       log,
	}
}

// RequestVideoStream はデバイスを確認してからストリーミングを開始する
// ストリームの寿命は ctx ではなくトラックの Stop で管理する
func (a *FFmpegAcquirer) RequestVideoStream(ctx context.Context) (Stream, error) {
	device, err := a.resolveDevice(ctx)
	if err != nil {
		return nil, err
	}

	capturer := NewV4L2Capturer(device, a.config.Width, a.config.Height, a.config.FPS, a.log)

	// デバイステストを実行
	if err := capturer.TestCapture(ctx); err != nil {
		return nil, fmt.Errorf("カメラのテストキャプチャに失敗: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	frames, err := capturer.StartStream(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	label := fmt.Sprintf("USB Camera (%s)", device)
	if info, err := a.discovery.GetDeviceInfo(ctx, device); err == nil && info.Name != "" {
		label = info.Name
	}

	a.log.WithField("device", device).Info("カメラストリームを開始しました")

	return newCaptureStream(label, frames, cancel), nil
}

// resolveDevice は使用するデバイスパスを決定する
func (a *FFmpegAcquirer) resolveDevice(ctx context.Context) (string, error) {
	device := a.config.Device

	if device == "" {
		devices, err := a.discovery.ScanDevices(ctx)
		if err != nil {
			return "", fmt.Errorf("デバイスのスキャンに失敗: %w", err)
		}
		if len(devices) == 0 {
			return "", ErrNoDevice
		}
		device = devices[0]
	}

	if !a.discovery.IsDeviceAvailable(ctx, device) {
		return "", fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}

	return device, nil
}
