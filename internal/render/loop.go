package render

import (
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webcamshooter/internal/camera"
	"webcamshooter/internal/filter"
	"webcamshooter/internal/gallery"
)

// DefaultSettleDelay は撮影後にプレビューを再開するまでの待機時間
const DefaultSettleDelay = 2 * time.Second

// FrameSource は最新の映像フレームを提供する
type FrameSource interface {
	CurrentFrame() image.Image
}

// Options はLoopの依存関係
type Options struct {
	Source    FrameSource
	Surface   *Surface
	Filter    *filter.Clamp
	Gallery   *gallery.Gallery
	Scheduler Scheduler
	Encoder   Encoder
	State     func() camera.StreamState

	SettleDelay time.Duration
	Log         logrus.FieldLogger
}

// Loop は描画ループ
// 全てのメソッドはイベントループ上から呼ばれる前提で、内部で排他制御はしない
type Loop struct {
	source    FrameSource
	surface   *Surface
	filter    *filter.Clamp
	gallery   *gallery.Gallery
	scheduler Scheduler
	encoder   Encoder
	state     func() camera.StreamState
	settle    time.Duration
	log       logrus.FieldLogger
	now       func() time.Time

	pending    Handle
	hasPending bool
	rendered   int

	onFrame func(img *image.NRGBA)
}

// NewLoop は新しいLoopを作成する
func NewLoop(opts Options) (*Loop, error) {
	if opts.Source == nil || opts.Surface == nil || opts.Filter == nil ||
		opts.Gallery == nil || opts.Scheduler == nil || opts.State == nil {
		return nil, fmt.Errorf("描画ループの依存関係が不足しています")
	}

	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	encoder := opts.Encoder
	if encoder == nil {
		encoder = NewJPEGEncoder(92)
	}

	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Loop{
		source:    opts.Source,
		surface:   opts.Surface,
		filter:    opts.Filter,
		gallery:   opts.Gallery,
		scheduler: opts.Scheduler,
		encoder:   encoder,
		state:     opts.State,
		settle:    settle,
		log:       log,
		now:       time.Now,
	}, nil
}

// OnFrame はフィルター適用直後に呼ばれるハンドラを設定する
// 渡される画像はサーフェスと共有されるため、保持する場合は複製すること
func (l *Loop) OnFrame(fn func(img *image.NRGBA)) {
	l.onFrame = fn
}

// Tick はループを1回進める
// コピー、フィルター、再スケジュール判定の順で実行する
func (l *Loop) Tick() {
	// 保留中の予約は1つだけにする
	l.cancelPending()

	l.render()

	if l.state() == camera.StateStreaming {
		l.schedule()
	}
}

// Arm は再生開始時に呼ばれ、フレーム描画を1つ予約する
func (l *Loop) Arm() {
	l.cancelPending()
	l.schedule()
}

// TakePhoto はサーフェスの現在の内容をギャラリーに書き込む
// 書き込んだスナップショットとスロット番号を返す
// 成否にかかわらず待機時間の後にループを再開する
func (l *Loop) TakePhoto() (gallery.Snapshot, int, error) {
	l.cancelPending()
	defer l.scheduler.After(l.settle, l.Tick)

	// 最新フレームを確実に取り込む
	l.render()

	encoded, err := l.encoder.Encode(l.surface.Image())
	if err != nil {
		return gallery.Snapshot{}, -1, fmt.Errorf("スナップショットのエンコードに失敗: %w", err)
	}

	bounds := l.surface.Bounds()
	snap := gallery.Snapshot{
		ID:         uuid.NewString(),
		DataURL:    encoded.DataURL,
		JPEG:       encoded.JPEG,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: l.now(),
	}

	slot := l.gallery.Write(snap)

	l.log.WithFields(logrus.Fields{
		"slot":  slot,
		"id":    snap.ID,
		"bytes": len(snap.JPEG),
	}).Info("スナップショットを保存しました")

	return snap, slot, nil
}

// Pending はフレーム描画が予約されているかを返す
func (l *Loop) Pending() bool {
	return l.hasPending
}

// Rendered は描画したフレーム数を返す
func (l *Loop) Rendered() int {
	return l.rendered
}

// render はフレームをコピーしてフィルターを適用する
// フレームが無い場合はサーフェスに触れない
func (l *Loop) render() {
	frame := l.source.CurrentFrame()
	if frame == nil {
		return
	}

	l.surface.Draw(frame)
	l.filter.Apply(l.surface.Image())
	l.rendered++

	if l.onFrame != nil {
		l.onFrame(l.surface.Image())
	}
}

func (l *Loop) schedule() {
	l.pending = l.scheduler.ScheduleFrame(l.fire)
	l.hasPending = true
}

// fire は予約が実行されたときに呼ばれる
func (l *Loop) fire() {
	l.hasPending = false
	l.Tick()
}

func (l *Loop) cancelPending() {
	if !l.hasPending {
		return
	}
	l.scheduler.Cancel(l.pending)
	l.hasPending = false
}
