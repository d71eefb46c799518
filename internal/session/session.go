package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"webcamshooter/internal/camera"
	"webcamshooter/internal/config"
	"webcamshooter/internal/filter"
	"webcamshooter/internal/gallery"
	"webcamshooter/internal/logging"
	"webcamshooter/internal/render"
)

// ErrClosed はセッション終了後の操作を表す
var ErrClosed = errors.New("セッションは終了しています")

// 保持するエラー通知の最大数
const maxNotifications = 20

// EventType はイベントの種類
type EventType string

// EventType の定数定義
const (
	EventState   EventType = "state"   // ストリーム状態の変化
	EventPlaying EventType = "playing" // 再生開始
	EventError   EventType = "error"   // エラー通知
	EventPhoto   EventType = "photo"   // スナップショット保存
	EventFilter  EventType = "filter"  // フィルター設定の変更
)

// Event はクライアントに配信するイベント
type Event struct {
	Type       EventType          `json:"type"`
	State      camera.StreamState `json:"state"`
	Message    string             `json:"message,omitempty"`
	Slot       *int               `json:"slot,omitempty"`
	SnapshotID string             `json:"snapshot_id,omitempty"`
	Filter     *filter.Clamp      `json:"filter,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Notification はユーザーに通知したエラー
type Notification struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Photo は撮影結果
type Photo struct {
	Slot     int
	Snapshot gallery.Snapshot
}

// GalleryView はギャラリーの読み取り用コピー
type GalleryView struct {
	Cursor int
	Writes int
	Slots  []gallery.Slot
}

// Status はセッションの現在状態
type Status struct {
	State          camera.StreamState
	StreamID       string
	Device         string
	Cursor         int
	Photos         int
	Rendered       int
	LoopPending    bool
	PreviewClients int
	Notifications  []Notification
	StartedAt      time.Time
}

// Options はセッションの依存関係と設定
type Options struct {
	Acquirer  camera.Acquirer
	Shooter   config.ShooterConfig
	Filter    config.FilterConfig
	Scheduler render.Scheduler // nil の場合はリフレッシュレートに従うタイマーを使う
	Log       logrus.FieldLogger
}

// Session は撮影セッション
// 起動時に作成され、Run のコンテキストがキャンセルされると終了する
type Session struct {
	log   logrus.FieldLogger
	queue *eventQueue

	controller *camera.Controller
	video      *camera.Video
	surface    *render.Surface
	filter     filter.Clamp
	gallery    *gallery.Gallery
	scheduler  render.Scheduler
	loop       *render.Loop

	preview *Preview
	events  *Broker[Event]

	notifications []Notification

	runCtx    context.Context
	startedAt time.Time
	running   atomic.Bool
	done      chan struct{}
}

// New は新しいSessionを作成する
func New(opts Options) (*Session, error) {
	if opts.Acquirer == nil {
		return nil, fmt.Errorf("Acquirerが指定されていません")
	}

	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	clamp, err := clampFromConfig(opts.Filter)
	if err != nil {
		return nil, err
	}

	surface, err := render.NewSurface(opts.Shooter.SurfaceWidth, opts.Shooter.SurfaceHeight)
	if err != nil {
		return nil, fmt.Errorf("サーフェスの作成に失敗: %w", err)
	}

	s := &Session{
		log:     logging.Component(log, "session"),
		queue:   newEventQueue(),
		surface: surface,
		filter:  clamp,
		gallery: gallery.New(),
		preview: NewPreview(opts.Shooter.JPEGQuality, logging.Component(log, "preview")),
		events:  NewBroker[Event](32, false),
		runCtx:  context.Background(),
		done:    make(chan struct{}),
	}

	s.scheduler = opts.Scheduler
	if s.scheduler == nil {
		rate := opts.Shooter.RefreshRate
		if rate <= 0 {
			rate = 30
		}
		s.scheduler = render.NewRefreshScheduler(time.Second/time.Duration(rate), s.queue)
	}

	s.video = camera.NewVideo(s.queue, logging.Component(log, "video"))
	s.controller = camera.NewController(opts.Acquirer, s.video, surface, s.queue, s, logging.Component(log, "camera"))

	s.loop, err = render.NewLoop(render.Options{
		Source:      s.video,
		Surface:     surface,
		Filter:      &s.filter,
		Gallery:     s.gallery,
		Scheduler:   s.scheduler,
		Encoder:     render.NewJPEGEncoder(opts.Shooter.JPEGQuality),
		State:       s.controller.State,
		SettleDelay: opts.Shooter.SettleDelay,
		Log:         logging.Component(log, "render"),
	})
	if err != nil {
		s.preview.Close()
		return nil, err
	}

	s.video.OnPlaying(s.handlePlaying)
	s.controller.OnStateChange(s.handleStateChange)
	s.loop.OnFrame(s.preview.Offer)

	return s, nil
}

// clampFromConfig は設定ファイルの値からクランプ設定を作る
func clampFromConfig(cfg config.FilterConfig) (filter.Clamp, error) {
	clamp := filter.Default()
	bounds := []struct {
		channel filter.Channel
		r       config.RangeConfig
	}{
		{filter.Red, cfg.Red},
		{filter.Green, cfg.Green},
		{filter.Blue, cfg.Blue},
	}

	var errs []error
	for _, b := range bounds {
		errs = append(errs,
			clamp.SetBound(b.channel, filter.Min, b.r.Min),
			clamp.SetBound(b.channel, filter.Max, b.r.Max),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return filter.Clamp{}, fmt.Errorf("フィルター設定が不正です: %w", err)
	}
	return clamp, nil
}

// Run はイベントループを実行する。ctx がキャンセルされるまで戻らない
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("セッションは既に実行中です")
	}
	defer close(s.done)

	s.runCtx = ctx
	s.startedAt = time.Now()
	s.log.Info("セッションを開始しました")

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-s.queue.notify:
			for _, fn := range s.queue.drain() {
				fn()
			}
		}
	}
}

// shutdown はストリームを解放してセッションを終了する
func (s *Session) shutdown() {
	if s.controller.Stream() != nil {
		if err := s.controller.StopStream(); err != nil {
			s.log.WithError(err).Warn("終了時のストリーム停止に失敗")
		}
	}
	s.video.Clear()

	if closer, ok := s.scheduler.(interface{ Close() }); ok {
		closer.Close()
	}

	s.queue.close()
	s.preview.Close()
	s.events.Close()

	s.log.Info("セッションを終了しました")
}

// Do は fn をイベントループ上で実行し、完了まで待つ
func (s *Session) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.queue.post(func() {
		fn()
		close(done)
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-s.done:
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartStream はカメラの取得を開始する
// 取得結果は待たずに戻り、結果はイベントで通知される
func (s *Session) StartStream(ctx context.Context) error {
	return s.Do(ctx, func() {
		s.log.Info("ストリームの開始を要求しました")
		s.controller.StartStream(s.runCtx)
	})
}

// StopStream はストリームを停止する
// ストリームが無い場合は camera.ErrNoActiveStream を返す
func (s *Session) StopStream(ctx context.Context) error {
	var stopErr error
	if err := s.Do(ctx, func() {
		stopErr = s.controller.StopStream()
	}); err != nil {
		return err
	}
	return stopErr
}

// TakePhoto は現在のサーフェスをギャラリーに保存する
func (s *Session) TakePhoto(ctx context.Context) (Photo, error) {
	var (
		photo    Photo
		photoErr error
	)

	if err := s.Do(ctx, func() {
		snap, slot, err := s.loop.TakePhoto()
		if err != nil {
			photoErr = err
			return
		}
		photo = Photo{Slot: slot, Snapshot: snap}

		s.publish(Event{Type: EventPhoto, Slot: &slot, SnapshotID: snap.ID})
	}); err != nil {
		return Photo{}, err
	}

	return photo, photoErr
}

// SetBound はUI入力1つ分のフィルター値を反映する
func (s *Session) SetBound(ctx context.Context, channel, bound string, value int) (filter.Clamp, error) {
	ch, err := filter.ParseChannel(channel)
	if err != nil {
		return filter.Clamp{}, err
	}
	b, err := filter.ParseBound(bound)
	if err != nil {
		return filter.Clamp{}, err
	}

	var (
		current filter.Clamp
		setErr  error
	)
	if err := s.Do(ctx, func() {
		if setErr = s.filter.SetBound(ch, b, value); setErr != nil {
			return
		}
		current = s.filter
		s.publish(Event{Type: EventFilter, Filter: &current})
	}); err != nil {
		return filter.Clamp{}, err
	}

	return current, setErr
}

// SetFilter はフィルター設定をまとめて置き換える
func (s *Session) SetFilter(ctx context.Context, clamp filter.Clamp) error {
	return s.Do(ctx, func() {
		s.filter = clamp
		current := s.filter
		s.publish(Event{Type: EventFilter, Filter: &current})
	})
}

// Filter は現在のフィルター設定を返す
func (s *Session) Filter(ctx context.Context) (filter.Clamp, error) {
	var current filter.Clamp
	err := s.Do(ctx, func() {
		current = s.filter
	})
	return current, err
}

// Gallery はギャラリーのコピーを返す
func (s *Session) Gallery(ctx context.Context) (GalleryView, error) {
	var view GalleryView
	err := s.Do(ctx, func() {
		view = GalleryView{
			Cursor: s.gallery.Cursor(),
			Writes: s.gallery.WriteCount(),
			Slots:  s.gallery.Slots(),
		}
	})
	return view, err
}

// Snapshot は指定スロットの画像を返す
func (s *Session) Snapshot(ctx context.Context, slot int) (gallery.Snapshot, bool, error) {
	var (
		snap   gallery.Snapshot
		filled bool
		getErr error
	)
	if err := s.Do(ctx, func() {
		snap, filled, getErr = s.gallery.Slot(slot)
	}); err != nil {
		return gallery.Snapshot{}, false, err
	}
	return snap, filled, getErr
}

// Status はセッションの現在状態を返す
func (s *Session) Status(ctx context.Context) (Status, error) {
	var status Status
	err := s.Do(ctx, func() {
		status = Status{
			State:          s.controller.State(),
			Cursor:         s.gallery.Cursor(),
			Photos:         s.gallery.WriteCount(),
			Rendered:       s.loop.Rendered(),
			LoopPending:    s.loop.Pending(),
			PreviewClients: s.preview.Clients(),
			Notifications:  append([]Notification(nil), s.notifications...),
			StartedAt:      s.startedAt,
		}

		if stream := s.controller.Stream(); stream != nil {
			status.StreamID = stream.ID()
			if tracks := stream.Tracks(); len(tracks) > 0 {
				status.Device = tracks[0].Label()
			}
		}
	})
	return status, err
}

// Errors は直近のエラー通知を返す
func (s *Session) Errors(ctx context.Context) ([]Notification, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Notifications, nil
}

// SubscribePreview は処理済みサーフェスのJPEGフレームを購読する
func (s *Session) SubscribePreview() (<-chan []byte, func()) {
	return s.preview.Subscribe()
}

// SubscribeEvents はイベントを購読する
func (s *Session) SubscribeEvents() (<-chan Event, func()) {
	return s.events.Subscribe()
}

// NotifyError はエラーをユーザーに通知する
// イベントループ上から呼ばれる
func (s *Session) NotifyError(err error) {
	n := Notification{Message: err.Error(), Time: time.Now()}

	s.notifications = append(s.notifications, n)
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}

	s.publish(Event{Type: EventError, Message: n.Message})
}

// handlePlaying は映像の再生開始時に描画ループを起動する
func (s *Session) handlePlaying() {
	s.log.Debug("再生が開始されました")
	s.loop.Arm()
	s.publish(Event{Type: EventPlaying})
}

// handleStateChange は状態変化をクライアントに通知する
func (s *Session) handleStateChange(state camera.StreamState) {
	s.log.WithField("state", state).Info("ストリーム状態が変化しました")

	if state == camera.StateNotStreaming {
		// 消去されたサーフェスをプレビューにも反映する
		s.preview.Offer(s.surface.Image())
	}

	s.publish(Event{Type: EventState})
}

// publish は現在の状態を付けてイベントを配信する
func (s *Session) publish(e Event) {
	e.State = s.controller.State()
	e.Timestamp = time.Now()
	s.events.Publish(e)
}
