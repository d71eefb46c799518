package camera

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Controller はカメラストリームの取得・解放と状態管理を担う
// Dispatcher のイベントループ上からのみ呼び出すこと
type Controller struct {
	acquirer Acquirer
	sink     Sink
	surface  Clearer
	dispatch Dispatcher
	notifier Notifier
	log      logrus.FieldLogger

	state  StreamState
	stream Stream

	onStateChange func(StreamState)
}

// NewController は新しいControllerを作成する
func NewController(acquirer Acquirer, sink Sink, surface Clearer, dispatch Dispatcher, notifier Notifier, log logrus.FieldLogger) *Controller {
	return &Controller{
		acquirer: acquirer,
		sink:     sink,
		surface:  surface,
		dispatch: dispatch,
		notifier: notifier,
		log:      log,
		state:    StateInvalid,
	}
}

// OnStateChange は状態遷移のたびに呼ばれるハンドラを設定する
func (c *Controller) OnStateChange(fn func(StreamState)) {
	c.onStateChange = fn
}

// State は現在のストリーム状態を返す
func (c *Controller) State() StreamState {
	return c.state
}

// Stream は現在のストリームを返す。無い場合はnil
func (c *Controller) Stream() Stream {
	return c.stream
}

// StartStream はストリームの取得を開始する
// 取得は非同期で行われ、結果はDispatcher経由で反映される
func (c *Controller) StartStream(ctx context.Context) {
	c.log.Info("カメラストリームを要求しています")

	go func() {
		stream, err := c.acquirer.RequestVideoStream(ctx)
		c.dispatch.Post(func() {
			c.completeStart(stream, err)
		})
	}()
}

// completeStart は取得結果を反映する
func (c *Controller) completeStart(stream Stream, err error) {
	if err != nil {
		c.log.WithError(err).Error("カメラストリームの取得に失敗")
		c.notifier.NotifyError(fmt.Errorf("カメラを開始できません: %w", err))
		return
	}

	// 既にストリームを保持している場合は先に解放する
	if c.stream != nil {
		c.log.WithField("stream", c.stream.ID()).Warn("既存のストリームを解放して置き換えます")
		stopTracks(c.stream)
	}

	c.stream = stream
	c.sink.Bind(stream)
	c.setState(StateStreaming)

	c.log.WithField("stream", stream.ID()).Info("カメラストリームを開始しました")
}

// StopStream は全トラックを停止し、表示とサーフェスをクリアする
// アクティブなストリームが無い場合は何もせず ErrNoActiveStream を返す
func (c *Controller) StopStream() error {
	if c.stream == nil {
		c.log.WithField("state", c.state).Warn("停止要求を無視しました: アクティブなストリームがありません")
		return ErrNoActiveStream
	}

	id := c.stream.ID()
	stopTracks(c.stream)
	c.stream = nil

	c.sink.Clear()
	c.surface.Clear()
	c.setState(StateNotStreaming)

	c.log.WithField("stream", id).Info("カメラストリームを停止しました")
	return nil
}

func (c *Controller) setState(state StreamState) {
	c.state = state
	if c.onStateChange != nil {
		c.onStateChange(state)
	}
}

func stopTracks(stream Stream) {
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}
