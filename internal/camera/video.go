package camera

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"

	"github.com/sirupsen/logrus"
)

// Video はストリームを表示ソースとして束縛し、最新フレームを保持する
// 束縛後に最初のフレームが届いた時点で一度だけ再生開始イベントを発行する
type Video struct {
	dispatch Dispatcher
	log      logrus.FieldLogger

	mu         sync.RWMutex
	current    image.Image
	generation uint64

	onPlaying func()

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewVideo は新しいVideoを作成する
func NewVideo(dispatch Dispatcher, log logrus.FieldLogger) *Video {
	return &Video{
		dispatch: dispatch,
		log:      log,
	}
}

// OnPlaying は再生開始イベントのハンドラを設定する
// ハンドラはDispatcher上で実行される
func (v *Video) OnPlaying(fn func()) {
	v.onPlaying = fn
}

// Bind はストリームを表示ソースとして束縛する
// 既存の束縛は解除される
func (v *Video) Bind(stream Stream) {
	v.Clear()

	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.mu.Unlock()

	stopCh := make(chan struct{})
	v.stopCh = stopCh

	v.wg.Add(1)
	go v.consume(stream.Frames(), stopCh, gen)
}

// Clear は束縛を解除し、保持しているフレームを破棄する
func (v *Video) Clear() {
	if v.stopCh != nil {
		close(v.stopCh)
		v.wg.Wait()
		v.stopCh = nil
	}

	v.mu.Lock()
	v.current = nil
	v.generation++
	v.mu.Unlock()
}

// CurrentFrame は最新フレームを返す。フレームが無い場合はnil
func (v *Video) CurrentFrame() image.Image {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// consume はフレームをデコードして最新フレームを更新する
func (v *Video) consume(frames <-chan []byte, stopCh <-chan struct{}, gen uint64) {
	defer v.wg.Done()

	played := false
	for {
		select {
		case <-stopCh:
			return
		case data, ok := <-frames:
			if !ok {
				v.log.Debug("ストリームのフレームチャンネルがクローズされました")
				return
			}

			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				v.log.WithError(err).Debug("フレームのデコードに失敗")
				continue
			}

			v.mu.Lock()
			if v.generation != gen {
				v.mu.Unlock()
				return
			}
			v.current = img
			v.mu.Unlock()

			if !played {
				played = true
				v.firePlaying(gen)
			}
		}
	}
}

// firePlaying は再生開始イベントをイベントループに送る
// 送った後に束縛が変わっていた場合は何もしない
func (v *Video) firePlaying(gen uint64) {
	v.dispatch.Post(func() {
		v.mu.RLock()
		current := v.generation == gen
		v.mu.RUnlock()

		if current && v.onPlaying != nil {
			v.onPlaying()
		}
	})
}
