package session

import (
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"webcamshooter/internal/render"
)

// Preview は処理済みサーフェスをJPEGにしてプレビュー購読者に配信する
// 購読者がいない間はエンコードしない
type Preview struct {
	encoder *render.JPEGEncoder
	broker  *Broker[[]byte]
	log     logrus.FieldLogger

	frames chan *image.NRGBA

	mu     sync.RWMutex
	latest []byte

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPreview は新しいPreviewを作成してエンコードゴルーチンを開始する
func NewPreview(quality int, log logrus.FieldLogger) *Preview {
	p := &Preview{
		encoder: render.NewJPEGEncoder(quality),
		broker:  NewBroker[[]byte](1, true),
		log:     log,
		frames:  make(chan *image.NRGBA, 1),
		stopCh:  make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Offer はフレームを受け取る。エンコードが追いつかない場合は古いフレームを捨てる
// img は呼び出し後に書き換えられてもよい
func (p *Preview) Offer(img *image.NRGBA) {
	if p.broker.Count() == 0 {
		return
	}

	frame := image.NewNRGBA(img.Rect)
	copy(frame.Pix, img.Pix)

	for {
		select {
		case <-p.stopCh:
			return
		case p.frames <- frame:
			return
		default:
		}

		select {
		case <-p.frames:
		default:
		}
	}
}

// Subscribe はJPEGフレームの購読を開始する
// 直近のフレームがあれば最初に送られる
func (p *Preview) Subscribe() (<-chan []byte, func()) {
	p.mu.RLock()
	latest := p.latest
	p.mu.RUnlock()

	if latest == nil {
		return p.broker.Subscribe()
	}
	return p.broker.Subscribe(latest)
}

// Clients は購読者数を返す
func (p *Preview) Clients() int {
	return p.broker.Count()
}

// Close はエンコードゴルーチンを停止し、全購読を終了する
func (p *Preview) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		p.broker.Close()
	})
}

func (p *Preview) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frames:
			data, err := p.encoder.EncodeJPEG(frame)
			if err != nil {
				p.log.WithError(err).Warn("プレビューのエンコードに失敗")
				continue
			}

			p.mu.Lock()
			p.latest = data
			p.mu.Unlock()

			p.broker.Publish(data)
		}
	}
}
