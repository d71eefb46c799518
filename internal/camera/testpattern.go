package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// カラーバーの色（SMPTE風）
var testPatternBars = []color.RGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, B: 0, A: 255},
	{R: 0, G: 192, B: 192, A: 255},
	{R: 0, G: 192, B: 0, A: 255},
	{R: 192, G: 0, B: 192, A: 255},
	{R: 192, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 192, A: 255},
}

// TestPatternAcquirer はカメラの代わりにカラーバーを流すAcquirer
type TestPatternAcquirer struct {
	config AcquirerConfig
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewTestPatternAcquirer は新しいTestPatternAcquirerを作成する
func NewTestPatternAcquirer(config AcquirerConfig, log logrus.FieldLogger) *TestPatternAcquirer {
	return &TestPatternAcquirer{
		config: config,
		log:    log,
		now:    time.Now,
	}
}

// RequestVideoStream はテストパターンのストリームを開始する
func (a *TestPatternAcquirer) RequestVideoStream(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.config.Width <= 0 || a.config.Height <= 0 || a.config.FPS <= 0 {
		return nil, fmt.Errorf("無効なテストパターン設定: %dx%d@%d", a.config.Width, a.config.Height, a.config.FPS)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	frames := make(chan []byte, 2)

	go a.generate(streamCtx, frames)

	a.log.Info("テストパターンのストリームを開始しました")

	return newCaptureStream("Test Pattern", frames, cancel), nil
}

// generate はFPSに従ってフレームを生成し続ける
func (a *TestPatternAcquirer) generate(ctx context.Context, frames chan []byte) {
	defer close(frames)

	ticker := time.NewTicker(time.Second / time.Duration(a.config.FPS))
	defer ticker.Stop()

	var seq int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := a.renderFrame(seq)
			if err != nil {
				a.log.WithError(err).Warn("テストパターンの生成に失敗")
				continue
			}
			if !sendLatest(ctx, frames, frame) {
				return
			}
			seq++
		}
	}
}

// renderFrame はseq番目のフレームをJPEGで返す
func (a *TestPatternAcquirer) renderFrame(seq int) ([]byte, error) {
	img := TestPatternImage(a.config.Width, a.config.Height, seq)

	// 時刻とフレーム番号を左下に描画
	caption := fmt.Sprintf("%s #%d", a.now().Format("15:04:05.000"), seq)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, a.config.Height-8),
	}
	d.DrawString(caption)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}

	return buf.Bytes(), nil
}

// TestPatternImage はカラーバーと、seqに応じて横に動く白い縦線を描画する
func TestPatternImage(width, height, seq int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	barWidth := width / len(testPatternBars)
	if barWidth == 0 {
		barWidth = 1
	}
	for i, c := range testPatternBars {
		x0 := i * barWidth
		x1 := x0 + barWidth
		if i == len(testPatternBars)-1 {
			x1 = width
		}
		draw.Draw(img, image.Rect(x0, 0, x1, height), image.NewUniform(c), image.Point{}, draw.Src)
	}

	x := (seq * 4) % width
	draw.Draw(img, image.Rect(x, 0, x+2, height), image.NewUniform(color.White), image.Point{}, draw.Src)

	return img
}
