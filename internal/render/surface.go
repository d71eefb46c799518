package render

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Surface は固定サイズの処理サーフェス
// サイズは起動時に一度だけ決まり、以後変わらない
type Surface struct {
	img *image.NRGBA
}

// NewSurface は新しいSurfaceを作成する
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("無効なサーフェスサイズ: %dx%d", width, height)
	}

	return &Surface{
		img: image.NewNRGBA(image.Rect(0, 0, width, height)),
	}, nil
}

// Draw はフレームをサーフェス全体に拡大縮小して描画する
func (s *Surface) Draw(frame image.Image) {
	draw.ApproxBiLinear.Scale(s.img, s.img.Bounds(), frame, frame.Bounds(), draw.Src, nil)
}

// Clear はサーフェスを透明な黒で塗りつぶす
func (s *Surface) Clear() {
	clear(s.img.Pix)
}

// Image はサーフェスのピクセルバッファを返す
// 返した画像はサーフェスと共有される
func (s *Surface) Image() *image.NRGBA {
	return s.img
}

// Copy はサーフェスの複製を返す
func (s *Surface) Copy() *image.NRGBA {
	out := image.NewNRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// Bounds はサーフェスの範囲を返す
func (s *Surface) Bounds() image.Rectangle {
	return s.img.Bounds()
}
