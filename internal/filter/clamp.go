// Package filter はプレビュー用のカラーチャンネルクランプを提供する
package filter

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrInvalidBound は範囲外の値や未知のチャンネル指定を表す
var ErrInvalidBound = errors.New("無効なフィルター指定")

// Channel はクランプ対象の色チャンネル
type Channel string

const (
	Red   Channel = "red"
	Green Channel = "green"
	Blue  Channel = "blue"
)

// Bound は範囲の下限/上限
type Bound string

const (
	Min Bound = "min"
	Max Bound = "max"
)

// Range は1チャンネル分の [Min, Max] 範囲
// Min > Max も保持でき、その場合チャンネルは Min 一色になる
type Range struct {
	Min uint8 `json:"min"`
	Max uint8 `json:"max"`
}

// Clamp は赤・緑・青の3チャンネル分のクランプ設定
type Clamp struct {
	Red   Range `json:"red"`
	Green Range `json:"green"`
	Blue  Range `json:"blue"`
}

// Default は全範囲を通すクランプ設定を返す
func Default() Clamp {
	full := Range{Min: 0, Max: 255}
	return Clamp{Red: full, Green: full, Blue: full}
}

// ParseChannel は文字列をチャンネルに変換する
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(s)); c {
	case Red, Green, Blue:
		return c, nil
	default:
		return "", fmt.Errorf("%w: チャンネル %q", ErrInvalidBound, s)
	}
}

// ParseBound は文字列を下限/上限に変換する
func ParseBound(s string) (Bound, error) {
	switch b := Bound(strings.ToLower(s)); b {
	case Min, Max:
		return b, nil
	default:
		return "", fmt.Errorf("%w: 境界 %q", ErrInvalidBound, s)
	}
}

// SetBound はUI入力1つ分の値を反映する
func (c *Clamp) SetBound(channel Channel, bound Bound, value int) error {
	if value < 0 || value > 255 {
		return fmt.Errorf("%w: 値 %d は 0-255 の範囲外です", ErrInvalidBound, value)
	}

	r, err := c.rangeOf(channel)
	if err != nil {
		return err
	}

	switch bound {
	case Min:
		r.Min = uint8(value)
	case Max:
		r.Max = uint8(value)
	default:
		return fmt.Errorf("%w: 境界 %q", ErrInvalidBound, bound)
	}

	return nil
}

// Get は指定チャンネルの範囲を返す
func (c Clamp) Get(channel Channel) (Range, error) {
	r, err := c.rangeOf(channel)
	if err != nil {
		return Range{}, err
	}
	return *r, nil
}

func (c *Clamp) rangeOf(channel Channel) (*Range, error) {
	switch channel {
	case Red:
		return &c.Red, nil
	case Green:
		return &c.Green, nil
	case Blue:
		return &c.Blue, nil
	default:
		return nil, fmt.Errorf("%w: チャンネル %q", ErrInvalidBound, channel)
	}
}

// Apply は画像の全ピクセルにクランプを適用する
// アルファチャンネルは変更しない
func (c Clamp) Apply(img *image.NRGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := img.PixOffset(b.Min.X, y)
		end := i + b.Dx()*4
		for ; i < end; i += 4 {
			img.Pix[i+0] = clamp(img.Pix[i+0], c.Red.Min, c.Red.Max)
			img.Pix[i+1] = clamp(img.Pix[i+1], c.Green.Min, c.Green.Max)
			img.Pix[i+2] = clamp(img.Pix[i+2], c.Blue.Min, c.Blue.Max)
		}
	}
}

// clamp は max(min(v, hi), lo) を返す
func clamp(v, lo, hi uint8) uint8 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
