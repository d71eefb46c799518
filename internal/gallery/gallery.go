// Package gallery はスナップショットを保持する固定長の循環ギャラリーを提供する
package gallery

import (
	"errors"
	"fmt"
	"time"
)

// Size はギャラリーのスロット数
const Size = 24

var (
	// ErrSlotOutOfRange はスロット番号が範囲外であることを表す
	ErrSlotOutOfRange = errors.New("スロット番号が範囲外です")
	// ErrSlotCount はスロット数が Size と一致しないことを表す
	ErrSlotCount = errors.New("スロット数が不正です")
)

// Snapshot は1枚の撮影画像
type Snapshot struct {
	ID         string    `json:"id"`
	DataURL    string    `json:"-"`
	JPEG       []byte    `json:"-"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// Slot はギャラリー上の表示位置1つ分
type Slot struct {
	Index    int
	Snapshot *Snapshot
}

// Filled はスロットに画像が入っているかを返す
func (s Slot) Filled() bool {
	return s.Snapshot != nil
}

// Gallery は Size 個のスロットとカーソルを持つ
// カーソルは書き込みのたびに Size を法として進み、リセットされない
type Gallery struct {
	slots  []Slot
	cursor int
	writes int
}

// New は空のスロットを Size 個持つギャラリーを作成する
func New() *Gallery {
	slots := make([]Slot, Size)
	for i := range slots {
		slots[i] = Slot{Index: i}
	}

	g, _ := NewWithSlots(slots)
	return g
}

// NewWithSlots は与えられたスロット列からギャラリーを作成する
// スロット数が Size でない場合や並びが不正な場合はエラーを返す
func NewWithSlots(slots []Slot) (*Gallery, error) {
	if len(slots) != Size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSlotCount, len(slots), Size)
	}

	for i, s := range slots {
		if s.Index != i {
			return nil, fmt.Errorf("%w: スロット %d の位置が %d になっています", ErrSlotCount, i, s.Index)
		}
	}

	owned := make([]Slot, Size)
	copy(owned, slots)

	return &Gallery{slots: owned}, nil
}

// Write はカーソル位置のスロットに画像を書き込み、書き込んだ位置を返す
func (g *Gallery) Write(snap Snapshot) int {
	index := g.cursor
	g.slots[index].Snapshot = &snap

	g.cursor = (g.cursor + 1) % Size
	g.writes++

	return index
}

// Cursor は次に書き込まれるスロット番号を返す
func (g *Gallery) Cursor() int {
	return g.cursor
}

// WriteCount はこれまでの書き込み回数を返す
func (g *Gallery) WriteCount() int {
	return g.writes
}

// Slot は指定位置のスナップショットを返す
func (g *Gallery) Slot(index int) (Snapshot, bool, error) {
	if index < 0 || index >= Size {
		return Snapshot{}, false, fmt.Errorf("%w: %d", ErrSlotOutOfRange, index)
	}

	s := g.slots[index]
	if s.Snapshot == nil {
		return Snapshot{}, false, nil
	}

	return *s.Snapshot, true, nil
}

// Slots は全スロットのコピーを返す
func (g *Gallery) Slots() []Slot {
	out := make([]Slot, Size)
	for i, s := range g.slots {
		out[i] = Slot{Index: s.Index}
		if s.Snapshot != nil {
			snap := *s.Snapshot
			out[i].Snapshot = &snap
		}
	}
	return out
}
