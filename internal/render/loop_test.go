package render

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"webcamshooter/internal/camera"
	"webcamshooter/internal/filter"
	"webcamshooter/internal/gallery"
	"webcamshooter/internal/logging"
)

// stubSource は固定のフレームを返すFrameSource
type stubSource struct {
	frame image.Image
	reads int
}

func (s *stubSource) CurrentFrame() image.Image {
	s.reads++
	return s.frame
}

type failingEncoder struct{}

func (failingEncoder) Encode(image.Image) (Encoded, error) {
	return Encoded{}, errors.New("encoder broken")
}

type loopFixture struct {
	loop      *Loop
	source    *stubSource
	surface   *Surface
	clamp     *filter.Clamp
	gallery   *gallery.Gallery
	scheduler *ManualScheduler
	state     camera.StreamState
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()

	surface, err := NewSurface(4, 4)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}

	clamp := filter.Default()
	f := &loopFixture{
		source:    &stubSource{frame: solidImage(4, 4, color.NRGBA{R: 10, G: 10, B: 10, A: 255})},
		surface:   surface,
		clamp:     &clamp,
		gallery:   gallery.New(),
		scheduler: NewManualScheduler(),
		state:     camera.StateStreaming,
	}

	f.loop, err = NewLoop(Options{
		Source:    f.source,
		Surface:   f.surface,
		Filter:    f.clamp,
		Gallery:   f.gallery,
		Scheduler: f.scheduler,
		State:     func() camera.StreamState { return f.state },
		Log:       logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	return f
}

func TestNewLoop_MissingDependencies(t *testing.T) {
	if _, err := NewLoop(Options{}); err == nil {
		t.Error("Expected error for missing dependencies")
	}
}

func TestLoop_TickCopiesThenFilters(t *testing.T) {
	f := newLoopFixture(t)
	if err := f.clamp.SetBound(filter.Red, filter.Min, 50); err != nil {
		t.Fatal(err)
	}
	if err := f.clamp.SetBound(filter.Red, filter.Max, 200); err != nil {
		t.Fatal(err)
	}

	f.loop.Tick()

	got := f.surface.Image().NRGBAAt(1, 1)
	if got.R != 50 || !near(got.G, 10) || !near(got.B, 10) || got.A != 255 {
		t.Errorf("Expected (50, 10, 10, 255), got %v", got)
	}
	if f.loop.Rendered() != 1 {
		t.Errorf("Expected 1 rendered frame, got %d", f.loop.Rendered())
	}
}

func TestLoop_TickReschedulesOnlyWhileStreaming(t *testing.T) {
	testCases := []struct {
		name    string
		state   camera.StreamState
		pending int
	}{
		{"streaming", camera.StateStreaming, 1},
		{"not streaming", camera.StateNotStreaming, 0},
		{"invalid", camera.StateInvalid, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLoopFixture(t)
			f.state = tc.state

			f.loop.Tick()

			if f.scheduler.Pending() != tc.pending {
				t.Errorf("Expected %d pending, got %d", tc.pending, f.scheduler.Pending())
			}
			if f.loop.Pending() != (tc.pending == 1) {
				t.Errorf("Loop pending flag mismatch")
			}
		})
	}
}

func TestLoop_SelfPerpetuatesWhileStreaming(t *testing.T) {
	f := newLoopFixture(t)

	f.loop.Arm()
	for i := 0; i < 5; i++ {
		if n := f.scheduler.Step(); n != 1 {
			t.Fatalf("step %d: expected exactly 1 callback, got %d", i, n)
		}
	}

	if f.loop.Rendered() != 5 {
		t.Errorf("Expected 5 rendered frames, got %d", f.loop.Rendered())
	}
	if f.scheduler.Pending() != 1 {
		t.Errorf("Expected exactly 1 pending cycle, got %d", f.scheduler.Pending())
	}
}

func TestLoop_ArmSchedulesExactlyOne(t *testing.T) {
	f := newLoopFixture(t)

	f.loop.Arm()
	f.loop.Arm()

	if f.scheduler.Pending() != 1 {
		t.Errorf("Expected exactly 1 pending cycle, got %d", f.scheduler.Pending())
	}
	if f.loop.Rendered() != 0 {
		t.Error("Arm must not render immediately")
	}
}

func TestLoop_StopEndsLoop(t *testing.T) {
	f := newLoopFixture(t)

	f.loop.Arm()
	f.scheduler.Step()

	// 停止後の次の呼び出しで再スケジュールされない
	f.state = camera.StateNotStreaming
	f.source.frame = nil
	if n := f.scheduler.Step(); n != 1 {
		t.Fatalf("Expected the suppressed invocation to run, got %d", n)
	}

	if f.scheduler.Pending() != 0 {
		t.Errorf("Expected no pending cycle after stop, got %d", f.scheduler.Pending())
	}
	if f.loop.Pending() {
		t.Error("Loop must not report a pending cycle after stop")
	}
}

func TestLoop_TickWithoutFrameLeavesSurface(t *testing.T) {
	f := newLoopFixture(t)
	f.source.frame = nil

	f.loop.Tick()

	for _, v := range f.surface.Image().Pix {
		if v != 0 {
			t.Fatal("Surface must remain blank when there is no frame")
		}
	}
	if f.loop.Rendered() != 0 {
		t.Errorf("Expected no rendered frames, got %d", f.loop.Rendered())
	}
	if f.scheduler.Pending() != 1 {
		t.Error("Loop should keep waiting for frames while streaming")
	}
}

func TestLoop_OnFrame(t *testing.T) {
	f := newLoopFixture(t)

	var seen *image.NRGBA
	f.loop.OnFrame(func(img *image.NRGBA) { seen = img })

	f.loop.Tick()

	if seen != f.surface.Image() {
		t.Error("Expected OnFrame to receive the filtered surface")
	}
}

func TestLoop_TakePhoto(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.Arm()

	snap, slot, err := f.loop.TakePhoto()
	if err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}

	if slot != 0 {
		t.Errorf("Expected slot 0, got %d", slot)
	}
	if f.gallery.Cursor() != 1 {
		t.Errorf("Expected cursor 1, got %d", f.gallery.Cursor())
	}
	if snap.ID == "" || snap.Width != 4 || snap.Height != 4 || len(snap.JPEG) == 0 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	// 保留中の描画は取り消され、即座に1回描画される
	if f.scheduler.Pending() != 0 {
		t.Errorf("Expected pending frame to be cancelled, got %d", f.scheduler.Pending())
	}
	if f.loop.Rendered() != 1 {
		t.Errorf("Expected one immediate render, got %d", f.loop.Rendered())
	}

	stored, ok, err := f.gallery.Slot(0)
	if err != nil || !ok || stored.ID != snap.ID {
		t.Errorf("Expected snapshot in slot 0, got %+v (%v, %v)", stored, ok, err)
	}
}

func TestLoop_TakePhotoResumesAfterSettleDelay(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.Arm()

	if _, _, err := f.loop.TakePhoto(); err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}

	if n := f.scheduler.Advance(DefaultSettleDelay - time.Millisecond); n != 0 {
		t.Fatal("Loop must not resume before the settle delay")
	}
	if f.scheduler.Pending() != 0 {
		t.Fatal("No frame may be scheduled during the settle delay")
	}

	if n := f.scheduler.Advance(time.Millisecond); n != 1 {
		t.Fatalf("Expected resume timer to fire, got %d", n)
	}
	if f.scheduler.Pending() != 1 {
		t.Errorf("Expected loop to resume with 1 pending cycle, got %d", f.scheduler.Pending())
	}
}

func TestLoop_StopDuringSettleDelay(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.Arm()
	if _, _, err := f.loop.TakePhoto(); err != nil {
		t.Fatal(err)
	}

	f.state = camera.StateNotStreaming
	f.source.frame = nil
	rendered := f.loop.Rendered()

	// 再開タイマーは一度だけ発火し、すぐに終了する
	f.scheduler.Advance(DefaultSettleDelay)

	if f.scheduler.Pending() != 0 {
		t.Errorf("Expected loop to terminate, got %d pending", f.scheduler.Pending())
	}
	if f.loop.Rendered() != rendered {
		t.Error("No frame may be drawn after stop")
	}
}

func TestLoop_ArmDuringSettleDelayKeepsSinglePending(t *testing.T) {
	f := newLoopFixture(t)
	if _, _, err := f.loop.TakePhoto(); err != nil {
		t.Fatal(err)
	}

	f.loop.Arm()
	f.scheduler.Advance(DefaultSettleDelay)

	if f.scheduler.Pending() != 1 {
		t.Errorf("Expected exactly 1 pending cycle, got %d", f.scheduler.Pending())
	}
}

func TestLoop_TwentyFivePhotos(t *testing.T) {
	f := newLoopFixture(t)

	var ids []string
	for i := 0; i < 25; i++ {
		snap, slot, err := f.loop.TakePhoto()
		if err != nil {
			t.Fatalf("photo %d: %v", i, err)
		}
		if slot != i%gallery.Size {
			t.Errorf("photo %d: expected slot %d, got %d", i, i%gallery.Size, slot)
		}
		ids = append(ids, snap.ID)
	}

	if f.gallery.Cursor() != 25%gallery.Size {
		t.Errorf("Expected cursor %d, got %d", 25%gallery.Size, f.gallery.Cursor())
	}

	// スロット0は25枚目で上書きされている
	first, _, _ := f.gallery.Slot(0)
	if first.ID != ids[24] {
		t.Error("Expected slot 0 to hold the 25th photo")
	}
	second, _, _ := f.gallery.Slot(1)
	if second.ID != ids[1] {
		t.Error("Expected slot 1 to hold the 2nd photo")
	}

	// 再開タイマーが積み上がっても保留中の描画は1つだけ
	f.scheduler.Advance(DefaultSettleDelay)
	if f.scheduler.Pending() != 1 {
		t.Errorf("Expected exactly 1 pending cycle, got %d", f.scheduler.Pending())
	}
}

func TestLoop_TakePhotoEncoderFailure(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.encoder = failingEncoder{}

	_, slot, err := f.loop.TakePhoto()
	if err == nil {
		t.Fatal("Expected encoder error")
	}
	if slot != -1 {
		t.Errorf("Expected slot -1, got %d", slot)
	}
	if f.gallery.Cursor() != 0 || f.gallery.WriteCount() != 0 {
		t.Error("Gallery must not change on failure")
	}

	// 失敗してもループは再開する
	if f.scheduler.Timers() != 1 {
		t.Errorf("Expected resume timer, got %d", f.scheduler.Timers())
	}
}
