package camera

import (
	"bytes"
	"context"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"webcamshooter/internal/logging"
)

func TestTestPatternImage(t *testing.T) {
	img := TestPatternImage(70, 10, 0)

	if img.Bounds().Dx() != 70 || img.Bounds().Dy() != 10 {
		t.Fatalf("Unexpected size %v", img.Bounds())
	}

	// 各バーの中央の色
	for i, want := range testPatternBars {
		x := i*10 + 5
		if got := img.RGBAAt(x, 5); got != want {
			t.Errorf("bar %d: expected %v, got %v", i, want, got)
		}
	}

	// 縦線はseqに応じて動く
	if got := img.RGBAAt(0, 0); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("Expected marker at x=0 for seq 0, got %v", got)
	}
	moved := TestPatternImage(70, 10, 5)
	if got := moved.RGBAAt(20, 0); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("Expected marker at x=20 for seq 5, got %v", got)
	}
}

func TestTestPatternAcquirer_Stream(t *testing.T) {
	acquirer := NewTestPatternAcquirer(AcquirerConfig{Width: 64, Height: 48, FPS: 50}, logging.Discard())

	stream, err := acquirer.RequestVideoStream(context.Background())
	if err != nil {
		t.Fatalf("RequestVideoStream failed: %v", err)
	}

	if len(stream.Tracks()) != 1 || stream.Tracks()[0].Kind() != "video" {
		t.Fatalf("Expected a single video track, got %v", stream.Tracks())
	}

	select {
	case frame := <-stream.Frames():
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			t.Fatalf("Frame is not a JPEG: %v", err)
		}
		if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
			t.Errorf("Unexpected frame size %v", img.Bounds())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a frame")
	}

	// トラック停止でフレームチャンネルがクローズされる
	for _, track := range stream.Tracks() {
		track.Stop()
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-stream.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Frames channel was not closed after stop")
		}
	}
}

func TestTestPatternAcquirer_InvalidConfig(t *testing.T) {
	acquirer := NewTestPatternAcquirer(AcquirerConfig{Width: 0, Height: 48, FPS: 10}, logging.Discard())
	if _, err := acquirer.RequestVideoStream(context.Background()); err == nil {
		t.Error("Expected error for invalid size")
	}
}

func TestAcquirerFactory(t *testing.T) {
	factory := NewAcquirerFactory()

	drivers := factory.Drivers()
	if len(drivers) != 2 || drivers[0] != DriverTestPattern || drivers[1] != DriverV4L2 {
		t.Errorf("Unexpected drivers %v", drivers)
	}

	acquirer, err := factory.Create(DriverTestPattern, AcquirerConfig{Width: 8, Height: 8, FPS: 5}, logging.Discard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok := acquirer.(*TestPatternAcquirer); !ok {
		t.Errorf("Expected *TestPatternAcquirer, got %T", acquirer)
	}

	if _, err := factory.Create("dshow", AcquirerConfig{}, logging.Discard()); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
