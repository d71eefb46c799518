package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockTrack はテスト用のトラック
type MockTrack struct {
	mu      sync.Mutex
	stopped bool
	onStop  func()
}

func (t *MockTrack) Kind() string { return "video" }
func (t *MockTrack) Label() string { return "Mock Camera" }

// Stop はトラックを停止済みにする
func (t *MockTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.onStop != nil {
		t.onStop()
	}
}

// Stopped は停止済みかを返す
func (t *MockTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// MockStream はテスト用のストリーム
// Push で任意のJPEGフレームを流せる
type MockStream struct {
	id     string
	track  *MockTrack
	frames chan []byte
	once   sync.Once
}

// NewMockStream は新しいMockStreamを作成する
func NewMockStream() *MockStream {
	s := &MockStream{
		id:     uuid.New().String(),
		frames: make(chan []byte, 8),
	}
	s.track = &MockTrack{onStop: s.close}
	return s
}

func (s *MockStream) ID() string { return s.id }
func (s *MockStream) Tracks() []Track { return []Track{s.track} }
func (s *MockStream) Frames() <-chan []byte { return s.frames }

// Track はストリームのトラックを返す
func (s *MockStream) Track() *MockTrack {
	return s.track
}

// Push はフレームを1つ流す。停止済みの場合は何もしない
func (s *MockStream) Push(frame []byte) {
	if s.track.Stopped() {
		return
	}
	s.frames <- frame
}

func (s *MockStream) close() {
	s.once.Do(func() { close(s.frames) })
}

// MockAcquirer はテスト用のAcquirer実装
type MockAcquirer struct {
	mu sync.Mutex

	// テスト制御用
	shouldFail bool
	failErr    error

	requests int
	streams  []*MockStream
}

// NewMockAcquirer は新しいMockAcquirerを作成する
func NewMockAcquirer() *MockAcquirer {
	return &MockAcquirer{}
}

// RequestVideoStream はモックストリームを返す
func (m *MockAcquirer) RequestVideoStream(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.shouldFail {
		if m.failErr != nil {
			return nil, m.failErr
		}
		return nil, fmt.Errorf("モック: %w", errors.New("permission denied"))
	}

	stream := NewMockStream()
	m.streams = append(m.streams, stream)
	return stream, nil
}

// SetShouldFail はテスト用に取得失敗を設定する
func (m *MockAcquirer) SetShouldFail(shouldFail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = shouldFail
	m.failErr = err
}

// Requests は取得要求の回数を返す
func (m *MockAcquirer) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// LastStream は最後に返したストリームを返す
func (m *MockAcquirer) LastStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}
