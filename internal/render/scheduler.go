package render

import (
	"sync"
	"time"

	"webcamshooter/internal/camera"
)

// Handle は予約済みフレーム描画の識別子
type Handle uint64

// Scheduler はフレーム描画の予約を行う
type Scheduler interface {
	// ScheduleFrame は次のリフレッシュで fn を一度だけ実行する
	ScheduleFrame(fn func()) Handle
	// Cancel は予約を取り消す。実行済み・取り消し済みの場合は何もしない
	Cancel(h Handle)
	// After は d 経過後に fn を一度だけ実行する。取り消しはできない
	After(d time.Duration, fn func())
}

// RefreshScheduler はタイマーでリフレッシュを模擬するScheduler
// コールバックはDispatcher経由でイベントループ上で実行される
type RefreshScheduler struct {
	interval time.Duration
	dispatch camera.Dispatcher
	epoch    time.Time

	mu      sync.Mutex
	next    Handle
	pending map[Handle]*time.Timer
	closed  bool
}

// NewRefreshScheduler は新しいRefreshSchedulerを作成する
func NewRefreshScheduler(interval time.Duration, dispatch camera.Dispatcher) *RefreshScheduler {
	if interval <= 0 {
		interval = time.Second / 30
	}

	return &RefreshScheduler{
		interval: interval,
		dispatch: dispatch,
		epoch:    time.Now(),
		pending:  make(map[Handle]*time.Timer),
	}
}

// ScheduleFrame は次のリフレッシュ境界で fn を実行する
func (s *RefreshScheduler) ScheduleFrame(fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	if s.closed {
		return h
	}

	// 起動時刻を基準にリフレッシュ境界へ揃える
	delay := s.interval - time.Since(s.epoch)%s.interval

	s.pending[h] = time.AfterFunc(delay, func() {
		s.dispatch.Post(func() {
			// キューに積まれた後に取り消された場合は実行しない
			if s.take(h) {
				fn()
			}
		})
	})

	return h
}

// Cancel は予約を取り消す
func (s *RefreshScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.pending[h]; ok {
		t.Stop()
		delete(s.pending, h)
	}
}

// After は d 経過後に fn をイベントループで実行する
func (s *RefreshScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	time.AfterFunc(d, func() {
		s.dispatch.Post(fn)
	})
}

// Close は全ての予約を取り消し、以後の予約を無視する
func (s *RefreshScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h, t := range s.pending {
		t.Stop()
		delete(s.pending, h)
	}
	s.closed = true
}

// Pending は未実行の予約数を返す
func (s *RefreshScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *RefreshScheduler) take(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[h]; !ok {
		return false
	}
	delete(s.pending, h)
	return true
}
