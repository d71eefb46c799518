package render

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler はテスト用に手動で時間を進めるScheduler
// Step で1リフレッシュ分、Advance で指定時間分だけ進める
type ManualScheduler struct {
	mu     sync.Mutex
	next   Handle
	frames []manualFrame
	timers []manualTimer
	now    time.Duration
	seq    int
}

type manualFrame struct {
	handle Handle
	fn     func()
}

type manualTimer struct {
	at  time.Duration
	seq int
	fn  func()
}

// NewManualScheduler は新しいManualSchedulerを作成する
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// ScheduleFrame は次の Step で実行される予約を追加する
func (m *ManualScheduler) ScheduleFrame(fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	m.frames = append(m.frames, manualFrame{handle: m.next, fn: fn})
	return m.next
}

// Cancel は予約を取り消す
func (m *ManualScheduler) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, f := range m.frames {
		if f.handle == h {
			m.frames = append(m.frames[:i], m.frames[i+1:]...)
			return
		}
	}
}

// After は Advance で d 以上進めたときに実行されるタイマーを追加する
func (m *ManualScheduler) After(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.timers = append(m.timers, manualTimer{at: m.now + d, seq: m.seq, fn: fn})
}

// Step は1リフレッシュ分進め、その時点で予約済みのフレームを全て実行する
// 実行中に追加された予約は次の Step まで実行されない
// 実行したコールバック数を返す
func (m *ManualScheduler) Step() int {
	m.mu.Lock()
	frames := m.frames
	m.frames = nil
	m.mu.Unlock()

	for _, f := range frames {
		f.fn()
	}
	return len(frames)
}

// Advance は時間を d だけ進め、期限が来たタイマーを期限順に実行する
func (m *ManualScheduler) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now += d
	now := m.now

	var due, rest []manualTimer
	for _, t := range m.timers {
		if t.at <= now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	m.timers = rest
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].seq < due[j].seq
		}
		return due[i].at < due[j].at
	})

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Pending は未実行のフレーム予約数を返す
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Timers は未実行のタイマー数を返す
func (m *ManualScheduler) Timers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
