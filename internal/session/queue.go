package session

import "sync"

// eventQueue は上限のないイベントキュー
// Post はブロックしないため、ループ自身やフレーム読み取りゴルーチンからも安全に呼べる
type eventQueue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		notify: make(chan struct{}, 1),
	}
}

// Post は関数をキューに積む。クローズ後は破棄する
func (q *eventQueue) Post(fn func()) {
	q.post(fn)
}

func (q *eventQueue) post(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// drain は積まれている関数を全て取り出す
func (q *eventQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
