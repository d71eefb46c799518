package session

import "sync"

// Broker は購読者全員に値を配信する
// dropOldest が true の場合、詰まった購読者の古い値を捨てて最新値を入れる
// false の場合、詰まった購読者は切断される
type Broker[T any] struct {
	mu         sync.Mutex
	subs       map[chan T]struct{}
	buffer     int
	dropOldest bool
	closed     bool
}

// NewBroker は新しいBrokerを作成する
func NewBroker[T any](buffer int, dropOldest bool) *Broker[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker[T]{
		subs:       make(map[chan T]struct{}),
		buffer:     buffer,
		dropOldest: dropOldest,
	}
}

// Subscribe は購読を開始する。返り値の関数で購読を解除する
// initial はバッファに入る分だけ最初に送られる
func (b *Broker[T]) Subscribe(initial ...T) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	for _, v := range initial {
		select {
		case ch <- v:
		default:
		}
	}

	b.subs[ch] = struct{}{}
	return ch, func() { b.remove(ch) }
}

// Publish は全購読者に値を送る。ブロックしない
func (b *Broker[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}

		if !b.dropOldest {
			// 遅いクライアントは切断する
			delete(b.subs, ch)
			close(ch)
			continue
		}

		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Count は購読者数を返す
func (b *Broker[T]) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close は全購読者のチャンネルを閉じる
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.closed = true
}

func (b *Broker[T]) remove(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}
