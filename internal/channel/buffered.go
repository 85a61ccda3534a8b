package channel

// Buffered is a channel with a fixed backlog.
type Buffered[T any] struct {
	ch chan T
}

func NewBuffered[T any](size int) *Buffered[T] {
	return &Buffered[T]{ch: make(chan T, size)}
}

func (b *Buffered[T]) Send(v T) {
	b.ch <- v
}

// TrySend enqueues v unless the backlog is full.
func (b *Buffered[T]) TrySend(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the backlog.
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Cap returns the backlog limit.
func (b *Buffered[T]) Cap() int {
	return cap(b.ch)
}

func (b *Buffered[T]) Close() {
	close(b.ch)
}
