//go:build !debug

package channel

// New returns a buffered channel holding up to size values.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
