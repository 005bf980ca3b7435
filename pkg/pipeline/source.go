// Package pipeline provides the plumbing shared by the recording stages:
// a polling input interface and a goroutine lifecycle.
package pipeline

// Source yields items on demand. Next blocks until an item is available,
// the source is exhausted, or done is closed; ok is false in the last two cases.
type Source[T any] interface {
	Next(done <-chan struct{}) (item T, ok bool)
}

// SourceFunc is a function adapter for the Source interface.
type SourceFunc[T any] func(done <-chan struct{}) (T, bool)

// Next implements Source.
func (f SourceFunc[T]) Next(done <-chan struct{}) (T, bool) {
	return f(done)
}

// FromChannel returns a Source that receives from ch until it is closed.
func FromChannel[T any](ch <-chan T) Source[T] {
	return SourceFunc[T](func(done <-chan struct{}) (T, bool) {
		var zero T
		select {
		case item, ok := <-ch:
			if !ok {
				return zero, false
			}
			return item, true
		case <-done:
			return zero, false
		}
	})
}

// TryNext receives from ch without blocking. ok is false when nothing is queued.
func TryNext[T any](ch <-chan T) (item T, ok bool) {
	select {
	case item, ok = <-ch:
		return item, ok
	default:
		return item, false
	}
}
