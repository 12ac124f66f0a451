package loader

import "context"

// Future 是异步加载的结果，可被多个调用方同时等待。
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go 在新的 goroutine 中执行 fn 并返回其 Future。
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

// Done 在结果可用时关闭。
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait 阻塞至结果可用或 ctx 结束；ctx 结束不会取消底层加载。
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitAll 依次等待全部 Future，返回第一个错误。
func WaitAll[T any](ctx context.Context, futures ...*Future[T]) ([]T, error) {
	out := make([]T, len(futures))
	var firstErr error
	for i, f := range futures {
		v, err := f.Wait(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		out[i] = v
	}
	return out, firstErr
}
