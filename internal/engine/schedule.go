package engine

import (
	"context"
	"time"
)

// task периодическая задача. Stop отменяет ее и ждет завершения текущего запуска,
// после возврата из Stop колбэк больше не вызывается.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()

	return t
}

func (t *task) Stop() {
	t.cancel()
	<-t.done
}
