// Package safego launches background goroutines that cannot take the process down.
package safego

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Go runs fn in a new goroutine. A panic is recovered and logged with the task name
// and stack instead of crashing the process.
func Go(task string, fn func()) {
	go run(task, fn)
}

func run(task string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background goroutine",
				"task", task, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Group tracks the goroutines it starts so shutdown can wait for in-flight work
// such as result archiving.
type Group struct {
	wg sync.WaitGroup
}

// Go runs fn like the package-level Go and registers it with the group.
func (g *Group) Go(task string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(task, fn)
	}()
}

// Wait blocks until every goroutine of the group has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
