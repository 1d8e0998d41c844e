package util

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// PanicError is returned in place of a task's error when the task panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Gather runs fn for every input with at most workerLimit tasks in flight
// (workerLimit <= 0 runs all of them at once) and waits for all of them.
// A failing or panicking task does not stop its siblings. The returned slice
// holds each task's error at the position of its input.
func Gather[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) []error {
	errs := make([]error, len(inputs))
	if len(inputs) == 0 {
		return errs
	}

	if workerLimit <= 0 || workerLimit > len(inputs) {
		workerLimit = len(inputs)
	}

	tasks := make(chan int)

	// workers
	wg := sync.WaitGroup{}
	for range workerLimit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				errs[i] = runTask(ctx, inputs[i], fn)
			}
		}()
	}

	// feed tasks
	for i := range inputs {
		tasks <- i
	}
	close(tasks)

	wg.Wait()
	return errs
}

func runTask[T any](ctx context.Context, input T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, input)
}
