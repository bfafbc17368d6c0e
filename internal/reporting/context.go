package reporting

import "context"

type workerKey struct{}

// WithWorker tags ctx with the worker that runs the test. The sink binds entries
// per worker, so every goroutine that logs for a test must carry this value.
func WithWorker(ctx context.Context, worker int) context.Context {
	return context.WithValue(ctx, workerKey{}, worker)
}

// WorkerFrom returns the worker ID carried by ctx.
func WorkerFrom(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	w, ok := ctx.Value(workerKey{}).(int)
	return w, ok
}
