package transport

import "context"

type attemptKey struct{}

// WithAttempt returns a context marking the request as attempt n of the same
// original call. Attempt 0 is the original dispatch; the interceptor only
// refreshes after a 401 on attempt 0, so marking a request with 1 opts it out.
func WithAttempt(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, attemptKey{}, n)
}

// AttemptFrom returns the attempt carried by ctx, 0 when unset.
func AttemptFrom(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// dispatchRecord is filled in by the Dispatcher with the access token it
// attached, so the interceptor knows which token the server rejected.
type dispatchRecord struct {
	token string
}

type dispatchRecordKey struct{}

func withDispatchRecord(ctx context.Context) (context.Context, *dispatchRecord) {
	rec := &dispatchRecord{}
	return context.WithValue(ctx, dispatchRecordKey{}, rec), rec
}

func dispatchRecordFrom(ctx context.Context) *dispatchRecord {
	rec, _ := ctx.Value(dispatchRecordKey{}).(*dispatchRecord)
	return rec
}
