package client_test

import (
	"context"
	"sync"
	"testing"
)

var testContexts sync.Map

// testContext stands in for testing.T.Context (Go 1.24+): it returns a
// per-test context that is canceled when the test's cleanup runs.
func testContext(t *testing.T) context.Context {
	if ctx, ok := testContexts.Load(t); ok {
		return ctx.(context.Context)
	}
	ctx, cancel := context.WithCancel(context.Background())
	actual, loaded := testContexts.LoadOrStore(t, ctx)
	if loaded {
		cancel()
		return actual.(context.Context)
	}
	t.Cleanup(func() {
		cancel()
		testContexts.Delete(t)
	})
	return ctx
}
