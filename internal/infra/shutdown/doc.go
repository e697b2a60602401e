// Package shutdown turns SIGINT and SIGTERM into context cancellation and
// runs cleanup hooks with a deadline.
//
//	h := shutdown.NewHandler(10 * time.Second)
//	ctx := h.Context(context.Background())
//	h.OnShutdown(func(ctx context.Context) error { return store.Close() })
//	runDaemon(ctx)
//	err := h.Shutdown()
package shutdown
