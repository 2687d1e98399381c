/*
Package observability turns executor lifecycle hooks into Prometheus metrics
and structured log records.

	m := observability.New(prometheus.NewRegistry())
	hooks := domain.CombineHooks(m.Hooks(), observability.LoggingHooks(logger))
	exec := runtime.NewExecutor(g, runtime.WithLifecycleHooks(hooks))
*/
package observability
