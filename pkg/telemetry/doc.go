// Package telemetry provides observability instrumentation for portcheck.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified
// system for monitoring migration runs.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Downstream code retrieves the logger from the context and derives scoped
// children:
//
//	log := telemetry.FromContext(ctx).WithUnitID("math_ops").WithAttempt(2)
//	log.Info("running baseline")
//
// Spans follow the run / unit / phase hierarchy: one span per migration run,
// one per unit conversion attempt, one per pipeline phase (generate,
// baseline, convert, target, validate). Metrics record unit outcomes,
// attempt counts, test case throughput, mismatch reasons, and generator
// latency. Events feed the persistent run timeline in pkg/stores.
package telemetry
