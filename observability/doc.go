// Package observability provides OpenTelemetry tracing and metrics
// integration for the dfm services.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("execute"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "execute.node")
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("execute"))
//	defer mp.Shutdown(ctx)
//
// The package-level counters record through the global meter provider, so
// they are cheap no-ops until InitMeter installs the SDK.
package observability
