package interceptor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
)

// Tracing returns an interceptor that wraps each transaction in an OTel
// span named "binder.transact", tagged with the transaction's what code.
// With no TracerProvider configured, otel's default no-op implementation
// makes this free to leave in place permanently.
func Tracing(tracerName string) Interceptor {
	tracer := otel.Tracer(tracerName)
	return func(next core.OnTransact) core.OnTransact {
		return func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
			_, span := tracer.Start(context.Background(), "binder.transact",
				trace.WithAttributes(attribute.Int("binder.what", int(what))))

			next(what, data, result)

			result.ThenRun(func() {
				if _, err := result.Get(); err != nil {
					span.SetStatus(codes.Error, fmt.Sprintf("%v", err))
					span.RecordError(err)
				} else {
					span.SetStatus(codes.Ok, "")
				}
				span.End()
			})
		}
	}
}
