package redis

import (
	"context"
	"errors"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/pkg/tracing"

	"go.opentelemetry.io/otel/codes"
)

// traceOp opens a db span for one repository call. finish ends it with the
// call's duration and outcome; lookups that simply find nothing are not
// recorded as errors.
func traceOp(ctx context.Context, operation, table string) (context.Context, func(err error)) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, operation, table)
	start := time.Now()
	return ctx, func(err error) {
		tracing.MeasureDuration(ctx, start, operation)
		if err != nil && !isExpectedMiss(err) {
			tracing.RecordError(ctx, err)
		} else {
			tracing.SetSpanStatus(ctx, codes.Ok, "")
		}
		span.End()
	}
}

func isExpectedMiss(err error) bool {
	return errors.Is(err, domain.ErrSpaceNotFound) ||
		errors.Is(err, domain.ErrCredentialNotFound) ||
		errors.Is(err, domain.ErrMetadataNotFound) ||
		errors.Is(err, domain.ErrParticipantExists) ||
		errors.Is(err, domain.ErrCapacityReached)
}
