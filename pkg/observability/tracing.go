package observability

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Tracer wraps X-Ray segment management for store and service operations.
type Tracer struct {
	serviceName string
}

// NewTracer creates a tracer for the named service.
func NewTracer(serviceName string) *Tracer {
	return &Tracer{serviceName: serviceName}
}

// Capture runs fn inside a subsegment named after the operation. A nil
// tracer runs fn directly, which keeps unit tests free of X-Ray state.
func (t *Tracer) Capture(ctx context.Context, operation string, fn func(context.Context) error) error {
	if t == nil {
		return fn(ctx)
	}
	return xray.Capture(ctx, fmt.Sprintf("%s.%s", t.serviceName, operation), fn)
}

// AddAnnotation adds an indexed annotation to the current segment.
func (t *Tracer) AddAnnotation(ctx context.Context, key, value string) {
	if t == nil {
		return
	}
	if seg := xray.GetSegment(ctx); seg != nil {
		seg.AddAnnotation(key, value)
	}
}
