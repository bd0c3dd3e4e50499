// Package metrics provides standardised metric emission helpers for the
// capture pipeline.
package metrics

import (
	"time"

	obserrors "github.com/capturelab/scoopd/internal/observability/errors"
	"github.com/capturelab/scoopd/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// CaptureMetric captures details about a capture lifecycle event.
type CaptureMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitCaptureLifecycle emits standardised capture lifecycle metrics.
func EmitCaptureLifecycle(sink statsd.Sink, in CaptureMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("capture.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("capture.duration", in.Duration, cloneTags(tags))
	}
}

// WebhookMetric captures details about one webhook delivery attempt.
type WebhookMetric struct {
	Result   string
	Attempt  int
	Duration time.Duration
}

// EmitWebhookDelivery emits webhook delivery metrics.
func EmitWebhookDelivery(sink statsd.Sink, in WebhookMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": in.Result}
	sink.Count("webhook.delivery", 1, tags)
	if in.Duration > 0 {
		sink.Timing("webhook.delivery_time", in.Duration, cloneTags(tags))
	}
}

// EmitSweep emits a counter for maintenance sweeps (reaper, janitor).
func EmitSweep(sink statsd.Sink, component string, affected int64) {
	if sink == nil {
		return
	}
	sink.Count("sweep.affected", affected, map[string]string{"component": component})
}

func cloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
