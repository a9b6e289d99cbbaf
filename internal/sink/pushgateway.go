package sink

import (
	"context"

	"github.com/kubilitics/kubilitics-gate/internal/metrics"
)

// PushgatewaySink pushes the gate metrics registry after each run, grouped
// by pipeline and environment.
type PushgatewaySink struct {
	url string
	job string
}

// NewPushgatewaySink creates a sink pushing to url under job.
func NewPushgatewaySink(url, job string) *PushgatewaySink {
	return &PushgatewaySink{url: url, job: job}
}

func (s *PushgatewaySink) Name() string { return "pushgateway" }

func (s *PushgatewaySink) Deliver(ctx context.Context, d Delivery) error {
	return metrics.Push(ctx, s.url, s.job, map[string]string{
		"pipeline_id": d.Report.Context.PipelineID,
		"environment": d.Report.Context.Environment,
	})
}
