package kafka

import (
	"context"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// Reporter forwards controller telemetry to kafka.  Reporting is best
// effort: a broker outage degrades observability, never the run itself.
type Reporter struct {
	producer *Producer
	logger   logging.Logger
}

func NewReporter(producer *Producer, log logging.Logger) *Reporter {
	return &Reporter{producer: producer, logger: log.Named("kafka_reporter")}
}

// ReportGeneration publishes a per-generation summary keyed by run.
func (r *Reporter) ReportGeneration(ctx context.Context, report design.GenerationReport) {
	envelope, err := NewEventEnvelope(EventGenerationCompleted, "controller", report)
	if err != nil {
		r.logger.Warn("failed to build generation event", logging.Err(err))
		return
	}
	if err := r.producer.Publish(ctx, r.producer.Topics().GenerationReports(), report.RunID, envelope); err != nil {
		r.logger.Warn("failed to publish generation report",
			logging.String("run_id", report.RunID),
			logging.Int("generation", report.Generation),
			logging.Err(err))
	}
}

// ReportRunFinished publishes the terminal run summary.
func (r *Reporter) ReportRunFinished(ctx context.Context, summary design.RunSummary) {
	envelope, err := NewEventEnvelope(EventRunFinished, "controller", summary)
	if err != nil {
		r.logger.Warn("failed to build run event", logging.Err(err))
		return
	}
	if err := r.producer.Publish(ctx, r.producer.Topics().RunEvents(), summary.RunID, envelope); err != nil {
		r.logger.Warn("failed to publish run summary",
			logging.String("run_id", summary.RunID),
			logging.String("state", string(summary.State)),
			logging.Err(err))
	}
}
