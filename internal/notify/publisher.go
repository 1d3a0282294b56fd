package notify

import (
	"context"
	"encoding/json"

	"github.com/carbondale-church/archiver"
)

// Producer sends a message to an AMQP exchange; it's satisfied by the producer
// returned from rmq.NewProducer
type Producer interface {
	Send(ctx context.Context, data []byte) error
}

// Publisher produces a JSON event to an AMQP exchange for every message, so that
// downstream services can react to archiver activity
type Publisher struct {
	producer Producer
}

func NewPublisher(producer Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) RunSummary(ctx context.Context, summary *archiver.RunSummary) error {
	return p.produce(ctx, &archiver.Event{Type: archiver.EventTypeRunFinished, Run: summary})
}

func (p *Publisher) Uncategorized(ctx context.Context, alert *archiver.UncategorizedAlert) error {
	return p.produce(ctx, &archiver.Event{Type: archiver.EventTypeUncategorized, Uncategorized: alert})
}

func (p *Publisher) LiveChanged(ctx context.Context, change *archiver.LiveChange) error {
	eventType := archiver.EventTypeBroadcastEnded
	if change.IsLive {
		eventType = archiver.EventTypeBroadcastStarted
	}
	return p.produce(ctx, &archiver.Event{Type: eventType, LiveChange: change})
}

func (p *Publisher) ScheduleGaps(ctx context.Context, report *archiver.GapReport) error {
	if len(report.Gaps) == 0 {
		return nil
	}
	return p.produce(ctx, &archiver.Event{Type: archiver.EventTypeScheduleGapsDetected, Gaps: report})
}

func (p *Publisher) WeeklyReport(ctx context.Context, report *archiver.WeeklyReport) error {
	return p.produce(ctx, &archiver.Event{Type: archiver.EventTypeWeeklyReport, Report: report})
}

func (p *Publisher) produce(ctx context.Context, ev *archiver.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.producer.Send(ctx, data)
}
