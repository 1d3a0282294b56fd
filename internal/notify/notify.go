package notify

import (
	"context"
	"errors"

	"golang.org/x/exp/slog"

	"github.com/carbondale-church/archiver"
)

// Notifier delivers the messages produced by an archiver run. Implementations decide
// how each message is formatted and transported.
type Notifier interface {
	RunSummary(ctx context.Context, summary *archiver.RunSummary) error
	Uncategorized(ctx context.Context, alert *archiver.UncategorizedAlert) error
	LiveChanged(ctx context.Context, change *archiver.LiveChange) error
	ScheduleGaps(ctx context.Context, report *archiver.GapReport) error
	WeeklyReport(ctx context.Context, report *archiver.WeeklyReport) error
}

// Multi delivers every message to all of its notifiers. A failing notifier does not
// prevent delivery to the others; all errors are returned together.
type Multi []Notifier

func (m Multi) each(fn func(n Notifier) error) error {
	var errs []error
	for _, n := range m {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RunSummary(ctx context.Context, summary *archiver.RunSummary) error {
	return m.each(func(n Notifier) error { return n.RunSummary(ctx, summary) })
}

func (m Multi) Uncategorized(ctx context.Context, alert *archiver.UncategorizedAlert) error {
	return m.each(func(n Notifier) error { return n.Uncategorized(ctx, alert) })
}

func (m Multi) LiveChanged(ctx context.Context, change *archiver.LiveChange) error {
	return m.each(func(n Notifier) error { return n.LiveChanged(ctx, change) })
}

func (m Multi) ScheduleGaps(ctx context.Context, report *archiver.GapReport) error {
	return m.each(func(n Notifier) error { return n.ScheduleGaps(ctx, report) })
}

func (m Multi) WeeklyReport(ctx context.Context, report *archiver.WeeklyReport) error {
	return m.each(func(n Notifier) error { return n.WeeklyReport(ctx, report) })
}

// Log records every message as a structured log line. It never fails.
type Log struct {
	Logger *slog.Logger
}

func (l *Log) RunSummary(ctx context.Context, summary *archiver.RunSummary) error {
	l.Logger.Info("Run summary", "runId", summary.RunId, "numDownloads", len(summary.Downloads), "numSkipped", len(summary.Skipped), "notes", summary.Notes)
	return nil
}

func (l *Log) Uncategorized(ctx context.Context, alert *archiver.UncategorizedAlert) error {
	l.Logger.Warn("Uncategorized broadcast", "broadcastId", alert.Broadcast.Id, "title", alert.Broadcast.Title, "localStart", alert.LocalStart, "destination", alert.Destination)
	return nil
}

func (l *Log) LiveChanged(ctx context.Context, change *archiver.LiveChange) error {
	l.Logger.Info("Live state changed", "broadcastId", change.BroadcastId, "title", change.Title, "isLive", change.IsLive)
	return nil
}

func (l *Log) ScheduleGaps(ctx context.Context, report *archiver.GapReport) error {
	for _, g := range report.Gaps {
		l.Logger.Warn("Expected service not scheduled", "date", g.Date.Format("2006-01-02"), "slot", g.Slot.Label)
	}
	return nil
}

func (l *Log) WeeklyReport(ctx context.Context, report *archiver.WeeklyReport) error {
	for _, line := range report.Lines {
		l.Logger.Info("Weekly report", "category", line.Label, "scheduled", line.Stats.Scheduled, "recorded", line.Stats.Recorded)
	}
	return nil
}
