package archiver

type EventType string

const (
	EventTypeRunFinished          EventType = "run-finished"
	EventTypeUncategorized        EventType = "uncategorized"
	EventTypeBroadcastStarted     EventType = "broadcast-started"
	EventTypeBroadcastEnded       EventType = "broadcast-ended"
	EventTypeScheduleGapsDetected EventType = "schedule-gaps-detected"
	EventTypeWeeklyReport         EventType = "weekly-report"
)

// Event is the message produced to the boxcast-events exchange. Exactly one of the
// payload fields is set, according to Type.
type Event struct {
	Type          EventType           `json:"type"`
	Run           *RunSummary         `json:"run,omitempty"`
	Uncategorized *UncategorizedAlert `json:"uncategorized,omitempty"`
	LiveChange    *LiveChange         `json:"liveChange,omitempty"`
	Gaps          *GapReport          `json:"gaps,omitempty"`
	Report        *WeeklyReport       `json:"report,omitempty"`
}

// Apply returns the status that results from observing ev, given the previous status
func (ev *Event) Apply(prev Status) Status {
	next := Status{
		LastRun:   prev.LastRun,
		LiveState: prev.LiveState.Clone(),
	}
	switch ev.Type {
	case EventTypeRunFinished:
		if ev.Run != nil {
			next.LastRun = ev.Run
		}
	case EventTypeBroadcastStarted, EventTypeBroadcastEnded:
		if ev.LiveChange != nil {
			if ev.LiveChange.IsLive {
				next.LiveState[ev.LiveChange.BroadcastId] = true
			} else {
				delete(next.LiveState, ev.LiveChange.BroadcastId)
			}
		}
	}
	return next
}
