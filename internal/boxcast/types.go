package boxcast

import (
	"errors"
	"fmt"
	"time"

	"github.com/carbondale-church/archiver"
)

var ErrMalformedBroadcast = errors.New("malformed broadcast")
var ErrDownloadFailed = errors.New("recording export failed")
var ErrNoRecording = errors.New("broadcast has no recording")

// APIError is returned when BoxCast responds with a non-success status
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("got response %d from %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// broadcast is the subset of a BoxCast broadcast record that we consume
type broadcast struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	StartsAt     string `json:"starts_at"`
	StopsAt      string `json:"stops_at"`
	Timeframe    string `json:"timeframe"`
	HasRecording bool   `json:"has_recording"`
	RecordingId  string `json:"recording_id"`
}

// toBroadcast converts an API record, failing with ErrMalformedBroadcast if required
// timestamps are absent or unparseable. A broadcast whose timeframe is "current" is
// still live and has no end.
func (b *broadcast) toBroadcast() (archiver.Broadcast, error) {
	if b.Id == "" {
		return archiver.Broadcast{}, fmt.Errorf("%w: missing id", ErrMalformedBroadcast)
	}
	if b.StartsAt == "" {
		return archiver.Broadcast{}, fmt.Errorf("%w: broadcast %s has no starts_at", ErrMalformedBroadcast, b.Id)
	}
	startsAt, err := time.Parse(time.RFC3339, b.StartsAt)
	if err != nil {
		return archiver.Broadcast{}, fmt.Errorf("%w: broadcast %s has invalid starts_at: %v", ErrMalformedBroadcast, b.Id, err)
	}

	var activeEnd *time.Time
	if b.StopsAt != "" && b.Timeframe != "current" {
		stopsAt, err := time.Parse(time.RFC3339, b.StopsAt)
		if err != nil {
			return archiver.Broadcast{}, fmt.Errorf("%w: broadcast %s has invalid stops_at: %v", ErrMalformedBroadcast, b.Id, err)
		}
		activeEnd = &stopsAt
	}

	return archiver.Broadcast{
		Id:             b.Id,
		Title:          b.Name,
		ScheduledStart: startsAt,
		ActiveStart:    startsAt,
		ActiveEnd:      activeEnd,
		RecordingReady: b.HasRecording,
		RecordingId:    b.RecordingId,
	}, nil
}

type Recording struct {
	Id             string `json:"id"`
	DownloadStatus string `json:"download_status"`
	DownloadURL    string `json:"download_url"`
}

// Query selects broadcasts from the account's broadcast list
type Query struct {
	IsLive       bool
	HasRecording bool
	StartsAfter  time.Time
	StartsBefore time.Time
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// rangeExpression renders the Lucene-style starts_at range filter accepted by the
// "q" parameter, or "" if the query has no time bounds
func (q Query) rangeExpression() string {
	if q.StartsAfter.IsZero() && q.StartsBefore.IsZero() {
		return ""
	}
	from := "*"
	if !q.StartsAfter.IsZero() {
		from = formatTimestamp(q.StartsAfter)
	}
	to := "9999-12-31T23:59:59Z"
	if !q.StartsBefore.IsZero() {
		to = formatTimestamp(q.StartsBefore)
	}
	return fmt.Sprintf("starts_at:[%s TO %s]", from, to)
}
