package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/carbondale-church/archiver"
)

func Test_Discord(t *testing.T) {
	var contents []string
	srv := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/json", req.Header.Get("content-type"))
		var payload struct {
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		contents = append(contents, payload.Content)
		res.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL)
	err := d.RunSummary(context.Background(), &archiver.RunSummary{RunId: uuid.New()})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "**BoxCast Download Summary**\nNo new services were downloaded this run.", contents[0])
}

func Test_Discord_skipsEmptyGapReport(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		calls++
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL).ScheduleGaps(context.Background(), &archiver.GapReport{WindowDays: 7})
	assert.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func Test_Discord_error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		http.Error(res, "Unknown Webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL).WeeklyReport(context.Background(), &archiver.WeeklyReport{})
	assert.ErrorContains(t, err, "got response 404 from Discord webhook: Unknown Webhook")
}

func Test_Discord_splitsLongMessages(t *testing.T) {
	var contents []string
	srv := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		var payload struct {
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		contents = append(contents, payload.Content)
	}))
	defer srv.Close()

	summary := &archiver.RunSummary{}
	for i := 0; i < 60; i++ {
		summary.Downloads = append(summary.Downloads, archiver.Download{
			Title:    strings.Repeat("x", 40),
			Path:     "2nd Service/2024-06-09 - " + strings.Repeat("x", 40) + ".mp4",
			Category: archiver.Category{Kind: archiver.CategorySecondService},
		})
	}
	err := NewDiscord(srv.URL).RunSummary(context.Background(), summary)
	require.NoError(t, err)
	assert.Greater(t, len(contents), 1)
	for _, c := range contents {
		assert.LessOrEqual(t, len(c), MaxMessageLength)
	}
	assert.Equal(t, FormatRunSummary(summary), strings.Join(contents, "\n"))
}

func Test_SplitMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int
		want    []string
	}{
		{"short message is untouched", "hello\nworld", 20, []string{"hello\nworld"}},
		{"splits on line boundaries", "aaaa\nbbbb\ncccc", 9, []string{"aaaa\nbbbb", "cccc"}},
		{"splits overlong lines", "aaaaaaaaaa", 4, []string{"aaaa", "aaaa", "aa"}},
		{"never splits a rune", "ééé", 3, []string{"é", "é", "é"}},
		{"limit narrower than a rune", "éé", 1, []string{"é", "é"}},
		{"non-positive limit leaves content whole", "abc\ndef", 0, []string{"abc\ndef"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitMessage(tt.content, tt.limit))
		})
	}
}

func Test_FormatRunSummary(t *testing.T) {
	got := FormatRunSummary(&archiver.RunSummary{
		Downloads: []archiver.Download{
			{
				BroadcastId: "b1",
				Title:       "Sunday Worship",
				Category:    archiver.Category{Kind: archiver.CategorySecondService},
				Path:        "2nd Service/2024-06-09 - Sunday Worship.mp4",
			},
		},
		Skipped: []archiver.Skipped{
			{BroadcastId: "b2", Reason: "malformed broadcast: broadcast b2 has no starts_at"},
		},
	})
	assert.Equal(t, strings.Join([]string{
		"**BoxCast Download Summary**",
		"Downloads this run: 1",
		"",
		"- `Sunday Worship` → `2nd Service/2024-06-09 - Sunday Worship.mp4` (category: 2nd Service)",
		"",
		"Skipped: 1",
		"- `b2`: malformed broadcast: broadcast b2 has no starts_at",
	}, "\n"), got)
}

func Test_FormatLiveChange(t *testing.T) {
	loc := time.FixedZone("CDT", -5*60*60)
	start := time.Date(2024, 6, 9, 10, 55, 0, 0, loc)
	end := time.Date(2024, 6, 9, 12, 5, 0, 0, loc)

	assert.Equal(t,
		"**BoxCast Live Stream Started**\n'Sunday Worship' just went live.\nStart time (local): 2024-06-09 10:55:00 CDT",
		FormatLiveChange(&archiver.LiveChange{BroadcastId: "b1", Title: "Sunday Worship", IsLive: true, LocalStart: &start}),
	)
	assert.Equal(t,
		"**BoxCast Live Stream Ended**\n'Sunday Worship' is no longer live.\nEnd time (local): 2024-06-09 12:05:00 CDT",
		FormatLiveChange(&archiver.LiveChange{BroadcastId: "b1", Title: "Sunday Worship", LocalEnd: &end}),
	)
	assert.Equal(t,
		"**BoxCast Live Stream Ended**\n'b1' is no longer live.\nEnd time unknown.",
		FormatLiveChange(&archiver.LiveChange{BroadcastId: "b1"}),
	)
}

func Test_FormatScheduleGaps(t *testing.T) {
	loc := time.FixedZone("CDT", -5*60*60)
	got := FormatScheduleGaps(&archiver.GapReport{
		WindowDays: 7,
		Gaps: []archiver.Gap{
			{
				Date: time.Date(2024, 6, 12, 0, 0, 0, 0, loc),
				Slot: archiver.ExpectedSlot{Label: "Wednesday Night", Weekday: time.Wednesday, Start: 18 * time.Hour, End: 21 * time.Hour},
			},
		},
	})
	assert.Equal(t, strings.Join([]string{
		"**Missing Scheduled BoxCast Streams (Next 7 Days)**",
		"The following expected BoxCast streams are NOT scheduled in the next 7 days:",
		"",
		"- 2024-06-12 (Wednesday) — Wednesday Night window (18:00–21:00)",
	}, "\n"), got)
}

func Test_FormatWeeklyReport(t *testing.T) {
	got := FormatWeeklyReport(&archiver.WeeklyReport{
		WindowStart: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Lines: []archiver.ReportLine{
			{Label: "Sunday 1st Service", Stats: archiver.CategoryStats{Scheduled: 1, Recorded: 1}},
			{Label: "Other", Stats: archiver.CategoryStats{Scheduled: 2, Recorded: 0}},
		},
	})
	assert.Equal(t, strings.Join([]string{
		"**Weekly BoxCast Summary**",
		"Period: 2024-06-03 to 2024-06-09",
		"",
		"- Sunday 1st Service: scheduled 1, recordings 1",
		"- Other: scheduled 2, recordings 0",
	}, "\n"), got)
}

func Test_Publisher(t *testing.T) {
	producer := &mockProducer{}
	p := NewPublisher(producer)

	runId := uuid.MustParse("6f1b0d4e-2c4a-4f57-9a53-1f0b8f4a2e10")
	require.NoError(t, p.RunSummary(context.Background(), &archiver.RunSummary{RunId: runId}))
	require.NoError(t, p.LiveChanged(context.Background(), &archiver.LiveChange{BroadcastId: "b1", IsLive: true}))
	require.NoError(t, p.LiveChanged(context.Background(), &archiver.LiveChange{BroadcastId: "b1", IsLive: false}))
	require.NoError(t, p.ScheduleGaps(context.Background(), &archiver.GapReport{WindowDays: 7}))

	require.Len(t, producer.messages, 3)
	var ev archiver.Event
	require.NoError(t, json.Unmarshal(producer.messages[0], &ev))
	assert.Equal(t, archiver.EventTypeRunFinished, ev.Type)
	require.NotNil(t, ev.Run)
	assert.Equal(t, runId, ev.Run.RunId)

	require.NoError(t, json.Unmarshal(producer.messages[1], &ev))
	assert.Equal(t, archiver.EventTypeBroadcastStarted, ev.Type)
	require.NoError(t, json.Unmarshal(producer.messages[2], &ev))
	assert.Equal(t, archiver.EventTypeBroadcastEnded, ev.Type)
}

func Test_Multi(t *testing.T) {
	a := &mockNotifier{}
	b := &mockNotifier{err: errors.New("webhook down")}
	c := &mockNotifier{}
	m := Multi{a, b, &Log{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, c}

	err := m.Uncategorized(context.Background(), &archiver.UncategorizedAlert{})
	assert.ErrorContains(t, err, "webhook down")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, c.calls)
}

type mockProducer struct {
	messages [][]byte
}

func (m *mockProducer) Send(ctx context.Context, data []byte) error {
	m.messages = append(m.messages, data)
	return nil
}

type mockNotifier struct {
	calls int
	err   error
}

func (m *mockNotifier) RunSummary(ctx context.Context, summary *archiver.RunSummary) error {
	m.calls++
	return m.err
}

func (m *mockNotifier) Uncategorized(ctx context.Context, alert *archiver.UncategorizedAlert) error {
	m.calls++
	return m.err
}

func (m *mockNotifier) LiveChanged(ctx context.Context, change *archiver.LiveChange) error {
	m.calls++
	return m.err
}

func (m *mockNotifier) ScheduleGaps(ctx context.Context, report *archiver.GapReport) error {
	m.calls++
	return m.err
}

func (m *mockNotifier) WeeklyReport(ctx context.Context, report *archiver.WeeklyReport) error {
	m.calls++
	return m.err
}
