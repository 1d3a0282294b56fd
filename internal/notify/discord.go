package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/carbondale-church/archiver"
)

// MaxMessageLength is the longest message content Discord accepts in a single webhook
// execution
const MaxMessageLength = 2000

const localTimeLayout = "2006-01-02 15:04:05 MST"

// Discord posts formatted messages to a Discord channel via an incoming webhook
type Discord struct {
	webhookURL string
	http       *http.Client
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) RunSummary(ctx context.Context, summary *archiver.RunSummary) error {
	return d.post(ctx, FormatRunSummary(summary))
}

func (d *Discord) Uncategorized(ctx context.Context, alert *archiver.UncategorizedAlert) error {
	return d.post(ctx, FormatUncategorized(alert))
}

func (d *Discord) LiveChanged(ctx context.Context, change *archiver.LiveChange) error {
	return d.post(ctx, FormatLiveChange(change))
}

func (d *Discord) ScheduleGaps(ctx context.Context, report *archiver.GapReport) error {
	if len(report.Gaps) == 0 {
		return nil
	}
	return d.post(ctx, FormatScheduleGaps(report))
}

func (d *Discord) WeeklyReport(ctx context.Context, report *archiver.WeeklyReport) error {
	return d.post(ctx, FormatWeeklyReport(report))
}

// post sends content as one or more webhook messages, splitting on line boundaries
// to stay under MaxMessageLength
func (d *Discord) post(ctx context.Context, content string) error {
	for _, chunk := range SplitMessage(content, MaxMessageLength) {
		if err := d.send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (d *Discord) send(ctx context.Context, content string) error {
	payload, err := json.Marshal(struct {
		Content string `json:"content"`
	}{content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	res, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 200))
		return fmt.Errorf("got response %d from Discord webhook: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func FormatRunSummary(summary *archiver.RunSummary) string {
	lines := []string{"**BoxCast Download Summary**"}
	if len(summary.Downloads) == 0 {
		lines = append(lines, "No new services were downloaded this run.")
	} else {
		lines = append(lines, fmt.Sprintf("Downloads this run: %d", len(summary.Downloads)), "")
		for _, d := range summary.Downloads {
			lines = append(lines, fmt.Sprintf("- `%s` → `%s` (category: %s)", d.Title, d.Path, d.Category))
		}
	}
	if len(summary.Skipped) > 0 {
		lines = append(lines, "", fmt.Sprintf("Skipped: %d", len(summary.Skipped)))
		for _, s := range summary.Skipped {
			title := s.Title
			if title == "" {
				title = s.BroadcastId
			}
			lines = append(lines, fmt.Sprintf("- `%s`: %s", title, s.Reason))
		}
	}
	for _, note := range summary.Notes {
		lines = append(lines, "", note)
	}
	return strings.Join(lines, "\n")
}

func FormatUncategorized(alert *archiver.UncategorizedAlert) string {
	return strings.Join([]string{
		"**Uncategorized BoxCast Service Detected**",
		fmt.Sprintf("Broadcast '%s' (ID: %s) did not match any known rules.", alert.Broadcast.Title, alert.Broadcast.Id),
		fmt.Sprintf("Starts at (local): %s", alert.LocalStart.Format(localTimeLayout)),
		fmt.Sprintf("Placing in: %s", alert.Destination),
	}, "\n")
}

func FormatLiveChange(change *archiver.LiveChange) string {
	if change.IsLive {
		lines := []string{
			"**BoxCast Live Stream Started**",
			fmt.Sprintf("'%s' just went live.", change.Title),
		}
		if change.LocalStart != nil {
			lines = append(lines, fmt.Sprintf("Start time (local): %s", change.LocalStart.Format(localTimeLayout)))
		}
		return strings.Join(lines, "\n")
	}
	endInfo := "End time unknown."
	if change.LocalEnd != nil {
		endInfo = fmt.Sprintf("End time (local): %s", change.LocalEnd.Format(localTimeLayout))
	}
	title := change.Title
	if title == "" {
		title = change.BroadcastId
	}
	return strings.Join([]string{
		"**BoxCast Live Stream Ended**",
		fmt.Sprintf("'%s' is no longer live.", title),
		endInfo,
	}, "\n")
}

func FormatScheduleGaps(report *archiver.GapReport) string {
	lines := []string{
		fmt.Sprintf("**Missing Scheduled BoxCast Streams (Next %d Days)**", report.WindowDays),
		fmt.Sprintf("The following expected BoxCast streams are NOT scheduled in the next %d days:", report.WindowDays),
		"",
	}
	for _, g := range report.Gaps {
		lines = append(lines, "- "+g.String())
	}
	return strings.Join(lines, "\n")
}

func FormatWeeklyReport(report *archiver.WeeklyReport) string {
	lastDay := report.WindowEnd.AddDate(0, 0, -1)
	lines := []string{
		"**Weekly BoxCast Summary**",
		fmt.Sprintf("Period: %s to %s", report.WindowStart.Format("2006-01-02"), lastDay.Format("2006-01-02")),
		"",
	}
	for _, line := range report.Lines {
		lines = append(lines, fmt.Sprintf("- %s: scheduled %d, recordings %d", line.Label, line.Stats.Scheduled, line.Stats.Recorded))
	}
	return strings.Join(lines, "\n")
}

// SplitMessage breaks content into chunks of at most limit bytes, preferring to split
// between lines. A single line longer than limit is split mid-line on a rune boundary;
// a rune wider than limit becomes a chunk of its own. A non-positive limit returns
// content unsplit.
func SplitMessage(content string, limit int) []string {
	if len(content) <= limit || limit <= 0 {
		return []string{content}
	}
	var chunks []string
	var current []string
	size := 0
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = nil
			size = 0
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if len(line) > limit {
			flush()
			for len(line) > limit {
				cut := limit
				for cut > 0 && !utf8.RuneStart(line[cut]) {
					cut--
				}
				if cut == 0 {
					_, cut = utf8.DecodeRuneInString(line)
				}
				chunks = append(chunks, line[:cut])
				line = line[cut:]
			}
			if line == "" {
				continue
			}
		}
		needed := len(line)
		if len(current) > 0 {
			needed++
		}
		if size+needed > limit {
			flush()
			needed = len(line)
		}
		current = append(current, line)
		size += needed
	}
	flush()
	return chunks
}
