package archiver

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Broadcast is a single streamed/recorded service, as reported by BoxCast
type Broadcast struct {
	Id             string     `json:"id"`
	Title          string     `json:"title"`
	ScheduledStart time.Time  `json:"scheduledStart"`
	ActiveStart    time.Time  `json:"activeStart"`
	ActiveEnd      *time.Time `json:"activeEnd"`
	RecordingReady bool       `json:"recordingReady"`
	RecordingId    string     `json:"recordingId,omitempty"`
}

type CategoryKind string

const (
	CategoryFirstService          CategoryKind = "1st Service"
	CategorySundaySchool          CategoryKind = "Sunday School"
	CategorySecondService         CategoryKind = "2nd Service"
	CategoryWednesdayNight        CategoryKind = "Wednesday Night"
	CategoryYouth                 CategoryKind = "Youth"
	CategoryMemorial              CategoryKind = "Memorial"
	CategoryHoliday               CategoryKind = "Holiday"
	CategoryChristmasAtCarbondale CategoryKind = "Christmas at Carbondale"
	CategoryUncategorized         CategoryKind = "Uncategorized"
)

// Category is the routing label assigned to a broadcast. Holiday is only set when
// Kind is CategoryHoliday, in which case it holds the configured holiday name.
type Category struct {
	Kind    CategoryKind `json:"kind"`
	Holiday string       `json:"holiday,omitempty"`
}

func (c Category) String() string {
	if c.Kind == CategoryHoliday && c.Holiday != "" {
		return fmt.Sprintf("%s (%s)", c.Kind, c.Holiday)
	}
	return string(c.Kind)
}

// Holiday returns the category for the given configured holiday name
func Holiday(name string) Category {
	return Category{Kind: CategoryHoliday, Holiday: name}
}

// LiveState maps broadcast ID to the last known "is live" value. A missing entry is
// equivalent to false.
type LiveState map[string]bool

func (s LiveState) Clone() LiveState {
	out := make(LiveState, len(s))
	for id, live := range s {
		out[id] = live
	}
	return out
}

// ExpectedSlot is a recurring weekly service that should always have a broadcast.
// Start and End are offsets from local midnight.
type ExpectedSlot struct {
	Label   string        `json:"label"`
	Weekday time.Weekday  `json:"weekday"`
	Start   time.Duration `json:"start"`
	End     time.Duration `json:"end"`
}

// On returns the concrete [start, end) interval of the slot on the given date. The
// offsets are read as wall-clock times, so a slot keeps its local hours on days when
// daylight saving time begins or ends.
func (s ExpectedSlot) On(date time.Time) (time.Time, time.Time) {
	return wallClock(date, s.Start), wallClock(date, s.End)
}

func wallClock(date time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	sec := int((offset % time.Minute) / time.Second)
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, sec, 0, date.Location())
}

func (s ExpectedSlot) WindowString() string {
	return fmt.Sprintf("%s–%s", formatClock(s.Start), formatClock(s.End))
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// DestinationPath identifies where a recording is filed, relative to the download
// directory
type DestinationPath struct {
	Folder   string `json:"folder"`
	BaseName string `json:"baseName"`
}

const RecordingExtension = ".mp4"

func (p DestinationPath) FileName() string {
	return SafeFileName(p.BaseName) + RecordingExtension
}

func (p DestinationPath) Join(baseDir string) string {
	return filepath.Join(baseDir, p.Folder, p.FileName())
}

func (p DestinationPath) String() string {
	return filepath.Join(p.Folder, p.FileName())
}

// SafeFileName replaces characters that are invalid on common filesystems and
// collapses runs of whitespace
func SafeFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
	return strings.Join(strings.Fields(mapped), " ")
}

// Gap is an expected slot on a specific date for which no broadcast was found
type Gap struct {
	Date time.Time    `json:"date"`
	Slot ExpectedSlot `json:"slot"`
}

func (g Gap) String() string {
	return fmt.Sprintf("%s (%s) — %s window (%s)", g.Date.Format("2006-01-02"), g.Date.Weekday(), g.Slot.Label, g.Slot.WindowString())
}

type CategoryStats struct {
	Scheduled int `json:"scheduled"`
	Recorded  int `json:"recorded"`
}

// Download describes a recording that was saved during a run
type Download struct {
	BroadcastId string   `json:"broadcastId"`
	Title       string   `json:"title"`
	Category    Category `json:"category"`
	Path        string   `json:"path"`
}

// Skipped describes a broadcast that could not be processed during a run
type Skipped struct {
	BroadcastId string `json:"broadcastId"`
	Title       string `json:"title"`
	Reason      string `json:"reason"`
}

type RunSummary struct {
	RunId      uuid.UUID  `json:"runId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Downloads  []Download `json:"downloads"`
	Skipped    []Skipped  `json:"skipped"`
	Notes      []string   `json:"notes"`
}

type UncategorizedAlert struct {
	Broadcast   Broadcast `json:"broadcast"`
	LocalStart  time.Time `json:"localStart"`
	Destination string    `json:"destination"`
}

type LiveChange struct {
	BroadcastId string     `json:"broadcastId"`
	Title       string     `json:"title"`
	IsLive      bool       `json:"isLive"`
	LocalStart  *time.Time `json:"localStart,omitempty"`
	LocalEnd    *time.Time `json:"localEnd,omitempty"`
}

type GapReport struct {
	WindowStart time.Time `json:"windowStart"`
	WindowDays  int       `json:"windowDays"`
	Gaps        []Gap     `json:"gaps"`
}

type ReportLine struct {
	Label string        `json:"label"`
	Stats CategoryStats `json:"stats"`
}

type WeeklyReport struct {
	WindowStart time.Time    `json:"windowStart"`
	WindowEnd   time.Time    `json:"windowEnd"`
	Lines       []ReportLine `json:"lines"`
}

// Status is reported by the headless server
type Status struct {
	LastRun   *RunSummary `json:"lastRun"`
	LiveState LiveState   `json:"liveState"`
}
