package report

import (
	"testing"
	"time"

	"github.com/carbondale-church/archiver"
	"github.com/carbondale-church/archiver/internal/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Aggregate(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	c := classify.NewClassifier(classify.DefaultHolidays, loc)
	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, 6, day, hour, minute, 0, 0, loc)
	}

	// Four 2nd services in the window, three of which have recordings; plus a mix of
	// other categories, and broadcasts just outside the window
	broadcasts := []archiver.Broadcast{
		{Id: "1", Title: "Worship", ActiveStart: at(9, 11, 0), RecordingReady: true},
		{Id: "2", Title: "Worship", ActiveStart: at(9, 11, 5), RecordingReady: true},
		{Id: "3", Title: "Worship", ActiveStart: at(9, 12, 0), RecordingReady: false},
		{Id: "4", Title: "Worship", ActiveStart: at(9, 12, 30), RecordingReady: true},
		{Id: "5", Title: "Worship", ActiveStart: at(9, 8, 30), RecordingReady: true},
		{Id: "6", Title: "Youth Service", ActiveStart: at(5, 19, 0), RecordingReady: false},
		{Id: "7", Title: "Good Friday", ActiveStart: at(7, 19, 0), RecordingReady: true},
		{Id: "8", Title: "Board meeting", ActiveStart: at(4, 19, 0), RecordingReady: false},
		{Id: "before", Title: "Worship", ActiveStart: at(2, 23, 59), RecordingReady: true},
		{Id: "after", Title: "Worship", ActiveStart: at(10, 0, 0), RecordingReady: true},
	}

	stats := Aggregate(c, broadcasts, at(3, 0, 0), 7)
	assert.Equal(t, map[archiver.Category]archiver.CategoryStats{
		{Kind: archiver.CategorySecondService}: {Scheduled: 4, Recorded: 3},
		{Kind: archiver.CategoryFirstService}:  {Scheduled: 1, Recorded: 1},
		{Kind: archiver.CategoryYouth}:         {Scheduled: 1, Recorded: 0},
		archiver.Holiday("Good Friday"):        {Scheduled: 1, Recorded: 1},
		{Kind: archiver.CategoryUncategorized}: {Scheduled: 1, Recorded: 0},
	}, stats)

	// A zero window size defaults to a week
	assert.Equal(t, stats, Aggregate(c, broadcasts, at(3, 0, 0), 0))
}

func Test_Aggregate_empty(t *testing.T) {
	c := classify.NewClassifier(classify.DefaultHolidays, time.UTC)
	stats := Aggregate(c, nil, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 7)
	assert.Empty(t, stats)
}

func Test_Lines(t *testing.T) {
	lines := Lines(map[archiver.Category]archiver.CategoryStats{
		{Kind: archiver.CategorySecondService}: {Scheduled: 4, Recorded: 3},
		archiver.Holiday("New Year"):           {Scheduled: 1, Recorded: 1},
		archiver.Holiday("Easter"):             {Scheduled: 2, Recorded: 2},
	})
	assert.Equal(t, []archiver.ReportLine{
		{Label: "Sunday 1st Service"},
		{Label: "Sunday School"},
		{Label: "Sunday 2nd Service", Stats: archiver.CategoryStats{Scheduled: 4, Recorded: 3}},
		{Label: "Wednesday Night"},
		{Label: "Easter", Stats: archiver.CategoryStats{Scheduled: 2, Recorded: 2}},
		{Label: "New Year", Stats: archiver.CategoryStats{Scheduled: 1, Recorded: 1}},
		{Label: "Memorial Services"},
		{Label: "Christmas at Carbondale"},
		{Label: "Youth Services"},
		{Label: "Other"},
	}, lines)
}

func Test_Weekly(t *testing.T) {
	c := classify.NewClassifier(classify.DefaultHolidays, time.UTC)
	monday := time.Date(2024, 6, 10, 7, 30, 0, 0, time.UTC)
	r := Weekly(c, []archiver.Broadcast{
		{Id: "1", Title: "Worship", ActiveStart: time.Date(2024, 6, 9, 11, 0, 0, 0, time.UTC), RecordingReady: true},
		{Id: "2", Title: "Worship", ActiveStart: time.Date(2024, 6, 10, 1, 0, 0, 0, time.UTC), RecordingReady: true},
	}, monday, 7)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), r.WindowStart)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), r.WindowEnd)
	assert.Equal(t, archiver.CategoryStats{Scheduled: 1, Recorded: 1}, r.Lines[2].Stats)
}
