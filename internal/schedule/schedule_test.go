package schedule

import (
	"testing"
	"time"

	"github.com/carbondale-church/archiver"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wednesdayNight = archiver.ExpectedSlot{
	Label:   "Wednesday Night",
	Weekday: time.Wednesday,
	Start:   18 * time.Hour,
	End:     21 * time.Hour,
}

func chicago(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func Test_FindGaps_noBroadcasts(t *testing.T) {
	loc := chicago(t)

	// Monday 2024-06-10 through Sunday 2024-06-16 contains one Wednesday
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, loc)
	gaps := FindGaps([]archiver.ExpectedSlot{wednesdayNight}, nil, start, 7)
	assert.Equal(t, []archiver.Gap{
		{Date: time.Date(2024, 6, 12, 0, 0, 0, 0, loc), Slot: wednesdayNight},
	}, gaps)

	// Fourteen days starting on a Wednesday contain two
	start = time.Date(2024, 6, 12, 0, 0, 0, 0, loc)
	gaps = FindGaps([]archiver.ExpectedSlot{wednesdayNight}, nil, start, 14)
	assert.Len(t, gaps, 2)
	assert.Equal(t, 12, gaps[0].Date.Day())
	assert.Equal(t, 19, gaps[1].Date.Day())
}

func Test_FindGaps(t *testing.T) {
	loc := chicago(t)
	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, 6, day, hour, minute, 0, 0, loc)
	}
	ptr := func(t time.Time) *time.Time { return &t }
	start := at(10, 0, 0)

	tests := []struct {
		name       string
		broadcasts []archiver.Broadcast
		want       []string
	}{
		{
			"all slots covered",
			[]archiver.Broadcast{
				{Id: "wed", ActiveStart: at(12, 18, 30)},
				{Id: "first", ActiveStart: at(16, 8, 30), ActiveEnd: ptr(at(16, 9, 45))},
				{Id: "second", ActiveStart: at(16, 11, 0), ActiveEnd: ptr(at(16, 12, 15))},
			},
			[]string{},
		},
		{
			"nothing scheduled",
			nil,
			[]string{
				"2024-06-12 Wednesday Night",
				"2024-06-16 1st Service",
				"2024-06-16 2nd Service",
			},
		},
		{
			"open-ended broadcast is assumed to run two hours",
			[]archiver.Broadcast{
				// 16:30 + 2h overlaps 18:00 by half an hour
				{Id: "wed", ActiveStart: at(12, 16, 30)},
			},
			[]string{
				"2024-06-16 1st Service",
				"2024-06-16 2nd Service",
			},
		},
		{
			"broadcast ending exactly at slot start does not count",
			[]archiver.Broadcast{
				{Id: "wed", ActiveStart: at(12, 17, 0), ActiveEnd: ptr(at(12, 18, 0))},
				{Id: "sunday", ActiveStart: at(16, 9, 0), ActiveEnd: ptr(at(16, 10, 50))},
			},
			[]string{
				"2024-06-12 Wednesday Night",
				"2024-06-16 2nd Service",
			},
		},
		{
			"broadcast on the wrong day does not count",
			[]archiver.Broadcast{
				{Id: "thu", ActiveStart: at(13, 18, 30)},
			},
			[]string{
				"2024-06-12 Wednesday Night",
				"2024-06-16 1st Service",
				"2024-06-16 2nd Service",
			},
		},
		{
			"broadcasts without a start time are ignored",
			[]archiver.Broadcast{
				{Id: "broken"},
			},
			[]string{
				"2024-06-12 Wednesday Night",
				"2024-06-16 1st Service",
				"2024-06-16 2nd Service",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gaps := FindGaps(DefaultSlots, tt.broadcasts, start, 7)
			got := []string{}
			for _, g := range gaps {
				got = append(got, g.Date.Format("2006-01-02")+" "+g.Slot.Label)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FindGaps() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_FindGaps_windowStartMidDay(t *testing.T) {
	loc := chicago(t)

	// The window starts at local midnight of windowStart's date, so a lookahead run
	// at 20:00 on a Wednesday still reports that evening's slot
	start := time.Date(2024, 6, 12, 20, 0, 0, 0, loc)
	gaps := FindGaps([]archiver.ExpectedSlot{wednesdayNight}, nil, start, 1)
	assert.Len(t, gaps, 1)
}

func Test_Gap_String(t *testing.T) {
	g := archiver.Gap{Date: time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), Slot: wednesdayNight}
	assert.Equal(t, "2024-06-12 (Wednesday) — Wednesday Night window (18:00–21:00)", g.String())
}

func Test_FindGaps_daylightSavingSundays(t *testing.T) {
	loc := chicago(t)
	tests := []struct {
		name       string
		sunday     time.Time
		broadcasts [][4]int
		want       []string
	}{
		{
			"fall back: 09:15 still counts as 1st Service, Sunday School doesn't cover 2nd",
			time.Date(2024, 11, 3, 0, 0, 0, 0, loc),
			[][4]int{{9, 15, 9, 55}, {10, 15, 10, 45}},
			[]string{"2nd Service"},
		},
		{
			"spring forward: 10:15 is past 1st Service, 11:00 covers 2nd",
			time.Date(2024, 3, 10, 0, 0, 0, 0, loc),
			[][4]int{{10, 15, 10, 45}, {11, 0, 11, 40}},
			[]string{"1st Service"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var broadcasts []archiver.Broadcast
			for _, hm := range tt.broadcasts {
				y, m, d := tt.sunday.Date()
				end := time.Date(y, m, d, hm[2], hm[3], 0, 0, loc)
				broadcasts = append(broadcasts, archiver.Broadcast{
					ActiveStart: time.Date(y, m, d, hm[0], hm[1], 0, 0, loc),
					ActiveEnd:   &end,
				})
			}
			gaps := FindGaps(DefaultSlots, broadcasts, tt.sunday, 1)
			labels := []string{}
			for _, g := range gaps {
				labels = append(labels, g.Slot.Label)
			}
			if diff := cmp.Diff(tt.want, labels); diff != "" {
				t.Errorf("FindGaps() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_ExpectedSlot_On_keepsWallClock(t *testing.T) {
	loc := chicago(t)
	secondService := DefaultSlots[1]
	for _, date := range []time.Time{
		time.Date(2024, 3, 10, 0, 0, 0, 0, loc),
		time.Date(2024, 11, 3, 0, 0, 0, 0, loc),
	} {
		start, end := secondService.On(date)
		assert.Equal(t, "10:50", start.Format("15:04"))
		assert.Equal(t, "13:00", end.Format("15:04"))
		assert.Equal(t, date.Day(), start.Day())
	}
}
