package schedule

import (
	"time"

	"github.com/carbondale-church/archiver"
)

// AssumedDuration is how long a broadcast is assumed to run when it has no end time,
// e.g. because it's scheduled in the future or still live
const AssumedDuration = 2 * time.Hour

func clock(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// DefaultSlots are the weekly services that are expected to be streamed every week
var DefaultSlots = []archiver.ExpectedSlot{
	{Label: "1st Service", Weekday: time.Sunday, Start: 0, End: clock(10, 0)},
	{Label: "2nd Service", Weekday: time.Sunday, Start: clock(10, 50), End: clock(13, 0)},
	{Label: "Wednesday Night", Weekday: time.Wednesday, Start: clock(18, 0), End: clock(21, 0)},
}

// ActiveWindow returns the interval during which a broadcast ran (or is expected to
// run)
func ActiveWindow(b *archiver.Broadcast) (time.Time, time.Time) {
	if b.ActiveEnd != nil && b.ActiveEnd.After(b.ActiveStart) {
		return b.ActiveStart, *b.ActiveEnd
	}
	return b.ActiveStart, b.ActiveStart.Add(AssumedDuration)
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FindGaps returns, for every date in [windowStart, windowStart + windowDays), each
// expected slot on that weekday that no broadcast overlaps. Dates are evaluated in
// windowStart's location. Gaps are ordered by date, then by the order of expected.
func FindGaps(expected []archiver.ExpectedSlot, broadcasts []archiver.Broadcast, windowStart time.Time, windowDays int) []archiver.Gap {
	gaps := []archiver.Gap{}
	first := time.Date(windowStart.Year(), windowStart.Month(), windowStart.Day(), 0, 0, 0, 0, windowStart.Location())
	for day := 0; day < windowDays; day++ {
		date := first.AddDate(0, 0, day)
		for _, slot := range expected {
			if slot.Weekday != date.Weekday() {
				continue
			}
			slotStart, slotEnd := slot.On(date)
			if !anyOverlaps(broadcasts, slotStart, slotEnd) {
				gaps = append(gaps, archiver.Gap{Date: date, Slot: slot})
			}
		}
	}
	return gaps
}

func anyOverlaps(broadcasts []archiver.Broadcast, start, end time.Time) bool {
	for i := range broadcasts {
		if broadcasts[i].ActiveStart.IsZero() {
			continue
		}
		bStart, bEnd := ActiveWindow(&broadcasts[i])
		if overlaps(bStart, bEnd, start, end) {
			return true
		}
	}
	return false
}
