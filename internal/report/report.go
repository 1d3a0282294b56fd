package report

import (
	"sort"
	"time"

	"github.com/carbondale-church/archiver"
)

const DefaultWindowDays = 7

type Classifier interface {
	ClassifyBroadcast(b *archiver.Broadcast) archiver.Category
}

// Aggregate classifies every broadcast that started within [windowStart, windowStart +
// windowDays) and tallies, per category, how many were scheduled and how many have a
// ready recording
func Aggregate(c Classifier, broadcasts []archiver.Broadcast, windowStart time.Time, windowDays int) map[archiver.Category]archiver.CategoryStats {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	windowEnd := windowStart.AddDate(0, 0, windowDays)

	stats := make(map[archiver.Category]archiver.CategoryStats)
	for i := range broadcasts {
		b := &broadcasts[i]
		if b.ActiveStart.Before(windowStart) || !b.ActiveStart.Before(windowEnd) {
			continue
		}
		category := c.ClassifyBroadcast(b)
		s := stats[category]
		s.Scheduled++
		if b.RecordingReady {
			s.Recorded++
		}
		stats[category] = s
	}
	return stats
}

var fixedLines = []struct {
	label    string
	category archiver.Category
}{
	{"Sunday 1st Service", archiver.Category{Kind: archiver.CategoryFirstService}},
	{"Sunday School", archiver.Category{Kind: archiver.CategorySundaySchool}},
	{"Sunday 2nd Service", archiver.Category{Kind: archiver.CategorySecondService}},
	{"Wednesday Night", archiver.Category{Kind: archiver.CategoryWednesdayNight}},
	{"Memorial Services", archiver.Category{Kind: archiver.CategoryMemorial}},
	{"Christmas at Carbondale", archiver.Category{Kind: archiver.CategoryChristmasAtCarbondale}},
	{"Youth Services", archiver.Category{Kind: archiver.CategoryYouth}},
	{"Other", archiver.Category{Kind: archiver.CategoryUncategorized}},
}

// Lines flattens aggregated stats into display order. Fixed categories are always
// listed; holidays only appear when they occurred, sorted by name, after the weekly
// services.
func Lines(stats map[archiver.Category]archiver.CategoryStats) []archiver.ReportLine {
	lines := make([]archiver.ReportLine, 0, len(fixedLines)+len(stats))
	for _, fl := range fixedLines[:4] {
		lines = append(lines, archiver.ReportLine{Label: fl.label, Stats: stats[fl.category]})
	}

	holidays := []string{}
	for category := range stats {
		if category.Kind == archiver.CategoryHoliday {
			holidays = append(holidays, category.Holiday)
		}
	}
	sort.Strings(holidays)
	for _, name := range holidays {
		lines = append(lines, archiver.ReportLine{Label: name, Stats: stats[archiver.Holiday(name)]})
	}

	for _, fl := range fixedLines[4:] {
		lines = append(lines, archiver.ReportLine{Label: fl.label, Stats: stats[fl.category]})
	}
	return lines
}

// Weekly builds the report for the windowDays days ending at local midnight of the
// given date
func Weekly(c Classifier, broadcasts []archiver.Broadcast, endDate time.Time, windowDays int) archiver.WeeklyReport {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	end := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 0, 0, 0, 0, endDate.Location())
	start := end.AddDate(0, 0, -windowDays)
	return archiver.WeeklyReport{
		WindowStart: start,
		WindowEnd:   end,
		Lines:       Lines(Aggregate(c, broadcasts, start, windowDays)),
	}
}
