package classify

import (
	"strings"
	"time"

	"github.com/carbondale-church/archiver"
)

// DefaultHolidays are the holiday names recognized when no rules file overrides them
var DefaultHolidays = []string{"Easter", "Thanksgiving Eve", "Christmas Eve", "Good Friday", "New Year"}

// Input is everything a rule may consult about a broadcast. ActiveEnd is nil while a
// broadcast is still live; no rule reads it.
type Input struct {
	Title          string
	ScheduledStart time.Time
	ActiveStart    time.Time
	ActiveEnd      *time.Time
}

// Rule is a single named classification step. Match reports false if the rule does
// not apply, in which case the next rule is consulted.
type Rule struct {
	Name  string
	Match func(in Input) (archiver.Category, bool)
}

// Classifier maps broadcast metadata to a Category by evaluating an ordered list of
// rules, stopping at the first match
type Classifier struct {
	loc   *time.Location
	rules []Rule
}

func NewClassifier(holidays []string, loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Classifier{
		loc: loc,
		rules: []Rule{
			titleRule("youth", "Youth", archiver.Category{Kind: archiver.CategoryYouth}),
			titleRule("memorial", "Memorial", archiver.Category{Kind: archiver.CategoryMemorial}),
			holidayRule(holidays),
			titleRule("christmas-at-carbondale", "Christmas at Carbondale", archiver.Category{Kind: archiver.CategoryChristmasAtCarbondale}),
			sundayRule(loc),
			wednesdayRule(loc),
		},
	}
}

func (c *Classifier) Location() *time.Location {
	return c.loc
}

// Rules returns the rule names in evaluation order
func (c *Classifier) Rules() []string {
	names := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		names = append(names, r.Name)
	}
	return names
}

func (c *Classifier) Classify(title string, scheduledStart, activeStart time.Time, activeEnd *time.Time) archiver.Category {
	in := Input{
		Title:          title,
		ScheduledStart: scheduledStart,
		ActiveStart:    activeStart,
		ActiveEnd:      activeEnd,
	}
	for _, r := range c.rules {
		if category, ok := r.Match(in); ok {
			return category
		}
	}
	return archiver.Category{Kind: archiver.CategoryUncategorized}
}

func (c *Classifier) ClassifyBroadcast(b *archiver.Broadcast) archiver.Category {
	return c.Classify(b.Title, b.ScheduledStart, b.ActiveStart, b.ActiveEnd)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func titleRule(name, substr string, category archiver.Category) Rule {
	return Rule{
		Name: name,
		Match: func(in Input) (archiver.Category, bool) {
			if containsFold(in.Title, substr) {
				return category, true
			}
			return archiver.Category{}, false
		},
	}
}

func holidayRule(holidays []string) Rule {
	names := append([]string(nil), holidays...)
	return Rule{
		Name: "holiday",
		Match: func(in Input) (archiver.Category, bool) {
			for _, name := range names {
				if name != "" && containsFold(in.Title, name) {
					return archiver.Holiday(name), true
				}
			}
			return archiver.Category{}, false
		},
	}
}

// window is a half-open [start, end) range of local clock time
type window struct {
	start time.Duration
	end   time.Duration
	kind  archiver.CategoryKind
}

func clock(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

var sundayWindows = []window{
	{0, clock(10, 0), archiver.CategoryFirstService},
	{clock(10, 0), clock(10, 50), archiver.CategorySundaySchool},
	{clock(10, 50), clock(13, 0), archiver.CategorySecondService},
}

var wednesdayWindows = []window{
	{clock(18, 0), clock(21, 0), archiver.CategoryWednesdayNight},
}

// Window rules only consult the local wall-clock time of ActiveStart: a late start
// still routes by when the service actually ran
func sundayRule(loc *time.Location) Rule {
	return weekdayRule("sunday-windows", time.Sunday, sundayWindows, loc)
}

func wednesdayRule(loc *time.Location) Rule {
	return weekdayRule("wednesday-windows", time.Wednesday, wednesdayWindows, loc)
}

func weekdayRule(name string, weekday time.Weekday, windows []window, loc *time.Location) Rule {
	return Rule{
		Name: name,
		Match: func(in Input) (archiver.Category, bool) {
			if in.ActiveStart.IsZero() {
				return archiver.Category{}, false
			}
			local := in.ActiveStart.In(loc)
			if local.Weekday() != weekday {
				return archiver.Category{}, false
			}
			offset := sinceMidnight(local)
			for _, w := range windows {
				if offset >= w.start && offset < w.end {
					return archiver.Category{Kind: w.kind}, true
				}
			}
			return archiver.Category{}, false
		},
	}
}

func sinceMidnight(t time.Time) time.Duration {
	return clock(t.Hour(), t.Minute()) + time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}
