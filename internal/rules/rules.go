// Package rules loads the configurable parts of broadcast routing: the holiday names
// recognized in titles, and the weekly services expected to be streamed.
//
// Example rules file:
//
//	holidays:
//	  - Easter
//	  - Christmas Eve
//	expected_slots:
//	  - label: Wednesday Night
//	    weekday: wednesday
//	    start: "18:00"
//	    end: "21:00"
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carbondale-church/archiver"
	"github.com/carbondale-church/archiver/internal/classify"
	"github.com/carbondale-church/archiver/internal/schedule"
)

var ErrInvalidRules = errors.New("invalid rules")

type Rules struct {
	Holidays      []string
	ExpectedSlots []archiver.ExpectedSlot
}

func Default() *Rules {
	return &Rules{
		Holidays:      append([]string(nil), classify.DefaultHolidays...),
		ExpectedSlots: append([]archiver.ExpectedSlot(nil), schedule.DefaultSlots...),
	}
}

type file struct {
	Holidays      []string   `yaml:"holidays"`
	ExpectedSlots []slotFile `yaml:"expected_slots"`
}

type slotFile struct {
	Label   string `yaml:"label"`
	Weekday string `yaml:"weekday"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

// Load reads rules from a YAML file. An empty path yields the defaults, and any
// section omitted from the file keeps its default value.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Rules, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	r := Default()
	if f.Holidays != nil {
		r.Holidays = nil
		for _, name := range f.Holidays {
			if name = strings.TrimSpace(name); name != "" {
				r.Holidays = append(r.Holidays, name)
			}
		}
	}
	if f.ExpectedSlots != nil {
		r.ExpectedSlots = make([]archiver.ExpectedSlot, 0, len(f.ExpectedSlots))
		for i, sf := range f.ExpectedSlots {
			slot, err := sf.parse()
			if err != nil {
				return nil, fmt.Errorf("%w: expected_slots[%d]: %v", ErrInvalidRules, i, err)
			}
			r.ExpectedSlots = append(r.ExpectedSlots, slot)
		}
	}
	return r, nil
}

func (sf slotFile) parse() (archiver.ExpectedSlot, error) {
	if sf.Label == "" {
		return archiver.ExpectedSlot{}, fmt.Errorf("label is required")
	}
	weekday, err := ParseWeekday(sf.Weekday)
	if err != nil {
		return archiver.ExpectedSlot{}, err
	}
	start, err := ParseClock(sf.Start)
	if err != nil {
		return archiver.ExpectedSlot{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseClock(sf.End)
	if err != nil {
		return archiver.ExpectedSlot{}, fmt.Errorf("end: %w", err)
	}
	if end <= start {
		return archiver.ExpectedSlot{}, fmt.Errorf("end %q must be after start %q", sf.End, sf.Start)
	}
	return archiver.ExpectedSlot{Label: sf.Label, Weekday: weekday, Start: start, End: end}, nil
}

// ParseWeekday accepts full or three-letter English day names, in any case
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unrecognized weekday %q", s)
}

// ParseClock parses a 24-hour "HH:MM" local time into an offset from midnight.
// "24:00" is accepted as end of day.
func ParseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("time %q must be formatted as HH:MM", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q is out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
