package livestate

import (
	"sort"

	"github.com/carbondale-church/archiver"
)

// Transition is the result of comparing observed live state against the last known
// state
type Transition struct {
	BecameLive    []string
	BecameNotLive []string
	Next          archiver.LiveState
}

func (t *Transition) Empty() bool {
	return len(t.BecameLive) == 0 && len(t.BecameNotLive) == 0
}

// Diff compares the observed live state of each broadcast against previous. IDs that
// were not observed keep their last known value in Next. previous is not modified.
func Diff(observed map[string]bool, previous archiver.LiveState) Transition {
	t := Transition{
		BecameLive:    []string{},
		BecameNotLive: []string{},
		Next:          previous.Clone(),
	}
	for id, isLive := range observed {
		wasLive := previous[id]
		switch {
		case isLive && !wasLive:
			t.BecameLive = append(t.BecameLive, id)
		case !isLive && wasLive:
			t.BecameNotLive = append(t.BecameNotLive, id)
		}
		t.Next[id] = isLive
	}
	sort.Strings(t.BecameLive)
	sort.Strings(t.BecameNotLive)
	return t
}

// Observe builds the observed map from a listing that only includes broadcasts that
// are live right now: every listed ID is live, and every ID we previously knew to be
// live but which is no longer listed has stopped
func Observe(liveIds []string, previous archiver.LiveState) map[string]bool {
	observed := make(map[string]bool, len(liveIds))
	for id, wasLive := range previous {
		if wasLive {
			observed[id] = false
		}
	}
	for _, id := range liveIds {
		observed[id] = true
	}
	return observed
}
