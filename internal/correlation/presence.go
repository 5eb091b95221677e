package correlation

import (
	"slices"
	"sort"
	"time"

	"macsleuth/internal/domain"
)

// DefaultHistoryCap is the number of presence events kept per person
const DefaultHistoryCap = 100

// PresenceHistory keeps a bounded, insertion-ordered log of presence
// transitions per person. Eviction is strictly FIFO. Feeds may deliver
// events late, so queries for the most recent event compare timestamps
// instead of trusting the order of arrival.
type PresenceHistory struct {
	limit  int
	events map[string][]domain.PresenceEvent
}

// NewPresenceHistory creates a history holding at most limit events per person.
// A non-positive limit selects DefaultHistoryCap.
func NewPresenceHistory(limit int) *PresenceHistory {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	return &PresenceHistory{
		limit:  limit,
		events: make(map[string][]domain.PresenceEvent),
	}
}

// Record appends an event, evicting the earliest recorded once the cap is
// exceeded
func (h *PresenceHistory) Record(person string, event domain.PresenceEvent) {
	event.Person = person
	seq := append(h.events[person], event)
	if over := len(seq) - h.limit; over > 0 {
		// Shift in place so the backing array does not grow without bound
		seq = append(seq[:0], seq[over:]...)
	}
	h.events[person] = seq
}

// RecentTransitionToHome returns the became-home event for person with the
// latest timestamp, if that timestamp lies within window of now (inclusive).
// Among equal timestamps the later recorded event wins.
func (h *PresenceHistory) RecentTransitionToHome(person string, now time.Time, window time.Duration) (domain.PresenceEvent, bool) {
	newest, ok := latest(h.events[person], func(e domain.PresenceEvent) bool {
		return e.Kind == domain.TransitionHome
	})
	if !ok {
		return domain.PresenceEvent{}, false
	}

	delta := now.Sub(newest.At)
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return domain.PresenceEvent{}, false
	}
	return newest, true
}

// Last returns the person's event with the latest timestamp
func (h *PresenceHistory) Last(person string) (domain.PresenceEvent, bool) {
	return latest(h.events[person], func(domain.PresenceEvent) bool { return true })
}

func latest(seq []domain.PresenceEvent, keep func(domain.PresenceEvent) bool) (domain.PresenceEvent, bool) {
	var (
		newest domain.PresenceEvent
		found  bool
	)
	for _, e := range seq {
		if !keep(e) {
			continue
		}
		if !found || !e.At.Before(newest.At) {
			newest, found = e, true
		}
	}
	return newest, found
}

// Events returns a copy of the person's events in recorded order
func (h *PresenceHistory) Events(person string) []domain.PresenceEvent {
	return slices.Clone(h.events[person])
}

// People returns the sorted names of everyone with recorded history
func (h *PresenceHistory) People() []string {
	people := make([]string, 0, len(h.events))
	for p := range h.events {
		people = append(people, p)
	}
	sort.Strings(people)
	return people
}

func (h *PresenceHistory) snapshot() map[string][]domain.PresenceEvent {
	out := make(map[string][]domain.PresenceEvent, len(h.events))
	for p, seq := range h.events {
		out[p] = slices.Clone(seq)
	}
	return out
}

func (h *PresenceHistory) restore(events map[string][]domain.PresenceEvent) {
	h.events = make(map[string][]domain.PresenceEvent, len(events))
	for person, seq := range events {
		for _, e := range seq {
			if e.At.IsZero() || !e.Kind.Valid() {
				continue
			}
			h.Record(person, e)
		}
	}
}
