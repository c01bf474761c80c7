package events

import "github.com/zeu5/skillgraph/types"

// Repository is the single owner of the known salient events.
// Events are append only. Collaborators hold a reference to the repository
// and are notified of new events through Subscribe.
type Repository struct {
	events      []SalientEvent
	index       map[string]int
	subscribers []func(SalientEvent)
}

func NewRepository() *Repository {
	return &Repository{
		events:      make([]SalientEvent, 0),
		index:       make(map[string]int),
		subscribers: make([]func(SalientEvent), 0),
	}
}

// Add appends the event. Returns false when an event with the same identity exists.
func (r *Repository) Add(e SalientEvent) bool {
	if _, ok := r.index[e.ID()]; ok {
		return false
	}
	r.index[e.ID()] = len(r.events)
	r.events = append(r.events, e)
	for _, s := range r.subscribers {
		s(e)
	}
	return true
}

// Subscribe registers fn to be called for every event added from now on
func (r *Repository) Subscribe(fn func(SalientEvent)) {
	r.subscribers = append(r.subscribers, fn)
}

func (r *Repository) Get(id string) (SalientEvent, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.events[i], true
}

func (r *Repository) Contains(e SalientEvent) bool {
	_, ok := r.index[e.ID()]
	return ok
}

func (r *Repository) Len() int {
	return len(r.events)
}

// All returns the events in insertion order
func (r *Repository) All() []SalientEvent {
	return append([]SalientEvent(nil), r.events...)
}

// Matching returns the events satisfied by info
func (r *Repository) Matching(info types.Info) []SalientEvent {
	out := make([]SalientEvent, 0)
	for _, e := range r.events {
		if e.Matches(info) {
			out = append(out, e)
		}
	}
	return out
}

// NotMatching returns the events not satisfied by info
func (r *Repository) NotMatching(info types.Info) []SalientEvent {
	out := make([]SalientEvent, 0)
	for _, e := range r.events {
		if !e.Matches(info) {
			out = append(out, e)
		}
	}
	return out
}
