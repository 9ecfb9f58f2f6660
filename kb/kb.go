package kb

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/signalsfoundry/thyrannic-sky/model"
)

var (
	// ErrBodyExists is returned when a body ID is registered twice.
	ErrBodyExists = errors.New("body already exists")
	// ErrBodyNotFound is returned for lookups of unknown body IDs.
	ErrBodyNotFound = errors.New("body not found")
	// ErrNoPrimary is returned when positions are updated before a primary
	// body has been designated.
	ErrNoPrimary = errors.New("no primary body")
	// ErrNoObserver is returned when positions are updated before the
	// observer state has been set.
	ErrNoObserver = errors.New("no observer")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventBodyAdded EventType = iota
	EventPositionsUpdated
)

// Event is emitted to subscribers when something interesting happens.
// Bodies holds copies, so subscribers may keep them.
type Event struct {
	Type      EventType
	TimeValue float64
	Bodies    []model.Body
}

// Snapshot is a consistent copy of the sky at the last update.
type Snapshot struct {
	Observer  model.ObserverState
	PrimaryID string
	Bodies    []model.Body
	TimeValue float64
	// Ticked is false until the first UpdatePositions call.
	Ticked bool
}

// KnowledgeBase is the body registry of one sky. It is safe for concurrent
// use; position updates hold the write lock for the whole tick.
type KnowledgeBase struct {
	mu sync.RWMutex

	bodies map[string]*model.Body
	order  []string

	observer    model.ObserverState
	hasObserver bool
	primaryID   string

	timeValue float64
	ticked    bool

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		bodies: make(map[string]*model.Body),
		subs:   make(map[int]func(Event)),
	}
}

// AddBody registers a body. Elements are validated here so that a bad
// configuration fails before the first tick.
func (kb *KnowledgeBase) AddBody(b *model.Body) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: body must have an ID", model.ErrInvalidElements)
	}
	if err := b.Elements.Validate(); err != nil {
		return fmt.Errorf("body %q: %w", b.ID, err)
	}

	kb.mu.Lock()
	if _, exists := kb.bodies[b.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrBodyExists, b.ID)
	}
	// keep our own copy so callers cannot mutate positions behind the lock
	stored := *b
	kb.bodies[b.ID] = &stored
	kb.order = append(kb.order, b.ID)
	event := Event{Type: EventBodyAdded, TimeValue: kb.timeValue, Bodies: []model.Body{stored}}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// SetObserver sets the observer's fixed latitude and tilt.
func (kb *KnowledgeBase) SetObserver(obs model.ObserverState) error {
	if !finite(obs.Latitude) || !finite(obs.Tilt) {
		return fmt.Errorf("observer %q: latitude and tilt must be finite", obs.Name)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.observer = obs
	kb.hasObserver = true
	return nil
}

// Observer returns the observer state and whether it has been set.
func (kb *KnowledgeBase) Observer() (model.ObserverState, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.observer, kb.hasObserver
}

// SetPrimary designates the body whose right ascension is the rotation
// reference for every other body.
func (kb *KnowledgeBase) SetPrimary(id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if _, ok := kb.bodies[id]; !ok {
		return fmt.Errorf("%w: %q", ErrBodyNotFound, id)
	}
	kb.primaryID = id
	return nil
}

// PrimaryID returns the primary body's ID, or "" when unset.
func (kb *KnowledgeBase) PrimaryID() string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.primaryID
}

// GetBody returns a copy of the body with the given ID.
func (kb *KnowledgeBase) GetBody(id string) (model.Body, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	b, ok := kb.bodies[id]
	if !ok {
		return model.Body{}, fmt.Errorf("%w: %q", ErrBodyNotFound, id)
	}
	return *b, nil
}

// ListBodies returns copies of all bodies in registration order.
func (kb *KnowledgeBase) ListBodies() []model.Body {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.copyBodiesLocked()
}

// Snapshot returns a consistent copy of the whole sky.
func (kb *KnowledgeBase) Snapshot() Snapshot {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return Snapshot{
		Observer:  kb.observer,
		PrimaryID: kb.primaryID,
		Bodies:    kb.copyBodiesLocked(),
		TimeValue: kb.timeValue,
		Ticked:    kb.ticked,
	}
}

// UpdatePositions runs fn under the write lock with the observer, the
// primary body and every body in registration order (primary included).
// Subscribers are notified after the lock is released.
func (kb *KnowledgeBase) UpdatePositions(timeValue float64, fn func(obs model.ObserverState, primary *model.Body, bodies []*model.Body)) error {
	kb.mu.Lock()
	if !kb.hasObserver {
		kb.mu.Unlock()
		return ErrNoObserver
	}
	primary, ok := kb.bodies[kb.primaryID]
	if !ok {
		kb.mu.Unlock()
		return ErrNoPrimary
	}
	bodies := make([]*model.Body, 0, len(kb.order))
	for _, id := range kb.order {
		bodies = append(bodies, kb.bodies[id])
	}

	fn(kb.observer, primary, bodies)
	kb.timeValue = timeValue
	kb.ticked = true

	event := Event{
		Type:      EventPositionsUpdated,
		TimeValue: timeValue,
		Bodies:    kb.copyBodiesLocked(),
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) copyBodiesLocked() []model.Body {
	res := make([]model.Body, 0, len(kb.order))
	for _, id := range kb.order {
		res = append(res, *kb.bodies[id])
	}
	return res
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	// subscription order
	slices.Sort(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}

func notify(subs []func(Event), event Event) {
	for _, sub := range subs {
		sub(event)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
