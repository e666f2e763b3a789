package session

import (
	"sync"

	"cloudpico-viewer/internal/types"
)

// State is the externally observable session. Published values are never
// mutated; every change produces a new State with replaced slices.
type State struct {
	CurrentWeather   types.Optional[types.WeatherSnapshot] `json:"currentWeather"`
	History          []types.WeatherSnapshot               `json:"history"`
	Locations        []string                              `json:"locations"`
	SelectedLocation string                                `json:"selectedLocation"`
	Device           types.Optional[types.DeviceTarget]    `json:"device"`
	Status           types.Optional[types.DeviceStatus]    `json:"status"`
	Loading          bool                                  `json:"loading"`
	Refreshing       bool                                  `json:"refreshing"`
	ErrorMessage     types.Optional[string]                `json:"errorMessage"`
}

// Store holds the current State and notifies subscribers after each change.
type Store struct {
	mu     sync.RWMutex
	state  State
	nextID int
	subs   map[int]func(State)
}

func NewStore() *Store {
	return &Store{
		state: State{
			History:   []types.WeatherSnapshot{},
			Locations: []string{},
		},
		subs: make(map[int]func(State)),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to receive every new State. Callbacks run on the
// goroutine that applied the change and must not block.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// update applies fn to a copy of the state, stores it and notifies
// subscribers outside the lock.
func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	next := s.state
	fn(&next)
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
}
