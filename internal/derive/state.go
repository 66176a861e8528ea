package derive

import (
	"sync"
)

// Change reports that a user's current timezone estimate moved.
type Change struct {
	UserID   int64
	RunID    string
	Previous float64
	Current  float64
	Date     string // date of the daily estimate that produced Current
}

// State tracks the last known offset of every user.
// It is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	offsets map[int64]float64
}

// NewState creates an empty State.
func NewState() *State {
	return &State{offsets: make(map[int64]float64)}
}

// Seed records a known offset without reporting a change, typically the
// value persisted by a previous process.
func (s *State) Seed(userID int64, offset float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[userID] = offset
}

// Observe records the offset produced by a run. It returns a Change when the
// offset differs from the previous one, and nil otherwise. The first offset
// seen for a user is recorded without a Change.
func (s *State) Observe(o Outcome) *Change {
	current, ok := o.CurrentOffset()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.offsets[o.UserID]
	s.offsets[o.UserID] = current
	if !known || prev == current {
		return nil
	}

	daily := o.Result.Daily
	return &Change{
		UserID:   o.UserID,
		RunID:    o.RunID,
		Previous: prev,
		Current:  current,
		Date:     daily[len(daily)-1].Date,
	}
}

// Offset returns the last known offset of a user.
func (s *State) Offset(userID int64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	off, ok := s.offsets[userID]
	return off, ok
}
