package models

import "time"

// RunningStats accumulates observations from the polling loop. Mutated only
// by the loop that owns it; readers take copies via the watcher snapshot.
type RunningStats struct {
	TotalChecks      int        `json:"total_checks"`
	EarliestEverSeen *time.Time `json:"earliest_ever_seen,omitempty"`
	CurrentEarliest  *time.Time `json:"current_earliest,omitempty"`
	LastFound        *time.Time `json:"last_found,omitempty"`
}

// RecordCheck counts a completed slot query, independent of its result.
func (s *RunningStats) RecordCheck() {
	s.TotalChecks++
}

// Observe folds the earliest slot date from one poll cycle into the stats.
// Precedence: a new historic best resets current tracking; a local best moves
// the current earliest; otherwise only the last observation is recorded, so
// CurrentEarliest moves only on a genuine improvement.
func (s *RunningStats) Observe(earliest time.Time) {
	switch {
	case s.EarliestEverSeen == nil || earliest.Before(*s.EarliestEverSeen):
		ever, current, last := earliest, earliest, earliest
		s.EarliestEverSeen = &ever
		s.CurrentEarliest = &current
		s.LastFound = &last
	case s.LastFound == nil || earliest.Before(*s.LastFound):
		current, last := earliest, earliest
		s.CurrentEarliest = &current
		s.LastFound = &last
	default:
		last := earliest
		s.LastFound = &last
	}
}
