package watcher

import (
	"github.com/ternarybob/specto/internal/models"
)

// Match returns the earliest exam whose date falls inside the search window,
// or nil when no slot qualifies. Comparison is by date only, so with
// duplicate minimal dates the first-seen slot wins. The window invariants are
// re-checked defensively; an inverted window matches nothing.
func Match(exams []models.Exam, window models.SearchWindow) *models.Exam {
	if window.Validate() != nil {
		return nil
	}

	var best *models.Exam
	for i := range exams {
		exam := &exams[i]
		if !window.Contains(exam.Date) {
			continue
		}
		if best == nil || exam.Date.Before(best.Date) {
			best = exam
		}
	}

	if best == nil {
		return nil
	}

	// Return a copy; callers must not alias the input slice.
	match := *best
	return &match
}
