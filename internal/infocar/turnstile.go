package infocar

import (
	"context"
	"time"

	"github.com/ternarybob/specto/internal/interfaces"
)

const (
	// turnstileSiteURL and turnstileSiteKey identify the Turnstile widget the
	// service gates its API behind.
	turnstileSiteURL = "https://info-car.pl/new/konto"
	turnstileSiteKey = "0x4AAAAAABm6HHqkjoB_Yn_a"

	// maxTurnstileUses is how many API calls a solved token is good for.
	maxTurnstileUses = 30
	// maxTurnstileAge is how long a solved token stays usable.
	maxTurnstileAge = 300 * time.Second
)

// turnstileState tracks the short-lived verification token and its budget.
type turnstileState struct {
	token      string
	uses       int
	issuedAt   time.Time
	solveCount int
}

// expired reports whether the token must be replaced before the next call.
func (t *turnstileState) expired(now time.Time) bool {
	if t.token == "" || t.issuedAt.IsZero() {
		return true
	}
	return t.uses >= maxTurnstileUses || now.Sub(t.issuedAt) >= maxTurnstileAge
}

// ensureTurnstile lazily refreshes the verification token when it is absent,
// exhausted, or aged out. Idempotent while the token is still fresh.
func (s *Session) ensureTurnstile(ctx context.Context) error {
	s.mu.Lock()
	needsRefresh := s.turnstile.expired(s.now())
	s.mu.Unlock()

	if !needsRefresh {
		return nil
	}

	token, err := s.solver.Solve(ctx, turnstileSiteURL, turnstileSiteKey)
	if err != nil {
		return &CaptchaError{Err: err}
	}

	s.mu.Lock()
	s.turnstile.token = token
	s.turnstile.uses = 0
	s.turnstile.issuedAt = s.now()
	s.turnstile.solveCount++
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug().Int("solve_count", s.TurnstileUsage().SolveCount).
			Msg("Turnstile token refreshed")
	}
	return nil
}

// useTurnstile consumes one use of the current token and returns it.
func (s *Session) useTurnstile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnstile.uses++
	return s.turnstile.token
}

// TurnstileUsage returns a display snapshot of the token counters.
func (s *Session) TurnstileUsage() interfaces.TurnstileUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := interfaces.TurnstileUsage{
		SolveCount: s.turnstile.solveCount,
		Uses:       s.turnstile.uses,
	}
	if !s.turnstile.issuedAt.IsZero() {
		usage.AgeSeconds = s.now().Sub(s.turnstile.issuedAt).Seconds()
	}
	return usage
}
