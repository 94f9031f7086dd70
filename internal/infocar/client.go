package infocar

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/specto/internal/interfaces"
)

const (
	// DefaultBaseURL is the base URL of the scheduling service.
	DefaultBaseURL = "https://info-car.pl"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default request rate against the service API.
	DefaultRateLimit = 1 // requests per second

	// TheoryExamType selects theory slots in schedule responses.
	TheoryExamType = "theoryExams"
	// PracticeExamType selects practice slots in schedule responses.
	PracticeExamType = "practiceExams"

	// userAgent mirrors a desktop Firefox; the service rejects obvious bots.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:142.0) Gecko/20100101 Firefox/142.0"

	rejectionMarker = "Request Rejected"
)

// Session is an authenticated client for the scheduling service. It owns a
// cookie jar shared across the login handshake and all API calls, the bearer
// access token, and the verification-token state.
//
// The login/polling flow is the single writer of session state; other
// goroutines only read display snapshots.
type Session struct {
	baseURL    string
	httpClient *http.Client // follows redirects, shares the jar
	noRedirect *http.Client // handshake steps that must see the 302
	solver     interfaces.CaptchaSolver
	logger     arbor.ILogger
	limiter    *rate.Limiter
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	turnstile   turnstileState
}

// SessionOption configures the Session.
type SessionOption func(*Session)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) SessionOption {
	return func(s *Session) {
		s.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithTimeout sets the HTTP timeout for all calls.
func WithTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.httpClient.Timeout = timeout
		s.noRedirect.Timeout = timeout
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithRateLimit sets a custom API rate limit.
func WithRateLimit(requestsPerSecond float64) SessionOption {
	return func(s *Session) {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithClock overrides the time source (used by tests for token aging).
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates a session with a fresh cookie jar. The solver is the
// verification capability used to mint Turnstile tokens on demand.
func NewSession(solver interfaces.CaptchaSolver, opts ...SessionOption) *Session {
	jar, _ := cookiejar.New(nil)

	s := &Session{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: DefaultTimeout,
		},
		noRedirect: &http.Client{
			Jar:     jar,
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		solver:  solver,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsAuthenticated reports whether a bearer token is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken != ""
}

func (s *Session) bearerToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// apiHeaders sets the headers the service expects on API calls.
func (s *Session) apiHeaders(req *http.Request, token string, withBody bool) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Language", "pl-PL")
	req.Header.Set("User-Agent", userAgent)
	if withBody {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", s.baseURL)
	}
}

func readBody(resp *http.Response) string {
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}
