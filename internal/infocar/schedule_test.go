package infocar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scheduleBody = `{
  "schedule": {
    "scheduledDays": [
      {
        "day": "2026-09-10",
        "scheduledHours": [
          {
            "time": "08:00:00",
            "theoryExams": [
              {"id": "th-1", "places": 10, "date": "2026-09-10T08:00:00", "amount": 50}
            ],
            "practiceExams": [
              {"id": "pr-1", "places": 2, "date": "2026-09-10T08:00:00", "amount": 140},
              {"id": "pr-2", "places": 1, "date": "2026-09-10T08:30:00", "amount": 140}
            ]
          }
        ]
      },
      {
        "day": "2026-09-11",
        "scheduledHours": [
          {
            "time": "09:00:00",
            "practiceExams": [
              {"id": "pr-3", "places": 3, "date": "2026-09-11T09:00:00", "amount": 140}
            ]
          }
        ]
      }
    ]
  }
}`

// authedSession builds a session with a bearer token already in place.
func authedSession(t *testing.T, baseURL string, solver *stubSolver, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithBaseURL(baseURL), WithRateLimit(1000)}, opts...)
	session := NewSession(solver, opts...)
	session.mu.Lock()
	session.accessToken = "tok-123"
	session.mu.Unlock()
	return session
}

func TestGetExamSchedule_FlattensPracticeSlots(t *testing.T) {
	var gotRequest scheduleRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/api/word/word-centers/exam-schedule", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "pl-PL", r.Header.Get("Accept-Language"))
		assert.NotEmpty(t, r.Header.Get("X-CF-Turnstile"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		fmt.Fprint(w, scheduleBody)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	session := authedSession(t, server.URL, &stubSolver{})

	exams, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.NoError(t, err)

	require.Len(t, exams, 3)
	assert.Equal(t, "pr-1", exams[0].ID)
	assert.Equal(t, "pr-2", exams[1].ID)
	assert.Equal(t, "pr-3", exams[2].ID)

	assert.Equal(t, "B", gotRequest.Category)
	assert.Equal(t, "word-5", gotRequest.WordID)

	start, err := time.Parse(isoZuluLayout, gotRequest.StartDate)
	require.NoError(t, err)
	end, err := time.Parse(isoZuluLayout, gotRequest.EndDate)
	require.NoError(t, err)
	assert.Equal(t, float64(LookaheadDays), end.Sub(start).Hours()/24)
}

func TestGetExamSchedule_TheorySlots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/word/word-centers/exam-schedule", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, scheduleBody)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	session := authedSession(t, server.URL, &stubSolver{})

	exams, err := session.GetExamSchedule(context.Background(), TheoryExamType, "word-5", "B")
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, "th-1", exams[0].ID)
}

func TestGetExamSchedule_NotAuthenticated(t *testing.T) {
	session := NewSession(&stubSolver{}, WithRateLimit(1000))

	_, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthErrToken, authErr.Kind)
}

func TestGetExamSchedule_UnauthorizedIsSessionExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/word/word-centers/exam-schedule", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	session := authedSession(t, server.URL, &stubSolver{})

	_, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.Error(t, err)
	assert.True(t, IsSessionExpired(err))
}

func TestGetExamSchedule_RejectionMarker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/word/word-centers/exam-schedule", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>Request Rejected: support ID 123</html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	session := authedSession(t, server.URL, &stubSolver{})

	_, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.Error(t, err)

	var svcErr *ServiceError
	assert.ErrorAs(t, err, &svcErr)
	assert.False(t, IsSessionExpired(err))
}

func TestGetExamSchedule_SolverFailure(t *testing.T) {
	solver := &stubSolver{err: fmt.Errorf("no workers available")}
	session := authedSession(t, "http://127.0.0.1:0", solver)

	_, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.Error(t, err)

	var captchaErr *CaptchaError
	assert.ErrorAs(t, err, &captchaErr)
}

func TestTurnstile_TokenReusedWithinBudget(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/word/word-centers/exam-schedule", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"schedule":{"scheduledDays":[]}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	solver := &stubSolver{}
	session := authedSession(t, server.URL, solver)

	for i := 0; i < 30; i++ {
		_, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
		require.NoError(t, err)
	}

	// 30 uses fit in one solved token
	assert.Equal(t, 1, solver.solveCount())

	usage := session.TurnstileUsage()
	assert.Equal(t, 1, usage.SolveCount)
	assert.Equal(t, 30, usage.Uses)

	// The 31st call exceeds the use budget and forces a refresh
	_, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.NoError(t, err)
	assert.Equal(t, 2, solver.solveCount())
	assert.Equal(t, 1, session.TurnstileUsage().Uses)
}

func TestTurnstile_TokenRefreshedAfterMaxAge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/word/word-centers/exam-schedule", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"schedule":{"scheduledDays":[]}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	now := time.Now()
	solver := &stubSolver{}
	session := authedSession(t, server.URL, solver, WithClock(func() time.Time { return now }))

	_, err := session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, solver.solveCount())

	// Just inside the lifetime: reuse
	now = now.Add(299 * time.Second)
	_, err = session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, solver.solveCount())

	// At the lifetime boundary: refresh
	now = now.Add(time.Second)
	_, err = session.GetExamSchedule(context.Background(), PracticeExamType, "word-5", "B")
	require.NoError(t, err)
	assert.Equal(t, 2, solver.solveCount())
}
