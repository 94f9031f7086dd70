package infocar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/specto/internal/models"
)

// isoZuluLayout is the layout the exam-schedule endpoint expects for the
// query window bounds.
const isoZuluLayout = "2006-01-02T15:04:05.000Z"

// LookaheadDays is the fixed query window from today.
const LookaheadDays = 60

type scheduleRequest struct {
	Category  string `json:"category"`
	EndDate   string `json:"endDate"`
	StartDate string `json:"startDate"`
	WordID    string `json:"wordId"`
}

type scheduleResponse struct {
	Schedule struct {
		ScheduledDays []scheduledDay `json:"scheduledDays"`
	} `json:"schedule"`
}

type scheduledDay struct {
	Day            string          `json:"day"`
	ScheduledHours []scheduledHour `json:"scheduledHours"`
}

type scheduledHour struct {
	Time          string      `json:"time"`
	TheoryExams   []examEntry `json:"theoryExams"`
	PracticeExams []examEntry `json:"practiceExams"`
}

type examEntry struct {
	ID     string `json:"id"`
	Places int    `json:"places"`
	Date   string `json:"date"`
	Amount int    `json:"amount"`
}

func (h scheduledHour) entries(examType string) []examEntry {
	if examType == TheoryExamType {
		return h.TheoryExams
	}
	return h.PracticeExams
}

// GetExamSchedule queries available slots for an exam center over the fixed
// 60-day lookahead and flattens the nested schedule into a list of exams.
// Requires a bearer token; mints or reuses a Turnstile token and consumes one
// use of it. A 401 surfaces as the distinguished expired-session error.
func (s *Session) GetExamSchedule(ctx context.Context, examType, wordID, category string) ([]models.Exam, error) {
	if !s.IsAuthenticated() {
		return nil, &AuthError{Kind: AuthErrToken, Message: "not authenticated"}
	}

	if err := s.ensureTurnstile(ctx); err != nil {
		return nil, err
	}
	turnstileToken := s.useTurnstile()

	today := s.now().UTC().Truncate(24 * time.Hour)
	payload, err := json.Marshal(scheduleRequest{
		Category:  category,
		EndDate:   today.AddDate(0, 0, LookaheadDays).Format(isoZuluLayout),
		StartDate: today.Format(isoZuluLayout),
		WordID:    wordID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: "exam schedule", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.baseURL+"/api/word/word-centers/exam-schedule", bytes.NewReader(payload))
	if err != nil {
		return nil, &NetworkError{Op: "exam schedule", Err: err}
	}
	s.apiHeaders(req, s.bearerToken(), true)
	req.Header.Set("X-CF-Turnstile", turnstileToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "exam schedule", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthError{Kind: AuthErrExpired, Message: "access token expired or invalid"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	body := readBody(resp)
	if strings.Contains(body, rejectionMarker) {
		return nil, &ServiceError{Body: "request rejected by the service backend"}
	}

	var schedule scheduleResponse
	if err := json.Unmarshal([]byte(body), &schedule); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: "unparseable schedule response"}
	}

	exams, err := flattenSchedule(schedule, examType)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Debug().
			Str("word_id", wordID).
			Int("slots", len(exams)).
			Msg("Exam schedule fetched")
	}
	return exams, nil
}

// flattenSchedule walks days and hours and collects the slot entries for the
// requested exam kind.
func flattenSchedule(schedule scheduleResponse, examType string) ([]models.Exam, error) {
	var exams []models.Exam
	for _, day := range schedule.Schedule.ScheduledDays {
		for _, hour := range day.ScheduledHours {
			for _, entry := range hour.entries(examType) {
				exam, err := models.NewExam(entry.ID, entry.Places, entry.Date, entry.Amount)
				if err != nil {
					return nil, err
				}
				exams = append(exams, exam)
			}
		}
	}
	return exams, nil
}
