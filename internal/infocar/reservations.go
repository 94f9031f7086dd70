package infocar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/ternarybob/specto/internal/models"
)

type reservationsResponse struct {
	Items []models.Reservation `json:"items"`
}

// GetReservations returns the account's most recent reservations, newest
// first by exam date (the service sorts; the limit is fixed at 10).
func (s *Session) GetReservations(ctx context.Context) ([]models.Reservation, error) {
	if !s.IsAuthenticated() {
		return nil, &AuthError{Kind: AuthErrToken, Message: "not authenticated"}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: "reservations", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/api/word/reservations?limit=10&sort=exam.examDate&direction=DESC", nil)
	if err != nil {
		return nil, &NetworkError{Op: "reservations", Err: err}
	}
	s.apiHeaders(req, s.bearerToken(), false)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "reservations", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthError{Kind: AuthErrExpired, Message: "access token expired or invalid"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var reservations reservationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&reservations); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: "unparseable reservations response"}
	}

	return reservations.Items, nil
}

// IsRescheduleEnabled reports whether the exam center currently accepts
// reservation reschedules.
func (s *Session) IsRescheduleEnabled(ctx context.Context, wordID string) (bool, error) {
	if !s.IsAuthenticated() {
		return false, &AuthError{Kind: AuthErrToken, Message: "not authenticated"}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, &NetworkError{Op: "reschedule enabled", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/api/word/word-centers/reschedule-enabled/"+wordID, nil)
	if err != nil {
		return false, &NetworkError{Op: "reschedule enabled", Err: err}
	}
	s.apiHeaders(req, s.bearerToken(), true)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, &NetworkError{Op: "reschedule enabled", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return false, &AuthError{Kind: AuthErrExpired, Message: "access token expired or invalid"}
	}
	if resp.StatusCode != http.StatusOK {
		return false, &ServiceError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var result struct {
		RescheduleEnabled bool `json:"rescheduleEnabled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, &ServiceError{StatusCode: resp.StatusCode, Body: "unparseable reschedule-enabled response"}
	}

	return result.RescheduleEnabled, nil
}

// Reschedule moves the reservation onto the given practice slot. A single
// authenticated write; callers must not retry automatically.
func (s *Session) Reschedule(ctx context.Context, reservationID, examID string) error {
	if !s.IsAuthenticated() {
		return &AuthError{Kind: AuthErrToken, Message: "not authenticated"}
	}

	payload, err := json.Marshal(map[string]string{"updatedPracticeId": examID})
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return &NetworkError{Op: "reschedule", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.baseURL+"/api/word/reservations/"+reservationID+"/reschedule", bytes.NewReader(payload))
	if err != nil {
		return &NetworkError{Op: "reschedule", Err: err}
	}
	s.apiHeaders(req, s.bearerToken(), true)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "reschedule", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Kind: AuthErrExpired, Message: "access token expired or invalid"}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &ServiceError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	if s.logger != nil {
		s.logger.Info().
			Str("reservation_id", reservationID).
			Str("exam_id", examID).
			Msg("Reservation rescheduled")
	}
	return nil
}
