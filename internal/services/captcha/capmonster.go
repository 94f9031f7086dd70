package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	// DefaultBaseURL is the Capmonster API endpoint.
	DefaultBaseURL = "https://api.capmonster.cloud"

	// DefaultTimeout is the HTTP timeout for individual API calls.
	DefaultTimeout = 30 * time.Second

	// DefaultPollInterval is how often a pending task is polled for a result.
	DefaultPollInterval = 2 * time.Second

	// DefaultSolveTimeout bounds the whole create-and-poll cycle.
	DefaultSolveTimeout = 2 * time.Minute

	turnstileTaskType = "TurnstileTaskProxyless"
)

// APIError is a non-zero errorId returned by the solving service.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("capmonster error %d: %s", e.Code, e.Description)
}

// Service is a Capmonster client implementing the CaptchaSolver interface.
type Service struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	logger       arbor.ILogger
	pollInterval time.Duration
	solveTimeout time.Duration
}

// Option configures the Service.
type Option func(*Service)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Service) {
		s.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPollInterval sets the task result poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = interval
	}
}

// NewService creates a Capmonster client.
func NewService(apiKey string, opts ...Option) *Service {
	s := &Service{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		pollInterval: DefaultPollInterval,
		solveTimeout: DefaultSolveTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type createTaskRequest struct {
	ClientKey string        `json:"clientKey"`
	Task      turnstileTask `json:"task"`
}

type turnstileTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Token string `json:"token"`
	} `json:"solution"`
}

type balanceRequest struct {
	ClientKey string `json:"clientKey"`
}

type balanceResponse struct {
	ErrorID          int     `json:"errorId"`
	ErrorDescription string  `json:"errorDescription"`
	Balance          float64 `json:"balance"`
}

// Solve creates a Turnstile task and polls until the token is ready.
func (s *Service) Solve(ctx context.Context, siteURL, siteKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.solveTimeout)
	defer cancel()

	var created createTaskResponse
	err := s.post(ctx, "/createTask", createTaskRequest{
		ClientKey: s.apiKey,
		Task: turnstileTask{
			Type:       turnstileTaskType,
			WebsiteURL: siteURL,
			WebsiteKey: siteKey,
		},
	}, &created)
	if err != nil {
		return "", err
	}
	if created.ErrorID != 0 {
		return "", &APIError{Code: created.ErrorID, Description: created.ErrorDescription}
	}

	if s.logger != nil {
		s.logger.Debug().Int64("task_id", created.TaskID).Msg("Turnstile task created")
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("captcha solve timed out: %w", ctx.Err())
		case <-time.After(s.pollInterval):
		}

		var result taskResultResponse
		err := s.post(ctx, "/getTaskResult", taskResultRequest{
			ClientKey: s.apiKey,
			TaskID:    created.TaskID,
		}, &result)
		if err != nil {
			return "", err
		}
		if result.ErrorID != 0 {
			return "", &APIError{Code: result.ErrorID, Description: result.ErrorDescription}
		}
		if result.Status == "ready" {
			return result.Solution.Token, nil
		}
	}
}

// GetBalance returns the remaining account balance in USD.
func (s *Service) GetBalance(ctx context.Context) (float64, error) {
	var result balanceResponse
	if err := s.post(ctx, "/getBalance", balanceRequest{ClientKey: s.apiKey}, &result); err != nil {
		return 0, err
	}
	if result.ErrorID != 0 {
		return 0, &APIError{Code: result.ErrorID, Description: result.ErrorDescription}
	}
	return result.Balance, nil
}

// post performs a JSON POST against the API.
func (s *Service) post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("capmonster returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
