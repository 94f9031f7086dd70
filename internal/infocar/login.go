package infocar

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// authorizeQuery is the fixed client/scope/nonce configuration of the implicit
// grant the web frontend uses. The state/nonce values are the ones the service
// accepts for the public client; they are not secrets.
const authorizeQuery = "response_type=id_token%20token" +
	"&client_id=client" +
	"&state=am9zY0lXV1ZyY3VrdzlCazRxcVdGTjlIRzQ1NlFxTTdUaFJmbi5LQzZUaU5X" +
	"&redirect_uri=https%3A%2F%2Finfo-car.pl%2Fnew%2Fassets%2Frefresh.html" +
	"&scope=openid%20profile%20email%20resource.read" +
	"&nonce=am9zY0lXV1ZyY3VrdzlCazRxcVdGTjlIRzQ1NlFxTTdUaFJmbi5LQzZUaU5X" +
	"&prompt=none"

// Login performs the three-step browser-emulating handshake: fetch the login
// page and scrape the CSRF token, post the credentials, then hit the
// authorize endpoint and pull the access token out of the redirect target.
// Cookies set along the way stay in the session jar.
func (s *Session) Login(ctx context.Context, username, password string) error {
	csrf, err := s.fetchCSRFToken(ctx)
	if err != nil {
		return err
	}

	if err := s.postCredentials(ctx, username, password, csrf); err != nil {
		return err
	}

	token, err := s.fetchAccessToken(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info().Str("username", username).Msg("Login handshake completed")
	}
	return nil
}

// fetchCSRFToken loads the login page and extracts the _csrf hidden input.
func (s *Session) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/oauth2/login", nil)
	if err != nil {
		return "", &NetworkError{Op: "login page", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "login page", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ServiceError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", &AuthError{Kind: AuthErrCSRF, Message: "login page is not parseable HTML"}
	}

	csrf, ok := doc.Find(`input[name="_csrf"]`).First().Attr("value")
	if !ok || csrf == "" {
		return "", &AuthError{Kind: AuthErrCSRF, Message: "csrf token not found on login page"}
	}

	return csrf, nil
}

// postCredentials submits the login form without following the redirect.
// The service signals bad credentials via an error marker in the Location
// header rather than a status code.
func (s *Session) postCredentials(ctx context.Context, username, password, csrf string) error {
	form := url.Values{
		"username": {username},
		"password": {password},
		// The web frontend sends the token twice; the service expects both.
		"_csrf": {csrf, csrf},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/oauth2/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return &NetworkError{Op: "login", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.noRedirect.Do(req)
	if err != nil {
		return &NetworkError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusOK {
		return &AuthError{Kind: AuthErrCredentials,
			Message: "login failed with status " + resp.Status}
	}

	if strings.Contains(resp.Header.Get("Location"), "?error=failure") {
		return &AuthError{Kind: AuthErrCredentials, Message: "invalid credentials"}
	}

	return nil
}

// fetchAccessToken hits the authorize endpoint and parses the access token
// from the redirect target, checking the fragment first and falling back to
// the query string.
func (s *Session) fetchAccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/oauth2/authorize?"+authorizeQuery, nil)
	if err != nil {
		return "", &NetworkError{Op: "authorize", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.noRedirect.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "authorize", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return "", &AuthError{Kind: AuthErrToken,
			Message: "authorize failed with status " + resp.Status}
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		return "", &AuthError{Kind: AuthErrToken, Message: "unparseable authorize redirect"}
	}

	params, _ := url.ParseQuery(location.Fragment)
	if params.Get("access_token") == "" {
		params = location.Query()
	}

	token := params.Get("access_token")
	if token == "" {
		return "", &AuthError{Kind: AuthErrToken,
			Message: "access token not found in authorize redirect"}
	}

	return token, nil
}
