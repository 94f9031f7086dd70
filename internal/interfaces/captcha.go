package interfaces

import "context"

// CaptchaSolver is an opaque human-verification capability: given a target
// site URL and site key it produces a verification token.
type CaptchaSolver interface {
	Solve(ctx context.Context, siteURL, siteKey string) (string, error)
	GetBalance(ctx context.Context) (float64, error)
}
