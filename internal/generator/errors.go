package generator

import "fmt"

// AuthError means the completion endpoint rejected our credential. It is
// never retried; the hint tells the user how to fix their key.
type AuthError struct {
	Hint string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("completion endpoint authentication failed: %v (%s)", e.Err, e.Hint)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError means the completion endpoint reported quota exhaustion
// after the single retry was spent.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("completion endpoint rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ParseError means the model's response survived neither the structured nor
// the fallback parse. Excerpt carries a truncated copy of the raw response
// for diagnosis.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse model response: %v (response starts: %.120q)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }
