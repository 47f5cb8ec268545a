package bridge

import (
	"context"
	"errors"
	"net"

	"github.com/onnwee/pagebridge/fbapi"
)

// ErrorCategory classifies a publish failure. Categories drive the fallback
// state machine and the message shown to the chat user; the raw API error code
// is never surfaced to users.
type ErrorCategory int

const (
	// CategoryUnknown covers errors that match no configured code set.
	CategoryUnknown ErrorCategory = iota
	// CategoryExpired means the access token used for the attempt has expired.
	CategoryExpired
	// CategoryInvalid means the token or request was rejected as invalid.
	CategoryInvalid
	// CategoryDuplicate means the platform refused an identical repeat post.
	CategoryDuplicate
	// CategoryTransient covers timeouts and upstream 5xx; safe to surface as temporary.
	CategoryTransient
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryExpired:
		return "expired"
	case CategoryInvalid:
		return "invalid"
	case CategoryDuplicate:
		return "duplicate"
	case CategoryTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// IsAuth reports whether the category indicates a credential problem that the
// fallback cascade may recover from.
func (c ErrorCategory) IsAuth() bool {
	return c == CategoryExpired || c == CategoryInvalid
}

// CodeSets holds the external error codes mapped to each category. The sets are
// configuration (overridable per deployment); the platform's published codes
// are the defaults.
type CodeSets struct {
	Expired   []int
	Invalid   []int
	Duplicate []int
}

// DefaultCodeSets returns the platform's documented codes: 190 expired,
// 100/200 invalid, 506 duplicate.
func DefaultCodeSets() CodeSets {
	return CodeSets{Expired: []int{190}, Invalid: []int{100, 200}, Duplicate: []int{506}}
}

// Classify maps a publish attempt error to its category. API errors are matched
// against the configured code sets; timeouts and upstream 5xx become transient;
// anything else is unknown.
func (cs CodeSets) Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}
	var apiErr *fbapi.APIError
	if errors.As(err, &apiErr) {
		if contains(cs.Expired, apiErr.Code) {
			return CategoryExpired
		}
		if contains(cs.Invalid, apiErr.Code) {
			return CategoryInvalid
		}
		if contains(cs.Duplicate, apiErr.Code) {
			return CategoryDuplicate
		}
		if apiErr.HTTPStatus >= 500 {
			return CategoryTransient
		}
	}
	return CategoryUnknown
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
