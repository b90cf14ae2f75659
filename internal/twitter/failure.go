package twitter

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// Transient covers everything not listed below, including network errors.
	Transient Kind = iota
	Auth
	RateLimited
	CapExceeded
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Auth:
		return "auth"
	case RateLimited:
		return "rate_limited"
	case CapExceeded:
		return "cap_exceeded"
	case NotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// Failure is the only error type the client returns for remote failures.
type Failure struct {
	Kind Kind
	// ResetAt is set for RateLimited.
	ResetAt time.Time
	// Scope and Period are set for CapExceeded.
	Scope  string
	Period string
	// Status is the HTTP status, zero when no response arrived.
	Status  int
	Message string
	err     error
}

func (f *Failure) Error() string {
	msg := f.Message
	if msg == "" && f.err != nil {
		msg = f.err.Error()
	}
	if f.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", f.Kind, f.Status, msg)
	}
	return fmt.Sprintf("%s: %s", f.Kind, msg)
}

func (f *Failure) Unwrap() error { return f.err }

// AsFailure returns err as a *Failure. Errors that are not failures become
// Transient. A nil error yields nil.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: Transient, err: err}
}
