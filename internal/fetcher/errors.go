package fetcher

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNetwork     Kind = "network"
	KindTimeout     Kind = "timeout"
	KindStatus      Kind = "status"
	KindMalformed   Kind = "malformed"
	KindUnavailable Kind = "unavailable"
)

// FetchError is returned for every failed fetch. All kinds are transient:
// the caller keeps its previous data and tries again on the next poll.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch %s: unexpected status code: %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a FetchError anywhere in err's chain, or ""
// when err is not a fetch failure.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Malformed wraps a decode failure of a successfully fetched body.
func Malformed(url string, err error) error {
	return &FetchError{Kind: KindMalformed, URL: url, Err: err}
}

// Timeout marks a poll that ran out of its overall time budget.
func Timeout(url string, err error) error {
	return &FetchError{Kind: KindTimeout, URL: url, Err: err}
}

// IsTransient reports whether err is a fetch failure worth retrying on the
// next poll. Every kind qualifies; there is no permanent fetch failure.
func IsTransient(err error) bool {
	return KindOf(err) != ""
}
