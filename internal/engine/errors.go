package engine

import (
	"errors"
	"fmt"
)

// ErrLookupFailed is returned by Lookup when the fetcher fails and there is
// no cached entry to fall back to.
var ErrLookupFailed = errors.New("lookup failed")

// FetchError is returned by fetchers on any network or automation failure.
type FetchError struct {
	Source string
	Query  string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %q: %v", e.Source, e.Query, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err as a *FetchError unless it already is one.
func NewFetchError(source, query string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Source: source, Query: query, Err: err}
}

// StoreLoadError means the persisted store could not be read or decoded.
type StoreLoadError struct {
	Store string
	Err   error
}

func (e *StoreLoadError) Error() string {
	return fmt.Sprintf("load %s store: %v", e.Store, e.Err)
}

func (e *StoreLoadError) Unwrap() error { return e.Err }

// StoreSaveError means the store could not be persisted. The in-memory
// copy is still up to date.
type StoreSaveError struct {
	Store string
	Err   error
}

func (e *StoreSaveError) Error() string {
	return fmt.Sprintf("save %s store: %v", e.Store, e.Err)
}

func (e *StoreSaveError) Unwrap() error { return e.Err }
